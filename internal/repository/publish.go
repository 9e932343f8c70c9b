package repository

import (
	"context"
	"fmt"

	"github.com/booknestapp/booknest-server/internal/domain"
	domainerrors "github.com/booknestapp/booknest-server/internal/errors"
)

// Publish steps, in order. Reported with PUBLISH_INCOMPLETE errors.
const (
	stepWritePublicBook     = "write public book"
	stepReadDraftChapters   = "read draft chapters"
	stepCopyChapters        = "copy chapters"
	stepDeleteDraftChapters = "delete draft chapters"
	stepDeleteDraft         = "delete draft"
)

// PublishBook moves the user's draft into the public catalog under the same
// id: the public book and every chapter copy are written before any draft
// document is deleted. Chapters keep their ids and timestamps and are
// stamped with the owner.
//
// The sequence is not atomic. If a step after the public book write fails,
// the copies made so far stay in place and the returned error has code
// PUBLISH_INCOMPLETE with the failing step in its details. Nothing is
// retried.
func (r *BookRepository) PublishBook(ctx context.Context, userID string, book domain.Book) error {
	if book.ID == "" {
		return domainerrors.Validation("only a saved draft can be published")
	}

	public := book
	public.IsDraft = false
	public.UserID = userID
	public.Timestamp = r.clock.NowMillis()
	public.Normalize()
	if err := r.publicBooks().Doc(book.ID).Set(ctx, &public); err != nil {
		return fmt.Errorf("%s: %w", stepWritePublicBook, err)
	}

	draftChapters := r.draftChapters(userID, book.ID)
	docs, err := draftChapters.Documents(ctx)
	if err != nil {
		return r.publishIncomplete(userID, book.ID, stepReadDraftChapters, err)
	}

	chapters := r.decodeChapters(docs)
	for _, ch := range chapters {
		ch.UserID = userID
		ch.BookID = book.ID
		if err := r.publicChapters(book.ID).Doc(ch.ID).Set(ctx, &ch); err != nil {
			return r.publishIncomplete(userID, book.ID, stepCopyChapters, err)
		}
	}

	for _, d := range docs {
		if err := draftChapters.Doc(d.ID).Delete(ctx); err != nil {
			return r.publishIncomplete(userID, book.ID, stepDeleteDraftChapters, err)
		}
	}
	if err := r.drafts(userID).Doc(book.ID).Delete(ctx); err != nil {
		return r.publishIncomplete(userID, book.ID, stepDeleteDraft, err)
	}

	r.logger.Info("book published",
		"user_id", userID,
		"book_id", book.ID,
		"chapters", len(chapters),
	)
	return nil
}

func (r *BookRepository) publishIncomplete(userID, bookID, step string, err error) error {
	r.logger.Warn("publish incomplete, draft and public copies may coexist",
		"user_id", userID,
		"book_id", bookID,
		"step", step,
		"error", err,
	)
	return domainerrors.Wrapf(err, domainerrors.CodePublishIncomplete, "publish of %s stopped at %s", bookID, step).
		WithDetails(map[string]string{"bookId": bookID, "step": step})
}
