// Package repository owns the collection layout of books, chapters and
// favorites, and the draft/publish protocol on top of the document store.
//
// Layout:
//
//	books/{bookId}                               public catalog
//	books/{bookId}/chapters/{chapterId}          public chapters
//	users/{uid}/drafts/{bookId}                  a user's drafts
//	users/{uid}/drafts/{bookId}/chapters/{id}    draft chapters
//	users/{uid}/favorites/{bookId}               favorite markers
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/booknestapp/booknest-server/internal/auth"
	"github.com/booknestapp/booknest-server/internal/docstore"
	"github.com/booknestapp/booknest-server/internal/domain"
	domainerrors "github.com/booknestapp/booknest-server/internal/errors"
	"github.com/booknestapp/booknest-server/internal/logger"
	"github.com/booknestapp/booknest-server/internal/normalize"
	"github.com/booknestapp/booknest-server/internal/stream"
)

// DefaultFavoritesBatchSize is the number of ids resolved per catalog query.
const DefaultFavoritesBatchSize = 10

// Options tunes the repository.
type Options struct {
	// FavoritesBatchSize caps ids per batched catalog lookup. Clamped to
	// docstore.MaxInQueryIDs.
	FavoritesBatchSize int
	Clock              domain.Clock
	Logger             *slog.Logger
}

// BookRepository is the only component that knows where books, chapters and
// favorites are stored.
type BookRepository struct {
	store     *docstore.Store
	session   auth.Session
	batchSize int
	clock     domain.Clock
	logger    *slog.Logger
}

// NewBookRepository creates a repository over store. session supplies the
// acting user for the operations that take no explicit user id.
func NewBookRepository(store *docstore.Store, session auth.Session, opts Options) *BookRepository {
	batch := opts.FavoritesBatchSize
	if batch <= 0 {
		batch = DefaultFavoritesBatchSize
	}
	batch = min(batch, docstore.MaxInQueryIDs)

	return &BookRepository{
		store:     store,
		session:   session,
		batchSize: batch,
		clock:     opts.Clock,
		logger:    logger.OrDiscard(opts.Logger).With("component", "repository"),
	}
}

func (r *BookRepository) publicBooks() *docstore.CollectionRef {
	return r.store.Collection("books")
}

func (r *BookRepository) publicChapters(bookID string) *docstore.CollectionRef {
	return r.store.Collection("books", bookID, "chapters")
}

func (r *BookRepository) drafts(userID string) *docstore.CollectionRef {
	return r.store.Collection("users", userID, "drafts")
}

func (r *BookRepository) draftChapters(userID, bookID string) *docstore.CollectionRef {
	return r.store.Collection("users", userID, "drafts", bookID, "chapters")
}

func (r *BookRepository) favorites(userID string) *docstore.CollectionRef {
	return r.store.Collection("users", userID, "favorites")
}

// --- Public catalog ---

// ListPublicBooks is a live list of published books, newest first.
func (r *BookRepository) ListPublicBooks() stream.Stream[[]domain.Book] {
	q := r.publicBooks().
		Where("isDraft", docstore.Equal, false).
		OrderBy("timestamp", docstore.Desc)
	return stream.Map(q.Snapshots(), r.decodeBooks)
}

// GetPublicBook returns the published book, or nil when it does not exist.
func (r *BookRepository) GetPublicBook(ctx context.Context, bookID string) (*domain.Book, error) {
	return r.getBook(ctx, r.publicBooks().Doc(bookID))
}

// ListPublicChapters is a live list of a published book's chapters in
// writing order.
func (r *BookRepository) ListPublicChapters(bookID string) stream.Stream[[]domain.Chapter] {
	q := r.publicChapters(bookID).OrderBy("timestamp", docstore.Asc)
	return stream.Map(q.Snapshots(), r.decodeChapters)
}

// --- Drafts ---

// ListDraftBooks is a live list of the user's drafts, newest first.
func (r *BookRepository) ListDraftBooks(userID string) stream.Stream[[]domain.Book] {
	q := r.drafts(userID).OrderBy("timestamp", docstore.Desc)
	return stream.Map(q.Snapshots(), r.decodeBooks)
}

// GetDraftBook returns the user's draft, or nil when it does not exist.
func (r *BookRepository) GetDraftBook(ctx context.Context, userID, bookID string) (*domain.Book, error) {
	return r.getBook(ctx, r.drafts(userID).Doc(bookID))
}

// SaveDraft creates (blank id) or overwrites the user's draft, stamping the
// current time and canonicalizing its metadata. It returns the draft id.
func (r *BookRepository) SaveDraft(ctx context.Context, userID string, book domain.Book) (string, error) {
	normalize.Book(&book)
	book.Timestamp = r.clock.NowMillis()
	bookID, err := upsert(ctx, r.drafts(userID), book.ID, &book, func(id string) { book.ID = id })
	if err != nil {
		return "", fmt.Errorf("save draft: %w", err)
	}
	r.logger.Debug("draft saved", "user_id", userID, "book_id", bookID)
	return bookID, nil
}

// ListChapters is a live list of a draft's chapters in writing order.
func (r *BookRepository) ListChapters(userID, bookID string) stream.Stream[[]domain.Chapter] {
	q := r.draftChapters(userID, bookID).OrderBy("timestamp", docstore.Asc)
	return stream.Map(q.Snapshots(), r.decodeChapters)
}

// SaveChapter creates (blank id) or overwrites a draft chapter and returns
// it as stored.
func (r *BookRepository) SaveChapter(ctx context.Context, userID, bookID string, ch domain.Chapter) (domain.Chapter, error) {
	ch.UserID = userID
	ch.BookID = bookID
	ch.Timestamp = r.clock.NowMillis()
	if _, err := upsert(ctx, r.draftChapters(userID, bookID), ch.ID, &ch, func(id string) { ch.ID = id }); err != nil {
		return domain.Chapter{}, fmt.Errorf("save chapter: %w", err)
	}
	return ch, nil
}

// DeleteChapter removes a draft chapter. Missing chapters are ignored.
func (r *BookRepository) DeleteChapter(ctx context.Context, userID, bookID, chapterID string) error {
	if err := r.draftChapters(userID, bookID).Doc(chapterID).Delete(ctx); err != nil {
		return fmt.Errorf("delete chapter: %w", err)
	}
	return nil
}

// --- Generic save/delete ---

// SaveBook stores a book for its owner (book.UserID, else the session user)
// in the draft area when it is a draft and in the public catalog otherwise.
// It returns the effective id.
func (r *BookRepository) SaveBook(ctx context.Context, book domain.Book) (string, error) {
	if book.UserID == "" {
		userID, ok := r.session.CurrentUserID(ctx)
		if !ok {
			return "", domainerrors.Unauthenticated("saving a book requires a signed-in user")
		}
		book.UserID = userID
	}

	if book.IsDraft {
		return r.SaveDraft(ctx, book.UserID, book)
	}

	normalize.Book(&book)
	book.Timestamp = r.clock.NowMillis()
	bookID, err := upsert(ctx, r.publicBooks(), book.ID, &book, func(id string) { book.ID = id })
	if err != nil {
		return "", fmt.Errorf("save book: %w", err)
	}
	return bookID, nil
}

// DeleteBook deletes the session user's draft, or else their published
// book, together with its chapters. Without a signed-in user it does
// nothing. Deleting someone else's published book is FORBIDDEN; a book found
// in neither area is NOT_FOUND.
func (r *BookRepository) DeleteBook(ctx context.Context, bookID string) error {
	userID, ok := r.session.CurrentUserID(ctx)
	if !ok {
		return nil
	}

	draft, err := r.GetDraftBook(ctx, userID, bookID)
	if err != nil {
		return err
	}
	if draft != nil {
		if err := r.deleteAll(ctx, r.draftChapters(userID, bookID)); err != nil {
			return fmt.Errorf("delete draft chapters: %w", err)
		}
		if err := r.drafts(userID).Doc(bookID).Delete(ctx); err != nil {
			return fmt.Errorf("delete draft: %w", err)
		}
		r.logger.Info("draft deleted", "user_id", userID, "book_id", bookID)
		return nil
	}

	public, err := r.GetPublicBook(ctx, bookID)
	if err != nil {
		return err
	}
	if public == nil {
		return domainerrors.NotFoundf("book %s not found", bookID)
	}
	if public.UserID != userID {
		return domainerrors.Forbiddenf("book %s belongs to another user", bookID)
	}

	if err := r.deleteAll(ctx, r.publicChapters(bookID)); err != nil {
		return fmt.Errorf("delete public chapters: %w", err)
	}
	if err := r.publicBooks().Doc(bookID).Delete(ctx); err != nil {
		return fmt.Errorf("delete public book: %w", err)
	}
	r.logger.Info("published book deleted", "user_id", userID, "book_id", bookID)
	return nil
}

// --- helpers ---

// upsert writes v at docID, or under a store-assigned id when docID is
// blank; assign receives the new id before the write so the stored body
// carries it.
func upsert(ctx context.Context, coll *docstore.CollectionRef, docID string, v any, assign func(string)) (string, error) {
	ref := coll.Doc(docID)
	if docID == "" {
		var err error
		if ref, err = coll.NewDoc(); err != nil {
			return "", err
		}
		assign(ref.ID())
	}
	if err := ref.Set(ctx, v); err != nil {
		return "", err
	}
	return ref.ID(), nil
}

func (r *BookRepository) getBook(ctx context.Context, ref *docstore.DocumentRef) (*domain.Book, error) {
	doc, err := ref.Get(ctx)
	if errors.Is(err, docstore.ErrNotFound) || errors.Is(err, docstore.ErrInvalidPath) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	var book domain.Book
	if err := doc.DataTo(&book); err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	book.ID = doc.ID
	book.Normalize()
	return &book, nil
}

func (r *BookRepository) deleteAll(ctx context.Context, coll *docstore.CollectionRef) error {
	docs, err := coll.Documents(ctx)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := coll.Doc(d.ID).Delete(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *BookRepository) decodeBooks(docs []*docstore.Document) []domain.Book {
	return decodeAll(r.logger, docs, func(b *domain.Book, id string) {
		b.ID = id
		b.Normalize()
	})
}

func (r *BookRepository) decodeChapters(docs []*docstore.Document) []domain.Chapter {
	return decodeAll(r.logger, docs, func(c *domain.Chapter, id string) { c.ID = id })
}

// decodeAll decodes every document, skipping (and logging) those that do
// not fit T.
func decodeAll[T any](log *slog.Logger, docs []*docstore.Document, setID func(*T, string)) []T {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := d.DataTo(&v); err != nil {
			log.Warn("skipping undecodable document", "path", d.Path, "error", err)
			continue
		}
		setID(&v, d.ID)
		out = append(out, v)
	}
	return out
}
