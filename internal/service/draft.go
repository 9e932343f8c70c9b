package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/booknestapp/booknest-server/internal/auth"
	"github.com/booknestapp/booknest-server/internal/domain"
	domainerrors "github.com/booknestapp/booknest-server/internal/errors"
	"github.com/booknestapp/booknest-server/internal/logger"
	"github.com/booknestapp/booknest-server/internal/repository"
	"github.com/booknestapp/booknest-server/internal/stream"
)

// DefaultWordLimit is the most words a chapter save may carry.
const DefaultWordLimit = 300

// NewDraftID is the book id that opens a fresh, unsaved draft.
const NewDraftID = "new"

// Phase is where a draft session stands.
type Phase string

const (
	// PhaseNew is a draft that was never saved: it has no id and its
	// chapters exist only in memory.
	PhaseNew Phase = "new"
	// PhaseLoaded is a saved draft whose chapters follow the store.
	PhaseLoaded Phase = "loaded"
)

// DraftState is a snapshot of a draft session.
type DraftState struct {
	Phase           Phase            `json:"phase"`
	Book            domain.Book      `json:"book"`
	Chapters        []domain.Chapter `json:"chapters"`
	SelectedChapter *domain.Chapter  `json:"selectedChapter,omitempty"`
	WordLimit       int              `json:"wordLimit"`
	// WordCountExceeded stays set after a rejected save until
	// ClearWordCountError.
	WordCountExceeded bool `json:"wordCountExceeded"`
	// NewChapter is raised by AddChapter and stays set until AckNewChapter.
	NewChapter bool `json:"newChapter"`
}

func (st DraftState) clone() DraftState {
	st.Chapters = slices.Clone(st.Chapters)
	if st.SelectedChapter != nil {
		sel := *st.SelectedChapter
		st.SelectedChapter = &sel
	}
	return st
}

// DraftOptions tunes a draft session.
type DraftOptions struct {
	WordLimit int
	Logger    *slog.Logger
}

// DraftSession is one author's editing session over a single draft.
//
// Operations that write run one at a time; chapter updates from the store
// are applied between them.
type DraftSession struct {
	repo      *repository.BookRepository
	session   auth.Session
	wordLimit int
	logger    *slog.Logger
	notify    *notifier

	ctx    context.Context
	cancel context.CancelFunc

	op sync.Mutex // serializes Load, AddChapter, Save and Publish

	mu       sync.Mutex
	userID   string
	state    DraftState
	chapters *feedRun
	gen      uint64
}

// NewDraftSession creates an empty session. Subscriptions it starts live
// until Close.
func NewDraftSession(repo *repository.BookRepository, session auth.Session, opts DraftOptions) *DraftSession {
	limit := opts.WordLimit
	if limit <= 0 {
		limit = DefaultWordLimit
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DraftSession{
		repo:      repo,
		session:   session,
		wordLimit: limit,
		logger:    logger.OrDiscard(opts.Logger).With("component", "draft_session"),
		notify:    newNotifier(),
		ctx:       ctx,
		cancel:    cancel,
		state:     DraftState{Phase: PhaseNew, WordLimit: limit},
	}
}

// Load opens a draft of the signed-in user. An empty id or NewDraftID
// starts a fresh draft with a single "Chapter 1"; any other id loads the
// stored draft and follows its chapters.
func (d *DraftSession) Load(ctx context.Context, bookID string) error {
	userID, ok := d.session.CurrentUserID(ctx)
	if !ok {
		return domainerrors.Unauthenticated("editing drafts requires a signed-in user")
	}

	d.op.Lock()
	defer d.op.Unlock()

	if bookID == "" || bookID == NewDraftID {
		first := domain.Chapter{Title: domain.DefaultChapterTitle(1)}
		d.replace(userID, DraftState{
			Phase:           PhaseNew,
			Book:            domain.NewDraftBook(userID),
			Chapters:        []domain.Chapter{first},
			SelectedChapter: &first,
		}, nil)
		return nil
	}

	book, err := d.repo.GetDraftBook(ctx, userID, bookID)
	if err != nil {
		return fmt.Errorf("load draft: %w", err)
	}
	if book == nil {
		return domainerrors.NotFoundf("draft %s not found", bookID)
	}

	// The stored chapters are in place before Load returns, so an
	// immediate Save updates the selected chapter instead of adding one.
	chapters, err := stream.First(ctx, d.repo.ListChapters(userID, bookID))
	if err != nil {
		return fmt.Errorf("load draft chapters: %w", err)
	}

	st := DraftState{Phase: PhaseLoaded, Book: *book}
	d.replace(userID, st, func() { d.applyChapters(chapters) })
	d.followChapters()
	return nil
}

// replace swaps in a new state for userID, dropping the chapter
// subscription of the previous draft. init, when set, runs under mu right
// after the swap. Caller holds op.
func (d *DraftSession) replace(userID string, st DraftState, init func()) {
	d.mu.Lock()
	old := d.chapters
	d.chapters = nil
	d.userID = userID
	st.WordLimit = d.wordLimit
	d.state = st
	if init != nil {
		init()
	}
	d.mu.Unlock()

	if old != nil {
		old.handle.Cancel()
	}
	d.notify.signal()
}

// followChapters subscribes to the chapters of the current draft. Caller
// holds op.
func (d *DraftSession) followChapters() {
	d.mu.Lock()
	old := d.chapters
	d.gen++
	gen := d.gen
	src := d.repo.ListChapters(d.userID, d.state.Book.ID)
	handle := src.Each(d.ctx, func(chapters []domain.Chapter) {
		d.mu.Lock()
		if d.chapters == nil || d.chapters.gen != gen {
			d.mu.Unlock()
			return
		}
		d.applyChapters(chapters)
		d.mu.Unlock()
		d.notify.signal()
	})
	d.chapters = &feedRun{gen: gen, handle: handle}
	d.mu.Unlock()

	if old != nil {
		old.handle.Cancel()
	}
	go func() {
		<-handle.Done()
		if err := handle.Err(); err != nil {
			d.logger.Warn("chapter subscription ended", "error", err)
		}
	}()
}

// applyChapters takes the stored chapter list, keeping the selection when
// it is still present and falling back to the first chapter. Caller holds mu.
func (d *DraftSession) applyChapters(chapters []domain.Chapter) {
	d.state.Chapters = chapters

	if sel := d.state.SelectedChapter; sel != nil && sel.ID != "" {
		if i := slices.IndexFunc(chapters, func(c domain.Chapter) bool { return c.ID == sel.ID }); i >= 0 {
			selected := chapters[i]
			d.state.SelectedChapter = &selected
			return
		}
	}
	if len(chapters) > 0 {
		first := chapters[0]
		d.state.SelectedChapter = &first
		return
	}
	d.state.SelectedChapter = nil
}

// SelectChapter selects a chapter of the local list. Unknown ids are
// ignored.
func (d *DraftSession) SelectChapter(chapterID string) {
	d.mu.Lock()
	i := slices.IndexFunc(d.state.Chapters, func(c domain.Chapter) bool { return c.ID == chapterID })
	if i < 0 {
		d.mu.Unlock()
		return
	}
	selected := d.state.Chapters[i]
	d.state.SelectedChapter = &selected
	d.mu.Unlock()
	d.notify.signal()
}

// AddChapter appends "Chapter N" to a saved draft, selects it and raises
// the NewChapter event. On a draft that was never saved it does nothing
// and returns nil.
func (d *DraftSession) AddChapter(ctx context.Context) (*domain.Chapter, error) {
	d.op.Lock()
	defer d.op.Unlock()

	d.mu.Lock()
	if d.state.Phase != PhaseLoaded {
		d.mu.Unlock()
		return nil, nil
	}
	userID, bookID := d.userID, d.state.Book.ID
	ch := domain.Chapter{Title: domain.DefaultChapterTitle(len(d.state.Chapters) + 1)}
	d.mu.Unlock()

	saved, err := d.repo.SaveChapter(ctx, userID, bookID, ch)
	if err != nil {
		return nil, fmt.Errorf("add chapter: %w", err)
	}

	d.mu.Lock()
	d.state.Chapters = reconcileChapter(d.state.Chapters, saved.ID, saved)
	d.state.SelectedChapter = &saved
	d.state.NewChapter = true
	d.mu.Unlock()
	d.notify.signal()

	return &saved, nil
}

// AckNewChapter lowers the NewChapter event.
func (d *DraftSession) AckNewChapter() {
	d.mu.Lock()
	d.state.NewChapter = false
	d.mu.Unlock()
	d.notify.signal()
}

// Save stores the book under the given title and the selected chapter (a
// fresh one when none is selected) with the given content, and returns the
// book id. Content over the word limit is rejected without any write: the
// sticky WordCountExceeded flag is raised and the returned id is empty.
func (d *DraftSession) Save(ctx context.Context, title, content string) (string, error) {
	d.op.Lock()
	defer d.op.Unlock()

	if words := domain.WordCount(content); words > d.wordLimit {
		d.mu.Lock()
		d.state.WordCountExceeded = true
		d.mu.Unlock()
		d.notify.signal()
		d.logger.Debug("save rejected over word limit", "words", words, "limit", d.wordLimit)
		return "", nil
	}

	d.mu.Lock()
	if d.userID == "" {
		d.mu.Unlock()
		return "", domainerrors.Unauthenticated("no draft loaded")
	}
	userID := d.userID
	book := d.state.Book
	book.Title = title
	book.IsDraft = true
	book.UserID = userID
	var ch domain.Chapter
	if d.state.SelectedChapter != nil {
		ch = *d.state.SelectedChapter
	} else {
		ch = domain.Chapter{Title: domain.DefaultChapterTitle(len(d.state.Chapters) + 1)}
	}
	wasNew := d.state.Phase == PhaseNew
	d.mu.Unlock()

	bookID, err := d.repo.SaveDraft(ctx, userID, book)
	if err != nil {
		return "", err
	}
	book.ID = bookID

	ch.Content = content
	previousID := ch.ID
	saved, err := d.repo.SaveChapter(ctx, userID, bookID, ch)
	if err != nil {
		return "", err
	}

	d.mu.Lock()
	d.state.Book = book
	d.state.Chapters = reconcileChapter(d.state.Chapters, previousID, saved)
	d.state.SelectedChapter = &saved
	d.state.Phase = PhaseLoaded
	d.mu.Unlock()

	if wasNew {
		d.followChapters()
	}
	d.notify.signal()
	d.logger.Debug("draft saved", "user_id", userID, "book_id", bookID, "chapter_id", saved.ID)
	return bookID, nil
}

// reconcileChapter puts saved into the list: over a chapter already
// carrying its id (the store feed may have delivered it first), else over
// previousID, else over the first unsaved chapter, else at the end.
func reconcileChapter(chapters []domain.Chapter, previousID string, saved domain.Chapter) []domain.Chapter {
	out := slices.Clone(chapters)
	for _, id := range []string{saved.ID, previousID} {
		if id == "" {
			continue
		}
		if i := slices.IndexFunc(out, func(c domain.Chapter) bool { return c.ID == id }); i >= 0 {
			out[i] = saved
			return out
		}
	}
	if i := slices.IndexFunc(out, func(c domain.Chapter) bool { return c.IsNew() }); i >= 0 {
		out[i] = saved
		return out
	}
	return append(out, saved)
}

// ClearWordCountError lowers the WordCountExceeded flag.
func (d *DraftSession) ClearWordCountError() {
	d.mu.Lock()
	d.state.WordCountExceeded = false
	d.mu.Unlock()
	d.notify.signal()
}

// Publish publishes the draft as last saved in this session. A draft that
// was never saved is left alone. Callers save first; unsaved edits are not
// published.
//
// A published draft no longer exists, so the session does not stay Loaded:
// it resets to an empty PhaseNew state with no chapters. Keeping the old id
// would let the next Save recreate the deleted draft next to its public
// copy. A later Save starts a new draft.
func (d *DraftSession) Publish(ctx context.Context) error {
	d.op.Lock()
	defer d.op.Unlock()

	d.mu.Lock()
	if d.state.Phase != PhaseLoaded {
		d.mu.Unlock()
		return nil
	}
	userID, book := d.userID, d.state.Book
	d.mu.Unlock()

	if err := d.repo.PublishBook(ctx, userID, book); err != nil {
		return err
	}
	d.replace(userID, DraftState{Phase: PhaseNew}, nil)
	return nil
}

// State returns a snapshot of the session.
func (d *DraftSession) State() DraftState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state.clone()
}

// Changes emits the current state, then the state after every change.
func (d *DraftSession) Changes() stream.Stream[DraftState] {
	return changes(d.notify, d.State)
}

// Close cancels the chapter subscription and ends all Changes streams.
func (d *DraftSession) Close() {
	d.cancel()

	d.mu.Lock()
	run := d.chapters
	d.chapters = nil
	d.mu.Unlock()

	if run != nil {
		run.handle.Cancel()
	}
	d.notify.close()
}
