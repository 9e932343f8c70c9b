// Package service holds the stateful projections clients work against: the
// book views of a signed-in reader and the draft composition session of an
// author.
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

// BookViews is the state a reader's screens render from.
type BookViews struct {
	AllBooks        []domain.Book    `json:"allBooks"`
	Favorites       []domain.Book    `json:"favorites"`
	Drafts          []domain.Book    `json:"drafts"`
	Current         *domain.Book     `json:"current,omitempty"`
	CurrentChapters []domain.Chapter `json:"currentChapters"`
}

func (v BookViews) clone() BookViews {
	out := BookViews{
		AllBooks:        slices.Clone(v.AllBooks),
		Favorites:       slices.Clone(v.Favorites),
		Drafts:          slices.Clone(v.Drafts),
		CurrentChapters: slices.Clone(v.CurrentChapters),
	}
	if v.Current != nil {
		current := *v.Current
		out.Current = &current
	}
	return out
}

type feed int

const (
	feedAllBooks feed = iota
	feedFavorites
	feedDrafts
	feedChapters
)

func (f feed) String() string {
	switch f {
	case feedAllBooks:
		return "all_books"
	case feedFavorites:
		return "favorites"
	case feedDrafts:
		return "drafts"
	case feedChapters:
		return "chapters"
	default:
		return "unknown"
	}
}

type feedRun struct {
	gen    uint64
	handle *stream.Handle
}

// BookService keeps BookViews in sync with the repository's live lists.
// Each view is fed by its own subscription; mutations restart the
// subscriptions of the views they affect.
type BookService struct {
	repo    *repository.BookRepository
	session auth.Session
	logger  *slog.Logger
	notify  *notifier

	mu     sync.Mutex
	ctx    context.Context // nil until Start, and again after Stop
	cancel context.CancelFunc
	userID string
	views  BookViews
	feeds  map[feed]*feedRun
	gen    uint64
}

// NewBookService creates a book service. Nothing is subscribed before Start.
func NewBookService(repo *repository.BookRepository, session auth.Session, log *slog.Logger) *BookService {
	return &BookService{
		repo:    repo,
		session: session,
		logger:  logger.OrDiscard(log).With("component", "book_service"),
		notify:  newNotifier(),
		feeds:   make(map[feed]*feedRun),
	}
}

// Start subscribes to the public catalog and, when ctx carries a signed-in
// user, to that user's favorites and drafts. Subscriptions live until Stop
// or until ctx is cancelled.
func (s *BookService) Start(ctx context.Context) {
	userID, _ := s.session.CurrentUserID(ctx)

	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.userID = userID
	s.mu.Unlock()

	s.restart(feedAllBooks)
	if userID != "" {
		s.restart(feedFavorites, feedDrafts)
	}
	s.logger.Debug("book service started", "user_id", userID)
}

// Stop cancels every subscription and ends all Changes streams. A stopped
// service cannot be started again.
func (s *BookService) Stop() {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.ctx = nil
	runs := s.feeds
	s.feeds = make(map[feed]*feedRun)
	s.mu.Unlock()

	for _, run := range runs {
		run.handle.Cancel()
	}
	s.notify.close()
}

// Views returns a copy of the current state.
func (s *BookService) Views() BookViews {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.views.clone()
}

// Changes emits the current views, then the views after every change.
// Slow consumers see the latest state, not every intermediate one.
func (s *BookService) Changes() stream.Stream[BookViews] {
	return changes(s.notify, s.Views)
}

// LoadBook selects a published book and follows its chapters. Selecting a
// book that does not exist clears the selection.
func (s *BookService) LoadBook(ctx context.Context, bookID string) (*domain.Book, error) {
	book, err := s.repo.GetPublicBook(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("load book: %w", err)
	}

	s.mu.Lock()
	s.views.Current = book
	s.views.CurrentChapters = nil
	s.mu.Unlock()
	s.notify.signal()

	if book == nil {
		s.stopFeed(feedChapters)
		return nil, nil
	}
	s.restart(feedChapters)
	return book, nil
}

// SaveBook stores the book and refreshes the list it belongs to.
func (s *BookService) SaveBook(ctx context.Context, book domain.Book) (string, error) {
	bookID, err := s.repo.SaveBook(ctx, book)
	if err != nil {
		return "", err
	}
	if book.IsDraft {
		s.restart(feedDrafts)
	} else {
		s.restart(feedAllBooks, feedFavorites)
	}
	return bookID, nil
}

// DeleteBook deletes the book and refreshes every list. A deleted current
// selection is cleared.
func (s *BookService) DeleteBook(ctx context.Context, bookID string) error {
	if err := s.repo.DeleteBook(ctx, bookID); err != nil {
		return err
	}

	s.mu.Lock()
	cleared := s.views.Current != nil && s.views.Current.ID == bookID
	if cleared {
		s.views.Current = nil
		s.views.CurrentChapters = nil
	}
	s.mu.Unlock()

	if cleared {
		s.stopFeed(feedChapters)
		s.notify.signal()
	}
	s.restart(feedAllBooks, feedFavorites, feedDrafts)
	return nil
}

// ToggleFavorite marks or unmarks a book and refreshes the favorites.
func (s *BookService) ToggleFavorite(ctx context.Context, bookID string, isFavorite bool) error {
	if err := s.repo.ToggleFavorite(ctx, bookID, isFavorite); err != nil {
		return err
	}
	s.restart(feedFavorites)
	return nil
}

// PublishBook publishes the signed-in user's draft and refreshes every
// list.
func (s *BookService) PublishBook(ctx context.Context, book domain.Book) error {
	userID, ok := s.session.CurrentUserID(ctx)
	if !ok {
		return domainerrors.Unauthenticated("publishing requires a signed-in user")
	}
	if err := s.repo.PublishBook(ctx, userID, book); err != nil {
		return err
	}
	s.restart(feedAllBooks, feedFavorites, feedDrafts)
	return nil
}

// restart (re)subscribes the given feeds. Feeds that do not apply (no user,
// no selection, not started) are skipped.
func (s *BookService) restart(feeds ...feed) {
	for _, f := range feeds {
		s.mu.Lock()
		userID := s.userID
		var currentID string
		if s.views.Current != nil {
			currentID = s.views.Current.ID
		}
		s.mu.Unlock()

		switch f {
		case feedAllBooks:
			startFeed(s, f, s.repo.ListPublicBooks(), func(v *BookViews, books []domain.Book) {
				v.AllBooks = books
			})
		case feedFavorites:
			if userID == "" {
				continue
			}
			startFeed(s, f, s.repo.ListFavoriteBooks(userID), func(v *BookViews, books []domain.Book) {
				v.Favorites = books
			})
		case feedDrafts:
			if userID == "" {
				continue
			}
			startFeed(s, f, s.repo.ListDraftBooks(userID), func(v *BookViews, books []domain.Book) {
				v.Drafts = books
			})
		case feedChapters:
			if currentID == "" {
				continue
			}
			startFeed(s, f, s.repo.ListPublicChapters(currentID), func(v *BookViews, chapters []domain.Chapter) {
				if v.Current != nil && v.Current.ID == currentID {
					v.CurrentChapters = chapters
				}
			})
		}
	}
}

// startFeed replaces the subscription of f with one over src. Values of a
// replaced subscription that were already in flight are discarded.
func startFeed[T any](s *BookService, f feed, src stream.Stream[T], apply func(*BookViews, T)) {
	s.mu.Lock()
	if s.ctx == nil {
		s.mu.Unlock()
		return
	}
	old := s.feeds[f]
	s.gen++
	gen := s.gen
	handle := src.Each(s.ctx, func(v T) {
		s.mu.Lock()
		if run := s.feeds[f]; run == nil || run.gen != gen {
			s.mu.Unlock()
			return
		}
		apply(&s.views, v)
		s.mu.Unlock()
		s.notify.signal()
	})
	s.feeds[f] = &feedRun{gen: gen, handle: handle}
	s.mu.Unlock()

	if old != nil {
		old.handle.Cancel()
	}
	go s.watchFeed(f, handle)
}

// watchFeed logs a subscription that ended with an error. Its view keeps
// the last value it received.
func (s *BookService) watchFeed(f feed, h *stream.Handle) {
	<-h.Done()
	if err := h.Err(); err != nil {
		s.logger.Warn("view subscription ended", "feed", f.String(), "error", err)
	}
}

func (s *BookService) stopFeed(f feed) {
	s.mu.Lock()
	run := s.feeds[f]
	delete(s.feeds, f)
	s.mu.Unlock()

	if run != nil {
		run.handle.Cancel()
	}
}
