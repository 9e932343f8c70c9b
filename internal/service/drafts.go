package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/booknestapp/booknest-server/internal/auth"
	domainerrors "github.com/booknestapp/booknest-server/internal/errors"
	"github.com/booknestapp/booknest-server/internal/logger"
	"github.com/booknestapp/booknest-server/internal/repository"
)

// DraftService keeps one draft session per signed-in user.
type DraftService struct {
	repo    *repository.BookRepository
	session auth.Session
	opts    DraftOptions
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string]*DraftSession
}

// NewDraftService creates a draft service. opts applies to every session
// it opens.
func NewDraftService(repo *repository.BookRepository, session auth.Session, opts DraftOptions) *DraftService {
	opts.Logger = logger.OrDiscard(opts.Logger)
	return &DraftService{
		repo:     repo,
		session:  session,
		opts:     opts,
		logger:   opts.Logger.With("component", "draft_service"),
		sessions: make(map[string]*DraftSession),
	}
}

// Open loads bookID (or a fresh draft for "" and NewDraftID) into a new
// session for the signed-in user, replacing and closing the user's previous
// session. When the load fails the previous session stays in place.
func (s *DraftService) Open(ctx context.Context, bookID string) (*DraftSession, error) {
	userID, ok := s.session.CurrentUserID(ctx)
	if !ok {
		return nil, domainerrors.Unauthenticated("editing drafts requires a signed-in user")
	}

	ds := NewDraftSession(s.repo, s.session, s.opts)
	if err := ds.Load(ctx, bookID); err != nil {
		ds.Close()
		return nil, err
	}

	s.mu.Lock()
	prev := s.sessions[userID]
	s.sessions[userID] = ds
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	s.logger.Debug("draft session opened", "user_id", userID, "book_id", bookID)
	return ds, nil
}

// Get returns the signed-in user's session.
func (s *DraftService) Get(ctx context.Context) (*DraftSession, error) {
	userID, ok := s.session.CurrentUserID(ctx)
	if !ok {
		return nil, domainerrors.Unauthenticated("editing drafts requires a signed-in user")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ds, ok := s.sessions[userID]
	if !ok {
		return nil, domainerrors.NotFoundf("no open draft session")
	}
	return ds, nil
}

// CloseSession closes the signed-in user's session, if any.
func (s *DraftService) CloseSession(ctx context.Context) {
	userID, ok := s.session.CurrentUserID(ctx)
	if !ok {
		return
	}

	s.mu.Lock()
	ds := s.sessions[userID]
	delete(s.sessions, userID)
	s.mu.Unlock()

	if ds != nil {
		ds.Close()
	}
}

// Shutdown closes every session.
func (s *DraftService) Shutdown() error {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*DraftSession)
	s.mu.Unlock()

	for _, ds := range sessions {
		ds.Close()
	}
	return nil
}
