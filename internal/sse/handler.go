package sse

import (
	"context"
	"encoding/json/v2"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/booknestapp/booknest-server/internal/auth"
	"github.com/booknestapp/booknest-server/internal/http/response"
	"github.com/booknestapp/booknest-server/internal/logger"
	"github.com/booknestapp/booknest-server/internal/repository"
	"github.com/booknestapp/booknest-server/internal/service"
	"github.com/booknestapp/booknest-server/internal/stream"
)

// Handler serves the SSE endpoints.
type Handler struct {
	manager *Manager
	repo    *repository.BookRepository
	session auth.Session
	drafts  *service.DraftService
	logger  *slog.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(manager *Manager, repo *repository.BookRepository, session auth.Session, drafts *service.DraftService, log *slog.Logger) *Handler {
	return &Handler{
		manager: manager,
		repo:    repo,
		session: session,
		drafts:  drafts,
		logger:  logger.OrDiscard(log).With("component", "sse"),
	}
}

// ServeViews streams a "views" event whenever the caller's book views
// change. The views are projected for this connection only and stop with
// it. A "book" query parameter selects a published book, so the views also
// carry it and its live chapters.
func (h *Handler) ServeViews(w http.ResponseWriter, r *http.Request) {
	books := service.NewBookService(h.repo, h.session, h.logger)
	books.Start(r.Context())
	defer books.Stop()

	if bookID := r.URL.Query().Get("book"); bookID != "" {
		if _, err := books.LoadBook(r.Context(), bookID); err != nil {
			response.HandleError(w, err, h.logger)
			return
		}
	}

	serve(h, w, r, stream.Map(books.Changes(), NewViewsEvent))
}

// ServeDraft streams a "draft" event whenever the caller's open draft
// session changes. The stream ends when the session is replaced or closed.
func (h *Handler) ServeDraft(w http.ResponseWriter, r *http.Request) {
	ds, err := h.drafts.Get(r.Context())
	if err != nil {
		response.HandleError(w, err, h.logger)
		return
	}
	serve(h, w, r, stream.Map(ds.Changes(), NewDraftEvent))
}

func serve(h *Handler, w http.ResponseWriter, r *http.Request, events stream.Stream[Event]) {
	// Check if request context is already canceled (early client disconnect).
	ctx := r.Context()
	if ctx.Err() != nil {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	rc := http.NewResponseController(w)
	if err := rc.Flush(); err != nil {
		h.logger.Error("failed to flush headers", slog.String("error", err.Error()))
		response.InternalError(w, "streaming not supported", h.logger)
		return
	}

	userID, _ := h.session.CurrentUserID(ctx)
	client, err := h.manager.Connect(userID)
	if err != nil {
		h.logger.Error("failed to register SSE client", slog.String("error", err.Error()))
		return
	}
	defer h.manager.Disconnect(client.ID)

	clientLogger := h.logger.With(slog.String("client_id", client.ID))

	if err := h.sendEvent(w, rc, NewConnectedEvent(client.ID)); err != nil {
		clientLogger.Warn("failed to send initial connection message", slog.String("error", err.Error()))
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sub := events.Subscribe(ctx)
	defer sub.Cancel()

	heartbeatTicker := time.NewTicker(h.manager.heartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case event, ok := <-sub.C:
			if !ok {
				if err := sub.Err(); err != nil {
					clientLogger.Warn("event stream failed", slog.String("error", err.Error()))
				}
				return
			}
			if err := h.sendEvent(w, rc, event); err != nil {
				// Client disconnect is normal, not an error condition.
				clientLogger.Info("client disconnected during send")
				return
			}

		case <-heartbeatTicker.C:
			if err := h.sendEvent(w, rc, NewHeartbeatEvent()); err != nil {
				clientLogger.Info("client disconnected during heartbeat")
				return
			}

		case <-client.Done:
			clientLogger.Info("client closed by manager")
			return

		case <-ctx.Done():
			clientLogger.Info("client context canceled")
			return
		}
	}
}

// sendEvent writes one SSE frame and flushes it.
func (h *Handler) sendEvent(w http.ResponseWriter, rc *http.ResponseController, event Event) error {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\n", event.Type); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", jsonData); err != nil {
		return err
	}
	if err := rc.Flush(); err != nil {
		return err
	}

	// Reset after each successful write so hung connections time out.
	if err := rc.SetWriteDeadline(time.Now().Add(60 * time.Second)); err != nil {
		// Not supported by every ResponseWriter.
		h.logger.Debug("failed to set write deadline", slog.String("error", err.Error()))
	}
	return nil
}
