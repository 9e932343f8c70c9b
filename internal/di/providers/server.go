package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/booknestapp/booknest-server/internal/api"
	"github.com/booknestapp/booknest-server/internal/auth"
	"github.com/booknestapp/booknest-server/internal/config"
	"github.com/booknestapp/booknest-server/internal/logger"
	"github.com/booknestapp/booknest-server/internal/repository"
	"github.com/booknestapp/booknest-server/internal/service"
	"github.com/booknestapp/booknest-server/internal/sse"
)

// SSEManagerHandle wraps the SSE manager with shutdown capability.
type SSEManagerHandle struct {
	*sse.Manager
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the stream connection manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	return &SSEManagerHandle{Manager: sse.NewManager(log.Logger)}, nil
}

// HTTPServerHandle wraps the HTTP server with shutdown capability.
type HTTPServerHandle struct {
	*http.Server
	api *api.Server
	log *logger.Logger
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	h.log.Info("Shutting down HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := h.Server.Shutdown(ctx)
	h.api.Close()
	return err
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	repo := do.MustInvoke[*repository.BookRepository](i)
	authService := do.MustInvoke[*auth.Service](i)
	books := do.MustInvoke[*service.BookService](i)
	drafts := do.MustInvoke[*DraftServiceHandle](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	indexer := do.MustInvoke[*IndexerHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)

	sseHandler := sse.NewHandler(sseHandle.Manager, repo, authService, drafts.DraftService, log.Logger)

	apiServer := api.NewServer(api.Dependencies{
		Store:      storeHandle.Store,
		Repository: repo,
		Services: &api.Services{
			Auth:   authService,
			Books:  books,
			Drafts: drafts.DraftService,
			Search: indexer.Indexer,
		},
		SearchIndex: indexHandle.SearchIndex,
		SSEManager:  sseHandle.Manager,
		SSEHandler:  sseHandler,
	}, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AuthRateLimit:  cfg.Auth.RateLimit,
		Logger:         log.Logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      apiServer,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Streams never go idle on their own; end them so Shutdown does not
	// wait out its whole timeout.
	srv.RegisterOnShutdown(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sseHandle.Manager.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("SSE clients did not disconnect in time")
		}
	})

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		apiServer.Close()
		return nil, err
	}

	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, api: apiServer, log: log}, nil
}
