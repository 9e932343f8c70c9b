// Package api provides the HTTP API server and handlers for BookNest.
package api

import (
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/booknestapp/booknest-server/internal/auth"
	"github.com/booknestapp/booknest-server/internal/docstore"
	"github.com/booknestapp/booknest-server/internal/logger"
	"github.com/booknestapp/booknest-server/internal/ratelimit"
	"github.com/booknestapp/booknest-server/internal/repository"
	"github.com/booknestapp/booknest-server/internal/search"
	"github.com/booknestapp/booknest-server/internal/service"
	"github.com/booknestapp/booknest-server/internal/sse"
)

// Services groups the collaborators the handlers call into.
type Services struct {
	Auth   *auth.Service
	Books  *service.BookService // never started; used for its commands only
	Drafts *service.DraftService
	Search *search.Indexer
}

// Dependencies is everything NewServer needs.
type Dependencies struct {
	Store       *docstore.Store
	Repository  *repository.BookRepository
	Services    *Services
	SearchIndex *search.SearchIndex
	SSEManager  *sse.Manager
	SSEHandler  *sse.Handler
}

// Options tunes the HTTP surface.
type Options struct {
	AllowedOrigins []string
	// AuthRateLimit is the allowed login/register requests per second per
	// client IP. Zero disables the limit.
	AuthRateLimit float64
	Logger        *slog.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	store       *docstore.Store
	repo        *repository.BookRepository
	services    *Services
	searchIndex *search.SearchIndex
	sseManager  *sse.Manager
	sseHandler  *sse.Handler
	authLimiter *ratelimit.KeyedRateLimiter
	router      *chi.Mux
	api         huma.API
	logger      *slog.Logger
}

// NewServer creates a new HTTP server with all routes configured.
func NewServer(deps Dependencies, opts Options) *Server {
	s := &Server{
		store:       deps.Store,
		repo:        deps.Repository,
		services:    deps.Services,
		searchIndex: deps.SearchIndex,
		sseManager:  deps.SSEManager,
		sseHandler:  deps.SSEHandler,
		router:      chi.NewRouter(),
		logger:      logger.OrDiscard(opts.Logger).With("component", "api"),
	}
	if opts.AuthRateLimit > 0 {
		burst := max(int(opts.AuthRateLimit*5), 5)
		s.authLimiter = ratelimit.New(opts.AuthRateLimit, burst)
	}

	s.setupMiddleware(opts.AllowedOrigins)

	humaConfig := huma.DefaultConfig("BookNest API", "1.0.0")
	// No $schema links: EnvelopeTransformer must see the handler's own types.
	humaConfig.CreateHooks = nil
	humaConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"bearer": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "PASETO",
		},
	}
	humaConfig.Transformers = append(humaConfig.Transformers, EnvelopeTransformer)
	s.api = humachi.New(s.router, humaConfig)
	RegisterErrorHandler()

	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close releases background resources. It does not close the store or the
// services, which the caller owns.
func (s *Server) Close() {
	if s.authLimiter != nil {
		s.authLimiter.Stop()
	}
}

func (s *Server) setupMiddleware(origins []string) {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	s.router.Use(authMiddleware(s.services.Auth))
}

func (s *Server) registerRoutes() {
	s.registerHealthRoutes()
	s.registerAuthRoutes()
	s.registerBookRoutes()
	s.registerFavoriteRoutes()
	s.registerSearchRoutes()
	s.registerDraftRoutes()

	// Streams bypass huma: their bodies are open-ended event streams.
	if s.sseHandler != nil {
		s.router.Get("/api/v1/stream", s.sseHandler.ServeViews)
		s.router.Get("/api/v1/drafts/session/stream", s.sseHandler.ServeDraft)
	}
}

// operation middlewares for the auth endpoints.
func (s *Server) authOperationMiddlewares() huma.Middlewares {
	if s.authLimiter == nil {
		return nil
	}
	return huma.Middlewares{rateLimit(s.api, s.authLimiter, s.logger)}
}

// bearer is the security requirement of operations that need a signed-in user.
var bearer = []map[string][]string{{"bearer": {}}}
