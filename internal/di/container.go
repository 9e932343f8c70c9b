// Package di provides dependency injection configuration for the BookNest server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/booknestapp/booknest-server/internal/auth"
	"github.com/booknestapp/booknest-server/internal/config"
	"github.com/booknestapp/booknest-server/internal/di/providers"
	"github.com/booknestapp/booknest-server/internal/logger"
	"github.com/booknestapp/booknest-server/internal/repository"
	"github.com/booknestapp/booknest-server/internal/service"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideStore)
	do.Provide(injector, providers.ProvideBookRepository)

	// Auth layer
	do.Provide(injector, providers.ProvideAuthKey)
	do.Provide(injector, providers.ProvideTokenService)
	do.Provide(injector, providers.ProvideValidator)
	do.Provide(injector, providers.ProvideAuthService)

	// Search layer
	do.Provide(injector, providers.ProvideSearchIndex)
	do.Provide(injector, providers.ProvideIndexer)

	// Business services
	do.Provide(injector, providers.ProvideBookService)
	do.Provide(injector, providers.ProvideDraftService)

	// Server
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[*providers.StoreHandle](injector)
	_ = do.MustInvoke[*repository.BookRepository](injector)
	_ = do.MustInvoke[*auth.Service](injector)
	_ = do.MustInvoke[*providers.IndexerHandle](injector)
	_ = do.MustInvoke[*service.BookService](injector)
	_ = do.MustInvoke[*providers.DraftServiceHandle](injector)

	// The HTTP server goes last: it starts accepting requests.
	_, err := do.Invoke[*providers.HTTPServerHandle](injector)
	return err
}
