package providers

import (
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/booknestapp/booknest-server/internal/auth"
	"github.com/booknestapp/booknest-server/internal/config"
	"github.com/booknestapp/booknest-server/internal/docstore"
	"github.com/booknestapp/booknest-server/internal/logger"
	"github.com/booknestapp/booknest-server/internal/repository"
)

// StoreHandle wraps the document store with shutdown capability.
type StoreHandle struct {
	*docstore.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the document store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := filepath.Join(cfg.Storage.DataPath, "db")
	st, err := docstore.Open(docstore.Options{
		Path:     dbPath,
		InMemory: cfg.Storage.InMemory,
		Logger:   log.Component("docstore"),
	})
	if err != nil {
		return nil, err
	}

	return &StoreHandle{Store: st}, nil
}

// ProvideBookRepository provides the book repository. The acting user of
// each call is the one the HTTP auth middleware put in the request context.
func ProvideBookRepository(i do.Injector) (*repository.BookRepository, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	return repository.NewBookRepository(storeHandle.Store, auth.ContextSession{}, repository.Options{
		FavoritesBatchSize: cfg.Library.FavoritesBatchSize,
		Logger:             log.Logger,
	}), nil
}
