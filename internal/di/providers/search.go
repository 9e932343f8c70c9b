package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/booknestapp/booknest-server/internal/logger"
	"github.com/booknestapp/booknest-server/internal/repository"
	"github.com/booknestapp/booknest-server/internal/search"
)

// SearchIndexHandle wraps the search index with shutdown capability.
type SearchIndexHandle struct {
	*search.SearchIndex
}

// Shutdown implements do.Shutdownable.
func (h *SearchIndexHandle) Shutdown() error {
	return h.Close()
}

// ProvideSearchIndex provides the in-memory full-text index.
func ProvideSearchIndex(i do.Injector) (*SearchIndexHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	index, err := search.NewSearchIndex(search.Options{Logger: log.Logger})
	if err != nil {
		return nil, err
	}
	return &SearchIndexHandle{SearchIndex: index}, nil
}

// IndexerHandle wraps the catalog indexer with shutdown capability.
type IndexerHandle struct {
	*search.Indexer
}

// Shutdown implements do.Shutdownable.
func (h *IndexerHandle) Shutdown() error {
	return h.Stop()
}

// ProvideIndexer provides the indexer and starts following the public
// catalog.
func ProvideIndexer(i do.Injector) (*IndexerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)
	indexHandle := do.MustInvoke[*SearchIndexHandle](i)
	repo := do.MustInvoke[*repository.BookRepository](i)

	indexer := search.NewIndexer(indexHandle.SearchIndex, repo, log.Logger)
	indexer.Start(context.Background())

	log.Info("Search indexer started")
	return &IndexerHandle{Indexer: indexer}, nil
}
