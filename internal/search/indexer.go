package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/booknestapp/booknest-server/internal/domain"
	"github.com/booknestapp/booknest-server/internal/logger"
	"github.com/booknestapp/booknest-server/internal/stream"
)

// Catalog is the part of the book repository the indexer reads.
type Catalog interface {
	ListPublicBooks() stream.Stream[[]domain.Book]
	GetPublicBook(ctx context.Context, bookID string) (*domain.Book, error)
}

// Indexer keeps a SearchIndex in step with the public catalog: every
// emission of the catalog's live list indexes new and changed books and
// removes books that left the catalog.
type Indexer struct {
	index   *SearchIndex
	catalog Catalog
	logger  *slog.Logger

	mu      sync.Mutex
	indexed map[string]int64 // book id -> indexed timestamp
	handle  *stream.Handle
}

// NewIndexer creates an indexer. Nothing is indexed before Start.
func NewIndexer(index *SearchIndex, catalog Catalog, log *slog.Logger) *Indexer {
	return &Indexer{
		index:   index,
		catalog: catalog,
		logger:  logger.OrDiscard(log).With("component", "search_indexer"),
		indexed: make(map[string]int64),
	}
}

// Start follows the catalog until Stop or until ctx is cancelled.
func (x *Indexer) Start(ctx context.Context) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.handle != nil {
		return
	}

	x.handle = x.catalog.ListPublicBooks().Each(ctx, func(books []domain.Book) {
		if err := x.sync(books); err != nil {
			x.logger.Error("failed to update search index", "error", err)
		}
	})

	h := x.handle
	go func() {
		<-h.Done()
		if err := h.Err(); err != nil {
			x.logger.Warn("catalog subscription ended", "error", err)
		}
	}()
	x.logger.Info("search indexer started")
}

// Stop ends the catalog subscription.
func (x *Indexer) Stop() error {
	x.mu.Lock()
	h := x.handle
	x.handle = nil
	x.mu.Unlock()

	if h != nil {
		h.Cancel()
	}
	return nil
}

// sync reconciles the index with a full catalog listing.
func (x *Indexer) sync(books []domain.Book) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	seen := make(map[string]struct{}, len(books))
	var docs []*BookDocument
	for _, b := range books {
		seen[b.ID] = struct{}{}
		if ts, ok := x.indexed[b.ID]; ok && ts == b.Timestamp {
			continue
		}
		docs = append(docs, NewBookDocument(b))
	}

	var gone []string
	for id := range x.indexed {
		if _, ok := seen[id]; !ok {
			gone = append(gone, id)
		}
	}

	if err := x.index.Apply(docs, gone); err != nil {
		return err
	}

	for _, d := range docs {
		x.indexed[d.ID] = d.Timestamp
	}
	for _, id := range gone {
		delete(x.indexed, id)
	}

	if len(docs) > 0 || len(gone) > 0 {
		x.logger.Debug("search index updated", "indexed", len(docs), "removed", len(gone))
	}
	return nil
}

// SearchBooks runs a search and resolves the hits against the catalog, in
// hit order. Hits whose book has left the catalog since are dropped.
func (x *Indexer) SearchBooks(ctx context.Context, params SearchParams) ([]domain.Book, error) {
	result, err := x.index.Search(ctx, params)
	if err != nil {
		return nil, err
	}

	books := make([]domain.Book, 0, len(result.Hits))
	var errs []error
	for _, hit := range result.Hits {
		b, err := x.catalog.GetPublicBook(ctx, hit.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if b != nil {
			books = append(books, *b)
		}
	}
	if len(errs) > 0 && len(books) == 0 {
		return nil, fmt.Errorf("resolve search hits: %w", errors.Join(errs...))
	}
	return books, nil
}
