// Package docstore is a hierarchical document store on top of badger.
//
// Documents live in collections addressed by "/"-joined paths, for example
// the document "b1" of collection "users/u1/drafts" is stored under the key
// "users/u1/drafts/b1". A document may own subcollections
// ("users/u1/drafts/b1/chapters"); listing a collection returns its direct
// children only. Every write notifies an in-process change hub that drives
// live queries (Query.Snapshots).
package docstore

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/booknestapp/booknest-server/internal/id"
	"github.com/booknestapp/booknest-server/internal/logger"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrClosed is returned by operations and live queries after Close.
	ErrClosed = errors.New("document store closed")
	// ErrInvalidPath is returned for empty path segments or segments containing "/".
	ErrInvalidPath = errors.New("invalid document path")
	// ErrTooManyIDs is returned by WhereIDIn queries over MaxInQueryIDs ids.
	ErrTooManyIDs = errors.New("too many ids in query")
)

// MaxInQueryIDs is the largest id set a single WhereIDIn query accepts.
const MaxInQueryIDs = 30

// Options configures Open.
type Options struct {
	// Path of the badger directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	Logger   *slog.Logger
}

// Store wraps a badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
	hub    *hub
}

// Open opens (or creates) the store.
func Open(opts Options) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path)
		bopts.SyncWrites = true       // Ensure writes are synced to disk to prevent corruption on crashes
		bopts.CompactL0OnClose = true // Compact L0 tables on close for faster startup
	}
	bopts.Logger = nil // Disable Badger's internal logging

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.OrDiscard(opts.Logger),
		hub:    newHub(),
	}
	s.logger.Info("Document store opened", "path", opts.Path, "in_memory", opts.InMemory)
	return s, nil
}

// Close ends all live queries with ErrClosed and closes the database.
func (s *Store) Close() error {
	s.logger.Info("Closing document store")
	s.hub.close()
	return s.db.Close()
}

// Collection returns a reference to the collection at the given path
// segments, e.g. Collection("users", uid, "drafts"). Segments alternate
// collection and document names, so their count must be odd.
func (s *Store) Collection(segments ...string) *CollectionRef {
	p, err := joinPath(segments, true)
	return &CollectionRef{store: s, path: p, err: err}
}

// Doc returns a reference to the document at the given path segments.
func (s *Store) Doc(segments ...string) *DocumentRef {
	p, err := joinPath(segments, false)
	if err != nil {
		return &DocumentRef{store: s, err: err}
	}
	parent, docID := splitDocPath(p)
	return &DocumentRef{store: s, parent: parent, id: docID}
}

// LiveQueries returns the number of live queries currently watching the
// collection at the given path segments.
func (s *Store) LiveQueries(segments ...string) int {
	p, err := joinPath(segments, true)
	if err != nil {
		return 0
	}
	return s.hub.watcherCount(p)
}

// Check verifies the store is open and can serve a read.
func (s *Store) Check(ctx context.Context) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if s.db.IsClosed() {
		return ErrClosed
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

func (s *Store) checkOpen(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.hub.isClosed() {
		return ErrClosed
	}
	return nil
}

// get loads the raw document at key.
func (s *Store) get(key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get key: %w", err)
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	return data, err
}

// put marshals value and stores it under parent/docID, then notifies
// watchers of parent.
func (s *Store) put(parent, docID string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(parent+"/"+docID), data)
	}); err != nil {
		return fmt.Errorf("failed to set key: %w", err)
	}
	s.hub.notify(parent)
	return nil
}

// remove deletes parent/docID. Deleting a missing document is not an error.
// Subcollections are left in place.
func (s *Store) remove(parent, docID string) error {
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(parent + "/" + docID))
	}); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	s.hub.notify(parent)
	return nil
}

// newDocID returns an id unused in the collection.
func (s *Store) newDocID(parent string) (string, error) {
	for {
		docID, err := id.NewDocumentID()
		if err != nil {
			return "", err
		}
		_, err = s.get(parent + "/" + docID)
		if errors.Is(err, ErrNotFound) {
			return docID, nil
		}
		if err != nil {
			return "", err
		}
	}
}
