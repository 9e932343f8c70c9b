package docstore

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
)

// Document is a read snapshot of a stored document.
type Document struct {
	ID   string
	Path string
	data []byte
}

// DataTo decodes the document into v.
func (d *Document) DataTo(v any) error {
	if err := json.Unmarshal(d.data, v); err != nil {
		return fmt.Errorf("decode %s: %w", d.Path, err)
	}
	return nil
}

// Raw returns the stored JSON.
func (d *Document) Raw() []byte {
	return d.data
}

// CollectionRef addresses a collection. Creating a reference does not touch
// the database.
type CollectionRef struct {
	store *Store
	path  string
	err   error
}

// Path returns the "/"-joined collection path.
func (c *CollectionRef) Path() string {
	return c.path
}

// Doc returns a reference to the document docID of this collection.
func (c *CollectionRef) Doc(docID string) *DocumentRef {
	if c.err != nil {
		return &DocumentRef{store: c.store, err: c.err}
	}
	if err := checkSegment(docID); err != nil {
		return &DocumentRef{store: c.store, err: err}
	}
	return &DocumentRef{store: c.store, parent: c.path, id: docID}
}

// NewDoc returns a reference to a document under a fresh store-assigned id.
// Nothing is written until Set.
func (c *CollectionRef) NewDoc() (*DocumentRef, error) {
	if c.err != nil {
		return nil, c.err
	}
	docID, err := c.store.newDocID(c.path)
	if err != nil {
		return nil, err
	}
	return &DocumentRef{store: c.store, parent: c.path, id: docID}, nil
}

// Add stores value under a new store-assigned id and returns that id.
func (c *CollectionRef) Add(ctx context.Context, value any) (string, error) {
	if err := c.store.checkOpen(ctx); err != nil {
		return "", err
	}
	ref, err := c.NewDoc()
	if err != nil {
		return "", err
	}
	if err := ref.Set(ctx, value); err != nil {
		return "", err
	}
	return ref.ID(), nil
}

// Query returns a query over all documents of the collection.
func (c *CollectionRef) Query() Query {
	return Query{coll: c}
}

// Where is shorthand for c.Query().Where.
func (c *CollectionRef) Where(field string, op Op, value any) Query {
	return c.Query().Where(field, op, value)
}

// OrderBy is shorthand for c.Query().OrderBy.
func (c *CollectionRef) OrderBy(field string, dir Direction) Query {
	return c.Query().OrderBy(field, dir)
}

// WhereIDIn is shorthand for c.Query().WhereIDIn.
func (c *CollectionRef) WhereIDIn(ids []string) Query {
	return c.Query().WhereIDIn(ids)
}

// Documents lists every direct child document.
func (c *CollectionRef) Documents(ctx context.Context) ([]*Document, error) {
	return c.Query().Documents(ctx)
}

// DocumentRef addresses a single document.
type DocumentRef struct {
	store  *Store
	parent string
	id     string
	err    error
}

// ID returns the document id.
func (d *DocumentRef) ID() string {
	return d.id
}

// Path returns the "/"-joined document path.
func (d *DocumentRef) Path() string {
	return d.parent + "/" + d.id
}

// Collection returns a reference to the subcollection name of this document.
func (d *DocumentRef) Collection(name string) *CollectionRef {
	if d.err != nil {
		return &CollectionRef{store: d.store, err: d.err}
	}
	if err := checkSegment(name); err != nil {
		return &CollectionRef{store: d.store, err: err}
	}
	return &CollectionRef{store: d.store, path: d.Path() + "/" + name}
}

// Get reads the document. Returns ErrNotFound if it does not exist.
func (d *DocumentRef) Get(ctx context.Context) (*Document, error) {
	if d.err != nil {
		return nil, d.err
	}
	if err := d.store.checkOpen(ctx); err != nil {
		return nil, err
	}
	data, err := d.store.get(d.Path())
	if err != nil {
		return nil, err
	}
	return &Document{ID: d.id, Path: d.Path(), data: data}, nil
}

// Exists reports whether the document exists.
func (d *DocumentRef) Exists(ctx context.Context) (bool, error) {
	_, err := d.Get(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Set creates or overwrites the document with value.
func (d *DocumentRef) Set(ctx context.Context, value any) error {
	if d.err != nil {
		return d.err
	}
	if err := d.store.checkOpen(ctx); err != nil {
		return err
	}
	return d.store.put(d.parent, d.id, value)
}

// Delete removes the document. Its subcollections are not touched, callers
// delete them first. Deleting a missing document succeeds.
func (d *DocumentRef) Delete(ctx context.Context) error {
	if d.err != nil {
		return d.err
	}
	if err := d.store.checkOpen(ctx); err != nil {
		return err
	}
	return d.store.remove(d.parent, d.id)
}
