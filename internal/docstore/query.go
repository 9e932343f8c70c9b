package docstore

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/booknestapp/booknest-server/internal/stream"
)

// Op is a field comparison operator.
type Op string

const (
	Equal    Op = "=="
	NotEqual Op = "!="
)

// Direction is a sort direction.
type Direction int

const (
	Asc Direction = iota
	Desc
)

type filter struct {
	field string
	op    Op
	value any
}

type ordering struct {
	field string
	dir   Direction
}

// Query is an immutable description of a collection read. Builder methods
// return a modified copy.
//
// Filters compare top-level JSON fields. With OrderBy, documents lacking the
// field are excluded and ties are broken by document id ascending.
type Query struct {
	coll    *CollectionRef
	filters []filter
	order   *ordering
	ids     []string
	byID    bool
	err     error
}

// Where adds a field filter.
func (q Query) Where(field string, op Op, value any) Query {
	if op != Equal && op != NotEqual {
		q.err = fmt.Errorf("unsupported operator %q", op)
		return q
	}
	norm, err := normalizeValue(value)
	if err != nil {
		q.err = fmt.Errorf("filter %s: %w", field, err)
		return q
	}
	q.filters = append(slices.Clip(q.filters), filter{field: field, op: op, value: norm})
	return q
}

// OrderBy sorts results by field.
func (q Query) OrderBy(field string, dir Direction) Query {
	q.order = &ordering{field: field, dir: dir}
	return q
}

// WhereIDIn restricts the query to the given document ids. At most
// MaxInQueryIDs ids are accepted; an empty set matches nothing.
func (q Query) WhereIDIn(ids []string) Query {
	if len(ids) > MaxInQueryIDs {
		q.err = fmt.Errorf("%w: %d > %d", ErrTooManyIDs, len(ids), MaxInQueryIDs)
		return q
	}
	q.ids = slices.Clone(ids)
	q.byID = true
	return q
}

// Documents runs the query once.
func (q Query) Documents(ctx context.Context) ([]*Document, error) {
	if q.coll.err != nil {
		return nil, q.coll.err
	}
	if q.err != nil {
		return nil, q.err
	}
	s := q.coll.store
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}

	var (
		docs []*Document
		err  error
	)
	if q.byID {
		docs, err = q.fetchIDs()
	} else {
		docs, err = q.scan(ctx)
	}
	if err != nil {
		return nil, err
	}
	return q.apply(docs), nil
}

// Snapshots returns a live query: it emits the current result on
// subscription and again whenever a write to the collection changes it.
// The change watcher is registered before the first read, so no write made
// after subscription is missed.
func (q Query) Snapshots() stream.Stream[[]*Document] {
	return stream.New(func(ctx context.Context, yield func([]*Document) error) error {
		s := q.coll.store
		changes, stop := s.hub.watch(q.coll.path)
		defer stop()

		var last []*Document
		first := true
		for {
			docs, err := q.Documents(ctx)
			if err != nil {
				return err
			}
			if first || !sameDocuments(last, docs) {
				if err := yield(docs); err != nil {
					return err
				}
				first, last = false, docs
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.hub.closed:
				return ErrClosed
			case <-changes:
			}
		}
	})
}

func (q Query) scan(ctx context.Context) ([]*Document, error) {
	prefix := q.coll.path + "/"
	var docs []*Document
	err := q.coll.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			key := string(it.Item().Key())
			docID, ok := childID(key, prefix)
			if !ok {
				continue // subcollection document
			}
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", key, err)
			}
			docs = append(docs, &Document{ID: docID, Path: key, data: data})
		}
		return nil
	})
	return docs, err
}

func (q Query) fetchIDs() ([]*Document, error) {
	seen := make(map[string]bool, len(q.ids))
	var docs []*Document
	err := q.coll.store.db.View(func(txn *badger.Txn) error {
		for _, docID := range q.ids {
			if seen[docID] {
				continue
			}
			seen[docID] = true
			if err := checkSegment(docID); err != nil {
				return err
			}
			key := q.coll.path + "/" + docID
			item, err := txn.Get([]byte(key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to get %s: %w", key, err)
			}
			data, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			docs = append(docs, &Document{ID: docID, Path: key, data: data})
		}
		return nil
	})
	return docs, err
}

type parsedDoc struct {
	doc    *Document
	fields map[string]any
}

// apply filters and orders docs in memory.
func (q Query) apply(docs []*Document) []*Document {
	if len(q.filters) == 0 && q.order == nil {
		return docs
	}

	parsed := make([]parsedDoc, 0, len(docs))
	for _, d := range docs {
		var fields map[string]any
		if err := json.Unmarshal(d.data, &fields); err != nil {
			q.coll.store.logger.Warn("skipping malformed document", "path", d.Path, "error", err)
			continue
		}
		if !q.matches(fields) {
			continue
		}
		if q.order != nil {
			if _, ok := fields[q.order.field]; !ok {
				continue
			}
		}
		parsed = append(parsed, parsedDoc{doc: d, fields: fields})
	}

	if q.order != nil {
		field, dir := q.order.field, q.order.dir
		slices.SortStableFunc(parsed, func(a, b parsedDoc) int {
			c := compareValues(a.fields[field], b.fields[field])
			if dir == Desc {
				c = -c
			}
			if c != 0 {
				return c
			}
			return strings.Compare(a.doc.ID, b.doc.ID)
		})
	}

	out := make([]*Document, len(parsed))
	for i, p := range parsed {
		out[i] = p.doc
	}
	return out
}

func (q Query) matches(fields map[string]any) bool {
	for _, f := range q.filters {
		v, ok := fields[f.field]
		eq := ok && equalValues(v, f.value)
		switch f.op {
		case Equal:
			if !eq {
				return false
			}
		case NotEqual:
			if !ok || eq {
				return false
			}
		}
	}
	return true
}

// normalizeValue converts a Go value into its decoded-JSON form so it
// compares equal to stored fields (numbers become float64).
func normalizeValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func equalValues(a, b any) bool {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return reflect.DeepEqual(a, b)
	}
}

// typeRank orders values of different JSON types: null, booleans, numbers,
// strings, then everything else.
func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func compareValues(a, b any) int {
	if ra, rb := typeRank(a), typeRank(b); ra != rb {
		return cmp.Compare(ra, rb)
	}
	switch av := a.(type) {
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		return cmp.Compare(av, b.(float64))
	case string:
		return strings.Compare(av, b.(string))
	default:
		return 0
	}
}

func sameDocuments(a, b []*Document) bool {
	return slices.EqualFunc(a, b, func(x, y *Document) bool {
		return x.Path == y.Path && bytes.Equal(x.data, y.data)
	})
}
