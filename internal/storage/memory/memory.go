// Package memory is an in-process document store. It honours unique indexes
// and is used for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"docetl/internal/storage"
	"docetl/pkg/records"
)

func init() {
	storage.Register("memory", func(context.Context, storage.Config) (storage.Store, error) {
		return New(), nil
	})
}

type collection struct {
	docs    []records.Record
	indexes map[string]storage.Index
	// unique[index name] holds the keys already taken.
	unique map[string]map[string]struct{}
}

// Store is a mutex-guarded map of collections.
type Store struct {
	mu     sync.Mutex
	colls  map[string]*collection
	closed bool
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{colls: make(map[string]*collection)}
}

func (s *Store) coll(name string) *collection {
	c, ok := s.colls[name]
	if !ok {
		c = &collection{
			indexes: make(map[string]storage.Index),
			unique:  make(map[string]map[string]struct{}),
		}
		s.colls[name] = c
	}
	return c
}

// InsertMany stores a copy of every document that does not collide with a
// unique index.
func (s *Store) InsertMany(ctx context.Context, name string, docs []records.Record) (storage.InsertResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.InsertResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.InsertResult{}, fmt.Errorf("memory: store closed")
	}

	c := s.coll(name)
	var res storage.InsertResult
	var failures []storage.DocFailure

docs:
	for i, d := range docs {
		keys := make(map[string]string, len(c.unique))
		for ixName, taken := range c.unique {
			k, ok := storage.KeyOf(d, c.indexes[ixName].Keys)
			if !ok {
				continue
			}
			if _, dup := taken[k]; dup {
				failures = append(failures, storage.DocFailure{
					Index: i,
					ID:    storage.DocID(d),
					Err:   fmt.Errorf("%w: index %s", storage.ErrDuplicateKey, ixName),
				})
				continue docs
			}
			keys[ixName] = k
		}
		for ixName, k := range keys {
			c.unique[ixName][k] = struct{}{}
		}
		c.docs = append(c.docs, d.Clone())
		res.Inserted++
	}

	if len(failures) > 0 {
		return res, &storage.BulkWriteError{Collection: name, Inserted: res.Inserted, Failures: failures}
	}
	return res, nil
}

// CreateIndex registers idx. A unique index is refused with
// storage.ErrIndexConflict when stored documents already collide.
func (s *Store) CreateIndex(ctx context.Context, name string, idx storage.Index) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(idx.Keys) == 0 {
		return fmt.Errorf("memory: index on %s has no keys", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.coll(name)
	ixName := idx.IndexName(name)
	if _, ok := c.indexes[ixName]; ok {
		return nil
	}
	if idx.Unique {
		taken := make(map[string]struct{}, len(c.docs))
		for _, d := range c.docs {
			k, ok := storage.KeyOf(d, idx.Keys)
			if !ok {
				continue
			}
			if _, dup := taken[k]; dup {
				return fmt.Errorf("%w: %s on %s", storage.ErrIndexConflict, ixName, name)
			}
			taken[k] = struct{}{}
		}
		c.unique[ixName] = taken
	}
	c.indexes[ixName] = idx
	return nil
}

// CountDocuments returns the number of stored documents.
func (s *Store) CountDocuments(ctx context.Context, name string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.colls[name]
	if !ok {
		return 0, nil
	}
	return int64(len(c.docs)), nil
}

// Documents returns copies of the documents in name, in insertion order.
func (s *Store) Documents(name string) []records.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.colls[name]
	if !ok {
		return nil
	}
	out := make([]records.Record, len(c.docs))
	for i, d := range c.docs {
		out[i] = d.Clone()
	}
	return out
}

// Indexes returns the index names defined on name, sorted.
func (s *Store) Indexes(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.colls[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(c.indexes))
	for n := range c.indexes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Close marks the store closed; later inserts fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
