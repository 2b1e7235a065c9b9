// Package memory provides a volatile in-process session collection.
//
// Documents live in a sharded concurrent map keyed by ULID. Every read and
// write clones the document, so callers never share state with the store.
// Nothing survives a restart; it backs tests and single-process deployments.
package memory

import (
	"context"
	"sync/atomic"

	"github.com/yndnr/sessiondb/internal/core/domain"
	"github.com/yndnr/sessiondb/internal/storage"
	"github.com/yndnr/sessiondb/pkg/cmap"
)

// Collection implements storage.Collection in memory.
type Collection struct {
	docs   *cmap.Map[*domain.Document]
	closed atomic.Bool
}

var _ storage.Collection = (*Collection)(nil)

// Option configures the Collection.
type Option func(*config)

type config struct {
	shards int
}

// WithShardCount sets the number of map shards (power of 2).
func WithShardCount(n int) Option {
	return func(c *config) {
		c.shards = n
	}
}

// New creates an empty in-memory collection.
func New(opts ...Option) *Collection {
	cfg := config{shards: cmap.DefaultShardCount}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Collection{docs: cmap.NewWithShards[*domain.Document](cfg.shards)}
}

// Connector returns a storage.Connector that opens a fresh collection.
func Connector(opts ...Option) storage.Connector {
	return storage.ConnectorFunc(func(ctx context.Context) (storage.Collection, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return New(opts...), nil
	})
}

// FindOne returns a copy of the document with f.ID.
func (c *Collection) FindOne(ctx context.Context, f storage.Filter) (*domain.Document, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	if f.ID == "" {
		return nil, storage.ErrFilterRequired
	}
	key, err := canonical(f.ID)
	if err != nil {
		return nil, err
	}

	d, ok := c.docs.Get(key)
	if !ok {
		return nil, storage.ErrNoDocument
	}
	f.ID = ""
	if !f.Matches(d) {
		return nil, storage.ErrNoDocument
	}
	return d.Clone(), nil
}

// Insert stores a copy of d under a new id.
func (c *Collection) Insert(ctx context.Context, d *domain.Document) (string, error) {
	if err := c.check(ctx); err != nil {
		return "", err
	}
	doc := d.Clone()
	for {
		doc.ID = storage.NewID()
		if c.docs.SetIfAbsent(doc.ID, doc) {
			return doc.ID, nil
		}
	}
}

// Save stores a copy of d, replacing any document with the same id.
func (c *Collection) Save(ctx context.Context, d *domain.Document) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	key, err := canonical(d.ID)
	if err != nil {
		return err
	}
	doc := d.Clone()
	doc.ID = key
	c.docs.Set(key, doc)
	return nil
}

// Remove deletes every document matching f.
func (c *Collection) Remove(ctx context.Context, f storage.Filter) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	if f.ID != "" {
		key, err := canonical(f.ID)
		if err != nil {
			return 0, err
		}
		if f.LastAccessBefore == nil {
			if c.docs.Delete(key) {
				return 1, nil
			}
			return 0, nil
		}
		f.ID = key
	}
	if f.IsEmpty() {
		return int64(c.docs.Clear()), nil
	}
	n := c.docs.RemoveIf(func(_ string, d *domain.Document) bool {
		return f.Matches(d)
	})
	return int64(n), nil
}

// Count returns the number of documents matching f.
func (c *Collection) Count(ctx context.Context, f storage.Filter) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	if f.ID != "" {
		key, err := canonical(f.ID)
		if err != nil {
			return 0, err
		}
		if f.LastAccessBefore == nil {
			if c.docs.Has(key) {
				return 1, nil
			}
			return 0, nil
		}
		f.ID = key
	}
	if f.IsEmpty() {
		return int64(c.docs.Count()), nil
	}
	n := c.docs.CountIf(func(_ string, d *domain.Document) bool {
		return f.Matches(d)
	})
	return int64(n), nil
}

// Close marks the collection closed and drops its documents.
func (c *Collection) Close(_ context.Context) error {
	if c.closed.CompareAndSwap(false, true) {
		c.docs.Clear()
	}
	return nil
}

func (c *Collection) check(ctx context.Context) error {
	if c.closed.Load() {
		return storage.ErrClosed
	}
	return ctx.Err()
}

// canonical parses id and returns its canonical string form.
func canonical(id string) (string, error) {
	u, err := storage.ParseID(id)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
