// Package redis provides a session collection on Redis.
//
// Each document is a JSON string at <prefix>doc:<id>. A sorted set at
// <prefix>lastaccess scores every id by its lastAccess timestamp, which
// serves counting and the expiry sweep without scanning the keyspace.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yndnr/sessiondb/internal/core/domain"
	"github.com/yndnr/sessiondb/internal/storage"
)

// DefaultPrefix is prepended to every key.
const DefaultPrefix = "sessiondb:"

const defaultBatch = 500

// removeScript deletes up to ARGV[2] documents whose score is within
// (-inf, ARGV[1]] and returns how many it removed. Document keys are derived
// from ARGV[3], so the script assumes a non-clustered deployment.
var removeScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, id in ipairs(ids) do
  redis.call('DEL', ARGV[3] .. id)
  redis.call('ZREM', KEYS[1], id)
end
return #ids
`)

// Config configures a Redis collection.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces all keys. Default: DefaultPrefix
	Prefix string

	// RemoveBatchSize bounds the documents deleted per script call.
	// Default: 500
	RemoveBatchSize int
}

// Collection implements storage.Collection on Redis.
type Collection struct {
	client    goredis.UniversalClient
	ownClient bool
	prefix    string
	batch     int
	closed    atomic.Bool
}

var _ storage.Collection = (*Collection)(nil)

// Connector opens a Redis collection, either by dialing Config or by
// wrapping an existing client.
type Connector struct {
	Config Config

	// Client, when set, is used instead of dialing. The collection does not
	// close it.
	Client goredis.UniversalClient
}

// Connect dials Redis (unless a client was supplied) and pings it.
func (rc Connector) Connect(ctx context.Context) (storage.Collection, error) {
	client, own := rc.Client, false
	if client == nil {
		client = goredis.NewClient(&goredis.Options{
			Addr:     rc.Config.Addr,
			Password: rc.Config.Password,
			DB:       rc.Config.DB,
		})
		own = true
	}

	if err := client.Ping(ctx).Err(); err != nil {
		if own {
			_ = client.Close()
		}
		return nil, fmt.Errorf("redis: ping %s: %w", rc.Config.Addr, err)
	}
	return New(client, own, rc.Config), nil
}

// New wraps client. When own is true Close also closes the client.
func New(client goredis.UniversalClient, own bool, cfg Config) *Collection {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.RemoveBatchSize <= 0 {
		cfg.RemoveBatchSize = defaultBatch
	}
	return &Collection{
		client:    client,
		ownClient: own,
		prefix:    cfg.Prefix,
		batch:     cfg.RemoveBatchSize,
	}
}

func (c *Collection) docKey(id string) string { return c.prefix + "doc:" + id }

func (c *Collection) indexKey() string { return c.prefix + "lastaccess" }

// FindOne returns the document with f.ID.
func (c *Collection) FindOne(ctx context.Context, f storage.Filter) (*domain.Document, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	if f.ID == "" {
		return nil, storage.ErrFilterRequired
	}
	id, err := canonical(f.ID)
	if err != nil {
		return nil, err
	}

	data, err := c.client.Get(ctx, c.docKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, storage.ErrNoDocument
		}
		return nil, fmt.Errorf("redis: get %s: %w", id, err)
	}

	doc, err := storage.UnmarshalDocument(id, data)
	if err != nil {
		return nil, err
	}
	f.ID = ""
	if !f.Matches(doc) {
		return nil, storage.ErrNoDocument
	}
	return doc, nil
}

// Insert stores d under a new ULID.
func (c *Collection) Insert(ctx context.Context, d *domain.Document) (string, error) {
	if err := c.check(ctx); err != nil {
		return "", err
	}
	id := storage.NewID()
	if err := c.write(ctx, id, d); err != nil {
		return "", err
	}
	return id, nil
}

// Save replaces or creates the document with d.ID.
func (c *Collection) Save(ctx context.Context, d *domain.Document) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	id, err := canonical(d.ID)
	if err != nil {
		return err
	}
	return c.write(ctx, id, d)
}

func (c *Collection) write(ctx context.Context, id string, d *domain.Document) error {
	data, err := storage.MarshalDocument(d)
	if err != nil {
		return err
	}
	_, err = c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, c.docKey(id), data, 0)
		pipe.ZAdd(ctx, c.indexKey(), goredis.Z{Score: float64(d.LastAccess), Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: write %s: %w", id, err)
	}
	return nil
}

// Remove deletes every document matching f.
func (c *Collection) Remove(ctx context.Context, f storage.Filter) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	if f.ID != "" {
		return c.removeOne(ctx, f)
	}

	max := "+inf"
	if f.LastAccessBefore != nil {
		max = "(" + strconv.FormatInt(*f.LastAccessBefore, 10)
	}

	var total int64
	for {
		n, err := removeScript.Run(ctx, c.client, []string{c.indexKey()}, max, c.batch, c.docKey("")).Int64()
		if err != nil {
			return total, fmt.Errorf("redis: remove: %w", err)
		}
		total += n
		if n < int64(c.batch) {
			return total, nil
		}
	}
}

func (c *Collection) removeOne(ctx context.Context, f storage.Filter) (int64, error) {
	id, err := canonical(f.ID)
	if err != nil {
		return 0, err
	}

	if f.LastAccessBefore != nil {
		score, err := c.client.ZScore(ctx, c.indexKey(), id).Result()
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("redis: score %s: %w", id, err)
		}
		if int64(score) >= *f.LastAccessBefore {
			return 0, nil
		}
	}

	var del *goredis.IntCmd
	_, err = c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		del = pipe.Del(ctx, c.docKey(id))
		pipe.ZRem(ctx, c.indexKey(), id)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis: remove %s: %w", id, err)
	}
	return del.Val(), nil
}

// Count returns the number of documents matching f.
func (c *Collection) Count(ctx context.Context, f storage.Filter) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}

	switch {
	case f.ID != "":
		id, err := canonical(f.ID)
		if err != nil {
			return 0, err
		}
		score, err := c.client.ZScore(ctx, c.indexKey(), id).Result()
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("redis: score %s: %w", id, err)
		}
		if f.LastAccessBefore != nil && int64(score) >= *f.LastAccessBefore {
			return 0, nil
		}
		return 1, nil

	case f.LastAccessBefore != nil:
		max := "(" + strconv.FormatInt(*f.LastAccessBefore, 10)
		n, err := c.client.ZCount(ctx, c.indexKey(), "-inf", max).Result()
		if err != nil {
			return 0, fmt.Errorf("redis: count: %w", err)
		}
		return n, nil

	default:
		n, err := c.client.ZCard(ctx, c.indexKey()).Result()
		if err != nil {
			return 0, fmt.Errorf("redis: count: %w", err)
		}
		return n, nil
	}
}

// Close marks the collection closed and closes an owned client.
func (c *Collection) Close(_ context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.ownClient {
		return c.client.Close()
	}
	return nil
}

func (c *Collection) check(ctx context.Context) error {
	if c.closed.Load() {
		return storage.ErrClosed
	}
	return ctx.Err()
}

func canonical(id string) (string, error) {
	u, err := storage.ParseID(id)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
