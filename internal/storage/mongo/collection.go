// Package mongo provides a session collection on MongoDB.
//
// Documents are stored flat as {_id: ObjectID, lastAccess: int64, ...}.
// Session ids are the 24-character hex form of the ObjectID. An ascending
// index on lastAccess is created on connect so the expiry sweep does not
// scan the collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/yndnr/sessiondb/internal/core/domain"
	"github.com/yndnr/sessiondb/internal/storage"
)

// Defaults for a local server.
const (
	DefaultHost       = "127.0.0.1"
	DefaultPort       = 27017
	DefaultDatabase   = "sessions"
	DefaultCollection = "sessions"
)

// Config configures a MongoDB collection.
type Config struct {
	// URI, when set, overrides Host and Port.
	URI  string
	Host string
	Port int

	Database   string
	Collection string

	// AutoReconnect keeps the driver retrying reads and writes across
	// transient network errors and failovers.
	AutoReconnect bool

	// ConnectTimeout bounds dialing and server selection.
	ConnectTimeout time.Duration
}

// DefaultConfig returns the configuration for a local server.
func DefaultConfig() Config {
	return Config{
		Host:           DefaultHost,
		Port:           DefaultPort,
		Database:       DefaultDatabase,
		Collection:     DefaultCollection,
		AutoReconnect:  true,
		ConnectTimeout: 10 * time.Second,
	}
}

// ConnectionURI returns the URI the driver dials.
func (c Config) ConnectionURI() string {
	if c.URI != "" {
		return c.URI
	}
	host, port := c.Host, c.Port
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = DefaultPort
	}
	return "mongodb://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// ClientOptions builds driver options from the configuration.
func (c Config) ClientOptions() *options.ClientOptions {
	opts := options.Client().
		ApplyURI(c.ConnectionURI()).
		SetRetryReads(c.AutoReconnect).
		SetRetryWrites(c.AutoReconnect)
	if c.ConnectTimeout > 0 {
		opts.SetConnectTimeout(c.ConnectTimeout).
			SetServerSelectionTimeout(c.ConnectTimeout)
	}
	return opts
}

// Connector opens a MongoDB collection.
type Connector struct {
	Config Config

	// Client, when set, is used instead of dialing. The collection does not
	// disconnect it.
	Client *mongo.Client
}

// Connect dials the server (unless a client was supplied), verifies it
// answers, and ensures the lastAccess index exists.
func (mc Connector) Connect(ctx context.Context) (storage.Collection, error) {
	client, own := mc.Client, false
	if client == nil {
		var err error
		client, err = mongo.Connect(ctx, mc.Config.ClientOptions())
		if err != nil {
			return nil, fmt.Errorf("mongo: connect: %w", err)
		}
		own = true
	}

	fail := func(err error) (storage.Collection, error) {
		if own {
			_ = client.Disconnect(context.WithoutCancel(ctx))
		}
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return fail(fmt.Errorf("mongo: ping: %w", err))
	}

	db, name := mc.Config.Database, mc.Config.Collection
	if db == "" {
		db = DefaultDatabase
	}
	if name == "" {
		name = DefaultCollection
	}
	coll := client.Database(db).Collection(name)

	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: domain.FieldLastAccess, Value: 1}},
		Options: options.Index().SetName("lastAccess_1"),
	})
	if err != nil {
		return fail(fmt.Errorf("mongo: create lastAccess index: %w", err))
	}

	return &Collection{client: client, coll: coll, ownClient: own}, nil
}

// Collection implements storage.Collection on a MongoDB collection.
type Collection struct {
	client    *mongo.Client
	coll      *mongo.Collection
	ownClient bool
	closed    atomic.Bool
}

var _ storage.Collection = (*Collection)(nil)

// FindOne returns the document with f.ID.
func (c *Collection) FindOne(ctx context.Context, f storage.Filter) (*domain.Document, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	if f.ID == "" {
		return nil, storage.ErrFilterRequired
	}
	q, err := buildFilter(f)
	if err != nil {
		return nil, err
	}

	var raw bson.M
	if err := c.coll.FindOne(ctx, q).Decode(&raw); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNoDocument
		}
		return nil, fmt.Errorf("mongo: find: %w", err)
	}
	return decode(raw)
}

// Insert stores d under a new ObjectID.
func (c *Collection) Insert(ctx context.Context, d *domain.Document) (string, error) {
	if err := c.check(ctx); err != nil {
		return "", err
	}
	oid := primitive.NewObjectID()
	if _, err := c.coll.InsertOne(ctx, encode(oid, d)); err != nil {
		return "", fmt.Errorf("mongo: insert: %w", err)
	}
	return oid.Hex(), nil
}

// Save replaces the document with d.ID, inserting it when absent.
func (c *Collection) Save(ctx context.Context, d *domain.Document) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	oid, err := parseID(d.ID)
	if err != nil {
		return err
	}
	_, err = c.coll.ReplaceOne(ctx,
		bson.M{domain.FieldID: oid},
		encode(oid, d),
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: replace %s: %w", d.ID, err)
	}
	return nil
}

// Remove deletes every document matching f.
func (c *Collection) Remove(ctx context.Context, f storage.Filter) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	q, err := buildFilter(f)
	if err != nil {
		return 0, err
	}

	var res *mongo.DeleteResult
	if f.ID != "" {
		res, err = c.coll.DeleteOne(ctx, q)
	} else {
		res, err = c.coll.DeleteMany(ctx, q)
	}
	if err != nil {
		return 0, fmt.Errorf("mongo: delete: %w", err)
	}
	return res.DeletedCount, nil
}

// Count returns the number of documents matching f.
func (c *Collection) Count(ctx context.Context, f storage.Filter) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	q, err := buildFilter(f)
	if err != nil {
		return 0, err
	}
	n, err := c.coll.CountDocuments(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("mongo: count: %w", err)
	}
	return n, nil
}

// Close marks the collection closed and disconnects an owned client.
func (c *Collection) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c.ownClient {
		return c.client.Disconnect(ctx)
	}
	return nil
}

func (c *Collection) check(ctx context.Context) error {
	if c.closed.Load() {
		return storage.ErrClosed
	}
	return ctx.Err()
}
