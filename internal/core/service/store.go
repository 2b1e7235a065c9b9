package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/sessiondb/internal/core/domain"
	"github.com/yndnr/sessiondb/internal/storage"
	"github.com/yndnr/sessiondb/pkg/oneshot"
)

// Operation names used in logs and metrics.
const (
	OpFetch    = "fetch"
	OpGenerate = "generate"
	OpCommit   = "commit"
	OpDestroy  = "destroy"
	OpClear    = "clear"
	OpLength   = "length"
	OpReap     = "reap"
)

// Store persists sessions in a storage.Collection.
//
// Store is safe for concurrent use. Each operation is one collection call
// (fetch of an unknown id adds the insert of a fresh session). Concurrent
// commits to one id are last-writer-wins.
type Store struct {
	opts options

	conn     *oneshot.Promise[storage.Collection]
	cancel   context.CancelFunc
	closed   atomic.Bool
	closeMu  sync.Mutex
	closeErr error
	didClose bool
}

// Open creates a Store and starts connecting in the background.
//
// Open never blocks. The connection attempt is detached from ctx
// cancellation (it keeps ctx values) and bounded by the connect timeout.
// Use WaitReady to block until the store is usable.
func Open(ctx context.Context, connector storage.Connector, opts ...Option) *Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Store{
		opts:   o,
		conn:   oneshot.New[storage.Collection](),
		cancel: cancel,
	}

	go s.connect(connCtx, connector)
	return s
}

// OpenCollection creates a Store over an already open collection.
// The store is ready immediately and takes ownership of coll.
func OpenCollection(coll storage.Collection, opts ...Option) *Store {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.metrics.SetReady(true)
	return &Store{
		opts:   o,
		conn:   oneshot.Resolved(coll, nil),
		cancel: func() {},
	}
}

func (s *Store) connect(ctx context.Context, connector storage.Connector) {
	if s.opts.connectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.connectTimeout)
		defer cancel()
	}

	start := time.Now()
	coll, err := connector.Connect(ctx)
	if err == nil && coll == nil {
		err = errors.New("connector returned no collection")
	}
	if err != nil {
		s.opts.logger.Error("session store connection failed",
			"error", err,
			"elapsed", time.Since(start),
		)
		s.conn.Resolve(nil, err)
		return
	}

	s.opts.logger.Info("session store connected", "elapsed", time.Since(start))
	s.opts.metrics.SetReady(true)
	s.conn.Resolve(coll, nil)
}

// WaitReady blocks until the connection attempt has finished or ctx is done.
// Returns domain.ErrConnection when the attempt failed.
func (s *Store) WaitReady(ctx context.Context) error {
	_, err := s.collection(ctx, false)
	return err
}

// Ready reports whether the store is connected and not closed.
func (s *Store) Ready() bool {
	if s.closed.Load() {
		return false
	}
	_, err, ok := s.conn.Peek()
	return ok && err == nil
}

// Close aborts a pending connection attempt and closes the collection.
// Operations after Close fail with domain.ErrConnection. Close is
// idempotent; later calls return the first result.
func (s *Store) Close(ctx context.Context) error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.didClose {
		return s.closeErr
	}

	s.closed.Store(true)
	s.cancel()

	coll, err := s.conn.Wait(ctx)
	if _, _, ok := s.conn.Peek(); !ok {
		// Connection attempt still pending; a later Close may finish it.
		return err
	}

	s.didClose = true
	s.opts.metrics.SetReady(false)
	if err != nil {
		return nil
	}
	if err := coll.Close(ctx); err != nil {
		s.closeErr = domain.ErrStorage.WithCause(err)
	}
	s.opts.logger.Info("session store closed")
	return s.closeErr
}

// collection waits for the connection. With failFast it fails with
// ErrNotReady instead of waiting.
func (s *Store) collection(ctx context.Context, failFast bool) (storage.Collection, error) {
	if s.closed.Load() {
		return nil, domain.ErrConnection.WithDetails("store closed")
	}

	var (
		coll storage.Collection
		err  error
	)
	if failFast {
		var ok bool
		coll, err, ok = s.conn.Peek()
		if !ok {
			return nil, domain.ErrNotReady
		}
	} else {
		coll, err = s.conn.Wait(ctx)
		if err != nil && ctx.Err() != nil {
			if _, _, ok := s.conn.Peek(); !ok {
				return nil, domain.ErrNotReady.WithCause(ctx.Err())
			}
		}
	}
	if err != nil {
		return nil, domain.ErrConnection.WithCause(err)
	}
	return coll, nil
}

func (s *Store) ready(ctx context.Context) (storage.Collection, error) {
	return s.collection(ctx, s.opts.failFast)
}

// storageError wraps a backend error. A closed collection is reported as a
// connection error.
func storageError(err error) error {
	if errors.Is(err, storage.ErrClosed) {
		return domain.ErrConnection.WithCause(err)
	}
	return domain.ErrStorage.WithCause(err)
}

func (s *Store) observe(op string, start time.Time, err error) {
	s.opts.metrics.ObserveOperation(op, err, time.Since(start))
	if err != nil && !domain.IsDomainError(err, domain.ErrInvalidArgument.Code) &&
		!domain.IsDomainError(err, domain.ErrMissingArgument.Code) {
		s.opts.logger.Error("session store operation failed", "op", op, "error", err)
	}
}

// ============================================================================
// Session Operations
// ============================================================================

// Fetch loads the session with id.
//
// An empty id behaves as Generate. An unknown or undecodable id also falls
// back to Generate: the returned session then has a fresh id and Generated
// set. Callers detect regeneration through Generated or by comparing ids.
func (s *Store) Fetch(ctx context.Context, id string) (sess *domain.Session, err error) {
	start := time.Now()
	defer func() { s.observe(OpFetch, start, err) }()

	coll, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return s.generate(ctx, coll)
	}

	doc, err := coll.FindOne(ctx, storage.ByID(id))
	switch {
	case err == nil:
		return domain.FromDocument(doc), nil
	case errors.Is(err, storage.ErrNoDocument), errors.Is(err, storage.ErrInvalidID):
		s.opts.logger.Debug("session not found, generating", "session_id", id)
		s.opts.metrics.IncRegenerated()
		return s.generate(ctx, coll)
	default:
		return nil, storageError(err)
	}
}

// Generate creates and persists a session holding only a lastAccess
// timestamp. The returned session carries the storage-assigned id.
func (s *Store) Generate(ctx context.Context) (sess *domain.Session, err error) {
	start := time.Now()
	defer func() { s.observe(OpGenerate, start, err) }()

	coll, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}
	return s.generate(ctx, coll)
}

func (s *Store) generate(ctx context.Context, coll storage.Collection) (*domain.Session, error) {
	sess := domain.NewSession(s.opts.now())
	id, err := coll.Insert(ctx, &domain.Document{
		LastAccess: sess.LastAccess,
		Fields:     map[string]any{},
	})
	if err != nil {
		return nil, storageError(err)
	}
	sess.ID = id
	sess.Generated = true
	return sess, nil
}

// Commit replaces the stored document for sess.ID with sess, creating it
// when absent. The whole document is written; there is no partial update.
// On success the same session is returned unchanged.
func (s *Store) Commit(ctx context.Context, sess *domain.Session) (_ *domain.Session, err error) {
	start := time.Now()
	defer func() { s.observe(OpCommit, start, err) }()

	// 1. Validate input
	if sess == nil {
		return nil, domain.ErrMissingArgument.WithDetails("session is required")
	}
	if sess.ID == "" {
		return nil, domain.ErrMissingArgument.WithDetails("session id is required")
	}
	doc, err := domain.ToDocument(sess)
	if err != nil {
		return nil, err
	}

	// 2. Wait for the connection
	coll, err := s.ready(ctx)
	if err != nil {
		return nil, err
	}

	// 3. Upsert
	if err := coll.Save(ctx, doc); err != nil {
		if errors.Is(err, storage.ErrInvalidID) {
			return nil, domain.ErrInvalidArgument.WithDetails("invalid session id " + sess.ID)
		}
		return nil, storageError(err)
	}
	return sess, nil
}

// Destroy removes the session with id. Removing an absent or undecodable
// id is a no-op. An empty id is rejected so it is never read as "all".
func (s *Store) Destroy(ctx context.Context, id string) (err error) {
	start := time.Now()
	defer func() { s.observe(OpDestroy, start, err) }()

	if id == "" {
		return domain.ErrMissingArgument.WithDetails("session id is required")
	}
	coll, err := s.ready(ctx)
	if err != nil {
		return err
	}
	if _, err := coll.Remove(ctx, storage.ByID(id)); err != nil {
		if errors.Is(err, storage.ErrInvalidID) {
			return nil
		}
		return storageError(err)
	}
	return nil
}

// Clear removes every session and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe(OpClear, start, err) }()

	coll, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}
	n, err = coll.Remove(ctx, storage.Filter{})
	if err != nil {
		return 0, storageError(err)
	}
	s.opts.logger.Warn("session store cleared", "removed", n)
	return n, nil
}

// Length returns the number of stored sessions.
func (s *Store) Length(ctx context.Context) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe(OpLength, start, err) }()

	coll, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}
	n, err = coll.Count(ctx, storage.Filter{})
	if err != nil {
		return 0, storageError(err)
	}
	return n, nil
}

// Reap removes every session whose lastAccess is strictly older than
// now - maxAge and returns how many were removed.
func (s *Store) Reap(ctx context.Context, maxAge time.Duration) (n int64, err error) {
	start := time.Now()
	defer func() { s.observe(OpReap, start, err) }()

	if maxAge < 0 {
		return 0, domain.ErrInvalidArgument.WithDetails("max age must not be negative")
	}
	coll, err := s.ready(ctx)
	if err != nil {
		return 0, err
	}

	threshold := s.opts.now().Add(-maxAge).UnixMilli()
	n, err = coll.Remove(ctx, storage.AccessedBefore(threshold))
	if err != nil {
		return 0, storageError(err)
	}

	s.opts.metrics.AddReaped(n)
	s.opts.logger.Info("sessions reaped",
		"removed", n,
		"max_age", maxAge,
		"threshold", threshold,
	)
	return n, nil
}
