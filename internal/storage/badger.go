package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yndnr/sessiondb/internal/core/domain"
	"github.com/yndnr/sessiondb/pkg/crypto/adaptive"
)

// Key layout:
//
//	s/<ulid 16B>                  -> <lastAccess 8B><payload>
//	t/<lastAccess 8B><ulid 16B>   -> (empty) reap index
//	m/cipher                      -> cipher type used for payloads
//
// lastAccess in index keys has its sign bit flipped so that byte order
// matches numeric order.
var (
	docPrefix   = []byte("s/")
	indexPrefix = []byte("t/")
	cipherKey   = []byte("m/cipher")
)

const (
	headerSize     = 8
	conflictRetry  = 3
	keyDerivInfo   = "sessiondb/badger/v1"
	metricsRefresh = 15 * time.Second
)

// BadgerCollection implements Collection on an embedded Badger database.
type BadgerCollection struct {
	db     *badger.DB
	cfg    BadgerConfig
	cipher adaptive.Cipher
	logger *slog.Logger

	closed     atomic.Bool
	lastGCTime atomic.Int64  // Unix milliseconds
	gcRuns     atomic.Uint64 // value-log files rewritten

	// Prometheus metrics
	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsLastGCTime   prometheus.Gauge
	metricsGCRuns       prometheus.Counter

	// Shutdown
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var _ Collection = (*BadgerCollection)(nil)

// BadgerConnector opens a BadgerCollection.
type BadgerConnector struct {
	Config BadgerConfig
	Logger *slog.Logger

	// Registerer receives the Badger size and GC metrics. Optional.
	Registerer prometheus.Registerer
}

// Connect opens the database directory.
func (bc BadgerConnector) Connect(ctx context.Context) (Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := OpenBadger(bc.Config, bc.Logger)
	if err != nil {
		return nil, err
	}
	if bc.Registerer != nil {
		if err := c.RegisterMetrics(bc.Registerer); err != nil {
			_ = c.Close(ctx)
			return nil, err
		}
	}
	return c, nil
}

// OpenBadger opens (or creates) a Badger-backed collection.
func OpenBadger(cfg BadgerConfig, logger *slog.Logger) (*BadgerCollection, error) {
	if cfg.Dir == "" && !cfg.InMemory {
		return nil, errors.New("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RemoveBatchSize <= 0 {
		cfg.RemoveBatchSize = 1000
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = 0.5
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = &badgerLogger{logger: logger}
	if cfg.CacheSize > 0 {
		opts.BlockCacheSize = cfg.CacheSize
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}
	if cfg.NumMemtables > 0 {
		opts.NumMemtables = cfg.NumMemtables
	}
	opts.SyncWrites = cfg.SyncWrites
	// Save reads the previous index entry, so concurrent writers must conflict.
	opts.DetectConflicts = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	c := &BadgerCollection{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if cfg.EncryptionKey != "" {
		if c.cipher, err = c.loadCipher(cfg.EncryptionKey); err != nil {
			db.Close()
			return nil, err
		}
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		c.wg.Add(1)
		go c.gcLoop()
	}

	logger.Info("badger collection opened",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
		"encrypted", c.cipher != nil,
		"gc_interval", cfg.GCInterval)

	return c, nil
}

// loadCipher derives the payload key and pins the cipher type on first use,
// so a database written on one platform stays readable on another.
func (c *BadgerCollection) loadCipher(secret string) (adaptive.Cipher, error) {
	key, err := adaptive.DeriveKey([]byte(secret), []byte(keyDerivInfo))
	if err != nil {
		return nil, fmt.Errorf("badger: %w", err)
	}

	var typ adaptive.CipherType
	err = c.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(cipherKey)
		switch {
		case err == nil:
			return item.Value(func(val []byte) error {
				typ = adaptive.CipherType(val)
				return nil
			})
		case errors.Is(err, badger.ErrKeyNotFound):
			typ = adaptive.Preferred()
			return txn.Set(cipherKey, []byte(typ))
		default:
			return err
		}
	})
	if err != nil {
		return nil, fmt.Errorf("badger: load cipher type: %w", err)
	}
	return adaptive.NewWithType(key, typ)
}

// FindOne returns the document with f.ID.
func (c *BadgerCollection) FindOne(ctx context.Context, f Filter) (*domain.Document, error) {
	if err := c.check(ctx); err != nil {
		return nil, err
	}
	if f.ID == "" {
		return nil, ErrFilterRequired
	}
	u, err := ParseID(f.ID)
	if err != nil {
		return nil, err
	}

	key := docKey(u)
	var doc *domain.Document
	err = c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNoDocument
			}
			return err
		}
		return item.Value(func(val []byte) error {
			doc, err = c.decodeValue(key, u.String(), val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	f.ID = ""
	if !f.Matches(doc) {
		return nil, ErrNoDocument
	}
	return doc, nil
}

// Insert stores d under a new ULID.
func (c *BadgerCollection) Insert(ctx context.Context, d *domain.Document) (string, error) {
	if err := c.check(ctx); err != nil {
		return "", err
	}

	u := ulid.Make()
	key := docKey(u)
	val, err := c.encodeValue(key, d)
	if err != nil {
		return "", err
	}

	err = c.update(func(txn *badger.Txn) error {
		if err := txn.Set(key, val); err != nil {
			return err
		}
		return txn.Set(indexKey(d.LastAccess, u), nil)
	})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Save replaces or creates the document with d.ID.
func (c *BadgerCollection) Save(ctx context.Context, d *domain.Document) error {
	if err := c.check(ctx); err != nil {
		return err
	}
	u, err := ParseID(d.ID)
	if err != nil {
		return err
	}

	key := docKey(u)
	val, err := c.encodeValue(key, d)
	if err != nil {
		return err
	}

	return c.update(func(txn *badger.Txn) error {
		prev, found, err := readHeader(txn, key)
		if err != nil {
			return err
		}
		if found && prev != d.LastAccess {
			if err := txn.Delete(indexKey(prev, u)); err != nil {
				return err
			}
		}
		if err := txn.Set(key, val); err != nil {
			return err
		}
		return txn.Set(indexKey(d.LastAccess, u), nil)
	})
}

// Remove deletes every document matching f.
func (c *BadgerCollection) Remove(ctx context.Context, f Filter) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	if f.ID != "" {
		return c.removeOne(f)
	}

	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		var n int
		err := c.update(func(txn *badger.Txn) error {
			pairs, err := c.collect(txn, f.LastAccessBefore, c.cfg.RemoveBatchSize)
			if err != nil {
				return err
			}
			for _, p := range pairs {
				if err := txn.Delete(p.doc); err != nil {
					return err
				}
				if err := txn.Delete(p.index); err != nil {
					return err
				}
			}
			n = len(pairs)
			return nil
		})
		if err != nil {
			return total, err
		}

		total += int64(n)
		if n < c.cfg.RemoveBatchSize {
			return total, nil
		}
	}
}

func (c *BadgerCollection) removeOne(f Filter) (int64, error) {
	u, err := ParseID(f.ID)
	if err != nil {
		return 0, err
	}

	key := docKey(u)
	var removed int64
	err = c.update(func(txn *badger.Txn) error {
		removed = 0
		ts, found, err := readHeader(txn, key)
		if err != nil || !found {
			return err
		}
		if f.LastAccessBefore != nil && ts >= *f.LastAccessBefore {
			return nil
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		removed = 1
		return txn.Delete(indexKey(ts, u))
	})
	return removed, err
}

// Count returns the number of documents matching f.
func (c *BadgerCollection) Count(ctx context.Context, f Filter) (int64, error) {
	if err := c.check(ctx); err != nil {
		return 0, err
	}
	if f.ID != "" {
		if _, err := c.FindOne(ctx, f); err != nil {
			if errors.Is(err, ErrNoDocument) {
				return 0, nil
			}
			return 0, err
		}
		return 1, nil
	}

	var n int64
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = docPrefix
		var stop []byte
		if f.LastAccessBefore != nil {
			opts.Prefix = indexPrefix
			stop = sortableTime(*f.LastAccessBefore)
		}

		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if stop != nil && pastThreshold(it.Item().Key(), stop) {
				break
			}
			n++
		}
		return nil
	})
	return n, err
}

// Close stops background loops and closes the database.
func (c *BadgerCollection) Close(_ context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		c.logger.Info("shutting down badger collection")
		c.closed.Store(true)
		close(c.stopCh)
		c.wg.Wait()
		if cerr := c.db.Close(); cerr != nil {
			err = fmt.Errorf("badger: close db: %w", cerr)
		}
	})
	return err
}

type keyPair struct {
	doc   []byte
	index []byte
}

// collect gathers up to limit document/index key pairs, oldest first when
// before is set.
func (c *BadgerCollection) collect(txn *badger.Txn, before *int64, limit int) ([]keyPair, error) {
	pairs := make([]keyPair, 0, limit)

	if before != nil {
		stop := sortableTime(*before)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = indexPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid() && len(pairs) < limit; it.Next() {
			ik := it.Item().KeyCopy(nil)
			if pastThreshold(ik, stop) {
				break
			}
			var u ulid.ULID
			copy(u[:], ik[len(indexPrefix)+headerSize:])
			pairs = append(pairs, keyPair{doc: docKey(u), index: ik})
		}
		return pairs, nil
	}

	opts := badger.DefaultIteratorOptions
	opts.Prefix = docPrefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid() && len(pairs) < limit; it.Next() {
		item := it.Item()
		dk := item.KeyCopy(nil)
		var ts int64
		err := item.Value(func(val []byte) error {
			if len(val) < headerSize {
				return fmt.Errorf("badger: corrupt record %x", dk)
			}
			ts = int64(binary.BigEndian.Uint64(val[:headerSize]))
			return nil
		})
		if err != nil {
			return nil, err
		}
		var u ulid.ULID
		copy(u[:], dk[len(docPrefix):])
		pairs = append(pairs, keyPair{doc: dk, index: indexKey(ts, u)})
	}
	return pairs, nil
}

// update runs fn in a read-write transaction, retrying on write conflicts.
func (c *BadgerCollection) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < conflictRetry; attempt++ {
		err = c.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		c.logger.Debug("badger write conflict, retrying", "attempt", attempt+1)
	}
	return err
}

func (c *BadgerCollection) check(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func (c *BadgerCollection) encodeValue(key []byte, d *domain.Document) ([]byte, error) {
	payload, err := MarshalDocument(d)
	if err != nil {
		return nil, err
	}
	if c.cipher != nil {
		if payload, err = c.cipher.Encrypt(payload, key); err != nil {
			return nil, fmt.Errorf("badger: seal document: %w", err)
		}
	}
	val := make([]byte, headerSize, headerSize+len(payload))
	binary.BigEndian.PutUint64(val, uint64(d.LastAccess))
	return append(val, payload...), nil
}

func (c *BadgerCollection) decodeValue(key []byte, id string, val []byte) (*domain.Document, error) {
	if len(val) < headerSize {
		return nil, fmt.Errorf("badger: corrupt record %s", id)
	}
	payload := val[headerSize:]
	if c.cipher != nil {
		var err error
		if payload, err = c.cipher.Decrypt(payload, key); err != nil {
			return nil, fmt.Errorf("badger: open document %s: %w", id, err)
		}
	}
	return UnmarshalDocument(id, payload)
}

// readHeader returns the lastAccess stored in front of a record.
func readHeader(txn *badger.Txn, key []byte) (int64, bool, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	var ts int64
	err = item.Value(func(val []byte) error {
		if len(val) < headerSize {
			return fmt.Errorf("badger: corrupt record %x", key)
		}
		ts = int64(binary.BigEndian.Uint64(val[:headerSize]))
		return nil
	})
	return ts, true, err
}

func docKey(u ulid.ULID) []byte {
	k := make([]byte, 0, len(docPrefix)+len(u))
	k = append(k, docPrefix...)
	return append(k, u[:]...)
}

func indexKey(ms int64, u ulid.ULID) []byte {
	k := make([]byte, 0, len(indexPrefix)+headerSize+len(u))
	k = append(k, indexPrefix...)
	k = append(k, sortableTime(ms)...)
	return append(k, u[:]...)
}

func sortableTime(ms int64) []byte {
	b := make([]byte, headerSize)
	binary.BigEndian.PutUint64(b, uint64(ms)^(1<<63))
	return b
}

// pastThreshold reports whether an index key's timestamp is >= stop.
func pastThreshold(indexKey, stop []byte) bool {
	ts := indexKey[len(indexPrefix) : len(indexPrefix)+headerSize]
	return bytes.Compare(ts, stop) >= 0
}

// GC runs value-log garbage collection until nothing more can be rewritten.
// Returns the number of value-log files rewritten.
func (c *BadgerCollection) GC(ctx context.Context) (uint64, error) {
	if c.cfg.InMemory {
		return 0, nil
	}
	start := time.Now()

	var runs uint64
	for ctx.Err() == nil {
		err := c.db.RunValueLogGC(c.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				break
			}
			return runs, fmt.Errorf("badger: gc: %w", err)
		}
		runs++
	}

	c.lastGCTime.Store(time.Now().UnixMilli())
	c.gcRuns.Add(runs)
	if c.metricsGCRuns != nil {
		c.metricsGCRuns.Add(float64(runs))
	}

	c.logger.Debug("badger gc completed",
		"files_rewritten", runs,
		"elapsed", time.Since(start))

	return runs, nil
}

// Stats returns storage statistics.
func (c *BadgerCollection) Stats() BadgerStats {
	lsm, vlog := c.db.Size()
	return BadgerStats{
		LSMSize:      uint64(lsm),
		ValueLogSize: uint64(vlog),
		LastGCTime:   c.lastGCTime.Load(),
		GCRuns:       c.gcRuns.Load(),
	}
}

// RegisterMetrics registers Badger size and GC metrics and starts a loop
// that refreshes them.
func (c *BadgerCollection) RegisterMetrics(reg prometheus.Registerer) error {
	c.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sessiondb",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	c.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sessiondb",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	c.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sessiondb",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last Badger GC run",
	})
	c.metricsGCRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sessiondb",
		Subsystem: "badger",
		Name:      "gc_files_rewritten_total",
		Help:      "Value log files rewritten by Badger garbage collection",
	})

	for _, col := range []prometheus.Collector{
		c.metricsLSMSize,
		c.metricsValueLogSize,
		c.metricsLastGCTime,
		c.metricsGCRuns,
	} {
		if err := reg.Register(col); err != nil {
			return fmt.Errorf("badger: register metrics: %w", err)
		}
	}

	c.refreshMetrics()
	c.wg.Add(1)
	go c.metricsUpdateLoop()
	return nil
}

func (c *BadgerCollection) refreshMetrics() {
	stats := c.Stats()
	c.metricsLSMSize.Set(float64(stats.LSMSize))
	c.metricsValueLogSize.Set(float64(stats.ValueLogSize))
	if stats.LastGCTime > 0 {
		c.metricsLastGCTime.Set(float64(stats.LastGCTime) / 1000.0)
	}
}

func (c *BadgerCollection) metricsUpdateLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(metricsRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.refreshMetrics()
		case <-c.stopCh:
			return
		}
	}
}

// gcLoop runs periodic garbage collection.
func (c *BadgerCollection) gcLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := c.GC(ctx); err != nil {
				c.logger.Error("badger auto gc failed", "error", err)
			}
			cancel()

		case <-c.stopCh:
			return
		}
	}
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}
