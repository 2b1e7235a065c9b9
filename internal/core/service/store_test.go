package service

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/sessiondb/internal/core/domain"
	"github.com/yndnr/sessiondb/internal/storage"
	"github.com/yndnr/sessiondb/internal/storage/memory"
	"github.com/yndnr/sessiondb/internal/telemetry/metric"
)

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := Open(context.Background(), memory.Connector(), opts...)
	if err := s.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

// ============================================================================
// Fetch / Generate
// ============================================================================

func TestStore_Generate(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, WithClock(clock.Now))
	ctx := context.Background()

	sess, err := s.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if sess.ID == "" {
		t.Error("generated session should have an id")
	}
	if !sess.Generated {
		t.Error("generated session should be flagged")
	}
	if sess.LastAccess != clock.Now().UnixMilli() {
		t.Errorf("LastAccess = %d, want %d", sess.LastAccess, clock.Now().UnixMilli())
	}
	if len(sess.Attributes) != 0 {
		t.Errorf("Attributes = %v, want empty", sess.Attributes)
	}
}

func TestStore_GenerateUniqueIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		sess, err := s.Generate(ctx)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if seen[sess.ID] {
			t.Fatalf("duplicate id %s", sess.ID)
		}
		seen[sess.ID] = true
	}
}

func TestStore_FetchFallsBackToGenerate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metric.NewStoreMetrics(reg)
	s := newTestStore(t, WithMetrics(m))
	ctx := context.Background()

	tests := []struct {
		name string
		id   string
	}{
		{"empty id", ""},
		{"unknown id", storage.NewID()},
		{"undecodable id", "not-a-session-id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, err := s.Fetch(ctx, tt.id)
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if sess.ID == "" || sess.ID == tt.id {
				t.Errorf("Fetch() id = %q, want a fresh id", sess.ID)
			}
			if !sess.Generated {
				t.Error("Fetch() should flag the regenerated session")
			}
		})
	}

	n, err := testutil.GatherAndCount(reg, "sessiondb_store_regenerated_total")
	if err != nil || n != 1 {
		t.Fatalf("regenerated series = (%d, %v)", n, err)
	}
	// The empty id is a plain generate, not a miss.
	if got := metricValue(t, reg, "sessiondb_store_regenerated_total"); got != 2 {
		t.Errorf("regenerated_total = %v, want 2", got)
	}
}

func TestStore_FetchExisting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	gen, _ := s.Generate(ctx)
	got, err := s.Fetch(ctx, gen.ID)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got.ID != gen.ID {
		t.Errorf("Fetch() id = %q, want %q", got.ID, gen.ID)
	}
	if got.Generated {
		t.Error("a loaded session should not be flagged as generated")
	}
	if got.LastAccess != gen.LastAccess {
		t.Errorf("LastAccess = %d, want %d", got.LastAccess, gen.LastAccess)
	}
}

// ============================================================================
// Commit
// ============================================================================

func TestStore_CommitRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, _ := s.Generate(ctx)
	sess.Set("userId", 42)
	sess.Set("name", "alice")
	sess.Set("admin", true)
	sess.Set("score", 1.5)
	sess.Set("roles", []string{"a", "b"})
	sess.Set("prefs", map[string]any{"theme": "dark", "size": uint8(3)})
	sess.Set("nothing", nil)

	committed, err := s.Commit(ctx, sess)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if committed != sess {
		t.Error("Commit() should return the same session")
	}

	got, err := s.Fetch(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	want, err := domain.NormalizeAttributes(sess.Attributes)
	if err != nil {
		t.Fatalf("NormalizeAttributes() error = %v", err)
	}
	if !reflect.DeepEqual(got.Attributes, want) {
		t.Errorf("Attributes = %#v, want %#v", got.Attributes, want)
	}
	if got.ID != sess.ID || got.LastAccess != sess.LastAccess {
		t.Errorf("Fetch() = {%s %d}, want {%s %d}", got.ID, got.LastAccess, sess.ID, sess.LastAccess)
	}
}

func TestStore_CommitReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, _ := s.Generate(ctx)
	sess.Set("a", 1)
	sess.Set("b", 2)
	s.Commit(ctx, sess)

	sess.Delete("a")
	if _, err := s.Commit(ctx, sess); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	got, _ := s.Fetch(ctx, sess.ID)
	if _, ok := got.Get("a"); ok {
		t.Error("commit should replace the whole document")
	}
	if v, _ := got.Get("b"); v != int64(2) {
		t.Errorf("b = %v, want 2", v)
	}
}

func TestStore_CommitUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := storage.NewID()
	sess := &domain.Session{ID: id, LastAccess: 5, Attributes: map[string]any{"k": "v"}}
	if _, err := s.Commit(ctx, sess); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	got, err := s.Fetch(ctx, id)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got.ID != id || got.Generated {
		t.Errorf("Fetch() = %+v, want the upserted session", got)
	}
}

func TestStore_CommitErrors(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	valid := storage.NewID()

	tests := []struct {
		name    string
		session *domain.Session
		wantErr *domain.DomainError
	}{
		{"nil session", nil, domain.ErrMissingArgument},
		{"empty id", &domain.Session{}, domain.ErrMissingArgument},
		{"undecodable id", &domain.Session{ID: "bogus"}, domain.ErrInvalidArgument},
		{
			"reserved attribute",
			&domain.Session{ID: valid, Attributes: map[string]any{"_id": "x"}},
			domain.ErrInvalidArgument,
		},
		{
			"unsupported value",
			&domain.Session{ID: valid, Attributes: map[string]any{"ch": make(chan int)}},
			domain.ErrInvalidArgument,
		},
		{
			"NaN value",
			&domain.Session{ID: valid, Attributes: map[string]any{"ratio": math.NaN()}},
			domain.ErrInvalidArgument,
		},
		{
			"infinite nested value",
			&domain.Session{ID: valid, Attributes: map[string]any{"m": map[string]any{"x": math.Inf(1)}}},
			domain.ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Commit(ctx, tt.session)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Commit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if n, _ := s.Length(ctx); n != 0 {
		t.Errorf("Length() = %d, failed commits should not write", n)
	}
}

// ============================================================================
// Destroy / Clear / Length
// ============================================================================

func TestStore_DestroyThenFetch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess, _ := s.Generate(ctx)
	if err := s.Destroy(ctx, sess.ID); err != nil {
		t.Fatalf("Destroy() error = %v", err)
	}

	got, err := s.Fetch(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got.ID == sess.ID || !got.Generated {
		t.Errorf("Fetch() after destroy = %+v, want a new session", got)
	}
}

func TestStore_DestroyNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.Generate(ctx)

	for _, id := range []string{storage.NewID(), "bogus"} {
		if err := s.Destroy(ctx, id); err != nil {
			t.Errorf("Destroy(%q) error = %v", id, err)
		}
	}
	if err := s.Destroy(ctx, ""); !errors.Is(err, domain.ErrMissingArgument) {
		t.Errorf("Destroy(\"\") error = %v, want ErrMissingArgument", err)
	}
	if n, _ := s.Length(ctx); n != 1 {
		t.Errorf("Length() = %d, want 1", n)
	}
}

func TestStore_LengthAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	before, err := s.Length(ctx)
	if err != nil {
		t.Fatalf("Length() error = %v", err)
	}

	const n = 7
	for i := 0; i < n; i++ {
		if _, err := s.Generate(ctx); err != nil {
			t.Fatal(err)
		}
	}
	after, _ := s.Length(ctx)
	if after != before+n {
		t.Errorf("Length() = %d, want %d", after, before+n)
	}

	removed, err := s.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if removed != after {
		t.Errorf("Clear() = %d, want %d", removed, after)
	}
	if removed, _ := s.Clear(ctx); removed != 0 {
		t.Errorf("Clear() on empty store = %d, want 0", removed)
	}
}

// ============================================================================
// Reap
// ============================================================================

func TestStore_ReapBoundary(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, WithClock(clock.Now))
	ctx := context.Background()

	now := clock.Now().UnixMilli()
	maxAge := time.Minute
	threshold := now - maxAge.Milliseconds()

	// lastAccess offsets relative to the threshold.
	offsets := []int64{-100000, -2, -1, 0, 1, 2, 100000}
	ids := make(map[int64]string)
	for _, off := range offsets {
		sess, _ := s.Generate(ctx)
		sess.LastAccess = threshold + off
		if _, err := s.Commit(ctx, sess); err != nil {
			t.Fatal(err)
		}
		ids[off] = sess.ID
	}

	removed, err := s.Reap(ctx, maxAge)
	if err != nil {
		t.Fatalf("Reap() error = %v", err)
	}
	if removed != 3 {
		t.Errorf("Reap() = %d, want 3", removed)
	}

	for _, off := range offsets {
		got, _ := s.Fetch(ctx, ids[off])
		kept := got.ID == ids[off]
		if wantKept := off >= 0; kept != wantKept {
			t.Errorf("offset %d: kept = %v, want %v", off, kept, wantKept)
		}
	}
}

func TestStore_ReapNegativeMaxAge(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Reap(context.Background(), -time.Second); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Reap() error = %v, want ErrInvalidArgument", err)
	}
}

func TestStore_Scenario(t *testing.T) {
	clock := newFakeClock()
	s := newTestStore(t, WithClock(clock.Now))
	ctx := context.Background()

	a, err := s.Generate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	created := a.LastAccess

	a.Set("userId", 42)
	if _, err := s.Commit(ctx, a); err != nil {
		t.Fatal(err)
	}

	got, err := s.Fetch(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != a.ID || got.LastAccess != created {
		t.Errorf("Fetch() = {%s %d}, want {%s %d}", got.ID, got.LastAccess, a.ID, created)
	}
	if v, _ := got.Get("userId"); v != int64(42) {
		t.Errorf("userId = %v, want 42", v)
	}

	clock.Advance(time.Millisecond)
	removed, err := s.Reap(ctx, 0)
	if err != nil || removed != 1 {
		t.Fatalf("Reap(0) = (%d, %v), want (1, nil)", removed, err)
	}

	again, err := s.Fetch(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID == a.ID {
		t.Error("reaped session should not be fetched again")
	}
}

// ============================================================================
// Readiness and errors
// ============================================================================

// gatedConnector connects once release is closed.
type gatedConnector struct {
	release chan struct{}
	err     error
}

func (g *gatedConnector) Connect(ctx context.Context) (storage.Collection, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	return memory.New(), nil
}

func TestStore_WaitsForConnection(t *testing.T) {
	gate := &gatedConnector{release: make(chan struct{})}
	s := Open(context.Background(), gate)
	defer s.Close(context.Background())

	if s.Ready() {
		t.Fatal("store should not be ready before connecting")
	}

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Length(short); !errors.Is(err, domain.ErrNotReady) {
		t.Errorf("Length() before ready error = %v, want ErrNotReady", err)
	}

	result := make(chan error, 1)
	go func() {
		_, err := s.Generate(context.Background())
		result <- err
	}()

	close(gate.release)
	if err := <-result; err != nil {
		t.Fatalf("queued Generate() error = %v", err)
	}
	if !s.Ready() {
		t.Error("store should be ready after connecting")
	}
}

func TestStore_FailFast(t *testing.T) {
	gate := &gatedConnector{release: make(chan struct{})}
	s := Open(context.Background(), gate, WithFailFast(true))
	defer s.Close(context.Background())

	if _, err := s.Fetch(context.Background(), ""); !errors.Is(err, domain.ErrNotReady) {
		t.Errorf("Fetch() error = %v, want ErrNotReady", err)
	}

	close(gate.release)
	if err := s.WaitReady(context.Background()); err != nil {
		t.Fatalf("WaitReady() error = %v", err)
	}
	if _, err := s.Fetch(context.Background(), ""); err != nil {
		t.Errorf("Fetch() after ready error = %v", err)
	}
}

func TestStore_ConnectFailure(t *testing.T) {
	cause := errors.New("connection refused")
	gate := &gatedConnector{release: make(chan struct{}), err: cause}
	close(gate.release)

	s := Open(context.Background(), gate)
	defer s.Close(context.Background())

	err := s.WaitReady(context.Background())
	if !errors.Is(err, domain.ErrConnection) || !errors.Is(err, cause) {
		t.Fatalf("WaitReady() error = %v, want ErrConnection wrapping cause", err)
	}
	if _, err := s.Generate(context.Background()); !errors.Is(err, domain.ErrConnection) {
		t.Errorf("Generate() error = %v, want ErrConnection", err)
	}
	if s.Ready() {
		t.Error("failed store should not be ready")
	}
}

func TestStore_ConnectTimeout(t *testing.T) {
	gate := &gatedConnector{release: make(chan struct{})}
	s := Open(context.Background(), gate, WithConnectTimeout(10*time.Millisecond))
	defer s.Close(context.Background())

	err := s.WaitReady(context.Background())
	if !errors.Is(err, domain.ErrConnection) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitReady() error = %v, want ErrConnection wrapping DeadlineExceeded", err)
	}
}

func TestStore_OpenDetachedFromCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := Open(ctx, memory.Connector())
	cancel()
	defer s.Close(context.Background())

	if err := s.WaitReady(context.Background()); err != nil {
		t.Errorf("WaitReady() error = %v, cancelling the open ctx should not abort connecting", err)
	}
}

func TestStore_Close(t *testing.T) {
	s := Open(context.Background(), memory.Connector())
	ctx := context.Background()
	if _, err := s.Generate(ctx); err != nil {
		t.Fatal(err)
	}

	if err := s.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(ctx); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if s.Ready() {
		t.Error("closed store should not be ready")
	}
	if _, err := s.Length(ctx); !errors.Is(err, domain.ErrConnection) {
		t.Errorf("Length() after Close error = %v, want ErrConnection", err)
	}
}

func TestStore_ClosePendingConnect(t *testing.T) {
	gate := &gatedConnector{release: make(chan struct{})}
	s := Open(context.Background(), gate)

	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := s.Length(context.Background()); !errors.Is(err, domain.ErrConnection) {
		t.Errorf("Length() error = %v, want ErrConnection", err)
	}
}

// failingCollection fails every count and remove.
type failingCollection struct {
	*memory.Collection
	err error
}

func (f *failingCollection) Count(context.Context, storage.Filter) (int64, error) {
	return 0, f.err
}

func (f *failingCollection) Remove(context.Context, storage.Filter) (int64, error) {
	return 0, f.err
}

func (f *failingCollection) FindOne(context.Context, storage.Filter) (*domain.Document, error) {
	return nil, f.err
}

func TestStore_StorageErrors(t *testing.T) {
	cause := errors.New("disk on fire")
	s := OpenCollection(&failingCollection{Collection: memory.New(), err: cause})
	defer s.Close(context.Background())
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["Length"] = s.Length(ctx)
	_, checks["Clear"] = s.Clear(ctx)
	_, checks["Reap"] = s.Reap(ctx, time.Hour)
	_, checks["Fetch"] = s.Fetch(ctx, storage.NewID())
	checks["Destroy"] = s.Destroy(ctx, storage.NewID())

	for op, err := range checks {
		if !errors.Is(err, domain.ErrStorage) || !errors.Is(err, cause) {
			t.Errorf("%s() error = %v, want ErrStorage wrapping cause", op, err)
		}
	}

	// The store stays usable after failures.
	if _, err := s.Generate(ctx); err != nil {
		t.Errorf("Generate() after failures error = %v", err)
	}
}

func TestStore_ClosedCollection(t *testing.T) {
	coll := memory.New()
	s := OpenCollection(coll)
	coll.Close(context.Background())

	if _, err := s.Length(context.Background()); !errors.Is(err, domain.ErrConnection) {
		t.Errorf("Length() error = %v, want ErrConnection", err)
	}
}

func TestStore_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestStore(t, WithMetrics(metric.NewStoreMetrics(reg)))
	ctx := context.Background()

	s.Generate(ctx)
	s.Length(ctx)
	s.Commit(ctx, &domain.Session{})

	if got := metricValue(t, reg, "sessiondb_store_ready"); got != 1 {
		t.Errorf("ready = %v, want 1", got)
	}
	n, err := testutil.GatherAndCount(reg, "sessiondb_store_operations_total")
	if err != nil {
		t.Fatal(err)
	}
	// generate/ok, length/ok, commit/error
	if n != 3 {
		t.Errorf("operations series = %d, want 3", n)
	}
}

func metricValue(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := g.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var sum float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			}
		}
		return sum
	}
	t.Fatalf("metric %s not found", name)
	return 0
}
