package metric

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStoreMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStoreMetrics(reg)

	m.ObserveOperation("fetch", nil, time.Millisecond)
	m.ObserveOperation("fetch", nil, time.Millisecond)
	m.ObserveOperation("commit", errors.New("boom"), time.Millisecond)
	m.AddReaped(3)
	m.AddReaped(0)
	m.IncRegenerated()
	m.SetReady(true)

	if got := testutil.ToFloat64(m.operations.WithLabelValues("fetch", ResultOK)); got != 2 {
		t.Errorf("fetch ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues("commit", ResultError)); got != 1 {
		t.Errorf("commit error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.reaped); got != 3 {
		t.Errorf("reaped = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.regenerated); got != 1 {
		t.Errorf("regenerated = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.ready); got != 1 {
		t.Errorf("ready = %v, want 1", got)
	}

	m.SetReady(false)
	if got := testutil.ToFloat64(m.ready); got != 0 {
		t.Errorf("ready = %v, want 0", got)
	}
}

func TestStoreMetrics_Nil(t *testing.T) {
	var m *StoreMetrics
	m.ObserveOperation("fetch", nil, time.Second)
	m.AddReaped(1)
	m.IncRegenerated()
	m.SetReady(true)
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.Store.ObserveOperation("length", nil, time.Millisecond)
	r.ObserveRequest("GET /health", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`sessiondb_store_operations_total{op="length",result="ok"} 1`,
		`sessiondb_http_requests_total{code="200",route="GET /health"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestSessionCollector(t *testing.T) {
	var fail bool
	c := NewSessionCollector(func(ctx context.Context) (int64, error) {
		if fail {
			return 0, errors.New("unreachable")
		}
		return 12, nil
	}, time.Second)

	reg := prometheus.NewRegistry()
	reg.MustRegister(c)

	expected := `
# HELP sessiondb_sessions Sessions currently stored
# TYPE sessiondb_sessions gauge
sessiondb_sessions 12
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "sessiondb_sessions"); err != nil {
		t.Errorf("GatherAndCompare() error = %v", err)
	}

	fail = true
	if n, err := testutil.GatherAndCount(reg, "sessiondb_sessions"); err != nil || n != 0 {
		t.Errorf("sessions series on failure = (%d, %v), want (0, nil)", n, err)
	}
	if got := testutil.ToFloat64(c.errors); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
}
