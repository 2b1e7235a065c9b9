// Package storagetest provides a conformance suite for storage.Collection
// implementations.
package storagetest

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/yndnr/sessiondb/internal/core/domain"
	"github.com/yndnr/sessiondb/internal/storage"
)

// OpenFunc returns an empty collection. The suite closes it.
type OpenFunc func(t *testing.T) storage.Collection

// Run exercises the Collection contract against collections from open.
func Run(t *testing.T, open OpenFunc) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, c storage.Collection)
	}{
		{"InsertFind", testInsertFind},
		{"InsertUniqueIDs", testInsertUniqueIDs},
		{"FindMissing", testFindMissing},
		{"InvalidID", testInvalidID},
		{"FilterRequired", testFilterRequired},
		{"SaveReplaces", testSaveReplaces},
		{"SaveUpserts", testSaveUpserts},
		{"SaveMovesLastAccess", testSaveMovesLastAccess},
		{"RemoveByID", testRemoveByID},
		{"RemoveAccessedBefore", testRemoveAccessedBefore},
		{"RemoveAll", testRemoveAll},
		{"CountFilters", testCountFilters},
		{"Closed", testClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := open(t)
			if tt.name != "Closed" {
				t.Cleanup(func() { _ = c.Close(context.Background()) })
			}
			tt.fn(t, c)
		})
	}
}

func sampleFields() map[string]any {
	return map[string]any{
		"userId":  int64(42),
		"name":    "alice",
		"admin":   true,
		"score":   2.5,
		"ratio":   float64(42),
		"missing": nil,
		"roles":   []any{"reader", "writer"},
		"profile": map[string]any{"age": int64(30), "tags": []any{int64(1), "x"}},
	}
}

func mustInsert(t *testing.T, c storage.Collection, lastAccess int64, fields map[string]any) string {
	t.Helper()
	id, err := c.Insert(context.Background(), &domain.Document{LastAccess: lastAccess, Fields: fields})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if id == "" {
		t.Fatal("Insert() returned empty id")
	}
	return id
}

// freeID returns an id the backend can decode but does not hold.
func freeID(t *testing.T, c storage.Collection) string {
	t.Helper()
	id := mustInsert(t, c, 1, nil)
	if _, err := c.Remove(context.Background(), storage.ByID(id)); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	return id
}

func mustCount(t *testing.T, c storage.Collection, f storage.Filter) int64 {
	t.Helper()
	n, err := c.Count(context.Background(), f)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	return n
}

func testInsertFind(t *testing.T, c storage.Collection) {
	ctx := context.Background()
	id := mustInsert(t, c, 1_700_000_000_000, sampleFields())

	doc, err := c.FindOne(ctx, storage.ByID(id))
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if doc.ID != id {
		t.Errorf("ID = %q, want %q", doc.ID, id)
	}
	if doc.LastAccess != 1_700_000_000_000 {
		t.Errorf("LastAccess = %d", doc.LastAccess)
	}
	if !reflect.DeepEqual(doc.Fields, sampleFields()) {
		t.Errorf("Fields = %#v, want %#v", doc.Fields, sampleFields())
	}
}

func testInsertUniqueIDs(t *testing.T, c storage.Collection) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := mustInsert(t, c, int64(i), nil)
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
	if n := mustCount(t, c, storage.Filter{}); n != 50 {
		t.Errorf("Count() = %d, want 50", n)
	}
}

func testFindMissing(t *testing.T, c storage.Collection) {
	id := freeID(t, c)
	_, err := c.FindOne(context.Background(), storage.ByID(id))
	if !errors.Is(err, storage.ErrNoDocument) {
		t.Errorf("FindOne() error = %v, want ErrNoDocument", err)
	}
}

func testInvalidID(t *testing.T, c storage.Collection) {
	ctx := context.Background()
	const bad = "not a valid id"

	if _, err := c.FindOne(ctx, storage.ByID(bad)); !errors.Is(err, storage.ErrInvalidID) {
		t.Errorf("FindOne() error = %v, want ErrInvalidID", err)
	}
	if err := c.Save(ctx, &domain.Document{ID: bad}); !errors.Is(err, storage.ErrInvalidID) {
		t.Errorf("Save() error = %v, want ErrInvalidID", err)
	}
	if _, err := c.Remove(ctx, storage.ByID(bad)); !errors.Is(err, storage.ErrInvalidID) {
		t.Errorf("Remove() error = %v, want ErrInvalidID", err)
	}
}

func testFilterRequired(t *testing.T, c storage.Collection) {
	_, err := c.FindOne(context.Background(), storage.Filter{})
	if !errors.Is(err, storage.ErrFilterRequired) {
		t.Errorf("FindOne() error = %v, want ErrFilterRequired", err)
	}
}

func testSaveReplaces(t *testing.T, c storage.Collection) {
	ctx := context.Background()
	id := mustInsert(t, c, 10, map[string]any{"old": "value", "keep": int64(1)})

	replacement := map[string]any{"keep": int64(2), "new": "field"}
	if err := c.Save(ctx, &domain.Document{ID: id, LastAccess: 20, Fields: replacement}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	doc, err := c.FindOne(ctx, storage.ByID(id))
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if doc.LastAccess != 20 {
		t.Errorf("LastAccess = %d, want 20", doc.LastAccess)
	}
	if !reflect.DeepEqual(doc.Fields, replacement) {
		t.Errorf("Fields = %#v, want %#v", doc.Fields, replacement)
	}
	if n := mustCount(t, c, storage.Filter{}); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func testSaveUpserts(t *testing.T, c storage.Collection) {
	ctx := context.Background()
	id := freeID(t, c)

	if err := c.Save(ctx, &domain.Document{ID: id, LastAccess: 5, Fields: map[string]any{"a": "b"}}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	doc, err := c.FindOne(ctx, storage.ByID(id))
	if err != nil {
		t.Fatalf("FindOne() error = %v", err)
	}
	if doc.Fields["a"] != "b" {
		t.Errorf("Fields = %#v", doc.Fields)
	}
}

func testSaveMovesLastAccess(t *testing.T, c storage.Collection) {
	ctx := context.Background()
	id := mustInsert(t, c, 100, nil)

	if err := c.Save(ctx, &domain.Document{ID: id, LastAccess: 500}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	n, err := c.Remove(ctx, storage.AccessedBefore(200))
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Remove(before 200) = %d, want 0 after touch", n)
	}
	if got := mustCount(t, c, storage.AccessedBefore(501)); got != 1 {
		t.Errorf("Count(before 501) = %d, want 1", got)
	}
}

func testRemoveByID(t *testing.T, c storage.Collection) {
	ctx := context.Background()
	id := mustInsert(t, c, 1, nil)
	other := mustInsert(t, c, 1, nil)

	n, err := c.Remove(ctx, storage.ByID(id))
	if err != nil || n != 1 {
		t.Fatalf("Remove() = (%d, %v), want (1, nil)", n, err)
	}
	n, err = c.Remove(ctx, storage.ByID(id))
	if err != nil || n != 0 {
		t.Fatalf("second Remove() = (%d, %v), want (0, nil)", n, err)
	}
	if _, err := c.FindOne(ctx, storage.ByID(other)); err != nil {
		t.Errorf("unrelated document should survive, FindOne() error = %v", err)
	}
}

func testRemoveAccessedBefore(t *testing.T, c storage.Collection) {
	ctx := context.Background()
	oldID := mustInsert(t, c, 100, nil)
	edgeID := mustInsert(t, c, 200, nil)
	newID := mustInsert(t, c, 300, nil)

	n, err := c.Remove(ctx, storage.AccessedBefore(200))
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Remove(before 200) = %d, want 1", n)
	}

	if _, err := c.FindOne(ctx, storage.ByID(oldID)); !errors.Is(err, storage.ErrNoDocument) {
		t.Errorf("old document should be removed, FindOne() error = %v", err)
	}
	for _, id := range []string{edgeID, newID} {
		if _, err := c.FindOne(ctx, storage.ByID(id)); err != nil {
			t.Errorf("document %s should survive, FindOne() error = %v", id, err)
		}
	}
}

func testRemoveAll(t *testing.T, c storage.Collection) {
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		mustInsert(t, c, int64(i), map[string]any{"i": int64(i)})
	}

	n, err := c.Remove(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if n != 25 {
		t.Errorf("Remove(all) = %d, want 25", n)
	}
	if got := mustCount(t, c, storage.Filter{}); got != 0 {
		t.Errorf("Count() = %d, want 0", got)
	}

	n, err = c.Remove(ctx, storage.Filter{})
	if err != nil || n != 0 {
		t.Errorf("Remove(empty) = (%d, %v), want (0, nil)", n, err)
	}
}

func testCountFilters(t *testing.T, c storage.Collection) {
	id := mustInsert(t, c, 100, nil)
	mustInsert(t, c, 200, nil)
	mustInsert(t, c, 300, nil)

	tests := []struct {
		name   string
		filter storage.Filter
		want   int64
	}{
		{"all", storage.Filter{}, 3},
		{"before 100", storage.AccessedBefore(100), 0},
		{"before 201", storage.AccessedBefore(201), 2},
		{"by id", storage.ByID(id), 1},
		{"by id and old", storage.Filter{ID: id, LastAccessBefore: ptr(101)}, 1},
		{"by id and too old", storage.Filter{ID: id, LastAccessBefore: ptr(100)}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := mustCount(t, c, tt.filter); got != tt.want {
				t.Errorf("Count() = %d, want %d", got, tt.want)
			}
		})
	}
}

func testClosed(t *testing.T, c storage.Collection) {
	ctx := context.Background()
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, err := c.Insert(ctx, &domain.Document{}); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Insert() after Close error = %v, want ErrClosed", err)
	}
	if _, err := c.Count(ctx, storage.Filter{}); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("Count() after Close error = %v, want ErrClosed", err)
	}
}

func ptr(v int64) *int64 { return &v }
