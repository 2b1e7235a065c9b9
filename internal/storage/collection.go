package storage

import (
	"context"
	"errors"

	"github.com/yndnr/sessiondb/internal/core/domain"
)

// Common errors
var (
	// ErrNoDocument is returned by FindOne when nothing matches the filter.
	ErrNoDocument = errors.New("storage: no document")

	// ErrInvalidID is returned when an id cannot be decoded by the backend.
	ErrInvalidID = errors.New("storage: invalid document id")

	// ErrClosed is returned by operations on a closed collection.
	ErrClosed = errors.New("storage: collection closed")

	// ErrFilterRequired is returned by FindOne when the filter has no id.
	ErrFilterRequired = errors.New("storage: filter requires an id")
)

// Filter selects documents. Zero-valued fields are ignored; an empty Filter
// matches every document. Set fields are combined with AND.
type Filter struct {
	// ID matches the document with this identifier.
	ID string

	// LastAccessBefore matches documents whose lastAccess is strictly less
	// than the value (Unix milliseconds).
	LastAccessBefore *int64
}

// ByID returns a filter matching one document.
func ByID(id string) Filter {
	return Filter{ID: id}
}

// AccessedBefore returns a filter matching documents with lastAccess < ms.
func AccessedBefore(ms int64) Filter {
	return Filter{LastAccessBefore: &ms}
}

// IsEmpty reports whether the filter matches every document.
func (f Filter) IsEmpty() bool {
	return f.ID == "" && f.LastAccessBefore == nil
}

// Matches reports whether d satisfies the filter.
func (f Filter) Matches(d *domain.Document) bool {
	if f.ID != "" && d.ID != f.ID {
		return false
	}
	if f.LastAccessBefore != nil && d.LastAccess >= *f.LastAccessBefore {
		return false
	}
	return true
}

// Collection is a handle to a set of session documents.
//
// Implementations must be safe for concurrent use. Each call is a single
// backend operation; the collection adds no retries.
type Collection interface {
	// FindOne returns the document matching f.ID.
	// Returns ErrNoDocument when absent and ErrInvalidID when the id
	// cannot be decoded.
	FindOne(ctx context.Context, f Filter) (*domain.Document, error)

	// Insert stores a new document and returns its storage-assigned id.
	// d.ID is ignored.
	Insert(ctx context.Context, d *domain.Document) (string, error)

	// Save replaces the document with d.ID, creating it if absent.
	// Returns ErrInvalidID when d.ID cannot be decoded.
	Save(ctx context.Context, d *domain.Document) error

	// Remove deletes every document matching f and returns how many were
	// removed. Returns ErrInvalidID when f.ID cannot be decoded.
	Remove(ctx context.Context, f Filter) (int64, error)

	// Count returns the number of documents matching f.
	Count(ctx context.Context, f Filter) (int64, error)

	// Close releases the collection's resources.
	Close(ctx context.Context) error
}

// Connector opens a Collection. Connect may block until the backend is
// reachable or ctx is done.
type Connector interface {
	Connect(ctx context.Context) (Collection, error)
}

// ConnectorFunc adapts a function to the Connector interface.
type ConnectorFunc func(ctx context.Context) (Collection, error)

// Connect calls f(ctx).
func (f ConnectorFunc) Connect(ctx context.Context) (Collection, error) {
	return f(ctx)
}
