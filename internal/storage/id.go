package storage

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// NewID returns a new ULID document id in its 26-character string form.
// Ids are lexicographically sortable by creation time.
func NewID() string {
	return ulid.Make().String()
}

// ParseID decodes a ULID document id. Returns ErrInvalidID on failure.
func ParseID(id string) (ulid.ULID, error) {
	u, err := ulid.ParseStrict(id)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return u, nil
}
