// Package idgen wraps uuid generation so domain packages depend on a
// narrow interface instead of importing google/uuid directly.
package idgen

import "github.com/google/uuid"

// Generator produces identifiers for new entities.
type Generator interface {
	New() string
}

// UUID generates RFC 4122 v4 identifiers.
type UUID struct{}

func (UUID) New() string { return uuid.NewString() }

// Default is the generator used when callers don't need a fake.
var Default Generator = UUID{}
