// Package clock provides the gateway's sources of time and identity.
// Components that need "now" or a fresh ID go through here instead of
// calling time.Now or uuid.New directly, so tests can substitute a fixed
// clock without reaching into component internals. The one exception is
// taskstore.Store.Evict, which calls time.Now itself.
package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts wall-clock time.
type Clock interface {
	Now() time.Time
}

// Real is the production Clock, backed by time.Now.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time { return time.Now() }

// NewID returns a fresh random identifier suitable for task IDs, context
// IDs, and message IDs.
func NewID() string {
	return uuid.NewString()
}

// Frozen is a Clock that always returns the same instant. Useful in tests
// that assert on timestamps without sleeping or tolerating skew.
type Frozen struct {
	At time.Time
}

// Now returns the frozen instant.
func (f Frozen) Now() time.Time { return f.At }
