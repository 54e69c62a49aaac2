// Package ids issues identifiers for completion log entries and requests.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// NewEntryID returns a ULID for at. Entries created in the same
// millisecond still sort in creation order.
func NewEntryID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// NewRequestID returns a random UUID string.
func NewRequestID() string {
	return uuid.NewString()
}
