package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewSortableID returns a ULID stamped with t. IDs generated for the same
// millisecond are strictly increasing. Times outside the range a ULID can
// encode are clamped to the Unix epoch or to ulid.MaxTime.
func NewSortableID(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id, err := ulid.New(timestamp(t), entropy)
	if err != nil {
		// Monotonic entropy overflowed within one millisecond.
		return ulid.Make().String()
	}
	return id.String()
}

func timestamp(t time.Time) uint64 {
	if t.Before(time.UnixMilli(0)) {
		return 0
	}
	if ms := ulid.Timestamp(t); ms <= ulid.MaxTime() {
		return ms
	}
	return ulid.MaxTime()
}
