package ids

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

// NewGUID returns a time-sortable ULID identifying a participant, a
// publication or a written sample.
func NewGUID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// CreatedAt extracts the creation time embedded in a GUID.
func CreatedAt(guid string) (time.Time, error) {
	id, err := ulid.Parse(guid)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(id.Time()), nil
}
