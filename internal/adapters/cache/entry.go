package cache

import (
	"fmt"
	"time"

	"github.com/okian/draftboard/internal/domain/model"
)

// SchemaVersion is stamped on every record. Records with another version are
// discarded on read.
const SchemaVersion = 2

// Key identifies one cache slot.
type Key struct {
	Group  model.Group  `json:"group"`
	Format model.Format `json:"format"`
}

func (k Key) String() string {
	return fmt.Sprintf("%s_%s", k.Group, k.Format)
}

// Entry is one timestamped snapshot for a key. It is also the on-disk record.
type Entry struct {
	Data      []model.Player `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
	Expiry    time.Time      `json:"expiry"`
	Source    model.Source   `json:"source"`
	Version   int            `json:"version"`
	Group     model.Group    `json:"group"`
	Format    model.Format   `json:"format"`
}

// Key returns the slot the entry belongs to.
func (e *Entry) Key() Key {
	return Key{Group: e.Group, Format: e.Format}
}

// Age returns how old the entry is at now.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Writes    int64 `json:"writes"`
	Failures  int64 `json:"writeFailures"`
}
