// Package watch observes the configured watch root and turns raw
// filesystem events into normalized sync intents. The watcher produces a
// debounced event stream; the classifier is a pure function from
// (snapshot, event) to an intent.
package watch

import "time"

// Op is the normalized filesystem operation.
type Op int

const (
	// OpWrite covers file creation and modification. Create versus
	// update is decided later against the last-synced snapshot, not
	// from the raw event.
	OpWrite Op = iota + 1

	// OpRemove covers deletion and rename-away.
	OpRemove
)

// String implements fmt.Stringer.
func (op Op) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	}
	return "unknown"
}

// RawEvent is a debounced, normalized filesystem event.
type RawEvent struct {
	// Path is the absolute local path the event refers to.
	Path string
	// Op is the normalized operation.
	Op Op
	// At is when the event became stable (after the quiet window for
	// writes, immediately for removes).
	At time.Time
}
