// Package model defines the core domain types shared across the
// patchwatch pipeline: sync intents and their kinds.
package model

import (
	"fmt"
	"time"
)

// Kind identifies the synchronization action an intent represents.
type Kind string

const (
	// KindCreate indicates the file is new on the remote.
	KindCreate Kind = "create"

	// KindUpdate indicates the file already exists on the remote.
	KindUpdate Kind = "update"

	// KindDelete indicates the file was removed locally.
	KindDelete Kind = "delete"
)

// IsValid returns true for a recognized intent kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindCreate, KindUpdate, KindDelete:
		return true
	}
	return false
}

// Intent is a pending, not-yet-dispatched synchronization action.
// Intents are created by the classifier, coalesced per target path in the
// pending queue, and destroyed once dispatched or suppressed. They are
// never persisted; a full rescan reconstructs the queue deterministically.
type Intent struct {
	// Kind is the action to perform on the remote.
	Kind Kind

	// SourcePath is the absolute local path the intent was derived from.
	SourcePath string

	// TargetPath is the repository-relative path, including the fixed
	// data/ prefix.
	TargetPath string

	// DateFolder is the YYYYMMDD drop-folder segment the file arrived in.
	DateFolder string

	// DetectedAt records when the underlying event was classified.
	DetectedAt time.Time

	// ContentHash fingerprints the file content at classification time.
	// Empty for delete intents.
	ContentHash string
}

// String renders the intent for logs and prompts.
func (in Intent) String() string {
	return fmt.Sprintf("%s %s", in.Kind, in.TargetPath)
}
