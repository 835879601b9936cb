// Package policy applies the operator's automation policy to pending
// sync intents.
package policy

import (
	"github.com/prostopil/patchwatch/internal/model"
)

// Policy holds the three independent automation axes. AutoSync and
// AutoDelete gate execution of create/update and delete intents;
// AutoConfirm removes the operator confirmation step for intents the
// gates did not pass. The axes compose, they are not a single flag.
type Policy struct {
	AutoConfirm bool `yaml:"auto_confirm" toml:"auto_confirm" json:"auto_confirm"`
	AutoSync    bool `yaml:"auto_sync" toml:"auto_sync" json:"auto_sync"`
	AutoDelete  bool `yaml:"auto_delete" toml:"auto_delete" json:"auto_delete"`
}

// Default returns the policy used for unattended operation: everything
// automatic.
func Default() Policy {
	return Policy{AutoConfirm: true, AutoSync: true, AutoDelete: true}
}

// Decision is the outcome of evaluating one intent against the policy.
type Decision int

const (
	// Execute dispatches the intent immediately.
	Execute Decision = iota

	// RequireConfirmation holds the intent until the operator approves
	// it. The orchestrator promotes it to Execute when AutoConfirm is
	// set.
	RequireConfirmation

	// Suppress drops the intent. Reserved for intents whose target path
	// never resolved; suppressed intents are logged, never queued for
	// confirmation.
	Suppress
)

// String implements fmt.Stringer for status output.
func (d Decision) String() string {
	switch d {
	case Execute:
		return "execute"
	case RequireConfirmation:
		return "require_confirmation"
	case Suppress:
		return "suppress"
	}
	return "unknown"
}

// Decide evaluates one intent against the policy. Each intent is judged
// independently at dispatch time; evaluation is pure and cannot fail.
func Decide(in model.Intent, p Policy) Decision {
	if in.TargetPath == "" {
		return Suppress
	}

	switch in.Kind {
	case model.KindDelete:
		if p.AutoDelete {
			return Execute
		}
	case model.KindCreate, model.KindUpdate:
		if p.AutoSync {
			return Execute
		}
	default:
		return Suppress
	}
	return RequireConfirmation
}
