package watch

import (
	"fmt"
	"os"

	"github.com/prostopil/patchwatch/internal/fsutil"
	"github.com/prostopil/patchwatch/internal/mapping"
	"github.com/prostopil/patchwatch/internal/model"
)

// SyncedSet is the view of the last-synced snapshot the classifier
// needs: whether a target path has been pushed before.
type SyncedSet interface {
	Has(target string) bool
}

// Classify turns a normalized event into a sync intent, or reports why
// it produced none. It is pure over the snapshot and rule set it is
// given and safe for concurrent use.
//
// Returned errors are either ErrIgnored (irrelevant event, drop
// silently), mapping.ErrNoMapping (skip and log, never guess a path),
// or a real I/O failure reading the file.
func Classify(root string, rules *mapping.RuleSet, synced SyncedSet, ev RawEvent) (model.Intent, error) {
	dp, err := ParseDropPath(root, ev.Path)
	if err != nil {
		return model.Intent{}, err
	}

	if IsTransient(dp.Filename) {
		return model.Intent{}, fmt.Errorf("%w: transient artifact: %s", ErrIgnored, dp.Filename)
	}

	targetDir, err := rules.Resolve(dp.SourceDir)
	if err != nil {
		return model.Intent{}, err
	}
	target := mapping.RepoPath(targetDir, dp.Filename)

	in := model.Intent{
		SourcePath: ev.Path,
		TargetPath: target,
		DateFolder: dp.DateFolder,
		DetectedAt: ev.At,
	}

	switch ev.Op {
	case OpRemove:
		// Deletions only matter for files we have actually pushed.
		if !synced.Has(target) {
			return model.Intent{}, fmt.Errorf("%w: never synced: %s", ErrIgnored, target)
		}
		in.Kind = model.KindDelete
		return in, nil

	case OpWrite:
		info, err := os.Stat(ev.Path)
		if err != nil {
			// Vanished between debounce and classification; the remove
			// event will follow.
			return model.Intent{}, fmt.Errorf("%w: file vanished: %s", ErrIgnored, ev.Path)
		}
		if info.IsDir() {
			return model.Intent{}, fmt.Errorf("%w: directory event: %s", ErrIgnored, ev.Path)
		}

		hash, err := fsutil.HashFile(ev.Path)
		if err != nil {
			return model.Intent{}, fmt.Errorf("hash %s: %w", ev.Path, err)
		}
		in.ContentHash = hash

		if synced.Has(target) {
			in.Kind = model.KindUpdate
		} else {
			in.Kind = model.KindCreate
		}
		return in, nil
	}

	return model.Intent{}, fmt.Errorf("%w: unknown op %v", ErrIgnored, ev.Op)
}
