package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/prostopil/patchwatch/internal/logging"
	"github.com/prostopil/patchwatch/internal/mapping"
	"github.com/prostopil/patchwatch/internal/model"
	"github.com/prostopil/patchwatch/internal/watch"
)

// maxScanResults bounds the per-file tail carried in a scan report.
const maxScanResults = 100

// ScanResult records the outcome for one file touched by a rescan.
type ScanResult struct {
	Target string `json:"target"`
	Action string `json:"action"`
	Error  string `json:"error,omitempty"`
}

// ScanReport summarizes a full rescan.
type ScanReport struct {
	Scanned  int           `json:"scanned"`
	Synced   int           `json:"synced"`
	Deleted  int           `json:"deleted"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Results  []ScanResult  `json:"results,omitempty"`
}

// Rescan walks the whole watch root, diffs it against the last-synced
// snapshot, and dispatches the resulting intents synchronously. The
// debounce window is skipped: a full rescan assumes the tree is
// already quiet. With force set, every mapped file is re-committed
// even when its content is unchanged. The optional progress callback
// receives (done, total) as files are classified.
func (o *Orchestrator) Rescan(ctx context.Context, force bool, progress func(done, total int)) (*ScanReport, error) {
	defer logging.Timer("rescan")()
	started := time.Now()

	files, err := o.collectFiles()
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", o.opts.Root, err)
	}

	cfg := o.store.Snapshot()
	report := &ScanReport{Scanned: len(files)}
	seen := make(map[string]bool, len(files))

	for i, path := range files {
		o.scanFile(cfg.Rules, path, force, seen, report)
		if progress != nil {
			progress(i+1, len(files))
		}
	}

	// Snapshot entries whose files are gone from the tree become
	// delete intents. "Not seen" is not enough: the walk also skips
	// files that lost their mapping rule or failed to hash, and those
	// still exist locally. Only a source that is verifiably absent may
	// remove its remote copy.
	for _, entry := range o.snap.Entries() {
		if seen[entry.TargetPath] {
			continue
		}
		if _, err := os.Stat(entry.SourcePath); !errors.Is(err, fs.ErrNotExist) {
			logging.Debug("source still present, keeping remote copy",
				logging.Path(entry.SourcePath), logging.Target(entry.TargetPath))
			continue
		}
		o.queue.Put(model.Intent{
			Kind:       model.KindDelete,
			SourcePath: entry.SourcePath,
			TargetPath: entry.TargetPath,
			DetectedAt: time.Now(),
		})
	}

	for _, out := range o.dispatch(ctx, force) {
		switch {
		case out.err != nil:
			report.Failed++
			report.add(ScanResult{
				Target: out.intent.TargetPath,
				Action: "failed",
				Error:  out.err.Error(),
			})
		case out.action == actionCommitted:
			report.Synced++
			if info, err := os.Stat(out.intent.SourcePath); err == nil {
				report.Bytes += info.Size()
			}
			report.add(ScanResult{Target: out.intent.TargetPath, Action: string(out.intent.Kind)})
		case out.action == actionDeleted:
			report.Deleted++
			report.add(ScanResult{Target: out.intent.TargetPath, Action: "delete"})
		case out.action == actionSkipped:
			report.Skipped++
		}
	}

	report.Duration = time.Since(started)
	logging.Info("rescan completed",
		logging.Count(report.Scanned),
		slog.Int("synced", report.Synced),
		slog.Int("deleted", report.Deleted),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Duration(logging.KeyDuration, report.Duration),
	)
	return report, nil
}

// collectFiles gathers every regular file under the watch root.
func (o *Orchestrator) collectFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(o.opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// scanFile classifies one file from a rescan walk and enqueues the
// resulting intent. Unmapped and malformed paths count as skipped;
// unchanged files are skipped unless force is set.
func (o *Orchestrator) scanFile(rules *mapping.RuleSet, path string, force bool, seen map[string]bool, report *ScanReport) {
	ev := watch.RawEvent{Path: path, Op: watch.OpWrite, At: time.Now()}
	in, err := watch.Classify(o.opts.Root, rules, o.snap, ev)
	switch {
	case errors.Is(err, watch.ErrIgnored):
		report.Skipped++
		return
	case errors.Is(err, mapping.ErrNoMapping):
		report.Skipped++
		logging.Warn("no mapping rule matches, skipping", logging.Path(path))
		return
	case err != nil:
		report.Failed++
		report.add(ScanResult{Target: path, Action: "failed", Error: err.Error()})
		return
	}

	seen[in.TargetPath] = true

	if !force {
		if prev, ok := o.snap.Get(in.TargetPath); ok && prev.Hash == in.ContentHash {
			report.Skipped++
			return
		}
	}
	o.queue.Put(in)
}

func (r *ScanReport) add(res ScanResult) {
	if len(r.Results) >= maxScanResults {
		return
	}
	r.Results = append(r.Results, res)
}
