package engine

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prostopil/patchwatch/internal/config"
	"github.com/prostopil/patchwatch/internal/fsutil"
	"github.com/prostopil/patchwatch/internal/logging"
	"github.com/prostopil/patchwatch/internal/mapping"
	"github.com/prostopil/patchwatch/internal/model"
	"github.com/prostopil/patchwatch/internal/policy"
	"github.com/prostopil/patchwatch/internal/remote"
	"github.com/prostopil/patchwatch/internal/state"
	"github.com/prostopil/patchwatch/internal/watch"
)

// Transport pushes resolved intents to the remote repository. Both
// operations must be idempotent: committing identical content, or
// deleting an already-absent file, succeeds without effect.
type Transport interface {
	CommitFile(ctx context.Context, targetPath string, content []byte, message string) error
	DeleteFile(ctx context.Context, targetPath string, message string) error
}

// Options configures the orchestrator.
type Options struct {
	// Root is the watched drop-folder tree.
	Root string

	// StatePath locates the persisted last-synced snapshot.
	StatePath string

	// MirrorDir, when set, keeps a local plain-file copy of everything
	// synced.
	MirrorDir string

	// QuietWindow is how long a file must be write-quiet before its
	// event is classified.
	QuietWindow time.Duration

	// DispatchInterval is how often queued intents are dispatched
	// while monitoring (default: 2s).
	DispatchInterval time.Duration

	// Workers bounds concurrent dispatch of distinct target paths.
	Workers int

	// MaxRetries bounds transient-failure retries per intent before it
	// is dropped as a standing failure.
	MaxRetries int

	// RemoteURL is reported in status, nothing more.
	RemoteURL string

	Store     *config.Store
	Transport Transport
}

// Status is the externally visible state of the orchestrator.
type Status struct {
	Status     string    `json:"status"`
	Monitoring bool      `json:"monitoring"`
	LastEvent  time.Time `json:"last_event"`
	Pending    int       `json:"pending"`
	Processed  int       `json:"processed"`
	Failures   int       `json:"failures"`
	WatchRoot  string    `json:"watch_root"`
	RemoteURL  string    `json:"remote_url"`
}

// Orchestrator owns the pending queue and the last-synced snapshot and
// runs the detection, classification, decision and dispatch pipeline.
type Orchestrator struct {
	opts      Options
	store     *config.Store
	transport Transport
	snap      *state.Snapshot
	queue     *pendingQueue

	// dispatchMu serializes dispatch cycles so no two attempts for the
	// same target path are ever in flight concurrently. The retry
	// bookkeeping is guarded by it too.
	dispatchMu sync.Mutex
	attempts   map[string]int

	mu         sync.Mutex
	monitoring bool
	lastEvent  time.Time
	processed  int
	failures   int
	fatalErr   error
	confirmed  map[string]bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// New builds an orchestrator around an existing configuration store and
// transport, loading the persisted snapshot from opts.StatePath.
func New(opts Options) (*Orchestrator, error) {
	if opts.Root == "" {
		return nil, errors.New("engine: watch root is required")
	}
	if opts.Store == nil {
		return nil, errors.New("engine: configuration store is required")
	}
	if opts.Transport == nil {
		return nil, errors.New("engine: transport is required")
	}
	if opts.DispatchInterval <= 0 {
		opts.DispatchInterval = 2 * time.Second
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}

	snap, err := state.Load(opts.StatePath)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	logging.Debug("loaded snapshot",
		logging.Path(opts.StatePath),
		logging.Count(snap.Len()),
	)

	return &Orchestrator{
		opts:      opts,
		store:     opts.Store,
		transport: opts.Transport,
		snap:      snap,
		queue:     newPendingQueue(),
		attempts:  make(map[string]int),
		confirmed: make(map[string]bool),
	}, nil
}

// Start begins monitoring the watch root. It is an error to start an
// orchestrator that is already monitoring.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.monitoring {
		return errors.New("engine: already monitoring")
	}

	w, err := watch.NewWatcher(o.opts.Root, o.opts.QuietWindow)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})
	o.monitoring = true
	o.fatalErr = nil

	go func() {
		if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("watcher terminated", logging.Err(err))
		}
	}()
	go o.loop(ctx, w)

	logging.Info("monitoring started",
		logging.Path(o.opts.Root),
		slog.Duration("quiet_window", o.opts.QuietWindow),
	)
	return nil
}

// Stop drains the orchestrator: detection stops, the in-flight
// dispatch cycle completes, and queued-but-undispatched intents are
// discarded. Stopping an idle orchestrator is a no-op.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.monitoring {
		o.mu.Unlock()
		return
	}
	cancel, done := o.cancel, o.done
	o.mu.Unlock()

	cancel()
	<-done

	o.mu.Lock()
	o.monitoring = false
	o.cancel = nil
	o.done = nil
	o.mu.Unlock()

	if n := o.queue.Clear(); n > 0 {
		logging.Info("discarded pending intents on stop", logging.Count(n))
	}
	logging.Info("monitoring stopped")
}

// loop is the single consumer of watcher events and the single writer
// of the pending queue while monitoring.
func (o *Orchestrator) loop(ctx context.Context, w *watch.Watcher) {
	defer close(o.done)

	ticker := time.NewTicker(o.opts.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.Events():
			o.observe(ev)
		case <-ticker.C:
			o.dispatch(ctx, false)
		}
	}
}

// observe classifies one raw event and enqueues the resulting intent.
func (o *Orchestrator) observe(ev watch.RawEvent) {
	o.mu.Lock()
	o.lastEvent = ev.At
	o.mu.Unlock()

	cfg := o.store.Snapshot()
	in, err := watch.Classify(o.opts.Root, cfg.Rules, o.snap, ev)
	switch {
	case errors.Is(err, watch.ErrIgnored):
		logging.Debug("event ignored", logging.Path(ev.Path), logging.Err(err))
		return
	case errors.Is(err, mapping.ErrNoMapping):
		// Never guess a path: skip the file and say so.
		logging.Warn("no mapping rule matches, skipping",
			logging.Path(ev.Path),
			logging.Err(err),
		)
		return
	case err != nil:
		logging.Warn("classification failed", logging.Path(ev.Path), logging.Err(err))
		return
	}

	replaced := o.queue.Put(in)
	logging.Info("intent queued",
		logging.Kind(string(in.Kind)),
		logging.Path(in.SourcePath),
		logging.Target(in.TargetPath),
		slog.Bool("superseded_earlier", replaced),
	)
}

type dispatchAction int

const (
	actionCommitted dispatchAction = iota + 1
	actionDeleted
	actionSkipped
)

type outcome struct {
	intent model.Intent
	action dispatchAction
	err    error
}

// dispatch decides and dispatches every currently queued intent
// against one consistent snapshot of policy and rules. Distinct target
// paths fan out across a bounded worker pool; queue mutation stays
// with this single caller. With force set, unchanged content is
// re-committed instead of skipped.
func (o *Orchestrator) dispatch(ctx context.Context, force bool) []outcome {
	o.dispatchMu.Lock()
	defer o.dispatchMu.Unlock()

	items := o.queue.Items()
	if len(items) == 0 {
		return nil
	}

	cfg := o.store.Snapshot()

	var execute []model.Intent
	for _, in := range items {
		switch policy.Decide(in, cfg.Policy) {
		case policy.Execute:
			execute = append(execute, in)
		case policy.RequireConfirmation:
			if cfg.Policy.AutoConfirm || o.takeConfirmation(in.TargetPath) {
				execute = append(execute, in)
				continue
			}
			logging.Debug("intent awaiting confirmation",
				logging.Kind(string(in.Kind)),
				logging.Target(in.TargetPath),
			)
		case policy.Suppress:
			o.queue.Resolve(in)
			logging.Warn("intent suppressed",
				logging.Kind(string(in.Kind)),
				logging.Target(in.TargetPath),
			)
		}
	}
	if len(execute) == 0 {
		return nil
	}

	defer logging.Timer("dispatch")()

	outcomes := make([]outcome, len(execute))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)
	for i, in := range execute {
		g.Go(func() error {
			action, err := o.dispatchOne(gctx, in, force)
			outcomes[i] = outcome{intent: in, action: action, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var synced bool
	for _, out := range outcomes {
		target := out.intent.TargetPath
		if out.err == nil {
			o.queue.Resolve(out.intent)
			delete(o.attempts, target)
			if out.action != actionSkipped {
				synced = true
				o.mu.Lock()
				o.processed++
				o.mu.Unlock()
			}
			continue
		}

		if remote.IsTransient(out.err) {
			o.attempts[target]++
			if o.attempts[target] < o.opts.MaxRetries {
				logging.Warn("dispatch failed, will retry",
					logging.Target(target),
					slog.Int("attempt", o.attempts[target]),
					logging.Err(out.err),
				)
				continue
			}
		}

		// Permanent failure, or the retry budget is spent: drop the
		// intent and surface a standing failure.
		o.queue.Resolve(out.intent)
		delete(o.attempts, target)
		o.mu.Lock()
		o.failures++
		o.mu.Unlock()
		logging.Error("dispatch failed permanently",
			logging.Kind(string(out.intent.Kind)),
			logging.Target(target),
			logging.Err(out.err),
		)
	}

	if synced {
		if err := o.snap.Save(o.opts.StatePath); err != nil {
			logging.Error("failed to persist snapshot",
				logging.Path(o.opts.StatePath),
				logging.Err(err),
			)
		}
	}
	return outcomes
}

// dispatchOne pushes a single intent through the transport and updates
// the in-memory snapshot on success.
func (o *Orchestrator) dispatchOne(ctx context.Context, in model.Intent, force bool) (dispatchAction, error) {
	if in.Kind == model.KindDelete {
		if err := o.transport.DeleteFile(ctx, in.TargetPath, commitMessage(in)); err != nil {
			return 0, err
		}
		o.snap.Delete(in.TargetPath)
		if o.opts.MirrorDir != "" {
			if err := mirrorPrune(o.opts.MirrorDir, in.TargetPath); err != nil {
				logging.Warn("mirror prune failed", logging.Target(in.TargetPath), logging.Err(err))
			}
		}
		logging.Info("deleted from remote", logging.Target(in.TargetPath))
		return actionDeleted, nil
	}

	text, err := fsutil.ReadFileText(in.SourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Vanished after classification; the remove event follows.
			logging.Debug("source vanished before dispatch", logging.Path(in.SourcePath))
			return actionSkipped, nil
		}
		return 0, fmt.Errorf("read %s: %w", in.SourcePath, err)
	}
	content := []byte(text)

	// The fingerprint is taken over the raw file bytes, matching what
	// classification and rescan compare against.
	hash := in.ContentHash
	if hash == "" {
		if hash, err = fsutil.HashFile(in.SourcePath); err != nil {
			return 0, fmt.Errorf("hash %s: %w", in.SourcePath, err)
		}
	}

	if prev, ok := o.snap.Get(in.TargetPath); !force && ok && prev.Hash == hash {
		logging.Debug("content unchanged, skipping commit", logging.Target(in.TargetPath))
		return actionSkipped, nil
	}

	if err := o.transport.CommitFile(ctx, in.TargetPath, content, commitMessage(in)); err != nil {
		return 0, err
	}
	o.snap.Put(state.Entry{
		TargetPath: in.TargetPath,
		SourcePath: in.SourcePath,
		Hash:       hash,
		SyncedAt:   time.Now().UTC(),
	})
	if o.opts.MirrorDir != "" {
		if err := mirrorWrite(o.opts.MirrorDir, in.TargetPath, content); err != nil {
			logging.Warn("mirror write failed", logging.Target(in.TargetPath), logging.Err(err))
		}
	}
	logging.Info("committed to remote",
		logging.Kind(string(in.Kind)),
		logging.Target(in.TargetPath),
	)
	return actionCommitted, nil
}

// takeConfirmation consumes an operator approval for target, if one
// was recorded.
func (o *Orchestrator) takeConfirmation(target string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.confirmed[target] {
		delete(o.confirmed, target)
		return true
	}
	return false
}

// Confirm approves queued intents for dispatch on the next cycle. With
// no arguments it approves everything currently pending. It returns
// how many approvals were recorded.
func (o *Orchestrator) Confirm(targets ...string) int {
	if len(targets) == 0 {
		for _, in := range o.queue.Items() {
			targets = append(targets, in.TargetPath)
		}
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range targets {
		o.confirmed[t] = true
	}
	return len(targets)
}

// Pending returns the queued intents in detection order.
func (o *Orchestrator) Pending() []model.Intent {
	return o.queue.Items()
}

// ReplaceConfig atomically swaps the automation policy and mapping
// rules. A rejected replacement halts monitoring and is surfaced as a
// fatal configuration error in status until a valid one arrives.
func (o *Orchestrator) ReplaceConfig(p policy.Policy, rules []mapping.Rule) error {
	if err := o.store.Replace(p, rules); err != nil {
		o.mu.Lock()
		o.fatalErr = err
		o.mu.Unlock()
		o.Stop()
		return err
	}
	o.mu.Lock()
	o.fatalErr = nil
	o.mu.Unlock()
	logging.Info("configuration replaced", logging.Count(len(rules)))
	return nil
}

// Status reports the orchestrator's externally visible state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := Status{
		Monitoring: o.monitoring,
		LastEvent:  o.lastEvent,
		Pending:    o.queue.Len(),
		Processed:  o.processed,
		Failures:   o.failures,
		WatchRoot:  o.opts.Root,
		RemoteURL:  o.opts.RemoteURL,
	}
	switch {
	case o.fatalErr != nil:
		st.Status = "config-error"
	case o.monitoring:
		st.Status = "watching"
	default:
		st.Status = "stopped"
	}
	return st
}
