package engine

import (
	"sync"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/prostopil/patchwatch/internal/model"
)

// pendingQueue holds at most one live intent per target path, in
// detection order. A later intent for the same path coalesces into the
// earlier one's slot: the newest event wins, but the entry keeps its
// original queue position.
type pendingQueue struct {
	mu sync.Mutex
	m  *orderedmap.OrderedMap[string, model.Intent]
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{m: orderedmap.NewOrderedMap[string, model.Intent]()}
}

// Put enqueues an intent, superseding any live intent for the same
// target path. It reports whether an earlier intent was replaced.
func (q *pendingQueue) Put(in model.Intent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, replaced := q.m.Get(in.TargetPath)
	q.m.Set(in.TargetPath, in)
	return replaced
}

// Take removes and returns the intent for target, if one is queued.
func (q *pendingQueue) Take(target string) (model.Intent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	in, ok := q.m.Get(target)
	if ok {
		q.m.Delete(target)
	}
	return in, ok
}

// Resolve removes the queued intent for target only if it is still the
// same one that was handed out for dispatch. A fresher intent that
// arrived while dispatch was in flight stays queued.
func (q *pendingQueue) Resolve(in model.Intent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	cur, ok := q.m.Get(in.TargetPath)
	if ok && cur.DetectedAt.Equal(in.DetectedAt) && cur.Kind == in.Kind {
		q.m.Delete(in.TargetPath)
	}
}

// Items returns the queued intents in detection order.
func (q *pendingQueue) Items() []model.Intent {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.Intent, 0, q.m.Len())
	for el := q.m.Front(); el != nil; el = el.Next() {
		out = append(out, el.Value)
	}
	return out
}

func (q *pendingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.m.Len()
}

// Clear discards every queued intent and returns how many were dropped.
func (q *pendingQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.m.Len()
	q.m = orderedmap.NewOrderedMap[string, model.Intent]()
	return n
}
