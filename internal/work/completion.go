package work

import (
	"sync"
)

// Listener is notified after every work item reaches a terminal state.
type Listener func(Result)

// CompletionTracker records the last result per work type and fans results
// out to listeners.
type CompletionTracker struct {
	last      map[string]Result // key: typeID
	listeners []Listener
	mu        sync.RWMutex
}

// NewCompletionTracker creates a new completion tracker.
func NewCompletionTracker() *CompletionTracker {
	return &CompletionTracker{
		last: make(map[string]Result),
	}
}

// OnComplete registers a listener. Listeners run synchronously on the worker
// goroutine that finished the item, so they must not block.
func (t *CompletionTracker) OnComplete(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.listeners = append(t.listeners, l)
}

// Record stores a result and notifies listeners.
func (t *CompletionTracker) Record(res Result) {
	t.mu.Lock()
	t.last[res.TypeID] = res
	listeners := make([]Listener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	for _, l := range listeners {
		l(res)
	}
}

// Last returns the most recent result for a work type.
func (t *CompletionTracker) Last(typeID string) (Result, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	res, ok := t.last[typeID]
	return res, ok
}

// Clear removes the stored result for a work type.
func (t *CompletionTracker) Clear(typeID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.last, typeID)
}
