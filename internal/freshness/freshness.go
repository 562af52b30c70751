// Package freshness tracks the last-read and last-modified state of files the
// agent has touched, rejecting edits to files changed out-of-band since they
// were last read.
package freshness

import (
	"os"
	"sync"
	"time"
)

// DefaultEpsilon absorbs same-second writes the agent itself performs. The
// exact tolerance is implementation-tunable (spec.md §9 Open Questions); 100ms
// matches the spec's own estimate.
const DefaultEpsilon = 100 * time.Millisecond

type record struct {
	lastReadAt         time.Time
	lastModifiedAtRead time.Time
	size               int64
	lastAgentEditAt    time.Time
	exists             bool
}

// Registry is a process-wide (or per-conversation, if constructed per test)
// map of path to its last-known read/edit state. The zero value is not
// usable; construct with New.
type Registry struct {
	mu      sync.Mutex
	records map[string]*record
	epsilon time.Duration
	statFn  func(string) (os.FileInfo, error)
}

// New creates a Registry with the given freshness tolerance.
func New(epsilon time.Duration) *Registry {
	return &Registry{
		records: make(map[string]*record),
		epsilon: epsilon,
		statFn:  os.Stat,
	}
}

// Check reports whether path is fresh relative to its last recorded read, and
// whether the current disk state conflicts with that record.
//
//   - No prior record: fresh=false, conflict=true — an edit tool that never
//     observed a recordRead for this path fails closed (P7).
//   - File missing now: fresh=false, conflict=true.
//   - Otherwise: fresh iff current mtime has not advanced past the mtime
//     observed at the last read, within epsilon — and that epsilon is honored
//     only when the agent's own last edit is at least as recent as the
//     current mtime minus epsilon, so a genuine out-of-band edit in the same
//     second as the agent's own write still counts as stale.
func (r *Registry) Check(path string) (fresh bool, conflict bool) {
	r.mu.Lock()
	rec, ok := r.records[path]
	r.mu.Unlock()
	if !ok {
		return false, true
	}

	info, err := r.statFn(path)
	if err != nil {
		return false, true
	}

	mtime := info.ModTime()
	if !mtime.After(rec.lastModifiedAtRead) {
		return true, false
	}

	delta := mtime.Sub(rec.lastModifiedAtRead)
	if delta <= r.epsilon && !rec.lastAgentEditAt.Before(mtime.Add(-r.epsilon)) {
		return true, false
	}
	return false, false
}

// RecordRead stats path and stores its current mtime/size as the freshness
// baseline. Call on every successful read-class tool invocation.
func (r *Registry) RecordRead(path string) {
	info, err := r.statFn(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.records[path] = &record{lastReadAt: time.Now(), exists: false}
		return
	}
	r.records[path] = &record{
		lastReadAt:         time.Now(),
		lastModifiedAtRead: info.ModTime(),
		size:               info.Size(),
		exists:             true,
	}
}

// RecordEdit stats path after a successful write and clears any staleness:
// the agent's own edit becomes the new freshness baseline.
func (r *Registry) RecordEdit(path string) {
	now := time.Now()
	info, err := r.statFn(path)
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[path]
	if !ok {
		rec = &record{}
		r.records[path] = rec
	}
	rec.lastAgentEditAt = now
	rec.lastReadAt = now
	if err == nil {
		rec.lastModifiedAtRead = info.ModTime()
		rec.size = info.Size()
		rec.exists = true
	} else {
		rec.exists = false
	}
}

// Forget drops the freshness record for path, used after a checkpoint rewind
// restores it to a prior state outside the normal read/edit flow.
func (r *Registry) Forget(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, path)
}

// Reset clears every tracked path, used on session reset.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]*record)
}
