package reconcile

import (
	"time"

	"github.com/robby/boardsync/internal/domain"
)

// StateSnapshot is one observation of an item's board-side state, taken
// before and after mutations for diagnostics.
type StateSnapshot struct {
	OnBoard   bool
	ItemID    string
	Column    string
	Sprint    *domain.Sprint
	Assignees []string
}

// VerifyEntry records one reconciler step against one item: the state
// seen before, the state seen after, and the error if the step failed.
type VerifyEntry struct {
	ItemRef string
	Step    string
	Attempt int
	Before  *StateSnapshot
	After   *StateSnapshot
	Err     string
	At      time.Time
}

// maxVerifyEntries bounds the in-memory verification log; diagnostics
// must never grow with the size of a pathological run.
const maxVerifyEntries = 512

// VerifyLog is the bounded per-run record of before/after state. It is
// diagnostic bookkeeping only; no control flow reads it.
type VerifyLog struct {
	entries []VerifyEntry
	dropped int
}

// Record appends an entry, dropping the oldest once the bound is hit.
func (l *VerifyLog) Record(e VerifyEntry) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	if len(l.entries) >= maxVerifyEntries {
		l.entries = l.entries[1:]
		l.dropped++
	}
	l.entries = append(l.entries, e)
}

// Entries returns the recorded entries in order, oldest first.
func (l *VerifyLog) Entries() []VerifyEntry {
	out := make([]VerifyEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Dropped returns how many entries were discarded to honor the bound.
func (l *VerifyLog) Dropped() int { return l.dropped }
