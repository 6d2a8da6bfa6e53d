package reporting

import (
	"sync"
	"time"
)

// DefaultJournalCapacity is used when NewJournal is given a non-positive size.
const DefaultJournalCapacity = 10000

// Journal keeps the most recent payment lifecycle events in memory.
type Journal struct {
	mu      sync.Mutex
	entries []LogEntry
	next    int
	full    bool
	now     func() time.Time
}

// NewJournal returns a journal that retains up to capacity entries.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultJournalCapacity
	}
	return &Journal{entries: make([]LogEntry, capacity), now: time.Now}
}

// Record appends an entry, evicting the oldest one when full. A zero
// timestamp is replaced with the current time.
func (j *Journal) Record(e LogEntry) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if e.Timestamp.IsZero() {
		e.Timestamp = j.now().UTC()
	}
	j.entries[j.next] = e
	j.next++
	if j.next == len(j.entries) {
		j.next = 0
		j.full = true
	}
}

// Entries returns the retained entries, oldest first.
func (j *Journal) Entries() []LogEntry {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.full {
		return append([]LogEntry(nil), j.entries[:j.next]...)
	}
	out := make([]LogEntry, 0, len(j.entries))
	out = append(out, j.entries[j.next:]...)
	return append(out, j.entries[:j.next]...)
}

// Filter returns the retained entries of one gateway, or all of them when
// gateway is empty.
func (j *Journal) Filter(gateway string) []LogEntry {
	all := j.Entries()
	if gateway == "" {
		return all
	}
	out := all[:0]
	for _, e := range all {
		if e.Gateway == gateway {
			out = append(out, e)
		}
	}
	return out
}
