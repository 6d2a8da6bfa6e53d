package reporting

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_RecordAndEntries(t *testing.T) {
	j := NewJournal(3)
	fixed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	assert.Empty(t, j.Entries())

	j.Record(LogEntry{OrderID: 1, Status: StatusInitiated, Gateway: "quaestur"})
	j.Record(LogEntry{OrderID: 2, Status: StatusInitiated, Gateway: "stripecheckout"})

	got := j.Entries()
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[0].OrderID)
	assert.Equal(t, fixed, got[0].Timestamp, "zero timestamps are stamped on record")
}

func TestJournal_EvictsOldest(t *testing.T) {
	j := NewJournal(3)
	for i := 1; i <= 5; i++ {
		j.Record(LogEntry{OrderID: int64(i)})
	}
	got := j.Entries()
	require.Len(t, got, 3)
	assert.Equal(t, []int64{3, 4, 5}, []int64{got[0].OrderID, got[1].OrderID, got[2].OrderID})
}

func TestJournal_Filter(t *testing.T) {
	j := NewJournal(0)
	j.Record(LogEntry{OrderID: 1, Gateway: "quaestur"})
	j.Record(LogEntry{OrderID: 2, Gateway: "stripecheckout"})
	j.Record(LogEntry{OrderID: 3, Gateway: "quaestur"})

	q := j.Filter("quaestur")
	require.Len(t, q, 2)
	assert.Equal(t, int64(3), q[1].OrderID)
	assert.Len(t, j.Filter(""), 3)
	assert.Len(t, j.Entries(), 3, "filtering must not disturb the journal")
}

func TestJournal_ConcurrentRecord(t *testing.T) {
	j := NewJournal(1000)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			j.Record(LogEntry{OrderGUID: fmt.Sprint(i)})
		}(i)
	}
	wg.Wait()
	assert.Len(t, j.Entries(), 50)
}
