package streams

import (
	"sort"
	"sync"
)

// ResultStream collects completed-request entries. Put copies launch_ms
// from the in-flight record before retiring it; GetAll drains the buffer
// sorted by idx, restoring input order.
type ResultStream struct {
	mu     sync.Mutex
	buffer []Entry
	args   *ArgumentStream

	// OnRetire, if set, is called synchronously from Put, under the
	// stream's lock so calls never overlap, with the final entry, the
	// retiring worker's name, and the elapsed run time at retirement
	// (milliseconds) — the dispatcher uses this to feed the statistics
	// registry without the stream depending on it directly.
	OnRetire func(entry Entry, workerName string, retirementMS float64)
}

// NewResultStream creates a result stream backed by the given argument
// stream's in-flight bookkeeping.
func NewResultStream(args *ArgumentStream) *ResultStream {
	return &ResultStream{args: args}
}

// Put stamps launch_ms onto entry, retires the in-flight record for
// (workerName, workerCount), and appends the entry.
func (rs *ResultStream) Put(entry Entry, workerName string, workerCount int) {
	if inflight, ok := rs.args.inFlightEntry(workerName, workerCount); ok {
		entry["launch_ms"] = inflight.LaunchMS
	}

	rs.args.retire(workerName, workerCount)

	retirementMS := rs.args.timer.Now()

	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.buffer = append(rs.buffer, entry)

	if rs.OnRetire != nil {
		rs.OnRetire(entry, workerName, retirementMS)
	}
}

// GetAll drains the buffer, returning entries sorted ascending by idx
// (P3: order).
func (rs *ResultStream) GetAll() []Entry {
	rs.mu.Lock()
	out := rs.buffer
	rs.buffer = nil
	rs.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Index() < out[j].Index()
	})

	return out
}

// Len reports the current buffer length without draining it.
func (rs *ResultStream) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	return len(rs.buffer)
}
