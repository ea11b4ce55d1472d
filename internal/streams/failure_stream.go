package streams

import (
	"sort"
	"sync"
)

// FailureStream collects permanently-failed-request entries. Same shape as
// ResultStream, minus the launch-time copy.
type FailureStream struct {
	mu     sync.Mutex
	buffer []Entry
	args   *ArgumentStream
}

// NewFailureStream creates a failure stream backed by the given argument
// stream's in-flight bookkeeping.
func NewFailureStream(args *ArgumentStream) *FailureStream {
	return &FailureStream{args: args}
}

// Put retires the in-flight record for (workerName, workerCount) and
// appends the entry.
func (fs *FailureStream) Put(entry Entry, workerName string, workerCount int) {
	fs.args.retire(workerName, workerCount)

	fs.mu.Lock()
	fs.buffer = append(fs.buffer, entry)
	fs.mu.Unlock()
}

// GetAll drains the buffer, returning entries sorted ascending by idx
// (P3: order).
func (fs *FailureStream) GetAll() []Entry {
	fs.mu.Lock()
	out := fs.buffer
	fs.buffer = nil
	fs.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Index() < out[j].Index()
	})

	return out
}

// Len reports the current buffer length without draining it.
func (fs *FailureStream) Len() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	return len(fs.buffer)
}
