package streams

import "sync"

// RateRounding is the number of decimal digits kept on the cumulative
// launch-rate figure recorded in each in-flight entry.
const RateRounding = 1

// InFlightEntry is the bookkeeping kept for one bundle between its dequeue
// from the argument stream and its retirement into the result or failure
// stream. Exactly one exists per live (workerName, workerCount) pair.
type InFlightEntry struct {
	Idx           int64
	QueueDepth    int
	LaunchMS      float64
	CumLaunchRate float64
}

// ArgumentStream is the prefilled work queue workers pull bundles from. Its
// Get is the dispatcher's sole termination signal: once the buffer is
// drained and no bundle is in flight anywhere (so no soft failure can ever
// re-queue another one), Get reports done instead of blocking forever —
// the strengthened version of the original's "empty means done" rule,
// correct even though soft failures re-queue arguments from worker tasks
// that are themselves concurrent with Get.
type ArgumentStream struct {
	mu   sync.Mutex
	cond *sync.Cond

	buffer []Bundle
	nArgs  int
	timer  *Timer

	workerCounter map[string]int
	inflight      map[string]map[int]*InFlightEntry
	outstanding   int // len(buffer) + total in-flight entries
	aborted       bool
}

// NewArgumentStream prefills the stream from the caller's ordered bundle
// sequence.
func NewArgumentStream(bundles []Bundle, timer *Timer) *ArgumentStream {
	as := &ArgumentStream{
		buffer:        append([]Bundle(nil), bundles...),
		nArgs:         len(bundles),
		timer:         timer,
		workerCounter: make(map[string]int),
		inflight:      make(map[string]map[int]*InFlightEntry),
	}
	as.outstanding = len(bundles)
	as.cond = sync.NewCond(&as.mu)

	return as
}

// NArgs returns the number of bundles the stream was prefilled with.
func (as *ArgumentStream) NArgs() int {
	return as.nArgs
}

// Get blocks until a bundle is available, dequeuing the head and recording
// an in-flight entry for (workerName, the returned worker count). It
// returns ok=false only when the buffer is empty and nothing anywhere is
// in flight — there is and never will be more work.
func (as *ArgumentStream) Get(workerName string) (bundle Bundle, workerCount int, ok bool) {
	as.mu.Lock()
	defer as.mu.Unlock()

	for len(as.buffer) == 0 {
		if as.outstanding == 0 || as.aborted {
			return nil, 0, false
		}

		as.cond.Wait()
	}

	bundle = as.buffer[0]
	as.buffer = as.buffer[1:]

	as.workerCounter[workerName]++
	workerCount = as.workerCounter[workerName]

	launchMS := as.timer.Now()
	idx := bundle.Index()
	launchRate := roundTo(float64(idx)*1000.0/(launchMS+TimeEpsilonMS), RateRounding)

	if as.inflight[workerName] == nil {
		as.inflight[workerName] = make(map[int]*InFlightEntry)
	}

	as.inflight[workerName][workerCount] = &InFlightEntry{
		Idx:           idx,
		QueueDepth:    len(as.inflight[workerName]),
		LaunchMS:      launchMS,
		CumLaunchRate: launchRate,
	}

	return bundle, workerCount, true
}

// Put re-queues a bundle (used only for soft-failure retry): the in-flight
// record for (workerName, workerCount) is removed and the bundle is
// appended to the tail of the buffer for another worker to pick up.
func (as *ArgumentStream) Put(bundle Bundle, workerName string, workerCount int) {
	as.mu.Lock()
	defer as.mu.Unlock()

	as.removeInFlightLocked(workerName, workerCount)
	as.buffer = append(as.buffer, bundle)
	as.outstanding++
	as.cond.Broadcast()
}

// retire deletes the in-flight record for (workerName, workerCount) without
// re-queueing the bundle — called by the result and failure streams when a
// bundle completes or fails for good.
func (as *ArgumentStream) retire(workerName string, workerCount int) {
	as.mu.Lock()
	defer as.mu.Unlock()

	as.removeInFlightLocked(workerName, workerCount)
	as.cond.Broadcast()
}

// Retire removes the in-flight record for (workerName, workerCount) without
// re-queueing the bundle, for a caller outside this package that has
// decided the bundle is permanently abandoned (e.g. an unhandled error
// aborting the whole run). Result/failure retirement goes through the
// unexported retire instead, since both live in this package.
func (as *ArgumentStream) Retire(workerName string, workerCount int) {
	as.retire(workerName, workerCount)
}

// Abort wakes every Get call currently blocked waiting for work, causing
// them to return ok=false immediately even though outstanding > 0. Called
// once a run has decided to give up (an Unhandled error), so workers parked
// in Get don't wait forever on a buffer that will never be refilled.
func (as *ArgumentStream) Abort() {
	as.mu.Lock()
	defer as.mu.Unlock()

	as.aborted = true
	as.cond.Broadcast()
}

func (as *ArgumentStream) removeInFlightLocked(workerName string, workerCount int) {
	if byCount, ok := as.inflight[workerName]; ok {
		if _, ok := byCount[workerCount]; ok {
			delete(byCount, workerCount)
			as.outstanding--
		}
	}
}

// inFlightEntry returns a copy of the in-flight record for (workerName,
// workerCount), used by the result stream to stamp launch_ms onto a
// retiring entry before it's removed.
func (as *ArgumentStream) inFlightEntry(workerName string, workerCount int) (InFlightEntry, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()

	byCount, ok := as.inflight[workerName]
	if !ok {
		return InFlightEntry{}, false
	}

	e, ok := byCount[workerCount]
	if !ok {
		return InFlightEntry{}, false
	}

	return *e, true
}

// InFlightCount returns the total number of records currently in flight
// across all workers — used to assert P5 (in-flight drain) after Run
// returns.
func (as *ArgumentStream) InFlightCount() int {
	as.mu.Lock()
	defer as.mu.Unlock()

	n := 0
	for _, byCount := range as.inflight {
		n += len(byCount)
	}

	return n
}
