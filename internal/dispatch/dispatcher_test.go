package dispatch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorkit/fedget/internal/dispatch"
	"github.com/mirrorkit/fedget/internal/mockworker"
	"github.com/mirrorkit/fedget/internal/streams"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func bundlesN(n int) []streams.Bundle {
	out := make([]streams.Bundle, n)
	for i := range out {
		out[i] = streams.Bundle{streams.IndexKey: int64(i)}
	}

	return out
}

func mockWorkers(n int, logger *slog.Logger) []dispatch.Worker {
	schedule := mockworker.NewSchedule()

	out := make([]dispatch.Worker, n)
	for i := range out {
		out[i] = mockworker.New(i, uint64(1000+i), schedule, logger, true)
	}

	return out
}

// TestDispatcher_MockHappyPath reproduces scenario 1 from the
// specification: 100 requests, 3 workers, max_retries=2 — idx 2 exhausts
// its retry budget and is promoted to TooManyRetries, idx 6 and 9 fail hard
// immediately, and idx 4's single soft failure is rescued by a retry that
// succeeds before any worker hits the retry budget.
func TestDispatcher_MockHappyPath(t *testing.T) {
	logger := quietLogger()
	workers := mockWorkers(3, logger)
	d := dispatch.NewDispatcher(logger, workers, dispatch.Config{MaxRetries: 2, Quiet: true, HistoryLen: 5})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, failures, summary, err := d.Run(ctx, bundlesN(100))
	require.NoError(t, err)

	assert.Len(t, results, 97)
	assert.Len(t, failures, 3)

	byIdx := make(map[int64]streams.Entry, len(failures))
	for _, f := range failures {
		byIdx[f.Index()] = f
	}

	require.Contains(t, byIdx, int64(2))
	require.Contains(t, byIdx, int64(6))
	require.Contains(t, byIdx, int64(9))

	assert.Equal(t, string(dispatch.KindTooManyRetries), byIdx[2]["error"])
	assert.Equal(t, "ValueError", byIdx[6]["error"])
	assert.Equal(t, "ValueError", byIdx[9]["error"])

	assert.Equal(t, 100, summary.JobsIn)
	assert.Equal(t, 97, summary.Finished)
	assert.Equal(t, 3, summary.Failed)
}

// TestDispatcher_OrderPreserved checks P3: results come back sorted by idx
// regardless of completion order.
func TestDispatcher_OrderPreserved(t *testing.T) {
	logger := quietLogger()
	workers := mockWorkers(4, logger)
	d := dispatch.NewDispatcher(logger, workers, dispatch.Config{MaxRetries: 3, Quiet: true})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	results, _, _, err := d.Run(ctx, bundlesN(30))
	require.NoError(t, err)

	var prev int64 = -1
	for _, r := range results {
		assert.Greater(t, r.Index(), prev)
		prev = r.Index()
	}
}

// TestDispatcher_EmptyArgumentSet reproduces scenario 2: no work at all
// finishes immediately with nothing in either stream.
func TestDispatcher_EmptyArgumentSet(t *testing.T) {
	logger := quietLogger()
	workers := mockWorkers(2, logger)
	d := dispatch.NewDispatcher(logger, workers, dispatch.Config{MaxRetries: 1, Quiet: true})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, failures, summary, err := d.Run(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, failures)
	assert.Equal(t, 0, summary.JobsIn)
}

// errStubSoft is a sentinel a stubWorker always returns, to exercise the
// retry-cap path deterministically without depending on the mock worker's
// fixed schedule.
var errStubSoft = errors.New("stub: soft failure")

// stubWorker always soft-fails, so every request eventually exhausts the
// retry budget and is promoted to TooManyRetries (P6).
type stubWorker struct {
	dispatch.DefaultHandlers
	name string
}

func newStubWorker(name string, logger *slog.Logger) *stubWorker {
	w := &stubWorker{name: name}
	w.Init(name, logger, true, []dispatch.ExceptionSpec{{Err: errStubSoft, Kind: "stub"}}, nil)

	return w
}

func (w *stubWorker) Name() string                            { return w.name }
func (w *stubWorker) Limiter() dispatch.RateLimiter            { return nil }
func (w *stubWorker) SoftExceptions() []dispatch.ExceptionSpec { return []dispatch.ExceptionSpec{{Err: errStubSoft, Kind: "stub"}} }
func (w *stubWorker) HardExceptions() []dispatch.ExceptionSpec { return nil }

func (w *stubWorker) UnitOfWork(_ context.Context, _ *streams.ResultStream, _ int, _ streams.Bundle) error {
	return errStubSoft
}

// TestDispatcher_RetryCapPromotesToTooManyRetries exercises P6: a request
// that always soft-fails is promoted to TooManyRetries once the retry
// budget is spent, rather than looping forever.
func TestDispatcher_RetryCapPromotesToTooManyRetries(t *testing.T) {
	logger := quietLogger()
	w := newStubWorker("Stub0", logger)
	d := dispatch.NewDispatcher(logger, []dispatch.Worker{w}, dispatch.Config{MaxRetries: 3, Quiet: true})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results, failures, _, err := d.Run(ctx, bundlesN(1))
	require.NoError(t, err)
	assert.Empty(t, results)
	require.Len(t, failures, 1)
	assert.Equal(t, string(dispatch.KindTooManyRetries), failures[0]["error"])
	assert.GreaterOrEqual(t, d.RetryCount(0), 3)
}

// errStubUnhandled matches neither declared soft nor hard spec, so it
// always takes the Unhandled path.
var errStubUnhandled = errors.New("stub: unclassified failure")

// unhandledWorker always returns an error outside both of its declared
// exception sets, driving Dispatcher.Run's fatal-error path.
type unhandledWorker struct {
	dispatch.DefaultHandlers
	name string
}

func newUnhandledWorker(name string, logger *slog.Logger) *unhandledWorker {
	w := &unhandledWorker{name: name}
	w.Init(name, logger, true, nil, nil)

	return w
}

func (w *unhandledWorker) Name() string                            { return w.name }
func (w *unhandledWorker) Limiter() dispatch.RateLimiter            { return nil }
func (w *unhandledWorker) SoftExceptions() []dispatch.ExceptionSpec { return nil }
func (w *unhandledWorker) HardExceptions() []dispatch.ExceptionSpec { return nil }

func (w *unhandledWorker) UnitOfWork(_ context.Context, _ *streams.ResultStream, _ int, _ streams.Bundle) error {
	return errStubUnhandled
}

// TestDispatcher_UnhandledAbortsRunWithoutHanging exercises the failure
// path where a worker's error matches neither declared exception set: Run
// must return the fatal error promptly rather than leaving a sibling
// worker parked forever in Arguments.Get waiting on an in-flight record
// that the failed bundle never retires.
func TestDispatcher_UnhandledAbortsRunWithoutHanging(t *testing.T) {
	logger := quietLogger()
	workers := []dispatch.Worker{
		newUnhandledWorker("A", logger),
		newUnhandledWorker("B", logger),
	}
	d := dispatch.NewDispatcher(logger, workers, dispatch.Config{MaxRetries: 1, Quiet: true})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})

	var results, failures []streams.Entry

	var runErr error

	go func() {
		results, failures, _, runErr = d.Run(ctx, bundlesN(1))
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("Run did not return before the context deadline; a worker is likely stuck in Arguments.Get")
	}

	require.Error(t, runErr)
	assert.True(t, errors.Is(runErr, errStubUnhandled))
	assert.Empty(t, results)
	assert.Empty(t, failures)
}

// TestDispatcher_MaxRetriesZeroNeverPromotes exercises the documented
// max_retries==0 behavior (§9 open question decision): soft failures are
// re-queued forever and never promoted, so a dispatch against an
// always-failing worker must be bounded externally by the context.
func TestDispatcher_MaxRetriesZeroNeverPromotes(t *testing.T) {
	logger := quietLogger()
	w := newStubWorker("Stub0", logger)
	d := dispatch.NewDispatcher(logger, []dispatch.Worker{w}, dispatch.Config{MaxRetries: 0, Quiet: true})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, _, _, err := d.Run(ctx, bundlesN(1))
	assert.Error(t, err)
	assert.GreaterOrEqual(t, d.RetryCount(0), 1)
}
