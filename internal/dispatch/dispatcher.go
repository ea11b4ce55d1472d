package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mirrorkit/fedget/internal/stats"
	"github.com/mirrorkit/fedget/internal/streams"
)

// DefaultMaxRetries is the retry budget used when a caller doesn't set one
// explicitly. Zero means "never promote to hard" — see Config.MaxRetries.
const DefaultMaxRetries = 0

// Mode selects the order in which Run starts the per-worker goroutines. It
// has no effect on Run's semantics, only on worker start order, which is
// otherwise unobservable except through timing-sensitive tests.
type Mode int

const (
	// ModeProduction starts workers in randomized order every run.
	ModeProduction Mode = iota
	// ModeTesting starts workers in registration order, deterministically.
	ModeTesting
	// ModeDeterministic is an alias for ModeTesting kept for callers that
	// want to name the property they're relying on rather than the
	// environment.
	ModeDeterministic
)

// ErrUnknownMode is returned by Main for any Mode value it doesn't
// recognize.
var ErrUnknownMode = errors.New("dispatch: unknown mode")

// Config configures one Dispatcher.
type Config struct {
	// MaxRetries caps cross-worker retries per request before a soft
	// failure is promoted to TooManyRetries. Zero disables promotion: the
	// first soft failure is still re-queued, indefinitely (§9 open
	// question; this mirrors the original's documented behavior).
	MaxRetries int
	// Quiet suppresses the default handlers' log lines (not the error
	// reporting itself).
	Quiet bool
	// HistoryLen sizes the statistics registry's rolling-average window;
	// zero disables rolling averages.
	HistoryLen int
	// Mode selects goroutine start ordering for Run; Main additionally
	// rejects values it doesn't recognize.
	Mode Mode
}

// RunSummary is the run-level tally and statistics snapshot returned
// alongside the ordered result and failure lists.
type RunSummary struct {
	RunID string
	streams.Summary
	Stats *stats.Registry
}

// Dispatcher binds a fixed pool of workers to one shared set of
// instrumented streams per run.
type Dispatcher struct {
	logger  *slog.Logger
	workers []Worker
	cfg     Config

	retryMu      sync.Mutex
	retryCounter map[int64]int
}

// NewDispatcher creates a dispatcher over workers. Worker names must be
// unique; duplicates will alias in-flight bookkeeping and retry counting.
func NewDispatcher(logger *slog.Logger, workers []Worker, cfg Config) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		logger:  logger,
		workers: workers,
		cfg:     cfg,
	}
}

// Run starts one goroutine per worker sharing one set of instrumented
// streams, waits for them all to finish, and returns the ordered results,
// ordered failures, and run summary. It returns a non-nil error when a
// worker hits an Unhandled (unclassified) error, or when ctx is cancelled
// or expires before the run finishes — every soft or hard outcome is
// captured in the result/failure lists.
func (d *Dispatcher) Run(ctx context.Context, bundles []streams.Bundle) ([]streams.Entry, []streams.Entry, RunSummary, error) {
	runID := uuid.NewString()

	workerNames := make([]string, len(d.workers))
	for i, w := range d.workers {
		workerNames[i] = w.Name()
	}

	d.logger.Info("dispatch run starting",
		slog.String("run_id", runID),
		slog.Int("requests", len(bundles)),
		slog.Int("workers", len(d.workers)),
	)

	st := streams.New(bundles)
	registry := stats.NewRegistry(workerNames, d.cfg.HistoryLen)
	d.wireStats(st, registry)

	d.retryMu.Lock()
	d.retryCounter = make(map[int64]int)
	d.retryMu.Unlock()

	order := d.startOrder()

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range order {
		w := w

		g.Go(func() error {
			return d.workerLoop(gctx, w, st)
		})
	}

	// A worker blocked in Arguments.Get is parked in a condition wait, which
	// ctx cancellation alone never interrupts. Once the run context is
	// done — whether from the caller or from one worker's fatal error —
	// Abort wakes every waiter so the rest of the pool can unwind instead
	// of hanging in g.Wait().
	go func() {
		<-gctx.Done()
		st.Arguments.Abort()
	}()

	runErr := g.Wait()

	results := st.Results.GetAll()
	failures := st.Failures.GetAll()
	summary := RunSummary{
		RunID: runID,
		Summary: streams.Summary{
			JobsIn:   st.Arguments.NArgs(),
			Finished: len(results),
			Failed:   len(failures),
		},
		Stats: registry,
	}

	d.logger.Info("dispatch run finished",
		slog.String("run_id", runID),
		slog.Int("results", len(results)),
		slog.Int("failures", len(failures)),
	)

	return results, failures, summary, runErr
}

// Main is the synchronous entry point: it returns ErrUnknownMode for an
// unrecognized Config.Mode and otherwise calls Run.
func (d *Dispatcher) Main(ctx context.Context, bundles []streams.Bundle) ([]streams.Entry, []streams.Entry, RunSummary, error) {
	switch d.cfg.Mode {
	case ModeProduction, ModeTesting, ModeDeterministic:
		return d.Run(ctx, bundles)
	default:
		return nil, nil, RunSummary{}, fmt.Errorf("%w: %v", ErrUnknownMode, d.cfg.Mode)
	}
}

// startOrder returns the worker slice in the order Run should launch
// goroutines in: randomized for ModeProduction, registration order
// otherwise.
func (d *Dispatcher) startOrder() []Worker {
	if d.cfg.Mode != ModeProduction {
		return d.workers
	}

	shuffled := append([]Worker(nil), d.workers...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	return shuffled
}

// wireStats hooks the result stream so every retiring result feeds the
// statistics registry: retirement_t (now), launch_t (stamped by the
// result stream), and bytes (if the worker reported one), deriving
// service_t/dl_rate/cum_rate as a side effect of Registry.UpdateStats.
func (d *Dispatcher) wireStats(st *streams.Streams, registry *stats.Registry) {
	st.Results.OnRetire = func(entry streams.Entry, worker string, retirementMS float64) {
		obs := map[string]float64{stats.RetirementT: retirementMS}

		if launch, ok := toFloat64(entry["launch_ms"]); ok {
			obs[stats.LaunchT] = launch
		}

		if bytesVal, ok := toFloat64(entry["bytes"]); ok {
			obs[stats.Bytes] = bytesVal
		}

		registry.UpdateStats(obs, worker)
	}
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

// workerLoop is the per-worker goroutine: pull a bundle, rate-limit,
// execute, classify the outcome, and loop until the argument stream
// reports done.
func (d *Dispatcher) workerLoop(ctx context.Context, w Worker, st *streams.Streams) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		bundle, workerCount, ok := st.Arguments.Get(w.Name())
		if !ok {
			return nil
		}

		if limiter := w.Limiter(); limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := w.UnitOfWork(ctx, st.Results, workerCount, bundle)
		if err == nil {
			continue
		}

		if fatalErr := d.handleOutcome(ctx, w, bundle, workerCount, err, st); fatalErr != nil {
			return fatalErr
		}
	}
}

// handleOutcome classifies a unit-of-work error and routes it to the
// worker's soft/hard/unhandled handler. A non-nil return aborts the whole
// run (an Unhandled error).
func (d *Dispatcher) handleOutcome(
	ctx context.Context, w Worker, bundle streams.Bundle, workerCount int, err error, st *streams.Streams,
) error {
	idx := bundle.Index()

	if _, ok := matchSpec(err, w.SoftExceptions()); ok {
		n := d.incrementRetry(idx)

		if d.cfg.MaxRetries > 0 && n >= d.cfg.MaxRetries {
			w.Hard(ctx, idx, w.Name(), workerCount, err, st.Failures)
		} else {
			w.Soft(ctx, bundle, w.Name(), workerCount, err, st.Arguments)
		}

		return nil
	}

	if _, ok := matchSpec(err, w.HardExceptions()); ok {
		w.Hard(ctx, idx, w.Name(), workerCount, err, st.Failures)

		return nil
	}

	w.Unhandled(ctx, idx, err)

	// This bundle is abandoned, not retried: retire its in-flight record so
	// Arguments.outstanding can still reach zero for any worker that drains
	// the buffer before Abort wakes it.
	st.Arguments.Retire(w.Name(), workerCount)

	return fmt.Errorf("dispatch: unhandled error on worker %s, idx %d: %w", w.Name(), idx, err)
}

// matchSpec reports whether err matches any of the given exception specs.
func matchSpec(err error, specs []ExceptionSpec) (ExceptionSpec, bool) {
	for _, spec := range specs {
		if errors.Is(err, spec.Err) {
			return spec, true
		}
	}

	return ExceptionSpec{}, false
}

// incrementRetry atomically bumps the global, idx-keyed retry counter and
// returns the new count. The counter is keyed by idx, not by (idx,
// worker): retries may cross workers, which is the entire point of
// federating the download across mirrors.
func (d *Dispatcher) incrementRetry(idx int64) int {
	d.retryMu.Lock()
	defer d.retryMu.Unlock()

	d.retryCounter[idx]++

	return d.retryCounter[idx]
}

// RetryCount returns how many times idx has been soft-failed so far in the
// most recent run. Safe to call after Run returns; concurrent with an
// in-progress run it returns a momentary snapshot.
func (d *Dispatcher) RetryCount(idx int64) int {
	d.retryMu.Lock()
	defer d.retryMu.Unlock()

	return d.retryCounter[idx]
}
