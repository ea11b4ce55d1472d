// Package mockworker implements a dispatch.Worker that simulates downloads
// with sleeps instead of real network I/O, for exercising the dispatcher
// and its statistics without a network. It reproduces the reference
// implementation's fixed failure schedule exactly (soft-fail idx 2 and 4,
// with 4 rescued after its first failure; hard-fail idx 6 and 9) so the
// scenarios in the specification are reproducible byte-for-byte.
package mockworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mirrorkit/fedget/internal/dispatch"
	"github.com/mirrorkit/fedget/internal/streams"
)

// Fixed schedule constants from the reference mock downloader.
const (
	launchRetirementRatio = 1.0
	launchRateMax         = 100.0

	zipfExponent = 1.4
	zipfScale    = 1000
	zipfMin      = 1024
)

// ErrSoftFail is the sentinel soft (retryable) error this worker raises for
// its scheduled soft-fail indices.
var ErrSoftFail = errors.New("mockworker: simulated connection error")

// ErrHardFail is the sentinel hard (permanent) error this worker raises for
// its scheduled hard-fail indices.
var ErrHardFail = errors.New("mockworker: simulated value error")

// softFailKind / hardFailKind name the exception specs so failure entries
// carry the same kind strings the reference implementation reports.
const (
	softFailKind = "ConnectionError"
	hardFailKind = "ValueError"
)

var hardFailIdx = map[int64]bool{6: true, 9: true}

// Schedule is the soft-fail schedule shared by every worker in one dispatch
// pool. The reference implementation declares SOFT_FAILS as a class
// attribute and rescues idx 4 by mutating it through self — since it's
// never shadowed on the instance, that mutation is visible to every
// MockDownloader instance, not just the one that hit the failure. Schedule
// reproduces that: construct one and share it across every Worker in a
// pool so idx 4 stops failing everywhere after its first hit, no matter
// which worker it lands on next.
type Schedule struct {
	mu           sync.Mutex
	softFailLeft map[int64]bool // idx 2 stays forever; idx 4 removed after first hit
	rescueOnce   map[int64]bool
}

// NewSchedule creates the fixed soft-fail schedule: idx 2 always soft-fails,
// idx 4 soft-fails exactly once across the whole pool.
func NewSchedule() *Schedule {
	return &Schedule{
		softFailLeft: map[int64]bool{2: true, 4: true},
		rescueOnce:   map[int64]bool{4: true},
	}
}

func (s *Schedule) takeSoftFail(idx int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.softFailLeft[idx] {
		return false
	}

	if s.rescueOnce[idx] {
		delete(s.softFailLeft, idx)
	}

	return true
}

// Worker is a mock dispatch.Worker. Each instance owns its own PRNG seeded
// independently (never a package-level global) and its own rate limiter,
// but shares one Schedule with the rest of its pool.
type Worker struct {
	dispatch.DefaultHandlers

	ident          int
	rng            *rand.Rand
	zipf           *rand.Zipf
	limiter        *rate.Limiter
	retirementRate float64
	schedule       *Schedule

	mu sync.Mutex
}

// New creates a mock worker numbered ident (0-based), whose launch rate is
// LAUNCH_RATE_MAX/(ident+1) — lower-numbered workers launch faster, exactly
// as in the reference implementation. schedule must be shared across every
// worker in the same pool.
func New(ident int, seed uint64, schedule *Schedule, logger *slog.Logger, quiet bool) *Worker {
	name := fmt.Sprintf("Worker%d", ident)

	launchRate := launchRateMax / float64(ident+1)
	retirementRate := launchRate / launchRetirementRatio

	rng := rand.New(rand.NewSource(int64(seed))) //nolint:gosec // simulation, not cryptographic
	zipf := rand.NewZipf(rng, zipfExponent, 1.0, zipfScale)

	burst := int(launchRate)
	if burst < 1 {
		burst = 1
	}

	w := &Worker{
		ident:          ident,
		rng:            rng,
		zipf:           zipf,
		limiter:        rate.NewLimiter(rate.Limit(launchRate), burst),
		retirementRate: retirementRate,
		schedule:       schedule,
	}

	w.Init(name, logger, quiet,
		[]dispatch.ExceptionSpec{{Err: ErrSoftFail, Kind: softFailKind}},
		[]dispatch.ExceptionSpec{{Err: ErrHardFail, Kind: hardFailKind}},
	)

	return w
}

// Name returns the worker's unique name.
func (w *Worker) Name() string { return w.WorkerName }

// Limiter returns the worker's launch-rate limiter. golang.org/x/time/rate
// already exposes Wait(ctx) error, satisfying dispatch.RateLimiter with no
// adapter.
func (w *Worker) Limiter() dispatch.RateLimiter { return w.limiter }

// SoftExceptions declares the one retryable error this worker raises.
func (w *Worker) SoftExceptions() []dispatch.ExceptionSpec {
	return []dispatch.ExceptionSpec{{Err: ErrSoftFail, Kind: softFailKind}}
}

// HardExceptions declares the one permanent error this worker raises.
func (w *Worker) HardExceptions() []dispatch.ExceptionSpec {
	return []dispatch.ExceptionSpec{{Err: ErrHardFail, Kind: hardFailKind}}
}

// UnitOfWork simulates one download: scheduled soft/hard failures fire
// immediately; otherwise it draws a Zipf-with-minimum byte count, sleeps
// for one exponential latency sample (mean 1/retirementRate seconds), and
// reports the byte count on the result stream. The sleep does not depend
// on the byte count.
func (w *Worker) UnitOfWork(ctx context.Context, results *streams.ResultStream, workerCount int, bundle streams.Bundle) error {
	idx := bundle.Index()

	if w.schedule.takeSoftFail(idx) {
		return fmt.Errorf("%w: %s aborted job %d (expected)", ErrSoftFail, w.WorkerName, idx)
	}

	if hardFailIdx[idx] {
		return fmt.Errorf("%w: job %d failed on %s (expected)", ErrHardFail, idx, w.WorkerName)
	}

	if !w.Quiet {
		w.Logger.Info("working on job", slog.String("worker", w.WorkerName), slog.Int64("idx", idx))
	}

	workQty := float64(zipfMin) + float64(w.zipf.Uint64())

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(w.waitTime(w.retirementRate)):
	}

	label, _ := bundle["str_arg"].(string)

	results.Put(streams.Entry{
		streams.IndexKey: idx,
		"worker":         w.WorkerName,
		"bytes":          workQty,
		"label":          label,
	}, w.WorkerName, workerCount)

	return nil
}

// waitTime draws an exponential simulated-latency sample with mean 1/rate
// seconds, the same distribution family the reference implementation's
// random_value_generator.get_wait_time uses for both launch and retirement
// delays.
func (w *Worker) waitTime(ratePerSec float64) time.Duration {
	w.mu.Lock()
	sample := w.rng.ExpFloat64() / ratePerSec
	w.mu.Unlock()

	return time.Duration(sample * float64(time.Second))
}
