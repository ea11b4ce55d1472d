// Package dispatch implements the multi-worker dispatch engine: the
// concurrent scheduler that binds a shared queue of argument bundles to a
// fixed pool of heterogeneous workers, enforces per-worker rate limiting,
// routes results and failures, and retries transient errors with a global
// per-request retry counter.
package dispatch

import (
	"context"

	"github.com/mirrorkit/fedget/internal/streams"
)

// ExceptionKind labels an error's disposition: transient and re-queued, or
// permanent and reported.
type ExceptionKind string

// Sentinel kinds from the error taxonomy.
const (
	KindSoft           ExceptionKind = "soft"
	KindHard           ExceptionKind = "hard"
	KindTooManyRetries ExceptionKind = "TooManyRetries"
	KindUnhandled      ExceptionKind = "unhandled"
)

// ExceptionSpec pairs a sentinel error a worker's unit of work may return
// with the kind name reported on the failure entry and in logs.
type ExceptionSpec struct {
	Err  error
	Kind string
}

// RateLimiter is the optional per-worker throttle consulted before every
// unit of work. A nil RateLimiter (Worker.Limiter returning nil) means the
// worker has none — absence is a cheap nil check, never an error.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// Worker is the contract every dispatch-pool member must satisfy: identity,
// its declared soft/hard exception sets, an optional rate limiter, the
// work function itself, and the three outcome handlers.
type Worker interface {
	// Name is the worker's unique name across the pool.
	Name() string

	// Limiter returns the worker's rate limiter, or nil if it has none.
	Limiter() RateLimiter

	// SoftExceptions lists the transient error kinds this worker declares;
	// a matching error is retried (re-queued) up to the dispatcher's
	// max-retries budget before being promoted to TooManyRetries.
	SoftExceptions() []ExceptionSpec

	// HardExceptions lists the permanent error kinds this worker declares;
	// a matching error is reported on the failure stream immediately.
	HardExceptions() []ExceptionSpec

	// UnitOfWork performs one request. On success it must put exactly one
	// entry onto results itself (so it can attach caller-specific fields);
	// on failure it returns an error classifiable via SoftExceptions /
	// HardExceptions.
	UnitOfWork(ctx context.Context, results *streams.ResultStream, workerCount int, bundle streams.Bundle) error

	// Hard reports a permanently-failed bundle to the failure stream.
	Hard(ctx context.Context, idx int64, workerName string, workerCount int, err error, failures *streams.FailureStream)

	// Soft re-queues a transiently-failed bundle for another worker.
	Soft(ctx context.Context, bundle streams.Bundle, workerName string, workerCount int, err error, args *streams.ArgumentStream)

	// Unhandled handles an error outside both declared sets: by contract
	// this is fatal (spec.md §4.3/§9); see Dispatcher.Run for how a Go
	// port surfaces it to the caller instead of calling os.Exit.
	Unhandled(ctx context.Context, idx int64, err error)
}
