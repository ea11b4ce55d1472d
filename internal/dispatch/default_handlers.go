package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/mirrorkit/fedget/internal/streams"
)

// DefaultHandlers implements the default Hard/Soft/Unhandled semantics from
// the worker contract (§4.3). Embed it in a concrete Worker so only Name,
// Limiter, *Exceptions, and UnitOfWork need implementing.
type DefaultHandlers struct {
	WorkerName string
	Logger     *slog.Logger
	Quiet      bool

	softSpecs []ExceptionSpec
	hardSpecs []ExceptionSpec

	nSoftFails atomic.Int64
	nHardFails atomic.Int64
}

// Init records the worker's declared soft- and hard-exception specs so Hard
// can label a failure with the worker's own declared Kind instead of
// guessing from the error's Go type, and can relabel a promoted soft error
// as TooManyRetries. Call once from the concrete worker's constructor.
func (h *DefaultHandlers) Init(name string, logger *slog.Logger, quiet bool, soft, hard []ExceptionSpec) {
	h.WorkerName = name
	h.Logger = logger
	h.Quiet = quiet
	h.softSpecs = soft
	h.hardSpecs = hard
}

// Hard builds a failure entry. If err matches one of the worker's declared
// soft exceptions, it's a promoted retry exhaustion: label TooManyRetries,
// message is the error's full representation. Otherwise it's a genuine
// hard failure reported under its own kind name.
func (h *DefaultHandlers) Hard(
	_ context.Context, idx int64, workerName string, workerCount int, err error, failures *streams.FailureStream,
) {
	kind, message := h.classify(err)

	h.nHardFails.Add(1)

	if !h.Quiet {
		h.Logger.Error("unit of work failed", slog.Int64("idx", idx), slog.String("kind", kind), slog.String("message", message))
	}

	failures.Put(streams.Entry{
		streams.IndexKey: idx,
		"worker":         workerName,
		"error":          kind,
		"message":        message,
	}, workerName, workerCount)
}

func (h *DefaultHandlers) classify(err error) (kind, message string) {
	for _, spec := range h.softSpecs {
		if errors.Is(err, spec.Err) {
			return string(KindTooManyRetries), fmt.Sprintf("%#v", err)
		}
	}

	for _, spec := range h.hardSpecs {
		if errors.Is(err, spec.Err) {
			return spec.Kind, err.Error()
		}
	}

	return kindName(err), err.Error()
}

// kindName is the fallback when err matches neither a declared soft nor a
// declared hard spec: a worker implementing Kind() on its own error type
// (MirrorError does) still gets a sensible label, otherwise the error's Go
// type name. Normal operation never reaches this — Hard is only called
// with errors already matched against HardExceptions.
func kindName(err error) string {
	var ks interface{ Kind() string }
	if errors.As(err, &ks) {
		return ks.Kind()
	}

	return fmt.Sprintf("%T", err)
}

// Soft logs a warning (unless quiet) and re-queues the bundle.
func (h *DefaultHandlers) Soft(
	_ context.Context, bundle streams.Bundle, workerName string, workerCount int, err error, args *streams.ArgumentStream,
) {
	h.nSoftFails.Add(1)

	if !h.Quiet {
		h.Logger.Warn("unit of work failed, retrying", slog.Int64("idx", bundle.Index()), slog.String("error", err.Error()))
	}

	args.Put(bundle, workerName, workerCount)
}

// Unhandled logs the error. Unlike the original (which calls os.Exit),
// the Go port surfaces the error to Dispatcher.Run via the errgroup's
// context cancellation and returns it from Run — see §9 design notes on
// preferring a caller-visible fatal error over a process exit buried in a
// worker.
func (h *DefaultHandlers) Unhandled(_ context.Context, idx int64, err error) {
	h.Logger.Error("unhandled error, aborting run", slog.Int64("idx", idx), slog.String("error", err.Error()))
}

// NSoftFails reports the worker's own soft-failure count.
func (h *DefaultHandlers) NSoftFails() int64 { return h.nSoftFails.Load() }

// NHardFails reports the worker's own hard-failure count.
func (h *DefaultHandlers) NHardFails() int64 { return h.nHardFails.Load() }
