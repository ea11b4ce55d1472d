package httpmirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"time"

	"golang.org/x/time/rate"

	"github.com/mirrorkit/fedget/internal/config"
	"github.com/mirrorkit/fedget/internal/dispatch"
	"github.com/mirrorkit/fedget/internal/streams"
)

// burstMultiplier mirrors the teacher's bandwidth limiter: a burst of 2x
// the per-second rate lets a short lull be spent on the next read without
// reducing sustained throughput below the configured limit.
const burstMultiplier = 2

// bytesPerMbit converts megabits to bytes.
const bytesPerMbit = 1024.0 * 1024.0 / 8.0

// Worker is a dispatch.Worker that fetches resources from one real HTTP
// mirror server.
type Worker struct {
	dispatch.DefaultHandlers

	descriptor config.Mirror
	httpClient *http.Client
	limiter    *rate.Limiter // nil = unlimited, matching bandwidth.NewBandwidthLimiter's convention
}

// NewFromDescriptor builds a Worker from a parsed [[mirror]] table.
func NewFromDescriptor(descriptor config.Mirror, logger *slog.Logger, quiet bool) *Worker {
	transport := &http.Transport{
		ForceAttemptHTTP2: descriptor.TransportVer == "2",
	}

	w := &Worker{
		descriptor: descriptor,
		httpClient: &http.Client{Transport: transport},
		limiter:    newLimiter(descriptor.BWLimitMbps),
	}

	w.Init(descriptor.Name, logger, quiet, w.SoftExceptions(), w.HardExceptions())

	return w
}

// newLimiter builds a token-bucket limiter from a megabit/s cap. A zero or
// negative cap means unlimited, returning nil — the nil-limiter-means-
// unlimited convention ported from internal/sync/bandwidth.go.
func newLimiter(mbps float64) *rate.Limiter {
	if mbps <= 0 {
		return nil
	}

	bytesPerSec := mbps * bytesPerMbit
	burst := int(bytesPerSec) * burstMultiplier

	if burst < 1 {
		burst = 1
	}

	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// Name returns the mirror's configured name.
func (w *Worker) Name() string { return w.descriptor.Name }

// Limiter returns the worker's byte-rate limiter, or nil if the descriptor
// set no bandwidth cap.
func (w *Worker) Limiter() dispatch.RateLimiter {
	if w.limiter == nil {
		return nil
	}

	return rateLimiterAdapter{w.limiter}
}

// rateLimiterAdapter exposes *rate.Limiter's single-token Wait(ctx) as
// dispatch.RateLimiter — the dispatcher gates request launches, not
// bytes; byte-level throttling happens again inside UnitOfWork via
// wrapReader.
type rateLimiterAdapter struct{ l *rate.Limiter }

func (a rateLimiterAdapter) Wait(ctx context.Context) error { return a.l.Wait(ctx) }

// SoftExceptions declares the retryable mirror failures: throttling,
// server errors, and transport-level errors (connection refused, timeout).
func (w *Worker) SoftExceptions() []dispatch.ExceptionSpec {
	return []dispatch.ExceptionSpec{
		{Err: ErrThrottled, Kind: "Throttled"},
		{Err: ErrServerError, Kind: "ServerError"},
		{Err: ErrTransport, Kind: "Transport"},
	}
}

// HardExceptions declares the permanent mirror failures: the resource
// doesn't exist on this mirror, or the request itself was malformed.
func (w *Worker) HardExceptions() []dispatch.ExceptionSpec {
	return []dispatch.ExceptionSpec{
		{Err: ErrNotFound, Kind: "NotFound"},
		{Err: ErrBadRequest, Kind: "BadRequest"},
	}
}

// UnitOfWork fetches one resource bundle's code/file_type from the mirror,
// streams the body through the byte-rate limiter, and reports the byte
// count on the result stream.
func (w *Worker) UnitOfWork(ctx context.Context, results *streams.ResultStream, workerCount int, bundle streams.Bundle) error {
	idx := bundle.Index()

	url, err := w.buildURL(bundle)
	if err != nil {
		return &MirrorError{Mirror: w.Name(), Message: err.Error(), Err: ErrBadRequest}
	}

	reqCtx := ctx

	if w.descriptor.TimeoutMS > 0 {
		var cancel context.CancelFunc

		reqCtx, cancel = context.WithTimeout(ctx, time.Duration(w.descriptor.TimeoutMS)*time.Millisecond)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return &MirrorError{Mirror: w.Name(), Message: err.Error(), Err: ErrBadRequest}
	}

	if !w.Quiet {
		w.Logger.Debug("fetching resource", slog.String("mirror", w.Name()), slog.Int64("idx", idx), slog.String("url", url))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return &MirrorError{Mirror: w.Name(), Message: err.Error(), Err: classifyTransportErr(err)}
	}

	defer resp.Body.Close()

	if classified := classifyStatus(resp.StatusCode); classified != nil {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

		return &MirrorError{
			Mirror:     w.Name(),
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Err:        classified,
		}
	}

	reader := w.wrapReader(reqCtx, resp.Body)

	n, err := io.Copy(io.Discard, reader)
	if err != nil {
		return &MirrorError{Mirror: w.Name(), Message: err.Error(), Err: classifyTransportErr(err)}
	}

	label, _ := bundle["file_type"].(string)

	results.Put(streams.Entry{
		streams.IndexKey: idx,
		"worker":         w.Name(),
		"bytes":          float64(n),
		"label":          label,
	}, w.Name(), workerCount)

	return nil
}

const maxErrorBodyBytes = 4096

// buildURL joins the descriptor's server/dir with the bundle's code and
// file_type, mirroring the Graph client's baseURL+path concatenation.
func (w *Worker) buildURL(bundle streams.Bundle) (string, error) {
	code, _ := bundle["code"].(string)
	fileType, _ := bundle["file_type"].(string)

	if code == "" {
		return "", fmt.Errorf("bundle idx %d missing required \"code\" field", bundle.Index())
	}

	filename := code
	if fileType != "" {
		filename = code + "." + fileType
	}

	scheme := "https"
	if w.descriptor.Transport != "" {
		scheme = w.descriptor.Transport
	}

	return fmt.Sprintf("%s://%s%s", scheme, w.descriptor.Server, path.Join("/", w.descriptor.Dir, filename)), nil
}

// classifyTransportErr maps any network-level error (connection refused,
// timeout, unexpected EOF) to ErrTransport: soft, retryable on another
// mirror.
func classifyTransportErr(_ error) error {
	return ErrTransport
}

// wrapReader rate-limits reads through w.limiter, chunked to the limiter's
// burst size since rate.Limiter.WaitN rejects requests larger than its
// burst — ported from internal/sync/bandwidth.go's rateLimitedReader.
func (w *Worker) wrapReader(ctx context.Context, r io.Reader) io.Reader {
	if w.limiter == nil {
		return r
	}

	return &rateLimitedReader{r: r, limiter: w.limiter, ctx: ctx}
}

type rateLimitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func (r *rateLimitedReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		if waitErr := waitN(r.limiter, r.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}

	return n, err
}

// waitN splits a large token request into burst-sized chunks.
func waitN(limiter *rate.Limiter, ctx context.Context, n int) error {
	burst := limiter.Burst()

	for n > 0 {
		take := n
		if take > burst {
			take = burst
		}

		if err := limiter.WaitN(ctx, take); err != nil {
			return err
		}

		n -= take
	}

	return nil
}
