package config

import (
	"errors"
	"fmt"
	"log/slog"
)

// Validate checks a manifest's [[mirror]] entries and [retry] policy,
// accumulating every error found rather than stopping at the first, and
// logs (but does not fail on) the max_retries == 0 case — a valid,
// documented configuration (infinite re-queue; see §9 of the
// specification) that's worth an operator's attention.
func Validate(m *Manifest, logger *slog.Logger) error {
	var errs []error

	if len(m.Mirror) == 0 {
		errs = append(errs, errors.New("manifest must declare at least one [[mirror]]"))
	}

	seen := make(map[string]bool, len(m.Mirror))

	for _, mir := range m.Mirror {
		errs = append(errs, validateMirror(&mir)...)

		if seen[mir.Name] {
			errs = append(errs, fmt.Errorf("duplicate mirror name %q", mir.Name))
		}

		seen[mir.Name] = true
	}

	if m.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry.max_retries must be >= 0, got %d", m.Retry.MaxRetries))
	}

	if m.Retry.MaxRetries == 0 {
		logger.Warn("retry.max_retries is 0: soft failures will be re-queued forever and never promoted to a hard failure")
	}

	if m.Retry.HistoryLen < 0 {
		errs = append(errs, fmt.Errorf("retry.history_len must be >= 0, got %d", m.Retry.HistoryLen))
	}

	return errors.Join(errs...)
}

func validateMirror(mir *Mirror) []error {
	var errs []error

	if mir.Name == "" {
		errs = append(errs, errors.New("mirror entry missing required field \"name\""))
	}

	if mir.Server == "" {
		errs = append(errs, fmt.Errorf("mirror %q missing required field \"server\"", mir.Name))
	}

	if mir.BWLimitMbps < 0 {
		errs = append(errs, fmt.Errorf("mirror %q: bw_limit_mbps must be >= 0, got %v", mir.Name, mir.BWLimitMbps))
	}

	if mir.TimeoutMS < 0 {
		errs = append(errs, fmt.Errorf("mirror %q: timeout_ms must be >= 0, got %d", mir.Name, mir.TimeoutMS))
	}

	return errs
}
