// Package config loads and validates the TOML manifest describing the
// resources to fetch and the mirrors to fetch them from.
package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// DefaultHistoryLen is used when a manifest's [retry] section omits
// history_len or sets it to 0.
const DefaultHistoryLen = 10

// Mirror is one [[mirror]] table: a server descriptor plus its own retry
// and transport knobs.
type Mirror struct {
	Name         string  `toml:"name"`
	Server       string  `toml:"server"`
	Dir          string  `toml:"dir"`
	Transport    string  `toml:"transport"`
	TransportVer string  `toml:"transport_ver"`
	BWLimitMbps  float64 `toml:"bw_limit_mbps"`
	QueueDepth   int     `toml:"queue_depth"`
	TimeoutMS    int     `toml:"timeout_ms"`
}

// RetryConfig is the [retry] table.
type RetryConfig struct {
	MaxRetries int `toml:"max_retries"`
	HistoryLen int `toml:"history_len"`
}

// Manifest is the fully parsed manifest file: one or more [[resource]]
// tables (scalar/list argument sets, expanded by internal/argbundle), one
// or more [[mirror]] tables (one httpmirror.Worker each), and the shared
// [retry] policy.
type Manifest struct {
	Resource []map[string]any `toml:"resource"`
	Mirror   []Mirror         `toml:"mirror"`
	Retry    RetryConfig      `toml:"retry"`
}

// Load reads and parses a manifest file, rejecting unknown top-level keys
// inside [[mirror]] and [retry] tables (mirroring the teacher's
// did-you-mean unknown-key check), and applies RetryConfig defaults.
func Load(path string, logger *slog.Logger) (*Manifest, error) {
	logger.Debug("loading manifest file", "path", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file %s: %w", path, err)
	}

	var m Manifest

	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if m.Retry.HistoryLen == 0 {
		m.Retry.HistoryLen = DefaultHistoryLen
	}

	if err := Validate(&m, logger); err != nil {
		return nil, fmt.Errorf("manifest validation failed: %w", err)
	}

	logger.Debug("manifest file parsed successfully",
		"path", path,
		"resource_count", len(m.Resource),
		"mirror_count", len(m.Mirror),
	)

	return &m, nil
}
