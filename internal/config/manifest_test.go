package config_test

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirrorkit/fedget/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeManifest(t *testing.T, body string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "mirrors.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

const validManifest = `
[[resource]]
code      = ["0000", "0001", "0002"]
file_type = "txt"

[[mirror]]
name          = "east"
server        = "mirror-east.example.org"
dir           = "/data"
transport     = "https"
transport_ver = "2"
bw_limit_mbps = 5.0
queue_depth   = 8
timeout_ms    = 30000

[retry]
max_retries  = 3
history_len  = 20
`

func TestLoad_ValidManifest(t *testing.T) {
	path := writeManifest(t, validManifest)

	m, err := config.Load(path, discardLogger())
	require.NoError(t, err)

	require.Len(t, m.Resource, 1)
	require.Len(t, m.Mirror, 1)
	assert.Equal(t, "east", m.Mirror[0].Name)
	assert.Equal(t, 3, m.Retry.MaxRetries)
	assert.Equal(t, 20, m.Retry.HistoryLen)
}

func TestLoad_HistoryLenDefaultedWhenOmitted(t *testing.T) {
	path := writeManifest(t, `
[[mirror]]
name   = "east"
server = "mirror-east.example.org"

[retry]
max_retries = 1
`)

	m, err := config.Load(path, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, config.DefaultHistoryLen, m.Retry.HistoryLen)
}

func TestLoad_RejectsUnknownMirrorKey(t *testing.T) {
	path := writeManifest(t, `
[[mirror]]
name    = "east"
server  = "mirror-east.example.org"
servre  = "typo"
`)

	_, err := config.Load(path, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")
}

func TestLoad_RejectsNoMirrors(t *testing.T) {
	path := writeManifest(t, `
[[resource]]
file_type = "txt"
`)

	_, err := config.Load(path, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one")
}

func TestValidate_DuplicateMirrorNames(t *testing.T) {
	path := writeManifest(t, `
[[mirror]]
name   = "east"
server = "a.example.org"

[[mirror]]
name   = "east"
server = "b.example.org"
`)

	_, err := config.Load(path, discardLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate mirror name")
}
