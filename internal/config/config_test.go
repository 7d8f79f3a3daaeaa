package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kimberlite/internal/recordlog"
	"kimberlite/internal/schema"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kimberlite.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
data_dir = "/var/lib/kimberlite"
compression = "zstd"
region = "us-east-1"

[rate_limit]
max_requests = 100
window_seconds = 60

[classification]
patients = "PHI"
billing = "PCI"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/kimberlite", cfg.DataDir)

	kind, err := cfg.CompressionKind()
	require.NoError(t, err)
	assert.Equal(t, recordlog.CompressionZstd, kind)

	assert.Equal(t, schema.PlacementRegion, cfg.Placement().Kind)
	assert.Equal(t, schema.RegionUSEast1, cfg.Placement().Region.Tag)

	rl := cfg.RateLimiter()
	require.NotNil(t, rl)
	assert.Equal(t, 100, rl.MaxRequests)
	assert.Equal(t, time.Minute, rl.Window)

	class, ok := cfg.ClassOverride("patients")
	require.True(t, ok)
	assert.Equal(t, schema.DataClassPHI, class)
	_, ok = cfg.ClassOverride("events")
	assert.False(t, ok)
}

func TestDefaultsWhenFieldsOmitted(t *testing.T) {
	path := writeConfig(t, `data_dir = "d"`)
	cfg, err := Load(path)
	require.NoError(t, err)

	kind, err := cfg.CompressionKind()
	require.NoError(t, err)
	assert.Equal(t, recordlog.CompressionNone, kind)
	assert.Equal(t, schema.PlacementGlobal, cfg.Placement().Kind)
	assert.Nil(t, cfg.RateLimiter())
}

func TestLoadRejectsUnknownCompression(t *testing.T) {
	path := writeConfig(t, `
data_dir = "d"
compression = "snappy"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsHalfConfiguredRateLimit(t *testing.T) {
	path := writeConfig(t, `
data_dir = "d"

[rate_limit]
max_requests = 10
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownClassOverride(t *testing.T) {
	path := writeConfig(t, `
data_dir = "d"

[classification]
events = "TOPSECRET"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestCustomRegionPlacement(t *testing.T) {
	cfg := Default()
	cfg.Region = "eu-central-1"
	p := cfg.Placement()
	assert.Equal(t, schema.PlacementRegion, p.Kind)
	assert.Equal(t, schema.RegionCustom, p.Region.Tag)
	assert.Equal(t, "eu-central-1", p.Region.Name)
}
