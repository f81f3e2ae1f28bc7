package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// No config file exists in the test working directory; defaults apply.
	t.Setenv("CONFIG_ENV", "test-missing")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, int64(10<<20), cfg.ReadLimit)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 30*time.Second, cfg.RingTimeout)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.STUNServers)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("CONFIG_ENV", "broken")
	t.Chdir(t.TempDir())
	require.NoError(t, os.MkdirAll("config", 0o755))
	require.NoError(t, os.WriteFile("config/config.broken.yaml",
		[]byte("ring_timeout: [not, a, duration]\n"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}
