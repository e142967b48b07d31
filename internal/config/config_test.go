// ABOUTME: Tests for configuration loading
// ABOUTME: Covers defaults and environment overrides
package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, 2, cfg.Channels)
	assert.Equal(t, 2*time.Second, cfg.BufferTime)
	assert.Equal(t, 200*time.Millisecond, cfg.ThrottleInterval)
	assert.NotEmpty(t, cfg.ModelID)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SOUNDRIFT_SERVER", "gen.example.com:9000")
	t.Setenv("SOUNDRIFT_BUFFER_TIME", "500ms")
	t.Setenv("SOUNDRIFT_CHANNELS", "1")

	cfg := Load()

	assert.Equal(t, "gen.example.com:9000", cfg.ServerAddr)
	assert.Equal(t, 500*time.Millisecond, cfg.BufferTime)
	assert.Equal(t, 1, cfg.Channels)
}

func TestMalformedEnvFallsBack(t *testing.T) {
	t.Setenv("SOUNDRIFT_CHANNELS", "stereo")
	t.Setenv("SOUNDRIFT_BUFFER_TIME", "soon")

	cfg := Load()

	assert.Equal(t, 2, cfg.Channels)
	assert.Equal(t, 2*time.Second, cfg.BufferTime)
}
