// ABOUTME: Runtime configuration from environment variables
// ABOUTME: Loads .env first, then env with defaults, overridable by flags
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration.
type Config struct {
	// Generation service
	ServerAddr string
	ModelID    string

	// Negotiated output format. The service declares a legacy mime rate on
	// each segment; decode always uses these values instead.
	SampleRate int
	Channels   int

	// Playback
	BufferTime       time.Duration // pre-roll before audio starts
	ThrottleInterval time.Duration // min spacing of outbound updates

	// Files
	PromptStorePath string
	RecordPath      string

	// Observability
	MetricsAddr string
	LogFile     string
}

// Load reads configuration from a .env file (if present) and the
// environment, with defaults matching the hosted service contract.
func Load() Config {
	// Missing .env is the normal case, not an error.
	_ = godotenv.Load()

	home, _ := os.UserHomeDir()
	defaultStore := filepath.Join(home, ".soundrift", "prompts.json")

	return Config{
		ServerAddr: envStr("SOUNDRIFT_SERVER", ""),
		ModelID:    envStr("SOUNDRIFT_MODEL", "models/realtime-music-001"),

		SampleRate: envInt("SOUNDRIFT_SAMPLE_RATE", 48000),
		Channels:   envInt("SOUNDRIFT_CHANNELS", 2),

		BufferTime:       envDuration("SOUNDRIFT_BUFFER_TIME", 2*time.Second),
		ThrottleInterval: envDuration("SOUNDRIFT_THROTTLE", 200*time.Millisecond),

		PromptStorePath: envStr("SOUNDRIFT_PROMPTS", defaultStore),
		RecordPath:      envStr("SOUNDRIFT_RECORD_PATH", "soundrift-session.wav"),

		MetricsAddr: envStr("SOUNDRIFT_METRICS_ADDR", ""),
		LogFile:     envStr("SOUNDRIFT_LOG_FILE", "soundrift.log"),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
