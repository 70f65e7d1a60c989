package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var tldPattern = regexp.MustCompile(`^[a-z]{2,3}(\.[a-z]{2,3})?$`)

// Config holds all configuration for the speech gateway service
type Config struct {
	// Server configuration
	Port             string `envconfig:"PORT" default:"8080"`
	HTTPReadTimeout  int    `envconfig:"HTTP_READ_TIMEOUT" default:"15"`  // seconds
	HTTPWriteTimeout int    `envconfig:"HTTP_WRITE_TIMEOUT" default:"60"` // seconds, covers a full synthesis
	HTTPIdleTimeout  int    `envconfig:"HTTP_IDLE_TIMEOUT" default:"60"`  // seconds
	ShutdownTimeout  int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"`   // seconds

	// Request limits
	MaxTextLength int `envconfig:"MAX_TEXT_LENGTH" default:"5000"` // in runes

	// Directory for transient audio files. Empty means os.TempDir().
	TempDir string `envconfig:"TEMP_DIR" default:""`

	// Edge TTS (streaming engine + voice catalog)
	EdgeWSSURL             string `envconfig:"EDGE_TTS_WSS_URL" default:"wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"`
	EdgeVoicesURL          string `envconfig:"EDGE_TTS_VOICES_URL" default:"https://speech.platform.bing.com/consumer/speech/synthesize/readaloud/voices/list"`
	EdgeTrustedClientToken string `envconfig:"EDGE_TTS_TRUSTED_CLIENT_TOKEN" default:"6A5AA1D4EAFF4E9FB37E23D68491D6F4"`
	EdgeDefaultVoice       string `envconfig:"EDGE_TTS_DEFAULT_VOICE" default:"en-US-AriaNeural"`
	EdgeOutputFormat       string `envconfig:"EDGE_TTS_OUTPUT_FORMAT" default:"audio-24khz-48kbitrate-mono-mp3"`
	EdgeTimeout            int    `envconfig:"EDGE_TTS_TIMEOUT" default:"30"` // seconds, per websocket turn and per voice list call

	// Google Translate TTS (file-based engine)
	GTTSHostTemplate      string `envconfig:"GTTS_HOST_TEMPLATE" default:"https://translate.google.{tld}"` // {tld} is replaced by the accent domain
	GTTSDefaultLang       string `envconfig:"GTTS_DEFAULT_LANG" default:"en"`
	GTTSDefaultTLD        string `envconfig:"GTTS_DEFAULT_TLD" default:"com"`
	GTTSRequestsPerMinute int    `envconfig:"GTTS_REQUESTS_PER_MINUTE" default:"50"`
	GTTSTimeout           int    `envconfig:"GTTS_TIMEOUT" default:"30"` // seconds

	// CORS policy
	CORSAllowedOrigins   []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	CORSAllowCredentials bool     `envconfig:"CORS_ALLOW_CREDENTIALS" default:"false"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"2"`             // Voice catalog fetch attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if c.MaxTextLength <= 0 {
		return fmt.Errorf("MAX_TEXT_LENGTH must be positive, got %d", c.MaxTextLength)
	}
	if c.GTTSRequestsPerMinute <= 0 {
		return fmt.Errorf("GTTS_REQUESTS_PER_MINUTE must be positive, got %d", c.GTTSRequestsPerMinute)
	}
	if !tldPattern.MatchString(c.GTTSDefaultTLD) {
		return fmt.Errorf("GTTS_DEFAULT_TLD %q is not a valid accent domain", c.GTTSDefaultTLD)
	}
	if c.EdgeDefaultVoice == "" {
		return fmt.Errorf("EDGE_TTS_DEFAULT_VOICE is required")
	}
	if c.CORSAllowCredentials {
		for _, origin := range c.CORSAllowedOrigins {
			if origin == "*" {
				return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be combined with a wildcard origin")
			}
		}
	}
	return nil
}

// TempDirectory returns the directory used for transient audio files
func (c *Config) TempDirectory() string {
	if c.TempDir == "" {
		return os.TempDir()
	}
	return c.TempDir
}

// Seconds converts one of the integer second settings into a duration
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
