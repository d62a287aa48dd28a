package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config holds all device and server configuration
type Config struct {
	Port            int           `yaml:"port"`
	RedisURL        string        `yaml:"redis_url"`
	RedisPassword   string        `yaml:"redis_password"`
	SessionTimeout  time.Duration `yaml:"session_timeout"`
	GeminiAPIKey    string        `yaml:"gemini_api_key"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	KeepAlivePeriod time.Duration `yaml:"keepalive_period"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"` // "console" or "json"

	LiveModel           string `yaml:"live_model"`
	VoiceName           string `yaml:"voice_name"`
	CaptureDeviceRate   int    `yaml:"capture_device_rate"`   // Hz the microphone is opened at
	CaptureFrameSamples int    `yaml:"capture_frame_samples"` // samples per outbound frame
	OutputSampleRate    int    `yaml:"output_sample_rate"`
	Transcribe          bool   `yaml:"transcribe"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Port:                8080,
		RedisURL:            "localhost:6379",
		SessionTimeout:      30 * time.Minute,
		AllowedOrigins:      []string{"*"},
		KeepAlivePeriod:     30 * time.Second,
		LogLevel:            "info",
		LogFormat:           "console",
		LiveModel:           "models/gemini-2.5-flash-native-audio-preview-09-2025",
		VoiceName:           "Zephyr",
		CaptureDeviceRate:   16000,
		CaptureFrameSamples: 4096,
		OutputSampleRate:    24000,
	}
}

// LoadConfig loads configuration from an optional YAML file and environment
// variables. Environment variables win over the file.
func LoadConfig() (*Config, error) {
	return LoadConfigFile("")
}

// LoadConfigFile is LoadConfig with an explicit YAML path. An empty path
// falls back to OMNISTREAM_CONFIG.
func LoadConfigFile(path string) (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := Default()

	if path == "" {
		path = os.Getenv("OMNISTREAM_CONFIG")
	}
	if path != "" {
		if err := config.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}

	// Required: GEMINI_API_KEY
	if config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	return config, config.Validate()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.GeminiAPIKey = key
	}

	// Optional: PORT
	if err := envInt("PORT", &c.Port); err != nil {
		return err
	}

	// Optional: REDIS_URL
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.RedisURL = redisURL
	}

	// Optional: REDIS_PASSWORD
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		c.RedisPassword = redisPassword
	}

	// Optional: SESSION_TIMEOUT (in minutes)
	if timeout := os.Getenv("SESSION_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
		}
		c.SessionTimeout = time.Duration(t) * time.Minute
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		c.AllowedOrigins = strings.Split(origins, ",")
	}

	// Optional: KEEPALIVE_PERIOD (in seconds)
	if keepalive := os.Getenv("KEEPALIVE_PERIOD"); keepalive != "" {
		k, err := strconv.Atoi(keepalive)
		if err != nil {
			return fmt.Errorf("invalid KEEPALIVE_PERIOD: %w", err)
		}
		c.KeepAlivePeriod = time.Duration(k) * time.Second
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.LogFormat = format
	}
	if model := os.Getenv("LIVE_MODEL"); model != "" {
		c.LiveModel = model
	}
	if voice := os.Getenv("VOICE_NAME"); voice != "" {
		c.VoiceName = voice
	}

	if err := envInt("CAPTURE_DEVICE_RATE", &c.CaptureDeviceRate); err != nil {
		return err
	}
	if err := envInt("CAPTURE_FRAME_SAMPLES", &c.CaptureFrameSamples); err != nil {
		return err
	}
	if err := envInt("OUTPUT_SAMPLE_RATE", &c.OutputSampleRate); err != nil {
		return err
	}

	if transcribe := os.Getenv("TRANSCRIBE"); transcribe != "" {
		b, err := strconv.ParseBool(transcribe)
		if err != nil {
			return fmt.Errorf("invalid TRANSCRIBE: %w", err)
		}
		c.Transcribe = b
	}

	return nil
}

// Validate checks value ranges that the environment parser cannot
func (c *Config) Validate() error {
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT: must be 'console' or 'json'")
	}
	if c.CaptureDeviceRate <= 0 {
		return fmt.Errorf("invalid CAPTURE_DEVICE_RATE: %d", c.CaptureDeviceRate)
	}
	if c.CaptureFrameSamples <= 0 {
		return fmt.Errorf("invalid CAPTURE_FRAME_SAMPLES: %d", c.CaptureFrameSamples)
	}
	if c.OutputSampleRate <= 0 {
		return fmt.Errorf("invalid OUTPUT_SAMPLE_RATE: %d", c.OutputSampleRate)
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}
