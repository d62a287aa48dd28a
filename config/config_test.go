package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("OMNISTREAM_CONFIG", "")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error without GEMINI_API_KEY")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("OMNISTREAM_CONFIG", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.CaptureFrameSamples != 4096 {
		t.Errorf("CaptureFrameSamples = %d, want 4096", cfg.CaptureFrameSamples)
	}
	if cfg.OutputSampleRate != 24000 {
		t.Errorf("OutputSampleRate = %d, want 24000", cfg.OutputSampleRate)
	}
	if cfg.SessionTimeout != 30*time.Minute {
		t.Errorf("SessionTimeout = %v", cfg.SessionTimeout)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("OMNISTREAM_CONFIG", "")
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_TIMEOUT", "5")
	t.Setenv("ALLOWED_ORIGINS", "http://a,http://b")
	t.Setenv("CAPTURE_DEVICE_RATE", "48000")
	t.Setenv("TRANSCRIBE", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 9090 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.SessionTimeout != 5*time.Minute {
		t.Errorf("SessionTimeout = %v", cfg.SessionTimeout)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.CaptureDeviceRate != 48000 {
		t.Errorf("CaptureDeviceRate = %d", cfg.CaptureDeviceRate)
	}
	if !cfg.Transcribe {
		t.Error("Transcribe = false")
	}
}

func TestLoadConfigInvalidValues(t *testing.T) {
	for _, tt := range []struct{ name, value string }{
		{"PORT", "eighty"},
		{"CAPTURE_FRAME_SAMPLES", "0"},
		{"LOG_FORMAT", "xml"},
		{"TRANSCRIBE", "maybe"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "k")
			t.Setenv("OMNISTREAM_CONFIG", "")
			t.Setenv(tt.name, tt.value)
			if _, err := LoadConfig(); err == nil {
				t.Fatalf("%s=%q: expected error", tt.name, tt.value)
			}
		})
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "omnistream.yaml")
	data := []byte("port: 7000\nvoice_name: Puck\nlog_format: json\ncapture_frame_samples: 2048\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("OMNISTREAM_CONFIG", path)
	t.Setenv("PORT", "7001")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 7001 {
		t.Errorf("Port = %d, want env override 7001", cfg.Port)
	}
	if cfg.VoiceName != "Puck" {
		t.Errorf("VoiceName = %q", cfg.VoiceName)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q", cfg.LogFormat)
	}
	if cfg.CaptureFrameSamples != 2048 {
		t.Errorf("CaptureFrameSamples = %d", cfg.CaptureFrameSamples)
	}
}

func TestLoadConfigFileExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	if err := os.WriteFile(path, []byte("live_model: models/other\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("OMNISTREAM_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if cfg.LiveModel != "models/other" {
		t.Errorf("LiveModel = %q", cfg.LiveModel)
	}
}
