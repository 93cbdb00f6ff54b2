package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default config is invalid: %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:     "invalid server port",
			mutate:   func(c *Config) { c.Server.Port = 70000 },
			errorMsg: "server config: port must be between 1 and 65535",
		},
		{
			name:     "unknown resampler",
			mutate:   func(c *Config) { c.Capture.Resampler = "cubic" },
			errorMsg: "capture config: resampler",
		},
		{
			name:     "target rate out of range",
			mutate:   func(c *Config) { c.Capture.TargetSampleRate = 4000 },
			errorMsg: "target_sample_rate",
		},
		{
			name:     "relative upstream url",
			mutate:   func(c *Config) { c.Upstream.BaseURL = "localhost:8000" },
			errorMsg: "upstream config: base_url",
		},
		{
			name:     "zero narrative limit",
			mutate:   func(c *Config) { c.Record.NarrativeLimit = 0 },
			errorMsg: "record config: narrative_limit",
		},
		{
			name:     "s3 without bucket",
			mutate:   func(c *Config) { c.Storage.Backend = "s3" },
			errorMsg: "storage config: s3.bucket",
		},
		{
			name:     "badger without dir",
			mutate:   func(c *Config) { c.State.Backend = "badger" },
			errorMsg: "state config: dir",
		},
		{
			name:     "unknown state backend",
			mutate:   func(c *Config) { c.State.Backend = "redis" },
			errorMsg: "backend must be 'memory' or 'badger'",
		},
		{
			name:     "invalid log level",
			mutate:   func(c *Config) { c.Logging.Level = "trace" },
			errorMsg: "logging config: level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			err := config.Validate()

			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Expected error but got none")
			} else if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name       string
		configYAML string
		errorMsg   string
		check      func(t *testing.T, c *Config)
	}{
		{
			name: "valid config file",
			configYAML: `
server:
  address: "0.0.0.0"
  port: 9000
capture:
  resampler: high_quality
  max_duration: 1800
upstream:
  base_url: "http://localhost:8000"
  api_key: "test-key"
  use_pubmed: true
storage:
  backend: s3
  s3:
    bucket: historias
    prefix: clinica
    endpoint: "http://minio:9000"
state:
  backend: badger
  dir: ./state
logging:
  level: debug
  format: json
`,
			check: func(t *testing.T, c *Config) {
				if c.Server.GetAddr() != "0.0.0.0:9000" {
					t.Errorf("Unexpected addr %s", c.Server.GetAddr())
				}
				if c.Capture.TargetSampleRate != 16000 {
					t.Errorf("Expected default target rate kept, got %d", c.Capture.TargetSampleRate)
				}
				if !c.Upstream.Enabled() || !c.Upstream.UsePubMed {
					t.Errorf("Unexpected upstream %+v", c.Upstream)
				}
				if c.Storage.S3.Bucket != "historias" || c.State.Dir != "./state" {
					t.Errorf("Unexpected storage/state %+v %+v", c.Storage, c.State)
				}
			},
		},
		{
			name:       "empty file uses defaults",
			configYAML: "",
			check: func(t *testing.T, c *Config) {
				if c.Upstream.Enabled() {
					t.Error("Expected upstream disabled by default")
				}
				if c.Record.NarrativeLimit != 350 {
					t.Errorf("Expected narrative limit 350, got %d", c.Record.NarrativeLimit)
				}
			},
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
server:
  port: invalid_number
`,
			errorMsg: "failed to parse",
		},
		{
			name: "invalid value",
			configYAML: `
storage:
  backend: ftp
`,
			errorMsg: "backend must be 'local' or 's3'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.errorMsg != "" {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			tt.check(t, config)
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatalf("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	server := ServerConfig{IdleTimeout: 60, ShutdownTimeout: 5}
	if server.GetIdleTimeoutDuration() != 60*time.Second {
		t.Errorf("Expected 60 seconds, got %v", server.GetIdleTimeoutDuration())
	}
	if server.GetShutdownTimeoutDuration() != 5*time.Second {
		t.Errorf("Expected 5 seconds, got %v", server.GetShutdownTimeoutDuration())
	}

	capture := CaptureConfig{MaxDuration: 1.5}
	if capture.GetMaxDuration() != 1500*time.Millisecond {
		t.Errorf("Expected 1.5 seconds, got %v", capture.GetMaxDuration())
	}

	upstream := UpstreamConfig{Timeout: 30, RetryBackoff: 0.25}
	if upstream.GetTimeoutDuration() != 30*time.Second {
		t.Errorf("Expected 30 seconds, got %v", upstream.GetTimeoutDuration())
	}
	if upstream.GetRetryBackoffDuration() != 250*time.Millisecond {
		t.Errorf("Expected 250ms, got %v", upstream.GetRetryBackoffDuration())
	}
}

func TestServerConfigValidation(t *testing.T) {
	valid := Default().Server
	tests := []struct {
		name   string
		mutate func(s *ServerConfig)
		valid  bool
	}{
		{"valid config", func(s *ServerConfig) {}, true},
		{"port too low", func(s *ServerConfig) { s.Port = 0 }, false},
		{"empty address", func(s *ServerConfig) { s.Address = "" }, false},
		{"no capture sessions", func(s *ServerConfig) { s.MaxCaptureSessions = 0 }, false},
		{"tiny messages", func(s *ServerConfig) { s.MaxMessageBytes = 100 }, false},
		{"negative shutdown", func(s *ServerConfig) { s.ShutdownTimeout = -1 }, false},
		{"allowed origins", func(s *ServerConfig) { s.AllowedOrigins = []string{"https://consultorio.example", "*"} }, true},
		{"origin without scheme", func(s *ServerConfig) { s.AllowedOrigins = []string{"consultorio.example"} }, false},
		{"origin with path", func(s *ServerConfig) { s.AllowedOrigins = []string{"https://consultorio.example/app"} }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			err := config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}
