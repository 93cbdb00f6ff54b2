package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Capture  CaptureConfig  `yaml:"capture"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Record   RecordConfig   `yaml:"record"`
	Storage  StorageConfig  `yaml:"storage"`
	State    StateConfig    `yaml:"state"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP API server configuration
type ServerConfig struct {
	Address            string `yaml:"address"`
	Port               int    `yaml:"port"`
	MaxCaptureSessions int    `yaml:"max_capture_sessions"`
	MaxMessageBytes    int64  `yaml:"max_message_bytes"`
	IdleTimeout        int    `yaml:"idle_timeout"`     // seconds
	ShutdownTimeout    int    `yaml:"shutdown_timeout"` // seconds

	// AllowedOrigins lists the browser origins, besides the server's own,
	// that may open the capture socket. "*" allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// CaptureConfig contains capture and encoding parameters
type CaptureConfig struct {
	TargetSampleRate int     `yaml:"target_sample_rate"`
	MaxDuration      float64 `yaml:"max_duration"` // seconds, 0 = unbounded
	Resampler        string  `yaml:"resampler"`
	DeviceSampleRate int     `yaml:"device_sample_rate"`
	FramesPerBuffer  int     `yaml:"frames_per_buffer"`
}

// UpstreamConfig contains the collaborator service configuration. An
// empty base_url disables remote calls.
type UpstreamConfig struct {
	BaseURL       string  `yaml:"base_url"`
	APIKey        string  `yaml:"api_key"`
	Timeout       int     `yaml:"timeout"` // seconds
	MaxRetries    int     `yaml:"max_retries"`
	MaxConcurrent int     `yaml:"max_concurrent"`
	RetryBackoff  float64 `yaml:"retry_backoff"` // seconds
	UploadOnStop  bool    `yaml:"upload_on_stop"`
	UsePubMed     bool    `yaml:"use_pubmed"`
	PubMedMax     int     `yaml:"pubmed_max"`
}

// RecordConfig contains clinical record handling parameters
type RecordConfig struct {
	NarrativeLimit int    `yaml:"narrative_limit"` // runes
	SchemaID       string `yaml:"schema_id"`
}

// StorageConfig selects where finished consultations are archived
type StorageConfig struct {
	Backend string   `yaml:"backend"`
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

// S3Config contains S3-compatible bucket settings
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// StateConfig selects the queue and session store
type StateConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a valid configuration for local use
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:            "127.0.0.1",
			Port:               8080,
			MaxCaptureSessions: 4,
			MaxMessageBytes:    1 << 20,
			IdleTimeout:        60,
			ShutdownTimeout:    10,
		},
		Capture: CaptureConfig{
			TargetSampleRate: 16000,
			Resampler:        "nearest",
			DeviceSampleRate: 48000,
			FramesPerBuffer:  128,
		},
		Upstream: UpstreamConfig{
			Timeout:       60,
			MaxRetries:    2,
			MaxConcurrent: 4,
			RetryBackoff:  0.5,
			UploadOnStop:  true,
			PubMedMax:     3,
		},
		Record: RecordConfig{
			NarrativeLimit: 350,
			SchemaID:       "auto",
		},
		Storage: StorageConfig{
			Backend: "local",
			Dir:     "./historias",
		},
		State: StateConfig{
			Backend: "memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file. Keys absent from the file
// keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Upstream.Validate(); err != nil {
		return fmt.Errorf("upstream config: %w", err)
	}

	if err := c.Record.Validate(); err != nil {
		return fmt.Errorf("record config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}

	if err := c.State.Validate(); err != nil {
		return fmt.Errorf("state config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.MaxCaptureSessions < 1 {
		return fmt.Errorf("max_capture_sessions must be at least 1, got %d", s.MaxCaptureSessions)
	}

	if s.MaxMessageBytes < 4096 {
		return fmt.Errorf("max_message_bytes must be at least 4096, got %d", s.MaxMessageBytes)
	}

	if s.IdleTimeout < 1 {
		return fmt.Errorf("idle_timeout must be at least 1 second, got %d", s.IdleTimeout)
	}

	if s.ShutdownTimeout < 0 {
		return fmt.Errorf("shutdown_timeout cannot be negative, got %d", s.ShutdownTimeout)
	}

	for _, origin := range s.AllowedOrigins {
		if origin == "*" {
			continue
		}
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") {
			return fmt.Errorf("allowed_origins entry %q must be scheme://host[:port] or *", origin)
		}
	}

	return nil
}

// Validate validates capture configuration
func (c *CaptureConfig) Validate() error {
	if c.TargetSampleRate < 8000 || c.TargetSampleRate > 48000 {
		return fmt.Errorf("target_sample_rate must be between 8000 and 48000 Hz, got %d", c.TargetSampleRate)
	}

	if c.MaxDuration < 0 {
		return fmt.Errorf("max_duration cannot be negative, got %f", c.MaxDuration)
	}

	validResamplers := map[string]bool{"nearest": true, "high_quality": true}
	if !validResamplers[c.Resampler] {
		return fmt.Errorf("resampler must be 'nearest' or 'high_quality', got '%s'", c.Resampler)
	}

	if c.DeviceSampleRate < 8000 || c.DeviceSampleRate > 192000 {
		return fmt.Errorf("device_sample_rate must be between 8000 and 192000 Hz, got %d", c.DeviceSampleRate)
	}

	if c.FramesPerBuffer < 64 || c.FramesPerBuffer > 8192 {
		return fmt.Errorf("frames_per_buffer must be between 64 and 8192, got %d", c.FramesPerBuffer)
	}

	return nil
}

// Validate validates upstream configuration
func (u *UpstreamConfig) Validate() error {
	if u.BaseURL != "" {
		parsed, err := url.Parse(u.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("base_url must be an absolute URL, got '%s'", u.BaseURL)
		}
	}

	if u.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", u.Timeout)
	}

	if u.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", u.MaxRetries)
	}

	if u.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", u.MaxConcurrent)
	}

	if u.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff cannot be negative, got %f", u.RetryBackoff)
	}

	if u.PubMedMax < 0 {
		return fmt.Errorf("pubmed_max cannot be negative, got %d", u.PubMedMax)
	}

	return nil
}

// Enabled reports whether remote calls are configured
func (u *UpstreamConfig) Enabled() bool {
	return u.BaseURL != ""
}

// Validate validates record configuration
func (r *RecordConfig) Validate() error {
	if r.NarrativeLimit < 1 {
		return fmt.Errorf("narrative_limit must be at least 1, got %d", r.NarrativeLimit)
	}

	if r.SchemaID == "" {
		return fmt.Errorf("schema_id cannot be empty")
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case "local":
		if s.Dir == "" {
			return fmt.Errorf("dir cannot be empty for local storage")
		}
	case "s3":
		if s.S3.Bucket == "" {
			return fmt.Errorf("s3.bucket cannot be empty for s3 storage")
		}
	default:
		return fmt.Errorf("backend must be 'local' or 's3', got '%s'", s.Backend)
	}

	return nil
}

// Validate validates state configuration
func (s *StateConfig) Validate() error {
	switch s.Backend {
	case "memory":
	case "badger":
		if s.Dir == "" {
			return fmt.Errorf("dir cannot be empty for badger state")
		}
	default:
		return fmt.Errorf("backend must be 'memory' or 'badger', got '%s'", s.Backend)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// output is stdout, stderr or a file path
	return nil
}

// GetAddr returns the listen address of the HTTP server
func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// GetIdleTimeoutDuration returns the idle timeout as a time.Duration
func (s *ServerConfig) GetIdleTimeoutDuration() time.Duration {
	return time.Duration(s.IdleTimeout) * time.Second
}

// GetShutdownTimeoutDuration returns the shutdown timeout as a time.Duration
func (s *ServerConfig) GetShutdownTimeoutDuration() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// GetMaxDuration returns the capture length limit as a time.Duration
func (c *CaptureConfig) GetMaxDuration() time.Duration {
	return time.Duration(c.MaxDuration * float64(time.Second))
}

// GetTimeoutDuration returns the upstream timeout as a time.Duration
func (u *UpstreamConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(u.Timeout) * time.Second
}

// GetRetryBackoffDuration returns the base retry backoff as a time.Duration
func (u *UpstreamConfig) GetRetryBackoffDuration() time.Duration {
	return time.Duration(u.RetryBackoff * float64(time.Second))
}
