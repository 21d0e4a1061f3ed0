package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Sensing   SensingConfig    `yaml:"sensing"`
	Pool      PoolConfig       `yaml:"pool"`
	Providers []ProviderConfig `yaml:"providers"`
	Audio     AudioConfig      `yaml:"audio"`
	Engine    EngineConfig     `yaml:"engine"`
	Session   SessionConfig    `yaml:"session"`
	Feedback  FeedbackConfig   `yaml:"feedback"`
	MQTT      MQTTConfig       `yaml:"mqtt"`
	HTTP      HTTPConfig       `yaml:"http"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// SensingConfig contains sensing loop cadences
type SensingConfig struct {
	TickInterval     float64 `yaml:"tick_interval"`     // seconds
	DispatchInterval float64 `yaml:"dispatch_interval"` // seconds
	AudioInterval    float64 `yaml:"audio_interval"`    // seconds
}

// PoolConfig contains inference pool configuration
type PoolConfig struct {
	Mode string `yaml:"mode"` // round_robin or ensemble
}

// ProviderConfig contains one VLM endpoint
type ProviderConfig struct {
	Name      string `yaml:"name"`
	BaseURL   string `yaml:"base_url"`
	ModelName string `yaml:"model_name"`
	Timeout   int    `yaml:"timeout"` // seconds
	Backoff   int    `yaml:"backoff"` // seconds
	MaxTokens int    `yaml:"max_tokens"`
}

// AudioConfig contains audio classification parameters
type AudioConfig struct {
	Enabled    bool    `yaml:"enabled"`
	SampleRate int     `yaml:"sample_rate"`
	WindowSize int     `yaml:"window_size"` // samples
	Smoothing  float64 `yaml:"smoothing"`
}

// EngineConfig contains state engine parameters
type EngineConfig struct {
	IdleTimeout   float64 `yaml:"idle_timeout"` // seconds
	CueBufferSize int     `yaml:"cue_buffer_size"`
}

// SessionConfig contains session artifact output configuration
type SessionConfig struct {
	OutputDir string `yaml:"output_dir"`
}

// FeedbackConfig contains spoken feedback configuration
type FeedbackConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Cooldown float64 `yaml:"cooldown"` // seconds between dwell warnings
}

// MQTTConfig contains the optional MQTT emitter configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Sensing.Validate(); err != nil {
		return fmt.Errorf("sensing config: %w", err)
	}

	if err := c.Pool.Validate(); err != nil {
		return fmt.Errorf("pool config: %w", err)
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("provider %d: %w", i, err)
		}
		if seen[p.Name] {
			return fmt.Errorf("provider %d: duplicate name '%s'", i, p.Name)
		}
		seen[p.Name] = true
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Feedback.Validate(); err != nil {
		return fmt.Errorf("feedback config: %w", err)
	}

	if err := c.MQTT.Validate(); err != nil {
		return fmt.Errorf("mqtt config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates sensing loop configuration
func (s *SensingConfig) Validate() error {
	if s.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %f", s.TickInterval)
	}

	if s.DispatchInterval < s.TickInterval {
		return fmt.Errorf("dispatch_interval (%f) must be at least tick_interval (%f)",
			s.DispatchInterval, s.TickInterval)
	}

	if s.AudioInterval < s.TickInterval {
		return fmt.Errorf("audio_interval (%f) must be at least tick_interval (%f)",
			s.AudioInterval, s.TickInterval)
	}

	return nil
}

// Validate validates pool configuration
func (p *PoolConfig) Validate() error {
	if p.Mode != "round_robin" && p.Mode != "ensemble" {
		return fmt.Errorf("mode must be 'round_robin' or 'ensemble', got '%s'", p.Mode)
	}

	return nil
}

// Validate validates one provider entry
func (p *ProviderConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	if p.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	if p.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative, got %d", p.Timeout)
	}

	if p.Backoff < 0 {
		return fmt.Errorf("backoff cannot be negative, got %d", p.Backoff)
	}

	if p.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative, got %d", p.MaxTokens)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if !a.Enabled {
		return nil
	}

	if a.SampleRate < 8000 {
		return fmt.Errorf("sample_rate must be at least 8000 Hz, got %d", a.SampleRate)
	}

	if a.WindowSize < 256 {
		return fmt.Errorf("window_size must be at least 256 samples, got %d", a.WindowSize)
	}

	if a.Smoothing < 0 || a.Smoothing > 1 {
		return fmt.Errorf("smoothing must be between 0 and 1, got %f", a.Smoothing)
	}

	return nil
}

// Validate validates state engine configuration
func (e *EngineConfig) Validate() error {
	if e.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got %f", e.IdleTimeout)
	}

	if e.CueBufferSize < 1 {
		return fmt.Errorf("cue_buffer_size must be at least 1, got %d", e.CueBufferSize)
	}

	return nil
}

// Validate validates feedback configuration
func (f *FeedbackConfig) Validate() error {
	if f.Cooldown < 0 {
		return fmt.Errorf("cooldown cannot be negative, got %f", f.Cooldown)
	}

	return nil
}

// Validate validates MQTT configuration
func (m *MQTTConfig) Validate() error {
	if m.Enabled {
		if m.Broker == "" {
			return fmt.Errorf("broker cannot be empty when MQTT is enabled")
		}

		if m.ClientID == "" {
			return fmt.Errorf("client_id cannot be empty when MQTT is enabled")
		}

		if m.QoS < 0 || m.QoS > 2 {
			return fmt.Errorf("qos must be 0, 1 or 2, got %d", m.QoS)
		}
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
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

	return nil
}

// GetTickInterval returns the sensing tick as a time.Duration
func (s *SensingConfig) GetTickInterval() time.Duration {
	return time.Duration(s.TickInterval * float64(time.Second))
}

// GetDispatchInterval returns the frame dispatch cadence as a time.Duration
func (s *SensingConfig) GetDispatchInterval() time.Duration {
	return time.Duration(s.DispatchInterval * float64(time.Second))
}

// GetAudioInterval returns the audio sampling cadence as a time.Duration
func (s *SensingConfig) GetAudioInterval() time.Duration {
	return time.Duration(s.AudioInterval * float64(time.Second))
}

// GetTimeoutDuration returns the provider timeout as a time.Duration
func (p *ProviderConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(p.Timeout) * time.Second
}

// GetBackoffDuration returns the provider backoff window as a time.Duration
func (p *ProviderConfig) GetBackoffDuration() time.Duration {
	return time.Duration(p.Backoff) * time.Second
}

// GetIdleTimeout returns the idle timeout as a time.Duration
func (e *EngineConfig) GetIdleTimeout() time.Duration {
	return time.Duration(e.IdleTimeout * float64(time.Second))
}

// GetCooldown returns the feedback cooldown as a time.Duration
func (f *FeedbackConfig) GetCooldown() time.Duration {
	return time.Duration(f.Cooldown * float64(time.Second))
}
