package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Future-Outlier/smart-glass-OS-system-AugmentOS-sub006/wire"
)

// Config is the complete server configuration.
type Config struct {
	UDP       UDPConfig       `yaml:"udp"`
	Signaling SignalingConfig `yaml:"signaling"`
	Probe     ProbeConfig     `yaml:"probe"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// UDPConfig configures the audio receiver.
type UDPConfig struct {
	Port        int    `yaml:"port"`
	BindAddress string `yaml:"bind_address"`
	// AdvertiseHost is the address clients are told to send to. Usually
	// the public address of this host, not the bind address.
	AdvertiseHost string `yaml:"advertise_host"`
	// ReadBuffer is the kernel receive buffer size in bytes.
	ReadBuffer int `yaml:"read_buffer"`
	// CryptoEnabled turns on per-session payload encryption; the key is
	// delivered to the client in connection_ack.
	CryptoEnabled bool `yaml:"crypto_enabled"`
}

// SignalingConfig configures the websocket control endpoint.
type SignalingConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`

	// Liveness tuning, in seconds. Zero keeps the client defaults.
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
	StallSeconds     int `yaml:"stall_seconds"`
	ReconnectSeconds int `yaml:"reconnect_seconds"`
}

// ProbeConfig tunes client-side UDP reachability probing.
type ProbeConfig struct {
	InitialDelayMillis  int `yaml:"initial_delay_ms"`
	Count               int `yaml:"count"`
	IntervalMillis      int `yaml:"interval_ms"`
	AckTimeoutMillis    int `yaml:"ack_timeout_ms"`
	RetryIntervalMillis int `yaml:"retry_interval_ms"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures logrus.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file or field overrides it.
func Default() Config {
	return Config{
		UDP: UDPConfig{
			Port:          wire.DefaultPort,
			BindAddress:   "0.0.0.0",
			AdvertiseHost: "127.0.0.1",
			ReadBuffer:    1024 * 1024,
		},
		Signaling: SignalingConfig{
			Address: "0.0.0.0",
			Port:    8080,
			Path:    "/glasses-ws",
		},
		Probe: ProbeConfig{
			InitialDelayMillis:  500,
			Count:               3,
			IntervalMillis:      200,
			AckTimeoutMillis:    2000,
			RetryIntervalMillis: 5000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Address: "0.0.0.0",
			Port:    9090,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the file at path over the defaults. An empty path returns the
// defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.UDP.Validate(); err != nil {
		return fmt.Errorf("udp config: %w", err)
	}
	if err := c.Signaling.Validate(); err != nil {
		return fmt.Errorf("signaling config: %w", err)
	}
	if err := c.Probe.Validate(); err != nil {
		return fmt.Errorf("probe config: %w", err)
	}
	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

func (u *UDPConfig) Validate() error {
	if u.Port < 1 || u.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", u.Port)
	}
	if u.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}
	if u.AdvertiseHost == "" {
		return fmt.Errorf("advertise_host cannot be empty")
	}
	if u.ReadBuffer < wire.MaxPacketSize {
		return fmt.Errorf("read_buffer must be at least %d bytes, got %d", wire.MaxPacketSize, u.ReadBuffer)
	}
	return nil
}

func (s *SignalingConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}
	if s.Path == "" || s.Path[0] != '/' {
		return fmt.Errorf("path must start with '/', got %q", s.Path)
	}
	if s.HeartbeatSeconds < 0 || s.StallSeconds < 0 || s.ReconnectSeconds < 0 {
		return fmt.Errorf("liveness intervals cannot be negative")
	}
	if s.StallSeconds != 0 && s.HeartbeatSeconds != 0 && s.StallSeconds <= s.HeartbeatSeconds {
		return fmt.Errorf("stall_seconds (%d) must exceed heartbeat_seconds (%d)",
			s.StallSeconds, s.HeartbeatSeconds)
	}
	return nil
}

func (p *ProbeConfig) Validate() error {
	if p.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", p.Count)
	}
	if p.InitialDelayMillis < 0 || p.IntervalMillis < 0 || p.RetryIntervalMillis < 0 {
		return fmt.Errorf("probe intervals cannot be negative")
	}
	if p.AckTimeoutMillis < 1 {
		return fmt.Errorf("ack_timeout_ms must be positive, got %d", p.AckTimeoutMillis)
	}
	return nil
}

func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}
	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", m.Port)
	}
	if m.Path == "" || m.Path[0] != '/' {
		return fmt.Errorf("path must start with '/', got %q", m.Path)
	}
	return nil
}

func (l *LoggingConfig) Validate() error {
	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	switch l.Format {
	case "text", "json":
	default:
		return fmt.Errorf("format must be 'text' or 'json', got %q", l.Format)
	}
	return nil
}

// HeartbeatInterval returns the signaling heartbeat period, zero meaning
// "use the built-in default".
func (s *SignalingConfig) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatSeconds) * time.Second
}

// StallTimeout returns the liveness stall threshold.
func (s *SignalingConfig) StallTimeout() time.Duration {
	return time.Duration(s.StallSeconds) * time.Second
}

// ReconnectInterval returns the reconnect backoff period.
func (s *SignalingConfig) ReconnectInterval() time.Duration {
	return time.Duration(s.ReconnectSeconds) * time.Second
}

// InitialDelay returns the pre-probe settling delay.
func (p *ProbeConfig) InitialDelay() time.Duration {
	return time.Duration(p.InitialDelayMillis) * time.Millisecond
}

// Interval returns the gap between probes in one burst.
func (p *ProbeConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMillis) * time.Millisecond
}

// AckTimeout returns the acknowledgment deadline per attempt.
func (p *ProbeConfig) AckTimeout() time.Duration {
	return time.Duration(p.AckTimeoutMillis) * time.Millisecond
}

// RetryInterval returns the gap between failed attempts.
func (p *ProbeConfig) RetryInterval() time.Duration {
	return time.Duration(p.RetryIntervalMillis) * time.Millisecond
}
