package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mbocsi/blockyspot/engine"
	"github.com/mbocsi/blockyspot/server"
	"gopkg.in/yaml.v3"
)

// Config represents the gateway configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Admin  AdminConfig  `yaml:"admin"`
	Audio  AudioConfig  `yaml:"audio"`
	Engine EngineConfig `yaml:"engine"`
	MDNS   MDNSConfig   `yaml:"mdns"`
	MCP    MCPConfig    `yaml:"mcp"`
	Log    LogConfig    `yaml:"log"`
}

// ServerConfig configures the WebSocket gateway
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	Path           string        `yaml:"path"`
	Name           string        `yaml:"name,omitempty"`
	MaxConnections int           `yaml:"max_connections"` // 0 means unlimited
	ReadLimitBytes int64         `yaml:"read_limit_bytes"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

// AdminConfig configures the operator HTTP API
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// AudioConfig configures the audio stream sent to clients
type AudioConfig struct {
	SampleRate     int           `yaml:"sample_rate"`
	Channels       int           `yaml:"channels"`
	Format         string        `yaml:"format"` // engine output format, e.g. S16, F32
	ChunkMs        int           `yaml:"chunk_ms"`
	PacingInterval time.Duration `yaml:"pacing_interval"`
}

// EngineConfig selects the playback engine
type EngineConfig struct {
	Kind          string        `yaml:"kind"`
	ToneFrequency float64       `yaml:"tone_frequency"`
	Tracks        int           `yaml:"tracks"`
	TrackLength   time.Duration `yaml:"track_length"`
}

// MDNSConfig controls service advertisement
type MDNSConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// MCPConfig controls the stdio MCP server
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig controls logging
type LogConfig struct {
	Level string `yaml:"level"`
}

const EngineTone = "tone"

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           "0.0.0.0:8080",
			Path:           server.DefaultPath,
			Name:           "Blockyspot gateway",
			MaxConnections: server.DefaultMaxClients,
			ReadLimitBytes: server.DefaultReadLimit,
			WriteTimeout:   server.DefaultWriteTimeout,
			PingInterval:   server.DefaultPingInterval,
		},
		Admin: AdminConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8081",
		},
		Audio: AudioConfig{
			SampleRate:     server.DefaultSampleRate,
			Channels:       server.DefaultChannels,
			Format:         engine.FormatS16.String(),
			ChunkMs:        int(server.DefaultChunkDuration / time.Millisecond),
			PacingInterval: server.DefaultPacingInterval,
		},
		Engine: EngineConfig{
			Kind:          EngineTone,
			ToneFrequency: 440,
			Tracks:        8,
			TrackLength:   3 * time.Minute,
		},
		MDNS: MDNSConfig{
			Enabled:     false,
			ServiceName: "Blockyspot",
		},
		MCP: MCPConfig{
			Enabled: false,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from file. Keys missing from the file keep
// their defaults; a missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to file
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path must start with /: %q", c.Server.Path)
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must not be negative")
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive")
	}
	if c.Audio.Channels <= 0 || c.Audio.Channels > 8 {
		return fmt.Errorf("audio.channels must be between 1 and 8")
	}
	if c.Audio.ChunkMs <= 0 {
		return fmt.Errorf("audio.chunk_ms must be positive")
	}
	if c.Audio.PacingInterval < 0 {
		return fmt.Errorf("audio.pacing_interval must not be negative")
	}
	if _, err := engine.ParseAudioFormat(c.Audio.Format); err != nil {
		return fmt.Errorf("audio.format: %w", err)
	}
	if c.Engine.Kind != EngineTone {
		return fmt.Errorf("engine.kind %q is not supported", c.Engine.Kind)
	}
	if c.Admin.Enabled && c.Admin.Addr == "" {
		return fmt.Errorf("admin.addr is required when the admin API is enabled")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	return nil
}

// StreamAudio converts the audio section for the stream adapter.
func (c *Config) StreamAudio() (server.AudioConfig, error) {
	format, err := engine.ParseAudioFormat(c.Audio.Format)
	if err != nil {
		return server.AudioConfig{}, err
	}
	return server.AudioConfig{
		SampleRate:     c.Audio.SampleRate,
		Channels:       c.Audio.Channels,
		Format:         format,
		ChunkDuration:  time.Duration(c.Audio.ChunkMs) * time.Millisecond,
		PacingInterval: c.Audio.PacingInterval,
	}, nil
}

// LogLevel returns the configured slog level, defaulting to info.
func (c *Config) LogLevel() slog.Level {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// Port returns the numeric port of server.addr.
func (c *Config) Port() (int, error) {
	_, port, err := net.SplitHostPort(c.Server.Addr)
	if err != nil {
		return 0, fmt.Errorf("server.addr: %w", err)
	}
	return strconv.Atoi(port)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
