// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"net"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/gridcap/gridcap/internal/core"
)

// Config is the top-level configuration. Maps to the `gridcap:` root key
// in YAML; env vars use the GRIDCAP_ prefix via the key replacer
// (e.g. key "gridcap.log.level" → env "GRIDCAP_LOG_LEVEL").
type Config struct {
	Capture CaptureConfig `mapstructure:"capture"`
	Stages  []StageConfig `mapstructure:"stages"`
	Sinks   []SinkConfig  `mapstructure:"sinks"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
}

// CaptureConfig configures the capture session.
type CaptureConfig struct {
	// Queue selects the receive queue implementation (afpacket, file,
	// memory); Params carries its implementation-specific settings.
	Queue  string         `mapstructure:"queue"`
	Params map[string]any `mapstructure:"params"`

	// NIC and accelerator identify the hardware pair. NIC must name a
	// present interface for the afpacket queue; the accelerator address,
	// when set, must be a PCI address.
	NIC         string `mapstructure:"nic"`
	Accelerator string `mapstructure:"accelerator"`

	Traffic       string `mapstructure:"traffic"` // tcp | udp
	Lanes         int    `mapstructure:"lanes"`
	RingSize      int    `mapstructure:"ring_size"`
	MaxPackets    int    `mapstructure:"max_packets"`
	PollTimeoutMs int    `mapstructure:"poll_timeout_ms"`
}

// StageConfig names one stage in chain order.
type StageConfig struct {
	Name   string         `mapstructure:"name"`
	Params map[string]any `mapstructure:"params"`
}

// SinkConfig names one sink.
type SinkConfig struct {
	Name   string         `mapstructure:"name"`
	Params map[string]any `mapstructure:"params"`
}

// IngestConfig configures the optional HTTP ingest server.
type IngestConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Listen       string `mapstructure:"listen"`
	Endpoint     string `mapstructure:"endpoint"`
	MaxQueueSize int    `mapstructure:"max_queue_size"`
	QueueTimeout string `mapstructure:"queue_timeout"`
}

// MetricsConfig contains metrics server settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string        `mapstructure:"level"`
	Format  string        `mapstructure:"format"` // json | text
	Outputs OutputsConfig `mapstructure:"outputs"`
}

// OutputsConfig selects log outputs. Stdout is always on.
type OutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

type configRoot struct {
	Gridcap Config `mapstructure:"gridcap"`
}

// Load loads and validates configuration from file.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Gridcap

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gridcap.capture.queue", "afpacket")
	v.SetDefault("gridcap.capture.traffic", "tcp")
	v.SetDefault("gridcap.capture.lanes", 8)
	v.SetDefault("gridcap.capture.ring_size", 32)
	v.SetDefault("gridcap.capture.max_packets", core.PacketsPerBlock)
	v.SetDefault("gridcap.capture.poll_timeout_ms", 100)

	v.SetDefault("gridcap.ingest.enabled", false)
	v.SetDefault("gridcap.ingest.listen", ":8088")
	v.SetDefault("gridcap.ingest.endpoint", "/message")
	v.SetDefault("gridcap.ingest.max_queue_size", 1024)
	v.SetDefault("gridcap.ingest.queue_timeout", "100ms")

	v.SetDefault("gridcap.metrics.enabled", true)
	v.SetDefault("gridcap.metrics.listen", ":9091")
	v.SetDefault("gridcap.metrics.path", "/metrics")

	v.SetDefault("gridcap.log.level", "info")
	v.SetDefault("gridcap.log.format", "json")
	v.SetDefault("gridcap.log.outputs.file.enabled", false)
	v.SetDefault("gridcap.log.outputs.file.path", "/var/log/gridcap/gridcap.log")
	v.SetDefault("gridcap.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("gridcap.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("gridcap.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("gridcap.log.outputs.file.rotation.compress", true)
}

// pciAddrRe matches a PCI bus address like 0000:3b:00.0.
var pciAddrRe = regexp.MustCompile(`^[0-9a-fA-F]{4}:[0-9a-fA-F]{2}:[0-9a-fA-F]{2}\.[0-7]$`)

// Validate checks the loaded configuration and applies runtime defaults.
// Construction parameters are validated here so an unreachable NIC or a
// malformed accelerator address fails before any capture state exists.
func (cfg *Config) Validate() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("%w: log level %q (must be debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("%w: log format %q (must be json/text)", core.ErrConfigInvalid, cfg.Log.Format)
	}

	// ── Capture validation ──
	if _, err := core.ParseTrafficType(cfg.Capture.Traffic); err != nil {
		return err
	}
	if cfg.Capture.RingSize <= 0 {
		return fmt.Errorf("%w: ring_size must be positive, got %d", core.ErrConfigInvalid, cfg.Capture.RingSize)
	}
	if cfg.Capture.MaxPackets <= 0 || cfg.Capture.MaxPackets > core.PacketsPerBlock {
		return fmt.Errorf("%w: max_packets must be in (0, %d], got %d",
			core.ErrConfigInvalid, core.PacketsPerBlock, cfg.Capture.MaxPackets)
	}
	if cfg.Capture.Lanes <= 0 {
		return fmt.Errorf("%w: lanes must be positive, got %d", core.ErrConfigInvalid, cfg.Capture.Lanes)
	}
	if cfg.Capture.Queue == "afpacket" {
		if cfg.Capture.NIC == "" {
			return fmt.Errorf("%w: afpacket queue requires capture.nic", core.ErrConfigInvalid)
		}
		if _, err := net.InterfaceByName(cfg.Capture.NIC); err != nil {
			return fmt.Errorf("%w: nic %q: %v", core.ErrConfigInvalid, cfg.Capture.NIC, err)
		}
	}
	if cfg.Capture.Accelerator != "" && !pciAddrRe.MatchString(cfg.Capture.Accelerator) {
		return fmt.Errorf("%w: accelerator %q is not a PCI address", core.ErrConfigInvalid, cfg.Capture.Accelerator)
	}

	// ── Capture params inherit session-level settings ──
	if cfg.Capture.Params == nil {
		cfg.Capture.Params = make(map[string]any)
	}
	if _, ok := cfg.Capture.Params["traffic"]; !ok {
		cfg.Capture.Params["traffic"] = cfg.Capture.Traffic
	}
	if _, ok := cfg.Capture.Params["device"]; !ok && cfg.Capture.NIC != "" {
		cfg.Capture.Params["device"] = cfg.Capture.NIC
	}

	// ── Sinks default ──
	if len(cfg.Sinks) == 0 {
		cfg.Sinks = []SinkConfig{{Name: "console"}}
	}
	return nil
}
