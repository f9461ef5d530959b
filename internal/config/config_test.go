package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridcap/gridcap/internal/core"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
gridcap:
  capture:
    queue: file
    params:
      path: /tmp/capture.pcap
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Capture.Queue)
	assert.Equal(t, "tcp", cfg.Capture.Traffic)
	assert.Equal(t, 8, cfg.Capture.Lanes)
	assert.Equal(t, 32, cfg.Capture.RingSize)
	assert.Equal(t, core.PacketsPerBlock, cfg.Capture.MaxPackets)
	assert.Equal(t, 100, cfg.Capture.PollTimeoutMs)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9091", cfg.Metrics.Listen)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	assert.False(t, cfg.Ingest.Enabled)
	assert.Equal(t, "/message", cfg.Ingest.Endpoint)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// Sinks default to console when none configured.
	require.Len(t, cfg.Sinks, 1)
	assert.Equal(t, "console", cfg.Sinks[0].Name)

	// Params inherit the session traffic type.
	assert.Equal(t, "tcp", cfg.Capture.Params["traffic"])
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
gridcap:
  capture:
    queue: file
    traffic: udp
    lanes: 4
    ring_size: 16
    max_packets: 1024
    accelerator: "0000:3b:00.0"
    params:
      path: /tmp/capture.pcap
  stages:
    - name: add_scores
      params:
        columns:
          fill: payload_ratio
    - name: serialize
      params:
        exclude: ["^payload$"]
  sinks:
    - name: kafka
      params:
        brokers: ["localhost:9092"]
        topic: packets
  ingest:
    enabled: true
    listen: ":8099"
  log:
    level: debug
    format: text
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "udp", cfg.Capture.Traffic)
	assert.Equal(t, 4, cfg.Capture.Lanes)
	assert.Equal(t, 16, cfg.Capture.RingSize)
	assert.Equal(t, 1024, cfg.Capture.MaxPackets)
	assert.Equal(t, "0000:3b:00.0", cfg.Capture.Accelerator)

	require.Len(t, cfg.Stages, 2)
	assert.Equal(t, "add_scores", cfg.Stages[0].Name)
	assert.Equal(t, "serialize", cfg.Stages[1].Name)

	require.Len(t, cfg.Sinks, 1)
	assert.Equal(t, "kafka", cfg.Sinks[0].Name)

	assert.True(t, cfg.Ingest.Enabled)
	assert.Equal(t, ":8099", cfg.Ingest.Listen)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "udp", cfg.Capture.Params["traffic"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yml")
	assert.Error(t, err)
}

func TestValidateRejections(t *testing.T) {
	base := func() Config {
		return Config{
			Capture: CaptureConfig{
				Queue:         "file",
				Traffic:       "tcp",
				Lanes:         8,
				RingSize:      32,
				MaxPackets:    core.PacketsPerBlock,
				PollTimeoutMs: 100,
			},
			Log: LogConfig{Level: "info", Format: "json"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }},
		{"bad traffic", func(c *Config) { c.Capture.Traffic = "icmp" }},
		{"zero ring", func(c *Config) { c.Capture.RingSize = 0 }},
		{"zero max packets", func(c *Config) { c.Capture.MaxPackets = 0 }},
		{"oversized max packets", func(c *Config) { c.Capture.MaxPackets = core.PacketsPerBlock + 1 }},
		{"zero lanes", func(c *Config) { c.Capture.Lanes = 0 }},
		{"afpacket without nic", func(c *Config) { c.Capture.Queue = "afpacket" }},
		{"bad accelerator", func(c *Config) { c.Capture.Accelerator = "3b:00.0" }},
		{"bad accelerator function", func(c *Config) { c.Capture.Accelerator = "0000:3b:00.8" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, core.ErrConfigInvalid)
		})
	}
}

func TestValidateAcceptsPCIAddress(t *testing.T) {
	cfg := Config{
		Capture: CaptureConfig{
			Queue:       "file",
			Traffic:     "udp",
			Lanes:       1,
			RingSize:    1,
			MaxPackets:  1,
			Accelerator: "0000:CA:00.7",
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
	assert.NoError(t, cfg.Validate())
}

func TestValidateKeepsExplicitParams(t *testing.T) {
	cfg := Config{
		Capture: CaptureConfig{
			Queue:      "file",
			Traffic:    "tcp",
			Lanes:      1,
			RingSize:   1,
			MaxPackets: 1,
			Params:     map[string]any{"traffic": "udp", "path": "x.pcap"},
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "udp", cfg.Capture.Params["traffic"])
}
