// Package config implements C7's configuration half: parsing
// config.toml and constructing the bridge-wide and Signal-sub-layer
// loggers (C8, SPEC_FULL.md §4.8).
package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"
	"github.com/rs/zerolog"

	"github.com/dq1Mango/meshtastic-2-signal/internal/signal"
)

// Config is the small on-disk configuration spec §6 describes: the
// bridged group's master key and the bridged mesh channel index.
type Config struct {
	GroupKey     string `toml:"group_key"`
	ChannelIndex uint32 `toml:"channel_index"`

	// Mesh is the serial device path carrying the Meshtastic wire
	// framing (spec §6's "one serial device path").
	Mesh struct {
		Port     string `toml:"port"`
		BaudRate int    `toml:"baud_rate"`
	} `toml:"mesh"`

	// MQTT is the optional supplementary mesh-ingress source (C9,
	// SPEC_FULL.md §2/§6). Zero-value Broker means disabled.
	MQTT struct {
		Broker   string `toml:"broker"`
		Username string `toml:"username"`
		Password string `toml:"password"`
		TopicRoot string `toml:"topic_root"`
	} `toml:"mqtt"`
}

// Load parses the TOML file at path and validates the group key length
// (spec §6: "must decode to exactly 32 bytes; anything else is fatal
// at startup").
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if _, err := cfg.BridgedGroupKey(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// BridgedGroupKey decodes GroupKey into the opaque 32-byte master key.
func (c *Config) BridgedGroupKey() (signal.GroupMasterKey, error) {
	raw, err := hex.DecodeString(c.GroupKey)
	if err != nil {
		return signal.GroupMasterKey{}, fmt.Errorf("group_key is not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return signal.GroupMasterKey{}, fmt.Errorf("group_key must decode to 32 bytes, got %d", len(raw))
	}
	var key signal.GroupMasterKey
	copy(key[:], raw)
	return key, nil
}

// MQTTEnabled reports whether the optional C9 uplink is configured.
func (c *Config) MQTTEnabled() bool {
	return c.MQTT.Broker != ""
}

// NewLogger constructs the bridge-wide application logger (teacher's
// examples/radio/main.go convention).
func NewLogger(debug bool) *log.Logger {
	logger := log.New(os.Stderr)
	if debug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// NewSignalLogger constructs the zerolog.Logger the Signal sub-layer
// requires (go.mau.fi/mautrix-signal's signalmeow package expects one),
// grounded in d99kris-nchat's ncLogger/dbLogger zerolog shim.
func NewSignalLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}
