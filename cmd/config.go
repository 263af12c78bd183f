// Package cmd holds the plumbing shared by the tunesync binaries.
package cmd

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vsariola/tunesync/link"
)

type (
	Config struct {
		Master MasterConfig
		MIDI   MIDIConfig `yaml:"midi"`
		Log    LogConfig
	}

	MasterConfig struct {
		Host      string
		Port      int
		Heartbeat time.Duration // interval of the heartbeats a master sends
		Timeout   time.Duration // silence after which a master is absent
	}

	MIDIConfig struct {
		Input string
	}

	LogConfig struct {
		Level string
	}
)

//go:embed config.yml
var defaultConfigYaml []byte

// ConfigDir is the directory under os.UserConfigDir holding the user config.
const ConfigDir = "tunesync"

// LoadConfig returns the default config overridden by config.yml in the user
// config directory, when there is one.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := DecodeConfig(bytes.NewReader(defaultConfigYaml), &cfg); err != nil {
		panic(fmt.Errorf("failed to decode default config: %w", err))
	}
	err := ReadCustomConfig("config.yml", &cfg)
	if errors.Is(err, fs.ErrNotExist) {
		err = nil
	}
	return cfg, err
}

// ReadCustomConfig decodes a file of the user config directory into target.
func ReadCustomConfig(filename string, target *Config) error {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	f, err := os.Open(filepath.Join(configDir, ConfigDir, filename))
	if err != nil {
		return err
	}
	defer f.Close()
	return DecodeConfig(f, target)
}

// DecodeConfig decodes YAML on top of the fields already in target. Unknown
// fields are errors.
func DecodeConfig(r io.Reader, target *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("could not decode config: %w", err)
	}
	return target.Validate()
}

// Validate checks the master settings.
func (c *Config) Validate() error {
	if c.Master.Port <= 0 || c.Master.Port > 65535 {
		return fmt.Errorf("master port %d out of range", c.Master.Port)
	}
	if c.Master.Heartbeat <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", c.Master.Heartbeat)
	}
	if c.Master.Timeout <= c.Master.Heartbeat {
		return fmt.Errorf("timeout %v must be longer than the heartbeat interval %v", c.Master.Timeout, c.Master.Heartbeat)
	}
	return nil
}

// MasterAddr is the UDP address of the master.
func (c *Config) MasterAddr() string {
	return net.JoinHostPort(c.Master.Host, strconv.Itoa(c.Master.Port))
}

// LinkConfig returns the link settings with the given logger.
func (c *Config) LinkConfig(logger *slog.Logger) link.Config {
	return link.Config{HeartbeatTimeout: c.Master.Timeout, Logger: logger}
}

// NewLogger returns a text logger writing to w at the configured level.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Log.Level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}
