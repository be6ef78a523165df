package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/moffa90/go-punchboot/transport"
)

// Config is the optional YAML configuration file. Command line flags
// override the values it sets.
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Log       LogConfig       `yaml:"log"`
	Erase     EraseConfig     `yaml:"erase"`
	Journal   JournalConfig   `yaml:"journal"`
}

type TransportConfig struct {
	Kind       string        `yaml:"kind"`
	DeviceUUID string        `yaml:"device_uuid"`
	Socket     string        `yaml:"socket"`
	SerialPort string        `yaml:"serial_port"`
	Baud       int           `yaml:"baud"`
	Timeout    time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type EraseConfig struct {
	ChunkBlocks uint32 `yaml:"chunk_blocks"`
}

type JournalConfig struct {
	// Path of the SLC audit journal; empty disables it
	Path string `yaml:"path"`
}

func defaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Kind:    string(transport.USB),
			Socket:  transport.DefaultSocketPath,
			Baud:    transport.DefaultBaud,
			Timeout: transport.DefaultTimeout,
		},
		Log: LogConfig{
			Level: "warn",
		},
		Erase: EraseConfig{
			ChunkBlocks: 64,
		},
	}
}

// loadConfig reads path over the defaults. An empty path returns the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error

	switch transport.Kind(c.Transport.Kind) {
	case transport.USB, transport.Socket, transport.Serial:
	default:
		errs = append(errs, fmt.Errorf("transport.kind: must be usb, socket or serial, got %q", c.Transport.Kind))
	}
	if transport.Kind(c.Transport.Kind) == transport.Serial && c.Transport.SerialPort == "" {
		errs = append(errs, errors.New("transport.serial_port: required for the serial transport"))
	}
	if c.Transport.Baud <= 0 {
		errs = append(errs, fmt.Errorf("transport.baud: must be positive, got %d", c.Transport.Baud))
	}
	if c.Transport.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("transport.timeout: must be positive, got %s", c.Transport.Timeout))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: must be text or json, got %q", c.Log.Format))
	}

	if c.Erase.ChunkBlocks == 0 {
		errs = append(errs, errors.New("erase.chunk_blocks: must be positive"))
	}

	return errors.Join(errs...)
}
