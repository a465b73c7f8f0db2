package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

// Config holds the agent's tunables. Defaults match the agreed baseline;
// a YAML file (if present) overrides the defaults, and CLI flags (applied
// by the caller after Load) override the file.
type Config struct {
	OwnPrefix         string        `yaml:"ownPrefix"`
	BroadcastPrefix   string        `yaml:"broadcastPrefix"`
	Port              uint16        `yaml:"port"`
	ControlSocketPath string        `yaml:"controlSocketPath"`
	KeepaliveInterval time.Duration `yaml:"keepaliveInterval"`
	PibPath           string        `yaml:"pibPath"`
	TpmPath           string        `yaml:"tpmPath"`
	MaxControlClients int           `yaml:"maxControlClients"`
}

// Default returns the baseline configuration before any file or flag
// overrides are layered on.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		BroadcastPrefix:   "/ndn/multicast/ah",
		Port:              6363,
		ControlSocketPath: "/tmp/ah",
		KeepaliveInterval: 300 * time.Second,
		PibPath:           filepath.Join(home, ".ndn", "pib.db"),
		TpmPath:           filepath.Join(home, ".ndn", "ndnsec-key-file"),
		MaxControlClients: 5,
	}
}

// Load reads a YAML file at path into a copy of Default(), returning the
// defaults unchanged if path is empty or does not exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Parse validates the configuration, matching the router config's
// validate-before-use convention: an own prefix is required and the
// forwarder port must be positive.
func (c *Config) Parse() error {
	if c.OwnPrefix == "" {
		return fmt.Errorf("own prefix is required")
	}
	if c.Port == 0 {
		return fmt.Errorf("port must be greater than zero")
	}
	if c.BroadcastPrefix == "" {
		return fmt.Errorf("broadcast prefix is required")
	}
	return nil
}
