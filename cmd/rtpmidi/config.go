package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/iKadmium/go-rtpmidi"
)

// config is the optional YAML configuration file. Flags override it.
type config struct {
	Name      string   `yaml:"name"`
	Port      uint16   `yaml:"port"`
	Advertise bool     `yaml:"advertise"`
	Peers     []string `yaml:"peers"`
}

// loadConfig reads the config file when one was given and folds it into
// session options plus the list of peers to invite.
func loadConfig() (*rtpmidi.Options, []string, error) {
	opts := rtpmidi.NewOptions()
	if configPath == "" {
		return opts, nil, nil
	}

	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	if cfg.Name != "" {
		opts.Name = cfg.Name
	}
	if cfg.Port != 0 {
		opts.Port = cfg.Port
	}
	opts.Advertise = cfg.Advertise
	return opts, cfg.Peers, nil
}
