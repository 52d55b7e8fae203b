package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the splitload configuration file
// (~/.config/splitload/config.yaml). Command-line flags always win over a
// value set here.
type Config struct {
	DefaultModel    string `yaml:"default_model"`
	DefaultScenario string `yaml:"default_scenario"`
	ServerAddress   string `yaml:"server_address"`
	LogLevel        string `yaml:"log_level"`
	LogFormat       string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "splitload", "config.yaml")
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist or fails to parse.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}

// applyServeConfig fills in serve command flags not set on the command line
// from the config file.
func applyServeConfig(c *cli.Command, cfg Config, modelPath, addr *string) {
	if cfg.DefaultModel != "" && !c.IsSet("model") {
		*modelPath = cfg.DefaultModel
	}
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// applyDemoConfig fills in demo command flags not set on the command line
// from the config file.
func applyDemoConfig(c *cli.Command, cfg Config, scenario *string) {
	if cfg.DefaultScenario != "" && !c.IsSet("scenario") {
		*scenario = cfg.DefaultScenario
	}
}
