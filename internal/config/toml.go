// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Analyze AnalyzeSection `toml:"analyze"`
	Insight InsightSection `toml:"insight"`
	Store   StoreSection   `toml:"store"`
	Log     LogSection     `toml:"log"`
}

// AnalyzeSection maps defaults for the analyze command.
type AnalyzeSection struct {
	Format   *string `toml:"format"`
	Insights *bool   `toml:"insights"`
	Save     *bool   `toml:"save"`
	Color    *bool   `toml:"color"`
	Sheet    *string `toml:"sheet"`
}

// InsightSection maps the chat-completions client settings.
type InsightSection struct {
	Endpoint  *string `toml:"endpoint"`
	Model     *string `toml:"model"`
	APIKeyEnv *string `toml:"api-key-env"`
	Timeout   *string `toml:"timeout"`
}

// StoreSection maps history database settings.
type StoreSection struct {
	Path *string `toml:"path"`
}

// LogSection maps logger settings.
type LogSection struct {
	Level  *string `toml:"level"`
	Format *string `toml:"format"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}
