package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Load reads the config file from the standard location. A missing file
// yields the default configuration.
func Load() (Config, error) {
	return LoadPath(FilePath())
}

// LoadPath reads and validates a config file at an explicit path.
func LoadPath(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}
	return loadFromString(string(contents))
}

// legacyTranscriber captures the old schema that placed command/args
// directly under [transcriber].
type legacyTranscriber struct {
	Command *string   `toml:"command"`
	Args    *[]string `toml:"args"`
}

type legacyConfig struct {
	Transcriber legacyTranscriber `toml:"transcriber"`
}

// loadFromString parses TOML over the defaults, migrates the legacy
// transcriber layout, and validates the result. Unknown fields are ignored.
func loadFromString(contents string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	// Bare command/args under [transcriber] predate the provider layout.
	// toml ignores them above, so a second decode recovers them.
	var legacy legacyConfig
	if _, err := toml.Decode(contents, &legacy); err == nil {
		if legacy.Transcriber.Command != nil {
			cfg.Transcriber.WhisperCpp.Command = *legacy.Transcriber.Command
		}
		if legacy.Transcriber.Args != nil {
			cfg.Transcriber.WhisperCpp.Args = *legacy.Transcriber.Args
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the configuration to the standard location, creating the
// parent directory when needed.
func (c Config) Save() error {
	return c.SavePath(FilePath())
}

// SavePath writes the configuration to an explicit path.
func (c Config) SavePath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}
