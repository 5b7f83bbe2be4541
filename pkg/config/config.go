// Package config loads settings for the history tools.
//
// Sources are applied in order, later ones winning: built-in defaults, an optional YAML
// file, SCREEN_INU_* environment variables, then explicit overrides (usually CLI flags).
// Environment names map to keys by dropping the prefix, lowercasing and turning "_" into
// ".", so SCREEN_INU_TEST_DIR sets test.dir.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/maps"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of recognised environment variables.
const EnvPrefix = "SCREEN_INU_"

type Config struct {
	History HistoryConfig `koanf:"history"`
	Test    TestConfig    `koanf:"test"`
	Log     LogConfig     `koanf:"log"`
}

type HistoryConfig struct {
	// Path is the snapshot file of the local replica.
	Path string `koanf:"path"`
}

type TestConfig struct {
	// Dir, when set, isolates all history data in this directory regardless of
	// History.Path. Automated test runs set it through SCREEN_INU_TEST_DIR.
	Dir string `koanf:"dir"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug|info|warn|error
	Format string `koanf:"format"` // text|json
}

// Default returns the built-in settings.
func Default() Config {
	base := ".screen-inu"
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".screen-inu")
	}
	return Config{
		History: HistoryConfig{Path: filepath.Join(base, "history.crdt")},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config. filePath may be empty. overrides uses dotted keys such as
// "history.path" and is applied last.
func Load(filePath string, overrides map[string]any) (Config, error) {
	k := koanf.New(".")

	if filePath != "" {
		if err := k.Load(file.Provider(filePath), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", filePath, err)
		}
	}

	transform := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "_", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", transform), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load env: %w", err)
	}

	if len(overrides) > 0 {
		if err := k.Load(mapProvider(overrides), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load overrides: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Log.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c LogConfig) validate() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	switch c.Format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("invalid log format %q: must be text or json", c.Format)
	}
}

// NewLogger returns a logger writing to w as configured. Invalid settings fall back to
// info level text output.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// mapProvider feeds a map with dotted keys into koanf.
type mapProvider map[string]any

func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("config: map provider does not support ReadBytes")
}

func (m mapProvider) Read() (map[string]any, error) {
	return maps.Unflatten(m, "."), nil
}
