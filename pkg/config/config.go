// Package config loads tlint configuration. Precedence, lowest to
// highest: built-in defaults, the project's .tlint.json, TLINT_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/confmap"
	env "github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jmylchreest/tlint/pkg/rules"
)

// FileName is the project config file looked up at the project root.
const FileName = ".tlint.json"

// Config is the full daemon and CLI configuration surface.
type Config struct {
	// Addr is the daemon listen address.
	Addr string `koanf:"addr"`

	// DataDir holds the findings database and search index, relative to
	// the project root unless absolute.
	DataDir string `koanf:"dataDir"`

	// Watch enables the filesystem watcher in daemon mode.
	Watch bool `koanf:"watch"`

	// WatchPaths lists roots for the watcher. Empty means the project root.
	WatchPaths []string `koanf:"watchPaths"`

	// Ignore lists doublestar globs excluded from watching and one-shot
	// lint runs.
	Ignore []string `koanf:"ignore"`

	// Extensions adds document extensions beyond the built-in set.
	Extensions []string `koanf:"extensions"`

	// DebounceMs and ThrottleMs tune the scheduler. Zero keeps defaults.
	DebounceMs int `koanf:"debounceMs"`
	ThrottleMs int `koanf:"throttleMs"`

	// Rules is the toggle surface passed through to the rule loader.
	Rules rules.Settings `koanf:"rules"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Addr:    "127.0.0.1:8537",
		DataDir: ".tlint",
	}
}

// Load resolves configuration for the given project root.
func Load(root string) (Config, error) {
	k := koanf.New(".")

	def := Defaults()
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"addr":    def.Addr,
		"dataDir": def.DataDir,
	}, "."), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	path := filepath.Join(root, FileName)
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), json.Parser()); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: "TLINT_",
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, "TLINT_"))
			key = strings.ReplaceAll(key, "_", ".")
			if strings.Contains(value, ",") {
				return key, strings.Split(value, ",")
			}
			return key, value
		},
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// ResolveDataDir returns the absolute data directory for a project root.
func (c Config) ResolveDataDir(root string) string {
	if filepath.IsAbs(c.DataDir) {
		return c.DataDir
	}
	return filepath.Join(root, c.DataDir)
}
