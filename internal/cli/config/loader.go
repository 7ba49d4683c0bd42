// Package config loads the CLI settings from defaults, the config file,
// the environment and flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	intconfig "github.com/leapstack-labs/leapinsight/internal/config"
	"github.com/spf13/pflag"
)

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

var (
	configFileUsed  string
	currentSettings *intconfig.Settings
)

// findConfigUpward searches upward from startDir for a leapinsight config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findConfigUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if p := intconfig.FindConfigFile(dir); p != "" {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// envKey maps LEAPINSIGHT_LLM_MODEL to llm.model. The first underscore
// separates the section; the rest belong to the key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, key, ok := strings.Cut(s, "_")
	if !ok || key == "" {
		return ""
	}
	return section + "." + key
}

// ResetConfig clears the loader state. Used for testing.
func ResetConfig() {
	configFileUsed = ""
	currentSettings = nil
}

// Load builds the settings.
// Precedence (highest to lowest): flags > env vars > config file > defaults
//
// Without an explicit cfgFile, leapinsight.yaml is searched from the working
// directory upward. Relative paths in the file resolve against its directory;
// relative paths given as flags resolve against the working directory.
func Load(cfgFile string, flags *pflag.FlagSet) (*intconfig.Settings, error) {
	ResetConfig()
	k := koanf.New(".")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	// 1. Load defaults
	if err := k.Load(confmap.Provider(intconfig.Flat(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Find and load config file
	path := cfgFile
	if path == "" {
		path = findConfigUpward(cwd)
	}
	baseDir := cwd
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		baseDir = filepath.Dir(path)
		configFileUsed = path
	}

	// 3. Load environment variables (LEAPINSIGHT_ prefix)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Load flags (highest priority)
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := FlagKeys[f.Name]
			if !ok {
				return "", nil
			}
			val := posflag.FlagVal(flags, f)
			if s, isString := val.(string); isString && pathKeys[key] && s != "" && s != ":memory:" {
				if abs, err := filepath.Abs(s); err == nil {
					val = abs
				}
			}
			return key, val
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Decode and anchor relative paths
	var s intconfig.Settings
	if err := intconfig.Decode(k, &s); err != nil {
		return nil, err
	}
	s.ResolvePaths(baseDir)

	currentSettings = &s
	return &s, nil
}

// GetConfigFileUsed returns the path to the config file being used, if any.
func GetConfigFileUsed() string {
	return configFileUsed
}

// GetCurrentSettings returns the settings of the last successful Load.
func GetCurrentSettings() *intconfig.Settings {
	return currentSettings
}
