package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// ConfigFileName is the name of the config file.
const ConfigFileName = "leapinsight.yaml"

// ConfigFileNameAlt is the alternate name of the config file.
const ConfigFileNameAlt = "leapinsight.yml"

// Decode unmarshals the koanf tree into out. Durations accept Go duration
// strings ("90s") and comma-separated strings decode into slices, so values
// from env vars and YAML behave the same.
func Decode(k *koanf.Koanf, out *Settings) error {
	err := k.UnmarshalWithConf("", out, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
				mapstructure.TextUnmarshallerHookFunc(),
			),
			Metadata:         nil,
			Result:           out,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return fmt.Errorf("unable to decode settings: %w", err)
	}
	out.ApplyDefaults()
	return nil
}

// LoadFile loads Settings from a YAML file layered over the defaults.
// Relative data paths are resolved against the file's directory.
func LoadFile(path string) (*Settings, error) {
	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Flat(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var s Settings
	if err := Decode(k, &s); err != nil {
		return nil, err
	}
	s.ResolvePaths(filepath.Dir(path))
	return &s, nil
}

// LoadFromDir loads Settings from leapinsight.yaml or leapinsight.yml in dir.
// Returns the defaults when no config file is found.
func LoadFromDir(dir string) (*Settings, error) {
	configPath := FindConfigFile(dir)
	if configPath == "" {
		s := Defaults()
		s.ResolvePaths(dir)
		return s, nil
	}
	return LoadFile(configPath)
}

// FindConfigFile finds the config file in the given directory.
// Returns empty string if not found.
func FindConfigFile(dir string) string {
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// ResolvePaths anchors relative file paths at baseDir.
func (s *Settings) ResolvePaths(baseDir string) {
	s.Data.Dir = resolvePathRelativeTo(s.Data.Dir, baseDir)
	s.Assistant.PromptFile = resolvePathRelativeTo(s.Assistant.PromptFile, baseDir)
	s.Conversation.Archive = resolvePathRelativeTo(s.Conversation.Archive, baseDir)
	s.LLM.Script = resolvePathRelativeTo(s.LLM.Script, baseDir)
	s.Log.File = resolvePathRelativeTo(s.Log.File, baseDir)
}

func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}
