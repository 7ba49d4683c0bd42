package config

import (
	"fmt"
	"os"

	intconfig "github.com/leapstack-labs/leapinsight/internal/config"
)

// Validate checks the settings a command is about to use.
func Validate(s *intconfig.Settings) error {
	if _, err := ParseLogLevel(s.Log.Level); err != nil {
		return err
	}
	switch s.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be \"text\" or \"json\", got %q", s.Log.Format)
	}
	if s.Server.Port < 0 || s.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", s.Server.Port)
	}
	return s.Validate()
}

// ValidateDataDir checks that the dataset directory exists.
func ValidateDataDir(s *intconfig.Settings) error {
	info, err := os.Stat(s.Data.Dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("data directory does not exist: %s\nHint: Create the directory or use --data-dir to specify a different path", s.Data.Dir)
	}
	return nil
}
