// Package config provides the settings object consumed by the insight core.
// It is decoupled from CLI concerns so the server, the CLI and tests can all
// build the same static Settings value.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Settings is the complete static configuration.
type Settings struct {
	Assistant    AssistantConfig    `koanf:"assistant"`
	Limits       LimitsConfig       `koanf:"limits"`
	Data         DataConfig         `koanf:"data"`
	Datasets     []DatasetConfig    `koanf:"datasets"`
	Brand        BrandConfig        `koanf:"brand"`
	Conversation ConversationConfig `koanf:"conversation"`
	LLM          LLMConfig          `koanf:"llm"`
	Tools        ToolsConfig        `koanf:"tools"`
	Server       ServerConfig       `koanf:"server"`
	Log          LogConfig          `koanf:"log"`
	UI           UIConfig           `koanf:"ui"`
}

// AssistantConfig controls the reasoning loop.
type AssistantConfig struct {
	MaxIterations  int           `koanf:"max_iterations"`
	Timeout        time.Duration `koanf:"timeout"`
	MaxQueryLength int           `koanf:"max_query_length"`
	// EarlyStopping is "force" (abort at the ceiling) or "generate" (one
	// extra model call asking for the final answer).
	EarlyStopping string `koanf:"early_stopping"`
	// PromptFile overrides the embedded prompt template.
	PromptFile string `koanf:"prompt_file"`
}

// LimitsConfig bounds a single code execution and its Observation.
type LimitsConfig struct {
	EvalTimeout         time.Duration `koanf:"eval_timeout"`
	MaxSteps            uint64        `koanf:"max_steps"`
	MaxObservationChars int           `koanf:"max_observation_chars"`
}

// DataConfig locates the CSV datasets.
type DataConfig struct {
	Dir            string `koanf:"dir"`
	Loader         string `koanf:"loader"` // csv, duckdb
	Cache          bool   `koanf:"cache"`
	Watch          bool   `koanf:"watch"`
	MaxRowsDisplay int    `koanf:"max_rows_display"`
}

// DatasetConfig declares one allow-listed dataset.
type DatasetConfig struct {
	Name        string         `koanf:"name"`
	File        string         `koanf:"file"`
	Description string         `koanf:"description"`
	Columns     []ColumnConfig `koanf:"columns"`
	JoinKeys    []string       `koanf:"join_keys"`
}

// ColumnConfig documents a dataset column for the prompt.
type ColumnConfig struct {
	Name        string `koanf:"name"`
	Type        string `koanf:"type"` // identifier, categorical, currency, date, flag, count, text
	Description string `koanf:"description"`
}

// BrandConfig holds the answer styling palette.
type BrandConfig struct {
	Name     string `koanf:"name"`
	Primary  string `koanf:"primary"`
	Success  string `koanf:"success"`
	Dark     string `koanf:"dark"`
	Currency string `koanf:"currency"`
}

// ConversationConfig bounds per-session memory.
type ConversationConfig struct {
	MaxMessages int           `koanf:"max_messages"`
	IdleTTL     time.Duration `koanf:"idle_ttl"`
	// Archive is an optional SQLite path recording every exchange.
	Archive string `koanf:"archive"`
}

// LLMConfig selects the text-completion collaborator.
type LLMConfig struct {
	Provider    string        `koanf:"provider"` // ollama, scripted
	URL         string        `koanf:"url"`
	Model       string        `koanf:"model"`
	Temperature float64       `koanf:"temperature"`
	Timeout     time.Duration `koanf:"timeout"`
	// Script is the YAML file replayed by the scripted provider.
	Script string `koanf:"script"`
}

// ToolsConfig enables optional tools.
type ToolsConfig struct {
	SQL          bool `koanf:"sql"`
	MaxSQLLength int  `koanf:"max_sql_length"`
}

// ServerConfig configures the HTTP layer.
type ServerConfig struct {
	Host          string `koanf:"host"`
	Port          int    `koanf:"port"`
	SessionSecret string `koanf:"session_secret"`
	// SecureCookies marks the session cookie Secure. Enable it behind TLS.
	SecureCookies bool `koanf:"secure_cookies"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"` // text, json
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// UIConfig holds user-facing copy.
type UIConfig struct {
	Title       string       `koanf:"title"`
	Description string       `koanf:"description"`
	Welcome     string       `koanf:"welcome"`
	Suggestions []Suggestion `koanf:"suggestions"`
}

// Suggestion is a canned question offered to new users.
type Suggestion struct {
	Text  string `koanf:"text"`
	Query string `koanf:"query"`
}

// Dataset returns the dataset declared under name.
func (s *Settings) Dataset(name string) (DatasetConfig, bool) {
	for _, d := range s.Datasets {
		if d.Name == name {
			return d, true
		}
	}
	return DatasetConfig{}, false
}

// Validate checks settings that have no sensible default.
func (s *Settings) Validate() error {
	var problems []string
	if s.Assistant.MaxIterations < 1 {
		problems = append(problems, "assistant.max_iterations must be at least 1")
	}
	switch s.Assistant.EarlyStopping {
	case EarlyStopForce, EarlyStopGenerate:
	default:
		problems = append(problems, fmt.Sprintf("assistant.early_stopping must be %q or %q", EarlyStopForce, EarlyStopGenerate))
	}
	switch s.Data.Loader {
	case LoaderCSV, LoaderDuckDB:
	default:
		problems = append(problems, fmt.Sprintf("data.loader must be %q or %q", LoaderCSV, LoaderDuckDB))
	}
	switch s.LLM.Provider {
	case ProviderOllama, ProviderScripted:
	default:
		problems = append(problems, fmt.Sprintf("llm.provider must be %q or %q", ProviderOllama, ProviderScripted))
	}
	if s.LLM.Provider == ProviderScripted && s.LLM.Script == "" {
		problems = append(problems, "llm.script is required for the scripted provider")
	}
	if len(s.Datasets) == 0 {
		problems = append(problems, "at least one dataset must be declared")
	}
	seen := make(map[string]bool)
	for _, d := range s.Datasets {
		if d.Name == "" || d.File == "" {
			problems = append(problems, "datasets need a name and a file")
			continue
		}
		if seen[d.Name] {
			problems = append(problems, fmt.Sprintf("dataset %q declared twice", d.Name))
		}
		seen[d.Name] = true
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
