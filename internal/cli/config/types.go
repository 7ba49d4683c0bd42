package config

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LEAPINSIGHT_"

// DefaultOutput auto-detects: TTY=text, non-TTY=markdown.
const DefaultOutput = "auto"

// FlagKeys maps persistent flags onto the settings keys they override.
// Flags not listed here are CLI-only and never reach the settings.
var FlagKeys = map[string]string{
	"data-dir":       "data.dir",
	"loader":         "data.loader",
	"provider":       "llm.provider",
	"model":          "llm.model",
	"llm-url":        "llm.url",
	"script":         "llm.script",
	"max-iterations": "assistant.max_iterations",
	"sql":            "tools.sql",
	"archive":        "conversation.archive",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"log-file":       "log.file",
}

// pathKeys are settings keys holding file paths. Flag values for them are
// taken relative to the working directory.
var pathKeys = map[string]bool{
	"data.dir":             true,
	"llm.script":           true,
	"conversation.archive": true,
	"log.file":             true,
}
