package logging

import (
	"fmt"
	"time"
)

// Logger output types.
const (
	TypeFile   = "file"
	TypeStdout = "stdout"
)

// RootLogger is the logger every named logger inherits its output from.
const RootLogger = "root"

// LoggerConfig configures one named logger. Only the root logger uses the
// output settings (Type, Filename, Age, Keep, Pattern); children inherit them.
type LoggerConfig struct {
	Enabled  *bool  `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Level    string `mapstructure:"level" yaml:"level,omitempty"`
	Type     string `mapstructure:"type" yaml:"type,omitempty"`
	Filename string `mapstructure:"filename" yaml:"filename,omitempty"`
	Age      string `mapstructure:"age" yaml:"age,omitempty"`         // daily, weekly or monthly
	Keep     int    `mapstructure:"keep" yaml:"keep,omitempty"`       // rotated files to keep
	Pattern  string `mapstructure:"pattern" yaml:"pattern,omitempty"` // console or json
}

// IsEnabled reports whether the logger produces output. Unset means enabled.
func (c LoggerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// LoggingConfig is the logging section of the server configuration.
type LoggingConfig struct {
	Colorize      bool                    `mapstructure:"colorize" yaml:"colorize"`
	Path          string                  `mapstructure:"path" yaml:"path"`
	ConsoleInline bool                    `mapstructure:"console_inline" yaml:"console_inline"`
	LogTrace      bool                    `mapstructure:"log_trace" yaml:"log_trace"`
	Loggers       map[string]LoggerConfig `mapstructure:"loggers" yaml:"loggers"`
}

// DefaultLoggingConfig logs info and above to stdout, with the sql logger at warn.
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Path: "/var/log/katello",
		Loggers: map[string]LoggerConfig{
			RootLogger: {
				Level:    "info",
				Type:     TypeStdout,
				Filename: "katello.log",
				Age:      "weekly",
				Keep:     4,
				Pattern:  "console",
			},
			"app": {Level: "info"},
			"sql": {Level: "warn"},
		},
	}
}

func (c *LoggingConfig) root() LoggerConfig {
	root := c.Loggers[RootLogger]
	if root.Level == "" {
		root.Level = "info"
	}
	if root.Type == "" {
		root.Type = TypeStdout
	}
	return root
}

// rotationInterval converts a rotation age to the interval the log file is
// rolled over on. An empty age disables time based rotation.
func rotationInterval(age string) (time.Duration, error) {
	switch age {
	case "":
		return 0, nil
	case "daily":
		return 24 * time.Hour, nil
	case "weekly":
		return 7 * 24 * time.Hour, nil
	case "monthly":
		return 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported rotation age %q", age)
	}
}
