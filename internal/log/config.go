package log

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Format represents the output format for logs
type Format int

const (
	// FormatText outputs logs in human-readable key=value form
	FormatText Format = iota
	// FormatJSON outputs one JSON object per line
	FormatJSON
)

// String returns the string representation of the format
func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

// ParseFormat parses a case-insensitive format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "text", "console":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format %q", s)
	}
}

// Config holds configuration for the logger
type Config struct {
	// Level is the minimum log level to output
	Level Level

	// Format is the output format (JSON or Text)
	Format Format

	// Output is where logs are written. Stdout stays free for
	// "download name:" which streams file contents.
	Output io.Writer

	// AddSource includes source file and line number in logs
	AddSource bool
}

// DefaultConfig logs at INFO in text format to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatText,
		Output: os.Stderr,
	}
}

// ParseConfig builds a Config from the level and format names accepted on
// the command line and in the environment.
func ParseConfig(level, format string, out io.Writer) (Config, error) {
	cfg := DefaultConfig()

	lvl, err := ParseLevel(level)
	if err != nil {
		return cfg, err
	}
	fmtt, err := ParseFormat(format)
	if err != nil {
		return cfg, err
	}

	cfg.Level = lvl
	cfg.Format = fmtt
	cfg.AddSource = lvl == LevelDebug
	if out != nil {
		cfg.Output = out
	}
	return cfg, nil
}
