package ux

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by --output.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Formats lists the output formats in the order help text shows them.
func Formats() []string {
	return []string{FormatText, FormatJSON, FormatYAML}
}

// Formatter writes one command result.
type Formatter interface {
	Format(data any) error
}

// FormatterOptions contains configuration for formatters
type FormatterOptions struct {
	// Writer is where output is written (defaults to os.Stdout)
	Writer io.Writer
	// NoColor disables colored output for text formatters
	NoColor bool
}

// NewFormatter creates a formatter based on the format string. An empty
// format is text.
func NewFormatter(format string, opts *FormatterOptions) (Formatter, error) {
	if opts == nil {
		opts = &FormatterOptions{}
	}
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	switch format {
	case FormatJSON:
		return &JSONFormatter{w: w}, nil
	case FormatYAML:
		return &YAMLFormatter{w: w}, nil
	case FormatText, "":
		return &TextFormatter{w: w, styles: NewStyles(opts.NoColor)}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (supported: %s)", format, strings.Join(Formats(), ", "))
	}
}

// JSONFormatter writes indented JSON. Shell commands keep their '&&' and
// redirections readable, so HTML escaping is off.
type JSONFormatter struct {
	w io.Writer
}

func (f *JSONFormatter) Format(data any) error {
	encoder := json.NewEncoder(f.w)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(data)
}

// YAMLFormatter writes YAML with two-space indentation.
type YAMLFormatter struct {
	w io.Writer
}

func (f *YAMLFormatter) Format(data any) error {
	encoder := yaml.NewEncoder(f.w)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		_ = encoder.Close()
		return err
	}
	return encoder.Close()
}

// TextRenderer is implemented by values with their own terminal layout.
type TextRenderer interface {
	RenderText(styles *Styles) string
}

// TextFormatter writes human-readable text. It renders TextRenderer
// values, strings and fmt.Stringer values; anything else needs json or
// yaml.
type TextFormatter struct {
	w      io.Writer
	styles *Styles
}

func (f *TextFormatter) Format(data any) error {
	switch v := data.(type) {
	case TextRenderer:
		_, err := fmt.Fprint(f.w, v.RenderText(f.styles))
		return err
	case string:
		_, err := fmt.Fprintln(f.w, v)
		return err
	case fmt.Stringer:
		_, err := fmt.Fprintln(f.w, v.String())
		return err
	default:
		return fmt.Errorf("text output cannot render %T; use --output json or yaml", data)
	}
}

var (
	_ Formatter = (*JSONFormatter)(nil)
	_ Formatter = (*YAMLFormatter)(nil)
	_ Formatter = (*TextFormatter)(nil)
)
