package ux

import (
	"bytes"
	"strings"
	"testing"
)

type invocationView struct {
	Command string `json:"command" yaml:"command"`
	Runs    []int  `json:"runs" yaml:"runs"`
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  string
		wantErr bool
	}{
		{FormatJSON, false},
		{FormatYAML, false},
		{FormatText, false},
		{"", false},
		{"xml", true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			_, err := NewFormatter(tt.format, nil)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewFormatter(%q) error = %v, wantErr %v", tt.format, err, tt.wantErr)
			}
		})
	}
}

func TestNewFormatterListsFormats(t *testing.T) {
	_, err := NewFormatter("xml", nil)
	if err == nil || !strings.Contains(err.Error(), "text, json, yaml") {
		t.Errorf("error should list the supported formats, got %v", err)
	}
}

func TestJSONFormatterKeepsShellSyntax(t *testing.T) {
	var buf bytes.Buffer
	formatter, err := NewFormatter(FormatJSON, &FormatterOptions{Writer: &buf})
	if err != nil {
		t.Fatalf("NewFormatter() error = %v", err)
	}

	data := invocationView{Command: "cd /exp && ./run > out.txt", Runs: []int{0, 1}}
	if err := formatter.Format(data); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, `"command": "cd /exp && ./run > out.txt"`) {
		t.Errorf("JSON output should keep the command unescaped: %s", output)
	}
	if !strings.Contains(output, "\n  \"runs\": [") {
		t.Errorf("JSON output should be indented: %s", output)
	}
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	formatter, err := NewFormatter(FormatYAML, &FormatterOptions{Writer: &buf})
	if err != nil {
		t.Fatalf("NewFormatter() error = %v", err)
	}

	if err := formatter.Format(invocationView{Command: "report", Runs: []int{1}}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	want := "command: report\nruns:\n  - 1\n"
	if buf.String() != want {
		t.Errorf("YAML output = %q, want %q", buf.String(), want)
	}
}

func TestTextFormatter(t *testing.T) {
	tests := []struct {
		name    string
		data    any
		want    string
		wantErr bool
	}{
		{
			name: "string data",
			data: "nothing to destroy",
			want: "nothing to destroy",
		},
		{
			name:    "struct without text layout",
			data:    invocationView{Command: "report"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			formatter, err := NewFormatter(FormatText, &FormatterOptions{Writer: &buf})
			if err != nil {
				t.Fatalf("NewFormatter() error = %v", err)
			}

			err = formatter.Format(tt.data)
			if (err != nil) != tt.wantErr {
				t.Errorf("Format() error = %v, wantErr %v", err, tt.wantErr)
				return
			}

			if !tt.wantErr {
				output := strings.TrimSpace(buf.String())
				if output != tt.want {
					t.Errorf("Format() output = %q, want %q", output, tt.want)
				}
			}
		})
	}
}

type runsView []string

func (v runsView) RenderText(s *Styles) string {
	rows := make([][]string, len(v))
	for i, id := range v {
		rows[i] = []string{id, s.Mark(i == 0)}
	}
	return s.Table([]string{"RUN", "DONE"}, rows)
}

func TestTextFormatterRenderer(t *testing.T) {
	var buf bytes.Buffer
	formatter, err := NewFormatter("text", &FormatterOptions{Writer: &buf, NoColor: true})
	if err != nil {
		t.Fatalf("NewFormatter() error = %v", err)
	}

	if err := formatter.Format(runsView{"prepare", "report"}); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	want := "RUN      DONE\nprepare  ✓\nreport   ✗\n"
	if buf.String() != want {
		t.Errorf("Format() output = %q, want %q", buf.String(), want)
	}
}

func TestStylesField(t *testing.T) {
	s := NewStyles(true)
	if got := s.Field("digest", "blake3:abc"); got != "digest: blake3:abc\n" {
		t.Errorf("Field() = %q", got)
	}
}
