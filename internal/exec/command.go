package exec

import (
	"sort"
	"strings"

	"github.com/felixgeelhaar/reprobox/internal/config"
)

// RunCommand is the shell text replaying one run: change to its working
// directory, then start argv under an environment built from env alone.
// argv defaults to the recorded command.
func RunCommand(run config.Run, env map[string]string, argv []string) string {
	if argv == nil {
		argv = run.Command()
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("cd ")
	b.WriteString(quoteShellArg(run.WorkingDir))
	b.WriteString(" && /usr/bin/env -i")
	for _, k := range keys {
		b.WriteByte(' ')
		b.WriteString(quoteShellArg(k + "=" + env[k]))
	}
	b.WriteByte(' ')
	b.WriteString(shellQuote(argv))
	return b.String()
}

// CombineCommands joins per-run commands into one invocation. Each command
// runs in its own "/bin/sh -c" so a "cd" in one cannot leak into the next;
// init commands come first.
func CombineCommands(init, runs []string) string {
	parts := make([]string, 0, len(init)+len(runs))
	for _, c := range init {
		parts = append(parts, "/bin/sh -c "+quoteShellArg(c))
	}
	for _, c := range runs {
		parts = append(parts, "/bin/sh -c "+quoteShellArg(c))
	}
	return strings.Join(parts, " && ")
}

func shellQuote(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = quoteShellArg(p)
	}
	return strings.Join(quoted, " ")
}

func quoteShellArg(s string) string {
	if s == "" {
		return "''"
	}
	if isSafeShellWord(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func isSafeShellWord(s string) bool {
	for _, r := range s {
		if !isSafeShellRune(r) {
			return false
		}
	}
	return true
}

func isSafeShellRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	switch r {
	case '@', '%', '_', '+', '=', ':', ',', '.', '/', '-':
		return true
	}
	return false
}
