package exec

import (
	"fmt"
	"maps"
	"regexp"
	"strings"

	"github.com/felixgeelhaar/reprobox/internal/config"
	"github.com/felixgeelhaar/reprobox/internal/errors"
	"github.com/felixgeelhaar/reprobox/internal/x11"
)

// envBuilder derives a run's environment from its record. The caller's
// environment is never inherited except through the pass-through patterns.
type envBuilder struct {
	x11       *x11.Handler
	pass      []*regexp.Regexp
	host      map[string]string
	overrides map[string]string
}

func newEnvBuilder(opts Options, handler *x11.Handler, hostEnv []string) (*envBuilder, error) {
	b := &envBuilder{
		x11:       handler,
		host:      parseEnviron(hostEnv),
		overrides: opts.EnvironmentOverrides,
	}
	for _, expr := range opts.PassEnv {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeUsageArgument, fmt.Sprintf("invalid --pass-env pattern %q", expr), err)
		}
		b.pass = append(b.pass, re)
	}
	return b, nil
}

// build applies, in order: the recorded environment, the X11 fix-ups, the
// pass-through host variables, then the explicit overrides.
func (b *envBuilder) build(run config.Run) map[string]string {
	env := maps.Clone(run.Environ)
	if env == nil {
		env = make(map[string]string)
	}
	if b.x11 != nil {
		env = b.x11.FixEnv(env)
	}
	for name, value := range b.host {
		for _, re := range b.pass {
			if re.MatchString(name) {
				env[name] = value
				break
			}
		}
	}
	for name, value := range b.overrides {
		env[name] = value
	}
	return env
}

func parseEnviron(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || name == "" {
			continue
		}
		out[name] = value
	}
	return out
}
