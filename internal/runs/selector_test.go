package runs

import (
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/reprobox/internal/config"
	"github.com/felixgeelhaar/reprobox/internal/errors"
)

// newConfig returns a config of n runs with ids "step0".."stepN-1".
func newConfig(t testing.TB, n int) *config.Config {
	t.Helper()
	var b strings.Builder
	b.WriteString("version: \"1\"\nruns:\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "  - id: step%d\n    argv: [/bin/step%d]\n    workingdir: /work\n    uid: 1000\n    gid: 1000\n", i, i)
	}
	cfg, err := config.Parse([]byte(b.String()))
	require.NoError(t, err)
	return cfg
}

func TestSelect(t *testing.T) {
	cfg := newConfig(t, 4)

	tests := []struct {
		spec string
		want []int
	}{
		{"", []int{0, 1, 2, 3}},
		{"  ", []int{0, 1, 2, 3}},
		{"1", []int{1}},
		{"3,0", []int{3, 0}},
		{"1-3", []int{1, 2, 3}},
		{"step2", []int{2}},
		{"step2, 0-1", []int{2, 0, 1}},
		{"1,1,0-2", []int{1, 0, 2}},
		{"2-2", []int{2}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.spec), func(t *testing.T) {
			sel, err := Select(cfg, tt.spec, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sel.Indexes)
			assert.Nil(t, sel.Override)
		})
	}
}

func TestSelectErrors(t *testing.T) {
	cfg := newConfig(t, 2)

	tests := []struct {
		name     string
		spec     string
		override []string
		wantKind errors.Kind
		wantCode errors.ErrorCode
	}{
		{name: "index past end", spec: "2", wantKind: errors.KindConfig, wantCode: errors.ErrCodeConfigRunRange},
		{name: "negative index", spec: "-1", wantKind: errors.KindConfig, wantCode: errors.ErrCodeConfigRunRange},
		{name: "range past end", spec: "0-5", wantKind: errors.KindConfig, wantCode: errors.ErrCodeConfigRunRange},
		{name: "unknown id", spec: "nope", wantKind: errors.KindConfig, wantCode: errors.ErrCodeConfigRunRange},
		{name: "reversed range", spec: "1-0", wantKind: errors.KindUsage, wantCode: errors.ErrCodeUsageArgument},
		{name: "empty item", spec: "0,,1", wantKind: errors.KindUsage, wantCode: errors.ErrCodeUsageArgument},
		{name: "override with all runs", spec: "", override: []string{"sh"}, wantKind: errors.KindUsage, wantCode: errors.ErrCodeUsageFlags},
		{name: "override with two runs", spec: "0,1", override: []string{"sh"}, wantKind: errors.KindUsage, wantCode: errors.ErrCodeUsageFlags},
		{name: "empty override", spec: "0", override: []string{}, wantKind: errors.KindUsage, wantCode: errors.ErrCodeUsageArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Select(cfg, tt.spec, tt.override)
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, errors.KindOf(err))
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
		})
	}
}

func TestSelectOverride(t *testing.T) {
	cfg := newConfig(t, 3)

	sel, err := Select(cfg, "step1", []string{"/bin/sh", "-i"})
	require.NoError(t, err)
	assert.True(t, sel.Single())
	assert.Equal(t, []int{1}, sel.Indexes)
	assert.Equal(t, []string{"/bin/sh", "-i"}, sel.Override)
}

func TestSelectOverrideSingleRunConfig(t *testing.T) {
	cfg := newConfig(t, 1)

	sel, err := Select(cfg, "", []string{"/bin/true"})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, sel.Indexes)
}

func TestSelectProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("in-range selections are deduplicated and keep first order", prop.ForAll(
		func(n int, picks []int) bool {
			cfg := newConfig(t, n)
			parts := make([]string, len(picks))
			for i, p := range picks {
				parts[i] = fmt.Sprint(p % n)
			}
			sel, err := Select(cfg, strings.Join(parts, ","), nil)
			if len(picks) == 0 {
				return err == nil && len(sel.Indexes) == n
			}
			if err != nil {
				return false
			}

			seen := map[int]bool{}
			var want []int
			for _, p := range picks {
				if !seen[p%n] {
					seen[p%n] = true
					want = append(want, p%n)
				}
			}
			return fmt.Sprint(want) == fmt.Sprint(sel.Indexes)
		},
		gen.IntRange(1, 8),
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.Property("out-of-range indexes fail with a config error", prop.ForAll(
		func(n, extra int) bool {
			cfg := newConfig(t, n)
			_, err := Select(cfg, fmt.Sprint(n+extra), nil)
			return errors.KindOf(err) == errors.KindConfig
		},
		gen.IntRange(1, 8),
		gen.IntRange(0, 50),
	))

	properties.TestingRun(t)
}
