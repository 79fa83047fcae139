// Package runs resolves which recorded runs a replay executes.
package runs

import (
	"strconv"
	"strings"

	"github.com/felixgeelhaar/reprobox/internal/config"
	"github.com/felixgeelhaar/reprobox/internal/errors"
)

// Selection is an ordered list of run indexes, plus the command that
// replaces the recorded one when exactly one run is selected.
type Selection struct {
	Indexes  []int
	Override []string
}

// Single reports whether exactly one run is selected.
func (s Selection) Single() bool {
	return len(s.Indexes) == 1
}

// Select resolves spec against cfg.
//
// An empty spec selects every run in recorded order. Otherwise spec is a
// comma-separated list whose items are a run index, an inclusive range
// "a-b", or a run id. Repeated runs keep their first position.
//
// override, when non-nil, replaces the recorded command and requires the
// selection to hold exactly one run.
func Select(cfg *config.Config, spec string, override []string) (Selection, error) {
	indexes, err := parse(cfg, spec)
	if err != nil {
		return Selection{}, err
	}

	if override != nil {
		if len(override) == 0 {
			return Selection{}, errors.New(errors.ErrCodeUsageArgument, "command-line override is empty")
		}
		if len(indexes) != 1 {
			return Selection{}, errors.Newf(errors.ErrCodeUsageFlags,
				"--cmdline requires exactly one run, %d selected", len(indexes)).
				WithSuggestion("Select a single run, e.g. 'reprobox sandbox run <target> 0 --cmdline ...'")
		}
	}

	return Selection{Indexes: indexes, Override: override}, nil
}

func parse(cfg *config.Config, spec string) ([]int, error) {
	count := len(cfg.Runs)
	spec = strings.TrimSpace(spec)
	if spec == "" {
		all := make([]int, count)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	var out []int
	seen := make(map[int]bool)
	add := func(i int) error {
		if i < 0 || i >= count {
			return errors.NewRunRangeError(i, count)
		}
		if !seen[i] {
			seen[i] = true
			out = append(out, i)
		}
		return nil
	}

	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, errors.Newf(errors.ErrCodeUsageArgument, "empty item in run selection %q", spec)
		}

		if n, err := strconv.Atoi(item); err == nil {
			if err := add(n); err != nil {
				return nil, err
			}
			continue
		}

		if lo, hi, ok := parseRange(item); ok {
			if lo > hi {
				return nil, errors.Newf(errors.ErrCodeUsageArgument, "invalid run range %q", item)
			}
			for i := lo; i <= hi; i++ {
				if err := add(i); err != nil {
					return nil, err
				}
			}
			continue
		}

		run, ok := cfg.RunByID(item)
		if !ok {
			return nil, errors.Newf(errors.ErrCodeConfigRunRange, "no run with id %q", item).
				WithSuggestion("Run 'reprobox info <pack>' to list run ids")
		}
		if err := add(run.Index); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func parseRange(item string) (int, int, bool) {
	a, b, found := strings.Cut(item, "-")
	if !found {
		return 0, 0, false
	}
	lo, err := strconv.Atoi(a)
	if err != nil {
		return 0, 0, false
	}
	hi, err := strconv.Atoi(b)
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}
