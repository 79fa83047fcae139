package sandbox

import (
	"github.com/felixgeelhaar/reprobox/internal/state"
)

// RunStatus is one run of a target.
type RunStatus struct {
	Index    int    `json:"index" yaml:"index"`
	ID       string `json:"id" yaml:"id"`
	Command  string `json:"command" yaml:"command"`
	Executed bool   `json:"executed" yaml:"executed"`
}

// Status summarizes a target for display.
type Status struct {
	Target      string             `json:"target" yaml:"target"`
	PackDigest  string             `json:"pack_digest" yaml:"pack_digest"`
	Runs        []RunStatus        `json:"runs" yaml:"runs"`
	Inputs      []InputStatus      `json:"inputs" yaml:"inputs"`
	Outputs     []OutputStatus     `json:"outputs" yaml:"outputs"`
	Invocations []state.Invocation `json:"invocations,omitempty" yaml:"invocations,omitempty"`
}

// Status reads the sidecar and lists runs, inputs and outputs.
func (t *Target) Status() (*Status, error) {
	st, err := t.State()
	if err != nil {
		return nil, err
	}
	inputs, err := t.ListInputs()
	if err != nil {
		return nil, err
	}
	outputs, err := t.ListOutputs()
	if err != nil {
		return nil, err
	}

	out := &Status{
		Target:      t.Dir,
		PackDigest:  st.PackDigest,
		Inputs:      inputs,
		Outputs:     outputs,
		Invocations: st.Invocations,
	}
	for i, run := range t.Config.Runs {
		out.Runs = append(out.Runs, RunStatus{
			Index:    i,
			ID:       run.ID,
			Command:  run.String(),
			Executed: st.Executed(i),
		})
	}
	return out, nil
}
