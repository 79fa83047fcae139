package state

// Tracker records replay progress for one target directory.
type Tracker struct {
	Dir string
}

// NewTracker returns a tracker for the target at dir.
func NewTracker(dir string) *Tracker {
	return &Tracker{Dir: dir}
}

// Read loads the current state.
func (t *Tracker) Read() (*ReplayState, error) {
	return Read(t.Dir)
}

// MarkExecuted marks runs executed and appends inv to the history.
func (t *Tracker) MarkExecuted(runs []int, inv Invocation) (*ReplayState, error) {
	current, err := Read(t.Dir)
	if err != nil {
		return nil, err
	}
	next := Update(current, runs).WithInvocation(inv)
	if err := Write(t.Dir, next); err != nil {
		return nil, err
	}
	return next, nil
}

// RecordInput stores the substitution for one input file.
func (t *Tracker) RecordInput(name string, sub InputSubstitution) (*ReplayState, error) {
	current, err := Read(t.Dir)
	if err != nil {
		return nil, err
	}
	next := current.WithInput(name, sub)
	if err := Write(t.Dir, next); err != nil {
		return nil, err
	}
	return next, nil
}
