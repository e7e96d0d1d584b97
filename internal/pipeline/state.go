package pipeline

import "fmt"

// Stage is a state of the grading pipeline.
type Stage string

const (
	Staging     Stage = "staging"
	Configuring Stage = "configuring"
	Building    Stage = "building"
	Testing     Stage = "testing"
	Finalized   Stage = "finalized"
	Aborted     Stage = "aborted"
)

// IsTerminal reports whether no further stage can follow s.
func IsTerminal(s Stage) bool {
	return s == Finalized || s == Aborted
}

// Transition validates moving from one stage to the next.
func Transition(from, to Stage) error {
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed stage transition: %s -> %s", from, to)
	}
	return nil
}

func isAllowedTransition(from, to Stage) bool {
	switch from {
	case Staging:
		return to == Configuring || to == Aborted
	case Configuring:
		return to == Building || to == Aborted
	case Building:
		return to == Testing || to == Aborted
	case Testing:
		return to == Finalized || to == Aborted
	default:
		return false
	}
}

// machine tracks the stage of one run.
type machine struct {
	stage Stage
	// last non-terminal stage, where the run ended
	last Stage
}

func newMachine() *machine {
	return &machine{stage: Staging, last: Staging}
}

func (m *machine) advance(to Stage) error {
	if err := Transition(m.stage, to); err != nil {
		return err
	}
	if !IsTerminal(m.stage) {
		m.last = m.stage
	}
	m.stage = to
	return nil
}
