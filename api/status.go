package api

import "fmt"

// Status is the closed set of judgement outcomes.
type Status uint8

const (
	StatusPending Status = iota
	StatusCompileError
	StatusWrongAnswer
	StatusAccepted
	StatusInternalError
)

var statusNames = [...]string{
	StatusPending:       "pending",
	StatusCompileError:  "compile-error",
	StatusWrongAnswer:   "wrong-answer",
	StatusAccepted:      "accepted",
	StatusInternalError: "internal-error",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// Valid reports whether s is one of the declared statuses.
func (s Status) Valid() bool {
	return int(s) < len(statusNames)
}

// IsTerminal reports whether s ends a run.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompileError, StatusWrongAnswer, StatusAccepted, StatusInternalError:
		return true
	default:
		return false
	}
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid status %d", uint8(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", string(text))
}
