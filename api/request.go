package api

import "time"

// EvalReq is the payload read from stdin at the start of a run.
type EvalReq struct {
	EvalUuid string `json:"eval_uuid,omitempty"`

	// Directory (or s3:// / https:// archive) with the reference tests
	Resources string `json:"resources"`
	// Path to the learner's submitted file
	Source string `json:"source"`
	// Working directory holding build-config.json
	Workdir string `json:"workdir"`

	// Seconds
	TimeLimit int `json:"time_limit"`
	// Bytes
	MemoryLimit int64 `json:"memory_limit"`

	ProgrammingLanguage string `json:"programming_language,omitempty"`
	NaturalLanguage     string `json:"natural_language,omitempty"`
}

// Limits are passed through to the test runner unmodified.
type Limits struct {
	Time        time.Duration
	MemoryBytes int64
}

func (r EvalReq) Limits() Limits {
	return Limits{
		Time:        time.Duration(r.TimeLimit) * time.Second,
		MemoryBytes: r.MemoryLimit,
	}
}
