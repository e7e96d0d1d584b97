package behave

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/cmake-judge/api"
)

// SpecStep scripts the outcome of one build-tool invocation.
type SpecStep struct {
	Exit   int    `toml:"exit"`
	Stderr string `toml:"stderr"`
}

// SpecTests scripts what the test runner reports.
type SpecTests struct {
	Correct int    `toml:"correct"`
	Total   int    `toml:"total"`
	Error   string `toml:"error"`
}

// SpecExpect is the judgement a scenario must produce.
type SpecExpect struct {
	Status       api.Status `toml:"status"`
	Accepted     bool       `toml:"accepted"`
	Stage        string     `toml:"stage"`
	TesterCalled bool       `toml:"tester_called"`
}

type specScenario struct {
	Description string     `toml:"description"`
	Configure   SpecStep   `toml:"configure"`
	Build       SpecStep   `toml:"build"`
	Tests       SpecTests  `toml:"tests"`
	Expect      SpecExpect `toml:"expect"`
}

type specRoot struct {
	Scenarios []specScenario `toml:"scenarios"`
}

// Case is a runnable scenario converted from TOML.
type Case struct {
	Name      string
	EvalUuid  string
	Configure SpecStep
	Build     SpecStep
	Tests     SpecTests
	Expect    SpecExpect
}

// Tally is the test runner result the case scripts.
func (c Case) Tally() api.Tally {
	return api.Tally{Correct: c.Tests.Correct, Total: c.Tests.Total}
}

// Parse reads a behaviour TOML file and converts it to runnable cases.
func Parse(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read behaviour file: %w", err)
	}
	var root specRoot
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cases := make([]Case, 0, len(root.Scenarios))
	for i, s := range root.Scenarios {
		if s.Description == "" {
			return nil, fmt.Errorf("scenario %d is missing a description", i)
		}
		if !s.Expect.Status.IsTerminal() {
			return nil, fmt.Errorf("scenario %q: expected status must be terminal, got %s", s.Description, s.Expect.Status)
		}
		if s.Tests.Correct > s.Tests.Total {
			return nil, fmt.Errorf("scenario %q: correct (%d) exceeds total (%d)", s.Description, s.Tests.Correct, s.Tests.Total)
		}
		cases = append(cases, Case{
			Name:      s.Description,
			EvalUuid:  uuid.NewString(),
			Configure: s.Configure,
			Build:     s.Build,
			Tests:     s.Tests,
			Expect:    s.Expect,
		})
	}
	return cases, nil
}
