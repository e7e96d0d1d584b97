package api

// MsgFormat tells the platform how to render a message description.
type MsgFormat string

const (
	FormatPlain    MsgFormat = "plain"
	FormatMarkdown MsgFormat = "markdown"
	FormatCode     MsgFormat = "code"
)

// Message is a human-readable note attached to a judgement.
type Message struct {
	Description string    `json:"description"`
	Format      MsgFormat `json:"format"`
	Type        string    `json:"type,omitempty"`
}

// Annotation points at a location in the submitted source.
type Annotation struct {
	Row    int    `json:"row"`
	Column int    `json:"column,omitempty"`
	Text   string `json:"text"`
	Type   string `json:"type"`
}

// TestResult is the outcome of a single reference test.
type TestResult struct {
	Name string `json:"name"`
	// Rubric folder the test belongs to, e.g. "Literals / Numbers"
	Group      string  `json:"group,omitempty"`
	Code       string  `json:"code"`
	Correct    bool    `json:"correct"`
	ElapsedSec float64 `json:"elapsed_sec"`

	// Preview of the test source
	Source    string    `json:"source,omitempty"`
	Expected  string    `json:"expected,omitempty"`
	Generated string    `json:"generated,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
}

// Tally is what the test runner reports back. Hidden tests count toward
// Correct and Total but are never listed in Results.
type Tally struct {
	Correct int          `json:"correct"`
	Total   int          `json:"total"`
	Results []TestResult `json:"results,omitempty"`

	// Notes for the judgement itself, such as the hidden test summary
	Summary []Message `json:"-"`
}

// AllCorrect is true when no test failed, including an empty suite.
func (t Tally) AllCorrect() bool {
	return t.Correct >= t.Total
}

// Judgement is the single record emitted per run.
type Judgement struct {
	EvalUuid string `json:"eval_uuid"`

	Status   Status `json:"status"`
	Accepted bool   `json:"accepted"`

	// Pipeline stage the run ended in
	Stage string `json:"stage,omitempty"`

	Messages    []Message    `json:"messages,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`
	Tests       *Tally       `json:"tests,omitempty"`
}
