package behave_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/programme-lv/cmake-judge/api"
	"github.com/programme-lv/cmake-judge/internal/behave"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenarios.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestParse(t *testing.T) {
	path := write(t, `
[[scenarios]]
description = "link error"
configure = { exit = 0 }
build = { exit = 1, stderr = "undefined reference" }
expect = { status = "compile-error", accepted = false, stage = "building" }

[[scenarios]]
description = "partial"
tests = { correct = 7, total = 10 }
expect = { status = "wrong-answer", tester_called = true }
`)
	cases, err := behave.Parse(path)
	require.NoError(t, err)
	require.Len(t, cases, 2)

	assert.Equal(t, "link error", cases[0].Name)
	assert.Equal(t, 1, cases[0].Build.Exit)
	assert.Equal(t, "undefined reference", cases[0].Build.Stderr)
	assert.Equal(t, api.StatusCompileError, cases[0].Expect.Status)
	assert.Equal(t, "building", cases[0].Expect.Stage)
	assert.NotEmpty(t, cases[0].EvalUuid)

	assert.Equal(t, api.Tally{Correct: 7, Total: 10}, cases[1].Tally())
	assert.True(t, cases[1].Expect.TesterCalled)
	assert.NotEqual(t, cases[0].EvalUuid, cases[1].EvalUuid)
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"unknown status": `[[scenarios]]
description = "x"
expect = { status = "maybe" }`,
		"pending expectation": `[[scenarios]]
description = "x"
expect = { status = "pending" }`,
		"no description": `[[scenarios]]
expect = { status = "accepted" }`,
		"impossible tally": `[[scenarios]]
description = "x"
tests = { correct = 3, total = 2 }
expect = { status = "accepted" }`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := behave.Parse(write(t, body))
			require.Error(t, err)
		})
	}

	_, err := behave.Parse(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
