package littest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/programme-lv/cmake-judge/api"
)

// Test sources under a directory with this name are used for grading only.
const gradingDir = "grading"

// Runner executes the reference tests of a resource bundle with lit.
type Runner struct {
	command []string
	logger  *slog.Logger
}

func New(command []string, logger *slog.Logger) *Runner {
	if len(command) == 0 {
		command = []string{"lit"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{command: command, logger: logger}
}

type report struct {
	Tests []struct {
		Name    string  `json:"name"`
		Code    string  `json:"code"`
		Elapsed float64 `json:"elapsed"`
	} `json:"tests"`
}

// Run executes every test found in resources against the lit suite configured in
// suiteDir and returns the tally.
func (r *Runner) Run(ctx context.Context, resources string, suiteDir string, limits api.Limits) (api.Tally, error) {
	sources, err := CollectTests(resources)
	if err != nil {
		return api.Tally{}, err
	}
	r.logger.Info("running tests", "count", len(sources))

	tally := api.Tally{Results: make([]api.TestResult, 0, len(sources))}
	var hidden api.Tally
	for _, rel := range sources {
		res, err := r.runOne(ctx, filepath.Join(suiteDir, rel), limits)
		if err != nil {
			return api.Tally{}, fmt.Errorf("failed to run test %s: %w", rel, err)
		}
		tally.Total++
		if res.Correct {
			tally.Correct++
		}
		if IsHidden(rel) {
			hidden.Total++
			if res.Correct {
				hidden.Correct++
			}
			r.logger.Debug("hidden test finished", "code", res.Code)
			continue
		}
		res.Name = filepath.ToSlash(rel)
		r.describe(&res, resources, suiteDir, rel)
		r.logger.Debug("test finished", "test", res.Name, "code", res.Code)
		tally.Results = append(tally.Results, res)
	}
	if hidden.Total > 0 {
		tally.Summary = append(tally.Summary, hiddenSummary(hidden.Correct, hidden.Total))
	}
	return tally, nil
}

// CollectTests lists the *.c test sources of a bundle, relative to it and sorted.
func CollectTests(resources string) ([]string, error) {
	var res []string
	err := filepath.WalkDir(resources, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == gradingDir && path != resources {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".c" {
			return nil
		}
		rel, err := filepath.Rel(resources, path)
		if err != nil {
			return err
		}
		res = append(res, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to collect tests: %w", err)
	}
	slices.Sort(res)
	return res, nil
}

func (r *Runner) runOne(ctx context.Context, target string, limits api.Limits) (api.TestResult, error) {
	tmp, err := os.CreateTemp("", "lit-*.json")
	if err != nil {
		return api.TestResult{}, err
	}
	_ = tmp.Close()
	defer os.Remove(tmp.Name())

	args := append(append([]string{}, r.command[1:]...), target, "-o", tmp.Name())
	if limits.Time > 0 {
		args = append(args, fmt.Sprintf("--timeout=%d", int(math.Ceil(limits.Time.Seconds()))))
	}
	cmd := exec.CommandContext(ctx, r.command[0], args...)
	cmd.Stdout = io.Discard
	var stderr strings.Builder
	cmd.Stderr = &stderr

	correct := true
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			return api.TestResult{}, err
		}
		correct = false
	}

	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return api.TestResult{}, err
	}
	var rep report
	if err := json.Unmarshal(data, &rep); err != nil {
		return api.TestResult{}, fmt.Errorf("failed to parse lit report: %w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}
	if len(rep.Tests) == 0 {
		return api.TestResult{}, fmt.Errorf("lit report has no tests (stderr: %s)", strings.TrimSpace(stderr.String()))
	}

	t := rep.Tests[0]
	return api.TestResult{
		Code:       t.Code,
		Correct:    correct,
		ElapsedSec: t.Elapsed,
	}, nil
}
