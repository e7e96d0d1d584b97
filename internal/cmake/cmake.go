package cmake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/programme-lv/cmake-judge/internal/workspace"
)

// Step names the build-tool invocation an outcome belongs to.
type Step string

const (
	StepConfigure Step = "configure"
	StepBuild     Step = "build"
)

// ResourcesVar is the cache variable through which the build finds test resources.
const ResourcesVar = "RESOURCES_DIR"

// maxStderr bounds how much diagnostic output is kept.
const maxStderr = 1 << 20

// Outcome is the result of one build-tool invocation.
type Outcome struct {
	Step     Step
	Success  bool
	ExitCode int
	Stderr   string
}

// Invoker runs the configure and build steps of CMake.
type Invoker struct {
	// argv prefix, e.g. ["cmake"]
	command []string
	logger  *slog.Logger
}

func New(command []string, logger *slog.Logger) *Invoker {
	if len(command) == 0 {
		command = []string{"cmake"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{command: command, logger: logger}
}

// Configure generates the build system inside the workspace build directory.
func (i *Invoker) Configure(ctx context.Context, ws workspace.Workspace, resources string) (Outcome, error) {
	args := []string{fmt.Sprintf("-D%s=%s", ResourcesVar, resources)}
	args = append(args, ws.ConfigureArgs...)
	args = append(args, ws.Root)
	return i.run(ctx, StepConfigure, ws.BuildDir, args)
}

// Build compiles the configured project.
func (i *Invoker) Build(ctx context.Context, ws workspace.Workspace) (Outcome, error) {
	return i.run(ctx, StepBuild, ws.BuildDir, []string{"--build", ws.BuildDir})
}

func (i *Invoker) run(ctx context.Context, step Step, dir string, args []string) (Outcome, error) {
	argv := append(append([]string{}, i.command[1:]...), args...)
	cmd := exec.CommandContext(ctx, i.command[0], argv...)
	cmd.Dir = dir
	cmd.Stdout = io.Discard
	stderr := &capped{limit: maxStderr}
	cmd.Stderr = stderr

	i.logger.Debug("running build tool", "step", step, "args", cmd.Args)
	err := cmd.Run()

	res := Outcome{Step: step, Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || ctx.Err() != nil {
			return res, fmt.Errorf("failed to run %s step: %w", step, err)
		}
		res.ExitCode = exitErr.ExitCode()
		i.logger.Info("build tool failed", "step", step, "exit_code", res.ExitCode)
		return res, nil
	}

	res.Success = true
	i.logger.Debug("build tool finished", "step", step)
	return res, nil
}

// capped keeps the first limit bytes written and drops the rest.
type capped struct {
	buf   bytes.Buffer
	limit int
}

func (c *capped) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

func (c *capped) String() string { return c.buf.String() }
