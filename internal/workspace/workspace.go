package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/programme-lv/cmake-judge/internal/buildcfg"
)

// Workspace is a staged working directory ready for configuring.
type Workspace struct {
	Root           string
	BuildDir       string
	SubmissionPath string
	TestDir        string
	ConfigureArgs  []string
}

// IOFailure is returned when staging cannot read or write a file.
type IOFailure struct {
	Op   string
	Path string
	Err  error
}

func (e *IOFailure) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOFailure) Unwrap() error { return e.Err }

// Prepare copies the submission into the working directory at the place named by
// the build configuration and makes sure the build directory exists.
func Prepare(workdir string, source string, cfg buildcfg.Config) (Workspace, error) {
	root, err := filepath.Abs(workdir)
	if err != nil {
		return Workspace{}, &IOFailure{Op: "resolve", Path: workdir, Err: err}
	}

	argv, err := cfg.ConfigureArgv()
	if err != nil {
		return Workspace{}, fmt.Errorf("failed to split configure args: %w", err)
	}

	ws := Workspace{
		Root:           root,
		BuildDir:       filepath.Join(root, cfg.BuildDir),
		SubmissionPath: filepath.Join(root, cfg.SubmissionPath),
		TestDir:        filepath.Join(root, cfg.BuildDir, cfg.TestDir),
		ConfigureArgs:  argv,
	}

	for _, dir := range []string{ws.Root, ws.BuildDir, filepath.Dir(ws.SubmissionPath)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Workspace{}, &IOFailure{Op: "create directory", Path: dir, Err: err}
		}
	}

	if err := copyFile(source, ws.SubmissionPath); err != nil {
		return Workspace{}, err
	}
	return ws, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return &IOFailure{Op: "open submission", Path: src, Err: err}
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return &IOFailure{Op: "create", Path: dst, Err: err}
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return &IOFailure{Op: "copy submission to", Path: dst, Err: err}
	}
	if err := out.Close(); err != nil {
		return &IOFailure{Op: "close", Path: dst, Err: err}
	}
	return nil
}
