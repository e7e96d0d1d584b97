package buildcfg

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"
)

// FileName is looked up inside the working directory.
const FileName = "build-config.json"

var ErrInvalid = errors.New("invalid build configuration")

// Config says where the submission goes and how the build is laid out.
type Config struct {
	// Relative to the working directory
	SubmissionPath string `json:"submission_path"`
	// Relative to the working directory, defaults to "build"
	BuildDir string `json:"build_dir"`
	// Extra arguments for the configure step, shell-quoted
	ConfigureArgs string `json:"configure_args"`
	// Lit suite location inside the build dir, defaults to "test"
	TestDir string `json:"test_dir"`
}

// Load reads <workdir>/build-config.json.
func Load(workdir string) (Config, error) {
	path := filepath.Join(workdir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read build config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a build configuration, filling in defaults.
func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse build config: %w", err)
	}
	if cfg.BuildDir == "" {
		cfg.BuildDir = "build"
	}
	if cfg.TestDir == "" {
		cfg.TestDir = "test"
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.SubmissionPath == "" {
		return fmt.Errorf("%w: submission_path is required", ErrInvalid)
	}
	for key, p := range map[string]string{
		"submission_path": c.SubmissionPath,
		"build_dir":       c.BuildDir,
		"test_dir":        c.TestDir,
	} {
		if filepath.IsAbs(p) {
			return fmt.Errorf("%w: %s must be relative, got %q", ErrInvalid, key, p)
		}
		clean := filepath.Clean(p)
		if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%w: %s escapes the working directory: %q", ErrInvalid, key, p)
		}
	}
	if _, err := c.ConfigureArgv(); err != nil {
		return fmt.Errorf("%w: configure_args: %v", ErrInvalid, err)
	}
	return nil
}

// ConfigureArgv splits ConfigureArgs the way a shell would.
func (c Config) ConfigureArgv() ([]string, error) {
	if strings.TrimSpace(c.ConfigureArgs) == "" {
		return nil, nil
	}
	return shlex.Split(c.ConfigureArgs)
}
