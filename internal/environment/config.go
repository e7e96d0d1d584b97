package environment

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/shlex"
	"github.com/joho/godotenv"
	"github.com/programme-lv/cmake-judge/internal/xdg"
)

const appName = "cmake-judge"

type EnvConfig struct {
	CMakeCommand []string
	LitCommand   []string
	CacheDir     string
	LogLevel     string
	NatsUrl      string
	NatsSubject  string
	SqsUrl       string
	AwsRegion    string
}

// ReadEnvConfig loads .env from the working directory when present and reads
// the JUDGE_* variables. Variables already set in the environment win.
func ReadEnvConfig() (*EnvConfig, error) {
	return ReadEnvConfigFrom(".env")
}

func ReadEnvConfigFrom(envFiles ...string) (*EnvConfig, error) {
	for _, f := range envFiles {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", f, err)
		}
	}

	result := &EnvConfig{
		CacheDir:    getenv("JUDGE_CACHE_DIR", xdg.NewXDGDirs().AppCacheDir(appName)),
		LogLevel:    getenv("JUDGE_LOG_LEVEL", "info"),
		NatsUrl:     getenv("JUDGE_NATS_URL", "nats://127.0.0.1:4222"),
		NatsSubject: getenv("JUDGE_NATS_SUBJECT", "judge.cmake"),
		SqsUrl:      os.Getenv("JUDGE_SQS_URL"),
		AwsRegion:   getenv("AWS_REGION", "eu-central-1"),
	}

	var err error
	if result.CMakeCommand, err = command("JUDGE_CMAKE", "cmake"); err != nil {
		return nil, err
	}
	if result.LitCommand, err = command("JUDGE_LIT", "lit"); err != nil {
		return nil, err
	}
	return result, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// command splits a shell-style command line such as "python3 -m lit".
func command(key, def string) ([]string, error) {
	argv, err := shlex.Split(getenv(key, def))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", key, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("%s is empty", key)
	}
	return argv, nil
}
