package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	pretty_table "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/nats-io/nats.go"
	"github.com/programme-lv/cmake-judge/internal/environment"
	"github.com/urfave/cli/v3"
)

type health int

const (
	healthOk health = iota
	healthWarn
	healthError
)

type feedbackRow struct {
	unit    string
	health  health
	message string
}

func healthCommand(env *environment.EnvConfig, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "check that the build tool, the test runner and the cache are usable",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			feedback := []feedbackRow{
				ensureToolOk(ctx, "CMake", env.CMakeCommand),
				ensureToolOk(ctx, "lit", env.LitCommand),
				ensureCacheOk(cmd.String("cache-dir")),
				ensureNatsOk(env.NatsUrl),
			}
			outputFeedback(stdout, feedback)
			for _, row := range feedback {
				if row.health == healthError {
					return fmt.Errorf("%s is not healthy", row.unit)
				}
			}
			return nil
		},
	}
}

func ensureToolOk(ctx context.Context, unit string, command []string) feedbackRow {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	args := append(append([]string{}, command[1:]...), "--version")
	out, err := exec.CommandContext(ctx, command[0], args...).CombinedOutput()
	if err != nil {
		msg := err.Error()
		var exitError *exec.ExitError
		if errors.As(err, &exitError) && len(out) > 0 {
			msg = msg + ": " + strings.TrimSpace(string(out))
		}
		return feedbackRow{unit: unit, health: healthError, message: msg}
	}
	firstLine, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return feedbackRow{unit: unit, health: healthOk, message: firstLine}
}

func ensureCacheOk(dir string) feedbackRow {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return feedbackRow{unit: "Cache", health: healthError, message: err.Error()}
	}
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return feedbackRow{unit: "Cache", health: healthError, message: err.Error()}
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return feedbackRow{unit: "Cache", health: healthOk, message: dir}
}

// ensureNatsOk only warns, since NATS is needed by serve alone.
func ensureNatsOk(url string) feedbackRow {
	nc, err := nats.Connect(url, nats.Timeout(2*time.Second), nats.NoReconnect())
	if err != nil {
		return feedbackRow{unit: "NATS", health: healthWarn, message: fmt.Sprintf("%s: %v", url, err)}
	}
	defer nc.Close()
	return feedbackRow{unit: "NATS", health: healthOk, message: nc.ConnectedUrl()}
}

func outputFeedback(w io.Writer, feedback []feedbackRow) {
	t := pretty_table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(pretty_table.Row{"Unit", "Health", "Message"})
	for _, row := range feedback {
		healthCode := ""
		switch row.health {
		case healthOk:
			healthCode = "OKAY"
		case healthWarn:
			healthCode = "WARN"
		case healthError:
			healthCode = "ERROR"
		}
		t.AppendRow(pretty_table.Row{row.unit, healthCode, row.message})
	}
	t.SetStyle(pretty_table.StyleLight)
	textColor := text.Transformer(func(s interface{}) string {
		switch s.(string) {
		case "OKAY":
			return text.FgHiGreen.Sprint(s)
		case "WARN":
			return text.FgHiYellow.Sprint(s)
		case "ERROR":
			return text.FgHiRed.Sprint(s)
		}
		return fmt.Sprint(s)
	})
	t.SetColumnConfigs([]pretty_table.ColumnConfig{
		{
			Name:        "Health",
			Transformer: textColor,
			Align:       text.AlignCenter,
		},
	})
	t.Render()
}
