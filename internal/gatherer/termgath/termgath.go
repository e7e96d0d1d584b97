// Package termgath prints judgements for a person watching the terminal.
package termgath

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/programme-lv/cmake-judge/api"
)

type TerminalGatherer struct {
	w         io.Writer
	StartedAt time.Time
}

func New(w io.Writer) *TerminalGatherer {
	return &TerminalGatherer{w: w, StartedAt: time.Now()}
}

var (
	bold    = color.New(color.Bold)
	green   = color.New(color.FgGreen, color.Bold)
	red     = color.New(color.FgRed, color.Bold)
	yellow  = color.New(color.FgYellow, color.Bold)
	magenta = color.New(color.FgMagenta, color.Bold)
	faint   = color.New(color.Faint)
)

func statusColor(s api.Status) *color.Color {
	switch s {
	case api.StatusAccepted:
		return green
	case api.StatusWrongAnswer:
		return red
	case api.StatusCompileError:
		return yellow
	default:
		return magenta
	}
}

func (t *TerminalGatherer) Emit(_ context.Context, j api.Judgement) error {
	var b strings.Builder

	bold.Fprintf(&b, "== Evaluation %s ==\n", j.EvalUuid)
	fmt.Fprint(&b, "Status: ")
	statusColor(j.Status).Fprint(&b, j.Status.String())
	if j.Stage != "" {
		faint.Fprintf(&b, " (ended while %s)", j.Stage)
	}
	fmt.Fprintln(&b)

	if j.Tests != nil {
		c := green
		if !j.Tests.AllCorrect() {
			c = red
		}
		fmt.Fprint(&b, "Tests: ")
		c.Fprintf(&b, "%d/%d", j.Tests.Correct, j.Tests.Total)
		fmt.Fprintln(&b, " correct")
		group := ""
		for _, r := range j.Tests.Results {
			if r.Group != group {
				group = r.Group
				bold.Fprintf(&b, " %s\n", group)
			}
			mark := green.Sprint("ok")
			if !r.Correct {
				mark = red.Sprint("FAIL")
			}
			fmt.Fprintf(&b, "  %-4s %s %s\n", mark, r.Name, faint.Sprintf("%.2fs", r.ElapsedSec))
			if !r.Correct && r.Expected != r.Generated {
				fmt.Fprintf(&b, "       expected: %q\n       got:      %q\n", r.Expected, r.Generated)
			}
			for _, m := range r.Messages {
				fmt.Fprintln(&b, indent(m.Description, "       "))
			}
		}
	}

	for _, m := range j.Messages {
		fmt.Fprintln(&b, "--")
		fmt.Fprintln(&b, strings.TrimRight(m.Description, "\n"))
	}
	for _, a := range j.Annotations {
		fmt.Fprintf(&b, "%s %d:%d: %s\n", yellow.Sprint(a.Type), a.Row, a.Column, a.Text)
	}

	dur := time.Since(t.StartedAt).Round(time.Millisecond)
	bold.Fprintf(&b, "== Evaluation finished in %s ==\n", dur)

	if _, err := io.WriteString(t.w, b.String()); err != nil {
		return fmt.Errorf("failed to print judgement: %w", err)
	}
	return nil
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n"+prefix)
}
