package diagnose

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/programme-lv/cmake-judge/api"
)

// Bounds for the raw stderr quoted in the fallback message.
const (
	MaxQuoteHeight = 40
	MaxQuoteWidth  = 160
)

var (
	undefinedRefRe = regexp.MustCompile("(?m)/usr/bin/ld: .*\\n?\\w+\\.(?:h|c|cpp):\\([\\w+.]+\\): undefined reference to `([^']*)'")
	compileErrRe   = regexp.MustCompile(`(?m)[/\w.\-]+:(\d+):(\d+): error: (.+)`)
)

// Explanation is the user-facing account of a failed build.
type Explanation struct {
	Messages    []api.Message
	Annotations []api.Annotation
}

// Explain turns build-tool stderr into messages for the learner.
func Explain(stderr string, exitCode int) Explanation {
	if refs := missingReferences(stderr); len(refs) > 0 {
		lines := make([]string, 0, len(refs))
		for _, ref := range refs {
			lines = append(lines, fmt.Sprintf(" * `%s`", ref))
		}
		return Explanation{Messages: []api.Message{{
			Description: "Could not find the following references:\n" + strings.Join(lines, "\n"),
			Format:      api.FormatMarkdown,
			Type:        "error",
		}}}
	}

	if m := compileErrRe.FindStringSubmatch(stderr); m != nil {
		row, _ := strconv.Atoi(m[1])
		col, _ := strconv.Atoi(m[2])
		msg := strings.TrimSpace(m[3])
		return Explanation{
			Messages: []api.Message{{Description: msg, Format: api.FormatCode}},
			Annotations: []api.Annotation{{
				Row:    row,
				Column: col,
				Text:   msg,
				Type:   "error",
			}},
		}
	}

	return Explanation{Messages: []api.Message{{
		Description: fmt.Sprintf("Failed to build solution.\nCMake returned exit code **%d**.\n%s",
			exitCode, quote(TrimToRect(stderr, MaxQuoteHeight, MaxQuoteWidth))),
		Format: api.FormatMarkdown,
		Type:   "error",
	}}}
}

func missingReferences(stderr string) []string {
	matches := undefinedRefRe.FindAllStringSubmatch(stderr, -1)
	if len(matches) == 0 {
		return nil
	}
	refs := mapset.NewThreadUnsafeSet[string]()
	for _, m := range matches {
		refs.Add(m[1])
	}
	res := refs.ToSlice()
	slices.Sort(res)
	return res
}

func quote(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return "> ```\n" + strings.Join(lines, "\n") + "\n> ```"
}

// TrimToRect cuts s to at most maxHeight lines of at most maxWidth bytes each.
func TrimToRect(s string, maxHeight int, maxWidth int) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	cut := len(lines) > maxHeight
	if cut {
		lines = lines[:maxHeight]
	}
	for i, line := range lines {
		if len(line) > maxWidth {
			end := maxWidth
			for end > 0 && !utf8.RuneStart(line[end]) {
				end--
			}
			lines[i] = line[:end] + "[...]"
		}
	}
	if cut {
		lines = append(lines, "[...]")
	}
	return strings.Join(lines, "\n")
}
