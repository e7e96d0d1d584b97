package littest

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/programme-lv/cmake-judge/api"
	"github.com/programme-lv/cmake-judge/internal/diagnose"
)

const (
	// Tests under a folder with this name are only counted, never shown.
	hiddenDir = "hidden"
	// Custom tests check behaviour themselves and have no reference output.
	customSuffix = ".custom.c"

	codeTimeout = "TIMEOUT"

	previewLines = 10
	barWidth     = 20
)

// IsHidden reports whether the test at rel lies under a hidden folder.
func IsHidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(filepath.Dir(rel)), "/") {
		if part == hiddenDir {
			return true
		}
	}
	return false
}

// GroupTitle names the rubric folders of the test at rel, outermost first.
func GroupTitle(rel string) string {
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." {
		return ""
	}
	parts := strings.Split(dir, "/")
	for i, p := range parts {
		parts[i] = folderTitle(p)
	}
	return strings.Join(parts, " / ")
}

func folderTitle(name string) string {
	name = strings.NewReplacer("_", " ", "-", " ").Replace(name)
	first, size := utf8.DecodeRuneInString(name)
	if size == 0 {
		return name
	}
	return string(unicode.ToUpper(first)) + strings.ToLower(name[size:])
}

// describe attaches what a student needs to understand a result: the test
// source, expected and generated output, and warnings.
func (r *Runner) describe(res *api.TestResult, resources, suiteDir, rel string) {
	res.Group = GroupTitle(rel)
	if src, err := os.ReadFile(filepath.Join(resources, rel)); err == nil {
		res.Source = preview(string(src))
	} else {
		r.logger.Debug("test source unreadable", "test", rel, "error", err)
	}

	var unexpected string
	if !strings.HasSuffix(rel, customSuffix) {
		expOut := readOptional(filepath.Join(resources, rel+".stdout"))
		expErr := readOptional(filepath.Join(resources, rel+".stderr"))
		// lit substitutes %t with Output/<name>.tmp next to the test
		gen := filepath.Join(suiteDir, filepath.Dir(rel), "Output", filepath.Base(rel)+".tmp")
		genOut := readOptional(gen + ".stdout")
		genErr := readOptional(gen + ".stderr")

		if expErr != "" {
			res.Expected, res.Generated = expErr, genErr
		} else {
			res.Expected, res.Generated = expOut, genOut
			unexpected = genErr
		}
		res.Expected = diagnose.TrimToRect(res.Expected, diagnose.MaxQuoteHeight, diagnose.MaxQuoteWidth)
		res.Generated = diagnose.TrimToRect(res.Generated, diagnose.MaxQuoteHeight, diagnose.MaxQuoteWidth)
	}

	switch {
	case strings.TrimSpace(unexpected) != "":
		quoted := diagnose.TrimToRect(unexpected, diagnose.MaxQuoteHeight, diagnose.MaxQuoteWidth)
		res.Messages = append(res.Messages, warning(
			"&#9889; **Your solution threw an unexpected error:**\n```\n"+quoted+"\n```"))
	case res.Code == codeTimeout:
		res.Messages = append(res.Messages, warning(
			fmt.Sprintf("&#9201;&#65039; **Your solution timed out:** it took more than %.1f s", res.ElapsedSec)))
	}
}

func readOptional(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

func preview(src string) string {
	lines := strings.Split(strings.TrimRight(src, "\n"), "\n")
	if len(lines) > previewLines {
		lines = append(lines[:previewLines-1], "... // Remainder of code omitted")
	}
	return strings.Join(lines, "\n")
}

func warning(text string) api.Message {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return api.Message{Description: strings.Join(lines, "\n"), Format: api.FormatMarkdown, Type: "warning"}
}

func hiddenSummary(correct, total int) api.Message {
	filled := int(math.Floor(float64(correct) / float64(total) * barWidth))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	return api.Message{
		Description: fmt.Sprintf("##### Hidden tests: %s %d/%d correct", bar, correct, total),
		Format:      api.FormatMarkdown,
		Type:        "summary",
	}
}
