package evaluator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/isdmx/shellbox/challenge"
)

// DefaultSimilarityThreshold is the partial-credit similarity cutoff used
// when no threshold is configured
const DefaultSimilarityThreshold = 0.7

var ansiEscape = regexp.MustCompile(`\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)

// Normalize prepares terminal output for comparison: ANSI escape
// sequences are stripped, whitespace runs collapse to single spaces,
// ends are trimmed, and the result is lowercased.
func Normalize(text string) string {
	text = ansiEscape.ReplaceAllString(text, "")
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Exact reports whether two outputs are equal after normalization
func Exact(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Contains reports whether the normalized haystack contains the
// normalized needle
func Contains(haystack, needle string) bool {
	return strings.Contains(Normalize(haystack), Normalize(needle))
}

// Similar reports whether the similarity ratio of the normalized inputs
// meets the threshold. The ratio is 1 - distance/maxlen in [0, 1].
func Similar(a, b string, threshold float64) bool {
	return SimilarityRatio(a, b) >= threshold
}

// SimilarityRatio computes an edit-distance-based similarity ratio
// between the normalized inputs
func SimilarityRatio(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1.0
	}

	maxLen := len([]rune(na))
	if l := len([]rune(nb)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 1.0
	}

	distance := levenshtein.ComputeDistance(na, nb)
	return 1.0 - float64(distance)/float64(maxLen)
}

// CommandMatch reports whether the executed command is close enough to
// the expected one: either the expected command appears as a substring,
// or both start with the same program name (covers invocations with
// different flags or arguments).
func CommandMatch(executed, expected string) bool {
	executedNorm := Normalize(executed)
	expectedNorm := Normalize(expected)
	if executedNorm == "" || expectedNorm == "" {
		return false
	}

	if strings.Contains(executedNorm, expectedNorm) {
		return true
	}

	executedFields := strings.Fields(executedNorm)
	expectedFields := strings.Fields(expectedNorm)
	return len(executedFields) > 0 && len(expectedFields) > 0 && executedFields[0] == expectedFields[0]
}

// FileExistsMatch checks the raw output for any of the expected
// whitespace-delimited tokens, case-insensitively. It returns which
// tokens were found so feedback can name them.
func FileExistsMatch(output, expectedList string) (bool, []string) {
	lowerOutput := strings.ToLower(output)

	var matched []string
	for _, token := range strings.Fields(expectedList) {
		if strings.Contains(lowerOutput, strings.ToLower(token)) {
			matched = append(matched, token)
		}
	}

	return len(matched) > 0, matched
}

// Evaluator grades captured command output against challenge
// expectations. It is stateless apart from the configured similarity
// threshold.
type Evaluator struct {
	similarityThreshold float64
}

// New creates an Evaluator with the given similarity threshold.
// Non-positive thresholds fall back to the default.
func New(similarityThreshold float64) *Evaluator {
	if similarityThreshold <= 0 {
		similarityThreshold = DefaultSimilarityThreshold
	}
	return &Evaluator{similarityThreshold: similarityThreshold}
}

// Evaluate grades output (and optionally the executed command) against
// the challenge spec, dispatching on its evaluation type. Malformed
// specs never cause an error; they grade as incorrect with feedback
// explaining what is missing.
func (e *Evaluator) Evaluate(output, executedCommand string, spec challenge.Spec) (bool, string) {
	switch spec.EvaluationType {
	case challenge.EvalCommand:
		return e.evaluateCommand(executedCommand, spec)
	case challenge.EvalFileExists:
		return e.evaluateFileExists(output, spec)
	case challenge.EvalExact:
		return e.evaluateExact(output, spec)
	default:
		// contains is both the explicit mode and the fallback for
		// unset or unrecognized types
		return e.evaluateContains(output, spec)
	}
}

func (*Evaluator) evaluateCommand(executedCommand string, spec challenge.Spec) (bool, string) {
	if strings.TrimSpace(spec.CommandToPractice) == "" {
		return false, "This challenge has no practice command configured."
	}
	if strings.TrimSpace(executedCommand) == "" {
		return false, fmt.Sprintf("No command was captured for this attempt. Expected command: %s", spec.CommandToPractice)
	}

	if CommandMatch(executedCommand, spec.CommandToPractice) {
		return true, "Great! You used the right command."
	}
	return false, fmt.Sprintf("Not quite. Try using the command: %s", spec.CommandToPractice)
}

func (*Evaluator) evaluateFileExists(output string, spec challenge.Spec) (bool, string) {
	if strings.TrimSpace(spec.ExpectedOutput) == "" {
		return false, "This challenge has no expected files configured."
	}

	ok, matched := FileExistsMatch(output, spec.ExpectedOutput)
	if ok {
		return true, fmt.Sprintf("Found what we were looking for: %s", strings.Join(matched, ", "))
	}
	return false, fmt.Sprintf("Expected to find: %s", spec.ExpectedOutput)
}

func (*Evaluator) evaluateExact(output string, spec challenge.Spec) (bool, string) {
	if strings.TrimSpace(spec.ExpectedOutput) == "" {
		return false, "This challenge has no expected output configured."
	}

	if Exact(output, spec.ExpectedOutput) {
		return true, "Perfect! Output matches exactly."
	}
	return false, fmt.Sprintf("Output doesn't match exactly. Expected: %s", truncate(spec.ExpectedOutput, 100))
}

func (e *Evaluator) evaluateContains(output string, spec challenge.Spec) (bool, string) {
	if strings.TrimSpace(spec.ExpectedOutput) == "" {
		return false, "This challenge has no expected output configured."
	}

	if Contains(output, spec.ExpectedOutput) {
		return true, "Excellent! Output contains the expected result."
	}
	if Similar(output, spec.ExpectedOutput, e.similarityThreshold) {
		return true, "Close enough! Your output is very similar to the expected result."
	}
	return false, fmt.Sprintf("Keep trying! Expected output should include: %s", truncate(spec.ExpectedOutput, 80))
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
