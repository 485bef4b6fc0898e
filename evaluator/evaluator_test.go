package evaluator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/shellbox/challenge"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Empty", "", ""},
		{"Lowercases", "Hello World", "hello world"},
		{"CollapsesWhitespace", "a   b\t\tc\n\nd", "a b c d"},
		{"TrimsEnds", "  trimmed  ", "trimmed"},
		{"StripsANSIColors", "\x1b[31mred\x1b[0m text", "red text"},
		{"StripsANSICursor", "\x1b[2Jcleared", "cleared"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.input))
		})
	}

	t.Run("Idempotent", func(t *testing.T) {
		inputs := []string{"", "Hello World", "  a\tb \x1b[31m c \x1b[0m", "already normal"}
		for _, input := range inputs {
			once := Normalize(input)
			assert.Equal(t, once, Normalize(once))
		}
	})
}

func TestExact(t *testing.T) {
	assert.True(t, Exact("Hello World", "hello world"))
	assert.True(t, Exact("  hello\tworld ", "hello world"))
	assert.False(t, Exact("hello", "world"))
}

func TestContains(t *testing.T) {
	assert.True(t, Contains("the FILE exists here", "file exists"))
	assert.False(t, Contains("nothing relevant", "file exists"))
}

func TestSimilar(t *testing.T) {
	t.Run("IdenticalIsOne", func(t *testing.T) {
		assert.Equal(t, 1.0, SimilarityRatio("same", "Same"))
	})

	t.Run("BothEmptyIsOne", func(t *testing.T) {
		assert.Equal(t, 1.0, SimilarityRatio("", ""))
	})

	t.Run("SmallTypoPasses", func(t *testing.T) {
		assert.True(t, Similar("total 12 files", "total 12 filez", 0.7))
	})

	t.Run("DifferentTextFails", func(t *testing.T) {
		assert.False(t, Similar("totally different text", "file exists", 0.7))
	})

	t.Run("RatioBounded", func(t *testing.T) {
		ratio := SimilarityRatio("abc", "xyzxyzxyz")
		assert.GreaterOrEqual(t, ratio, 0.0)
		assert.LessOrEqual(t, ratio, 1.0)
	})
}

func TestCommandMatch(t *testing.T) {
	tests := []struct {
		name     string
		executed string
		expected string
		want     bool
	}{
		{"ExactCommand", "ls -la /", "ls -la /", true},
		{"ExtraPrefix", "sudo ls -la /", "ls -la /", true},
		{"SameProgramDifferentFlags", "ls -a", "ls -la /", true},
		{"DifferentProgram", "pwd", "ls -la /", false},
		{"EmptyExecuted", "", "ls", false},
		{"EmptyExpected", "ls", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CommandMatch(tt.executed, tt.expected))
		})
	}
}

func TestFileExistsMatch(t *testing.T) {
	t.Run("OneTokenFound", func(t *testing.T) {
		ok, matched := FileExistsMatch("README.txt  notes.md", "readme.txt missing.txt")
		assert.True(t, ok)
		assert.Equal(t, []string{"readme.txt"}, matched)
	})

	t.Run("NothingFound", func(t *testing.T) {
		ok, matched := FileExistsMatch("some output", "absent.txt")
		assert.False(t, ok)
		assert.Empty(t, matched)
	})

	t.Run("EmptyExpectedList", func(t *testing.T) {
		ok, matched := FileExistsMatch("anything", "")
		assert.False(t, ok)
		assert.Empty(t, matched)
	})
}

func TestEvaluate(t *testing.T) {
	eval := New(0.7)

	t.Run("ExactCaseInsensitive", func(t *testing.T) {
		correct, feedback := eval.Evaluate("Hello World", "", challenge.Spec{
			ExpectedOutput: "hello world",
			EvaluationType: challenge.EvalExact,
		})
		assert.True(t, correct)
		assert.Contains(t, feedback, "Perfect")
	})

	t.Run("ExactFailureShowsTruncatedExpected", func(t *testing.T) {
		long := strings.Repeat("x", 150)
		correct, feedback := eval.Evaluate("nope", "", challenge.Spec{
			ExpectedOutput: long,
			EvaluationType: challenge.EvalExact,
		})
		assert.False(t, correct)
		assert.Contains(t, feedback, strings.Repeat("x", 100))
		assert.NotContains(t, feedback, strings.Repeat("x", 101))
	})

	t.Run("ContainsSucceeds", func(t *testing.T) {
		correct, feedback := eval.Evaluate("the file exists here", "", challenge.Spec{
			ExpectedOutput: "file exists",
			EvaluationType: challenge.EvalContains,
		})
		assert.True(t, correct)
		assert.Contains(t, feedback, "Excellent")
	})

	t.Run("ContainsFallsBackToSimilarity", func(t *testing.T) {
		correct, feedback := eval.Evaluate("file exsts", "", challenge.Spec{
			ExpectedOutput: "file exists",
			EvaluationType: challenge.EvalContains,
		})
		assert.True(t, correct)
		assert.Contains(t, feedback, "Close enough")
	})

	t.Run("ContainsTotalFailure", func(t *testing.T) {
		correct, feedback := eval.Evaluate("totally different text", "", challenge.Spec{
			ExpectedOutput: "file exists",
			EvaluationType: challenge.EvalContains,
		})
		assert.False(t, correct)
		assert.Contains(t, feedback, "Keep trying")
	})

	t.Run("UnrecognizedTypeFallsBackToContains", func(t *testing.T) {
		correct, _ := eval.Evaluate("file exists", "", challenge.Spec{
			ExpectedOutput: "file exists",
			EvaluationType: "regex",
		})
		assert.True(t, correct)
	})

	t.Run("CommandModeMatch", func(t *testing.T) {
		correct, _ := eval.Evaluate("", "ls -la /", challenge.Spec{
			EvaluationType:    challenge.EvalCommand,
			CommandToPractice: "ls -la /",
		})
		assert.True(t, correct)
	})

	t.Run("CommandModeMismatch", func(t *testing.T) {
		correct, feedback := eval.Evaluate("", "pwd", challenge.Spec{
			EvaluationType:    challenge.EvalCommand,
			CommandToPractice: "ls -la /",
		})
		assert.False(t, correct)
		assert.Contains(t, feedback, "ls -la /")
	})

	t.Run("CommandModeMissingExecuted", func(t *testing.T) {
		correct, feedback := eval.Evaluate("some output", "", challenge.Spec{
			EvaluationType:    challenge.EvalCommand,
			CommandToPractice: "ls -la /",
		})
		assert.False(t, correct)
		assert.Contains(t, feedback, "ls -la /")
	})

	t.Run("FileExistsListsMatches", func(t *testing.T) {
		correct, feedback := eval.Evaluate("drwxr-xr-x .hidden", "", challenge.Spec{
			EvaluationType: challenge.EvalFileExists,
			ExpectedOutput: ".hidden .secret",
		})
		assert.True(t, correct)
		assert.Contains(t, feedback, ".hidden")
	})

	t.Run("FileExistsFailureListsExpected", func(t *testing.T) {
		correct, feedback := eval.Evaluate("nothing here", "", challenge.Spec{
			EvaluationType: challenge.EvalFileExists,
			ExpectedOutput: ".hidden .secret",
		})
		assert.False(t, correct)
		assert.Contains(t, feedback, ".hidden .secret")
	})

	t.Run("MalformedSpecNeverPanics", func(t *testing.T) {
		for _, mode := range []string{challenge.EvalExact, challenge.EvalContains, challenge.EvalCommand, challenge.EvalFileExists, ""} {
			correct, feedback := eval.Evaluate("", "", challenge.Spec{EvaluationType: mode})
			require.False(t, correct)
			require.NotEmpty(t, feedback)
		}
	})
}

func TestNewDefaultsThreshold(t *testing.T) {
	eval := New(0)
	assert.Equal(t, DefaultSimilarityThreshold, eval.similarityThreshold)
}
