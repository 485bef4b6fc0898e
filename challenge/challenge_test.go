package challenge

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const sampleYAML = `
challenges:
  - id: ls-basics
    title: List files
    description: List all files in the root directory.
    difficulty: easy
    setup_commands:
      - mkdir -p /practice
      - touch /practice/readme.txt
    expected_output: readme.txt
    evaluation_type: contains
    command_to_practice: ls -la /
    skill_tags: [navigation, listing]
  - id: pwd-basics
    title: Where am I
    expected_output: /root
    evaluation_type: exact
  - id: git-config
    title: Configure git
    evaluation_type: command
    command_to_practice: git config --global user.name
`

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "challenges.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRegistry(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("LoadsSampleFile", func(t *testing.T) {
		registry, err := LoadRegistry(logger, writeTempFile(t, sampleYAML))
		require.NoError(t, err)
		assert.Equal(t, 3, registry.Len())

		spec, err := registry.Get("ls-basics")
		require.NoError(t, err)
		assert.Equal(t, "List files", spec.Title)
		assert.Equal(t, []string{"mkdir -p /practice", "touch /practice/readme.txt"}, spec.SetupCommands)
		assert.Equal(t, []string{"navigation", "listing"}, spec.SkillTags)
		assert.Equal(t, EvalContains, spec.EvaluationType)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadRegistry(logger, filepath.Join(t.TempDir(), "nope.yaml"))
		require.Error(t, err)
	})

	t.Run("MalformedYAML", func(t *testing.T) {
		_, err := LoadRegistry(logger, writeTempFile(t, "challenges: [oops"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse challenge file")
	})

	t.Run("ListPreservesOrder", func(t *testing.T) {
		registry, err := LoadRegistry(logger, writeTempFile(t, sampleYAML))
		require.NoError(t, err)

		specs := registry.List()
		require.Len(t, specs, 3)
		assert.Equal(t, "ls-basics", specs[0].ID)
		assert.Equal(t, "pwd-basics", specs[1].ID)
		assert.Equal(t, "git-config", specs[2].ID)
	})
}

func TestNewRegistry(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("DuplicateID", func(t *testing.T) {
		_, err := NewRegistry(logger, []Spec{
			{ID: "dup", ExpectedOutput: "a"},
			{ID: "dup", ExpectedOutput: "b"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate challenge id")
	})

	t.Run("MissingID", func(t *testing.T) {
		_, err := NewRegistry(logger, []Spec{{ExpectedOutput: "a"}})
		require.Error(t, err)
	})

	t.Run("CommandModeRequiresCommand", func(t *testing.T) {
		_, err := NewRegistry(logger, []Spec{{ID: "c", EvaluationType: EvalCommand}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "requires command_to_practice")
	})

	t.Run("UnknownEvaluationTypeTolerated", func(t *testing.T) {
		registry, err := NewRegistry(logger, []Spec{{ID: "odd", EvaluationType: "regex"}})
		require.NoError(t, err)
		assert.Equal(t, 1, registry.Len())
	})

	t.Run("GetUnknownID", func(t *testing.T) {
		registry, err := NewRegistry(logger, nil)
		require.NoError(t, err)

		_, err = registry.Get("missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}
