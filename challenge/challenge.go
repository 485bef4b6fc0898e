package challenge

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Evaluation type constants
const (
	EvalExact      = "exact"
	EvalContains   = "contains"
	EvalCommand    = "command"
	EvalFileExists = "file_exists"
)

// ErrNotFound is returned when a challenge id is not in the registry
var ErrNotFound = errors.New("challenge not found")

// Spec describes a single shell challenge: how the sandbox is prepared
// for it and how submitted output is graded.
type Spec struct {
	ID                string   `yaml:"id"`
	Title             string   `yaml:"title"`
	Description       string   `yaml:"description"`
	Difficulty        string   `yaml:"difficulty"`
	SetupCommands     []string `yaml:"setup_commands"`
	ExpectedOutput    string   `yaml:"expected_output"`
	EvaluationType    string   `yaml:"evaluation_type"`
	CommandToPractice string   `yaml:"command_to_practice"`
	SkillTags         []string `yaml:"skill_tags"`
}

// Validate checks the structural requirements of a spec
func (s *Spec) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("challenge is missing an id")
	}
	if s.EvaluationType == EvalCommand && s.CommandToPractice == "" {
		return fmt.Errorf("challenge %s: evaluation_type 'command' requires command_to_practice", s.ID)
	}
	return nil
}

// Registry is a read-only catalog of challenge specs loaded from a YAML file
type Registry struct {
	specs map[string]Spec
	order []string
}

type challengeFile struct {
	Challenges []Spec `yaml:"challenges"`
}

// LoadRegistry reads a challenge catalog from the given YAML file
func LoadRegistry(logger *zap.Logger, path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read challenge file %s: %w", path, err)
	}

	var file challengeFile
	if err := yaml.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("parse challenge file %s: %w", path, err)
	}

	return NewRegistry(logger, file.Challenges)
}

// NewRegistry builds a registry from already-parsed specs
func NewRegistry(logger *zap.Logger, specs []Spec) (*Registry, error) {
	r := &Registry{specs: make(map[string]Spec, len(specs))}

	for i := range specs {
		spec := specs[i]
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		if _, exists := r.specs[spec.ID]; exists {
			return nil, fmt.Errorf("duplicate challenge id: %s", spec.ID)
		}

		switch spec.EvaluationType {
		case EvalExact, EvalContains, EvalCommand, EvalFileExists, "":
		default:
			// Unknown types are tolerated; evaluation falls back to contains.
			logger.Warn("unknown evaluation_type, will fall back to contains",
				zap.String("challenge_id", spec.ID),
				zap.String("evaluation_type", spec.EvaluationType))
		}

		r.specs[spec.ID] = spec
		r.order = append(r.order, spec.ID)
	}

	logger.Info("challenge registry loaded", zap.Int("count", len(r.specs)))
	return r, nil
}

// Get returns the spec for the given id
func (r *Registry) Get(id string) (Spec, error) {
	spec, ok := r.specs[id]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return spec, nil
}

// List returns all specs in file order
func (r *Registry) List() []Spec {
	out := make([]Spec, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.specs[id])
	}
	return out
}

// Len returns the number of registered challenges
func (r *Registry) Len() int {
	return len(r.specs)
}
