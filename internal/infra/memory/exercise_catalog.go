package memory

import (
	"context"
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"quiz-live-service/internal/domain"
)

//go:embed exercises/catalog.yaml
var catalogYAML []byte

// Defaults applied to exercise templates that leave the field unset.
const (
	DefaultMaxTimeSeconds   = 1800
	DefaultMaxAttempts      = 3
	DefaultPassingThreshold = 0.7
	DefaultStepTimeout      = 60
	DefaultStepPoints       = 10
)

// ExerciseCatalog serves immutable exercise templates from memory.
type ExerciseCatalog struct {
	exercises map[string]domain.Exercise
	order     []string
}

// NewExerciseCatalog indexes the given templates after applying defaults.
func NewExerciseCatalog(exercises []domain.Exercise) (*ExerciseCatalog, error) {
	c := &ExerciseCatalog{exercises: make(map[string]domain.Exercise, len(exercises))}
	for _, ex := range exercises {
		ex, err := NormalizeExercise(ex)
		if err != nil {
			return nil, err
		}
		if _, dup := c.exercises[ex.ExerciseID]; dup {
			return nil, fmt.Errorf("duplicate exercise %s: %w", ex.ExerciseID, domain.ErrInvalidInput)
		}
		c.exercises[ex.ExerciseID] = ex
		c.order = append(c.order, ex.ExerciseID)
	}
	return c, nil
}

// DefaultExerciseCatalog returns the four built-in office templates.
func DefaultExerciseCatalog() (*ExerciseCatalog, error) {
	exercises, err := ParseExercises(catalogYAML)
	if err != nil {
		return nil, err
	}
	return NewExerciseCatalog(exercises)
}

// ParseExercises decodes a YAML document with an `exercises` list.
func ParseExercises(raw []byte) ([]domain.Exercise, error) {
	var doc struct {
		Exercises []domain.Exercise `yaml:"exercises"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse exercises: %w", err)
	}
	return doc.Exercises, nil
}

func (c *ExerciseCatalog) ListExercises(_ context.Context, simulatorType domain.SimulatorType) ([]domain.Exercise, error) {
	out := make([]domain.Exercise, 0, len(c.order))
	for _, id := range c.order {
		ex := c.exercises[id]
		if simulatorType == "" || ex.SimulatorType == simulatorType {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (c *ExerciseCatalog) GetExercise(_ context.Context, exerciseID string) (domain.Exercise, error) {
	ex, ok := c.exercises[exerciseID]
	if !ok {
		return domain.Exercise{}, domain.ErrExerciseNotFound
	}
	return ex, nil
}

// NormalizeExercise fills template defaults, numbers the steps and validates the result.
// Steps without a highlight hint get one pointing at their target element.
func NormalizeExercise(ex domain.Exercise) (domain.Exercise, error) {
	if ex.ExerciseID == "" || !ex.SimulatorType.Valid() {
		return domain.Exercise{}, fmt.Errorf("exercise %q: missing id or unknown simulator %q: %w", ex.ExerciseID, ex.SimulatorType, domain.ErrInvalidInput)
	}
	if ex.Difficulty == "" {
		ex.Difficulty = domain.LevelBase
	}
	if ex.MaxTimeSeconds == 0 {
		ex.MaxTimeSeconds = DefaultMaxTimeSeconds
	}
	if ex.MaxAttempts == 0 {
		ex.MaxAttempts = DefaultMaxAttempts
	}
	if ex.PassingThreshold == 0 {
		ex.PassingThreshold = DefaultPassingThreshold
	}

	steps := make([]domain.Step, len(ex.Steps))
	copy(steps, ex.Steps)
	seen := make(map[string]struct{}, len(steps))
	for i := range steps {
		s := &steps[i]
		if s.StepNumber == 0 {
			s.StepNumber = i + 1
		}
		if s.StepID == "" {
			s.StepID = fmt.Sprintf("%s-s%d", ex.ExerciseID, s.StepNumber)
		}
		if _, dup := seen[s.StepID]; dup {
			return domain.Exercise{}, fmt.Errorf("exercise %s: duplicate step %s: %w", ex.ExerciseID, s.StepID, domain.ErrInvalidInput)
		}
		seen[s.StepID] = struct{}{}
		if s.Points == 0 {
			s.Points = DefaultStepPoints
		}
		if s.TimeoutSeconds == 0 {
			s.TimeoutSeconds = DefaultStepTimeout
		}
		s.Hints = withHighlight(*s)
	}
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].StepNumber < steps[j].StepNumber })
	ex.Steps = steps
	return ex, nil
}

func withHighlight(step domain.Step) []domain.Hint {
	hints := append([]domain.Hint(nil), step.Hints...)
	for _, h := range hints {
		if h.Level == domain.HintHighlight {
			return hints
		}
	}
	if step.TargetElement == "" {
		return hints
	}
	hints = append(hints, domain.Hint{Level: domain.HintHighlight, HighlightSelector: step.TargetElement})
	sort.SliceStable(hints, func(i, j int) bool { return hints[i].Level < hints[j].Level })
	return hints
}
