package exercise

import (
	"fmt"
	"strings"

	"quiz-live-service/internal/domain"
)

// Criteria returns the disjunction of predicates that accept the step: the primary criteria
// followed by the declared alternative paths. A step without explicit criteria is accepted by
// its target element, action type and expected value.
func Criteria(step domain.Step) []domain.Predicate {
	primary := step.SuccessCriteria
	if isZero(primary) {
		primary = domain.Predicate{
			ActionType: step.ActionType,
			Target:     step.TargetElement,
			Value:      step.ExpectedValue,
		}
	}
	out := make([]domain.Predicate, 0, 1+len(step.AlternativePaths))
	out = append(out, primary)
	for _, alt := range step.AlternativePaths {
		if !isZero(alt) {
			out = append(out, alt)
		}
	}
	return out
}

// Accepts reports whether the action satisfies any predicate of the step.
func Accepts(step domain.Step, action domain.ActionRequest) bool {
	for _, p := range Criteria(step) {
		if Match(p, action) {
			return true
		}
	}
	return false
}

// Match evaluates one predicate. Every constrained field must agree.
func Match(p domain.Predicate, action domain.ActionRequest) bool {
	if p.ActionType != "" && p.ActionType != action.ActionType {
		return false
	}
	if p.Target != "" && p.Target != action.TargetElement {
		return false
	}
	if p.Value != nil {
		if action.InputValue == nil || normalize(*action.InputValue) != normalize(*p.Value) {
			return false
		}
	}
	for key, want := range p.State {
		got, ok := action.Metadata[key]
		if !ok || normalize(fmt.Sprint(got)) != normalize(want) {
			return false
		}
	}
	return true
}

func isZero(p domain.Predicate) bool {
	return p.ActionType == "" && p.Target == "" && p.Value == nil && len(p.State) == 0
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
