package exercise

import (
	"quiz-live-service/internal/domain"
)

// Hint grants or denies hint content for stepID at the requested level.
//
// A grant at a level above the one already held decrements the budget and charges the step
// only the difference between the two level penalties. Re-requesting a level already held is
// free. Denials are results, not errors.
func (r *Run) Hint(stepID string, level domain.HintLevel) (domain.HintResult, error) {
	if level < domain.HintText || level > domain.HintAnimation {
		return domain.HintResult{}, domain.ErrInvalidInput
	}
	if r.progress.Status.Terminal() {
		return domain.HintResult{}, domain.ErrExerciseFinished
	}
	step, ok := r.Current()
	if !ok || step.StepID != stepID {
		return r.deny(domain.DeniedStepInactive), nil
	}
	hint, ok := hintAt(step, level)
	if !ok {
		return r.deny(domain.DeniedNotAvailable), nil
	}

	led := &r.ledger[r.cursor]
	if int(level) <= led.hintLevel {
		return domain.HintResult{
			Hint:           &hint,
			StepPenalty:    led.penalty,
			RemainingHints: r.progress.HintsRemaining,
		}, nil
	}
	if r.progress.HintsRemaining <= 0 {
		return r.deny(domain.DeniedBudget), nil
	}

	charge := r.penalty(int(level)) - r.penalty(led.hintLevel)
	if charge < 0 {
		charge = 0
	}
	led.hintLevel = int(level)
	led.penalty += charge
	r.progress.HintsRemaining--
	r.progress.HintsUsed++

	return domain.HintResult{
		Hint:           &hint,
		PenaltyApplied: charge,
		StepPenalty:    led.penalty,
		RemainingHints: r.progress.HintsRemaining,
	}, nil
}

// penalty returns the cumulative cost of a hint level; level 0 costs nothing.
func (r *Run) penalty(level int) int {
	if level <= 0 {
		return 0
	}
	if level > len(r.rules.Penalties) {
		return r.rules.Penalties[len(r.rules.Penalties)-1]
	}
	return r.rules.Penalties[level-1]
}

func (r *Run) deny(reason string) domain.HintResult {
	return domain.HintResult{Denied: true, Reason: reason, RemainingHints: r.progress.HintsRemaining}
}

func hintAt(step domain.Step, level domain.HintLevel) (domain.Hint, bool) {
	for _, h := range step.Hints {
		if h.Level == level {
			return h, true
		}
	}
	if idx := int(level) - 1; idx < len(step.Hints) && step.Hints[idx].Level == 0 {
		h := step.Hints[idx]
		h.Level = level
		return h, true
	}
	return domain.Hint{}, false
}
