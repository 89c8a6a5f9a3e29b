package exercise

import (
	"math"
	"time"

	"quiz-live-service/internal/domain"
)

// Progress is a read projection of the authoritative run state.
func (r *Run) Progress() domain.SimulatorProgress {
	p := r.progress
	p.CompletedSteps = append([]string{}, r.progress.CompletedSteps...)
	p.SkippedSteps = append([]string{}, r.progress.SkippedSteps...)
	if total := len(r.exercise.Steps); total > 0 {
		p.CompletionPercentage = math.Round(float64(len(p.CompletedSteps))/float64(total)*1000) / 10
	} else if p.Status == domain.ProgressCompleted {
		p.CompletionPercentage = 100
	}
	return p
}

// Actions returns the ordered action log.
func (r *Run) Actions() []domain.SimulatorAction {
	return append([]domain.SimulatorAction(nil), r.actions...)
}

// Passed reports whether the earned share of points reaches the exercise threshold.
// Thresholds above 1 are read as percentages.
func (r *Run) Passed() bool {
	if r.progress.Status != domain.ProgressCompleted {
		return false
	}
	maxScore := r.progress.MaxPossibleScore
	if maxScore == 0 {
		return true
	}
	threshold := r.exercise.PassingThreshold
	if threshold > 1 {
		threshold /= 100
	}
	return float64(r.progress.TotalScore)/float64(maxScore) >= threshold
}

// Report builds the final report of a finished run once and returns the same value afterwards.
func (r *Run) Report(participantName string, now time.Time) (domain.SimulatorReport, error) {
	if r.report != nil {
		return *r.report, nil
	}
	if !r.progress.Status.Terminal() {
		return domain.SimulatorReport{}, domain.ErrReportNotReady
	}

	progress := r.Progress()
	rep := domain.SimulatorReport{
		ParticipantID:        progress.ParticipantID,
		ParticipantName:      participantName,
		SessionID:            progress.SessionID,
		ExerciseTitle:        r.exercise.Title,
		Mode:                 r.rules.Mode,
		TotalScore:           progress.TotalScore,
		MaxPossibleScore:     progress.MaxPossibleScore,
		CompletionPercentage: progress.CompletionPercentage,
		HintsUsed:            progress.HintsUsed,
		AttemptsCount:        progress.AttemptsCount,
		Status:               progress.Status,
		Passed:               r.Passed(),
		StepBreakdown:        make([]domain.StepBreakdown, 0, len(r.exercise.Steps)),
		ActionReplay:         r.Actions(),
		GeneratedAt:          now,
	}
	if progress.StartedAt != nil {
		end := now
		if progress.EndedAt != nil {
			end = *progress.EndedAt
		}
		rep.TimeTakenSeconds = int(end.Sub(*progress.StartedAt).Seconds())
	}
	for i, step := range r.exercise.Steps {
		led := r.ledger[i]
		rep.StepBreakdown = append(rep.StepBreakdown, domain.StepBreakdown{
			StepID:      step.StepID,
			StepNumber:  step.StepNumber,
			Title:       step.Title,
			Status:      led.status,
			Attempts:    led.attempts,
			HintLevel:   led.hintLevel,
			Penalty:     led.penalty,
			ScoreEarned: led.earned,
			MaxScore:    step.Points,
		})
	}

	r.report = &rep
	return rep, nil
}
