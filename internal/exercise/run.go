package exercise

import (
	"time"

	"quiz-live-service/internal/domain"
)

// Step outcomes recorded in the per-step ledger.
const (
	StepPending   = "pending"
	StepCompleted = "completed"
	StepSkipped   = "skipped"
	StepMissed    = "missed"
)

// DefaultPenalties are the point costs of hint levels 1, 2 and 3.
var DefaultPenalties = []int{2, 5, 10}

// Rules fixes how a run is scored. Penalties[i] is the cumulative cost of hint level i+1.
type Rules struct {
	Mode       domain.SimulatorMode
	SkipPolicy domain.SkipPolicy
	HintBudget int
	Penalties  []int
}

type stepLedger struct {
	status    string
	attempts  int
	hintLevel int
	penalty   int
	earned    int
}

// Run is the scoring state of one participant in one exercise session. It is not safe for
// concurrent use; callers serialize access per session.
type Run struct {
	exercise domain.Exercise
	rules    Rules

	progress domain.SimulatorProgress
	cursor   int
	ledger   []stepLedger
	actions  []domain.SimulatorAction
	report   *domain.SimulatorReport
}

// NewRun prepares a not-started run.
func NewRun(ex domain.Exercise, rules Rules, participantID, sessionID string) *Run {
	if rules.HintBudget < 0 {
		rules.HintBudget = 0
	}
	if len(rules.Penalties) == 0 {
		rules.Penalties = DefaultPenalties
	}
	if !rules.SkipPolicy.Valid() {
		rules.SkipPolicy = domain.SkipNone
	}
	r := &Run{
		exercise: ex,
		rules:    rules,
		ledger:   make([]stepLedger, len(ex.Steps)),
	}
	for i := range r.ledger {
		r.ledger[i].status = StepPending
	}
	r.progress = domain.SimulatorProgress{
		ParticipantID:    participantID,
		SessionID:        sessionID,
		CompletedSteps:   []string{},
		SkippedSteps:     []string{},
		MaxPossibleScore: ex.MaxScore(),
		HintsRemaining:   rules.HintBudget,
		Status:           domain.ProgressNotStarted,
	}
	r.syncCursor()
	return r
}

// Start moves the run to in_progress. Starting twice keeps the first start time.
func (r *Run) Start(now time.Time) {
	if r.progress.Status != domain.ProgressNotStarted {
		return
	}
	r.progress.Status = domain.ProgressInProgress
	r.progress.StartedAt = &now
	if len(r.exercise.Steps) == 0 {
		r.finish(domain.ProgressCompleted, now)
		return
	}
	r.completeTrailing(now)
}

// Status is the participant's exercise state.
func (r *Run) Status() domain.ProgressStatus { return r.progress.Status }

// Current returns the active step, or false once the run is finished.
func (r *Run) Current() (domain.Step, bool) {
	if r.progress.Status.Terminal() || r.cursor >= len(r.exercise.Steps) {
		return domain.Step{}, false
	}
	return r.exercise.Steps[r.cursor], true
}

// Record validates an action against the current step only. A mismatch is logged with no score.
func (r *Run) Record(actionID string, req domain.ActionRequest, now time.Time) (domain.ActionResult, domain.SimulatorAction, error) {
	if r.progress.Status.Terminal() {
		return domain.ActionResult{}, domain.SimulatorAction{}, domain.ErrExerciseFinished
	}
	if r.progress.Status == domain.ProgressNotStarted {
		r.Start(now)
		if r.progress.Status.Terminal() {
			return domain.ActionResult{}, domain.SimulatorAction{}, domain.ErrExerciseFinished
		}
	}
	if r.Overtime(now) {
		r.finish(domain.ProgressFailed, now)
		return domain.ActionResult{}, domain.SimulatorAction{}, domain.ErrExerciseFinished
	}

	step, _ := r.Current()
	entry := r.logAction(actionID, req, step.StepID, now)
	r.progress.AttemptsCount++

	res := domain.ActionResult{ActionID: actionID}
	led := &r.ledger[r.cursor]
	led.attempts++

	if Accepts(step, req) {
		earned := step.Points - led.penalty
		if earned < 0 {
			earned = 0
		}
		led.status = StepCompleted
		led.earned = earned
		r.progress.CompletedSteps = append(r.progress.CompletedSteps, step.StepID)
		r.progress.TotalScore += earned
		entry.IsCorrect = true
		entry.ScoreDelta = earned
		res.IsCorrect = true
		res.ScoreDelta = earned
		res.Feedback = "Azione corretta!"
		r.advance(now)
	} else {
		res.Feedback = "Azione non corretta. Riprova."
		if r.rules.Mode == domain.ModeExam && r.exercise.MaxAttempts > 0 && r.wrongAttempts(led) >= r.exercise.MaxAttempts {
			r.miss(step, now)
			res.Feedback = "Tentativi esauriti per questo passaggio."
		}
	}
	r.actions[len(r.actions)-1] = entry

	r.fillResult(&res)
	return res, entry, nil
}

// Skip bypasses the current step when the policy and the step allow it.
func (r *Run) Skip(actionID string, now time.Time) (domain.ActionResult, domain.SimulatorAction, error) {
	if r.progress.Status.Terminal() {
		return domain.ActionResult{}, domain.SimulatorAction{}, domain.ErrExerciseFinished
	}
	step, ok := r.Current()
	if !ok || r.rules.SkipPolicy != domain.SkipExplicit || step.Mandatory {
		return domain.ActionResult{}, domain.SimulatorAction{}, domain.ErrSkipNotAllowed
	}
	if r.progress.Status == domain.ProgressNotStarted {
		r.Start(now)
	}
	entry := r.logAction(actionID, domain.ActionRequest{ActionType: domain.ActionSkip}, step.StepID, now)
	r.skip(step)
	r.advance(now)

	res := domain.ActionResult{ActionID: actionID, Feedback: "Passaggio saltato."}
	r.fillResult(&res)
	return res, entry, nil
}

// TimeoutOutcome describes the effect of an expired step deadline.
type TimeoutOutcome struct {
	Applied bool
	Missed  bool
	Action  *domain.SimulatorAction
}

// Timeout handles an expired deadline for stepID. Stale timers (the step is no longer current)
// are ignored. In exam mode the step is missed; in training mode nothing changes.
func (r *Run) Timeout(actionID, stepID string, now time.Time) TimeoutOutcome {
	step, ok := r.Current()
	if !ok || step.StepID != stepID || r.progress.Status != domain.ProgressInProgress {
		return TimeoutOutcome{}
	}
	if r.rules.Mode != domain.ModeExam {
		return TimeoutOutcome{Applied: true}
	}
	entry := r.logAction(actionID, domain.ActionRequest{ActionType: domain.ActionStepTimeout}, step.StepID, now)
	r.miss(step, now)
	return TimeoutOutcome{Applied: true, Missed: true, Action: &entry}
}

// Overtime reports whether an exam run exceeded the exercise time limit.
func (r *Run) Overtime(now time.Time) bool {
	if r.rules.Mode != domain.ModeExam || r.exercise.MaxTimeSeconds <= 0 || r.progress.StartedAt == nil {
		return false
	}
	return now.Sub(*r.progress.StartedAt) > time.Duration(r.exercise.MaxTimeSeconds)*time.Second
}

// ExpireTime fails an in-progress exam run whose time limit passed. It reports whether it did.
func (r *Run) ExpireTime(now time.Time) bool {
	if r.progress.Status != domain.ProgressInProgress || !r.Overtime(now) {
		return false
	}
	r.finish(domain.ProgressFailed, now)
	return true
}

// Abort fails a run that is still open when its session completes.
func (r *Run) Abort(now time.Time) {
	if r.progress.Status.Terminal() {
		return
	}
	r.finish(domain.ProgressFailed, now)
}

func (r *Run) wrongAttempts(led *stepLedger) int {
	if led.status == StepCompleted {
		return led.attempts - 1
	}
	return led.attempts
}

func (r *Run) miss(step domain.Step, now time.Time) {
	if step.Mandatory {
		r.ledger[r.cursor].status = StepMissed
		r.finish(domain.ProgressFailed, now)
		return
	}
	r.skip(step)
	r.advance(now)
}

func (r *Run) skip(step domain.Step) {
	r.ledger[r.cursor].status = StepSkipped
	r.progress.SkippedSteps = append(r.progress.SkippedSteps, step.StepID)
}

func (r *Run) advance(now time.Time) {
	r.cursor++
	if r.cursor >= len(r.exercise.Steps) {
		r.finish(domain.ProgressCompleted, now)
		return
	}
	r.syncCursor()
	r.completeTrailing(now)
}

// completeTrailing ends the run when only optional steps remain under the trailing_optional policy.
func (r *Run) completeTrailing(now time.Time) {
	if r.rules.SkipPolicy != domain.SkipTrailingOptional || r.progress.Status.Terminal() {
		return
	}
	for i := r.cursor; i < len(r.exercise.Steps); i++ {
		if r.exercise.Steps[i].Mandatory {
			return
		}
	}
	for r.cursor < len(r.exercise.Steps) {
		r.skip(r.exercise.Steps[r.cursor])
		r.cursor++
	}
	r.finish(domain.ProgressCompleted, now)
}

func (r *Run) finish(status domain.ProgressStatus, now time.Time) {
	r.progress.Status = status
	r.progress.EndedAt = &now
	r.syncCursor()
}

func (r *Run) syncCursor() {
	n := len(r.exercise.Steps)
	switch {
	case n == 0:
		r.progress.CurrentStep = 0
	case r.cursor >= n:
		r.progress.CurrentStep = r.exercise.Steps[n-1].StepNumber
	default:
		r.progress.CurrentStep = r.exercise.Steps[r.cursor].StepNumber
	}
}

func (r *Run) logAction(actionID string, req domain.ActionRequest, stepID string, now time.Time) domain.SimulatorAction {
	entry := domain.SimulatorAction{
		ActionID:      actionID,
		ParticipantID: r.progress.ParticipantID,
		SessionID:     r.progress.SessionID,
		StepID:        stepID,
		ActionType:    req.ActionType,
		TargetElement: req.TargetElement,
		Coordinates:   req.Coordinates,
		InputValue:    req.InputValue,
		LatencyMs:     req.LatencyMs,
		Metadata:      req.Metadata,
		Timestamp:     now,
	}
	r.actions = append(r.actions, entry)
	return entry
}

func (r *Run) fillResult(res *domain.ActionResult) {
	res.TotalScore = r.progress.TotalScore
	res.Status = r.progress.Status
	res.ExerciseCompleted = r.progress.Status == domain.ProgressCompleted
	if step, ok := r.Current(); ok {
		view := step.View()
		res.NextStep = &view
		res.HintsAvailable = r.progress.HintsRemaining > 0 && r.ledger[r.cursor].hintLevel < len(step.Hints)
	}
}
