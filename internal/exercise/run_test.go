package exercise

import (
	"errors"
	"testing"
	"time"

	"quiz-live-service/internal/domain"
)

var t0 = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

func strp(s string) *string { return &s }

func fourSteps() domain.Exercise {
	hints := []domain.Hint{
		{Level: domain.HintText, Text: "look at the taskbar"},
		{Level: domain.HintHighlight, HighlightSelector: ".taskbar"},
		{Level: domain.HintAnimation, AnimationPath: []domain.Point{{X: 1, Y: 2}}},
	}
	return domain.Exercise{
		ExerciseID:       "ex-1",
		Title:            "Gestione file",
		MaxAttempts:      3,
		PassingThreshold: 0.6,
		Steps: []domain.Step{
			{StepID: "s1", StepNumber: 1, TargetElement: ".explorer", ActionType: domain.ActionClick, Points: 10, Mandatory: true, Hints: hints},
			{StepID: "s2", StepNumber: 2, TargetElement: ".new-folder", ActionType: domain.ActionRightClick, Points: 15, Mandatory: true, Hints: hints},
			{
				StepID: "s3", StepNumber: 3, TargetElement: ".cell", ActionType: domain.ActionTypeText,
				ExpectedValue: strp("=SOMMA(C2:C9)"), Points: 20, Mandatory: true, Hints: hints,
				AlternativePaths: []domain.Predicate{{State: map[string]string{"formula": "SUM"}}},
			},
			{StepID: "s4", StepNumber: 4, TargetElement: ".view-menu", ActionType: domain.ActionClick, Points: 20, Mandatory: false},
		},
	}
}

func click(target string) domain.ActionRequest {
	return domain.ActionRequest{ActionType: domain.ActionClick, TargetElement: target}
}

func rules(mode domain.SimulatorMode, policy domain.SkipPolicy) Rules {
	return Rules{Mode: mode, SkipPolicy: policy, HintBudget: 5}
}

func completeFirstTwo(t *testing.T, r *Run) {
	t.Helper()
	if res, _, err := r.Record("a1", click(".explorer"), t0); err != nil || !res.IsCorrect {
		t.Fatalf("step 1 not accepted: %+v %v", res, err)
	}
	rc := domain.ActionRequest{ActionType: domain.ActionRightClick, TargetElement: ".new-folder"}
	if res, _, err := r.Record("a2", rc, t0); err != nil || !res.IsCorrect {
		t.Fatalf("step 2 not accepted: %+v %v", res, err)
	}
}

func TestRecordAdvancesOnlyOnCurrentStep(t *testing.T) {
	r := NewRun(fourSteps(), rules(domain.ModeTraining, domain.SkipNone), "p1", "sim-1")
	if _, _, err := r.Record("a1", click(".explorer"), t0); err != nil {
		t.Fatalf("record: %v", err)
	}

	step3 := domain.ActionRequest{ActionType: domain.ActionTypeText, TargetElement: ".cell", InputValue: strp("=SOMMA(C2:C9)")}
	res, logged, err := r.Record("early", step3, t0)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if res.IsCorrect || res.ScoreDelta != 0 {
		t.Fatalf("expected step 3 action on step 2 to be rejected, got %+v", res)
	}
	if logged.IsCorrect || logged.StepID != "s2" {
		t.Fatalf("expected logged mismatch on s2, got %+v", logged)
	}
	if r.Progress().CurrentStep != 2 {
		t.Fatalf("expected to stay on step 2, got %d", r.Progress().CurrentStep)
	}

	rc := domain.ActionRequest{ActionType: domain.ActionRightClick, TargetElement: ".new-folder"}
	if _, _, err := r.Record("a2", rc, t0); err != nil {
		t.Fatalf("record: %v", err)
	}
	before := r.Progress().TotalScore
	res, _, err = r.Record("a3", step3, t0)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !res.IsCorrect || res.ScoreDelta != 20 {
		t.Fatalf("expected step 3 accepted for 20 points, got %+v", res)
	}
	if r.Progress().TotalScore != before+20 {
		t.Fatalf("expected score +20, got %d", r.Progress().TotalScore-before)
	}
	if res.NextStep == nil || res.NextStep.StepID != "s4" {
		t.Fatalf("expected next step s4, got %+v", res.NextStep)
	}
	if len(r.Actions()) != 4 {
		t.Fatalf("expected 4 logged actions, got %d", len(r.Actions()))
	}
}

func TestRecordAcceptsAlternativePath(t *testing.T) {
	r := NewRun(fourSteps(), rules(domain.ModeTraining, domain.SkipNone), "p1", "sim-1")
	completeFirstTwo(t, r)

	alt := domain.ActionRequest{ActionType: domain.ActionClick, TargetElement: ".fx", Metadata: map[string]any{"formula": "sum"}}
	res, _, err := r.Record("a3", alt, t0)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !res.IsCorrect {
		t.Fatalf("expected alternative path to be accepted")
	}
}

func TestHintPenaltyIsIncremental(t *testing.T) {
	r := NewRun(fourSteps(), rules(domain.ModeTraining, domain.SkipNone), "p1", "sim-1")
	r.Start(t0)

	first, err := r.Hint("s1", domain.HintText)
	if err != nil || first.Denied {
		t.Fatalf("level 1 hint: %+v %v", first, err)
	}
	if first.PenaltyApplied != 2 {
		t.Fatalf("expected penalty 2, got %d", first.PenaltyApplied)
	}
	again, _ := r.Hint("s1", domain.HintText)
	if again.PenaltyApplied != 0 || again.RemainingHints != 4 {
		t.Fatalf("expected free re-request, got %+v", again)
	}
	second, _ := r.Hint("s1", domain.HintHighlight)
	if second.PenaltyApplied != 3 || second.StepPenalty != 5 {
		t.Fatalf("expected incremental penalty 3 (total 5), got %+v", second)
	}

	res, _, err := r.Record("a1", click(".explorer"), t0)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if res.ScoreDelta != 5 {
		t.Fatalf("expected 10-5=5 points, got %d", res.ScoreDelta)
	}
	if p := r.Progress(); p.HintsUsed != 2 || p.HintsRemaining != 3 {
		t.Fatalf("unexpected hint counters %+v", p)
	}
}

func TestHintBudgetDenies(t *testing.T) {
	rl := rules(domain.ModeTraining, domain.SkipNone)
	rl.HintBudget = 1
	r := NewRun(fourSteps(), rl, "p1", "sim-1")
	r.Start(t0)

	if res, _ := r.Hint("s1", domain.HintText); res.Denied {
		t.Fatalf("first hint should be granted")
	}
	for i := 0; i < 5; i++ {
		res, err := r.Hint("s1", domain.HintAnimation)
		if err != nil {
			t.Fatalf("denial must not be an error: %v", err)
		}
		if !res.Denied || res.Reason != domain.DeniedBudget {
			t.Fatalf("expected budget denial, got %+v", res)
		}
		if res.RemainingHints != 0 {
			t.Fatalf("remaining must stay at 0, got %d", res.RemainingHints)
		}
	}
}

func TestHintDenials(t *testing.T) {
	r := NewRun(fourSteps(), rules(domain.ModeTraining, domain.SkipNone), "p1", "sim-1")
	r.Start(t0)

	if res, _ := r.Hint("s2", domain.HintText); !res.Denied || res.Reason != domain.DeniedStepInactive {
		t.Fatalf("expected step_not_active, got %+v", res)
	}
	if _, err := r.Hint("s1", 4); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	completeFirstTwo(t, r)
	r.Record("a3", domain.ActionRequest{ActionType: domain.ActionTypeText, TargetElement: ".cell", InputValue: strp("=somma(c2:c9)")}, t0)
	if res, _ := r.Hint("s4", domain.HintText); !res.Denied || res.Reason != domain.DeniedNotAvailable {
		t.Fatalf("expected not_available on step without hints, got %+v", res)
	}
}

func TestExamMissedMandatoryStepFails(t *testing.T) {
	r := NewRun(fourSteps(), rules(domain.ModeExam, domain.SkipNone), "p1", "sim-1")
	for i := 0; i < 3; i++ {
		if _, _, err := r.Record("w", click(".wrong"), t0); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}
	if r.Status() != domain.ProgressFailed {
		t.Fatalf("expected failed after max attempts, got %s", r.Status())
	}
	if _, _, err := r.Record("late", click(".explorer"), t0); !errors.Is(err, domain.ErrExerciseFinished) {
		t.Fatalf("expected exercise finished, got %v", err)
	}
}

func TestTrainingAttemptsAreUnlimited(t *testing.T) {
	r := NewRun(fourSteps(), rules(domain.ModeTraining, domain.SkipNone), "p1", "sim-1")
	for i := 0; i < 10; i++ {
		r.Record("w", click(".wrong"), t0)
	}
	if r.Status() != domain.ProgressInProgress {
		t.Fatalf("expected training run to continue, got %s", r.Status())
	}
}

func TestStepTimeoutByMode(t *testing.T) {
	training := NewRun(fourSteps(), rules(domain.ModeTraining, domain.SkipNone), "p1", "sim-1")
	training.Start(t0)
	if out := training.Timeout("t1", "s1", t0); !out.Applied || out.Missed {
		t.Fatalf("expected feedback-only timeout, got %+v", out)
	}
	if training.Status() != domain.ProgressInProgress {
		t.Fatalf("training timeout must not change state")
	}

	exam := NewRun(fourSteps(), rules(domain.ModeExam, domain.SkipNone), "p1", "sim-1")
	exam.Start(t0)
	if out := exam.Timeout("t1", "s2", t0); out.Applied {
		t.Fatalf("stale timer must be ignored")
	}
	if out := exam.Timeout("t1", "s1", t0); !out.Missed {
		t.Fatalf("expected missed step in exam mode")
	}
	if exam.Status() != domain.ProgressFailed {
		t.Fatalf("expected failed exam, got %s", exam.Status())
	}
}

func TestExamOvertimeFails(t *testing.T) {
	ex := fourSteps()
	ex.MaxTimeSeconds = 60
	r := NewRun(ex, rules(domain.ModeExam, domain.SkipNone), "p1", "sim-1")
	r.Start(t0)
	if r.ExpireTime(t0.Add(30 * time.Second)) {
		t.Fatalf("expired too early")
	}
	if _, _, err := r.Record("late", click(".explorer"), t0.Add(2*time.Minute)); !errors.Is(err, domain.ErrExerciseFinished) {
		t.Fatalf("expected finished after time limit, got %v", err)
	}
	if r.Status() != domain.ProgressFailed {
		t.Fatalf("expected failed, got %s", r.Status())
	}
}

func TestSkipPolicies(t *testing.T) {
	none := NewRun(fourSteps(), rules(domain.ModeTraining, domain.SkipNone), "p1", "sim-1")
	if _, _, err := none.Skip("s", t0); !errors.Is(err, domain.ErrSkipNotAllowed) {
		t.Fatalf("expected skip refused, got %v", err)
	}

	explicit := NewRun(fourSteps(), rules(domain.ModeTraining, domain.SkipExplicit), "p1", "sim-1")
	if _, _, err := explicit.Skip("s", t0); !errors.Is(err, domain.ErrSkipNotAllowed) {
		t.Fatalf("mandatory step must not be skippable, got %v", err)
	}
	completeFirstTwo(t, explicit)
	explicit.Record("a3", domain.ActionRequest{ActionType: domain.ActionTypeText, TargetElement: ".cell", InputValue: strp("=SOMMA(C2:C9)")}, t0)
	res, _, err := explicit.Skip("s", t0)
	if err != nil {
		t.Fatalf("skip optional step: %v", err)
	}
	if !res.ExerciseCompleted {
		t.Fatalf("expected completion after skipping the last optional step")
	}
	p := explicit.Progress()
	if p.TotalScore != 45 || len(p.SkippedSteps) != 1 {
		t.Fatalf("unexpected progress %+v", p)
	}

	trailing := NewRun(fourSteps(), rules(domain.ModeTraining, domain.SkipTrailingOptional), "p1", "sim-1")
	completeFirstTwo(t, trailing)
	res, _, _ = trailing.Record("a3", domain.ActionRequest{ActionType: domain.ActionTypeText, TargetElement: ".cell", InputValue: strp("=SOMMA(C2:C9)")}, t0)
	if !res.ExerciseCompleted {
		t.Fatalf("expected completion once the last mandatory step is satisfied")
	}
}

func TestReportIsFrozen(t *testing.T) {
	r := NewRun(fourSteps(), rules(domain.ModeTraining, domain.SkipTrailingOptional), "p1", "sim-1")
	if _, err := r.Report("Ada", t0); !errors.Is(err, domain.ErrReportNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
	r.Start(t0)
	completeFirstTwo(t, r)
	r.Record("a3", domain.ActionRequest{ActionType: domain.ActionTypeText, TargetElement: ".cell", InputValue: strp("=SOMMA(C2:C9)")}, t0.Add(90*time.Second))

	first, err := r.Report("Ada Lovelace", t0.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if first.TimeTakenSeconds != 90 {
		t.Fatalf("expected 90s, got %d", first.TimeTakenSeconds)
	}
	if first.TotalScore != 45 || first.MaxPossibleScore != 65 {
		t.Fatalf("unexpected scores %d/%d", first.TotalScore, first.MaxPossibleScore)
	}
	if !first.Passed {
		t.Fatalf("45/65 should pass a 0.6 threshold")
	}
	if len(first.StepBreakdown) != 4 || first.StepBreakdown[3].Status != StepSkipped {
		t.Fatalf("unexpected breakdown %+v", first.StepBreakdown)
	}
	if len(first.ActionReplay) != 3 {
		t.Fatalf("expected 3 replayed actions, got %d", len(first.ActionReplay))
	}

	second, _ := r.Report("someone else", t0.Add(time.Hour))
	if second.ParticipantName != first.ParticipantName || !second.GeneratedAt.Equal(first.GeneratedAt) {
		t.Fatalf("report changed after generation")
	}
}
