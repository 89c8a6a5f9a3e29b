package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/infra/memory"
)

type simFixture struct {
	*liveFixture
	sim    *app.SimulatorService
	liveID string
	pid    string
}

func newSimFixture(t *testing.T) *simFixture {
	t.Helper()
	lf := newLiveFixture(t, 3)
	live, err := lf.service.CreateSession(context.Background(), "Laboratorio", "")
	if err != nil {
		t.Fatalf("create live: %v", err)
	}
	p, err := lf.service.Join(context.Background(), live.Code, domain.ParticipantInfo{Nome: "Carla", Cognome: "Neri"})
	if err != nil {
		t.Fatalf("join live: %v", err)
	}

	formula := "=SOMMA(A1:A3)"
	catalog, err := memory.NewExerciseCatalog([]domain.Exercise{{
		ExerciseID:       "ex-1",
		Title:            "Foglio di calcolo",
		SimulatorType:    domain.SimulatorSpreadsheet,
		MaxTimeSeconds:   600,
		MaxAttempts:      2,
		PassingThreshold: 0.7,
		Steps: []domain.Step{
			{
				StepID: "s1", Title: "Apri il menu", TargetElement: ".menu", ActionType: domain.ActionClick,
				Points: 10, Mandatory: true, TimeoutSeconds: 45,
				Hints: []domain.Hint{{Level: domain.HintText, Text: "Guarda in alto"}},
			},
			{
				StepID: "s2", Title: "Scrivi la formula", TargetElement: ".cell", ActionType: domain.ActionTypeText,
				ExpectedValue: &formula, Points: 20, Mandatory: true, TimeoutSeconds: 45,
			},
		},
	}})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	sim := app.NewSimulatorService(memory.NewSimulatorSessionStore(), catalog, lf.service, lf.audit,
		app.NewLocalBus(lf.hub), app.DefaultSimulatorConfig(),
		app.WithClock(lf.clock.Now), app.WithAfterFunc(lf.timers.after))
	return &simFixture{liveFixture: lf, sim: sim, liveID: live.LiveID, pid: p.ParticipantID}
}

func (f *simFixture) open(t *testing.T, mode domain.SimulatorMode, budget *int) domain.SimulatorSession {
	t.Helper()
	ctx := context.Background()
	session, err := f.sim.CreateSession(ctx, app.CreateSimulatorRequest{LiveID: f.liveID, ExerciseID: "ex-1", Mode: mode, HintBudget: budget})
	if err != nil {
		t.Fatalf("create simulator session: %v", err)
	}
	if _, err := f.sim.Join(ctx, session.SessionID, f.pid); err != nil {
		t.Fatalf("join simulator: %v", err)
	}
	if _, err := f.sim.Start(ctx, session.SessionID); err != nil {
		t.Fatalf("start simulator: %v", err)
	}
	return session
}

func (f *simFixture) act(session domain.SimulatorSession, action domain.ActionType, target string, value *string) domain.ActionRequest {
	return domain.ActionRequest{ParticipantID: f.pid, SessionID: session.SessionID, ActionType: action, TargetElement: target, InputValue: value}
}

func TestSimulatorTrainingRun(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t)
	session := f.open(t, domain.ModeTraining, nil)
	events, cancel := f.hub.Subscribe(domain.SimulatorTopic(session.SessionID), "")
	defer cancel()

	wrong, err := f.sim.RecordAction(ctx, f.act(session, domain.ActionClick, ".other", nil))
	if err != nil || wrong.IsCorrect || wrong.ScoreDelta != 0 {
		t.Fatalf("expected an unscored mismatch, got %+v %v", wrong, err)
	}

	hint, err := f.sim.RequestHint(ctx, domain.HintRequest{ParticipantID: f.pid, SessionID: session.SessionID, StepID: "s1", Level: domain.HintText})
	if err != nil || hint.Denied || hint.PenaltyApplied != 2 || hint.RemainingHints != 4 {
		t.Fatalf("unexpected hint result %+v %v", hint, err)
	}

	first, err := f.sim.RecordAction(ctx, f.act(session, domain.ActionClick, ".menu", nil))
	if err != nil || !first.IsCorrect || first.ScoreDelta != 8 || first.NextStep == nil || first.NextStep.StepID != "s2" {
		t.Fatalf("unexpected first step result %+v %v", first, err)
	}

	formula := "=somma(a1:a3)"
	second, err := f.sim.RecordAction(ctx, f.act(session, domain.ActionTypeText, ".cell", &formula))
	if err != nil || !second.ExerciseCompleted || second.TotalScore != 28 {
		t.Fatalf("unexpected completion %+v %v", second, err)
	}

	report, err := f.sim.Report(ctx, session.SessionID, f.pid)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if !report.Passed || report.ParticipantName != "Carla Neri" || len(report.ActionReplay) != 3 || len(report.StepBreakdown) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.StepBreakdown[0].Attempts != 2 || report.StepBreakdown[0].Penalty != 2 {
		t.Fatalf("unexpected step breakdown %+v", report.StepBreakdown[0])
	}
	if got := len(f.audit.Actions(session.SessionID)); got != 3 {
		t.Fatalf("expected 3 audited actions, got %d", got)
	}

	completed := false
	for !completed {
		select {
		case ev := <-events:
			completed = ev.Type == domain.EventExerciseCompleted
		case <-time.After(time.Second):
			t.Fatalf("no exercise.completed event")
		}
	}
}

func TestSimulatorRequiresRunningSession(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t)
	session, err := f.sim.CreateSession(ctx, app.CreateSimulatorRequest{LiveID: f.liveID, ExerciseID: "ex-1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.Mode != domain.ModeTraining || session.HintBudget != 5 || session.SkipPolicy != domain.SkipNone {
		t.Fatalf("expected defaults, got %+v", session)
	}
	if _, err := f.sim.Join(ctx, session.SessionID, f.pid); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := f.sim.RecordAction(ctx, f.act(session, domain.ActionClick, ".menu", nil)); !errors.Is(err, domain.ErrSessionNotRunning) {
		t.Fatalf("expected not running in lobby, got %v", err)
	}

	if _, err := f.sim.Start(ctx, session.SessionID); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.sim.Pause(ctx, session.SessionID); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := f.sim.RecordAction(ctx, f.act(session, domain.ActionClick, ".menu", nil)); !errors.Is(err, domain.ErrSessionNotRunning) {
		t.Fatalf("expected not running while paused, got %v", err)
	}
	if _, err := f.sim.Start(ctx, session.SessionID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := f.sim.Resume(ctx, session.SessionID); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if res, err := f.sim.RecordAction(ctx, f.act(session, domain.ActionClick, ".menu", nil)); err != nil || !res.IsCorrect {
		t.Fatalf("expected action accepted after resume, got %+v %v", res, err)
	}
}

func TestSimulatorCreateAndJoinErrors(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t)

	if _, err := f.sim.CreateSession(ctx, app.CreateSimulatorRequest{LiveID: "nope", ExerciseID: "ex-1"}); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	if _, err := f.sim.CreateSession(ctx, app.CreateSimulatorRequest{LiveID: f.liveID, ExerciseID: "nope"}); !errors.Is(err, domain.ErrExerciseNotFound) {
		t.Fatalf("expected exercise not found, got %v", err)
	}
	if _, err := f.sim.CreateSession(ctx, app.CreateSimulatorRequest{LiveID: f.liveID, ExerciseID: "ex-1", Mode: "quiz"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid mode, got %v", err)
	}

	session, _ := f.sim.CreateSession(ctx, app.CreateSimulatorRequest{LiveID: f.liveID, ExerciseID: "ex-1"})
	if _, err := f.sim.Join(ctx, session.SessionID, "ghost"); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant not found, got %v", err)
	}
	first, err := f.sim.Join(ctx, session.SessionID, f.pid)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	again, err := f.sim.Join(ctx, session.SessionID, f.pid)
	if err != nil || again.Progress.Status != first.Progress.Status || again.Step.StepID != "s1" {
		t.Fatalf("second join should return the same run: %+v %v", again, err)
	}
	if _, err := f.sim.End(ctx, session.SessionID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := f.sim.Join(ctx, session.SessionID, f.pid); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected closed after end, got %v", err)
	}
}

func TestSimulatorHintBudgetDenial(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t)
	session := f.open(t, domain.ModeTraining, intPtr(0))

	for i := 0; i < 3; i++ {
		res, err := f.sim.RequestHint(ctx, domain.HintRequest{ParticipantID: f.pid, SessionID: session.SessionID, StepID: "s1", Level: domain.HintText})
		if err != nil {
			t.Fatalf("hint: %v", err)
		}
		if !res.Denied || res.Reason != domain.DeniedBudget || res.RemainingHints != 0 {
			t.Fatalf("expected budget denial, got %+v", res)
		}
	}
}

func TestSimulatorExamStepTimeoutFailsMandatoryStep(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t)
	session := f.open(t, domain.ModeExam, nil)
	events, cancel := f.hub.Subscribe(domain.SimulatorTopic(session.SessionID), f.pid)
	defer cancel()

	if fired := f.timers.fire(45 * time.Second); fired != 1 {
		t.Fatalf("expected one step deadline, fired %d", fired)
	}
	progress, err := f.sim.Progress(ctx, session.SessionID, f.pid)
	if err != nil || progress.Status != domain.ProgressFailed {
		t.Fatalf("expected failed run, got %+v %v", progress, err)
	}
	ev := <-events
	payload, ok := ev.Payload.(domain.StepTimeoutPayload)
	if ev.Type != domain.EventStepTimeout || !ok || !payload.Missed || payload.StepID != "s1" {
		t.Fatalf("unexpected timeout event %+v", ev)
	}
	if _, err := f.sim.RecordAction(ctx, f.act(session, domain.ActionClick, ".menu", nil)); !errors.Is(err, domain.ErrExerciseFinished) {
		t.Fatalf("expected finished run, got %v", err)
	}
	if report, err := f.sim.Report(ctx, session.SessionID, f.pid); err != nil || report.Passed {
		t.Fatalf("expected failed report, got %+v %v", report, err)
	}
}

func TestSimulatorTrainingTimeoutOnlyNotifies(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t)
	session := f.open(t, domain.ModeTraining, nil)

	f.timers.fire(45 * time.Second)
	progress, _ := f.sim.Progress(ctx, session.SessionID, f.pid)
	if progress.Status != domain.ProgressInProgress || progress.CurrentStep != 1 {
		t.Fatalf("training timeout must not move the run, got %+v", progress)
	}
}

func TestSimulatorExamTimeLimit(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t)
	session := f.open(t, domain.ModeExam, nil)

	f.clock.Advance(601 * time.Second)
	if fired := f.timers.fire(600 * time.Second); fired != 1 {
		t.Fatalf("expected the exercise deadline, fired %d", fired)
	}
	progress, _ := f.sim.Progress(ctx, session.SessionID, f.pid)
	if progress.Status != domain.ProgressFailed {
		t.Fatalf("expected failed run after the time limit, got %s", progress.Status)
	}
}

func TestSimulatorLateExamActionFailsRunAndAnnounces(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t)
	session := f.open(t, domain.ModeExam, nil)
	events, cancel := f.hub.Subscribe(domain.SimulatorTopic(session.SessionID), "")
	defer cancel()

	f.clock.Advance(601 * time.Second)
	if _, err := f.sim.RecordAction(ctx, f.act(session, domain.ActionClick, ".menu", nil)); !errors.Is(err, domain.ErrExerciseFinished) {
		t.Fatalf("expected exercise finished, got %v", err)
	}
	if armed := f.timers.armed(); armed != 0 {
		t.Fatalf("expected run deadlines disarmed, %d armed", armed)
	}

	completed := 0
	for drained := false; !drained; {
		select {
		case ev := <-events:
			if ev.Type == domain.EventExerciseCompleted {
				completed++
			}
		default:
			drained = true
		}
	}
	if completed != 1 {
		t.Fatalf("expected one exercise.completed event, got %d", completed)
	}
	progress, _ := f.sim.Progress(ctx, session.SessionID, f.pid)
	if progress.Status != domain.ProgressFailed {
		t.Fatalf("expected failed run, got %s", progress.Status)
	}
}

func TestSimulatorExamAttemptsExhaustMandatoryStep(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t)
	session := f.open(t, domain.ModeExam, nil)

	for i := 0; i < 2; i++ {
		if _, err := f.sim.RecordAction(ctx, f.act(session, domain.ActionClick, ".wrong", nil)); err != nil {
			t.Fatalf("action %d: %v", i, err)
		}
	}
	progress, _ := f.sim.Progress(ctx, session.SessionID, f.pid)
	if progress.Status != domain.ProgressFailed || progress.AttemptsCount != 2 {
		t.Fatalf("expected failure after max attempts, got %+v", progress)
	}
}

func TestSimulatorEndFailsOpenRuns(t *testing.T) {
	ctx := context.Background()
	f := newSimFixture(t)
	session := f.open(t, domain.ModeExam, nil)

	if _, err := f.sim.Report(ctx, session.SessionID, f.pid); !errors.Is(err, domain.ErrReportNotReady) {
		t.Fatalf("expected report not ready, got %v", err)
	}
	ended, err := f.sim.End(ctx, session.SessionID)
	if err != nil || ended.Status != domain.SimCompleted {
		t.Fatalf("end: %+v %v", ended, err)
	}
	if f.timers.armed() != 0 {
		t.Fatalf("expected simulator deadlines discarded, %d armed", f.timers.armed())
	}
	if _, err := f.sim.End(ctx, session.SessionID); err != nil {
		t.Fatalf("second end should be a no-op: %v", err)
	}
	report, err := f.sim.Report(ctx, session.SessionID, f.pid)
	if err != nil || report.Status != domain.ProgressFailed {
		t.Fatalf("expected failed report, got %+v %v", report, err)
	}
}
