package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/exercise"
)

// SimulatorConfig holds the defaults applied to new simulator sessions.
type SimulatorConfig struct {
	HintBudget int
	Penalties  []int
	SkipPolicy domain.SkipPolicy
}

// DefaultSimulatorConfig mirrors the configuration defaults.
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{HintBudget: 5, Penalties: exercise.DefaultPenalties, SkipPolicy: domain.SkipNone}
}

// SimulatorSession is the in-memory state of one exercise session.
type SimulatorSession struct {
	mu       sync.Mutex
	info     domain.SimulatorSession
	exercise domain.Exercise
	rules    exercise.Rules
	runs     map[string]*exercise.Run
	names    map[string]string
	timers   *timerSet
}

// NewSimulatorSession is exported for infrastructure layers that need to seed sessions.
func NewSimulatorSession(info domain.SimulatorSession, ex domain.Exercise, rules exercise.Rules, after AfterFunc) *SimulatorSession {
	return &SimulatorSession{
		info:     info,
		exercise: ex,
		rules:    rules,
		runs:     make(map[string]*exercise.Run),
		names:    make(map[string]string),
		timers:   newTimerSet(after),
	}
}

// ID returns the immutable session id.
func (s *SimulatorSession) ID() string { return s.info.SessionID }

// Snapshot returns the externally visible session state.
func (s *SimulatorSession) Snapshot() domain.SimulatorSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// CreateSimulatorRequest describes a new exercise session.
type CreateSimulatorRequest struct {
	LiveID     string               `json:"live_id"`
	ExerciseID string               `json:"exercise_id"`
	Mode       domain.SimulatorMode `json:"mode"`
	HintBudget *int                 `json:"hint_budget,omitempty"`
	SkipPolicy domain.SkipPolicy    `json:"skip_policy,omitempty"`
}

// JoinedExercise is returned when a participant joins an exercise session.
type JoinedExercise struct {
	Session  domain.SimulatorSession  `json:"session"`
	Exercise string                   `json:"exercise_title"`
	Progress domain.SimulatorProgress `json:"progress"`
	Step     *domain.StepView         `json:"current_step,omitempty"`
}

// SimulatorService contains the exercise session use cases.
type SimulatorService struct {
	runtime
	sessions SimulatorSessionRepository
	catalog  ExerciseCatalog
	lookup   ParticipantLookup
	audit    AuditLog
	bus      Bus
	cfg      SimulatorConfig
}

func NewSimulatorService(sessions SimulatorSessionRepository, catalog ExerciseCatalog, lookup ParticipantLookup, audit AuditLog, bus Bus, cfg SimulatorConfig, opts ...Option) *SimulatorService {
	if len(cfg.Penalties) == 0 {
		cfg.Penalties = exercise.DefaultPenalties
	}
	if !cfg.SkipPolicy.Valid() {
		cfg.SkipPolicy = domain.SkipNone
	}
	return &SimulatorService{
		runtime:  newRuntime(opts),
		sessions: sessions,
		catalog:  catalog,
		lookup:   lookup,
		audit:    audit,
		bus:      bus,
		cfg:      cfg,
	}
}

// ListExercises returns the catalog, optionally filtered by simulator type.
func (s *SimulatorService) ListExercises(ctx context.Context, simulatorType domain.SimulatorType) ([]domain.Exercise, error) {
	if simulatorType != "" && !simulatorType.Valid() {
		return nil, domain.ErrInvalidInput
	}
	return s.catalog.ListExercises(ctx, simulatorType)
}

// ExerciseSteps returns the participant-facing steps of an exercise.
func (s *SimulatorService) ExerciseSteps(ctx context.Context, exerciseID string) ([]domain.StepView, error) {
	ex, err := s.catalog.GetExercise(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	views := make([]domain.StepView, 0, len(ex.Steps))
	for _, step := range ex.Steps {
		views = append(views, step.View())
	}
	return views, nil
}

// CreateSession binds an exercise to a live session.
func (s *SimulatorService) CreateSession(ctx context.Context, req CreateSimulatorRequest) (domain.SimulatorSession, error) {
	if req.Mode == "" {
		req.Mode = domain.ModeTraining
	}
	if req.Mode != domain.ModeTraining && req.Mode != domain.ModeExam {
		return domain.SimulatorSession{}, domain.ErrInvalidInput
	}
	if req.SkipPolicy == "" {
		req.SkipPolicy = s.cfg.SkipPolicy
	}
	if !req.SkipPolicy.Valid() {
		return domain.SimulatorSession{}, domain.ErrInvalidInput
	}
	budget := s.cfg.HintBudget
	if req.HintBudget != nil {
		if *req.HintBudget < 0 {
			return domain.SimulatorSession{}, domain.ErrInvalidInput
		}
		budget = *req.HintBudget
	}
	if !s.lookup.LiveExists(req.LiveID) {
		return domain.SimulatorSession{}, domain.ErrSessionNotFound
	}
	ex, err := s.catalog.GetExercise(ctx, req.ExerciseID)
	if err != nil {
		return domain.SimulatorSession{}, err
	}

	info := domain.SimulatorSession{
		SessionID:  uuid.NewString(),
		LiveID:     req.LiveID,
		ExerciseID: ex.ExerciseID,
		Mode:       req.Mode,
		Status:     domain.SimLobby,
		HintBudget: budget,
		SkipPolicy: req.SkipPolicy,
		CreatedAt:  s.now(),
	}
	rules := exercise.Rules{Mode: req.Mode, SkipPolicy: req.SkipPolicy, HintBudget: budget, Penalties: s.cfg.Penalties}
	session := NewSimulatorSession(info, ex, rules, s.after)
	if err := s.sessions.Create(ctx, session); err != nil {
		return domain.SimulatorSession{}, err
	}
	s.log.Info("simulator session created", "session_id", info.SessionID, "live_id", info.LiveID, "exercise_id", ex.ExerciseID, "mode", info.Mode)
	return info, nil
}

// Details returns the session state.
func (s *SimulatorService) Details(_ context.Context, sessionID string) (domain.SimulatorSession, error) {
	session, err := s.get(sessionID)
	if err != nil {
		return domain.SimulatorSession{}, err
	}
	return session.Snapshot(), nil
}

// Join enrolls a participant of the parent live session. Joining twice returns the existing run.
func (s *SimulatorService) Join(ctx context.Context, sessionID, participantID string) (JoinedExercise, error) {
	session, err := s.get(sessionID)
	if err != nil {
		return JoinedExercise{}, err
	}
	participant, err := s.lookup.Participant(session.info.LiveID, participantID)
	if err != nil {
		return JoinedExercise{}, err
	}

	session.mu.Lock()
	if session.info.Status == domain.SimCompleted {
		session.mu.Unlock()
		return JoinedExercise{}, domain.ErrSessionClosed
	}
	run, ok := session.runs[participantID]
	var events []domain.Event
	if !ok {
		run = exercise.NewRun(session.exercise, session.rules, participantID, sessionID)
		session.runs[participantID] = run
		session.names[participantID] = participant.DisplayName()
		if session.info.Status == domain.SimRunning {
			s.startRunLocked(session, participantID, run, s.now())
		}
		events = append(events, s.progressEventLocked(session, participantID, run))
	}
	joined := JoinedExercise{Session: session.info, Exercise: session.exercise.Title, Progress: run.Progress()}
	if step, ok := run.Current(); ok {
		view := step.View()
		joined.Step = &view
	}
	session.mu.Unlock()

	if !ok {
		s.log.Info("simulator participant joined", "session_id", sessionID, "participant_id", participantID)
	}
	s.publish(ctx, s.bus, events)
	return joined, nil
}

// Start opens the exercise for every enrolled participant.
func (s *SimulatorService) Start(ctx context.Context, sessionID string) (domain.SimulatorSession, error) {
	return s.transition(ctx, sessionID, domain.SimLobby, domain.SimRunning, func(session *SimulatorSession, now time.Time) {
		for pid, run := range session.runs {
			s.startRunLocked(session, pid, run, now)
		}
	})
}

// Pause suspends actions; step deadlines restart in full on resume.
func (s *SimulatorService) Pause(ctx context.Context, sessionID string) (domain.SimulatorSession, error) {
	return s.transition(ctx, sessionID, domain.SimRunning, domain.SimPaused, func(session *SimulatorSession, _ time.Time) {
		session.timers.cancelPrefix(stepTimerPrefix)
	})
}

// Resume re-arms the step deadlines of every open run.
func (s *SimulatorService) Resume(ctx context.Context, sessionID string) (domain.SimulatorSession, error) {
	return s.transition(ctx, sessionID, domain.SimPaused, domain.SimRunning, func(session *SimulatorSession, now time.Time) {
		for pid, run := range session.runs {
			s.armStepTimerLocked(session, pid, run)
		}
	})
}

// End completes the session. Open runs fail, every timer is discarded and reports become
// available. Ending a completed session is a no-op.
func (s *SimulatorService) End(ctx context.Context, sessionID string) (domain.SimulatorSession, error) {
	session, err := s.get(sessionID)
	if err != nil {
		return domain.SimulatorSession{}, err
	}
	session.mu.Lock()
	if session.info.Status == domain.SimCompleted {
		snapshot := session.info
		session.mu.Unlock()
		return snapshot, nil
	}
	now := s.now()
	session.info.Status = domain.SimCompleted
	session.timers.stop()
	for _, run := range session.runs {
		run.Abort(now)
	}
	snapshot := session.info
	events := []domain.Event{s.stateEvent(snapshot, now)}
	session.mu.Unlock()

	s.log.Info("simulator session completed", "session_id", sessionID)
	s.publish(ctx, s.bus, events)
	return snapshot, nil
}

// RecordAction validates and logs one action against the participant's current step.
func (s *SimulatorService) RecordAction(ctx context.Context, req domain.ActionRequest) (domain.ActionResult, error) {
	session, run, err := s.runFor(req.SessionID, req.ParticipantID)
	if err != nil {
		return domain.ActionResult{}, err
	}
	session.mu.Lock()
	if session.info.Status != domain.SimRunning {
		session.mu.Unlock()
		return domain.ActionResult{}, domain.ErrSessionNotRunning
	}
	now := s.now()
	if events, expired := s.expireRunLocked(session, req.ParticipantID, run, now); expired {
		session.mu.Unlock()
		s.log.Info("simulator run out of time", "session_id", req.SessionID, "participant_id", req.ParticipantID)
		s.publish(ctx, s.bus, events)
		return domain.ActionResult{}, domain.ErrExerciseFinished
	}
	before, _ := run.Current()
	result, action, err := run.Record(uuid.NewString(), req, now)
	if err != nil {
		session.mu.Unlock()
		return domain.ActionResult{}, err
	}
	events := s.afterMoveLocked(session, req.ParticipantID, run, before.StepID, now)
	session.mu.Unlock()

	s.metrics.SimulatorAction(result.IsCorrect)
	s.publish(ctx, s.bus, events)
	s.appendAction(ctx, action)
	return result, nil
}

// SkipStep bypasses the participant's current non-mandatory step.
func (s *SimulatorService) SkipStep(ctx context.Context, sessionID, participantID string) (domain.ActionResult, error) {
	session, run, err := s.runFor(sessionID, participantID)
	if err != nil {
		return domain.ActionResult{}, err
	}
	session.mu.Lock()
	if session.info.Status != domain.SimRunning {
		session.mu.Unlock()
		return domain.ActionResult{}, domain.ErrSessionNotRunning
	}
	now := s.now()
	if events, expired := s.expireRunLocked(session, participantID, run, now); expired {
		session.mu.Unlock()
		s.log.Info("simulator run out of time", "session_id", sessionID, "participant_id", participantID)
		s.publish(ctx, s.bus, events)
		return domain.ActionResult{}, domain.ErrExerciseFinished
	}
	before, _ := run.Current()
	result, action, err := run.Skip(uuid.NewString(), now)
	if err != nil {
		session.mu.Unlock()
		return domain.ActionResult{}, err
	}
	events := s.afterMoveLocked(session, participantID, run, before.StepID, now)
	session.mu.Unlock()

	s.publish(ctx, s.bus, events)
	s.appendAction(ctx, action)
	return result, nil
}

// RequestHint grants or denies hint content. Denial is a normal result.
func (s *SimulatorService) RequestHint(ctx context.Context, req domain.HintRequest) (domain.HintResult, error) {
	session, run, err := s.runFor(req.SessionID, req.ParticipantID)
	if err != nil {
		return domain.HintResult{}, err
	}
	session.mu.Lock()
	if session.info.Status != domain.SimRunning {
		session.mu.Unlock()
		return domain.HintResult{}, domain.ErrSessionNotRunning
	}
	result, err := run.Hint(req.StepID, req.Level)
	var events []domain.Event
	if err == nil && !result.Denied && result.PenaltyApplied > 0 {
		events = append(events, s.progressEventLocked(session, req.ParticipantID, run))
	}
	session.mu.Unlock()
	if err != nil {
		return domain.HintResult{}, err
	}

	outcome := "granted"
	if result.Denied {
		outcome = result.Reason
	}
	s.metrics.Hint(outcome)
	s.publish(ctx, s.bus, events)
	return result, nil
}

// StepTimeout handles an expired step deadline. Stale deadlines are ignored.
func (s *SimulatorService) StepTimeout(ctx context.Context, sessionID, participantID, stepID string) {
	session, run, err := s.runFor(sessionID, participantID)
	if err != nil {
		return
	}
	session.mu.Lock()
	if session.info.Status != domain.SimRunning {
		session.mu.Unlock()
		return
	}
	now := s.now()
	out := run.Timeout(uuid.NewString(), stepID, now)
	if !out.Applied {
		session.mu.Unlock()
		return
	}
	events := []domain.Event{{
		Type:          domain.EventStepTimeout,
		Topic:         domain.SimulatorTopic(sessionID),
		ParticipantID: participantID,
		Payload:       domain.StepTimeoutPayload{StepID: stepID, Missed: out.Missed, Progress: run.Progress()},
		At:            now,
	}}
	if out.Missed {
		events = append(events, s.afterMoveLocked(session, participantID, run, stepID, now)...)
	}
	session.mu.Unlock()

	s.publish(ctx, s.bus, events)
	if out.Action != nil {
		s.appendAction(ctx, *out.Action)
	}
}

// ExpireRun fails an exam run that ran past the exercise time limit.
func (s *SimulatorService) ExpireRun(ctx context.Context, sessionID, participantID string) {
	session, run, err := s.runFor(sessionID, participantID)
	if err != nil {
		return
	}
	session.mu.Lock()
	events, expired := s.expireRunLocked(session, participantID, run, s.now())
	session.mu.Unlock()
	if !expired {
		return
	}

	s.log.Info("simulator run out of time", "session_id", sessionID, "participant_id", participantID)
	s.publish(ctx, s.bus, events)
}

// expireRunLocked fails an exam run past its time limit, disarms its deadlines and returns the
// events announcing the failure. Actions arriving before the run timer fires take this path too.
func (s *SimulatorService) expireRunLocked(session *SimulatorSession, participantID string, run *exercise.Run, now time.Time) ([]domain.Event, bool) {
	if !run.ExpireTime(now) {
		return nil, false
	}
	session.timers.cancel(stepTimerKey(participantID))
	session.timers.cancel(runTimerKey(participantID))
	return []domain.Event{
		s.progressEventLocked(session, participantID, run),
		s.completedEventLocked(session, participantID, run, now),
	}, true
}

// Progress returns the participant's progress projection.
func (s *SimulatorService) Progress(_ context.Context, sessionID, participantID string) (domain.SimulatorProgress, error) {
	session, run, err := s.runFor(sessionID, participantID)
	if err != nil {
		return domain.SimulatorProgress{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return run.Progress(), nil
}

// Report returns the immutable report of a finished run.
func (s *SimulatorService) Report(_ context.Context, sessionID, participantID string) (domain.SimulatorReport, error) {
	session, run, err := s.runFor(sessionID, participantID)
	if err != nil {
		return domain.SimulatorReport{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return run.Report(session.names[participantID], s.now())
}

func (s *SimulatorService) transition(ctx context.Context, sessionID string, from, to domain.SimulatorStatus, apply func(*SimulatorSession, time.Time)) (domain.SimulatorSession, error) {
	session, err := s.get(sessionID)
	if err != nil {
		return domain.SimulatorSession{}, err
	}
	session.mu.Lock()
	if session.info.Status != from {
		session.mu.Unlock()
		return domain.SimulatorSession{}, domain.ErrInvalidTransition
	}
	now := s.now()
	session.info.Status = to
	apply(session, now)
	snapshot := session.info
	events := []domain.Event{s.stateEvent(snapshot, now)}
	session.mu.Unlock()

	s.log.Info("simulator session transition", "session_id", sessionID, "from", from, "to", to)
	s.publish(ctx, s.bus, events)
	return snapshot, nil
}

func (s *SimulatorService) startRunLocked(session *SimulatorSession, participantID string, run *exercise.Run, now time.Time) {
	run.Start(now)
	s.armStepTimerLocked(session, participantID, run)
	if session.rules.Mode == domain.ModeExam && session.exercise.MaxTimeSeconds > 0 && !run.Status().Terminal() {
		sessionID := session.info.SessionID
		limit := time.Duration(session.exercise.MaxTimeSeconds) * time.Second
		session.timers.schedule(runTimerKey(participantID), limit, func() {
			s.ExpireRun(context.Background(), sessionID, participantID)
		})
	}
}

func (s *SimulatorService) armStepTimerLocked(session *SimulatorSession, participantID string, run *exercise.Run) {
	step, ok := run.Current()
	if !ok || step.TimeoutSeconds <= 0 || run.Status() != domain.ProgressInProgress {
		session.timers.cancel(stepTimerKey(participantID))
		return
	}
	sessionID := session.info.SessionID
	stepID := step.StepID
	session.timers.schedule(stepTimerKey(participantID), time.Duration(step.TimeoutSeconds)*time.Second, func() {
		s.StepTimeout(context.Background(), sessionID, participantID, stepID)
	})
}

// afterMoveLocked re-arms deadlines after the run may have advanced and builds the events.
func (s *SimulatorService) afterMoveLocked(session *SimulatorSession, participantID string, run *exercise.Run, previousStep string, now time.Time) []domain.Event {
	events := []domain.Event{s.progressEventLocked(session, participantID, run)}
	if run.Status().Terminal() {
		session.timers.cancel(stepTimerKey(participantID))
		session.timers.cancel(runTimerKey(participantID))
		events = append(events, s.completedEventLocked(session, participantID, run, now))
		s.log.Info("exercise finished", "session_id", session.info.SessionID, "participant_id", participantID, "status", run.Status())
		return events
	}
	if current, ok := run.Current(); ok && current.StepID != previousStep {
		s.armStepTimerLocked(session, participantID, run)
	}
	return events
}

func (s *SimulatorService) progressEventLocked(session *SimulatorSession, participantID string, run *exercise.Run) domain.Event {
	return domain.Event{
		Type:          domain.EventSimulatorProgress,
		Topic:         domain.SimulatorTopic(session.info.SessionID),
		ParticipantID: participantID,
		Payload:       run.Progress(),
		At:            s.now(),
	}
}

func (s *SimulatorService) completedEventLocked(session *SimulatorSession, participantID string, run *exercise.Run, now time.Time) domain.Event {
	p := run.Progress()
	return domain.Event{
		Type:          domain.EventExerciseCompleted,
		Topic:         domain.SimulatorTopic(session.info.SessionID),
		ParticipantID: participantID,
		Payload: map[string]any{
			"status":      p.Status,
			"total_score": p.TotalScore,
			"max_score":   p.MaxPossibleScore,
			"passed":      run.Passed(),
		},
		At: now,
	}
}

func (s *SimulatorService) stateEvent(info domain.SimulatorSession, now time.Time) domain.Event {
	return domain.Event{Type: domain.EventSimulatorState, Topic: domain.SimulatorTopic(info.SessionID), Payload: info, At: now}
}

func (s *SimulatorService) runFor(sessionID, participantID string) (*SimulatorSession, *exercise.Run, error) {
	session, err := s.get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	session.mu.Lock()
	run, ok := session.runs[participantID]
	session.mu.Unlock()
	if !ok {
		return nil, nil, domain.ErrParticipantNotFound
	}
	return session, run, nil
}

func (s *SimulatorService) get(sessionID string) (*SimulatorSession, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SimulatorService) appendAction(ctx context.Context, action domain.SimulatorAction) {
	if s.audit == nil {
		return
	}
	if err := s.audit.AppendAction(ctx, action); err != nil {
		s.metrics.AuditFailure("action")
		s.log.Error("audit append action", "session_id", action.SessionID, "participant_id", action.ParticipantID, "error", err)
	}
}

const stepTimerPrefix = "step:"

func stepTimerKey(participantID string) string { return stepTimerPrefix + participantID }

func runTimerKey(participantID string) string { return "run:" + participantID }
