package app

import (
	"context"
	"time"

	"quiz-live-service/internal/domain"
	"quiz-live-service/internal/logger"
	"quiz-live-service/internal/metrics"
)

// BankRepository loads item banks (from cache/backing store).
type BankRepository interface {
	GetBank(ctx context.Context, bankID string) (domain.ItemBank, error)
}

// LiveSessionRepository owns the mapping from live id and join code to session state.
// Create fails with domain.ErrCodeTaken when the code is reserved by an open session.
// Release frees the code but keeps the session readable for reporting.
type LiveSessionRepository interface {
	Create(ctx context.Context, session *LiveSession) error
	Get(liveID string) (*LiveSession, bool)
	ByCode(code string) (*LiveSession, bool)
	Release(ctx context.Context, session *LiveSession)
}

// SimulatorSessionRepository owns simulator sessions.
type SimulatorSessionRepository interface {
	Create(ctx context.Context, session *SimulatorSession) error
	Get(sessionID string) (*SimulatorSession, bool)
}

// ExerciseCatalog serves exercise templates.
type ExerciseCatalog interface {
	ListExercises(ctx context.Context, simulatorType domain.SimulatorType) ([]domain.Exercise, error)
	GetExercise(ctx context.Context, exerciseID string) (domain.Exercise, error)
}

// AuditLog is the append-only trail of graded answers and simulator actions.
type AuditLog interface {
	AppendAnswer(ctx context.Context, record domain.AnsweredRecord) error
	AppendAction(ctx context.Context, action domain.SimulatorAction) error
}

// ParticipantLookup resolves participants of a live session for the simulator.
type ParticipantLookup interface {
	LiveExists(liveID string) bool
	Participant(liveID, participantID string) (domain.Participant, error)
}

// runtime carries the ambient collaborators shared by the services.
type runtime struct {
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	after   AfterFunc
}

// Option customizes a service.
type Option func(*runtime)

func WithLogger(l *logger.Logger) Option { return func(r *runtime) { r.log = l } }

func WithMetrics(m *metrics.Metrics) Option { return func(r *runtime) { r.metrics = m } }

// WithClock is test-only for deterministic timestamps.
func WithClock(now func() time.Time) Option { return func(r *runtime) { r.now = now } }

// WithAfterFunc replaces the deadline scheduler.
func WithAfterFunc(after AfterFunc) Option { return func(r *runtime) { r.after = after } }

func newRuntime(opts []Option) runtime {
	rt := runtime{now: time.Now, after: realAfterFunc}
	for _, opt := range opts {
		opt(&rt)
	}
	if rt.log == nil {
		rt.log = logger.Nop()
	}
	return rt
}

func (rt runtime) publish(ctx context.Context, bus Bus, events []domain.Event) {
	for _, ev := range events {
		if err := bus.Publish(ctx, ev); err != nil {
			rt.log.Warn("event publish failed", "topic", ev.Topic, "type", ev.Type, "error", err)
		}
	}
}
