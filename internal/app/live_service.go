package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"quiz-live-service/internal/adaptive"
	"quiz-live-service/internal/domain"
)

// LiveConfig holds the quiz round settings.
type LiveConfig struct {
	QuestionCap   int
	QuestionTimer time.Duration
	Countdown     time.Duration
	DefaultBankID string
	Ability       adaptive.Params
}

// DefaultLiveConfig mirrors the configuration defaults.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		QuestionCap:   50,
		QuestionTimer: 30 * time.Second,
		Countdown:     5 * time.Second,
		DefaultBankID: "default",
		Ability:       adaptive.DefaultParams(),
	}
}

const codeAttempts = 10

// LiveService contains the live session and quiz round use cases.
type LiveService struct {
	runtime
	sessions  LiveSessionRepository
	banks     BankRepository
	audit     AuditLog
	bus       Bus
	cfg       LiveConfig
	estimator *adaptive.Estimator
	selector  *adaptive.Selector
}

func NewLiveService(sessions LiveSessionRepository, banks BankRepository, audit AuditLog, bus Bus, cfg LiveConfig, opts ...Option) *LiveService {
	if cfg.QuestionTimer <= 0 {
		cfg.QuestionTimer = 30 * time.Second
	}
	if cfg.Countdown < 0 {
		cfg.Countdown = 0
	}
	if cfg.DefaultBankID == "" {
		cfg.DefaultBankID = "default"
	}
	return &LiveService{
		runtime:   newRuntime(opts),
		sessions:  sessions,
		banks:     banks,
		audit:     audit,
		bus:       bus,
		cfg:       cfg,
		estimator: adaptive.NewEstimator(cfg.Ability),
		selector:  adaptive.NewSelector(cfg.QuestionCap),
	}
}

// CreateSession opens a lobby with a fresh join code. The bank is loaded up front so that
// sessions cannot be created for unknown banks.
func (s *LiveService) CreateSession(ctx context.Context, title, bankID string) (domain.LiveSession, error) {
	if bankID == "" {
		bankID = s.cfg.DefaultBankID
	}
	if _, err := s.banks.GetBank(ctx, bankID); err != nil {
		return domain.LiveSession{}, err
	}

	for attempt := 0; attempt < codeAttempts; attempt++ {
		code, err := newJoinCode()
		if err != nil {
			return domain.LiveSession{}, err
		}
		info := domain.LiveSession{
			LiveID:    uuid.NewString(),
			Code:      code,
			Title:     strings.TrimSpace(title),
			Status:    domain.StatusLobby,
			BankID:    bankID,
			CreatedAt: s.now(),
		}
		session := NewLiveSession(info, s.after)
		err = s.sessions.Create(ctx, session)
		if errors.Is(err, domain.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return domain.LiveSession{}, err
		}
		s.metrics.LiveSessionOpened()
		s.log.Info("live session created", "live_id", info.LiveID, "code", code, "bank_id", bankID)
		return info, nil
	}
	return domain.LiveSession{}, fmt.Errorf("allocate join code: %w", domain.ErrCodeTaken)
}

// Join registers a participant. Joins are accepted only while the session is in an unlocked lobby;
// the check and the insert share the session lock with the start transition.
func (s *LiveService) Join(ctx context.Context, code string, info domain.ParticipantInfo) (domain.Participant, error) {
	info.Nome = strings.TrimSpace(info.Nome)
	info.Cognome = strings.TrimSpace(info.Cognome)
	if info.Nome == "" || info.Cognome == "" {
		return domain.Participant{}, domain.ErrInvalidInput
	}
	session, ok := s.sessions.ByCode(strings.TrimSpace(code))
	if !ok {
		s.metrics.Join("not_found")
		return domain.Participant{}, domain.ErrSessionNotFound
	}

	session.mu.Lock()
	switch {
	case session.info.Status != domain.StatusLobby:
		session.mu.Unlock()
		s.metrics.Join("closed")
		return domain.Participant{}, domain.ErrSessionClosed
	case session.info.Locked:
		session.mu.Unlock()
		s.metrics.Join("locked")
		return domain.Participant{}, domain.ErrSessionLocked
	}
	now := s.now()
	participant := domain.Participant{
		ParticipantID: uuid.NewString(),
		LiveID:        session.info.LiveID,
		Nome:          info.Nome,
		Cognome:       info.Cognome,
		Email:         strings.TrimSpace(info.Email),
		Corso:         strings.TrimSpace(info.Corso),
		JoinedAt:      now,
	}
	session.participants[participant.ParticipantID] = &participantState{
		info:    participant,
		ability: s.estimator.Initial(),
		seen:    make(map[string]struct{}),
	}
	session.order = append(session.order, participant.ParticipantID)
	events := []domain.Event{session.lobbyEventLocked(now)}
	session.mu.Unlock()

	s.metrics.Join("accepted")
	s.log.Info("participant joined", "live_id", participant.LiveID, "participant_id", participant.ParticipantID, "email", participant.Email)
	s.publish(ctx, s.bus, events)
	return participant, nil
}

// Lock closes the lobby to new joins. Locking a locked lobby is a no-op.
func (s *LiveService) Lock(ctx context.Context, liveID string) (domain.LiveSession, error) {
	session, err := s.get(liveID)
	if err != nil {
		return domain.LiveSession{}, err
	}
	session.mu.Lock()
	if session.info.Status != domain.StatusLobby {
		session.mu.Unlock()
		return domain.LiveSession{}, domain.ErrInvalidTransition
	}
	if session.info.Locked {
		snapshot := session.info
		session.mu.Unlock()
		return snapshot, nil
	}
	now := s.now()
	session.info.Locked = true
	snapshot := session.info
	events := []domain.Event{session.lobbyEventLocked(now)}
	session.mu.Unlock()

	s.metrics.Transition("locked")
	s.log.Info("live session locked", "live_id", liveID)
	s.publish(ctx, s.bus, events)
	return snapshot, nil
}

// Start moves the lobby to running and opens the first round once the countdown elapses.
func (s *LiveService) Start(ctx context.Context, liveID string) (domain.LiveSession, error) {
	session, err := s.get(liveID)
	if err != nil {
		return domain.LiveSession{}, err
	}
	session.mu.Lock()
	if session.info.Status != domain.StatusLobby {
		session.mu.Unlock()
		return domain.LiveSession{}, domain.ErrInvalidTransition
	}
	now := s.now()
	session.info.Status = domain.StatusRunning
	snapshot := session.info
	joined := len(session.order)
	countdown := s.cfg.Countdown
	events := []domain.Event{session.event(domain.EventLiveStart, "", domain.StartPayload{Countdown: int(countdown / time.Second)}, now)}
	if countdown > 0 {
		session.timers.schedule(countdownTimerKey, countdown, func() {
			s.openRound(context.Background(), liveID)
		})
	}
	session.mu.Unlock()

	s.metrics.Transition(string(domain.StatusRunning))
	s.log.Info("live session started", "live_id", liveID, "participants", joined, "countdown", countdown.String())
	s.publish(ctx, s.bus, events)
	if countdown <= 0 {
		s.openRound(ctx, liveID)
	}
	return snapshot, nil
}

// Pause freezes the round: pending question deadlines keep their remaining time.
func (s *LiveService) Pause(ctx context.Context, liveID string) (domain.LiveSession, error) {
	session, err := s.get(liveID)
	if err != nil {
		return domain.LiveSession{}, err
	}
	session.mu.Lock()
	if session.info.Status != domain.StatusRunning {
		session.mu.Unlock()
		return domain.LiveSession{}, domain.ErrInvalidTransition
	}
	now := s.now()
	session.info.Status = domain.StatusPaused
	session.timers.cancel(countdownTimerKey)
	for _, id := range session.order {
		p := session.participants[id]
		if p.pending == nil {
			continue
		}
		p.pending.remaining = p.pending.deadline.Sub(now)
		if p.pending.remaining < 0 {
			p.pending.remaining = 0
		}
		session.timers.cancel(questionTimerKey(id))
	}
	snapshot := session.info
	events := []domain.Event{session.event(domain.EventLivePause, "", nil, now)}
	session.mu.Unlock()

	s.metrics.Transition(string(domain.StatusPaused))
	s.log.Info("live session paused", "live_id", liveID)
	s.publish(ctx, s.bus, events)
	return snapshot, nil
}

// Resume returns a paused session to running and re-arms the frozen deadlines.
func (s *LiveService) Resume(ctx context.Context, liveID string) (domain.LiveSession, error) {
	session, err := s.get(liveID)
	if err != nil {
		return domain.LiveSession{}, err
	}
	session.mu.Lock()
	if session.info.Status != domain.StatusPaused {
		session.mu.Unlock()
		return domain.LiveSession{}, domain.ErrInvalidTransition
	}
	now := s.now()
	session.info.Status = domain.StatusRunning
	openRound := !session.roundOpen
	if !openRound {
		for _, id := range session.order {
			p := session.participants[id]
			if p.pending == nil {
				continue
			}
			p.pending.deadline = now.Add(p.pending.remaining)
			s.armQuestionTimerLocked(session, id, p.pending)
		}
	}
	snapshot := session.info
	events := []domain.Event{session.event(domain.EventLiveResume, "", nil, now)}
	session.mu.Unlock()

	s.metrics.Transition("resumed")
	s.log.Info("live session resumed", "live_id", liveID)
	s.publish(ctx, s.bus, events)
	if openRound {
		s.openRound(ctx, liveID)
	}
	return snapshot, nil
}

// End terminates the session, builds the final report and discards every pending timer.
// Ending an ended session returns the stored report.
func (s *LiveService) End(ctx context.Context, liveID string) (domain.LiveReport, error) {
	session, err := s.get(liveID)
	if err != nil {
		return domain.LiveReport{}, err
	}
	session.mu.Lock()
	if session.info.Status == domain.StatusEnded {
		report := *session.report
		session.mu.Unlock()
		return report, nil
	}
	now := s.now()
	session.info.Status = domain.StatusEnded
	session.timers.stop()
	for _, p := range session.participants {
		p.pending = nil
	}
	report := session.reportLocked(now)
	session.report = &report
	events := []domain.Event{session.event(domain.EventLiveEnd, "", domain.EndPayload{Report: report}, now)}
	session.mu.Unlock()

	s.sessions.Release(ctx, session)
	s.metrics.Transition(string(domain.StatusEnded))
	s.metrics.LiveSessionClosed()
	s.log.Info("live session ended", "live_id", liveID, "participants", len(report.Entries))
	s.publish(ctx, s.bus, events)
	return report, nil
}

// Details returns the session state.
func (s *LiveService) Details(_ context.Context, liveID string) (domain.LiveSession, error) {
	session, err := s.get(liveID)
	if err != nil {
		return domain.LiveSession{}, err
	}
	return session.Snapshot(), nil
}

// Participants returns the facilitator view of every participant in join order.
func (s *LiveService) Participants(_ context.Context, liveID string) ([]domain.ParticipantStatus, error) {
	session, err := s.get(liveID)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	out := make([]domain.ParticipantStatus, 0, len(session.order))
	for _, id := range session.order {
		out = append(out, session.statusLocked(session.participants[id]))
	}
	return out, nil
}

// Roster returns the lobby view used to seed new observers.
func (s *LiveService) Roster(_ context.Context, liveID string) (domain.LobbyPayload, error) {
	session, err := s.get(liveID)
	if err != nil {
		return domain.LobbyPayload{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return domain.LobbyPayload{Participants: session.rosterLocked(), Locked: session.info.Locked}, nil
}

// Report returns the final report of an ended session.
func (s *LiveService) Report(_ context.Context, liveID string) (domain.LiveReport, error) {
	session, err := s.get(liveID)
	if err != nil {
		return domain.LiveReport{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	if session.report == nil {
		return domain.LiveReport{}, domain.ErrReportNotReady
	}
	return *session.report, nil
}

// ResolveCode maps a join code to its live id.
func (s *LiveService) ResolveCode(code string) (string, error) {
	session, ok := s.sessions.ByCode(code)
	if !ok {
		return "", domain.ErrSessionNotFound
	}
	return session.ID(), nil
}

// LiveExists implements ParticipantLookup.
func (s *LiveService) LiveExists(liveID string) bool {
	_, ok := s.sessions.Get(liveID)
	return ok
}

// Participant implements ParticipantLookup.
func (s *LiveService) Participant(liveID, participantID string) (domain.Participant, error) {
	session, err := s.get(liveID)
	if err != nil {
		return domain.Participant{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	p, ok := session.participants[participantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p.info, nil
}

// PendingTimers reports the number of armed deadlines of a session.
func (s *LiveService) PendingTimers(liveID string) int {
	session, ok := s.sessions.Get(liveID)
	if !ok {
		return 0
	}
	return session.timers.pending()
}

// openRound serves the first question to every participant once the countdown elapsed.
func (s *LiveService) openRound(ctx context.Context, liveID string) {
	session, ok := s.sessions.Get(liveID)
	if !ok {
		return
	}
	bankID := session.Snapshot().BankID
	bank, err := s.banks.GetBank(ctx, bankID)
	if err != nil {
		s.log.Error("open round: load bank", "live_id", liveID, "bank_id", bankID, "error", err)
		return
	}

	session.mu.Lock()
	if session.info.Status != domain.StatusRunning || session.roundOpen {
		session.mu.Unlock()
		return
	}
	now := s.now()
	session.roundOpen = true
	session.timers.cancel(countdownTimerKey)
	events := make([]domain.Event, 0, len(session.order))
	for _, id := range session.order {
		next := s.serveLocked(session, id, bank, now)
		events = append(events, session.event(domain.EventRoundStart, id, domain.RoundPayload{
			Question:       next.Question,
			QuestionNumber: next.QuestionNumber,
			Timer:          next.TimerSeconds,
			Exhausted:      next.Exhausted,
		}, now))
	}
	session.mu.Unlock()

	s.log.Info("round opened", "live_id", liveID, "participants", len(events))
	s.publish(ctx, s.bus, events)
}

func (s *LiveService) get(liveID string) (*LiveSession, error) {
	session, ok := s.sessions.Get(liveID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// newJoinCode returns a 6-digit numeric code.
func newJoinCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("join code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
