package app

import (
	"sort"
	"sync"
	"time"

	"quiz-live-service/internal/domain"
)

// LiveSession is the in-memory state of one live session. Every mutation happens under mu;
// events are built from post-mutation snapshots inside the critical section and published
// after it is released.
type LiveSession struct {
	mu           sync.Mutex
	info         domain.LiveSession
	participants map[string]*participantState
	order        []string
	roundOpen    bool
	report       *domain.LiveReport
	timers       *timerSet
}

type participantState struct {
	info     domain.Participant
	ability  domain.AbilityState
	seen     map[string]struct{}
	pending  *pendingQuestion
	last     *gradedQuestion
	finished bool
}

type pendingQuestion struct {
	question  domain.Question
	number    int
	deadline  time.Time
	remaining time.Duration
}

type gradedQuestion struct {
	question    domain.Question
	answerIndex *int
	result      domain.AnswerResult
}

// NewLiveSession is exported for infrastructure layers that need to seed sessions.
func NewLiveSession(info domain.LiveSession, after AfterFunc) *LiveSession {
	return &LiveSession{
		info:         info,
		participants: make(map[string]*participantState),
		timers:       newTimerSet(after),
	}
}

// ID returns the immutable live id.
func (s *LiveSession) ID() string { return s.info.LiveID }

// Code returns the immutable join code.
func (s *LiveSession) Code() string { return s.info.Code }

// Snapshot returns the externally visible session state.
func (s *LiveSession) Snapshot() domain.LiveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

// Ended reports whether the session reached its terminal state.
func (s *LiveSession) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Status == domain.StatusEnded
}

func (s *LiveSession) rosterLocked() []domain.RosterEntry {
	roster := make([]domain.RosterEntry, 0, len(s.order))
	for _, id := range s.order {
		p := s.participants[id].info
		roster = append(roster, domain.RosterEntry{ParticipantID: p.ParticipantID, Nome: p.Nome, Cognome: p.Cognome})
	}
	return roster
}

func (s *LiveSession) statusLocked(p *participantState) domain.ParticipantStatus {
	return domain.ParticipantStatus{
		ParticipantID:     p.info.ParticipantID,
		Nome:              p.info.Nome,
		Cognome:           p.info.Cognome,
		CurrentLevel:      p.ability.Level,
		Theta:             p.ability.Theta,
		TotalServed:       p.ability.TotalServed,
		CorrectPercentage: p.ability.CorrectPercentage(),
		Topic:             p.ability.Topic,
		Finished:          p.finished,
	}
}

func (s *LiveSession) reportLocked(now time.Time) domain.LiveReport {
	entries := make([]domain.LiveReportEntry, 0, len(s.order))
	for _, id := range s.order {
		p := s.participants[id]
		entries = append(entries, domain.LiveReportEntry{
			ParticipantID:  p.info.ParticipantID,
			Nome:           p.info.Nome,
			Cognome:        p.info.Cognome,
			TotalQuestions: p.ability.TotalServed,
			CorrectAnswers: p.ability.Correct,
			Percentage:     p.ability.CorrectPercentage(),
			FinalLevel:     p.ability.Level,
			FinalTheta:     p.ability.Theta,
		})
	}
	// Highest percentage first, then the larger number of answers, then name.
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Percentage != entries[j].Percentage {
			return entries[i].Percentage > entries[j].Percentage
		}
		if entries[i].TotalQuestions != entries[j].TotalQuestions {
			return entries[i].TotalQuestions > entries[j].TotalQuestions
		}
		return entries[i].Cognome+entries[i].Nome < entries[j].Cognome+entries[j].Nome
	})
	return domain.LiveReport{LiveID: s.info.LiveID, EndedAt: now, Entries: entries}
}

func (s *LiveSession) event(t domain.EventType, participantID string, payload any, now time.Time) domain.Event {
	return domain.Event{Type: t, Topic: s.info.LiveID, ParticipantID: participantID, Payload: payload, At: now}
}

func (s *LiveSession) lobbyEventLocked(now time.Time) domain.Event {
	return s.event(domain.EventLobbyUpdate, "", domain.LobbyPayload{Participants: s.rosterLocked(), Locked: s.info.Locked}, now)
}

func questionTimerKey(participantID string) string { return "q:" + participantID }

const countdownTimerKey = "countdown"
