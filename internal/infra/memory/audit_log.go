package memory

import (
	"context"
	"sync"

	"quiz-live-service/internal/domain"
)

// AuditLog keeps the append-only trail in memory. It backs single-instance runs and tests.
type AuditLog struct {
	mu      sync.RWMutex
	answers []domain.AnsweredRecord
	actions []domain.SimulatorAction
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (l *AuditLog) AppendAnswer(_ context.Context, record domain.AnsweredRecord) error {
	l.mu.Lock()
	l.answers = append(l.answers, record)
	l.mu.Unlock()
	return nil
}

func (l *AuditLog) AppendAction(_ context.Context, action domain.SimulatorAction) error {
	l.mu.Lock()
	l.actions = append(l.actions, action)
	l.mu.Unlock()
	return nil
}

// Answers returns the answer records of a live session in append order.
func (l *AuditLog) Answers(liveID string) []domain.AnsweredRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.AnsweredRecord
	for _, r := range l.answers {
		if r.LiveID == liveID {
			out = append(out, r)
		}
	}
	return out
}

// Actions returns the actions of a simulator session in append order.
func (l *AuditLog) Actions(sessionID string) []domain.SimulatorAction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.SimulatorAction
	for _, a := range l.actions {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out
}
