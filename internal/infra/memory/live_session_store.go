package memory

import (
	"context"
	"sync"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
)

// LiveSessionStore is an in-memory implementation of app.LiveSessionRepository.
type LiveSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.LiveSession
	codes    map[string]string
}

func NewLiveSessionStore() *LiveSessionStore {
	return &LiveSessionStore{
		sessions: make(map[string]*app.LiveSession),
		codes:    make(map[string]string),
	}
}

func (s *LiveSessionStore) Create(_ context.Context, session *app.LiveSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codes[session.Code()]; taken {
		return domain.ErrCodeTaken
	}
	s.sessions[session.ID()] = session
	s.codes[session.Code()] = session.ID()
	return nil
}

func (s *LiveSessionStore) Get(liveID string) (*app.LiveSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[liveID]
	return session, ok
}

func (s *LiveSessionStore) ByCode(code string) (*app.LiveSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	liveID, ok := s.codes[code]
	if !ok {
		return nil, false
	}
	session, ok := s.sessions[liveID]
	return session, ok
}

// Release frees the join code; the session stays readable by id for reports.
func (s *LiveSessionStore) Release(_ context.Context, session *app.LiveSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes[session.Code()] == session.ID() {
		delete(s.codes, session.Code())
	}
}

// Len reports the number of tracked sessions.
func (s *LiveSessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
