package memory

import (
	"context"
	"sync"

	"quiz-live-service/internal/app"
)

// SimulatorSessionStore is an in-memory implementation of app.SimulatorSessionRepository.
type SimulatorSessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*app.SimulatorSession
}

func NewSimulatorSessionStore() *SimulatorSessionStore {
	return &SimulatorSessionStore{sessions: make(map[string]*app.SimulatorSession)}
}

func (s *SimulatorSessionStore) Create(_ context.Context, session *app.SimulatorSession) error {
	s.mu.Lock()
	s.sessions[session.ID()] = session
	s.mu.Unlock()
	return nil
}

func (s *SimulatorSessionStore) Get(sessionID string) (*app.SimulatorSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	return session, ok
}
