package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-live-service/internal/app"
	"quiz-live-service/internal/domain"
)

// LiveSessionStore is a Redis-aware implementation of app.LiveSessionRepository.
// Notes:
//   - Session state stays in a local map so the in-process critical section and timers keep
//     working unchanged.
//   - Redis reserves join codes across instances (SETNX quiz:code:{code}) and marks session
//     liveness (quiz:session:{id}).
//   - Cross-instance fan-out of events is the job of EventBus.
type LiveSessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[string]*app.LiveSession
	codes    map[string]string
}

func NewLiveSessionStore(client *redis.Client, ttl time.Duration) *LiveSessionStore {
	return &LiveSessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[string]*app.LiveSession),
		codes:    make(map[string]string),
	}
}

func (s *LiveSessionStore) Create(ctx context.Context, session *app.LiveSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.codes[session.Code()]; taken {
		return domain.ErrCodeTaken
	}
	ok, err := s.client.SetNX(ctx, codeKey(session.Code()), session.ID(), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("reserve join code: %w", err)
	}
	if !ok {
		return domain.ErrCodeTaken
	}
	s.sessions[session.ID()] = session
	s.codes[session.Code()] = session.ID()
	// best-effort liveness marker
	_ = s.client.Set(ctx, sessionKey(session.ID()), session.Code(), s.ttl).Err()
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

// Release frees the join code locally and in Redis. The session stays readable by id.
func (s *LiveSessionStore) Release(ctx context.Context, session *app.LiveSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.codes[session.Code()] == session.ID() {
		delete(s.codes, session.Code())
	}
	_ = s.client.Del(ctx, codeKey(session.Code()), sessionKey(session.ID())).Err()
}

func codeKey(code string) string {
	return "quiz:code:" + code
}

func sessionKey(liveID string) string {
	return "quiz:session:" + liveID
}
