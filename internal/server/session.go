package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acmecorp/docs-mcp/internal/metrics"
)

// session tracks one streamable HTTP client. It records who opened it but
// carries no authorization state; scopes come from each request's token.
type session struct {
	ID              string
	ProtocolVersion string
	Subject         string
	CreatedAt       time.Time
	LastSeen        time.Time
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
}

// newSessionStore returns a store that forgets sessions idle for longer
// than ttl. A non-positive ttl keeps sessions until they are deleted.
func newSessionStore(ttl time.Duration, m *metrics.Metrics) *sessionStore {
	return &sessionStore{
		sessions: make(map[string]*session),
		ttl:      ttl,
		now:      time.Now,
		metrics:  m,
	}
}

func (s *sessionStore) create(protocolVersion, subject string) session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	sess := &session{
		ID:              uuid.NewString(),
		ProtocolVersion: protocolVersion,
		Subject:         subject,
		CreatedAt:       now,
		LastSeen:        now,
	}
	s.sessions[sess.ID] = sess
	s.metrics.SessionOpened()
	return *sess
}

// get returns the session and refreshes its idle timer.
func (s *sessionStore) get(id string) (session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return session{}, false
	}
	now := s.now()
	if s.expired(sess, now) {
		s.removeLocked(id)
		return session{}, false
	}
	sess.LastSeen = now
	return *sess, true
}

func (s *sessionStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	s.removeLocked(id)
	return true
}

func (s *sessionStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *sessionStore) expired(sess *session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.LastSeen) > s.ttl
}

func (s *sessionStore) sweepLocked(now time.Time) {
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			s.removeLocked(id)
		}
	}
}

func (s *sessionStore) removeLocked(id string) {
	delete(s.sessions, id)
	s.metrics.SessionClosed()
}
