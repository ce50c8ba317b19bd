package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/samcharles93/framestep/internal/logger"
	"github.com/samcharles93/framestep/internal/metrics"
)

// Store holds live sessions keyed by ID.
type Store struct {
	log     logger.Logger
	metrics *metrics.Collector

	mu       sync.RWMutex
	sessions map[string]Session
}

func NewStore(log logger.Logger, m *metrics.Collector) *Store {
	if log == nil {
		log = logger.Discard()
	}
	return &Store{
		log:      log,
		metrics:  m,
		sessions: make(map[string]Session),
	}
}

// Create builds a session from spec under a fresh ID and stores it. Options
// given here are applied after the store's own logger and metrics.
func (s *Store) Create(spec Spec, opts ...Option) (Session, error) {
	base := []Option{WithID(uuid.NewString()), WithLogger(s.log), WithMetrics(s.metrics)}
	sess, err := New(spec, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	s.metrics.SessionOpened()
	s.log.Info("session created", "session", sess.ID(), "backend", spec.backend(), "max_tokens", spec.MaxTokens)
	return sess, nil
}

// Add stores a session built elsewhere, such as one from Host. It fails when
// the ID is already taken.
func (s *Store) Add(sess Session) error {
	s.mu.Lock()
	if _, ok := s.sessions[sess.ID()]; ok {
		s.mu.Unlock()
		return fmt.Errorf("session %s already exists", sess.ID())
	}
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()

	s.metrics.SessionOpened()
	s.log.Info("session added", "session", sess.ID())
	return nil
}

func (s *Store) Get(id string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess, nil
}

// Delete removes the session and cancels its frame if it is still live, so a
// run in progress on it stops at its next step.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.sessions, id)
	s.mu.Unlock()

	sess.Interrupt()
	s.metrics.SessionClosed()
	s.log.Info("session deleted", "session", id)
	return nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
