package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/tallyprep/tallyprep/internal/common"
	"github.com/tallyprep/tallyprep/internal/model"
)

// StoreConfig holds session lifetime policy.
type StoreConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration
}

// DefaultStoreConfig returns the default lifetime policy.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		TTL:           1 * time.Hour,
		SweepInterval: 1 * time.Minute,
	}
}

// Store holds live sessions keyed by user identity. The store mutex guards
// only the map; each session's mutable fields are guarded by that session's
// transition lock, which the store takes for expiry checks too. Expiry is
// enforced lazily on access and by a background sweep, so idle sessions are
// freed even if the user never returns.
type Store struct {
	sessions map[string]*Session
	stopCh   chan struct{}
	cfg      StoreConfig
	mu       sync.RWMutex
	stopOnce sync.Once
}

// NewStore creates a session store and starts its expiry sweep.
func NewStore(cfg StoreConfig) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultStoreConfig().TTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultStoreConfig().SweepInterval
	}

	store := &Store{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}

	go store.sweepLoop()

	return store
}

// Create starts a fresh session for the key, destroying any prior session
// for the same user. The session is returned with its transition lock held
// so the caller can finish initializing it before any other goroutine can
// observe it; the caller must Unlock when done.
func (s *Store) Create(key string) (*Session, error) {
	if key == "" {
		return nil, fmt.Errorf("session key is required")
	}

	session := &Session{
		Key:        key,
		State:      StateAwaitingInput,
		Receipt:    model.NewReceipt(),
		LastActive: time.Now(),
	}
	session.mu.Lock()

	s.mu.Lock()
	s.sessions[key] = session
	s.mu.Unlock()

	return session, nil
}

// Get retrieves the live session for the key. An idle session past its TTL
// is expired, removed, and reported as such; the caller must start over.
// Get blocks briefly if a transition is in flight.
func (s *Store) Get(key string) (*Session, error) {
	s.mu.RLock()
	session, exists := s.sessions[key]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no session for %q: %w", key, common.ErrSessionNotFound)
	}

	session.mu.Lock()
	expired := s.expireLocked(session)
	session.mu.Unlock()

	if expired {
		s.Destroy(key)
		return nil, fmt.Errorf("session for %q: %w", key, common.ErrSessionExpired)
	}
	return session, nil
}

// Acquire returns the session for the key with its transition lock held; the
// caller must Unlock after a nil error. A session whose lock is already
// taken is reported busy rather than waited for, and an idle session past
// its TTL is expired and removed.
func (s *Store) Acquire(key string) (*Session, error) {
	s.mu.RLock()
	session, exists := s.sessions[key]
	s.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("no session for %q: %w", key, common.ErrSessionNotFound)
	}

	if !session.TryLock() {
		return nil, fmt.Errorf("session for %q: %w", key, common.ErrSessionBusy)
	}
	if s.expireLocked(session) {
		session.Unlock()
		s.Destroy(key)
		return nil, fmt.Errorf("session for %q: %w", key, common.ErrSessionExpired)
	}
	return session, nil
}

// expireLocked applies the lazy expiry rule. The caller holds the session's
// transition lock.
func (s *Store) expireLocked(session *Session) bool {
	if session.State == StateExpired || time.Since(session.LastActive) > s.cfg.TTL {
		session.State = StateExpired
		return true
	}
	return false
}

// Touch resets the inactivity clock for the key's session.
func (s *Store) Touch(key string) error {
	session, err := s.Acquire(key)
	if err != nil {
		return err
	}
	session.Touch()
	session.Unlock()
	return nil
}

// Destroy releases the session for the key.
func (s *Store) Destroy(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stop shuts down the expiry sweep.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-s.cfg.TTL)
	for key, session := range s.sessions {
		if !session.TryLock() {
			// A transition is in flight, so the session is clearly live.
			continue
		}
		stale := session.State.Terminal() || session.LastActive.Before(cutoff)
		session.Unlock()
		if stale {
			delete(s.sessions, key)
		}
	}
}
