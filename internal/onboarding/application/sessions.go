package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"plant-onboarding/internal/observability/metrics"
)

// DefaultSession is used when no caller identity is available.
const DefaultSession = "default"

// Sessions lazily creates and hydrates one Wizard per session key.
type Sessions struct {
	mu       sync.Mutex
	store    Store
	gateway  Gateway
	opts     []Option
	wizards  map[string]*Wizard
	lastSeen map[string]time.Time
	now      func() time.Time
	logger   *log.Logger
}

// NewSessions constructs a session registry sharing store and gateway.
func NewSessions(store Store, gateway Gateway, opts ...Option) (*Sessions, error) {
	if store == nil {
		return nil, errors.New("sessions: nil store")
	}
	if gateway == nil {
		return nil, errors.New("sessions: nil gateway")
	}
	s := &Sessions{
		store:    store,
		gateway:  gateway,
		opts:     opts,
		wizards:  make(map[string]*Wizard),
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
		logger:   log.New(os.Stdout, "", log.LstdFlags),
	}
	// Reuse the wizard logger when one was configured.
	var cfg Wizard
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger != nil {
		s.logger = cfg.logger
	}
	return s, nil
}

// Get returns the hydrated wizard for session.
func (s *Sessions) Get(ctx context.Context, session string) (*Wizard, error) {
	session = strings.TrimSpace(session)
	if session == "" {
		session = DefaultSession
	}

	s.mu.Lock()
	w, ok := s.wizards[session]
	if !ok {
		var err error
		w, err = NewWizard(session, s.store, s.gateway, s.opts...)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		s.wizards[session] = w
		metrics.SetActiveSessions(len(s.wizards))
	}
	s.lastSeen[session] = s.now()
	s.mu.Unlock()

	if err := w.Hydrate(ctx); err != nil {
		return nil, fmt.Errorf("sessions: %s: %w", session, err)
	}
	return w, nil
}

// EvictIdle drops wizards not requested within idle. Wizards with a
// validation in flight are kept until the next sweep. State is already
// persisted, so an evicted session rehydrates on its next request.
func (s *Sessions) EvictIdle(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-idle)
	evicted := 0
	for key, w := range s.wizards {
		if s.lastSeen[key].After(cutoff) || w.Busy() {
			continue
		}
		w.Close()
		delete(s.wizards, key)
		delete(s.lastSeen, key)
		evicted++
	}
	if evicted > 0 {
		metrics.SetActiveSessions(len(s.wizards))
	}
	return evicted
}

// RunEviction sweeps idle sessions every interval until ctx is done.
func (s *Sessions) RunEviction(ctx context.Context, idle, interval time.Duration) {
	if idle <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(idle); n > 0 {
				s.logger.Printf("sessions evicted: count=%d idle=%s active=%d", n, idle, s.Len())
			}
		}
	}
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.wizards)
}

// Close stops every wizard's timers.
func (s *Sessions) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, w := range s.wizards {
		w.Close()
		delete(s.wizards, key)
		delete(s.lastSeen, key)
	}
	metrics.SetActiveSessions(0)
}
