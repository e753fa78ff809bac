package driver

import (
	"sync"
	"time"
)

// State is the observable connection state spec.md §4.G lists:
// {connected, healthy, lastHealthCheck, attempts, lastError}.
type State struct {
	mu              sync.RWMutex
	connected       bool
	healthy         bool
	lastHealthCheck time.Time
	attempts        int
	lastError       error
}

// StateView is a point-in-time, lock-free copy of State, safe to return and
// pass by value (State itself embeds a sync.RWMutex and must never be
// copied).
type StateView struct {
	connected       bool
	healthy         bool
	lastHealthCheck time.Time
	attempts        int
	lastError       error
}

func (s *State) snapshot() StateView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return StateView{
		connected:       s.connected,
		healthy:         s.healthy,
		lastHealthCheck: s.lastHealthCheck,
		attempts:        s.attempts,
		lastError:       s.lastError,
	}
}

func (v StateView) Connected() bool            { return v.connected }
func (v StateView) Healthy() bool              { return v.healthy }
func (v StateView) Attempts() int              { return v.attempts }
func (v StateView) LastError() error           { return v.lastError }
func (v StateView) LastHealthCheck() time.Time { return v.lastHealthCheck }

func (s *State) Connected() bool { s.mu.RLock(); defer s.mu.RUnlock(); return s.connected }
func (s *State) Healthy() bool   { s.mu.RLock(); defer s.mu.RUnlock(); return s.healthy }
func (s *State) Attempts() int   { s.mu.RLock(); defer s.mu.RUnlock(); return s.attempts }
func (s *State) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}
func (s *State) LastHealthCheck() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastHealthCheck
}

func (s *State) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *State) setHealthCheck(healthy bool, err error) {
	s.mu.Lock()
	s.healthy = healthy
	s.lastHealthCheck = time.Now()
	s.lastError = err
	s.mu.Unlock()
}

func (s *State) recordAttempt(err error) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	s.lastError = err
	return s.attempts
}

func (s *State) resetAttempts() {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
}
