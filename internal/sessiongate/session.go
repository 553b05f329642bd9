package sessiongate

import "sync"

// Loader reads a persisted credential. ok is false when nothing is stored.
type Loader func() (token string, ok bool)

// Session is the in-memory signal for one user agent.
// It reports uninitialized until Restore has run.
type Session struct {
	mu          sync.RWMutex
	initialized bool
	token       string
}

func NewSession() *Session {
	return &Session{}
}

// Restore loads any persisted credential and then opens the initialization barrier.
func (s *Session) Restore(load Loader) {
	var token string
	if load != nil {
		if t, ok := load(); ok {
			token = t
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == "" {
		s.token = token
	}
	s.initialized = true
}

func (s *Session) SignIn(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != ""
}
