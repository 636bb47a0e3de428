package session

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrAlreadyOpen = errors.New("an event session is already open")
	ErrNotOpen     = errors.New("no event session is open")
	ErrEmptyName   = errors.New("event name required")
)

// Runner is started when a session opens and stopped when it closes.
type Runner interface {
	Start() error
	Stop(ctx context.Context) error
}

// Session is the single live event window. Closed -> Open -> Closed.
type Session struct {
	// transition serializes Open and Close. It is never held by readers, so a
	// request draining during Close can still call Current.
	transition sync.Mutex

	mu     sync.RWMutex
	name   string
	open   bool
	runner Runner
}

// New returns a closed session. runner may be nil.
func New(runner Runner) *Session {
	return &Session{runner: runner}
}

// SetRunner attaches the runner after construction, for callers whose runner
// needs the session itself.
func (s *Session) SetRunner(runner Runner) {
	s.transition.Lock()
	defer s.transition.Unlock()
	s.runner = runner
}

// Open binds name and starts the runner. On start failure the session stays
// closed.
func (s *Session) Open(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	s.transition.Lock()
	defer s.transition.Unlock()

	s.mu.Lock()
	if s.open {
		s.mu.Unlock()
		return ErrAlreadyOpen
	}
	s.name = name
	s.open = true
	s.mu.Unlock()

	if s.runner != nil {
		if err := s.runner.Start(); err != nil {
			s.reset()
			return err
		}
	}
	return nil
}

// Close stops the runner, letting in-flight work finish against the open
// session, then clears the name. It returns the name that was closed.
func (s *Session) Close(ctx context.Context) (string, error) {
	s.transition.Lock()
	defer s.transition.Unlock()

	name, open := s.Current()
	if !open {
		return "", ErrNotOpen
	}

	var err error
	if s.runner != nil {
		err = s.runner.Stop(ctx)
	}
	s.reset()
	return name, err
}

// Current reports the bound event name and whether the session is open.
func (s *Session) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name, s.open
}

func (s *Session) reset() {
	s.mu.Lock()
	s.name = ""
	s.open = false
	s.mu.Unlock()
}
