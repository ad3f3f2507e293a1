package viewstate

import (
	"context"
	"log/slog"
	"sync"

	"gastos/internal/core"
	applog "gastos/internal/log"
)

// SessionGateway is the subset of gateway.Sessions the session state drives.
type SessionGateway interface {
	SignInWithPassword(ctx context.Context, email, password string) error
	SignUpWithPassword(ctx context.Context, email, password, displayName string) error
	SignInWithGoogleIDToken(ctx context.Context, idToken string) error
	SignOut()
	IsActive() bool
}

type SessionState struct {
	Loading  bool   `json:"loading"`
	Error    string `json:"error,omitempty"`
	IsLogged bool   `json:"isLogged"`
}

type phase int

const (
	phaseIdle phase = iota
	phasePending
)

// Session translates session commands into a SessionState sequence. Only one
// command runs at a time; another one issued meanwhile fails with
// core.ErrCommandPending and leaves the state alone.
type Session struct {
	gw SessionGateway

	mu    sync.Mutex
	state SessionState
	phase phase
	obs   observable[SessionState]
}

func NewSession(gw SessionGateway) *Session {
	return &Session{
		gw:    gw,
		state: SessionState{IsLogged: gw.IsActive()},
	}
}

func (s *Session) SignInWithPassword(ctx context.Context, email, password string) error {
	return s.run(ctx, "password_sign_in", func(ctx context.Context) error {
		return s.gw.SignInWithPassword(ctx, email, password)
	})
}

func (s *Session) SignUpWithPassword(ctx context.Context, email, password, displayName string) error {
	return s.run(ctx, "password_sign_up", func(ctx context.Context) error {
		return s.gw.SignUpWithPassword(ctx, email, password, displayName)
	})
}

func (s *Session) SignInWithGoogleIDToken(ctx context.Context, idToken string) error {
	return s.run(ctx, "google_sign_in", func(ctx context.Context) error {
		return s.gw.SignInWithGoogleIDToken(ctx, idToken)
	})
}

// SignOut ends the session and resets the state to its initial values.
func (s *Session) SignOut() error {
	s.mu.Lock()
	if s.phase == phasePending {
		s.mu.Unlock()
		return core.ErrCommandPending
	}
	s.mu.Unlock()

	s.gw.SignOut()

	s.mu.Lock()
	s.state = SessionState{}
	s.obs.publish(s.state)
	s.mu.Unlock()
	return nil
}

func (s *Session) Snapshot() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Watch streams the state, starting with the current value, until ctx ends.
func (s *Session) Watch(ctx context.Context) <-chan SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.obs.watch(ctx, s.state)
}

func (s *Session) run(ctx context.Context, op string, call func(context.Context) error) error {
	s.mu.Lock()
	if s.phase == phasePending {
		s.mu.Unlock()
		return core.ErrCommandPending
	}
	s.phase = phasePending
	s.state.Loading = true
	s.state.Error = ""
	s.obs.publish(s.state)
	s.mu.Unlock()

	err := call(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phaseIdle
	s.state.Loading = false
	if err != nil {
		s.state.Error = core.Message(err)
		slog.InfoContext(ctx, "Session command failed",
			applog.FieldComponent, applog.ComponentViewState,
			applog.FieldOperation, op,
			applog.FieldError, err)
	} else {
		s.state.IsLogged = true
	}
	s.obs.publish(s.state)
	return err
}
