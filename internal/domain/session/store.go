// Package session holds the client-side record of who is logged in.
//
// A Store is a single-writer state machine. Login and Restore suspend on the
// authenticator; while they are outstanding the state reports Loading. Every
// operation captures a generation number and results that come back for an
// older generation (because of a later Logout, Login or Restore) are dropped.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"hrportal/internal/domain/auth"
)

var ErrSuperseded = errors.New("session operation superseded")

// State is an immutable snapshot of the session.
type State struct {
	Identity      *auth.Identity `json:"user,omitempty"`
	Authenticated bool           `json:"authenticated"`
	Loading       bool           `json:"loading"`
}

func (s State) Role() auth.Role {
	if s.Identity == nil {
		return ""
	}
	return s.Identity.Role
}

type Listener func(State)

type Store struct {
	authenticator auth.Authenticator
	tokens        TokenStore

	mu         sync.Mutex
	state      State
	token      string
	generation uint64
	listeners  []subscription
	nextID     int
}

type subscription struct {
	id int
	fn Listener
}

func New(authenticator auth.Authenticator, tokens TokenStore) *Store {
	if tokens == nil {
		tokens = NewMemoryTokens("")
	}
	return &Store{authenticator: authenticator, tokens: tokens}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Token returns the token backing the current identity, if any.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Subscribe registers fn for every settled transition. The returned func
// removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, subscription{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.listeners {
			if sub.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) Login(ctx context.Context, creds auth.Credentials) (auth.Identity, error) {
	gen := s.begin()

	identity, token, err := s.authenticator.Authenticate(ctx, creds)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		if err == nil {
			s.revoke(ctx, token)
		}
		return auth.Identity{}, ErrSuperseded
	}
	s.state.Loading = false
	if err != nil {
		snapshot, listeners := s.settleLocked()
		s.mu.Unlock()
		notify(listeners, snapshot)
		return auth.Identity{}, err
	}
	previous := s.token
	s.setIdentityLocked(identity, token)
	if err := s.tokens.Save(ctx, token); err != nil {
		slog.Warn("session token save failed", "userId", identity.ID, "err", err)
	}
	snapshot, listeners := s.settleLocked()
	s.mu.Unlock()

	if previous != token {
		s.revoke(ctx, previous)
	}
	notify(listeners, snapshot)
	return identity, nil
}

// Logout clears the session. Calling it on an empty session is a no-op apart
// from clearing the persisted token.
func (s *Store) Logout(ctx context.Context) {
	s.mu.Lock()
	s.generation++
	token := s.token
	changed := s.state.Authenticated || s.state.Loading
	s.clearLocked()
	if err := s.tokens.Clear(ctx); err != nil {
		slog.Warn("session token clear failed", "err", err)
	}
	snapshot, listeners := s.settleLocked()
	s.mu.Unlock()

	s.revoke(ctx, token)
	if changed {
		notify(listeners, snapshot)
	}
}

// Restore re-establishes the session from the persisted token. Failures leave
// the session cleared and are not returned.
func (s *Store) Restore(ctx context.Context) State {
	token, err := s.tokens.Load(ctx)
	if err != nil {
		slog.Warn("session token load failed", "err", err)
		token = ""
	}
	if token == "" {
		s.mu.Lock()
		s.generation++
		s.clearLocked()
		snapshot, listeners := s.settleLocked()
		s.mu.Unlock()
		notify(listeners, snapshot)
		return snapshot
	}

	gen := s.begin()
	identity, err := s.authenticator.Resolve(ctx, token)

	s.mu.Lock()
	if gen != s.generation {
		snapshot := s.snapshotLocked()
		s.mu.Unlock()
		return snapshot
	}
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) {
			slog.Warn("session restore failed", "err", err)
		}
		s.clearLocked()
		if clearErr := s.tokens.Clear(ctx); clearErr != nil {
			slog.Warn("session token clear failed", "err", clearErr)
		}
		snapshot, listeners := s.settleLocked()
		s.mu.Unlock()
		notify(listeners, snapshot)
		return snapshot
	}
	s.state.Loading = false
	s.setIdentityLocked(identity, token)
	snapshot, listeners := s.settleLocked()
	s.mu.Unlock()
	notify(listeners, snapshot)
	return snapshot
}

func (s *Store) begin() uint64 {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.state.Loading = true
	snapshot, listeners := s.settleLocked()
	s.mu.Unlock()
	notify(listeners, snapshot)
	return gen
}

func (s *Store) revoke(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := s.authenticator.Revoke(ctx, token); err != nil {
		slog.Warn("session revoke failed", "err", err)
	}
}

func (s *Store) setIdentityLocked(identity auth.Identity, token string) {
	id := identity
	s.state.Identity = &id
	s.state.Authenticated = true
	s.token = token
}

func (s *Store) clearLocked() {
	s.state = State{}
	s.token = ""
}

func (s *Store) snapshotLocked() State {
	out := s.state
	if out.Identity != nil {
		id := *out.Identity
		out.Identity = &id
	}
	return out
}

func (s *Store) settleLocked() (State, []Listener) {
	listeners := make([]Listener, 0, len(s.listeners))
	for _, sub := range s.listeners {
		listeners = append(listeners, sub.fn)
	}
	return s.snapshotLocked(), listeners
}

func notify(listeners []Listener, state State) {
	for _, fn := range listeners {
		fn(state)
	}
}

func (s State) String() string {
	if s.Identity == nil {
		return fmt.Sprintf("authenticated=%t loading=%t", s.Authenticated, s.Loading)
	}
	return fmt.Sprintf("authenticated=%t loading=%t user=%s role=%s", s.Authenticated, s.Loading, s.Identity.Email, s.Identity.Role)
}
