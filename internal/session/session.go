// Package session tracks who is signed in for each client scope.
//
// A Session starts loading, resolves once through Restore, and is then
// changed only by Login, Logout and SwitchUser. It holds a user id, not a
// user: the identity directory stays the source of truth for roles.
//
// Signing in moves the session to a freshly minted scope and clears the key
// under the old one, so a scope known before sign-in never carries a user.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/geocoder89/expenseflow/internal/domain/user"
	"github.com/geocoder89/expenseflow/internal/identity"
)

var (
	ErrSwitchDisabled = errors.New("switching users is disabled")
	ErrNotSignedIn    = errors.New("not signed in")
)

// Directory is the slice of the identity store a session needs.
type Directory interface {
	Authenticate(ctx context.Context, email, password string) (user.User, error)
	ByID(ctx context.Context, id string) (user.User, error)
	TouchLogin(ctx context.Context, id string, at time.Time) (user.User, error)
}

type State struct {
	User            *user.User `json:"user"`
	IsAuthenticated bool       `json:"isAuthenticated"`
	IsLoading       bool       `json:"isLoading"`
}

// registry is told when a session changes scope or signs out.
type registry interface {
	adopt(old, scope string, s *Session)
	release(scope string, s *Session)
}

type Session struct {
	store    Store
	dir      Directory
	log      *slog.Logger
	now      func() time.Time
	newScope func() string
	reg      registry

	allowSwitch bool

	mu       sync.Mutex
	scope    string
	userID   string
	loading  bool
	restored bool
	lastSeen time.Time
	inFlight atomic.Bool
}

func newSession(scope string, store Store, dir Directory, log *slog.Logger, opts Options, reg registry) *Session {
	return &Session{
		scope:       scope,
		store:       store,
		dir:         dir,
		log:         log,
		now:         opts.Now,
		newScope:    opts.NewScope,
		reg:         reg,
		allowSwitch: opts.AllowSwitchUser,
		loading:     true,
		lastSeen:    opts.Now(),
	}
}

// Scope is the client scope the session currently answers to. It changes on
// every successful sign-in.
func (s *Session) Scope() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// Restore reads the persisted user id once. Any failure, including an
// unreachable store, leaves the session signed out.
func (s *Session) Restore(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.restored {
		return
	}
	s.restored = true
	s.loading = false
	s.userID = ""

	id, err := s.store.Load(ctx, s.scope)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			s.log.WarnContext(ctx, "session restore failed", "err", err)
		}
		return
	}

	if _, err := s.dir.ByID(ctx, id); err != nil {
		s.log.InfoContext(ctx, "saved session user no longer exists", "user_id", id)
		return
	}

	s.userID = id
}

// State resolves the current user through the directory.
func (s *Session) State(ctx context.Context) State {
	s.mu.Lock()
	id, loading := s.userID, s.loading
	s.mu.Unlock()

	if id == "" {
		return State{IsLoading: loading}
	}

	u, err := s.dir.ByID(ctx, id)
	if err != nil {
		return State{IsLoading: loading}
	}
	return State{User: &u, IsAuthenticated: true, IsLoading: loading}
}

// Current returns the signed-in user, if any.
func (s *Session) Current(ctx context.Context) (user.User, bool) {
	st := s.State(ctx)
	if !st.IsAuthenticated {
		return user.User{}, false
	}
	return *st.User, true
}

// Login verifies credentials against the directory. On failure the session
// is signed out and identity.ErrInvalidCredentials is returned regardless of
// which credential was wrong.
func (s *Session) Login(ctx context.Context, email, password string) (user.User, error) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	u, err := s.dir.Authenticate(ctx, email, password)
	if err != nil {
		s.signOut(ctx)
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return user.User{}, identity.ErrInvalidCredentials
		}
		return user.User{}, err
	}

	if touched, err := s.dir.TouchLogin(ctx, u.ID, s.now()); err == nil {
		u = touched
	}

	s.signIn(ctx, u.ID)
	return u, nil
}

// Logout clears the persisted key and signs the session out.
func (s *Session) Logout(ctx context.Context) {
	s.signOut(ctx)
}

// SwitchUser signs in as id without a password. It is a demo shortcut and
// only works when the manager was built with switching enabled.
func (s *Session) SwitchUser(ctx context.Context, id string) (user.User, error) {
	if !s.allowSwitch {
		return user.User{}, ErrSwitchDisabled
	}

	u, err := s.dir.ByID(ctx, id)
	if err != nil {
		return user.User{}, err
	}

	s.signIn(ctx, u.ID)
	return u, nil
}

// BeginSubmit marks a submission as in flight. It returns false while
// another submission for this scope is outstanding.
func (s *Session) BeginSubmit() (release func(), ok bool) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return func() {}, false
	}
	return func() { s.inFlight.Store(false) }, true
}

func (s *Session) signIn(ctx context.Context, id string) {
	next := s.newScope()

	s.mu.Lock()
	old := s.scope
	s.scope = next
	s.userID = id
	s.loading = false
	s.restored = true
	s.mu.Unlock()

	if err := s.store.Clear(ctx, old); err != nil {
		s.log.WarnContext(ctx, "session clear failed", "err", err)
	}
	if err := s.store.Save(ctx, next, id); err != nil {
		// the in-process session still works; only restore after restart is lost
		s.log.WarnContext(ctx, "session save failed", "err", err)
	}

	if s.reg != nil {
		s.reg.adopt(old, next, s)
	}
}

func (s *Session) signOut(ctx context.Context) {
	s.mu.Lock()
	scope := s.scope
	s.userID = ""
	s.loading = false
	s.restored = true
	s.mu.Unlock()

	if err := s.store.Clear(ctx, scope); err != nil {
		s.log.WarnContext(ctx, "session clear failed", "err", err)
	}

	if s.reg != nil {
		s.reg.release(scope, s)
	}
}

func (s *Session) signedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID != ""
}

func (s *Session) touch(at time.Time) {
	s.mu.Lock()
	s.lastSeen = at
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
