package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Options struct {
	// AllowSwitchUser enables the password-less SwitchUser demo shortcut.
	AllowSwitchUser bool
	Now             func() time.Time
	// NewScope mints the scope a session moves to when it signs in.
	NewScope func() string
}

// Manager owns one Session per signed-in client scope. Scopes with nothing
// persisted get a throwaway session per request, so anonymous traffic does
// not accumulate here.
type Manager struct {
	store Store
	dir   Directory
	log   *slog.Logger
	opts  Options

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(store Store, dir Directory, log *slog.Logger, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewScope == nil {
		opts.NewScope = uuid.NewString
	}
	if log == nil {
		log = slog.Default()
	}

	return &Manager{
		store:    store,
		dir:      dir,
		log:      log,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Get returns the scope's session. An unknown scope is restored from the
// store and only kept when that finds a signed-in user.
func (m *Manager) Get(ctx context.Context, scope string) *Session {
	m.mu.Lock()
	s, ok := m.sessions[scope]
	m.mu.Unlock()

	if !ok {
		s = newSession(scope, m.store, m.dir, m.log, m.opts, m)
		s.Restore(ctx)

		if s.signedIn() {
			m.mu.Lock()
			if existing, ok := m.sessions[scope]; ok {
				s = existing
			} else {
				m.sessions[scope] = s
			}
			m.mu.Unlock()
		}
	}

	s.touch(m.opts.Now())
	return s
}

// adopt files s under its new scope after a sign-in moved it off old.
func (m *Manager) adopt(old, scope string, s *Session) {
	m.mu.Lock()
	if m.sessions[old] == s {
		delete(m.sessions, old)
	}
	m.sessions[scope] = s
	m.mu.Unlock()
}

// release forgets a signed-out session.
func (m *Manager) release(scope string, s *Session) {
	m.mu.Lock()
	if m.sessions[scope] == s {
		delete(m.sessions, scope)
	}
	m.mu.Unlock()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than maxIdle and reports how many went.
// Dropped scopes restore from the store on their next request. Expired keys
// are pruned from stores that do not expire them on their own.
func (m *Manager) Sweep(maxIdle time.Duration) int {
	if p, ok := m.store.(interface{ Prune() int }); ok {
		p.Prune()
	}

	cutoff := m.opts.Now().Add(-maxIdle)

	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for scope, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, scope)
			n++
		}
	}
	return n
}

// RunSweeper sweeps every interval until ctx is done.
func (m *Manager) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(maxIdle); n > 0 {
				m.log.Debug("idle sessions swept", "count", n)
			}
		}
	}
}
