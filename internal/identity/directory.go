// Package identity is the static user directory the session authenticates against.
package identity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/expenseflow/internal/domain/user"
	"github.com/geocoder89/expenseflow/internal/security"
)

// ErrInvalidCredentials is the only error a failed login returns, whichever
// of email or password was wrong.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Seed is a directory entry with its plain secret, hashed on load.
type Seed struct {
	User     user.User
	Password string
}

type Directory struct {
	mu      sync.RWMutex
	byID    map[string]user.User
	byEmail map[string]string // email -> id

	// compared against when the email is unknown so both failure paths cost a bcrypt round
	dummyHash string
}

// NewDirectory hashes every seed secret with cost and indexes the users.
// Duplicate ids or emails and unknown roles are rejected.
func NewDirectory(seeds []Seed, cost int) (*Directory, error) {
	d := &Directory{
		byID:    make(map[string]user.User, len(seeds)),
		byEmail: make(map[string]string, len(seeds)),
	}

	dummy, err := security.HashPassword("not-a-real-secret", cost)
	if err != nil {
		return nil, fmt.Errorf("hash dummy secret: %w", err)
	}
	d.dummyHash = dummy

	for _, s := range seeds {
		u := s.User
		if u.ID == "" || u.Email == "" {
			return nil, fmt.Errorf("seed user needs id and email: %+v", u)
		}
		if !u.Role.Valid() {
			return nil, fmt.Errorf("seed user %s has unknown role %q", u.ID, u.Role)
		}
		if _, dup := d.byID[u.ID]; dup {
			return nil, fmt.Errorf("duplicate user id %s", u.ID)
		}
		if _, dup := d.byEmail[u.Email]; dup {
			return nil, fmt.Errorf("duplicate user email %s", u.Email)
		}

		hash, err := security.HashPassword(s.Password, cost)
		if err != nil {
			return nil, fmt.Errorf("hash secret for %s: %w", u.ID, err)
		}
		u.PasswordHash = hash

		d.byID[u.ID] = u
		d.byEmail[u.Email] = u.ID
	}

	return d, nil
}

// Authenticate resolves an exact email match and verifies the password.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (user.User, error) {
	if err := ctx.Err(); err != nil {
		return user.User{}, err
	}

	d.mu.RLock()
	id, ok := d.byEmail[email]
	u := d.byID[id]
	d.mu.RUnlock()

	if !ok {
		_ = security.CheckPassword(d.dummyHash, password)
		return user.User{}, ErrInvalidCredentials
	}

	if err := security.CheckPassword(u.PasswordHash, password); err != nil {
		return user.User{}, ErrInvalidCredentials
	}

	return u, nil
}

func (d *Directory) ByID(ctx context.Context, id string) (user.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.byID[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

func (d *Directory) ByEmail(ctx context.Context, email string) (user.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byEmail[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return d.byID[id], nil
}

// All returns every user ordered by id.
func (d *Directory) All(ctx context.Context) []user.User {
	d.mu.RLock()
	out := make([]user.User, 0, len(d.byID))
	for _, u := range d.byID {
		out = append(out, u)
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Departments returns the distinct non-empty departments, sorted.
func (d *Directory) Departments(ctx context.Context) []string {
	seen := map[string]struct{}{}
	for _, u := range d.All(ctx) {
		dept := strings.TrimSpace(u.Department)
		if dept != "" {
			seen[dept] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for dept := range seen {
		out = append(out, dept)
	}
	sort.Strings(out)
	return out
}

// TouchLogin records a successful login and returns the updated user.
func (d *Directory) TouchLogin(ctx context.Context, id string, at time.Time) (user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.byID[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}

	t := at
	u.LastLoginAt = &t
	d.byID[id] = u
	return u, nil
}
