package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoSession means nothing is persisted for the scope.
var ErrNoSession = errors.New("no saved session")

// Store persists the current user id per client scope. It stands in for the
// browser-local key the session is restored from.
type Store interface {
	Load(ctx context.Context, scope string) (string, error)
	Save(ctx context.Context, scope, userID string) error
	Clear(ctx context.Context, scope string) error
}

// MemoryStore keeps keys in process. Like RedisStore, a key lives for ttl
// after its last save; ttl <= 0 means no expiry.
type MemoryStore struct {
	mu   sync.RWMutex
	ttl  time.Duration
	keys map[string]memoryKey
	now  func() time.Time
}

type memoryKey struct {
	userID string
	exp    time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, keys: make(map[string]memoryKey), now: time.Now}
}

func (s *MemoryStore) Load(ctx context.Context, scope string) (string, error) {
	s.mu.RLock()
	k, ok := s.keys[scope]
	s.mu.RUnlock()

	if !ok || s.expired(k, s.now()) {
		return "", ErrNoSession
	}
	return k.userID, nil
}

func (s *MemoryStore) Save(ctx context.Context, scope, userID string) error {
	k := memoryKey{userID: userID}
	if s.ttl > 0 {
		k.exp = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	s.keys[scope] = k
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context, scope string) error {
	s.mu.Lock()
	delete(s.keys, scope)
	s.mu.Unlock()
	return nil
}

// Prune drops expired keys and reports how many went.
func (s *MemoryStore) Prune() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for scope, k := range s.keys {
		if s.expired(k, now) {
			delete(s.keys, scope)
			n++
		}
	}
	return n
}

func (s *MemoryStore) expired(k memoryKey, now time.Time) bool {
	return !k.exp.IsZero() && now.After(k.exp)
}

const keyPrefix = "expenseflow:scope:"

// Key is the persisted key holding a scope's current user id.
func Key(scope string) string {
	return keyPrefix + scope + ":currentUserId"
}

type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore keeps keys for ttl after the last save; ttl <= 0 means no expiry.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context, scope string) (string, error) {
	id, err := s.rdb.Get(ctx, Key(scope)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNoSession
	}
	if err != nil {
		return "", fmt.Errorf("load session key: %w", err)
	}
	return id, nil
}

func (s *RedisStore) Save(ctx context.Context, scope, userID string) error {
	if err := s.rdb.Set(ctx, Key(scope), userID, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session key: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, scope string) error {
	if err := s.rdb.Del(ctx, Key(scope)).Err(); err != nil {
		return fmt.Errorf("clear session key: %w", err)
	}
	return nil
}
