package reservations

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tablebook/internal/shared/constants"

	"github.com/redis/go-redis/v9"
)

type ClaimState int

const (
	// ClaimAcquired means the caller owns the key and must Complete or Release it
	ClaimAcquired ClaimState = iota
	// ClaimPending means another request holds the key right now
	ClaimPending
	// ClaimCompleted means the key already produced a reservation
	ClaimCompleted
)

const pendingMarker = "__pending__"

// IdempotencyStore remembers which reservation a client key produced
type IdempotencyStore interface {
	// Claim returns the stored reservation id when the state is ClaimCompleted
	Claim(ctx context.Context, businessID, key string) (ClaimState, string, error)
	Complete(ctx context.Context, businessID, key, reservationID string) error
	Release(ctx context.Context, businessID, key string) error
}

// Lua script: claim the key unless it is already set.
// Returns "" on a fresh claim, otherwise the current value.
var claimScript = redis.NewScript(`
-- KEYS[1] = idempotency key
-- ARGV[1] = pending marker
-- ARGV[2] = pending ttl (ms)
local current = redis.call("GET", KEYS[1])
if current then
    return current
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return ""
`)

// Lua script: drop the key only while it still holds the pending marker
var releaseScript = redis.NewScript(`
-- KEYS[1] = idempotency key
-- ARGV[1] = pending marker
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// PreloadScripts loads the Lua scripts so the first Claim runs as EVALSHA
func PreloadScripts(ctx context.Context, rdb *redis.Client) error {
	for _, s := range []*redis.Script{claimScript, releaseScript} {
		if err := s.Load(ctx, rdb).Err(); err != nil {
			return fmt.Errorf("load idempotency script: %w", err)
		}
	}
	return nil
}

type redisIdempotencyStore struct {
	rdb        *redis.Client
	ttl        time.Duration
	pendingTTL time.Duration
}

func NewRedisIdempotencyStore(rdb *redis.Client, ttl, pendingTTL time.Duration) IdempotencyStore {
	return &redisIdempotencyStore{rdb: rdb, ttl: ttl, pendingTTL: pendingTTL}
}

func (s *redisIdempotencyStore) Claim(ctx context.Context, businessID, key string) (ClaimState, string, error) {
	v, err := claimScript.Run(ctx, s.rdb,
		[]string{constants.BuildIdempotencyKey(businessID, key)},
		pendingMarker, s.pendingTTL.Milliseconds(),
	).Text()
	if err != nil {
		return 0, "", fmt.Errorf("%w: claim idempotency key: %w", ErrStoreUnavailable, err)
	}
	return claimResult(v)
}

func (s *redisIdempotencyStore) Complete(ctx context.Context, businessID, key, reservationID string) error {
	err := s.rdb.Set(ctx, constants.BuildIdempotencyKey(businessID, key), reservationID, s.ttl).Err()
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}

func (s *redisIdempotencyStore) Release(ctx context.Context, businessID, key string) error {
	err := releaseScript.Run(ctx, s.rdb,
		[]string{constants.BuildIdempotencyKey(businessID, key)},
		pendingMarker,
	).Err()
	if err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

func claimResult(v string) (ClaimState, string, error) {
	switch v {
	case "":
		return ClaimAcquired, "", nil
	case pendingMarker:
		return ClaimPending, "", nil
	default:
		return ClaimCompleted, v, nil
	}
}

// memoryIdempotencyStore keeps keys in process; used when Redis is not configured
type memoryIdempotencyStore struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	pendingTTL time.Duration
	now        func() time.Time
}

type memoryEntry struct {
	value   string
	expires time.Time
}

func NewMemoryIdempotencyStore(ttl, pendingTTL time.Duration) IdempotencyStore {
	return &memoryIdempotencyStore{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		pendingTTL: pendingTTL,
		now:        time.Now,
	}
}

func (s *memoryIdempotencyStore) Claim(_ context.Context, businessID, key string) (ClaimState, string, error) {
	k := constants.BuildIdempotencyKey(businessID, key)
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.evict(now)

	if e, ok := s.entries[k]; ok {
		return claimResult(e.value)
	}
	s.entries[k] = memoryEntry{value: pendingMarker, expires: now.Add(s.pendingTTL)}
	return ClaimAcquired, "", nil
}

func (s *memoryIdempotencyStore) Complete(_ context.Context, businessID, key, reservationID string) error {
	s.mu.Lock()
	s.entries[constants.BuildIdempotencyKey(businessID, key)] = memoryEntry{value: reservationID, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

func (s *memoryIdempotencyStore) Release(_ context.Context, businessID, key string) error {
	k := constants.BuildIdempotencyKey(businessID, key)
	s.mu.Lock()
	if e, ok := s.entries[k]; ok && e.value == pendingMarker {
		delete(s.entries, k)
	}
	s.mu.Unlock()
	return nil
}

func (s *memoryIdempotencyStore) evict(now time.Time) {
	for k, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, k)
		}
	}
}
