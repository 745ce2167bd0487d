package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-mock-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-mock-interviewer/internal/interview"
)

const (
	keyPrefix  = "interview:session:"
	lockPrefix = "interview:lock:"

	// DefaultLockTTL bounds how long a crashed holder blocks the session.
	DefaultLockTTL = 2 * time.Minute
	// DefaultLockWait is how long Lock waits for a busy session.
	DefaultLockWait = 30 * time.Second
)

var errLockHeld = errors.New("session lock held")

// releaseScript deletes the lock only if the caller still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Factory rebuilds a session from a snapshot with live collaborators.
type Factory func(snap interview.Snapshot) (*interview.Session, error)

// Redis stores session snapshots as JSON so sessions survive restarts and
// can be served by any replica. Every Put refreshes the TTL. Callers that
// read, modify and write a session back must hold Lock for the user, or a
// concurrent writer on another replica can overwrite their turn.
type Redis struct {
	rdb      redis.UniversalClient
	ttl      time.Duration
	factory  Factory
	lockTTL  time.Duration
	lockWait time.Duration
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithLockTimings sets the lock expiry and how long Lock waits to acquire it.
// Non-positive values keep the defaults.
func WithLockTimings(ttl, wait time.Duration) RedisOption {
	return func(r *Redis) {
		if ttl > 0 {
			r.lockTTL = ttl
		}
		if wait > 0 {
			r.lockWait = wait
		}
	}
}

// NewRedis builds a Redis-backed store.
func NewRedis(rdb redis.UniversalClient, ttl time.Duration, factory Factory, opts ...RedisOption) *Redis {
	r := &Redis{rdb: rdb, ttl: ttl, factory: factory, lockTTL: DefaultLockTTL, lockWait: DefaultLockWait}
	for _, o := range opts {
		o(r)
	}
	return r
}

func key(userID string) string { return keyPrefix + userID }

// Put implements Store.
func (r *Redis) Put(ctx context.Context, userID string, s *interview.Session) error {
	if userID == "" || s == nil {
		return fmt.Errorf("%w: user id and session required", domain.ErrInvalidArgument)
	}
	b, err := json.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("op=registry.redis.put: %w", err)
	}
	if err := r.rdb.Set(ctx, key(userID), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("op=registry.redis.put: %w", err)
	}
	return nil
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, userID string) (*interview.Session, error) {
	b, err := r.rdb.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("op=registry.redis.get: %w", domain.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("op=registry.redis.get: %w", err)
	}
	var snap interview.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("op=registry.redis.get: decode snapshot: %w", err)
	}
	s, err := r.factory(snap)
	if err != nil {
		return nil, fmt.Errorf("op=registry.redis.get: %w", err)
	}
	return s, nil
}

// Delete implements Store.
func (r *Redis) Delete(ctx context.Context, userID string) error {
	if err := r.rdb.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("op=registry.redis.delete: %w", err)
	}
	return nil
}

// Len implements Store by scanning the session key space. A failed scan is
// logged and the keys counted so far are returned.
func (r *Redis) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	n := 0
	iter := r.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		slog.Error("session key scan failed", slog.Int("counted", n), slog.Any("error", err))
	}
	return n
}

// Lock implements Locker with SET NX PX on interview:lock:{user}. It retries
// until the lock is free or the wait runs out, which yields domain.ErrConflict.
// Release only deletes the key while it still holds this caller's token.
func (r *Redis) Lock(ctx context.Context, userID string) (func(), error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", domain.ErrInvalidArgument)
	}
	k := lockPrefix + userID
	token := uuid.NewString()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 250 * time.Millisecond
	bo.MaxElapsedTime = r.lockWait
	err := backoff.Retry(func() error {
		ok, err := r.rdb.SetNX(ctx, k, token, r.lockTTL).Result()
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errLockHeld
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	switch {
	case errors.Is(err, errLockHeld):
		return nil, fmt.Errorf("op=registry.redis.lock: %w: session busy", domain.ErrConflict)
	case err != nil:
		return nil, fmt.Errorf("op=registry.redis.lock: %w", err)
	}

	return func() {
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, r.rdb, []string{k}, token).Err(); err != nil {
			slog.Warn("session lock release failed", slog.String("user_id", userID), slog.Any("error", err))
		}
	}, nil
}
