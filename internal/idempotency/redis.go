package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix       = "idempotency:event:"
	completedMarker = "completed"
	failedPrefix    = "failed:"
)

// claimScript grants the claim when no record exists or when only a
// failure record is left behind. Live claims and completion tombstones
// deny it.
const claimScript = `
local current = redis.call("GET", KEYS[1])
if current == false or string.sub(current, 1, 7) == "failed:" then
  redis.call("SET", KEYS[1], ARGV[1], "EX", ARGV[2])
  return 1
end
return 0
`

// completeScript swaps the caller's claim for a completion tombstone.
// The token check stops an expired claimant from tombstoning an event
// another worker has since reclaimed.
const completeScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("SET", KEYS[1], "completed", "EX", ARGV[2])
end
return nil
`

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// failScript swaps the caller's claim for a short-lived failure record
// carrying the error detail.
const failScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("SET", KEYS[1], "failed:" .. ARGV[2], "EX", ARGV[3])
end
return nil
`

type RedisStore struct {
	client   *redis.Client
	claim    *redis.Script
	complete *redis.Script
	release  *redis.Script
	fail     *redis.Script
}

func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		return nil
	}
	return &RedisStore{
		client:   client,
		claim:    redis.NewScript(claimScript),
		complete: redis.NewScript(completeScript),
		release:  redis.NewScript(releaseScript),
		fail:     redis.NewScript(failScript),
	}
}

func (s *RedisStore) TryClaim(ctx context.Context, eventID string, ttl time.Duration) (string, bool, error) {
	if s == nil || s.client == nil {
		return "", false, errors.New("claim store not configured")
	}
	if eventID == "" {
		return "", false, errors.New("event id is empty")
	}
	if ttl <= 0 {
		return "", false, errors.New("claim ttl must be positive")
	}

	token := uuid.NewString()
	seconds := int64(ttl / time.Second)
	granted, err := s.claim.Run(ctx, s.client, []string{keyPrefix + eventID}, token, seconds).Int64()
	if err != nil {
		return "", false, err
	}
	return token, granted == 1, nil
}

func (s *RedisStore) Complete(ctx context.Context, eventID, token string, tombstoneTTL time.Duration) error {
	if s == nil || s.client == nil {
		return nil
	}
	if eventID == "" || token == "" {
		return nil
	}
	seconds := int64(tombstoneTTL / time.Second)
	err := s.complete.Run(ctx, s.client, []string{keyPrefix + eventID}, token, seconds).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (s *RedisStore) Release(ctx context.Context, eventID, token string) error {
	if s == nil || s.client == nil {
		return nil
	}
	if eventID == "" || token == "" {
		return nil
	}
	return s.release.Run(ctx, s.client, []string{keyPrefix + eventID}, token).Err()
}

func (s *RedisStore) Fail(ctx context.Context, eventID, token, detail string, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return nil
	}
	if eventID == "" || token == "" {
		return nil
	}
	seconds := int64(ttl / time.Second)
	err := s.fail.Run(ctx, s.client, []string{keyPrefix + eventID}, token, detail, seconds).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (s *RedisStore) HasBeenHandled(ctx context.Context, eventID string) (bool, error) {
	if s == nil || s.client == nil {
		return false, nil
	}
	value, err := s.client.Get(ctx, keyPrefix+eventID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == completedMarker, nil
}
