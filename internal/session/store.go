package session

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store tracks the per-session "ticket already submitted" guard. The flag
// blocks a duplicate ticket when the creation form is resubmitted (browser
// refresh); fetching the form again clears it. Entries expire on their own
// so an abandoned session never blocks a later submission.
type Store interface {
	AlreadySubmitted(ctx context.Context, sessionID string) (bool, error)
	MarkSubmitted(ctx context.Context, sessionID string) error
	ClearSubmitted(ctx context.Context, sessionID string) error
}

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore builds a Redis-backed session store.
func NewRedisStore(client *redis.Client, ttl time.Duration) Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &redisStore{client: client, ttl: ttl}
}

func guardKey(sessionID string) string {
	return "session:" + sessionID + ":ticket_saved"
}

func (s *redisStore) AlreadySubmitted(ctx context.Context, sessionID string) (bool, error) {
	val, err := s.client.Get(ctx, guardKey(sessionID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return val == "1", nil
}

func (s *redisStore) MarkSubmitted(ctx context.Context, sessionID string) error {
	return s.client.Set(ctx, guardKey(sessionID), "1", s.ttl).Err()
}

func (s *redisStore) ClearSubmitted(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, guardKey(sessionID)).Err()
}
