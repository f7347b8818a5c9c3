// Package credstore reads saved platform credentials. Writing them is owned
// by the external login flow; this service only reads at batch start and
// invalidates sessions the platform reports as dead.
package credstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/you-humble/chatmover/internal/domain"
)

type redisCredStore struct {
	rdb redis.Cmdable
}

func NewRedisStore(rdb redis.Cmdable) *redisCredStore {
	return &redisCredStore{rdb: rdb}
}

// Get returns the user's saved session. domain.ErrNoSession when the user
// never logged in or the session was invalidated.
func (s *redisCredStore) Get(ctx context.Context, user domain.UserID) (domain.Credentials, error) {
	res, err := s.rdb.HGetAll(ctx, credsKey(user)).Result()
	if err != nil {
		return domain.Credentials{}, fmt.Errorf("credstore get %d: %w", user, err)
	}

	creds := domain.Credentials{
		Session: res["session"],
		APIHash: res["api_hash"],
	}
	if v := res["api_id"]; v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			creds.APIID = n
		}
	}

	if creds.Session == "" {
		return domain.Credentials{}, domain.ErrNoSession
	}

	return creds, nil
}

// Invalidate clears the user's session fields so a future batch does not
// reuse dead credentials.
func (s *redisCredStore) Invalidate(ctx context.Context, user domain.UserID) error {
	pipe := s.rdb.TxPipeline()
	pipe.HDel(ctx, credsKey(user), "session", "api_id", "api_hash")

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("credstore invalidate %d: %w", user, err)
	}
	return nil
}

func credsKey(user domain.UserID) string {
	return "creds:" + strconv.FormatInt(int64(user), 10)
}
