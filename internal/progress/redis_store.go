package progress

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/pacedsend/internal/model"
)

const DefaultRedisKey = "pacedsend:cursor"

type RedisStore struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisStore stores the cursor under key. A ttl of zero keeps it forever.
func NewRedisStore(rdb *redis.Client, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{rdb: rdb, key: key, ttl: ttl}
}

func (s *RedisStore) Load(ctx context.Context) (model.Cursor, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Cursor{}, nil
	}
	if err != nil {
		return model.Cursor{}, err
	}
	return decodeCursor(raw, "redis"), nil
}

func (s *RedisStore) Save(ctx context.Context, c model.Cursor) error {
	b, err := encodeCursor(c)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key, b, s.ttl).Err()
}
