package state

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ctx = context.Background()

// RedisStore keeps the retained record in a local Redis, for deployments
// where the daemon's host may be reimaged but the record must survive.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to addr and stores the record under key.
func NewRedisStore(addr, key string) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:        addr,
			DialTimeout: 5 * time.Second,
			ReadTimeout: 3 * time.Second,
		}),
		key: key,
	}
}

func (s *RedisStore) Load() ([]byte, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *RedisStore) Save(data []byte) error {
	// No TTL: the record lives until an explicit reset rewrites it.
	return s.client.Set(ctx, s.key, data, 0).Err()
}

// Close releases the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
