package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps sessions as prefix:token keys holding the user id, with
// the session lifetime as the key TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Dial connects to addr and pings it with a short timeout.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, Error.New("ping %s: %v", addr, err)
	}
	return client, nil
}

func (s *RedisStore) key(token string) string {
	return s.prefix + ":" + token
}

func (s *RedisStore) Get(ctx context.Context, token string) (int, error) {
	val, err := s.client.Get(ctx, s.key(token)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, Error.Wrap(err)
	}
	userID, err := strconv.Atoi(val)
	if err != nil {
		return 0, Error.New("corrupt session value %q", val)
	}
	return userID, nil
}

func (s *RedisStore) Set(ctx context.Context, token string, userID int, ttl time.Duration) error {
	return Error.Wrap(s.client.Set(ctx, s.key(token), strconv.Itoa(userID), ttl).Err())
}

func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return Error.Wrap(s.client.Del(ctx, s.key(token)).Err())
}
