package prefs

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs preferences with one Redis hash per namespace. Useful when
// several gateway instances should agree on conversation assignments.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) hashKey(namespace string) string {
	return "persona:prefs:" + namespace
}

func (s *RedisStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	v, err := s.client.HGet(ctx, s.hashKey(namespace), key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, namespace, key, value string) error {
	return s.client.HSet(ctx, s.hashKey(namespace), key, value).Err()
}

func (s *RedisStore) Delete(ctx context.Context, namespace, key string) error {
	return s.client.HDel(ctx, s.hashKey(namespace), key).Err()
}

func (s *RedisStore) All(ctx context.Context, namespace string) (map[string]string, error) {
	return s.client.HGetAll(ctx, s.hashKey(namespace)).Result()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
