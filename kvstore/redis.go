package kvstore

import (
	"context"
	"fmt"
	"strconv"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis client. All batch mutations go
// through a single pipeline so concurrent feedback from many conversations
// cannot lose increments.
type RedisStore struct {
	client *backend.Client
}

type RedisOption func(*RedisStore)

// NewRedis connects a store to the given Redis address.
func NewRedis(address, password string, db int, opts ...RedisOption) *RedisStore {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisFromClient(rdb, opts...)
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err == backend.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %q: %w", key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, key, value, 0).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	return s.client.IncrBy(ctx, key, delta).Result()
}

func (s *RedisStore) HGet(ctx context.Context, key, field string) (string, error) {
	val, err := s.client.HGet(ctx, key, field).Result()
	if err == backend.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis hget %q %q: %w", key, field, err)
	}
	return val, nil
}

func (s *RedisStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.client.HGetAll(ctx, key).Result()
}

func (s *RedisStore) HSet(ctx context.Context, key, field, value string) error {
	return s.client.HSet(ctx, key, field, value).Err()
}

func (s *RedisStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	return s.client.HIncrBy(ctx, key, field, delta).Result()
}

func (s *RedisStore) HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	return s.client.HIncrByFloat(ctx, key, field, delta).Result()
}

func (s *RedisStore) ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error) {
	return s.client.ZIncrBy(ctx, key, delta, member).Result()
}

func (s *RedisStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	score, err := s.client.ZScore(ctx, key, member).Result()
	if err == backend.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("redis zscore %q %q: %w", key, member, err)
	}
	return score, true, nil
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, member Z) error {
	return s.client.ZAdd(ctx, key, backend.Z{Score: member.Score, Member: member.Member}).Err()
}

func (s *RedisStore) ZRem(ctx context.Context, key string, member string) error {
	return s.client.ZRem(ctx, key, member).Err()
}

func (s *RedisStore) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error) {
	raw, err := s.client.ZRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange %q: %w", key, err)
	}
	return convertZ(raw), nil
}

func (s *RedisStore) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error) {
	raw, err := s.client.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange %q: %w", key, err)
	}
	return convertZ(raw), nil
}

func (s *RedisStore) ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error) {
	return s.client.ZRangeByScore(ctx, key, &backend.ZRangeBy{
		Min: formatScore(min),
		Max: formatScore(max),
	}).Result()
}

func (s *RedisStore) LPush(ctx context.Context, key string, values ...string) error {
	args := make([]interface{}, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	return s.client.LPush(ctx, key, args...).Err()
}

func (s *RedisStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	return s.client.LTrim(ctx, key, start, stop).Err()
}

func (s *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.LRange(ctx, key, start, stop).Result()
}

func (s *RedisStore) Batch() Batch {
	return &redisBatch{pipe: s.client.Pipeline()}
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisBatch struct {
	pipe backend.Pipeliner
}

func (b *redisBatch) Set(key, value string) {
	b.pipe.Set(context.Background(), key, value, 0)
}

func (b *redisBatch) HSet(key, field, value string) {
	b.pipe.HSet(context.Background(), key, field, value)
}

func (b *redisBatch) HIncrBy(key, field string, delta int64) {
	b.pipe.HIncrBy(context.Background(), key, field, delta)
}

func (b *redisBatch) HIncrByFloat(key, field string, delta float64) {
	b.pipe.HIncrByFloat(context.Background(), key, field, delta)
}

func (b *redisBatch) ZIncrBy(key string, delta float64, member string) {
	b.pipe.ZIncrBy(context.Background(), key, delta, member)
}

func (b *redisBatch) ZAdd(key string, member Z) {
	b.pipe.ZAdd(context.Background(), key, backend.Z{Score: member.Score, Member: member.Member})
}

func (b *redisBatch) ZRem(key string, member string) {
	b.pipe.ZRem(context.Background(), key, member)
}

func (b *redisBatch) LPush(key string, values ...string) {
	args := make([]interface{}, 0, len(values))
	for _, v := range values {
		args = append(args, v)
	}
	b.pipe.LPush(context.Background(), key, args...)
}

func (b *redisBatch) LTrim(key string, start, stop int64) {
	b.pipe.LTrim(context.Background(), key, start, stop)
}

func (b *redisBatch) Exec(ctx context.Context) error {
	if _, err := b.pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

func convertZ(raw []backend.Z) []Z {
	out := make([]Z, 0, len(raw))
	for _, z := range raw {
		member, _ := z.Member.(string)
		out = append(out, Z{Member: member, Score: z.Score})
	}
	return out
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
