// Package kvstore abstracts the counter store backing the learning layers
// (feedback ledger, experiments, metrics history). The interface is the small
// Redis subset those layers actually use: plain strings, hash fields, sorted
// sets and capped lists, plus a write batch that maps onto a Redis pipeline so
// concurrent writers never race on read-modify-write.
package kvstore

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("kvstore: not found")

// Z is a sorted-set member with its score.
type Z struct {
	Member string
	Score  float64
}

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Incr(ctx context.Context, key string, delta int64) (int64, error)

	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key, field, value string) error
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error)

	ZIncrBy(ctx context.Context, key string, delta float64, member string) (float64, error)
	ZScore(ctx context.Context, key, member string) (float64, bool, error)
	ZAdd(ctx context.Context, key string, member Z) error
	ZRem(ctx context.Context, key string, member string) error
	// ZRangeWithScores returns members ordered by ascending score over the
	// index range [start, stop]; negative indexes count from the tail.
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error)
	// ZRevRangeWithScores is the descending-score counterpart.
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error)
	ZRangeByScore(ctx context.Context, key string, min, max float64) ([]string, error)

	LPush(ctx context.Context, key string, values ...string) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	// Batch opens a write batch. Mutations queued on it are applied together
	// on Exec; either the whole batch is submitted or none of it is.
	Batch() Batch

	Close() error
}

// Batch queues mutations for a single atomic submission.
type Batch interface {
	Set(key, value string)
	HSet(key, field, value string)
	HIncrBy(key, field string, delta int64)
	HIncrByFloat(key, field string, delta float64)
	ZIncrBy(key string, delta float64, member string)
	ZAdd(key string, member Z)
	ZRem(key string, member string)
	LPush(key string, values ...string)
	LTrim(key string, start, stop int64)

	Exec(ctx context.Context) error
}
