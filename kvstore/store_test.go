package kvstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

// Both backends must expose the same observable behavior; every test below
// runs against each of them.
func stores(t *testing.T) map[string]Store {
	t.Helper()
	mr := miniredis.RunT(t)
	redis := NewRedis(mr.Addr(), "", 0)
	t.Cleanup(func() { redis.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"redis":  redis,
	}
}

func TestGetSet(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := s.Get(ctx, "missing"); err != ErrNotFound {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := s.Set(ctx, "k", "v"); err != nil {
				t.Fatalf("set: %v", err)
			}
			val, err := s.Get(ctx, "k")
			if err != nil || val != "v" {
				t.Fatalf("get: %q, %v", val, err)
			}
		})
	}
}

func TestIncr(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if n, err := s.Incr(ctx, "counter", 2); err != nil || n != 2 {
				t.Fatalf("incr: %d, %v", n, err)
			}
			if n, err := s.Incr(ctx, "counter", 3); err != nil || n != 5 {
				t.Fatalf("incr: %d, %v", n, err)
			}
		})
	}
}

func TestHashOperations(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := s.HGet(ctx, "h", "missing"); err != ErrNotFound {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			if err := s.HSet(ctx, "h", "name", "sales"); err != nil {
				t.Fatalf("hset: %v", err)
			}
			if n, err := s.HIncrBy(ctx, "h", "total", 3); err != nil || n != 3 {
				t.Fatalf("hincrby: %d, %v", n, err)
			}
			if f, err := s.HIncrByFloat(ctx, "h", "confidence", 0.5); err != nil || f != 0.5 {
				t.Fatalf("hincrbyfloat: %v, %v", f, err)
			}
			all, err := s.HGetAll(ctx, "h")
			if err != nil {
				t.Fatalf("hgetall: %v", err)
			}
			if all["name"] != "sales" || all["total"] != "3" || all["confidence"] != "0.5" {
				t.Fatalf("unexpected hash: %v", all)
			}
		})
	}
}

func TestSortedSetOperations(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, ok, err := s.ZScore(ctx, "z", "missing"); err != nil || ok {
				t.Fatalf("zscore on missing member: ok=%v err=%v", ok, err)
			}
			s.ZIncrBy(ctx, "z", 3, "a")
			s.ZIncrBy(ctx, "z", 1, "b")
			s.ZAdd(ctx, "z", Z{Member: "c", Score: 2})

			score, ok, err := s.ZScore(ctx, "z", "a")
			if err != nil || !ok || score != 3 {
				t.Fatalf("zscore: %v, %v, %v", score, ok, err)
			}

			asc, err := s.ZRangeWithScores(ctx, "z", 0, -1)
			if err != nil {
				t.Fatalf("zrange: %v", err)
			}
			if len(asc) != 3 || asc[0].Member != "b" || asc[2].Member != "a" {
				t.Fatalf("ascending order wrong: %v", asc)
			}
			desc, err := s.ZRevRangeWithScores(ctx, "z", 0, 0)
			if err != nil || len(desc) != 1 || desc[0].Member != "a" {
				t.Fatalf("descending head wrong: %v, %v", desc, err)
			}

			byScore, err := s.ZRangeByScore(ctx, "z", 2, 3)
			if err != nil || len(byScore) != 2 {
				t.Fatalf("zrangebyscore: %v, %v", byScore, err)
			}

			if err := s.ZRem(ctx, "z", "a"); err != nil {
				t.Fatalf("zrem: %v", err)
			}
			if _, ok, _ := s.ZScore(ctx, "z", "a"); ok {
				t.Fatalf("removed member still present")
			}
		})
	}
}

func TestListOperations(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.LPush(ctx, "l", "first")
			s.LPush(ctx, "l", "second", "third")

			// LPush prepends, so the newest value is at index 0.
			all, err := s.LRange(ctx, "l", 0, -1)
			if err != nil {
				t.Fatalf("lrange: %v", err)
			}
			if len(all) != 3 || all[0] != "third" || all[2] != "first" {
				t.Fatalf("unexpected list: %v", all)
			}

			if err := s.LTrim(ctx, "l", 0, 1); err != nil {
				t.Fatalf("ltrim: %v", err)
			}
			trimmed, _ := s.LRange(ctx, "l", 0, -1)
			if len(trimmed) != 2 || trimmed[0] != "third" || trimmed[1] != "second" {
				t.Fatalf("trim kept the wrong entries: %v", trimmed)
			}
		})
	}
}

func TestBatchAppliesAllMutations(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			batch := s.Batch()
			batch.Set("k", "v")
			batch.HSet("h", "f", "x")
			batch.HIncrBy("h", "n", 2)
			batch.HIncrByFloat("h", "f2", 1.5)
			batch.ZIncrBy("z", 1, "m")
			batch.ZAdd("z", Z{Member: "m2", Score: 4})
			batch.LPush("l", "entry")
			batch.LTrim("l", 0, 0)
			if err := batch.Exec(ctx); err != nil {
				t.Fatalf("exec: %v", err)
			}

			if v, _ := s.Get(ctx, "k"); v != "v" {
				t.Fatalf("batch set lost: %q", v)
			}
			h, _ := s.HGetAll(ctx, "h")
			if h["f"] != "x" || h["n"] != "2" || h["f2"] != "1.5" {
				t.Fatalf("batch hash mutations lost: %v", h)
			}
			if score, ok, _ := s.ZScore(ctx, "z", "m2"); !ok || score != 4 {
				t.Fatalf("batch zadd lost: %v %v", score, ok)
			}
			l, _ := s.LRange(ctx, "l", 0, -1)
			if len(l) != 1 || l[0] != "entry" {
				t.Fatalf("batch list mutations lost: %v", l)
			}
		})
	}
}

func TestMemoryLTrimNegativeIndexes(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	for _, v := range []string{"a", "b", "c", "d"} {
		s.LPush(ctx, "l", v)
	}
	// Keep the last two entries.
	if err := s.LTrim(ctx, "l", -2, -1); err != nil {
		t.Fatalf("ltrim: %v", err)
	}
	got, _ := s.LRange(ctx, "l", 0, -1)
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("negative trim wrong: %v", got)
	}
}

func TestMemoryLTrimEmptiesOnInvertedRange(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	s.LPush(ctx, "l", "a", "b")
	if err := s.LTrim(ctx, "l", 5, 10); err != nil {
		t.Fatalf("ltrim: %v", err)
	}
	if got, _ := s.LRange(ctx, "l", 0, -1); len(got) != 0 {
		t.Fatalf("out-of-range trim must empty the list, got %v", got)
	}
}
