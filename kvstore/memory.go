package kvstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
)

// MemoryStore is an in-process Store with the same observable semantics as the
// Redis adapter. It backs tests and lets the engine run without a configured
// backend (learning state then lives only as long as the process).
type MemoryStore struct {
	mu      sync.Mutex
	strings map[string]string
	hashes  map[string]map[string]string
	zsets   map[string]map[string]float64
	lists   map[string][]string
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		zsets:   make(map[string]map[string]float64),
		lists:   make(map[string][]string),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.strings[key]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strings[key] = value
	return nil
}

func (s *MemoryStore) Incr(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrLocked(key, delta)
}

func (s *MemoryStore) incrLocked(key string, delta int64) (int64, error) {
	cur, _ := strconv.ParseInt(s.strings[key], 10, 64)
	cur += delta
	s.strings[key] = strconv.FormatInt(cur, 10)
	return cur, nil
}

func (s *MemoryStore) HGet(_ context.Context, key, field string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, ok := s.hashes[key][field]
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

func (s *MemoryStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (s *MemoryStore) HSet(_ context.Context, key, field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hsetLocked(key, field, value)
	return nil
}

func (s *MemoryStore) hsetLocked(key, field, value string) {
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string)
		s.hashes[key] = h
	}
	h[field] = value
}

func (s *MemoryStore) HIncrBy(_ context.Context, key, field string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hincrLocked(key, field, delta), nil
}

func (s *MemoryStore) hincrLocked(key, field string, delta int64) int64 {
	cur, _ := strconv.ParseInt(s.hashes[key][field], 10, 64)
	cur += delta
	s.hsetLocked(key, field, strconv.FormatInt(cur, 10))
	return cur
}

func (s *MemoryStore) HIncrByFloat(_ context.Context, key, field string, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hincrFloatLocked(key, field, delta), nil
}

func (s *MemoryStore) hincrFloatLocked(key, field string, delta float64) float64 {
	cur, _ := strconv.ParseFloat(s.hashes[key][field], 64)
	cur += delta
	s.hsetLocked(key, field, strconv.FormatFloat(cur, 'f', -1, 64))
	return cur
}

func (s *MemoryStore) ZIncrBy(_ context.Context, key string, delta float64, member string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zincrLocked(key, delta, member), nil
}

func (s *MemoryStore) zincrLocked(key string, delta float64, member string) float64 {
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member] += delta
	return z[member]
}

func (s *MemoryStore) ZScore(_ context.Context, key, member string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	score, ok := s.zsets[key][member]
	return score, ok, nil
}

func (s *MemoryStore) ZAdd(_ context.Context, key string, member Z) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zaddLocked(key, member)
	return nil
}

func (s *MemoryStore) zaddLocked(key string, member Z) {
	z, ok := s.zsets[key]
	if !ok {
		z = make(map[string]float64)
		s.zsets[key] = z
	}
	z[member.Member] = member.Score
}

func (s *MemoryStore) ZRem(_ context.Context, key string, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.zsets[key], member)
	return nil
}

func (s *MemoryStore) ZRangeWithScores(_ context.Context, key string, start, stop int64) ([]Z, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rangeZ(s.sortedLocked(key, false), start, stop), nil
}

func (s *MemoryStore) ZRevRangeWithScores(_ context.Context, key string, start, stop int64) ([]Z, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rangeZ(s.sortedLocked(key, true), start, stop), nil
}

func (s *MemoryStore) ZRangeByScore(_ context.Context, key string, min, max float64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, z := range s.sortedLocked(key, false) {
		if z.Score >= min && z.Score <= max {
			out = append(out, z.Member)
		}
	}
	return out, nil
}

// sortedLocked orders members by score, ties broken lexically, matching Redis.
func (s *MemoryStore) sortedLocked(key string, reverse bool) []Z {
	members := make([]Z, 0, len(s.zsets[key]))
	for m, score := range s.zsets[key] {
		members = append(members, Z{Member: m, Score: score})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			if reverse {
				return members[i].Score > members[j].Score
			}
			return members[i].Score < members[j].Score
		}
		if reverse {
			return members[i].Member > members[j].Member
		}
		return members[i].Member < members[j].Member
	})
	return members
}

func (s *MemoryStore) LPush(_ context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lpushLocked(key, values...)
	return nil
}

func (s *MemoryStore) lpushLocked(key string, values ...string) {
	for _, v := range values {
		s.lists[key] = append([]string{v}, s.lists[key]...)
	}
}

func (s *MemoryStore) LTrim(_ context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ltrimLocked(key, start, stop)
	return nil
}

func (s *MemoryStore) ltrimLocked(key string, start, stop int64) {
	list := s.lists[key]
	n := int64(len(list))
	start, stop = normalizeRange(start, stop, n)
	if start > stop || start >= n {
		s.lists[key] = nil
		return
	}
	s.lists[key] = list[start : stop+1]
}

func (s *MemoryStore) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.lists[key]
	n := int64(len(list))
	start, stop = normalizeRange(start, stop, n)
	if start > stop || start >= n {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (s *MemoryStore) Batch() Batch {
	return &memoryBatch{store: s}
}

func (s *MemoryStore) Close() error { return nil }

type memoryBatch struct {
	store *MemoryStore
	ops   []func(*MemoryStore)
}

func (b *memoryBatch) Set(key, value string) {
	b.ops = append(b.ops, func(s *MemoryStore) { s.strings[key] = value })
}

func (b *memoryBatch) HSet(key, field, value string) {
	b.ops = append(b.ops, func(s *MemoryStore) { s.hsetLocked(key, field, value) })
}

func (b *memoryBatch) HIncrBy(key, field string, delta int64) {
	b.ops = append(b.ops, func(s *MemoryStore) { s.hincrLocked(key, field, delta) })
}

func (b *memoryBatch) HIncrByFloat(key, field string, delta float64) {
	b.ops = append(b.ops, func(s *MemoryStore) { s.hincrFloatLocked(key, field, delta) })
}

func (b *memoryBatch) ZIncrBy(key string, delta float64, member string) {
	b.ops = append(b.ops, func(s *MemoryStore) { s.zincrLocked(key, delta, member) })
}

func (b *memoryBatch) ZAdd(key string, member Z) {
	b.ops = append(b.ops, func(s *MemoryStore) { s.zaddLocked(key, member) })
}

func (b *memoryBatch) ZRem(key string, member string) {
	b.ops = append(b.ops, func(s *MemoryStore) { delete(s.zsets[key], member) })
}

func (b *memoryBatch) LPush(key string, values ...string) {
	vals := append([]string(nil), values...)
	b.ops = append(b.ops, func(s *MemoryStore) { s.lpushLocked(key, vals...) })
}

func (b *memoryBatch) LTrim(key string, start, stop int64) {
	b.ops = append(b.ops, func(s *MemoryStore) { s.ltrimLocked(key, start, stop) })
}

func (b *memoryBatch) Exec(_ context.Context) error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	for _, op := range b.ops {
		op(b.store)
	}
	b.ops = nil
	return nil
}

func normalizeRange(start, stop, n int64) (int64, int64) {
	if start < 0 {
		start += n
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop += n
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}

func rangeZ(members []Z, start, stop int64) []Z {
	n := int64(len(members))
	start, stop = normalizeRange(start, stop, n)
	if start > stop || start >= n {
		return nil
	}
	out := make([]Z, stop-start+1)
	copy(out, members[start:stop+1])
	return out
}
