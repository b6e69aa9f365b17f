package dedup

import (
	"hash/fnv"
	"sync"
	"time"
)

const (
	shardCount = 16
	// A shard scans for expired entries once it holds this many records,
	// at most once per ttl.
	purgeThreshold = 1024
)

// Record is the last observation of a (source, text) pair.
type Record struct {
	Source string
	Text   string
	SeenAt time.Time
}

// UpdateFunc receives the current record for a key (ok is false when there
// is none) and returns the record to store and the caller's verdict.
type UpdateFunc func(prev Record, ok bool) (next Record, duplicate bool)

// Store holds dedup records. Update must run fn and persist its result as
// one indivisible step for the given key.
type Store interface {
	Update(key string, fn UpdateFunc) (bool, error)
}

// MemoryStore is a process-wide Store guarded by per-shard mutexes.
// Expired records are dropped lazily during writes.
type MemoryStore struct {
	ttl    time.Duration
	shards [shardCount]shard
}

type shard struct {
	mu        sync.Mutex
	records   map[string]Record
	lastPurge time.Time
}

// NewMemoryStore creates a MemoryStore whose records become eligible for
// purging once they are older than ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultWindow
	}
	s := &MemoryStore{ttl: ttl}
	for i := range s.shards {
		s.shards[i].records = make(map[string]Record)
	}
	return s
}

// Update implements Store.
func (s *MemoryStore) Update(key string, fn UpdateFunc) (bool, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	prev, ok := sh.records[key]
	next, dup := fn(prev, ok)
	sh.records[key] = next

	if len(sh.records) >= purgeThreshold && next.SeenAt.Sub(sh.lastPurge) >= s.ttl {
		sh.purge(next.SeenAt.Add(-s.ttl))
		sh.lastPurge = next.SeenAt
	}
	return dup, nil
}

// Len returns the number of records currently held.
func (s *MemoryStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.records)
		sh.mu.Unlock()
	}
	return n
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}

func (sh *shard) purge(cutoff time.Time) {
	for k, r := range sh.records {
		if !r.SeenAt.After(cutoff) {
			delete(sh.records, k)
		}
	}
}
