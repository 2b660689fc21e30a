// Package syncutil provides keyed locking primitives. The workflow engine
// uses them to serialize all stage transitions for one transaction ID.
package syncutil

import (
	"hash/fnv"
	"sync"
)

// shardCount is a power of two so the modulo stays cheap. Two transaction
// IDs can land on the same shard; that only costs a little extra contention,
// never correctness.
const shardCount = 256

// ShardedMutex is a fixed pool of mutexes addressed by string key. Memory
// stays bounded no matter how many distinct keys pass through, which suits
// long-running services that lock per transaction.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock acquires the shard for key and returns its unlock function.
//
//	unlock := mu.Lock(txID)
//	defer unlock()
func (s *ShardedMutex) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &s.shards[h.Sum32()%shardCount]
	mu.Lock()
	return mu.Unlock
}
