package syncutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShardedMutex_SerializesPerKey(t *testing.T) {
	var m ShardedMutex
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("tx_1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestShardedMutex_IndependentKeysDoNotBlock(t *testing.T) {
	var m ShardedMutex

	unlockA := m.Lock("payments")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		// Different key hashing to a different shard.
		unlockB := m.Lock("alerts")
		unlockB()
		close(done)
	}()

	<-done
}

func TestShardedMutex_UnlockAllowsReacquire(t *testing.T) {
	var m ShardedMutex

	unlock := m.Lock("k")
	unlock()
	unlock = m.Lock("k")
	unlock()
}
