package syncutil

import (
	"context"
)

// ContextShardedMutex is the context-aware variant of ShardedMutex:
// a caller waiting for a shard abandons the wait when its context is
// cancelled, instead of blocking until the holder releases.
//
// Each shard is a channel with capacity one; a shard is held while a
// value sits in its channel. Must be created with NewContextShardedMutex.
type ContextShardedMutex struct {
	shards [shardCount]chan struct{}
}

// NewContextShardedMutex creates a context-aware sharded mutex.
func NewContextShardedMutex() *ContextShardedMutex {
	m := &ContextShardedMutex{}
	for i := range m.shards {
		m.shards[i] = make(chan struct{}, 1)
	}
	return m
}

// LockContext acquires the shard for key, or returns the context error
// if ctx is done first. On success the caller must invoke the returned
// unlock function exactly once.
func (m *ContextShardedMutex) LockContext(ctx context.Context, key string) (func(), error) {
	ch := m.shards[shardIndex(key)]
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
