// Package syncutil provides per-key locking for attempt processing.
package syncutil

import (
	"context"
	"hash/fnv"
)

const defaultShards = 256

// KeyLock serializes work per string key over a fixed pool of channel
// mutexes. Memory is bounded by the shard count; two keys that hash to the
// same shard also exclude each other.
type KeyLock struct {
	shards []chan struct{}
}

// NewKeyLock returns a KeyLock with n shards. n <= 0 uses 256.
func NewKeyLock(n int) *KeyLock {
	if n <= 0 {
		n = defaultShards
	}
	l := &KeyLock{shards: make([]chan struct{}, n)}
	for i := range l.shards {
		l.shards[i] = make(chan struct{}, 1)
		l.shards[i] <- struct{}{}
	}
	return l
}

// Lock waits for key's shard or for ctx to end. On success the caller must
// call the returned unlock exactly once.
func (l *KeyLock) Lock(ctx context.Context, key string) (unlock func(), err error) {
	ch := l.shards[l.index(key)]
	select {
	case <-ch:
		return func() { ch <- struct{}{} }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryLock takes key's shard only if it is free right now.
func (l *KeyLock) TryLock(key string) (unlock func(), ok bool) {
	ch := l.shards[l.index(key)]
	select {
	case <-ch:
		return func() { ch <- struct{}{} }, true
	default:
		return nil, false
	}
}

func (l *KeyLock) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(l.shards)))
}
