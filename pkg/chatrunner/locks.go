package chatrunner

import (
	"context"
	"sync"
)

// keyedLockEntry is a one-slot semaphore: holding the lock means owning the
// single buffered slot of ch.
type keyedLockEntry struct {
	ch   chan struct{}
	refs int
}

// keyedLocks hands out one lock per key. Entries are dropped once nobody
// holds or waits for them, so idle threads cost nothing.
type keyedLocks struct {
	mu      sync.Mutex
	entries map[string]*keyedLockEntry
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{entries: map[string]*keyedLockEntry{}}
}

// Lock blocks until key is free or ctx is done. On success it returns the
// matching unlock function; on cancellation it returns ctx.Err() and leaves
// nothing behind.
func (k *keyedLocks) Lock(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedLockEntry{ch: make(chan struct{}, 1)}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		k.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			k.release(key, e)
		})
	}, nil
}

func (k *keyedLocks) release(key string, e *keyedLockEntry) {
	k.mu.Lock()
	defer k.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(k.entries, key)
	}
}

func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
