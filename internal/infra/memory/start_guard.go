package memory

import (
	"context"
	"sync"
)

// StartGuard serializes callers per key inside one process.
type StartGuard struct {
	mu    sync.Mutex
	locks map[string]*guardEntry
}

type guardEntry struct {
	held chan struct{}
	refs int
}

func NewStartGuard() *StartGuard {
	return &StartGuard{locks: make(map[string]*guardEntry)}
}

// Acquire blocks until the key is free or ctx is done.
func (g *StartGuard) Acquire(ctx context.Context, key string) (func(), error) {
	g.mu.Lock()
	entry, ok := g.locks[key]
	if !ok {
		entry = &guardEntry{held: make(chan struct{}, 1)}
		g.locks[key] = entry
	}
	entry.refs++
	g.mu.Unlock()

	select {
	case entry.held <- struct{}{}:
	case <-ctx.Done():
		g.drop(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.held
			g.drop(key, entry)
		})
	}, nil
}

// Held reports whether anyone holds or waits for key.
func (g *StartGuard) Held(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.locks[key]
	return ok
}

func (g *StartGuard) drop(key string, entry *guardEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(g.locks, key)
	}
}
