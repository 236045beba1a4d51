package tunnel

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// nameLocks serializes operations per tunnel name. Waiters are served in
// arrival order and entries are dropped once nobody holds or waits on them.
type nameLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func newNameLocks() *nameLocks {
	return &nameLocks{entries: make(map[string]*lockEntry)}
}

// acquire blocks until name is free or ctx is done. The returned release
// func is safe to call more than once.
func (l *nameLocks) acquire(ctx context.Context, name string) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[name]
	if !ok {
		e = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[name] = e
	}
	e.refs++
	l.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		l.unref(name, e)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		e.sem.Release(1)
		l.unref(name, e)
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.unref(name, e)
		})
	}, nil
}

func (l *nameLocks) unref(name string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, name)
	}
}

func (l *nameLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
