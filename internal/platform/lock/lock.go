// Package lock provides keyed mutual exclusion shared by the label, tracking and payout paths.
package lock

import (
	"context"
	"errors"
	"strings"
	"sync"
)

var ErrNotAcquired = errors.New("lock: not acquired")

// Locker grants exclusive ownership of a key until the returned release func is called.
// Acquire blocks until the key is free or ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func OrderKey(orderID string) string   { return "order:" + strings.TrimSpace(orderID) }
func PayoutKey(vendorID string) string { return "payout:" + strings.TrimSpace(vendorID) }

type localEntry struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process Locker for single-replica deployments and tests.
type Local struct {
	mu   sync.Mutex
	keys map[string]*localEntry
}

func NewLocal() *Local {
	return &Local{keys: map[string]*localEntry{}}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.drop(key, e)
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.drop(key, e)
		})
	}, nil
}

func (l *Local) drop(key string, e *localEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
	l.mu.Unlock()
}
