// Package lock provides the critical section around journal posting: an
// in-process mutex, optionally chained with a Redis lock so replicas sharing
// one external store take turns. The lock only orders writers; replicas stay
// consistent because each one catches up from the external store while
// holding it, and the store rejects a second entry under an existing id.
package lock

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Locker acquires an exclusive section. The returned release func must be called once.
type Locker interface {
	Lock(ctx context.Context) (release func(), err error)
}

// Local is a process-wide mutex. The zero value is ready to use.
type Local struct {
	mu sync.Mutex
}

// NewLocal returns an in-process locker.
func NewLocal() *Local { return &Local{} }

// Lock blocks until the mutex is held. It does not observe ctx; posting never
// waits on anything but another post.
func (l *Local) Lock(_ context.Context) (func(), error) {
	l.mu.Lock()
	return l.mu.Unlock, nil
}

// Chain acquires lockers in order and releases them in reverse.
func Chain(lockers ...Locker) Locker { return chain(lockers) }

type chain []Locker

func (c chain) Lock(ctx context.Context) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		rel, err := l.Lock(ctx)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, rel)
	}
	return releaseAll, nil
}

// BestEffort wraps a shared lock that may become unreachable. Connection
// errors are logged and the section proceeds under the remaining lockers;
// contention (ErrLockFailed) and caller cancellation still fail.
func BestEffort(l Locker, log *slog.Logger) Locker {
	if log == nil {
		log = slog.Default()
	}
	return bestEffort{inner: l, log: log}
}

type bestEffort struct {
	inner Locker
	log   *slog.Logger
}

func (b bestEffort) Lock(ctx context.Context) (func(), error) {
	release, err := b.inner.Lock(ctx)
	switch {
	case err == nil:
		return release, nil
	case errors.Is(err, ErrLockFailed), ctx.Err() != nil:
		return nil, err
	}
	b.log.Warn("shared posting lock unavailable; continuing with the local lock", "err", err)
	return func() {}, nil
}
