package service

import (
	"context"
	"sync"
	"sync/atomic"

	"custody-vault/pkg/apperror"
)

type guardKey struct{ g *ReentrancyGuard }

// ReentrancyGuard serializes state-mutating vault calls.
//
// Independent callers queue for the lock. A call that is already inside the
// guard (its context carries the guard's marker, e.g. a transfer callback)
// is rejected with Reentrancy instead of deadlocking. A callback that comes
// back as a new request has no marker; it queues until the outer call
// releases or its own context is done.
type ReentrancyGuard struct {
	sem    chan struct{}
	locked atomic.Bool
}

// NewReentrancyGuard creates an unlocked guard.
func NewReentrancyGuard() *ReentrancyGuard {
	return &ReentrancyGuard{sem: make(chan struct{}, 1)}
}

// Enter acquires the guard. It returns the context to run the guarded call
// with and a release func that must be deferred.
func (g *ReentrancyGuard) Enter(ctx context.Context) (context.Context, func(), error) {
	if ctx.Value(guardKey{g}) != nil {
		return nil, nil, apperror.ErrReentrancy()
	}

	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	g.locked.Store(true)

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.locked.Store(false)
			<-g.sem
		})
	}
	return context.WithValue(ctx, guardKey{g}, struct{}{}), release, nil
}

// Locked reports whether a guarded call is in progress.
func (g *ReentrancyGuard) Locked() bool {
	return g.locked.Load()
}
