package subhub

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultLockTimeout bounds how long a subscribe operation waits for its
// per-topic lock before failing with a retryable LOCK_TIMEOUT error.
const DefaultLockTimeout = 90 * time.Second

// LockRegistry provides one logical mutex per topic name, created lazily on
// first use and retained for the process lifetime. It serializes subscribe
// operations against the same topic so that idempotency checks and
// pending-message migration are race-free within the process.
//
// Locks are process-local. Two processes can still race on the same topic;
// that race is resolved at the durable store's transaction boundary, not
// here.
type LockRegistry struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	timeout time.Duration
}

// NewLockRegistry creates a LockRegistry with the given acquire timeout.
// A timeout <= 0 falls back to DefaultLockTimeout.
func NewLockRegistry(timeout time.Duration) *LockRegistry {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	return &LockRegistry{
		locks:   make(map[string]chan struct{}),
		timeout: timeout,
	}
}

func (r *LockRegistry) lockChan(name string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.locks[name]
	if !ok {
		ch = make(chan struct{}, 1)
		r.locks[name] = ch
	}
	return ch
}

// Acquire takes the lock for the given topic name, waiting up to the
// registry timeout (or less if ctx expires first). It returns a release
// function that must be called on every exit path.
//
// On timeout it returns an error carrying ErrCodeLockTimeout; callers must
// surface it as retryable, never swallow it.
func (r *LockRegistry) Acquire(ctx context.Context, name string) (func(), error) {
	ch := r.lockChan(name)

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, NewError(ErrCodeLockTimeout,
			fmt.Sprintf("topic lock %q not acquired within %v", name, r.timeout))
	case <-ctx.Done():
		return nil, NewErrorWithCause(ErrCodeLockTimeout,
			fmt.Sprintf("topic lock %q: context done while waiting", name), ctx.Err())
	}
}

// WithLock runs fn while holding the topic lock, releasing it on every exit
// path including panics.
func (r *LockRegistry) WithLock(ctx context.Context, name string, fn func() error) error {
	release, err := r.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}
