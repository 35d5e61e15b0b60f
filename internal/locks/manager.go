// Package locks provides a process-wide reentrant lock arena keyed by
// (lock type, resource id), with bounded-wait acquisition.
package locks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Type names the kind of critical section a lock protects.
type Type string

const (
	TokenAllocation Type = "token_allocation"
	RateLimitCheck  Type = "rate_limit_check"
	ConfigUpdate    Type = "config_update"
)

// DefaultAcquireTimeout bounds Acquire when the caller supplies none.
const DefaultAcquireTimeout = 5 * time.Second

// TimeoutError reports that a lock could not be acquired before the
// caller's timeout elapsed. No state has been mutated when it is
// returned; the caller may retry with backoff.
type TimeoutError struct {
	LockType Type
	Resource string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("locks: timed out after %s waiting for %s:%s", e.Timeout, e.LockType, e.Resource)
}

// ErrShutdown is returned to waiters unblocked by Shutdown.
var ErrShutdown = fmt.Errorf("locks: manager is shut down")

type lockKey struct {
	typ      Type
	resource string
}

// entry is the state of one (type, resource) key. Guarded by Manager.mu.
type entry struct {
	owner   string
	count   int
	waiters int
	handle  *Handle
	// released is closed and replaced whenever ownership is given up,
	// waking all waiters to race for the key. No fairness is promised.
	released chan struct{}
}

// Handle is the opaque token returned by Acquire. Reentrant
// acquisitions by the same owner return the same handle.
type Handle struct {
	key   lockKey
	owner string
}

// Manager is the lock arena. Construct with New and inject where
// needed; it holds no global state.
type Manager struct {
	mu      sync.Mutex
	entries map[lockKey]*entry
	done    chan struct{}
	closed  bool

	defaultTimeout time.Duration
	log            zerolog.Logger
}

// New builds a Manager. acquireTimeout <= 0 selects
// DefaultAcquireTimeout.
func New(acquireTimeout time.Duration, log zerolog.Logger) *Manager {
	if acquireTimeout <= 0 {
		acquireTimeout = DefaultAcquireTimeout
	}
	return &Manager{
		entries:        make(map[lockKey]*entry),
		done:           make(chan struct{}),
		defaultTimeout: acquireTimeout,
		log:            log,
	}
}

type ctxKey int

const keyOwner ctxKey = 0

// WithOwner binds a lock-owner identity to the context. All
// acquisitions sharing the identity are reentrant with one another.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, keyOwner, owner)
}

// OwnerFrom extracts the lock-owner identity, if any.
func OwnerFrom(ctx context.Context) (string, bool) {
	v := ctx.Value(keyOwner)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// Acquire blocks until the key is free or already owned by this
// context, up to the manager's default timeout.
func (m *Manager) Acquire(ctx context.Context, typ Type, resource string) (*Handle, error) {
	return m.AcquireTimeout(ctx, typ, resource, m.defaultTimeout)
}

// AcquireTimeout is Acquire with an explicit bound. On success while
// the context already owns the key, the reentrancy count is
// incremented and the original handle is returned. On timeout a
// *TimeoutError is returned and nothing has been mutated.
func (m *Manager) AcquireTimeout(ctx context.Context, typ Type, resource string, timeout time.Duration) (*Handle, error) {
	owner, ok := OwnerFrom(ctx)
	if !ok {
		owner = uuid.NewString()
	}
	if timeout <= 0 {
		timeout = m.defaultTimeout
	}
	key := lockKey{typ: typ, resource: resource}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrShutdown
		}
		e, exists := m.entries[key]
		switch {
		case !exists:
			e = &entry{
				owner:    owner,
				count:    1,
				handle:   &Handle{key: key, owner: owner},
				released: make(chan struct{}),
			}
			m.entries[key] = e
			m.mu.Unlock()
			return e.handle, nil
		case e.owner == owner:
			e.count++
			h := e.handle
			m.mu.Unlock()
			return h, nil
		case e.owner == "":
			// Freed while we were waiting; claim it.
			e.owner = owner
			e.count = 1
			e.handle = &Handle{key: key, owner: owner}
			m.mu.Unlock()
			return e.handle, nil
		}

		released := e.released
		e.waiters++
		m.mu.Unlock()

		select {
		case <-released:
			m.mu.Lock()
			e.waiters--
			m.mu.Unlock()
		case <-timer.C:
			m.abandonWait(key, e)
			return nil, &TimeoutError{LockType: typ, Resource: resource, Timeout: timeout}
		case <-ctx.Done():
			m.abandonWait(key, e)
			return nil, ctx.Err()
		case <-m.done:
			m.abandonWait(key, e)
			return nil, ErrShutdown
		}
	}
}

func (m *Manager) abandonWait(key lockKey, e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.waiters--
	if e.owner == "" && e.count == 0 && e.waiters == 0 {
		delete(m.entries, key)
	}
}

// Release decrements the reentrancy count for the handle's key. The
// key becomes available to other waiters only when the count reaches
// zero. Releasing a key the handle's owner does not hold is a
// programming error and is reported, never silently absorbed.
func (m *Manager) Release(h *Handle) error {
	if h == nil {
		return fmt.Errorf("locks: release of nil handle")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, exists := m.entries[h.key]
	if !exists || e.owner != h.owner {
		err := fmt.Errorf("locks: release of %s:%s by non-owner %s", h.key.typ, h.key.resource, h.owner)
		m.log.Error().
			Str("lock_type", string(h.key.typ)).
			Str("resource", h.key.resource).
			Str("owner", h.owner).
			Msg("release of lock not held")
		return err
	}

	e.count--
	if e.count > 0 {
		return nil
	}
	e.owner = ""
	e.handle = nil
	close(e.released)
	e.released = make(chan struct{})
	if e.waiters == 0 {
		delete(m.entries, h.key)
	}
	return nil
}

// IsLocked reports whether the key currently has an owner.
func (m *Manager) IsLocked(typ Type, resource string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, exists := m.entries[lockKey{typ: typ, resource: resource}]
	return exists && e.owner != ""
}

// Guard is a scoped acquisition. Release is idempotent so it can be
// deferred and also called early.
type Guard struct {
	m    *Manager
	h    *Handle
	once sync.Once
	err  error
}

// Release gives the acquisition back. Safe to call more than once.
func (g *Guard) Release() error {
	g.once.Do(func() {
		g.err = g.m.Release(g.h)
	})
	return g.err
}

// Lock acquires the key and returns a Guard for deferred release:
//
//	g, err := lm.Lock(ctx, locks.TokenAllocation, userID, 0)
//	if err != nil { return err }
//	defer g.Release()
//
// timeout <= 0 selects the manager default.
func (m *Manager) Lock(ctx context.Context, typ Type, resource string, timeout time.Duration) (*Guard, error) {
	h, err := m.AcquireTimeout(ctx, typ, resource, timeout)
	if err != nil {
		return nil, err
	}
	return &Guard{m: m, h: h}, nil
}

// Shutdown fails all pending waiters and drops the lock table.
// Idempotent; call once at process teardown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.done)
	m.entries = make(map[lockKey]*entry)
}
