package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/odontoweb/clinica/core/user"
)

// Manager holds the in-process view of one scope's session: the current
// identity, whether initialization from the Store has completed, and
// login/logout write-through. It is the process-wide session state object:
// created once at application start, shared by every consumer, and reset
// only in tests.
//
// Initialization runs exactly once per Manager no matter how many consumers
// call EnsureInit concurrently; later callers synchronize from the already
// resolved state instead of re-reading storage. Until it completes,
// consumers must treat the identity as unknown (neither present nor absent)
// and take no redirect decisions.
type Manager struct {
	store Store
	sid   string
	ttl   time.Duration

	mu          sync.RWMutex
	rec         *Record
	initialized bool
	initErr     error
	initCh      chan struct{} // closed when initialization completes

	stopWatch func()
}

func NewManager(store Store, sid string, ttl time.Duration) *Manager {
	return &Manager{
		store:  store,
		sid:    sid,
		ttl:    ttl,
		initCh: make(chan struct{}),
	}
}

// EnsureInit loads the persisted record into memory. The storage read runs
// at most once; concurrent callers wait for it, subsequent callers return
// immediately. A missing/expired/corrupted record initializes to logged-out,
// not to an error.
func (m *Manager) EnsureInit(ctx context.Context) error {
	m.mu.Lock()
	if m.initialized {
		err := m.initErr
		m.mu.Unlock()
		return err
	}
	if m.initCh == nil {
		m.initCh = make(chan struct{})
	}
	ch := m.initCh
	if m.initErr == errInitRunning {
		// another caller is doing the read; wait for it
		m.mu.Unlock()
		select {
		case <-ch:
			m.mu.RLock()
			defer m.mu.RUnlock()
			return m.initErr
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.initErr = errInitRunning
	m.mu.Unlock()

	var loaded *Record
	rec, err := m.store.Load(ctx, m.sid)
	switch errors.Cause(err) {
	case nil:
		loaded = &rec
	case ErrNoSession:
		// logged out; not an error
		err = nil
	default:
		err = errors.Wrap(err, "loading session record")
	}

	m.mu.Lock()
	m.rec = loaded
	m.initialized = true
	m.initErr = err
	close(ch)
	m.mu.Unlock()
	return err
}

var errInitRunning = errors.New("session init in progress")

// Initialized reports whether the initial storage read has completed.
func (m *Manager) Initialized() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// Current returns the current identity, or nil when logged out or when the
// cached record has passed its absolute expiry. The value is only
// meaningful once Initialized() is true.
func (m *Manager) Current() *user.Identity {
	m.mu.RLock()
	rec := m.rec
	m.mu.RUnlock()
	if rec == nil {
		return nil
	}
	if rec.Expired(time.Now()) {
		// lazy expiry: drop the cached record; the store clears its own
		// entries on its next read
		m.mu.Lock()
		if m.rec == rec {
			m.rec = nil
		}
		m.mu.Unlock()
		return nil
	}
	return &rec.Identity
}

// Login writes a fresh record through to the Store and updates the shared
// state synchronously.
func (m *Manager) Login(ctx context.Context, ident user.Identity) (Record, error) {
	rec := NewRecord(ident, time.Now().UTC(), m.ttl)
	if err := m.store.Save(ctx, m.sid, rec); err != nil {
		return Record{}, errors.Wrap(err, "saving session record")
	}
	m.mu.Lock()
	m.rec = &rec
	m.initialized = true
	m.mu.Unlock()
	return rec, nil
}

// Logout clears the Store record and the shared state synchronously.
// Idempotent.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Clear(ctx, m.sid); err != nil {
		return errors.Wrap(err, "clearing session record")
	}
	m.mu.Lock()
	m.rec = nil
	m.initialized = true
	m.mu.Unlock()
	return nil
}

// StartWatch re-synchronizes the in-memory identity whenever another
// execution context sharing the storage saves or clears the scope's record.
func (m *Manager) StartWatch(ctx context.Context) error {
	events, stop, err := m.store.Watch(ctx, m.sid)
	if err != nil {
		return errors.Wrap(err, "watching session store")
	}
	m.mu.Lock()
	m.stopWatch = stop
	m.mu.Unlock()

	go func() {
		for ev := range events {
			switch ev.Kind {
			case EventCleared:
				m.mu.Lock()
				m.rec = nil
				m.mu.Unlock()
			case EventSaved:
				if rec, err := m.store.Load(ctx, m.sid); err == nil {
					m.mu.Lock()
					m.rec = &rec
					m.mu.Unlock()
				}
			}
		}
	}()
	return nil
}

// Close releases the watch subscription, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	stop := m.stopWatch
	m.stopWatch = nil
	m.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Reset discards all resolved state so the next EnsureInit re-reads storage.
// Test hook only.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rec = nil
	m.initialized = false
	m.initErr = nil
	m.initCh = make(chan struct{})
}
