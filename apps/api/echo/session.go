package echoapi

import (
	"context"
	"sync"
	"time"

	"github.com/odontoweb/clinica/core/session"
	"github.com/odontoweb/clinica/core/user"
)

// sweepInterval bounds how long a manager for an ended scope can linger
// when no request for its sid ever comes back.
const sweepInterval = 15 * time.Minute

// sessionRegistry holds one session.Manager per scope ID so repeated
// requests against the same scope hit storage at most once; the managers
// stay in sync with out-of-band changes through the store's watch channel.
// Managers whose scope has ended (logout or absolute expiry) are evicted,
// either on the next request for the sid or by the periodic sweep.
type sessionRegistry struct {
	store session.Store
	ttl   time.Duration

	mu       sync.Mutex
	managers map[string]*session.Manager
	closed   bool
	done     chan struct{}
}

func newSessionRegistry(store session.Store, ttl time.Duration) *sessionRegistry {
	r := &sessionRegistry{
		store:    store,
		ttl:      ttl,
		managers: make(map[string]*session.Manager),
		done:     make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// Get returns the scope's manager, creating and initializing it on first
// use. Initialization performs the scope's one-time storage read and
// subscribes to change notifications. A manager whose scope turns out to
// be logged out or expired is dropped from the registry before returning,
// so dead scopes do not accumulate across requests.
func (r *sessionRegistry) Get(ctx context.Context, sid string) (*session.Manager, error) {
	r.mu.Lock()
	mgr, ok := r.managers[sid]
	if !ok {
		mgr = session.NewManager(r.store, sid, r.ttl)
		r.managers[sid] = mgr
	}
	r.mu.Unlock()

	if err := mgr.EnsureInit(ctx); err != nil {
		r.evict(sid, mgr)
		return nil, err
	}
	if mgr.Current() == nil {
		r.evict(sid, mgr)
		return mgr, nil
	}
	if !ok {
		// watch outlives the request; evict/Close tears it down
		if err := mgr.StartWatch(context.Background()); err != nil {
			r.evict(sid, mgr)
			return nil, err
		}
	}
	return mgr, nil
}

// Login binds a fresh manager to the scope and writes the record through.
// Each login mints a new sid, so there is never an existing manager worth
// reusing.
func (r *sessionRegistry) Login(ctx context.Context, sid string, ident user.Identity) (session.Record, error) {
	mgr := session.NewManager(r.store, sid, r.ttl)
	rec, err := mgr.Login(ctx, ident)
	if err != nil {
		return session.Record{}, err
	}
	if err = mgr.StartWatch(context.Background()); err != nil {
		return session.Record{}, err
	}

	r.mu.Lock()
	prev := r.managers[sid]
	r.managers[sid] = mgr
	r.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return rec, nil
}

func (r *sessionRegistry) Logout(ctx context.Context, sid string) error {
	mgr, err := r.Get(ctx, sid)
	if err != nil {
		return err
	}
	if err = mgr.Logout(ctx); err != nil {
		return err
	}
	r.evict(sid, mgr)
	return nil
}

// evict removes the manager from the registry and releases its watch. The
// identity check keeps a concurrent re-bind of the same sid intact.
func (r *sessionRegistry) evict(sid string, mgr *session.Manager) {
	r.mu.Lock()
	if cur, ok := r.managers[sid]; ok && cur == mgr {
		delete(r.managers, sid)
	}
	r.mu.Unlock()
	mgr.Close()
}

// sweep drops every manager whose scope has ended without a follow-up
// request coming in to notice: expired past the absolute TTL, or cleared
// out-of-band and reported through the watch channel.
func (r *sessionRegistry) sweep() {
	r.mu.Lock()
	var dead []*session.Manager
	for sid, mgr := range r.managers {
		if mgr.Initialized() && mgr.Current() == nil {
			dead = append(dead, mgr)
			delete(r.managers, sid)
		}
	}
	r.mu.Unlock()

	for _, mgr := range dead {
		mgr.Close()
	}
}

func (r *sessionRegistry) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *sessionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

func (r *sessionRegistry) Close() {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.done)
	}
	for sid, mgr := range r.managers {
		mgr.Close()
		delete(r.managers, sid)
	}
	r.mu.Unlock()
}
