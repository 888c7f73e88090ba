package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/odontoweb/clinica/core/session"
	"github.com/odontoweb/clinica/core/user"
	inmemstore "github.com/odontoweb/clinica/storage/session/inmem"
)

var testIdent = user.Identity{
	ID:    "u1",
	Email: "patient@clinica.com",
	Name:  "Juan Pérez",
	Role:  user.RolePatient,
}

// countingStore wraps a Store and counts Load calls.
type countingStore struct {
	session.Store
	loads int32
}

func (s *countingStore) Load(ctx context.Context, sid string) (session.Record, error) {
	atomic.AddInt32(&s.loads, 1)
	return s.Store.Load(ctx, sid)
}

func TestManager_EnsureInitRunsOnce(t *testing.T) {
	store := &countingStore{Store: inmemstore.New(time.Hour)}
	if err := store.Save(context.Background(), "sid", session.NewRecord(testIdent, time.Now().UTC(), time.Hour)); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	mgr := session.NewManager(store, "sid", time.Hour)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := mgr.EnsureInit(context.Background()); err != nil {
				t.Errorf("EnsureInit: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&store.loads), "storage must be read exactly once")
	assert.True(t, mgr.Initialized())
	if assert.NotNil(t, mgr.Current()) {
		assert.Equal(t, testIdent, *mgr.Current())
	}

	// later callers synchronize from resolved state
	if err := mgr.EnsureInit(context.Background()); err != nil {
		t.Fatalf("EnsureInit: %v", err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&store.loads))
}

func TestManager_UninitializedIsUnknown(t *testing.T) {
	mgr := session.NewManager(inmemstore.New(time.Hour), "sid", time.Hour)

	// before init the identity is unknown, not absent
	assert.False(t, mgr.Initialized())

	if err := mgr.EnsureInit(context.Background()); err != nil {
		t.Fatalf("EnsureInit: %v", err)
	}
	// empty storage initializes to logged out, not to an error
	assert.True(t, mgr.Initialized())
	assert.Nil(t, mgr.Current())
}

func TestManager_LoginLogoutWriteThrough(t *testing.T) {
	ctx := context.Background()
	store := inmemstore.New(time.Hour)
	mgr := session.NewManager(store, "sid", time.Hour)

	rec, err := mgr.Login(ctx, testIdent)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	assert.Equal(t, testIdent, rec.Identity)

	// persisted: visible to a direct store read
	persisted, err := store.Load(ctx, "sid")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assert.Equal(t, testIdent, persisted.Identity)
	if assert.NotNil(t, mgr.Current()) {
		assert.Equal(t, testIdent, *mgr.Current())
	}

	if err = mgr.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	assert.Nil(t, mgr.Current())
	_, err = store.Load(ctx, "sid")
	assert.Equal(t, session.ErrNoSession, err)

	// idempotent
	assert.NoError(t, mgr.Logout(ctx))
}

func TestManager_AbsoluteExpiry(t *testing.T) {
	ctx := context.Background()
	mgr := session.NewManager(inmemstore.New(time.Hour), "sid", time.Nanosecond)

	if _, err := mgr.Login(ctx, testIdent); err != nil {
		t.Fatalf("Login: %v", err)
	}
	time.Sleep(time.Millisecond)

	// the cached record honors its expiry; no read can extend it
	assert.Nil(t, mgr.Current())
}

func TestManager_WatchResync(t *testing.T) {
	ctx := context.Background()
	store := inmemstore.New(time.Hour)

	mgr1 := session.NewManager(store, "sid", time.Hour)
	mgr2 := session.NewManager(store, "sid", time.Hour)
	defer mgr1.Close()

	if err := mgr1.EnsureInit(ctx); err != nil {
		t.Fatalf("EnsureInit: %v", err)
	}
	if err := mgr1.StartWatch(ctx); err != nil {
		t.Fatalf("StartWatch: %v", err)
	}

	// login from another execution context propagates
	if _, err := mgr2.Login(ctx, testIdent); err != nil {
		t.Fatalf("Login: %v", err)
	}
	waitFor(t, func() bool { return mgr1.Current() != nil })

	// logout elsewhere propagates too
	if err := mgr2.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	waitFor(t, func() bool { return mgr1.Current() == nil })
}

func TestManager_Reset(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: inmemstore.New(time.Hour)}
	mgr := session.NewManager(store, "sid", time.Hour)

	if _, err := mgr.Login(ctx, testIdent); err != nil {
		t.Fatalf("Login: %v", err)
	}

	mgr.Reset()
	assert.False(t, mgr.Initialized())
	assert.Nil(t, mgr.Current())

	// next EnsureInit re-reads storage and finds the persisted record
	if err := mgr.EnsureInit(ctx); err != nil {
		t.Fatalf("EnsureInit: %v", err)
	}
	if assert.NotNil(t, mgr.Current()) {
		assert.Equal(t, testIdent, *mgr.Current())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
