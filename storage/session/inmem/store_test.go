package inmemstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/odontoweb/clinica/core/session"
	"github.com/odontoweb/clinica/core/user"
)

const ttl = 24 * time.Hour

func testIdentity() user.Identity {
	return user.Identity{
		ID:    "7c9f3f0e-52a4-4f0b-9c55-94f1b1b1e100",
		Email: "admin@clinica.com",
		Name:  "Dr. Admin",
		Role:  user.RoleAdmin,
	}
}

func TestStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	store := New(ttl)
	ident := testIdentity()
	now := time.Now().UTC()

	err := store.Save(ctx, "sid-1", session.NewRecord(ident, now, ttl))
	assert.NoError(t, err)

	rec, err := store.Load(ctx, "sid-1")
	assert.NoError(t, err)
	assert.Equal(t, ident, rec.Identity)
	assert.WithinDuration(t, now.Add(ttl), rec.ExpiresAt, time.Second)

	// scope isolation
	_, err = store.Load(ctx, "sid-2")
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestStoreLoadBeforeExpiryReturnsIdentityUnchanged(t *testing.T) {
	ctx := context.Background()
	store := New(ttl)
	ident := testIdentity()
	issued := time.Now().UTC()

	_ = store.Save(ctx, "sid", session.NewRecord(ident, issued, ttl))

	// d < 24h: still valid, identity unchanged
	store.SetNowFunc(func() time.Time { return issued.Add(ttl - time.Minute) })
	rec, err := store.Load(ctx, "sid")
	assert.NoError(t, err)
	assert.Equal(t, ident, rec.Identity)

	// expiry is absolute: the read above must not have slid it forward
	store.SetNowFunc(func() time.Time { return issued.Add(ttl + time.Minute) })
	_, err = store.Load(ctx, "sid")
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestStoreLoadAfterExpiryIdempotent(t *testing.T) {
	ctx := context.Background()
	store := New(ttl)
	issued := time.Now().UTC()

	_ = store.Save(ctx, "sid", session.NewRecord(testIdentity(), issued, ttl))
	store.SetNowFunc(func() time.Time { return issued.Add(ttl) }) // d == 24h counts as expired

	for i := 0; i < 3; i++ {
		_, err := store.Load(ctx, "sid")
		assert.ErrorIs(t, err, session.ErrNoSession)
	}
}

func TestStoreClearThenLoad(t *testing.T) {
	ctx := context.Background()
	store := New(ttl)

	// clear is idempotent regardless of prior state
	assert.NoError(t, store.Clear(ctx, "sid"))

	_ = store.Save(ctx, "sid", session.NewRecord(testIdentity(), time.Now().UTC(), ttl))
	assert.NoError(t, store.Clear(ctx, "sid"))
	assert.NoError(t, store.Clear(ctx, "sid"))

	_, err := store.Load(ctx, "sid")
	assert.ErrorIs(t, err, session.ErrNoSession)
}

func TestStorePartialRecordTreatedAsAbsent(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		corrupt func(*Store)
	}{
		{name: "payload without expiry", corrupt: func(s *Store) { s.CorruptPayload("sid") }},
		{name: "expiry without payload", corrupt: func(s *Store) { s.CorruptExpiry("sid") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := New(ttl)
			_ = store.Save(ctx, "sid", session.NewRecord(testIdentity(), time.Now().UTC(), ttl))
			tt.corrupt(store)

			_, err := store.Load(ctx, "sid")
			assert.ErrorIs(t, err, session.ErrNoSession)

			// both keys end up cleared: a fresh save round-trips cleanly
			_ = store.Save(ctx, "sid", session.NewRecord(testIdentity(), time.Now().UTC(), ttl))
			rec, err := store.Load(ctx, "sid")
			assert.NoError(t, err)
			assert.Equal(t, testIdentity(), rec.Identity)
		})
	}
}

func TestStoreWatch(t *testing.T) {
	ctx := context.Background()
	store := New(ttl)

	events, stop, err := store.Watch(ctx, "sid")
	assert.NoError(t, err)
	defer stop()

	_ = store.Save(ctx, "sid", session.NewRecord(testIdentity(), time.Now().UTC(), ttl))
	_ = store.Clear(ctx, "sid")

	want := []session.EventKind{session.EventSaved, session.EventCleared}
	for _, kind := range want {
		select {
		case ev := <-events:
			assert.Equal(t, kind, ev.Kind)
			assert.Equal(t, "sid", ev.SID)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %v event", kind)
		}
	}

	// other scopes do not leak in
	_ = store.Save(ctx, "other", session.NewRecord(testIdentity(), time.Now().UTC(), ttl))
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
