package echoapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/odontoweb/clinica/core/user"
	inmemstore "github.com/odontoweb/clinica/storage/session/inmem"
)

var registryIdent = user.Identity{
	ID:    "u1",
	Email: "patient@clinica.com",
	Name:  "Juan Pérez",
	Role:  user.RolePatient,
}

func TestSessionRegistry_evictsEndedScopes(t *testing.T) {
	ctx := context.Background()

	t.Run("expired scope is dropped on the next request", func(t *testing.T) {
		reg := newSessionRegistry(inmemstore.New(time.Millisecond), time.Millisecond)
		defer reg.Close()

		sids := []string{"s1", "s2", "s3"}
		for _, sid := range sids {
			if _, err := reg.Login(ctx, sid, registryIdent); err != nil {
				t.Fatalf("login %s: %v", sid, err)
			}
		}
		assert.Equal(t, len(sids), reg.len())

		time.Sleep(5 * time.Millisecond)
		for _, sid := range sids {
			mgr, err := reg.Get(ctx, sid)
			if err != nil {
				t.Fatalf("get %s: %v", sid, err)
			}
			assert.Nil(t, mgr.Current())
		}
		assert.Equal(t, 0, reg.len())
	})

	t.Run("sweep drops expired scopes nobody asks about again", func(t *testing.T) {
		reg := newSessionRegistry(inmemstore.New(time.Millisecond), time.Millisecond)
		defer reg.Close()

		for _, sid := range []string{"s1", "s2", "s3", "s4", "s5"} {
			if _, err := reg.Login(ctx, sid, registryIdent); err != nil {
				t.Fatalf("login %s: %v", sid, err)
			}
		}
		assert.Equal(t, 5, reg.len())

		time.Sleep(5 * time.Millisecond)
		reg.sweep()
		assert.Equal(t, 0, reg.len())
	})

	t.Run("anonymous scope is not cached", func(t *testing.T) {
		reg := newSessionRegistry(inmemstore.New(time.Hour), time.Hour)
		defer reg.Close()

		mgr, err := reg.Get(ctx, "never-logged-in")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		assert.Nil(t, mgr.Current())
		assert.Equal(t, 0, reg.len())
	})

	t.Run("live scope reuses its manager", func(t *testing.T) {
		reg := newSessionRegistry(inmemstore.New(time.Hour), time.Hour)
		defer reg.Close()

		if _, err := reg.Login(ctx, "s1", registryIdent); err != nil {
			t.Fatalf("login: %v", err)
		}
		m1, err := reg.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		m2, err := reg.Get(ctx, "s1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		assert.Same(t, m1, m2)
		assert.Equal(t, registryIdent, *m1.Current())
		assert.Equal(t, 1, reg.len())
	})

	t.Run("logout evicts immediately", func(t *testing.T) {
		reg := newSessionRegistry(inmemstore.New(time.Hour), time.Hour)
		defer reg.Close()

		if _, err := reg.Login(ctx, "s1", registryIdent); err != nil {
			t.Fatalf("login: %v", err)
		}
		if err := reg.Logout(ctx, "s1"); err != nil {
			t.Fatalf("logout: %v", err)
		}
		assert.Equal(t, 0, reg.len())
	})
}
