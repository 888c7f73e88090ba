package session

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/odontoweb/clinica/core/user"
)

// ErrNoSession is returned by Store.Load when no valid record exists for the
// scope: nothing persisted, a partial or corrupted entry, or an expired one.
// All of those degrade to "logged out"; none is a hard failure.
var ErrNoSession = errors.New("no active session")

// Record is the persisted identity + expiry pair representing an active
// login. ExpiresAt is IssuedAt + TTL at creation and is never extended on
// reads (absolute expiry).
type Record struct {
	Identity  user.Identity `json:"identity"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// NewRecord issues a Record for an identity valid for ttl from now.
func NewRecord(ident user.Identity, now time.Time, ttl time.Duration) Record {
	return Record{
		Identity:  ident,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// Expired reports whether the record is past its expiry at time t.
func (r Record) Expired(t time.Time) bool {
	return !t.Before(r.ExpiresAt)
}

// EventKind discriminates storage change notifications.
type EventKind string

const (
	EventSaved   EventKind = "saved"
	EventCleared EventKind = "cleared"
)

// Event notifies other execution contexts sharing the same storage that a
// scope's record changed. Delivery is asynchronous and best-effort.
type Event struct {
	SID  string
	Kind EventKind
}

// Store persists one Record per scope ID (one browser profile) under two
// paired entries: a JSON-encoded identity and an integer epoch-millisecond
// expiry. One entry present without the other means the record is invalid.
type Store interface {
	// Save persists the record's identity and expiry under the scope's
	// paired keys. A Load in the same execution context immediately after
	// Save observes the new record.
	Save(ctx context.Context, sid string, rec Record) error

	// Load returns the scope's record. If either entry is missing, cannot
	// be parsed, or the record is expired, both entries are cleared and
	// ErrNoSession is returned; repeated Loads keep returning ErrNoSession.
	Load(ctx context.Context, sid string) (Record, error)

	// Clear removes both entries unconditionally. Idempotent.
	Clear(ctx context.Context, sid string) error

	// Watch subscribes to change notifications for the scope. The returned
	// stop function releases the subscription; the channel is closed after
	// stop or when ctx is done.
	Watch(ctx context.Context, sid string) (<-chan Event, func(), error)
}
