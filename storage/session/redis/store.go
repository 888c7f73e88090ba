// Package redisstore provides the shared session Store backed by Redis:
// the paired identity/expiry entries live in one keyspace visible to every
// portal process, and pub/sub carries the storage-change notifications that
// other execution contexts subscribe to.
package redisstore

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/odontoweb/clinica/core/session"
	"github.com/odontoweb/clinica/core/user"
)

type Store struct {
	client *redis.Client
	ttl    time.Duration

	nowFunc func() time.Time // mockable
}

var _ session.Store = (*Store)(nil)

func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl, nowFunc: time.Now}
}

func identityKey(sid string) string { return "session:" + sid + ":identity" }
func expiryKey(sid string) string   { return "session:" + sid + ":expiry" }
func eventChannel(sid string) string {
	return "session:" + sid + ":events"
}

func (s *Store) Save(ctx context.Context, sid string, rec session.Record) error {
	data, err := json.Marshal(rec.Identity)
	if err != nil {
		return err
	}

	// a server-side TTL backs up the lazy expiry check on read
	ttl := rec.ExpiresAt.Sub(s.nowFunc())
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, identityKey(sid), data, ttl)
	pipe.Set(ctx, expiryKey(sid), strconv.FormatInt(rec.ExpiresAt.UnixMilli(), 10), ttl)
	if _, err = pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "persisting session entries")
	}

	s.publish(ctx, sid, session.EventSaved)
	return nil
}

func (s *Store) Load(ctx context.Context, sid string) (session.Record, error) {
	vals, err := s.client.MGet(ctx, identityKey(sid), expiryKey(sid)).Result()
	if err != nil {
		return session.Record{}, errors.Wrap(err, "reading session entries")
	}

	payload, hasPayload := vals[0].(string)
	expiry, hasExpiry := vals[1].(string)
	if !hasPayload || !hasExpiry {
		if hasPayload || hasExpiry {
			_ = s.Clear(ctx, sid)
		}
		return session.Record{}, session.ErrNoSession
	}

	expMillis, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		_ = s.Clear(ctx, sid)
		return session.Record{}, session.ErrNoSession
	}
	var ident user.Identity
	if err := json.Unmarshal([]byte(payload), &ident); err != nil {
		_ = s.Clear(ctx, sid)
		return session.Record{}, session.ErrNoSession
	}

	expiresAt := time.UnixMilli(expMillis)
	rec := session.Record{
		Identity:  ident,
		IssuedAt:  expiresAt.Add(-s.ttl),
		ExpiresAt: expiresAt,
	}
	if rec.Expired(s.nowFunc()) {
		_ = s.Clear(ctx, sid)
		return session.Record{}, session.ErrNoSession
	}
	return rec, nil
}

func (s *Store) Clear(ctx context.Context, sid string) error {
	removed, err := s.client.Del(ctx, identityKey(sid), expiryKey(sid)).Result()
	if err != nil {
		return errors.Wrap(err, "deleting session entries")
	}
	if removed > 0 {
		s.publish(ctx, sid, session.EventCleared)
	}
	return nil
}

func (s *Store) Watch(ctx context.Context, sid string) (<-chan session.Event, func(), error) {
	pubsub := s.client.Subscribe(ctx, eventChannel(sid))
	// force the subscription before any Save/Clear can race past it
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, errors.Wrap(err, "subscribing to session events")
	}

	events := make(chan session.Event, 8)
	go func() {
		defer close(events)
		for msg := range pubsub.Channel() {
			select {
			case events <- session.Event{SID: sid, Kind: session.EventKind(msg.Payload)}:
			default:
			}
		}
	}()
	stop := func() { _ = pubsub.Close() }
	return events, stop, nil
}

// publish is best-effort: a failed notification never fails the write.
func (s *Store) publish(ctx context.Context, sid string, kind session.EventKind) {
	_ = s.client.Publish(ctx, eventChannel(sid), string(kind)).Err()
}

// SetNowFunc overrides the store's clock. Test hook only.
func (s *Store) SetNowFunc(now func() time.Time) { s.nowFunc = now }
