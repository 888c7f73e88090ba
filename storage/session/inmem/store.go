// Package inmemstore provides the dev/test session Store: two in-process
// key-value tables (identity payload, expiry) guarded by a mutex, with
// in-process change notifications standing in for cross-tab storage events.
package inmemstore

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/odontoweb/clinica/core/session"
	"github.com/odontoweb/clinica/core/user"
)

type Store struct {
	ttl time.Duration

	mutex    sync.RWMutex
	payloads map[string]string // sid -> JSON-encoded identity
	expiries map[string]string // sid -> epoch-millisecond expiry
	watchers map[string][]chan session.Event

	nowFunc func() time.Time // mockable
}

var _ session.Store = (*Store)(nil)

func New(ttl time.Duration) *Store {
	return &Store{
		ttl:      ttl,
		payloads: make(map[string]string),
		expiries: make(map[string]string),
		watchers: make(map[string][]chan session.Event),
		nowFunc:  time.Now,
	}
}

func (s *Store) Save(_ context.Context, sid string, rec session.Record) error {
	data, err := json.Marshal(rec.Identity)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	s.payloads[sid] = string(data)
	s.expiries[sid] = strconv.FormatInt(rec.ExpiresAt.UnixMilli(), 10)
	s.mutex.Unlock()

	s.notify(sid, session.EventSaved)
	return nil
}

func (s *Store) Load(_ context.Context, sid string) (session.Record, error) {
	s.mutex.RLock()
	payload, hasPayload := s.payloads[sid]
	expiry, hasExpiry := s.expiries[sid]
	s.mutex.RUnlock()

	// one entry without the other is structural corruption
	if !hasPayload || !hasExpiry {
		if hasPayload || hasExpiry {
			s.clear(sid)
		}
		return session.Record{}, session.ErrNoSession
	}

	expMillis, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		s.clear(sid)
		return session.Record{}, session.ErrNoSession
	}
	var ident user.Identity
	if err := json.Unmarshal([]byte(payload), &ident); err != nil {
		s.clear(sid)
		return session.Record{}, session.ErrNoSession
	}

	expiresAt := time.UnixMilli(expMillis)
	rec := session.Record{
		Identity:  ident,
		IssuedAt:  expiresAt.Add(-s.ttl),
		ExpiresAt: expiresAt,
	}
	if rec.Expired(s.nowFunc()) {
		s.clear(sid)
		return session.Record{}, session.ErrNoSession
	}
	return rec, nil
}

func (s *Store) Clear(_ context.Context, sid string) error {
	if s.clear(sid) {
		s.notify(sid, session.EventCleared)
	}
	return nil
}

func (s *Store) Watch(ctx context.Context, sid string) (<-chan session.Event, func(), error) {
	ch := make(chan session.Event, 8)

	s.mutex.Lock()
	s.watchers[sid] = append(s.watchers[sid], ch)
	s.mutex.Unlock()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			// closing under the write lock keeps notify (which sends under
			// the read lock) from racing a send against the close
			s.mutex.Lock()
			chans := s.watchers[sid]
			for i, c := range chans {
				if c == ch {
					s.watchers[sid] = append(chans[:i], chans[i+1:]...)
					break
				}
			}
			close(ch)
			s.mutex.Unlock()
		})
	}
	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			stop()
		}()
	}
	return ch, stop, nil
}

// clear removes both entries; reports whether anything was removed.
func (s *Store) clear(sid string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, hadPayload := s.payloads[sid]
	_, hadExpiry := s.expiries[sid]
	delete(s.payloads, sid)
	delete(s.expiries, sid)
	return hadPayload || hadExpiry
}

// notify delivers best-effort: slow watchers miss events instead of
// blocking the writer.
func (s *Store) notify(sid string, kind session.EventKind) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	for _, ch := range s.watchers[sid] {
		select {
		case ch <- session.Event{SID: sid, Kind: kind}:
		default:
		}
	}
}

// CorruptPayload drops the expiry entry while keeping the payload, leaving
// a structurally invalid half-record. Test hook only.
func (s *Store) CorruptPayload(sid string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.expiries, sid)
}

// CorruptExpiry drops the payload entry while keeping the expiry. Test hook only.
func (s *Store) CorruptExpiry(sid string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.payloads, sid)
}

// SetNowFunc overrides the store's clock. Test hook only.
func (s *Store) SetNowFunc(now func() time.Time) { s.nowFunc = now }
