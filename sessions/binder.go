package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-workspace-gateway/accounts"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"github.com/jrsteele09/go-workspace-gateway/internal/metrics"
	"github.com/rs/zerolog/log"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Binder owns every session and its binding to an account. Expiry is checked
// lazily on each access; Sweep reclaims expired entries.
type Binder struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	idleTimeout time.Duration
}

func NewBinder(idleTimeout time.Duration) *Binder {
	return &Binder{
		sessions:    make(map[string]*Session),
		idleTimeout: idleTimeout,
	}
}

// Open returns the live session with id, creating an unbound one if id is
// unknown or expired. An empty id generates a new one.
func (b *Binder) Open(id string) *Session {
	now := NowTimeFunc()

	b.mu.Lock()
	defer b.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	if s, ok := b.sessions[id]; ok && !s.expired(now) {
		copied := *s
		return &copied
	}

	s := b.create(id, now)
	log.Debug().Str("session", id).Msg("session opened")
	copied := *s
	return &copied
}

// Resolve reports the state of a session. Unknown ids resolve as Unbound.
func (b *Binder) Resolve(id string) Resolution {
	now := NowTimeFunc()

	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[id]
	if !ok {
		return Resolution{State: Unbound}
	}
	st := s.state(now)
	if st != Bound {
		return Resolution{State: st}
	}
	return Resolution{State: Bound, Account: s.Account}
}

// Bind binds the session to account. Unknown or expired ids get a fresh bound
// session. Binding again to the same account only refreshes the idle deadline;
// binding to a different account fails with errors.ErrAlreadyBound.
func (b *Binder) Bind(id, account string) error {
	if id == "" {
		return apperrors.ErrInvalidSession
	}
	account = accounts.NormalizeEmail(account)
	now := NowTimeFunc()

	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[id]
	if !ok || s.expired(now) {
		s = b.create(id, now)
	}

	switch {
	case s.Account == "":
		s.Account = account
	case s.Account != account:
		log.Warn().Str("session", id).Str("account", account).Str("bound_account", s.Account).Msg("SECURITY_AUDIT: rejected rebind of session to another account")
		return apperrors.Wrapf(apperrors.ErrAlreadyBound, "session %s", id)
	}
	b.extend(s, now)

	log.Info().Str("session", id).Str("account", account).Str("event", "session_bound").Msg("session bound")
	return nil
}

// Unbind detaches the account from a live session, returning it to Unbound.
func (b *Binder) Unbind(id string) error {
	now := NowTimeFunc()

	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.live(id, now)
	if err != nil {
		return err
	}
	if s.Account != "" {
		log.Info().Str("session", id).Str("account", s.Account).Str("event", "session_unbound").Msg("session unbound")
	}
	s.Account = ""
	return nil
}

// Touch moves the idle deadline of a live session forward. The deadline never
// moves backwards, whatever the clock does between calls.
func (b *Binder) Touch(id string) error {
	now := NowTimeFunc()

	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.live(id, now)
	if err != nil {
		return err
	}
	b.extend(s, now)
	return nil
}

// Info returns a diagnostic view of a live session without touching it. An
// expired session reports the same as an unknown one.
func (b *Binder) Info(id string) (Info, bool) {
	now := NowTimeFunc()

	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.sessions[id]
	if !ok || s.expired(now) {
		return Info{}, false
	}
	return Info{
		ID:          s.ID,
		State:       s.state(now).String(),
		Account:     s.Account,
		CreatedAt:   s.CreatedAt,
		LastSeen:    s.LastSeen,
		ExpiresAt:   s.ExpiresAt,
		IdleSeconds: now.Sub(s.LastSeen).Seconds(),
	}, true
}

// Count returns the number of sessions that have not expired.
func (b *Binder) Count() int {
	now := NowTimeFunc()

	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, s := range b.sessions {
		if !s.expired(now) {
			n++
		}
	}
	return n
}

// Sweep removes expired sessions and returns how many were removed.
func (b *Binder) Sweep() int {
	now := NowTimeFunc()

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for id, s := range b.sessions {
		if s.expired(now) {
			delete(b.sessions, id)
			removed++
		}
	}
	metrics.SessionsActive.Set(float64(len(b.sessions)))
	if removed > 0 {
		log.Info().Int("removed", removed).Int("remaining", len(b.sessions)).Msg("expired sessions swept")
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (b *Binder) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.Sweep()
		}
	}
}

func (b *Binder) create(id string, now time.Time) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: now,
		LastSeen:  now,
		ExpiresAt: now.Add(b.idleTimeout),
	}
	b.sessions[id] = s
	metrics.SessionsActive.Set(float64(len(b.sessions)))
	return s
}

func (b *Binder) extend(s *Session, now time.Time) {
	if deadline := now.Add(b.idleTimeout); deadline.After(s.ExpiresAt) {
		s.ExpiresAt = deadline
	}
	if now.After(s.LastSeen) {
		s.LastSeen = now
	}
}

// live returns the session if it exists and has not expired. Caller holds mu.
func (b *Binder) live(id string, now time.Time) (*Session, error) {
	s, ok := b.sessions[id]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrSessionNotFound, "session %s", id)
	}
	if s.expired(now) {
		return nil, apperrors.Wrapf(apperrors.ErrSessionExpired, "session %s", id)
	}
	return s, nil
}
