package policy

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Policy holds the active snapshot. Readers never block; Apply replaces the
// snapshot with a single pointer swap.
type Policy struct {
	current atomic.Pointer[Snapshot]

	mu          sync.Mutex // serialises Apply and subscriber notification
	version     uint64
	subscribers []func(*Snapshot)
}

func New(initial *Snapshot) *Policy {
	p := &Policy{}
	p.Apply(initial)
	return p
}

// Snapshot returns the active snapshot. Callers that make several checks for
// one request should take a snapshot once and use it throughout.
func (p *Policy) Snapshot() *Snapshot {
	return p.current.Load()
}

func (p *Policy) IsAllowed(account string) bool {
	return p.Snapshot().IsAllowed(account)
}

func (p *Policy) CanInvoke(account, capability string) bool {
	return p.Snapshot().CanInvoke(account, capability)
}

// Apply publishes s as the active snapshot and notifies subscribers in order.
func (p *Policy) Apply(s *Snapshot) {
	if s == nil {
		s = AllowAll()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.version++
	next := *s
	next.version = p.version
	p.current.Store(&next)

	log.Info().
		Uint64("version", next.version).
		Str("source", next.source).
		Int("accounts", len(next.entries)).
		Bool("restrict_accounts", next.restrictAccounts).
		Msg("policy snapshot applied")

	for _, fn := range p.subscribers {
		fn(&next)
	}
}

// Subscribe registers fn to receive every snapshot applied after this call.
func (p *Policy) Subscribe(fn func(*Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, fn)
}
