package policy

import (
	"sort"
	"strings"
	"time"

	"github.com/jrsteele09/go-workspace-gateway/accounts"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
)

// Wildcard permits every capability.
const Wildcard = "*"

// CapabilitySet is a set of capability names. An entry permits the exact
// capability and, for a bare service name such as "gmail", every capability
// under it ("gmail.read", "gmail.send").
type CapabilitySet map[string]struct{}

func NewCapabilitySet(names ...string) CapabilitySet {
	set := make(CapabilitySet, len(names))
	for _, n := range names {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Permits reports whether capability is covered by the set.
func (s CapabilitySet) Permits(capability string) bool {
	capability = strings.ToLower(capability)
	if _, ok := s[Wildcard]; ok {
		return true
	}
	for {
		if _, ok := s[capability]; ok {
			return true
		}
		i := strings.LastIndexByte(capability, '.')
		if i < 0 {
			return false
		}
		capability = capability[:i]
	}
}

// Names returns the sorted members of the set.
func (s CapabilitySet) Names() []string {
	names := make([]string, 0, len(s))
	for n := range s {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type entry struct {
	enabled      bool
	capabilities CapabilitySet // nil when no allow-list is configured
}

// Snapshot is an immutable policy table. Obtain one from Compile and publish it
// through Policy.Apply; it is never modified afterwards.
type Snapshot struct {
	version             uint64
	source              string
	loadedAt            time.Time
	restrictAccounts    bool
	defaultCapabilities CapabilitySet // nil: all capabilities
	entries             map[string]entry
}

// Document is the declarative form of a policy, as read from a file.
type Document struct {
	// RestrictAccounts denies accounts that have no entry
	RestrictAccounts bool `yaml:"restrict_accounts" json:"restrict_accounts"`
	// DefaultCapabilities applies to accounts without their own list; absent means all
	DefaultCapabilities []string                `yaml:"default_capabilities" json:"default_capabilities"`
	Accounts            map[string]AccountEntry `yaml:"accounts" json:"accounts"`
}

// AccountEntry is the policy for one account. A nil Enabled means enabled.
// A nil Capabilities list falls back to the defaults; an empty list denies every capability.
type AccountEntry struct {
	Enabled      *bool    `yaml:"enabled" json:"enabled"`
	Capabilities []string `yaml:"capabilities" json:"capabilities"`
}

// Compile validates doc and builds a snapshot from it.
func Compile(doc Document, source string) (*Snapshot, error) {
	s := &Snapshot{
		source:           source,
		loadedAt:         time.Now(),
		restrictAccounts: doc.RestrictAccounts,
		entries:          make(map[string]entry, len(doc.Accounts)),
	}
	if doc.DefaultCapabilities != nil {
		s.defaultCapabilities = NewCapabilitySet(doc.DefaultCapabilities...)
	}

	for email, e := range doc.Accounts {
		key := accounts.NormalizeEmail(email)
		if key == "" || !strings.Contains(key, "@") {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidRecord, "policy %s: %q is not an email address", source, email)
		}
		if _, dup := s.entries[key]; dup {
			return nil, apperrors.Wrapf(apperrors.ErrInvalidRecord, "policy %s: account %s listed more than once", source, key)
		}

		compiled := entry{enabled: e.Enabled == nil || *e.Enabled}
		if e.Capabilities != nil {
			compiled.capabilities = NewCapabilitySet(e.Capabilities...)
		}
		s.entries[key] = compiled
	}
	return s, nil
}

// AllowAll is the policy used when nothing is configured.
func AllowAll() *Snapshot {
	s, _ := Compile(Document{}, "default")
	return s
}

// IsAllowed reports whether account may authenticate and be used.
func (s *Snapshot) IsAllowed(account string) bool {
	e, ok := s.entries[accounts.NormalizeEmail(account)]
	if !ok {
		return !s.restrictAccounts
	}
	return e.enabled
}

// CanInvoke reports whether account may invoke capability. Disallowed accounts
// can invoke nothing.
func (s *Snapshot) CanInvoke(account, capability string) bool {
	if !s.IsAllowed(account) {
		return false
	}

	caps := s.defaultCapabilities
	if e, ok := s.entries[accounts.NormalizeEmail(account)]; ok && e.capabilities != nil {
		caps = e.capabilities
	}
	if caps == nil {
		return true
	}
	return caps.Permits(capability)
}

// Capabilities returns the allow-list that applies to account, or nil when
// every capability is permitted.
func (s *Snapshot) Capabilities(account string) []string {
	caps := s.defaultCapabilities
	if e, ok := s.entries[accounts.NormalizeEmail(account)]; ok && e.capabilities != nil {
		caps = e.capabilities
	}
	if caps == nil {
		return nil
	}
	return caps.Names()
}

// EnabledFlags returns the enabled flag of every listed account.
func (s *Snapshot) EnabledFlags() map[string]bool {
	flags := make(map[string]bool, len(s.entries))
	for email, e := range s.entries {
		flags[email] = e.enabled
	}
	return flags
}

// RestrictAccounts reports whether unlisted accounts are denied.
func (s *Snapshot) RestrictAccounts() bool { return s.restrictAccounts }

// Version is assigned when the snapshot is applied; 0 means not yet applied.
func (s *Snapshot) Version() uint64 { return s.version }

func (s *Snapshot) Source() string { return s.source }

func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Len returns the number of listed accounts.
func (s *Snapshot) Len() int { return len(s.entries) }
