package sessions

import "time"

// State of a session with respect to account binding.
type State int

const (
	Unbound State = iota // Open, no account yet; the OAuth flow has not completed
	Bound                // Bound to exactly one account
	Expired              // Idle timeout elapsed; terminal
)

func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Session is an inbound protocol session and its account binding.
type Session struct {
	ID        string    // Opaque identifier supplied by the client or generated on open
	Account   string    // Bound account email, empty while unbound
	CreatedAt time.Time // When the session was opened
	LastSeen  time.Time // Last successful touch
	ExpiresAt time.Time // Idle deadline; only ever moves forward
}

func (s *Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *Session) state(now time.Time) State {
	switch {
	case s.expired(now):
		return Expired
	case s.Account == "":
		return Unbound
	default:
		return Bound
	}
}

// Resolution is the outcome of resolving a session id.
type Resolution struct {
	State   State
	Account string // set only when State is Bound
}

// Info is a read-only view of a session for diagnostics.
type Info struct {
	ID          string    `json:"session_id"`
	State       string    `json:"state"`
	Account     string    `json:"account,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeen    time.Time `json:"last_seen"`
	ExpiresAt   time.Time `json:"expires_at"`
	IdleSeconds float64   `json:"idle_seconds"`
}
