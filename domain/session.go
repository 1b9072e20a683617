package domain

// SessionState is the lifecycle of a client connection.
type SessionState int

const (
	Connecting SessionState = iota
	Authenticating
	Active
	Closing
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Authenticating:
		return "AUTHENTICATING"
	case Active:
		return "ACTIVE"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// transitions lists every legal move. Connecting -> Closing only happens when
// the peer leaves before sending any credential.
var transitions = map[SessionState][]SessionState{
	Connecting:     {Authenticating, Closing},
	Authenticating: {Active, Closing},
	Active:         {Closing},
	Closing:        {Closed},
}

// CanTransition reports whether from -> to is a legal state change.
func CanTransition(from, to SessionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// SessionPolicy decides what happens when a user logs in twice.
type SessionPolicy string

const (
	RejectNew SessionPolicy = "reject"
	EvictOld  SessionPolicy = "evict"
)
