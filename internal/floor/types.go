package floor

import (
	"fmt"
	"time"
)

// Request is a pending claim on the floor. The queue is kept sorted by
// priority descending, then arrival ascending, with at most one entry
// per participant.
type Request struct {
	ParticipantID string
	Priority      int
	Arrival       time.Time
	Reason        string
}

// Transition is one entry in the append-only floor history. An empty
// From or To means "no holder".
type Transition struct {
	From   string
	To     string
	At     time.Time
	Reason string
}

// Status is a point-in-time snapshot of the floor.
type Status struct {
	Holder      string
	GrantedAt   time.Time
	Deadline    time.Time
	QueueLength int
}

// Held reports whether some participant holds the floor.
func (s Status) Held() bool {
	return s.Holder != ""
}

// Strategy selects how a detected deadlock is resolved.
type Strategy int

const (
	// ResetQueue clears the queue and asks each queued participant to
	// re-request. The holder is untouched. This is the default.
	ResetQueue Strategy = iota
	// PrioritizeLeader force-grants the designated leader when the
	// leader is the holder or is queued, bypassing queue order.
	PrioritizeLeader
	// RevokeAll clears the holder and the whole queue when queue
	// occupancy exceeds half the capacity.
	RevokeAll
)

func (s Strategy) String() string {
	switch s {
	case ResetQueue:
		return "reset_queue"
	case PrioritizeLeader:
		return "prioritize_leader"
	case RevokeAll:
		return "revoke_all"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a configuration string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "reset_queue", "":
		return ResetQueue, nil
	case "prioritize_leader":
		return PrioritizeLeader, nil
	case "revoke_all":
		return RevokeAll, nil
	default:
		return ResetQueue, fmt.Errorf("unknown deadlock strategy %q", s)
	}
}
