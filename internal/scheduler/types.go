package scheduler

import (
	"context"
	"fmt"
	"time"
)

// Urgency is the scheduling signal an interest oracle attaches to a
// wish to speak. It orders candidates within one polling round and is
// distinct from floor-queue priority.
type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyNormal
	UrgencyHigh
	UrgencyLeader
)

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyNormal:
		return "normal"
	case UrgencyHigh:
		return "high"
	case UrgencyLeader:
		return "leader"
	default:
		return fmt.Sprintf("urgency(%d)", int(u))
	}
}

// Interest is an oracle's answer for one participant.
type Interest struct {
	WantsToSpeak bool
	Urgency      Urgency
}

// Message is one entry in the conversation transcript.
type Message struct {
	Sender  string
	Content string
	At      time.Time
}

// InterestOracle decides whether a participant wants to respond to a
// message. External: the real implementation sits in front of a
// personality or model layer.
type InterestOracle interface {
	AssessInterest(ctx context.Context, participantID string, msg Message) (Interest, error)
}

// ContentGenerator produces a participant's contribution once the
// floor is granted. External for the same reason.
type ContentGenerator interface {
	Generate(ctx context.Context, participantID string, msg Message) (string, error)
}
