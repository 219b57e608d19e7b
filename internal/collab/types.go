package collab

import (
	"fmt"
	"time"
)

// Pattern identifies one of the structured coordination protocols.
type Pattern int

const (
	Orchestration Pattern = iota
	Delegation
	Mediation
	Channeling
)

func (p Pattern) String() string {
	switch p {
	case Orchestration:
		return "orchestration"
	case Delegation:
		return "delegation"
	case Mediation:
		return "mediation"
	case Channeling:
		return "channeling"
	default:
		return fmt.Sprintf("pattern(%d)", int(p))
	}
}

// TaskStatus is the lifecycle state of a task. Transitions are
// monotonic: a task never moves backwards, and terminal states are
// final.
type TaskStatus int

const (
	StatusPending TaskStatus = iota
	StatusAssigned
	StatusCompleted
	StatusFailed
)

func (s TaskStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAssigned:
		return "assigned"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is one unit of coordinated work under a pattern. Values
// returned from the Coordinator are copies.
type Task struct {
	ID           string
	Pattern      Pattern
	Initiator    string
	Participants []string
	Status       TaskStatus
	Description  string
	Context      map[string]any
	Result       any
	CreatedAt    time.Time
	Deadline     time.Time
}

// Expired reports whether the task carries a deadline that has passed.
func (t Task) Expired(now time.Time) bool {
	return !t.Deadline.IsZero() && now.After(t.Deadline)
}

// Requirement names a capability an orchestration needs filled, with
// the candidate participants that could fill it.
type Requirement struct {
	Name        string
	Description string
	Candidates  []string
}

// SessionStatus is the lifecycle state of a mediation session.
type SessionStatus int

const (
	SessionActive SessionStatus = iota
	SessionResolved
)

func (s SessionStatus) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionResolved:
		return "resolved"
	default:
		return fmt.Sprintf("session(%d)", int(s))
	}
}

// MediationSession is a mediator-routed conversation between
// participants in dispute.
type MediationSession struct {
	ID           string
	Mediator     string
	Participants []string
	Topic        string
	Status       SessionStatus
	Resolution   string
	CreatedAt    time.Time
	ResolvedAt   time.Time
}

// ChannelMode is the transformation a channeling session applies.
type ChannelMode int

const (
	ModeTranslate ChannelMode = iota
	ModeAmplify
	ModeFilter
)

func (m ChannelMode) String() string {
	switch m {
	case ModeTranslate:
		return "translate"
	case ModeAmplify:
		return "amplify"
	case ModeFilter:
		return "filter"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ChannelingSession is a one-shot transform-and-relay: the channeler
// takes a source participant's message, transforms it, and the
// completed session broadcasts the result to the audience.
type ChannelingSession struct {
	ID        string
	Channeler string
	Source    string
	Mode      ChannelMode
	Audience  []string
	CreatedAt time.Time
}
