package parallel

import (
	"fmt"
	"time"
)

// ThreadStatus is the lifecycle state of a conversation thread.
type ThreadStatus int

const (
	ThreadActive ThreadStatus = iota
	ThreadCompleted
	ThreadFailed
	ThreadMerged
)

func (s ThreadStatus) String() string {
	switch s {
	case ThreadActive:
		return "active"
	case ThreadCompleted:
		return "completed"
	case ThreadFailed:
		return "failed"
	case ThreadMerged:
		return "merged"
	default:
		return fmt.Sprintf("thread(%d)", int(s))
	}
}

// Terminal reports whether the thread has finished its work. Merged is
// terminal too; it marks a completed thread whose results were folded
// into a reconvened conversation.
func (s ThreadStatus) Terminal() bool {
	return s != ThreadActive
}

// Contribution is one message added to a thread, in order.
type Contribution struct {
	ThreadID      string
	ParticipantID string
	Content       string
	At            time.Time
}

// ThreadResult summarizes a finished thread.
type ThreadResult struct {
	ThreadID      string
	Success       bool
	Summary       string
	Contributions []Contribution
}

// Thread is an independent parallel sub-conversation under one parent
// problem. Values returned from the Manager are copies.
type Thread struct {
	ID            string
	ProblemID     string
	Topic         string
	Participants  []string
	Coordinator   string
	Status        ThreadStatus
	Contributions []Contribution
	Result        *ThreadResult
	CreatedAt     time.Time
	CompletedAt   time.Time
}

// ThreadConfig describes one thread to create for a problem.
type ThreadConfig struct {
	Topic        string
	Participants []string
}

// Policy decides when a synchronization point fires.
type Policy int

const (
	// AllComplete fires when every required thread is terminal.
	AllComplete Policy = iota
	// MajorityComplete fires when strictly more than half of the
	// required threads are terminal. An exact half never fires.
	MajorityComplete
	// TimeoutBased fires when the deadline passes, whatever the
	// completion state.
	TimeoutBased
)

func (p Policy) String() string {
	switch p {
	case AllComplete:
		return "all_complete"
	case MajorityComplete:
		return "majority_complete"
	case TimeoutBased:
		return "timeout_based"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// SyncPoint is a one-shot barrier across a set of threads. It fires
// once when its policy is first satisfied and is consumed once by
// ReconveneThreads.
type SyncPoint struct {
	ID         string
	ProblemID  string
	Required   []string
	Completed  []string
	Policy     Policy
	Deadline   time.Time
	Reconvener string
	Fired      bool
	Consumed   bool
	CreatedAt  time.Time
}
