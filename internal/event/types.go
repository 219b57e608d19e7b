package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "floor.granted", "sync.fired")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Floor Lifecycle Events
// -----------------------------------------------------------------------------

// FloorRequestedEvent is emitted when a participant requests the floor.
type FloorRequestedEvent struct {
	baseEvent
	ParticipantID string // Participant that asked for the floor
	Priority      int    // Requested priority
	Reason        string // Why the participant wants to speak
	Queued        bool   // True if the request was queued rather than granted
}

// NewFloorRequestedEvent creates a FloorRequestedEvent.
func NewFloorRequestedEvent(participantID string, priority int, reason string, queued bool) FloorRequestedEvent {
	return FloorRequestedEvent{
		baseEvent:     newBaseEvent("floor.requested"),
		ParticipantID: participantID,
		Priority:      priority,
		Reason:        reason,
		Queued:        queued,
	}
}

// FloorGrantedEvent is emitted when the floor changes hands.
type FloorGrantedEvent struct {
	baseEvent
	ParticipantID string // New holder
	Displaced     string // Previous holder, empty if the floor was idle
	Reason        string // Reason recorded in the transition history
}

// NewFloorGrantedEvent creates a FloorGrantedEvent.
func NewFloorGrantedEvent(participantID, displaced, reason string) FloorGrantedEvent {
	return FloorGrantedEvent{
		baseEvent:     newBaseEvent("floor.granted"),
		ParticipantID: participantID,
		Displaced:     displaced,
		Reason:        reason,
	}
}

// FloorReleasedEvent is emitted when the holder yields or is revoked.
type FloorReleasedEvent struct {
	baseEvent
	ParticipantID string // Participant that held the floor
	Reason        string // "yield", "revoked", "timeout", "unregistered", ...
	Voluntary     bool   // True for yields, false for revocations
}

// NewFloorReleasedEvent creates a FloorReleasedEvent.
func NewFloorReleasedEvent(participantID, reason string, voluntary bool) FloorReleasedEvent {
	return FloorReleasedEvent{
		baseEvent:     newBaseEvent("floor.released"),
		ParticipantID: participantID,
		Reason:        reason,
		Voluntary:     voluntary,
	}
}

// FloorTimeoutEvent is emitted when a grant deadline expires.
type FloorTimeoutEvent struct {
	baseEvent
	ParticipantID string // Holder whose deadline expired
	Failures      int    // Consecutive timeout count for the participant
	Degraded      bool   // True if this timeout marked the participant unavailable
}

// NewFloorTimeoutEvent creates a FloorTimeoutEvent.
func NewFloorTimeoutEvent(participantID string, failures int, degraded bool) FloorTimeoutEvent {
	return FloorTimeoutEvent{
		baseEvent:     newBaseEvent("floor.timeout"),
		ParticipantID: participantID,
		Failures:      failures,
		Degraded:      degraded,
	}
}

// DeadlockEvent is emitted when the detector finds a stuck floor and
// after it applies a resolution strategy.
type DeadlockEvent struct {
	baseEvent
	Holder    string // Holder at detection time
	QueueLen  int    // Queue occupancy at detection time
	Strategy  string // Resolution strategy applied
	Resolved  bool   // False on detection, true on resolution
	Granted   string // Participant force-granted by the resolution, if any
}

// NewDeadlockDetectedEvent creates a DeadlockEvent marking detection.
func NewDeadlockDetectedEvent(holder string, queueLen int, strategy string) DeadlockEvent {
	return DeadlockEvent{
		baseEvent: newBaseEvent("floor.deadlock"),
		Holder:    holder,
		QueueLen:  queueLen,
		Strategy:  strategy,
	}
}

// NewDeadlockResolvedEvent creates a DeadlockEvent marking resolution.
func NewDeadlockResolvedEvent(holder string, queueLen int, strategy, granted string) DeadlockEvent {
	return DeadlockEvent{
		baseEvent: newBaseEvent("floor.deadlock"),
		Holder:    holder,
		QueueLen:  queueLen,
		Strategy:  strategy,
		Resolved:  true,
		Granted:   granted,
	}
}

// EmergencyResetEvent is emitted when all floor state is cleared as a
// last resort after a failed deadlock resolution.
type EmergencyResetEvent struct {
	baseEvent
	Holder   string // Holder cleared by the reset, if any
	QueueLen int    // Queue entries dropped by the reset
	Cause    string // What made the reset necessary
}

// NewEmergencyResetEvent creates an EmergencyResetEvent.
func NewEmergencyResetEvent(holder string, queueLen int, cause string) EmergencyResetEvent {
	return EmergencyResetEvent{
		baseEvent: newBaseEvent("floor.reset"),
		Holder:    holder,
		QueueLen:  queueLen,
		Cause:     cause,
	}
}

// -----------------------------------------------------------------------------
// Participant Lifecycle Events
// -----------------------------------------------------------------------------

// ParticipantEvent is emitted on registry changes: registration,
// unregistration, degradation, and restoration.
type ParticipantEvent struct {
	baseEvent
	ParticipantID string // Participant the change applies to
	Priority      int    // Priority at the time of the event
	Reason        string // Context for degraded/unregistered events
}

// NewParticipantRegisteredEvent creates a registration event.
func NewParticipantRegisteredEvent(participantID string, priority int) ParticipantEvent {
	return ParticipantEvent{
		baseEvent:     newBaseEvent("participant.registered"),
		ParticipantID: participantID,
		Priority:      priority,
	}
}

// NewParticipantUnregisteredEvent creates an unregistration event.
func NewParticipantUnregisteredEvent(participantID, reason string) ParticipantEvent {
	return ParticipantEvent{
		baseEvent:     newBaseEvent("participant.unregistered"),
		ParticipantID: participantID,
		Reason:        reason,
	}
}

// NewParticipantDegradedEvent creates a degradation event.
func NewParticipantDegradedEvent(participantID, reason string) ParticipantEvent {
	return ParticipantEvent{
		baseEvent:     newBaseEvent("participant.degraded"),
		ParticipantID: participantID,
		Reason:        reason,
	}
}

// NewParticipantRestoredEvent creates a restoration event.
func NewParticipantRestoredEvent(participantID string) ParticipantEvent {
	return ParticipantEvent{
		baseEvent:     newBaseEvent("participant.restored"),
		ParticipantID: participantID,
	}
}

// -----------------------------------------------------------------------------
// Task Events (Coordination Patterns)
// -----------------------------------------------------------------------------

// TaskEvent is emitted when a coordination task is created or changes status.
type TaskEvent struct {
	baseEvent
	TaskID    string // Task identifier
	Pattern   string // "orchestration", "delegation", "mediation", "channeling"
	Initiator string // Participant that created the task
	Status    string // Status after the change
}

// NewTaskCreatedEvent creates a task-creation event.
func NewTaskCreatedEvent(taskID, pattern, initiator string) TaskEvent {
	return TaskEvent{
		baseEvent: newBaseEvent("task.created"),
		TaskID:    taskID,
		Pattern:   pattern,
		Initiator: initiator,
		Status:    "pending",
	}
}

// NewTaskStatusChangedEvent creates a status-change event.
func NewTaskStatusChangedEvent(taskID, pattern, status string) TaskEvent {
	return TaskEvent{
		baseEvent: newBaseEvent("task.status_changed"),
		TaskID:    taskID,
		Pattern:   pattern,
		Status:    status,
	}
}

// -----------------------------------------------------------------------------
// Thread and Barrier Events
// -----------------------------------------------------------------------------

// ThreadCompletedEvent is emitted when a conversation thread reaches a
// terminal status.
type ThreadCompletedEvent struct {
	baseEvent
	ThreadID  string // Thread identifier
	ProblemID string // Parent problem identifier
	Success   bool   // False for failed threads
}

// NewThreadCompletedEvent creates a ThreadCompletedEvent.
func NewThreadCompletedEvent(threadID, problemID string, success bool) ThreadCompletedEvent {
	return ThreadCompletedEvent{
		baseEvent: newBaseEvent("thread.completed"),
		ThreadID:  threadID,
		ProblemID: problemID,
		Success:   success,
	}
}

// SyncPointFiredEvent is emitted exactly once per sync point, when its
// completion policy is first satisfied.
type SyncPointFiredEvent struct {
	baseEvent
	SyncID    string // Sync point identifier
	ProblemID string // Parent problem identifier
	Policy    string // Completion policy that fired
	Completed int    // Threads completed at firing time
	Required  int    // Threads required by the barrier
}

// NewSyncPointFiredEvent creates a SyncPointFiredEvent.
func NewSyncPointFiredEvent(syncID, problemID, policy string, completed, required int) SyncPointFiredEvent {
	return SyncPointFiredEvent{
		baseEvent: newBaseEvent("sync.fired"),
		SyncID:    syncID,
		ProblemID: problemID,
		Policy:    policy,
		Completed: completed,
		Required:  required,
	}
}

// NotificationSentEvent is emitted by the in-memory transport for every
// delivered notification, so observers can trace outbound traffic.
type NotificationSentEvent struct {
	baseEvent
	NotificationType string   // Transport-level event type
	Sender           string   // Originating participant or component
	Recipients       []string // Target participants
}

// NewNotificationSentEvent creates a NotificationSentEvent.
func NewNotificationSentEvent(notificationType, sender string, recipients []string) NotificationSentEvent {
	return NotificationSentEvent{
		baseEvent:        newBaseEvent("transport.sent"),
		NotificationType: notificationType,
		Sender:           sender,
		Recipients:       recipients,
	}
}

// ContextPreservedEvent is emitted when a shared-context write is
// broadcast to a problem's active thread participants.
type ContextPreservedEvent struct {
	baseEvent
	ProblemID string // Problem whose context was written
	Key       string // Context key
}

// NewContextPreservedEvent creates a ContextPreservedEvent.
func NewContextPreservedEvent(problemID, key string) ContextPreservedEvent {
	return ContextPreservedEvent{
		baseEvent: newBaseEvent("context.preserved"),
		ProblemID: problemID,
		Key:       key,
	}
}
