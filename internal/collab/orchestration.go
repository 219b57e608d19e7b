package collab

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/palaver-dev/palaver/internal/errors"
	"github.com/palaver-dev/palaver/internal/event"
)

// InitiateOrchestration matches participants to the requirement set,
// creates a Pending task carrying the assignments, and notifies every
// assigned participant. Each requirement is filled by its first
// candidate in lexical order.
func (c *Coordinator) InitiateOrchestration(initiator string, requirements []Requirement) (string, error) {
	if initiator == "" {
		return "", errors.NewValidationError("initiator", "must not be empty")
	}
	if len(requirements) == 0 {
		return "", errors.NewValidationError("requirements", "must not be empty")
	}

	assignments := make(map[string]any, len(requirements))
	var participants []string
	seen := make(map[string]bool)
	for _, req := range requirements {
		if req.Name == "" {
			return "", errors.NewValidationError("requirement name", "must not be empty")
		}
		if len(req.Candidates) == 0 {
			return "", errors.NewValidationError("requirement "+req.Name, "has no candidates")
		}
		candidates := append([]string(nil), req.Candidates...)
		sort.Strings(candidates)
		assigned := candidates[0]
		assignments[req.Name] = assigned
		if !seen[assigned] {
			seen[assigned] = true
			participants = append(participants, assigned)
		}
	}

	t := &Task{
		ID:           uuid.NewString(),
		Pattern:      Orchestration,
		Initiator:    initiator,
		Participants: participants,
		Status:       StatusPending,
		Context:      map[string]any{"assignments": assignments},
		CreatedAt:    c.clk.Now(),
	}

	c.mu.Lock()
	c.tasks[t.ID] = t
	c.mu.Unlock()

	c.logger.Info("orchestration initiated",
		"task_id", t.ID, "initiator", initiator, "participants", len(participants))
	c.publish(event.NewTaskCreatedEvent(t.ID, Orchestration.String(), initiator))
	c.send("orchestration_initiated", map[string]any{
		"task_id":     t.ID,
		"initiator":   initiator,
		"assignments": assignments,
	}, participants...)

	return t.ID, nil
}

// ExecuteOrchestrationTask moves the task from Pending to Assigned and
// tells every participant to start.
func (c *Coordinator) ExecuteOrchestrationTask(taskID string) error {
	c.mu.Lock()
	t, ok := c.tasks[taskID]
	if !ok || t.Pattern != Orchestration {
		c.mu.Unlock()
		return errors.NewNotFoundError("orchestration task", taskID)
	}
	if err := c.advanceLocked(t, StatusAssigned); err != nil {
		c.mu.Unlock()
		return err
	}
	participants := append([]string(nil), t.Participants...)
	c.mu.Unlock()

	c.publish(event.NewTaskStatusChangedEvent(taskID, Orchestration.String(), StatusAssigned.String()))
	c.send("task_assignment", map[string]any{"task_id": taskID}, participants...)
	return nil
}

// CompleteOrchestrationTask finishes the task, stores the result, and
// notifies the initiator.
func (c *Coordinator) CompleteOrchestrationTask(taskID string, result any, success bool) error {
	to := StatusCompleted
	if !success {
		to = StatusFailed
	}

	c.mu.Lock()
	t, ok := c.tasks[taskID]
	if !ok || t.Pattern != Orchestration {
		c.mu.Unlock()
		return errors.NewNotFoundError("orchestration task", taskID)
	}
	if err := c.advanceLocked(t, to); err != nil {
		c.mu.Unlock()
		return err
	}
	t.Result = result
	initiator := t.Initiator
	c.mu.Unlock()

	c.publish(event.NewTaskStatusChangedEvent(taskID, Orchestration.String(), to.String()))
	c.send("orchestration_completed", map[string]any{
		"task_id": taskID,
		"success": success,
	}, initiator)
	return nil
}

// PollTaskResult waits for the task to reach a terminal status,
// checking at the poll interval up to the attempt bound. Exhaustion is
// a soft failure: it returns nil rather than an error, since a slow
// task is not a broken one.
func (c *Coordinator) PollTaskResult(ctx context.Context, taskID string) (any, error) {
	for attempt := 0; attempt < c.pollAttempts; attempt++ {
		c.mu.Lock()
		t, ok := c.tasks[taskID]
		if !ok {
			c.mu.Unlock()
			return nil, errors.NewNotFoundError("task", taskID)
		}
		if t.Status.Terminal() {
			result := t.Result
			c.mu.Unlock()
			return result, nil
		}
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.clk.After(c.pollInterval):
		}
	}
	return nil, nil
}
