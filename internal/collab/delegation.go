package collab

import (
	"time"

	"github.com/google/uuid"

	"github.com/palaver-dev/palaver/internal/errors"
	"github.com/palaver-dev/palaver/internal/event"
)

const defaultDelegationTimeout = 5 * time.Minute

// InitiateDelegation hands a task from one participant to another with
// an expiry. The task starts Assigned; an uncompleted delegation past
// its deadline is purged by the sweep.
func (c *Coordinator) InitiateDelegation(from, to, taskType, description string, taskContext map[string]any, timeout time.Duration) (string, error) {
	if from == "" {
		return "", errors.NewValidationError("from", "must not be empty")
	}
	if to == "" {
		return "", errors.NewValidationError("to", "must not be empty")
	}
	if taskType == "" {
		return "", errors.NewValidationError("task type", "must not be empty")
	}
	if timeout <= 0 {
		timeout = defaultDelegationTimeout
	}

	now := c.clk.Now()
	t := &Task{
		ID:           uuid.NewString(),
		Pattern:      Delegation,
		Initiator:    from,
		Participants: []string{to},
		Status:       StatusAssigned,
		Description:  description,
		Context:      taskContext,
		CreatedAt:    now,
		Deadline:     now.Add(timeout),
	}

	c.mu.Lock()
	c.tasks[t.ID] = t
	c.mu.Unlock()

	c.logger.Info("delegation initiated",
		"task_id", t.ID, "from", from, "to", to, "task_type", taskType)
	c.publish(event.NewTaskCreatedEvent(t.ID, Delegation.String(), from))
	c.send("task_delegation", map[string]any{
		"task_id":     t.ID,
		"from":        from,
		"task_type":   taskType,
		"description": description,
		"context":     taskContext,
		"deadline":    t.Deadline,
	}, to)

	return t.ID, nil
}

// CompleteDelegation finishes a delegated task, notifies the
// delegator, and removes the task.
func (c *Coordinator) CompleteDelegation(taskID string, result any) error {
	c.mu.Lock()
	t, ok := c.tasks[taskID]
	if !ok || t.Pattern != Delegation {
		c.mu.Unlock()
		return errors.NewNotFoundError("delegation task", taskID)
	}
	if t.Status.Terminal() {
		c.mu.Unlock()
		return errors.NewStateError("task", t.Status.String(), "complete")
	}
	delete(c.tasks, taskID)
	initiator := t.Initiator
	c.mu.Unlock()

	c.publish(event.NewTaskStatusChangedEvent(taskID, Delegation.String(), StatusCompleted.String()))
	c.send("delegation_completed", map[string]any{
		"task_id": taskID,
		"result":  result,
	}, initiator)
	return nil
}
