package collab

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/palaver-dev/palaver/internal/errors"
	"github.com/palaver-dev/palaver/internal/transport"
)

func newCoordinator(t *testing.T, opts ...Option) (*Coordinator, *transport.Memory, *clock.Mock) {
	t.Helper()

	clk := clock.NewMock()
	tr := transport.NewMemory(nil)
	opts = append([]Option{WithClock(clk)}, opts...)
	return NewCoordinator(tr, opts...), tr, clk
}

func deliveredTypes(tr *transport.Memory, id string) []string {
	var out []string
	for _, d := range tr.DeliveriesTo(id) {
		out = append(out, d.EventType)
	}
	return out
}

func containsType(tr *transport.Memory, id, eventType string) bool {
	for _, got := range deliveredTypes(tr, id) {
		if got == eventType {
			return true
		}
	}
	return false
}

func TestInitiateOrchestration(t *testing.T) {
	c, tr, _ := newCoordinator(t)

	taskID, err := c.InitiateOrchestration("conductor", []Requirement{
		{Name: "analysis", Candidates: []string{"zoe", "adam"}},
		{Name: "summary", Candidates: []string{"adam"}},
	})
	if err != nil {
		t.Fatalf("InitiateOrchestration() error = %v", err)
	}

	task, err := c.Task(taskID)
	if err != nil {
		t.Fatalf("Task() error = %v", err)
	}
	if task.Pattern != Orchestration || task.Status != StatusPending {
		t.Errorf("task = %v/%v, want orchestration/pending", task.Pattern, task.Status)
	}

	assignments, ok := task.Context["assignments"].(map[string]any)
	if !ok {
		t.Fatal("task context missing assignments")
	}
	// First candidate in lexical order fills each requirement.
	if assignments["analysis"] != "adam" {
		t.Errorf("analysis assigned to %v, want adam", assignments["analysis"])
	}
	if !containsType(tr, "adam", "orchestration_initiated") {
		t.Error("assigned participant was not notified")
	}
}

func TestInitiateOrchestrationValidation(t *testing.T) {
	c, _, _ := newCoordinator(t)

	tests := []struct {
		name      string
		initiator string
		reqs      []Requirement
	}{
		{"empty initiator", "", []Requirement{{Name: "r", Candidates: []string{"a"}}}},
		{"no requirements", "conductor", nil},
		{"no candidates", "conductor", []Requirement{{Name: "r"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.InitiateOrchestration(tt.initiator, tt.reqs)
			if !errors.Is(err, errors.ErrInvalidRequest) {
				t.Errorf("InitiateOrchestration() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestExecuteOrchestrationTask(t *testing.T) {
	c, tr, _ := newCoordinator(t)
	taskID, err := c.InitiateOrchestration("conductor", []Requirement{
		{Name: "r", Candidates: []string{"worker"}},
	})
	if err != nil {
		t.Fatalf("InitiateOrchestration() error = %v", err)
	}

	if err := c.ExecuteOrchestrationTask(taskID); err != nil {
		t.Fatalf("ExecuteOrchestrationTask() error = %v", err)
	}
	task, _ := c.Task(taskID)
	if task.Status != StatusAssigned {
		t.Errorf("Status = %v, want assigned", task.Status)
	}
	if !containsType(tr, "worker", "task_assignment") {
		t.Error("participant did not receive the assignment")
	}

	// A second execute is a status regression.
	if err := c.ExecuteOrchestrationTask(taskID); !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("second ExecuteOrchestrationTask() error = %v, want ErrInvalidState", err)
	}
}

func TestCompleteOrchestrationTask(t *testing.T) {
	c, tr, _ := newCoordinator(t)
	taskID, err := c.InitiateOrchestration("conductor", []Requirement{
		{Name: "r", Candidates: []string{"worker"}},
	})
	if err != nil {
		t.Fatalf("InitiateOrchestration() error = %v", err)
	}
	if err := c.ExecuteOrchestrationTask(taskID); err != nil {
		t.Fatalf("ExecuteOrchestrationTask() error = %v", err)
	}

	if err := c.CompleteOrchestrationTask(taskID, "findings", true); err != nil {
		t.Fatalf("CompleteOrchestrationTask() error = %v", err)
	}
	task, _ := c.Task(taskID)
	if task.Status != StatusCompleted || task.Result != "findings" {
		t.Errorf("task = %v/%v, want completed/findings", task.Status, task.Result)
	}
	if !containsType(tr, "conductor", "orchestration_completed") {
		t.Error("initiator was not notified of completion")
	}

	// Terminal status is final.
	if err := c.CompleteOrchestrationTask(taskID, nil, false); !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("re-complete error = %v, want ErrInvalidState", err)
	}
}

func TestPollTaskResult(t *testing.T) {
	clk := clock.NewMock()
	c := NewCoordinator(transport.NewMemory(nil), WithClock(clk))

	taskID, err := c.InitiateOrchestration("conductor", []Requirement{
		{Name: "r", Candidates: []string{"worker"}},
	})
	if err != nil {
		t.Fatalf("InitiateOrchestration() error = %v", err)
	}
	if err := c.ExecuteOrchestrationTask(taskID); err != nil {
		t.Fatalf("ExecuteOrchestrationTask() error = %v", err)
	}
	if err := c.CompleteOrchestrationTask(taskID, 42, true); err != nil {
		t.Fatalf("CompleteOrchestrationTask() error = %v", err)
	}

	got, err := c.PollTaskResult(context.Background(), taskID)
	if err != nil {
		t.Fatalf("PollTaskResult() error = %v", err)
	}
	if got != 42 {
		t.Errorf("PollTaskResult() = %v, want 42", got)
	}
}

func TestPollTaskResultExhaustionSoftFails(t *testing.T) {
	c := NewCoordinator(transport.NewMemory(nil),
		WithPollInterval(time.Millisecond), WithPollAttempts(3))

	taskID, err := c.InitiateOrchestration("conductor", []Requirement{
		{Name: "r", Candidates: []string{"worker"}},
	})
	if err != nil {
		t.Fatalf("InitiateOrchestration() error = %v", err)
	}

	got, err := c.PollTaskResult(context.Background(), taskID)
	if err != nil {
		t.Errorf("PollTaskResult() exhaustion error = %v, want nil", err)
	}
	if got != nil {
		t.Errorf("PollTaskResult() = %v, want nil", got)
	}
}

func TestPollTaskResultUnknownTask(t *testing.T) {
	c, _, _ := newCoordinator(t)
	_, err := c.PollTaskResult(context.Background(), "ghost")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("PollTaskResult() error = %v, want ErrNotFound", err)
	}
}

func TestDelegationLifecycle(t *testing.T) {
	c, tr, _ := newCoordinator(t)

	taskID, err := c.InitiateDelegation("alice", "bob", "review", "look this over", nil, time.Minute)
	if err != nil {
		t.Fatalf("InitiateDelegation() error = %v", err)
	}
	if !containsType(tr, "bob", "task_delegation") {
		t.Error("delegate was not notified")
	}

	if err := c.CompleteDelegation(taskID, "looks good"); err != nil {
		t.Fatalf("CompleteDelegation() error = %v", err)
	}
	if !containsType(tr, "alice", "delegation_completed") {
		t.Error("delegator was not notified of completion")
	}

	// Completed delegations are removed.
	if _, err := c.Task(taskID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Task() after completion error = %v, want ErrNotFound", err)
	}
	if err := c.CompleteDelegation(taskID, nil); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("re-complete error = %v, want ErrNotFound", err)
	}
}

func TestDelegationExpirySweep(t *testing.T) {
	c, tr, clk := newCoordinator(t)

	taskID, err := c.InitiateDelegation("alice", "bob", "review", "", nil, time.Minute)
	if err != nil {
		t.Fatalf("InitiateDelegation() error = %v", err)
	}

	clk.Add(2 * time.Minute)
	c.sweep()

	if _, err := c.Task(taskID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Task() after expiry error = %v, want ErrNotFound", err)
	}
	if !containsType(tr, "alice", "delegation_expired") {
		t.Error("delegator was not told about the expiry")
	}
}

func TestSweepRemovesOverAgeTasks(t *testing.T) {
	c, _, clk := newCoordinator(t, WithTaskMaxAge(10*time.Minute))

	taskID, err := c.InitiateOrchestration("conductor", []Requirement{
		{Name: "r", Candidates: []string{"worker"}},
	})
	if err != nil {
		t.Fatalf("InitiateOrchestration() error = %v", err)
	}
	if err := c.ExecuteOrchestrationTask(taskID); err != nil {
		t.Fatalf("ExecuteOrchestrationTask() error = %v", err)
	}

	clk.Add(11 * time.Minute)
	c.sweep()

	// Age bounds memory regardless of completion status.
	if _, err := c.Task(taskID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Task() after max age error = %v, want ErrNotFound", err)
	}
}

func TestMediationLifecycle(t *testing.T) {
	c, tr, _ := newCoordinator(t)

	sessionID, err := c.InitiateMediation("judge", []string{"alice", "bob"}, "naming things")
	if err != nil {
		t.Fatalf("InitiateMediation() error = %v", err)
	}

	if err := c.MediateMessage(sessionID, "alice", "I prefer snake_case"); err != nil {
		t.Fatalf("MediateMessage() error = %v", err)
	}
	if containsType(tr, "alice", "mediation_message") {
		t.Error("message was routed back to its sender")
	}
	if !containsType(tr, "bob", "mediation_message") {
		t.Error("message did not reach the other participant")
	}

	if err := c.ResolveMediation(sessionID, "camelCase wins"); err != nil {
		t.Fatalf("ResolveMediation() error = %v", err)
	}
	for _, id := range []string{"alice", "bob", "judge"} {
		if !containsType(tr, id, "mediation_resolved") {
			t.Errorf("%s did not receive the resolution", id)
		}
	}

	if err := c.MediateMessage(sessionID, "alice", "one more thing"); !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("MediateMessage() on resolved session error = %v, want ErrInvalidState", err)
	}
	if err := c.ResolveMediation(sessionID, "again"); !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("re-resolve error = %v, want ErrInvalidState", err)
	}
}

func TestMediationValidation(t *testing.T) {
	c, _, _ := newCoordinator(t)

	if _, err := c.InitiateMediation("judge", []string{"solo"}, "t"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("InitiateMediation() with one participant error = %v, want ErrInvalidRequest", err)
	}

	sessionID, err := c.InitiateMediation("judge", []string{"alice", "bob"}, "t")
	if err != nil {
		t.Fatalf("InitiateMediation() error = %v", err)
	}
	if err := c.MediateMessage(sessionID, "stranger", "hi"); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("MediateMessage() from outsider error = %v, want ErrInvalidRequest", err)
	}
}

func TestChannelingOneShot(t *testing.T) {
	c, tr, _ := newCoordinator(t)

	sessionID, err := c.InitiateChanneling("interpreter", "speaker", ModeTranslate, []string{"alice", "bob"})
	if err != nil {
		t.Fatalf("InitiateChanneling() error = %v", err)
	}

	if err := c.CompleteChanneling(sessionID, "the translated message"); err != nil {
		t.Fatalf("CompleteChanneling() error = %v", err)
	}
	for _, id := range []string{"alice", "bob"} {
		if !containsType(tr, id, "channeled_message") {
			t.Errorf("%s did not receive the channeled message", id)
		}
	}

	if err := c.CompleteChanneling(sessionID, "again"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second CompleteChanneling() error = %v, want ErrNotFound", err)
	}
}
