// Package collab tracks task lifecycles for the four structured
// coordination patterns: orchestration, delegation, mediation, and
// channeling. The Coordinator depends only on the notification
// transport; it never touches the floor.
package collab

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/palaver-dev/palaver/internal/errors"
	"github.com/palaver-dev/palaver/internal/event"
	"github.com/palaver-dev/palaver/internal/logging"
	"github.com/palaver-dev/palaver/internal/transport"
)

const transportSender = "coordinator"

const (
	defaultPollInterval  = 500 * time.Millisecond
	defaultPollAttempts  = 20
	defaultTaskMaxAge    = 30 * time.Minute
	defaultSweepInterval = time.Minute
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPollInterval sets the delay between PollTaskResult attempts.
func WithPollInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithPollAttempts bounds PollTaskResult.
func WithPollAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.pollAttempts = n
		}
	}
}

// WithTaskMaxAge sets the age at which the sweep removes tasks and
// sessions regardless of completion.
func WithTaskMaxAge(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.taskMaxAge = d
		}
	}
}

// WithSweepInterval sets how often the cleanup sweep runs.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// WithClock substitutes the clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) {
		if clk != nil {
			c.clk = clk
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBus sets the event bus task events are published on.
func WithBus(bus *event.Bus) Option {
	return func(c *Coordinator) {
		c.bus = bus
	}
}

// Coordinator owns all pattern state behind a single mutex. All
// registries are in-memory and bounded by the periodic sweep.
type Coordinator struct {
	mu          sync.Mutex
	tasks       map[string]*Task
	mediations  map[string]*MediationSession
	channelings map[string]*ChannelingSession

	tr  transport.Transport
	bus *event.Bus

	pollInterval  time.Duration
	pollAttempts  int
	taskMaxAge    time.Duration
	sweepInterval time.Duration

	clk    clock.Clock
	logger *logging.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewCoordinator creates a Coordinator sending notifications through
// the given transport.
func NewCoordinator(tr transport.Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		tasks:         make(map[string]*Task),
		mediations:    make(map[string]*MediationSession),
		channelings:   make(map[string]*ChannelingSession),
		tr:            tr,
		pollInterval:  defaultPollInterval,
		pollAttempts:  defaultPollAttempts,
		taskMaxAge:    defaultTaskMaxAge,
		sweepInterval: defaultSweepInterval,
		clk:           clock.New(),
		logger:        logging.NopLogger(),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the periodic cleanup sweep.
func (c *Coordinator) Start() {
	c.startOnce.Do(func() {
		c.started = true
		go c.run()
	})
}

// Stop halts the sweep. Safe to call more than once, and a no-op if
// the sweep was never started.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if c.started {
		<-c.doneCh
	}
}

func (c *Coordinator) run() {
	defer close(c.doneCh)

	ticker := c.clk.Ticker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.stopCh:
			return
		}
	}
}

// sweep purges expired delegations, over-age tasks regardless of
// status, and over-age resolved or abandoned sessions. Bounds memory
// for a long-lived process.
func (c *Coordinator) sweep() {
	now := c.clk.Now()
	type expiry struct {
		taskID    string
		initiator string
	}
	var expired []expiry

	c.mu.Lock()
	for id, t := range c.tasks {
		switch {
		case t.Pattern == Delegation && !t.Status.Terminal() && t.Expired(now):
			expired = append(expired, expiry{taskID: id, initiator: t.Initiator})
			delete(c.tasks, id)
		case now.Sub(t.CreatedAt) > c.taskMaxAge:
			delete(c.tasks, id)
		}
	}
	for id, s := range c.mediations {
		if now.Sub(s.CreatedAt) > c.taskMaxAge {
			delete(c.mediations, id)
		}
	}
	for id, s := range c.channelings {
		if now.Sub(s.CreatedAt) > c.taskMaxAge {
			delete(c.channelings, id)
		}
	}
	c.mu.Unlock()

	for _, e := range expired {
		c.logger.Warn("delegation expired", "task_id", e.taskID, "delegator", e.initiator)
		c.send("delegation_expired", map[string]any{"task_id": e.taskID}, e.initiator)
	}
}

// Task returns a copy of the task.
func (c *Coordinator) Task(taskID string) (Task, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tasks[taskID]
	if !ok {
		return Task{}, errors.NewNotFoundError("task", taskID)
	}
	return c.copyTask(t), nil
}

// Tasks returns a copy of every live task.
func (c *Coordinator) Tasks() []Task {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		out = append(out, c.copyTask(t))
	}
	return out
}

func (c *Coordinator) copyTask(t *Task) Task {
	cp := *t
	cp.Participants = append([]string(nil), t.Participants...)
	if t.Context != nil {
		cp.Context = make(map[string]any, len(t.Context))
		for k, v := range t.Context {
			cp.Context[k] = v
		}
	}
	return cp
}

// advanceLocked moves a task forward. Regressions and transitions out
// of a terminal state fail with ErrInvalidState.
func (c *Coordinator) advanceLocked(t *Task, to TaskStatus) error {
	if t.Status.Terminal() || to <= t.Status {
		return errors.NewStateError("task", t.Status.String(), to.String())
	}
	t.Status = to
	return nil
}

func (c *Coordinator) publish(e event.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

// send delivers a notification, logging and dropping failures.
func (c *Coordinator) send(eventType string, payload map[string]any, recipients ...string) {
	if c.tr == nil {
		return
	}
	if err := c.tr.Send(context.Background(), eventType, payload, transportSender, recipients); err != nil {
		c.logger.Warn("notification send failed", "event_type", eventType, "error", err)
	}
}
