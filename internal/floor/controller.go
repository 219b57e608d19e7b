// Package floor implements exclusive floor control for a multi-party
// conversation: a priority request queue, grant timeouts with
// participant degradation, periodic deadlock detection, and an
// append-only transition history.
package floor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/palaver-dev/palaver/internal/errors"
	"github.com/palaver-dev/palaver/internal/event"
	"github.com/palaver-dev/palaver/internal/logging"
	"github.com/palaver-dev/palaver/internal/roster"
	"github.com/palaver-dev/palaver/internal/transport"
)

const transportSender = "floor"

// send is an outbound transport notification deferred until the floor
// lock is released.
type send struct {
	eventType  string
	payload    map[string]any
	recipients []string
}

// outbound collects effects decided under the lock and executed after
// it is released. Neither the bus nor the transport is ever invoked
// while holding the floor mutex.
type outbound struct {
	events []event.Event
	sends  []send
}

func (o *outbound) publish(e event.Event) {
	o.events = append(o.events, e)
}

func (o *outbound) notify(eventType string, payload map[string]any, recipients ...string) {
	o.sends = append(o.sends, send{eventType: eventType, payload: payload, recipients: recipients})
}

// Controller owns the floor. A single mutex guards all floor state;
// timeout and deadlock evaluation run on a periodic tick under the
// same mutex.
type Controller struct {
	mu             sync.Mutex
	holder         string
	grantedAt      time.Time
	deadline       time.Time
	lastTransition time.Time
	queue          []Request
	history        []Transition

	reg *roster.Roster
	tr  transport.Transport
	bus *event.Bus

	capacity     int
	grantTimeout time.Duration
	tickInterval time.Duration
	leaderID     string
	strategy     Strategy

	clk    clock.Clock
	logger *logging.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewController creates a Controller. The roster is consulted for
// availability and failure accounting; the transport carries
// participant-facing notifications.
func NewController(reg *roster.Roster, tr transport.Transport, opts ...Option) *Controller {
	c := &Controller{
		reg:          reg,
		tr:           tr,
		capacity:     defaultCapacity,
		grantTimeout: defaultGrantTimeout,
		tickInterval: defaultTickInterval,
		strategy:     ResetQueue,
		clk:          clock.New(),
		logger:       logging.NopLogger(),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastTransition = c.clk.Now()
	return c
}

// Start launches the periodic timeout and deadlock evaluation loop.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		c.started = true
		go c.run()
	})
}

// Stop halts the evaluation loop. Safe to call more than once, and a
// no-op if the loop was never started.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	if c.started {
		<-c.doneCh
	}
}

func (c *Controller) run() {
	defer close(c.doneCh)

	ticker := c.clk.Ticker(c.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.tick()
		case <-c.stopCh:
			return
		}
	}
}

// Request asks for the floor. It reports whether the floor was granted
// synchronously; a false return with nil error means the request was
// queued.
func (c *Controller) Request(id string, priority int, reason string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("participant id required: %w", errors.ErrInvalidRequest)
	}
	if reason == "" {
		return false, fmt.Errorf("request reason required: %w", errors.ErrInvalidRequest)
	}
	if !c.reg.IsAvailable(id) {
		return false, fmt.Errorf("participant %q: %w", id, errors.ErrUnavailableParticipant)
	}

	var out outbound
	c.mu.Lock()

	// Idempotent for the current holder. No history entry.
	if c.holder == id {
		c.mu.Unlock()
		return true, nil
	}

	if i := c.queueIndex(id); i >= 0 {
		// Already queued. Escalate priority in place, never duplicate.
		if priority > c.queue[i].Priority {
			c.queue[i].Priority = priority
			c.sortQueue()
		}
		c.drainLocked(&out)
		granted := c.holder == id
		c.mu.Unlock()
		c.flush(&out)
		return granted, nil
	}

	if len(c.queue) >= c.capacity {
		c.mu.Unlock()
		return false, fmt.Errorf("queue at capacity %d: %w", c.capacity, errors.ErrQueueFull)
	}

	c.queue = append(c.queue, Request{
		ParticipantID: id,
		Priority:      priority,
		Arrival:       c.clk.Now(),
		Reason:        reason,
	})
	c.sortQueue()
	out.publish(event.NewFloorRequestedEvent(id, priority, reason, true))

	c.drainLocked(&out)
	granted := c.holder == id
	c.mu.Unlock()
	c.flush(&out)
	return granted, nil
}

// Grant hands the floor to the participant directly, displacing the
// current holder if there is one.
func (c *Controller) Grant(id string) error {
	if id == "" {
		return fmt.Errorf("participant id required: %w", errors.ErrInvalidRequest)
	}
	if !c.reg.IsAvailable(id) {
		return fmt.Errorf("participant %q: %w", id, errors.ErrUnavailableParticipant)
	}

	var out outbound
	c.mu.Lock()
	if c.holder != id {
		c.grantLocked(id, "direct grant", &out)
	}
	c.mu.Unlock()
	c.flush(&out)
	return nil
}

// Revoke takes the floor away from the holder and drains the queue.
func (c *Controller) Revoke(id, reason string) error {
	return c.release(id, reason, false)
}

// Yield is a voluntary release by the holder. It clears the holder's
// failure count before the queue is drained.
func (c *Controller) Yield(id, reason string) error {
	if reason == "" {
		reason = "yielded"
	}
	if err := c.release(id, reason, true); err != nil {
		return err
	}
	if err := c.reg.RecordActivity(id); err != nil {
		c.logger.WithParticipant(id).Warn("activity record failed", "error", err)
	}
	return nil
}

func (c *Controller) release(id, reason string, voluntary bool) error {
	if id == "" {
		return fmt.Errorf("participant id required: %w", errors.ErrInvalidRequest)
	}

	var out outbound
	c.mu.Lock()
	if c.holder != id {
		c.mu.Unlock()
		return fmt.Errorf("participant %q: %w", id, errors.ErrNotCurrentSpeaker)
	}
	c.releaseLocked(reason, voluntary, &out)
	c.drainLocked(&out)
	c.mu.Unlock()
	c.flush(&out)
	return nil
}

// HandleUnregister removes all floor state for a departing participant:
// queue entries go away, a held floor is force-revoked, and the queue
// is drained synchronously.
func (c *Controller) HandleUnregister(id string) {
	var out outbound
	c.mu.Lock()
	if i := c.queueIndex(id); i >= 0 {
		c.queue = append(c.queue[:i], c.queue[i+1:]...)
	}
	if c.holder == id {
		c.releaseLocked("participant unregistered", false, &out)
	}
	c.drainLocked(&out)
	c.mu.Unlock()
	c.flush(&out)
}

// EmergencyReset clears all floor state. It is the last resort when
// deadlock resolution fails, and is also callable directly by an
// operator. It never fails.
func (c *Controller) EmergencyReset(cause string) {
	var out outbound
	c.mu.Lock()
	c.emergencyResetLocked(cause, &out)
	c.mu.Unlock()
	c.flush(&out)
}

// Status returns a snapshot of the floor.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		Holder:      c.holder,
		GrantedAt:   c.grantedAt,
		Deadline:    c.deadline,
		QueueLength: len(c.queue),
	}
}

// Queue returns a copy of the pending requests in grant order.
func (c *Controller) Queue() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Request, len(c.queue))
	copy(out, c.queue)
	return out
}

// History returns a copy of the transition history, oldest first.
func (c *Controller) History() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Transition, len(c.history))
	copy(out, c.history)
	return out
}

// tick evaluates the deadlock condition and the grant deadline once.
// Deadlock detection runs first: it is the backstop for a floor that
// stalled without its deadline ever being handled, and it needs to see
// the stale holder before the timeout path releases it.
func (c *Controller) tick() {
	var out outbound
	c.mu.Lock()
	now := c.clk.Now()

	if c.holder != "" && len(c.queue) > 0 && now.Sub(c.lastTransition) > 2*c.grantTimeout {
		c.resolveDeadlockLocked(&out)
	}
	if c.holder != "" && !c.deadline.IsZero() && !now.Before(c.deadline) {
		c.timeoutLocked(&out)
	}
	c.drainLocked(&out)
	c.mu.Unlock()
	c.flush(&out)
}

// timeoutLocked handles an expired grant deadline. The holder's
// consecutive-failure count increments; the roster degrades the
// participant when the count reaches its limit. Either way the floor
// is force-revoked and the queue drained. Timeouts are never errors.
func (c *Controller) timeoutLocked(out *outbound) {
	holder := c.holder
	count, err := c.reg.RecordFailure(holder)
	if err != nil {
		c.logger.WithParticipant(holder).Warn("failure record failed", "error", err)
	}
	degraded := !c.reg.IsAvailable(holder)

	out.publish(event.NewFloorTimeoutEvent(holder, count, degraded))
	out.notify("floor_timeout", map[string]any{
		"failures": count,
		"degraded": degraded,
	}, holder)

	c.releaseLocked("grant timeout", false, out)
}

// resolveDeadlockLocked applies the configured resolution strategy. A
// panic during resolution falls back to an emergency reset.
func (c *Controller) resolveDeadlockLocked(out *outbound) {
	holder, queueLen := c.holder, len(c.queue)
	out.publish(event.NewDeadlockDetectedEvent(holder, queueLen, c.strategy.String()))
	c.logger.Warn("deadlock detected",
		"holder", holder, "queue_length", queueLen, "strategy", c.strategy.String())

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("deadlock resolution failed", "panic", r)
			c.emergencyResetLocked("deadlock resolution failure", out)
		}
	}()

	granted := ""
	switch c.strategy {
	case PrioritizeLeader:
		granted = c.prioritizeLeaderLocked(out)
	case RevokeAll:
		if len(c.queue) > c.capacity/2 {
			c.revokeAllLocked(out)
		} else {
			c.resetQueueLocked(out)
		}
	default:
		c.resetQueueLocked(out)
	}

	c.lastTransition = c.clk.Now()
	out.publish(event.NewDeadlockResolvedEvent(c.holder, len(c.queue), c.strategy.String(), granted))
}

// prioritizeLeaderLocked force-grants the designated leader when the
// leader is present among holder and queue. With no leader in sight it
// falls back to a queue reset.
func (c *Controller) prioritizeLeaderLocked(out *outbound) string {
	if c.leaderID != "" {
		if c.holder == c.leaderID {
			return c.leaderID
		}
		if c.queueIndex(c.leaderID) >= 0 {
			c.grantLocked(c.leaderID, "deadlock resolution: leader prioritized", out)
			return c.leaderID
		}
	}
	c.resetQueueLocked(out)
	return ""
}

func (c *Controller) revokeAllLocked(out *outbound) {
	if c.holder != "" {
		c.releaseLocked("deadlock resolution: revoke all", false, out)
	}
	cleared := c.queue
	c.queue = nil
	for _, req := range cleared {
		out.notify("floor_queue_cleared", map[string]any{
			"reason": "deadlock resolution",
		}, req.ParticipantID)
	}
}

func (c *Controller) resetQueueLocked(out *outbound) {
	cleared := c.queue
	c.queue = nil
	for _, req := range cleared {
		out.notify("floor_queue_reset", map[string]any{
			"reason": "deadlock resolution, please re-request",
		}, req.ParticipantID)
	}
}

func (c *Controller) emergencyResetLocked(cause string, out *outbound) {
	holder, queueLen := c.holder, len(c.queue)
	now := c.clk.Now()

	if c.holder != "" {
		c.history = append(c.history, Transition{
			From: c.holder, At: now, Reason: "emergency reset",
		})
	}
	c.holder = ""
	c.grantedAt = time.Time{}
	c.deadline = time.Time{}
	c.queue = nil
	c.lastTransition = now

	c.logger.Error("emergency floor reset", "cause", cause,
		"holder", holder, "queue_length", queueLen)
	out.publish(event.NewEmergencyResetEvent(holder, queueLen, cause))
	out.notify("emergency_reset", map[string]any{"cause": cause}, transport.Broadcast)
}

// grantLocked installs id as the holder: the matching queue entry is
// removed, a transition is appended, a fresh deadline replaces the
// outgoing holder's, and both parties are notified.
func (c *Controller) grantLocked(id, reason string, out *outbound) {
	if i := c.queueIndex(id); i >= 0 {
		c.queue = append(c.queue[:i], c.queue[i+1:]...)
	}
	displaced := c.holder
	now := c.clk.Now()

	c.history = append(c.history, Transition{From: displaced, To: id, At: now, Reason: reason})
	c.holder = id
	c.grantedAt = now
	c.deadline = now.Add(c.grantTimeout)
	c.lastTransition = now

	out.publish(event.NewFloorGrantedEvent(id, displaced, reason))
	out.notify("floor_granted", map[string]any{"reason": reason}, id)
	if displaced != "" {
		out.notify("floor_revoked", map[string]any{"reason": reason}, displaced)
	}
}

// releaseLocked clears the holder and appends a transition. It does
// not drain; callers decide when the queue moves.
func (c *Controller) releaseLocked(reason string, voluntary bool, out *outbound) {
	holder := c.holder
	now := c.clk.Now()

	c.history = append(c.history, Transition{From: holder, At: now, Reason: reason})
	c.holder = ""
	c.grantedAt = time.Time{}
	c.deadline = time.Time{}
	c.lastTransition = now

	out.publish(event.NewFloorReleasedEvent(holder, reason, voluntary))
	if !voluntary {
		out.notify("floor_revoked", map[string]any{"reason": reason}, holder)
	}
}

// drainLocked grants the queue head when the floor is idle, skipping
// entries whose participant has become unavailable.
func (c *Controller) drainLocked(out *outbound) {
	for c.holder == "" && len(c.queue) > 0 {
		head := c.queue[0]
		if !c.reg.IsAvailable(head.ParticipantID) {
			c.queue = c.queue[1:]
			continue
		}
		c.grantLocked(head.ParticipantID, "queue drain", out)
	}
}

func (c *Controller) queueIndex(id string) int {
	for i, req := range c.queue {
		if req.ParticipantID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) sortQueue() {
	sort.SliceStable(c.queue, func(i, j int) bool {
		if c.queue[i].Priority != c.queue[j].Priority {
			return c.queue[i].Priority > c.queue[j].Priority
		}
		return c.queue[i].Arrival.Before(c.queue[j].Arrival)
	})
}

// flush executes the deferred effects. Transport failures are logged
// and dropped; notifications are at-most-once by contract.
func (c *Controller) flush(out *outbound) {
	if c.bus != nil {
		for _, e := range out.events {
			c.bus.Publish(e)
		}
	}
	if c.tr == nil {
		return
	}
	for _, s := range out.sends {
		if err := c.tr.Send(context.Background(), s.eventType, s.payload, transportSender, s.recipients); err != nil {
			c.logger.Warn("notification send failed", "event_type", s.eventType, "error", err)
		}
	}
}
