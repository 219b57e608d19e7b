// Package roster tracks the participants of a conversation: their
// priority weight, availability, and health. Every other component
// consults the roster before involving a participant.
package roster

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/palaver-dev/palaver/internal/errors"
	"github.com/palaver-dev/palaver/internal/event"
	"github.com/palaver-dev/palaver/internal/logging"
)

// Availability reports whether a participant can be involved in floor
// grants, task assignments, or thread work.
type Availability int

const (
	Available Availability = iota
	Unavailable
)

func (a Availability) String() string {
	switch a {
	case Available:
		return "available"
	case Unavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("availability(%d)", int(a))
	}
}

// Participant is a registered member of the conversation. Values
// returned from the roster are copies.
type Participant struct {
	ID                  string
	Priority            int
	Availability        Availability
	ConsecutiveFailures int
	LastActivity        time.Time
	RegisteredAt        time.Time
}

// Stats is a point-in-time summary of the roster.
type Stats struct {
	Total       int
	Available   int
	Unavailable int
}

// RegisterCallback is invoked after a participant is registered.
type RegisterCallback func(Participant)

const defaultMaxFailures = 3

// Option configures a Roster.
type Option func(*Roster)

// WithMaxFailures sets the consecutive-failure count at which a
// participant degrades to Unavailable.
func WithMaxFailures(n int) Option {
	return func(r *Roster) {
		if n > 0 {
			r.maxFailures = n
		}
	}
}

// WithClock substitutes the clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(r *Roster) {
		if clk != nil {
			r.clk = clk
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(r *Roster) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithBus sets the event bus lifecycle events are published on.
func WithBus(bus *event.Bus) Option {
	return func(r *Roster) {
		r.bus = bus
	}
}

// Roster is a mutex-guarded participant registry. It is safe for
// concurrent use.
type Roster struct {
	mu           sync.Mutex
	participants map[string]*Participant
	callbacks    []RegisterCallback

	maxFailures int
	clk         clock.Clock
	logger      *logging.Logger
	bus         *event.Bus
}

// New creates an empty Roster.
func New(opts ...Option) *Roster {
	r := &Roster{
		participants: make(map[string]*Participant),
		maxFailures:  defaultMaxFailures,
		clk:          clock.New(),
		logger:       logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnRegister adds a callback invoked after every successful
// registration. Callback panics are recovered and logged.
func (r *Roster) OnRegister(cb RegisterCallback) {
	if cb == nil {
		return
	}
	r.mu.Lock()
	r.callbacks = append(r.callbacks, cb)
	r.mu.Unlock()
}

// Register adds a participant. Registering an existing id fails with
// ErrInvalidRequest.
func (r *Roster) Register(id string, priority int) error {
	if id == "" {
		return errors.NewValidationError("id", "must not be empty")
	}

	r.mu.Lock()
	if _, exists := r.participants[id]; exists {
		r.mu.Unlock()
		return fmt.Errorf("participant %q already registered: %w", id, errors.ErrInvalidRequest)
	}
	now := r.clk.Now()
	p := &Participant{
		ID:           id,
		Priority:     priority,
		Availability: Available,
		LastActivity: now,
		RegisteredAt: now,
	}
	r.participants[id] = p
	snapshot := *p
	callbacks := make([]RegisterCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	r.logger.WithParticipant(id).Info("participant registered", "priority", priority)
	r.publish(event.NewParticipantRegisteredEvent(id, priority))

	for _, cb := range callbacks {
		r.safeCallback(cb, snapshot)
	}
	return nil
}

// Unregister removes a participant.
func (r *Roster) Unregister(id string) error {
	r.mu.Lock()
	if _, exists := r.participants[id]; !exists {
		r.mu.Unlock()
		return errors.NewNotFoundError("participant", id)
	}
	delete(r.participants, id)
	r.mu.Unlock()

	r.logger.WithParticipant(id).Info("participant unregistered")
	r.publish(event.NewParticipantUnregisteredEvent(id, "unregistered"))
	return nil
}

// UpdatePriority changes a participant's priority weight.
func (r *Roster) UpdatePriority(id string, priority int) error {
	r.mu.Lock()
	p, exists := r.participants[id]
	if !exists {
		r.mu.Unlock()
		return errors.NewNotFoundError("participant", id)
	}
	p.Priority = priority
	r.mu.Unlock()
	return nil
}

// Get returns a copy of the participant.
func (r *Roster) Get(id string) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.participants[id]
	if !exists {
		return Participant{}, errors.NewNotFoundError("participant", id)
	}
	return *p, nil
}

// Availability reports the participant's availability.
func (r *Roster) Availability(id string) (Availability, error) {
	p, err := r.Get(id)
	if err != nil {
		return Unavailable, err
	}
	return p.Availability, nil
}

// IsAvailable reports whether the participant exists and is Available.
func (r *Roster) IsAvailable(id string) bool {
	a, err := r.Availability(id)
	return err == nil && a == Available
}

// List returns a copy of every participant, sorted by id.
func (r *Roster) List() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AvailableParticipants returns a copy of every Available participant,
// sorted by id.
func (r *Roster) AvailableParticipants() []Participant {
	all := r.List()
	out := all[:0]
	for _, p := range all {
		if p.Availability == Available {
			out = append(out, p)
		}
	}
	return out
}

// RecordActivity resets the participant's failure count and stamps
// their last activity time.
func (r *Roster) RecordActivity(id string) error {
	r.mu.Lock()
	p, exists := r.participants[id]
	if !exists {
		r.mu.Unlock()
		return errors.NewNotFoundError("participant", id)
	}
	p.ConsecutiveFailures = 0
	p.LastActivity = r.clk.Now()
	r.mu.Unlock()
	return nil
}

// RecordFailure increments the participant's consecutive-failure count
// and returns the new count. Reaching the limit degrades the
// participant to Unavailable.
func (r *Roster) RecordFailure(id string) (int, error) {
	r.mu.Lock()
	p, exists := r.participants[id]
	if !exists {
		r.mu.Unlock()
		return 0, errors.NewNotFoundError("participant", id)
	}
	p.ConsecutiveFailures++
	count := p.ConsecutiveFailures
	degraded := count >= r.maxFailures && p.Availability == Available
	if degraded {
		p.Availability = Unavailable
	}
	r.mu.Unlock()

	if degraded {
		r.logger.WithParticipant(id).Warn("participant degraded", "failures", count)
		r.publish(event.NewParticipantDegradedEvent(id, fmt.Sprintf("%d consecutive failures", count)))
	}
	return count, nil
}

// MarkUnavailable forces the participant to Unavailable.
func (r *Roster) MarkUnavailable(id, reason string) error {
	r.mu.Lock()
	p, exists := r.participants[id]
	if !exists {
		r.mu.Unlock()
		return errors.NewNotFoundError("participant", id)
	}
	changed := p.Availability != Unavailable
	p.Availability = Unavailable
	r.mu.Unlock()

	if changed {
		r.logger.WithParticipant(id).Warn("participant marked unavailable", "reason", reason)
		r.publish(event.NewParticipantDegradedEvent(id, reason))
	}
	return nil
}

// Restore returns a degraded participant to Available and clears the
// failure count.
func (r *Roster) Restore(id string) error {
	r.mu.Lock()
	p, exists := r.participants[id]
	if !exists {
		r.mu.Unlock()
		return errors.NewNotFoundError("participant", id)
	}
	changed := p.Availability != Available || p.ConsecutiveFailures != 0
	p.Availability = Available
	p.ConsecutiveFailures = 0
	r.mu.Unlock()

	if changed {
		r.logger.WithParticipant(id).Info("participant restored")
		r.publish(event.NewParticipantRestoredEvent(id))
	}
	return nil
}

// HealthReport returns a copy of every participant keyed by id.
func (r *Roster) HealthReport() map[string]Participant {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]Participant, len(r.participants))
	for id, p := range r.participants {
		out[id] = *p
	}
	return out
}

// Stats summarizes the roster.
func (r *Roster) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Stats{Total: len(r.participants)}
	for _, p := range r.participants {
		if p.Availability == Available {
			s.Available++
		} else {
			s.Unavailable++
		}
	}
	return s
}

func (r *Roster) publish(e event.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}

func (r *Roster) safeCallback(cb RegisterCallback, p Participant) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("registration callback panicked", "participant", p.ID, "panic", rec)
		}
	}()
	cb(p)
}
