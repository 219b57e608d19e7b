// Package scheduler turns incoming messages into floor-disciplined
// turns: it polls every available participant for interest in
// parallel, orders the interested ones by urgency, and drives each
// through a request/generate/yield cycle.
package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sourcegraph/conc/pool"

	"github.com/palaver-dev/palaver/internal/floor"
	"github.com/palaver-dev/palaver/internal/logging"
	"github.com/palaver-dev/palaver/internal/roster"
)

const (
	defaultPacing   = 200 * time.Millisecond
	defaultMaxDepth = 4
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPacing sets the delay between consecutive turns.
func WithPacing(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.pacing = d
		}
	}
}

// WithMaxDepth bounds the consecutive non-initiator turns a single
// message may trigger.
func WithMaxDepth(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxDepth = n
		}
	}
}

// WithClock substitutes the clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) {
		if clk != nil {
			s.clk = clk
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scheduler drives turn-taking over the floor. Oracle and generator
// failures never corrupt floor state: an erroring oracle counts as not
// interested and an erroring generator skips the turn, but a granted
// floor is always yielded.
type Scheduler struct {
	reg    *roster.Roster
	fc     *floor.Controller
	oracle InterestOracle
	gen    ContentGenerator

	pacing   time.Duration
	maxDepth int

	clk    clock.Clock
	logger *logging.Logger

	mu         sync.Mutex
	transcript []Message
}

// NewScheduler creates a Scheduler over the given roster and floor.
func NewScheduler(reg *roster.Roster, fc *floor.Controller, oracle InterestOracle, gen ContentGenerator, opts ...Option) *Scheduler {
	s := &Scheduler{
		reg:      reg,
		fc:       fc,
		oracle:   oracle,
		gen:      gen,
		pacing:   defaultPacing,
		maxDepth: defaultMaxDepth,
		clk:      clock.New(),
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnMessage records the message and runs the response rounds it
// triggers, returning when the conversation settles or the recursion
// bound is reached.
func (s *Scheduler) OnMessage(ctx context.Context, msg Message) error {
	if msg.At.IsZero() {
		msg.At = s.clk.Now()
	}
	s.append(msg)
	return s.respond(ctx, msg, 0)
}

// Transcript returns a copy of the conversation so far.
func (s *Scheduler) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.transcript))
	copy(out, s.transcript)
	return out
}

func (s *Scheduler) append(msg Message) {
	s.mu.Lock()
	s.transcript = append(s.transcript, msg)
	s.mu.Unlock()
}

type candidate struct {
	participant roster.Participant
	interest    Interest
	order       int
}

// respond runs one polling round for msg: the most urgent interested
// participant takes a turn, and the resulting contribution seeds a
// fresh round. Candidates who did not get this turn stay interested
// and resurface in the re-poll, so urgency order still holds across
// the chain. depth bounds the chain so two chatty participants cannot
// ping-pong forever.
func (s *Scheduler) respond(ctx context.Context, msg Message, depth int) error {
	if depth >= s.maxDepth {
		s.logger.Debug("response depth bound reached", "depth", depth)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, cand := range s.poll(ctx, msg) {
		text, spoke := s.takeTurn(ctx, cand.participant, msg)
		if !spoke {
			continue
		}

		next := Message{Sender: cand.participant.ID, Content: text, At: s.clk.Now()}
		s.append(next)
		if err := s.pace(ctx); err != nil {
			return err
		}
		return s.respond(ctx, next, depth+1)
	}
	return nil
}

// poll asks every available participant except the sender, in
// parallel, and returns the interested ones ordered by urgency then
// roster order.
func (s *Scheduler) poll(ctx context.Context, msg Message) []candidate {
	participants := s.reg.AvailableParticipants()

	p := pool.NewWithResults[candidate]()
	for i, participant := range participants {
		if participant.ID == msg.Sender {
			continue
		}
		p.Go(func() candidate {
			interest, err := s.oracle.AssessInterest(ctx, participant.ID, msg)
			if err != nil {
				s.logger.WithParticipant(participant.ID).Warn("interest poll failed", "error", err)
				return candidate{participant: participant, order: i}
			}
			return candidate{participant: participant, interest: interest, order: i}
		})
	}
	results := p.Wait()

	interested := results[:0]
	for _, c := range results {
		if c.interest.WantsToSpeak {
			interested = append(interested, c)
		}
	}
	sort.Slice(interested, func(i, j int) bool {
		if interested[i].interest.Urgency != interested[j].interest.Urgency {
			return interested[i].interest.Urgency > interested[j].interest.Urgency
		}
		return interested[i].order < interested[j].order
	})
	return interested
}

// takeTurn acquires the floor, generates the contribution outside any
// floor-held critical section, and always releases what it acquired.
func (s *Scheduler) takeTurn(ctx context.Context, participant roster.Participant, msg Message) (string, bool) {
	log := s.logger.WithParticipant(participant.ID)

	granted, err := s.fc.Request(participant.ID, participant.Priority, "responding to "+msg.Sender)
	if err != nil {
		log.Warn("floor request failed", "error", err)
		return "", false
	}
	if !granted {
		log.Debug("floor busy, turn skipped")
		return "", false
	}

	text, err := s.gen.Generate(ctx, participant.ID, msg)
	if yieldErr := s.fc.Yield(participant.ID, "turn complete"); yieldErr != nil {
		log.Warn("floor yield failed", "error", yieldErr)
	}
	if err != nil {
		log.Warn("content generation failed", "error", err)
		return "", false
	}
	return text, true
}

func (s *Scheduler) pace(ctx context.Context) error {
	if s.pacing == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clk.After(s.pacing):
		return nil
	}
}
