package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/palaver-dev/palaver/internal/config"
	"github.com/palaver-dev/palaver/internal/event"
	"github.com/palaver-dev/palaver/internal/floor"
	"github.com/palaver-dev/palaver/internal/logging"
	"github.com/palaver-dev/palaver/internal/printer"
	"github.com/palaver-dev/palaver/internal/roster"
	"github.com/palaver-dev/palaver/internal/scheduler"
	"github.com/palaver-dev/palaver/internal/transport"
	"github.com/spf13/cobra"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted conversation round",
	Long: `Simulate wires a roster, floor controller, and turn scheduler together
with an in-memory transport and runs one scripted conversation round.
It prints the resulting transcript, floor history, and roster health.`,
	RunE: runSimulate,
}

var simulatePrompt string

func init() {
	simulateCmd.Flags().StringVarP(&simulatePrompt, "prompt", "p", "What should we build next?", "opening message for the round")
	rootCmd.AddCommand(simulateCmd)
}

// persona is a scripted participant: it wants to speak exactly once per
// round, with a fixed urgency and a fixed line.
type persona struct {
	priority int
	urgency  scheduler.Urgency
	line     string
	spoken   bool
}

// cast implements both the interest oracle and the content generator
// over a set of scripted personas. The scheduler polls interest
// concurrently, so access goes through the mutex.
type cast struct {
	mu       sync.Mutex
	personas map[string]*persona
}

func (c *cast) AssessInterest(ctx context.Context, participantID string, msg scheduler.Message) (scheduler.Interest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.personas[participantID]
	if !ok || p.spoken {
		return scheduler.Interest{}, nil
	}
	return scheduler.Interest{WantsToSpeak: true, Urgency: p.urgency}, nil
}

func (c *cast) Generate(ctx context.Context, participantID string, msg scheduler.Message) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.personas[participantID]
	if !ok {
		return "", fmt.Errorf("no persona for %s", participantID)
	}
	p.spoken = true
	return p.line, nil
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	logger := logging.NopLogger()
	if cfg.Logging.Enabled {
		l, err := logging.NewLogger("", cfg.Logging.Level)
		if err == nil {
			logger = l
		}
	}

	bus := event.NewBus()

	// Collect every bus event so the round can be replayed afterwards
	var eventMu sync.Mutex
	var events []string
	bus.SubscribeAll(func(e event.Event) {
		eventMu.Lock()
		defer eventMu.Unlock()
		events = append(events, e.EventType())
	})

	tr := transport.NewMemory(bus)

	reg := roster.New(
		roster.WithMaxFailures(cfg.Roster.MaxFailures),
		roster.WithBus(bus),
		roster.WithLogger(logger),
	)

	strategy, err := floor.ParseStrategy(cfg.Floor.DeadlockStrategy)
	if err != nil {
		return printer.Error("Invalid Configuration", err.Error(), []string{
			"Set floor.deadlock_strategy to reset_queue, prioritize_leader, or revoke_all",
		})
	}

	fc := floor.NewController(reg, tr,
		floor.WithCapacity(cfg.Floor.QueueCapacity),
		floor.WithGrantTimeout(cfg.Floor.GrantTimeout()),
		floor.WithTickInterval(cfg.Floor.TickInterval()),
		floor.WithLeader("moderator"),
		floor.WithStrategy(strategy),
		floor.WithBus(bus),
		floor.WithLogger(logger),
	)
	fc.Start()
	defer fc.Stop()

	script := &cast{personas: map[string]*persona{
		"moderator": {priority: 4, urgency: scheduler.UrgencyLeader, line: "Let's keep this focused. One proposal each, then we decide."},
		"analyst":   {priority: 2, urgency: scheduler.UrgencyHigh, line: "The request queue dynamics are the interesting part here."},
		"skeptic":   {priority: 2, urgency: scheduler.UrgencyNormal, line: "I'd want to see how it degrades before committing."},
		"comedian":  {priority: 2, urgency: scheduler.UrgencyLow, line: "As long as nobody filibusters, I'm in."},
	}}

	for id, p := range script.personas {
		if err := reg.Register(id, p.priority); err != nil {
			return printer.Error("Registration Failed", err.Error(), nil)
		}
	}

	sched := scheduler.NewScheduler(reg, fc, script, script,
		scheduler.WithPacing(cfg.Scheduler.Pacing()),
		scheduler.WithMaxDepth(cfg.Scheduler.MaxDepth),
		scheduler.WithLogger(logger),
	)

	printer.Step("Opening the floor with %d participants\n", len(script.personas))

	if err := sched.OnMessage(cmd.Context(), scheduler.Message{
		Sender:  "user",
		Content: simulatePrompt,
		At:      time.Now(),
	}); err != nil {
		return printer.Error("Round Failed", err.Error(), nil)
	}

	printer.Heading("\nTranscript")
	for _, msg := range sched.Transcript() {
		printer.Speaker(msg.Sender, msg.Content)
	}

	printer.Heading("\nFloor history")
	for _, t := range fc.History() {
		from := t.From
		if from == "" {
			from = "(idle)"
		}
		to := t.To
		if to == "" {
			to = "(idle)"
		}
		printer.Printf("  %s  %s → %s  (%s)\n", t.At.Format("15:04:05.000"), from, to, t.Reason)
	}

	printer.Heading("\nNotifications")
	printer.Printf("  %d deliveries over the in-memory transport\n", len(tr.Deliveries()))

	eventMu.Lock()
	printer.Printf("  %d bus events: %v\n", len(events), events)
	eventMu.Unlock()

	stats := reg.Stats()
	printer.Heading("\nRoster")
	printer.Printf("  %d registered, %d available, %d unavailable\n", stats.Total, stats.Available, stats.Unavailable)
	for _, p := range reg.List() {
		printer.Printf("  %-10s priority=%d availability=%s failures=%d\n", p.ID, p.Priority, p.Availability, p.ConsecutiveFailures)
	}

	printer.Success("Round complete: %d turns taken\n", len(sched.Transcript())-1)
	return nil
}
