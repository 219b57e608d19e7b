package floor

import (
	"time"

	"github.com/benbjohnson/clock"

	"github.com/palaver-dev/palaver/internal/event"
	"github.com/palaver-dev/palaver/internal/logging"
)

const (
	defaultCapacity     = 10
	defaultGrantTimeout = 30 * time.Second
	defaultTickInterval = time.Second
)

// Option configures a Controller.
type Option func(*Controller)

// WithCapacity bounds the request queue.
func WithCapacity(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithGrantTimeout sets how long a holder may keep the floor before a
// timeout revocation. The deadlock detector triggers at twice this.
func WithGrantTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.grantTimeout = d
		}
	}
}

// WithTickInterval sets how often timeouts and deadlocks are evaluated.
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.tickInterval = d
		}
	}
}

// WithLeader designates the participant the PrioritizeLeader strategy
// force-grants to.
func WithLeader(id string) Option {
	return func(c *Controller) {
		c.leaderID = id
	}
}

// WithStrategy selects the deadlock resolution strategy.
func WithStrategy(s Strategy) Option {
	return func(c *Controller) {
		c.strategy = s
	}
}

// WithClock substitutes the clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) {
		if clk != nil {
			c.clk = clk
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBus sets the event bus floor events are published on.
func WithBus(bus *event.Bus) Option {
	return func(c *Controller) {
		c.bus = bus
	}
}
