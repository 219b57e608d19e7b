package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "floor.queue_capacity")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidDeadlockStrategies returns the list of valid deadlock strategy values
func ValidDeadlockStrategies() []string {
	return []string{"reset_queue", "prioritize_leader", "revoke_all"}
}

// ValidTransportModes returns the list of valid transport mode values
func ValidTransportModes() []string {
	return []string{"memory", "websocket"}
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"json", "text"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateFloor()...)
	errors = append(errors, c.validateRoster()...)
	errors = append(errors, c.validateCollab()...)
	errors = append(errors, c.validateParallel()...)
	errors = append(errors, c.validateScheduler()...)
	errors = append(errors, c.validateTransport()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateFloor validates the FloorConfig
func (c *Config) validateFloor() []ValidationError {
	var errors []ValidationError

	if c.Floor.QueueCapacity < 1 {
		errors = append(errors, ValidationError{
			Field:   "floor.queue_capacity",
			Value:   c.Floor.QueueCapacity,
			Message: "must be at least 1",
		})
	}

	if c.Floor.GrantTimeoutSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "floor.grant_timeout_seconds",
			Value:   c.Floor.GrantTimeoutSeconds,
			Message: "must be at least 1",
		})
	}

	if c.Floor.TickIntervalMs < 1 {
		errors = append(errors, ValidationError{
			Field:   "floor.tick_interval_ms",
			Value:   c.Floor.TickIntervalMs,
			Message: "must be at least 1",
		})
	}

	if c.Floor.DeadlockStrategy != "" && !slices.Contains(ValidDeadlockStrategies(), c.Floor.DeadlockStrategy) {
		errors = append(errors, ValidationError{
			Field:   "floor.deadlock_strategy",
			Value:   c.Floor.DeadlockStrategy,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidDeadlockStrategies(), ", ")),
		})
	}

	if c.Floor.DeadlockStrategy == "prioritize_leader" && c.Floor.Leader == "" {
		errors = append(errors, ValidationError{
			Field:   "floor.leader",
			Value:   c.Floor.Leader,
			Message: "must be set when deadlock_strategy is prioritize_leader",
		})
	}

	return errors
}

// validateRoster validates the RosterConfig
func (c *Config) validateRoster() []ValidationError {
	var errors []ValidationError

	if c.Roster.MaxFailures < 1 {
		errors = append(errors, ValidationError{
			Field:   "roster.max_failures",
			Value:   c.Roster.MaxFailures,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateCollab validates the CollabConfig
func (c *Config) validateCollab() []ValidationError {
	var errors []ValidationError

	if c.Collab.PollIntervalMs < 1 {
		errors = append(errors, ValidationError{
			Field:   "collab.poll_interval_ms",
			Value:   c.Collab.PollIntervalMs,
			Message: "must be at least 1",
		})
	}

	if c.Collab.PollAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "collab.poll_attempts",
			Value:   c.Collab.PollAttempts,
			Message: "must be at least 1",
		})
	}

	if c.Collab.TaskMaxAgeMinutes < 1 {
		errors = append(errors, ValidationError{
			Field:   "collab.task_max_age_minutes",
			Value:   c.Collab.TaskMaxAgeMinutes,
			Message: "must be at least 1",
		})
	}

	if c.Collab.SweepIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "collab.sweep_interval_seconds",
			Value:   c.Collab.SweepIntervalSeconds,
			Message: "must be at least 1",
		})
	}

	if c.Collab.DelegationTimeoutMinutes < 1 {
		errors = append(errors, ValidationError{
			Field:   "collab.delegation_timeout_minutes",
			Value:   c.Collab.DelegationTimeoutMinutes,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateParallel validates the ParallelConfig
func (c *Config) validateParallel() []ValidationError {
	var errors []ValidationError

	if c.Parallel.ProblemMaxAgeMinutes < 1 {
		errors = append(errors, ValidationError{
			Field:   "parallel.problem_max_age_minutes",
			Value:   c.Parallel.ProblemMaxAgeMinutes,
			Message: "must be at least 1",
		})
	}

	if c.Parallel.GCIntervalSeconds < 1 {
		errors = append(errors, ValidationError{
			Field:   "parallel.gc_interval_seconds",
			Value:   c.Parallel.GCIntervalSeconds,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateScheduler validates the SchedulerConfig
func (c *Config) validateScheduler() []ValidationError {
	var errors []ValidationError

	if c.Scheduler.PacingMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.pacing_ms",
			Value:   c.Scheduler.PacingMs,
			Message: "must be non-negative",
		})
	}

	if c.Scheduler.MaxDepth < 1 {
		errors = append(errors, ValidationError{
			Field:   "scheduler.max_depth",
			Value:   c.Scheduler.MaxDepth,
			Message: "must be at least 1",
		})
	}

	return errors
}

// validateTransport validates the TransportConfig
func (c *Config) validateTransport() []ValidationError {
	var errors []ValidationError

	if c.Transport.Mode != "" && !slices.Contains(ValidTransportModes(), c.Transport.Mode) {
		errors = append(errors, ValidationError{
			Field:   "transport.mode",
			Value:   c.Transport.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidTransportModes(), ", ")),
		})
	}

	if c.Transport.Mode == "websocket" && c.Transport.ListenAddr == "" {
		errors = append(errors, ValidationError{
			Field:   "transport.listen_addr",
			Value:   c.Transport.ListenAddr,
			Message: "must be set when transport.mode is websocket",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.Format != "" && !slices.Contains(ValidLogFormats(), c.Logging.Format) {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogFormats(), ", ")),
		})
	}

	return errors
}
