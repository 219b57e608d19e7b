package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Palaver configuration
type Config struct {
	Floor     FloorConfig     `mapstructure:"floor"`
	Roster    RosterConfig    `mapstructure:"roster"`
	Collab    CollabConfig    `mapstructure:"collab"`
	Parallel  ParallelConfig  `mapstructure:"parallel"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Transport TransportConfig `mapstructure:"transport"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// FloorConfig controls floor-control behavior
type FloorConfig struct {
	// QueueCapacity is the maximum number of pending floor requests (default: 10)
	QueueCapacity int `mapstructure:"queue_capacity"`
	// GrantTimeoutSeconds is how long a participant may hold the floor before
	// it is forcibly revoked (default: 30)
	GrantTimeoutSeconds int `mapstructure:"grant_timeout_seconds"`
	// TickIntervalMs is how often the controller checks for timeouts and
	// deadlocks (in milliseconds, default: 1000)
	TickIntervalMs int `mapstructure:"tick_interval_ms"`
	// Leader is the participant preferred by the prioritize_leader deadlock
	// resolution strategy (empty means no designated leader)
	Leader string `mapstructure:"leader"`
	// DeadlockStrategy selects the deadlock resolution strategy
	// Options: "reset_queue", "prioritize_leader", "revoke_all"
	DeadlockStrategy string `mapstructure:"deadlock_strategy"`
}

// RosterConfig controls participant registry behavior
type RosterConfig struct {
	// MaxFailures is the number of consecutive failures before a participant
	// is marked unavailable (default: 3)
	MaxFailures int `mapstructure:"max_failures"`
}

// CollabConfig controls collaboration task behavior
type CollabConfig struct {
	// PollIntervalMs is how often task result polling retries (in milliseconds)
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
	// PollAttempts is the maximum number of result polling attempts
	PollAttempts int `mapstructure:"poll_attempts"`
	// TaskMaxAgeMinutes is how long completed tasks and sessions are retained
	// before the sweep loop removes them (default: 30)
	TaskMaxAgeMinutes int `mapstructure:"task_max_age_minutes"`
	// SweepIntervalSeconds is how often the sweep loop runs (default: 60)
	SweepIntervalSeconds int `mapstructure:"sweep_interval_seconds"`
	// DelegationTimeoutMinutes is the default deadline for delegated tasks
	// when the caller does not supply one (default: 5)
	DelegationTimeoutMinutes int `mapstructure:"delegation_timeout_minutes"`
}

// ParallelConfig controls parallel thread processing
type ParallelConfig struct {
	// ProblemMaxAgeMinutes is how long a problem space is retained before
	// garbage collection removes it regardless of completion (default: 60)
	ProblemMaxAgeMinutes int `mapstructure:"problem_max_age_minutes"`
	// GCIntervalSeconds is how often the garbage collection loop runs (default: 60)
	GCIntervalSeconds int `mapstructure:"gc_interval_seconds"`
}

// SchedulerConfig controls turn scheduling
type SchedulerConfig struct {
	// PacingMs is the pause between turns (in milliseconds, default: 200)
	PacingMs int `mapstructure:"pacing_ms"`
	// MaxDepth bounds how many chained responses a single message can trigger (default: 4)
	MaxDepth int `mapstructure:"max_depth"`
}

// TransportConfig controls the notification transport
type TransportConfig struct {
	// Mode selects the transport backend
	// Options: "memory", "websocket"
	Mode string `mapstructure:"mode"`
	// ListenAddr is the websocket listen address (default: ":8474")
	ListenAddr string `mapstructure:"listen_addr"`
}

// LoggingConfig controls log output
type LoggingConfig struct {
	// Enabled turns structured logging on or off
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level. Options: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
	// Format selects the log encoding. Options: "json", "text"
	Format string `mapstructure:"format"`
}

// Default returns a Config populated with default values
func Default() *Config {
	return &Config{
		Floor: FloorConfig{
			QueueCapacity:       10,
			GrantTimeoutSeconds: 30,
			TickIntervalMs:      1000,
			Leader:              "",
			DeadlockStrategy:    "reset_queue",
		},
		Roster: RosterConfig{
			MaxFailures: 3,
		},
		Collab: CollabConfig{
			PollIntervalMs:           500,
			PollAttempts:             20,
			TaskMaxAgeMinutes:        30,
			SweepIntervalSeconds:     60,
			DelegationTimeoutMinutes: 5,
		},
		Parallel: ParallelConfig{
			ProblemMaxAgeMinutes: 60,
			GCIntervalSeconds:    60,
		},
		Scheduler: SchedulerConfig{
			PacingMs: 200,
			MaxDepth: 4,
		},
		Transport: TransportConfig{
			Mode:       "memory",
			ListenAddr: ":8474",
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
			Format:  "json",
		},
	}
}

// GrantTimeout returns the grant timeout as a time.Duration
func (c *FloorConfig) GrantTimeout() time.Duration {
	return time.Duration(c.GrantTimeoutSeconds) * time.Second
}

// TickInterval returns the tick interval as a time.Duration
func (c *FloorConfig) TickInterval() time.Duration {
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// PollInterval returns the poll interval as a time.Duration
func (c *CollabConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// TaskMaxAge returns the task retention window as a time.Duration
func (c *CollabConfig) TaskMaxAge() time.Duration {
	return time.Duration(c.TaskMaxAgeMinutes) * time.Minute
}

// SweepInterval returns the sweep interval as a time.Duration
func (c *CollabConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// DelegationTimeout returns the default delegation deadline as a time.Duration
func (c *CollabConfig) DelegationTimeout() time.Duration {
	return time.Duration(c.DelegationTimeoutMinutes) * time.Minute
}

// ProblemMaxAge returns the problem retention window as a time.Duration
func (c *ParallelConfig) ProblemMaxAge() time.Duration {
	return time.Duration(c.ProblemMaxAgeMinutes) * time.Minute
}

// GCInterval returns the garbage collection interval as a time.Duration
func (c *ParallelConfig) GCInterval() time.Duration {
	return time.Duration(c.GCIntervalSeconds) * time.Second
}

// Pacing returns the turn pacing as a time.Duration
func (c *SchedulerConfig) Pacing() time.Duration {
	return time.Duration(c.PacingMs) * time.Millisecond
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Floor defaults
	viper.SetDefault("floor.queue_capacity", defaults.Floor.QueueCapacity)
	viper.SetDefault("floor.grant_timeout_seconds", defaults.Floor.GrantTimeoutSeconds)
	viper.SetDefault("floor.tick_interval_ms", defaults.Floor.TickIntervalMs)
	viper.SetDefault("floor.leader", defaults.Floor.Leader)
	viper.SetDefault("floor.deadlock_strategy", defaults.Floor.DeadlockStrategy)

	// Roster defaults
	viper.SetDefault("roster.max_failures", defaults.Roster.MaxFailures)

	// Collab defaults
	viper.SetDefault("collab.poll_interval_ms", defaults.Collab.PollIntervalMs)
	viper.SetDefault("collab.poll_attempts", defaults.Collab.PollAttempts)
	viper.SetDefault("collab.task_max_age_minutes", defaults.Collab.TaskMaxAgeMinutes)
	viper.SetDefault("collab.sweep_interval_seconds", defaults.Collab.SweepIntervalSeconds)
	viper.SetDefault("collab.delegation_timeout_minutes", defaults.Collab.DelegationTimeoutMinutes)

	// Parallel defaults
	viper.SetDefault("parallel.problem_max_age_minutes", defaults.Parallel.ProblemMaxAgeMinutes)
	viper.SetDefault("parallel.gc_interval_seconds", defaults.Parallel.GCIntervalSeconds)

	// Scheduler defaults
	viper.SetDefault("scheduler.pacing_ms", defaults.Scheduler.PacingMs)
	viper.SetDefault("scheduler.max_depth", defaults.Scheduler.MaxDepth)

	// Transport defaults
	viper.SetDefault("transport.mode", defaults.Transport.Mode)
	viper.SetDefault("transport.listen_addr", defaults.Transport.ListenAddr)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.format", defaults.Logging.Format)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "palaver")
	}
	// Fall back to ~/.config/palaver
	home, err := os.UserHomeDir()
	if err != nil {
		return ".palaver"
	}
	return filepath.Join(home, ".config", "palaver")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
