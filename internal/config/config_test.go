package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Verify default floor config
	if cfg.Floor.QueueCapacity != 10 {
		t.Errorf("Floor.QueueCapacity = %d, want 10", cfg.Floor.QueueCapacity)
	}
	if cfg.Floor.GrantTimeoutSeconds != 30 {
		t.Errorf("Floor.GrantTimeoutSeconds = %d, want 30", cfg.Floor.GrantTimeoutSeconds)
	}
	if cfg.Floor.DeadlockStrategy != "reset_queue" {
		t.Errorf("Floor.DeadlockStrategy = %q, want %q", cfg.Floor.DeadlockStrategy, "reset_queue")
	}

	// Verify default roster config
	if cfg.Roster.MaxFailures != 3 {
		t.Errorf("Roster.MaxFailures = %d, want 3", cfg.Roster.MaxFailures)
	}

	// Verify default collab config
	if cfg.Collab.PollIntervalMs != 500 {
		t.Errorf("Collab.PollIntervalMs = %d, want 500", cfg.Collab.PollIntervalMs)
	}
	if cfg.Collab.PollAttempts != 20 {
		t.Errorf("Collab.PollAttempts = %d, want 20", cfg.Collab.PollAttempts)
	}
	if cfg.Collab.DelegationTimeoutMinutes != 5 {
		t.Errorf("Collab.DelegationTimeoutMinutes = %d, want 5", cfg.Collab.DelegationTimeoutMinutes)
	}

	// Verify default scheduler config
	if cfg.Scheduler.PacingMs != 200 {
		t.Errorf("Scheduler.PacingMs = %d, want 200", cfg.Scheduler.PacingMs)
	}
	if cfg.Scheduler.MaxDepth != 4 {
		t.Errorf("Scheduler.MaxDepth = %d, want 4", cfg.Scheduler.MaxDepth)
	}

	// Verify default transport config
	if cfg.Transport.Mode != "memory" {
		t.Errorf("Transport.Mode = %q, want %q", cfg.Transport.Mode, "memory")
	}

	// Verify default logging config
	if !cfg.Logging.Enabled {
		t.Error("Logging.Enabled should be true by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := Default()

	if got := cfg.Floor.GrantTimeout(); got != 30*time.Second {
		t.Errorf("Floor.GrantTimeout() = %v, want 30s", got)
	}
	if got := cfg.Floor.TickInterval(); got != time.Second {
		t.Errorf("Floor.TickInterval() = %v, want 1s", got)
	}
	if got := cfg.Collab.PollInterval(); got != 500*time.Millisecond {
		t.Errorf("Collab.PollInterval() = %v, want 500ms", got)
	}
	if got := cfg.Collab.DelegationTimeout(); got != 5*time.Minute {
		t.Errorf("Collab.DelegationTimeout() = %v, want 5m", got)
	}
	if got := cfg.Parallel.ProblemMaxAge(); got != time.Hour {
		t.Errorf("Parallel.ProblemMaxAge() = %v, want 1h", got)
	}
	if got := cfg.Scheduler.Pacing(); got != 200*time.Millisecond {
		t.Errorf("Scheduler.Pacing() = %v, want 200ms", got)
	}
}

func TestDefaultConfigValidates(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default().Validate() = %v, want no errors", errs)
	}
}

func TestValidateFloor(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{
			name:   "zero queue capacity",
			mutate: func(c *Config) { c.Floor.QueueCapacity = 0 },
			field:  "floor.queue_capacity",
		},
		{
			name:   "negative grant timeout",
			mutate: func(c *Config) { c.Floor.GrantTimeoutSeconds = -1 },
			field:  "floor.grant_timeout_seconds",
		},
		{
			name:   "unknown strategy",
			mutate: func(c *Config) { c.Floor.DeadlockStrategy = "coin_flip" },
			field:  "floor.deadlock_strategy",
		},
		{
			name:   "leader strategy without leader",
			mutate: func(c *Config) { c.Floor.DeadlockStrategy = "prioritize_leader" },
			field:  "floor.leader",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() returned %d errors, want 1: %v", len(errs), errs)
			}
			if errs[0].Field != tt.field {
				t.Errorf("Validate() flagged %q, want %q", errs[0].Field, tt.field)
			}
		})
	}
}

func TestValidateTransportAndLogging(t *testing.T) {
	cfg := Default()
	cfg.Transport.Mode = "carrier_pigeon"
	cfg.Logging.Level = "loud"
	cfg.Logging.Format = "xml"

	errs := cfg.Validate()
	if len(errs) != 3 {
		t.Fatalf("Validate() returned %d errors, want 3: %v", len(errs), errs)
	}
}

func TestPrioritizeLeaderWithLeaderIsValid(t *testing.T) {
	cfg := Default()
	cfg.Floor.DeadlockStrategy = "prioritize_leader"
	cfg.Floor.Leader = "moderator"

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}

func TestValidationErrorsError(t *testing.T) {
	var errs ValidationErrors
	if errs.Error() != "" {
		t.Errorf("empty ValidationErrors.Error() = %q, want empty", errs.Error())
	}

	errs = ValidationErrors{
		{Field: "floor.queue_capacity", Value: 0, Message: "must be at least 1"},
	}
	if got := errs.Error(); !strings.Contains(got, "floor.queue_capacity") {
		t.Errorf("single error message %q missing field path", got)
	}

	errs = append(errs, ValidationError{Field: "roster.max_failures", Value: -1, Message: "must be at least 1"})
	if got := errs.Error(); !strings.Contains(got, "2 validation errors") {
		t.Errorf("multi error message %q missing count header", got)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Floor.QueueCapacity != 10 {
		t.Errorf("Floor.QueueCapacity = %d, want 10", cfg.Floor.QueueCapacity)
	}
	if cfg.Transport.Mode != "memory" {
		t.Errorf("Transport.Mode = %q, want %q", cfg.Transport.Mode, "memory")
	}
}

func TestLoadRejectsInvalidOverride(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()
	viper.Set("floor.queue_capacity", 0)

	if _, err := Load(); err == nil {
		t.Error("Load() with invalid override should return an error")
	}
}

func TestGetFallsBackToDefaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	SetDefaults()
	viper.Set("scheduler.max_depth", 0)

	cfg := Get()
	if cfg.Scheduler.MaxDepth != 4 {
		t.Errorf("Get() fallback Scheduler.MaxDepth = %d, want 4", cfg.Scheduler.MaxDepth)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("uses XDG_CONFIG_HOME when set", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg-test")
		if got, want := ConfigDir(), filepath.Join("/tmp/xdg-test", "palaver"); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})

	t.Run("falls back to home config", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, err := os.UserHomeDir()
		if err != nil {
			t.Skip("no home directory available")
		}
		if got, want := ConfigDir(), filepath.Join(home, ".config", "palaver"); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestConfigFile(t *testing.T) {
	if got := ConfigFile(); filepath.Base(got) != "config.yaml" {
		t.Errorf("ConfigFile() = %q, want a config.yaml path", got)
	}
}
