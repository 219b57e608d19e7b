package cmd

import (
	"fmt"

	"github.com/palaver-dev/palaver/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View Palaver configuration",
	Long: `View Palaver configuration.

Without arguments, displays the current configuration.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	fmt.Println("Current configuration:")
	fmt.Println()

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Config file: (none - using defaults)\n")
	}
	fmt.Println()

	fmt.Println("floor:")
	fmt.Printf("  queue_capacity: %d\n", cfg.Floor.QueueCapacity)
	fmt.Printf("  grant_timeout_seconds: %d\n", cfg.Floor.GrantTimeoutSeconds)
	fmt.Printf("  tick_interval_ms: %d\n", cfg.Floor.TickIntervalMs)
	fmt.Printf("  leader: %s\n", cfg.Floor.Leader)
	fmt.Printf("  deadlock_strategy: %s\n", cfg.Floor.DeadlockStrategy)

	fmt.Println("roster:")
	fmt.Printf("  max_failures: %d\n", cfg.Roster.MaxFailures)

	fmt.Println("collab:")
	fmt.Printf("  poll_interval_ms: %d\n", cfg.Collab.PollIntervalMs)
	fmt.Printf("  poll_attempts: %d\n", cfg.Collab.PollAttempts)
	fmt.Printf("  task_max_age_minutes: %d\n", cfg.Collab.TaskMaxAgeMinutes)
	fmt.Printf("  sweep_interval_seconds: %d\n", cfg.Collab.SweepIntervalSeconds)
	fmt.Printf("  delegation_timeout_minutes: %d\n", cfg.Collab.DelegationTimeoutMinutes)

	fmt.Println("parallel:")
	fmt.Printf("  problem_max_age_minutes: %d\n", cfg.Parallel.ProblemMaxAgeMinutes)
	fmt.Printf("  gc_interval_seconds: %d\n", cfg.Parallel.GCIntervalSeconds)

	fmt.Println("scheduler:")
	fmt.Printf("  pacing_ms: %d\n", cfg.Scheduler.PacingMs)
	fmt.Printf("  max_depth: %d\n", cfg.Scheduler.MaxDepth)

	fmt.Println("transport:")
	fmt.Printf("  mode: %s\n", cfg.Transport.Mode)
	fmt.Printf("  listen_addr: %s\n", cfg.Transport.ListenAddr)

	fmt.Println("logging:")
	fmt.Printf("  enabled: %v\n", cfg.Logging.Enabled)
	fmt.Printf("  level: %s\n", cfg.Logging.Level)
	fmt.Printf("  format: %s\n", cfg.Logging.Format)

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Println(config.ConfigFile())
	return nil
}
