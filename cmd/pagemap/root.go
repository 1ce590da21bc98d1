package main

import (
	"fmt"

	"pagemap/kernel/hal"
	"pagemap/kernel/kfmt"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var (
	configPath string
	logLevel   string

	// activeConfig is populated before any subcommand runs.
	activeConfig *config

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "pagemap",
		Short: "Drive an x86-64 page table mapper on simulated physical memory.",
		Long: `pagemap boots a simulated machine with its own physical memory, ` +
			`frame allocator and TLB and manipulates its four level page ` +
			`tables through the page table mapper.`,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "TOML config file (default $"+envConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (default $"+envLogLevel+" or "+defaultLogLevel+")")
}

// setup loads the configuration and attaches the kernel log to stderr.
func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	kfmt.SetOutputSink(cmd.ErrOrStderr())
	if kErr := kfmt.SetLevel(cfg.LogLevel); kErr != nil {
		return fmt.Errorf("%s: %q", kErr.Message, cfg.LogLevel)
	}

	activeConfig = cfg
	return nil
}

// bootMachine boots a machine using the active configuration. The machine is
// shut down when the program exits.
func bootMachine() (*hal.Machine, error) {
	m, err := hal.Boot(activeConfig.Machine)
	if err != nil {
		return nil, fmt.Errorf("boot: %s", err.Message)
	}

	atexit.Register(func() {
		if err := m.Shutdown(); err != nil {
			kfmt.Logger("pagemap").WithError(err).Warn("shutdown failed")
		}
	})

	return m, nil
}

// Execute adds all child commands to the root command and sets flags
// appropriately. It returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}

	return 0
}
