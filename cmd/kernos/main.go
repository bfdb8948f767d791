// Command kernos boots the teaching kernel and runs user programs on it.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"kernos/pkg/config"
	"kernos/pkg/logging"
)

var (
	version = "dev"

	configPath string   //nolint:gochecknoglobals // CLI global flag
	logLevel   string   //nolint:gochecknoglobals // CLI global flag
	logJSON    bool     //nolint:gochecknoglobals // CLI global flag
	settings   []string //nolint:gochecknoglobals // CLI global flag
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "kernos",
		Short: "A teaching kernel's system call layer, run as Go programs",
		Long: `kernos boots a simulated machine with a flat file system, a console
and a keyboard, and runs built-in user programs that reach the kernel
only through system calls.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "HCL configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON")
	rootCmd.PersistentFlags().StringArrayVar(&settings, "set", nil, "override a setting, key=value")

	rootCmd.AddCommand(
		newRunCommand(),
		newCheckCommand(),
		newProgramsCommand(),
		newConfigCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig builds the configuration from defaults, the config file,
// the environment and --set flags, in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.New()

	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	values, err := config.ParseSettings(settings)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("log-level") {
		values["log_level"] = logLevel
	}
	if cmd.Flags().Changed("log-json") {
		values["log_json"] = fmt.Sprint(logJSON)
	}
	if err := cfg.Apply(values); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) hclog.Logger {
	return logging.New(logging.Options{
		Level: cfg.LogLevel,
		JSON:  cfg.LogJSON,
	})
}
