// Command hotiron runs and operates the steel reverse-auction clearing service.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cloudx-io/hotiron/config"
	"github.com/cloudx-io/hotiron/telemetry"
)

var version = "dev"

var (
	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "hotiron",
	Short: "Steel reverse-auction clearing engine",
	Long: `hotiron prices hot-rolled coil offers from a registry of steel mills for a
buyer location and quantity, and selects the lowest net price per ton.

Configuration is read from defaults, an optional YAML file (--config), a .env
file and HOTIRON_ environment variables, in increasing order of precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	Version:       version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return usageError(err)
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		if logFormat != "" {
			cfg.LogFormat = logFormat
		}
		logger, err = telemetry.NewLogger(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return usageError(err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Override log format (json, console)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sellersCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(receiptCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(adminCmd)
}

// exitError carries a process exit code. Code 2 means invalid input or a
// runtime error; 1 is reserved for a negative verification result.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func usageError(err error) error {
	return &exitError{code: 2, err: err}
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	code := 1
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		code = exitErr.code
		err = exitErr.err
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}
