// Package cli implements the lineage command-line interface.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/lineage/internal/log"
	"github.com/albertocavalcante/lineage/pkg/config"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// globalFlags holds persistent flags that apply to all commands
var globalFlags struct {
	verbosity  int
	logFormat  string
	configPath string
}

// activeConfig is loaded before any subcommand runs.
var activeConfig *config.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lineage",
	Short: "Data provenance for files and the programs that make them",
	Long: `Lineage records which inputs a program read, which outputs it wrote and
where it ran, and attaches that record to every output it produces.

Use 'lineage run' to record a program, 'lineage show' to print the record
attached to a file and 'lineage graph' to draw its ancestry.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	// Default behavior: show help
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// versionCmd shows version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "lineage %s (%s)\n", Version, GitCommit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	// Global flags (persistent across all commands)
	rootCmd.PersistentFlags().IntVarP(&globalFlags.verbosity, "verbosity", "v", 1,
		"Verbosity level (0=error, 1=warn, 2=info, 3=debug, 4=trace)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.logFormat, "log-format", "text",
		"Log format (text, json)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.configPath, "config", "",
		"Config file (default: discovered lineage.toml)")
}

// setup loads configuration and applies CLI flags on top of it.
// This runs after flags are parsed but before command execution.
func setup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	verbosity := cfg.Verbosity()
	if cmd.Flags().Changed("verbosity") {
		verbosity = globalFlags.verbosity
	}
	format := cfg.Log.Format
	if cmd.Flags().Changed("log-format") || format == "" {
		format = globalFlags.logFormat
	}
	log.InitWriter(verbosity, format, cmd.ErrOrStderr())

	activeConfig = cfg
	return nil
}

func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if globalFlags.configPath != "" {
		var err error
		cfg, err = config.LoadFile(globalFlags.configPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.Load()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// exitError carries a child's exit status out of 'lineage run'.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		os.Exit(1)
	}
}

// RootCmd returns the root command for testing.
func RootCmd() *cobra.Command {
	return rootCmd
}
