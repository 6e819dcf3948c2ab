package cli

import (
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/lineage/internal/log"
	"github.com/albertocavalcante/lineage/pkg/manifest"
	"github.com/albertocavalcante/lineage/pkg/workers"
)

var runFlags struct {
	inputs  []string
	outputs []string
}

var runCmd = &cobra.Command{
	Use:   "run [-i input]... [-o output]... -- <program> [args...]",
	Short: "Run a program and record the lineage of its outputs",
	Long: `Runs a program as the root of a lineage session.

Declared inputs (-i) are recorded before the program starts; entries with a
scheme such as https:// are recorded as remote inputs. Declared outputs (-o)
are recorded after it exits, and every output gets the lineage document
attached.

The program inherits LINEAGE_REGION and LINEAGE_LOCK. Programs built with
the lineage packages join the session and contribute the inputs they read.

Interrupting 'lineage run' still saves the lineage of declared outputs.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringArrayVarP(&runFlags.inputs, "input", "i", nil,
		"Input consumed by the program (repeatable)")
	runCmd.Flags().StringArrayVarP(&runFlags.outputs, "output", "o", nil,
		"Output produced by the program (repeatable)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := manifest.New(manifest.Options{
		Config: activeConfig,
		Args:   args,
	})
	if err != nil {
		return err
	}

	for _, in := range runFlags.inputs {
		if strings.Contains(in, "://") {
			m.RecordRemoteInput(in)
			continue
		}
		m.RecordInput(in)
	}

	pool := workers.New(m, workers.WithStdio(cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr()))
	runErr := pool.Run(ctx, pool.Command(ctx, args[0], args[1:]...))

	for _, out := range runFlags.outputs {
		m.RecordOutput(out)
	}
	if err := m.Teardown(); err != nil {
		log.Warn("failed to release shared region", "error", err)
	}

	if runErr == nil {
		return nil
	}
	var exit *exec.ExitError
	if errors.As(runErr, &exit) && exit.ExitCode() > 0 {
		return &exitError{code: exit.ExitCode()}
	}
	var syncErr *manifest.SyncError
	if errors.As(runErr, &syncErr) {
		// The program itself succeeded; only the merge of its inputs failed.
		log.Warn("program inputs could not be merged", "error", syncErr)
		return nil
	}
	return runErr
}
