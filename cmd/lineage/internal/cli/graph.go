package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/albertocavalcante/lineage/internal/log"
	"github.com/albertocavalcante/lineage/pkg/graph"
	"github.com/albertocavalcante/lineage/pkg/store"
)

var graphFlags struct {
	output string
	format string
	follow bool
}

var graphCmd = &cobra.Command{
	Use:   "graph <file>",
	Short: "Draw the ancestry of a file",
	Long: `Reconstructs the lineage graph of a file from the record attached to it
and prints it as Graphviz DOT.

Programs are drawn as boxes, files and remote resources as ellipses, and
remote resources from the same host are grouped together.

With --format svg or png the graph is rendered by the 'dot' binary, which
must be on PATH. With --follow, inputs whose record was not embedded are
looked up on disk.

A file without lineage produces no output.`,
	Args: cobra.ExactArgs(1),
	RunE: runGraph,
}

func init() {
	graphCmd.Flags().StringVarP(&graphFlags.output, "output", "o", "",
		"Write to file instead of stdout (svg/png default: <file>.<format>)")
	graphCmd.Flags().StringVar(&graphFlags.format, "format", "dot",
		"Output format (dot, svg, png)")
	graphCmd.Flags().BoolVar(&graphFlags.follow, "follow", false,
		"Look up ancestors on disk when their record is not embedded")

	rootCmd.AddCommand(graphCmd)
}

func runGraph(cmd *cobra.Command, args []string) error {
	target := args[0]

	switch graphFlags.format {
	case "dot", "svg", "png":
	default:
		return fmt.Errorf("unknown format %q (want dot, svg or png)", graphFlags.format)
	}

	builder, err := graph.NewBuilder(store.FromConfig(activeConfig.Persist), graph.Options{
		FollowDisk: graphFlags.follow,
	})
	if err != nil {
		return err
	}

	g, err := builder.Build(target)
	if errors.Is(err, graph.ErrNoLineage) {
		log.Info("no lineage recorded", "path", target)
		return nil
	}
	if err != nil {
		return err
	}

	dot := g.DOT(filepath.Base(target))

	if graphFlags.format == "dot" {
		if graphFlags.output == "" {
			_, err := io.WriteString(cmd.OutOrStdout(), dot)
			return err
		}
		return os.WriteFile(graphFlags.output, []byte(dot), 0o644)
	}

	out := graphFlags.output
	if out == "" {
		out = filepath.Base(target) + "." + graphFlags.format
	}
	if err := renderDOT(cmd.Context(), dot, graphFlags.format, out); err != nil {
		return err
	}
	log.Info("rendered lineage graph", "path", out)
	return nil
}

// renderDOT runs Graphviz to turn dot into an image at out.
func renderDOT(ctx context.Context, dot, format, out string) error {
	dotPath, err := exec.LookPath("dot")
	if err != nil {
		return fmt.Errorf("graphviz 'dot' not found on PATH; use --format dot: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c := exec.CommandContext(ctx, dotPath, "-T"+format, "-o", out)
	c.Stdin = strings.NewReader(dot)
	if output, err := c.CombinedOutput(); err != nil {
		return fmt.Errorf("dot failed: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
