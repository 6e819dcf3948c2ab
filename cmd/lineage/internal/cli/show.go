package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/albertocavalcante/lineage/pkg/provenance"
	"github.com/albertocavalcante/lineage/pkg/store"
)

var showFlags struct {
	format string
}

var showCmd = &cobra.Command{
	Use:   "show <file>",
	Short: "Print the lineage recorded for a file",
	Long: `Prints the lineage document attached to a file.

The text format summarizes the program, its inputs and outputs. The json
and yaml formats print the whole document.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func init() {
	showCmd.Flags().StringVar(&showFlags.format, "format", "text",
		"Output format (text, json, yaml)")

	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	target := args[0]
	abs, err := filepath.Abs(target)
	if err != nil {
		return err
	}

	doc, err := store.FromConfig(activeConfig.Persist).Load(abs)
	if err != nil {
		return fmt.Errorf("failed to load lineage: %w", err)
	}

	w := cmd.OutOrStdout()
	if doc == nil {
		if showFlags.format == "text" {
			fmt.Fprintf(w, "No lineage recorded for %s\n", target)
		}
		return nil
	}

	switch showFlags.format {
	case "json":
		return outputJSON(w, doc)
	case "yaml":
		return outputYAML(w, doc)
	case "text":
		renderText(w, doc, newTheme(isTerminal(w)))
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", showFlags.format)
	}
}

func outputJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// outputYAML prints v with the same field names as its JSON form.
func outputYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type theme struct {
	heading lipgloss.Style
	label   lipgloss.Style
	dim     lipgloss.Style
}

func newTheme(color bool) theme {
	if !color {
		plain := lipgloss.NewStyle()
		return theme{heading: plain, label: plain, dim: plain}
	}
	return theme{
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

func renderText(w io.Writer, doc *provenance.Document, th theme) {
	field := func(name, value string) {
		fmt.Fprintf(w, "  %s %s\n", th.label.Render(fmt.Sprintf("%-10s", name+":")), value)
	}

	fmt.Fprintln(w, th.heading.Render("Invocation"))
	field("program", doc.Program())
	if len(doc.InvocationArgs) > 1 {
		field("args", strings.Join(doc.InvocationArgs[1:], " "))
	}
	if doc.InvocationID != "" {
		field("id", doc.InvocationID)
	}
	field("started", doc.StartTime.Format("2006-01-02 15:04:05Z07:00"))
	field("finished", doc.EndTime.Format("2006-01-02 15:04:05Z07:00"))
	field("user", doc.Environment.User)
	field("host", doc.Environment.Host)
	if doc.Environment.ContainerID != "" {
		field("container", doc.Environment.ContainerID)
	}
	if doc.Environment.Pod != "" {
		field("pod", doc.Environment.Pod)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, th.heading.Render(fmt.Sprintf("Inputs (%d)", doc.Inputs.Len())))
	for _, ref := range doc.InputRefs() {
		switch r := ref.(type) {
		case provenance.FileRef:
			line := "  " + r.Path + " " + th.dim.Render(shortHash(r.ContentHash))
			if r.History != nil {
				line += th.dim.Render(" <- " + r.History.ProgramName())
			}
			fmt.Fprintln(w, line)
		case provenance.RemoteRef:
			fmt.Fprintln(w, "  "+r.URL)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, th.heading.Render(fmt.Sprintf("Outputs (%d)", len(doc.Outputs))))
	outputs := slices.Clone(doc.Outputs)
	slices.SortFunc(outputs, func(a, b provenance.OutputRecord) int { return strings.Compare(a.Path, b.Path) })
	for _, o := range outputs {
		fmt.Fprintln(w, "  "+o.Path+" "+th.dim.Render(shortHash(o.ContentHash)))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, th.heading.Render("Source control"))
	sc := doc.SourceControl
	if sc.Error != "" {
		field("status", sc.Error)
	} else {
		field("branch", sc.Branch)
		field("commit", sc.Commit)
		field("dirty", fmt.Sprint(sc.Dirty))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, th.heading.Render("Platform"))
	p := doc.Platform
	field("system", strings.TrimSpace(p.System+" "+p.Release))
	field("machine", p.Machine)
	field("runtime", doc.Runtime.Version)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
