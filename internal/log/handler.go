package log

import (
	"io"
	"log/slog"
	"os"
)

// HandlerOptions configures the log handler.
type HandlerOptions struct {
	Level     slog.Leveler
	Format    string // "text" or "json"
	Output    io.Writer
	AddSource bool
	// PID tags every record with "pid" when non-zero. The root of a
	// lineage run and its workers write to the same stderr.
	PID int
}

// NewHandler builds the text or json handler lineage logs through.
// Records go to stderr unless Output is set; stdout stays with the
// program being recorded.
func NewHandler(opts HandlerOptions) slog.Handler {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	base := &slog.HandlerOptions{
		Level:       opts.Level,
		AddSource:   opts.AddSource,
		ReplaceAttr: traceAwareLevel,
	}

	var h slog.Handler
	switch opts.Format {
	case "json":
		h = slog.NewJSONHandler(out, base)
	default:
		h = slog.NewTextHandler(out, base)
	}
	if opts.PID != 0 {
		h = h.WithAttrs([]slog.Attr{slog.Int("pid", opts.PID)})
	}
	return h
}

// traceAwareLevel prints LevelTrace as TRACE instead of DEBUG-4.
func traceAwareLevel(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.LevelKey {
		return a
	}
	if l, ok := a.Value.Any().(slog.Level); ok {
		a.Value = slog.StringValue(LevelName(l))
	}
	return a
}
