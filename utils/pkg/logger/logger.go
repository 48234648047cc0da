package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

type Options struct {
	Verbose bool
	// Format is FormatText (colored, human readable) or FormatJSON. Defaults to FormatText.
	Format string
	// Writer defaults to os.Stdout.
	Writer io.Writer
}

// New returns a text logger at info level, or debug level when verbose is set.
func New(verbose bool) *slog.Logger {
	log, _ := NewWithOptions(Options{Verbose: verbose})
	return log
}

func NewWithOptions(opts Options) (*slog.Logger, error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}

	switch opts.Format {
	case "", FormatText:
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:       level,
			ReplaceAttr: replaceAttr,
		})), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: replaceAttr,
		})), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}
}

// replaceAttr renders timestamps as UTC RFC 3339 with milliseconds and drops empty string attributes.
func replaceAttr(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey && len(groups) == 0 {
		a.Value = slog.StringValue(formatRFC3339Millis(a.Value.Time()))
	}
	if s, ok := a.Value.Any().(string); ok && s == "" {
		return slog.Attr{}
	}
	return a
}

func formatRFC3339Millis(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s.%03dZ", t.Format("2006-01-02T15:04:05"), t.Nanosecond()/1_000_000)
}
