package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

const (
	colorReset  = "\x1b[0m"
	colorDim    = "\x1b[2m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
	colorCyan   = "\x1b[36m"
)

// consoleHandler renders compact single-line records for humans:
// "15:04:05 INF message key=value ...". Color is applied only when the
// destination is a terminal.
type consoleHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  *slog.LevelVar
	color  bool
	attrs  []slog.Attr
	groups []string
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar) slog.Handler {
	color := false
	if file, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
	}
	return &consoleHandler{
		mu:    &sync.Mutex{},
		out:   w,
		level: lvl,
		color: color,
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder

	if !record.Time.IsZero() {
		h.writeColored(&b, colorDim, record.Time.UTC().Format("15:04:05"))
		b.WriteByte(' ')
	}
	h.writeColored(&b, levelColor(record.Level), levelLabel(record.Level))
	b.WriteByte(' ')
	b.WriteString(record.Message)

	prefix := strings.Join(h.groups, ".")
	for _, attr := range h.attrs {
		h.writeAttr(&b, prefix, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		h.writeAttr(&b, prefix, attr)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string{}, h.groups...), name)
	return &clone
}

func (h *consoleHandler) writeAttr(b *strings.Builder, prefix string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	key := attr.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if attr.Value.Kind() == slog.KindGroup {
		for _, nested := range attr.Value.Group() {
			h.writeAttr(b, key, nested)
		}
		return
	}
	b.WriteByte(' ')
	h.writeColored(b, colorCyan, key)
	b.WriteByte('=')
	b.WriteString(formatValue(attr.Value))
}

func (h *consoleHandler) writeColored(b *strings.Builder, color, text string) {
	if h.color && color != "" {
		b.WriteString(color)
		b.WriteString(text)
		b.WriteString(colorReset)
		return
	}
	b.WriteString(text)
}

func formatValue(v slog.Value) string {
	resolved := v.Resolve()
	text := resolved.String()
	if resolved.Kind() == slog.KindString && strings.ContainsAny(text, " \t") {
		return fmt.Sprintf("%q", text)
	}
	return text
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERR"
	case level >= slog.LevelWarn:
		return "WRN"
	case level >= slog.LevelInfo:
		return "INF"
	default:
		return "DBG"
	}
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	default:
		return ""
	}
}
