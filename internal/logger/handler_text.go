package logger

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

// ColorTextHandler writes one line per record:
//
//	2006-01-02 15:04:05 INFO  message key=value group.key=value
type ColorTextHandler struct {
	level  slog.Leveler
	w      io.Writer
	mu     *sync.Mutex
	prefix []byte // pre-rendered WithAttrs output
	group  string // dotted WithGroup path, with trailing dot
	color  bool
}

// NewColorTextHandler returns a handler writing to w. opts.Level defaults to
// Info.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, color bool) *ColorTextHandler {
	var lvl slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		lvl = opts.Level
	}
	return &ColorTextHandler{level: lvl, w: w, mu: &sync.Mutex{}, color: color}
}

func (h *ColorTextHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *ColorTextHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString(r.Time.Format(time.DateTime))
	buf.WriteByte(' ')
	h.writeLevel(&buf, r.Level)
	buf.WriteByte(' ')
	buf.WriteString(r.Message)
	buf.Write(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&buf, h.group, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *ColorTextHandler) writeLevel(buf *bytes.Buffer, l slog.Level) {
	name, color := "ERROR", ansiRed
	switch {
	case l < slog.LevelInfo:
		name, color = "DEBUG", ansiGray
	case l < slog.LevelWarn:
		name, color = "INFO ", ansiGreen
	case l < slog.LevelError:
		name, color = "WARN ", ansiYellow
	}
	if h.color {
		buf.WriteString(color + name + ansiReset)
		return
	}
	buf.WriteString(name)
}

func (h *ColorTextHandler) writeAttr(buf *bytes.Buffer, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		if a.Key != "" {
			group += a.Key + "."
		}
		for _, ga := range v.Group() {
			h.writeAttr(buf, group, ga)
		}
		return
	}

	buf.WriteByte(' ')
	if h.color {
		buf.WriteString(ansiCyan + group + a.Key + ansiReset)
	} else {
		buf.WriteString(group + a.Key)
	}
	buf.WriteByte('=')
	buf.WriteString(formatValue(v))
}

func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', 3, 64)
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindString:
		s := v.String()
		if s == "" || bytes.ContainsAny([]byte(s), " =\"\n") {
			return strconv.Quote(s)
		}
		return s
	default:
		return v.String()
	}
}

func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var buf bytes.Buffer
	buf.Write(h.prefix)
	for _, a := range attrs {
		h.writeAttr(&buf, h.group, a)
	}
	next := *h
	next.prefix = buf.Bytes()
	return &next
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group += name + "."
	return &next
}
