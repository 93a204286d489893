package logger

import (
	"context"
	"log/slog"
	"time"
)

type ctxKey struct{}

// LogContext carries the fields of one filesystem operation. Every *Ctx call
// logs its non-empty fields ahead of the record's own, except keys the
// record sets itself.
type LogContext struct {
	TraceID   string
	SpanID    string
	Tenant    string
	Layer     string // pinned layer, if any
	Operation string
	UID       uint32
	GID       uint32
	StartTime time.Time
}

// NewLogContext starts a LogContext for operation on behalf of tenant.
func NewLogContext(tenant, operation string) *LogContext {
	return &LogContext{Tenant: tenant, Operation: operation, StartTime: time.Now()}
}

// WithContext attaches lc to ctx.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, lc)
}

// FromContext returns the LogContext of ctx, or nil.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(ctxKey{}).(*LogContext)
	return lc
}

// derive copies lc and applies fn to the copy. A nil lc stays nil.
func (lc *LogContext) derive(fn func(*LogContext)) *LogContext {
	if lc == nil {
		return nil
	}
	next := *lc
	fn(&next)
	return &next
}

// WithLayer returns a copy pinned to layer.
func (lc *LogContext) WithLayer(layer string) *LogContext {
	return lc.derive(func(c *LogContext) { c.Layer = layer })
}

// WithCaller returns a copy with the caller identity.
func (lc *LogContext) WithCaller(uid, gid uint32) *LogContext {
	return lc.derive(func(c *LogContext) { c.UID, c.GID = uid, gid })
}

// WithTrace returns a copy with the trace and span IDs.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	return lc.derive(func(c *LogContext) { c.TraceID, c.SpanID = traceID, spanID })
}

// DurationMs is the time since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return Duration(lc.StartTime)
}

func (lc *LogContext) prepend(args []any) []any {
	if lc == nil {
		return args
	}
	own := argKeys(args)
	out := make([]any, 0, 14+len(args))
	add := func(key, val string) {
		if val != "" && !own[key] {
			out = append(out, key, val)
		}
	}
	add(KeyTraceID, lc.TraceID)
	add(KeySpanID, lc.SpanID)
	add(KeyTenant, lc.Tenant)
	add(KeyLayer, lc.Layer)
	add(KeyOperation, lc.Operation)
	if (lc.UID != 0 || lc.GID != 0) && !own[KeyUID] {
		out = append(out, KeyUID, lc.UID, KeyGID, lc.GID)
	}
	return append(out, args...)
}

// argKeys collects the keys of slog-style args, which hold either an Attr or
// a key followed by its value.
func argKeys(args []any) map[string]bool {
	keys := make(map[string]bool, len(args))
	for i := 0; i < len(args); i++ {
		switch a := args[i].(type) {
		case slog.Attr:
			keys[a.Key] = true
		case string:
			keys[a] = true
			i++
		}
	}
	return keys
}
