package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys.
const (
	AttrTenant      = "layerfs.tenant"
	AttrLayer       = "layerfs.layer"
	AttrActiveLayer = "layerfs.active_layer"
	AttrChainDepth  = "layerfs.chain_depth"
	AttrOperation   = "fs.operation"
	AttrPath        = "fs.path"
	AttrCount       = "fs.count"
	AttrUID         = "user.uid"
	AttrGID         = "user.gid"
	AttrErrorCode   = "error.code"
)

func Tenant(id string) attribute.KeyValue { return attribute.String(AttrTenant, id) }
func Layer(id string) attribute.KeyValue { return attribute.String(AttrLayer, id) }
func ActiveLayer(id string) attribute.KeyValue { return attribute.String(AttrActiveLayer, id) }
func ChainDepth(n int) attribute.KeyValue { return attribute.Int(AttrChainDepth, n) }
func FSOperation(op string) attribute.KeyValue { return attribute.String(AttrOperation, op) }
func FSPath(p string) attribute.KeyValue { return attribute.String(AttrPath, p) }
func FSCount(n int) attribute.KeyValue { return attribute.Int(AttrCount, n) }
func UID(uid uint32) attribute.KeyValue { return attribute.Int64(AttrUID, int64(uid)) }
func GID(gid uint32) attribute.KeyValue { return attribute.Int64(AttrGID, int64(gid)) }
func ErrorCode(c string) attribute.KeyValue { return attribute.String(AttrErrorCode, c) }

// StartFSSpan starts "layerfs.<operation>" for a filesystem call of tenant.
// An empty path is left off the span.
func StartFSSpan(ctx context.Context, operation, tenant, path string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	base := []attribute.KeyValue{FSOperation(operation), Tenant(tenant)}
	if path != "" {
		base = append(base, FSPath(path))
	}
	return StartSpan(ctx, "layerfs."+operation, trace.WithAttributes(append(base, attrs...)...))
}

// StartLayerSpan starts "layer.<operation>" for layer administration.
func StartLayerSpan(ctx context.Context, operation, tenant string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	base := []attribute.KeyValue{Tenant(tenant)}
	return StartSpan(ctx, "layer."+operation, trace.WithAttributes(append(base, attrs...)...))
}

// StartHooksSpan starts "hooks.<operation>" for a control file access.
func StartHooksSpan(ctx context.Context, operation, file string) (context.Context, trace.Span) {
	return StartSpan(ctx, "hooks."+operation, trace.WithAttributes(FSPath(file)))
}
