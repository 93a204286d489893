package logger

import "log/slog"

// Field keys shared by every log statement, so aggregation can filter by
// tenant, layer or path.
const (
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	KeyTenant      = "tenant"
	KeyLayer       = "layer"
	KeyLayerName   = "layer_name"
	KeyParentLayer = "parent_layer"
	KeyActiveLayer = "active_layer"
	KeyChainDepth  = "chain_depth"

	KeyOperation = "operation"
	KeyPath      = "path"
	KeyInodeID   = "inode_id"
	KeySize      = "size"
	KeyCount     = "count"
	KeyUID       = "uid"
	KeyGID       = "gid"

	KeyStrategy  = "strategy"   // in_place, full_copy, diff
	KeyFileClass = "file_class" // text or binary

	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"
	KeyRetryable  = "retryable"
	KeyStoreType  = "store_type"
)

func Tenant(id string) slog.Attr { return slog.String(KeyTenant, id) }
func Layer(id string) slog.Attr { return slog.String(KeyLayer, id) }
func LayerName(name string) slog.Attr { return slog.String(KeyLayerName, name) }
func ParentLayer(id string) slog.Attr { return slog.String(KeyParentLayer, id) }
func ActiveLayer(id string) slog.Attr { return slog.String(KeyActiveLayer, id) }
func ChainDepth(n int) slog.Attr { return slog.Int(KeyChainDepth, n) }
func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }
func InodeID(id string) slog.Attr { return slog.String(KeyInodeID, id) }
func Size(n uint64) slog.Attr { return slog.Uint64(KeySize, n) }
func Count(n int) slog.Attr { return slog.Int(KeyCount, n) }
func Strategy(s string) slog.Attr { return slog.String(KeyStrategy, s) }
func FileClass(c string) slog.Attr { return slog.String(KeyFileClass, c) }
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }
func ErrorCode(code string) slog.Attr { return slog.String(KeyErrorCode, code) }
func Retryable(r bool) slog.Attr { return slog.Bool(KeyRetryable, r) }
func StoreType(t string) slog.Attr { return slog.String(KeyStoreType, t) }

// Err is the error attribute. A nil err yields an empty Attr, which handlers
// drop.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
