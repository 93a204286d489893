// Package layerfs is the call surface of the layered filesystem.
//
// Every FileSystem method validates its paths, then either serves the control
// directory or runs in exactly one storage transaction: the active layer is
// read once, paths are resolved through the union view of the chain, and
// mutations go through copy-on-write into the active layer.
//
//	fs, err := layerfs.New(store, layerfs.Options{})
//	op := layerfs.NewOpContext(ctx, "acme")
//	_, err = fs.InitTenant(op)
//	_, err = fs.Create(op, "/notes.txt", 0644)
//	_, err = fs.Write(op, "/notes.txt", 0, []byte("hello\n"))
package layerfs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/marmos91/layerfs/internal/logger"
	"github.com/marmos91/layerfs/internal/telemetry"
	"github.com/marmos91/layerfs/pkg/cow"
	"github.com/marmos91/layerfs/pkg/filetype"
	"github.com/marmos91/layerfs/pkg/hooks"
	"github.com/marmos91/layerfs/pkg/layer"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
	"github.com/marmos91/layerfs/pkg/metrics"
	"github.com/marmos91/layerfs/pkg/union"
)

// Options configures a FileSystem. Zero values take package defaults.
type Options struct {
	Layers      layer.Config
	Detection   filetype.Config
	COW         cow.Config
	Limits      metadata.Limits
	ControlPath string

	// Capacity is reported by Statfs. Zero means unbounded.
	Capacity uint64
}

// Option customizes a FileSystem.
type Option func(*FileSystem)

// WithMetrics records operation metrics on m.
func WithMetrics(m metrics.FSMetrics) Option {
	return func(fs *FileSystem) {
		fs.metrics = m
	}
}

// WithChainCacheMetrics records chain cache metrics on m.
func WithChainCacheMetrics(m metrics.ChainCacheMetrics) Option {
	return func(fs *FileSystem) {
		fs.cacheMetrics = m
	}
}

// FileSystem is safe for concurrent use; isolation between calls is provided
// by the store's transactions.
type FileSystem struct {
	store metadata.Store
	opts  Options

	layers *layer.Manager
	view   *union.View
	cow    *cow.Handler
	hooks  *hooks.Handler

	metrics      metrics.FSMetrics
	cacheMetrics metrics.ChainCacheMetrics
}

// New creates a FileSystem over store.
func New(store metadata.Store, opts Options, options ...Option) (*FileSystem, error) {
	fs := &FileSystem{store: store, opts: opts}
	for _, o := range options {
		o(fs)
	}

	lcfg := opts.Layers
	lcfg.Limits = opts.Limits
	layers, err := layer.NewManager(lcfg, fs.cacheMetrics)
	if err != nil {
		return nil, err
	}
	ctl, err := hooks.New(opts.ControlPath, layers)
	if err != nil {
		return nil, err
	}

	fs.layers = layers
	fs.view = union.New(layers, opts.Limits)
	fs.cow = cow.New(opts.COW, fs.view, filetype.NewDetector(opts.Detection), fs.metrics)
	fs.hooks = ctl
	return fs, nil
}

// ControlPath returns the path of the control directory.
func (fs *FileSystem) ControlPath() string {
	return fs.hooks.Path()
}

// Store returns the underlying store.
func (fs *FileSystem) Store() metadata.Store {
	return fs.store
}

// call is the per-transaction state of a filesystem operation.
type call struct {
	ctx    context.Context
	tx     metadata.Transaction
	active *metadata.Layer

	// chain resolves the call. Its first element is the active layer unless
	// the caller pinned another layer for a read.
	chain []string
}

func (c *call) activeID() string {
	return c.active.ID
}

// do runs fn in one transaction of the caller's tenant, wrapped in a span, a
// log context and operation metrics.
func (fs *FileSystem) do(op *OpContext, name, path string, fn func(ctx context.Context, tx metadata.Transaction) error) (err error) {
	tenant := op.tenant()

	ctx, span := telemetry.StartFSSpan(op.context(), name, tenant, path,
		telemetry.UID(uidOf(op)), telemetry.GID(gidOf(op)))
	defer span.End()

	lc := logger.NewLogContext(tenant, name).
		WithLayer(op.pinned()).
		WithCaller(uidOf(op), gidOf(op)).
		WithTrace(telemetry.TraceID(ctx), telemetry.SpanID(ctx))
	ctx = logger.WithContext(ctx, lc)

	start := time.Now()
	defer func() {
		fs.observe(ctx, span, name, path, start, err)
	}()

	return fs.store.WithTransaction(ctx, tenant, func(tx metadata.Transaction) error {
		return fn(ctx, tx)
	})
}

// run is do plus the active layer snapshot and the resolution chain.
func (fs *FileSystem) run(op *OpContext, name, path string, write bool, fn func(c *call) error) error {
	return fs.do(op, name, path, func(ctx context.Context, tx metadata.Transaction) error {
		active, err := fs.layers.Active(ctx, tx)
		if err != nil {
			return err
		}

		resolveID := active.ID
		if ref := op.pinned(); ref != "" {
			pinned, err := fs.layers.Get(ctx, tx, ref)
			if err != nil {
				return err
			}
			if pinned.ID != active.ID {
				if write {
					return errors.NewLayerChangedError(pinned.ID, active.ID)
				}
				resolveID = pinned.ID
			}
		}

		chain, err := fs.layers.ChainOf(ctx, tx, resolveID)
		if err != nil {
			return err
		}
		if fs.metrics != nil {
			fs.metrics.ObserveChainDepth(len(chain))
		}
		telemetry.SetAttributes(ctx,
			telemetry.Layer(resolveID), telemetry.ActiveLayer(active.ID), telemetry.ChainDepth(len(chain)))

		return fn(&call{ctx: ctx, tx: tx, active: active, chain: chain})
	})
}

func (fs *FileSystem) observe(ctx context.Context, span trace.Span, name, path string, start time.Time, err error) {
	d := time.Since(start)
	outcome := metadata.OutcomeOf(err)
	if fs.metrics != nil {
		fs.metrics.ObserveOperation(name, outcome, d)
	}

	if err == nil {
		logger.DebugCtx(ctx, "Operation completed", logger.Path(path), logger.DurationMs(logger.Duration(start)))
		return
	}

	code := errors.CodeOf(err).String()
	span.SetAttributes(telemetry.ErrorCode(code))
	telemetry.RecordError(ctx, err)

	args := []any{logger.Path(path), logger.ErrorCode(code), logger.Err(err), logger.DurationMs(logger.Duration(start))}
	switch outcome {
	case metrics.OutcomeError:
		logger.ErrorCtx(ctx, "Operation failed", args...)
	case metrics.OutcomeRetry:
		logger.WarnCtx(ctx, "Operation conflicted", append(args, logger.Retryable(true))...)
	default:
		logger.DebugCtx(ctx, "Operation rejected", args...)
	}
}

// updateLiveLayers reports the live layer count of the tenant.
func (fs *FileSystem) updateLiveLayers(ctx context.Context, tx metadata.Transaction) error {
	if fs.metrics == nil {
		return nil
	}
	layers, err := fs.layers.List(ctx, tx, false)
	if err != nil {
		return err
	}
	fs.metrics.SetLiveLayers(tx.Tenant(), len(layers))
	return nil
}

func uidOf(op *OpContext) uint32 {
	if op == nil {
		return 0
	}
	return op.UID
}

func gidOf(op *OpContext) uint32 {
	if op == nil {
		return 0
	}
	return op.GID
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
