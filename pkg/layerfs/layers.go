package layerfs

import (
	"context"

	"github.com/marmos91/layerfs/internal/logger"
	"github.com/marmos91/layerfs/internal/telemetry"
	"github.com/marmos91/layerfs/pkg/metadata"
)

// InitTenant creates the caller's tenant if needed and bootstraps its root
// layer and root directory. It is idempotent and returns the active layer.
func (fs *FileSystem) InitTenant(op *OpContext) (*metadata.Layer, error) {
	if _, err := fs.store.EnsureTenant(op.context(), op.tenant()); err != nil {
		return nil, err
	}

	var active *metadata.Layer
	err := fs.layerCall(op, "init", func(ctx context.Context, tx metadata.Transaction) (err error) {
		if active, err = fs.layers.Bootstrap(ctx, tx); err != nil {
			return err
		}
		return fs.updateLiveLayers(ctx, tx)
	})
	return active, err
}

// CreateLayer creates a child of parent (name or ID; empty means the active
// layer). The new layer is not activated.
func (fs *FileSystem) CreateLayer(op *OpContext, name, parent string) (*metadata.Layer, error) {
	var created *metadata.Layer
	err := fs.layerCall(op, "create", func(ctx context.Context, tx metadata.Transaction) (err error) {
		telemetry.SetAttributes(ctx, telemetry.Layer(name))
		if created, err = fs.layers.Create(ctx, tx, name, parent); err != nil {
			return err
		}
		return fs.updateLiveLayers(ctx, tx)
	})
	return created, err
}

// SwitchLayer makes ref the active layer.
func (fs *FileSystem) SwitchLayer(op *OpContext, ref string) (*metadata.Layer, error) {
	var active *metadata.Layer
	err := fs.layerCall(op, "switch", func(ctx context.Context, tx metadata.Transaction) (err error) {
		telemetry.SetAttributes(ctx, telemetry.Layer(ref))
		active, err = fs.layers.Switch(ctx, tx, ref)
		return err
	})
	return active, err
}

// DeleteLayer deletes a leaf layer that is not active.
func (fs *FileSystem) DeleteLayer(op *OpContext, ref string) (*metadata.Layer, error) {
	var deleted *metadata.Layer
	err := fs.layerCall(op, "delete", func(ctx context.Context, tx metadata.Transaction) (err error) {
		telemetry.SetAttributes(ctx, telemetry.Layer(ref))
		if deleted, err = fs.layers.Delete(ctx, tx, ref); err != nil {
			return err
		}
		return fs.updateLiveLayers(ctx, tx)
	})
	return deleted, err
}

// ListLayers returns the tenant's layers ordered by creation.
func (fs *FileSystem) ListLayers(op *OpContext, includeDeleted bool) ([]*metadata.Layer, error) {
	var layers []*metadata.Layer
	err := fs.layerCall(op, "list", func(ctx context.Context, tx metadata.Transaction) (err error) {
		layers, err = fs.layers.List(ctx, tx, includeDeleted)
		return err
	})
	return layers, err
}

// ActiveLayer returns the active layer.
func (fs *FileSystem) ActiveLayer(op *OpContext) (*metadata.Layer, error) {
	var active *metadata.Layer
	err := fs.layerCall(op, "active", func(ctx context.Context, tx metadata.Transaction) (err error) {
		active, err = fs.layers.Active(ctx, tx)
		return err
	})
	return active, err
}

// Chain returns the layers a call resolves through, nearest first: the
// pinned layer's chain if the caller pinned one, the active chain otherwise.
func (fs *FileSystem) Chain(op *OpContext) ([]*metadata.Layer, error) {
	var layers []*metadata.Layer
	err := fs.run(op, "chain", "", false, func(c *call) (err error) {
		layers, err = fs.layers.Layers(c.ctx, c.tx, c.chain)
		return err
	})
	return layers, err
}

// layerCall runs a layer administration call inside a layer span.
func (fs *FileSystem) layerCall(op *OpContext, name string, fn func(ctx context.Context, tx metadata.Transaction) error) error {
	return fs.do(op, "layer_"+name, "", func(ctx context.Context, tx metadata.Transaction) error {
		ctx, span := telemetry.StartLayerSpan(ctx, name, tx.Tenant())
		defer span.End()

		if err := fn(ctx, tx); err != nil {
			return err
		}
		logger.DebugCtx(ctx, "Layer call completed", logger.Operation(name))
		return nil
	})
}
