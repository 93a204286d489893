package relational

import (
	"context"
	"sort"

	"gorm.io/gorm"

	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

// gormTransaction implements metadata.Transaction over an open GORM
// transaction. Every query is filtered by tenant.
type gormTransaction struct {
	db     *gorm.DB
	tenant string
}

func (tx *gormTransaction) Tenant() string {
	return tx.tenant
}

// ============================================================================
// Layers
// ============================================================================

func (tx *gormTransaction) GetLayer(ctx context.Context, id string) (*metadata.Layer, error) {
	m, err := firstWhere[layerModel](tx.db, ctx, errors.NewLayerNotFoundError(id),
		"tenant = ? AND id = ?", tx.tenant, id)
	if err != nil {
		return nil, err
	}
	return m.toLayer(), nil
}

func (tx *gormTransaction) PutLayer(ctx context.Context, layer *metadata.Layer) error {
	stored := layer.Clone()
	if err := metadata.BindTenant(tx.tenant, &stored.Tenant); err != nil {
		return err
	}
	return upsert(tx.db, ctx, layerToModel(stored))
}

func (tx *gormTransaction) ListLayers(ctx context.Context) ([]*metadata.Layer, error) {
	var models []*layerModel
	if err := tx.db.WithContext(ctx).Where("tenant = ?", tx.tenant).Order("seq").Find(&models).Error; err != nil {
		return nil, mapError("list layers", err)
	}

	layers := make([]*metadata.Layer, len(models))
	for i, m := range models {
		layers[i] = m.toLayer()
	}
	return layers, nil
}

// ============================================================================
// Inodes
// ============================================================================

func (tx *gormTransaction) GetInode(ctx context.Context, layerID, id string) (*metadata.Inode, error) {
	m, err := firstWhere[inodeModel](tx.db, ctx, metadata.InodeNotFound(layerID, id),
		"tenant = ? AND layer_id = ? AND id = ?", tx.tenant, layerID, id)
	if err != nil {
		return nil, err
	}
	return m.toInode(), nil
}

func (tx *gormTransaction) PutInode(ctx context.Context, inode *metadata.Inode) error {
	stored := inode.Clone()
	if err := metadata.BindTenant(tx.tenant, &stored.Tenant); err != nil {
		return err
	}
	return upsert(tx.db, ctx, inodeToModel(stored))
}

func (tx *gormTransaction) DeleteInode(ctx context.Context, layerID, id string) error {
	return deleteWhere[inodeModel](tx.db, ctx,
		"tenant = ? AND layer_id = ? AND id = ?", tx.tenant, layerID, id)
}

func (tx *gormTransaction) ListInodes(ctx context.Context, layerID string) ([]*metadata.Inode, error) {
	models, err := findWhere[inodeModel](tx.db, ctx, "tenant = ? AND layer_id = ?", tx.tenant, layerID)
	if err != nil {
		return nil, err
	}
	return toInodes(models), nil
}

func (tx *gormTransaction) InodeVersions(ctx context.Context, id string) ([]*metadata.Inode, error) {
	models, err := findWhere[inodeModel](tx.db, ctx, "tenant = ? AND id = ?", tx.tenant, id)
	if err != nil {
		return nil, err
	}
	return toInodes(models), nil
}

func toInodes(models []*inodeModel) []*metadata.Inode {
	inodes := make([]*metadata.Inode, len(models))
	for i, m := range models {
		inodes[i] = m.toInode()
	}
	return inodes
}

// ============================================================================
// Directory entries
// ============================================================================

func (tx *gormTransaction) GetEntry(ctx context.Context, layerID, dirID, name string) (*metadata.Entry, error) {
	m, err := firstWhere[entryModel](tx.db, ctx, metadata.EntryNotFound(name),
		"tenant = ? AND layer_id = ? AND dir_id = ? AND name = ?", tx.tenant, layerID, dirID, name)
	if err != nil {
		return nil, err
	}
	return m.toEntry(), nil
}

func (tx *gormTransaction) PutEntry(ctx context.Context, entry *metadata.Entry) error {
	stored := entry.Clone()
	if err := metadata.BindTenant(tx.tenant, &stored.Tenant); err != nil {
		return err
	}
	return upsert(tx.db, ctx, entryToModel(stored))
}

func (tx *gormTransaction) DeleteEntry(ctx context.Context, layerID, dirID, name string) error {
	return deleteWhere[entryModel](tx.db, ctx,
		"tenant = ? AND layer_id = ? AND dir_id = ? AND name = ?", tx.tenant, layerID, dirID, name)
}

func (tx *gormTransaction) ListEntries(ctx context.Context, layerID, dirID string) ([]*metadata.Entry, error) {
	models, err := findWhere[entryModel](tx.db, ctx,
		"tenant = ? AND layer_id = ? AND dir_id = ?", tx.tenant, layerID, dirID)
	if err != nil {
		return nil, err
	}

	// Sorted here rather than with ORDER BY: database collations need not
	// be bytewise.
	entries := make([]*metadata.Entry, len(models))
	for i, m := range models {
		entries[i] = m.toEntry()
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (tx *gormTransaction) DeleteLayerEntries(ctx context.Context, layerID string) error {
	return deleteWhere[entryModel](tx.db, ctx, "tenant = ? AND layer_id = ?", tx.tenant, layerID)
}

// ============================================================================
// Blocks
// ============================================================================

func (tx *gormTransaction) PutBlock(ctx context.Context, ref string, data []byte) error {
	res := tx.db.WithContext(ctx).Model(&blockModel{}).
		Where("tenant = ? AND ref = ?", tx.tenant, ref).
		UpdateColumn("refs", gorm.Expr("refs + 1"))
	if res.Error != nil {
		return mapError("put block", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	m := &blockModel{
		Tenant: tx.tenant,
		Ref:    ref,
		Refs:   1,
		Size:   int64(len(data)),
		Data:   data,
	}
	return mapError("put block", tx.db.WithContext(ctx).Create(m).Error)
}

func (tx *gormTransaction) GetBlock(ctx context.Context, ref string) ([]byte, error) {
	m, err := firstWhere[blockModel](tx.db, ctx, metadata.BlockNotFound(ref),
		"tenant = ? AND ref = ?", tx.tenant, ref)
	if err != nil {
		return nil, err
	}
	if m.Data == nil {
		return []byte{}, nil
	}
	return m.Data, nil
}

func (tx *gormTransaction) ReleaseBlock(ctx context.Context, ref string) error {
	var m blockModel
	res := tx.db.WithContext(ctx).Select("refs").
		Where("tenant = ? AND ref = ?", tx.tenant, ref).
		Limit(1).Find(&m)
	if res.Error != nil {
		return mapError("release block", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	if m.Refs <= 1 {
		return deleteWhere[blockModel](tx.db, ctx, "tenant = ? AND ref = ?", tx.tenant, ref)
	}
	err := tx.db.WithContext(ctx).Model(&blockModel{}).
		Where("tenant = ? AND ref = ?", tx.tenant, ref).
		UpdateColumn("refs", gorm.Expr("refs - 1")).Error
	return mapError("release block", err)
}

func (tx *gormTransaction) Usage(ctx context.Context) (*metadata.Usage, error) {
	db := tx.db.WithContext(ctx)

	var blocks struct {
		Count int64
		Bytes int64
	}
	if err := db.Model(&blockModel{}).
		Select("COUNT(*) AS count, COALESCE(SUM(size), 0) AS bytes").
		Where("tenant = ?", tx.tenant).
		Scan(&blocks).Error; err != nil {
		return nil, mapError("usage", err)
	}

	var inodes, layers int64
	if err := db.Model(&inodeModel{}).
		Where("tenant = ? AND state <> ?", tx.tenant, int(metadata.StateDeleted)).
		Count(&inodes).Error; err != nil {
		return nil, mapError("usage", err)
	}
	if err := db.Model(&layerModel{}).
		Where("tenant = ? AND deleted = ?", tx.tenant, false).
		Count(&layers).Error; err != nil {
		return nil, mapError("usage", err)
	}

	return &metadata.Usage{
		Blocks:     uint64(blocks.Count),
		BlockBytes: uint64(blocks.Bytes),
		Inodes:     uint64(inodes),
		Layers:     uint64(layers),
	}, nil
}
