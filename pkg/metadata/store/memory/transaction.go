package memory

import (
	"context"
	"sort"

	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

// memoryTransaction operates on one tenant's maps while the store lock is
// held by WithTransaction. Records are copied on the way in and out so
// callers can never alias stored state.
type memoryTransaction struct {
	data *tenantData
	undo []func()
}

func (tx *memoryTransaction) journal(fn func()) {
	tx.undo = append(tx.undo, fn)
}

func (tx *memoryTransaction) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memoryTransaction) Tenant() string {
	return tx.data.tenant.ID
}

// ============================================================================
// Layers
// ============================================================================

func (tx *memoryTransaction) GetLayer(ctx context.Context, id string) (*metadata.Layer, error) {
	if err := errors.ContextError(ctx, "get layer"); err != nil {
		return nil, err
	}

	layer, ok := tx.data.layers[id]
	if !ok {
		return nil, errors.NewLayerNotFoundError(id)
	}
	return layer.Clone(), nil
}

func (tx *memoryTransaction) PutLayer(ctx context.Context, layer *metadata.Layer) error {
	if err := errors.ContextError(ctx, "put layer"); err != nil {
		return err
	}

	stored := layer.Clone()
	if err := metadata.BindTenant(tx.Tenant(), &stored.Tenant); err != nil {
		return err
	}

	prev, existed := tx.data.layers[stored.ID]
	tx.journal(func() {
		if existed {
			tx.data.layers[stored.ID] = prev
		} else {
			delete(tx.data.layers, stored.ID)
		}
	})
	tx.data.layers[stored.ID] = stored
	return nil
}

func (tx *memoryTransaction) ListLayers(ctx context.Context) ([]*metadata.Layer, error) {
	if err := errors.ContextError(ctx, "list layers"); err != nil {
		return nil, err
	}

	layers := make([]*metadata.Layer, 0, len(tx.data.layers))
	for _, l := range tx.data.layers {
		layers = append(layers, l.Clone())
	}
	sort.Slice(layers, func(i, j int) bool { return layers[i].Seq < layers[j].Seq })
	return layers, nil
}

// ============================================================================
// Inodes
// ============================================================================

func (tx *memoryTransaction) GetInode(ctx context.Context, layerID, id string) (*metadata.Inode, error) {
	if err := errors.ContextError(ctx, "get inode"); err != nil {
		return nil, err
	}

	inode, ok := tx.data.inodes[inodeKey{layerID, id}]
	if !ok {
		return nil, metadata.InodeNotFound(layerID, id)
	}
	return inode.Clone(), nil
}

func (tx *memoryTransaction) PutInode(ctx context.Context, inode *metadata.Inode) error {
	if err := errors.ContextError(ctx, "put inode"); err != nil {
		return err
	}

	stored := inode.Clone()
	if err := metadata.BindTenant(tx.Tenant(), &stored.Tenant); err != nil {
		return err
	}

	key := inodeKey{stored.LayerID, stored.ID}
	prev, existed := tx.data.inodes[key]
	tx.journal(func() {
		if existed {
			tx.data.inodes[key] = prev
		} else {
			delete(tx.data.inodes, key)
		}
	})
	tx.data.inodes[key] = stored
	return nil
}

func (tx *memoryTransaction) DeleteInode(ctx context.Context, layerID, id string) error {
	if err := errors.ContextError(ctx, "delete inode"); err != nil {
		return err
	}

	key := inodeKey{layerID, id}
	prev, existed := tx.data.inodes[key]
	if !existed {
		return nil
	}
	tx.journal(func() { tx.data.inodes[key] = prev })
	delete(tx.data.inodes, key)
	return nil
}

func (tx *memoryTransaction) ListInodes(ctx context.Context, layerID string) ([]*metadata.Inode, error) {
	if err := errors.ContextError(ctx, "list inodes"); err != nil {
		return nil, err
	}

	var inodes []*metadata.Inode
	for key, inode := range tx.data.inodes {
		if key.layerID == layerID {
			inodes = append(inodes, inode.Clone())
		}
	}
	sort.Slice(inodes, func(i, j int) bool { return inodes[i].ID < inodes[j].ID })
	return inodes, nil
}

func (tx *memoryTransaction) InodeVersions(ctx context.Context, id string) ([]*metadata.Inode, error) {
	if err := errors.ContextError(ctx, "inode versions"); err != nil {
		return nil, err
	}

	var inodes []*metadata.Inode
	for key, inode := range tx.data.inodes {
		if key.id == id {
			inodes = append(inodes, inode.Clone())
		}
	}
	sort.Slice(inodes, func(i, j int) bool { return inodes[i].LayerID < inodes[j].LayerID })
	return inodes, nil
}

// ============================================================================
// Directory entries
// ============================================================================

func (tx *memoryTransaction) GetEntry(ctx context.Context, layerID, dirID, name string) (*metadata.Entry, error) {
	if err := errors.ContextError(ctx, "get entry"); err != nil {
		return nil, err
	}

	entry, ok := tx.data.entries[dirKey{layerID, dirID}][name]
	if !ok {
		return nil, metadata.EntryNotFound(name)
	}
	return entry.Clone(), nil
}

func (tx *memoryTransaction) PutEntry(ctx context.Context, entry *metadata.Entry) error {
	if err := errors.ContextError(ctx, "put entry"); err != nil {
		return err
	}

	stored := entry.Clone()
	if err := metadata.BindTenant(tx.Tenant(), &stored.Tenant); err != nil {
		return err
	}

	key := dirKey{stored.LayerID, stored.DirID}
	names, ok := tx.data.entries[key]
	if !ok {
		names = make(map[string]*metadata.Entry)
		tx.data.entries[key] = names
	}

	prev, existed := names[stored.Name]
	tx.journal(func() {
		if existed {
			names[stored.Name] = prev
		} else {
			delete(names, stored.Name)
		}
		if len(names) == 0 {
			delete(tx.data.entries, key)
		} else {
			tx.data.entries[key] = names
		}
	})
	names[stored.Name] = stored
	return nil
}

func (tx *memoryTransaction) DeleteEntry(ctx context.Context, layerID, dirID, name string) error {
	if err := errors.ContextError(ctx, "delete entry"); err != nil {
		return err
	}

	key := dirKey{layerID, dirID}
	names := tx.data.entries[key]
	prev, existed := names[name]
	if !existed {
		return nil
	}

	tx.journal(func() {
		names[name] = prev
		tx.data.entries[key] = names
	})
	delete(names, name)
	if len(names) == 0 {
		delete(tx.data.entries, key)
	}
	return nil
}

func (tx *memoryTransaction) ListEntries(ctx context.Context, layerID, dirID string) ([]*metadata.Entry, error) {
	if err := errors.ContextError(ctx, "list entries"); err != nil {
		return nil, err
	}

	names := tx.data.entries[dirKey{layerID, dirID}]
	entries := make([]*metadata.Entry, 0, len(names))
	for _, e := range names {
		entries = append(entries, e.Clone())
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (tx *memoryTransaction) DeleteLayerEntries(ctx context.Context, layerID string) error {
	if err := errors.ContextError(ctx, "delete layer entries"); err != nil {
		return err
	}

	for key, names := range tx.data.entries {
		if key.layerID != layerID {
			continue
		}
		key, names := key, names
		tx.journal(func() { tx.data.entries[key] = names })
		delete(tx.data.entries, key)
	}
	return nil
}

// ============================================================================
// Blocks
// ============================================================================

func (tx *memoryTransaction) PutBlock(ctx context.Context, ref string, data []byte) error {
	if err := errors.ContextError(ctx, "put block"); err != nil {
		return err
	}

	if b, ok := tx.data.blocks[ref]; ok {
		b.refs++
		tx.journal(func() { b.refs-- })
		return nil
	}

	b := &block{data: append([]byte(nil), data...), refs: 1}
	tx.data.blocks[ref] = b
	tx.journal(func() { delete(tx.data.blocks, ref) })
	return nil
}

func (tx *memoryTransaction) GetBlock(ctx context.Context, ref string) ([]byte, error) {
	if err := errors.ContextError(ctx, "get block"); err != nil {
		return nil, err
	}

	b, ok := tx.data.blocks[ref]
	if !ok {
		return nil, metadata.BlockNotFound(ref)
	}
	return append([]byte(nil), b.data...), nil
}

func (tx *memoryTransaction) ReleaseBlock(ctx context.Context, ref string) error {
	if err := errors.ContextError(ctx, "release block"); err != nil {
		return err
	}

	b, ok := tx.data.blocks[ref]
	if !ok {
		return nil
	}

	b.refs--
	if b.refs == 0 {
		delete(tx.data.blocks, ref)
		tx.journal(func() {
			b.refs++
			tx.data.blocks[ref] = b
		})
		return nil
	}
	tx.journal(func() { b.refs++ })
	return nil
}

func (tx *memoryTransaction) Usage(ctx context.Context) (*metadata.Usage, error) {
	if err := errors.ContextError(ctx, "usage"); err != nil {
		return nil, err
	}

	var u metadata.Usage
	for _, b := range tx.data.blocks {
		u.Blocks++
		u.BlockBytes += uint64(len(b.data))
	}
	for _, inode := range tx.data.inodes {
		if inode.State != metadata.StateDeleted {
			u.Inodes++
		}
	}
	for _, l := range tx.data.layers {
		if !l.Deleted {
			u.Layers++
		}
	}
	return &u, nil
}
