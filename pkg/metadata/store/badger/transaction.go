package badger

import (
	"bytes"
	"context"
	stderrors "errors"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

// ============================================================================
// Transaction Support
// ============================================================================

// badgerTransaction wraps a BadgerDB transaction for the Transaction interface.
type badgerTransaction struct {
	txn    *badgerdb.Txn
	tenant string
}

func (tx *badgerTransaction) Tenant() string {
	return tx.tenant
}

// get loads a key and hands its value to decode. found is false when the key
// does not exist.
func (tx *badgerTransaction) get(key []byte, decode func(val []byte) error) (found bool, err error) {
	item, err := tx.txn.Get(key)
	if stderrors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(decode)
}

// scan calls fn for every key under prefix in key order.
func (tx *badgerTransaction) scan(prefix []byte, fn func(key, val []byte) error) error {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = prefix
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		if err := item.Value(func(val []byte) error { return fn(key, val) }); err != nil {
			return err
		}
	}
	return nil
}

// scanKeys returns every key under prefix.
func (tx *badgerTransaction) scanKeys(prefix []byte) ([][]byte, error) {
	opts := badgerdb.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := tx.txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys, nil
}

// ============================================================================
// Layers
// ============================================================================

func (tx *badgerTransaction) GetLayer(ctx context.Context, id string) (*metadata.Layer, error) {
	if err := errors.ContextError(ctx, "get layer"); err != nil {
		return nil, err
	}

	var layer *metadata.Layer
	found, err := tx.get(keyLayer(tx.tenant, id), func(val []byte) error {
		l, decErr := decodeLayer(val)
		layer = l
		return decErr
	})
	if err != nil {
		return nil, mapError("get layer", err)
	}
	if !found {
		return nil, errors.NewLayerNotFoundError(id)
	}
	return layer, nil
}

func (tx *badgerTransaction) PutLayer(ctx context.Context, layer *metadata.Layer) error {
	if err := errors.ContextError(ctx, "put layer"); err != nil {
		return err
	}

	stored := layer.Clone()
	if err := metadata.BindTenant(tx.tenant, &stored.Tenant); err != nil {
		return err
	}

	data, err := encodeJSON(stored)
	if err != nil {
		return err
	}
	return mapError("put layer", tx.txn.Set(keyLayer(tx.tenant, stored.ID), data))
}

func (tx *badgerTransaction) ListLayers(ctx context.Context) ([]*metadata.Layer, error) {
	if err := errors.ContextError(ctx, "list layers"); err != nil {
		return nil, err
	}

	var layers []*metadata.Layer
	err := tx.scan(keyLayerPrefix(tx.tenant), func(_, val []byte) error {
		l, decErr := decodeLayer(val)
		if decErr != nil {
			return decErr
		}
		layers = append(layers, l)
		return nil
	})
	if err != nil {
		return nil, mapError("list layers", err)
	}

	sort.Slice(layers, func(i, j int) bool { return layers[i].Seq < layers[j].Seq })
	return layers, nil
}

// ============================================================================
// Inodes
// ============================================================================

func (tx *badgerTransaction) GetInode(ctx context.Context, layerID, id string) (*metadata.Inode, error) {
	if err := errors.ContextError(ctx, "get inode"); err != nil {
		return nil, err
	}

	var inode *metadata.Inode
	found, err := tx.get(keyInode(tx.tenant, layerID, id), func(val []byte) error {
		i, decErr := decodeInode(val)
		inode = i
		return decErr
	})
	if err != nil {
		return nil, mapError("get inode", err)
	}
	if !found {
		return nil, metadata.InodeNotFound(layerID, id)
	}
	return inode, nil
}

func (tx *badgerTransaction) PutInode(ctx context.Context, inode *metadata.Inode) error {
	if err := errors.ContextError(ctx, "put inode"); err != nil {
		return err
	}

	stored := inode.Clone()
	if err := metadata.BindTenant(tx.tenant, &stored.Tenant); err != nil {
		return err
	}

	data, err := encodeJSON(stored)
	if err != nil {
		return err
	}
	if err := tx.txn.Set(keyInode(tx.tenant, stored.LayerID, stored.ID), data); err != nil {
		return mapError("put inode", err)
	}
	return mapError("put inode version", tx.txn.Set(keyVersion(tx.tenant, stored.ID, stored.LayerID), nil))
}

func (tx *badgerTransaction) DeleteInode(ctx context.Context, layerID, id string) error {
	if err := errors.ContextError(ctx, "delete inode"); err != nil {
		return err
	}

	if err := tx.txn.Delete(keyInode(tx.tenant, layerID, id)); err != nil {
		return mapError("delete inode", err)
	}
	return mapError("delete inode version", tx.txn.Delete(keyVersion(tx.tenant, id, layerID)))
}

func (tx *badgerTransaction) ListInodes(ctx context.Context, layerID string) ([]*metadata.Inode, error) {
	if err := errors.ContextError(ctx, "list inodes"); err != nil {
		return nil, err
	}

	var inodes []*metadata.Inode
	err := tx.scan(keyInodePrefix(tx.tenant, layerID), func(_, val []byte) error {
		i, decErr := decodeInode(val)
		if decErr != nil {
			return decErr
		}
		inodes = append(inodes, i)
		return nil
	})
	if err != nil {
		return nil, mapError("list inodes", err)
	}
	return inodes, nil
}

func (tx *badgerTransaction) InodeVersions(ctx context.Context, id string) ([]*metadata.Inode, error) {
	if err := errors.ContextError(ctx, "inode versions"); err != nil {
		return nil, err
	}

	prefix := keyVersionPrefix(tx.tenant, id)
	keys, err := tx.scanKeys(prefix)
	if err != nil {
		return nil, mapError("list inode versions", err)
	}

	inodes := make([]*metadata.Inode, 0, len(keys))
	for _, key := range keys {
		layerID := string(bytes.TrimPrefix(key, prefix))
		inode, err := tx.GetInode(ctx, layerID, id)
		if err != nil {
			return nil, err
		}
		inodes = append(inodes, inode)
	}
	return inodes, nil
}

// ============================================================================
// Directory entries
// ============================================================================

func (tx *badgerTransaction) GetEntry(ctx context.Context, layerID, dirID, name string) (*metadata.Entry, error) {
	if err := errors.ContextError(ctx, "get entry"); err != nil {
		return nil, err
	}

	var entry *metadata.Entry
	found, err := tx.get(keyEntry(tx.tenant, layerID, dirID, name), func(val []byte) error {
		e, decErr := decodeEntry(val)
		entry = e
		return decErr
	})
	if err != nil {
		return nil, mapError("get entry", err)
	}
	if !found {
		return nil, metadata.EntryNotFound(name)
	}
	return entry, nil
}

func (tx *badgerTransaction) PutEntry(ctx context.Context, entry *metadata.Entry) error {
	if err := errors.ContextError(ctx, "put entry"); err != nil {
		return err
	}

	stored := entry.Clone()
	if err := metadata.BindTenant(tx.tenant, &stored.Tenant); err != nil {
		return err
	}

	data, err := encodeJSON(stored)
	if err != nil {
		return err
	}
	return mapError("put entry", tx.txn.Set(keyEntry(tx.tenant, stored.LayerID, stored.DirID, stored.Name), data))
}

func (tx *badgerTransaction) DeleteEntry(ctx context.Context, layerID, dirID, name string) error {
	if err := errors.ContextError(ctx, "delete entry"); err != nil {
		return err
	}

	return mapError("delete entry", tx.txn.Delete(keyEntry(tx.tenant, layerID, dirID, name)))
}

func (tx *badgerTransaction) ListEntries(ctx context.Context, layerID, dirID string) ([]*metadata.Entry, error) {
	if err := errors.ContextError(ctx, "list entries"); err != nil {
		return nil, err
	}

	// Keys sort bytewise, which is also name order within one directory.
	var entries []*metadata.Entry
	err := tx.scan(keyEntryDirPrefix(tx.tenant, layerID, dirID), func(_, val []byte) error {
		e, decErr := decodeEntry(val)
		if decErr != nil {
			return decErr
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, mapError("list entries", err)
	}
	return entries, nil
}

func (tx *badgerTransaction) DeleteLayerEntries(ctx context.Context, layerID string) error {
	if err := errors.ContextError(ctx, "delete layer entries"); err != nil {
		return err
	}

	keys, err := tx.scanKeys(keyEntryLayerPrefix(tx.tenant, layerID))
	if err != nil {
		return mapError("list layer entries", err)
	}
	for _, key := range keys {
		if err := tx.txn.Delete(key); err != nil {
			return mapError("delete entry", err)
		}
	}
	return nil
}

// ============================================================================
// Blocks
// ============================================================================

func (tx *badgerTransaction) loadBlock(ref string) (refs uint64, data []byte, found bool, err error) {
	found, err = tx.get(keyBlock(tx.tenant, ref), func(val []byte) error {
		n, content, decErr := decodeBlock(val)
		if decErr != nil {
			return decErr
		}
		refs = n
		data = append([]byte(nil), content...)
		return nil
	})
	return refs, data, found, err
}

func (tx *badgerTransaction) PutBlock(ctx context.Context, ref string, data []byte) error {
	if err := errors.ContextError(ctx, "put block"); err != nil {
		return err
	}

	refs, stored, found, err := tx.loadBlock(ref)
	if err != nil {
		return mapError("get block", err)
	}
	if !found {
		refs, stored = 0, data
	}
	return mapError("put block", tx.txn.Set(keyBlock(tx.tenant, ref), encodeBlock(refs+1, stored)))
}

func (tx *badgerTransaction) GetBlock(ctx context.Context, ref string) ([]byte, error) {
	if err := errors.ContextError(ctx, "get block"); err != nil {
		return nil, err
	}

	_, data, found, err := tx.loadBlock(ref)
	if err != nil {
		return nil, mapError("get block", err)
	}
	if !found {
		return nil, metadata.BlockNotFound(ref)
	}
	return data, nil
}

func (tx *badgerTransaction) ReleaseBlock(ctx context.Context, ref string) error {
	if err := errors.ContextError(ctx, "release block"); err != nil {
		return err
	}

	refs, data, found, err := tx.loadBlock(ref)
	if err != nil {
		return mapError("get block", err)
	}
	if !found {
		return nil
	}
	if refs <= 1 {
		return mapError("delete block", tx.txn.Delete(keyBlock(tx.tenant, ref)))
	}
	return mapError("put block", tx.txn.Set(keyBlock(tx.tenant, ref), encodeBlock(refs-1, data)))
}

func (tx *badgerTransaction) Usage(ctx context.Context) (*metadata.Usage, error) {
	if err := errors.ContextError(ctx, "usage"); err != nil {
		return nil, err
	}

	var u metadata.Usage
	err := tx.scan(keyBlockPrefix(tx.tenant), func(_, val []byte) error {
		_, data, decErr := decodeBlock(val)
		if decErr != nil {
			return decErr
		}
		u.Blocks++
		u.BlockBytes += uint64(len(data))
		return nil
	})
	if err != nil {
		return nil, mapError("usage", err)
	}

	err = tx.scan(keyAllInodesPrefix(tx.tenant), func(_, val []byte) error {
		inode, decErr := decodeInode(val)
		if decErr != nil {
			return decErr
		}
		if inode.State != metadata.StateDeleted {
			u.Inodes++
		}
		return nil
	})
	if err != nil {
		return nil, mapError("usage", err)
	}

	layers, err := tx.ListLayers(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range layers {
		if !l.Deleted {
			u.Layers++
		}
	}
	return &u, nil
}
