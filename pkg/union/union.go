// Package union presents the layers of a chain as one directory tree.
//
// For every name and every inode the nearest layer of the chain that records
// something wins: a live entry or inode record is used, a tombstone or a
// deleted record hides everything further down the chain.
package union

import (
	"context"
	"sort"

	"github.com/marmos91/layerfs/pkg/layer"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
	"github.com/marmos91/layerfs/pkg/textdiff"
)

// View resolves paths and contents along layer chains.
type View struct {
	layers *layer.Manager
	limits metadata.Limits
}

// New creates a View over the chains of layers.
func New(layers *layer.Manager, limits metadata.Limits) *View {
	return &View{layers: layers, limits: limits}
}

// Resolved is the outcome of a path resolution.
type Resolved struct {
	Path  string
	Chain []string

	// DirID and Name locate the path in its parent. Both are empty for the root.
	DirID string
	Name  string

	// Entry is the authoritative directory entry. Nil for the root.
	Entry *metadata.Entry

	// Version is the authoritative version of the inode.
	Version *metadata.FileVersion
}

// Inode returns the record of the resolved version.
func (r *Resolved) Inode() *metadata.Inode {
	return r.Version.Inode
}

// IsRoot reports whether the path is the root directory.
func (r *Resolved) IsRoot() bool {
	return r.Entry == nil
}

// Chain returns the chain of layerID.
func (v *View) Chain(ctx context.Context, tx metadata.Transaction, layerID string) ([]string, error) {
	return v.layers.ChainOf(ctx, tx, layerID)
}

// Resolve resolves path as seen from layerID.
func (v *View) Resolve(ctx context.Context, tx metadata.Transaction, layerID, path string) (*Resolved, error) {
	parts, err := v.limits.SplitPath(path)
	if err != nil {
		return nil, err
	}
	chain, err := v.Chain(ctx, tx, layerID)
	if err != nil {
		return nil, err
	}
	return v.ResolveParts(ctx, tx, chain, parts)
}

// ResolveParts resolves validated path components along chain.
func (v *View) ResolveParts(ctx context.Context, tx metadata.Transaction, chain []string, parts []string) (*Resolved, error) {
	root, err := v.Version(ctx, tx, chain, metadata.RootInodeID)
	if err != nil {
		return nil, err
	}
	if root.State == metadata.StateDeleted {
		return nil, errors.NewChainCorruptError(chain[0], "root directory deleted")
	}

	res := &Resolved{Path: "/", Chain: chain, Version: root}
	for i, name := range parts {
		cur := res.Version.Inode
		if !cur.IsDir() {
			return nil, errors.NewNotDirectoryError(metadata.JoinPath(parts[:i]))
		}

		path := metadata.JoinPath(parts[:i+1])
		entry, err := v.Lookup(ctx, tx, chain, cur.ID, name)
		if err != nil {
			return nil, withPath(err, path)
		}

		version, err := v.Version(ctx, tx, chain, entry.ChildID)
		if err != nil {
			return nil, withPath(err, path)
		}
		if version.State == metadata.StateDeleted {
			return nil, errors.NewNotFoundError(path, "file")
		}

		res = &Resolved{
			Path:    path,
			Chain:   chain,
			DirID:   cur.ID,
			Name:    name,
			Entry:   entry,
			Version: version,
		}
	}
	return res, nil
}

// Lookup returns the nearest live entry for name in directory dirID.
// A tombstone or the absence of any entry is PathNotFound.
func (v *View) Lookup(ctx context.Context, tx metadata.Transaction, chain []string, dirID, name string) (*metadata.Entry, error) {
	for _, layerID := range chain {
		entry, err := tx.GetEntry(ctx, layerID, dirID, name)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		if entry.Tombstone {
			break
		}
		return entry, nil
	}
	return nil, errors.NewNotFoundError(name, "file")
}

// Version returns the nearest version of inodeID along chain. A deleted
// version is returned as such; no record anywhere is PathNotFound.
func (v *View) Version(ctx context.Context, tx metadata.Transaction, chain []string, inodeID string) (*metadata.FileVersion, error) {
	for _, layerID := range chain {
		inode, err := tx.GetInode(ctx, layerID, inodeID)
		if err != nil {
			if errors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		return &metadata.FileVersion{
			InodeID: inodeID,
			LayerID: layerID,
			State:   inode.State,
			Inode:   inode,
		}, nil
	}
	return nil, errors.NewNotFoundError(inodeID, "inode")
}

// Content returns the bytes of a regular file version. Diffed versions are
// rebuilt by replaying their changes over the base version, which must still
// have the digest recorded at diff time.
func (v *View) Content(ctx context.Context, tx metadata.Transaction, version *metadata.FileVersion) ([]byte, error) {
	return v.content(ctx, tx, version.Inode, 0)
}

func (v *View) content(ctx context.Context, tx metadata.Transaction, inode *metadata.Inode, depth int) ([]byte, error) {
	if inode == nil {
		return nil, errors.NewNotFoundError("", "inode")
	}
	if inode.IsDir() {
		return nil, errors.NewIsDirectoryError(inode.ID)
	}

	switch inode.State {
	case metadata.StateMaterialized:
		if inode.ContentRef == "" {
			return []byte{}, nil
		}
		return tx.GetBlock(ctx, inode.ContentRef)

	case metadata.StateDiffed:
		if depth >= v.layers.Config().MaxChainDepth {
			return nil, errors.NewDiffInvalidationError(inode.ID, "diff base chain too long")
		}

		base, err := tx.GetInode(ctx, inode.BaseLayerID, inode.ID)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil, errors.NewDiffInvalidationError(inode.ID, "diff base version missing")
			}
			return nil, err
		}
		baseContent, err := v.content(ctx, tx, base, depth+1)
		if err != nil {
			return nil, err
		}
		if metadata.ContentRef(baseContent) != inode.BaseDigest {
			return nil, errors.NewDiffInvalidationError(inode.ID, "diff base digest mismatch")
		}

		encoded, err := tx.GetBlock(ctx, inode.ContentRef)
		if err != nil {
			return nil, err
		}
		changes, err := textdiff.Decode(encoded)
		if err != nil {
			return nil, errors.NewDiffInvalidationError(inode.ID, err.Error())
		}
		data, err := changes.Apply(baseContent)
		if err != nil {
			return nil, errors.NewDiffInvalidationError(inode.ID, err.Error())
		}
		return data, nil

	default:
		return nil, errors.NewNotFoundError(inode.ID, "inode")
	}
}

// List returns the merged listing of the directory at path as seen from
// layerID.
func (v *View) List(ctx context.Context, tx metadata.Transaction, layerID, path string) ([]metadata.DirectoryEntry, error) {
	res, err := v.Resolve(ctx, tx, layerID, path)
	if err != nil {
		return nil, err
	}
	if !res.Inode().IsDir() {
		return nil, errors.NewNotDirectoryError(path)
	}
	return v.ListDir(ctx, tx, res.Chain, res.Inode().ID)
}

// ListDir merges the entries of dirID along chain: the nearest layer decides
// each name, tombstoned names are omitted, and the result is sorted by name.
func (v *View) ListDir(ctx context.Context, tx metadata.Transaction, chain []string, dirID string) ([]metadata.DirectoryEntry, error) {
	seen := make(map[string]bool)
	out := []metadata.DirectoryEntry{}

	for _, layerID := range chain {
		entries, err := tx.ListEntries(ctx, layerID, dirID)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if seen[e.Name] {
				continue
			}
			seen[e.Name] = true
			if e.Tombstone {
				continue
			}

			version, err := v.Version(ctx, tx, chain, e.ChildID)
			if err != nil {
				if errors.IsNotFound(err) {
					continue
				}
				return nil, err
			}
			if version.State == metadata.StateDeleted {
				continue
			}

			out = append(out, metadata.DirectoryEntry{
				Name:    e.Name,
				Type:    e.Type,
				InodeID: e.ChildID,
				LayerID: version.LayerID,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Visible reports whether any layer of chain shows a live entry for name.
func (v *View) Visible(ctx context.Context, tx metadata.Transaction, chain []string, dirID, name string) (bool, error) {
	_, err := v.Lookup(ctx, tx, chain, dirID, name)
	if err == nil {
		return true, nil
	}
	if errors.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

func withPath(err error, path string) error {
	if errors.Is(err, errors.ErrPathNotFound) {
		return errors.NewNotFoundError(path, "file")
	}
	return err
}
