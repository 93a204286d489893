package storetest

import (
	"testing"

	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

// runInodeOpsTests runs all inode record conformance tests.
func runInodeOpsTests(t *testing.T, factory StoreFactory) {
	t.Run("PutAndGetInode", func(t *testing.T) { testPutAndGetInode(t, factory) })
	t.Run("GetMissingInode", func(t *testing.T) { testGetMissingInode(t, factory) })
	t.Run("DeleteInode", func(t *testing.T) { testDeleteInode(t, factory) })
	t.Run("ListInodesByLayer", func(t *testing.T) { testListInodesByLayer(t, factory) })
	t.Run("InodeVersionsAcrossLayers", func(t *testing.T) { testInodeVersionsAcrossLayers(t, factory) })
}

// testPutAndGetInode verifies every inode field round-trips.
func testPutAndGetInode(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	layer := putTestLayer(t, store, "root", "", 1)

	inode := newTestInode(layer.ID)
	inode.State = metadata.StateDiffed
	inode.Size = 42
	inode.ContentRef = metadata.ContentRef([]byte("changes"))
	inode.BaseLayerID = metadata.NewID()
	inode.BaseDigest = metadata.ContentRef([]byte("base"))
	inode.Encoding = "utf-8"
	inode.LineEnding = "crlf"

	update(t, store, func(tx metadata.Transaction) error {
		return tx.PutInode(t.Context(), inode)
	})

	update(t, store, func(tx metadata.Transaction) error {
		got, err := tx.GetInode(t.Context(), layer.ID, inode.ID)
		if err != nil {
			return err
		}
		if got.Type != metadata.TypeRegular || got.State != metadata.StateDiffed {
			t.Errorf("type/state = %v/%v, want file/diffed", got.Type, got.State)
		}
		if got.Size != 42 || got.Mode != 0644 || got.UID != 1000 || got.GID != 1000 {
			t.Errorf("attrs = size:%d mode:%o uid:%d gid:%d", got.Size, got.Mode, got.UID, got.GID)
		}
		if got.ContentRef != inode.ContentRef || got.BaseLayerID != inode.BaseLayerID || got.BaseDigest != inode.BaseDigest {
			t.Errorf("diff refs did not round-trip: %+v", got)
		}
		if got.Encoding != "utf-8" || got.LineEnding != "crlf" {
			t.Errorf("encoding/line ending = %q/%q", got.Encoding, got.LineEnding)
		}
		if !got.Mtime.Equal(inode.Mtime) {
			t.Errorf("Mtime = %v, want %v", got.Mtime, inode.Mtime)
		}
		if got.Tenant != testTenant {
			t.Errorf("Tenant = %q, want %q", got.Tenant, testTenant)
		}
		return nil
	})
}

// testGetMissingInode verifies a layer without a record reports PathNotFound.
func testGetMissingInode(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	layer := putTestLayer(t, store, "root", "", 1)

	update(t, store, func(tx metadata.Transaction) error {
		_, err := tx.GetInode(t.Context(), layer.ID, metadata.NewID())
		if !errors.Is(err, errors.ErrPathNotFound) {
			t.Errorf("GetInode(missing) error = %v, want PathNotFound", err)
		}
		return nil
	})
}

// testDeleteInode verifies deletion is idempotent and removes only the addressed version.
func testDeleteInode(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	root := putTestLayer(t, store, "root", "", 1)
	child := putTestLayer(t, store, "child", root.ID, 2)

	base := newTestInode(root.ID)
	copyUp := base.Clone()
	copyUp.LayerID = child.ID

	update(t, store, func(tx metadata.Transaction) error {
		if err := tx.PutInode(t.Context(), base); err != nil {
			return err
		}
		return tx.PutInode(t.Context(), copyUp)
	})

	update(t, store, func(tx metadata.Transaction) error {
		if err := tx.DeleteInode(t.Context(), child.ID, base.ID); err != nil {
			return err
		}
		return tx.DeleteInode(t.Context(), child.ID, base.ID)
	})

	update(t, store, func(tx metadata.Transaction) error {
		if _, err := tx.GetInode(t.Context(), child.ID, base.ID); !errors.IsNotFound(err) {
			t.Errorf("child version still present: %v", err)
		}
		if _, err := tx.GetInode(t.Context(), root.ID, base.ID); err != nil {
			t.Errorf("root version removed: %v", err)
		}
		return nil
	})
}

// testListInodesByLayer verifies listing is scoped to one layer.
func testListInodesByLayer(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	root := putTestLayer(t, store, "root", "", 1)
	child := putTestLayer(t, store, "child", root.ID, 2)

	update(t, store, func(tx metadata.Transaction) error {
		for i := 0; i < 3; i++ {
			if err := tx.PutInode(t.Context(), newTestInode(root.ID)); err != nil {
				return err
			}
		}
		return tx.PutInode(t.Context(), newTestInode(child.ID))
	})

	update(t, store, func(tx metadata.Transaction) error {
		inodes, err := tx.ListInodes(t.Context(), root.ID)
		if err != nil {
			return err
		}
		if len(inodes) != 3 {
			t.Errorf("ListInodes(root) returned %d, want 3", len(inodes))
		}
		for _, inode := range inodes {
			if inode.LayerID != root.ID {
				t.Errorf("inode %s belongs to layer %s", inode.ID, inode.LayerID)
			}
		}
		return nil
	})
}

// testInodeVersionsAcrossLayers verifies all versions of one inode are found.
func testInodeVersionsAcrossLayers(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	root := putTestLayer(t, store, "root", "", 1)
	a := putTestLayer(t, store, "a", root.ID, 2)
	b := putTestLayer(t, store, "b", root.ID, 3)

	inode := newTestInode(root.ID)
	other := newTestInode(root.ID)

	update(t, store, func(tx metadata.Transaction) error {
		for _, layerID := range []string{root.ID, a.ID, b.ID} {
			v := inode.Clone()
			v.LayerID = layerID
			if err := tx.PutInode(t.Context(), v); err != nil {
				return err
			}
		}
		return tx.PutInode(t.Context(), other)
	})

	update(t, store, func(tx metadata.Transaction) error {
		versions, err := tx.InodeVersions(t.Context(), inode.ID)
		if err != nil {
			return err
		}
		if len(versions) != 3 {
			t.Fatalf("InodeVersions() returned %d, want 3", len(versions))
		}
		seen := make(map[string]bool)
		for _, v := range versions {
			if v.ID != inode.ID {
				t.Errorf("unexpected inode %s", v.ID)
			}
			seen[v.LayerID] = true
		}
		for _, layerID := range []string{root.ID, a.ID, b.ID} {
			if !seen[layerID] {
				t.Errorf("missing version in layer %s", layerID)
			}
		}
		return nil
	})
}
