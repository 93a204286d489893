package storetest

import (
	"bytes"
	"testing"

	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

// runBlockOpsTests runs all block storage conformance tests.
func runBlockOpsTests(t *testing.T, factory StoreFactory) {
	t.Run("PutAndGetBlock", func(t *testing.T) { testPutAndGetBlock(t, factory) })
	t.Run("BlockRefcount", func(t *testing.T) { testBlockRefcount(t, factory) })
	t.Run("GetUnknownBlock", func(t *testing.T) { testGetUnknownBlock(t, factory) })
	t.Run("Usage", func(t *testing.T) { testUsage(t, factory) })
}

// testPutAndGetBlock verifies content round-trips, including binary and empty content.
func testPutAndGetBlock(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)

	contents := [][]byte{
		[]byte("hello world\n"),
		{0x00, 0xff, 0x10, 0x00},
		{},
	}

	update(t, store, func(tx metadata.Transaction) error {
		for _, data := range contents {
			if err := tx.PutBlock(t.Context(), metadata.ContentRef(data), data); err != nil {
				return err
			}
		}
		return nil
	})

	update(t, store, func(tx metadata.Transaction) error {
		for _, data := range contents {
			got, err := tx.GetBlock(t.Context(), metadata.ContentRef(data))
			if err != nil {
				return err
			}
			if !bytes.Equal(got, data) {
				t.Errorf("GetBlock() = %q, want %q", got, data)
			}
		}
		return nil
	})
}

// testBlockRefcount verifies a block survives until its last reference is released.
func testBlockRefcount(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	data := []byte("shared content")
	ref := metadata.ContentRef(data)

	update(t, store, func(tx metadata.Transaction) error {
		if err := tx.PutBlock(t.Context(), ref, data); err != nil {
			return err
		}
		return tx.PutBlock(t.Context(), ref, data)
	})

	update(t, store, func(tx metadata.Transaction) error {
		return tx.ReleaseBlock(t.Context(), ref)
	})

	update(t, store, func(tx metadata.Transaction) error {
		if _, err := tx.GetBlock(t.Context(), ref); err != nil {
			t.Errorf("block released too early: %v", err)
		}
		return tx.ReleaseBlock(t.Context(), ref)
	})

	update(t, store, func(tx metadata.Transaction) error {
		if _, err := tx.GetBlock(t.Context(), ref); !errors.IsNotFound(err) {
			t.Errorf("GetBlock(released) error = %v, want not found", err)
		}
		// Releasing an absent block is a no-op.
		return tx.ReleaseBlock(t.Context(), ref)
	})
}

// testGetUnknownBlock verifies unknown refs report PathNotFound.
func testGetUnknownBlock(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)

	update(t, store, func(tx metadata.Transaction) error {
		_, err := tx.GetBlock(t.Context(), metadata.ContentRef([]byte("never stored")))
		if !errors.Is(err, errors.ErrPathNotFound) {
			t.Errorf("GetBlock(unknown) error = %v, want PathNotFound", err)
		}
		return nil
	})
}

// testUsage verifies the usage summary counts live records only.
func testUsage(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	root := putTestLayer(t, store, "root", "", 1)
	dead := putTestLayer(t, store, "dead", root.ID, 2)

	update(t, store, func(tx metadata.Transaction) error {
		dead.Deleted = true
		if err := tx.PutLayer(t.Context(), dead); err != nil {
			return err
		}
		live := newTestInode(root.ID)
		gone := newTestInode(root.ID)
		gone.State = metadata.StateDeleted
		if err := tx.PutInode(t.Context(), live); err != nil {
			return err
		}
		if err := tx.PutInode(t.Context(), gone); err != nil {
			return err
		}
		a, b := []byte("12345"), []byte("abc")
		if err := tx.PutBlock(t.Context(), metadata.ContentRef(a), a); err != nil {
			return err
		}
		return tx.PutBlock(t.Context(), metadata.ContentRef(b), b)
	})

	update(t, store, func(tx metadata.Transaction) error {
		u, err := tx.Usage(t.Context())
		if err != nil {
			return err
		}
		if u.Layers != 1 || u.Inodes != 1 || u.Blocks != 2 || u.BlockBytes != 8 {
			t.Errorf("Usage() = %+v, want layers=1 inodes=1 blocks=2 bytes=8", u)
		}
		return nil
	})
}
