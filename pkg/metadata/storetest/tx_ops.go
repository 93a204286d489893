package storetest

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

// runTxOpsTests runs all transaction and tenant scoping conformance tests.
func runTxOpsTests(t *testing.T, factory StoreFactory) {
	t.Run("RollbackOnError", func(t *testing.T) { testRollbackOnError(t, factory) })
	t.Run("ReadYourWrites", func(t *testing.T) { testReadYourWrites(t, factory) })
	t.Run("UnknownTenant", func(t *testing.T) { testUnknownTenant(t, factory) })
	t.Run("TenantIsolation", func(t *testing.T) { testTenantIsolation(t, factory) })
	t.Run("CrossTenantRecordRejected", func(t *testing.T) { testCrossTenantRecordRejected(t, factory) })
	t.Run("EnsureTenantIdempotent", func(t *testing.T) { testEnsureTenantIdempotent(t, factory) })
	t.Run("CancelledContextIsStorageFailure", func(t *testing.T) { testCancelledContextIsStorageFailure(t, factory) })
}

var errAbort = stderrors.New("abort")

// testRollbackOnError verifies that no write of a failed transaction is visible.
func testRollbackOnError(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	layer := putTestLayer(t, store, "root", "", 1)
	kept := putEntry(t, store, layer.ID, metadata.RootInodeID, "kept", false)
	shared := []byte("shared")
	update(t, store, func(tx metadata.Transaction) error {
		return tx.PutBlock(t.Context(), metadata.ContentRef(shared), shared)
	})

	inode := newTestInode(layer.ID)
	err := store.WithTransaction(t.Context(), testTenant, func(tx metadata.Transaction) error {
		ctx := t.Context()
		if err := tx.PutInode(ctx, inode); err != nil {
			return err
		}
		if err := tx.PutEntry(ctx, &metadata.Entry{LayerID: layer.ID, DirID: metadata.RootInodeID, Name: "new", ChildID: inode.ID, Type: metadata.TypeRegular}); err != nil {
			return err
		}
		if err := tx.PutEntry(ctx, &metadata.Entry{LayerID: layer.ID, DirID: metadata.RootInodeID, Name: "kept", Tombstone: true}); err != nil {
			return err
		}
		if err := tx.ReleaseBlock(ctx, metadata.ContentRef(shared)); err != nil {
			return err
		}
		renamed := layer.Clone()
		renamed.Name = "renamed"
		if err := tx.PutLayer(ctx, renamed); err != nil {
			return err
		}
		return errAbort
	})
	if !stderrors.Is(err, errAbort) {
		t.Fatalf("WithTransaction() error = %v, want errAbort", err)
	}

	update(t, store, func(tx metadata.Transaction) error {
		ctx := t.Context()
		if _, err := tx.GetInode(ctx, layer.ID, inode.ID); !errors.IsNotFound(err) {
			t.Errorf("inode from failed transaction is visible: %v", err)
		}
		if _, err := tx.GetEntry(ctx, layer.ID, metadata.RootInodeID, "new"); !errors.IsNotFound(err) {
			t.Errorf("entry from failed transaction is visible: %v", err)
		}
		got, err := tx.GetEntry(ctx, layer.ID, metadata.RootInodeID, "kept")
		if err != nil {
			return err
		}
		if got.Tombstone || got.ChildID != kept.ChildID {
			t.Errorf("overwritten entry not restored: %+v", got)
		}
		if _, err := tx.GetBlock(ctx, metadata.ContentRef(shared)); err != nil {
			t.Errorf("released block not restored: %v", err)
		}
		l, err := tx.GetLayer(ctx, layer.ID)
		if err != nil {
			return err
		}
		if l.Name != "root" {
			t.Errorf("layer name = %q, want root", l.Name)
		}
		return nil
	})
}

// testReadYourWrites verifies a transaction observes its own writes.
func testReadYourWrites(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	layer := putTestLayer(t, store, "root", "", 1)

	update(t, store, func(tx metadata.Transaction) error {
		ctx := t.Context()
		inode := newTestInode(layer.ID)
		if err := tx.PutInode(ctx, inode); err != nil {
			return err
		}
		if _, err := tx.GetInode(ctx, layer.ID, inode.ID); err != nil {
			t.Errorf("GetInode() after PutInode() in same transaction: %v", err)
		}
		if err := tx.DeleteInode(ctx, layer.ID, inode.ID); err != nil {
			return err
		}
		if _, err := tx.GetInode(ctx, layer.ID, inode.ID); !errors.IsNotFound(err) {
			t.Errorf("GetInode() after DeleteInode() = %v, want not found", err)
		}
		return nil
	})
}

// testUnknownTenant verifies transactions for unregistered tenants are denied.
func testUnknownTenant(t *testing.T, factory StoreFactory) {
	store := factory(t)

	called := false
	err := store.WithTransaction(t.Context(), "nobody", func(tx metadata.Transaction) error {
		called = true
		return nil
	})
	if !errors.Is(err, errors.ErrAccessDenied) {
		t.Errorf("WithTransaction(unknown tenant) error = %v, want AccessDenied", err)
	}
	if called {
		t.Error("fn must not run for an unknown tenant")
	}
}

// testTenantIsolation verifies records of one tenant are invisible to another.
func testTenantIsolation(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	if _, err := store.EnsureTenant(t.Context(), "other"); err != nil {
		t.Fatalf("EnsureTenant(other) failed: %v", err)
	}

	layer := putTestLayer(t, store, "root", "", 1)
	putEntry(t, store, layer.ID, metadata.RootInodeID, "secret", false)
	data := []byte("secret data")
	update(t, store, func(tx metadata.Transaction) error {
		return tx.PutBlock(t.Context(), metadata.ContentRef(data), data)
	})

	err := store.WithTransaction(t.Context(), "other", func(tx metadata.Transaction) error {
		ctx := t.Context()
		if _, err := tx.GetLayer(ctx, layer.ID); !errors.IsNotFound(err) {
			t.Errorf("other tenant sees layer: %v", err)
		}
		layers, err := tx.ListLayers(ctx)
		if err != nil {
			return err
		}
		if len(layers) != 0 {
			t.Errorf("other tenant lists %d layers", len(layers))
		}
		if _, err := tx.GetEntry(ctx, layer.ID, metadata.RootInodeID, "secret"); !errors.IsNotFound(err) {
			t.Errorf("other tenant sees entry: %v", err)
		}
		if _, err := tx.GetBlock(ctx, metadata.ContentRef(data)); !errors.IsNotFound(err) {
			t.Errorf("other tenant sees block: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTransaction(other) failed: %v", err)
	}
}

// testCrossTenantRecordRejected verifies records tagged for another tenant are refused.
func testCrossTenantRecordRejected(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)

	err := store.WithTransaction(t.Context(), testTenant, func(tx metadata.Transaction) error {
		return tx.PutLayer(t.Context(), &metadata.Layer{ID: metadata.NewID(), Tenant: "intruder", Name: "x", Seq: 1})
	})
	if !errors.Is(err, errors.ErrAccessDenied) {
		t.Errorf("PutLayer(foreign tenant) error = %v, want AccessDenied", err)
	}

	err = store.WithTransaction(t.Context(), testTenant, func(tx metadata.Transaction) error {
		inode := newTestInode(metadata.NewID())
		inode.Tenant = "intruder"
		return tx.PutInode(t.Context(), inode)
	})
	if !errors.Is(err, errors.ErrAccessDenied) {
		t.Errorf("PutInode(foreign tenant) error = %v, want AccessDenied", err)
	}
}

// testEnsureTenantIdempotent verifies EnsureTenant keeps the original record.
func testEnsureTenantIdempotent(t *testing.T, factory StoreFactory) {
	store := factory(t)

	first, err := store.EnsureTenant(t.Context(), "acme")
	if err != nil {
		t.Fatalf("EnsureTenant() failed: %v", err)
	}
	second, err := store.EnsureTenant(t.Context(), "acme")
	if err != nil {
		t.Fatalf("EnsureTenant() second call failed: %v", err)
	}
	if first.ID != "acme" || second.ID != "acme" {
		t.Errorf("tenant IDs = %q/%q, want acme", first.ID, second.ID)
	}
	if !first.CreatedAt.Equal(second.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}

	if _, err := store.EnsureTenant(t.Context(), "bad:id"); !errors.Is(err, errors.ErrAccessDenied) {
		t.Errorf("EnsureTenant(bad id) error = %v, want AccessDenied", err)
	}
}

// testCancelledContextIsStorageFailure verifies that a context cancelled
// mid-transaction surfaces from reads as a StorageFailure.
func testCancelledContextIsStorageFailure(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	layer := putTestLayer(t, store, "root", "", 1)

	ctx, cancel := context.WithCancel(t.Context())
	var readErr error
	_ = store.WithTransaction(ctx, testTenant, func(tx metadata.Transaction) error {
		cancel()
		_, readErr = tx.GetLayer(ctx, layer.ID)
		return readErr
	})
	if !errors.Is(readErr, errors.ErrStorageFailure) {
		t.Fatalf("GetLayer() after cancel = %v, want StorageFailure", readErr)
	}
	if errors.IsRetryable(readErr) {
		t.Error("cancellation must not be retryable")
	}
}
