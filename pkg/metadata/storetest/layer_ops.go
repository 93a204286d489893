package storetest

import (
	"testing"

	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

// runLayerOpsTests runs all layer record conformance tests.
func runLayerOpsTests(t *testing.T, factory StoreFactory) {
	t.Run("PutAndGetLayer", func(t *testing.T) { testPutAndGetLayer(t, factory) })
	t.Run("GetUnknownLayer", func(t *testing.T) { testGetUnknownLayer(t, factory) })
	t.Run("ListLayersInSeqOrder", func(t *testing.T) { testListLayersInSeqOrder(t, factory) })
	t.Run("UpdateLayerFlags", func(t *testing.T) { testUpdateLayerFlags(t, factory) })
}

// testPutAndGetLayer verifies a stored layer round-trips and is stamped with the tenant.
func testPutAndGetLayer(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	root := putTestLayer(t, store, "root", "", 1)
	child := putTestLayer(t, store, "child", root.ID, 2)

	update(t, store, func(tx metadata.Transaction) error {
		got, err := tx.GetLayer(t.Context(), child.ID)
		if err != nil {
			return err
		}
		if got.Name != "child" || got.ParentID != root.ID || got.Seq != 2 {
			t.Errorf("GetLayer() = %+v, want name=child parent=%s seq=2", got, root.ID)
		}
		if got.Tenant != testTenant {
			t.Errorf("Tenant = %q, want %q", got.Tenant, testTenant)
		}
		if !got.CreatedAt.Equal(child.CreatedAt) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, child.CreatedAt)
		}
		return nil
	})
}

// testGetUnknownLayer verifies unknown IDs report LayerNotFound.
func testGetUnknownLayer(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)

	update(t, store, func(tx metadata.Transaction) error {
		_, err := tx.GetLayer(t.Context(), metadata.NewID())
		if !errors.Is(err, errors.ErrLayerNotFound) {
			t.Errorf("GetLayer(unknown) error = %v, want LayerNotFound", err)
		}
		return nil
	})
}

// testListLayersInSeqOrder verifies listing follows creation order, not insertion or ID order.
func testListLayersInSeqOrder(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	c := putTestLayer(t, store, "c", "", 3)
	a := putTestLayer(t, store, "a", "", 1)
	b := putTestLayer(t, store, "b", "", 2)

	update(t, store, func(tx metadata.Transaction) error {
		layers, err := tx.ListLayers(t.Context())
		if err != nil {
			return err
		}
		want := []string{a.ID, b.ID, c.ID}
		if len(layers) != len(want) {
			t.Fatalf("ListLayers() returned %d layers, want %d", len(layers), len(want))
		}
		for i, l := range layers {
			if l.ID != want[i] {
				t.Errorf("layers[%d] = %s, want %s", i, l.Name, want[i])
			}
		}
		return nil
	})
}

// testUpdateLayerFlags verifies PutLayer replaces an existing record.
func testUpdateLayerFlags(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	layer := putTestLayer(t, store, "root", "", 1)

	update(t, store, func(tx metadata.Transaction) error {
		layer.Active = true
		layer.Deleted = true
		return tx.PutLayer(t.Context(), layer)
	})

	update(t, store, func(tx metadata.Transaction) error {
		got, err := tx.GetLayer(t.Context(), layer.ID)
		if err != nil {
			return err
		}
		if !got.Active || !got.Deleted {
			t.Errorf("flags = active:%v deleted:%v, want both true", got.Active, got.Deleted)
		}
		layers, err := tx.ListLayers(t.Context())
		if err != nil {
			return err
		}
		if len(layers) != 1 {
			t.Errorf("ListLayers() returned %d layers, want 1", len(layers))
		}
		return nil
	})
}
