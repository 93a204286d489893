package storetest

import (
	"testing"

	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

// runEntryOpsTests runs all directory entry conformance tests.
func runEntryOpsTests(t *testing.T, factory StoreFactory) {
	t.Run("PutAndGetEntry", func(t *testing.T) { testPutAndGetEntry(t, factory) })
	t.Run("TombstoneEntry", func(t *testing.T) { testTombstoneEntry(t, factory) })
	t.Run("ListEntriesSorted", func(t *testing.T) { testListEntriesSorted(t, factory) })
	t.Run("DeleteEntry", func(t *testing.T) { testDeleteEntry(t, factory) })
	t.Run("DeleteLayerEntries", func(t *testing.T) { testDeleteLayerEntries(t, factory) })
	t.Run("NamesWithSeparators", func(t *testing.T) { testNamesWithSeparators(t, factory) })
}

func putEntry(t *testing.T, store metadata.Store, layerID, dirID, name string, tombstone bool) *metadata.Entry {
	t.Helper()

	entry := &metadata.Entry{
		LayerID:   layerID,
		DirID:     dirID,
		Name:      name,
		Tombstone: tombstone,
	}
	if !tombstone {
		entry.ChildID = metadata.NewID()
		entry.Type = metadata.TypeRegular
	}
	update(t, store, func(tx metadata.Transaction) error {
		return tx.PutEntry(t.Context(), entry)
	})
	return entry
}

func listNames(t *testing.T, store metadata.Store, layerID, dirID string) []string {
	t.Helper()

	var names []string
	update(t, store, func(tx metadata.Transaction) error {
		entries, err := tx.ListEntries(t.Context(), layerID, dirID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			names = append(names, e.Name)
		}
		return nil
	})
	return names
}

// testPutAndGetEntry verifies a live entry round-trips.
func testPutAndGetEntry(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	layer := putTestLayer(t, store, "root", "", 1)
	entry := putEntry(t, store, layer.ID, metadata.RootInodeID, "file.txt", false)

	update(t, store, func(tx metadata.Transaction) error {
		got, err := tx.GetEntry(t.Context(), layer.ID, metadata.RootInodeID, "file.txt")
		if err != nil {
			return err
		}
		if got.ChildID != entry.ChildID || got.Type != metadata.TypeRegular || got.Tombstone {
			t.Errorf("GetEntry() = %+v, want child %s", got, entry.ChildID)
		}
		if got.Tenant != testTenant {
			t.Errorf("Tenant = %q, want %q", got.Tenant, testTenant)
		}
		return nil
	})
}

// testTombstoneEntry verifies tombstones are stored and replace live entries.
func testTombstoneEntry(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	layer := putTestLayer(t, store, "root", "", 1)
	putEntry(t, store, layer.ID, metadata.RootInodeID, "gone", false)
	putEntry(t, store, layer.ID, metadata.RootInodeID, "gone", true)

	update(t, store, func(tx metadata.Transaction) error {
		got, err := tx.GetEntry(t.Context(), layer.ID, metadata.RootInodeID, "gone")
		if err != nil {
			return err
		}
		if !got.Tombstone {
			t.Error("expected tombstone")
		}
		if got.ChildID != "" {
			t.Errorf("tombstone ChildID = %q, want empty", got.ChildID)
		}
		return nil
	})
}

// testListEntriesSorted verifies listing is sorted by name and scoped to (layer, dir).
func testListEntriesSorted(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	root := putTestLayer(t, store, "root", "", 1)
	child := putTestLayer(t, store, "child", root.ID, 2)
	dirID := metadata.NewID()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		putEntry(t, store, root.ID, metadata.RootInodeID, name, false)
	}
	putEntry(t, store, root.ID, metadata.RootInodeID, "dead", true)
	putEntry(t, store, root.ID, dirID, "nested", false)
	putEntry(t, store, child.ID, metadata.RootInodeID, "other", false)

	got := listNames(t, store, root.ID, metadata.RootInodeID)
	want := []string{"alpha", "dead", "mid", "zeta"}
	if len(got) != len(want) {
		t.Fatalf("ListEntries() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ListEntries()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if names := listNames(t, store, child.ID, dirID); len(names) != 0 {
		t.Errorf("ListEntries(empty) = %v, want none", names)
	}
}

// testDeleteEntry verifies deletion is idempotent.
func testDeleteEntry(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	layer := putTestLayer(t, store, "root", "", 1)
	putEntry(t, store, layer.ID, metadata.RootInodeID, "a", false)
	putEntry(t, store, layer.ID, metadata.RootInodeID, "b", false)

	update(t, store, func(tx metadata.Transaction) error {
		if err := tx.DeleteEntry(t.Context(), layer.ID, metadata.RootInodeID, "a"); err != nil {
			return err
		}
		return tx.DeleteEntry(t.Context(), layer.ID, metadata.RootInodeID, "a")
	})

	update(t, store, func(tx metadata.Transaction) error {
		_, err := tx.GetEntry(t.Context(), layer.ID, metadata.RootInodeID, "a")
		if !errors.Is(err, errors.ErrPathNotFound) {
			t.Errorf("GetEntry(deleted) error = %v, want PathNotFound", err)
		}
		return nil
	})

	if names := listNames(t, store, layer.ID, metadata.RootInodeID); len(names) != 1 || names[0] != "b" {
		t.Errorf("ListEntries() = %v, want [b]", names)
	}
}

// testDeleteLayerEntries verifies a layer purge leaves other layers intact.
func testDeleteLayerEntries(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	root := putTestLayer(t, store, "root", "", 1)
	child := putTestLayer(t, store, "child", root.ID, 2)
	dirID := metadata.NewID()

	putEntry(t, store, root.ID, metadata.RootInodeID, "kept", false)
	putEntry(t, store, child.ID, metadata.RootInodeID, "x", false)
	putEntry(t, store, child.ID, metadata.RootInodeID, "kept", true)
	putEntry(t, store, child.ID, dirID, "y", false)

	update(t, store, func(tx metadata.Transaction) error {
		return tx.DeleteLayerEntries(t.Context(), child.ID)
	})

	if names := listNames(t, store, child.ID, metadata.RootInodeID); len(names) != 0 {
		t.Errorf("child root entries = %v, want none", names)
	}
	if names := listNames(t, store, child.ID, dirID); len(names) != 0 {
		t.Errorf("child dir entries = %v, want none", names)
	}
	if names := listNames(t, store, root.ID, metadata.RootInodeID); len(names) != 1 {
		t.Errorf("root entries = %v, want [kept]", names)
	}
}

// testNamesWithSeparators verifies names containing key separators stay distinct.
func testNamesWithSeparators(t *testing.T, factory StoreFactory) {
	store := newTenantStore(t, factory)
	layer := putTestLayer(t, store, "root", "", 1)

	names := []string{"a:b", "a", "a:b:c", "100%", "spaces in name"}
	for _, name := range names {
		putEntry(t, store, layer.ID, metadata.RootInodeID, name, false)
	}

	got := listNames(t, store, layer.ID, metadata.RootInodeID)
	if len(got) != len(names) {
		t.Fatalf("ListEntries() = %v, want %d names", got, len(names))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1] >= got[i] {
			t.Errorf("names not sorted: %v", got)
		}
	}
}
