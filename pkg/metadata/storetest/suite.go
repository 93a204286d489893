package storetest

import (
	"testing"
	"time"

	"github.com/marmos91/layerfs/pkg/metadata"
)

// StoreFactory creates a fresh Store instance for each test.
// The factory receives *testing.T so it can use t.TempDir() for stores
// that need filesystem paths and t.Cleanup() for teardown.
type StoreFactory func(t *testing.T) metadata.Store

const testTenant = "conformance"

// RunConformanceSuite runs the full conformance test suite against the provided
// store factory. Each test gets a fresh store instance to ensure isolation.
//
// The suite covers five categories:
//   - LayerOps: layer records and creation ordering
//   - InodeOps: inode CRUD, per-layer listing, cross-layer versions
//   - EntryOps: entry CRUD, tombstones, sorted listing, layer purge
//   - BlockOps: content storage and reference counting
//   - TxOps: rollback, tenant scoping, unknown tenants
func RunConformanceSuite(t *testing.T, factory StoreFactory) {
	t.Helper()

	t.Run("LayerOps", func(t *testing.T) {
		runLayerOpsTests(t, factory)
	})

	t.Run("InodeOps", func(t *testing.T) {
		runInodeOpsTests(t, factory)
	})

	t.Run("EntryOps", func(t *testing.T) {
		runEntryOpsTests(t, factory)
	})

	t.Run("BlockOps", func(t *testing.T) {
		runBlockOpsTests(t, factory)
	})

	t.Run("TxOps", func(t *testing.T) {
		runTxOpsTests(t, factory)
	})
}

// newTenantStore creates a store with the test tenant registered.
func newTenantStore(t *testing.T, factory StoreFactory) metadata.Store {
	t.Helper()

	store := factory(t)
	if _, err := store.EnsureTenant(t.Context(), testTenant); err != nil {
		t.Fatalf("EnsureTenant(%q) failed: %v", testTenant, err)
	}
	return store
}

// update runs fn in a transaction and fails the test on error.
func update(t *testing.T, store metadata.Store, fn func(tx metadata.Transaction) error) {
	t.Helper()

	if err := store.WithTransaction(t.Context(), testTenant, fn); err != nil {
		t.Fatalf("WithTransaction() failed: %v", err)
	}
}

// putTestLayer stores a layer with the given name and parent.
func putTestLayer(t *testing.T, store metadata.Store, name, parentID string, seq uint64) *metadata.Layer {
	t.Helper()

	layer := &metadata.Layer{
		ID:        metadata.NewID(),
		Name:      name,
		ParentID:  parentID,
		Seq:       seq,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	update(t, store, func(tx metadata.Transaction) error {
		return tx.PutLayer(t.Context(), layer)
	})
	return layer
}

// newTestInode builds a regular file inode owned by layerID.
func newTestInode(layerID string) *metadata.Inode {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &metadata.Inode{
		LayerID: layerID,
		ID:      metadata.NewID(),
		Type:    metadata.TypeRegular,
		State:   metadata.StateMaterialized,
		Mode:    0644,
		UID:     1000,
		GID:     1000,
		Mtime:   now,
		Ctime:   now,
	}
}
