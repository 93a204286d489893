package metadata

import (
	"context"
)

// ============================================================================
// Transaction Interface (tenant-scoped CRUD)
// ============================================================================

// Transaction is the set of record operations available inside
// Store.WithTransaction. Every call is scoped to the tenant the transaction was
// opened for; records naming another tenant are rejected with AccessDenied.
//
// Implementations vary by store:
//   - Memory store: global lock plus an undo journal
//   - BadgerDB: native SSI transactions
//   - Relational: GORM transactions (SERIALIZABLE on PostgreSQL)
//
// Thread Safety:
// A Transaction is NOT safe for concurrent use.
type Transaction interface {
	// Tenant returns the tenant the transaction is scoped to.
	Tenant() string

	// ========================================================================
	// Layers
	// ========================================================================

	// GetLayer returns a layer by ID, including deleted layers.
	// Returns LayerNotFound if the ID is unknown.
	GetLayer(ctx context.Context, id string) (*Layer, error)

	// PutLayer creates or replaces a layer record.
	PutLayer(ctx context.Context, layer *Layer) error

	// ListLayers returns every layer of the tenant, deleted ones included,
	// ordered by Seq.
	ListLayers(ctx context.Context) ([]*Layer, error)

	// ========================================================================
	// Inodes
	// ========================================================================

	// GetInode returns the record a layer holds for an inode.
	// Returns PathNotFound if the layer holds none (the version is unmodified).
	GetInode(ctx context.Context, layerID, id string) (*Inode, error)

	// PutInode creates or replaces an inode record.
	PutInode(ctx context.Context, inode *Inode) error

	// DeleteInode removes an inode record. Missing records are not an error.
	DeleteInode(ctx context.Context, layerID, id string) error

	// ListInodes returns every inode record owned by a layer.
	ListInodes(ctx context.Context, layerID string) ([]*Inode, error)

	// InodeVersions returns the records of one inode across all layers.
	InodeVersions(ctx context.Context, id string) ([]*Inode, error)

	// ========================================================================
	// Directory entries
	// ========================================================================

	// GetEntry returns the entry a layer records for a name in a directory.
	// Returns PathNotFound if the layer records nothing for the name.
	GetEntry(ctx context.Context, layerID, dirID, name string) (*Entry, error)

	// PutEntry creates or replaces an entry.
	PutEntry(ctx context.Context, entry *Entry) error

	// DeleteEntry removes an entry. Missing entries are not an error.
	DeleteEntry(ctx context.Context, layerID, dirID, name string) error

	// ListEntries returns a layer's entries for a directory, sorted by name,
	// tombstones included.
	ListEntries(ctx context.Context, layerID, dirID string) ([]*Entry, error)

	// DeleteLayerEntries removes every entry recorded by a layer.
	DeleteLayerEntries(ctx context.Context, layerID string) error

	// ========================================================================
	// Blocks
	// ========================================================================

	// PutBlock stores content under its ref or, if the block exists, takes
	// another reference on it.
	PutBlock(ctx context.Context, ref string, data []byte) error

	// GetBlock returns block content. Returns PathNotFound for unknown refs.
	GetBlock(ctx context.Context, ref string) ([]byte, error)

	// ReleaseBlock drops one reference and removes the block at zero.
	ReleaseBlock(ctx context.Context, ref string) error

	// Usage summarizes the tenant's records.
	Usage(ctx context.Context) (*Usage, error)
}

// ============================================================================
// Store Interface
// ============================================================================

// Store is a transactional, multi-tenant record store.
type Store interface {
	// WithTransaction executes fn within a transaction scoped to tenant.
	//
	// If fn returns an error, the transaction is rolled back and no change is
	// visible. If fn returns nil, the transaction is committed. Conflicts are
	// reported as retryable StorageFailure errors; the store never retries.
	// Returns AccessDenied if the tenant does not exist.
	WithTransaction(ctx context.Context, tenant string, fn func(tx Transaction) error) error

	// EnsureTenant creates the tenant if it does not exist and returns it.
	EnsureTenant(ctx context.Context, id string) (*Tenant, error)

	// Healthcheck verifies the store is operational.
	Healthcheck(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
