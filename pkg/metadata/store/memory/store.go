// Package memory provides an in-memory implementation of metadata.Store.
//
// All state lives in maps guarded by a single mutex. A transaction holds the
// mutex for its whole duration and records an undo journal, so a failed
// transaction leaves no trace. Intended for tests and ephemeral mounts.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

type inodeKey struct {
	layerID string
	id      string
}

type dirKey struct {
	layerID string
	dirID   string
}

type block struct {
	data []byte
	refs uint64
}

// tenantData is the complete state of one tenant.
type tenantData struct {
	tenant  metadata.Tenant
	layers  map[string]*metadata.Layer
	inodes  map[inodeKey]*metadata.Inode
	entries map[dirKey]map[string]*metadata.Entry
	blocks  map[string]*block
}

func newTenantData(id string) *tenantData {
	return &tenantData{
		tenant:  metadata.Tenant{ID: id, CreatedAt: time.Now().UTC().Truncate(time.Microsecond)},
		layers:  make(map[string]*metadata.Layer),
		inodes:  make(map[inodeKey]*metadata.Inode),
		entries: make(map[dirKey]map[string]*metadata.Entry),
		blocks:  make(map[string]*block),
	}
}

// MemoryStore implements metadata.Store in memory.
type MemoryStore struct {
	mu      sync.Mutex
	tenants map[string]*tenantData
	closed  bool
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[string]*tenantData),
	}
}

// EnsureTenant creates the tenant if it does not exist and returns it.
func (s *MemoryStore) EnsureTenant(ctx context.Context, id string) (*metadata.Tenant, error) {
	if err := errors.ContextError(ctx, "ensure tenant"); err != nil {
		return nil, err
	}
	if err := metadata.ValidateTenantID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	td, ok := s.tenants[id]
	if !ok {
		td = newTenantData(id)
		s.tenants[id] = td
	}
	t := td.tenant
	return &t, nil
}

// WithTransaction executes fn while holding the store lock.
//
// Every mutation made through the transaction is journaled. If fn returns an
// error (or panics) the journal is replayed in reverse, restoring the state
// observed when the transaction began.
func (s *MemoryStore) WithTransaction(ctx context.Context, tenant string, fn func(tx metadata.Transaction) error) (err error) {
	if err := ctx.Err(); err != nil {
		return errors.NewStorageError("begin transaction", err, false)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStoreClosed
	}

	td, ok := s.tenants[tenant]
	if !ok {
		return metadata.UnknownTenantError(tenant)
	}

	tx := &memoryTransaction{data: td}

	defer func() {
		if r := recover(); r != nil {
			tx.rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}

	// A caller that gave up while fn ran must not see its writes land.
	if err := ctx.Err(); err != nil {
		tx.rollback()
		return errors.NewStorageError("commit transaction", err, false)
	}

	return nil
}

// Healthcheck verifies the store is open.
func (s *MemoryStore) Healthcheck(ctx context.Context) error {
	if err := errors.ContextError(ctx, "healthcheck"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStoreClosed
	}
	return nil
}

// Close drops all state.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.tenants = make(map[string]*tenantData)
	return nil
}

var errStoreClosed = errors.NewStorageError("memory store is closed", nil, false)

// Ensure MemoryStore implements metadata.Store
var _ metadata.Store = (*MemoryStore)(nil)
