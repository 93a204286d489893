// Package badger implements metadata.Store on BadgerDB.
//
// BadgerDB transactions are serializable snapshot isolated: two transactions
// that touch the same keys cannot both commit. The loser receives
// ErrConflict, which the store reports as a retryable StorageFailure.
package badger

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/layerfs/internal/logger"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

// Config configures a BadgerStore.
type Config struct {
	// Path is the data directory. Ignored when InMemory is set.
	Path string `mapstructure:"path" yaml:"path"`

	// InMemory keeps all data in memory (tests, ephemeral mounts).
	InMemory bool `mapstructure:"in_memory" yaml:"in_memory"`
}

// BadgerStore implements metadata.Store on a BadgerDB database.
type BadgerStore struct {
	db *badgerdb.DB
}

// New opens (or creates) a BadgerDB database.
func New(cfg Config) (*BadgerStore, error) {
	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger path is required")
		}
		opts = badgerdb.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug("Badger store opened", "path", cfg.Path, "in_memory", cfg.InMemory)
	return &BadgerStore{db: db}, nil
}

// EnsureTenant creates the tenant if it does not exist and returns it.
func (s *BadgerStore) EnsureTenant(ctx context.Context, id string) (*metadata.Tenant, error) {
	if err := errors.ContextError(ctx, "ensure tenant"); err != nil {
		return nil, err
	}
	if err := metadata.ValidateTenantID(id); err != nil {
		return nil, err
	}

	var tenant *metadata.Tenant
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyTenant(id))
		if err == nil {
			return item.Value(func(val []byte) error {
				t, decErr := decodeTenant(val)
				tenant = t
				return decErr
			})
		}
		if !stderrors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}

		tenant = &metadata.Tenant{ID: id, CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}
		data, err := encodeJSON(tenant)
		if err != nil {
			return err
		}
		return txn.Set(keyTenant(id), data)
	})
	if err != nil {
		return nil, mapError("ensure tenant", err)
	}
	return tenant, nil
}

// WithTransaction executes fn within a BadgerDB read-write transaction.
//
// If fn returns an error, the transaction is discarded. If fn returns nil,
// the transaction is committed; a commit conflict is returned as a retryable
// StorageFailure.
func (s *BadgerStore) WithTransaction(ctx context.Context, tenant string, fn func(tx metadata.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return errors.NewStorageError("begin transaction", err, false)
	}

	var fnErr error
	err := s.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(keyTenant(tenant)); err != nil {
			if stderrors.Is(err, badgerdb.ErrKeyNotFound) {
				return metadata.UnknownTenantError(tenant)
			}
			return err
		}

		if fnErr = fn(&badgerTransaction{txn: txn, tenant: tenant}); fnErr != nil {
			return fnErr
		}

		if err := ctx.Err(); err != nil {
			return errors.NewStorageError("commit transaction", err, false)
		}
		return nil
	})
	if fnErr != nil {
		return fnErr
	}
	return mapError("transaction", err)
}

// Healthcheck verifies the repository is operational.
//
// This performs a lightweight check that BadgerDB can start a read
// transaction, which fails if the database is closed.
func (s *BadgerStore) Healthcheck(ctx context.Context) error {
	if err := errors.ContextError(ctx, "healthcheck"); err != nil {
		return err
	}

	err := s.db.View(func(txn *badgerdb.Txn) error {
		return nil
	})
	if err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// mapError converts Badger errors into StoreErrors. StoreErrors produced by
// the transaction function pass through unchanged.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var storeErr *errors.StoreError
	if stderrors.As(err, &storeErr) {
		return err
	}

	return errors.NewStorageError(op, err, stderrors.Is(err, badgerdb.ErrConflict))
}

// Ensure BadgerStore implements metadata.Store
var _ metadata.Store = (*BadgerStore)(nil)
