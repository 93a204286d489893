// Package relational implements metadata.Store on a relational database via
// GORM. SQLite (single node) and PostgreSQL (multi-writer) share the same code.
//
// PostgreSQL transactions run at SERIALIZABLE isolation; serialization
// failures and deadlocks surface as retryable StorageFailure errors. SQLite
// runs on a single connection, which serializes transactions in-process.
package relational

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/marmos91/layerfs/internal/logger"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

// PostgreSQL SQLSTATE codes that mean "retry the whole transaction".
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// GORMStore implements metadata.Store using GORM.
// It supports both SQLite and PostgreSQL backends via the same codebase.
type GORMStore struct {
	db     *gorm.DB
	config *Config
}

// New creates a new store based on the configuration.
// It automatically creates the database schema via GORM AutoMigrate.
func New(config *Config) (*GORMStore, error) {
	if config == nil {
		config = &Config{}
	}

	// Apply defaults if not set
	config.ApplyDefaults()

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	// Create the appropriate database connection
	var dialector gorm.Dialector
	switch config.Type {
	case DatabaseTypeSQLite:
		if config.SQLite.Path == MemoryPath {
			dialector = sqlite.Open(MemoryPath)
			break
		}
		// Ensure parent directory exists for SQLite
		if err := os.MkdirAll(filepath.Dir(config.SQLite.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// SQLite pragmas:
		// - journal_mode(WAL): readers do not block the writer
		// - busy_timeout(5000): wait up to 5 seconds when database is locked
		dsn := config.SQLite.Path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		dialector = sqlite.Open(dsn)

	case DatabaseTypePostgres:
		dialector = postgres.Open(config.Postgres.DSN())

	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	gormConfig := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent), // Suppress GORM logs by default
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying database: %w", err)
	}
	switch config.Type {
	case DatabaseTypePostgres:
		sqlDB.SetMaxOpenConns(config.Postgres.MaxOpenConns)
		sqlDB.SetMaxIdleConns(config.Postgres.MaxIdleConns)
	case DatabaseTypeSQLite:
		// One connection: transactions queue in the pool instead of failing
		// with SQLITE_BUSY, and ":memory:" keeps a single database.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	if err := db.AutoMigrate(allModels()...); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	logger.Debug("Relational store opened", "type", string(config.Type))

	return &GORMStore{
		db:     db,
		config: config,
	}, nil
}

// DB returns the underlying GORM database connection.
// This is useful for advanced queries or testing.
func (s *GORMStore) DB() *gorm.DB {
	return s.db
}

// EnsureTenant creates the tenant if it does not exist and returns it.
func (s *GORMStore) EnsureTenant(ctx context.Context, id string) (*metadata.Tenant, error) {
	if err := metadata.ValidateTenantID(id); err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	m := tenantModel{ID: id, CreatedAt: time.Now().UTC().Truncate(time.Microsecond)}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&m).Error; err != nil {
		return nil, mapError("ensure tenant", err)
	}

	var stored tenantModel
	if err := db.First(&stored, "id = ?", id).Error; err != nil {
		return nil, mapError("ensure tenant", err)
	}
	return &metadata.Tenant{ID: stored.ID, CreatedAt: stored.CreatedAt}, nil
}

// WithTransaction executes fn within a database transaction.
//
// If fn returns an error, the transaction is rolled back and the error is
// returned unchanged. If fn returns nil, the transaction is committed.
func (s *GORMStore) WithTransaction(ctx context.Context, tenant string, fn func(tx metadata.Transaction) error) error {
	if err := ctx.Err(); err != nil {
		return errors.NewStorageError("begin transaction", err, false)
	}

	var opts []*sql.TxOptions
	if s.config.Type == DatabaseTypePostgres {
		opts = append(opts, &sql.TxOptions{Isolation: sql.LevelSerializable})
	}

	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		var t tenantModel
		if err := gtx.First(&t, "id = ?", tenant).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return metadata.UnknownTenantError(tenant)
			}
			return err
		}

		fnErr = fn(&gormTransaction{db: gtx, tenant: tenant})
		return fnErr
	}, opts...)
	if fnErr != nil {
		return fnErr
	}
	return mapError("transaction", err)
}

// Healthcheck verifies the database answers a ping.
func (s *GORMStore) Healthcheck(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *GORMStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// mapError converts database errors into StoreErrors. StoreErrors pass
// through unchanged.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var storeErr *errors.StoreError
	if stderrors.As(err, &storeErr) {
		return err
	}

	return errors.NewStorageError(op, err, isRetryableError(err))
}

// isRetryableError reports whether err is a transaction conflict the caller
// may resolve by retrying.
func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}

	// SQLite reports lock contention only through the message.
	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "SQLITE_BUSY")
}

// convertNotFoundError converts gorm.ErrRecordNotFound to the appropriate domain error.
func convertNotFoundError(err error, notFoundErr error) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundErr
	}
	return mapError("query", err)
}

// Ensure GORMStore implements metadata.Store
var _ metadata.Store = (*GORMStore)(nil)
