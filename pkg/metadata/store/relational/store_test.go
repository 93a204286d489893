package relational

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

func TestConfigDefaults(t *testing.T) {
	t.Run("sqlite", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", "/data")
		cfg := &Config{}
		cfg.ApplyDefaults()
		assert.Equal(t, DatabaseTypeSQLite, cfg.Type)
		assert.Equal(t, "/data/layerfs/layerfs.db", cfg.SQLite.Path)
		assert.NoError(t, cfg.Validate())
	})

	t.Run("postgres", func(t *testing.T) {
		cfg := &Config{Type: DatabaseTypePostgres, Postgres: PostgresConfig{Host: "db", Database: "layerfs", User: "u"}}
		cfg.ApplyDefaults()
		assert.Equal(t, 5432, cfg.Postgres.Port)
		assert.Equal(t, "disable", cfg.Postgres.SSLMode)
		assert.Equal(t, 25, cfg.Postgres.MaxOpenConns)
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, "host=db port=5432 user=u password= dbname=layerfs sslmode=disable", cfg.Postgres.DSN())
	})

	t.Run("postgres missing host", func(t *testing.T) {
		cfg := &Config{Type: DatabaseTypePostgres}
		cfg.ApplyDefaults()
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown type", func(t *testing.T) {
		cfg := &Config{Type: "oracle"}
		assert.Error(t, cfg.Validate())
	})
}

func TestMapError(t *testing.T) {
	t.Run("serialization failure is retryable", func(t *testing.T) {
		err := mapError("commit", &pgconn.PgError{Code: pgSerializationFailure})
		assert.True(t, errors.Is(err, errors.ErrStorageFailure))
		assert.True(t, errors.IsRetryable(err))
	})

	t.Run("deadlock is retryable", func(t *testing.T) {
		assert.True(t, errors.IsRetryable(mapError("commit", &pgconn.PgError{Code: pgDeadlockDetected})))
	})

	t.Run("unique violation is not retryable", func(t *testing.T) {
		assert.False(t, errors.IsRetryable(mapError("insert", &pgconn.PgError{Code: "23505"})))
	})

	t.Run("sqlite busy is retryable", func(t *testing.T) {
		assert.True(t, errors.IsRetryable(mapError("commit", stderrors.New("database is locked (5) (SQLITE_BUSY)"))))
	})

	t.Run("store errors pass through", func(t *testing.T) {
		orig := errors.NewLayerNotFoundError("x")
		assert.Same(t, orig, mapError("get", orig))
	})

	t.Run("not found conversion", func(t *testing.T) {
		nf := metadata.EntryNotFound("x")
		assert.Equal(t, nf, convertNotFoundError(gorm.ErrRecordNotFound, nf))
	})
}

func TestSQLiteTransactionConflictFreeUnderConcurrency(t *testing.T) {
	store, err := New(&Config{Type: DatabaseTypeSQLite, SQLite: SQLiteConfig{Path: MemoryPath}})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	_, err = store.EnsureTenant(ctx, "t1")
	require.NoError(t, err)

	data := []byte("shared")
	ref := metadata.ContentRef(data)

	const workers = 8
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		go func() {
			errs <- store.WithTransaction(ctx, "t1", func(tx metadata.Transaction) error {
				return tx.PutBlock(ctx, ref, data)
			})
		}()
	}
	for i := 0; i < workers; i++ {
		require.NoError(t, <-errs)
	}

	var refs int64
	require.NoError(t, store.DB().Model(&blockModel{}).Select("refs").Where("ref = ?", ref).Scan(&refs).Error)
	assert.Equal(t, int64(workers), refs)
}
