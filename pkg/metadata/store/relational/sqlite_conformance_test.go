package relational_test

import (
	"path/filepath"
	"testing"

	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/store/relational"
	"github.com/marmos91/layerfs/pkg/metadata/storetest"
)

func TestSQLiteConformance(t *testing.T) {
	storetest.RunConformanceSuite(t, func(t *testing.T) metadata.Store {
		store, err := relational.New(&relational.Config{
			Type:   relational.DatabaseTypeSQLite,
			SQLite: relational.SQLiteConfig{Path: relational.MemoryPath},
		})
		if err != nil {
			t.Fatalf("relational.New() failed: %v", err)
		}
		t.Cleanup(func() {
			store.Close()
		})
		return store
	})
}

func TestSQLiteFileConformance(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping file-backed sqlite conformance in short mode")
	}

	storetest.RunConformanceSuite(t, func(t *testing.T) metadata.Store {
		store, err := relational.New(&relational.Config{
			Type:   relational.DatabaseTypeSQLite,
			SQLite: relational.SQLiteConfig{Path: filepath.Join(t.TempDir(), "layerfs.db")},
		})
		if err != nil {
			t.Fatalf("relational.New() failed: %v", err)
		}
		t.Cleanup(func() {
			store.Close()
		})
		return store
	})
}
