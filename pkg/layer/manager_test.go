package layer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
	"github.com/marmos91/layerfs/pkg/metadata/store/memory"
)

const testTenant = "acme"

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store metadata.Store
	mgr   *Manager
	root  *metadata.Layer
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	ctx := context.Background()
	store := memory.NewMemoryStore()
	_, err := store.EnsureTenant(ctx, testTenant)
	require.NoError(t, err)

	mgr, err := NewManager(cfg, nil)
	require.NoError(t, err)

	f := &fixture{t: t, ctx: ctx, store: store, mgr: mgr}
	f.tx(func(tx metadata.Transaction) error {
		f.root, err = mgr.Bootstrap(ctx, tx)
		return err
	})
	return f
}

// tx runs fn in a transaction and requires it to succeed.
func (f *fixture) tx(fn func(tx metadata.Transaction) error) {
	f.t.Helper()
	require.NoError(f.t, f.store.WithTransaction(f.ctx, testTenant, fn))
}

// try runs fn in a transaction and returns its error.
func (f *fixture) try(fn func(tx metadata.Transaction) error) error {
	return f.store.WithTransaction(f.ctx, testTenant, fn)
}

func (f *fixture) create(name, parent string) *metadata.Layer {
	f.t.Helper()
	var l *metadata.Layer
	f.tx(func(tx metadata.Transaction) error {
		var err error
		l, err = f.mgr.Create(f.ctx, tx, name, parent)
		return err
	})
	return l
}

func (f *fixture) switchTo(ref string) {
	f.t.Helper()
	f.tx(func(tx metadata.Transaction) error {
		_, err := f.mgr.Switch(f.ctx, tx, ref)
		return err
	})
}

func TestBootstrap(t *testing.T) {
	f := newFixture(t, Config{})

	assert.Equal(t, DefaultRootName, f.root.Name)
	assert.True(t, f.root.Active)
	assert.True(t, f.root.IsRoot())

	f.tx(func(tx metadata.Transaction) error {
		again, err := f.mgr.Bootstrap(f.ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, f.root.ID, again.ID, "bootstrap must be idempotent")

		dir, err := tx.GetInode(f.ctx, f.root.ID, metadata.RootInodeID)
		require.NoError(t, err)
		assert.True(t, dir.IsDir())

		layers, err := f.mgr.List(f.ctx, tx, true)
		require.NoError(t, err)
		assert.Len(t, layers, 1)
		return nil
	})
}

func TestCreate(t *testing.T) {
	t.Run("defaults to the active parent", func(t *testing.T) {
		f := newFixture(t, Config{})
		dev := f.create("dev", "")

		assert.Equal(t, f.root.ID, dev.ParentID)
		assert.False(t, dev.Active)
		assert.Greater(t, dev.Seq, f.root.Seq)
	})

	t.Run("explicit parent by name", func(t *testing.T) {
		f := newFixture(t, Config{})
		dev := f.create("dev", "")
		feat := f.create("feat", "dev")
		assert.Equal(t, dev.ID, feat.ParentID)
	})

	t.Run("name collision", func(t *testing.T) {
		f := newFixture(t, Config{})
		f.create("dev", "")
		err := f.try(func(tx metadata.Transaction) error {
			_, err := f.mgr.Create(f.ctx, tx, "dev", "")
			return err
		})
		assert.True(t, errors.Is(err, errors.ErrAlreadyExists), "got %v", err)
	})

	t.Run("unknown parent", func(t *testing.T) {
		f := newFixture(t, Config{})
		err := f.try(func(tx metadata.Transaction) error {
			_, err := f.mgr.Create(f.ctx, tx, "dev", "nope")
			return err
		})
		assert.True(t, errors.Is(err, errors.ErrLayerNotFound), "got %v", err)
	})

	t.Run("invalid name", func(t *testing.T) {
		f := newFixture(t, Config{})
		for _, name := range []string{"", "a b", "x/y", ".."} {
			err := f.try(func(tx metadata.Transaction) error {
				_, err := f.mgr.Create(f.ctx, tx, name, "")
				return err
			})
			assert.True(t, errors.Is(err, errors.ErrInvalidPath), "name %q: got %v", name, err)
		}
	})

	t.Run("chain too deep", func(t *testing.T) {
		f := newFixture(t, Config{MaxChainDepth: 3})
		f.create("l1", "")
		f.create("l2", "l1")

		err := f.try(func(tx metadata.Transaction) error {
			_, err := f.mgr.Create(f.ctx, tx, "l3", "l2")
			return err
		})
		assert.True(t, errors.Is(err, errors.ErrChainTooDeep), "got %v", err)
	})
}

func TestChainOf(t *testing.T) {
	f := newFixture(t, Config{})
	dev := f.create("dev", "")
	feat := f.create("feat", "dev")

	f.tx(func(tx metadata.Transaction) error {
		chain, err := f.mgr.ChainOf(f.ctx, tx, feat.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{feat.ID, dev.ID, f.root.ID}, chain)

		_, err = f.mgr.ChainOf(f.ctx, tx, "missing")
		assert.True(t, errors.Is(err, errors.ErrLayerNotFound))

		layers, err := f.mgr.Layers(f.ctx, tx, chain)
		require.NoError(t, err)
		assert.Equal(t, "feat", layers[0].Name)
		assert.Equal(t, DefaultRootName, layers[2].Name)
		return nil
	})
}

type fakeCacheMetrics struct {
	hits, misses, evictions int
}

func (m *fakeCacheMetrics) RecordChainLookup(hit bool) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func (m *fakeCacheMetrics) RecordChainEviction(n int) { m.evictions += n }

func TestChainCache(t *testing.T) {
	f := newFixture(t, Config{ChainCacheSize: 1})
	cm := &fakeCacheMetrics{}
	f.mgr.metrics = cm

	dev := f.create("dev", "")

	f.tx(func(tx metadata.Transaction) error {
		for i := 0; i < 3; i++ {
			_, err := f.mgr.ChainOf(f.ctx, tx, dev.ID)
			require.NoError(t, err)
		}
		_, err := f.mgr.ChainOf(f.ctx, tx, f.root.ID)
		require.NoError(t, err)
		return nil
	})

	// Misses: root during create, dev once, root again after its eviction.
	assert.Equal(t, 2, cm.hits)
	assert.Equal(t, 3, cm.misses)
	assert.GreaterOrEqual(t, cm.evictions, 1, "cache of one must evict")
}

func TestChainCorrupt(t *testing.T) {
	f := newFixture(t, Config{})

	a := &metadata.Layer{ID: "layer-a", Name: "a", ParentID: "layer-b", Seq: 10}
	b := &metadata.Layer{ID: "layer-b", Name: "b", ParentID: "layer-a", Seq: 11}
	orphan := &metadata.Layer{ID: "layer-c", Name: "c", ParentID: "gone", Seq: 12}
	f.tx(func(tx metadata.Transaction) error {
		require.NoError(t, tx.PutLayer(f.ctx, a))
		require.NoError(t, tx.PutLayer(f.ctx, b))
		return tx.PutLayer(f.ctx, orphan)
	})

	f.tx(func(tx metadata.Transaction) error {
		_, err := f.mgr.ChainOf(f.ctx, tx, a.ID)
		assert.True(t, errors.Is(err, errors.ErrChainCorrupt), "cycle: got %v", err)

		_, err = f.mgr.ChainOf(f.ctx, tx, orphan.ID)
		assert.True(t, errors.Is(err, errors.ErrChainCorrupt), "missing parent: got %v", err)
		return nil
	})
}

func TestSwitch(t *testing.T) {
	f := newFixture(t, Config{})
	dev := f.create("dev", "")

	f.switchTo(dev.ID)

	f.tx(func(tx metadata.Transaction) error {
		active, err := f.mgr.Active(f.ctx, tx)
		require.NoError(t, err)
		assert.Equal(t, dev.ID, active.ID)

		root, err := f.mgr.Get(f.ctx, tx, f.root.ID)
		require.NoError(t, err)
		assert.False(t, root.Active)
		return nil
	})

	err := f.try(func(tx metadata.Transaction) error {
		_, err := f.mgr.Switch(f.ctx, tx, "ghost")
		return err
	})
	assert.True(t, errors.Is(err, errors.ErrLayerNotFound))

	// Switching to the active layer changes nothing.
	f.switchTo("dev")
}

func TestDelete(t *testing.T) {
	t.Run("guards", func(t *testing.T) {
		f := newFixture(t, Config{})
		dev := f.create("dev", "")
		f.create("feat", "dev")

		err := f.try(func(tx metadata.Transaction) error {
			_, err := f.mgr.Delete(f.ctx, tx, dev.ID)
			return err
		})
		assert.True(t, errors.Is(err, errors.ErrLayerHasChildren), "got %v", err)

		f.switchTo("feat")
		err = f.try(func(tx metadata.Transaction) error {
			_, err := f.mgr.Delete(f.ctx, tx, "feat")
			return err
		})
		assert.True(t, errors.Is(err, errors.ErrLayerIsActive), "got %v", err)

		err = f.try(func(tx metadata.Transaction) error {
			_, err := f.mgr.Delete(f.ctx, tx, "nope")
			return err
		})
		assert.True(t, errors.Is(err, errors.ErrLayerNotFound), "got %v", err)
	})

	t.Run("releases records and frees the name", func(t *testing.T) {
		f := newFixture(t, Config{})
		dev := f.create("dev", "")

		f.tx(func(tx metadata.Transaction) error {
			data := []byte("owned by dev")
			ref := metadata.ContentRef(data)
			require.NoError(t, tx.PutBlock(f.ctx, ref, data))
			require.NoError(t, tx.PutInode(f.ctx, &metadata.Inode{
				LayerID: dev.ID, ID: "file-1", Type: metadata.TypeRegular,
				State: metadata.StateMaterialized, ContentRef: ref, Size: uint64(len(data)),
			}))
			return tx.PutEntry(f.ctx, &metadata.Entry{
				LayerID: dev.ID, DirID: metadata.RootInodeID, Name: "f", ChildID: "file-1", Type: metadata.TypeRegular,
			})
		})

		f.tx(func(tx metadata.Transaction) error {
			deleted, err := f.mgr.Delete(f.ctx, tx, "dev")
			require.NoError(t, err)
			assert.True(t, deleted.Deleted)
			return nil
		})

		f.tx(func(tx metadata.Transaction) error {
			inodes, err := tx.ListInodes(f.ctx, dev.ID)
			require.NoError(t, err)
			assert.Empty(t, inodes)

			entries, err := tx.ListEntries(f.ctx, dev.ID, metadata.RootInodeID)
			require.NoError(t, err)
			assert.Empty(t, entries)

			_, err = tx.GetBlock(f.ctx, metadata.ContentRef([]byte("owned by dev")))
			assert.True(t, errors.IsNotFound(err))

			_, err = f.mgr.ChainOf(f.ctx, tx, dev.ID)
			assert.True(t, errors.Is(err, errors.ErrLayerNotFound))

			live, err := f.mgr.List(f.ctx, tx, false)
			require.NoError(t, err)
			assert.Len(t, live, 1)

			all, err := f.mgr.List(f.ctx, tx, true)
			require.NoError(t, err)
			assert.Len(t, all, 2)
			return nil
		})

		again := f.create("dev", "")
		assert.NotEqual(t, dev.ID, again.ID)
	})
}
