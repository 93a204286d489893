package cow

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/layerfs/pkg/filetype"
	"github.com/marmos91/layerfs/pkg/layer"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
	"github.com/marmos91/layerfs/pkg/metadata/store/memory"
	"github.com/marmos91/layerfs/pkg/union"
)

const testTenant = "acme"

type fakeMetrics struct {
	cow       map[string]int
	fallbacks map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{cow: map[string]int{}, fallbacks: map[string]int{}}
}

func (m *fakeMetrics) ObserveOperation(string, string, time.Duration) {}
func (m *fakeMetrics) RecordCOW(strategy string, _ int) { m.cow[strategy]++ }
func (m *fakeMetrics) RecordDiffFallback(reason string) { m.fallbacks[reason]++ }
func (m *fakeMetrics) ObserveChainDepth(int) {}
func (m *fakeMetrics) SetLiveLayers(string, int) {}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   metadata.Store
	view    *union.View
	cow     *Handler
	metrics *fakeMetrics

	base  *metadata.Layer
	child *metadata.Layer
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	ctx := context.Background()
	store := memory.NewMemoryStore()
	_, err := store.EnsureTenant(ctx, testTenant)
	require.NoError(t, err)

	mgr, err := layer.NewManager(layer.Config{}, nil)
	require.NoError(t, err)
	view := union.New(mgr, metadata.Limits{})
	m := newFakeMetrics()

	f := &fixture{
		t:       t,
		ctx:     ctx,
		store:   store,
		view:    view,
		cow:     New(cfg, view, filetype.NewDetector(filetype.Config{}), m),
		metrics: m,
	}
	f.tx(func(tx metadata.Transaction) error {
		if f.base, err = mgr.Bootstrap(ctx, tx); err != nil {
			return err
		}
		f.child, err = mgr.Create(ctx, tx, "dev", f.base.ID)
		return err
	})
	return f
}

func (f *fixture) tx(fn func(tx metadata.Transaction) error) {
	f.t.Helper()
	require.NoError(f.t, f.store.WithTransaction(f.ctx, testTenant, fn))
}

func (f *fixture) chain() []string {
	return []string{f.child.ID, f.base.ID}
}

// seed stores a materialized file in the base layer and returns its ID.
func (f *fixture) seed(name string, content []byte) string {
	f.t.Helper()
	id := metadata.NewID()
	f.tx(func(tx metadata.Transaction) error {
		rec := &metadata.Inode{
			LayerID: f.base.ID,
			ID:      id,
			Type:    metadata.TypeRegular,
			State:   metadata.StateMaterialized,
			Mode:    0o644,
			Size:    uint64(len(content)),
		}
		if err := f.cow.putBlock(f.ctx, tx, rec, content); err != nil {
			return err
		}
		if err := tx.PutInode(f.ctx, rec); err != nil {
			return err
		}
		return tx.PutEntry(f.ctx, &metadata.Entry{
			LayerID: f.base.ID, DirID: metadata.RootInodeID, Name: name, ChildID: id, Type: metadata.TypeRegular,
		})
	})
	return id
}

// write replaces the content of id as seen from chain.
func (f *fixture) write(chain []string, id string, content []byte) *Outcome {
	f.t.Helper()
	var out *Outcome
	f.tx(func(tx metadata.Transaction) error {
		v, err := f.view.Version(f.ctx, tx, chain, id)
		if err != nil {
			return err
		}
		out, err = f.cow.Apply(f.ctx, tx, chain, v, Mutation{
			Content: func([]byte) ([]byte, error) { return content, nil },
		})
		return err
	})
	return out
}

func (f *fixture) content(chain []string, id string) []byte {
	f.t.Helper()
	var data []byte
	f.tx(func(tx metadata.Transaction) error {
		v, err := f.view.Version(f.ctx, tx, chain, id)
		if err != nil {
			return err
		}
		data, err = f.view.Content(f.ctx, tx, v)
		return err
	})
	return data
}

func (f *fixture) record(layerID, id string) *metadata.Inode {
	f.t.Helper()
	var rec *metadata.Inode
	f.tx(func(tx metadata.Transaction) (err error) {
		rec, err = tx.GetInode(f.ctx, layerID, id)
		return err
	})
	return rec
}

func lines(n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		fmt.Fprintf(&buf, "line %d of the file\n", i)
	}
	return buf.Bytes()
}

func TestApplyDiff(t *testing.T) {
	f := newFixture(t, Config{})
	base := lines(20)
	id := f.seed("a.txt", base)

	next := bytes.Replace(base, []byte("line 7 of"), []byte("line seven of"), 1)
	out := f.write(f.chain(), id, next)

	assert.Equal(t, StrategyDiff, out.Strategy)
	assert.Equal(t, metadata.StateDiffed, out.Inode.State)
	assert.Equal(t, f.base.ID, out.Inode.BaseLayerID)
	assert.Equal(t, metadata.ContentRef(base), out.Inode.BaseDigest)
	assert.Equal(t, uint64(len(next)), out.Inode.Size)
	assert.Positive(t, out.Stored)

	assert.Equal(t, next, f.content(f.chain(), id))
	assert.Equal(t, base, f.content([]string{f.base.ID}, id), "ancestor must be untouched")
	assert.Equal(t, 1, f.metrics.cow[string(StrategyDiff)])
}

func TestApplyFallbackRatio(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.seed("a.txt", []byte("one\ntwo\nthree\n"))

	next := []byte("a completely different body of text\n")
	out := f.write(f.chain(), id, next)

	assert.Equal(t, StrategyFallback, out.Strategy)
	assert.Equal(t, reasonRatio, out.Reason)
	assert.Equal(t, metadata.StateMaterialized, out.Inode.State)
	assert.Equal(t, next, f.content(f.chain(), id))
	assert.Equal(t, 1, f.metrics.fallbacks[reasonRatio])
}

func TestApplyFallbackSize(t *testing.T) {
	f := newFixture(t, Config{MaxDiffFileSize: 8})
	base := lines(5)
	id := f.seed("a.txt", base)

	next := append(append([]byte{}, base...), "one more\n"...)
	out := f.write(f.chain(), id, next)

	assert.Equal(t, StrategyFallback, out.Strategy)
	assert.Equal(t, reasonSize, out.Reason)
	assert.Equal(t, next, f.content(f.chain(), id))
}

func TestApplyFullCopy(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		base []byte
	}{
		{name: "binary", base: []byte("\x00\x01\x02binary\x00")},
		{name: "uncertain encoding", base: []byte("caf\xe9\ncaf\xe9\n")},
		{name: "diffing disabled", cfg: Config{DisableDiff: true}, base: lines(10)},
		{name: "mixed line endings", base: []byte("a\r\nb\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.cfg)
			id := f.seed("f", tt.base)

			next := append(append([]byte{}, tt.base...), "tail\n"...)
			out := f.write(f.chain(), id, next)

			assert.Equal(t, StrategyFullCopy, out.Strategy)
			assert.Equal(t, metadata.StateMaterialized, out.Inode.State)
			assert.Equal(t, f.child.ID, out.Inode.LayerID)
			assert.Equal(t, next, f.content(f.chain(), id))
			assert.Equal(t, tt.base, f.content([]string{f.base.ID}, id))
			assert.Empty(t, f.metrics.fallbacks)
		})
	}
}

func TestApplyInPlace(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.seed("a.txt", []byte("v1\n"))

	out := f.write([]string{f.base.ID}, id, []byte("v2\n"))
	assert.Equal(t, StrategyInPlace, out.Strategy)
	assert.Equal(t, []byte("v2\n"), f.content([]string{f.base.ID}, id))
}

func TestApplyRediffOwned(t *testing.T) {
	f := newFixture(t, Config{})
	base := lines(20)
	id := f.seed("a.txt", base)

	first := bytes.Replace(base, []byte("line 3 of"), []byte("line three of"), 1)
	require.Equal(t, StrategyDiff, f.write(f.chain(), id, first).Strategy)

	second := bytes.Replace(first, []byte("line 12 of"), []byte("line twelve of"), 1)
	out := f.write(f.chain(), id, second)

	assert.Equal(t, StrategyInPlace, out.Strategy)
	assert.Equal(t, metadata.StateDiffed, out.Inode.State)
	assert.Equal(t, f.base.ID, out.Inode.BaseLayerID)
	assert.Equal(t, second, f.content(f.chain(), id))
}

func TestApplyRediffOwnedFallback(t *testing.T) {
	base := lines(20)
	first := bytes.Replace(base, []byte("line 3 of"), []byte("line three of"), 1)
	second := bytes.Replace(first, []byte("line 12 of"), []byte("line twelve of"), 1)

	tests := []struct {
		name   string
		cfg    Config
		next   []byte
		reason string
	}{
		{name: "grown past size limit", cfg: Config{MaxDiffFileSize: uint64(len(first))}, next: append(append([]byte{}, first...), lines(3)...), reason: reasonSize},
		{name: "diffing disabled", cfg: Config{DisableDiff: true}, next: second, reason: reasonDisabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{MaxDiffFileSize: tt.cfg.MaxDiffFileSize})
			id := f.seed("a.txt", base)
			require.Equal(t, StrategyDiff, f.write(f.chain(), id, first).Strategy)

			f.cow = New(tt.cfg, f.view, filetype.NewDetector(filetype.Config{}), f.metrics)
			out := f.write(f.chain(), id, tt.next)

			assert.Equal(t, StrategyInPlace, out.Strategy)
			assert.Equal(t, tt.reason, out.Reason)
			assert.Equal(t, metadata.StateMaterialized, out.Inode.State)
			assert.Empty(t, out.Inode.BaseLayerID)
			assert.Equal(t, tt.next, f.content(f.chain(), id))
			assert.Equal(t, 1, f.metrics.fallbacks[tt.reason])
		})
	}
}

func TestApplyUnchangedContent(t *testing.T) {
	f := newFixture(t, Config{})
	base := []byte("same\n")
	id := f.seed("a.txt", base)

	out := f.write(f.chain(), id, base)
	assert.Equal(t, base, f.content(f.chain(), id))
	assert.Equal(t, f.child.ID, out.Inode.LayerID)
}

func TestApplyAttrOnly(t *testing.T) {
	f := newFixture(t, Config{})
	id := f.seed("a.txt", []byte("x\n"))
	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	var out *Outcome
	f.tx(func(tx metadata.Transaction) error {
		v, err := f.view.Version(f.ctx, tx, f.chain(), id)
		require.NoError(t, err)
		out, err = f.cow.Apply(f.ctx, tx, f.chain(), v, Mutation{Attr: func(in *metadata.Inode) {
			in.Mode = 0o600
			in.Mtime = mtime
		}})
		return err
	})

	assert.Equal(t, uint32(0o600), out.Inode.Mode)
	assert.Equal(t, mtime, out.Inode.Mtime)
	assert.Equal(t, uint32(0o644), f.record(f.base.ID, id).Mode)
	assert.Equal(t, []byte("x\n"), f.content(f.chain(), id))
}

func TestApplyDirectoryContent(t *testing.T) {
	f := newFixture(t, Config{})

	err := f.store.WithTransaction(f.ctx, testTenant, func(tx metadata.Transaction) error {
		v, err := f.view.Version(f.ctx, tx, f.chain(), metadata.RootInodeID)
		require.NoError(t, err)
		_, err = f.cow.Apply(f.ctx, tx, f.chain(), v, Mutation{
			Content: func([]byte) ([]byte, error) { return []byte("x"), nil },
		})
		return err
	})
	assert.True(t, errors.Is(err, errors.ErrIsDirectory))
}

func TestApplyFileTooLarge(t *testing.T) {
	f := newFixture(t, Config{MaxFileSize: 4})
	id := f.seed("a.txt", []byte("abc"))

	err := f.store.WithTransaction(f.ctx, testTenant, func(tx metadata.Transaction) error {
		v, err := f.view.Version(f.ctx, tx, f.chain(), id)
		require.NoError(t, err)
		_, err = f.cow.Apply(f.ctx, tx, f.chain(), v, Mutation{
			Content: func([]byte) ([]byte, error) { return []byte("abcdef"), nil },
		})
		return err
	})
	assert.True(t, errors.Is(err, errors.ErrFileTooLarge))
	assert.NoError(t, f.cow.CheckSize("/a", 4))
}

func TestPinDependents(t *testing.T) {
	f := newFixture(t, Config{})
	base := lines(20)
	id := f.seed("a.txt", base)

	edited := bytes.Replace(base, []byte("line 5 of"), []byte("line five of"), 1)
	require.Equal(t, StrategyDiff, f.write(f.chain(), id, edited).Strategy)

	f.write([]string{f.base.ID}, id, []byte("rewritten base\n"))

	rec := f.record(f.child.ID, id)
	assert.Equal(t, metadata.StateMaterialized, rec.State)
	assert.Empty(t, rec.BaseLayerID)
	assert.Equal(t, edited, f.content(f.chain(), id))
	assert.Equal(t, []byte("rewritten base\n"), f.content([]string{f.base.ID}, id))
}

func TestUnlinkAndRemove(t *testing.T) {
	f := newFixture(t, Config{})
	inherited := f.seed("old.txt", []byte("x"))

	own := metadata.NewID()
	f.tx(func(tx metadata.Transaction) error {
		rec := &metadata.Inode{LayerID: f.child.ID, ID: own, Type: metadata.TypeRegular, State: metadata.StateMaterialized}
		if err := f.cow.putBlock(f.ctx, tx, rec, []byte("mine")); err != nil {
			return err
		}
		if err := tx.PutInode(f.ctx, rec); err != nil {
			return err
		}
		return f.cow.Link(f.ctx, tx, f.child.ID, metadata.RootInodeID, "new.txt", rec)
	})

	f.tx(func(tx metadata.Transaction) error {
		require.NoError(t, f.cow.Unlink(f.ctx, tx, f.chain(), metadata.RootInodeID, "old.txt"))
		require.NoError(t, f.cow.Remove(f.ctx, tx, f.chain(), inherited))
		require.NoError(t, f.cow.Unlink(f.ctx, tx, f.chain(), metadata.RootInodeID, "new.txt"))
		return f.cow.Remove(f.ctx, tx, f.chain(), own)
	})

	f.tx(func(tx metadata.Transaction) error {
		e, err := tx.GetEntry(f.ctx, f.child.ID, metadata.RootInodeID, "old.txt")
		require.NoError(t, err)
		assert.True(t, e.Tombstone)

		_, err = tx.GetEntry(f.ctx, f.child.ID, metadata.RootInodeID, "new.txt")
		assert.True(t, errors.IsNotFound(err))

		rec, err := tx.GetInode(f.ctx, f.child.ID, inherited)
		require.NoError(t, err)
		assert.Equal(t, metadata.StateDeleted, rec.State)

		_, err = tx.GetInode(f.ctx, f.child.ID, own)
		assert.True(t, errors.IsNotFound(err))

		_, err = tx.GetBlock(f.ctx, metadata.ContentRef([]byte("mine")))
		assert.True(t, errors.IsNotFound(err), "block of removed record must be released")

		entries, err := f.view.ListDir(f.ctx, tx, f.chain(), metadata.RootInodeID)
		require.NoError(t, err)
		assert.Empty(t, entries)

		base, err := f.view.ListDir(f.ctx, tx, []string{f.base.ID}, metadata.RootInodeID)
		require.NoError(t, err)
		assert.Len(t, base, 1)
		return nil
	})
}

func TestEnsureDir(t *testing.T) {
	f := newFixture(t, Config{})

	f.tx(func(tx metadata.Transaction) error {
		v, err := f.view.Version(f.ctx, tx, f.chain(), metadata.RootInodeID)
		require.NoError(t, err)
		rec, err := f.cow.EnsureDir(f.ctx, tx, f.child.ID, v)
		require.NoError(t, err)
		assert.Equal(t, f.child.ID, rec.LayerID)

		again, err := f.view.Version(f.ctx, tx, f.chain(), metadata.RootInodeID)
		require.NoError(t, err)
		assert.Equal(t, f.child.ID, again.LayerID)

		same, err := f.cow.EnsureDir(f.ctx, tx, f.child.ID, again)
		require.NoError(t, err)
		assert.Same(t, again.Inode, same)

		_, err = f.cow.EnsureDir(f.ctx, tx, f.child.ID, again, func(in *metadata.Inode) { in.Mode = 0o700 })
		require.NoError(t, err)
		touched, err := f.view.Version(f.ctx, tx, f.chain(), metadata.RootInodeID)
		require.NoError(t, err)
		assert.Equal(t, uint32(0o700), touched.Inode.Mode)
		return nil
	})
	assert.Equal(t, 1, f.metrics.cow[string(StrategyFullCopy)])
	assert.Equal(t, 1, f.metrics.cow[string(StrategyInPlace)])
}
