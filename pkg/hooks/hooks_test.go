package hooks

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/layerfs/pkg/layer"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
	"github.com/marmos91/layerfs/pkg/metadata/store/memory"
)

const testTenant = "acme"

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store metadata.Store
	mgr   *layer.Manager
	h     *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	store := memory.NewMemoryStore()
	_, err := store.EnsureTenant(ctx, testTenant)
	require.NoError(t, err)

	mgr, err := layer.NewManager(layer.Config{}, nil)
	require.NoError(t, err)
	h, err := New("", mgr)
	require.NoError(t, err)

	f := &fixture{t: t, ctx: ctx, store: store, mgr: mgr, h: h}
	require.NoError(t, f.try(func(tx metadata.Transaction) error {
		_, err := mgr.Bootstrap(ctx, tx)
		return err
	}))
	return f
}

func (f *fixture) try(fn func(tx metadata.Transaction) error) error {
	return f.store.WithTransaction(f.ctx, testTenant, fn)
}

func (f *fixture) read(file string) []byte {
	f.t.Helper()
	var data []byte
	require.NoError(f.t, f.try(func(tx metadata.Transaction) (err error) {
		data, err = f.h.Read(f.ctx, tx, file)
		return err
	}))
	return data
}

func (f *fixture) write(file, data string) error {
	return f.try(func(tx metadata.Transaction) error {
		return f.h.Write(f.ctx, tx, file, []byte(data))
	})
}

func (f *fixture) active() LayerInfo {
	f.t.Helper()
	var info LayerInfo
	require.NoError(f.t, json.Unmarshal(f.read(FileActive), &info))
	return info
}

func TestNew(t *testing.T) {
	h, err := New("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPath, h.Path())
	assert.Equal(t, ".layers", h.Name())

	h, err = New("/ctl/", nil)
	require.NoError(t, err)
	assert.Equal(t, "/ctl", h.Path())

	_, err = New("/a/b", nil)
	assert.Error(t, err)

	_, err = New("relative", nil)
	assert.Error(t, err)
}

func TestMatch(t *testing.T) {
	h, err := New("", nil)
	require.NoError(t, err)

	file, ok := h.Match([]string{".layers"})
	assert.True(t, ok)
	assert.Empty(t, file)

	file, ok = h.Match([]string{".layers", "active"})
	assert.True(t, ok)
	assert.Equal(t, "active", file)

	_, ok = h.Match([]string{"docs", ".layers"})
	assert.False(t, ok)

	_, ok = h.Match(nil)
	assert.False(t, ok)

	assert.Equal(t, []string{"active", "chain", "ctl", "layers", "layers.json"}, h.Files())
	assert.True(t, h.Writable(FileCtl))
	assert.False(t, h.Writable(FileChain))
	assert.False(t, h.Exists("nope"))
}

func TestReadActive(t *testing.T) {
	f := newFixture(t)

	info := f.active()
	assert.Equal(t, layer.DefaultRootName, info.Name)
	assert.True(t, info.Active)
	assert.Empty(t, info.ParentID)
}

func TestCtlCommands(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.write(FileCtl, "create dev\ncreate feat dev\n"))
	require.NoError(t, f.write(FileCtl, "switch feat"))
	assert.Equal(t, "feat", f.active().Name)

	var chain []LayerInfo
	require.NoError(t, json.Unmarshal(f.read(FileChain), &chain))
	require.Len(t, chain, 3)
	assert.Equal(t, "feat", chain[0].Name)
	assert.Equal(t, "dev", chain[0].Parent)
	assert.Equal(t, layer.DefaultRootName, chain[2].Name)

	require.NoError(t, f.write(FileActive, "dev\n"))
	assert.Equal(t, "dev", f.active().Name)

	require.NoError(t, f.write(FileCtl, "delete feat"))

	var layers []LayerInfo
	require.NoError(t, json.Unmarshal(f.read(FileLayersJSON), &layers))
	require.Len(t, layers, 2)
	assert.Equal(t, "dev", layers[1].Name)
	assert.Equal(t, layer.DefaultRootName, layers[1].Parent)
}

func TestCtlErrors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		file string
		data string
		code errors.ErrorCode
	}{
		{name: "unknown command", file: FileCtl, data: "frobnicate x", code: errors.ErrInvalidPath},
		{name: "wrong arity", file: FileCtl, data: "switch", code: errors.ErrInvalidPath},
		{name: "empty", file: FileCtl, data: "\n\n", code: errors.ErrInvalidPath},
		{name: "empty active", file: FileActive, data: " ", code: errors.ErrInvalidPath},
		{name: "read-only", file: FileLayers, data: "x", code: errors.ErrInvalidPath},
		{name: "unknown file", file: "nope", data: "x", code: errors.ErrPathNotFound},
		{name: "missing layer", file: FileActive, data: "ghost", code: errors.ErrLayerNotFound},
		{name: "delete active", file: FileCtl, data: "delete base", code: errors.ErrLayerIsActive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.write(tt.file, tt.data)
			assert.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestCtlBatchIsAtomic(t *testing.T) {
	f := newFixture(t)

	err := f.write(FileCtl, "create dev\nswitch ghost\n")
	assert.True(t, errors.Is(err, errors.ErrLayerNotFound))

	var layers []LayerInfo
	require.NoError(t, json.Unmarshal(f.read(FileLayersJSON), &layers))
	assert.Len(t, layers, 1, "failed batch must not leave a layer behind")
}

func TestReadLayersTable(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.write(FileCtl, "create dev"))

	out := string(f.read(FileLayers))
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "dev")
	assert.Contains(t, out, layer.DefaultRootName)

	assert.Contains(t, string(f.read(FileCtl)), "usage:")
}

func TestLayerTableRows(t *testing.T) {
	created := time.Now().Add(-2 * time.Hour)
	table := NewLayerTable([]*metadata.Layer{
		{ID: "l1", Name: "base", Active: true, CreatedAt: created},
		{ID: "l2", Name: "dev", ParentID: "l1", CreatedAt: created},
	})

	rows := table.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Name", "ID", "Parent", "Active", "Created", "Age"}, table.Headers())
	assert.Equal(t, "-", rows[0][2])
	assert.Equal(t, "*", rows[0][3])
	assert.Equal(t, "base", rows[1][2])
	assert.Empty(t, rows[1][3])
}
