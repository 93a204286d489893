package layerfs

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/layerfs/pkg/cow"
	"github.com/marmos91/layerfs/pkg/hooks"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
	"github.com/marmos91/layerfs/pkg/metadata/store/memory"
	"github.com/marmos91/layerfs/pkg/textdiff"
)

const testTenant = "acme"

func newTestFS(t *testing.T, opts Options) (*FileSystem, *OpContext) {
	t.Helper()

	fs, err := New(memory.NewMemoryStore(), opts)
	require.NoError(t, err)

	op := NewOpContext(context.Background(), testTenant)
	_, err = fs.InitTenant(op)
	require.NoError(t, err)
	return fs, op
}

// pin returns a copy of op resolving against layer.
func pin(op *OpContext, layer string) *OpContext {
	pinned := *op
	pinned.Layer = layer
	return &pinned
}

func mustWriteFile(t *testing.T, fs *FileSystem, op *OpContext, path, content string) {
	t.Helper()
	require.NoError(t, fs.WriteFile(op, path, []byte(content), 0o644))
}

func mustRead(t *testing.T, fs *FileSystem, op *OpContext, path string) string {
	t.Helper()
	data, err := fs.ReadFile(op, path)
	require.NoError(t, err)
	return string(data)
}

func mustLayer(t *testing.T, fs *FileSystem, op *OpContext, name, parent string, activate bool) *metadata.Layer {
	t.Helper()
	l, err := fs.CreateLayer(op, name, parent)
	require.NoError(t, err)
	if activate {
		_, err = fs.SwitchLayer(op, name)
		require.NoError(t, err)
	}
	return l
}

func names(entries []metadata.DirectoryEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}

func TestInitTenantIdempotent(t *testing.T) {
	fs, op := newTestFS(t, Options{})

	again, err := fs.InitTenant(op)
	require.NoError(t, err)
	assert.Equal(t, "base", again.Name)

	layers, err := fs.ListLayers(op, false)
	require.NoError(t, err)
	assert.Len(t, layers, 1)

	attr, err := fs.GetAttr(op, "/")
	require.NoError(t, err)
	assert.True(t, attr.IsDir())
}

func TestWriteIsolatedToActiveLayer(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	root, err := fs.ActiveLayer(op)
	require.NoError(t, err)

	mustLayer(t, fs, op, "A", "", true)
	_, err = fs.Create(op, "/x", 0o644)
	require.NoError(t, err)
	_, err = fs.Write(op, "/x", 0, []byte("hello"))
	require.NoError(t, err)

	_, err = fs.ReadFile(pin(op, root.Name), "/x")
	assert.True(t, errors.Is(err, errors.ErrPathNotFound), "got %v", err)

	assert.Equal(t, "hello", mustRead(t, fs, op, "/x"))
	assert.Equal(t, "hello", mustRead(t, fs, pin(op, "A"), "/x"))
}

func TestTextModificationStoredAsDiff(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	root, err := fs.ActiveLayer(op)
	require.NoError(t, err)

	mustWriteFile(t, fs, op, "/y", "line1\nline2\n")
	b := mustLayer(t, fs, op, "B", "", true)

	require.NoError(t, fs.WriteFile(op, "/y", []byte("line1\nCHANGED\n"), 0))

	v, err := fs.Version(op, "/y")
	require.NoError(t, err)
	assert.Equal(t, metadata.StateDiffed, v.State)
	assert.Equal(t, b.ID, v.LayerID)
	assert.Equal(t, root.ID, v.Inode.BaseLayerID)

	base := mustRead(t, fs, pin(op, root.Name), "/y")
	assert.Equal(t, "line1\nline2\n", base)
	assert.Equal(t, metadata.ContentRef([]byte(base)), v.Inode.BaseDigest)

	err = fs.Store().WithTransaction(context.Background(), testTenant, func(tx metadata.Transaction) error {
		encoded, err := tx.GetBlock(context.Background(), v.Inode.ContentRef)
		require.NoError(t, err)
		changes, err := textdiff.Decode(encoded)
		require.NoError(t, err)
		replayed, err := changes.Apply([]byte(base))
		require.NoError(t, err)
		assert.Equal(t, "line1\nCHANGED\n", string(replayed))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "line1\nCHANGED\n", mustRead(t, fs, op, "/y"))
}

func TestBinaryModificationFullCopy(t *testing.T) {
	fs, op := newTestFS(t, Options{})

	require.NoError(t, fs.WriteFile(op, "/bin.dat", []byte{0x00, 0x01, 0x02, 0x03, 0xfe, 0xff}, 0o644))
	c := mustLayer(t, fs, op, "C", "", true)

	_, err := fs.Write(op, "/bin.dat", 2, []byte{0x42})
	require.NoError(t, err)

	v, err := fs.Version(op, "/bin.dat")
	require.NoError(t, err)
	assert.Equal(t, metadata.StateMaterialized, v.State)
	assert.Equal(t, c.ID, v.LayerID)

	data, err := fs.ReadFile(op, "/bin.dat")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x42, 0x03, 0xfe, 0xff}, data)

	data, err = fs.ReadFile(pin(op, "base"), "/bin.dat")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0x02, 0x03, 0xfe, 0xff}, data)
}

func TestDeleteHidesOnlyInActiveLayer(t *testing.T) {
	fs, op := newTestFS(t, Options{})

	_, err := fs.Mkdir(op, "/dir", 0o755)
	require.NoError(t, err)
	mustWriteFile(t, fs, op, "/dir/a", "a")
	mustWriteFile(t, fs, op, "/dir/b", "b")
	mustLayer(t, fs, op, "D", "", true)

	require.NoError(t, fs.Unlink(op, "/dir/a"))

	entries, err := fs.ReadDir(op, "/dir")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, names(entries))

	entries, err = fs.ReadDir(pin(op, "base"), "/dir")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names(entries))

	_, err = fs.GetAttr(op, "/dir/a")
	assert.True(t, errors.Is(err, errors.ErrPathNotFound))
}

func TestRecreateAfterDelete(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	mustWriteFile(t, fs, op, "/f", "old")
	mustLayer(t, fs, op, "dev", "", true)

	require.NoError(t, fs.Unlink(op, "/f"))
	mustWriteFile(t, fs, op, "/f", "new")

	assert.Equal(t, "new", mustRead(t, fs, op, "/f"))
	assert.Equal(t, "old", mustRead(t, fs, pin(op, "base"), "/f"))

	entries, err := fs.ReadDir(op, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"f"}, names(entries))
}

func TestChildSeesParentChanges(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	mustWriteFile(t, fs, op, "/shared", "v1\n")
	mustLayer(t, fs, op, "dev", "", false)

	mustWriteFile(t, fs, op, "/shared", "v2\n")
	assert.Equal(t, "v2\n", mustRead(t, fs, pin(op, "dev"), "/shared"))
}

func TestParentWritePinsChildDiff(t *testing.T) {
	fs, op := newTestFS(t, Options{})

	body := ""
	for i := 0; i < 20; i++ {
		body += fmt.Sprintf("row %d\n", i)
	}
	mustWriteFile(t, fs, op, "/doc", body)
	mustLayer(t, fs, op, "dev", "", true)

	edited := "changed header\n" + body[len("row 0\n"):]
	mustWriteFile(t, fs, op, "/doc", edited)
	v, err := fs.Version(op, "/doc")
	require.NoError(t, err)
	require.Equal(t, metadata.StateDiffed, v.State)

	_, err = fs.SwitchLayer(op, "base")
	require.NoError(t, err)
	mustWriteFile(t, fs, op, "/doc", "replaced\n")

	dev := pin(op, "dev")
	assert.Equal(t, edited, mustRead(t, fs, dev, "/doc"))
	v, err = fs.Version(dev, "/doc")
	require.NoError(t, err)
	assert.Equal(t, metadata.StateMaterialized, v.State)
}

func TestParentDeleteKeepsChildCopy(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	mustWriteFile(t, fs, op, "/y", "line1\nline2\n")
	mustWriteFile(t, fs, op, "/z", "shared\n")
	mustLayer(t, fs, op, "b", "", true)
	mustLayer(t, fs, op, "c", "b", false)

	mustWriteFile(t, fs, op, "/y", "line1\nCHANGED\n")
	v, err := fs.Version(op, "/y")
	require.NoError(t, err)
	require.Equal(t, metadata.StateDiffed, v.State)

	_, err = fs.SwitchLayer(op, "base")
	require.NoError(t, err)
	require.NoError(t, fs.Unlink(op, "/y"))
	require.NoError(t, fs.Unlink(op, "/z"))

	_, err = fs.ReadFile(op, "/y")
	assert.True(t, errors.Is(err, errors.ErrPathNotFound), "got %v", err)

	for _, layer := range []string{"b", "c"} {
		view := pin(op, layer)
		assert.Equal(t, "line1\nCHANGED\n", mustRead(t, fs, view, "/y"), layer)

		// No copy of its own: the deletion is inherited.
		_, err = fs.ReadFile(view, "/z")
		assert.True(t, errors.Is(err, errors.ErrPathNotFound), "%s: got %v", layer, err)

		entries, err := fs.ReadDir(view, "/")
		require.NoError(t, err)
		assert.Equal(t, []string{"y"}, names(entries), layer)
	}

	v, err = fs.Version(pin(op, "b"), "/y")
	require.NoError(t, err)
	assert.Equal(t, metadata.StateMaterialized, v.State)
}

func TestParentRenameOverKeepsChildCopy(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	mustWriteFile(t, fs, op, "/old", "old\n")
	mustWriteFile(t, fs, op, "/new", "new\n")
	mustLayer(t, fs, op, "dev", "", true)
	mustWriteFile(t, fs, op, "/old", "mine\n")

	_, err := fs.SwitchLayer(op, "base")
	require.NoError(t, err)
	require.NoError(t, fs.Rename(op, "/new", "/old"))
	assert.Equal(t, "new\n", mustRead(t, fs, op, "/old"))

	dev := pin(op, "dev")
	assert.Equal(t, "mine\n", mustRead(t, fs, dev, "/old"))
	_, err = fs.ReadFile(dev, "/new")
	assert.True(t, errors.Is(err, errors.ErrPathNotFound), "got %v", err)
}

func TestDiffDisabled(t *testing.T) {
	fs, op := newTestFS(t, Options{COW: cow.Config{DisableDiff: true}})
	mustWriteFile(t, fs, op, "/y", "line1\nline2\n")
	mustLayer(t, fs, op, "B", "", true)
	mustWriteFile(t, fs, op, "/y", "line1\nCHANGED\n")

	v, err := fs.Version(op, "/y")
	require.NoError(t, err)
	assert.Equal(t, metadata.StateMaterialized, v.State)
}

func TestPinnedWriteFailsAfterSwitch(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	mustLayer(t, fs, op, "dev", "", false)

	pinned := pin(op, "base")
	mustWriteFile(t, fs, pinned, "/a", "ok")

	_, err := fs.SwitchLayer(op, "dev")
	require.NoError(t, err)

	err = fs.WriteFile(pinned, "/a", []byte("late"), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrLayerChanged))
	assert.True(t, errors.IsRetryable(err))

	assert.Equal(t, "ok", mustRead(t, fs, pinned, "/a"))
}

func TestReadWriteOffsets(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	_, err := fs.Create(op, "/f", 0)
	require.NoError(t, err)

	n, err := fs.Write(op, "/f", 3, []byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	data, err := fs.ReadFile(op, "/f")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 'a', 'b', 'c'}, data)

	data, err = fs.Read(op, "/f", 4, 10)
	require.NoError(t, err)
	assert.Equal(t, "bc", string(data))

	data, err = fs.Read(op, "/f", 100, 10)
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = fs.Write(op, "/f", -1, []byte("x"))
	assert.True(t, errors.Is(err, errors.ErrInvalidPath))
}

func TestExtremeOffsets(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	mustWriteFile(t, fs, op, "/f", "abcdef")

	data, err := fs.Read(op, "/f", 1, math.MaxInt)
	require.NoError(t, err)
	assert.Equal(t, "bcdef", string(data))

	data, err = fs.Read(op, "/f", math.MaxInt64, math.MaxInt)
	require.NoError(t, err)
	assert.Empty(t, data)

	_, err = fs.Write(op, "/f", math.MaxInt64-2, []byte("abcd"))
	assert.True(t, errors.Is(err, errors.ErrFileTooLarge), "got %v", err)

	size := uint64(math.MaxUint64)
	_, err = fs.SetAttr(op, "/f", SetAttrRequest{Size: &size})
	assert.True(t, errors.Is(err, errors.ErrFileTooLarge), "got %v", err)

	assert.Equal(t, "abcdef", mustRead(t, fs, op, "/f"))
}

func TestSetAttr(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	mustWriteFile(t, fs, op, "/f", "hello world")
	mustLayer(t, fs, op, "dev", "", true)

	size := uint64(5)
	mode := uint32(0o600)
	attr, err := fs.SetAttr(op, "/f", SetAttrRequest{Size: &size, Mode: &mode})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), attr.Size)
	assert.Equal(t, uint32(0o600), attr.Mode)

	assert.Equal(t, "hello", mustRead(t, fs, op, "/f"))
	assert.Equal(t, "hello world", mustRead(t, fs, pin(op, "base"), "/f"))

	base, err := fs.GetAttr(pin(op, "base"), "/f")
	require.NoError(t, err)
	assert.Equal(t, uint32(0o644), base.Mode)

	_, err = fs.SetAttr(op, "/", SetAttrRequest{Size: &size})
	assert.True(t, errors.Is(err, errors.ErrIsDirectory))
}

func TestFileTooLarge(t *testing.T) {
	fs, op := newTestFS(t, Options{COW: cow.Config{MaxFileSize: 8}})

	err := fs.WriteFile(op, "/big", []byte("0123456789"), 0)
	assert.True(t, errors.Is(err, errors.ErrFileTooLarge))

	_, err = fs.GetAttr(op, "/big")
	assert.True(t, errors.Is(err, errors.ErrPathNotFound), "failed call must leave nothing behind")
}

func TestCreateErrors(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	mustWriteFile(t, fs, op, "/file", "x")

	tests := []struct {
		name string
		path string
		code errors.ErrorCode
	}{
		{name: "exists", path: "/file", code: errors.ErrAlreadyExists},
		{name: "parent missing", path: "/nope/f", code: errors.ErrPathNotFound},
		{name: "parent not a dir", path: "/file/f", code: errors.ErrNotDirectory},
		{name: "relative", path: "f", code: errors.ErrInvalidPath},
		{name: "dot", path: "/a/../f", code: errors.ErrInvalidPath},
		{name: "control file", path: "/.layers/active", code: errors.ErrAlreadyExists},
		{name: "control dir", path: "/.layers/x", code: errors.ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fs.Create(op, tt.path, 0o644)
			assert.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestSymlink(t *testing.T) {
	fs, op := newTestFS(t, Options{})

	attr, err := fs.Symlink(op, "../target", "/link")
	require.NoError(t, err)
	assert.Equal(t, metadata.TypeSymlink, attr.Type)
	assert.Equal(t, uint64(len("../target")), attr.Size)

	target, err := fs.Readlink(op, "/link")
	require.NoError(t, err)
	assert.Equal(t, "../target", target)

	_, err = fs.ReadFile(op, "/link")
	assert.True(t, errors.Is(err, errors.ErrInvalidPath))

	mustWriteFile(t, fs, op, "/plain", "x")
	_, err = fs.Readlink(op, "/plain")
	assert.True(t, errors.Is(err, errors.ErrInvalidPath))

	require.NoError(t, fs.Unlink(op, "/link"))
}

func TestRmdir(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	_, err := fs.Mkdir(op, "/d", 0)
	require.NoError(t, err)
	mustWriteFile(t, fs, op, "/d/f", "x")
	mustLayer(t, fs, op, "dev", "", true)

	err = fs.Rmdir(op, "/d")
	assert.True(t, errors.Is(err, errors.ErrDirectoryNotEmpty))

	err = fs.Unlink(op, "/d")
	assert.True(t, errors.Is(err, errors.ErrIsDirectory))

	err = fs.Rmdir(op, "/d/f")
	assert.True(t, errors.Is(err, errors.ErrNotDirectory))

	require.NoError(t, fs.Unlink(op, "/d/f"))
	require.NoError(t, fs.Rmdir(op, "/d"))

	_, err = fs.GetAttr(op, "/d")
	assert.True(t, errors.Is(err, errors.ErrPathNotFound))

	entries, err := fs.ReadDir(pin(op, "base"), "/d")
	require.NoError(t, err)
	assert.Equal(t, []string{"f"}, names(entries))

	err = fs.Rmdir(op, "/")
	assert.True(t, errors.Is(err, errors.ErrInvalidPath))
}

func TestRename(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	_, err := fs.Mkdir(op, "/src", 0)
	require.NoError(t, err)
	mustWriteFile(t, fs, op, "/src/a", "A")
	mustWriteFile(t, fs, op, "/b", "B")
	mustLayer(t, fs, op, "dev", "", true)

	require.NoError(t, fs.Rename(op, "/src/a", "/moved"))
	assert.Equal(t, "A", mustRead(t, fs, op, "/moved"))
	_, err = fs.GetAttr(op, "/src/a")
	assert.True(t, errors.Is(err, errors.ErrPathNotFound))
	assert.Equal(t, "A", mustRead(t, fs, pin(op, "base"), "/src/a"))

	require.NoError(t, fs.Rename(op, "/moved", "/b"))
	assert.Equal(t, "A", mustRead(t, fs, op, "/b"))
	assert.Equal(t, "B", mustRead(t, fs, pin(op, "base"), "/b"))

	require.NoError(t, fs.Rename(op, "/src", "/dst"))
	entries, err := fs.ReadDir(op, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "dst"}, names(entries))

	require.NoError(t, fs.Rename(op, "/b", "/b"))
	assert.Equal(t, "A", mustRead(t, fs, op, "/b"))
}

func TestRenameErrors(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	_, err := fs.Mkdir(op, "/d", 0)
	require.NoError(t, err)
	_, err = fs.Mkdir(op, "/full", 0)
	require.NoError(t, err)
	mustWriteFile(t, fs, op, "/full/x", "x")
	mustWriteFile(t, fs, op, "/f", "f")

	tests := []struct {
		name     string
		from, to string
		code     errors.ErrorCode
	}{
		{name: "into itself", from: "/d", to: "/d/sub", code: errors.ErrInvalidPath},
		{name: "dir over file", from: "/d", to: "/f", code: errors.ErrNotDirectory},
		{name: "file over dir", from: "/f", to: "/d", code: errors.ErrIsDirectory},
		{name: "dir over non-empty dir", from: "/d", to: "/full", code: errors.ErrDirectoryNotEmpty},
		{name: "missing source", from: "/nope", to: "/x", code: errors.ErrPathNotFound},
		{name: "missing target dir", from: "/f", to: "/nope/x", code: errors.ErrPathNotFound},
		{name: "control", from: "/f", to: "/.layers/active", code: errors.ErrInvalidPath},
		{name: "root", from: "/", to: "/x", code: errors.ErrInvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fs.Rename(op, tt.from, tt.to)
			assert.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}

	require.NoError(t, fs.Rmdir(op, "/d"))
	_, err = fs.Mkdir(op, "/d", 0)
	require.NoError(t, err)
	require.NoError(t, fs.Rename(op, "/d", "/e"))
	_, err = fs.Mkdir(op, "/empty", 0)
	require.NoError(t, err)
	require.NoError(t, fs.Rename(op, "/e", "/empty"))
}

func TestControlDirectory(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	ctl := hooks.DefaultPath

	attr, err := fs.GetAttr(op, ctl)
	require.NoError(t, err)
	assert.True(t, attr.IsDir())

	entries, err := fs.ReadDir(op, ctl)
	require.NoError(t, err)
	assert.Equal(t, []string{"active", "chain", "ctl", "layers", "layers.json"}, names(entries))

	root, err := fs.ReadDir(op, "/")
	require.NoError(t, err)
	assert.NotContains(t, names(root), ".layers")

	_, err = fs.Write(op, ctl+"/ctl", 0, []byte("create dev\nswitch dev\n"))
	require.NoError(t, err)

	active, err := fs.ActiveLayer(op)
	require.NoError(t, err)
	assert.Equal(t, "dev", active.Name)

	var info hooks.LayerInfo
	data, err := fs.ReadFile(op, ctl+"/active")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, "dev", info.Name)

	attr, err = fs.GetAttr(op, ctl+"/active")
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), attr.Size)
	assert.Equal(t, uint32(0o644), attr.Mode)

	attr, err = fs.GetAttr(op, ctl+"/chain")
	require.NoError(t, err)
	assert.Equal(t, uint32(0o444), attr.Mode)

	_, err = fs.GetAttr(op, ctl+"/nope")
	assert.True(t, errors.Is(err, errors.ErrPathNotFound))

	assert.True(t, errors.Is(fs.Unlink(op, ctl+"/active"), errors.ErrInvalidPath))
	_, err = fs.Mkdir(op, ctl, 0)
	assert.True(t, errors.Is(err, errors.ErrInvalidPath))
	assert.True(t, errors.Is(fs.WriteFile(op, ctl+"/chain", []byte("x"), 0), errors.ErrInvalidPath))

	_, err = fs.Version(op, ctl+"/active")
	assert.True(t, errors.Is(err, errors.ErrInvalidPath))
}

func TestCustomControlPath(t *testing.T) {
	fs, op := newTestFS(t, Options{ControlPath: "/.meta"})
	assert.Equal(t, "/.meta", fs.ControlPath())

	_, err := fs.ReadFile(op, "/.meta/layers.json")
	require.NoError(t, err)

	mustWriteFile(t, fs, op, "/.layers", "ordinary file")
	assert.Equal(t, "ordinary file", mustRead(t, fs, op, "/.layers"))
}

func TestLayerAdministration(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	mustLayer(t, fs, op, "dev", "", false)
	mustLayer(t, fs, op, "feat", "dev", true)

	chain, err := fs.Chain(op)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "feat", chain[0].Name)
	assert.Equal(t, "base", chain[2].Name)

	chain, err = fs.Chain(pin(op, "dev"))
	require.NoError(t, err)
	assert.Len(t, chain, 2)

	_, err = fs.DeleteLayer(op, "dev")
	assert.True(t, errors.Is(err, errors.ErrLayerHasChildren))

	_, err = fs.DeleteLayer(op, "feat")
	assert.True(t, errors.Is(err, errors.ErrLayerIsActive))

	_, err = fs.SwitchLayer(op, "dev")
	require.NoError(t, err)
	deleted, err := fs.DeleteLayer(op, "feat")
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)

	_, err = fs.SwitchLayer(op, "feat")
	assert.True(t, errors.Is(err, errors.ErrLayerNotFound))

	all, err := fs.ListLayers(op, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = fs.CreateLayer(op, "dev", "")
	assert.True(t, errors.Is(err, errors.ErrAlreadyExists))
}

func TestStatfs(t *testing.T) {
	fs, op := newTestFS(t, Options{Capacity: 1 << 20})
	mustWriteFile(t, fs, op, "/f", "0123456789")

	st, err := fs.Statfs(op)
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<20), st.Capacity)
	assert.Equal(t, uint64(10), st.UsedBytes)
	assert.Equal(t, uint64(1<<20)-10, st.FreeBytes)
	assert.Equal(t, uint64(1), st.Layers)
	assert.Equal(t, uint64(metadata.MaxNameLen), st.MaxNameLen)
}

func TestTenantsAreIsolated(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	other := NewOpContext(context.Background(), "globex")
	_, err := fs.InitTenant(other)
	require.NoError(t, err)

	mustWriteFile(t, fs, op, "/secret", "acme only")

	_, err = fs.GetAttr(other, "/secret")
	assert.True(t, errors.Is(err, errors.ErrPathNotFound))

	_, err = fs.GetAttr(NewOpContext(context.Background(), "unknown"), "/")
	assert.True(t, errors.Is(err, errors.ErrAccessDenied))
}

func TestConcurrentWrites(t *testing.T) {
	fs, op := newTestFS(t, Options{})
	mustLayer(t, fs, op, "dev", "", true)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path := fmt.Sprintf("/file-%d", i)
			if err := fs.WriteFile(op, path, []byte(path), 0o644); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := fs.ReadDir(op, "/")
	require.NoError(t, err)
	assert.Len(t, entries, workers)
	for i := 0; i < workers; i++ {
		path := fmt.Sprintf("/file-%d", i)
		assert.Equal(t, path, mustRead(t, fs, op, path))
	}
}
