package layerfs

import (
	"strings"
	"time"

	"github.com/marmos91/layerfs/pkg/cow"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
	"github.com/marmos91/layerfs/pkg/union"
)

// GetAttr returns the attributes of path.
func (fs *FileSystem) GetAttr(op *OpContext, path string) (*Attr, error) {
	parts, err := fs.opts.Limits.SplitPath(path)
	if err != nil {
		return nil, err
	}
	if file, ok := fs.hooks.Match(parts); ok {
		return fs.controlAttr(op, "getattr", path, file)
	}

	var attr *Attr
	err = fs.run(op, "getattr", path, false, func(c *call) error {
		res, err := fs.view.ResolveParts(c.ctx, c.tx, c.chain, parts)
		if err != nil {
			return err
		}
		attr = attrOf(res.Inode())
		return nil
	})
	return attr, err
}

// Lookup returns the attributes of name in directory dir.
func (fs *FileSystem) Lookup(op *OpContext, dir, name string) (*Attr, error) {
	if err := fs.opts.Limits.ValidateName(name); err != nil {
		return nil, err
	}
	return fs.GetAttr(op, strings.TrimSuffix(dir, "/")+"/"+name)
}

// Version reports which layer defines path and in which state.
func (fs *FileSystem) Version(op *OpContext, path string) (*metadata.FileVersion, error) {
	parts, err := fs.opts.Limits.SplitPath(path)
	if err != nil {
		return nil, err
	}
	if _, ok := fs.hooks.Match(parts); ok {
		return nil, errors.NewInvalidPathError(path, "control files have no versions")
	}

	var version *metadata.FileVersion
	err = fs.run(op, "version", path, false, func(c *call) error {
		res, err := fs.view.ResolveParts(c.ctx, c.tx, c.chain, parts)
		if err != nil {
			return err
		}
		version = res.Version
		return nil
	})
	return version, err
}

// Read returns up to size bytes of path starting at offset. A read at or past
// the end of the file returns no data.
func (fs *FileSystem) Read(op *OpContext, path string, offset int64, size int) ([]byte, error) {
	parts, err := fs.opts.Limits.SplitPath(path)
	if err != nil {
		return nil, err
	}
	if offset < 0 || size < 0 {
		return nil, errors.NewInvalidPathError(path, "negative offset or size")
	}

	if file, ok := fs.hooks.Match(parts); ok {
		var data []byte
		err := fs.controlRead(op, path, file, func(content []byte) {
			data = window(content, offset, size)
		})
		return data, err
	}

	var data []byte
	err = fs.run(op, "read", path, false, func(c *call) error {
		res, err := fs.view.ResolveParts(c.ctx, c.tx, c.chain, parts)
		if err != nil {
			return err
		}
		if err := regular(res); err != nil {
			return err
		}
		content, err := fs.view.Content(c.ctx, c.tx, res.Version)
		if err != nil {
			return err
		}
		data = window(content, offset, size)
		return nil
	})
	return data, err
}

// ReadFile returns the whole content of path.
func (fs *FileSystem) ReadFile(op *OpContext, path string) ([]byte, error) {
	parts, err := fs.opts.Limits.SplitPath(path)
	if err != nil {
		return nil, err
	}
	if file, ok := fs.hooks.Match(parts); ok {
		var data []byte
		err := fs.controlRead(op, path, file, func(content []byte) { data = content })
		return data, err
	}

	var data []byte
	err = fs.run(op, "read", path, false, func(c *call) error {
		res, err := fs.view.ResolveParts(c.ctx, c.tx, c.chain, parts)
		if err != nil {
			return err
		}
		if err := regular(res); err != nil {
			return err
		}
		data, err = fs.view.Content(c.ctx, c.tx, res.Version)
		return err
	})
	return data, err
}

// Write writes data to path at offset, extending the file with zeros if
// offset is past its end. It returns the number of bytes written.
func (fs *FileSystem) Write(op *OpContext, path string, offset int64, data []byte) (int, error) {
	parts, err := fs.opts.Limits.SplitPath(path)
	if err != nil {
		return 0, err
	}
	if offset < 0 {
		return 0, errors.NewInvalidPathError(path, "negative offset")
	}
	if file, ok := fs.hooks.Match(parts); ok {
		if err := fs.controlWrite(op, path, file, data); err != nil {
			return 0, err
		}
		return len(data), nil
	}
	if err := fs.cow.CheckSize(path, uint64(offset)+uint64(len(data))); err != nil {
		return 0, err
	}

	err = fs.run(op, "write", path, true, func(c *call) error {
		res, err := fs.view.ResolveParts(c.ctx, c.tx, c.chain, parts)
		if err != nil {
			return err
		}
		if err := regular(res); err != nil {
			return err
		}
		_, err = fs.cow.Apply(c.ctx, c.tx, c.chain, res.Version, cow.Mutation{
			Content: func(cur []byte) ([]byte, error) {
				return writeAt(cur, offset, data), nil
			},
		})
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(data), nil
}

// WriteFile replaces the content of path, creating the file if needed.
func (fs *FileSystem) WriteFile(op *OpContext, path string, data []byte, mode uint32) error {
	dirParts, name, err := fs.opts.Limits.SplitParent(path)
	if err != nil {
		return err
	}
	if file, ok := fs.hooks.Match(append(dirParts, name)); ok {
		return fs.controlWrite(op, path, file, data)
	}
	if err := fs.cow.CheckSize(path, uint64(len(data))); err != nil {
		return err
	}

	return fs.run(op, "writefile", path, true, func(c *call) error {
		res, err := fs.view.ResolveParts(c.ctx, c.tx, c.chain, append(dirParts, name))
		switch {
		case err == nil:
			if err := regular(res); err != nil {
				return err
			}
			_, err = fs.cow.Apply(c.ctx, c.tx, c.chain, res.Version, cow.Mutation{
				Content: func([]byte) ([]byte, error) { return data, nil },
			})
			return err
		case !errors.Is(err, errors.ErrPathNotFound):
			return err
		}

		inode, err := fs.createNode(c, op, dirParts, name, path, metadata.TypeRegular, mode, "")
		if err != nil {
			return err
		}
		version := &metadata.FileVersion{InodeID: inode.ID, LayerID: c.activeID(), State: inode.State, Inode: inode}
		_, err = fs.cow.Apply(c.ctx, c.tx, c.chain, version, cow.Mutation{
			Content: func([]byte) ([]byte, error) { return data, nil },
		})
		return err
	})
}

// Create creates an empty regular file.
func (fs *FileSystem) Create(op *OpContext, path string, mode uint32) (*Attr, error) {
	return fs.create(op, "create", path, metadata.TypeRegular, mode, "")
}

// Mkdir creates a directory.
func (fs *FileSystem) Mkdir(op *OpContext, path string, mode uint32) (*Attr, error) {
	return fs.create(op, "mkdir", path, metadata.TypeDirectory, mode, "")
}

// Symlink creates a symbolic link at linkPath pointing to target. The target
// is stored verbatim and never resolved.
func (fs *FileSystem) Symlink(op *OpContext, target, linkPath string) (*Attr, error) {
	if target == "" || strings.ContainsRune(target, 0) {
		return nil, errors.NewInvalidPathError(target, "invalid symlink target")
	}
	if len(target) > metadata.MaxPathLen {
		return nil, errors.NewPathTooLongError(target)
	}
	return fs.create(op, "symlink", linkPath, metadata.TypeSymlink, 0, target)
}

// Readlink returns the target of the symlink at path.
func (fs *FileSystem) Readlink(op *OpContext, path string) (string, error) {
	parts, err := fs.opts.Limits.SplitPath(path)
	if err != nil {
		return "", err
	}
	if _, ok := fs.hooks.Match(parts); ok {
		return "", errors.NewInvalidPathError(path, "not a symlink")
	}

	var target string
	err = fs.run(op, "readlink", path, false, func(c *call) error {
		res, err := fs.view.ResolveParts(c.ctx, c.tx, c.chain, parts)
		if err != nil {
			return err
		}
		if res.Inode().Type != metadata.TypeSymlink {
			return errors.NewInvalidPathError(path, "not a symlink")
		}
		target = res.Inode().LinkTarget
		return nil
	})
	return target, err
}

func (fs *FileSystem) create(op *OpContext, name, path string, typ metadata.InodeType, mode uint32, target string) (*Attr, error) {
	dirParts, base, err := fs.opts.Limits.SplitParent(path)
	if err != nil {
		return nil, err
	}
	if file, ok := fs.hooks.Match(append(dirParts, base)); ok {
		if file != "" && fs.hooks.Exists(file) {
			return nil, errors.NewAlreadyExistsError(path)
		}
		return nil, errors.NewInvalidPathError(path, "control directory is read-only")
	}

	var attr *Attr
	err = fs.run(op, name, path, true, func(c *call) error {
		inode, err := fs.createNode(c, op, dirParts, base, path, typ, mode, target)
		if err != nil {
			return err
		}
		attr = attrOf(inode)
		return nil
	})
	return attr, err
}

// createNode adds a new inode named name under dirParts in the active layer.
func (fs *FileSystem) createNode(c *call, op *OpContext, dirParts []string, name, path string, typ metadata.InodeType, mode uint32, target string) (*metadata.Inode, error) {
	parent, err := fs.resolveDir(c, dirParts)
	if err != nil {
		return nil, err
	}

	exists, err := fs.view.Visible(c.ctx, c.tx, c.chain, parent.Inode().ID, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, errors.NewAlreadyExistsError(path)
	}

	ts := now()
	inode := &metadata.Inode{
		LayerID:    c.activeID(),
		ID:         metadata.NewID(),
		Type:       typ,
		State:      metadata.StateMaterialized,
		Mode:       metadata.ApplyModeDefault(mode, typ),
		UID:        uidOf(op),
		GID:        gidOf(op),
		Mtime:      ts,
		Ctime:      ts,
		LinkTarget: target,
	}
	if typ == metadata.TypeSymlink {
		inode.Size = uint64(len(target))
	}

	if err := c.tx.PutInode(c.ctx, inode); err != nil {
		return nil, err
	}
	if err := fs.cow.Link(c.ctx, c.tx, c.activeID(), parent.Inode().ID, name, inode); err != nil {
		return nil, err
	}
	if err := fs.touchDir(c, parent.Inode().ID); err != nil {
		return nil, err
	}
	return inode, nil
}

// SetAttr changes attributes of path. Changing the size truncates or
// zero-extends a regular file.
func (fs *FileSystem) SetAttr(op *OpContext, path string, req SetAttrRequest) (*Attr, error) {
	parts, err := fs.opts.Limits.SplitPath(path)
	if err != nil {
		return nil, err
	}
	if file, ok := fs.hooks.Match(parts); ok {
		return fs.controlAttr(op, "setattr", path, file)
	}
	if req.Size != nil {
		if err := fs.cow.CheckSize(path, *req.Size); err != nil {
			return nil, err
		}
	}

	var attr *Attr
	err = fs.run(op, "setattr", path, true, func(c *call) error {
		res, err := fs.view.ResolveParts(c.ctx, c.tx, c.chain, parts)
		if err != nil {
			return err
		}

		mut := cow.Mutation{Attr: func(in *metadata.Inode) {
			if req.Mode != nil {
				in.Mode = *req.Mode & 0o7777
			}
			if req.UID != nil {
				in.UID = *req.UID
			}
			if req.GID != nil {
				in.GID = *req.GID
			}
			if req.Mtime != nil {
				in.Mtime = req.Mtime.UTC().Truncate(time.Microsecond)
			}
		}}
		if req.Size != nil {
			if err := regular(res); err != nil {
				return err
			}
			size := *req.Size
			mut.Content = func(cur []byte) ([]byte, error) {
				return truncate(cur, size), nil
			}
		}

		out, err := fs.cow.Apply(c.ctx, c.tx, c.chain, res.Version, mut)
		if err != nil {
			return err
		}
		attr = attrOf(out.Inode)
		return nil
	})
	return attr, err
}

// Unlink removes a file or symlink.
func (fs *FileSystem) Unlink(op *OpContext, path string) error {
	parts, err := fs.opts.Limits.SplitPath(path)
	if err != nil {
		return err
	}
	if _, ok := fs.hooks.Match(parts); ok {
		return errors.NewInvalidPathError(path, "control directory is read-only")
	}
	if len(parts) == 0 {
		return errors.NewIsDirectoryError(path)
	}

	return fs.run(op, "unlink", path, true, func(c *call) error {
		res, err := fs.view.ResolveParts(c.ctx, c.tx, c.chain, parts)
		if err != nil {
			return err
		}
		if res.Inode().IsDir() {
			return errors.NewIsDirectoryError(path)
		}
		return fs.removeEntry(c, res)
	})
}

// Rmdir removes an empty directory.
func (fs *FileSystem) Rmdir(op *OpContext, path string) error {
	parts, err := fs.opts.Limits.SplitPath(path)
	if err != nil {
		return err
	}
	if _, ok := fs.hooks.Match(parts); ok {
		return errors.NewInvalidPathError(path, "control directory is read-only")
	}
	if len(parts) == 0 {
		return errors.NewInvalidPathError(path, "cannot remove the root directory")
	}

	return fs.run(op, "rmdir", path, true, func(c *call) error {
		res, err := fs.view.ResolveParts(c.ctx, c.tx, c.chain, parts)
		if err != nil {
			return err
		}
		if !res.Inode().IsDir() {
			return errors.NewNotDirectoryError(path)
		}
		children, err := fs.view.ListDir(c.ctx, c.tx, c.chain, res.Inode().ID)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return errors.NewNotEmptyError(path)
		}
		return fs.removeEntry(c, res)
	})
}

// removeEntry unlinks a resolved name and removes its inode.
func (fs *FileSystem) removeEntry(c *call, res *union.Resolved) error {
	if err := fs.cow.PinEntries(c.ctx, c.tx, c.chain, res.DirID, res.Name); err != nil {
		return err
	}
	if err := fs.cow.Unlink(c.ctx, c.tx, c.chain, res.DirID, res.Name); err != nil {
		return err
	}
	if err := fs.cow.Remove(c.ctx, c.tx, c.chain, res.Inode().ID); err != nil {
		return err
	}
	return fs.touchDir(c, res.DirID)
}

// Rename moves from to to. An existing destination is replaced when it is a
// file and the source is not a directory, or when both are directories and
// the destination is empty.
func (fs *FileSystem) Rename(op *OpContext, from, to string) error {
	fromParts, err := fs.opts.Limits.SplitPath(from)
	if err != nil {
		return err
	}
	toDir, toName, err := fs.opts.Limits.SplitParent(to)
	if err != nil {
		return err
	}
	toParts := append(append([]string{}, toDir...), toName)

	_, fromCtl := fs.hooks.Match(fromParts)
	_, toCtl := fs.hooks.Match(toParts)
	if fromCtl || toCtl {
		return errors.NewInvalidPathError(from, "control directory is read-only")
	}
	if len(fromParts) == 0 {
		return errors.NewInvalidPathError(from, "cannot rename the root directory")
	}
	if len(toParts) > len(fromParts) && hasPrefix(toParts, fromParts) {
		return errors.NewInvalidPathError(to, "cannot move a directory into itself")
	}

	return fs.run(op, "rename", from, true, func(c *call) error {
		src, err := fs.view.ResolveParts(c.ctx, c.tx, c.chain, fromParts)
		if err != nil {
			return err
		}
		if hasPrefix(toParts, fromParts) {
			return nil
		}

		dstDir, err := fs.resolveDir(c, toDir)
		if err != nil {
			return err
		}
		dirID := dstDir.Inode().ID

		if entry, err := fs.view.Lookup(c.ctx, c.tx, c.chain, dirID, toName); err == nil {
			if entry.ChildID == src.Inode().ID {
				return nil
			}
			dst, err := fs.view.ResolveParts(c.ctx, c.tx, c.chain, toParts)
			if err != nil {
				return err
			}
			if err := replaceable(src, dst, to); err != nil {
				return err
			}
			if dst.Inode().IsDir() {
				children, err := fs.view.ListDir(c.ctx, c.tx, c.chain, dst.Inode().ID)
				if err != nil {
					return err
				}
				if len(children) > 0 {
					return errors.NewNotEmptyError(to)
				}
			}
			if err := fs.cow.PinEntries(c.ctx, c.tx, c.chain, dirID, toName); err != nil {
				return err
			}
			if err := fs.cow.Remove(c.ctx, c.tx, c.chain, dst.Inode().ID); err != nil {
				return err
			}
		} else if !errors.Is(err, errors.ErrPathNotFound) {
			return err
		}

		if err := fs.cow.Unlink(c.ctx, c.tx, c.chain, src.DirID, src.Name); err != nil {
			return err
		}
		if err := fs.cow.Link(c.ctx, c.tx, c.activeID(), dirID, toName, src.Inode()); err != nil {
			return err
		}

		if err := fs.touchDir(c, src.DirID); err != nil {
			return err
		}
		if dirID != src.DirID {
			return fs.touchDir(c, dirID)
		}
		return nil
	})
}

// ReadDir lists the directory at path.
func (fs *FileSystem) ReadDir(op *OpContext, path string) ([]metadata.DirectoryEntry, error) {
	parts, err := fs.opts.Limits.SplitPath(path)
	if err != nil {
		return nil, err
	}
	if file, ok := fs.hooks.Match(parts); ok {
		if file != "" {
			return nil, errors.NewNotDirectoryError(path)
		}
		return fs.controlList(), nil
	}

	var entries []metadata.DirectoryEntry
	err = fs.run(op, "readdir", path, false, func(c *call) error {
		res, err := fs.view.ResolveParts(c.ctx, c.tx, c.chain, parts)
		if err != nil {
			return err
		}
		if !res.Inode().IsDir() {
			return errors.NewNotDirectoryError(path)
		}
		entries, err = fs.view.ListDir(c.ctx, c.tx, c.chain, res.Inode().ID)
		return err
	})
	return entries, err
}

// Statfs reports storage usage for the caller's tenant.
func (fs *FileSystem) Statfs(op *OpContext) (*StatFS, error) {
	var st *StatFS
	err := fs.run(op, "statfs", "/", false, func(c *call) error {
		usage, err := c.tx.Usage(c.ctx)
		if err != nil {
			return err
		}
		st = &StatFS{
			Capacity:   fs.opts.Capacity,
			UsedBytes:  usage.BlockBytes,
			Blocks:     usage.Blocks,
			Inodes:     usage.Inodes,
			Layers:     usage.Layers,
			MaxNameLen: uint64(fs.maxNameLen()),
		}
		if st.Capacity > st.UsedBytes {
			st.FreeBytes = st.Capacity - st.UsedBytes
		}
		return nil
	})
	return st, err
}

// resolveDir resolves dirParts and requires a directory.
func (fs *FileSystem) resolveDir(c *call, dirParts []string) (*union.Resolved, error) {
	res, err := fs.view.ResolveParts(c.ctx, c.tx, c.chain, dirParts)
	if err != nil {
		return nil, err
	}
	if !res.Inode().IsDir() {
		return nil, errors.NewNotDirectoryError(metadata.JoinPath(dirParts))
	}
	return res, nil
}

// touchDir updates the mtime of directory dirID in the active layer.
func (fs *FileSystem) touchDir(c *call, dirID string) error {
	version, err := fs.view.Version(c.ctx, c.tx, c.chain, dirID)
	if err != nil {
		return err
	}
	ts := now()
	_, err = fs.cow.EnsureDir(c.ctx, c.tx, c.activeID(), version, func(in *metadata.Inode) {
		in.Mtime = ts
		in.Ctime = ts
	})
	return err
}

func (fs *FileSystem) maxNameLen() int {
	if fs.opts.Limits.MaxNameLen > 0 {
		return fs.opts.Limits.MaxNameLen
	}
	return metadata.MaxNameLen
}

// replaceable checks that dst may be overwritten by src.
func replaceable(src, dst *union.Resolved, path string) error {
	srcDir, dstDir := src.Inode().IsDir(), dst.Inode().IsDir()
	switch {
	case srcDir && !dstDir:
		return errors.NewNotDirectoryError(path)
	case !srcDir && dstDir:
		return errors.NewIsDirectoryError(path)
	}
	return nil
}

func regular(res *union.Resolved) error {
	switch res.Inode().Type {
	case metadata.TypeDirectory:
		return errors.NewIsDirectoryError(res.Path)
	case metadata.TypeSymlink:
		return errors.NewInvalidPathError(res.Path, "is a symlink")
	}
	return nil
}

func hasPrefix(parts, prefix []string) bool {
	if len(prefix) > len(parts) {
		return false
	}
	for i := range prefix {
		if parts[i] != prefix[i] {
			return false
		}
	}
	return true
}

// window returns content[offset:offset+size], clipped to the content.
func window(content []byte, offset int64, size int) []byte {
	if offset >= int64(len(content)) {
		return []byte{}
	}
	n := int64(len(content)) - offset
	if int64(size) < n {
		n = int64(size)
	}
	out := make([]byte, n)
	copy(out, content[offset:offset+n])
	return out
}

// writeAt returns cur with data written at offset. The caller bounds
// offset+len(data) with CheckSize.
func writeAt(cur []byte, offset int64, data []byte) []byte {
	end := offset + int64(len(data))
	size := int64(len(cur))
	if end > size {
		size = end
	}
	out := make([]byte, size)
	copy(out, cur)
	copy(out[offset:], data)
	return out
}

// truncate returns cur cut or zero-extended to size.
func truncate(cur []byte, size uint64) []byte {
	out := make([]byte, size)
	copy(out, cur)
	return out
}
