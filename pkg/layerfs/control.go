package layerfs

import (
	"context"
	"time"

	"github.com/marmos91/layerfs/internal/logger"
	"github.com/marmos91/layerfs/internal/telemetry"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

const (
	controlDirMode      = 0o555
	controlWritableMode = 0o644
	controlReadOnlyMode = 0o444
)

// controlAttr returns the attributes of the control directory or one of its
// files. Sizes are those of the current rendering.
func (fs *FileSystem) controlAttr(op *OpContext, name, path, file string) (*Attr, error) {
	ts := time.Now().UTC()
	if file == "" {
		return &Attr{
			Type:  metadata.TypeDirectory,
			Mode:  controlDirMode,
			Mtime: ts,
			Ctime: ts,
		}, nil
	}
	if !fs.hooks.Exists(file) {
		return nil, errors.NewNotFoundError(path, "control file")
	}

	var attr *Attr
	err := fs.controlRead(op, path, file, func(content []byte) {
		mode := uint32(controlReadOnlyMode)
		if fs.hooks.Writable(file) {
			mode = controlWritableMode
		}
		attr = &Attr{
			Type:  metadata.TypeRegular,
			Mode:  mode,
			Size:  uint64(len(content)),
			Mtime: ts,
			Ctime: ts,
		}
	})
	return attr, err
}

// controlRead renders file and hands its content to fn.
func (fs *FileSystem) controlRead(op *OpContext, path, file string, fn func(content []byte)) error {
	if file == "" {
		return errors.NewIsDirectoryError(path)
	}
	return fs.do(op, "control_read", path, func(ctx context.Context, tx metadata.Transaction) error {
		ctx, span := telemetry.StartHooksSpan(ctx, "read", file)
		defer span.End()

		content, err := fs.hooks.Read(ctx, tx, file)
		if err != nil {
			return err
		}
		fn(content)
		return nil
	})
}

// controlWrite executes a write to a control file. Writes change the layer
// tree, so they are never subject to a pinned layer check.
func (fs *FileSystem) controlWrite(op *OpContext, path, file string, data []byte) error {
	if file == "" {
		return errors.NewIsDirectoryError(path)
	}
	return fs.do(op, "control_write", path, func(ctx context.Context, tx metadata.Transaction) error {
		ctx, span := telemetry.StartHooksSpan(ctx, "write", file)
		defer span.End()

		if err := fs.hooks.Write(ctx, tx, file, data); err != nil {
			return err
		}
		logger.InfoCtx(ctx, "Control file written", logger.Path(path), logger.Size(uint64(len(data))))
		return fs.updateLiveLayers(ctx, tx)
	})
}

// controlList returns the entries of the control directory.
func (fs *FileSystem) controlList() []metadata.DirectoryEntry {
	files := fs.hooks.Files()
	entries := make([]metadata.DirectoryEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, metadata.DirectoryEntry{Name: f, Type: metadata.TypeRegular})
	}
	return entries
}
