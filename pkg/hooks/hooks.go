// Package hooks implements the control directory, a reserved directory of
// virtual files that expose and change the layer tree from inside the
// filesystem:
//
//	/.layers/active       JSON of the active layer; write a layer name or ID to switch
//	/.layers/chain        JSON array of the active chain, active layer first
//	/.layers/layers       table of live layers
//	/.layers/layers.json  JSON array of live layers
//	/.layers/ctl          write "create <name> [parent]", "switch <ref>" or "delete <ref>"
//
// Control files are never stored and never copied on write.
package hooks

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/marmos91/layerfs/internal/cli/output"
	"github.com/marmos91/layerfs/internal/logger"
	"github.com/marmos91/layerfs/pkg/layer"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
)

// DefaultPath is the default location of the control directory.
const DefaultPath = "/.layers"

// Control file names.
const (
	FileActive     = "active"
	FileChain      = "chain"
	FileLayers     = "layers"
	FileLayersJSON = "layers.json"
	FileCtl        = "ctl"
)

const ctlUsage = `usage:
  create <name> [parent]
  switch <layer>
  delete <layer>
`

// Handler serves the control directory.
type Handler struct {
	path   string
	name   string
	layers *layer.Manager
}

// New creates a Handler for the control directory at path, which must be a
// single component below the root.
func New(path string, layers *layer.Manager) (*Handler, error) {
	if path == "" {
		path = DefaultPath
	}
	parts, err := metadata.Limits{}.SplitPath(path)
	if err != nil {
		return nil, err
	}
	if len(parts) != 1 {
		return nil, fmt.Errorf("control path %q must be a single directory below the root", path)
	}
	return &Handler{path: metadata.JoinPath(parts), name: parts[0], layers: layers}, nil
}

// Path returns the control directory path.
func (h *Handler) Path() string {
	return h.path
}

// Name returns the name of the control directory in the root.
func (h *Handler) Name() string {
	return h.name
}

// Match reports whether parts (validated path components) fall under the
// control directory. file is empty for the directory itself.
func (h *Handler) Match(parts []string) (file string, ok bool) {
	if len(parts) == 0 || parts[0] != h.name {
		return "", false
	}
	return strings.Join(parts[1:], "/"), true
}

// Files returns the control file names in listing order.
func (h *Handler) Files() []string {
	files := []string{FileActive, FileChain, FileCtl, FileLayers, FileLayersJSON}
	sort.Strings(files)
	return files
}

// Exists reports whether file is a control file.
func (h *Handler) Exists(file string) bool {
	switch file {
	case FileActive, FileChain, FileLayers, FileLayersJSON, FileCtl:
		return true
	}
	return false
}

// Writable reports whether file accepts writes.
func (h *Handler) Writable(file string) bool {
	return file == FileActive || file == FileCtl
}

// Read renders the content of a control file.
func (h *Handler) Read(ctx context.Context, tx metadata.Transaction, file string) ([]byte, error) {
	var buf bytes.Buffer

	switch file {
	case FileActive:
		active, err := h.layers.Active(ctx, tx)
		if err != nil {
			return nil, err
		}
		if err := output.PrintJSON(&buf, NewLayerInfo(active, nil)); err != nil {
			return nil, err
		}

	case FileChain:
		active, err := h.layers.Active(ctx, tx)
		if err != nil {
			return nil, err
		}
		chain, err := h.layers.ChainOf(ctx, tx, active.ID)
		if err != nil {
			return nil, err
		}
		layers, err := h.layers.Layers(ctx, tx, chain)
		if err != nil {
			return nil, err
		}
		if err := output.PrintJSON(&buf, NewLayerTable(layers)); err != nil {
			return nil, err
		}

	case FileLayers, FileLayersJSON:
		layers, err := h.layers.List(ctx, tx, false)
		if err != nil {
			return nil, err
		}
		table := NewLayerTable(layers)
		if file == FileLayers {
			err = output.PrintTable(&buf, table)
		} else {
			err = output.PrintJSON(&buf, table)
		}
		if err != nil {
			return nil, err
		}

	case FileCtl:
		buf.WriteString(ctlUsage)

	default:
		return nil, errors.NewNotFoundError(h.path+"/"+file, "control file")
	}

	return buf.Bytes(), nil
}

// Write executes a write to a control file.
func (h *Handler) Write(ctx context.Context, tx metadata.Transaction, file string, data []byte) error {
	switch file {
	case FileActive:
		ref := strings.TrimSpace(string(data))
		if ref == "" {
			return errors.NewInvalidPathError(h.path+"/"+file, "empty layer reference")
		}
		_, err := h.layers.Switch(ctx, tx, ref)
		return err

	case FileCtl:
		lines := strings.Split(string(data), "\n")
		ran := 0
		for _, line := range lines {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			if err := h.exec(ctx, tx, fields); err != nil {
				return err
			}
			ran++
		}
		if ran == 0 {
			return errors.NewInvalidPathError(h.path+"/"+file, "empty command")
		}
		return nil

	default:
		if h.Exists(file) {
			return errors.NewInvalidPathError(h.path+"/"+file, "control file is read-only")
		}
		return errors.NewNotFoundError(h.path+"/"+file, "control file")
	}
}

func (h *Handler) exec(ctx context.Context, tx metadata.Transaction, fields []string) error {
	cmd, args := fields[0], fields[1:]
	logger.DebugCtx(ctx, "Control command", logger.Operation(cmd), logger.Count(len(args)))

	var err error
	switch {
	case cmd == "create" && (len(args) == 1 || len(args) == 2):
		parent := ""
		if len(args) == 2 {
			parent = args[1]
		}
		_, err = h.layers.Create(ctx, tx, args[0], parent)
	case cmd == "switch" && len(args) == 1:
		_, err = h.layers.Switch(ctx, tx, args[0])
	case cmd == "delete" && len(args) == 1:
		_, err = h.layers.Delete(ctx, tx, args[0])
	default:
		return errors.NewInvalidPathError(h.path+"/"+FileCtl, fmt.Sprintf("unrecognized command %q", strings.Join(fields, " ")))
	}
	return err
}
