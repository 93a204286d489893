package layerfs

import (
	"context"
	"time"

	"github.com/marmos91/layerfs/pkg/metadata"
)

// OpContext identifies the caller of a FileSystem operation.
type OpContext struct {
	// Context carries cancellation, deadlines and tracing. Nil means
	// context.Background().
	Context context.Context

	// Tenant scopes every record. Empty means metadata.DefaultTenant.
	Tenant string

	// Layer optionally pins the call to a layer (ID or name). Reads resolve
	// against it; writes fail with a retryable LayerChanged error when it is
	// not the active layer.
	Layer string

	UID uint32
	GID uint32
}

// NewOpContext creates an OpContext for tenant.
func NewOpContext(ctx context.Context, tenant string) *OpContext {
	return &OpContext{Context: ctx, Tenant: tenant}
}

func (op *OpContext) context() context.Context {
	if op == nil || op.Context == nil {
		return context.Background()
	}
	return op.Context
}

func (op *OpContext) tenant() string {
	if op == nil || op.Tenant == "" {
		return metadata.DefaultTenant
	}
	return op.Tenant
}

func (op *OpContext) pinned() string {
	if op == nil {
		return ""
	}
	return op.Layer
}

// Attr is the attributes of a path as seen by the caller.
type Attr struct {
	InodeID    string             `json:"inode_id"`
	Type       metadata.InodeType `json:"type"`
	Mode       uint32             `json:"mode"`
	UID        uint32             `json:"uid"`
	GID        uint32             `json:"gid"`
	Size       uint64             `json:"size"`
	Mtime      time.Time          `json:"mtime"`
	Ctime      time.Time          `json:"ctime"`
	LinkTarget string             `json:"link_target,omitempty"`

	// LayerID and State describe the version that defines the attributes.
	// Control files have neither.
	LayerID string              `json:"layer_id,omitempty"`
	State   metadata.InodeState `json:"state"`
}

// IsDir reports whether the path is a directory.
func (a *Attr) IsDir() bool {
	return a.Type == metadata.TypeDirectory
}

// SetAttrRequest lists the attributes to change. Nil fields are left alone.
type SetAttrRequest struct {
	Mode  *uint32
	UID   *uint32
	GID   *uint32
	Size  *uint64
	Mtime *time.Time
}

// StatFS is a filesystem usage summary for one tenant.
type StatFS struct {
	// Capacity is the configured size; zero means unbounded.
	Capacity   uint64 `json:"capacity"`
	UsedBytes  uint64 `json:"used_bytes"`
	FreeBytes  uint64 `json:"free_bytes"`
	Blocks     uint64 `json:"blocks"`
	Inodes     uint64 `json:"inodes"`
	Layers     uint64 `json:"layers"`
	MaxNameLen uint64 `json:"max_name_len"`
}

func attrOf(inode *metadata.Inode) *Attr {
	return &Attr{
		InodeID:    inode.ID,
		Type:       inode.Type,
		Mode:       inode.Mode,
		UID:        inode.UID,
		GID:        inode.GID,
		Size:       inode.Size,
		Mtime:      inode.Mtime,
		Ctime:      inode.Ctime,
		LinkTarget: inode.LinkTarget,
		LayerID:    inode.LayerID,
		State:      inode.State,
	}
}
