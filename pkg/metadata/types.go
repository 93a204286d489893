package metadata

import (
	"time"

	"github.com/google/uuid"
)

// RootInodeID is the logical identity of the root directory. It is the same in
// every layer and every tenant, so the root needs no lookup.
var RootInodeID = uuid.Nil.String()

// NewID returns a fresh identifier for a layer or an inode.
func NewID() string {
	return uuid.NewString()
}

// ============================================================================
// Tenant
// ============================================================================

// Tenant scopes every record. Repositories reject access to unknown tenants.
type Tenant struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// ============================================================================
// Layer
// ============================================================================

// Layer is one node of a tenant's layer tree.
//
// Layers form an arena indexed by ID: the chain of a layer is found by
// following ParentID until the root (ParentID == ""). Parents never change
// after creation, so a chain is immutable for the lifetime of a layer.
type Layer struct {
	ID       string `json:"id"`
	Tenant   string `json:"tenant"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`

	// Seq is the creation order within the tenant.
	Seq uint64 `json:"seq"`

	CreatedAt time.Time `json:"created_at"`

	// Active marks the one live layer that receives writes.
	Active bool `json:"active"`

	// Deleted is terminal. Deleted layers keep their record so IDs are never
	// reused, but their names become available again.
	Deleted bool `json:"deleted"`
}

// IsRoot reports whether the layer has no parent.
func (l *Layer) IsRoot() bool {
	return l.ParentID == ""
}

// Clone returns a copy of the layer.
func (l *Layer) Clone() *Layer {
	c := *l
	return &c
}

// ============================================================================
// Inode
// ============================================================================

// InodeType is the kind of filesystem object.
type InodeType int

const (
	TypeRegular InodeType = iota + 1
	TypeDirectory
	TypeSymlink
)

// String returns the type name.
func (t InodeType) String() string {
	switch t {
	case TypeRegular:
		return "file"
	case TypeDirectory:
		return "dir"
	case TypeSymlink:
		return "symlink"
	default:
		return "unknown"
	}
}

// InodeState is how a layer holds its version of an inode.
type InodeState int

const (
	// StateUnmodified is never stored: it is the absence of a record.
	StateUnmodified InodeState = iota

	// StateMaterialized means the full content is owned by the layer.
	StateMaterialized

	// StateDiffed means the content is TextChanges over an ancestor version.
	StateDiffed

	// StateDeleted hides every ancestor version of the inode.
	StateDeleted
)

// String returns the state name.
func (s InodeState) String() string {
	switch s {
	case StateUnmodified:
		return "unmodified"
	case StateMaterialized:
		return "materialized"
	case StateDiffed:
		return "diffed"
	case StateDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Inode is the version of one logical filesystem object owned by one layer.
// The key is (Tenant, LayerID, ID).
type Inode struct {
	Tenant  string     `json:"tenant"`
	LayerID string     `json:"layer_id"`
	ID      string     `json:"id"`
	Type    InodeType  `json:"type"`
	State   InodeState `json:"state"`

	Mode  uint32    `json:"mode"`
	UID   uint32    `json:"uid"`
	GID   uint32    `json:"gid"`
	Size  uint64    `json:"size"`
	Mtime time.Time `json:"mtime"`
	Ctime time.Time `json:"ctime"`

	// ContentRef is the block holding the content (materialized) or the
	// encoded TextChanges (diffed). Empty for empty files and directories.
	ContentRef string `json:"content_ref,omitempty"`

	// BaseLayerID and BaseDigest identify the version a diff was computed
	// against. Set only when State is StateDiffed.
	BaseLayerID string `json:"base_layer_id,omitempty"`
	BaseDigest  string `json:"base_digest,omitempty"`

	// Encoding and LineEnding are the detected text properties, informational
	// for materialized files.
	Encoding   string `json:"encoding,omitempty"`
	LineEnding string `json:"line_ending,omitempty"`

	LinkTarget string `json:"link_target,omitempty"`
}

// Clone returns a copy of the inode.
func (i *Inode) Clone() *Inode {
	c := *i
	return &c
}

// IsDir reports whether the inode is a directory.
func (i *Inode) IsDir() bool {
	return i.Type == TypeDirectory
}

// ============================================================================
// Directory entries
// ============================================================================

// Entry is one name in a directory, as recorded by one layer. A layer's
// entries for a directory are deltas over its ancestors: a live entry adds or
// replaces a name, a tombstone hides it.
type Entry struct {
	Tenant    string    `json:"tenant"`
	LayerID   string    `json:"layer_id"`
	DirID     string    `json:"dir_id"`
	Name      string    `json:"name"`
	ChildID   string    `json:"child_id,omitempty"`
	Type      InodeType `json:"type,omitempty"`
	Tombstone bool      `json:"tombstone,omitempty"`
}

// Clone returns a copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}

// DirectoryEntry is one name of a merged listing.
type DirectoryEntry struct {
	Name    string    `json:"name"`
	Type    InodeType `json:"type"`
	InodeID string    `json:"inode_id"`

	// LayerID is the layer that owns the authoritative version of the inode.
	LayerID string `json:"layer_id"`
}

// FileVersion is the state of a logical file as seen from one layer.
type FileVersion struct {
	InodeID string     `json:"inode_id"`
	LayerID string     `json:"layer_id"`
	State   InodeState `json:"state"`

	// Inode is the record that defines the version. Nil when unmodified.
	Inode *Inode `json:"-"`
}

// ============================================================================
// Usage
// ============================================================================

// Usage is a per-tenant storage summary used by statfs.
type Usage struct {
	Blocks     uint64
	BlockBytes uint64
	Inodes     uint64
	Layers     uint64
}
