package relational

import (
	"time"

	"github.com/marmos91/layerfs/pkg/metadata"
)

// allModels returns all GORM models for auto-migration.
func allModels() []any {
	return []any{
		&tenantModel{},
		&layerModel{},
		&inodeModel{},
		&entryModel{},
		&blockModel{},
	}
}

// tenantModel is a registered tenant.
type tenantModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for tenantModel.
func (tenantModel) TableName() string {
	return "tenants"
}

// layerModel is one layer of a tenant's tree.
type layerModel struct {
	Tenant    string    `gorm:"primaryKey;size:64"`
	ID        string    `gorm:"primaryKey;size:36"`
	Name      string    `gorm:"size:255;not null"`
	ParentID  string    `gorm:"size:36"`
	Seq       uint64    `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
	Active    bool      `gorm:"not null"`
	Deleted   bool      `gorm:"not null"`
}

// TableName returns the table name for layerModel.
func (layerModel) TableName() string {
	return "layers"
}

func layerToModel(l *metadata.Layer) *layerModel {
	return &layerModel{
		Tenant:    l.Tenant,
		ID:        l.ID,
		Name:      l.Name,
		ParentID:  l.ParentID,
		Seq:       l.Seq,
		CreatedAt: l.CreatedAt,
		Active:    l.Active,
		Deleted:   l.Deleted,
	}
}

func (m *layerModel) toLayer() *metadata.Layer {
	return &metadata.Layer{
		ID:        m.ID,
		Tenant:    m.Tenant,
		Name:      m.Name,
		ParentID:  m.ParentID,
		Seq:       m.Seq,
		CreatedAt: m.CreatedAt,
		Active:    m.Active,
		Deleted:   m.Deleted,
	}
}

// inodeModel is one layer's version of an inode.
type inodeModel struct {
	Tenant      string    `gorm:"primaryKey;size:64"`
	LayerID     string    `gorm:"primaryKey;size:36"`
	ID          string    `gorm:"primaryKey;size:36;index"`
	Type        int       `gorm:"not null"`
	State       int       `gorm:"not null"`
	Mode        uint32    `gorm:"not null"`
	UID         uint32    `gorm:"not null"`
	GID         uint32    `gorm:"not null"`
	Size        int64     `gorm:"not null"`
	Mtime       time.Time `gorm:"not null"`
	Ctime       time.Time `gorm:"not null"`
	ContentRef  string    `gorm:"size:64"`
	BaseLayerID string    `gorm:"size:36"`
	BaseDigest  string    `gorm:"size:64"`
	Encoding    string    `gorm:"size:16"`
	LineEnding  string    `gorm:"size:8"`
	LinkTarget  string    `gorm:"type:text"`
}

// TableName returns the table name for inodeModel.
func (inodeModel) TableName() string {
	return "inodes"
}

func inodeToModel(i *metadata.Inode) *inodeModel {
	return &inodeModel{
		Tenant:      i.Tenant,
		LayerID:     i.LayerID,
		ID:          i.ID,
		Type:        int(i.Type),
		State:       int(i.State),
		Mode:        i.Mode,
		UID:         i.UID,
		GID:         i.GID,
		Size:        int64(i.Size),
		Mtime:       i.Mtime,
		Ctime:       i.Ctime,
		ContentRef:  i.ContentRef,
		BaseLayerID: i.BaseLayerID,
		BaseDigest:  i.BaseDigest,
		Encoding:    i.Encoding,
		LineEnding:  i.LineEnding,
		LinkTarget:  i.LinkTarget,
	}
}

func (m *inodeModel) toInode() *metadata.Inode {
	return &metadata.Inode{
		Tenant:      m.Tenant,
		LayerID:     m.LayerID,
		ID:          m.ID,
		Type:        metadata.InodeType(m.Type),
		State:       metadata.InodeState(m.State),
		Mode:        m.Mode,
		UID:         m.UID,
		GID:         m.GID,
		Size:        uint64(m.Size),
		Mtime:       m.Mtime,
		Ctime:       m.Ctime,
		ContentRef:  m.ContentRef,
		BaseLayerID: m.BaseLayerID,
		BaseDigest:  m.BaseDigest,
		Encoding:    m.Encoding,
		LineEnding:  m.LineEnding,
		LinkTarget:  m.LinkTarget,
	}
}

// entryModel is one name recorded by one layer in one directory.
type entryModel struct {
	Tenant    string `gorm:"primaryKey;size:64"`
	LayerID   string `gorm:"primaryKey;size:36"`
	DirID     string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"primaryKey;size:255"`
	ChildID   string `gorm:"size:36"`
	Type      int    `gorm:"not null"`
	Tombstone bool   `gorm:"not null"`
}

// TableName returns the table name for entryModel.
func (entryModel) TableName() string {
	return "entries"
}

func entryToModel(e *metadata.Entry) *entryModel {
	return &entryModel{
		Tenant:    e.Tenant,
		LayerID:   e.LayerID,
		DirID:     e.DirID,
		Name:      e.Name,
		ChildID:   e.ChildID,
		Type:      int(e.Type),
		Tombstone: e.Tombstone,
	}
}

func (m *entryModel) toEntry() *metadata.Entry {
	return &metadata.Entry{
		Tenant:    m.Tenant,
		LayerID:   m.LayerID,
		DirID:     m.DirID,
		Name:      m.Name,
		ChildID:   m.ChildID,
		Type:      metadata.InodeType(m.Type),
		Tombstone: m.Tombstone,
	}
}

// blockModel is content-addressed, reference-counted content.
type blockModel struct {
	Tenant string `gorm:"primaryKey;size:64"`
	Ref    string `gorm:"primaryKey;size:64"`
	Refs   int64  `gorm:"not null"`
	Size   int64  `gorm:"not null"`
	Data   []byte
}

// TableName returns the table name for blockModel.
func (blockModel) TableName() string {
	return "blocks"
}
