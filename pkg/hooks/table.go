package hooks

import (
	"time"

	"github.com/marmos91/layerfs/internal/cli/timeutil"
	"github.com/marmos91/layerfs/pkg/metadata"
)

// LayerInfo is the external representation of a layer.
type LayerInfo struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	ParentID  string    `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Parent    string    `json:"parent,omitempty" yaml:"parent,omitempty"`
	Seq       uint64    `json:"seq" yaml:"seq"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Active    bool      `json:"active" yaml:"active"`
	Deleted   bool      `json:"deleted,omitempty" yaml:"deleted,omitempty"`
}

// NewLayerInfo converts l. names maps layer IDs to names and may be nil.
func NewLayerInfo(l *metadata.Layer, names map[string]string) LayerInfo {
	return LayerInfo{
		ID:        l.ID,
		Name:      l.Name,
		ParentID:  l.ParentID,
		Parent:    names[l.ParentID],
		Seq:       l.Seq,
		CreatedAt: l.CreatedAt,
		Active:    l.Active,
		Deleted:   l.Deleted,
	}
}

// LayerTable renders layers as a table or, through JSON/YAML, as an array.
type LayerTable []LayerInfo

// NewLayerTable converts layers, resolving parent names among them.
func NewLayerTable(layers []*metadata.Layer) LayerTable {
	names := make(map[string]string, len(layers))
	for _, l := range layers {
		names[l.ID] = l.Name
	}
	out := make(LayerTable, 0, len(layers))
	for _, l := range layers {
		out = append(out, NewLayerInfo(l, names))
	}
	return out
}

// Headers implements output.TableRenderer.
func (t LayerTable) Headers() []string {
	return []string{"Name", "ID", "Parent", "Active", "Created", "Age"}
}

// Rows implements output.TableRenderer.
func (t LayerTable) Rows() [][]string {
	now := time.Now()
	rows := make([][]string, 0, len(t))
	for _, l := range t {
		active := ""
		if l.Active {
			active = "*"
		}
		parent := l.Parent
		if parent == "" {
			parent = "-"
		}
		rows = append(rows, []string{
			l.Name,
			l.ID,
			parent,
			active,
			timeutil.FormatTime(l.CreatedAt),
			timeutil.FormatAge(l.CreatedAt, now),
		})
	}
	return rows
}
