// Package layer manages the layer tree of a tenant: creation, the active
// pointer, deletion and chain resolution.
//
// A layer's chain is the list of layer IDs from the layer to the root. Parents
// never change after creation, so chains are cached; deleting a layer evicts
// its entry.
package layer

import (
	"context"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/marmos91/layerfs/internal/logger"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
	"github.com/marmos91/layerfs/pkg/metrics"
)

// Defaults for Config.
const (
	DefaultMaxChainDepth  = 64
	DefaultChainCacheSize = 1024
	DefaultRootName       = "base"
)

// Config configures a Manager.
type Config struct {
	// MaxChainDepth bounds the number of layers in a chain, root included.
	MaxChainDepth int

	// ChainCacheSize is the number of chains kept in the LRU.
	ChainCacheSize int

	// RootName is the name of the layer created by Bootstrap.
	RootName string

	// Limits validates layer names.
	Limits metadata.Limits
}

func (c *Config) applyDefaults() {
	if c.MaxChainDepth <= 0 {
		c.MaxChainDepth = DefaultMaxChainDepth
	}
	if c.ChainCacheSize <= 0 {
		c.ChainCacheSize = DefaultChainCacheSize
	}
	if c.RootName == "" {
		c.RootName = DefaultRootName
	}
}

type chainKey struct {
	tenant  string
	layerID string
}

// Manager implements layer lifecycle operations on top of a metadata
// transaction. It holds no per-call state and is safe for concurrent use.
type Manager struct {
	cfg     Config
	chains  *lru.Cache[chainKey, []string]
	metrics metrics.ChainCacheMetrics
}

// NewManager creates a Manager. m may be nil to disable cache metrics.
func NewManager(cfg Config, m metrics.ChainCacheMetrics) (*Manager, error) {
	cfg.applyDefaults()

	mgr := &Manager{cfg: cfg, metrics: m}
	chains, err := lru.NewWithEvict(cfg.ChainCacheSize, func(chainKey, []string) {
		if mgr.metrics != nil {
			mgr.metrics.RecordChainEviction(1)
		}
	})
	if err != nil {
		return nil, err
	}
	mgr.chains = chains
	return mgr, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Bootstrap makes sure the tenant has a layer tree. On first use it creates
// the root layer, marks it active and gives it the root directory. It returns
// the active layer.
func (m *Manager) Bootstrap(ctx context.Context, tx metadata.Transaction) (*metadata.Layer, error) {
	layers, err := tx.ListLayers(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range layers {
		if l.Active && !l.Deleted {
			return l, nil
		}
	}
	if len(live(layers)) > 0 {
		return nil, errors.NewChainCorruptError(tx.Tenant(), "no active layer")
	}

	ts := now()
	root := &metadata.Layer{
		ID:        metadata.NewID(),
		Name:      m.cfg.RootName,
		Seq:       nextSeq(layers),
		CreatedAt: ts,
		Active:    true,
	}
	if err := tx.PutLayer(ctx, root); err != nil {
		return nil, err
	}

	dir := &metadata.Inode{
		LayerID: root.ID,
		ID:      metadata.RootInodeID,
		Type:    metadata.TypeDirectory,
		State:   metadata.StateMaterialized,
		Mode:    metadata.DefaultMode(metadata.TypeDirectory),
		Mtime:   ts,
		Ctime:   ts,
	}
	if err := tx.PutInode(ctx, dir); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "Layer tree bootstrapped",
		logger.LayerName(root.Name), logger.Layer(root.ID))
	return root, nil
}

// Create adds a layer named name on top of parentRef (an ID or a name). An
// empty parentRef stacks the layer on the active one. The new layer owns no
// records and is not activated.
func (m *Manager) Create(ctx context.Context, tx metadata.Transaction, name, parentRef string) (*metadata.Layer, error) {
	if err := m.cfg.Limits.ValidateLayerName(name); err != nil {
		return nil, err
	}

	layers, err := tx.ListLayers(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range live(layers) {
		if l.Name == name {
			return nil, errors.NewAlreadyExistsError(name)
		}
	}

	var parent *metadata.Layer
	if parentRef == "" {
		parent, err = m.Active(ctx, tx)
	} else {
		parent, err = m.Get(ctx, tx, parentRef)
	}
	if err != nil {
		return nil, err
	}

	chain, err := m.ChainOf(ctx, tx, parent.ID)
	if err != nil {
		return nil, err
	}
	if len(chain)+1 > m.cfg.MaxChainDepth {
		return nil, errors.NewChainTooDeepError(name, m.cfg.MaxChainDepth)
	}

	l := &metadata.Layer{
		ID:        metadata.NewID(),
		Name:      name,
		ParentID:  parent.ID,
		Seq:       nextSeq(layers),
		CreatedAt: now(),
	}
	if err := tx.PutLayer(ctx, l); err != nil {
		return nil, err
	}

	logger.DebugCtx(ctx, "Layer created",
		logger.LayerName(name), logger.Layer(l.ID), logger.ParentLayer(parent.ID), logger.ChainDepth(len(chain)+1))
	return l, nil
}

// Switch makes ref the active layer. Switching to the active layer is a no-op.
func (m *Manager) Switch(ctx context.Context, tx metadata.Transaction, ref string) (*metadata.Layer, error) {
	target, err := m.Get(ctx, tx, ref)
	if err != nil {
		return nil, err
	}
	if target.Active {
		return target, nil
	}

	current, err := m.Active(ctx, tx)
	if err != nil && !errors.Is(err, errors.ErrLayerNotFound) {
		return nil, err
	}
	if current != nil {
		current.Active = false
		if err := tx.PutLayer(ctx, current); err != nil {
			return nil, err
		}
	}

	target.Active = true
	if err := tx.PutLayer(ctx, target); err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "Active layer switched", logger.LayerName(target.Name), logger.ActiveLayer(target.ID))
	return target, nil
}

// Delete removes a leaf layer that is not active: its blocks are released,
// its inode and entry records removed and the layer record marked deleted.
// On error nothing is changed provided the caller rolls back tx.
func (m *Manager) Delete(ctx context.Context, tx metadata.Transaction, ref string) (*metadata.Layer, error) {
	target, err := m.Get(ctx, tx, ref)
	if err != nil {
		return nil, err
	}

	layers, err := tx.ListLayers(ctx)
	if err != nil {
		return nil, err
	}
	children := 0
	for _, l := range live(layers) {
		if l.ParentID == target.ID {
			children++
		}
	}
	if children > 0 {
		return nil, errors.NewLayerHasChildrenError(target.Name, children)
	}
	if target.Active {
		return nil, errors.NewLayerIsActiveError(target.Name)
	}

	inodes, err := tx.ListInodes(ctx, target.ID)
	if err != nil {
		return nil, err
	}
	for _, in := range inodes {
		if in.ContentRef != "" {
			if err := tx.ReleaseBlock(ctx, in.ContentRef); err != nil {
				return nil, err
			}
		}
		if err := tx.DeleteInode(ctx, target.ID, in.ID); err != nil {
			return nil, err
		}
	}
	if err := tx.DeleteLayerEntries(ctx, target.ID); err != nil {
		return nil, err
	}

	target.Deleted = true
	if err := tx.PutLayer(ctx, target); err != nil {
		return nil, err
	}
	m.chains.Remove(chainKey{tenant: tx.Tenant(), layerID: target.ID})

	logger.InfoCtx(ctx, "Layer deleted",
		logger.LayerName(target.Name), logger.Layer(target.ID), logger.Count(len(inodes)))
	return target, nil
}

// List returns the tenant's layers in creation order.
func (m *Manager) List(ctx context.Context, tx metadata.Transaction, includeDeleted bool) ([]*metadata.Layer, error) {
	layers, err := tx.ListLayers(ctx)
	if err != nil {
		return nil, err
	}
	if !includeDeleted {
		layers = live(layers)
	}
	sortBySeq(layers)
	return layers, nil
}

// Active returns the active layer.
func (m *Manager) Active(ctx context.Context, tx metadata.Transaction) (*metadata.Layer, error) {
	layers, err := tx.ListLayers(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range layers {
		if l.Active && !l.Deleted {
			return l, nil
		}
	}
	return nil, errors.NewLayerNotFoundError("active")
}

// Get finds a live layer by ID or, failing that, by name.
func (m *Manager) Get(ctx context.Context, tx metadata.Transaction, ref string) (*metadata.Layer, error) {
	if ref == "" {
		return nil, errors.NewLayerNotFoundError(ref)
	}

	l, err := tx.GetLayer(ctx, ref)
	switch {
	case err == nil && !l.Deleted:
		return l, nil
	case err != nil && !errors.IsNotFound(err):
		return nil, err
	}

	layers, err := tx.ListLayers(ctx)
	if err != nil {
		return nil, err
	}
	for _, l := range live(layers) {
		if l.Name == ref {
			return l, nil
		}
	}
	return nil, errors.NewLayerNotFoundError(ref)
}

// ChainOf returns the IDs from layerID to the root, inclusive. A walk that
// exceeds the depth limit or revisits a layer fails with ChainCorrupt. The
// returned slice is shared with the cache and must not be modified.
func (m *Manager) ChainOf(ctx context.Context, tx metadata.Transaction, layerID string) ([]string, error) {
	start, err := tx.GetLayer(ctx, layerID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.NewLayerNotFoundError(layerID)
		}
		return nil, err
	}
	if start.Deleted {
		return nil, errors.NewLayerNotFoundError(layerID)
	}

	key := chainKey{tenant: tx.Tenant(), layerID: layerID}
	if chain, ok := m.chains.Get(key); ok {
		m.recordLookup(true)
		return chain, nil
	}
	m.recordLookup(false)

	chain := []string{start.ID}
	seen := map[string]bool{start.ID: true}
	for cur := start; cur.ParentID != ""; {
		if len(chain) >= m.cfg.MaxChainDepth {
			return nil, errors.NewChainCorruptError(layerID, "depth limit exceeded")
		}
		if seen[cur.ParentID] {
			return nil, errors.NewChainCorruptError(layerID, "cycle at "+cur.ParentID)
		}

		parent, err := tx.GetLayer(ctx, cur.ParentID)
		if err != nil {
			if errors.IsNotFound(err) {
				return nil, errors.NewChainCorruptError(layerID, "missing parent "+cur.ParentID)
			}
			return nil, err
		}
		chain = append(chain, parent.ID)
		seen[parent.ID] = true
		cur = parent
	}

	m.chains.Add(key, chain)
	return chain, nil
}

// Layers resolves a chain to its layer records, in chain order.
func (m *Manager) Layers(ctx context.Context, tx metadata.Transaction, chain []string) ([]*metadata.Layer, error) {
	out := make([]*metadata.Layer, 0, len(chain))
	for _, id := range chain {
		l, err := tx.GetLayer(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

func (m *Manager) recordLookup(hit bool) {
	if m.metrics != nil {
		m.metrics.RecordChainLookup(hit)
	}
}

func live(layers []*metadata.Layer) []*metadata.Layer {
	out := make([]*metadata.Layer, 0, len(layers))
	for _, l := range layers {
		if !l.Deleted {
			out = append(out, l)
		}
	}
	return out
}

func nextSeq(layers []*metadata.Layer) uint64 {
	var seq uint64
	for _, l := range layers {
		if l.Seq > seq {
			seq = l.Seq
		}
	}
	return seq + 1
}

func sortBySeq(layers []*metadata.Layer) {
	sort.Slice(layers, func(i, j int) bool { return layers[i].Seq < layers[j].Seq })
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
