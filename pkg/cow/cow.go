// Package cow implements copy-on-write for the active layer.
//
// A mutation of a record the active layer owns is applied in place. A
// mutation of an inherited record materializes a new record in the active
// layer: directories and symlinks are copied, binary or uncertain files are
// copied in full, and text files are stored as line diffs over the inherited
// version whenever the diff replays exactly and is small enough. Ancestor
// records are never written.
package cow

import (
	"bytes"
	"context"
	"math"
	"time"

	"github.com/marmos91/layerfs/internal/logger"
	"github.com/marmos91/layerfs/pkg/filetype"
	"github.com/marmos91/layerfs/pkg/metadata"
	"github.com/marmos91/layerfs/pkg/metadata/errors"
	"github.com/marmos91/layerfs/pkg/metrics"
	"github.com/marmos91/layerfs/pkg/textdiff"
	"github.com/marmos91/layerfs/pkg/union"
)

// DefaultMaxDiffRatio is the largest inserted-bytes to file-size ratio stored
// as a diff.
const DefaultMaxDiffRatio = 0.75

// Strategy is how a mutation was persisted.
type Strategy string

const (
	StrategyInPlace  Strategy = "in-place"
	StrategyFullCopy Strategy = "full-copy"
	StrategyDiff     Strategy = "diff"
	StrategyFallback Strategy = "fallback"
)

// Fallback reasons.
const (
	reasonRatio    = "ratio"
	reasonVerify   = "verify"
	reasonEncode   = "encode"
	reasonSize     = "size"
	reasonBaseGone = "base"
	reasonDisabled = "disabled"
	reasonKind     = "kind"
)

// Config tunes the copy-on-write strategies.
type Config struct {
	// DisableDiff stores every inherited text file as a full copy.
	DisableDiff bool

	// MaxDiffRatio bounds inserted bytes relative to the new file size.
	MaxDiffRatio float64

	// MaxDiffFileSize disables diffing for larger files. Zero means no limit.
	MaxDiffFileSize uint64

	// MaxFileSize rejects larger files with FileTooLarge. Zero means no limit.
	MaxFileSize uint64
}

func (c Config) ratio() float64 {
	if c.MaxDiffRatio <= 0 {
		return DefaultMaxDiffRatio
	}
	return c.MaxDiffRatio
}

// Mutation describes a change to one inode.
type Mutation struct {
	// Content maps the current content to the new one. Nil keeps the content.
	Content func(current []byte) ([]byte, error)

	// Attr adjusts the attributes of the resulting record. May be nil.
	Attr func(inode *metadata.Inode)
}

// Outcome reports how Apply persisted a mutation.
type Outcome struct {
	Strategy Strategy

	// Inode is the active layer's record after the mutation.
	Inode *metadata.Inode

	// Reason names the fallback that prevented a diff, if any.
	Reason string

	// Stored is the number of bytes written to new blocks.
	Stored int
}

// Handler applies copy-on-write mutations.
type Handler struct {
	cfg      Config
	view     *union.View
	detector *filetype.Detector
	metrics  metrics.FSMetrics
}

// New creates a Handler. m may be nil.
func New(cfg Config, view *union.View, detector *filetype.Detector, m metrics.FSMetrics) *Handler {
	return &Handler{cfg: cfg, view: view, detector: detector, metrics: m}
}

// CheckSize returns FileTooLarge if size exceeds the configured limit. Sizes
// that do not fit in memory are rejected even without a limit.
func (h *Handler) CheckSize(path string, size uint64) error {
	if h.cfg.MaxFileSize > 0 && size > h.cfg.MaxFileSize {
		return errors.NewFileTooLargeError(path, size, h.cfg.MaxFileSize)
	}
	if size > math.MaxInt {
		return errors.NewFileTooLargeError(path, size, math.MaxInt)
	}
	return nil
}

// Apply mutates the version target as seen from chain, whose first element
// is the active layer.
func (h *Handler) Apply(ctx context.Context, tx metadata.Transaction, chain []string, target *metadata.FileVersion, mut Mutation) (*Outcome, error) {
	cur := target.Inode
	if cur == nil || target.State == metadata.StateDeleted {
		return nil, errors.NewNotFoundError(target.InodeID, "inode")
	}
	activeID := chain[0]
	owned := target.LayerID == activeID

	if cur.Type != metadata.TypeRegular {
		if mut.Content != nil {
			return nil, errors.NewIsDirectoryError(cur.ID)
		}
		adjust := func(in *metadata.Inode) { touch(in, mut, false) }
		if cur.IsDir() {
			rec, err := h.EnsureDir(ctx, tx, activeID, target, adjust)
			if err != nil {
				return nil, err
			}
			return &Outcome{Strategy: strategyOf(owned), Inode: rec}, nil
		}
		rec := cur.Clone()
		rec.LayerID = activeID
		adjust(rec)
		if err := tx.PutInode(ctx, rec); err != nil {
			return nil, err
		}
		return h.done(ctx, &Outcome{Strategy: strategyOf(owned), Inode: rec}), nil
	}

	old, err := h.view.Content(ctx, tx, target)
	if err != nil {
		return nil, err
	}
	next := old
	if mut.Content != nil {
		if next, err = mut.Content(old); err != nil {
			return nil, err
		}
	}
	if err := h.CheckSize(cur.ID, uint64(len(next))); err != nil {
		return nil, err
	}
	changed := !bytes.Equal(old, next)

	var out *Outcome
	if owned {
		out, err = h.applyOwned(ctx, tx, cur, old, next, changed)
	} else {
		out, err = h.applyInherited(ctx, tx, activeID, target, old, next)
	}
	if err != nil {
		return nil, err
	}

	touch(out.Inode, mut, changed)
	if err := tx.PutInode(ctx, out.Inode); err != nil {
		return nil, err
	}
	return h.done(ctx, out), nil
}

// applyOwned rewrites a record of the active layer. A diffed record is
// re-diffed against its original base under the same rules as a first diff,
// and materialized when a diff is no longer allowed.
func (h *Handler) applyOwned(ctx context.Context, tx metadata.Transaction, cur *metadata.Inode, old, next []byte, changed bool) (*Outcome, error) {
	rec := cur.Clone()
	out := &Outcome{Strategy: StrategyInPlace, Inode: rec}
	if !changed {
		return out, nil
	}

	if err := h.PinDependents(ctx, tx, cur); err != nil {
		return nil, err
	}

	if cur.State == metadata.StateDiffed {
		base, err := tx.GetInode(ctx, cur.BaseLayerID, cur.ID)
		if err != nil && !errors.IsNotFound(err) {
			return nil, err
		}

		reason := reasonBaseGone
		if base != nil {
			baseContent, err := h.view.Content(ctx, tx, &metadata.FileVersion{
				InodeID: base.ID, LayerID: base.LayerID, State: base.State, Inode: base,
			})
			if err != nil {
				return nil, err
			}
			var encoded []byte
			if reason = h.diffBlocked(baseContent, next); reason == "" {
				encoded, reason = h.tryDiff(baseContent, next)
			}
			if reason == "" {
				if err := h.replaceBlock(ctx, tx, rec, encoded); err != nil {
					return nil, err
				}
				rec.BaseDigest = metadata.ContentRef(baseContent)
				rec.Size = uint64(len(next))
				out.Stored = len(encoded)
				return out, nil
			}
		}
		h.recordFallback(reason)
		out.Reason = reason
	}

	if err := h.replaceBlock(ctx, tx, rec, next); err != nil {
		return nil, err
	}
	materialize(rec)
	h.describe(rec, next)
	rec.Size = uint64(len(next))
	out.Stored = len(next)
	return out, nil
}

// applyInherited materializes the mutation of an ancestor's version in the
// active layer.
func (h *Handler) applyInherited(ctx context.Context, tx metadata.Transaction, activeID string, target *metadata.FileVersion, old, next []byte) (*Outcome, error) {
	rec := target.Inode.Clone()
	rec.LayerID = activeID
	rec.ContentRef = ""

	detected := h.detector.Detect(old)
	strategy := StrategyFullCopy
	reason := h.diffBlocked(old, next)
	if reason == "" {
		var encoded []byte
		if encoded, reason = h.tryDiff(old, next); reason == "" {
			if err := h.putBlock(ctx, tx, rec, encoded); err != nil {
				return nil, err
			}
			rec.State = metadata.StateDiffed
			rec.BaseLayerID = target.LayerID
			rec.BaseDigest = metadata.ContentRef(old)
			rec.Encoding = string(detected.Encoding)
			rec.LineEnding = string(detected.LineEnding)
			rec.Size = uint64(len(next))

			logger.DebugCtx(ctx, "Stored as diff",
				logger.InodeID(rec.ID), logger.Layer(target.LayerID), logger.Size(uint64(len(encoded))))
			return &Outcome{Strategy: StrategyDiff, Inode: rec, Stored: len(encoded)}, nil
		}
	}

	switch reason {
	case reasonDisabled, reasonKind:
		reason = ""
	default:
		strategy = StrategyFallback
		h.recordFallback(reason)
	}

	if err := h.putBlock(ctx, tx, rec, next); err != nil {
		return nil, err
	}
	materialize(rec)
	h.describe(rec, next)
	rec.Size = uint64(len(next))

	logger.DebugCtx(ctx, "Stored as full copy",
		logger.InodeID(rec.ID), logger.FileClass(detected.Kind.String()), logger.Strategy(string(strategy)))
	return &Outcome{Strategy: strategy, Inode: rec, Reason: reason, Stored: len(next)}, nil
}

// diffBlocked returns why next must not be stored as a diff over base
// without trying, or "" if a diff may be attempted.
func (h *Handler) diffBlocked(base, next []byte) string {
	switch {
	case h.cfg.DisableDiff:
		return reasonDisabled
	case !h.detector.Detect(base).Diffable():
		return reasonKind
	}
	if limit := h.cfg.MaxDiffFileSize; limit > 0 && (uint64(len(base)) > limit || uint64(len(next)) > limit) {
		return reasonSize
	}
	return ""
}

// tryDiff encodes the changes from base to next and checks that they replay
// exactly and stay within the size ratio. It returns a fallback reason when
// the diff must not be used.
func (h *Handler) tryDiff(base, next []byte) ([]byte, string) {
	changes := textdiff.Compute(base, next)
	if len(next) > 0 && float64(changes.Payload()) > h.cfg.ratio()*float64(len(next)) {
		return nil, reasonRatio
	}

	detected := h.detector.Detect(base)
	changes.Encoding = string(detected.Encoding)
	changes.LineEnding = string(detected.LineEnding)

	encoded, err := textdiff.Encode(changes)
	if err != nil {
		return nil, reasonEncode
	}
	decoded, err := textdiff.Decode(encoded)
	if err != nil {
		return nil, reasonVerify
	}
	replayed, err := decoded.Apply(base)
	if err != nil || !bytes.Equal(replayed, next) {
		return nil, reasonVerify
	}
	return encoded, ""
}

// PinDependents converts diffs computed against owner into full copies of
// their current content, so owner can change without invalidating them.
func (h *Handler) PinDependents(ctx context.Context, tx metadata.Transaction, owner *metadata.Inode) error {
	versions, err := tx.InodeVersions(ctx, owner.ID)
	if err != nil {
		return err
	}

	for _, v := range versions {
		if v.LayerID == owner.LayerID || v.State != metadata.StateDiffed || v.BaseLayerID != owner.LayerID {
			continue
		}

		data, err := h.view.Content(ctx, tx, &metadata.FileVersion{
			InodeID: v.ID, LayerID: v.LayerID, State: v.State, Inode: v,
		})
		if err != nil {
			return err
		}

		pinned := v.Clone()
		if err := h.replaceBlock(ctx, tx, pinned, data); err != nil {
			return err
		}
		materialize(pinned)
		if err := tx.PutInode(ctx, pinned); err != nil {
			return err
		}

		logger.DebugCtx(ctx, "Diff pinned to full copy",
			logger.InodeID(v.ID), logger.Layer(v.LayerID), logger.Size(uint64(len(data))))
	}
	return nil
}

// PinEntries keeps name in directory dirID visible to every descendant
// layer of the active layer that holds its own version of the child. Such a
// layer that resolves the name through the active layer gets a live entry of
// its own, so hiding or dropping the name in the active layer leaves its view
// intact.
func (h *Handler) PinEntries(ctx context.Context, tx metadata.Transaction, chain []string, dirID, name string) error {
	activeID := chain[0]

	entry, err := h.view.Lookup(ctx, tx, chain, dirID, name)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return err
	}
	versions, err := tx.InodeVersions(ctx, entry.ChildID)
	if err != nil {
		return err
	}

	for _, v := range versions {
		if v.LayerID == activeID || v.State == metadata.StateDeleted {
			continue
		}
		through, err := h.resolvesThrough(ctx, tx, v.LayerID, activeID, dirID, name)
		if err != nil {
			return err
		}
		if !through {
			continue
		}

		if err := tx.PutEntry(ctx, &metadata.Entry{
			LayerID: v.LayerID,
			DirID:   dirID,
			Name:    name,
			ChildID: entry.ChildID,
			Type:    entry.Type,
		}); err != nil {
			return err
		}
		logger.DebugCtx(ctx, "Entry pinned in descendant layer",
			logger.InodeID(entry.ChildID), logger.Layer(v.LayerID), logger.Path(name))
	}
	return nil
}

// resolvesThrough reports whether layerID descends from ancestorID and takes
// name in dirID from it, with no entry of its own or of a layer in between.
func (h *Handler) resolvesThrough(ctx context.Context, tx metadata.Transaction, layerID, ancestorID, dirID, name string) (bool, error) {
	chain, err := h.view.Chain(ctx, tx, layerID)
	if err != nil {
		if errors.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	for _, id := range chain {
		if id == ancestorID {
			return true, nil
		}
		_, err := tx.GetEntry(ctx, id, dirID, name)
		if err == nil {
			return false, nil
		}
		if !errors.IsNotFound(err) {
			return false, err
		}
	}
	return false, nil
}

// EnsureDir returns the active layer's record for the directory dir, copying
// the inherited record if needed. Each adjust func is applied to the record
// before it is stored.
func (h *Handler) EnsureDir(ctx context.Context, tx metadata.Transaction, activeID string, dir *metadata.FileVersion, adjust ...func(*metadata.Inode)) (*metadata.Inode, error) {
	if dir.Inode == nil || !dir.Inode.IsDir() {
		return nil, errors.NewNotDirectoryError(dir.InodeID)
	}
	owned := dir.LayerID == activeID
	if owned && len(adjust) == 0 {
		return dir.Inode, nil
	}

	rec := dir.Inode.Clone()
	rec.LayerID = activeID
	for _, fn := range adjust {
		fn(rec)
	}
	if err := tx.PutInode(ctx, rec); err != nil {
		return nil, err
	}
	h.done(ctx, &Outcome{Strategy: strategyOf(owned), Inode: rec})
	return rec, nil
}

func strategyOf(owned bool) Strategy {
	if owned {
		return StrategyInPlace
	}
	return StrategyFullCopy
}

// Link records name -> child in directory dirID of the active layer. A
// tombstone for the name is replaced.
func (h *Handler) Link(ctx context.Context, tx metadata.Transaction, activeID, dirID, name string, child *metadata.Inode) error {
	return tx.PutEntry(ctx, &metadata.Entry{
		LayerID: activeID,
		DirID:   dirID,
		Name:    name,
		ChildID: child.ID,
		Type:    child.Type,
	})
}

// Unlink removes name from directory dirID as seen from chain. A name still
// visible in an ancestor is hidden with a tombstone; otherwise the active
// layer's entry is simply dropped.
func (h *Handler) Unlink(ctx context.Context, tx metadata.Transaction, chain []string, dirID, name string) error {
	activeID := chain[0]

	inherited, err := h.view.Visible(ctx, tx, chain[1:], dirID, name)
	if err != nil {
		return err
	}
	if inherited {
		return tx.PutEntry(ctx, &metadata.Entry{
			LayerID:   activeID,
			DirID:     dirID,
			Name:      name,
			Tombstone: true,
		})
	}
	return tx.DeleteEntry(ctx, activeID, dirID, name)
}

// Remove deletes the inode from the active layer's view. The active layer's
// own record is dropped; if an ancestor still has a version, a deleted
// record hides it.
func (h *Handler) Remove(ctx context.Context, tx metadata.Transaction, chain []string, inodeID string) error {
	activeID := chain[0]

	own, err := tx.GetInode(ctx, activeID, inodeID)
	if err != nil && !errors.IsNotFound(err) {
		return err
	}

	var inherited *metadata.FileVersion
	if len(chain) > 1 {
		inherited, err = h.view.Version(ctx, tx, chain[1:], inodeID)
		if err != nil && !errors.IsNotFound(err) {
			return err
		}
	}
	hidden := inherited != nil && inherited.State != metadata.StateDeleted

	var typ metadata.InodeType
	if own != nil {
		typ = own.Type
		if own.State != metadata.StateDeleted {
			if err := h.PinDependents(ctx, tx, own); err != nil {
				return err
			}
			if own.ContentRef != "" {
				if err := tx.ReleaseBlock(ctx, own.ContentRef); err != nil {
					return err
				}
			}
		}
	} else if inherited != nil && inherited.Inode != nil {
		typ = inherited.Inode.Type
	}
	if typ == metadata.TypeDirectory {
		if err := h.dropEntries(ctx, tx, activeID, inodeID); err != nil {
			return err
		}
	}

	if !hidden {
		if own == nil {
			return nil
		}
		return tx.DeleteInode(ctx, activeID, inodeID)
	}

	now := timestamp()
	return tx.PutInode(ctx, &metadata.Inode{
		LayerID: activeID,
		ID:      inodeID,
		Type:    typ,
		State:   metadata.StateDeleted,
		Mtime:   now,
		Ctime:   now,
	})
}

// dropEntries deletes the active layer's entries of a removed directory.
func (h *Handler) dropEntries(ctx context.Context, tx metadata.Transaction, layerID, dirID string) error {
	entries, err := tx.ListEntries(ctx, layerID, dirID)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := tx.DeleteEntry(ctx, layerID, dirID, e.Name); err != nil {
			return err
		}
	}
	return nil
}

// replaceBlock stores data as the record's content and releases the previous
// block.
func (h *Handler) replaceBlock(ctx context.Context, tx metadata.Transaction, rec *metadata.Inode, data []byte) error {
	prev := rec.ContentRef
	if err := h.putBlock(ctx, tx, rec, data); err != nil {
		return err
	}
	if prev != "" {
		return tx.ReleaseBlock(ctx, prev)
	}
	return nil
}

// putBlock stores data and points rec at it. Empty content needs no block.
func (h *Handler) putBlock(ctx context.Context, tx metadata.Transaction, rec *metadata.Inode, data []byte) error {
	if len(data) == 0 {
		rec.ContentRef = ""
		return nil
	}
	ref := metadata.ContentRef(data)
	if err := tx.PutBlock(ctx, ref, data); err != nil {
		return err
	}
	rec.ContentRef = ref
	return nil
}

// describe records the detected text properties of materialized content.
func (h *Handler) describe(rec *metadata.Inode, data []byte) {
	detected := h.detector.Detect(data)
	if detected.Kind == filetype.KindText {
		rec.Encoding = string(detected.Encoding)
		rec.LineEnding = string(detected.LineEnding)
		return
	}
	rec.Encoding = ""
	rec.LineEnding = ""
}

func (h *Handler) done(ctx context.Context, out *Outcome) *Outcome {
	if h.metrics != nil {
		h.metrics.RecordCOW(string(out.Strategy), out.Stored)
	}
	logger.DebugCtx(ctx, "Copy-on-write applied",
		logger.InodeID(out.Inode.ID), logger.Strategy(string(out.Strategy)), logger.Size(out.Inode.Size))
	return out
}

func (h *Handler) recordFallback(reason string) {
	if h.metrics != nil {
		h.metrics.RecordDiffFallback(reason)
	}
}

func materialize(rec *metadata.Inode) {
	rec.State = metadata.StateMaterialized
	rec.BaseLayerID = ""
	rec.BaseDigest = ""
}

// touch applies the attribute mutation and the timestamps it implies.
func touch(rec *metadata.Inode, mut Mutation, changed bool) {
	now := timestamp()
	rec.Ctime = now
	if changed {
		rec.Mtime = now
	}
	if mut.Attr != nil {
		mut.Attr(rec)
	}
}

func timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
