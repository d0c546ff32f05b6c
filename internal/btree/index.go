package btree

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"bptreeidx/internal/bufferpool"
	"bptreeidx/internal/heap"
	"bptreeidx/internal/storage"
)

// ErrAttrTypeMismatch is returned when an index file's stored key
// datatype does not match the one the caller is opening it with.
var ErrAttrTypeMismatch = errors.New("btree: stored attribute type does not match requested type")

// KeyExtractor pulls the indexed int32 key out of one decoded heap
// row. The reference design reads the key directly out of a raw
// fixed-width record at attrByteOffset; this module's heap layer
// already decodes rows against a Schema, so the byte offset is kept
// only as index identity/metadata (it is still what names the index
// file) and key extraction is expressed as a function over the typed
// row instead of a raw buffer.
type KeyExtractor func(row []any) (KeyType, error)

// IndexName derives the deterministic on-disk index file name for a
// relation and attribute byte offset.
func IndexName(relationName string, attrByteOffset int32) string {
	return fmt.Sprintf("%s.%d", relationName, attrByteOffset)
}

// Index is the public handle the rest of the system drives: construct
// (open-or-create, building from a heap scan if creating), insert,
// scan, and close.
type Index struct {
	sm  *storage.StorageManager
	fs  storage.LocalFileSet
	bp  bufferpool.Manager
	tr  *tree
	scn scanState

	relationName   string
	attrByteOffset int32
	attrType       AttrType
	pageCount      uint32
	closed         bool
}

// Open opens or creates the index for (relationName, attrByteOffset).
// If the index file does not yet exist, src must be non-nil: it is
// scanned to completion and every (key, rid) pair is inserted before
// Open returns. If the file does exist, src is ignored and the header
// is read as-is — the open path never allocates or rebuilds anything,
// regardless of whether a build source was supplied.
func Open(
	sm *storage.StorageManager,
	pool *bufferpool.GlobalPool,
	dir, relationName string,
	attrByteOffset int32,
	attrType AttrType,
	src *heap.Scanner,
	extract KeyExtractor,
) (*Index, error) {
	fs := storage.LocalFileSet{Dir: dir, Base: IndexName(relationName, attrByteOffset)}
	bp := pool.View(fs)

	idx := &Index{
		sm:             sm,
		fs:             fs,
		bp:             bp,
		relationName:   relationName,
		attrByteOffset: attrByteOffset,
		attrType:       attrType,
	}

	if fs.Exists() {
		if err := idx.openExisting(); err != nil {
			return nil, err
		}
		slog.Info("btree: opened existing index", "file", fs.Base, "root", idx.tr.rootPage)
		return idx, nil
	}

	if src == nil {
		return nil, fmt.Errorf("btree: index %q does not exist and no build source was given", fs.Base)
	}
	if err := idx.createAndBuild(src, extract); err != nil {
		return nil, err
	}
	slog.Info("btree: built new index", "file", fs.Base)
	return idx, nil
}

// openExisting reads the header page as-is. It never allocates a
// page, so it cannot corrupt an existing file the way a reference
// implementation that always allocates a fresh header would.
func (idx *Index) openExisting() error {
	hp, err := idx.bp.GetPage(headerPageNum)
	if err != nil {
		return fmt.Errorf("btree: read header: %w", err)
	}
	h := newHeaderView(hp)

	storedType := h.attrType()
	if storedType != idx.attrType {
		_ = idx.bp.Unpin(hp, false)
		return fmt.Errorf("%w: stored=%v requested=%v", ErrAttrTypeMismatch, storedType, idx.attrType)
	}
	idx.relationName = h.relationName()
	idx.attrByteOffset = h.attrByteOffset()
	rootPageNum := h.rootPageNum()
	if err := idx.bp.Unpin(hp, false); err != nil {
		return err
	}

	pageCount, err := idx.sm.CountPages(idx.fs)
	if err != nil {
		return fmt.Errorf("btree: count pages: %w", err)
	}
	idx.pageCount = pageCount
	idx.tr = newTree(idx.bp, idx.nextPage, rootPageNum, idx.persistRoot)
	return nil
}

// createAndBuild allocates the header page and an initial empty root,
// then drives src to completion inserting every extracted key.
func (idx *Index) createAndBuild(src *heap.Scanner, extract KeyExtractor) error {
	hp, err := idx.bp.GetPage(headerPageNum)
	if err != nil {
		return fmt.Errorf("btree: alloc header: %w", err)
	}
	hp.Reset(headerPageNum)
	h := newHeaderView(hp)
	h.setRelationName(idx.relationName)
	h.setAttrByteOffset(idx.attrByteOffset)
	h.setAttrType(idx.attrType)
	h.setRootPageNum(initialRootPageNo)

	rp, err := idx.bp.GetPage(initialRootPageNo)
	if err != nil {
		_ = idx.bp.Unpin(hp, false)
		return fmt.Errorf("btree: alloc root: %w", err)
	}
	rp.Reset(initialRootPageNo)
	newNonLeafView(rp).setLevel(1)

	if err := idx.bp.Unpin(hp, true); err != nil {
		_ = idx.bp.Unpin(rp, false)
		return err
	}
	if err := idx.bp.Unpin(rp, true); err != nil {
		return err
	}

	idx.pageCount = initialRootPageNo + 1
	idx.tr = newTree(idx.bp, idx.nextPage, initialRootPageNo, idx.persistRoot)

	for {
		id, row, err := src.ScanNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("btree: heap scan during build: %w", err)
		}
		key, err := extract(row)
		if err != nil {
			return fmt.Errorf("btree: key extraction: %w", err)
		}
		if err := idx.tr.insertEntry(key, rid{PageID: id.PageID, Slot: id.Slot}); err != nil {
			return fmt.Errorf("btree: build insert: %w", err)
		}
	}

	return idx.persistRootNow()
}

func (idx *Index) nextPage() uint32 {
	id := idx.pageCount
	idx.pageCount++
	return id
}

// persistRoot is the tree engine's callback for "the root page number
// changed"; the reference design only rewrites the header at
// close/flush, which this keeps as the default by just remembering
// the new root in memory. persistRootNow does the actual write.
func (idx *Index) persistRoot(newRoot uint32) {
	idx.tr.rootPage = newRoot
}

func (idx *Index) persistRootNow() error {
	hp, err := idx.bp.GetPage(headerPageNum)
	if err != nil {
		return fmt.Errorf("btree: read header for flush: %w", err)
	}
	newHeaderView(hp).setRootPageNum(idx.tr.rootPage)
	return idx.bp.Unpin(hp, true)
}

// InsertEntry inserts one (key, rid) pair into the tree.
func (idx *Index) InsertEntry(key KeyType, r heap.TID) error {
	return idx.tr.insertEntry(key, rid{PageID: r.PageID, Slot: r.Slot})
}

// StartScan begins a range scan over [lowVal, highVal] per lowOp/highOp.
func (idx *Index) StartScan(lowVal KeyType, lowOp Operator, highVal KeyType, highOp Operator) error {
	return idx.tr.startScan(&idx.scn, lowVal, lowOp, highVal, highOp)
}

// ScanNext returns the next qualifying record identifier.
func (idx *Index) ScanNext() (heap.TID, error) {
	r, err := idx.tr.scanNext(&idx.scn)
	if err != nil {
		return heap.TID{}, err
	}
	return heap.TID{PageID: r.PageID, Slot: r.Slot}, nil
}

// EndScan terminates the active scan.
func (idx *Index) EndScan() error {
	return idx.tr.endScan(&idx.scn)
}

// Close flushes the root pointer and all dirty pages, then marks the
// index unusable. Close is idempotent.
func (idx *Index) Close() error {
	if idx.closed {
		return nil
	}
	idx.closed = true
	if idx.scn.executing {
		_ = idx.tr.endScan(&idx.scn)
	}
	if err := idx.persistRootNow(); err != nil {
		return err
	}
	return idx.bp.FlushAll()
}
