package heap

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"bptreeidx/internal/bufferpool"
	"bptreeidx/internal/record"
	"bptreeidx/internal/storage"
)

var ErrTableClosed = errors.New("heap: table is closed")

// Table is a relation of fixed-schema rows, append-only, backed by
// slotted pages through the shared buffer pool. An index build reads
// it once, end to end, through a Scanner.
type Table struct {
	Name      string
	Schema    record.Schema
	SM        *storage.StorageManager
	FS        storage.FileSet
	BP        bufferpool.Manager
	PageCount uint32

	// pageCountHook is a best-effort callback invoked whenever PageCount
	// grows, so callers persisting their own metadata (e.g. an index's
	// header page) can stay in sync without polling.
	pageCountHook func(pageCount uint32) error

	closed atomic.Bool
}

func NewTable(name string, schema record.Schema, sm *storage.StorageManager, fs storage.FileSet, bp bufferpool.Manager, pageCount uint32) *Table {
	return &Table{Name: name, Schema: schema, SM: sm, FS: fs, BP: bp, PageCount: pageCount}
}

func (t *Table) SetPageCountHook(fn func(pageCount uint32) error) {
	t.pageCountHook = fn
}

// Insert appends a new row, growing the relation by one page whenever the
// current last page is full.
func (t *Table) Insert(values []any) (TID, error) {
	if err := t.ensureOpen(); err != nil {
		return TID{}, err
	}

	oldPageCount := t.PageCount
	var pageID uint32
	if t.PageCount == 0 {
		pageID = 0
		t.PageCount = 1
	} else {
		pageID = t.PageCount - 1
	}

	tuple, err := record.EncodeRow(t.Schema, values)
	if err != nil {
		return TID{}, err
	}

	for {
		p, err := t.BP.GetPage(pageID)
		if err != nil {
			return TID{}, err
		}

		slot, err := newSlottedPage(p).InsertTuple(tuple)
		if errors.Is(err, ErrNoSpace) {
			_ = t.BP.Unpin(p, false)
			pageID = t.PageCount
			t.PageCount++
			continue
		}
		if err != nil {
			_ = t.BP.Unpin(p, false)
			return TID{}, err
		}

		if err := t.BP.Unpin(p, true); err != nil {
			return TID{}, err
		}

		if t.PageCount != oldPageCount && t.pageCountHook != nil {
			if err := t.pageCountHook(t.PageCount); err != nil {
				slog.Warn("heap: pagecount hook failed", "table", t.Name, "pageCount", t.PageCount, "err", err)
			}
		}
		return TID{PageID: pageID, Slot: uint16(slot)}, nil
	}
}

// Get reads a single row by TID.
func (t *Table) Get(id TID) ([]any, error) {
	if err := t.ensureOpen(); err != nil {
		return nil, err
	}
	p, err := t.BP.GetPage(id.PageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = t.BP.Unpin(p, false) }()

	raw, err := newSlottedPage(p).ReadTuple(int(id.Slot))
	if err != nil {
		return nil, err
	}
	return record.DecodeRow(t.Schema, raw)
}

// Scan visits every live row in page order, calling fn with its TID and
// decoded values. The index build path does not use it; it drives a
// Scanner instead.
func (t *Table) Scan(fn func(id TID, row []any) error) error {
	if err := t.ensureOpen(); err != nil {
		return err
	}

	for pageID := uint32(0); pageID < t.PageCount; pageID++ {
		p, err := t.BP.GetPage(pageID)
		if err != nil {
			return err
		}

		sp := newSlottedPage(p)
		for slot := 0; slot < sp.NumSlots(); slot++ {
			raw, err := sp.ReadTuple(slot)
			if errors.Is(err, ErrBadSlot) {
				continue
			}
			if err != nil {
				_ = t.BP.Unpin(p, false)
				return err
			}

			row, err := record.DecodeRow(t.Schema, raw)
			if err != nil {
				_ = t.BP.Unpin(p, false)
				return err
			}
			if err := fn(TID{PageID: pageID, Slot: uint16(slot)}, row); err != nil {
				_ = t.BP.Unpin(p, false)
				return err
			}
		}
		_ = t.BP.Unpin(p, false)
	}
	return nil
}

func (t *Table) Flush() error {
	if err := t.BP.FlushAll(); err != nil {
		return err
	}
	if t.pageCountHook != nil {
		if err := t.pageCountHook(t.PageCount); err != nil {
			slog.Warn("heap: pagecount hook failed after flush", "table", t.Name, "pageCount", t.PageCount, "err", err)
		}
	}
	return nil
}

func (t *Table) Close() error {
	if t == nil {
		return nil
	}
	if t.closed.Swap(true) {
		return nil
	}
	if t.BP != nil {
		return t.BP.FlushAll()
	}
	return nil
}

func (t *Table) ensureOpen() error {
	if t == nil {
		return ErrTableClosed
	}
	if t.closed.Load() {
		return fmt.Errorf("%w: %s", ErrTableClosed, t.Name)
	}
	return nil
}
