package heap

import (
	"errors"
	"io"

	"bptreeidx/internal/record"
	"bptreeidx/internal/storage"
)

// Scanner walks a Table's pages in order and hands back one row at a
// time. It is the external "heap scanner" collaborator the index build
// path drives: extract the key from each decoded row, insert it, move
// on, and treat io.EOF as the normal end of the build.
type Scanner struct {
	t      *Table
	pageID uint32
	slot   int
	page   *storage.Page
	sp     slottedPage
}

// NewScanner returns a scanner positioned before the first row of t.
func NewScanner(t *Table) *Scanner {
	return &Scanner{t: t}
}

// ScanNext advances to the next live row and returns its TID and decoded
// values, or io.EOF once every page has been exhausted.
func (s *Scanner) ScanNext() (TID, []any, error) {
	for {
		if s.page == nil {
			if s.pageID >= s.t.PageCount {
				return TID{}, nil, io.EOF
			}
			p, err := s.t.BP.GetPage(s.pageID)
			if err != nil {
				return TID{}, nil, err
			}
			s.page = p
			s.sp = newSlottedPage(p)
			s.slot = 0
		}

		if s.slot >= s.sp.NumSlots() {
			_ = s.t.BP.Unpin(s.page, false)
			s.page = nil
			s.pageID++
			continue
		}

		slot := s.slot
		s.slot++

		raw, err := s.sp.ReadTuple(slot)
		if errors.Is(err, ErrBadSlot) {
			continue
		}
		if err != nil {
			return TID{}, nil, err
		}

		row, err := record.DecodeRow(s.t.Schema, raw)
		if err != nil {
			return TID{}, nil, err
		}
		return TID{PageID: s.pageID, Slot: uint16(slot)}, row, nil
	}
}

// Close releases any page the scanner still holds pinned.
func (s *Scanner) Close() error {
	if s.page == nil {
		return nil
	}
	err := s.t.BP.Unpin(s.page, false)
	s.page = nil
	return err
}
