package heap

import (
	"errors"

	"bptreeidx/internal/alias/bx"
	"bptreeidx/internal/storage"
)

// slottedPage is a PostgreSQL-style page layout for variable-length heap
// tuples: a line-pointer directory grows down from the header, tuple
// bytes grow up from the end of the page, and they meet in the middle.
//
//	+------------------+ 0
//	| header (4 bytes) |
//	| slot directory   | <-- lower
//	+------------------+
//	|   free space     |
//	+------------------+ <-- upper
//	|   tuple bytes    |
//	+------------------+ PageSize
const (
	headerSize = 4 // lower(u16) + upper(u16)
	slotSize   = 4 // offset(u16) + length(u16); length==0 means deleted
)

var (
	ErrNoSpace = errors.New("heap: page has no space for tuple")
	ErrBadSlot = errors.New("heap: slot is empty or out of range")
)

type slottedPage struct{ p *storage.Page }

func newSlottedPage(p *storage.Page) slottedPage { return slottedPage{p: p} }

func (s slottedPage) lower() int { return int(bx.U16(s.p.Bytes()[0:2])) }
func (s slottedPage) setLower(v int) {
	bx.PutU16(s.p.Bytes()[0:2], uint16(v))
}

func (s slottedPage) upper() int { return int(bx.U16(s.p.Bytes()[2:4])) }
func (s slottedPage) setUpper(v int) {
	bx.PutU16(s.p.Bytes()[2:4], uint16(v))
}

func (s slottedPage) ensureInit() {
	if s.lower() == 0 && s.upper() == 0 {
		s.setLower(headerSize)
		s.setUpper(storage.PageSize)
	}
}

// NumSlots reports how many slot directory entries exist, including
// deleted ones.
func (s slottedPage) NumSlots() int {
	s.ensureInit()
	return (s.lower() - headerSize) / slotSize
}

func (s slottedPage) slotOff(i int) int { return headerSize + i*slotSize }

func (s slottedPage) getSlot(i int) (offset, length int) {
	o := s.slotOff(i)
	b := s.p.Bytes()
	return int(bx.U16(b[o : o+2])), int(bx.U16(b[o+2 : o+4]))
}

func (s slottedPage) putSlot(i, offset, length int) {
	o := s.slotOff(i)
	b := s.p.Bytes()
	bx.PutU16(b[o:o+2], uint16(offset))
	bx.PutU16(b[o+2:o+4], uint16(length))
}

// InsertTuple appends tup to the page's free space and returns its slot
// index, or ErrNoSpace if the page cannot fit it.
func (s slottedPage) InsertTuple(tup []byte) (int, error) {
	s.ensureInit()
	need := len(tup) + slotSize
	if s.upper()-s.lower() < need {
		return -1, ErrNoSpace
	}
	newUpper := s.upper() - len(tup)
	copy(s.p.Bytes()[newUpper:], tup)
	s.setUpper(newUpper)

	slot := s.NumSlots()
	s.putSlot(slot, newUpper, len(tup))
	s.setLower(s.lower() + slotSize)
	return slot, nil
}

// ReadTuple returns the bytes stored at slot, or ErrBadSlot if the slot
// is out of range or has been deleted.
func (s slottedPage) ReadTuple(slot int) ([]byte, error) {
	s.ensureInit()
	if slot < 0 || slot >= s.NumSlots() {
		return nil, ErrBadSlot
	}
	offset, length := s.getSlot(slot)
	if length == 0 {
		return nil, ErrBadSlot
	}
	return s.p.Bytes()[offset : offset+length], nil
}
