package btree

import (
	"bptreeidx/internal/alias/bx"
	"bptreeidx/internal/heap"
	"bptreeidx/internal/storage"
)

// rid is the on-page record-identifier shape: this package reuses
// heap.TID directly rather than inventing a parallel type, since a
// RecordId is exactly "which heap page, which slot".
type rid = heap.TID

// headerView interprets a page as the index's metadata header.
type headerView struct{ p *storage.Page }

func newHeaderView(p *storage.Page) headerView { return headerView{p: p} }

func (h headerView) relationName() string {
	b := h.p.Bytes()[hdrRelationNameOff : hdrRelationNameOff+relationNameSize]
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func (h headerView) setRelationName(name string) {
	b := h.p.Bytes()[hdrRelationNameOff : hdrRelationNameOff+relationNameSize]
	clear(b)
	copy(b, name)
}

func (h headerView) attrByteOffset() int32 {
	return int32(bx.U32(h.p.Bytes()[hdrAttrOffsetOff : hdrAttrOffsetOff+4]))
}

func (h headerView) setAttrByteOffset(v int32) {
	bx.PutU32(h.p.Bytes()[hdrAttrOffsetOff:hdrAttrOffsetOff+4], uint32(v))
}

func (h headerView) attrType() AttrType {
	return AttrType(bx.U32(h.p.Bytes()[hdrAttrTypeOff : hdrAttrTypeOff+4]))
}

func (h headerView) setAttrType(v AttrType) {
	bx.PutU32(h.p.Bytes()[hdrAttrTypeOff:hdrAttrTypeOff+4], uint32(v))
}

func (h headerView) rootPageNum() uint32 {
	return bx.U32(h.p.Bytes()[hdrRootPageNumOff : hdrRootPageNumOff+4])
}

func (h headerView) setRootPageNum(v uint32) {
	bx.PutU32(h.p.Bytes()[hdrRootPageNumOff:hdrRootPageNumOff+4], v)
}

// leafView interprets a page as a Leaf node: a rightSibPageNo, a
// non-decreasing keyArray, and a parallel ridArray. Entries are packed
// left-aligned; a slot is empty iff its rid's page number is 0.
type leafView struct{ p *storage.Page }

func newLeafView(p *storage.Page) leafView { return leafView{p: p} }

func (l leafView) rightSib() uint32 {
	return bx.U32(l.p.Bytes()[0:rightSibSize])
}

func (l leafView) setRightSib(v uint32) {
	bx.PutU32(l.p.Bytes()[0:rightSibSize], v)
}

func (l leafView) keyOff(i int) int {
	return rightSibSize + i*keySize
}

func (l leafView) ridOff(i int) int {
	return rightSibSize + LeafFanout*keySize + i*recordIDSize
}

func (l leafView) key(i int) KeyType {
	o := l.keyOff(i)
	return int32(bx.U32(l.p.Bytes()[o : o+4]))
}

func (l leafView) setKey(i int, k KeyType) {
	o := l.keyOff(i)
	bx.PutU32(l.p.Bytes()[o:o+4], uint32(k))
}

func (l leafView) rid(i int) rid {
	o := l.ridOff(i)
	b := l.p.Bytes()
	return rid{PageID: bx.U32(b[o : o+4]), Slot: bx.U16(b[o+4 : o+6])}
}

func (l leafView) setRid(i int, r rid) {
	o := l.ridOff(i)
	b := l.p.Bytes()
	bx.PutU32(b[o:o+4], r.PageID)
	bx.PutU16(b[o+4:o+6], r.Slot)
}

// clearEntry wipes slot i back to the vacancy sentinel: key -1, rid
// (0, invalidSlot).
func (l leafView) clearEntry(i int) {
	l.setKey(i, -1)
	l.setRid(i, rid{PageID: 0, Slot: invalidSlot})
}

// occupancy returns the count of used entries: the index of the first
// empty slot (rid.PageID == 0), or LeafFanout if the leaf is full.
func (l leafView) occupancy() int {
	for i := 0; i < LeafFanout; i++ {
		if l.rid(i).PageID == 0 {
			return i
		}
	}
	return LeafFanout
}

func (l leafView) isFull() bool {
	return l.rid(LeafFanout - 1).PageID != 0
}

// nonLeafView interprets a page as an internal node: a level, a
// non-decreasing keyArray, and a pageNoArray one longer than keyArray.
type nonLeafView struct{ p *storage.Page }

func newNonLeafView(p *storage.Page) nonLeafView { return nonLeafView{p: p} }

func (n nonLeafView) level() int32 {
	return int32(bx.U32(n.p.Bytes()[0:levelSize]))
}

func (n nonLeafView) setLevel(v int32) {
	bx.PutU32(n.p.Bytes()[0:levelSize], uint32(v))
}

func (n nonLeafView) pageNoOff(i int) int {
	return levelSize + i*pageNoSize
}

func (n nonLeafView) keyOff(i int) int {
	return levelSize + (NonLeafFanout+1)*pageNoSize + i*keySize
}

func (n nonLeafView) pageNo(i int) uint32 {
	o := n.pageNoOff(i)
	return bx.U32(n.p.Bytes()[o : o+4])
}

func (n nonLeafView) setPageNo(i int, v uint32) {
	o := n.pageNoOff(i)
	bx.PutU32(n.p.Bytes()[o:o+4], v)
}

func (n nonLeafView) key(i int) KeyType {
	o := n.keyOff(i)
	return int32(bx.U32(n.p.Bytes()[o : o+4]))
}

func (n nonLeafView) setKey(i int, k KeyType) {
	o := n.keyOff(i)
	bx.PutU32(n.p.Bytes()[o:o+4], uint32(k))
}

// occupancy returns the count of used keys: the index of the first
// empty child pointer beyond pageNoArray[0], or NonLeafFanout if full.
func (n nonLeafView) occupancy() int {
	for i := 0; i < NonLeafFanout; i++ {
		if n.pageNo(i+1) == 0 {
			return i
		}
	}
	return NonLeafFanout
}

func (n nonLeafView) isFull() bool {
	return n.pageNo(NonLeafFanout) != 0
}

// isEmptyRoot reports the bootstrap state before any entry has been
// inserted: a root
// internal node with no children installed yet.
func (n nonLeafView) isEmptyRoot() bool {
	return n.pageNo(0) == 0
}
