// Package btree implements a disk-resident B+ tree index over a single
// fixed-width int32 key: the page codec, node operations, tree engine,
// scan engine, and index lifecycle. Everything outside this package
// (the pager, the blob-file abstraction, the heap-file scanner) is an
// external collaborator the tree engine drives through narrow
// interfaces.
package btree

import "bptreeidx/internal/storage"

// KeyType is the only key type this index supports.
type KeyType = int32

const (
	// recordIDSize is sizeof(RecordId): a page number (uint32) and a
	// slot number (uint16).
	recordIDSize = 4 + 2

	// keySize is sizeof(int) for the key arrays.
	keySize = 4

	// pageNoSize is sizeof(pageNo).
	pageNoSize = 4

	// levelSize is sizeof(level) on an internal node.
	levelSize = 4

	// rightSibSize is sizeof(rightSibPageNo) on a leaf node.
	rightSibSize = 4
)

// LeafFanout and NonLeafFanout are derived from storage.PageSize so
// the fixed-size arrays packed into a page always fit; any
// reader of the on-disk file must compute them the same way.
var (
	LeafFanout    = (storage.PageSize - rightSibSize) / (keySize + recordIDSize)
	NonLeafFanout = (storage.PageSize - levelSize - pageNoSize) / (keySize + pageNoSize)
)

// invalidSlot fills the slot half of a cleared RecordId. Vacancy is
// determined solely by the page-number half being 0; this value only
// makes a cleared slot visibly distinct in a hex dump.
const invalidSlot = 0xFFFF

// Header page layout.
const (
	relationNameSize = 256

	hdrRelationNameOff = 0
	hdrAttrOffsetOff   = hdrRelationNameOff + relationNameSize
	hdrAttrTypeOff     = hdrAttrOffsetOff + 4
	hdrRootPageNumOff  = hdrAttrTypeOff + 4
)

// AttrType enumerates supported key datatypes. Only Int32 is
// implemented; the field exists so the header format has a place to
// record it and reject a mismatched reopen.
type AttrType int32

const (
	AttrInt32 AttrType = iota
)

// Fixed page numbers within an index file: page 0 is always the
// metadata header, page 1 is always the initial root. internal/storage
// numbers the first page of any file set 0, so the header occupies
// that slot instead of the traditional page 1.
const (
	headerPageNum     = 0
	initialRootPageNo = 1
)
