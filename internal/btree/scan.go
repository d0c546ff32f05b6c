package btree

import (
	"fmt"

	"bptreeidx/internal/storage"
)

// scanState holds everything that must persist across startScan,
// scanNext and endScan calls.
type scanState struct {
	executing bool

	lowVal  KeyType
	lowOp   Operator
	highVal KeyType
	highOp  Operator

	currentPageNum uint32
	currentPage    *storage.Page
	nextEntry      int
}

func (t *tree) startScan(s *scanState, lowVal KeyType, lowOp Operator, highVal KeyType, highOp Operator) error {
	if s.executing {
		_ = t.endScan(s)
	}

	if lowOp != GT && lowOp != GTE {
		return ErrBadOpcodes
	}
	if highOp != LT && highOp != LTE {
		return ErrBadOpcodes
	}
	if lowVal > highVal {
		return ErrBadScanRange
	}

	rootPage, err := t.bp.GetPage(t.rootPage)
	if err != nil {
		return fmt.Errorf("btree: read root: %w", err)
	}
	cur := newNonLeafView(rootPage)
	curPage := rootPage

	for cur.level() != 1 {
		i := 0
		occ := cur.occupancy()
		for i < occ && cur.pageNo(i+1) != 0 && cur.key(i) <= lowVal {
			i++
		}
		childID := cur.pageNo(i)
		t.unpinIfPinned(curPage, false)

		childPage, err := t.bp.GetPage(childID)
		if err != nil {
			return fmt.Errorf("btree: scan descent: %w", err)
		}
		curPage = childPage
		cur = newNonLeafView(childPage)
	}

	// cur is the parent-of-leaves; pick the child whose subtree holds
	// keys >= lowVal (smallest i with pageNo(i+1)==0 or key(i) > lowVal).
	i := 0
	occ := cur.occupancy()
	for i < occ && cur.pageNo(i+1) != 0 && cur.key(i) <= lowVal {
		i++
	}
	leafID := cur.pageNo(i)
	t.unpinIfPinned(curPage, false)

	if leafID == 0 {
		// Empty tree: the bootstrap root has no children installed yet.
		// There is nothing to scan.
		s.executing = true
		s.lowVal, s.lowOp, s.highVal, s.highOp = lowVal, lowOp, highVal, highOp
		s.currentPage = nil
		s.nextEntry = 0
		return nil
	}

	leafPage, err := t.bp.GetPage(leafID)
	if err != nil {
		return fmt.Errorf("btree: scan reach leaf: %w", err)
	}
	leaf := newLeafView(leafPage)

	entry := LeafFanout
	occL := leaf.occupancy()
	for j := 0; j < occL; j++ {
		key := leaf.key(j)
		if (lowOp == GT && key > lowVal) || (lowOp == GTE && key >= lowVal) {
			entry = j
			break
		}
	}

	s.executing = true
	s.lowVal = lowVal
	s.lowOp = lowOp
	s.highVal = highVal
	s.highOp = highOp
	s.currentPageNum = leafID
	s.currentPage = leafPage
	s.nextEntry = entry
	return nil
}

// scanNext returns the next qualifying record identifier, or
// ErrIndexScanCompleted once the range is exhausted.
func (t *tree) scanNext(s *scanState) (rid, error) {
	if !s.executing {
		return rid{}, ErrScanNotInitialized
	}
	if s.currentPage == nil {
		return rid{}, ErrIndexScanCompleted
	}

	for {
		leaf := newLeafView(s.currentPage)

		if s.nextEntry == LeafFanout {
			t.unpinIfPinned(s.currentPage, false)
			rightSib := leaf.rightSib()
			if rightSib == 0 {
				s.currentPage = nil
				return rid{}, ErrIndexScanCompleted
			}
			nextPage, err := t.bp.GetPage(rightSib)
			if err != nil {
				s.currentPage = nil
				return rid{}, fmt.Errorf("btree: scan sibling hop: %w", err)
			}
			s.currentPageNum = rightSib
			s.currentPage = nextPage
			s.nextEntry = 0
			continue
		}

		leaf = newLeafView(s.currentPage)
		r := leaf.rid(s.nextEntry)
		if r.PageID == 0 {
			s.nextEntry = LeafFanout
			continue
		}

		key := leaf.key(s.nextEntry)

		if (s.highOp == LT && key >= s.highVal) || (s.highOp == LTE && key > s.highVal) {
			t.unpinIfPinned(s.currentPage, false)
			s.currentPage = nil
			return rid{}, ErrIndexScanCompleted
		}

		if s.lowOp == GT && key <= s.lowVal {
			s.nextEntry++
			continue
		}
		if s.lowOp == GTE && key < s.lowVal {
			s.nextEntry++
			continue
		}

		s.nextEntry++
		return r, nil
	}
}

// endScan clears the active scan and releases its pinned leaf.
func (t *tree) endScan(s *scanState) error {
	if !s.executing {
		return ErrScanNotInitialized
	}
	s.executing = false
	if s.currentPage != nil {
		t.unpinIfPinned(s.currentPage, false)
		s.currentPage = nil
	}
	return nil
}
