package btree

// All operations in this file assume the node buffers they are given
// are already pinned by the caller; pin/unpin discipline belongs to
// the tree engine, not here.

// leafFindInsertPosition returns the smallest index i in
// [0, occupancy(leaf)] such that leaf.key(i) > k, or occupancy(leaf)
// if no such index exists. Duplicates land to the right of existing
// equal keys, since the predicate is strict ">".
func leafFindInsertPosition(l leafView, k KeyType) int {
	occ := l.occupancy()
	for i := 0; i < occ; i++ {
		if l.key(i) > k {
			return i
		}
	}
	return occ
}

// leafInsert inserts (k, r) into l, shifting tail entries right. It
// returns false without modifying l if the leaf is already full.
func leafInsert(l leafView, k KeyType, r rid) bool {
	if l.isFull() {
		return false
	}
	occ := l.occupancy()
	pos := leafFindInsertPosition(l, k)

	for j := occ; j > pos; j-- {
		l.setKey(j, l.key(j-1))
		l.setRid(j, l.rid(j-1))
	}
	l.setKey(pos, k)
	l.setRid(pos, r)
	return true
}

// leafSplit splits a full leaf l into l and a freshly allocated
// (already-pinned, zeroed) leaf newLeaf, then inserts (k, r) into
// whichever side it belongs on. It returns the separator key to lift
// into the parent: newLeaf.key(0) as it stands after the insert.
func leafSplit(l, newLeaf leafView, k KeyType, r rid) KeyType {
	center := (LeafFanout + 1) / 2
	moved := LeafFanout - center

	for i := 0; i < moved; i++ {
		newLeaf.setKey(i, l.key(center+i))
		newLeaf.setRid(i, l.rid(center+i))
		l.clearEntry(center + i)
	}

	newLeaf.setRightSib(l.rightSib())
	l.setRightSib(newLeaf.p.PageID())

	if k >= newLeaf.key(0) {
		leafInsert(newLeaf, k, r)
	} else {
		leafInsert(l, k, r)
	}

	return newLeaf.key(0)
}

// nonLeafInsert inserts (k, childPageId) into node, shifting keys and
// pointers right. It returns false without modifying node if full.
func nonLeafInsert(n nonLeafView, k KeyType, childPageID uint32) bool {
	if n.isFull() {
		return false
	}
	occ := n.occupancy()
	pos := 0
	for pos < occ && n.key(pos) < k {
		pos++
	}

	for j := occ; j > pos; j-- {
		n.setKey(j, n.key(j-1))
	}
	for j := occ + 1; j > pos+1; j-- {
		n.setPageNo(j, n.pageNo(j-1))
	}
	n.setKey(pos, k)
	n.setPageNo(pos+1, childPageID)
	return true
}

// nonLeafSplit splits a full internal node n into n and a freshly
// allocated (already-pinned, zeroed) node newNode, after merging in
// (k, childPageId) in sorted order. It returns the separator key
// promoted to the parent; that key is not retained in either node.
func nonLeafSplit(n, newNode nonLeafView, k KeyType, childPageID uint32) KeyType {
	workKeys := make([]KeyType, NonLeafFanout+1)
	workPtrs := make([]uint32, NonLeafFanout+2)

	for i := 0; i < NonLeafFanout; i++ {
		workKeys[i] = n.key(i)
	}
	for i := 0; i <= NonLeafFanout; i++ {
		workPtrs[i] = n.pageNo(i)
	}

	pos := 0
	for pos < NonLeafFanout && workKeys[pos] < k {
		pos++
	}
	for j := NonLeafFanout; j > pos; j-- {
		workKeys[j] = workKeys[j-1]
	}
	workKeys[pos] = k
	for j := NonLeafFanout + 1; j > pos+1; j-- {
		workPtrs[j] = workPtrs[j-1]
	}
	workPtrs[pos+1] = childPageID

	center := (NonLeafFanout + 2) / 2

	for i := 0; i < center; i++ {
		n.setKey(i, workKeys[i])
	}
	for i := 0; i <= center; i++ {
		n.setPageNo(i, workPtrs[i])
	}
	for i := center; i < NonLeafFanout; i++ {
		n.setKey(i, 0)
	}
	for i := center + 1; i <= NonLeafFanout; i++ {
		n.setPageNo(i, 0)
	}

	liftedKey := workKeys[center]

	newCount := NonLeafFanout - center
	for i := 0; i < newCount; i++ {
		newNode.setKey(i, workKeys[center+1+i])
	}
	for i := 0; i <= newCount; i++ {
		newNode.setPageNo(i, workPtrs[center+1+i])
	}
	newNode.setLevel(n.level())

	return liftedKey
}
