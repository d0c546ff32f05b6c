package btree

import (
	"fmt"
	"log/slog"

	"bptreeidx/internal/bufferpool"
	"bptreeidx/internal/storage"
)

// tree owns the pin/unpin discipline against the pager while running
// root-to-leaf descent, split propagation, and root growth. nextPage
// and setRoot are callbacks into the owning Index so the tree engine
// never needs to know about the metadata header directly.
type tree struct {
	bp       bufferpool.Manager
	nextPage func() uint32
	rootPage uint32
	setRoot  func(uint32)
}

func newTree(bp bufferpool.Manager, nextPage func() uint32, rootPage uint32, setRoot func(uint32)) *tree {
	return &tree{bp: bp, nextPage: nextPage, rootPage: rootPage, setRoot: setRoot}
}

// unpinIfPinned releases a page, swallowing the benign "already
// unpinned" / "unknown page" outcomes a real pager can surface
// (PageNotPinned, HashNotFound). This pool's own Unpin is
// already idempotent for those cases, so this wrapper never actually
// has anything to swallow from this stack; it exists as the
// documented seam where a different pager's benign errors would be
// caught, matching the design note to prefer an idempotent primitive
// over exception-swallowing.
func (t *tree) unpinIfPinned(p *storage.Page, dirty bool) {
	if p == nil {
		return
	}
	if err := t.bp.Unpin(p, dirty); err != nil {
		slog.Debug("btree: unpin failed, treating as benign", "page", p.PageID(), "err", err)
	}
}

func (t *tree) allocLeaf() (uint32, *storage.Page, leafView, error) {
	id := t.nextPage()
	p, err := t.bp.GetPage(id)
	if err != nil {
		return 0, nil, leafView{}, fmt.Errorf("btree: alloc leaf: %w", err)
	}
	p.Reset(id)
	return id, p, newLeafView(p), nil
}

func (t *tree) allocNonLeaf(level int32) (uint32, *storage.Page, nonLeafView, error) {
	id := t.nextPage()
	p, err := t.bp.GetPage(id)
	if err != nil {
		return 0, nil, nonLeafView{}, fmt.Errorf("btree: alloc internal: %w", err)
	}
	p.Reset(id)
	nv := newNonLeafView(p)
	nv.setLevel(level)
	return id, p, nv, nil
}

// insertEntry walks from the root to the target leaf, inserts (k, r),
// and propagates any split back up to the root, growing the tree by
// one level if propagation reaches the top.
func (t *tree) insertEntry(k KeyType, r rid) error {
	rootPage, err := t.bp.GetPage(t.rootPage)
	if err != nil {
		return fmt.Errorf("btree: read root: %w", err)
	}
	root := newNonLeafView(rootPage)

	if root.isEmptyRoot() {
		return t.insertIntoEmptyTree(rootPage, root, k, r)
	}

	// path holds page numbers from the root down to (but excluding) the
	// leaf itself, so propagateSplit can re-pin each ancestor by number
	// rather than holding onto a pointer that a later allocation might
	// have evicted from the pool.
	path := []uint32{t.rootPage}

	cur := root
	curPage := rootPage
	for {
		i := 0
		occ := cur.occupancy()
		// A key equal to a separator goes right, as in startScan's descent.
		for i < occ && cur.pageNo(i+1) != 0 && cur.key(i) <= k {
			i++
		}
		childID := cur.pageNo(i)

		childPage, err := t.bp.GetPage(childID)
		if err != nil {
			t.unpinIfPinned(curPage, false)
			return fmt.Errorf("btree: read child: %w", err)
		}

		if cur.level() == 1 {
			t.unpinIfPinned(curPage, false)
			return t.insertIntoLeafAndPropagate(childPage, path, k, r)
		}

		t.unpinIfPinned(curPage, false)
		curPage = childPage
		cur = newNonLeafView(childPage)
		path = append(path, childID)
	}
}

// insertIntoEmptyTree handles the bootstrap special case: the root has
// no children yet. It installs two fresh leaves and descends into the
// right one to perform the actual insert.
func (t *tree) insertIntoEmptyTree(rootPage *storage.Page, root nonLeafView, k KeyType, r rid) error {
	leftID, leftPage, left, err := t.allocLeaf()
	if err != nil {
		t.unpinIfPinned(rootPage, false)
		return err
	}
	rightID, rightPage, right, err := t.allocLeaf()
	if err != nil {
		t.unpinIfPinned(leftPage, false)
		t.unpinIfPinned(rootPage, false)
		return err
	}

	left.setRightSib(rightID)

	root.setPageNo(0, leftID)
	root.setPageNo(1, rightID)
	root.setKey(0, k)
	root.setLevel(1)

	t.unpinIfPinned(leftPage, true)
	t.unpinIfPinned(rootPage, true)

	if !leafInsert(right, k, r) {
		t.unpinIfPinned(rightPage, false)
		return fmt.Errorf("btree: bootstrap leaf insert failed unexpectedly")
	}
	t.unpinIfPinned(rightPage, true)
	return nil
}

// insertIntoLeafAndPropagate inserts into the already-pinned leaf,
// splitting and propagating up the given path (page numbers, root
// first, leaf's own number excluded) as needed.
func (t *tree) insertIntoLeafAndPropagate(leafPage *storage.Page, path []uint32, k KeyType, r rid) error {
	leaf := newLeafView(leafPage)

	if leafInsert(leaf, k, r) {
		t.unpinIfPinned(leafPage, true)
		return nil
	}

	newLeafID, newLeafPage, newLeaf, err := t.allocLeaf()
	if err != nil {
		t.unpinIfPinned(leafPage, false)
		return err
	}
	liftedKey := leafSplit(leaf, newLeaf, k, r)
	t.unpinIfPinned(leafPage, true)
	t.unpinIfPinned(newLeafPage, true)

	return t.propagateSplit(path, liftedKey, newLeafID)
}

// propagateSplit walks path from its tail (the immediate parent)
// toward the root, inserting (k, newChildID) at each level and
// splitting again wherever the parent is full. If the path empties
// while a split is still pending, it grows the tree by one level.
func (t *tree) propagateSplit(path []uint32, k KeyType, newChildID uint32) error {
	for len(path) > 0 {
		parentID := path[len(path)-1]
		path = path[:len(path)-1]

		parentPage, err := t.bp.GetPage(parentID)
		if err != nil {
			return fmt.Errorf("btree: read parent: %w", err)
		}
		parent := newNonLeafView(parentPage)

		if nonLeafInsert(parent, k, newChildID) {
			t.unpinIfPinned(parentPage, true)
			return nil
		}

		newParentID, newParentPage, newParent, err := t.allocNonLeaf(parent.level())
		if err != nil {
			t.unpinIfPinned(parentPage, false)
			return err
		}
		liftedKey := nonLeafSplit(parent, newParent, k, newChildID)
		t.unpinIfPinned(parentPage, true)
		t.unpinIfPinned(newParentPage, true)

		k = liftedKey
		newChildID = newParentID
	}

	return t.growRoot(k, newChildID)
}

// growRoot allocates a new root one level above the current one,
// installing the old root and the freshly split-off sibling as its
// two children. The new root's level is old_root.level - 1 (never
// below 0), preserving "level 1 means parent-of-leaves" regardless of
// how many times the tree has grown.
func (t *tree) growRoot(k KeyType, rightChildID uint32) error {
	oldRootPage, err := t.bp.GetPage(t.rootPage)
	if err != nil {
		return fmt.Errorf("btree: read old root for growth: %w", err)
	}
	oldRoot := newNonLeafView(oldRootPage)
	oldLevel := oldRoot.level()
	t.unpinIfPinned(oldRootPage, false)

	newLevel := oldLevel - 1
	if newLevel < 0 {
		newLevel = 0
	}

	newRootID, newRootPage, newRoot, err := t.allocNonLeaf(newLevel)
	if err != nil {
		return err
	}
	newRoot.setPageNo(0, t.rootPage)
	newRoot.setPageNo(1, rightChildID)
	newRoot.setKey(0, k)
	t.unpinIfPinned(newRootPage, true)

	t.rootPage = newRootID
	t.setRoot(newRootID)
	return nil
}
