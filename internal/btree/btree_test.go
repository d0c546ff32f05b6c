package btree

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"bptreeidx/internal/bufferpool"
	"bptreeidx/internal/heap"
	"bptreeidx/internal/record"
	"bptreeidx/internal/storage"
)

// emptySource returns a heap scanner over an empty relation, so Open
// creates a fresh index with nothing to build from.
func emptySource(sm *storage.StorageManager, pool *bufferpool.GlobalPool, dir string) *heap.Scanner {
	fs := storage.LocalFileSet{Dir: dir, Base: "heap"}
	return heap.NewScanner(heap.NewTable("heap", record.Schema{}, sm, fs, pool.View(fs), 0))
}

func newTestIndex(t *testing.T, relation string) *Index {
	t.Helper()
	sm := storage.NewStorageManager()
	pool := bufferpool.NewGlobalPool(sm, 256)
	dir := t.TempDir()
	idx, err := Open(sm, pool, dir, relation, 0, AttrInt32, emptySource(sm, pool, dir), nil)
	require.NoError(t, err)
	return idx
}

// insertKeys is the test harness equivalent of the build-time heap
// scan: it inserts one entry per key with a synthetic, distinct rid so
// ordering and identity are both independently checkable.
func insertKeys(t *testing.T, idx *Index, keys []int32) []heap.TID {
	t.Helper()
	rids := make([]heap.TID, len(keys))
	for i, k := range keys {
		r := heap.TID{PageID: uint32(i + 1), Slot: uint16(i % 100)}
		require.NoError(t, idx.InsertEntry(k, r))
		rids[i] = r
	}
	return rids
}

func scanAll(t *testing.T, idx *Index, lowVal KeyType, lowOp Operator, highVal KeyType, highOp Operator) []heap.TID {
	t.Helper()
	require.NoError(t, idx.StartScan(lowVal, lowOp, highVal, highOp))
	defer func() { _ = idx.EndScan() }()

	var out []heap.TID
	for {
		r, err := idx.ScanNext()
		if errors.Is(err, ErrIndexScanCompleted) {
			break
		}
		require.NoError(t, err)
		out = append(out, r)
	}
	return out
}

func scanKeys(t *testing.T, idx *Index, keyOf map[heap.TID]int32, lowVal KeyType, lowOp Operator, highVal KeyType, highOp Operator) []int32 {
	t.Helper()
	rids := scanAll(t, idx, lowVal, lowOp, highVal, highOp)
	keys := make([]int32, len(rids))
	for i, r := range rids {
		keys[i] = keyOf[r]
	}
	return keys
}

// Scenario 1.
func TestScenario_SimpleRange(t *testing.T) {
	idx := newTestIndex(t, "rel1")
	keyOf := map[heap.TID]int32{}
	for _, r := range zipInsert(t, idx, []int32{10, 20, 30}, keyOf) {
		_ = r
	}
	got := scanKeys(t, idx, keyOf, 10, GTE, 30, LTE)
	require.Equal(t, []int32{10, 20, 30}, got)
}

// Scenario 2: four keys over a range wider than the data. At the real
// LeafFanout they stay within the two bootstrap leaves (no split).
func TestScenario_WideRangeFourKeys(t *testing.T) {
	idx := newTestIndex(t, "rel2")
	keyOf := map[heap.TID]int32{}
	zipInsert(t, idx, []int32{10, 20, 30, 40}, keyOf)
	got := scanKeys(t, idx, keyOf, 0, GTE, 100, LT)
	require.Equal(t, []int32{10, 20, 30, 40}, got)
}

// Scenario 3: exclusive bounds over eight keys. At the real LeafFanout
// no split or root growth happens here.
func TestScenario_ExclusiveBoundsEightKeys(t *testing.T) {
	idx := newTestIndex(t, "rel3")
	keyOf := map[heap.TID]int32{}
	zipInsert(t, idx, []int32{5, 15, 25, 35, 45, 55, 65, 75}, keyOf)
	got := scanKeys(t, idx, keyOf, 20, GT, 60, LT)
	require.Equal(t, []int32{25, 35, 45, 55}, got)
}

// Scenario 4: duplicate keys preserve insertion order within a leaf.
func TestScenario_DuplicateKeysStableOrder(t *testing.T) {
	idx := newTestIndex(t, "rel4")
	rids := insertKeys(t, idx, []int32{10, 10, 10})
	got := scanAll(t, idx, 10, GTE, 10, LTE)
	require.Equal(t, rids, got)
}

// Scenario 5: out-of-order insert still yields sorted scan.
func TestScenario_OutOfOrderInsert(t *testing.T) {
	idx := newTestIndex(t, "rel5")
	keyOf := map[heap.TID]int32{}
	zipInsert(t, idx, []int32{3, 1, 2}, keyOf)
	got := scanKeys(t, idx, keyOf, 1, GTE, 3, LTE)
	require.Equal(t, []int32{1, 2, 3}, got)
}

// Scenario 6: GT 50, LTE 50 is a contradiction, scan completes empty.
func TestScenario_EmptyRange(t *testing.T) {
	idx := newTestIndex(t, "rel6")
	keyOf := map[heap.TID]int32{}
	keys := make([]int32, 100)
	for i := range keys {
		keys[i] = int32(i + 1)
	}
	zipInsert(t, idx, keys, keyOf)
	got := scanKeys(t, idx, keyOf, 50, GT, 50, LTE)
	require.Empty(t, got)
}

func zipInsert(t *testing.T, idx *Index, keys []int32, keyOf map[heap.TID]int32) []heap.TID {
	t.Helper()
	rids := insertKeys(t, idx, keys)
	for i, r := range rids {
		keyOf[r] = keys[i]
	}
	return rids
}

// Boundary: GTE/LTE on an exact single value returns just that value.
func TestBoundary_ExactSingleValue(t *testing.T) {
	idx := newTestIndex(t, "boundary1")
	keyOf := map[heap.TID]int32{}
	zipInsert(t, idx, []int32{1, 2, 3, 4, 5}, keyOf)
	got := scanKeys(t, idx, keyOf, 3, GTE, 3, LTE)
	require.Equal(t, []int32{3}, got)
}

// Boundary: GT/LT with adjacent bounds returns nothing.
func TestBoundary_AdjacentExclusiveBoundsEmpty(t *testing.T) {
	idx := newTestIndex(t, "boundary2")
	keyOf := map[heap.TID]int32{}
	zipInsert(t, idx, []int32{10, 11}, keyOf)
	got := scanKeys(t, idx, keyOf, 9, GT, 12, LT)
	// 9<10<12 and 9<11<12 both qualify, sanity check non-empty first...
	require.Equal(t, []int32{10, 11}, got)

	got2 := scanKeys(t, idx, keyOf, 10, GT, 11, LT)
	require.Empty(t, got2)
}

// Error scenarios: malformed scan arguments and out-of-order calls.
func TestErrors_BadOpcodes(t *testing.T) {
	idx := newTestIndex(t, "err1")
	err := idx.StartScan(10, GT, 20, GT)
	require.ErrorIs(t, err, ErrBadOpcodes)
}

func TestErrors_BadScanRange(t *testing.T) {
	idx := newTestIndex(t, "err2")
	err := idx.StartScan(30, GTE, 10, LTE)
	require.ErrorIs(t, err, ErrBadScanRange)
}

func TestErrors_ScanNotInitialized(t *testing.T) {
	idx := newTestIndex(t, "err3")
	_, err := idx.ScanNext()
	require.ErrorIs(t, err, ErrScanNotInitialized)

	err = idx.EndScan()
	require.ErrorIs(t, err, ErrScanNotInitialized)
}

// Invariant 1: scan over the widest possible bounds returns exactly
// the inserted set in non-decreasing key order, for a random
// insertion order.
func TestInvariant_FullRangeScanMatchesInsertedSetSorted(t *testing.T) {
	idx := newTestIndex(t, "inv1")
	rnd := rand.New(rand.NewSource(42))
	n := 500
	keys := make([]int32, n)
	for i := range keys {
		keys[i] = int32(rnd.Intn(1000))
	}
	keyOf := map[heap.TID]int32{}
	zipInsert(t, idx, keys, keyOf)

	got := scanKeys(t, idx, keyOf, -1<<30, GTE, 1<<30, LTE)
	require.Len(t, got, n)
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, got[i-1], got[i])
	}

	wantCount := map[int32]int{}
	for _, k := range keys {
		wantCount[k]++
	}
	gotCount := map[int32]int{}
	for _, k := range got {
		gotCount[k]++
	}
	require.Equal(t, wantCount, gotCount)
}

// Invariant 4: leaves form a singly linked list terminated by 0 — if
// the scan reaches the rightmost leaf, a second scan started from the
// far left should visit every leaf reachable by rightSib without
// error. Exercised indirectly by scanning a range wide enough to force
// several sibling hops and confirming no duplicate or missing keys.
func TestInvariant_SiblingChainCoversAllLeaves(t *testing.T) {
	idx := newTestIndex(t, "inv4")
	n := 2000
	keys := make([]int32, n)
	for i := range keys {
		keys[i] = int32(i)
	}
	keyOf := map[heap.TID]int32{}
	zipInsert(t, idx, keys, keyOf)

	got := scanKeys(t, idx, keyOf, 0, GTE, int32(n-1), LTE)
	require.Equal(t, keys, got)
}

// Boundary: insert exactly LeafFanout-1 entries (no split), then one
// more, which fills the leaf without a split.
func TestBoundary_FillLeafWithoutSplit(t *testing.T) {
	idx := newTestIndex(t, "boundary3")
	keyOf := map[heap.TID]int32{}
	keys := make([]int32, LeafFanout-1)
	for i := range keys {
		keys[i] = int32(i)
	}
	zipInsert(t, idx, keys, keyOf)
	got := scanKeys(t, idx, keyOf, 0, GTE, int32(len(keys)), LT)
	require.Equal(t, keys, got)

	// A second insertKeys call would reuse rid {1, 0}; use a fresh one.
	last := heap.TID{PageID: uint32(len(keys) + 1)}
	require.NoError(t, idx.InsertEntry(int32(len(keys)), last))
	keyOf[last] = int32(len(keys))
	got2 := scanKeys(t, idx, keyOf, 0, GTE, int32(len(keys)+1), LT)
	require.Equal(t, append(append([]int32{}, keys...), int32(len(keys))), got2)
}

// Regression: scanNext must advance exactly once
// per emission, never repeating a key, across a sibling hop.
func TestRegression_NoRepeatedEmissionAcrossSiblingHop(t *testing.T) {
	idx := newTestIndex(t, "regress4")
	n := LeafFanout*3 + 5
	keys := make([]int32, n)
	for i := range keys {
		keys[i] = int32(i)
	}
	keyOf := map[heap.TID]int32{}
	zipInsert(t, idx, keys, keyOf)

	got := scanKeys(t, idx, keyOf, 0, GTE, int32(n), LT)
	seen := map[int32]bool{}
	for _, k := range got {
		require.False(t, seen[k], "key %d emitted twice", k)
		seen[k] = true
	}
	require.Equal(t, keys, got)
}

// Regression: opening an existing index file
// must not reallocate or corrupt the header; re-opening and scanning
// yields the same sequence (invariant 6, round-trip after flush).
func TestInvariant_RoundTripAfterReopen(t *testing.T) {
	sm := storage.NewStorageManager()
	dir := t.TempDir()

	pool1 := bufferpool.NewGlobalPool(sm, 256)
	idx1, err := Open(sm, pool1, dir, "relround", 0, AttrInt32, emptySource(sm, pool1, dir), nil)
	require.NoError(t, err)

	keyOf := map[heap.TID]int32{}
	keys := []int32{7, 3, 9, 1, 5, 100, 42}
	zipInsert(t, idx1, keys, keyOf)
	require.NoError(t, idx1.Close())

	pool2 := bufferpool.NewGlobalPool(sm, 256)
	idx2, err := Open(sm, pool2, dir, "relround", 0, AttrInt32, nil, nil)
	require.NoError(t, err)

	got := scanKeys(t, idx2, keyOf, -1000, GTE, 1000, LTE)
	want := append([]int32{}, keys...)
	require.ElementsMatch(t, want, got)
	for i := 1; i < len(got); i++ {
		require.LessOrEqual(t, got[i-1], got[i])
	}
}

// Root growth: growRoot must set the new root's
// level to old_root.level-1, clamped at 0, however many times it
// fires in a row. A real fanout this wide (over a thousand children per
// internal page) makes driving this through real InsertEntry calls
// impractical, so this drives propagateSplit directly against an
// empty path, white-box, rather than through full tree traversal.
func TestRootGrowsClampsLevelAtZero(t *testing.T) {
	idx := newTestIndex(t, "rootgrowth")

	require.NoError(t, idx.InsertEntry(1, heap.TID{PageID: 1}))

	rootBefore, err := idx.bp.GetPage(idx.tr.rootPage)
	require.NoError(t, err)
	levelBefore := newNonLeafView(rootBefore).level()
	require.NoError(t, idx.bp.Unpin(rootBefore, false))
	require.Equal(t, int32(1), levelBefore)

	oldRootID := idx.tr.rootPage
	newChildID, _, _, err := idx.tr.allocLeaf()
	require.NoError(t, err)

	require.NoError(t, idx.tr.propagateSplit(nil, 2, newChildID))
	require.NotEqual(t, oldRootID, idx.tr.rootPage)

	newRootPage, err := idx.bp.GetPage(idx.tr.rootPage)
	require.NoError(t, err)
	newRoot := newNonLeafView(newRootPage)
	require.Equal(t, int32(0), newRoot.level())
	require.Equal(t, oldRootID, newRoot.pageNo(0))
	require.Equal(t, newChildID, newRoot.pageNo(1))
	require.NoError(t, idx.bp.Unpin(newRootPage, false))

	// Growing again from an already-level-0 root must clamp, not go
	// negative.
	secondChildID, _, _, err := idx.tr.allocLeaf()
	require.NoError(t, err)
	require.NoError(t, idx.tr.propagateSplit(nil, 3, secondChildID))

	finalRootPage, err := idx.bp.GetPage(idx.tr.rootPage)
	require.NoError(t, err)
	require.Equal(t, int32(0), newNonLeafView(finalRootPage).level())
	require.NoError(t, idx.bp.Unpin(finalRootPage, false))
}
