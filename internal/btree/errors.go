package btree

import "errors"

var (
	// ErrBadOpcodes is raised when startScan is given a low operator
	// not in {GT, GTE} or a high operator not in {LT, LTE}.
	ErrBadOpcodes = errors.New("btree: scan operators must be (GT|GTE, LT|LTE)")

	// ErrBadScanRange is raised when startScan is given lowVal > highVal.
	ErrBadScanRange = errors.New("btree: low bound exceeds high bound")

	// ErrScanNotInitialized is raised by scanNext/endScan with no active scan.
	ErrScanNotInitialized = errors.New("btree: no scan is active")

	// ErrIndexScanCompleted is raised by scanNext once the range is exhausted.
	ErrIndexScanCompleted = errors.New("btree: scan has no more entries")
)
