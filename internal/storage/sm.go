package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"bptreeidx/internal/alias/util"
)

// FileSet names the segmented backing files for one logical blob (a heap
// relation or an index). Segments are addressed by number so a single
// logical file can span more than one OS file once it grows past
// SegmentSize.
type FileSet interface {
	OpenSegment(segNo int32) (*os.File, error)
}

var _ FileSet = (*LocalFileSet)(nil)

// LocalFileSet is a FileSet backed by plain files in a directory. Segment
// N>0 is named Base.N; segment 0 is named Base.
type LocalFileSet struct {
	Dir  string
	Base string
}

// SegmentPath returns the on-disk path for a given segment number without
// opening or creating it.
func (lfs LocalFileSet) SegmentPath(segNo int32) string {
	name := lfs.Base
	if segNo > 0 {
		name = fmt.Sprintf("%s.%d", lfs.Base, segNo)
	}
	return filepath.Join(lfs.Dir, name)
}

func (lfs LocalFileSet) OpenSegment(segNo int32) (*os.File, error) {
	if err := os.MkdirAll(lfs.Dir, FileMode0755); err != nil {
		return nil, err
	}
	return os.OpenFile(lfs.SegmentPath(segNo), os.O_RDWR|os.O_CREATE, FileMode0644)
}

// Exists reports whether the first segment of this file set is already
// present on disk, without creating it.
func (lfs LocalFileSet) Exists() bool {
	_, err := os.Stat(lfs.SegmentPath(0))
	return err == nil
}

// StorageManager maps a logical pageID to a (segment, offset) pair and
// performs the raw page-granular reads and writes. It holds no state of
// its own; all addressing is derived from constants, which keeps it safe
// to share across every FileSet in the process.
type StorageManager struct{}

func NewStorageManager() *StorageManager {
	return &StorageManager{}
}

func (sm *StorageManager) pagesPerSegment() int64 {
	return SegmentSize / PageSize
}

func (sm *StorageManager) locate(pageID uint32) (segNo int32, offset int64) {
	pps := sm.pagesPerSegment()
	segNo = int32(int64(pageID) / pps)
	pageInSeg := int64(pageID) % pps
	offset = pageInSeg * PageSize
	return segNo, offset
}

// ReadPage reads exactly PageSize bytes into dst, zero-filling any
// portion that lies beyond the current end of the underlying file. This
// lets higher layers allocate a page number before ever writing it.
func (sm *StorageManager) ReadPage(fs FileSet, pageID uint32, dst []byte) error {
	if len(dst) != PageSize {
		return fmt.Errorf("storage: dst must be exactly %d bytes", PageSize)
	}
	segNo, off := sm.locate(pageID)
	f, err := fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer util.CloseFileFunc(f)

	n, err := f.ReadAt(dst, off)
	if err != nil && err != io.EOF {
		return err
	}
	for i := n; i < PageSize; i++ {
		dst[i] = 0
	}
	return nil
}

// WritePage writes exactly PageSize bytes from src at the page's location.
func (sm *StorageManager) WritePage(fs FileSet, pageID uint32, src []byte) error {
	if len(src) != PageSize {
		return fmt.Errorf("storage: src must be exactly %d bytes", PageSize)
	}
	segNo, off := sm.locate(pageID)
	f, err := fs.OpenSegment(segNo)
	if err != nil {
		return err
	}
	defer util.CloseFileFunc(f)

	n, err := f.WriteAt(src, off)
	if err != nil {
		return err
	}
	if n != PageSize {
		return io.ErrShortWrite
	}
	return nil
}

// LoadPage reads a page off disk into a fresh in-memory Page. Pages that
// have never been written are all-zero, which satisfies the vacancy
// sentinel convention without any special-casing here.
func (sm *StorageManager) LoadPage(fs FileSet, pageID uint32) (*Page, error) {
	p := NewPage(pageID)
	if err := sm.ReadPage(fs, pageID, p.buf); err != nil {
		return nil, err
	}
	return p, nil
}

// SavePage persists an in-memory page back to its slot on disk.
func (sm *StorageManager) SavePage(fs FileSet, pageID uint32, p *Page) error {
	return sm.WritePage(fs, pageID, p.buf)
}

// CountPages scans every segment of fs and returns the total page count.
// The tree engine uses this on open to recompute its next-free-page
// counter directly from the file, rather than trusting a cached value
// that might predate a crash.
func (sm *StorageManager) CountPages(fs FileSet) (uint32, error) {
	var total uint32
	for segNo := int32(0); ; segNo++ {
		// OpenSegment creates missing segments, so probe first.
		if lfs, ok := fs.(LocalFileSet); ok {
			if _, err := os.Stat(lfs.SegmentPath(segNo)); os.IsNotExist(err) {
				break
			}
		}
		f, err := fs.OpenSegment(segNo)
		if err != nil {
			if os.IsNotExist(err) {
				break
			}
			return 0, err
		}
		info, statErr := f.Stat()
		_ = f.Close()
		if statErr != nil {
			return 0, statErr
		}
		if info.Size() <= 0 {
			continue
		}
		total += uint32(info.Size() / PageSize)
	}
	return total, nil
}
