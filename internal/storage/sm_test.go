package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorageManager_LoadPageZeroFillsBeyondEOF(t *testing.T) {
	fs := LocalFileSet{Dir: t.TempDir(), Base: "segment"}
	sm := NewStorageManager()

	pg, err := sm.LoadPage(fs, 0)
	require.NoError(t, err)
	require.NotNil(t, pg)
	require.True(t, pg.IsZero())
}

func TestStorageManager_SaveAndLoadRoundTrip(t *testing.T) {
	fs := LocalFileSet{Dir: t.TempDir(), Base: "segment"}
	sm := NewStorageManager()

	p := NewPage(3)
	copy(p.Bytes(), []byte("hello page"))
	require.NoError(t, sm.SavePage(fs, 3, p))

	got, err := sm.LoadPage(fs, 3)
	require.NoError(t, err)
	require.Equal(t, uint32(3), got.PageID())
	require.Equal(t, []byte("hello page"), got.Bytes()[:len("hello page")])
}

func TestStorageManager_CountPages(t *testing.T) {
	fs := LocalFileSet{Dir: t.TempDir(), Base: "segment"}
	sm := NewStorageManager()

	for i := uint32(0); i < 5; i++ {
		require.NoError(t, sm.SavePage(fs, i, NewPage(i)))
	}

	n, err := sm.CountPages(fs)
	require.NoError(t, err)
	require.Equal(t, uint32(5), n)
}
