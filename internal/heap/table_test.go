package heap

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"bptreeidx/internal/bufferpool"
	"bptreeidx/internal/record"
	"bptreeidx/internal/storage"
)

func newTestTable(t *testing.T, base string) (*Table, *storage.StorageManager, storage.LocalFileSet) {
	t.Helper()

	dir := t.TempDir()
	sm := storage.NewStorageManager()
	fs := storage.LocalFileSet{Dir: dir, Base: base}
	gp := bufferpool.NewGlobalPool(sm, bufferpool.DefaultCapacity)
	bp := gp.View(fs)

	schema := record.Schema{
		Cols: []record.Column{
			{Name: "id", Type: record.ColInt64, Nullable: false},
			{Name: "name", Type: record.ColText, Nullable: false},
			{Name: "active", Type: record.ColBool, Nullable: false},
		},
	}

	tbl := NewTable(base, schema, sm, fs, bp, 0)
	return tbl, sm, fs
}

func TestTable_InsertAndScan_Persisted(t *testing.T) {
	tbl, sm, fs := newTestTable(t, "users")

	type rowData struct {
		id     int64
		name   string
		active bool
	}
	expected := make(map[int64]rowData)

	for i := 1; i <= 10; i++ {
		r := rowData{id: int64(i), name: fmt.Sprintf("user-%d", i), active: i%2 == 0}
		_, err := tbl.Insert([]any{r.id, r.name, r.active})
		require.NoError(t, err)
		expected[r.id] = r
	}
	require.NoError(t, tbl.Flush())

	pageCount, err := sm.CountPages(fs)
	require.NoError(t, err)
	require.Greater(t, pageCount, uint32(0))

	gp2 := bufferpool.NewGlobalPool(sm, bufferpool.DefaultCapacity)
	tbl2 := NewTable("users", tbl.Schema, sm, fs, gp2.View(fs), pageCount)

	got := make(map[int64]rowData)
	err = tbl2.Scan(func(id TID, row []any) error {
		got[row[0].(int64)] = rowData{id: row[0].(int64), name: row[1].(string), active: row[2].(bool)}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, expected, got)
}

func TestTable_Get(t *testing.T) {
	tbl, _, _ := newTestTable(t, "users_get")

	tid, err := tbl.Insert([]any{int64(7), "seven", true})
	require.NoError(t, err)

	row, err := tbl.Get(tid)
	require.NoError(t, err)
	require.Equal(t, int64(7), row[0].(int64))
	require.Equal(t, "seven", row[1].(string))
	require.True(t, row[2].(bool))
}

func TestTable_InsertGrowsAcrossPages(t *testing.T) {
	tbl, _, _ := newTestTable(t, "users_grow")

	for i := 0; i < 2000; i++ {
		_, err := tbl.Insert([]any{int64(i), fmt.Sprintf("row-%05d", i), i%3 == 0})
		require.NoError(t, err)
	}
	require.Greater(t, tbl.PageCount, uint32(1))

	count := 0
	err := tbl.Scan(func(id TID, row []any) error {
		count++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 2000, count)
}

func TestScanner_ScanNextReturnsEOF(t *testing.T) {
	tbl, _, _ := newTestTable(t, "users_scanner")
	for i := 1; i <= 3; i++ {
		_, err := tbl.Insert([]any{int64(i), fmt.Sprintf("user-%d", i), false})
		require.NoError(t, err)
	}

	sc := NewScanner(tbl)
	seen := 0
	for {
		_, _, err := sc.ScanNext()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		seen++
	}
	require.Equal(t, 3, seen)
	require.NoError(t, sc.Close())
}
