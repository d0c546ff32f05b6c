// Command buildindex is a manual smoke-test driver: it builds a small
// users heap relation, builds a B+ tree index over its id column, and
// runs one range scan against it. It is not a product CLI —
// just the quickest way to drive the whole stack end to end by hand.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"bptreeidx/internal/btree"
	"bptreeidx/internal/bufferpool"
	"bptreeidx/internal/config"
	"bptreeidx/internal/heap"
	"bptreeidx/internal/record"
	"bptreeidx/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "optional path to a YAML config file")
	dataDir := flag.String("data-dir", filepath.Join("data", "buildindex_demo"), "directory to hold heap and index files")
	rowCount := flag.Int("rows", 25, "number of demo rows to insert")
	flag.Parse()

	if err := run(*configPath, *dataDir, *rowCount); err != nil {
		slog.Error("buildindex failed", "err", err)
		os.Exit(1)
	}
}

func run(configPath, dataDir string, rowCount int) error {
	bufferPoolPages := bufferpool.DefaultCapacity
	if configPath != "" {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Storage.DataDir != "" {
			dataDir = cfg.Storage.DataDir
		}
		if cfg.Storage.PageSize != 0 && cfg.Storage.PageSize != storage.PageSize {
			return fmt.Errorf("config page_size=%d does not match the compiled page size %d", cfg.Storage.PageSize, storage.PageSize)
		}
		if cfg.Index.BufferPoolPages > 0 {
			bufferPoolPages = cfg.Index.BufferPoolPages
		}
	}

	sm := storage.NewStorageManager()
	pool := bufferpool.NewGlobalPool(sm, bufferPoolPages)

	schema := record.Schema{
		Cols: []record.Column{
			{Name: "id", Type: record.ColInt32, Nullable: false},
			{Name: "name", Type: record.ColText, Nullable: false},
			{Name: "active", Type: record.ColBool, Nullable: false},
		},
	}

	tableFS := storage.LocalFileSet{Dir: dataDir, Base: "users"}
	tbl := heap.NewTable("users", schema, sm, tableFS, pool.View(tableFS), 0)

	for i := 1; i <= rowCount; i++ {
		if _, err := tbl.Insert([]any{int32(i), fmt.Sprintf("user-%d", i), i%2 == 0}); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	if err := tbl.Flush(); err != nil {
		return fmt.Errorf("flush table: %w", err)
	}

	extractID := func(row []any) (btree.KeyType, error) {
		id, ok := row[0].(int32)
		if !ok {
			return 0, fmt.Errorf("column 0 is not int32: %#v", row[0])
		}
		return id, nil
	}

	idx, err := btree.Open(sm, pool, dataDir, "users", 0, btree.AttrInt32, heap.NewScanner(tbl), extractID)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	defer func() {
		if err := idx.Close(); err != nil {
			slog.Error("close index", "err", err)
		}
	}()

	mid := int32(rowCount / 2)
	fmt.Printf("scanning ids in [%d, %d]:\n", mid, mid+5)
	if err := idx.StartScan(mid, btree.GTE, mid+5, btree.LTE); err != nil {
		return fmt.Errorf("start scan: %w", err)
	}
	for {
		tid, err := idx.ScanNext()
		if errors.Is(err, btree.ErrIndexScanCompleted) {
			break
		}
		if err != nil {
			return fmt.Errorf("scan next: %w", err)
		}
		row, err := tbl.Get(tid)
		if err != nil {
			return fmt.Errorf("get row %+v: %w", tid, err)
		}
		fmt.Printf("  tid=%+v row=%v\n", tid, row)
	}
	if err := idx.EndScan(); err != nil {
		return fmt.Errorf("end scan: %w", err)
	}
	return nil
}
