package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
)

// Compile-time interface check.
var _ RunArchive = (*ParquetArchive)(nil)

// ParquetArchive implements RunArchive using one Parquet file per day:
//
//	<DataDir>/<YYYY-MM-DD>.parquet
type ParquetArchive struct {
	DataDir string

	mu sync.Mutex
}

// NewParquetArchive creates a new ParquetArchive rooted at dataDir.
func NewParquetArchive(dataDir string) *ParquetArchive {
	return &ParquetArchive{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record type (on-disk schema)
// ---------------------------------------------------------------------------

// runRow is the Parquet schema for run results.
type runRow struct {
	RunID     string `parquet:"run_id"`
	Kind      string `parquet:"kind"`
	Name      string `parquet:"name"`
	Mode      string `parquet:"mode"`
	Timestamp int64  `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Symbol    string `parquet:"symbol"`
	Side      string `parquet:"side"`
	Qty       string `parquet:"qty"`
	Outcome   string `parquet:"outcome"`
	OrderID   string `parquet:"order_id"`
	Reason    string `parquet:"reason"`
}

func toRow(r RunRecord) runRow {
	return runRow{
		RunID:     r.RunID,
		Kind:      r.Kind,
		Name:      r.Name,
		Mode:      r.Mode,
		Timestamp: r.Time.UnixMilli(),
		Symbol:    r.Symbol,
		Side:      r.Side,
		Qty:       r.Qty,
		Outcome:   r.Outcome,
		OrderID:   r.OrderID,
		Reason:    r.Reason,
	}
}

func fromRow(r runRow) RunRecord {
	return RunRecord{
		RunID:   r.RunID,
		Kind:    r.Kind,
		Name:    r.Name,
		Mode:    r.Mode,
		Time:    time.UnixMilli(r.Timestamp),
		Symbol:  r.Symbol,
		Side:    r.Side,
		Qty:     r.Qty,
		Outcome: r.Outcome,
		OrderID: r.OrderID,
		Reason:  r.Reason,
	}
}

// Append merges records into their day files. Parquet files are immutable,
// so each affected day is read, extended and rewritten.
func (a *ParquetArchive) Append(_ context.Context, records []RunRecord) error {
	if len(records) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	groups := make(map[string][]runRow)
	for _, r := range records {
		path := a.dayPath(r.Time)
		groups[path] = append(groups[path], toRow(r))
	}

	for path, rows := range groups {
		existing, err := readParquetFile[runRow](path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("reading %s: %w", filepath.Base(path), err)
		}
		merged := append(existing, rows...)
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].Timestamp < merged[j].Timestamp
		})
		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
		}
	}
	return nil
}

// ReadDay returns the records archived for day, oldest first. A day with no
// file yields no records.
func (a *ParquetArchive) ReadDay(_ context.Context, day time.Time) ([]RunRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rows, err := readParquetFile[runRow](a.dayPath(day))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]RunRecord, len(rows))
	for i, r := range rows {
		out[i] = fromRow(r)
	}
	return out, nil
}

func (a *ParquetArchive) dayPath(t time.Time) string {
	return filepath.Join(a.DataDir, t.Format("2006-01-02")+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, records); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
