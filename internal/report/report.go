// Package report writes a run's records to a spreadsheet.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hazz-dev/dashprobe/internal/checker"
)

const sheet = "Sheet1"

// TimeLayout is the timestamp embedded in report file names.
const TimeLayout = "2006-01-02_15-04-05"

// Columns is the report header row.
var Columns = []string{"Site", "Company", "Service", "Menu", "URL", "Check", "Locator", "Value", "Status", "Screenshot"}

// Writer writes report files into a directory.
type Writer struct {
	dir    string
	prefix string
}

// NewWriter creates a Writer. Files are named <prefix>_<timestamp>.xlsx.
func NewWriter(dir, prefix string) *Writer {
	if dir == "" {
		dir = "."
	}
	if prefix == "" {
		prefix = "global_health_check_report"
	}
	return &Writer{dir: dir, prefix: prefix}
}

// Path returns the file a report written at t would go to.
func (w *Writer) Path(t time.Time) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.xlsx", w.prefix, t.Format(TimeLayout)))
}

// Row flattens a record in column order.
func Row(r checker.Record) []interface{} {
	return []interface{}{
		r.Site, r.Company, r.Service, r.Menu, r.URL,
		r.Check, r.Locator, r.Value, string(r.Status), r.Screenshot,
	}
}

// Write stores records at Path(t) and returns the path.
func (w *Writer) Write(records []checker.Record, t time.Time) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report dir: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return "", fmt.Errorf("writing report header: %w", err)
	}
	for i, r := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		row := Row(r)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return "", fmt.Errorf("writing report row %d: %w", i+1, err)
		}
	}

	path := w.Path(t)
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("saving report %s: %w", path, err)
	}
	return path, nil
}
