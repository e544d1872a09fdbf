// Package export 导出数据集供外部看板工具使用
package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"energyflow/dataset"
	"energyflow/pipeline"
)

// utf8BOM lets spreadsheet tools detect UTF-8 CSV files.
const utf8BOM = "\uFEFF"

// WriteOptions CSV 写出选项
type WriteOptions struct {
	BOMPrefix bool
}

// WriteCSV writes a header row followed by every row of ds. Nulls are empty cells.
func WriteCSV(w io.Writer, ds *dataset.Dataset, opts ...WriteOptions) error {
	var opt WriteOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	if opt.BOMPrefix {
		if _, err := io.WriteString(w, utf8BOM); err != nil {
			return err
		}
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(ds.Names()); err != nil {
		return err
	}

	columns := ds.Columns()
	record := make([]string, len(columns))
	for r := 0; r < ds.Len(); r++ {
		for c, col := range columns {
			record[c] = col.Values[r].Format(col.Kind)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ExportCSV writes ds to path, creating parent directories as needed.
func ExportCSV(path string, ds *dataset.Dataset, opts ...WriteOptions) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	buf := bufio.NewWriter(file)
	if err := WriteCSV(buf, ds, opts...); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := buf.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ExportExcel writes ds to a single-sheet workbook. Numeric cells are stored
// as numbers so the dashboard tool can aggregate them.
func ExportExcel(path, sheet string, ds *dataset.Dataset) error {
	if sheet == "" {
		sheet = "Sheet1"
	}
	if err := ensureDir(path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	header := make([]interface{}, ds.Width())
	for i, name := range ds.Names() {
		header[i] = name
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}

	columns := ds.Columns()
	for r := 0; r < ds.Len(); r++ {
		row := make([]interface{}, len(columns))
		for c, col := range columns {
			v := col.Values[r]
			switch {
			case v.Null:
				row[c] = nil
			case col.Kind.IsNumeric():
				row[c] = v.Num
			default:
				row[c] = v.Str
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}

// UsageSummary totals usageColumn per distinct groupColumn value into a
// total_usage column, sorted by group.
func UsageSummary(ds *dataset.Dataset, groupColumn, usageColumn string) (*dataset.Dataset, error) {
	return pipeline.GroupSum(ds, groupColumn, usageColumn, pipeline.TotalUsageColumn)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}
