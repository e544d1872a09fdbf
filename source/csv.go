// Package source 加载原始能耗数据（CSV 文件、HTTP API）
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"energyflow/dataset"
	"energyflow/export"
)

// DefaultNullTokens are the cell values read as missing. Matching ignores
// case and surrounding space.
var DefaultNullTokens = []string{"", "NA", "NaN", "null", "N/A"}

// ErrNonFinite rejects infinite numeric cells.
var ErrNonFinite = errors.New("non-finite number")

// Options CSV 读取选项
type Options struct {
	// Schema fixes the kind of the named columns; others are inferred.
	Schema map[string]dataset.Kind
	// Charset names the input encoding, e.g. "windows-1252" or "gbk".
	Charset    string
	NullTokens []string
}

func (o Options) nullSet() map[string]struct{} {
	tokens := o.NullTokens
	if tokens == nil {
		tokens = DefaultNullTokens
	}
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[strings.ToLower(strings.TrimSpace(t))] = struct{}{}
	}
	return set
}

// LoadCSV 从文件加载数据集
func LoadCSV(path string, opts Options) (*dataset.Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	ds, err := ReadCSV(file, opts)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return ds, nil
}

// ReadCSV parses a CSV stream whose first record is the header.
func ReadCSV(r io.Reader, opts Options) (*dataset.Dataset, error) {
	decoded, err := decodeCharset(r, opts.Charset)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(decoded)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty csv: no header row")
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}
	reader.FieldsPerRecord = len(header)

	cells := make([][]string, len(header))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		for i, v := range record {
			cells[i] = append(cells[i], v)
		}
	}

	tokens := opts.nullSet()
	columns := make([]*dataset.Column, len(header))
	for i, name := range header {
		nulls := make([]bool, len(cells[i]))
		for r, v := range cells[i] {
			_, nulls[r] = tokens[strings.ToLower(strings.TrimSpace(v))]
		}
		kind, explicit := opts.Schema[name]
		col, err := buildColumn(name, cells[i], nulls, kind, explicit)
		if err != nil {
			return nil, err
		}
		columns[i] = col
	}
	return dataset.New(columns...)
}

func decodeCharset(r io.Reader, charset string) (io.Reader, error) {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		return r, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// inferKind picks numeric when every present value parses as a number,
// timestamp when every present value parses as a timestamp, and categorical
// otherwise. A column with no present values is numeric.
func inferKind(cells []string, nulls []bool) dataset.Kind {
	allNumeric, allTime := true, true
	for i, v := range cells {
		if nulls[i] {
			continue
		}
		v = strings.TrimSpace(v)
		if allNumeric {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allNumeric = false
			}
		}
		if allTime {
			if _, err := dataset.ParseTime(v); err != nil {
				allTime = false
			}
		}
		if !allNumeric && !allTime {
			return dataset.KindCategorical
		}
	}
	if allNumeric {
		return dataset.KindNumeric
	}
	return dataset.KindTimestamp
}

func buildColumn(name string, cells []string, nulls []bool, kind dataset.Kind, explicit bool) (*dataset.Column, error) {
	if !explicit {
		kind = inferKind(cells, nulls)
	}
	col := &dataset.Column{Name: name, Kind: kind, Values: make([]dataset.Value, len(cells))}
	for i, raw := range cells {
		if nulls[i] {
			col.Values[i] = dataset.Null()
			continue
		}
		if !kind.IsNumeric() {
			col.Values[i] = dataset.Text(raw)
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, &dataset.ParseError{Column: name, Row: i, Raw: raw, Err: err}
		}
		switch {
		case math.IsNaN(f):
			col.Values[i] = dataset.Null()
		case math.IsInf(f, 0):
			return nil, &dataset.ParseError{Column: name, Row: i, Raw: raw, Err: ErrNonFinite}
		default:
			col.Values[i] = dataset.Number(f)
		}
	}
	return col, nil
}

// AppendCSV appends the rows of ds to the CSV file at path. The combined
// columns are the union of both schemas; cells absent on one side are empty.
// A missing file is created.
func AppendCSV(path string, ds *dataset.Dataset, opts Options) error {
	if opts.Schema == nil {
		opts.Schema = make(map[string]dataset.Kind, ds.Width())
		for _, col := range ds.Columns() {
			opts.Schema[col.Name] = col.Kind
		}
	}

	existing, err := LoadCSV(path, opts)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return export.ExportCSV(path, ds)
	case err != nil:
		return err
	}

	combined, err := dataset.Concat(existing, ds)
	if err != nil {
		return fmt.Errorf("append to %s: %w", path, err)
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := export.ExportCSV(tmp, combined); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
