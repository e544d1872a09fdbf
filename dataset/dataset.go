// Package dataset 提供内存表格数据结构
package dataset

import (
	"fmt"
	"strconv"
)

// Kind 列语义类型
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindCategorical Kind = "categorical"
	KindTimestamp   Kind = "timestamp"
	KindDerived     Kind = "derived"
)

// IsNumeric reports whether values of this kind are stored as numbers.
func (k Kind) IsNumeric() bool {
	return k == KindNumeric || k == KindDerived
}

// ParseKind 解析列类型
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindNumeric, KindCategorical, KindTimestamp, KindDerived:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown column kind %q", s)
}

// Value 单元格值
type Value struct {
	Num  float64
	Str  string
	Null bool
}

func Number(f float64) Value { return Value{Num: f} }
func Text(s string) Value    { return Value{Str: s} }
func Null() Value            { return Value{Null: true} }

// Format renders the value for CSV output. Null renders as an empty cell.
func (v Value) Format(k Kind) string {
	if v.Null {
		return ""
	}
	if k.IsNumeric() {
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return v.Str
}

// Column 数据列
type Column struct {
	Name   string
	Kind   Kind
	Values []Value
}

// NewNumericColumn 创建数值列
func NewNumericColumn(name string, values []float64) *Column {
	col := &Column{Name: name, Kind: KindNumeric, Values: make([]Value, len(values))}
	for i, v := range values {
		col.Values[i] = Number(v)
	}
	return col
}

// NewTextColumn creates a categorical or timestamp column. Empty strings are null.
func NewTextColumn(name string, kind Kind, values []string) *Column {
	col := &Column{Name: name, Kind: kind, Values: make([]Value, len(values))}
	for i, v := range values {
		if v == "" {
			col.Values[i] = Null()
			continue
		}
		col.Values[i] = Text(v)
	}
	return col
}

func (c *Column) Len() int { return len(c.Values) }

// NullCount 统计缺失值数量
func (c *Column) NullCount() int {
	n := 0
	for _, v := range c.Values {
		if v.Null {
			n++
		}
	}
	return n
}

// Floats returns the column as numbers. The second result is false when the
// column is not numeric or holds a null.
func (c *Column) Floats() ([]float64, bool) {
	if !c.Kind.IsNumeric() {
		return nil, false
	}
	out := make([]float64, len(c.Values))
	for i, v := range c.Values {
		if v.Null {
			return nil, false
		}
		out[i] = v.Num
	}
	return out, true
}

// Strings 返回格式化后的字符串值
func (c *Column) Strings() []string {
	out := make([]string, len(c.Values))
	for i, v := range c.Values {
		out[i] = v.Format(c.Kind)
	}
	return out
}

// Clone 深拷贝列
func (c *Column) Clone() *Column {
	values := make([]Value, len(c.Values))
	copy(values, c.Values)
	return &Column{Name: c.Name, Kind: c.Kind, Values: values}
}

// Dataset 有序行、有序列的表格数据，按列存储
type Dataset struct {
	columns []*Column
	index   map[string]int
	rows    int
}

// New 创建数据集
func New(columns ...*Column) (*Dataset, error) {
	ds := &Dataset{index: make(map[string]int)}
	for _, col := range columns {
		if err := ds.AddColumn(col); err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// Len 行数
func (d *Dataset) Len() int { return d.rows }

// Width 列数
func (d *Dataset) Width() int { return len(d.columns) }

// AddColumn appends a column. The first column fixes the row count.
func (d *Dataset) AddColumn(col *Column) error {
	if col == nil || col.Name == "" {
		return fmt.Errorf("column name is required")
	}
	if _, exists := d.index[col.Name]; exists {
		return fmt.Errorf("duplicate column %q", col.Name)
	}
	if len(d.columns) > 0 && col.Len() != d.rows {
		return fmt.Errorf("column %q has %d rows, dataset has %d", col.Name, col.Len(), d.rows)
	}
	if len(d.columns) == 0 {
		d.rows = col.Len()
	}
	d.index[col.Name] = len(d.columns)
	d.columns = append(d.columns, col)
	return nil
}

// SetColumn replaces an existing column in place or appends a new one.
func (d *Dataset) SetColumn(col *Column) error {
	idx, exists := d.index[col.Name]
	if !exists {
		return d.AddColumn(col)
	}
	if col.Len() != d.rows {
		return fmt.Errorf("column %q has %d rows, dataset has %d", col.Name, col.Len(), d.rows)
	}
	d.columns[idx] = col
	return nil
}

// DropColumn 删除列
func (d *Dataset) DropColumn(name string) error {
	idx, exists := d.index[name]
	if !exists {
		return &SchemaError{Column: name, Reason: "column not found"}
	}
	d.columns = append(d.columns[:idx], d.columns[idx+1:]...)
	delete(d.index, name)
	for i := idx; i < len(d.columns); i++ {
		d.index[d.columns[i].Name] = i
	}
	return nil
}

// Has 判断列是否存在
func (d *Dataset) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Column returns the named column or a SchemaError.
func (d *Dataset) Column(name string) (*Column, error) {
	idx, ok := d.index[name]
	if !ok {
		return nil, &SchemaError{Column: name, Reason: "column not found"}
	}
	return d.columns[idx], nil
}

// NumericColumn returns the named column, failing unless it is numeric.
func (d *Dataset) NumericColumn(name string) (*Column, error) {
	col, err := d.Column(name)
	if err != nil {
		return nil, err
	}
	if !col.Kind.IsNumeric() {
		return nil, &SchemaError{Column: name, Reason: fmt.Sprintf("expected numeric column, got %s", col.Kind)}
	}
	return col, nil
}

// Columns 返回所有列（按顺序）
func (d *Dataset) Columns() []*Column {
	out := make([]*Column, len(d.columns))
	copy(out, d.columns)
	return out
}

// Names 列名
func (d *Dataset) Names() []string {
	names := make([]string, len(d.columns))
	for i, col := range d.columns {
		names[i] = col.Name
	}
	return names
}

// ColumnsOfKind 返回指定类型的列名
func (d *Dataset) ColumnsOfKind(kind Kind) []string {
	var names []string
	for _, col := range d.columns {
		if col.Kind == kind {
			names = append(names, col.Name)
		}
	}
	return names
}

// Row returns row i as a column name -> value mapping.
func (d *Dataset) Row(i int) map[string]Value {
	row := make(map[string]Value, len(d.columns))
	for _, col := range d.columns {
		row[col.Name] = col.Values[i]
	}
	return row
}

// Clone 深拷贝数据集
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{
		columns: make([]*Column, len(d.columns)),
		index:   make(map[string]int, len(d.index)),
		rows:    d.rows,
	}
	for i, col := range d.columns {
		out.columns[i] = col.Clone()
		out.index[col.Name] = i
	}
	return out
}

// Filter returns a new dataset holding the rows where keep[i] is true.
func (d *Dataset) Filter(keep []bool) *Dataset {
	kept := 0
	for i := 0; i < d.rows && i < len(keep); i++ {
		if keep[i] {
			kept++
		}
	}
	out := &Dataset{
		columns: make([]*Column, len(d.columns)),
		index:   make(map[string]int, len(d.index)),
		rows:    kept,
	}
	for i, col := range d.columns {
		values := make([]Value, 0, kept)
		for r, v := range col.Values {
			if r < len(keep) && keep[r] {
				values = append(values, v)
			}
		}
		out.columns[i] = &Column{Name: col.Name, Kind: col.Kind, Values: values}
		out.index[col.Name] = i
	}
	return out
}

// Concat appends the rows of other below d. Columns are the union of both
// schemas in order of first appearance; cells absent on one side are null.
func Concat(d, other *Dataset) (*Dataset, error) {
	out := &Dataset{index: make(map[string]int)}
	total := d.rows + other.rows
	names := d.Names()
	for _, name := range other.Names() {
		if !d.Has(name) {
			names = append(names, name)
		}
	}
	for _, name := range names {
		var kind Kind
		values := make([]Value, 0, total)
		left, lerr := d.Column(name)
		right, rerr := other.Column(name)
		switch {
		case lerr == nil && rerr == nil:
			if left.Kind != right.Kind {
				return nil, &SchemaError{Column: name, Reason: fmt.Sprintf("kind mismatch %s vs %s", left.Kind, right.Kind)}
			}
			kind = left.Kind
		case lerr == nil:
			kind = left.Kind
		default:
			kind = right.Kind
		}
		values = appendOrNull(values, left, lerr, d.rows)
		values = appendOrNull(values, right, rerr, other.rows)
		if err := out.AddColumn(&Column{Name: name, Kind: kind, Values: values}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func appendOrNull(dst []Value, col *Column, err error, rows int) []Value {
	if err == nil {
		return append(dst, col.Values...)
	}
	for i := 0; i < rows; i++ {
		dst = append(dst, Null())
	}
	return dst
}
