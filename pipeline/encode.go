package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"energyflow/dataset"
)

// ErrUnknownCategory is returned when encoding a value the table never saw.
// Tables are built once per run; there is no streaming extension.
var ErrUnknownCategory = errors.New("unknown category")

// Encoder 单列标签编码（值 <-> 编码）
type Encoder struct {
	codes  map[string]int
	values []string
}

func newEncoder() *Encoder {
	return &Encoder{codes: make(map[string]int)}
}

func (e *Encoder) add(value string) int {
	if code, ok := e.codes[value]; ok {
		return code
	}
	code := len(e.values)
	e.codes[value] = code
	e.values = append(e.values, value)
	return code
}

// Encode 编码
func (e *Encoder) Encode(value string) (int, error) {
	code, ok := e.codes[value]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, value)
	}
	return code, nil
}

// Decode 解码
func (e *Encoder) Decode(code int) (string, error) {
	if code < 0 || code >= len(e.values) {
		return "", fmt.Errorf("code %d out of range [0, %d)", code, len(e.values))
	}
	return e.values[code], nil
}

// Classes returns the category values ordered by code.
func (e *Encoder) Classes() []string {
	out := make([]string, len(e.values))
	copy(out, e.values)
	return out
}

// EncoderTable maps column name to its Encoder.
type EncoderTable struct {
	encoders map[string]*Encoder
}

// NewEncoderTable 创建编码表
func NewEncoderTable() *EncoderTable {
	return &EncoderTable{encoders: make(map[string]*Encoder)}
}

// Get 获取列编码器
func (t *EncoderTable) Get(column string) (*Encoder, bool) {
	enc, ok := t.encoders[column]
	return enc, ok
}

// Columns 已编码列（排序）
func (t *EncoderTable) Columns() []string {
	names := make([]string, 0, len(t.encoders))
	for name := range t.encoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Encode 编码指定列的值
func (t *EncoderTable) Encode(column, value string) (int, error) {
	enc, ok := t.encoders[column]
	if !ok {
		return 0, &dataset.SchemaError{Column: column, Reason: "column was not encoded"}
	}
	return enc.Encode(value)
}

// Decode 解码指定列的编码
func (t *EncoderTable) Decode(column string, code int) (string, error) {
	enc, ok := t.encoders[column]
	if !ok {
		return "", &dataset.SchemaError{Column: column, Reason: "column was not encoded"}
	}
	return enc.Decode(code)
}

// MarshalJSON stores each column as its class list ordered by code.
func (t *EncoderTable) MarshalJSON() ([]byte, error) {
	payload := make(map[string][]string, len(t.encoders))
	for name, enc := range t.encoders {
		payload[name] = enc.values
	}
	return json.Marshal(payload)
}

func (t *EncoderTable) UnmarshalJSON(data []byte) error {
	var payload map[string][]string
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	t.encoders = make(map[string]*Encoder, len(payload))
	for name, values := range payload {
		enc := newEncoder()
		for _, v := range values {
			enc.add(v)
		}
		t.encoders[name] = enc
	}
	return nil
}

// EncodeCategorical label-encodes the named columns, or every categorical
// column when none are named. Codes follow order of first appearance.
func EncodeCategorical(ds *dataset.Dataset, columns ...string) (*dataset.Dataset, *EncoderTable, error) {
	if len(columns) == 0 {
		columns = ds.ColumnsOfKind(dataset.KindCategorical)
	}

	out := ds.Clone()
	table := NewEncoderTable()
	for _, name := range columns {
		col, err := out.Column(name)
		if err != nil {
			return nil, nil, err
		}
		if col.Kind != dataset.KindCategorical {
			return nil, nil, &dataset.SchemaError{Column: name, Reason: fmt.Sprintf("expected categorical column, got %s", col.Kind)}
		}

		enc := newEncoder()
		encoded := &dataset.Column{Name: name, Kind: dataset.KindDerived, Values: make([]dataset.Value, col.Len())}
		for i, v := range col.Values {
			if v.Null {
				return nil, nil, &dataset.DataQualityError{Column: name, Reason: fmt.Sprintf("missing value at row %d, impute before encoding", i)}
			}
			encoded.Values[i] = dataset.Number(float64(enc.add(v.Str)))
		}
		if err := out.SetColumn(encoded); err != nil {
			return nil, nil, err
		}
		table.encoders[name] = enc
	}

	return out, table, nil
}
