package pipeline

import (
	"fmt"

	"energyflow/dataset"
)

// Range 列的最小值与最大值
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Scaler holds per-column min/max for min-max scaling and its inverse.
type Scaler struct {
	Ranges map[string]Range `json:"ranges"`
}

// NewScaler 创建缩放器
func NewScaler() *Scaler {
	return &Scaler{Ranges: make(map[string]Range)}
}

// Transform scales v into [0, 1]. A constant column scales to 0.
func (s *Scaler) Transform(column string, v float64) (float64, error) {
	r, ok := s.Ranges[column]
	if !ok {
		return 0, &dataset.SchemaError{Column: column, Reason: "column was not normalized"}
	}
	if r.Max == r.Min {
		return 0, nil
	}
	return (v - r.Min) / (r.Max - r.Min), nil
}

// Inverse maps a scaled value back to original units. For a constant column
// every value maps back to the column's single original value.
func (s *Scaler) Inverse(column string, v float64) (float64, error) {
	r, ok := s.Ranges[column]
	if !ok {
		return 0, &dataset.SchemaError{Column: column, Reason: "column was not normalized"}
	}
	return r.Min + v*(r.Max-r.Min), nil
}

// InverseColumn 反向还原整列
func (s *Scaler) InverseColumn(ds *dataset.Dataset, column string) ([]float64, error) {
	col, err := ds.NumericColumn(column)
	if err != nil {
		return nil, err
	}
	values, ok := col.Floats()
	if !ok {
		return nil, &dataset.DataQualityError{Column: column, Reason: "missing values present"}
	}
	out := make([]float64, len(values))
	for i, v := range values {
		if out[i], err = s.Inverse(column, v); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Normalize min-max scales each named numeric column independently.
func Normalize(ds *dataset.Dataset, columns []string) (*dataset.Dataset, *Scaler, error) {
	out := ds.Clone()
	scaler := NewScaler()
	for _, name := range columns {
		col, err := out.NumericColumn(name)
		if err != nil {
			return nil, nil, err
		}
		values, err := finiteValues(col, "impute before normalizing")
		if err != nil {
			return nil, nil, err
		}
		if len(values) == 0 {
			scaler.Ranges[name] = Range{}
			continue
		}

		r := Range{Min: values[0], Max: values[0]}
		for _, v := range values[1:] {
			if v < r.Min {
				r.Min = v
			}
			if v > r.Max {
				r.Max = v
			}
		}
		scaler.Ranges[name] = r

		for i, v := range values {
			scaled, err := scaler.Transform(name, v)
			if err != nil {
				return nil, nil, fmt.Errorf("normalize %s: %w", name, err)
			}
			col.Values[i] = dataset.Number(scaled)
		}
	}
	return out, scaler, nil
}
