package ml

import (
	"fmt"
	"math"

	"energyflow/dataset"
)

// BuildTrainingSet extracts row-major feature vectors from the named numeric
// columns. Missing values are rejected; impute before training.
func BuildTrainingSet(ds *dataset.Dataset, features []string) ([][]float64, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("at least one feature column is required")
	}
	columns := make([][]float64, len(features))
	for j, name := range features {
		values, err := numericColumn(ds, name)
		if err != nil {
			return nil, err
		}
		columns[j] = values
	}

	rows := make([][]float64, ds.Len())
	for i := range rows {
		row := make([]float64, len(features))
		for j := range features {
			row[j] = columns[j][i]
		}
		rows[i] = row
	}
	return rows, nil
}

// RegressionTargets 提取回归目标列
func RegressionTargets(ds *dataset.Dataset, target string) ([]float64, error) {
	return numericColumn(ds, target)
}

// ClassLabels extracts integer labels from target. A numeric target must hold
// whole numbers; a categorical target is coded by order of first appearance
// and the class names are returned in code order.
func ClassLabels(ds *dataset.Dataset, target string) ([]int, []string, error) {
	col, err := ds.Column(target)
	if err != nil {
		return nil, nil, err
	}
	labels := make([]int, col.Len())

	if col.Kind.IsNumeric() {
		values, err := numericColumn(ds, target)
		if err != nil {
			return nil, nil, err
		}
		for i, v := range values {
			if v != math.Trunc(v) {
				return nil, nil, &dataset.DataQualityError{Column: target, Reason: fmt.Sprintf("non-integer class label %g at row %d", v, i)}
			}
			labels[i] = int(v)
		}
		return labels, nil, nil
	}

	codes := make(map[string]int)
	var names []string
	for i, v := range col.Values {
		if v.Null {
			return nil, nil, &dataset.DataQualityError{Column: target, Reason: fmt.Sprintf("missing class label at row %d", i)}
		}
		code, ok := codes[v.Str]
		if !ok {
			code = len(names)
			codes[v.Str] = code
			names = append(names, v.Str)
		}
		labels[i] = code
	}
	return labels, names, nil
}

func numericColumn(ds *dataset.Dataset, name string) ([]float64, error) {
	col, err := ds.NumericColumn(name)
	if err != nil {
		return nil, err
	}
	values, ok := col.Floats()
	if !ok {
		return nil, &dataset.DataQualityError{Column: name, Reason: "missing values present, impute before training"}
	}
	return values, nil
}

func pickRows[T any](values []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = values[j]
	}
	return out
}
