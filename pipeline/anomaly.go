package pipeline

import (
	"math"

	"energyflow/dataset"
)

// DefaultZScoreThreshold 默认阈值（3个标准差）
const DefaultZScoreThreshold = 3.0

// RemoveAnomalies keeps the rows whose absolute z-score in column is at most
// threshold and returns the filtered dataset with the number of removed rows.
// A non-positive threshold means DefaultZScoreThreshold. A zero-variance column
// has no anomalies.
func RemoveAnomalies(ds *dataset.Dataset, column string, threshold float64) (*dataset.Dataset, int, error) {
	if threshold <= 0 {
		threshold = DefaultZScoreThreshold
	}

	col, err := ds.NumericColumn(column)
	if err != nil {
		return nil, 0, err
	}
	values, err := finiteValues(col, "impute before filtering anomalies")
	if err != nil {
		return nil, 0, err
	}

	mean, stdDev := meanStdDev(values)
	if stdDev == 0 {
		return ds.Clone(), 0, nil
	}

	keep := make([]bool, len(values))
	removed := 0
	for i, v := range values {
		zScore := math.Abs((v - mean) / stdDev)
		keep[i] = zScore <= threshold
		if !keep[i] {
			removed++
		}
	}

	return ds.Filter(keep), removed, nil
}
