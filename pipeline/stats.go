package pipeline

import (
	"fmt"
	"math"
	"sort"

	"energyflow/dataset"
)

// meanStdDev 计算均值和总体标准差
func meanStdDev(values []float64) (float64, float64) {
	n := len(values)
	if n == 0 {
		return 0, 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(n)

	return mean, math.Sqrt(variance)
}

// median 计算中位数
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}

// mode returns the most frequent value; ties go to the value seen first.
func mode(values []string) string {
	counts := make(map[string]int, len(values))
	for _, v := range values {
		counts[v]++
	}
	best, bestCount := "", 0
	for _, v := range values {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	return best
}

// finiteValues returns the column as numbers. Nulls and NaN or ±Inf cells
// fail with a *dataset.DataQualityError; hint is appended to the null reason.
func finiteValues(col *dataset.Column, hint string) ([]float64, error) {
	values, ok := col.Floats()
	if !ok {
		reason := "missing values present"
		if hint != "" {
			reason += ", " + hint
		}
		return nil, &dataset.DataQualityError{Column: col.Name, Reason: reason}
	}
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &dataset.DataQualityError{Column: col.Name, Reason: fmt.Sprintf("non-finite value %g at row %d", v, i)}
		}
	}
	return values, nil
}

// presentFloats 返回非空数值
func presentFloats(col *dataset.Column) []float64 {
	out := make([]float64, 0, len(col.Values))
	for _, v := range col.Values {
		if !v.Null {
			out = append(out, v.Num)
		}
	}
	return out
}

// presentStrings 返回非空字符串
func presentStrings(col *dataset.Column) []string {
	out := make([]string, 0, len(col.Values))
	for _, v := range col.Values {
		if !v.Null {
			out = append(out, v.Str)
		}
	}
	return out
}
