package pipeline

import (
	"fmt"
	"math"

	"energyflow/dataset"
)

// ImputationStrategy 缺失值填充策略
type ImputationStrategy string

const (
	// MedianMode fills numeric columns with the median and the rest with the mode.
	MedianMode ImputationStrategy = "median_mode"
	// MeanDropEssential drops rows missing an essential column, then fills
	// numeric columns with the mean and the rest with the mode.
	MeanDropEssential ImputationStrategy = "mean_drop_essential"
)

// ImputeOptions 填充参数
type ImputeOptions struct {
	Strategy  ImputationStrategy
	Essential []string
}

// Validate 校验参数
func (o ImputeOptions) Validate() error {
	switch o.Strategy {
	case "", MedianMode:
		if len(o.Essential) > 0 {
			return fmt.Errorf("essential columns require the %s strategy", MeanDropEssential)
		}
	case MeanDropEssential:
	default:
		return fmt.Errorf("unknown imputation strategy %q", o.Strategy)
	}
	return nil
}

// Fill 记录一列的填充情况
type Fill struct {
	Column string `json:"column"`
	Count  int    `json:"count"`
	Value  string `json:"value"`
	Method string `json:"method"`
}

// ImputeReport 填充结果
type ImputeReport struct {
	DroppedRows int    `json:"dropped_rows"`
	Filled      []Fill `json:"filled"`
}

// ImputeMissing fills every column that has at least one missing value.
// Essential-column row dropping, when configured, runs before any statistic
// is computed. The input dataset is not modified.
func ImputeMissing(ds *dataset.Dataset, opts ImputeOptions) (*dataset.Dataset, ImputeReport, error) {
	var report ImputeReport
	if err := opts.Validate(); err != nil {
		return nil, report, err
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = MedianMode
	}

	// NaN cells count as missing
	out := ds.Clone()
	for _, col := range out.Columns() {
		if !col.Kind.IsNumeric() {
			continue
		}
		for i, v := range col.Values {
			if !v.Null && math.IsNaN(v.Num) {
				col.Values[i] = dataset.Null()
			}
		}
	}

	if strategy == MeanDropEssential && len(opts.Essential) > 0 {
		keep := make([]bool, out.Len())
		for i := range keep {
			keep[i] = true
		}
		for _, name := range opts.Essential {
			col, err := out.Column(name)
			if err != nil {
				return nil, report, err
			}
			for i, v := range col.Values {
				if v.Null {
					keep[i] = false
				}
			}
		}
		filtered := out.Filter(keep)
		report.DroppedRows = out.Len() - filtered.Len()
		out = filtered
	}

	for _, col := range out.Columns() {
		missing := col.NullCount()
		if missing == 0 {
			continue
		}
		if missing == col.Len() {
			return nil, report, &dataset.DataQualityError{Column: col.Name, Reason: "every value is missing"}
		}

		var fill dataset.Value
		var method string
		if col.Kind.IsNumeric() {
			values := presentFloats(col)
			if strategy == MeanDropEssential {
				mean, _ := meanStdDev(values)
				fill, method = dataset.Number(mean), "mean"
			} else {
				fill, method = dataset.Number(median(values)), "median"
			}
		} else {
			fill, method = dataset.Text(mode(presentStrings(col))), "mode"
		}

		for i, v := range col.Values {
			if v.Null {
				col.Values[i] = fill
			}
		}
		report.Filled = append(report.Filled, Fill{
			Column: col.Name,
			Count:  missing,
			Value:  fill.Format(col.Kind),
			Method: method,
		})
	}

	return out, report, nil
}
