// Package eda 探索性数据分析：描述统计、缺失值、分时用量
package eda

import (
	"fmt"
	"io"
	"math"
	"sort"
	"text/tabwriter"

	"gonum.org/v1/gonum/stat"

	"energyflow/dataset"
	"energyflow/pipeline"
)

// ColumnSummary 单列描述统计
type ColumnSummary struct {
	Name    string
	Kind    dataset.Kind
	Count   int
	Missing int

	// numeric columns
	Mean float64
	Std  float64
	Min  float64
	Q25  float64
	Q50  float64
	Q75  float64
	Max  float64

	// other columns
	Unique int
	Top    string
	Freq   int
}

// Describe summarizes every column. Std is the sample standard deviation and
// quantiles use linear interpolation. The dataset is only read.
func Describe(ds *dataset.Dataset) []ColumnSummary {
	summaries := make([]ColumnSummary, 0, ds.Width())
	for _, col := range ds.Columns() {
		s := ColumnSummary{Name: col.Name, Kind: col.Kind, Missing: col.NullCount()}
		s.Count = col.Len() - s.Missing
		if col.Kind.IsNumeric() {
			describeNumeric(&s, col)
		} else {
			describeText(&s, col)
		}
		summaries = append(summaries, s)
	}
	return summaries
}

func describeNumeric(s *ColumnSummary, col *dataset.Column) {
	values := make([]float64, 0, s.Count)
	for _, v := range col.Values {
		if !v.Null {
			values = append(values, v.Num)
		}
	}
	if len(values) == 0 {
		nan := math.NaN()
		s.Mean, s.Std, s.Min, s.Q25, s.Q50, s.Q75, s.Max = nan, nan, nan, nan, nan, nan, nan
		return
	}
	sort.Float64s(values)

	// sample standard deviation; NaN for a single value
	s.Mean, s.Std = stat.MeanStdDev(values, nil)
	s.Min = values[0]
	s.Max = values[len(values)-1]
	s.Q25 = Quantile(values, 0.25)
	s.Q50 = Quantile(values, 0.50)
	s.Q75 = Quantile(values, 0.75)
}

func describeText(s *ColumnSummary, col *dataset.Column) {
	counts := make(map[string]int)
	var order []string
	for _, v := range col.Values {
		if v.Null {
			continue
		}
		if _, ok := counts[v.Str]; !ok {
			order = append(order, v.Str)
		}
		counts[v.Str]++
	}
	s.Unique = len(counts)
	for _, k := range order {
		if counts[k] > s.Freq {
			s.Top, s.Freq = k, counts[k]
		}
	}
}

// Quantile returns the q-th quantile of sorted values using linear
// interpolation between closest ranks.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// MissingCounts 每列缺失值数量
func MissingCounts(ds *dataset.Dataset) map[string]int {
	out := make(map[string]int, ds.Width())
	for _, col := range ds.Columns() {
		out[col.Name] = col.NullCount()
	}
	return out
}

// HourlyUsageColumn 分时平均用量列名
const HourlyUsageColumn = "mean_usage"

// HourlyUsage averages usage per hour of day, ascending by hour, to locate
// peak consumption.
func HourlyUsage(ds *dataset.Dataset, timestampColumn, usageColumn string) (*dataset.Dataset, error) {
	withHour, err := pipeline.ExtractTimeFeatures(ds, timestampColumn)
	if err != nil {
		return nil, err
	}
	return pipeline.GroupMean(withHour, pipeline.HourColumn, usageColumn, HourlyUsageColumn)
}

// PeakHour returns the hour with the highest mean usage.
func PeakHour(hourly *dataset.Dataset) (int, float64, error) {
	hours, err := hourly.NumericColumn(pipeline.HourColumn)
	if err != nil {
		return 0, 0, err
	}
	means, err := hourly.NumericColumn(HourlyUsageColumn)
	if err != nil {
		return 0, 0, err
	}
	if hourly.Len() == 0 {
		return 0, 0, &dataset.DataQualityError{Column: HourlyUsageColumn, Reason: "no rows"}
	}
	best := 0
	for i := 1; i < hourly.Len(); i++ {
		if means.Values[i].Num > means.Values[best].Num {
			best = i
		}
	}
	return int(hours.Values[best].Num), means.Values[best].Num, nil
}

// WriteSummary renders summaries as an aligned text table.
func WriteSummary(w io.Writer, summaries []ColumnSummary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "column\tkind\tcount\tmissing\tmean\tstd\tmin\t25%\t50%\t75%\tmax\tunique\ttop\tfreq")
	for _, s := range summaries {
		if s.Kind.IsNumeric() {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\t\t\n",
				s.Name, s.Kind, s.Count, s.Missing,
				num(s.Mean), num(s.Std), num(s.Min), num(s.Q25), num(s.Q50), num(s.Q75), num(s.Max))
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t\t\t\t\t\t\t\t%d\t%s\t%d\n",
			s.Name, s.Kind, s.Count, s.Missing, s.Unique, s.Top, s.Freq)
	}
	return tw.Flush()
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return fmt.Sprintf("%.4g", v)
}
