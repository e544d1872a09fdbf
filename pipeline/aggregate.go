package pipeline

import (
	"sort"

	"energyflow/dataset"
)

const (
	DateColumn             = "date"
	DailyConsumptionColumn = "daily_consumption"
	TotalUsageColumn       = "total_usage"
)

// DailyConsumption groups rows by calendar date and sums the usage column.
// The result has one row per date, ascending, with columns date and
// daily_consumption.
func DailyConsumption(ds *dataset.Dataset, timestampColumn, usageColumn string) (*dataset.Dataset, error) {
	usage, err := numericValues(ds, usageColumn)
	if err != nil {
		return nil, err
	}
	times, err := parseTimestamps(ds, timestampColumn)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]float64)
	var dates []string
	for i, t := range times {
		key := t.Format(dataset.DateLayout)
		if _, seen := totals[key]; !seen {
			dates = append(dates, key)
		}
		totals[key] += usage[i]
	}
	// ISO dates sort chronologically as strings.
	sort.Strings(dates)

	sums := make([]float64, len(dates))
	for i, d := range dates {
		sums[i] = totals[d]
	}
	return dataset.New(
		dataset.NewTextColumn(DateColumn, dataset.KindTimestamp, dates),
		dataset.NewNumericColumn(DailyConsumptionColumn, sums),
	)
}

// GroupSum sums valueColumn per distinct value of groupColumn. Groups are
// sorted ascending; rows with a null group key are skipped.
func GroupSum(ds *dataset.Dataset, groupColumn, valueColumn, outColumn string) (*dataset.Dataset, error) {
	return groupBy(ds, groupColumn, valueColumn, outColumn, func(values []float64) float64 {
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total
	})
}

// GroupMean averages valueColumn per distinct value of groupColumn.
func GroupMean(ds *dataset.Dataset, groupColumn, valueColumn, outColumn string) (*dataset.Dataset, error) {
	return groupBy(ds, groupColumn, valueColumn, outColumn, func(values []float64) float64 {
		mean, _ := meanStdDev(values)
		return mean
	})
}

func groupBy(ds *dataset.Dataset, groupColumn, valueColumn, outColumn string, agg func([]float64) float64) (*dataset.Dataset, error) {
	group, err := ds.Column(groupColumn)
	if err != nil {
		return nil, err
	}
	values, err := numericValues(ds, valueColumn)
	if err != nil {
		return nil, err
	}

	buckets := make(map[string][]float64)
	keys := make(map[string]dataset.Value)
	for i, key := range group.Values {
		if key.Null {
			continue
		}
		k := key.Format(group.Kind)
		if _, ok := keys[k]; !ok {
			keys[k] = key
		}
		buckets[k] = append(buckets[k], values[i])
	}

	ordered := make([]string, 0, len(keys))
	for k := range keys {
		ordered = append(ordered, k)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if group.Kind.IsNumeric() {
			return keys[ordered[i]].Num < keys[ordered[j]].Num
		}
		return ordered[i] < ordered[j]
	})

	groupOut := &dataset.Column{Name: groupColumn, Kind: group.Kind, Values: make([]dataset.Value, len(ordered))}
	aggOut := &dataset.Column{Name: outColumn, Kind: dataset.KindNumeric, Values: make([]dataset.Value, len(ordered))}
	for i, k := range ordered {
		groupOut.Values[i] = keys[k]
		aggOut.Values[i] = dataset.Number(agg(buckets[k]))
	}
	return dataset.New(groupOut, aggOut)
}

func numericValues(ds *dataset.Dataset, column string) ([]float64, error) {
	col, err := ds.NumericColumn(column)
	if err != nil {
		return nil, err
	}
	values, err := finiteValues(col, "")
	if err != nil {
		return nil, err
	}
	return values, nil
}
