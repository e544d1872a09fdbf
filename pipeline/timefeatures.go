package pipeline

import (
	"errors"
	"time"

	"energyflow/dataset"
)

const (
	HourColumn      = "hour"
	DayOfWeekColumn = "day_of_week"
	MonthColumn     = "month"
)

// parseTimestamps parses every row of a timestamp column. All malformed rows
// are collected and returned together as joined *dataset.ParseError values.
func parseTimestamps(ds *dataset.Dataset, column string) ([]time.Time, error) {
	col, err := ds.Column(column)
	if err != nil {
		return nil, err
	}
	if col.Kind.IsNumeric() {
		return nil, &dataset.SchemaError{Column: column, Reason: "expected timestamp column, got " + string(col.Kind)}
	}

	times := make([]time.Time, col.Len())
	var errs []error
	for i, v := range col.Values {
		if v.Null {
			errs = append(errs, &dataset.ParseError{Column: column, Row: i, Raw: "", Err: errors.New("missing timestamp")})
			continue
		}
		t, err := dataset.ParseTime(v.Str)
		if err != nil {
			errs = append(errs, &dataset.ParseError{Column: column, Row: i, Raw: v.Str, Err: err})
			continue
		}
		times[i] = t
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return times, nil
}

// weekdayMondayFirst maps time.Weekday onto Monday=0 ... Sunday=6.
func weekdayMondayFirst(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// ExtractTimeFeatures adds hour, day_of_week and month columns derived from
// the timestamp column. Every malformed row is reported before failing.
func ExtractTimeFeatures(ds *dataset.Dataset, column string) (*dataset.Dataset, error) {
	times, err := parseTimestamps(ds, column)
	if err != nil {
		return nil, err
	}

	hours := make([]dataset.Value, len(times))
	days := make([]dataset.Value, len(times))
	months := make([]dataset.Value, len(times))
	for i, t := range times {
		hours[i] = dataset.Number(float64(t.Hour()))
		days[i] = dataset.Number(float64(weekdayMondayFirst(t.Weekday())))
		months[i] = dataset.Number(float64(t.Month()))
	}

	out := ds.Clone()
	for _, col := range []*dataset.Column{
		{Name: HourColumn, Kind: dataset.KindDerived, Values: hours},
		{Name: DayOfWeekColumn, Kind: dataset.KindDerived, Values: days},
		{Name: MonthColumn, Kind: dataset.KindDerived, Values: months},
	} {
		if err := out.SetColumn(col); err != nil {
			return nil, err
		}
	}
	return out, nil
}
