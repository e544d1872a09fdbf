package eda

import (
	"bytes"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyflow/dataset"
)

func sampleDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	usage := dataset.NewNumericColumn("energy_usage", []float64{1, 2, 3, 4, 0})
	usage.Values[4] = dataset.Null()
	ds, err := dataset.New(
		usage,
		dataset.NewTextColumn("appliance", dataset.KindCategorical, []string{"oven", "fridge", "fridge", "oven", "tv"}),
	)
	require.NoError(t, err)
	return ds
}

func TestDescribe(t *testing.T) {
	ds := sampleDataset(t)
	summaries := Describe(ds)
	require.Len(t, summaries, 2)

	usage := summaries[0]
	assert.Equal(t, 4, usage.Count)
	assert.Equal(t, 1, usage.Missing)
	assert.InDelta(t, 2.5, usage.Mean, 1e-12)
	assert.InDelta(t, math.Sqrt(5.0/3.0), usage.Std, 1e-12)
	assert.Equal(t, 1.0, usage.Min)
	assert.InDelta(t, 1.75, usage.Q25, 1e-12)
	assert.InDelta(t, 2.5, usage.Q50, 1e-12)
	assert.InDelta(t, 3.25, usage.Q75, 1e-12)
	assert.Equal(t, 4.0, usage.Max)

	appliance := summaries[1]
	assert.Equal(t, 3, appliance.Unique)
	assert.Equal(t, "oven", appliance.Top)
	assert.Equal(t, 2, appliance.Freq)

	// the input keeps its null
	col, _ := ds.Column("energy_usage")
	assert.Equal(t, 1, col.NullCount())
}

func TestDescribeSingleValue(t *testing.T) {
	ds, err := dataset.New(dataset.NewNumericColumn("x", []float64{7}))
	require.NoError(t, err)
	s := Describe(ds)[0]
	assert.Equal(t, 7.0, s.Mean)
	assert.True(t, math.IsNaN(s.Std))
}

func TestMissingCounts(t *testing.T) {
	assert.Equal(t, map[string]int{"energy_usage": 1, "appliance": 0}, MissingCounts(sampleDataset(t)))
}

func TestHourlyUsage(t *testing.T) {
	ds, err := dataset.New(
		dataset.NewTextColumn("timestamp", dataset.KindTimestamp, []string{
			"2024-01-01 18:00:00", "2024-01-02 18:30:00", "2024-01-01 03:00:00",
		}),
		dataset.NewNumericColumn("energy_usage", []float64{10, 20, 2}),
	)
	require.NoError(t, err)

	hourly, err := HourlyUsage(ds, "timestamp", "energy_usage")
	require.NoError(t, err)
	hours, _ := hourly.Column("hour")
	assert.Equal(t, []string{"3", "18"}, hours.Strings())

	hour, mean, err := PeakHour(hourly)
	require.NoError(t, err)
	assert.Equal(t, 18, hour)
	assert.Equal(t, 15.0, mean)
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, Describe(sampleDataset(t))))
	out := buf.String()
	assert.Contains(t, out, "energy_usage")
	assert.Contains(t, out, "oven")
	assert.Contains(t, out, "2.5")
}
