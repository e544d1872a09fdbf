package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energyflow/config"
	"energyflow/db"
	"energyflow/monitoring"
	"energyflow/pipeline"
)

var appliances = []string{"AC", "Fridge", "Heater"}

// writeEnergyCSV writes three days of hourly readings plus one outlier.
func writeEnergyCSV(t *testing.T, dir string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("timestamp,appliance,temperature,energy_usage\n")
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 72; i++ {
		ts := base.Add(time.Duration(i) * time.Hour)
		temp := i % 10
		usage := 30 + 5*ts.Hour() + temp
		fmt.Fprintf(&b, "%s,%s,%d,%d\n", ts.Format("2006-01-02 15:04:05"), appliances[i%3], temp, usage)
	}
	b.WriteString("2024-01-03 12:30:00,AC,5,490\n")

	path := filepath.Join(dir, "energy.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Source.Path = writeEnergyCSV(t, dir)
	cfg.Models.Dir = filepath.Join(dir, "models")
	cfg.Models.Trees = 10
	cfg.Models.MaxDepth = 6
	cfg.Export.CSVPath = filepath.Join(dir, "out", "dashboard_data.csv")
	cfg.Export.ExcelPath = filepath.Join(dir, "out", "dashboard_data.xlsx")
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	store, err := db.Open(filepath.Join(t.TempDir(), "energy.db"))
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	report, err := Run(ctx, cfg, Deps{Store: store, Metrics: monitoring.NewMetrics()})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Pipeline.AnomaliesRemoved)
	assert.Equal(t, 72, report.Pipeline.Dataset.Len())
	assert.Equal(t, 23, report.PeakHour)
	require.NotNil(t, report.Regression)
	assert.Less(t, report.Regression.MSE, 1e-6)
	require.NotNil(t, report.Classification)
	assert.Equal(t, 15, report.Classification.TestRows)

	require.NotNil(t, report.UsageSummary)
	assert.Equal(t, 3, report.UsageSummary.Len())
	assert.Equal(t, []string{"appliance", pipeline.TotalUsageColumn}, report.UsageSummary.Names())
	assert.FileExists(t, cfg.Export.CSVPath)
	assert.FileExists(t, cfg.Export.ExcelPath)
	assert.FileExists(t, filepath.Join(cfg.Models.Dir, "linear_regression.json"))
	assert.FileExists(t, filepath.Join(cfg.Models.Dir, "random_forest.json"))

	logs, err := store.LoadTrainingLog(ctx)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	runs, err := store.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, db.StatusSucceeded, runs[0].Status)
	assert.Equal(t, report.RunID, runs[0].RunID)

	daily, err := store.DailyConsumption(ctx)
	require.NoError(t, err)
	assert.Len(t, daily, 3)
}

func TestPreprocessRecordsFailure(t *testing.T) {
	cfg := testConfig(t)
	// readings above 150 fall outside the bins
	cfg.Pipeline.AnomalyColumn = ""
	cfg.Pipeline.Tiers = &pipeline.Bins{Edges: []float64{0, 50, 150}, Labels: []string{"Low", "High"}}

	store, err := db.Open(filepath.Join(t.TempDir(), "energy.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = Run(context.Background(), cfg, Deps{Store: store})
	require.Error(t, err)

	runs, err := store.RecentRuns(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, db.StatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "tiering")
}

func TestLoadRequiresSource(t *testing.T) {
	cfg := config.Default()
	_, _, err := Load(context.Background(), cfg, Deps{})
	assert.Error(t, err)
}
