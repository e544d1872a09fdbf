package export

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"energyflow/dataset"
)

func usageDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	usage := dataset.NewNumericColumn("energy_usage", []float64{1.5, 2, 3})
	usage.Values[2] = dataset.Null()
	ds, err := dataset.New(
		dataset.NewTextColumn("appliance", dataset.KindCategorical, []string{"fridge", "oven", "fridge"}),
		usage,
	)
	require.NoError(t, err)
	return ds
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, usageDataset(t)))
	assert.Equal(t, "appliance,energy_usage\nfridge,1.5\noven,2\nfridge,\n", buf.String())

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, usageDataset(t), WriteOptions{BOMPrefix: true}))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte(utf8BOM)))
}

func TestExportCSVCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "dashboard_data.csv")
	require.NoError(t, ExportCSV(path, usageDataset(t)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "oven,2")
}

func TestExportExcel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard.xlsx")
	require.NoError(t, ExportExcel(path, "usage", usageDataset(t)))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("usage")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"appliance", "energy_usage"}, rows[0])
	assert.Equal(t, []string{"fridge", "1.5"}, rows[1])
	assert.Equal(t, "fridge", rows[3][0])
}

func TestUsageSummary(t *testing.T) {
	ds, err := dataset.New(
		dataset.NewTextColumn("appliance", dataset.KindCategorical, []string{"oven", "fridge", "oven"}),
		dataset.NewNumericColumn("energy_usage", []float64{2, 1, 3}),
	)
	require.NoError(t, err)

	summary, err := UsageSummary(ds, "appliance", "energy_usage")
	require.NoError(t, err)
	assert.Equal(t, []string{"appliance", "total_usage"}, summary.Names())

	groups, _ := summary.Column("appliance")
	totals, _ := summary.Column("total_usage")
	assert.Equal(t, []string{"fridge", "oven"}, groups.Strings())
	assert.Equal(t, []string{"1", "5"}, totals.Strings())
}
