package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"energyflow/dataset"
)

const sample = `timestamp,energy_usage,temperature,appliance
2024-01-01 00:00:00,10.5,3,fridge
2024-01-01 01:00:00,NA,4,oven
2024-01-02 00:00:00,7,,fridge
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadCSVInfersKinds(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(sample), Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, []string{"timestamp", "energy_usage", "temperature", "appliance"}, ds.Names())

	kinds := map[string]dataset.Kind{}
	for _, col := range ds.Columns() {
		kinds[col.Name] = col.Kind
	}
	assert.Equal(t, map[string]dataset.Kind{
		"timestamp":    dataset.KindTimestamp,
		"energy_usage": dataset.KindNumeric,
		"temperature":  dataset.KindNumeric,
		"appliance":    dataset.KindCategorical,
	}, kinds)

	usage, _ := ds.Column("energy_usage")
	assert.Equal(t, 1, usage.NullCount())
	assert.True(t, usage.Values[1].Null)
	temp, _ := ds.Column("temperature")
	assert.True(t, temp.Values[2].Null)
}

func TestReadCSVSchema(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("id,score\n001,5\n002,6\n"), Options{
		Schema: map[string]dataset.Kind{"id": dataset.KindCategorical},
	})
	require.NoError(t, err)
	id, _ := ds.Column("id")
	assert.Equal(t, []string{"001", "002"}, id.Strings())

	_, err = ReadCSV(strings.NewReader("score\n5\nhigh\n"), Options{
		Schema: map[string]dataset.Kind{"score": dataset.KindNumeric},
	})
	var pe *dataset.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Row)
	assert.Equal(t, "high", pe.Raw)
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), Options{})
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("a,b\n1,2,3\n"), Options{})
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("a\n1\n"), Options{Charset: "klingon"})
	assert.Error(t, err)
}

func TestReadCSVNullTokensIgnoreCase(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("usage,site\n1,a\nnan,N/A\nNAN,b\n Nan ,null\n4,NULL\n"), Options{})
	require.NoError(t, err)

	usage, _ := ds.Column("usage")
	assert.Equal(t, dataset.KindNumeric, usage.Kind)
	assert.Equal(t, 3, usage.NullCount())
	site, _ := ds.Column("site")
	assert.Equal(t, 3, site.NullCount())
}

func TestReadCSVRejectsInfinity(t *testing.T) {
	for _, raw := range []string{"inf", "-Inf", "Infinity", "+infinity"} {
		t.Run(raw, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader("usage\n1\n2\n"+raw+"\n"), Options{})
			require.ErrorIs(t, err, ErrNonFinite)
			var pe *dataset.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, "usage", pe.Column)
			assert.Equal(t, 2, pe.Row)
			assert.Equal(t, raw, pe.Raw)
		})
	}

	_, err := ReadCSV(strings.NewReader("usage\n1\ninf\n"), Options{
		Schema: map[string]dataset.Kind{"usage": dataset.KindNumeric},
	})
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestReadCSVCharset(t *testing.T) {
	encoded, err := charmap.Windows1252.NewEncoder().String("site,usage\nCafé,1\n")
	require.NoError(t, err)

	ds, err := ReadCSV(strings.NewReader(encoded), Options{Charset: "windows-1252"})
	require.NoError(t, err)
	site, _ := ds.Column("site")
	assert.Equal(t, []string{"Café"}, site.Strings())
}

func TestReadCSVStripsBOM(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("\uFEFFusage\n1\n"), Options{})
	require.NoError(t, err)
	assert.True(t, ds.Has("usage"))
}

func TestAppendCSV(t *testing.T) {
	path := writeFile(t, "energy.csv", "timestamp,energy_usage\n2024-01-01 00:00:00,1\n")

	extra, err := dataset.New(
		dataset.NewTextColumn("timestamp", dataset.KindTimestamp, []string{"2024-01-02 00:00:00"}),
		dataset.NewNumericColumn("energy_usage", []float64{2}),
		dataset.NewTextColumn("appliance", dataset.KindCategorical, []string{"oven"}),
	)
	require.NoError(t, err)
	require.NoError(t, AppendCSV(path, extra, Options{}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "timestamp,energy_usage,appliance\n2024-01-01 00:00:00,1,\n2024-01-02 00:00:00,2,oven\n", string(data))

	fresh := filepath.Join(t.TempDir(), "new.csv")
	require.NoError(t, AppendCSV(fresh, extra, Options{}))
	ds, err := LoadCSV(fresh, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
}

func TestFetchAPI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"timestamp": "2024-01-01 00:00:00", "energy_usage": 12.5, "appliance": "oven"},
			{"timestamp": "2024-01-01 01:00:00", "energy_usage": null, "appliance": "fridge", "on": true}
		]`))
	}))
	defer server.Close()

	ds, err := FetchAPI(context.Background(), server.Client(), server.URL, map[string]string{"Authorization": "Bearer token"})
	require.NoError(t, err)
	assert.Equal(t, []string{"appliance", "energy_usage", "on", "timestamp"}, ds.Names())

	usage, _ := ds.Column("energy_usage")
	assert.Equal(t, dataset.KindNumeric, usage.Kind)
	assert.Equal(t, 12.5, usage.Values[0].Num)
	assert.True(t, usage.Values[1].Null)

	on, _ := ds.Column("on")
	assert.True(t, on.Values[0].Null)
	assert.Equal(t, "true", on.Values[1].Str)

	ts, _ := ds.Column("timestamp")
	assert.Equal(t, dataset.KindTimestamp, ts.Kind)

	_, err = FetchAPI(context.Background(), server.Client(), server.URL, nil)
	assert.Error(t, err)
}

func TestCachedLoader(t *testing.T) {
	path := writeFile(t, "energy.csv", sample)
	loader, err := NewCachedLoader(2, Options{}, zap.NewNop())
	require.NoError(t, err)

	first, err := loader.Load(path)
	require.NoError(t, err)
	require.NoError(t, first.DropColumn("appliance"))

	second, err := loader.Load(path)
	require.NoError(t, err)
	assert.True(t, second.Has("appliance"), "cached dataset must not be shared")
	assert.Equal(t, 1, loader.Len())

	// a rewritten file gets a new key
	later := time.Now().Add(time.Minute)
	require.NoError(t, os.WriteFile(path, []byte(sample+"2024-01-03 00:00:00,1,2,oven\n"), 0o644))
	require.NoError(t, os.Chtimes(path, later, later))
	third, err := loader.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, third.Len())
	assert.Equal(t, 2, loader.Len())

	loader.Purge()
	assert.Equal(t, 0, loader.Len())
}

func TestCachedLoaderSetOptions(t *testing.T) {
	encoded, err := charmap.Windows1252.NewEncoder().String("site,usage\nCafé,1\n")
	require.NoError(t, err)
	path := writeFile(t, "latin.csv", encoded)

	loader, err := NewCachedLoader(4, Options{}, zap.NewNop())
	require.NoError(t, err)
	first, err := loader.Load(path)
	require.NoError(t, err)
	site, _ := first.Column("site")
	assert.NotEqual(t, []string{"Café"}, site.Strings())

	loader.SetOptions(Options{Charset: "windows-1252"})
	assert.Equal(t, 0, loader.Len())
	second, err := loader.Load(path)
	require.NoError(t, err)
	site, _ = second.Column("site")
	assert.Equal(t, []string{"Café"}, site.Strings())
}
