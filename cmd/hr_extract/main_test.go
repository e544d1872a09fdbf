package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"energyflow/source"
)

func seedEmployees(t *testing.T, path string) {
	t.Helper()
	conn, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec(`CREATE TABLE employee_data (
		employee_id INTEGER PRIMARY KEY,
		department TEXT,
		job_role TEXT,
		age INTEGER,
		gender TEXT,
		performance_rating INTEGER,
		overtime_hours REAL,
		promotion_last_5_years INTEGER,
		years_at_company INTEGER,
		attrition TEXT
	)`)
	require.NoError(t, err)
	_, err = conn.Exec(`INSERT INTO employee_data VALUES
		(1, 'Sales', 'Manager', 30, 'Male', 3, 5, 0, 4, 'No'),
		(2, 'IT', 'Engineer', 40, 'Female', 4, NULL, 1, 10, 'Yes'),
		(3, NULL, 'Engineer', 50, 'Male', 2, 15, 0, 6, 'No'),
		(4, 'IT', 'Analyst', NULL, 'Female', 5, 10, 1, 2, 'Yes')`)
	require.NoError(t, err)
}

func TestRunExtractsAndPreprocesses(t *testing.T) {
	dir := t.TempDir()
	opts := options{
		dbPath:    filepath.Join(dir, "hr.db"),
		query:     employeeQuery,
		rawPath:   filepath.Join(dir, "raw.csv"),
		cleanPath: filepath.Join(dir, "clean.csv"),
	}
	seedEmployees(t, opts.dbPath)

	require.NoError(t, run(context.Background(), opts, zap.NewNop()))

	raw, err := source.LoadCSV(opts.rawPath, source.Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, raw.Len())
	assert.Equal(t, []string{
		"employee_id", "department", "job_role", "age", "gender", "performance_rating",
		"overtime_hours", "promotion_last_5_years", "years_at_company", "attrition",
	}, raw.Names())

	clean, err := source.LoadCSV(opts.cleanPath, source.Options{})
	require.NoError(t, err)
	require.Equal(t, 3, clean.Len(), "row missing an essential column is dropped")

	age, err := clean.NumericColumn("age")
	require.NoError(t, err)
	ages, ok := age.Floats()
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{0, 1, 0.5}, ages, 1e-9)

	overtime, err := clean.NumericColumn("overtime_hours")
	require.NoError(t, err)
	hours, ok := overtime.Floats()
	require.True(t, ok)
	// mean fill of 7.5 sits midway between 5 and 10
	assert.InDeltaSlice(t, []float64{0, 0.5, 1}, hours, 1e-9)

	dept, err := clean.NumericColumn("department")
	require.NoError(t, err)
	codes, ok := dept.Floats()
	require.True(t, ok)
	assert.Equal(t, []float64{0, 1, 1}, codes)

	data, err := os.ReadFile(opts.cleanPath + ".mappings.json")
	require.NoError(t, err)
	var mappings struct {
		Encoders map[string][]string `json:"encoders"`
	}
	require.NoError(t, json.Unmarshal(data, &mappings))
	assert.Equal(t, []string{"Sales", "IT"}, mappings.Encoders["department"])
	assert.Equal(t, []string{"No", "Yes"}, mappings.Encoders["attrition"])
}

func TestRunLeavesOtherTextColumns(t *testing.T) {
	dir := t.TempDir()
	opts := options{
		dbPath:    filepath.Join(dir, "hr.db"),
		query:     "SELECT 'E-' || employee_id AS badge, age FROM employee_data ORDER BY employee_id",
		rawPath:   filepath.Join(dir, "raw.csv"),
		cleanPath: filepath.Join(dir, "clean.csv"),
	}
	seedEmployees(t, opts.dbPath)

	require.NoError(t, run(context.Background(), opts, zap.NewNop()))

	clean, err := source.LoadCSV(opts.cleanPath, source.Options{})
	require.NoError(t, err)
	badge, err := clean.Column("badge")
	require.NoError(t, err)
	assert.Equal(t, []string{"E-1", "E-2", "E-3", "E-4"}, badge.Strings())

	age, err := clean.NumericColumn("age")
	require.NoError(t, err)
	ages, ok := age.Floats()
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{0, 0.5, 1, 0.5}, ages, 1e-9)

	data, err := os.ReadFile(opts.cleanPath + ".mappings.json")
	require.NoError(t, err)
	var mappings struct {
		Encoders map[string][]string `json:"encoders"`
	}
	require.NoError(t, json.Unmarshal(data, &mappings))
	assert.Empty(t, mappings.Encoders)
}

func TestRunSkipsPreprocessing(t *testing.T) {
	dir := t.TempDir()
	opts := options{
		dbPath:  filepath.Join(dir, "hr.db"),
		query:   "SELECT employee_id, department FROM employee_data ORDER BY employee_id",
		rawPath: filepath.Join(dir, "raw.csv"),
	}
	seedEmployees(t, opts.dbPath)

	require.NoError(t, run(context.Background(), opts, zap.NewNop()))
	data, err := os.ReadFile(opts.rawPath)
	require.NoError(t, err)
	assert.Equal(t, "employee_id,department\n1,Sales\n2,IT\n3,\n4,IT\n", string(data))
}

func TestRunBadQuery(t *testing.T) {
	dir := t.TempDir()
	opts := options{
		dbPath:  filepath.Join(dir, "hr.db"),
		query:   "SELECT * FROM missing_table",
		rawPath: filepath.Join(dir, "raw.csv"),
	}
	assert.Error(t, run(context.Background(), opts, zap.NewNop()))
	assert.NoFileExists(t, opts.rawPath)
}
