// Package db 基于 SQLite 的运行记录存储
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"energyflow/dataset"
)

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL UNIQUE,
    source TEXT,
    status TEXT NOT NULL,
    error TEXT,
    rows_in INTEGER DEFAULT 0,
    rows_out INTEGER DEFAULT 0,
    anomalies_removed INTEGER DEFAULT 0,
    duration_ms INTEGER DEFAULT 0,
    started_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS training_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    model_name VARCHAR(50),
    target VARCHAR(50),
    accuracy REAL,
    precision REAL,
    recall REAL,
    mse REAL,
    trained_at DATETIME,
    data_points INTEGER
);
CREATE TABLE IF NOT EXISTS daily_consumption (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    date TEXT NOT NULL UNIQUE,
    consumption REAL NOT NULL,
    run_id TEXT,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// Store wraps a SQLite database holding run history.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer at a time
	database.SetMaxOpenConns(1)
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// PipelineRun 一次预处理运行的记录
type PipelineRun struct {
	RunID            string        `json:"run_id"`
	Source           string        `json:"source"`
	Status           string        `json:"status"`
	Error            string        `json:"error,omitempty"`
	RowsIn           int           `json:"rows_in"`
	RowsOut          int           `json:"rows_out"`
	AnomaliesRemoved int           `json:"anomalies_removed"`
	Duration         time.Duration `json:"duration"`
	StartedAt        time.Time     `json:"started_at"`
}

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

func (s *Store) RecordRun(ctx context.Context, run PipelineRun) error {
	if run.RunID == "" {
		return errors.New("run id required")
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT OR REPLACE INTO pipeline_runs (
            run_id, source, status, error, rows_in, rows_out, anomalies_removed, duration_ms, started_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Source, run.Status, run.Error, run.RowsIn, run.RowsOut,
		run.AnomaliesRemoved, run.Duration.Milliseconds(), run.StartedAt.UTC())
	return err
}

// RecentRuns returns the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]PipelineRun, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT run_id, source, status, error, rows_in, rows_out, anomalies_removed, duration_ms, started_at
        FROM pipeline_runs
        ORDER BY started_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]PipelineRun, 0)
	for rows.Next() {
		var run PipelineRun
		var source, errText sql.NullString
		var durationMS int64
		if err := rows.Scan(&run.RunID, &source, &run.Status, &errText, &run.RowsIn, &run.RowsOut,
			&run.AnomaliesRemoved, &durationMS, &run.StartedAt); err != nil {
			return nil, err
		}
		run.Source = source.String
		run.Error = errText.String
		run.Duration = time.Duration(durationMS) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// TrainingLog 模型训练记录
type TrainingLog struct {
	ModelName  string    `json:"model_name"`
	Target     string    `json:"target"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	MSE        float64   `json:"mse"`
	TrainedAt  time.Time `json:"trained_at"`
	DataPoints int       `json:"data_points"`
}

func (s *Store) RecordTraining(ctx context.Context, entry TrainingLog) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (model_name, target, accuracy, precision, recall, mse, trained_at, data_points)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ModelName, entry.Target, entry.Accuracy, entry.Precision, entry.Recall, entry.MSE,
		entry.TrainedAt.UTC(), entry.DataPoints)
	return err
}

// LoadTrainingLog returns every training record, newest first.
func (s *Store) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT model_name, target, accuracy, precision, recall, mse, trained_at, data_points
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		if err := rows.Scan(&log.ModelName, &log.Target, &log.Accuracy, &log.Precision, &log.Recall,
			&log.MSE, &log.TrainedAt, &log.DataPoints); err != nil {
			return nil, err
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}

// SaveDailyConsumption upserts one row per date from a daily aggregation
// result (columns date and daily_consumption).
func (s *Store) SaveDailyConsumption(ctx context.Context, runID string, daily *dataset.Dataset) error {
	dates, err := daily.Column("date")
	if err != nil {
		return err
	}
	totals, err := daily.NumericColumn("daily_consumption")
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO daily_consumption (date, consumption, run_id, updated_at)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(date) DO UPDATE SET
            consumption = excluded.consumption,
            run_id = excluded.run_id,
            updated_at = CURRENT_TIMESTAMP`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := 0; i < daily.Len(); i++ {
		d, v := dates.Values[i], totals.Values[i]
		if d.Null || v.Null {
			continue
		}
		if _, err := stmt.ExecContext(ctx, d.Str, v.Num, runID); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// DailyRecord 日用电量
type DailyRecord struct {
	Date        string  `json:"date"`
	Consumption float64 `json:"consumption"`
	RunID       string  `json:"run_id"`
}

// DailyConsumption returns stored daily totals, oldest date first.
func (s *Store) DailyConsumption(ctx context.Context) ([]DailyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, consumption, run_id FROM daily_consumption ORDER BY date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]DailyRecord, 0)
	for rows.Next() {
		var r DailyRecord
		var runID sql.NullString
		if err := rows.Scan(&r.Date, &r.Consumption, &runID); err != nil {
			return nil, err
		}
		r.RunID = runID.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// ExtractQuery runs query and returns the result set as a Dataset. A column
// whose non-null values are all integers or reals is numeric, a column of
// datetimes is a timestamp column, anything else is categorical. SQL NULL
// becomes a null cell.
func (s *Store) ExtractQuery(ctx context.Context, query string, args ...any) (*dataset.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	raw := make([][]any, len(names))
	for rows.Next() {
		cells := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, cell := range cells {
			raw[i] = append(raw[i], cell)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	columns := make([]*dataset.Column, len(names))
	for i, name := range names {
		columns[i] = toColumn(name, raw[i])
	}
	return dataset.New(columns...)
}

func toColumn(name string, cells []any) *dataset.Column {
	kind := dataset.KindNumeric
	for _, cell := range cells {
		switch cell.(type) {
		case nil, int64, float64:
		case time.Time:
			if kind == dataset.KindNumeric {
				kind = dataset.KindTimestamp
			}
		default:
			kind = dataset.KindCategorical
		}
		if kind == dataset.KindCategorical {
			break
		}
	}
	// a column mixing numbers and datetimes is kept as text
	if kind == dataset.KindTimestamp {
		for _, cell := range cells {
			if _, ok := cell.(time.Time); !ok && cell != nil {
				kind = dataset.KindCategorical
				break
			}
		}
	}

	col := &dataset.Column{Name: name, Kind: kind, Values: make([]dataset.Value, len(cells))}
	for i, cell := range cells {
		col.Values[i] = toValue(cell, kind)
	}
	return col
}

func toValue(cell any, kind dataset.Kind) dataset.Value {
	switch v := cell.(type) {
	case nil:
		return dataset.Null()
	case int64:
		if kind.IsNumeric() {
			return dataset.Number(float64(v))
		}
		return dataset.Text(strconv.FormatInt(v, 10))
	case float64:
		if kind.IsNumeric() {
			return dataset.Number(v)
		}
		return dataset.Text(strconv.FormatFloat(v, 'f', -1, 64))
	case time.Time:
		return dataset.Text(v.UTC().Format(time.RFC3339))
	case []byte:
		return dataset.Text(string(v))
	case string:
		return dataset.Text(v)
	case bool:
		return dataset.Text(strconv.FormatBool(v))
	default:
		return dataset.Text(fmt.Sprint(v))
	}
}
