// Command hr_extract pulls employee records out of the HR database, saves
// them as CSV, then writes a model-ready copy with mean imputation, label
// encoding and min-max scaling.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"energyflow/dataset"
	"energyflow/db"
	"energyflow/export"
	"energyflow/logging"
	"energyflow/pipeline"
)

const employeeQuery = `SELECT
	employee_id,
	department,
	job_role,
	age,
	gender,
	performance_rating,
	overtime_hours,
	promotion_last_5_years,
	years_at_company,
	attrition
FROM employee_data`

// HR 预处理：缺失关键分类字段的行直接丢弃
var hrPipeline = pipeline.Config{
	Imputation: pipeline.ImputeOptions{
		Strategy:  pipeline.MeanDropEssential,
		Essential: []string{"department", "job_role", "gender"},
	},
	EncodeColumns:    []string{"department", "job_role", "gender", "attrition"},
	NormalizeColumns: []string{"age", "performance_rating", "overtime_hours", "years_at_company"},
}

type options struct {
	dbPath    string
	query     string
	rawPath   string
	cleanPath string
}

func main() {
	var opts options
	flag.StringVar(&opts.dbPath, "db", "hr_database.db", "HR database path")
	flag.StringVar(&opts.query, "query", employeeQuery, "extraction query")
	flag.StringVar(&opts.rawPath, "out", "extracted_employee_data.csv", "raw extract output path")
	flag.StringVar(&opts.cleanPath, "clean_out", "preprocessed_employee_data.csv", "preprocessed output path, empty to skip")
	level := flag.String("log_level", "info", "log level")
	flag.Parse()

	logger, err := logging.New(logging.Config{Level: *level, Format: "console"})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := run(context.Background(), opts, logger); err != nil {
		logger.Fatal("HR extraction failed", zap.Error(err))
	}
}

func run(ctx context.Context, opts options, logger *zap.Logger) error {
	store, err := db.Open(opts.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	logger.Info("Database connection successful", zap.String("path", opts.dbPath))

	raw, err := store.ExtractQuery(ctx, opts.query)
	if err != nil {
		return err
	}
	logger.Info("Query executed", zap.Int("rows", raw.Len()), zap.Strings("columns", raw.Names()))

	if err := export.ExportCSV(opts.rawPath, raw); err != nil {
		return err
	}
	logger.Info("Extract saved", zap.String("path", opts.rawPath))

	if opts.cleanPath == "" {
		return nil
	}
	return preprocess(ctx, raw, opts.cleanPath, logger)
}

// preprocess writes the cleaned table and a sidecar JSON with the category
// codes and scaling ranges needed to map model output back.
func preprocess(ctx context.Context, raw *dataset.Dataset, path string, logger *zap.Logger) error {
	cfg := hrPipeline
	cfg.EncodeColumns = categorical(raw, cfg.EncodeColumns)
	// an empty list would otherwise encode every text column
	cfg.SkipEncoding = len(cfg.EncodeColumns) == 0
	cfg.NormalizeColumns = present(raw, cfg.NormalizeColumns)
	cfg.Imputation.Essential = present(raw, cfg.Imputation.Essential)

	proc, err := pipeline.NewProcessor(cfg, pipeline.WithLogger(logger))
	if err != nil {
		return err
	}
	res, err := proc.Run(ctx, raw)
	if err != nil {
		return err
	}
	logger.Info("HR preprocessing completed",
		zap.Int("rows_in", raw.Len()),
		zap.Int("rows_out", res.Dataset.Len()),
		zap.Int("dropped", res.Imputation.DroppedRows))

	if err := export.ExportCSV(path, res.Dataset); err != nil {
		return err
	}

	mappings, err := json.MarshalIndent(map[string]any{
		"encoders": res.Encoders,
		"scaler":   res.Scaler,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mappings: %w", err)
	}
	return os.WriteFile(path+".mappings.json", mappings, 0o644)
}

// present keeps the names the extract actually returned, so a narrower
// custom query still preprocesses.
func present(ds *dataset.Dataset, names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if ds.Has(name) {
			out = append(out, name)
		}
	}
	return out
}

// categorical drops columns the database returned as numbers, e.g. a 0/1
// attrition flag.
func categorical(ds *dataset.Dataset, names []string) []string {
	out := names[:0:0]
	for _, name := range names {
		if col, err := ds.Column(name); err == nil && col.Kind == dataset.KindCategorical {
			out = append(out, name)
		}
	}
	return out
}
