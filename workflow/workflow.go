// Package workflow 串联加载、预处理、分析、训练与导出
package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"energyflow/config"
	"energyflow/dataset"
	"energyflow/db"
	"energyflow/eda"
	"energyflow/export"
	"energyflow/ml"
	"energyflow/monitoring"
	"energyflow/pipeline"
	"energyflow/source"
)

// Deps are the optional collaborators of a run. Nil members are skipped.
type Deps struct {
	Logger     *zap.Logger
	Store      *db.Store
	Metrics    *monitoring.Metrics
	Loader     *source.CachedLoader
	HTTPClient *http.Client
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Report 一次完整分析的结果
type Report struct {
	RunID          string
	Source         string
	Summary        []eda.ColumnSummary
	Missing        map[string]int
	PeakHour       int
	PeakUsage      float64
	Pipeline       *pipeline.Result
	Regression     *ml.RegressionResult
	Classification *ml.ClassificationResult
	UsageSummary   *dataset.Dataset
	Elapsed        time.Duration
}

// Load reads the configured source: the JSON API when api_url is set,
// otherwise the CSV file.
func Load(ctx context.Context, cfg *config.Config, deps Deps) (*dataset.Dataset, string, error) {
	if cfg.Source.APIURL != "" {
		ds, err := source.FetchAPI(ctx, deps.HTTPClient, cfg.Source.APIURL, cfg.Source.APIHeaders)
		return ds, cfg.Source.APIURL, err
	}
	if cfg.Source.Path == "" {
		return nil, "", errors.New("no data source configured")
	}
	if deps.Loader != nil {
		ds, err := deps.Loader.Load(cfg.Source.Path)
		return ds, cfg.Source.Path, err
	}
	ds, err := source.LoadCSV(cfg.Source.Path, source.Options{Charset: cfg.Source.Charset})
	return ds, cfg.Source.Path, err
}

// Preprocess runs the configured pipeline and records the outcome in the
// store. rowsIn is recorded even when the run fails.
func Preprocess(ctx context.Context, cfg *config.Config, ds *dataset.Dataset, origin string, deps Deps) (*pipeline.Result, error) {
	opts := []pipeline.Option{pipeline.WithLogger(deps.logger())}
	if deps.Metrics != nil {
		opts = append(opts, pipeline.WithObserver(deps.Metrics))
	}
	proc, err := pipeline.NewProcessor(cfg.Pipeline.Processor(), opts...)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, runErr := proc.Run(ctx, ds)
	if deps.Store != nil {
		run := db.PipelineRun{
			Source:    origin,
			RowsIn:    ds.Len(),
			Duration:  time.Since(start),
			StartedAt: start,
		}
		if runErr != nil {
			run.RunID = uuid.NewString()
			run.Status = db.StatusFailed
			run.Error = runErr.Error()
		} else {
			run.RunID = res.RunID
			run.Status = db.StatusSucceeded
			run.RowsOut = res.Dataset.Len()
			run.AnomaliesRemoved = res.AnomaliesRemoved
		}
		if err := deps.Store.RecordRun(ctx, run); err != nil {
			deps.logger().Warn("failed to record pipeline run", zap.Error(err))
		}
		if runErr == nil && res.Daily != nil {
			if err := deps.Store.SaveDailyConsumption(ctx, res.RunID, res.Daily); err != nil {
				deps.logger().Warn("failed to save daily consumption", zap.Error(err))
			}
		}
	}
	return res, runErr
}

// Run executes the whole energy workflow: load, preprocess, summarize,
// derive the high-usage flag, train both models concurrently and export the
// grouped usage summary.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (*Report, error) {
	logger := deps.logger()
	start := time.Now()

	raw, origin, err := Load(ctx, cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("load source: %w", err)
	}
	res, err := Preprocess(ctx, cfg, raw, origin, deps)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	processed := res.Dataset
	report := &Report{
		RunID:    res.RunID,
		Source:   origin,
		Pipeline: res,
		Summary:  eda.Describe(processed),
		Missing:  eda.MissingCounts(raw),
	}
	logger = logger.With(zap.String("run_id", res.RunID))

	p := cfg.Pipeline
	if p.TimestampColumn != "" && p.UsageColumn != "" {
		hourly, err := eda.HourlyUsage(processed, p.TimestampColumn, p.UsageColumn)
		if err != nil {
			return nil, fmt.Errorf("hourly usage: %w", err)
		}
		if report.PeakHour, report.PeakUsage, err = eda.PeakHour(hourly); err != nil {
			return nil, err
		}
		logger.Info("Peak usage hour", zap.Int("hour", report.PeakHour), zap.Float64("mean_usage", report.PeakUsage))
	}

	if cfg.Models.ClassificationTarget == pipeline.HighUsageFlagColumn && !processed.Has(pipeline.HighUsageFlagColumn) {
		if processed, err = pipeline.FlagAbove(processed, p.UsageColumn, cfg.Features.HighUsageThreshold, pipeline.HighUsageFlagColumn); err != nil {
			return nil, fmt.Errorf("derive high usage flag: %w", err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := trainModels(ctx, cfg, processed, deps, report); err != nil {
		return nil, err
	}

	if cfg.Features.GroupColumn != "" && processed.Has(cfg.Features.GroupColumn) {
		if report.UsageSummary, err = export.UsageSummary(processed, cfg.Features.GroupColumn, p.UsageColumn); err != nil {
			return nil, fmt.Errorf("usage summary: %w", err)
		}
		if err := exportSummary(cfg.Export, report.UsageSummary); err != nil {
			return nil, err
		}
		logger.Info("Dashboard data exported", zap.String("csv", cfg.Export.CSVPath), zap.String("excel", cfg.Export.ExcelPath))
	}

	report.Elapsed = time.Since(start)
	return report, nil
}

func trainModels(ctx context.Context, cfg *config.Config, ds *dataset.Dataset, deps Deps, report *Report) error {
	m := cfg.Models
	opts := ml.TrainOptions{TestRatio: m.TestRatio, Seed: m.Seed, Trees: m.Trees, MaxDepth: m.MaxDepth}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o := opts
		o.ModelPath = filepath.Join(m.Dir, ml.TypeLinearRegression+".json")
		res, err := ml.TrainRegressionModel(ds, m.Features, m.RegressionTarget, o)
		observeTraining(deps, ml.TypeLinearRegression, res, nil, err)
		if err != nil {
			return fmt.Errorf("regression: %w", err)
		}
		report.Regression = res
		return recordTraining(gctx, deps, db.TrainingLog{
			ModelName:  ml.TypeLinearRegression,
			Target:     m.RegressionTarget,
			MSE:        res.MSE,
			TrainedAt:  res.TrainedAt,
			DataPoints: res.TrainRows + res.TestRows,
		})
	})
	g.Go(func() error {
		o := opts
		o.ModelPath = filepath.Join(m.Dir, ml.TypeRandomForest+".json")
		res, err := ml.TrainClassificationModel(ds, m.Features, m.ClassificationTarget, o)
		observeTraining(deps, ml.TypeRandomForest, nil, res, err)
		if err != nil {
			return fmt.Errorf("classification: %w", err)
		}
		report.Classification = res
		return recordTraining(gctx, deps, db.TrainingLog{
			ModelName:  ml.TypeRandomForest,
			Target:     m.ClassificationTarget,
			Accuracy:   res.Report.Accuracy,
			Precision:  res.Report.WeightedAvg.Precision,
			Recall:     res.Report.WeightedAvg.Recall,
			TrainedAt:  res.TrainedAt,
			DataPoints: res.TrainRows + res.TestRows,
		})
	})
	return g.Wait()
}

func observeTraining(deps Deps, model string, reg *ml.RegressionResult, cls *ml.ClassificationResult, err error) {
	if deps.Metrics == nil {
		return
	}
	scores := map[string]float64{}
	if reg != nil {
		scores["mse"] = reg.MSE
	}
	if cls != nil {
		scores["accuracy"] = cls.Report.Accuracy
		scores["macro_f1"] = cls.Report.MacroAvg.F1
	}
	deps.Metrics.ObserveTraining(model, scores, err)
}

func recordTraining(ctx context.Context, deps Deps, entry db.TrainingLog) error {
	if deps.Store == nil {
		return nil
	}
	if err := deps.Store.RecordTraining(ctx, entry); err != nil {
		return fmt.Errorf("record %s training: %w", entry.ModelName, err)
	}
	return nil
}

func exportSummary(cfg config.ExportConfig, summary *dataset.Dataset) error {
	if cfg.CSVPath != "" {
		if err := export.ExportCSV(cfg.CSVPath, summary); err != nil {
			return fmt.Errorf("export csv: %w", err)
		}
	}
	if cfg.ExcelPath != "" {
		if err := export.ExportExcel(cfg.ExcelPath, cfg.Sheet, summary); err != nil {
			return fmt.Errorf("export excel: %w", err)
		}
	}
	return nil
}
