// Package pipeline 提供表格数据预处理流水线
package pipeline

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"energyflow/dataset"
)

// Stage 流水线阶段
type Stage interface {
	Name() string
	Apply(ds *dataset.Dataset, res *Result) (*dataset.Dataset, error)
}

// Observer receives per-stage timings, e.g. for metrics export.
type Observer interface {
	ObserveStage(stage string, duration time.Duration, rowsIn, rowsOut int, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration, int, int, error) {}

// Config 流水线配置
type Config struct {
	Imputation       ImputeOptions
	AnomalyColumn    string
	AnomalyThreshold float64
	EncodeColumns    []string
	SkipEncoding     bool
	NormalizeColumns []string
	TimestampColumn  string
	UsageColumn      string
	Tiers            *Bins
}

// Validate 校验配置
func (c Config) Validate() error {
	if err := c.Imputation.Validate(); err != nil {
		return err
	}
	if c.Tiers != nil {
		if c.UsageColumn == "" {
			return fmt.Errorf("tiering requires a usage column")
		}
		if err := c.Tiers.Validate(); err != nil {
			return err
		}
	}
	if c.UsageColumn != "" && slices.Contains(c.NormalizeColumns, c.UsageColumn) {
		if c.Tiers != nil || c.TimestampColumn != "" {
			return fmt.Errorf("usage column %q cannot be normalized: tiers and daily totals are computed in raw units", c.UsageColumn)
		}
	}
	if c.TimestampColumn != "" && slices.Contains(c.EncodeColumns, c.TimestampColumn) {
		return fmt.Errorf("timestamp column %q cannot be encoded", c.TimestampColumn)
	}
	return nil
}

// StageReport 单个阶段的执行情况
type StageReport struct {
	Name     string        `json:"name"`
	RowsIn   int           `json:"rows_in"`
	RowsOut  int           `json:"rows_out"`
	Duration time.Duration `json:"duration"`
}

// Result 一次流水线运行的结果
type Result struct {
	RunID            string
	StartedAt        time.Time
	Dataset          *dataset.Dataset
	Encoders         *EncoderTable
	Scaler           *Scaler
	Daily            *dataset.Dataset
	Imputation       ImputeReport
	AnomaliesRemoved int
	Stages           []StageReport
}

// RunStats 累计统计
type RunStats struct {
	TotalRuns int64            `json:"total_runs"`
	Succeeded int64            `json:"succeeded"`
	Failed    int64            `json:"failed"`
	RowsIn    int64            `json:"rows_in"`
	RowsOut   int64            `json:"rows_out"`
	Failures  map[string]int64 `json:"failures"`
	LastRun   time.Time        `json:"last_run"`
}

// Processor runs the stages in a fixed order:
// impute, anomaly filter, encode, normalize, time features, tiering.
// Daily consumption is computed from the final dataset.
type Processor struct {
	config   Config
	stages   []Stage
	logger   *zap.Logger
	observer Observer

	stats     RunStats
	statsLock sync.RWMutex
}

// Option 处理器选项
type Option func(*Processor)

// WithLogger 设置日志
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) { p.logger = logger }
}

// WithObserver 设置阶段观察者
func WithObserver(observer Observer) Option {
	return func(p *Processor) { p.observer = observer }
}

// NewProcessor 创建处理器
func NewProcessor(config Config, opts ...Option) (*Processor, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}
	p := &Processor{
		config:   config,
		logger:   zap.NewNop(),
		observer: nopObserver{},
		stats:    RunStats{Failures: make(map[string]int64)},
	}
	for _, opt := range opts {
		opt(p)
	}

	p.stages = append(p.stages, &imputeStage{opts: config.Imputation})
	if config.AnomalyColumn != "" {
		p.stages = append(p.stages, &anomalyStage{column: config.AnomalyColumn, threshold: config.AnomalyThreshold})
	}
	if !config.SkipEncoding {
		p.stages = append(p.stages, &encodeStage{columns: config.EncodeColumns, exclude: config.TimestampColumn})
	}
	if len(config.NormalizeColumns) > 0 {
		p.stages = append(p.stages, &normalizeStage{columns: config.NormalizeColumns})
	}
	if config.TimestampColumn != "" {
		p.stages = append(p.stages, &timeFeatureStage{column: config.TimestampColumn})
	}
	if config.Tiers != nil {
		p.stages = append(p.stages, &tierStage{column: config.UsageColumn, bins: *config.Tiers})
	}
	return p, nil
}

// Stages 返回阶段名称
func (p *Processor) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes every stage. The input dataset is never modified; on failure
// no partial dataset is returned.
func (p *Processor) Run(ctx context.Context, ds *dataset.Dataset) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), StartedAt: time.Now()}
	logger := p.logger.With(zap.String("run_id", res.RunID))
	logger.Info("Starting preprocessing", zap.Int("rows", ds.Len()), zap.Strings("stages", p.Stages()))

	current := ds
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			p.recordFailure(stage.Name(), ds.Len())
			return nil, fmt.Errorf("pipeline cancelled before %s: %w", stage.Name(), err)
		}

		start := time.Now()
		next, err := stage.Apply(current, res)
		duration := time.Since(start)
		rowsOut := 0
		if next != nil {
			rowsOut = next.Len()
		}
		p.observer.ObserveStage(stage.Name(), duration, current.Len(), rowsOut, err)

		if err != nil {
			logger.Error("Stage failed", zap.String("stage", stage.Name()), zap.Error(err))
			p.recordFailure(stage.Name(), ds.Len())
			return nil, fmt.Errorf("stage %s: %w", stage.Name(), err)
		}

		res.Stages = append(res.Stages, StageReport{
			Name:     stage.Name(),
			RowsIn:   current.Len(),
			RowsOut:  rowsOut,
			Duration: duration,
		})
		logger.Debug("Stage completed",
			zap.String("stage", stage.Name()),
			zap.Int("rows_in", current.Len()),
			zap.Int("rows_out", rowsOut),
			zap.Duration("duration", duration))
		current = next
	}

	if p.config.TimestampColumn != "" && p.config.UsageColumn != "" {
		daily, err := DailyConsumption(current, p.config.TimestampColumn, p.config.UsageColumn)
		if err != nil {
			p.recordFailure("daily_consumption", ds.Len())
			return nil, fmt.Errorf("daily consumption: %w", err)
		}
		res.Daily = daily
	}

	res.Dataset = current
	p.recordSuccess(ds.Len(), current.Len())
	logger.Info("Preprocessing completed",
		zap.Int("rows_in", ds.Len()),
		zap.Int("rows_out", current.Len()),
		zap.Int("anomalies_removed", res.AnomaliesRemoved),
		zap.Duration("elapsed", time.Since(res.StartedAt)))
	return res, nil
}

func (p *Processor) recordSuccess(rowsIn, rowsOut int) {
	p.statsLock.Lock()
	defer p.statsLock.Unlock()
	p.stats.TotalRuns++
	p.stats.Succeeded++
	p.stats.RowsIn += int64(rowsIn)
	p.stats.RowsOut += int64(rowsOut)
	p.stats.LastRun = time.Now()
}

func (p *Processor) recordFailure(stage string, rowsIn int) {
	p.statsLock.Lock()
	defer p.statsLock.Unlock()
	p.stats.TotalRuns++
	p.stats.Failed++
	p.stats.RowsIn += int64(rowsIn)
	p.stats.Failures[stage]++
	p.stats.LastRun = time.Now()
}

// GetStats 获取统计信息
func (p *Processor) GetStats() RunStats {
	p.statsLock.RLock()
	defer p.statsLock.RUnlock()

	stats := p.stats
	stats.Failures = make(map[string]int64, len(p.stats.Failures))
	for k, v := range p.stats.Failures {
		stats.Failures[k] = v
	}
	return stats
}

// ============ 阶段实现 ============

type imputeStage struct{ opts ImputeOptions }

func (s *imputeStage) Name() string { return "impute" }

func (s *imputeStage) Apply(ds *dataset.Dataset, res *Result) (*dataset.Dataset, error) {
	out, report, err := ImputeMissing(ds, s.opts)
	if err != nil {
		return nil, err
	}
	res.Imputation = report
	return out, nil
}

type anomalyStage struct {
	column    string
	threshold float64
}

func (s *anomalyStage) Name() string { return "anomaly_filter" }

func (s *anomalyStage) Apply(ds *dataset.Dataset, res *Result) (*dataset.Dataset, error) {
	out, removed, err := RemoveAnomalies(ds, s.column, s.threshold)
	if err != nil {
		return nil, err
	}
	res.AnomaliesRemoved = removed
	return out, nil
}

type encodeStage struct {
	columns []string
	exclude string
}

func (s *encodeStage) Name() string { return "encode" }

func (s *encodeStage) Apply(ds *dataset.Dataset, res *Result) (*dataset.Dataset, error) {
	columns := s.columns
	if len(columns) == 0 {
		for _, name := range ds.ColumnsOfKind(dataset.KindCategorical) {
			if name != s.exclude {
				columns = append(columns, name)
			}
		}
		if len(columns) == 0 {
			res.Encoders = NewEncoderTable()
			return ds, nil
		}
	}
	out, table, err := EncodeCategorical(ds, columns...)
	if err != nil {
		return nil, err
	}
	res.Encoders = table
	return out, nil
}

type normalizeStage struct{ columns []string }

func (s *normalizeStage) Name() string { return "normalize" }

func (s *normalizeStage) Apply(ds *dataset.Dataset, res *Result) (*dataset.Dataset, error) {
	out, scaler, err := Normalize(ds, s.columns)
	if err != nil {
		return nil, err
	}
	res.Scaler = scaler
	return out, nil
}

type timeFeatureStage struct{ column string }

func (s *timeFeatureStage) Name() string { return "time_features" }

func (s *timeFeatureStage) Apply(ds *dataset.Dataset, _ *Result) (*dataset.Dataset, error) {
	return ExtractTimeFeatures(ds, s.column)
}

type tierStage struct {
	column string
	bins   Bins
}

func (s *tierStage) Name() string { return "tiering" }

func (s *tierStage) Apply(ds *dataset.Dataset, _ *Result) (*dataset.Dataset, error) {
	return AssignTiers(ds, s.column, s.bins)
}
