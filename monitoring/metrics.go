// Package monitoring 指标与实时事件
package monitoring

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"energyflow/dataset"
)

// Metrics holds the Prometheus collectors for pipeline and training runs. It
// implements pipeline.Observer.
type Metrics struct {
	registry *prometheus.Registry

	StageDuration  *prometheus.HistogramVec
	StageRuns      *prometheus.CounterVec
	RowsProcessed  *prometheus.CounterVec
	RowsDropped    *prometheus.CounterVec
	TrainingRuns   *prometheus.CounterVec
	TrainingScore  *prometheus.GaugeVec
	LastTrainingAt prometheus.Gauge
	WSClients      prometheus.Gauge
}

// NewMetrics 创建指标集合，注册到独立的 registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "energyflow_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"stage"}),
		StageRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "energyflow_stage_runs_total",
			Help: "Pipeline stage executions by outcome",
		}, []string{"stage", "status"}),
		RowsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "energyflow_stage_rows_total",
			Help: "Rows entering each pipeline stage",
		}, []string{"stage"}),
		RowsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "energyflow_stage_rows_dropped_total",
			Help: "Rows removed by each pipeline stage",
		}, []string{"stage"}),
		TrainingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "energyflow_training_runs_total",
			Help: "Model training runs by model and outcome",
		}, []string{"model", "status"}),
		TrainingScore: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "energyflow_training_score",
			Help: "Latest held-out score per model and metric",
		}, []string{"model", "metric"}),
		LastTrainingAt: factory.NewGauge(prometheus.GaugeOpts{
			Name: "energyflow_last_training_timestamp_seconds",
			Help: "Unix time of the last successful training",
		}),
		WSClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "energyflow_ws_clients",
			Help: "Connected websocket event clients",
		}),
	}
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, d time.Duration, rowsIn, rowsOut int, err error) {
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.RowsProcessed.WithLabelValues(stage).Add(float64(rowsIn))
	if err != nil {
		m.StageRuns.WithLabelValues(stage, errorClass(err)).Inc()
		return
	}
	m.StageRuns.WithLabelValues(stage, "ok").Inc()
	if rowsOut < rowsIn {
		m.RowsDropped.WithLabelValues(stage).Add(float64(rowsIn - rowsOut))
	}
}

// ObserveTraining records a training run and its scores, keyed by metric name.
func (m *Metrics) ObserveTraining(model string, scores map[string]float64, err error) {
	if err != nil {
		m.TrainingRuns.WithLabelValues(model, "failed").Inc()
		return
	}
	m.TrainingRuns.WithLabelValues(model, "ok").Inc()
	for metric, v := range scores {
		m.TrainingScore.WithLabelValues(model, metric).Set(v)
	}
	m.LastTrainingAt.SetToCurrentTime()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func errorClass(err error) string {
	var (
		dq *dataset.DataQualityError
		pe *dataset.ParseError
		be *dataset.BinningError
		se *dataset.SchemaError
	)
	switch {
	case errors.As(err, &dq):
		return "data_quality"
	case errors.As(err, &pe):
		return "parse"
	case errors.As(err, &be):
		return "binning"
	case errors.As(err, &se):
		return "schema"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}
