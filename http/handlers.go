package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"energyflow/config"
	"energyflow/dataset"
	"energyflow/db"
	"energyflow/export"
	"energyflow/monitoring"
	"energyflow/pipeline"
	"energyflow/scheduler"
	"energyflow/source"
	"energyflow/workflow"
)

// Retrainer is the scheduled retrain task as seen by the API.
type Retrainer interface {
	ExecuteNow(ctx context.Context) error
	Stats() scheduler.Stats
}

// HandlerDeps 处理器依赖；Store、Metrics、Hub、Retrainer 可为空
type HandlerDeps struct {
	Logger    *zap.Logger
	Settings  func() *config.Config
	Store     *db.Store
	Metrics   *monitoring.Metrics
	Hub       *monitoring.Hub
	Retrainer Retrainer
}

// Handlers serves the preprocessing API.
type Handlers struct {
	logger    *zap.Logger
	settings  func() *config.Config
	store     *db.Store
	metrics   *monitoring.Metrics
	hub       *monitoring.Hub
	retrainer Retrainer

	// serializes appends to the source file
	appendMu sync.Mutex
}

func NewHandlers(d HandlerDeps) *Handlers {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Settings == nil {
		d.Settings = config.Default
	}
	return &Handlers{
		logger:    d.Logger.Named("http"),
		settings:  d.Settings,
		store:     d.Store,
		metrics:   d.Metrics,
		hub:       d.Hub,
		retrainer: d.Retrainer,
	}
}

func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", h.handleHealth)
	mux.HandleFunc("POST /api/preprocess", h.handlePreprocess)
	mux.HandleFunc("POST /api/summary/{group}", h.handleSummary)
	mux.HandleFunc("POST /api/source/append", h.handleAppend)
	mux.HandleFunc("GET /api/runs", h.handleRuns)
	mux.HandleFunc("GET /api/training/log", h.handleTrainingLog)
	mux.HandleFunc("POST /api/retrain", h.handleRetrain)
	mux.HandleFunc("GET /api/scheduler", h.handleSchedulerStats)
	mux.HandleFunc("GET /api/dashboard/daily", h.handleDashboardDaily)
	mux.HandleFunc("GET /api/dashboard/snapshot", h.handleDashboardSnapshot)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}
	if h.hub != nil {
		mux.HandleFunc("GET /api/ws/events", h.hub.ServeWS)
	}
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) workflowDeps() workflow.Deps {
	return workflow.Deps{Logger: h.logger, Store: h.store, Metrics: h.metrics}
}

// readUpload parses the request body as CSV. The charset query parameter
// overrides the configured source charset.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request, cfg *config.Config) (*dataset.Dataset, bool) {
	charset := r.URL.Query().Get("charset")
	if charset == "" {
		charset = cfg.Source.Charset
	}
	ds, err := source.ReadCSV(r.Body, source.Options{Charset: charset})
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return nil, false
		}
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return nil, false
	}
	return ds, true
}

type preprocessResponse struct {
	RunID            string                 `json:"run_id"`
	RowsIn           int                    `json:"rows_in"`
	RowsOut          int                    `json:"rows_out"`
	AnomaliesRemoved int                    `json:"anomalies_removed"`
	Imputation       pipeline.ImputeReport  `json:"imputation"`
	Stages           []pipeline.StageReport `json:"stages"`
	Encoders         *pipeline.EncoderTable `json:"encoders,omitempty"`
	Scaler           *pipeline.Scaler       `json:"scaler,omitempty"`
}

// handlePreprocess runs the configured pipeline on an uploaded CSV and
// returns the processed table as CSV, or a run report with ?format=json.
func (h *Handlers) handlePreprocess(w http.ResponseWriter, r *http.Request) {
	cfg := h.settings()
	ds, ok := h.readUpload(w, r, cfg)
	if !ok {
		return
	}

	res, err := workflow.Preprocess(r.Context(), cfg, ds, "upload", h.workflowDeps())
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.publish(monitoring.PipelineRun, map[string]any{
		"run_id":            res.RunID,
		"rows_in":           ds.Len(),
		"rows_out":          res.Dataset.Len(),
		"anomalies_removed": res.AnomaliesRemoved,
	})

	w.Header().Set("X-Run-ID", res.RunID)
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, preprocessResponse{
			RunID:            res.RunID,
			RowsIn:           ds.Len(),
			RowsOut:          res.Dataset.Len(),
			AnomaliesRemoved: res.AnomaliesRemoved,
			Imputation:       res.Imputation,
			Stages:           res.Stages,
			Encoders:         res.Encoders,
			Scaler:           res.Scaler,
		})
		return
	}
	writeCSV(w, h.logger, res.Dataset)
}

// handleSummary returns total usage per value of the {group} column.
func (h *Handlers) handleSummary(w http.ResponseWriter, r *http.Request) {
	cfg := h.settings()
	group := r.PathValue("group")
	usage := r.URL.Query().Get("usage")
	if usage == "" {
		usage = cfg.Pipeline.UsageColumn
	}
	ds, ok := h.readUpload(w, r, cfg)
	if !ok {
		return
	}
	summary, err := export.UsageSummary(ds, group, usage)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeCSV(w, h.logger, summary)
}

// handleAppend appends uploaded rows to the configured source file.
func (h *Handlers) handleAppend(w http.ResponseWriter, r *http.Request) {
	cfg := h.settings()
	if cfg.Source.Path == "" {
		writeError(w, http.StatusConflict, "no source file configured")
		return
	}
	ds, ok := h.readUpload(w, r, cfg)
	if !ok {
		return
	}

	h.appendMu.Lock()
	err := source.AppendCSV(cfg.Source.Path, ds, source.Options{Charset: cfg.Source.Charset})
	h.appendMu.Unlock()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	h.logger.Info("Source appended", zap.String("path", cfg.Source.Path), zap.Int("rows", ds.Len()))
	writeJSON(w, http.StatusOK, map[string]any{"appended": ds.Len(), "path": cfg.Source.Path})
}

func (h *Handlers) handleRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := h.store.RecentRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handlers) handleTrainingLog(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	logs, err := h.store.LoadTrainingLog(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (h *Handlers) publish(t monitoring.MessageType, data any) {
	if h.hub == nil {
		return
	}
	if err := h.hub.Publish(t, data); err != nil {
		h.logger.Warn("publish event failed", zap.String("type", string(t)), zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeCSV(w http.ResponseWriter, logger *zap.Logger, ds *dataset.Dataset) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	if err := export.WriteCSV(w, ds); err != nil {
		logger.Warn("write csv response failed", zap.Error(err))
	}
}

// statusFor maps data errors to 422 and everything else to 500.
func statusFor(err error) int {
	var (
		dq *dataset.DataQualityError
		pe *dataset.ParseError
		be *dataset.BinningError
		se *dataset.SchemaError
	)
	switch {
	case errors.As(err, &dq), errors.As(err, &pe), errors.As(err, &be), errors.As(err, &se):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
