package http

import (
	"net/http"
	"strconv"

	"energyflow/db"
	"energyflow/scheduler"
)

// handleDashboardDaily 返回已入库的日用电量，?days=N 只取最近 N 天
func (h *Handlers) handleDashboardDaily(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "store not configured")
		return
	}
	records, err := h.store.DailyConsumption(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if days, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && days > 0 && days < len(records) {
		records = records[len(records)-days:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"daily": records})
}

type dashboardSnapshot struct {
	LastRun   *db.PipelineRun           `json:"last_run,omitempty"`
	Models    map[string]db.TrainingLog `json:"models"`
	Scheduler *scheduler.Stats          `json:"scheduler,omitempty"`
	WSClients int                       `json:"ws_clients"`
}

// handleDashboardSnapshot gathers the latest run, the latest training entry
// per model and the scheduler state in one response.
func (h *Handlers) handleDashboardSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := dashboardSnapshot{Models: make(map[string]db.TrainingLog)}

	if h.store != nil {
		runs, err := h.store.RecentRuns(r.Context(), 1)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if len(runs) > 0 {
			snap.LastRun = &runs[0]
		}
		logs, err := h.store.LoadTrainingLog(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		// newest first
		for _, entry := range logs {
			if _, seen := snap.Models[entry.ModelName]; !seen {
				snap.Models[entry.ModelName] = entry
			}
		}
	}
	if h.retrainer != nil {
		stats := h.retrainer.Stats()
		snap.Scheduler = &stats
	}
	if h.hub != nil {
		snap.WSClients = h.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, snap)
}
