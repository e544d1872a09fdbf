package http

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"energyflow/scheduler"
)

// handleRetrain runs the retrain task synchronously. The outcome is also
// broadcast to event subscribers by the scheduler's notifier.
func (h *Handlers) handleRetrain(w http.ResponseWriter, r *http.Request) {
	if h.retrainer == nil {
		writeError(w, http.StatusServiceUnavailable, "retraining not configured")
		return
	}

	err := h.retrainer.ExecuteNow(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrDisabled):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		h.logger.Error("manual retrain failed", zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "scheduler": h.retrainer.Stats()})
}

func (h *Handlers) handleSchedulerStats(w http.ResponseWriter, r *http.Request) {
	if h.retrainer == nil {
		writeError(w, http.StatusServiceUnavailable, "retraining not configured")
		return
	}
	writeJSON(w, http.StatusOK, h.retrainer.Stats())
}
