package http

import (
	"context"
	"encoding/json"
	"errors"
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

	"energyflow/config"
	"energyflow/db"
	"energyflow/monitoring"
	"energyflow/scheduler"
)

const energyCSV = `timestamp,appliance,temperature,energy_usage
2024-01-01 08:00:00,AC,20,40
2024-01-01 09:00:00,Heater,,60
2024-01-02 10:00:00,AC,22,100
2024-01-02 11:00:00,Fridge,21,
`

type fakeRetrainer struct {
	err   error
	calls int
}

func (f *fakeRetrainer) ExecuteNow(context.Context) error {
	f.calls++
	return f.err
}

func (f *fakeRetrainer) Stats() scheduler.Stats {
	return scheduler.Stats{ExecutionCount: int64(f.calls)}
}

type fixture struct {
	handler   http.Handler
	store     *db.Store
	cfg       *config.Config
	retrainer *fakeRetrainer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := db.Open(filepath.Join(dir, "energy.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cfg := config.Default()
	cfg.Source.Path = filepath.Join(dir, "energy.csv")
	retrainer := &fakeRetrainer{}

	h := NewHandlers(HandlerDeps{
		Settings:  func() *config.Config { return cfg },
		Store:     store,
		Metrics:   monitoring.NewMetrics(),
		Retrainer: retrainer,
	})
	srvCfg := DefaultServerConfig()
	srvCfg.MaxUploadBytes = 1 << 10
	return &fixture{handler: NewServer(srvCfg, h).Handler(), store: store, cfg: cfg, retrainer: retrainer}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

func TestHealthHandler(t *testing.T) {
	f := newFixture(t)
	rec := f.do("GET", "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestPreprocessReturnsCSV(t *testing.T) {
	f := newFixture(t)
	rec := f.do("POST", "/api/preprocess", energyCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	require.NotEmpty(t, rec.Header().Get("X-Run-ID"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "consumption_tier")
	assert.Contains(t, lines[0], "hour")

	runs, err := f.store.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, rec.Header().Get("X-Run-ID"), runs[0].RunID)
	assert.Equal(t, "upload", runs[0].Source)
}

func TestPreprocessJSONReport(t *testing.T) {
	f := newFixture(t)
	rec := f.do("POST", "/api/preprocess?format=json", energyCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp preprocessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.RowsIn)
	assert.Equal(t, 4, resp.RowsOut)
	assert.Len(t, resp.Imputation.Filled, 2)
	assert.Equal(t, "impute", resp.Stages[0].Name)
}

func TestPreprocessRejectsBadInput(t *testing.T) {
	f := newFixture(t)

	// a value above the last tier edge
	rec := f.do("POST", "/api/preprocess", "timestamp,energy_usage\n2024-01-01 00:00:00,900\n")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do("POST", "/api/preprocess", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do("POST", "/api/preprocess", "a\n"+strings.Repeat("1\n", 1024))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestPreprocessNonFiniteCells(t *testing.T) {
	f := newFixture(t)
	body := "timestamp,appliance,energy_usage\n" +
		"2024-01-01 08:00:00,AC,40\n" +
		"2024-01-01 09:00:00,Heater,nan\n" +
		"2024-01-01 10:00:00,AC,NaN\n" +
		"2024-01-01 11:00:00,Fridge,60\n"

	rec := f.do("POST", "/api/preprocess?format=json", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp preprocessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 4, resp.RowsOut)

	rec = f.do("POST", "/api/preprocess", "timestamp,energy_usage\n2024-01-01 00:00:00,1\n2024-01-01 01:00:00,inf\n")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "non-finite")
}

func TestSummaryHandler(t *testing.T) {
	f := newFixture(t)
	rec := f.do("POST", "/api/summary/appliance", "appliance,energy_usage\nAC,1\nHeater,2\nAC,3\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "appliance,total_usage\nAC,4\nHeater,2\n", rec.Body.String())

	rec = f.do("POST", "/api/summary/room", "appliance,energy_usage\nAC,1\n")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAppendHandler(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.WriteFile(f.cfg.Source.Path, []byte("appliance,energy_usage\nAC,1\n"), 0o644))

	rec := f.do("POST", "/api/source/append", "appliance,energy_usage\nHeater,2\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	data, err := os.ReadFile(f.cfg.Source.Path)
	require.NoError(t, err)
	assert.Equal(t, "appliance,energy_usage\nAC,1\nHeater,2\n", string(data))
}

func TestTrainingLogHandler(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.RecordTraining(context.Background(), db.TrainingLog{ModelName: "random_forest", Accuracy: 0.8}))

	rec := f.do("GET", "/api/training/log", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Logs []db.TrainingLog `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Logs, 1)
	assert.Equal(t, 0.8, body.Logs[0].Accuracy)
}

func TestRetrainHandler(t *testing.T) {
	f := newFixture(t)
	rec := f.do("POST", "/api/retrain", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.retrainer.calls)

	f.retrainer.err = scheduler.ErrDisabled
	rec = f.do("POST", "/api/retrain", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	f.retrainer.err = errors.New("boom")
	rec = f.do("POST", "/api/retrain", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = f.do("GET", "/api/scheduler", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"execution_count":3`)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.do("POST", "/api/preprocess", energyCSV)

	rec := f.do("GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "energyflow_stage_runs_total")
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestDashboardHandlers(t *testing.T) {
	f := newFixture(t)
	rec := f.do("POST", "/api/preprocess", energyCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	runID := rec.Header().Get("X-Run-ID")

	rec = f.do("GET", "/api/dashboard/daily?days=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var daily struct {
		Daily []db.DailyRecord `json:"daily"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &daily))
	require.Len(t, daily.Daily, 1)
	assert.Equal(t, "2024-01-02", daily.Daily[0].Date)
	assert.Equal(t, runID, daily.Daily[0].RunID)

	ctx := context.Background()
	require.NoError(t, f.store.RecordTraining(ctx, db.TrainingLog{ModelName: "random_forest", Accuracy: 0.5, TrainedAt: time.Now().Add(-time.Hour)}))
	require.NoError(t, f.store.RecordTraining(ctx, db.TrainingLog{ModelName: "random_forest", Accuracy: 0.9, TrainedAt: time.Now()}))

	rec = f.do("GET", "/api/dashboard/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap dashboardSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.NotNil(t, snap.LastRun)
	assert.Equal(t, runID, snap.LastRun.RunID)
	assert.Equal(t, 0.9, snap.Models["random_forest"].Accuracy)
	require.NotNil(t, snap.Scheduler)
}
