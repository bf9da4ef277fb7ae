package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"stock_screener/models"
	"stock_screener/monitoring"
	"stock_screener/output"
	"stock_screener/utils"
	"stock_screener/ws"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Runner is the part of jobs.Runner the routes need.
type Runner interface {
	Start() (string, bool)
	Snapshot() models.RunProgress
	Subscribe() (<-chan models.RunProgress, func())
}

type Handler struct {
	runner     Runner
	outputPath string
	health     *monitoring.Health
}

func NewHandler(runner Runner, outputPath string, health *monitoring.Health) *Handler {
	return &Handler{runner: runner, outputPath: outputPath, health: health}
}

// Routes wires every endpoint behind the request logger.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /portfolio", h.StartAnalysis)
	mux.HandleFunc("GET /status", h.Status)
	mux.HandleFunc("GET /download_json", h.DownloadJSON)
	mux.HandleFunc("GET /health", h.health.HealthCheckHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /ws/progress", ws.NewHub(h.runner))
	return utils.RequestLogger(mux)
}

type messageResponse struct {
	Message string `json:"message"`
	RunID   string `json:"run_id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) StartAnalysis(w http.ResponseWriter, r *http.Request) {
	runID, started := h.runner.Start()
	if !started {
		writeJSON(w, http.StatusOK, messageResponse{
			Message: "Analysis is already running. Follow progress via /status",
			RunID:   runID,
		})
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{
		Message: "Analysis started. Follow progress via /status",
		RunID:   runID,
	})
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ws.NewStatusMessage(h.runner.Snapshot()))
}

func (h *Handler) DownloadJSON(w http.ResponseWriter, r *http.Request) {
	rows, err := output.ReadJSON(h.outputPath)
	switch {
	case errors.Is(err, output.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "JSON file not found. Run /portfolio first."})
		return
	case err != nil:
		utils.Error(err, "Reading results failed", "path", h.outputPath)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "results file is unreadable"})
		return
	}
	if rows == nil {
		rows = []models.ScoredSymbol{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Logger.Warnw("Writing response failed", "error", err)
	}
}
