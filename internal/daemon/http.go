package daemon

import (
	"encoding/json"
	"net/http"
	"time"

	"git.home.luguber.info/inful/wikimirror/internal/metrics"
	runsync "git.home.luguber.info/inful/wikimirror/internal/sync"
)

func (d *Daemon) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", d.handleHealth)
	mux.HandleFunc("GET /status", d.handleStatus)
	mux.HandleFunc("POST /sync", d.handleTrigger)
	mux.Handle("GET /metrics", metrics.HTTPHandler(d.registry))
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type healthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	LastOutcome   string  `json:"last_outcome,omitempty"`
}

func (d *Daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		UptimeSeconds: time.Since(d.startedAt).Seconds(),
	}
	if last := d.lastReport.Load(); last != nil {
		resp.LastOutcome = string(last.Outcome)
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusResponse struct {
	Syncing bool               `json:"syncing"`
	LastRun *runsync.RunReport `json:"last_run,omitempty"`
}

func (d *Daemon) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Syncing: d.running.Load(),
		LastRun: d.lastReport.Load(),
	})
}

func (d *Daemon) handleTrigger(w http.ResponseWriter, _ *http.Request) {
	if d.running.Load() {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "sync already in progress"})
		return
	}
	select {
	case d.triggerCh <- struct{}{}:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync triggered"})
	default:
		writeJSON(w, http.StatusConflict, map[string]string{"error": "sync already queued"})
	}
}
