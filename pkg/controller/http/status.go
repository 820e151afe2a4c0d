package http

import (
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/hauler/pkg/domain/interfaces"
)

// StatusHandler serves progress snapshots of the running transfer
type StatusHandler struct {
	src interfaces.ProgressSource
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(src interfaces.ProgressSource) *StatusHandler {
	return &StatusHandler{src: src}
}

// Handle responds with the current progress snapshot as JSON
func (h *StatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	snap := h.src.Snapshot()
	if snap == nil {
		writeError(w, goerr.New("no transfer in progress"), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		ctxlog.From(r.Context()).Error("Failed to encode status response", "error", err)
	}
}
