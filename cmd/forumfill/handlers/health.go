package handlers

import (
	"net/http"
)

// HealthResponse reports the process and where fills will be driven.
type HealthResponse struct {
	Status   string `json:"status"`
	Endpoint string `json:"browser_endpoint"`
	History  bool   `json:"history"`
}

// HealthHandler answers liveness checks. It never dials the browser.
type HealthHandler struct {
	endpoint string
	history  bool
}

// NewHealthHandler creates a health handler for the given control endpoint.
func NewHealthHandler(endpoint string, history bool) *HealthHandler {
	return &HealthHandler{endpoint: endpoint, history: history}
}

// Check handles GET /health.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Endpoint: h.endpoint,
		History:  h.history,
	})
}
