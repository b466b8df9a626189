package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hairizuanbinnoorazman/forum-autofill/fillrun"
	"github.com/hairizuanbinnoorazman/forum-autofill/formfill"
	"github.com/hairizuanbinnoorazman/forum-autofill/logger"
	"github.com/hairizuanbinnoorazman/forum-autofill/mcpserver"
)

// FillHandler runs fill operations and serves their history.
type FillHandler struct {
	filler  formfill.Filler
	runs    fillrun.Store
	timeout time.Duration
	logger  logger.Logger
}

// NewFillHandler creates a fill handler. runs may be nil, in which case the
// history endpoints answer 404. A positive timeout bounds each fill, queue
// wait included.
func NewFillHandler(filler formfill.Filler, runs fillrun.Store, timeout time.Duration, log logger.Logger) *FillHandler {
	return &FillHandler{
		filler:  filler,
		runs:    runs,
		timeout: timeout,
		logger:  logger.OrNop(log),
	}
}

// Create handles a fill request. It blocks until the operation finishes and
// returns the FillResult as produced.
func (h *FillHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req mcpserver.FillRequest
	if err := parseJSON(r, &req, h.logger); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	post, err := req.Post()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	res := h.filler.Fill(ctx, post, req.ForumURL)
	respondJSON(w, statusFor(res), res)
}

// statusFor maps a result to an HTTP status.
func statusFor(res formfill.FillResult) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Error {
	case formfill.ClassInvalid:
		return http.StatusBadRequest
	case formfill.ClassBusy:
		return http.StatusConflict
	case formfill.ClassConnection:
		return http.StatusServiceUnavailable
	case formfill.ClassTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusUnprocessableEntity
}

// List handles listing recorded fill runs, newest first.
func (h *FillHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		respondError(w, http.StatusNotFound, "fill history is disabled")
		return
	}

	status := fillrun.Status(r.URL.Query().Get("status"))
	if status != "" && !status.IsValid() {
		respondError(w, http.StatusBadRequest, fillrun.ErrInvalidStatus.Error())
		return
	}
	limit, offset := parsePagination(r)

	total, err := h.runs.Count(r.Context(), status)
	if err != nil {
		h.logger.Error(r.Context(), "failed to count fill runs", map[string]interface{}{
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "failed to count fill runs")
		return
	}

	runs, err := h.runs.List(r.Context(), status, limit, offset)
	if err != nil {
		h.logger.Error(r.Context(), "failed to list fill runs", map[string]interface{}{
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "failed to list fill runs")
		return
	}

	respondJSON(w, http.StatusOK, NewPaginatedResponse(runs, total, limit, offset))
}

// GetByID handles getting a single fill run by ID.
func (h *FillHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		respondError(w, http.StatusNotFound, "fill history is disabled")
		return
	}

	id, ok := parseUUIDOrRespond(w, r, "id", "fill run")
	if !ok {
		return
	}

	run, err := h.runs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, fillrun.ErrRunNotFound) {
			respondError(w, http.StatusNotFound, "fill run not found")
			return
		}
		h.logger.Error(r.Context(), "failed to get fill run", map[string]interface{}{
			"run_id": id.String(),
			"error":  err.Error(),
		})
		respondError(w, http.StatusInternalServerError, "failed to get fill run")
		return
	}

	respondJSON(w, http.StatusOK, run)
}
