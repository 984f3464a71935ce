package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/copyleftdev/brokerlogin/internal/authtypes"
)

// RunService is the part of the run manager the API needs.
type RunService interface {
	Submit() (*authtypes.Run, error)
	Get(id uuid.UUID) (*authtypes.Run, error)
}

type APIHandler struct {
	runs   RunService
	logger *zap.Logger
}

func NewAPIHandler(runs RunService, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		runs:   runs,
		logger: logger,
	}
}

type SubmitRunResponse struct {
	RunID  string              `json:"run_id"`
	Status authtypes.RunStatus `json:"status"`
}

func (h *APIHandler) HandleSubmitRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.runs.Submit()
	if err != nil {
		if errors.Is(err, authtypes.ErrRunBusy) {
			h.respondError(w, http.StatusConflict, "%v", err)
			return
		}
		h.logger.Error("Error submitting run", zap.Error(err))
		h.respondError(w, http.StatusServiceUnavailable, "Failed to submit run: %v", err)
		return
	}

	w.Header().Set("Location", "/api/v1/runs/"+run.ID.String())
	h.respondJSON(w, http.StatusAccepted, SubmitRunResponse{RunID: run.ID.String(), Status: run.Status})
}

func (h *APIHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	runIDStr := chi.URLParam(r, "runID")
	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid run ID format: %v", err)
		return
	}

	run, err := h.runs.Get(runID)
	if err != nil {
		if errors.Is(err, authtypes.ErrRunNotFound) {
			h.respondError(w, http.StatusNotFound, "Run not found")
		} else {
			h.logger.Error("Error retrieving run", zap.String("runID", runIDStr), zap.Error(err))
			h.respondError(w, http.StatusInternalServerError, "Failed to retrieve run")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, run)
}

// --- Helper Functions ---

func (h *APIHandler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Error marshalling JSON response", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "Failed to marshal JSON response")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(response); err != nil {
		h.logger.Warn("Error writing JSON response", zap.Error(err))
	}
}

func (h *APIHandler) respondError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	errorMessage := fmt.Sprintf(format, args...)
	jsonResponse, err := json.Marshal(map[string]string{"error": errorMessage})
	if err != nil {
		jsonResponse = []byte(`{"error":"internal error"}`)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(jsonResponse); err != nil {
		h.logger.Warn("Error writing error response", zap.Error(err))
	}
}
