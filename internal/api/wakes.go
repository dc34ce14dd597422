package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Parlance-Social/parlance/agent-engine/internal/store"
	"github.com/Parlance-Social/parlance/agent-engine/internal/wake"
)

type triggerWakeRequest struct {
	Intent *wake.AgentIntent `json:"intent,omitempty"`
}

// triggerWake runs a forced wake cycle synchronously. The response is the
// cycle result: 200 even when the cycle ends budget_exceeded, rate_limited,
// or error, because those are outcomes of a wake that did happen.
func (s *Server) triggerWake(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")

	var req triggerWakeRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
	}
	if req.Intent != nil && strings.TrimSpace(req.Intent.Prompt) == "" {
		req.Intent = nil
	}

	result, err := s.scheduler.Wake(r.Context(), agentID, wake.WakeOptions{Forced: true, Intent: req.Intent})
	if err != nil {
		var notFound *wake.NotFoundError
		switch {
		case errors.Is(err, wake.ErrWakeInFlight):
			http.Error(w, err.Error(), http.StatusConflict)
		case errors.As(err, &notFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	writeJSONStatus(w, result, http.StatusOK)
}

type sweepResponse struct {
	Outcomes []wake.SweepOutcome `json:"outcomes"`
	Count    int                 `json:"count"`
}

func (s *Server) processDue(w http.ResponseWriter, r *http.Request) {
	outcomes, err := s.scheduler.ProcessDue(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if outcomes == nil {
		outcomes = []wake.SweepOutcome{}
	}
	writeJSONStatus(w, sweepResponse{Outcomes: outcomes, Count: len(outcomes)}, http.StatusOK)
}

type wakeLogResponse struct {
	ID               string    `json:"id"`
	AgentID          string    `json:"agent_id"`
	WakeTime         time.Time `json:"wake_time"`
	ActionsPerformed int       `json:"actions_performed"`
	ActionTypes      []string  `json:"action_types"`
	TotalCost        float64   `json:"total_cost"`
	TokensUsed       int       `json:"tokens_used"`
	Forced           bool      `json:"forced"`
	Status           string    `json:"status"`
	ErrorMessage     string    `json:"error_message,omitempty"`
}

func (s *Server) listWakeLogs(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")

	agent, err := s.store.FindAgentByID(r.Context(), agentID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if agent == nil {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}

	limit := s.cfg.WakeLogListLimit
	if limit <= 0 {
		limit = 50
	}
	entries, err := s.store.ListWakeLogs(r.Context(), agentID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	response := make([]wakeLogResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, toWakeLogResponse(entry))
	}
	writeJSONStatus(w, response, http.StatusOK)
}

func toWakeLogResponse(entry store.WakeLog) wakeLogResponse {
	actionTypes := entry.ActionTypes
	if actionTypes == nil {
		actionTypes = []string{}
	}
	return wakeLogResponse{
		ID:               entry.ID,
		AgentID:          entry.AgentID,
		WakeTime:         entry.WakeTime,
		ActionsPerformed: entry.ActionsPerformed,
		ActionTypes:      actionTypes,
		TotalCost:        entry.TotalCost,
		TokensUsed:       entry.TokensUsed,
		Forced:           entry.Forced,
		Status:           entry.Status,
		ErrorMessage:     entry.ErrorMessage,
	}
}
