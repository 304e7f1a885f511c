package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/vocaquest/practice-hub/internal/application/command"
	"github.com/vocaquest/practice-hub/internal/application/query"
	"github.com/vocaquest/practice-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST BODIES
// ══════════════════════════════════════════════════════════════════════════════

type startAttemptRequest struct {
	StudentID    string `json:"student_id"`
	VocabSetID   string `json:"vocab_set_id"`
	AssignmentID string `json:"assignment_id"`
	Kind         string `json:"kind"`
}

type submitItemRequest struct {
	StudentID    string                 `json:"student_id"`
	AssignmentID string                 `json:"assignment_id"`
	ItemID       string                 `json:"item_id"`
	Answer       map[string]interface{} `json:"answer"`
}

type resolveAttemptRequest struct {
	StudentID    string `json:"student_id"`
	AssignmentID string `json:"assignment_id"`
}

// decodeBody parses the JSON request body into target.
func decodeBody(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_body", "Request body is not valid JSON")
		return false
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTEMPT LIFECYCLE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleStartAttempt starts or resumes the active attempt for a triple.
// POST /api/v1/attempts
func (s *Server) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	var body startAttemptRequest
	if !decodeBody(w, r, &body) {
		return
	}

	result, err := s.deps.StartAttempt.Handle(r.Context(), command.StartAttemptCommand{
		StudentID:     body.StudentID,
		VocabSetID:    body.VocabSetID,
		AssignmentID:  body.AssignmentID,
		Kind:          body.Kind,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Resumed {
		status = http.StatusOK
	}
	writeJSON(w, r, status, result)
}

// handleSubmitItem scores one item of an attempt.
// POST /api/v1/attempts/{id}/items
func (s *Server) handleSubmitItem(w http.ResponseWriter, r *http.Request) {
	var body submitItemRequest
	if !decodeBody(w, r, &body) {
		return
	}

	result, err := s.deps.SubmitItem.Handle(r.Context(), command.SubmitItemCommand{
		StudentID:     body.StudentID,
		AttemptID:     r.PathValue("id"),
		AssignmentID:  body.AssignmentID,
		ItemID:        body.ItemID,
		Answer:        body.Answer,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// handleConfirmAttempt commits a pending, passing attempt.
// POST /api/v1/attempts/{id}/confirm
func (s *Server) handleConfirmAttempt(w http.ResponseWriter, r *http.Request) {
	var body resolveAttemptRequest
	if !decodeBody(w, r, &body) {
		return
	}

	result, err := s.deps.ConfirmAttempt.Handle(r.Context(), command.ConfirmAttemptCommand{
		StudentID:     body.StudentID,
		AttemptID:     r.PathValue("id"),
		AssignmentID:  body.AssignmentID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// handleDeclineAttempt rolls back a pending attempt in full.
// POST /api/v1/attempts/{id}/decline
func (s *Server) handleDeclineAttempt(w http.ResponseWriter, r *http.Request) {
	var body resolveAttemptRequest
	if !decodeBody(w, r, &body) {
		return
	}

	result, err := s.deps.DeclineAttempt.Handle(r.Context(), command.DeclineAttemptCommand{
		StudentID:     body.StudentID,
		AttemptID:     r.PathValue("id"),
		AssignmentID:  body.AssignmentID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS & UNLOCK HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetProgress returns the per-kind progress picture for a triple.
// GET /api/v1/progress?student_id=&vocab_set_id=&assignment_id=
func (s *Server) handleGetProgress(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetProgress.Handle(r.Context(), query.GetProgressQuery{
		StudentID:            getQueryParam(r, "student_id", ""),
		VocabSetID:           getQueryParam(r, "vocab_set_id", ""),
		AssignmentID:         getQueryParam(r, "assignment_id", ""),
		IncludeActiveAttempt: getQueryParamBool(r, "include_active"),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// handleGetAggregateStatus returns the completion-record based unlock state.
// GET /api/v1/progress/status?student_id=&vocab_set_id=&assignment_id=
func (s *Server) handleGetAggregateStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.GetAggregateStatus.Handle(r.Context(), query.GetAggregateStatusQuery{
		StudentID:             getQueryParam(r, "student_id", ""),
		VocabSetID:            getQueryParam(r, "vocab_set_id", ""),
		AssignmentID:          getQueryParam(r, "assignment_id", ""),
		IncludeActiveSessions: getQueryParamBool(r, "include_active"),
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth reports service health including dependency checks.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	if s.deps.HealthChecker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		checks = s.deps.HealthChecker.CheckHealth(ctx)
	}

	healthy := true
	for _, status := range checks {
		if status != "ok" {
			healthy = false
			break
		}
	}

	status := http.StatusOK
	overall := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}

	writeJSON(w, r, status, map[string]interface{}{
		"status":         overall,
		"checks":         checks,
		"uptime_seconds": int(s.Uptime().Seconds()),
	})
}

// handleLive is the trivial liveness probe.
// GET /live
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// writeDomainError maps domain and application errors onto HTTP statuses.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case shared.IsNotFound(err):
		writeJSONError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, shared.ErrAlreadyExists):
		writeJSONError(w, http.StatusConflict, "already_exists", err.Error())
	case shared.IsStateConflict(err):
		writeJSONError(w, http.StatusConflict, "state_conflict", err.Error())
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "validation_error", err.Error())
	case shared.IsDependency(err):
		writeJSONError(w, http.StatusBadGateway, "dependency_unavailable", err.Error())
	default:
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}
