package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/reportql/reportql/internal/confirm"
	"github.com/reportql/reportql/internal/pipeline"
	"github.com/reportql/reportql/internal/session"
)

type reportQueryRequest struct {
	Query              string         `json:"query"`
	ConfirmedMappings  map[string]any `json:"confirmedMappings"`
	PreviousSessionRef string         `json:"previousSessionRef"`
	SQL                string         `json:"sql"`
}

// isReply reports whether the request answers an earlier confirmation prompt.
// Replies may omit the question text.
func (r reportQueryRequest) isReply() bool {
	return len(r.ConfirmedMappings) > 0 || strings.TrimSpace(r.PreviousSessionRef) != ""
}

func (s *server) reportQuery(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pipeline == nil {
		notConfigured(w, r, codePipelineNotConfigured, "query pipeline")
		return
	}

	var request reportQueryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(w, r, http.StatusBadRequest, codeInvalidJSON, "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}
	if !request.isReply() && strings.TrimSpace(request.Query) == "" {
		writeError(w, r, http.StatusBadRequest, codeQueryRequired, "query is required", false, nil)
		return
	}

	ctx := r.Context()
	if s.deps.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.deps.RequestTimeout)
		defer cancel()
	}

	response, err := s.deps.Pipeline.HandleQuery(ctx, pipeline.Request{
		Query:              request.Query,
		ConfirmedMappings:  confirm.Normalize(request.ConfirmedMappings),
		PreviousSessionRef: request.PreviousSessionRef,
		SQL:                request.SQL,
	})
	if err != nil {
		s.logError(r, "report query failed", err)
		writeError(w, r, http.StatusServiceUnavailable, codeSessionStoreDown, err.Error(), true, nil)
		return
	}

	writeJSON(w, responseStatus(response), response)
}

func responseStatus(response pipeline.Response) int {
	if response.Error == nil {
		return http.StatusOK
	}
	switch response.Error.Kind {
	case pipeline.KindInvalidRequest:
		return http.StatusBadRequest
	case pipeline.KindConfirmationMismatch, pipeline.KindSessionBusy:
		return http.StatusConflict
	default:
		return http.StatusOK
	}
}

func (s *server) clearSession(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pipeline == nil {
		notConfigured(w, r, codePipelineNotConfigured, "query pipeline")
		return
	}
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, http.StatusBadRequest, codeSessionIDRequired, "session id is required", false, nil)
		return
	}
	err := s.deps.Pipeline.ClearSession(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, session.ErrNotFound):
		writeError(w, r, http.StatusNotFound, codeSessionNotFound, "session not found", false, map[string]any{"session_id": id})
	default:
		s.logError(r, "clear session failed", err)
		writeError(w, r, http.StatusServiceUnavailable, codeSessionStoreDown, err.Error(), true, nil)
	}
}

func (s *server) schema(w http.ResponseWriter, r *http.Request) {
	if s.deps.Schema == nil {
		notConfigured(w, r, codeSchemaNotConfigured, "schema catalog")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject": s.deps.Schema.Subject(),
		"columns": s.deps.Schema.Columns(),
	})
}

func (s *server) logError(r *http.Request, msg string, err error) {
	if s.deps.Logger != nil {
		s.deps.Logger.ErrorContext(r.Context(), msg, slog.Any("error", err))
	}
}
