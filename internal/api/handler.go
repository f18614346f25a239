package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reportql/reportql/internal/config"
	"github.com/reportql/reportql/internal/observability"
	"github.com/reportql/reportql/internal/pipeline"
	"github.com/reportql/reportql/internal/query"
	"github.com/reportql/reportql/internal/schema"
)

type ReadinessCheck func(ctx context.Context) error

// Pipeline is the query surface served over HTTP.
type Pipeline interface {
	HandleQuery(ctx context.Context, req pipeline.Request) (pipeline.Response, error)
	ClearSession(ctx context.Context, id string) error
}

type SchemaSource interface {
	Subject() string
	Columns() []schema.Column
}

// DatasetLister reports the parquet files currently backing the subject table.
type DatasetLister interface {
	Files(ctx context.Context) ([]query.TableFile, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Pipeline          Pipeline
	Schema            SchemaSource
	RequestTimeout    time.Duration
}

const (
	codeNotReady              = "NOT_READY"
	codeInvalidJSON           = "INVALID_JSON"
	codeQueryRequired         = "QUERY_REQUIRED"
	codeSessionIDRequired     = "SESSION_ID_REQUIRED"
	codeSessionNotFound       = "SESSION_NOT_FOUND"
	codeSessionStoreDown      = "SESSION_STORE_UNAVAILABLE"
	codePipelineNotConfigured = "PIPELINE_NOT_CONFIGURED"
	codeSchemaNotConfigured   = "SCHEMA_NOT_CONFIGURED"
	defaultDependencyTimeout  = 2 * time.Second
)

type server struct {
	cfg  config.Config
	deps Dependencies
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	s := &server{cfg: cfg, deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.health)
	mux.HandleFunc("GET /v1/ready", s.ready)
	mux.Handle("GET /v1/metrics", promhttp.Handler())
	mux.HandleFunc("POST /v1/report/query", s.reportQuery)
	mux.HandleFunc("DELETE /v1/report/sessions/{id}", s.clearSession)
	mux.HandleFunc("GET /v1/report/schema", s.schema)

	var handler http.Handler = mux
	if deps.Logger != nil {
		handler = observability.LoggingMiddleware(deps.Logger)(handler)
	}
	handler = observability.MetricsMiddleware(handler)
	return observability.TraceMiddleware(handler)
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": s.cfg.Service.Name})
}

func (s *server) ready(w http.ResponseWriter, r *http.Request) {
	if s.deps.Readiness != nil {
		timeout := s.deps.DependencyTimeout
		if timeout <= 0 {
			timeout = defaultDependencyTimeout
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := s.deps.Readiness(ctx); err != nil {
			writeError(w, r, http.StatusServiceUnavailable, codeNotReady, err.Error(), true, nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"pipeline": s.deps.Pipeline != nil,
		"schema":   s.deps.Schema != nil,
	})
}

// CheckDataset fails until the subject table has at least one parquet file.
func CheckDataset(dataset DatasetLister) ReadinessCheck {
	return func(ctx context.Context) error {
		if dataset == nil {
			return errors.New("dataset is not configured")
		}
		files, err := dataset.Files(ctx)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			return errors.New("dataset has no parquet files")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

type errorEnvelope struct {
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Context   map[string]any `json:"context"`
	TraceID   string         `json:"trace_id"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, errorEnvelope{
		ErrorCode: code,
		Message:   message,
		Retryable: retryable,
		Context:   extra,
		TraceID:   observability.TraceIDFromContext(r.Context()),
	})
}

func notConfigured(w http.ResponseWriter, r *http.Request, code, what string) {
	writeError(w, r, http.StatusNotImplemented, code, fmt.Sprintf("%s is not configured", what), false, nil)
}
