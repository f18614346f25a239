package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/reportql/reportql/internal/config"
	"github.com/reportql/reportql/internal/pipeline"
	"github.com/reportql/reportql/internal/query"
	"github.com/reportql/reportql/internal/schema"
	"github.com/reportql/reportql/internal/session"
)

type fakePipeline struct {
	requests []pipeline.Request
	response pipeline.Response
	err      error
	cleared  []string
	clearErr error
}

func (f *fakePipeline) HandleQuery(_ context.Context, req pipeline.Request) (pipeline.Response, error) {
	f.requests = append(f.requests, req)
	return f.response, f.err
}

func (f *fakePipeline) ClearSession(_ context.Context, id string) error {
	f.cleared = append(f.cleared, id)
	return f.clearErr
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(loadConfig(t), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReportQueryPassesNormalisedMappings(t *testing.T) {
	fake := &fakePipeline{response: pipeline.Response{SessionID: "s-1", Content: "Returned 1 row."}}
	h := NewHandler(loadConfig(t), Dependencies{Pipeline: fake})

	body := `{"previousSessionRef": "s-1", "confirmedMappings": {"{{wallet}}": "Main", "{{asset}}": false, "{{year}}": 2025}}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/report/query", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body=%s", rr.Code, rr.Body.String())
	}
	if len(fake.requests) != 1 {
		t.Fatalf("requests = %d", len(fake.requests))
	}
	mappings := fake.requests[0].ConfirmedMappings
	if mappings["{{wallet}}"] != "Main" || mappings["{{asset}}"] != "" || mappings["{{year}}"] != "2025" {
		t.Fatalf("ConfirmedMappings = %v", mappings)
	}

	var decoded pipeline.Response
	if err := json.Unmarshal(rr.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if decoded.SessionID != "s-1" {
		t.Fatalf("SessionID = %q", decoded.SessionID)
	}
	if rr.Header().Get("X-Trace-ID") == "" {
		t.Fatal("expected trace header")
	}
}

func TestReportQueryValidation(t *testing.T) {
	fake := &fakePipeline{}
	h := NewHandler(loadConfig(t), Dependencies{Pipeline: fake})

	cases := []struct {
		body string
		code string
	}{
		{body: `{"query": ""}`, code: "QUERY_REQUIRED"},
		{body: `{"query": "x", "unknown": 1}`, code: "INVALID_JSON"},
		{body: `not json`, code: "INVALID_JSON"},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/report/query", strings.NewReader(tc.body)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d", tc.body, rr.Code)
		}
		var payload map[string]any
		_ = json.Unmarshal(rr.Body.Bytes(), &payload)
		if payload["error_code"] != tc.code {
			t.Fatalf("body %q: error_code = %v", tc.body, payload["error_code"])
		}
	}
	if len(fake.requests) != 0 {
		t.Fatalf("pipeline called for invalid requests: %d", len(fake.requests))
	}
}

func TestReportQueryErrorKindStatus(t *testing.T) {
	cases := []struct {
		kind pipeline.ErrorKind
		want int
	}{
		{kind: pipeline.KindConfirmationMismatch, want: http.StatusConflict},
		{kind: pipeline.KindSessionBusy, want: http.StatusConflict},
		{kind: pipeline.KindInvalidRequest, want: http.StatusBadRequest},
		{kind: pipeline.KindRetryExhausted, want: http.StatusOK},
		{kind: pipeline.KindExecutionFailure, want: http.StatusOK},
	}
	for _, tc := range cases {
		fake := &fakePipeline{response: pipeline.Response{
			Error: &pipeline.Error{Kind: tc.kind, Message: "failed"},
		}}
		h := NewHandler(loadConfig(t), Dependencies{Pipeline: fake})

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/report/query", strings.NewReader(`{"previousSessionRef": "s-1"}`)))
		if rr.Code != tc.want {
			t.Fatalf("%s: status = %d, want %d", tc.kind, rr.Code, tc.want)
		}
	}
}

func TestReportQueryStoreFailureIs503(t *testing.T) {
	fake := &fakePipeline{err: errors.New("create session: db down")}
	h := NewHandler(loadConfig(t), Dependencies{Pipeline: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/report/query", strings.NewReader(`{"query": "totals"}`)))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestClearSession(t *testing.T) {
	fake := &fakePipeline{}
	h := NewHandler(loadConfig(t), Dependencies{Pipeline: fake})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/report/sessions/s-9", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
	if len(fake.cleared) != 1 || fake.cleared[0] != "s-9" {
		t.Fatalf("cleared = %v", fake.cleared)
	}

	fake.clearErr = fmt.Errorf("clear session: %w", session.ErrNotFound)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/report/sessions/s-9", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSchemaEndpoint(t *testing.T) {
	catalog, err := schema.NewStaticCatalog("transactions", []schema.Column{
		{Name: "asset", Type: schema.TypeString},
		{Name: "shortTermGainLoss", Type: schema.TypeDecimal, Aggregatable: true},
	})
	if err != nil {
		t.Fatalf("NewStaticCatalog() error = %v", err)
	}
	h := NewHandler(loadConfig(t), Dependencies{Schema: catalog})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/report/schema", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var payload struct {
		Subject string          `json:"subject"`
		Columns []schema.Column `json:"columns"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if payload.Subject != "transactions" || len(payload.Columns) != 2 || !payload.Columns[1].Aggregatable {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestUnconfiguredPipelineReturns501(t *testing.T) {
	h := NewHandler(loadConfig(t), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/report/query", strings.NewReader(`{"query": "x"}`)))
	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(context.Context) error {
			order = append(order, 1)
			return nil
		},
		func(context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	if err := combined(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

type stubDataset struct {
	files []query.TableFile
	err   error
}

func (s stubDataset) Files(context.Context) ([]query.TableFile, error) {
	return s.files, s.err
}

func TestCheckDataset(t *testing.T) {
	if err := CheckDataset(nil)(context.Background()); err == nil {
		t.Fatal("expected error for missing dataset")
	}
	if err := CheckDataset(stubDataset{})(context.Background()); err == nil {
		t.Fatal("expected error for empty dataset")
	}
	listErr := errors.New("bucket unreachable")
	if err := CheckDataset(stubDataset{err: listErr})(context.Background()); !errors.Is(err, listErr) {
		t.Fatalf("error = %v", err)
	}
	ready := stubDataset{files: []query.TableFile{{TableName: "transactions", ObjectPath: "a.parquet"}}}
	if err := CheckDataset(ready)(context.Background()); err != nil {
		t.Fatalf("CheckDataset() error = %v", err)
	}
}

func TestReadyReportsConfiguredSurfaces(t *testing.T) {
	h := NewHandler(loadConfig(t), Dependencies{Pipeline: &fakePipeline{}})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rr.Code != http.StatusOK || body["pipeline"] != true || body["schema"] != false {
		t.Fatalf("status=%d body=%v", rr.Code, body)
	}
}

func loadConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("reportql-api", func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}
