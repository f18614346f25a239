package reportqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/reportql/reportql/internal/confirm"
	"github.com/reportql/reportql/internal/format"
	"github.com/reportql/reportql/internal/nl2sql"
	"github.com/reportql/reportql/internal/pipeline"
)

func TestRunAskRendersResultTable(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(pipeline.Response{
			SessionID: "s-1",
			Content:   "Returned 1 row.",
			Result: &format.Payload{
				Columns:  []string{"asset", "gain"},
				Rows:     [][]any{{"ETH", 12.5}},
				RowCount: 1,
			},
		})
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "ask", "total", "gain", "by", "asset"}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodPost || gotPath != "/v1/report/query" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotBody["query"] != "total gain by asset" {
		t.Fatalf("query = %v", gotBody["query"])
	}
	output := stdout.String()
	for _, want := range []string{"s-1", "Returned 1 row.", "ETH", "12.50"} {
		if !strings.Contains(output, want) {
			t.Fatalf("output missing %q:\n%s", want, output)
		}
	}
}

func TestRunAskSendsConfirmedMappings(t *testing.T) {
	var gotBody struct {
		ConfirmedMappings  map[string]string `json:"confirmedMappings"`
		PreviousSessionRef string            `json:"previousSessionRef"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(pipeline.Response{SessionID: "s-1", Content: "No rows matched."})
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{
		"-base-url", srv.URL,
		"-session", "s-1",
		"-confirm", "{{wallet}}=Main",
		"-confirm", "{{asset}}=ETH",
		"ask",
	}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotBody.PreviousSessionRef != "s-1" {
		t.Fatalf("previousSessionRef = %q", gotBody.PreviousSessionRef)
	}
	if gotBody.ConfirmedMappings["{{wallet}}"] != "Main" || gotBody.ConfirmedMappings["{{asset}}"] != "ETH" {
		t.Fatalf("confirmedMappings = %v", gotBody.ConfirmedMappings)
	}
}

func TestRunAskRendersConfirmationPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(pipeline.Response{
			SessionID:         "s-2",
			Content:           "Please confirm the interpretation.",
			NeedsConfirmation: true,
			Prompt: &confirm.Prompt{
				InterpretedQuery: "Show SUM(shortTermGainLoss) for wallet {{wallet}}.",
				Confidence:       0.9,
				Components: nl2sql.Components{
					Filter: nl2sql.Component{Description: "wallet", Clause: "wallet = '{{wallet}}'"},
				},
				Alternatives: []string{"all wallets"},
			},
		})
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "ask", "gains", "in", "my", "wallet"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	output := stdout.String()
	for _, want := range []string{"interpreted as:", "0.90", "wallet = '{{wallet}}'", "alternative: all wallets"} {
		if !strings.Contains(output, want) {
			t.Fatalf("output missing %q:\n%s", want, output)
		}
	}
}

func TestRunAskConflictReportsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(pipeline.Response{
			Error: &pipeline.Error{Kind: pipeline.KindConfirmationMismatch, Message: "missing translation result"},
		})
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "-session", "gone", "-confirm", "a=b", "ask"}, Options{Stdout: &stdout})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(stdout.String(), "missing translation result") {
		t.Fatalf("output = %s", stdout.String())
	}
}

func TestRunClearCommand(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"-base-url", srv.URL, "clear", "s-9"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotMethod != http.MethodDelete || gotPath != "/v1/report/sessions/s-9" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
}

func TestRunReturnsErrorOnHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error_code":"NOT_READY"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"-base-url", srv.URL, "ready"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if stderr.Len() == 0 {
		t.Fatal("expected error output")
	}
}

func TestRunUsageErrors(t *testing.T) {
	cases := [][]string{
		{},
		{"unknown"},
		{"ask"},
		{"clear"},
		{"-confirm", "novalue", "ask", "x"},
	}
	for _, args := range cases {
		var stderr bytes.Buffer
		code := Run(context.Background(), args, Options{Stderr: &stderr})
		if code != 2 {
			t.Fatalf("args %v: exit code = %d, want 2", args, code)
		}
	}
}
