package reportqlctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/reportql/reportql/internal/pipeline"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("reportqlctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "reportql API base URL")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")
	rawJSON := fs.Bool("json", false, "print the raw JSON response")
	sessionRef := fs.String("session", "", "session id to confirm or clear")
	mappings := mappingFlag{}
	fs.Var(&mappings, "confirm", "confirmed token mapping token=value (repeatable)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}
	base := strings.TrimRight(*baseURL, "/")

	command := strings.TrimSpace(fs.Arg(0))
	var (
		method string
		path   string
		body   any
	)
	switch command {
	case "health":
		method, path = http.MethodGet, "/v1/health"
	case "ready":
		method, path = http.MethodGet, "/v1/ready"
	case "schema":
		method, path = http.MethodGet, "/v1/report/schema"
	case "ask":
		question := strings.TrimSpace(strings.Join(fs.Args()[1:], " "))
		if question == "" && len(mappings) == 0 {
			_, _ = fmt.Fprintln(stderr, "ask requires a question or -confirm mappings")
			return 2
		}
		method, path = http.MethodPost, "/v1/report/query"
		body = map[string]any{
			"query":              question,
			"confirmedMappings":  map[string]string(mappings),
			"previousSessionRef": *sessionRef,
		}
	case "clear":
		id := strings.TrimSpace(firstNonEmpty(*sessionRef, strings.Join(fs.Args()[1:], "")))
		if id == "" {
			_, _ = fmt.Fprintln(stderr, "clear requires a session id")
			return 2
		}
		method, path = http.MethodDelete, "/v1/report/sessions/"+url.PathEscape(id)
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}

	code, responseBody, err := doRequest(ctx, client, method, base+path, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 && !(command == "ask" && code == http.StatusConflict) {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if command == "ask" && !*rawJSON {
		var response pipeline.Response
		if err := json.Unmarshal(responseBody, &response); err != nil {
			_, _ = fmt.Fprintf(stderr, "decode response: %v\n", err)
			return 1
		}
		rendered, err := RenderResponse(response)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "render response: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprint(stdout, rendered)
		if response.Error != nil {
			return 1
		}
		return 0
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// mappingFlag collects repeated -confirm token=value pairs.
type mappingFlag map[string]string

func (m mappingFlag) String() string {
	parts := make([]string, 0, len(m))
	for token, value := range m {
		parts = append(parts, token+"="+value)
	}
	return strings.Join(parts, ",")
}

func (m mappingFlag) Set(raw string) error {
	token, value, ok := strings.Cut(raw, "=")
	if !ok || strings.TrimSpace(token) == "" {
		return fmt.Errorf("mapping %q must be token=value", raw)
	}
	m[strings.TrimSpace(token)] = value
	return nil
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: reportqlctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health             GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready              GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  schema             GET /v1/report/schema")
	_, _ = fmt.Fprintln(w, "  ask <question>     POST /v1/report/query")
	_, _ = fmt.Fprintln(w, "  clear <session>    DELETE /v1/report/sessions/{id}")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "confirm a pending session with: ask -session <id> -confirm '{{token}}=value'")
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
