// Package execution runs SQL against the data engine and drives bounded
// auto-correction when the engine rejects a statement.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reportql/reportql/internal/observability"
	"github.com/reportql/reportql/internal/query"
)

const DefaultMaxRetries = 2

type Code string

const (
	CodeColumnNotFound  Code = "COLUMN_NOT_FOUND"
	CodeTableNotFound   Code = "TABLE_NOT_FOUND"
	CodeSyntaxError     Code = "SYNTAX_ERROR"
	CodeExecutionFailed Code = "EXECUTION_FAILED"
	CodeRetryExhausted  Code = "RETRY_EXHAUSTED"
)

type Error struct {
	Message string `json:"message"`
	Code    Code   `json:"code"`
}

type Attempt struct {
	SQL   string `json:"sql"`
	Error string `json:"error,omitempty"`
}

type Metadata struct {
	ExecutionTimeMs int64     `json:"executionTimeMs"`
	BytesProcessed  int64     `json:"bytesProcessed"`
	RetryCount      int       `json:"retryCount"`
	OriginalSQL     string    `json:"originalSql"`
	FinalSQL        string    `json:"finalSql"`
	Attempts        []Attempt `json:"attempts"`
}

type Result struct {
	Success  bool     `json:"success"`
	Rows     [][]any  `json:"rows"`
	Columns  []string `json:"columns"`
	Error    *Error   `json:"error,omitempty"`
	Metadata Metadata `json:"metadata"`
}

type Runner interface {
	RunQuery(ctx context.Context, sqlText string) (query.Result, error)
}

// Corrector proposes a replacement statement for one that failed. An empty
// string means no correction is available.
type Corrector interface {
	CorrectError(ctx context.Context, sqlText, errorMessage string) (string, error)
}

type Config struct {
	MaxRetries int
	Logger     *slog.Logger
	Clock      func() time.Time
}

type Executor struct {
	runner     Runner
	corrector  Corrector
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

func NewExecutor(runner Runner, corrector Corrector, cfg Config) (*Executor, error) {
	if runner == nil {
		return nil, fmt.Errorf("query runner is required")
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must be >= 0")
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Executor{
		runner:     runner,
		corrector:  corrector,
		maxRetries: cfg.MaxRetries,
		logger:     cfg.Logger,
		now:        now,
	}, nil
}

// Execute runs sqlText, applying at most maxRetries corrections. Each
// correction replaces the statement the next attempt runs.
func (e *Executor) Execute(ctx context.Context, sqlText string) Result {
	start := e.now()
	result := Result{
		Metadata: Metadata{
			OriginalSQL: sqlText,
			Attempts:    make([]Attempt, 0, e.maxRetries+1),
		},
	}
	current := sqlText

	for {
		if err := ctx.Err(); err != nil {
			e.fail(&result, current, err.Error(), CodeExecutionFailed)
			break
		}

		queryResult, err := e.runner.RunQuery(ctx, current)
		if err == nil {
			result.Success = true
			result.Columns = queryResult.Columns
			result.Rows = queryResult.Rows
			result.Metadata.BytesProcessed = queryResult.ScannedBytes
			result.Metadata.FinalSQL = current
			result.Metadata.Attempts = append(result.Metadata.Attempts, Attempt{SQL: current})
			break
		}

		message := err.Error()
		result.Metadata.Attempts = append(result.Metadata.Attempts, Attempt{SQL: current, Error: message})
		if result.Metadata.RetryCount >= e.maxRetries {
			code := Classify(message)
			if e.maxRetries > 0 {
				code = CodeRetryExhausted
			}
			// The caller's own error stays in Attempts[0].
			e.fail(&result, current, message, code)
			break
		}

		corrected := e.correct(ctx, current, message)
		if corrected == "" {
			e.fail(&result, current, message, Classify(message))
			break
		}
		e.log(ctx, "statement corrected",
			slog.Int("retry", result.Metadata.RetryCount+1),
			slog.String("error", message),
		)
		current = corrected
		result.Metadata.RetryCount++
	}

	elapsed := e.now().Sub(start)
	result.Metadata.ExecutionTimeMs = elapsed.Milliseconds()
	observability.ObserveExecution(result.Success, result.Metadata.RetryCount, elapsed)
	return result
}

func (e *Executor) correct(ctx context.Context, sqlText, message string) string {
	if e.corrector == nil {
		return ""
	}
	corrected, err := e.corrector.CorrectError(ctx, sqlText, message)
	if err != nil {
		e.log(ctx, "correction unavailable", slog.Any("error", err))
		return ""
	}
	return strings.TrimSpace(corrected)
}

func (e *Executor) fail(result *Result, sqlText, message string, code Code) {
	result.Success = false
	result.Rows = nil
	result.Columns = nil
	result.Error = &Error{Message: message, Code: code}
	result.Metadata.FinalSQL = sqlText
}

func (e *Executor) log(ctx context.Context, msg string, attrs ...any) {
	if e.logger == nil {
		return
	}
	e.logger.WarnContext(ctx, msg, attrs...)
}
