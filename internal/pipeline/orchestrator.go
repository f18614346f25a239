// Package pipeline sequences translation, confirmation, execution and
// formatting for one query and its optional confirmation reply.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/reportql/reportql/internal/confirm"
	"github.com/reportql/reportql/internal/execution"
	"github.com/reportql/reportql/internal/format"
	"github.com/reportql/reportql/internal/nl2sql"
	"github.com/reportql/reportql/internal/observability"
	"github.com/reportql/reportql/internal/session"
)

type Translator interface {
	Translate(ctx context.Context, query string) nl2sql.TranslationResult
}

type Executor interface {
	Execute(ctx context.Context, sqlText string) execution.Result
}

type Request struct {
	Query              string            `json:"query"`
	ConfirmedMappings  map[string]string `json:"confirmedMappings,omitempty"`
	PreviousSessionRef string            `json:"previousSessionRef,omitempty"`
	SQL                string            `json:"sql,omitempty"`
}

func (r Request) isConfirmation() bool {
	return len(r.ConfirmedMappings) > 0 || strings.TrimSpace(r.PreviousSessionRef) != ""
}

type Step struct {
	Name   string `json:"name"`
	Detail string `json:"detail"`
}

type Response struct {
	SessionID         string              `json:"sessionId"`
	Content           string              `json:"content"`
	SQL               string              `json:"sql,omitempty"`
	NeedsConfirmation bool                `json:"needsConfirmation"`
	Prompt            *confirm.Prompt     `json:"prompt,omitempty"`
	Result            *format.Payload     `json:"result,omitempty"`
	Metadata          *execution.Metadata `json:"metadata,omitempty"`
	ProcessingSteps   []Step              `json:"processingSteps,omitempty"`
	Error             *Error              `json:"error,omitempty"`
}

type Config struct {
	DiscloseSQL bool
	Formatter   format.Formatter
	Logger      *slog.Logger
}

type Orchestrator struct {
	translator Translator
	executor   Executor
	store      session.Store
	formatter  format.Formatter
	policy     confirm.Policy
	logger     *slog.Logger
}

func New(translator Translator, executor Executor, store session.Store, cfg Config) (*Orchestrator, error) {
	if translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		translator: translator,
		executor:   executor,
		store:      store,
		formatter:  cfg.Formatter,
		policy:     confirm.Policy{DiscloseSQL: cfg.DiscloseSQL},
		logger:     logger,
	}, nil
}

// HandleQuery answers a new query or a confirmation reply. Pipeline failures
// are reported in Response.Error; the returned error is reserved for the
// session store being unavailable.
func (o *Orchestrator) HandleQuery(ctx context.Context, req Request) (Response, error) {
	var (
		resp Response
		err  error
	)
	if req.isConfirmation() {
		resp, err = o.handleConfirmation(ctx, req)
	} else {
		resp, err = o.handleNew(ctx, req)
	}
	if err != nil {
		return Response{}, err
	}
	observability.ObservePipelineResult(resultLabel(resp))
	return resp, nil
}

func (o *Orchestrator) ClearSession(ctx context.Context, id string) error {
	if err := o.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("clear session %q: %w", id, err)
	}
	return nil
}

func (o *Orchestrator) handleNew(ctx context.Context, req Request) (Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Response{Error: &Error{Kind: KindInvalidRequest, Message: "query is required"}}, nil
	}

	created, err := o.store.Create(ctx, query)
	if err != nil {
		return Response{}, fmt.Errorf("create session: %w", err)
	}

	translation := o.translator.Translate(ctx, query)
	steps := o.translationSteps(translation)

	if confirm.Decide(translation) == confirm.StateAwaitingConfirmation {
		if _, err := o.store.Update(ctx, created.ID, func(s *session.Session) error {
			s.State = confirm.StateAwaitingConfirmation
			s.Translation = &translation
			return nil
		}); err != nil {
			return Response{}, fmt.Errorf("record translation: %w", err)
		}
		observability.ObserveConfirmationRequested()
		prompt := confirm.Format(translation, o.policy)
		o.logger.InfoContext(ctx, "confirmation requested",
			slog.String("session_id", created.ID),
			slog.Float64("confidence", translation.Confidence),
		)
		return Response{
			SessionID:         created.ID,
			Content:           confirmationContent(prompt),
			SQL:               prompt.SQL,
			NeedsConfirmation: true,
			Prompt:            &prompt,
			ProcessingSteps:   steps,
		}, nil
	}

	resp, err := o.execute(ctx, created.ID, translation, translation.SQL)
	if err != nil {
		return Response{}, err
	}
	resp.ProcessingSteps = append(steps, resp.ProcessingSteps...)
	return resp, nil
}

func (o *Orchestrator) handleConfirmation(ctx context.Context, req Request) (Response, error) {
	sessionID := strings.TrimSpace(req.PreviousSessionRef)
	var (
		translation *nl2sql.TranslationResult
		released    confirm.State
	)
	if sessionID != "" {
		// Claim the session so concurrent replies cannot both execute it.
		_, err := o.store.Update(ctx, sessionID, func(s *session.Session) error {
			if s.Translation == nil {
				return nil
			}
			if s.State == confirm.StateExecuting {
				return errSessionBusy
			}
			copied := *s.Translation
			translation = &copied
			released = s.State
			s.State = confirm.StateExecuting
			return nil
		})
		switch {
		case errors.Is(err, session.ErrNotFound):
			sessionID = ""
		case errors.Is(err, errSessionBusy):
			o.logger.WarnContext(ctx, "confirmation reply for busy session", slog.String("session_id", sessionID))
			return Response{
				SessionID: sessionID,
				Content:   errSessionBusy.Error(),
				Error:     &Error{Kind: KindSessionBusy, Message: errSessionBusy.Error()},
			}, nil
		case err != nil:
			return Response{}, fmt.Errorf("claim session: %w", err)
		}
	}
	claimed := translation != nil
	if translation == nil && strings.TrimSpace(req.SQL) != "" {
		translation = &nl2sql.TranslationResult{
			OriginalQuery:    req.Query,
			InterpretedQuery: req.Query,
			SQL:              strings.TrimSpace(req.SQL),
		}
	}
	if translation == nil {
		o.logger.WarnContext(ctx, "confirmation reply without translation",
			slog.String("session_ref", req.PreviousSessionRef),
		)
		return Response{
			SessionID:         req.PreviousSessionRef,
			Content:           confirm.ErrMissingTranslation.Error(),
			NeedsConfirmation: false,
			Error:             &Error{Kind: KindConfirmationMismatch, Message: confirm.ErrMissingTranslation.Error()},
		}, nil
	}

	// Mappings always apply to the translated SQL; the stored translation
	// keeps its placeholders so a later reply can map them differently.
	resolved, skipped := confirm.Apply(translation.SQL, req.ConfirmedMappings)
	for _, item := range skipped {
		o.logger.WarnContext(ctx, "skipped confirmation mapping",
			slog.String("token", item.Token),
			slog.String("reason", item.Reason),
		)
	}
	observability.ObserveConfirmationApplied(len(skipped))
	translation.ConfirmedMappings = req.ConfirmedMappings
	translation.RequiresConfirmation = false

	if sessionID == "" {
		query := firstNonEmpty(req.Query, translation.OriginalQuery, "confirmed query")
		created, err := o.store.Create(ctx, query)
		if err != nil {
			return Response{}, fmt.Errorf("create session: %w", err)
		}
		sessionID = created.ID
	}

	resp, err := o.execute(ctx, sessionID, *translation, resolved)
	if err != nil {
		if claimed {
			o.release(ctx, sessionID, released)
		}
		return Response{}, err
	}
	applied := Step{Name: "confirmation", Detail: fmt.Sprintf("applied %d mapping(s), skipped %d", len(req.ConfirmedMappings)-len(skipped), len(skipped))}
	resp.ProcessingSteps = append([]Step{applied}, resp.ProcessingSteps...)
	return resp, nil
}

// release hands a claimed session back when its result could not be recorded.
func (o *Orchestrator) release(ctx context.Context, sessionID string, state confirm.State) {
	_, err := o.store.Update(context.WithoutCancel(ctx), sessionID, func(s *session.Session) error {
		if s.State == confirm.StateExecuting {
			s.State = state
		}
		return nil
	})
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		o.logger.WarnContext(ctx, "release session claim failed",
			slog.String("session_id", sessionID),
			slog.Any("error", err),
		)
	}
}

func (o *Orchestrator) execute(ctx context.Context, sessionID string, translation nl2sql.TranslationResult, sqlText string) (Response, error) {
	result := o.executor.Execute(ctx, sqlText)
	payload := o.formatter.Format(result)

	state := confirm.StateExecuted
	if !result.Success {
		state = confirm.StateFailed
	}
	_, err := o.store.Update(ctx, sessionID, func(s *session.Session) error {
		s.State = state
		s.Translation = &translation
		s.Execution = &result
		s.Formatted = &payload
		return nil
	})
	switch {
	case errors.Is(err, session.ErrNotFound):
		o.logger.WarnContext(ctx, "session expired before result was recorded", slog.String("session_id", sessionID))
	case err != nil:
		return Response{}, fmt.Errorf("record execution: %w", err)
	}

	resp := Response{
		SessionID:         sessionID,
		Content:           payload.Summary,
		NeedsConfirmation: false,
		Result:            &payload,
		Metadata:          &result.Metadata,
		ProcessingSteps: []Step{{
			Name:   "execution",
			Detail: executionDetail(result),
		}},
	}
	if o.policy.DiscloseSQL {
		resp.SQL = result.Metadata.FinalSQL
	}
	if !result.Success && result.Error != nil {
		kind := KindExecutionFailure
		if result.Error.Code == execution.CodeRetryExhausted {
			kind = KindRetryExhausted
		}
		resp.Error = &Error{Kind: kind, Message: result.Error.Message}
	}
	o.logger.InfoContext(ctx, "query executed",
		slog.String("session_id", sessionID),
		slog.Bool("success", result.Success),
		slog.Int("retry_count", result.Metadata.RetryCount),
		slog.Int64("execution_time_ms", result.Metadata.ExecutionTimeMs),
	)
	return resp, nil
}

func (o *Orchestrator) translationSteps(result nl2sql.TranslationResult) []Step {
	steps := []Step{{Name: "interpretation", Detail: result.InterpretedQuery}}
	if o.policy.DiscloseSQL {
		steps = append(steps, Step{Name: "generated_sql", Detail: result.SQL})
	}
	return append(steps, Step{Name: "components", Detail: componentBreakdown(result.Components)})
}

func componentBreakdown(components nl2sql.Components) string {
	parts := []string{"filter: " + components.Filter.Description}
	parts = append(parts, "aggregation: "+components.Aggregation.Description)
	if components.GroupBy.Description != "" {
		parts = append(parts, "group by: "+components.GroupBy.Description)
	}
	if components.OrderBy.Description != "" {
		parts = append(parts, "order by: "+components.OrderBy.Description)
	}
	if components.Limit.Description != "" {
		parts = append(parts, "limit: "+components.Limit.Description)
	}
	return strings.Join(parts, "; ")
}

func executionDetail(result execution.Result) string {
	if result.Success {
		return fmt.Sprintf("succeeded after %d correction(s) in %dms", result.Metadata.RetryCount, result.Metadata.ExecutionTimeMs)
	}
	return fmt.Sprintf("failed after %d correction(s): %s", result.Metadata.RetryCount, result.Error.Message)
}

func confirmationContent(prompt confirm.Prompt) string {
	var b strings.Builder
	b.WriteString("Please confirm this interpretation: ")
	b.WriteString(prompt.InterpretedQuery)
	b.WriteString(" (confidence ")
	b.WriteString(strconv.Itoa(int(prompt.Confidence*100 + 0.5)))
	b.WriteString("%)")
	if len(prompt.Alternatives) > 0 {
		b.WriteString(" Alternatives: ")
		b.WriteString(strings.Join(prompt.Alternatives, "; "))
	}
	return b.String()
}

func resultLabel(resp Response) string {
	switch {
	case resp.Error != nil:
		return string(resp.Error.Kind)
	case resp.NeedsConfirmation:
		return "confirmation"
	default:
		return "executed"
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
