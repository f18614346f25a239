// Package confirm implements the human-in-the-loop confirmation protocol:
// presenting a translation for review and applying the caller's mappings.
package confirm

import (
	"errors"

	"github.com/reportql/reportql/internal/nl2sql"
)

// ErrMissingTranslation is returned when a confirmation reply cannot be tied
// to a prior translation.
var ErrMissingTranslation = errors.New("missing translation result")

type State string

const (
	StateNew                  State = "new"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	// StateExecuting marks a session claimed by a confirmation reply.
	StateExecuting            State = "executing"
	StateExecuted             State = "executed"
	StateFailed               State = "failed"
)

type Policy struct {
	DiscloseSQL bool
}

// Prompt is what the caller reviews before a translation runs.
type Prompt struct {
	InterpretedQuery string            `json:"interpretedQuery"`
	SQL              string            `json:"sql,omitempty"`
	Components       nl2sql.Components `json:"components"`
	Alternatives     []string          `json:"alternatives,omitempty"`
	Confidence       float64           `json:"confidence"`
}

func Format(result nl2sql.TranslationResult, policy Policy) Prompt {
	prompt := Prompt{
		InterpretedQuery: result.InterpretedQuery,
		Components:       result.Components,
		Alternatives:     append([]string(nil), result.AlternativeInterpretations...),
		Confidence:       result.Confidence,
	}
	if policy.DiscloseSQL {
		prompt.SQL = result.SQL
	}
	return prompt
}

// Decide returns the state a fresh translation moves to: straight to
// execution when confident enough, otherwise awaiting confirmation.
func Decide(result nl2sql.TranslationResult) State {
	if result.RequiresConfirmation {
		return StateAwaitingConfirmation
	}
	return StateExecuted
}
