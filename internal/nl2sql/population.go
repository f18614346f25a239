package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reportql/reportql/internal/schema"
)

// PopulationPhase derives the filter predicate that scopes a query.
type PopulationPhase struct {
	Model   Completer
	Catalog schema.Catalog
	Logger  *slog.Logger
	Clock   func() time.Time
}

type populationResponse struct {
	Description  string   `json:"description"`
	SQLClause    string   `json:"sql_clause"`
	Confidence   *float64 `json:"confidence"`
	Alternatives []string `json:"alternatives"`
}

func (p *PopulationPhase) Derive(ctx context.Context, question string) Population {
	if p.Model == nil {
		return defaultPopulation()
	}
	raw, err := p.Model.Complete(ctx, populationSystemPrompt, p.userPrompt(question))
	if err != nil {
		p.warn(ctx, "population phase unavailable", err)
		return defaultPopulation()
	}
	population, err := parsePopulation(raw)
	if err != nil {
		p.warn(ctx, "population phase returned unparsable output", err)
		return defaultPopulation()
	}
	return population
}

func parsePopulation(raw string) (Population, error) {
	var parsed populationResponse
	if err := json.Unmarshal([]byte(stripMarkdownFence(raw)), &parsed); err != nil {
		return Population{}, fmt.Errorf("decode population response: %w", err)
	}
	if parsed.Confidence == nil {
		return Population{}, fmt.Errorf("population response missing confidence")
	}

	clause := stripKeyword(parsed.SQLClause, "WHERE")
	description := strings.TrimSpace(parsed.Description)
	if IsAlwaysTrue(clause) {
		clause = alwaysTrue
		if description == "" {
			description = "all records"
		}
	}
	if description == "" {
		description = clause
	}

	alternatives := make([]string, 0, len(parsed.Alternatives))
	for _, alternative := range parsed.Alternatives {
		if trimmed := strings.TrimSpace(alternative); trimmed != "" {
			alternatives = append(alternatives, trimmed)
		}
	}
	return Population{
		Description:  description,
		Clause:       clause,
		Confidence:   clampConfidence(*parsed.Confidence),
		Alternatives: alternatives,
	}, nil
}

func (p *PopulationPhase) userPrompt(question string) string {
	now := time.Now
	if p.Clock != nil {
		now = p.Clock
	}
	return fmt.Sprintf(
		"Current date: %s\nSchema:\n%s\nQuestion:\n%s\n\nRespond with JSON: {\"description\": string, \"sql_clause\": string, \"confidence\": number, \"alternatives\": [string]}",
		now().UTC().Format("2006-01-02"),
		p.Catalog.Describe(),
		strings.TrimSpace(question),
	)
}

func (p *PopulationPhase) warn(ctx context.Context, msg string, err error) {
	if p.Logger != nil {
		p.Logger.WarnContext(ctx, msg, slog.Any("error", err))
	}
}

const populationSystemPrompt = "You define the population of records an analytics question is about. " +
	"Return only the boolean SQL predicate that belongs after WHERE, using DuckDB syntax and only listed columns. " +
	"Use comparisons, BETWEEN ranges, IN lists, IS NULL checks, date windows and AND/OR with explicit parentheses. " +
	"Quote string literals with single quotes. Dates are 'YYYY-MM-DD'. " +
	"When a value is ambiguous, emit a placeholder token such as {{wallet}} instead of guessing and lower your confidence. " +
	"If no filter is implied return \"TRUE\". " +
	"confidence is your probability in [0,1] that the predicate is exactly right."
