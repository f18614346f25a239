package nl2sql

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/reportql/reportql/internal/observability"
	"github.com/reportql/reportql/internal/schema"
)

type TranslatorConfig struct {
	ConfirmationThreshold float64
	Logger                *slog.Logger
	Clock                 func() time.Time
}

// Translator runs the population and shape phases and assembles the SQL.
// It never fails: an unreachable model degrades each phase to a permissive
// default whose zero confidence routes the result through confirmation.
type Translator struct {
	Population *PopulationPhase
	Shape      *ShapePhase
	Catalog    schema.Catalog
	Threshold  float64
	Logger     *slog.Logger
}

func NewTranslator(model Completer, catalog schema.Catalog, cfg TranslatorConfig) *Translator {
	threshold := cfg.ConfirmationThreshold
	if threshold <= 0 {
		threshold = DefaultConfirmationThreshold
	}
	return &Translator{
		Population: &PopulationPhase{Model: model, Catalog: catalog, Logger: cfg.Logger, Clock: cfg.Clock},
		Shape:      &ShapePhase{Model: model, Catalog: catalog, Logger: cfg.Logger},
		Catalog:    catalog,
		Threshold:  threshold,
		Logger:     cfg.Logger,
	}
}

func (t *Translator) Translate(ctx context.Context, question string) TranslationResult {
	population := t.Population.Derive(ctx, question)
	shape := t.Shape.Derive(ctx, question, population.Description)

	components := Components{
		Filter:      Component{Description: population.Description, Clause: population.Clause},
		Aggregation: Component{Description: shape.AggregationDescription, Clause: shape.AggregationClause},
		GroupBy:     Component{Description: shape.GroupByDescription, Clause: shape.GroupByClause},
		OrderBy:     Component{Description: shape.OrderByDescription, Clause: shape.OrderByClause},
		Limit:       Component{Description: shape.LimitDescription, Clause: shape.LimitClause},
	}
	confidence := clampConfidence((population.Confidence + shape.Confidence) / 2)

	result := TranslationResult{
		OriginalQuery:              question,
		InterpretedQuery:           Interpret(components),
		SQL:                        Assemble(t.Catalog.Subject(), components),
		Components:                 components,
		Confidence:                 confidence,
		RequiresConfirmation:       confidence < t.Threshold,
		AlternativeInterpretations: population.Alternatives,
	}

	observability.ObserveTranslation(result.RequiresConfirmation, population.Degraded, shape.Degraded)
	if t.Logger != nil {
		t.Logger.InfoContext(ctx, "query translated",
			slog.Float64("confidence", confidence),
			slog.Bool("requires_confirmation", result.RequiresConfirmation),
			slog.Bool("population_degraded", population.Degraded),
			slog.Bool("shape_degraded", shape.Degraded),
		)
	}
	return result
}

// Interpret paraphrases the components as one sentence for caller review.
func Interpret(components Components) string {
	var b strings.Builder
	b.WriteString("Show ")
	b.WriteString(firstNonEmpty(components.Aggregation.Description, "all columns"))
	if components.GroupBy.Description != "" {
		b.WriteString(" grouped by ")
		b.WriteString(components.GroupBy.Description)
	}
	b.WriteString(" for ")
	b.WriteString(firstNonEmpty(components.Filter.Description, "all records"))
	if components.OrderBy.Description != "" {
		b.WriteString(", ordered by ")
		b.WriteString(components.OrderBy.Description)
	}
	if components.Limit.Description != "" {
		b.WriteString(", ")
		b.WriteString(components.Limit.Description)
	}
	b.WriteString(".")
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
