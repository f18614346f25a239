package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/reportql/reportql/internal/schema"
)

// ShapePhase derives aggregation, grouping, ordering and row limit.
type ShapePhase struct {
	Model   Completer
	Catalog schema.Catalog
	Logger  *slog.Logger
}

type shapeResponse struct {
	AggregationDescription string   `json:"aggregation_description"`
	AggregationClause      string   `json:"aggregation_clause"`
	GroupByDescription     string   `json:"group_by_description"`
	GroupByClause          string   `json:"group_by_clause"`
	OrderByDescription     string   `json:"order_by_description"`
	OrderByClause          string   `json:"order_by_clause"`
	LimitDescription       string   `json:"limit_description"`
	LimitClause            string   `json:"limit_clause"`
	Confidence             *float64 `json:"confidence"`
}

var aggregateCallPattern = regexp.MustCompile(`(?i)\b(SUM|AVG|MEDIAN|STDDEV|MIN|MAX|COUNT)\s*\(\s*(?:DISTINCT\s+)?([^()]*)\)`)

func (p *ShapePhase) Derive(ctx context.Context, question, populationDescription string) Shape {
	if p.Model == nil {
		return defaultShape()
	}
	raw, err := p.Model.Complete(ctx, shapeSystemPrompt, p.userPrompt(question, populationDescription))
	if err != nil {
		p.warn(ctx, "shape phase unavailable", err)
		return defaultShape()
	}
	shape, err := parseShape(raw)
	if err != nil {
		p.warn(ctx, "shape phase returned unparsable output", err)
		return defaultShape()
	}
	return p.constrain(ctx, shape)
}

func parseShape(raw string) (Shape, error) {
	var parsed shapeResponse
	if err := json.Unmarshal([]byte(stripMarkdownFence(raw)), &parsed); err != nil {
		return Shape{}, fmt.Errorf("decode shape response: %w", err)
	}
	if parsed.Confidence == nil {
		return Shape{}, fmt.Errorf("shape response missing confidence")
	}
	shape := Shape{
		AggregationDescription: strings.TrimSpace(parsed.AggregationDescription),
		AggregationClause:      stripKeyword(parsed.AggregationClause, "SELECT"),
		GroupByDescription:     strings.TrimSpace(parsed.GroupByDescription),
		GroupByClause:          stripKeyword(parsed.GroupByClause, "GROUP BY"),
		OrderByDescription:     strings.TrimSpace(parsed.OrderByDescription),
		OrderByClause:          stripKeyword(parsed.OrderByClause, "ORDER BY"),
		LimitDescription:       strings.TrimSpace(parsed.LimitDescription),
		LimitClause:            normalizeLimit(parsed.LimitClause),
		Confidence:             clampConfidence(*parsed.Confidence),
	}
	if shape.LimitClause == "" {
		shape.LimitDescription = ""
	}
	if shape.GroupByClause == "" {
		shape.GroupByDescription = ""
	}
	if shape.OrderByClause == "" {
		shape.OrderByDescription = ""
	}
	return shape, nil
}

// constrain drops aggregate terms over columns the catalog does not mark
// aggregatable. COUNT, MIN and MAX are allowed on any column.
func (p *ShapePhase) constrain(ctx context.Context, shape Shape) Shape {
	if shape.AggregationClause == "" || shape.AggregationClause == "*" {
		shape.AggregationClause = "*"
		if shape.AggregationDescription == "" {
			shape.AggregationDescription = "all columns"
		}
		shape.GroupByClause, shape.GroupByDescription = "", ""
		return shape
	}

	allowed := map[string]struct{}{}
	for _, column := range p.Catalog.AggregatableColumns() {
		allowed[strings.ToLower(column)] = struct{}{}
	}

	terms := splitTopLevel(shape.AggregationClause)
	kept := make([]string, 0, len(terms))
	dropped := make([]string, 0)
	for _, term := range terms {
		if termAggregatesAllowed(term, allowed) {
			kept = append(kept, term)
			continue
		}
		dropped = append(dropped, term)
	}
	if len(dropped) > 0 && p.Logger != nil {
		p.Logger.WarnContext(ctx, "dropped aggregate terms over non-aggregatable columns", slog.Any("terms", dropped))
	}
	if len(kept) == 0 {
		shape.AggregationClause = "*"
		shape.AggregationDescription = "all columns"
		shape.GroupByClause, shape.GroupByDescription = "", ""
		shape.Confidence *= 0.5
		return shape
	}
	if len(dropped) > 0 {
		shape.Confidence *= 0.5
	}
	shape.AggregationClause = strings.Join(kept, ", ")
	if shape.AggregationDescription == "" {
		shape.AggregationDescription = shape.AggregationClause
	}
	return shape
}

func termAggregatesAllowed(term string, allowed map[string]struct{}) bool {
	for _, match := range aggregateCallPattern.FindAllStringSubmatch(term, -1) {
		function := strings.ToUpper(match[1])
		switch function {
		case "COUNT", "MIN", "MAX":
			continue
		}
		column := strings.ToLower(strings.Trim(strings.TrimSpace(match[2]), `"`))
		if _, ok := allowed[column]; !ok {
			return false
		}
	}
	return true
}

func (p *ShapePhase) userPrompt(question, populationDescription string) string {
	return fmt.Sprintf(
		"Schema:\n%s\nAggregatable columns: %s\nPopulation: %s\nQuestion:\n%s\n\nRespond with JSON: {\"aggregation_description\": string, \"aggregation_clause\": string, \"group_by_description\": string, \"group_by_clause\": string, \"order_by_description\": string, \"order_by_clause\": string, \"limit_description\": string, \"limit_clause\": string, \"confidence\": number}",
		p.Catalog.Describe(),
		strings.Join(p.Catalog.AggregatableColumns(), ", "),
		populationDescription,
		strings.TrimSpace(question),
	)
}

func (p *ShapePhase) warn(ctx context.Context, msg string, err error) {
	if p.Logger != nil {
		p.Logger.WarnContext(ctx, msg, slog.Any("error", err))
	}
}

const shapeSystemPrompt = "You decide the shape of the result for an analytics question whose population is already defined. " +
	"Return the select list (aggregate functions over aggregatable columns only), grouping dimensions, sort order and row limit as DuckDB SQL fragments without their leading keywords. " +
	"Leave a clause empty when the question does not imply it. " +
	"confidence is your probability in [0,1] that the shape is exactly right."
