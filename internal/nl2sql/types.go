package nl2sql

import "math"

// DefaultConfirmationThreshold is deliberately strict: almost every first-pass
// translation is reviewed by the caller before it runs.
const DefaultConfirmationThreshold = 0.99

type Component struct {
	Description string `json:"description"`
	Clause      string `json:"clause"`
}

type Components struct {
	Filter      Component `json:"filter"`
	Aggregation Component `json:"aggregation"`
	GroupBy     Component `json:"groupBy"`
	OrderBy     Component `json:"orderBy"`
	Limit       Component `json:"limit"`
}

type TranslationResult struct {
	OriginalQuery              string            `json:"originalQuery"`
	InterpretedQuery           string            `json:"interpretedQuery"`
	SQL                        string            `json:"sql"`
	Components                 Components        `json:"components"`
	Confidence                 float64           `json:"confidence"`
	RequiresConfirmation       bool              `json:"requiresConfirmation"`
	AlternativeInterpretations []string          `json:"alternativeInterpretations,omitempty"`
	ConfirmedMappings          map[string]string `json:"confirmedMappings,omitempty"`
}

// Population is the Phase A output: which records are in scope.
type Population struct {
	Description  string
	Clause       string
	Confidence   float64
	Alternatives []string
	Degraded     bool
}

// Shape is the Phase B output: how in-scope records are summarised.
type Shape struct {
	AggregationDescription string
	AggregationClause      string
	GroupByDescription     string
	GroupByClause          string
	OrderByDescription     string
	OrderByClause          string
	LimitDescription       string
	LimitClause            string
	Confidence             float64
	Degraded               bool
}

func defaultPopulation() Population {
	return Population{
		Description: "all records",
		Clause:      alwaysTrue,
		Confidence:  0,
		Degraded:    true,
	}
}

func defaultShape() Shape {
	return Shape{
		AggregationDescription: "all columns",
		AggregationClause:      "*",
		Confidence:             0,
		Degraded:               true,
	}
}

func clampConfidence(value float64) float64 {
	switch {
	case math.IsNaN(value):
		return 0
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}
