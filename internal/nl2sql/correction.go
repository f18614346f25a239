package nl2sql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reportql/reportql/internal/query"
	"github.com/reportql/reportql/internal/schema"
)

// Corrector asks the model to repair a statement the data engine rejected.
type Corrector struct {
	Model   Completer
	Catalog schema.Catalog
	Logger  *slog.Logger
}

// CorrectError returns the corrected statement, or "" when no usable
// correction exists. Identical, empty, NULL and non-read-only answers count
// as no correction.
func (c *Corrector) CorrectError(ctx context.Context, sqlText, errorMessage string) (string, error) {
	if c.Model == nil {
		return "", nil
	}
	raw, err := c.Model.Complete(ctx, correctionSystemPrompt, c.userPrompt(sqlText, errorMessage))
	if err != nil {
		return "", fmt.Errorf("request correction: %w", err)
	}

	corrected := strings.TrimSpace(stripMarkdownFence(raw))
	corrected = strings.TrimSpace(strings.TrimSuffix(corrected, ";"))
	switch {
	case corrected == "", strings.EqualFold(corrected, "NULL"):
		return "", nil
	case corrected == strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sqlText), ";")):
		return "", nil
	case !query.IsReadOnly(corrected):
		if c.Logger != nil {
			c.Logger.WarnContext(ctx, "rejected non read-only correction", slog.String("sql", corrected))
		}
		return "", nil
	}
	return corrected, nil
}

func (c *Corrector) userPrompt(sqlText, errorMessage string) string {
	schemaText := ""
	if c.Catalog != nil {
		schemaText = c.Catalog.Describe()
	}
	return fmt.Sprintf("Schema:\n%s\nStatement:\n%s\n\nError:\n%s", schemaText, strings.TrimSpace(sqlText), strings.TrimSpace(errorMessage))
}

const correctionSystemPrompt = "A DuckDB query failed. Return ONLY the corrected single SELECT statement, no markdown, no explanation. " +
	"Keep the intent of the original statement and use only listed columns. " +
	"If the statement cannot be fixed return NULL."
