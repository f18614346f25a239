// Package format turns execution results into the payload returned to callers.
package format

import (
	"fmt"

	"github.com/reportql/reportql/internal/execution"
)

const DefaultMaxRows = 500

type Payload struct {
	Summary   string   `json:"summary"`
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	RowCount  int      `json:"rowCount"`
	Truncated bool     `json:"truncated"`
}

type Formatter struct {
	MaxRows int
}

func (f Formatter) Format(result execution.Result) Payload {
	if !result.Success {
		message := "unknown error"
		if result.Error != nil && result.Error.Message != "" {
			message = result.Error.Message
		}
		return Payload{
			Summary: fmt.Sprintf("Query failed: %s", message),
			Columns: []string{},
			Rows:    [][]any{},
		}
	}

	maxRows := f.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	rows := result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	columns := result.Columns
	if columns == nil {
		columns = []string{}
	}

	payload := Payload{
		Columns:  columns,
		Rows:     rows,
		RowCount: len(rows),
	}
	if len(rows) > maxRows {
		payload.Rows = rows[:maxRows]
		payload.Truncated = true
	}
	payload.Summary = summarize(payload)
	return payload
}

func summarize(payload Payload) string {
	if payload.Truncated {
		return fmt.Sprintf("Showing first %d of %d rows.", len(payload.Rows), payload.RowCount)
	}
	switch payload.RowCount {
	case 0:
		return "No rows matched."
	case 1:
		return "Returned 1 row."
	default:
		return fmt.Sprintf("Returned %d rows.", payload.RowCount)
	}
}
