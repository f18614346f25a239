package format

import (
	"testing"

	"github.com/reportql/reportql/internal/execution"
)

func TestFormatSuccess(t *testing.T) {
	payload := Formatter{}.Format(execution.Result{
		Success: true,
		Columns: []string{"asset", "total"},
		Rows:    [][]any{{"ETH", 1.5}, {"BTC", 2.0}},
	})
	if payload.RowCount != 2 || payload.Truncated {
		t.Fatalf("Format() = %+v", payload)
	}
	if payload.Summary != "Returned 2 rows." {
		t.Fatalf("Summary = %q", payload.Summary)
	}
}

func TestFormatTruncatesRows(t *testing.T) {
	rows := make([][]any, 5)
	for i := range rows {
		rows[i] = []any{i}
	}
	payload := Formatter{MaxRows: 2}.Format(execution.Result{Success: true, Columns: []string{"n"}, Rows: rows})
	if !payload.Truncated || len(payload.Rows) != 2 || payload.RowCount != 5 {
		t.Fatalf("Format() = %+v", payload)
	}
	if payload.Summary != "Showing first 2 of 5 rows." {
		t.Fatalf("Summary = %q", payload.Summary)
	}
}

func TestFormatFailureCarriesMessage(t *testing.T) {
	payload := Formatter{}.Format(execution.Result{
		Error: &execution.Error{Message: "Referenced column \"x\" not found", Code: execution.CodeColumnNotFound},
	})
	if payload.Summary != "Query failed: Referenced column \"x\" not found" {
		t.Fatalf("Summary = %q", payload.Summary)
	}
	if payload.Rows == nil || payload.Columns == nil {
		t.Fatal("expected empty, non-nil rows and columns")
	}
}

func TestFormatEmptyResult(t *testing.T) {
	payload := Formatter{}.Format(execution.Result{Success: true})
	if payload.Summary != "No rows matched." || payload.RowCount != 0 {
		t.Fatalf("Format() = %+v", payload)
	}
}
