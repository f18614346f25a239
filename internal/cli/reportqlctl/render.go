package reportqlctl

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"

	"github.com/reportql/reportql/internal/format"
	"github.com/reportql/reportql/internal/nl2sql"
	"github.com/reportql/reportql/internal/pipeline"
)

// RenderResponse turns a pipeline response into terminal text: the content
// line, then either the confirmation prompt or the result table.
func RenderResponse(response pipeline.Response) (string, error) {
	var out strings.Builder
	if response.SessionID != "" {
		_, _ = fmt.Fprintf(&out, "session: %s\n", response.SessionID)
	}
	if response.Content != "" {
		_, _ = fmt.Fprintln(&out, response.Content)
	}
	if response.Error != nil {
		_, _ = fmt.Fprintf(&out, "error (%s): %s\n", response.Error.Kind, response.Error.Message)
	}

	if response.NeedsConfirmation && response.Prompt != nil {
		prompt := response.Prompt
		_, _ = fmt.Fprintf(&out, "interpreted as: %s\n", prompt.InterpretedQuery)
		_, _ = fmt.Fprintf(&out, "confidence: %.2f\n", prompt.Confidence)
		if prompt.SQL != "" {
			_, _ = fmt.Fprintf(&out, "sql: %s\n", prompt.SQL)
		}
		table, err := componentTable(prompt.Components)
		if err != nil {
			return "", err
		}
		out.WriteString(table)
		for _, alternative := range prompt.Alternatives {
			_, _ = fmt.Fprintf(&out, "  alternative: %s\n", alternative)
		}
		return out.String(), nil
	}

	if response.Result != nil && len(response.Result.Columns) > 0 {
		table, err := resultTable(*response.Result)
		if err != nil {
			return "", err
		}
		out.WriteString(table)
	}
	if response.Metadata != nil && response.Metadata.RetryCount > 0 {
		_, _ = fmt.Fprintf(&out, "corrected after %d retr%s\n", response.Metadata.RetryCount, pluralY(response.Metadata.RetryCount))
	}
	return out.String(), nil
}

func componentTable(components nl2sql.Components) (string, error) {
	data := pterm.TableData{{"component", "description", "clause"}}
	for _, row := range []struct {
		name      string
		component nl2sql.Component
	}{
		{"filter", components.Filter},
		{"aggregation", components.Aggregation},
		{"group by", components.GroupBy},
		{"order by", components.OrderBy},
		{"limit", components.Limit},
	} {
		if row.component.Clause == "" && row.component.Description == "" {
			continue
		}
		data = append(data, []string{row.name, row.component.Description, row.component.Clause})
	}
	return renderTable(data)
}

func resultTable(payload format.Payload) (string, error) {
	data := pterm.TableData{payload.Columns}
	for _, row := range payload.Rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = formatCell(value)
		}
		data = append(data, cells)
	}
	return renderTable(data)
}

func renderTable(data pterm.TableData) (string, error) {
	rendered, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", fmt.Errorf("render table: %w", err)
	}
	return rendered + "\n", nil
}

func formatCell(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.2f", v)
	default:
		return fmt.Sprint(v)
	}
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}
