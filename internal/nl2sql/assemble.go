package nl2sql

import (
	"strconv"
	"strings"
)

const alwaysTrue = "TRUE"

// IsAlwaysTrue reports whether a filter clause selects every record.
func IsAlwaysTrue(clause string) bool {
	normalized := strings.ToUpper(strings.Join(strings.Fields(clause), ""))
	normalized = strings.Trim(normalized, "()")
	switch normalized {
	case "", "TRUE", "1=1", "1", "'1'='1'":
		return true
	default:
		return false
	}
}

// Assemble builds SELECT <agg> FROM <subject> [WHERE] [GROUP BY] [ORDER BY] [LIMIT].
// Grouping columns missing from the select list are prepended so grouped
// aggregates stay labelled.
func Assemble(subject string, components Components) string {
	selectList := strings.TrimSpace(components.Aggregation.Clause)
	if selectList == "" {
		selectList = "*"
	}
	groupBy := strings.TrimSpace(components.GroupBy.Clause)
	if groupBy != "" && selectList != "*" {
		selectList = prependMissing(splitTopLevel(groupBy), selectList)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(selectList)
	b.WriteString(" FROM ")
	b.WriteString(subject)
	if filter := strings.TrimSpace(components.Filter.Clause); !IsAlwaysTrue(filter) {
		b.WriteString(" WHERE ")
		b.WriteString(filter)
	}
	if groupBy != "" {
		b.WriteString(" GROUP BY ")
		b.WriteString(groupBy)
	}
	if orderBy := strings.TrimSpace(components.OrderBy.Clause); orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	if limit := strings.TrimSpace(components.Limit.Clause); limit != "" {
		b.WriteString(" LIMIT ")
		b.WriteString(limit)
	}
	return b.String()
}

func prependMissing(groupColumns []string, selectList string) string {
	present := map[string]struct{}{}
	for _, term := range splitTopLevel(selectList) {
		present[strings.ToLower(term)] = struct{}{}
	}
	prefix := make([]string, 0, len(groupColumns))
	for _, column := range groupColumns {
		if _, ok := present[strings.ToLower(column)]; ok {
			continue
		}
		prefix = append(prefix, column)
	}
	if len(prefix) == 0 {
		return selectList
	}
	return strings.Join(prefix, ", ") + ", " + selectList
}

// splitTopLevel splits on commas outside parentheses and quotes.
func splitTopLevel(list string) []string {
	parts := make([]string, 0)
	depth := 0
	inQuote := false
	start := 0
	for i := 0; i < len(list); i++ {
		switch ch := list[i]; {
		case ch == '\'':
			inQuote = !inQuote
		case inQuote:
		case ch == '(':
			depth++
		case ch == ')':
			if depth > 0 {
				depth--
			}
		case ch == ',' && depth == 0:
			if part := strings.TrimSpace(list[start:i]); part != "" {
				parts = append(parts, part)
			}
			start = i + 1
		}
	}
	if part := strings.TrimSpace(list[start:]); part != "" {
		parts = append(parts, part)
	}
	return parts
}

func stripKeyword(clause string, keywords ...string) string {
	trimmed := strings.TrimSpace(clause)
	upper := strings.ToUpper(trimmed)
	for _, keyword := range keywords {
		if strings.HasPrefix(upper, keyword+" ") || upper == keyword {
			return strings.TrimSpace(trimmed[len(keyword):])
		}
	}
	return trimmed
}

func normalizeLimit(clause string) string {
	clause = stripKeyword(clause, "LIMIT")
	if clause == "" {
		return ""
	}
	value, err := strconv.Atoi(clause)
	if err != nil || value <= 0 {
		return ""
	}
	return strconv.Itoa(value)
}
