package execution

import "strings"

// Classify maps a data engine error message to an error code.
func Classify(message string) Code {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "referenced column"),
		strings.Contains(lower, "column") && strings.Contains(lower, "not found"),
		strings.Contains(lower, "column") && strings.Contains(lower, "does not exist"):
		return CodeColumnNotFound
	case strings.Contains(lower, "table with name"),
		strings.Contains(lower, "table") && strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "table") && strings.Contains(lower, "not found"):
		return CodeTableNotFound
	case strings.Contains(lower, "parser error"),
		strings.Contains(lower, "syntax error"):
		return CodeSyntaxError
	default:
		return CodeExecutionFailed
	}
}
