package query

import (
	"context"
	"strings"
	"time"
)

// TableFile is one parquet object exposed to the engine under TableName.
type TableFile struct {
	TableName     string
	ObjectPath    string
	FileSizeBytes int64
}

type Request struct {
	SQL      string
	RowLimit int
	Files    []TableFile
}

type Result struct {
	Columns      []string
	Rows         [][]any
	ScannedFiles int
	ScannedBytes int64
	Duration     time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// IsReadOnly accepts a single SELECT or WITH statement. Leading comments and
// parentheses are skipped, and a trailing semicolon is allowed. Anything after
// a semicolon outside quotes and comments makes the text a second statement.
func IsReadOnly(sqlText string) bool {
	lead, rest := firstKeyword(sqlText)
	if lead != "select" && lead != "with" {
		return false
	}
	return !hasSecondStatement(rest)
}

func firstKeyword(sqlText string) (string, string) {
	text := sqlText
	for {
		text = skipSpaceAndComments(text)
		if !strings.HasPrefix(text, "(") {
			break
		}
		text = text[1:]
	}
	end := 0
	for end < len(text) && isWordByte(text[end]) {
		end++
	}
	return strings.ToLower(text[:end]), text[end:]
}

func skipSpaceAndComments(text string) string {
	for {
		text = strings.TrimLeft(text, " \t\r\n")
		switch {
		case strings.HasPrefix(text, "--"):
			newline := strings.IndexByte(text, '\n')
			if newline < 0 {
				return ""
			}
			text = text[newline+1:]
		case strings.HasPrefix(text, "/*"):
			closing := strings.Index(text[2:], "*/")
			if closing < 0 {
				return ""
			}
			text = text[closing+4:]
		default:
			return text
		}
	}
}

func hasSecondStatement(text string) bool {
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '\'', '"':
			quote := text[i]
			i++
			for i < len(text) && text[i] != quote {
				i++
			}
		case '-':
			if strings.HasPrefix(text[i:], "--") {
				newline := strings.IndexByte(text[i:], '\n')
				if newline < 0 {
					return false
				}
				i += newline
			}
		case '/':
			if strings.HasPrefix(text[i:], "/*") {
				closing := strings.Index(text[i+2:], "*/")
				if closing < 0 {
					return false
				}
				i += closing + 3
			}
		case ';':
			rest := text[i+1:]
			for {
				rest = skipSpaceAndComments(rest)
				if !strings.HasPrefix(rest, ";") {
					return rest != ""
				}
				rest = rest[1:]
			}
		}
	}
	return false
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
