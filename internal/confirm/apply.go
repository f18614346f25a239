package confirm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Skipped records a mapping that was not applied.
type Skipped struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// Apply replaces every whole-token occurrence of each mapping key in sqlText
// with its value. At any position the longest matching key wins, and
// replacement text is never scanned again. Mappings with an empty value are
// skipped.
func Apply(sqlText string, mappings map[string]string) (string, []Skipped) {
	skipped := make([]Skipped, 0)
	tokens := make([]string, 0, len(mappings))
	for token, value := range mappings {
		switch {
		case strings.TrimSpace(token) == "":
			skipped = append(skipped, Skipped{Token: token, Reason: "empty token"})
		case strings.TrimSpace(value) == "":
			skipped = append(skipped, Skipped{Token: token, Reason: "empty value"})
		default:
			tokens = append(tokens, token)
		}
	}
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Token < skipped[j].Token })
	if len(tokens) == 0 {
		return sqlText, skipped
	}
	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})

	var b strings.Builder
	b.Grow(len(sqlText))
	for i := 0; i < len(sqlText); {
		token, ok := matchAt(sqlText, i, tokens)
		if !ok {
			b.WriteByte(sqlText[i])
			i++
			continue
		}
		b.WriteString(mappings[token])
		i += len(token)
	}
	return b.String(), skipped
}

func matchAt(text string, pos int, tokens []string) (string, bool) {
	if pos > 0 && isWordByte(text[pos-1]) && isWordByte(text[pos]) {
		return "", false
	}
	for _, token := range tokens {
		if !strings.HasPrefix(text[pos:], token) {
			continue
		}
		end := pos + len(token)
		if end < len(text) && isWordByte(text[end]) && isWordByte(token[len(token)-1]) {
			continue
		}
		return token, true
	}
	return "", false
}

func isWordByte(ch byte) bool {
	return ch == '_' || ch >= '0' && ch <= '9' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= 0x80
}

// Normalize converts transport values to mapping strings. nil, false, zero
// numbers and blank strings become empty so Apply skips them.
func Normalize(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for token, value := range raw {
		out[token] = normalizeValue(value)
	}
	return out
}

func normalizeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case bool:
		if !v {
			return ""
		}
		return "true"
	case float64:
		if v == 0 {
			return ""
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		if v == 0 {
			return ""
		}
		return strconv.Itoa(v)
	case int64:
		if v == 0 {
			return ""
		}
		return strconv.FormatInt(v, 10)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
