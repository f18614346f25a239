// Package session holds pipeline state between a translation and its
// confirmation reply.
package session

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/reportql/reportql/internal/confirm"
	"github.com/reportql/reportql/internal/execution"
	"github.com/reportql/reportql/internal/format"
	"github.com/reportql/reportql/internal/nl2sql"
)

var ErrNotFound = errors.New("session not found")

type Session struct {
	ID          string                    `json:"id"`
	Query       string                    `json:"query"`
	State       confirm.State             `json:"state"`
	Translation *nl2sql.TranslationResult `json:"translation,omitempty"`
	Execution   *execution.Result         `json:"execution,omitempty"`
	Formatted   *format.Payload           `json:"formatted,omitempty"`
	CreatedAt   time.Time                 `json:"createdAt"`
	UpdatedAt   time.Time                 `json:"updatedAt"`
}

// Store persists sessions. Update calls for the same id never run fn
// concurrently.
type Store interface {
	Create(ctx context.Context, query string) (Session, error)
	Get(ctx context.Context, id string) (Session, error)
	Update(ctx context.Context, id string, fn func(*Session) error) (Session, error)
	Delete(ctx context.Context, id string) error
	SweepExpired(ctx context.Context, cutoff time.Time) (int, error)
	Len(ctx context.Context) (int, error)
}

const slugLength = 32

// DeriveID returns "<unix-millis>-<slug>" where slug is built from the first
// characters of the normalised query.
func DeriveID(now time.Time, query string) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + slug(query)
}

func slug(query string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if runes := []rune(normalized); len(runes) > slugLength {
		normalized = string(runes[:slugLength])
	}
	var b strings.Builder
	dash := false
	for _, r := range normalized {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "query"
	}
	return out
}

func (s Session) clone() Session {
	out := s
	if s.Translation != nil {
		translation := *s.Translation
		out.Translation = &translation
	}
	if s.Execution != nil {
		result := *s.Execution
		out.Execution = &result
	}
	if s.Formatted != nil {
		payload := *s.Formatted
		out.Formatted = &payload
	}
	return out
}
