package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/reportql/reportql/internal/observability"
)

const (
	DefaultMaxAge        = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

// Sweeper periodically removes sessions older than MaxAge. Sweep failures
// are logged and retried on the next tick.
type Sweeper struct {
	Store    Store
	MaxAge   time.Duration
	Interval time.Duration
	Logger   *slog.Logger
	Clock    func() time.Time
}

func (s *Sweeper) ensureDefaults() {
	if s.MaxAge <= 0 {
		s.MaxAge = DefaultMaxAge
	}
	if s.Interval <= 0 {
		s.Interval = DefaultSweepInterval
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	s.ensureDefaults()
	if s.Store == nil {
		return fmt.Errorf("session store is required")
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed, err := s.SweepOnce(ctx)
			if err != nil {
				if s.Logger != nil {
					s.Logger.ErrorContext(ctx, "session sweep failed", slog.Any("error", err))
				}
				continue
			}
			if removed > 0 && s.Logger != nil {
				s.Logger.InfoContext(ctx, "session sweep completed", slog.Int("removed", removed))
			}
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	s.ensureDefaults()
	if s.Store == nil {
		return 0, fmt.Errorf("session store is required")
	}
	removed, err := s.Store.SweepExpired(ctx, s.Clock().UTC().Add(-s.MaxAge))
	observability.ObserveSessionSweep(removed, err)
	if err != nil {
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}
	if live, err := s.Store.Len(ctx); err == nil {
		observability.SetLiveSessions(live)
	}
	return removed, nil
}
