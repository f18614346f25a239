// Package postgres stores pipeline sessions in Postgres so several API
// replicas can serve one confirmation flow.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/reportql/reportql/internal/confirm"
	"github.com/reportql/reportql/internal/session"
)

const maxIDAttempts = 16

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB, clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{db: db, now: clock}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping session db: %w", err)
	}
	return nil
}

func (s *Store) Create(ctx context.Context, query string) (session.Session, error) {
	now := s.now().UTC()
	base := session.DeriveID(now, query)

	insert := `
INSERT INTO pipeline_session (session_id, query, state, record, created_at, updated_at)
VALUES ($1, $2, $3, $4::jsonb, $5, $5)
ON CONFLICT (session_id) DO NOTHING`

	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id := base
		if attempt > 1 {
			id = base + "-" + strconv.Itoa(attempt)
		}
		record := session.Session{
			ID:        id,
			Query:     query,
			State:     confirm.StateNew,
			CreatedAt: now,
			UpdatedAt: now,
		}
		payload, err := json.Marshal(record)
		if err != nil {
			return session.Session{}, fmt.Errorf("encode session: %w", err)
		}
		result, err := s.db.ExecContext(ctx, insert, id, query, string(record.State), string(payload), now)
		if err != nil {
			return session.Session{}, fmt.Errorf("create session: %w", err)
		}
		inserted, err := result.RowsAffected()
		if err != nil {
			return session.Session{}, fmt.Errorf("create session rows affected: %w", err)
		}
		if inserted == 1 {
			return record, nil
		}
	}
	return session.Session{}, fmt.Errorf("create session: id %q collided %d times", base, maxIDAttempts)
}

func (s *Store) Get(ctx context.Context, id string) (session.Session, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `
SELECT record
FROM pipeline_session
WHERE session_id = $1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, fmt.Errorf("get session: %w", err)
	}
	return decode(payload)
}

// Update locks the row for the duration of fn so concurrent replicas
// serialise on the same session.
func (s *Store) Update(ctx context.Context, id string, fn func(*session.Session) error) (session.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return session.Session{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var payload []byte
	if err := tx.QueryRowContext(ctx, `
SELECT record
FROM pipeline_session
WHERE session_id = $1
FOR UPDATE`, id).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, fmt.Errorf("lock session: %w", err)
	}
	current, err := decode(payload)
	if err != nil {
		return session.Session{}, err
	}

	working := current
	if err := fn(&working); err != nil {
		return session.Session{}, err
	}
	working.ID = current.ID
	working.CreatedAt = current.CreatedAt
	working.UpdatedAt = s.now().UTC()

	encoded, err := json.Marshal(working)
	if err != nil {
		return session.Session{}, fmt.Errorf("encode session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE pipeline_session
SET state = $2, record = $3::jsonb, updated_at = $4
WHERE session_id = $1`, id, string(working.State), string(encoded), working.UpdatedAt); err != nil {
		return session.Session{}, fmt.Errorf("update session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return session.Session{}, fmt.Errorf("commit session update: %w", err)
	}
	return working, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pipeline_session WHERE session_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows affected: %w", err)
	}
	if deleted == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM pipeline_session WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep sessions rows affected: %w", err)
	}
	return int(removed), nil
}

func (s *Store) Len(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_session`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

func decode(payload []byte) (session.Session, error) {
	var out session.Session
	if err := json.Unmarshal(payload, &out); err != nil {
		return session.Session{}, fmt.Errorf("decode session: %w", err)
	}
	return out, nil
}
