package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	duckdb "github.com/marcboeker/go-duckdb/v2"

	"github.com/reportql/reportql/internal/query"
	"github.com/reportql/reportql/internal/storage"
)

var (
	errEmptyStatement = errors.New("sql is required")
	errNotReadOnly    = errors.New("only read-only SELECT/WITH statements are allowed")
	errNoFiles        = errors.New("dataset has no files")
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Engine answers report statements with a throwaway in-memory DuckDB. Each
// call stages the dataset's parquet files locally and exposes them as views,
// so statements address the subject table by name.
type Engine struct {
	Store storage.ObjectStore
}

func NewEngine(store storage.ObjectStore) *Engine {
	return &Engine{Store: store}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if err := e.validate(request); err != nil {
		return query.Result{}, err
	}

	start := time.Now()
	staged, err := stageDataset(ctx, e.Store, request.Files)
	if err != nil {
		return query.Result{}, err
	}
	defer staged.cleanup()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := staged.attach(ctx, db); err != nil {
		return query.Result{}, err
	}

	columns, rows, err := runStatement(ctx, db, limitStatement(request.SQL, request.RowLimit))
	if err != nil {
		return query.Result{}, err
	}
	return query.Result{
		Columns:      columns,
		Rows:         rows,
		ScannedFiles: len(request.Files),
		ScannedBytes: staged.bytes,
		Duration:     time.Since(start),
	}, nil
}

func (e *Engine) validate(request query.Request) error {
	switch {
	case strings.TrimSpace(request.SQL) == "":
		return errEmptyStatement
	case !query.IsReadOnly(request.SQL):
		return errNotReadOnly
	case len(request.Files) == 0:
		return errNoFiles
	case e.Store == nil:
		return errors.New("object store is required")
	}
	return nil
}

// limitStatement drops trailing semicolons and wraps the statement in a
// LIMIT when rowLimit is positive.
func limitStatement(statement string, rowLimit int) string {
	trimmed := strings.TrimSpace(statement)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	if rowLimit <= 0 {
		return trimmed
	}
	return fmt.Sprintf("SELECT * FROM (%s) AS report LIMIT %d", trimmed, rowLimit)
}

func runStatement(ctx context.Context, db *sql.DB, statement string) ([]string, [][]any, error) {
	rows, err := db.QueryContext(ctx, statement)
	if err != nil {
		return nil, nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}

	out := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		for i, value := range values {
			values[i] = cellValue(value)
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, out, nil
}

// cellValue maps driver types onto values the formatter and JSON encoder
// understand.
func cellValue(value any) any {
	switch typed := value.(type) {
	case []byte:
		return string(typed)
	case duckdb.Decimal:
		return typed.Float64()
	case *big.Int:
		if typed == nil {
			return nil
		}
		if typed.IsInt64() {
			return typed.Int64()
		}
		return typed.String()
	case time.Time:
		return typed.UTC()
	case int32:
		return int64(typed)
	case float32:
		return float64(typed)
	default:
		return typed
	}
}
