package duckdb

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/reportql/reportql/internal/query"
	"github.com/reportql/reportql/internal/storage"
)

// stagedDataset is a local copy of a request's parquet files, grouped by the
// view each file backs.
type stagedDataset struct {
	dir   string
	views map[string][]string
	order []string
	bytes int64
}

func stageDataset(ctx context.Context, store storage.ObjectStore, files []query.TableFile) (*stagedDataset, error) {
	dir, err := os.MkdirTemp("", "reportql-query-")
	if err != nil {
		return nil, fmt.Errorf("create query temp dir: %w", err)
	}
	staged := &stagedDataset{dir: dir, views: map[string][]string{}}
	for index, file := range files {
		localPath, err := staged.download(ctx, store, file, index)
		if err != nil {
			staged.cleanup()
			return nil, err
		}
		if _, seen := staged.views[file.TableName]; !seen {
			staged.order = append(staged.order, file.TableName)
		}
		staged.views[file.TableName] = append(staged.views[file.TableName], localPath)
	}
	return staged, nil
}

func (s *stagedDataset) download(ctx context.Context, store storage.ObjectStore, file query.TableFile, index int) (string, error) {
	reader, err := store.Get(ctx, file.ObjectPath)
	if err != nil {
		return "", fmt.Errorf("get object %q: %w", file.ObjectPath, err)
	}
	defer func() { _ = reader.Close() }()

	localPath := filepath.Join(s.dir, fmt.Sprintf("%s_%03d.parquet", localName(file.TableName), index))
	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("create local parquet file: %w", err)
	}
	written, err := io.Copy(out, reader)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("stage object %q: %w", file.ObjectPath, err)
	}
	if file.FileSizeBytes > 0 {
		written = file.FileSizeBytes
	}
	s.bytes += written
	return localPath, nil
}

// attach exposes every staged group as a view named after its table.
func (s *stagedDataset) attach(ctx context.Context, db execer) error {
	for _, view := range s.order {
		statement := fmt.Sprintf(
			`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s, union_by_name = true)`,
			quoteIdent(view), quoteStringList(s.views[view]),
		)
		if _, err := db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("create view %q: %w", view, err)
		}
	}
	return nil
}

func (s *stagedDataset) cleanup() {
	_ = os.RemoveAll(s.dir)
}

func localName(table string) string {
	name := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(table)
	if name == "" {
		return "table"
	}
	return name
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringList(values []string) string {
	quoted := make([]string, len(values))
	for i, value := range values {
		quoted[i] = `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
	}
	return "[" + strings.Join(quoted, ",") + "]"
}
