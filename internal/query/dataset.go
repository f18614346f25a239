package query

import (
	"context"
	"fmt"

	"github.com/reportql/reportql/internal/storage"
)

// Dataset resolves the Parquet files backing the reporting subject table.
type Dataset struct {
	Store   storage.ObjectStore
	Subject string
	Prefix  string
}

func (d Dataset) Files(ctx context.Context) ([]TableFile, error) {
	objects, err := storage.ListDatasetFiles(ctx, d.Store, d.Prefix, d.Subject)
	if err != nil {
		return nil, err
	}
	files := make([]TableFile, 0, len(objects))
	for _, object := range objects {
		files = append(files, TableFile{
			TableName:     d.Subject,
			ObjectPath:    object.Key,
			FileSizeBytes: object.Size,
		})
	}
	return files, nil
}

// Runner binds an engine to a dataset so callers only supply SQL.
type Runner struct {
	Engine   Engine
	Dataset  Dataset
	RowLimit int
}

func (r *Runner) RunQuery(ctx context.Context, sqlText string) (Result, error) {
	if r.Engine == nil {
		return Result{}, fmt.Errorf("query engine is required")
	}
	files, err := r.Dataset.Files(ctx)
	if err != nil {
		return Result{}, err
	}
	return r.Engine.Execute(ctx, Request{
		SQL:      sqlText,
		RowLimit: r.RowLimit,
		Files:    files,
	})
}
