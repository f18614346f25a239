package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"
)

var ErrObjectNotFound = errors.New("object not found")

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type PutOptions struct {
	ContentType string
}

// ObjectStore holds the Parquet files that make up a reporting dataset.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ListDatasetFiles returns the parquet objects under a subject's prefix in
// key order. Month partitions therefore come back oldest first.
func ListDatasetFiles(ctx context.Context, store ObjectStore, prefix, subject string) ([]ObjectInfo, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	objects, err := store.List(ctx, DatasetPrefix(prefix, subject))
	if err != nil {
		return nil, fmt.Errorf("list dataset files: %w", err)
	}
	files := objects[:0:0]
	for _, object := range objects {
		if IsParquetKey(object.Key) {
			files = append(files, object)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, nil
}
