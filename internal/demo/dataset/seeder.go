package dataset

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/reportql/reportql/internal/storage"
)

type Seeder struct {
	Store   storage.ObjectStore
	Prefix  string
	Subject string
	Logger  *slog.Logger
}

type SeedResult struct {
	Files []storage.ObjectInfo
	Rows  int
}

// Seed writes transactions as one Parquet file per calendar month. With
// replace set, existing files under the dataset prefix are removed first.
func (s *Seeder) Seed(ctx context.Context, transactions []Transaction, replace bool) (SeedResult, error) {
	if s.Store == nil {
		return SeedResult{}, fmt.Errorf("object store is required")
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if replace {
		removed, err := s.clear(ctx)
		if err != nil {
			return SeedResult{}, err
		}
		if removed > 0 {
			logger.InfoContext(ctx, "removed existing dataset files", slog.Int("count", removed))
		}
	}

	byMonth := make(map[time.Time][]Transaction)
	for _, tx := range transactions {
		ts := tx.Timestamp.UTC()
		month := time.Date(ts.Year(), ts.Month(), 1, 0, 0, 0, 0, time.UTC)
		byMonth[month] = append(byMonth[month], tx)
	}
	months := make([]time.Time, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	result := SeedResult{Files: make([]storage.ObjectInfo, 0, len(months))}
	for _, month := range months {
		rows := byMonth[month]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Timestamp.Before(rows[j].Timestamp) })

		key, err := storage.BuildDatasetFilePath(s.Prefix, s.Subject, month, 0)
		if err != nil {
			return result, fmt.Errorf("build dataset path: %w", err)
		}
		data, err := EncodeParquet(rows)
		if err != nil {
			return result, fmt.Errorf("encode %s: %w", key, err)
		}
		info, err := s.Store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{ContentType: "application/vnd.apache.parquet"})
		if err != nil {
			return result, fmt.Errorf("put %s: %w", key, err)
		}
		result.Files = append(result.Files, info)
		result.Rows += len(rows)
		logger.DebugContext(ctx, "wrote dataset file", slog.String("key", key), slog.Int("rows", len(rows)))
	}
	return result, nil
}

func (s *Seeder) clear(ctx context.Context) (int, error) {
	objects, err := storage.ListDatasetFiles(ctx, s.Store, s.Prefix, s.Subject)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, object := range objects {
		if err := s.Store.Delete(ctx, object.Key); err != nil {
			return removed, fmt.Errorf("delete %s: %w", object.Key, err)
		}
		removed++
	}
	return removed, nil
}

func EncodeParquet(rows []Transaction) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[Transaction](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
