package schema

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/reportql/reportql/internal/storage"
)

type ParquetOptions struct {
	// NonAggregatable lists numeric columns that must not be summed, such as ids.
	NonAggregatable []string
	Descriptions    map[string]string
}

// FromParquet derives a catalog from the footer of one dataset file.
func FromParquet(ctx context.Context, store storage.ObjectStore, subject, key string, opts ParquetOptions) (*StaticCatalog, error) {
	if store == nil {
		return nil, fmt.Errorf("object store is required")
	}
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get schema source %q: %w", key, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read schema source %q: %w", key, err)
	}
	columns, err := ParquetColumns(data, opts)
	if err != nil {
		return nil, fmt.Errorf("inspect schema source %q: %w", key, err)
	}
	return NewStaticCatalog(subject, columns)
}

func ParquetColumns(data []byte, opts ParquetOptions) ([]Column, error) {
	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet file: %w", err)
	}

	excluded := make(map[string]struct{}, len(opts.NonAggregatable))
	for _, name := range opts.NonAggregatable {
		excluded[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	columns := make([]Column, 0)
	for _, field := range file.Schema().Fields() {
		if !field.Leaf() {
			continue
		}
		columnType := parquetColumnType(field.Type())
		_, skip := excluded[strings.ToLower(field.Name())]
		columns = append(columns, Column{
			Name:         field.Name(),
			Type:         columnType,
			Aggregatable: IsAggregatableType(columnType) && !skip,
			Description:  opts.Descriptions[field.Name()],
		})
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("parquet schema has no leaf columns")
	}
	return columns, nil
}

func parquetColumnType(t parquet.Type) ColumnType {
	if logical := t.LogicalType(); logical != nil {
		switch {
		case logical.Timestamp != nil:
			return TypeTimestamp
		case logical.Date != nil:
			return TypeDate
		case logical.Decimal != nil:
			return TypeDecimal
		case logical.UTF8 != nil:
			return TypeString
		}
	}
	switch t.Kind() {
	case parquet.Boolean:
		return TypeBoolean
	case parquet.Int32, parquet.Int64:
		return TypeInteger
	case parquet.Float, parquet.Double:
		return TypeDecimal
	case parquet.Int96:
		return TypeTimestamp
	default:
		return TypeString
	}
}
