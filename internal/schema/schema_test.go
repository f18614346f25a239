package schema

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/reportql/reportql/internal/storage"
)

func TestStaticCatalogAggregatableColumns(t *testing.T) {
	catalog, err := NewStaticCatalog("transactions", []Column{
		{Name: "asset", Type: TypeString},
		{Name: "shortTermGainLoss", Type: TypeDecimal, Aggregatable: true},
		{Name: "longTermGainLoss", Type: TypeDecimal, Aggregatable: true},
	})
	if err != nil {
		t.Fatalf("NewStaticCatalog() error = %v", err)
	}
	got := catalog.AggregatableColumns()
	if len(got) != 2 || got[0] != "longTermGainLoss" || got[1] != "shortTermGainLoss" {
		t.Fatalf("AggregatableColumns() = %v", got)
	}
	if _, ok := catalog.Lookup("ASSET"); !ok {
		t.Fatal("expected case-insensitive lookup")
	}
	if !strings.Contains(catalog.Describe(), "shortTermGainLoss (decimal, aggregatable)") {
		t.Fatalf("Describe() = %q", catalog.Describe())
	}
}

func TestStaticCatalogRejectsDuplicateColumns(t *testing.T) {
	_, err := NewStaticCatalog("t", []Column{{Name: "a"}, {Name: "A"}})
	if err == nil {
		t.Fatal("expected duplicate column error")
	}
}

type txRow struct {
	ID        int64     `parquet:"id"`
	Asset     string    `parquet:"asset"`
	Amount    float64   `parquet:"amount"`
	Timestamp time.Time `parquet:"timestamp,timestamp"`
}

func TestFromParquetDerivesColumnTypes(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[txRow](buf)
	if _, err := writer.Write([]txRow{{ID: 1, Asset: "ETH", Amount: 1.5, Timestamp: time.Now().UTC()}}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	store := &memoryStore{objects: map[string][]byte{"transactions/part-0.parquet": buf.Bytes()}}
	catalog, err := FromParquet(context.Background(), store, "transactions", "transactions/part-0.parquet", ParquetOptions{
		NonAggregatable: []string{"id"},
	})
	if err != nil {
		t.Fatalf("FromParquet() error = %v", err)
	}

	amount, ok := catalog.Lookup("amount")
	if !ok || !amount.Aggregatable || amount.Type != TypeDecimal {
		t.Fatalf("amount column = %+v", amount)
	}
	id, _ := catalog.Lookup("id")
	if id.Aggregatable {
		t.Fatal("id should be excluded from aggregation")
	}
	asset, _ := catalog.Lookup("asset")
	if asset.Type != TypeString {
		t.Fatalf("asset type = %q", asset.Type)
	}
	ts, _ := catalog.Lookup("timestamp")
	if ts.Type != TypeTimestamp {
		t.Fatalf("timestamp type = %q", ts.Type)
	}
}

type memoryStore struct {
	objects map[string][]byte
}

func (m *memoryStore) Put(context.Context, string, io.Reader, int64, storage.PutOptions) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) Stat(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, nil
}

func (m *memoryStore) Delete(context.Context, string) error {
	return nil
}

func (m *memoryStore) List(context.Context, string) ([]storage.ObjectInfo, error) {
	return nil, nil
}
