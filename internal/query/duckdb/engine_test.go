package duckdb

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/reportql/reportql/internal/query"
	"github.com/reportql/reportql/internal/storage"
)

type txRow struct {
	Asset             string  `parquet:"asset"`
	Wallet            string  `parquet:"wallet"`
	ShortTermGainLoss float64 `parquet:"shortTermGainLoss"`
}

func TestExecuteAggregatesParquetThroughObjectStore(t *testing.T) {
	engine := newTestEngine(t, []txRow{
		{Asset: "ETH", Wallet: "Hot", ShortTermGainLoss: 10},
		{Asset: "ETH", Wallet: "Treasury", ShortTermGainLoss: 5},
		{Asset: "BTC", Wallet: "Hot", ShortTermGainLoss: 7},
	})

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:   `SELECT asset, SUM(shortTermGainLoss) AS total FROM transactions WHERE wallet <> 'Treasury' GROUP BY asset ORDER BY asset`,
		Files: testFiles(engine),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Rows[0][0] != "BTC" || result.Rows[0][1] != float64(7) {
		t.Fatalf("first row = %#v", result.Rows[0])
	}
	if result.ScannedFiles != 1 || result.ScannedBytes == 0 {
		t.Fatalf("scan stats = %d/%d", result.ScannedFiles, result.ScannedBytes)
	}
}

func TestExecuteSupportsTrailingSemicolonWithRowLimit(t *testing.T) {
	engine := newTestEngine(t, []txRow{{Asset: "ETH"}, {Asset: "BTC"}, {Asset: "SOL"}})

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:      "SELECT asset FROM transactions;",
		RowLimit: 2,
		Files:    testFiles(engine),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
}

func TestExecuteReportsUnknownColumn(t *testing.T) {
	engine := newTestEngine(t, []txRow{{Asset: "ETH"}})

	_, err := engine.Execute(context.Background(), query.Request{
		SQL:   "SELECT SUM(gain) FROM transactions",
		Files: testFiles(engine),
	})
	if err == nil {
		t.Fatal("expected binder error")
	}
	if !strings.Contains(strings.ToLower(err.Error()), "not found") {
		t.Fatalf("error = %v", err)
	}
}

func TestExecuteRejectsWrites(t *testing.T) {
	engine := NewEngine(&memoryStore{})
	_, err := engine.Execute(context.Background(), query.Request{
		SQL:   "DROP TABLE transactions",
		Files: []query.TableFile{{TableName: "transactions", ObjectPath: "x"}},
	})
	if err == nil {
		t.Fatal("expected read-only rejection")
	}
}

const testKey = "transactions/month=2025-03/part-00000.parquet"

func newTestEngine(t *testing.T, rows []txRow) *Engine {
	t.Helper()
	data, err := buildParquet(rows)
	if err != nil {
		t.Fatalf("buildParquet() error = %v", err)
	}
	return NewEngine(&memoryStore{objects: map[string][]byte{testKey: data}})
}

func testFiles(engine *Engine) []query.TableFile {
	store := engine.Store.(*memoryStore)
	return []query.TableFile{{
		TableName:     "transactions",
		ObjectPath:    testKey,
		FileSizeBytes: int64(len(store.objects[testKey])),
	}}
}

func buildParquet(rows []txRow) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[txRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
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

func TestExecuteCountsStagedBytesWhenSizeUnknown(t *testing.T) {
	engine := newTestEngine(t, []txRow{{Asset: "ETH"}})
	files := testFiles(engine)
	want := files[0].FileSizeBytes
	files[0].FileSizeBytes = 0

	result, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT COUNT(*) FROM transactions", Files: files})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.ScannedBytes != want {
		t.Fatalf("ScannedBytes = %d, want %d", result.ScannedBytes, want)
	}
	if result.Rows[0][0] != int64(1) {
		t.Fatalf("count = %#v", result.Rows[0][0])
	}
}

func TestExecuteReportsMissingObject(t *testing.T) {
	engine := NewEngine(&memoryStore{objects: map[string][]byte{}})
	_, err := engine.Execute(context.Background(), query.Request{
		SQL:   "SELECT 1",
		Files: []query.TableFile{{TableName: "transactions", ObjectPath: "missing.parquet"}},
	})
	if !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("error = %v, want ErrObjectNotFound", err)
	}
}

func TestLimitStatement(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{in: " SELECT 1 ;; ", want: "SELECT 1"},
		{in: "SELECT 1;", limit: 5, want: "SELECT * FROM (SELECT 1) AS report LIMIT 5"},
	}
	for _, tc := range tests {
		if got := limitStatement(tc.in, tc.limit); got != tc.want {
			t.Fatalf("limitStatement(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}

func TestLocalNameAndQuoting(t *testing.T) {
	if got := localName("../a/b"); got != "__a_b" {
		t.Fatalf("localName() = %q", got)
	}
	if got := localName(""); got != "table" {
		t.Fatalf("localName(empty) = %q", got)
	}
	if got := quoteIdent(`tx"s`); got != `"tx""s"` {
		t.Fatalf("quoteIdent() = %s", got)
	}
	if got := quoteStringList([]string{"a", "b'c"}); got != `['a','b''c']` {
		t.Fatalf("quoteStringList() = %s", got)
	}
}
