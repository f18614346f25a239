package nl2sql

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/reportql/reportql/internal/schema"
)

type scriptedCompleter struct {
	mu         sync.Mutex
	population string
	shape      string
	correction string
	err        error
	prompts    []string
}

func (c *scriptedCompleter) Complete(_ context.Context, system, user string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, user)
	if c.err != nil {
		return "", c.err
	}
	switch system {
	case populationSystemPrompt:
		return c.population, nil
	case shapeSystemPrompt:
		return c.shape, nil
	case correctionSystemPrompt:
		return c.correction, nil
	default:
		return "", errors.New("unexpected prompt")
	}
}

func testCatalog(t *testing.T) *schema.StaticCatalog {
	t.Helper()
	catalog, err := schema.NewStaticCatalog("transactions", []schema.Column{
		{Name: "asset", Type: schema.TypeString},
		{Name: "wallet", Type: schema.TypeString},
		{Name: "timestamp", Type: schema.TypeTimestamp},
		{Name: "shortTermGainLoss", Type: schema.TypeDecimal, Aggregatable: true},
		{Name: "longTermGainLoss", Type: schema.TypeDecimal, Aggregatable: true},
	})
	if err != nil {
		t.Fatalf("NewStaticCatalog() error = %v", err)
	}
	return catalog
}
