package dataset

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnvDefaults(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapLookup(map[string]string{}))
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if cfg.Rows != 5000 || cfg.Months != 12 {
		t.Fatalf("Rows/Months = %d/%d", cfg.Rows, cfg.Months)
	}
	if len(cfg.Wallets) == 0 || len(cfg.Assets) == 0 {
		t.Fatalf("Wallets/Assets = %v/%v", cfg.Wallets, cfg.Assets)
	}
	if !cfg.Replace {
		t.Fatal("Replace should default to true")
	}
}

func TestLoadConfigFromEnvOverrides(t *testing.T) {
	cfg, err := LoadConfigFromEnv(mapLookup(map[string]string{
		"REPORTQL_SEED_ROWS":      "120",
		"REPORTQL_SEED_MONTHS":    "3",
		"REPORTQL_SEED_END_MONTH": "2025-03",
		"REPORTQL_SEED_WALLETS":   "Main, Hot ,",
		"REPORTQL_SEED_ASSETS":    "ETH",
		"REPORTQL_SEED_SEED":      "7",
		"REPORTQL_SEED_REPLACE":   "false",
	}))
	if err != nil {
		t.Fatalf("LoadConfigFromEnv() error = %v", err)
	}
	if cfg.Rows != 120 || cfg.Months != 3 || cfg.Seed != 7 || cfg.Replace {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.End.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("End = %s", cfg.End)
	}
	if len(cfg.Wallets) != 2 || cfg.Wallets[1] != "Hot" {
		t.Fatalf("Wallets = %v", cfg.Wallets)
	}
}

func TestLoadConfigFromEnvRejectsInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"REPORTQL_SEED_ROWS": "0"},
		{"REPORTQL_SEED_MONTHS": "abc"},
		{"REPORTQL_SEED_END_MONTH": "March"},
		{"REPORTQL_SEED_WALLETS": " , "},
		{"REPORTQL_SEED_REPLACE": "maybe"},
	}
	for _, env := range tests {
		if _, err := LoadConfigFromEnv(mapLookup(env)); err == nil {
			t.Fatalf("LoadConfigFromEnv() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
