package dataset

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Config struct {
	Rows    int
	Months  int
	End     time.Time
	Wallets []string
	Assets  []string
	Seed    int64
	Replace bool
}

func DefaultConfig() Config {
	return Config{
		Rows:    5000,
		Months:  12,
		End:     time.Now().UTC(),
		Wallets: []string{"Main", "Hot", "Treasury", "Cold Storage"},
		Assets:  []string{"BTC", "ETH", "SOL", "USDC", "ADA"},
		Seed:    time.Now().UTC().UnixNano(),
		Replace: true,
	}
}

func LoadConfigFromEnv(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	cfg := DefaultConfig()
	if err := applyInt(lookup, "REPORTQL_SEED_ROWS", &cfg.Rows); err != nil {
		return Config{}, err
	}
	if err := applyInt(lookup, "REPORTQL_SEED_MONTHS", &cfg.Months); err != nil {
		return Config{}, err
	}
	if err := applyMonth(lookup, "REPORTQL_SEED_END_MONTH", &cfg.End); err != nil {
		return Config{}, err
	}
	if err := applyList(lookup, "REPORTQL_SEED_WALLETS", &cfg.Wallets); err != nil {
		return Config{}, err
	}
	if err := applyList(lookup, "REPORTQL_SEED_ASSETS", &cfg.Assets); err != nil {
		return Config{}, err
	}
	if err := applyInt64(lookup, "REPORTQL_SEED_SEED", &cfg.Seed); err != nil {
		return Config{}, err
	}
	if err := applyBool(lookup, "REPORTQL_SEED_REPLACE", &cfg.Replace); err != nil {
		return Config{}, err
	}

	if cfg.Rows <= 0 {
		return Config{}, fmt.Errorf("REPORTQL_SEED_ROWS must be > 0")
	}
	if cfg.Months <= 0 {
		return Config{}, fmt.Errorf("REPORTQL_SEED_MONTHS must be > 0")
	}
	if len(cfg.Wallets) == 0 {
		return Config{}, fmt.Errorf("REPORTQL_SEED_WALLETS must not be empty")
	}
	if len(cfg.Assets) == 0 {
		return Config{}, fmt.Errorf("REPORTQL_SEED_ASSETS must not be empty")
	}
	return cfg, nil
}

func applyMonth(lookup LookupFunc, key string, dst *time.Time) error {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	v, err := time.Parse("2006-01", strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v.UTC()
	return nil
}

func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	values := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	*dst = values
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}

func applyInt64(lookup LookupFunc, key string, dst *int64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = v
	return nil
}
