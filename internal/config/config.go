package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const envPrefix = "REPORTQL_"

type SessionBackend string

const (
	SessionBackendMemory   SessionBackend = "memory"
	SessionBackendPostgres SessionBackend = "postgres"
)

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Dataset       DatasetConfig
	ObjectStore   ObjectStoreConfig
	Session       SessionConfig
	Pipeline      PipelineConfig
	AI            AIConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds one report query end to end; zero disables it.
	RequestTimeout time.Duration
}

// DatasetConfig names the reporting table and where its Parquet files live
// inside the object store.
type DatasetConfig struct {
	Subject         string
	Prefix          string
	NonAggregatable []string
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type SessionConfig struct {
	Backend         SessionBackend
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
	MaxAge          time.Duration
	SweepInterval   time.Duration
}

type PipelineConfig struct {
	ConfirmationThreshold float64
	MaxRetries            int
	DiscloseSQL           bool
	RowLimit              int
	MaxResultRows         int
}

type AIConfig struct {
	Enabled     bool
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

// LoadFromEnv reads the process environment layered over an optional env
// file (REPORTQL_ENV_FILE, default ".env"). A missing default file is ignored.
func LoadFromEnv(serviceName string) (Config, error) {
	lookup, err := EnvLookup()
	if err != nil {
		return Config{}, err
	}
	return Load(serviceName, lookup)
}

// EnvLookup reads the process environment backed by REPORTQL_ENV_FILE, or
// ./.env when that is unset. A missing default file is not an error.
func EnvLookup() (LookupFunc, error) {
	path, explicit := os.LookupEnv(envPrefix + "ENV_FILE")
	if strings.TrimSpace(path) == "" {
		path, explicit = ".env", false
	}
	lookup, err := WithEnvFile(path, os.LookupEnv)
	if err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		return os.LookupEnv, nil
	}
	return lookup, nil
}

// WithEnvFile returns a lookup that consults base first and falls back to the
// values parsed from the env file at path.
func WithEnvFile(path string, base LookupFunc) (LookupFunc, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return func(key string) (string, bool) {
		if base != nil {
			if value, ok := base(key); ok {
				return value, true
			}
		}
		value, ok := values[key]
		return value, ok
	}, nil
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup(envPrefix + "PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid %sPROFILE: %q", envPrefix, profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	var backend string
	appliers := []func() error{
		func() error { return applyString(lookup, "SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyDuration(lookup, "HTTP_REQUEST_TIMEOUT", &cfg.HTTP.RequestTimeout) },
		func() error { return applyString(lookup, "DATASET_SUBJECT", &cfg.Dataset.Subject) },
		func() error { return applyString(lookup, "DATASET_PREFIX", &cfg.Dataset.Prefix) },
		func() error { return applyList(lookup, "DATASET_NON_AGGREGATABLE", &cfg.Dataset.NonAggregatable) },
		func() error { return applyString(lookup, "OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error { return applyBool(lookup, "OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket) },
		func() error { return applyString(lookup, "SESSION_BACKEND", &backend) },
		func() error { return applyString(lookup, "SESSION_DSN", &cfg.Session.DSN) },
		func() error { return applyInt(lookup, "SESSION_MAX_OPEN_CONNS", &cfg.Session.MaxOpenConns) },
		func() error { return applyInt(lookup, "SESSION_MAX_IDLE_CONNS", &cfg.Session.MaxIdleConns) },
		func() error { return applyDuration(lookup, "SESSION_CONN_MAX_IDLE_TIME", &cfg.Session.ConnMaxIdleTime) },
		func() error { return applyDuration(lookup, "SESSION_CONN_MAX_LIFETIME", &cfg.Session.ConnMaxLifetime) },
		func() error { return applyDuration(lookup, "SESSION_MAX_AGE", &cfg.Session.MaxAge) },
		func() error { return applyDuration(lookup, "SESSION_SWEEP_INTERVAL", &cfg.Session.SweepInterval) },
		func() error {
			return applyFloat(lookup, "PIPELINE_CONFIRMATION_THRESHOLD", &cfg.Pipeline.ConfirmationThreshold)
		},
		func() error { return applyInt(lookup, "PIPELINE_MAX_RETRIES", &cfg.Pipeline.MaxRetries) },
		func() error { return applyBool(lookup, "PIPELINE_DISCLOSE_SQL", &cfg.Pipeline.DiscloseSQL) },
		func() error { return applyInt(lookup, "PIPELINE_ROW_LIMIT", &cfg.Pipeline.RowLimit) },
		func() error { return applyInt(lookup, "PIPELINE_MAX_RESULT_ROWS", &cfg.Pipeline.MaxResultRows) },
		func() error { return applyBool(lookup, "AI_ENABLED", &cfg.AI.Enabled) },
		func() error { return applyString(lookup, "AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyBool(lookup, "LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}
	if backend != "" {
		cfg.Session.Backend = SessionBackend(strings.ToLower(backend))
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch {
	case c.Service.Name == "":
		return fmt.Errorf("service name is required")
	case c.HTTP.Address == "":
		return fmt.Errorf("http address is required")
	case c.HTTP.RequestTimeout < 0:
		return fmt.Errorf("http request timeout must be >= 0, got %s", c.HTTP.RequestTimeout)
	case c.Dataset.Subject == "":
		return fmt.Errorf("dataset subject is required")
	case c.Pipeline.ConfirmationThreshold <= 0 || c.Pipeline.ConfirmationThreshold > 1:
		return fmt.Errorf("confirmation threshold must be in (0, 1], got %v", c.Pipeline.ConfirmationThreshold)
	case c.Pipeline.MaxRetries < 0:
		return fmt.Errorf("max retries must be >= 0, got %d", c.Pipeline.MaxRetries)
	case c.Session.MaxAge <= 0:
		return fmt.Errorf("session max age must be positive")
	case c.Session.SweepInterval <= 0:
		return fmt.Errorf("session sweep interval must be positive")
	}
	switch c.Session.Backend {
	case SessionBackendMemory:
	case SessionBackendPostgres:
		if c.Session.DSN == "" {
			return fmt.Errorf("%sSESSION_DSN is required for the postgres session backend", envPrefix)
		}
	default:
		return fmt.Errorf("invalid %sSESSION_BACKEND: %q", envPrefix, c.Session.Backend)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "reportql-api"},
		HTTP: HTTPConfig{
			Address:        ":8080",
			ReadTimeout:    5 * time.Second,
			WriteTimeout:   90 * time.Second,
			IdleTimeout:    60 * time.Second,
			RequestTimeout: 60 * time.Second,
		},
		Dataset: DatasetConfig{
			Subject: "transactions",
			Prefix:  "datasets",
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "reportql",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "",
			AutoCreateBucket: true,
		},
		Session: SessionConfig{
			Backend:         SessionBackendMemory,
			DSN:             "",
			MaxOpenConns:    20,
			MaxIdleConns:    20,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: 30 * time.Minute,
			MaxAge:          30 * time.Minute,
			SweepInterval:   time.Minute,
		},
		Pipeline: PipelineConfig{
			ConfirmationThreshold: 0.99,
			MaxRetries:            2,
			DiscloseSQL:           true,
			RowLimit:              10000,
			MaxResultRows:         500,
		},
		AI: AIConfig{
			Enabled:     false,
			BaseURL:     "https://api.openai.com",
			Model:       "gpt-5",
			Temperature: 0.1,
			Timeout:     20 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Observability.LogLevel = slog.LevelWarn
		cfg.Session.SweepInterval = time.Second
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
		cfg.Pipeline.DiscloseSQL = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func lookupKey(lookup LookupFunc, key string) (string, bool) {
	raw, ok := lookup(envPrefix + key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(raw), true
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	if raw, ok := lookupKey(lookup, key); ok {
		*dst = raw
	}
	return nil
}

func applyList(lookup LookupFunc, key string, dst *[]string) error {
	raw, ok := lookupKey(lookup, key)
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

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookupKey(lookup, key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookupKey(lookup, key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookupKey(lookup, key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookupKey(lookup, key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookupKey(lookup, key)
	if !ok {
		return nil
	}
	switch strings.ToLower(raw) {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s%s: %q", envPrefix, key, raw)
	}
	return nil
}
