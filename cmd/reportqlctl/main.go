package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/reportql/reportql/internal/cli/reportqlctl"
	"github.com/reportql/reportql/internal/config"
)

const defaultTimeout = 30 * time.Second

func main() {
	lookup, err := config.EnvLookup()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "environment: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := reportqlctl.Run(ctx, os.Args[1:], reportqlctl.Options{
		BaseURL: setting(lookup, "REPORTQL_API_URL", "http://localhost:8080"),
		Timeout: timeoutSetting(lookup),
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	})
	stop()
	os.Exit(code)
}

func setting(lookup config.LookupFunc, key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func timeoutSetting(lookup config.LookupFunc) time.Duration {
	raw := setting(lookup, "REPORTQL_CLI_TIMEOUT", "")
	if raw == "" {
		return defaultTimeout
	}
	timeout, err := time.ParseDuration(raw)
	if err != nil || timeout <= 0 {
		_, _ = fmt.Fprintf(os.Stderr, "ignoring REPORTQL_CLI_TIMEOUT %q; using %s\n", raw, defaultTimeout)
		return defaultTimeout
	}
	return timeout
}
