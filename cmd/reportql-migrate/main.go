package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"github.com/reportql/reportql/internal/config"
	"github.com/reportql/reportql/internal/migrations"
	sessionpostgres "github.com/reportql/reportql/internal/session/postgres"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up|down|status")
	steps := flag.Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	timeout := flag.Duration("timeout", 30*time.Second, "overall deadline for the migration run")
	flag.Parse()

	failed := pterm.Error.WithWriter(os.Stderr)
	action, ok := actions[*direction]
	if !ok {
		failed.Printfln("invalid direction %q (want up, down or status)", *direction)
		os.Exit(2)
	}

	cfg, err := config.LoadFromEnv("reportql-migrate")
	if err != nil {
		failed.Printfln("config: %v", err)
		os.Exit(1)
	}
	if cfg.Session.DSN == "" {
		failed.Println("REPORTQL_SESSION_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	db, err := sessionpostgres.Open(ctx, sessionpostgres.DBConfigFrom(cfg.Session, cfg.Service.Name))
	if err != nil {
		failed.Printfln("database: %v", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := action(ctx, migrations.NewRunner(), db, *steps); err != nil {
		failed.Printfln("%s: %v", *direction, err)
		os.Exit(1)
	}
}

type migrateFunc func(ctx context.Context, runner *migrations.Runner, db *sql.DB, steps int) error

var actions = map[string]migrateFunc{
	"up": func(ctx context.Context, runner *migrations.Runner, db *sql.DB, steps int) error {
		applied, err := runner.Up(ctx, db, steps)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("applied %d migration(s)", applied)
		return nil
	},
	"down": func(ctx context.Context, runner *migrations.Runner, db *sql.DB, steps int) error {
		rolledBack, err := runner.Down(ctx, db, steps)
		if err != nil {
			return err
		}
		pterm.Success.Printfln("rolled back %d migration(s)", rolledBack)
		return nil
	},
	"status": func(ctx context.Context, runner *migrations.Runner, db *sql.DB, _ int) error {
		statuses, err := runner.Status(ctx, db)
		if err != nil {
			return err
		}
		data := pterm.TableData{{"version", "name", "applied", "applied_at"}}
		for _, status := range statuses {
			appliedAt := "-"
			if status.Applied {
				appliedAt = status.AppliedAt.Format(time.RFC3339)
			}
			data = append(data, []string{fmt.Sprintf("%06d", status.Version), status.Name, strconv.FormatBool(status.Applied), appliedAt})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	},
}
