// Command etl ingests accounting data from a Tally ERP instance into a
// relational analytics warehouse. Each invocation runs exactly one of the
// subcommands below, then exits.
//
// Usage:
//
//	etl run
//	etl backfill --from 2026-01-01 --to 2026-03-31 [--dry-run]
//	etl clear_and_reload --from 2026-01-01 --to 2026-01-31
//	etl sync_masters
//	etl reconcile_bills
//
// Environment Variables:
//
//	DATABASE_URL, DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME - PostgreSQL connection
//	NATS_URL - optional NATS server URL for run-completion events
//	TALLY_HOST, TALLY_PORT, TALLY_COMPANY - Tally ERP connection
//	APP_ENV, LOG_LEVEL - logging (APP_ENV=production selects JSON output)
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/veerababumanyam/tallywarehouse/internal/config"
	"github.com/veerababumanyam/tallywarehouse/internal/driver"
	"github.com/veerababumanyam/tallywarehouse/internal/events"
	"github.com/veerababumanyam/tallywarehouse/internal/tally"
	"github.com/veerababumanyam/tallywarehouse/internal/warehouse"
)

const dateLayout = "2006-01-02"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.MustLoad()
	config.InitLogger(string(cfg.App.Environment), cfg.App.LogLevel)
	logger := config.L().Logger
	cfg.LogConfig(logger)

	ctx := context.Background()

	if err := warehouse.ApplyMigrations(cfg.DatabaseDSN(), cfg.Database.MigrationsPath); err != nil {
		logger.Error("failed to apply migrations", slog.String("error", err.Error()))
		os.Exit(1)
	}

	repo, err := warehouse.NewRepo(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open warehouse", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer repo.Close()

	if err := repo.Ping(ctx); err != nil {
		logger.Error("failed to connect to warehouse database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var publisher *events.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = events.NewPublisher(cfg.NATS, logger)
		if err != nil {
			logger.Warn("NATS publisher unavailable, continuing without run events", slog.String("error", err.Error()))
		} else {
			defer publisher.Close()
		}
	}

	client := tally.NewClient(cfg.Tally, tally.WithLogger(logger))
	d := driver.New(client, repo, logger, cfg.ETL, cfg.Tally.Company)

	cmd := os.Args[1]
	args := os.Args[2:]

	var runErr error
	started := time.Now()
	stream := cfg.ETL.IncrementalStream

	switch cmd {
	case "run":
		runErr = d.RunIncremental(ctx)
	case "backfill":
		from, to, dryRun := parseRangeFlags("backfill", args, true)
		_, runErr = d.RunBackfill(ctx, from, to, dryRun)
	case "clear_and_reload":
		from, to, _ := parseRangeFlags("clear_and_reload", args, false)
		_, runErr = d.ClearAndReload(ctx, from, to)
	case "sync_masters":
		stream = "masters"
		runErr = d.SyncMasters(ctx)
	case "reconcile_bills":
		stream = "reconcile"
		_, runErr = d.ReconcileBills(ctx, time.Now())
	case "-h", "--help", "help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", cmd)
		usage()
		os.Exit(2)
	}

	publishOutcome(ctx, publisher, stream, started, runErr)

	if runErr != nil {
		logger.Error("run failed", slog.String("subcommand", cmd), slog.String("error", runErr.Error()))
		os.Exit(1)
	}

	logger.Info("run complete", slog.String("subcommand", cmd), slog.Duration("elapsed", time.Since(started)))
}

func parseRangeFlags(name string, args []string, allowDryRun bool) (from, to time.Time, dryRun bool) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fromStr := fs.String("from", "", "start date (YYYY-MM-DD)")
	toStr := fs.String("to", "", "end date (YYYY-MM-DD)")
	var dryRunFlag *bool
	if allowDryRun {
		dryRunFlag = fs.Bool("dry-run", false, "report what would change without writing")
	}
	fs.Parse(args)

	if *fromStr == "" || *toStr == "" {
		fmt.Fprintf(os.Stderr, "%s requires --from and --to (YYYY-MM-DD)\n", name)
		os.Exit(2)
	}

	var err error
	from, err = time.Parse(dateLayout, *fromStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --from date %q: %v\n", *fromStr, err)
		os.Exit(2)
	}
	to, err = time.Parse(dateLayout, *toStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --to date %q: %v\n", *toStr, err)
		os.Exit(2)
	}
	if to.Before(from) {
		fmt.Fprintf(os.Stderr, "--to (%s) must not be before --from (%s)\n", *toStr, *fromStr)
		os.Exit(2)
	}

	if dryRunFlag != nil {
		dryRun = *dryRunFlag
	}
	return from, to, dryRun
}

func publishOutcome(ctx context.Context, publisher *events.Publisher, stream string, started time.Time, runErr error) {
	if publisher == nil {
		return
	}

	if runErr != nil {
		publisher.PublishSyncFailed(ctx, &events.SyncFailedEvent{
			Source:      "tally",
			Stream:      stream,
			StartedAt:   started,
			FailedAt:    time.Now(),
			Error:       runErr.Error(),
			Retryable:   tally.IsRetryable(runErr),
			DurationSec: time.Since(started).Seconds(),
		})
		return
	}

	publisher.PublishSyncCompleted(ctx, &events.SyncCompletedEvent{
		Source:      "tally",
		Stream:      stream,
		StartedAt:   started,
		CompletedAt: time.Now(),
		DurationSec: time.Since(started).Seconds(),
	})
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: etl <subcommand> [flags]

subcommands:
  run                            load vouchers since the last checkpoint
  backfill --from D --to D [--dry-run]
                                  load vouchers over an explicit date range
  clear_and_reload --from D --to D
                                  re-upsert every voucher over a date range
  sync_masters                   fetch and upsert ledger/item/unit masters
  reconcile_bills                recompute the receivables aging facts

dates are YYYY-MM-DD.`)
}
