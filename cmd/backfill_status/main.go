// Command backfill_status prints the latest backfill progress row per
// (pair, timeframe, month). Read-only operational surface.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"marketStructureBot/config"
	"marketStructureBot/internal/adapters/logger"
	"marketStructureBot/internal/adapters/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	cold, err := postgres.New(postgres.Config{DSN: cfg.PostgresDSN, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize cold tier store: %v", err)
	}
	defer cold.Close()

	rows, err := cold.ListProgress(context.Background())
	if err != nil {
		log.Fatalf("FATAL: Failed to list backfill progress: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PAIR\tTIMEFRAME\tMONTH\tSTATUS\tROWS\tRECORDED")
	for _, p := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			p.Pair, p.Timeframe, p.YearMonth, p.Status, p.RowsWritten,
			p.RecordedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}
