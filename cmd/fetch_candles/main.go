// Command fetch_candles pulls a candle range from the source and writes it
// to CSV for offline inspection.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"marketStructureBot/config"
	"marketStructureBot/internal/adapters/binanceclient"
	"marketStructureBot/internal/adapters/logger"
	"marketStructureBot/internal/domain"
	"marketStructureBot/internal/utils"
)

func main() {
	pair := flag.String("pair", "ETHUSDT", "pair symbol")
	tfFlag := flag.String("timeframe", "1h", "timeframe (5m, 15m, 30m, 1h, 4h, 1d, 1w, 1M)")
	days := flag.Int("days", 90, "how many days back to fetch")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	tf, err := domain.ParseTimeframe(*tfFlag)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	source, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize candle source: %v", err)
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -*days)

	candles, err := source.FetchCandles(context.Background(), *pair, tf, start, end)
	if err != nil {
		log.Fatalf("FATAL: Fetching candles failed: %v", err)
	}
	appLogger.Info(context.Background(), "Fetched candles", map[string]interface{}{"pair": *pair, "timeframe": tf, "count": len(candles)})

	filename := fmt.Sprintf("data/%s_%s_%s_to_%s.csv", *pair, tf, start.Format("20060102"), end.Format("20060102"))
	if err := utils.WriteCandlesToCSV(candles, filename); err != nil {
		log.Fatalf("FATAL: Writing CSV failed: %v", err)
	}
	appLogger.Info(context.Background(), "Saved candles", map[string]interface{}{"filename": filename})
}
