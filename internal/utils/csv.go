package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"marketStructureBot/internal/domain"
)

// WriteCandlesToCSV dumps candles for offline inspection.
func WriteCandlesToCSV(candles []domain.Candle, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{"open_time", "pair", "timeframe", "open", "high", "low", "close", "volume"})

	for _, c := range candles {
		writer.Write([]string{
			c.OpenTime.Format(time.RFC3339),
			c.Pair,
			string(c.Timeframe),
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		})
	}
	return writer.Error()
}
