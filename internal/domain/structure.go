package domain

import "time"

// CurrentStructure is the periodic higher-timeframe snapshot kept for O(1)
// lookup by lower-timeframe consumers. One row per (pair, timeframe),
// fully overwritten on each recompute.
type CurrentStructure struct {
	Pair             string       `json:"pair"`
	Timeframe        Timeframe    `json:"timeframe"`
	Direction        Direction    `json:"direction"`
	LastBOSDirection Direction    `json:"last_bos_direction,omitempty"`
	LastBOSTime      *time.Time   `json:"last_bos_time,omitempty"`
	LastBOSLevel     float64      `json:"last_bos_level,omitempty"`
	SwingSequence    []SwingLabel `json:"swing_sequence"`
	ComputedAt       time.Time    `json:"computed_at"`
}

// KeyLevel is a prior-period reference price (e.g. previous day high).
type KeyLevel struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

// PDZone classifies where price sits inside a reference range.
type PDZone string

const (
	ZonePremium     PDZone = "premium"
	ZoneEquilibrium PDZone = "equilibrium"
	ZoneDiscount    PDZone = "discount"
)

// PremiumDiscount describes price position within a high/low range.
// Position is 0 at the range low and 1 at the range high.
type PremiumDiscount struct {
	Timeframe Timeframe `json:"timeframe"`
	RangeHigh float64   `json:"range_high"`
	RangeLow  float64   `json:"range_low"`
	Midpoint  float64   `json:"midpoint"`
	Position  float64   `json:"position"`
	Zone      PDZone    `json:"zone"`
}

// MacroRange is the externally maintained all-time high/low range for a pair.
type MacroRange struct {
	Pair string  `json:"pair"`
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

// BackfillStatus marks the outcome of one backfilled month.
type BackfillStatus string

const (
	BackfillComplete BackfillStatus = "complete"
	BackfillError    BackfillStatus = "error"
)

// BackfillProgress is one row of the append-only backfill log. The latest
// row per (pair, timeframe, year-month) wins and drives resumability.
type BackfillProgress struct {
	Pair        string         `json:"pair" db:"pair"`
	Timeframe   Timeframe      `json:"timeframe" db:"timeframe"`
	YearMonth   string         `json:"year_month" db:"year_month"` // "2024-03"
	RowsWritten int            `json:"rows_written" db:"rows_written"`
	Status      BackfillStatus `json:"status" db:"status"`
	RecordedAt  time.Time      `json:"recorded_at" db:"recorded_at"`
}
