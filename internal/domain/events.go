package domain

import "time"

// Direction of a structural move or event.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Opposite returns the reverse direction; Neutral maps to itself.
func (d Direction) Opposite() Direction {
	switch d {
	case Bullish:
		return Bearish
	case Bearish:
		return Bullish
	}
	return Neutral
}

// SwingKind distinguishes swing highs from swing lows.
type SwingKind string

const (
	SwingHigh SwingKind = "high"
	SwingLow  SwingKind = "low"
)

// SwingLabel classifies a swing relative to the nearest prior swing of the
// same kind: higher-high, higher-low, lower-high, lower-low, or equal
// high/low when within the configured price tolerance.
type SwingLabel string

const (
	LabelHH  SwingLabel = "HH"
	LabelHL  SwingLabel = "HL"
	LabelLH  SwingLabel = "LH"
	LabelLL  SwingLabel = "LL"
	LabelEQH SwingLabel = "EQH"
	LabelEQL SwingLabel = "EQL"
)

// SwingPoint is a confirmed local price extremum. Created once per
// qualifying extremum and never mutated afterwards.
type SwingPoint struct {
	Time      time.Time  `json:"time" db:"time"`
	Pair      string     `json:"pair" db:"pair"`
	Timeframe Timeframe  `json:"timeframe" db:"timeframe"`
	Price     float64    `json:"price" db:"price"`
	Kind      SwingKind  `json:"kind" db:"kind"`
	Label     SwingLabel `json:"label" db:"label"`
	Lookback  int        `json:"lookback" db:"lookback"`
	TrueRange float64    `json:"true_range" db:"true_range"`
}

// BOSStatus is the lifecycle state of a break-of-structure event.
type BOSStatus string

const (
	BOSOpen      BOSStatus = "open"
	BOSReclaimed BOSStatus = "reclaimed"
)

// BOSEvent records a confirmed close beyond a prior swing extreme.
// Mutated exactly once, when the broken level is reclaimed.
type BOSEvent struct {
	Time            time.Time `json:"time" db:"time"`
	Pair            string    `json:"pair" db:"pair"`
	Timeframe       Timeframe `json:"timeframe" db:"timeframe"`
	Direction       Direction `json:"direction" db:"direction"`
	Status          BOSStatus `json:"status" db:"status"`
	BrokenLevel     float64   `json:"broken_level" db:"broken_level"`
	BrokenSwingTime time.Time `json:"broken_swing_time" db:"broken_swing_time"`
	ConfirmingClose float64   `json:"confirming_close" db:"confirming_close"`
	MagnitudePips   float64   `json:"magnitude_pips" db:"magnitude_pips"`
	IsDisplacement  bool      `json:"is_displacement" db:"is_displacement"`
	IsCounterTrend  bool      `json:"is_counter_trend" db:"is_counter_trend"`

	ReclaimedAt      *time.Time    `json:"reclaimed_at,omitempty" db:"reclaimed_at"`
	ReclaimedByClose float64       `json:"reclaimed_by_close,omitempty" db:"reclaimed_by_close"`
	TimeTilReclaim   time.Duration `json:"time_til_reclaim,omitempty" db:"time_til_reclaim"`
}

// SweptLevelType identifies which kind of reference level a sweep violated.
type SweptLevelType string

const (
	SweptSwing   SweptLevelType = "swing"
	SweptSession SweptLevelType = "session"
)

// SweepEvent records a wick-only violation of a reference level: the wick
// extreme crossed the level while the close stayed on the original side.
// FollowedByBOS may be set retroactively within a bounded lookahead window,
// after which the row is frozen.
type SweepEvent struct {
	Time           time.Time      `json:"time" db:"time"`
	Pair           string         `json:"pair" db:"pair"`
	Timeframe      Timeframe      `json:"timeframe" db:"timeframe"`
	Direction      Direction      `json:"direction" db:"direction"`
	SweptLevel     float64        `json:"swept_level" db:"swept_level"`
	WickExtreme    float64        `json:"wick_extreme" db:"wick_extreme"`
	SweptLevelType SweptLevelType `json:"swept_level_type" db:"swept_level_type"`
	FollowedByBOS  bool           `json:"followed_by_bos" db:"followed_by_bos"`
}

// FVGStatus is the lifecycle state of a fair value gap. Filled and
// inverted are terminal: evaluation stops and the row becomes immutable.
type FVGStatus string

const (
	FVGFresh    FVGStatus = "fresh"
	FVGPartial  FVGStatus = "partial"
	FVGFilled   FVGStatus = "filled"
	FVGInverted FVGStatus = "inverted"
)

// IsTerminal reports whether the status ends fill evaluation.
func (s FVGStatus) IsTerminal() bool {
	return s == FVGFilled || s == FVGInverted
}

// FVGTier ranks a gap by the displacement quality of its middle candle.
type FVGTier int

const (
	TierPremium  FVGTier = 1
	TierStandard FVGTier = 2
	TierWeak     FVGTier = 3
)

// FVGEvent records a three-candle price imbalance and its fill lifecycle.
// Status and fill metrics are mutated by the fill refresher until a
// terminal status is reached.
type FVGEvent struct {
	Time      time.Time `json:"time" db:"time"`
	Pair      string    `json:"pair" db:"pair"`
	Timeframe Timeframe `json:"timeframe" db:"timeframe"`
	Direction Direction `json:"direction" db:"direction"`
	Status    FVGStatus `json:"status" db:"status"`

	Top         float64 `json:"top" db:"top"`
	Bottom      float64 `json:"bottom" db:"bottom"`
	Midline     float64 `json:"midline" db:"midline"`
	GapSizePips float64 `json:"gap_size_pips" db:"gap_size_pips"`

	// Displacement metrics of the middle candle, captured at creation.
	BodyRatio      float64 `json:"body_ratio" db:"body_ratio"`
	GapToBodyRatio float64 `json:"gap_to_body_ratio" db:"gap_to_body_ratio"`
	RelVolume      float64 `json:"rel_volume" db:"rel_volume"`
	Tier           FVGTier `json:"tier" db:"tier"`

	FillPercent      float64    `json:"fill_percent" db:"fill_percent"`
	MaxFillPercent   float64    `json:"max_fill_percent" db:"max_fill_percent"`
	BodyFilled       bool       `json:"body_filled" db:"body_filled"`
	WickTouched      bool       `json:"wick_touched" db:"wick_touched"`
	FirstTouchAt     *time.Time `json:"first_touch_at,omitempty" db:"first_touch_at"`
	RetestCount      int        `json:"retest_count" db:"retest_count"`
	MidlineRespected bool       `json:"midline_respected" db:"midline_respected"`
	FilledAt         *time.Time `json:"filled_at,omitempty" db:"filled_at"`
	InvertedAt       *time.Time `json:"inverted_at,omitempty" db:"inverted_at"`
}
