package structure

import (
	"errors"

	"marketStructureBot/internal/domain"
)

// ErrNotEnoughCandles signals that the window is too small to confirm any
// extremum. Callers treat this as a skip, not a failure.
var ErrNotEnoughCandles = errors.New("not enough candles for structure computation")

// Config holds all tuning constants for one orchestrator run.
type Config struct {
	PipSize               float64
	SwingLookback         int
	EqualTolPips          float64
	DisplacementBodyRatio float64
	ReclaimTimeoutCandles int
	SweepLookaheadCandles int
	FillThreshold         float64
	VolumeWindow          int
}

// Input is everything a structure computation reads. The orchestrator has
// no hidden state: identical input yields identical output, for both the
// real-time and the backfill path.
type Input struct {
	Pair      string
	Timeframe domain.Timeframe
	Candles   []domain.Candle

	// Higher-timeframe candle sets for key levels and range zones.
	Daily   []domain.Candle
	Weekly  []domain.Candle
	Monthly []domain.Candle

	// Cached higher-timeframe snapshots, keyed by day/week/month. May be
	// sparse; missing entries degrade the MTF score and counter-trend flag.
	Higher map[domain.Timeframe]*domain.CurrentStructure

	// Externally maintained all-time range for the pair, if known.
	Macro *domain.MacroRange
}

// Result is the full output of one structure computation.
type Result struct {
	Swings           []domain.SwingPoint        `json:"swings"`
	BOSEvents        []domain.BOSEvent          `json:"bos_events"`
	SweepEvents      []domain.SweepEvent        `json:"sweep_events"`
	FVGEvents        []domain.FVGEvent          `json:"fvg_events"`
	CurrentStructure domain.CurrentStructure    `json:"current_structure"`
	MTFScore         float64                    `json:"mtf_score"`
	PremiumDiscount  []domain.PremiumDiscount   `json:"premium_discount"`
	KeyLevels        []domain.KeyLevel          `json:"key_levels"`
}

// Orchestrator runs the four detectors over one candle window and adds
// cross-timeframe context. It is a pure, synchronous computation; all I/O
// happens before and after it.
type Orchestrator struct {
	cfg Config
}

// New creates an orchestrator with the given tuning constants.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{cfg: cfg}
}

// swingSequenceLen is how many trailing swing labels the current-structure
// snapshot keeps.
const swingSequenceLen = 8

// ComputeStructure derives swings, BOS, sweep and FVG events from the
// candle window and scores the pair's structure. Returns
// ErrNotEnoughCandles when the window cannot confirm a single extremum.
func (o *Orchestrator) ComputeStructure(in Input) (*Result, error) {
	if len(in.Candles) < 2*o.cfg.SwingLookback+1 {
		return nil, ErrNotEnoughCandles
	}

	swingDet := NewSwingDetector(SwingConfig{
		Lookback:     o.cfg.SwingLookback,
		EqualTolPips: o.cfg.EqualTolPips,
		PipSize:      o.cfg.PipSize,
	})
	swings := swingDet.Detect(in.Candles)

	tracker := NewLevelTracker(TrackerConfig{
		PipSize:               o.cfg.PipSize,
		DisplacementBodyRatio: o.cfg.DisplacementBodyRatio,
		ReclaimTimeoutCandles: o.cfg.ReclaimTimeoutCandles,
		SweepLookaheadCandles: o.cfg.SweepLookaheadCandles,
	}, higherDirection(in.Higher))
	bosEvents, sweepEvents := tracker.Run(in.Candles, swings)

	fvgTracker := NewFVGTracker(FVGConfig{
		PipSize:       o.cfg.PipSize,
		FillThreshold: o.cfg.FillThreshold,
		VolumeWindow:  o.cfg.VolumeWindow,
	})
	fvgEvents := fvgTracker.Detect(in.Candles)

	last := in.Candles[len(in.Candles)-1]

	res := &Result{
		Swings:           swings,
		BOSEvents:        bosEvents,
		SweepEvents:      sweepEvents,
		FVGEvents:        fvgEvents,
		CurrentStructure: deriveCurrentStructure(in, swings, bosEvents, last),
		MTFScore:         mtfScore(in.Higher),
		PremiumDiscount:  premiumDiscountZones(in, last.Close),
		KeyLevels:        keyLevels(in),
	}
	return res, nil
}

// higherDirection reads the cached daily structure direction for the
// counter-trend flag; it is never recomputed here.
func higherDirection(higher map[domain.Timeframe]*domain.CurrentStructure) domain.Direction {
	if cs, ok := higher[domain.TF1d]; ok && cs != nil {
		return cs.Direction
	}
	return domain.Neutral
}

// deriveCurrentStructure builds the snapshot row for this run's timeframe.
func deriveCurrentStructure(in Input, swings []domain.SwingPoint, bos []domain.BOSEvent, last domain.Candle) domain.CurrentStructure {
	cs := domain.CurrentStructure{
		Pair:       in.Pair,
		Timeframe:  in.Timeframe,
		Direction:  domain.Neutral,
		ComputedAt: last.OpenTime,
	}

	start := len(swings) - swingSequenceLen
	if start < 0 {
		start = 0
	}
	for _, sp := range swings[start:] {
		cs.SwingSequence = append(cs.SwingSequence, sp.Label)
	}

	if len(bos) > 0 {
		lastBOS := bos[len(bos)-1]
		cs.LastBOSDirection = lastBOS.Direction
		t := lastBOS.Time
		cs.LastBOSTime = &t
		cs.LastBOSLevel = lastBOS.BrokenLevel
	}

	// Direction: the most recent unreclaimed break wins; otherwise the
	// majority of the trailing swing labels decides.
	for i := len(bos) - 1; i >= 0; i-- {
		if bos[i].Status == domain.BOSOpen {
			cs.Direction = bos[i].Direction
			return cs
		}
	}
	cs.Direction = sequenceDirection(cs.SwingSequence)
	return cs
}

// sequenceDirection votes over swing labels: HH and HL are bullish, LH and
// LL bearish; equal highs/lows abstain.
func sequenceDirection(labels []domain.SwingLabel) domain.Direction {
	vote := 0
	for _, l := range labels {
		switch l {
		case domain.LabelHH, domain.LabelHL:
			vote++
		case domain.LabelLH, domain.LabelLL:
			vote--
		}
	}
	switch {
	case vote > 0:
		return domain.Bullish
	case vote < 0:
		return domain.Bearish
	}
	return domain.Neutral
}

// mtfWeights are the day/week/month contributions to the composite score.
var mtfWeights = []struct {
	tf     domain.Timeframe
	weight float64
}{
	{domain.TF1d, 50},
	{domain.TF1w, 30},
	{domain.TF1M, 20},
}

// mtfScore combines day/week/month direction agreement into a composite
// in [-100, +100]. Each timeframe's contribution is scaled by how
// consistently its swing sequence agrees with its direction; missing
// snapshots contribute zero.
func mtfScore(higher map[domain.Timeframe]*domain.CurrentStructure) float64 {
	score := 0.0
	for _, w := range mtfWeights {
		cs, ok := higher[w.tf]
		if !ok || cs == nil {
			continue
		}
		switch cs.Direction {
		case domain.Bullish:
			score += w.weight * sequenceConsistency(cs)
		case domain.Bearish:
			score -= w.weight * sequenceConsistency(cs)
		}
	}
	return score
}

// sequenceConsistency is the fraction of a snapshot's voting swing labels
// that agree with its direction, in (0, 1]. Snapshots without voting
// labels count as fully consistent.
func sequenceConsistency(cs *domain.CurrentStructure) float64 {
	agree, total := 0, 0
	for _, l := range cs.SwingSequence {
		var dir domain.Direction
		switch l {
		case domain.LabelHH, domain.LabelHL:
			dir = domain.Bullish
		case domain.LabelLH, domain.LabelLL:
			dir = domain.Bearish
		default:
			continue
		}
		total++
		if dir == cs.Direction {
			agree++
		}
	}
	if total == 0 {
		return 1.0
	}
	return float64(agree) / float64(total)
}

// premiumDiscountZones classifies the current price inside each higher
// timeframe's reference range. Day and week use the visible range of the
// supplied candle set; the monthly zone uses the externally maintained
// macro range when configured, since the all-time extremes typically
// predate any candle window we hold.
func premiumDiscountZones(in Input, price float64) []domain.PremiumDiscount {
	var zones []domain.PremiumDiscount
	if z := rangeZone(domain.TF1d, in.Daily, price); z != nil {
		zones = append(zones, *z)
	}
	if z := rangeZone(domain.TF1w, in.Weekly, price); z != nil {
		zones = append(zones, *z)
	}
	if in.Macro != nil && in.Macro.High > in.Macro.Low {
		zones = append(zones, zoneFromRange(domain.TF1M, in.Macro.High, in.Macro.Low, price))
	} else if z := rangeZone(domain.TF1M, in.Monthly, price); z != nil {
		zones = append(zones, *z)
	}
	return zones
}

func rangeZone(tf domain.Timeframe, candles []domain.Candle, price float64) *domain.PremiumDiscount {
	if len(candles) == 0 {
		return nil
	}
	high, low := candles[0].High, candles[0].Low
	for _, c := range candles[1:] {
		if c.High > high {
			high = c.High
		}
		if c.Low < low {
			low = c.Low
		}
	}
	if high <= low {
		return nil
	}
	z := zoneFromRange(tf, high, low, price)
	return &z
}

// equilibriumBand is the half-width around the range midpoint treated as
// neither premium nor discount.
const equilibriumBand = 0.05

func zoneFromRange(tf domain.Timeframe, high, low, price float64) domain.PremiumDiscount {
	pos := (price - low) / (high - low)
	zone := domain.ZoneEquilibrium
	switch {
	case pos > 0.5+equilibriumBand:
		zone = domain.ZonePremium
	case pos < 0.5-equilibriumBand:
		zone = domain.ZoneDiscount
	}
	return domain.PremiumDiscount{
		Timeframe: tf,
		RangeHigh: high,
		RangeLow:  low,
		Midpoint:  (high + low) / 2,
		Position:  pos,
		Zone:      zone,
	}
}

// keyLevels extracts prior day/week/month OHLC reference levels from the
// higher-timeframe candle sets. The last candle of each set is assumed to
// be the period still forming, so the prior completed period is the one
// before it.
func keyLevels(in Input) []domain.KeyLevel {
	var levels []domain.KeyLevel
	levels = appendPeriodLevels(levels, "PD", in.Daily)
	levels = appendPeriodLevels(levels, "PW", in.Weekly)
	levels = appendPeriodLevels(levels, "PM", in.Monthly)
	return levels
}

func appendPeriodLevels(levels []domain.KeyLevel, prefix string, candles []domain.Candle) []domain.KeyLevel {
	var prior *domain.Candle
	switch {
	case len(candles) >= 2:
		prior = &candles[len(candles)-2]
	case len(candles) == 1:
		prior = &candles[0]
	default:
		return levels
	}
	return append(levels,
		domain.KeyLevel{Name: prefix + "H", Price: prior.High},
		domain.KeyLevel{Name: prefix + "L", Price: prior.Low},
		domain.KeyLevel{Name: prefix + "O", Price: prior.Open},
		domain.KeyLevel{Name: prefix + "C", Price: prior.Close},
	)
}
