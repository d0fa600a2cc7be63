package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"marketStructureBot/internal/adapters/logger" // Import the logger package for LogLevel
	"marketStructureBot/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	// Universe
	Pairs       []string
	Timeframes  []domain.Timeframe
	PipSizes    map[string]float64           // per-pair override; DefaultPipSize otherwise
	MacroRanges map[string]domain.MacroRange // externally maintained all-time ranges

	// Structure detection
	SwingLookback         int     // candles on each side of an extremum
	EqualTolerancePips    float64 // EQH/EQL price tolerance
	DisplacementBodyRatio float64 // body/range threshold for displacement breaks
	ReclaimTimeoutCandles int     // reclaim watch window
	SweepLookaheadCandles int     // followedByBOS window
	FillThresholdIntraday float64 // fill percent for "filled" below 1d
	FillThresholdHTF      float64 // fill percent for "filled" at 1d and above
	VolumeBaselineWindow  int     // rolling window for relative volume

	// Data lifecycle
	RetentionDays        int // hot tier age threshold
	ArchiveBatchSize     int
	GapScanWindowDays    int // how far back the gap caretaker scans
	MinGapFetchCount     int // below this, a fetched gap is a legitimate closure
	MaxParallelPairs     int // bounded parallelism per timeframe
	RefreshWindowCandles int // recent-candle window for the fill refresher
	CacheWindowCandles   int // higher-timeframe window for the structure cache
	BackfillStart        time.Time
	BackfillRecentMonths int      // months re-checked by the daily backfill run
	Holidays             []string // fixed non-trading days, "MM-DD"

	// Job cadences
	GapScanInterval        time.Duration
	FillRefreshInterval    time.Duration
	StructureCacheInterval time.Duration
	BackfillHourUTC        int
	ArchiverHourUTC        int

	// Candle source (Binance)
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Stores
	SQLitePath    string // hot tier
	PostgresDSN   string // cold tier
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Universe. Defaults are symbols the wired candle source (Binance USD-M
	// futures) actually serves; FX pairs need PAIRS and PIP_SIZES overrides
	// plus a matching source.
	cfg.Pairs = splitList(getEnv("PAIRS", "BTCUSDT,ETHUSDT"))
	if len(cfg.Pairs) == 0 {
		errs = append(errs, "PAIRS must list at least one pair")
	}

	for _, s := range splitList(getEnv("TIMEFRAMES", "15m,1h,4h,1d,1w,1M")) {
		tf, err := domain.ParseTimeframe(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("invalid TIMEFRAMES entry: %v", err))
			continue
		}
		cfg.Timeframes = append(cfg.Timeframes, tf)
	}
	if len(cfg.Timeframes) == 0 {
		errs = append(errs, "TIMEFRAMES must list at least one timeframe")
	}

	var err error
	cfg.PipSizes, err = parsePipSizes(getEnv("PIP_SIZES", ""))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PIP_SIZES: %v", err))
	}
	cfg.MacroRanges, err = parseMacroRanges(getEnv("MACRO_RANGES", ""))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MACRO_RANGES: %v", err))
	}

	// Structure detection
	cfg.SwingLookback = getEnvAsInt("SWING_LOOKBACK", 3)
	if cfg.SwingLookback <= 0 {
		errs = append(errs, "SWING_LOOKBACK must be positive")
	}
	cfg.EqualTolerancePips = getEnvAsFloat("EQUAL_TOLERANCE_PIPS", 2.0)
	if cfg.EqualTolerancePips < 0 {
		errs = append(errs, "EQUAL_TOLERANCE_PIPS cannot be negative")
	}
	cfg.DisplacementBodyRatio = getEnvAsFloat("DISPLACEMENT_BODY_RATIO", 0.7)
	if cfg.DisplacementBodyRatio <= 0 || cfg.DisplacementBodyRatio > 1 {
		errs = append(errs, "DISPLACEMENT_BODY_RATIO must be in (0, 1]")
	}
	cfg.ReclaimTimeoutCandles = getEnvAsInt("RECLAIM_TIMEOUT_CANDLES", 36)
	cfg.SweepLookaheadCandles = getEnvAsInt("SWEEP_LOOKAHEAD_CANDLES", 12)
	if cfg.ReclaimTimeoutCandles <= 0 || cfg.SweepLookaheadCandles <= 0 {
		errs = append(errs, "RECLAIM_TIMEOUT_CANDLES and SWEEP_LOOKAHEAD_CANDLES must be positive")
	}
	cfg.FillThresholdIntraday = getEnvAsFloat("FVG_FILL_THRESHOLD_INTRADAY", 85.0)
	cfg.FillThresholdHTF = getEnvAsFloat("FVG_FILL_THRESHOLD_HTF", 90.0)
	if cfg.FillThresholdIntraday <= 0 || cfg.FillThresholdIntraday > 100 ||
		cfg.FillThresholdHTF <= 0 || cfg.FillThresholdHTF > 100 {
		errs = append(errs, "FVG fill thresholds must be in (0, 100]")
	}
	cfg.VolumeBaselineWindow = getEnvAsInt("VOLUME_BASELINE_WINDOW", 20)
	if cfg.VolumeBaselineWindow <= 0 {
		errs = append(errs, "VOLUME_BASELINE_WINDOW must be positive")
	}

	// Data lifecycle
	cfg.RetentionDays = getEnvAsInt("RETENTION_DAYS", 30)
	if cfg.RetentionDays <= 0 {
		errs = append(errs, "RETENTION_DAYS must be positive")
	}
	cfg.ArchiveBatchSize = getEnvAsInt("ARCHIVE_BATCH_SIZE", 500)
	if cfg.ArchiveBatchSize <= 0 {
		errs = append(errs, "ARCHIVE_BATCH_SIZE must be positive")
	}
	cfg.GapScanWindowDays = getEnvAsInt("GAP_SCAN_WINDOW_DAYS", 90)
	cfg.MinGapFetchCount = getEnvAsInt("MIN_GAP_FETCH_COUNT", 3)
	cfg.MaxParallelPairs = getEnvAsInt("MAX_PARALLEL_PAIRS", 4)
	if cfg.MaxParallelPairs <= 0 {
		errs = append(errs, "MAX_PARALLEL_PAIRS must be positive")
	}
	cfg.RefreshWindowCandles = getEnvAsInt("REFRESH_WINDOW_CANDLES", 300)
	cfg.CacheWindowCandles = getEnvAsInt("CACHE_WINDOW_CANDLES", 300)

	backfillStartStr := getEnv("BACKFILL_START", "2019-01-01")
	cfg.BackfillStart, err = time.Parse("2006-01-02", backfillStartStr)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BACKFILL_START %q: %v", backfillStartStr, err))
	}
	cfg.BackfillRecentMonths = getEnvAsInt("BACKFILL_RECENT_MONTHS", 2)
	cfg.Holidays = splitList(getEnv("HOLIDAYS", "01-01,12-25"))

	// Job cadences
	cfg.GapScanInterval = getEnvAsDuration("GAP_SCAN_INTERVAL", time.Hour)
	cfg.FillRefreshInterval = getEnvAsDuration("FILL_REFRESH_INTERVAL", 5*time.Minute)
	cfg.StructureCacheInterval = getEnvAsDuration("STRUCTURE_CACHE_INTERVAL", 4*time.Hour)
	if cfg.GapScanInterval <= 0 || cfg.FillRefreshInterval <= 0 || cfg.StructureCacheInterval <= 0 {
		errs = append(errs, "job intervals must be positive durations")
	}
	cfg.BackfillHourUTC = getEnvAsInt("BACKFILL_HOUR_UTC", 2)
	cfg.ArchiverHourUTC = getEnvAsInt("ARCHIVER_HOUR_UTC", 3)
	if cfg.BackfillHourUTC < 0 || cfg.BackfillHourUTC > 23 || cfg.ArchiverHourUTC < 0 || cfg.ArchiverHourUTC > 23 {
		errs = append(errs, "job hours must be within 0-23")
	}

	// Candle source
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", false)

	// Stores
	cfg.SQLitePath = getEnv("HOT_DB_PATH", "./data/structure_hot.db")
	if cfg.SQLitePath == "" {
		errs = append(errs, "HOT_DB_PATH must be set")
	}
	cfg.PostgresDSN = getEnv("COLD_DB_DSN", "")
	if cfg.PostgresDSN == "" {
		errs = append(errs, "COLD_DB_DSN must be set")
	}
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvAsInt("REDIS_DB", 0)

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// PipSize returns the configured pip size for a pair, falling back to the
// conventional default.
func (c *Config) PipSize(pair string) float64 {
	if size, ok := c.PipSizes[pair]; ok {
		return size
	}
	return domain.DefaultPipSize(pair)
}

// MacroRange returns the configured all-time range for a pair, if any.
func (c *Config) MacroRange(pair string) *domain.MacroRange {
	if r, ok := c.MacroRanges[pair]; ok {
		return &r
	}
	return nil
}

// FillThreshold returns the fill-percent threshold for a timeframe.
func (c *Config) FillThreshold(tf domain.Timeframe) float64 {
	if tf.IsIntraday() {
		return c.FillThresholdIntraday
	}
	return c.FillThresholdHTF
}

// Retention returns the hot-tier age threshold as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parsePipSizes parses "EURUSD:0.0001,USDJPY:0.01".
func parsePipSizes(s string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, entry := range splitList(s) {
		parts := strings.Split(entry, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("entry %q must be PAIR:SIZE", entry)
		}
		size, err := strconv.ParseFloat(parts[1], 64)
		if err != nil || size <= 0 {
			return nil, fmt.Errorf("entry %q has invalid size", entry)
		}
		out[parts[0]] = size
	}
	return out, nil
}

// parseMacroRanges parses "EURUSD:0.9535:1.2555" (pair:low:high).
func parseMacroRanges(s string) (map[string]domain.MacroRange, error) {
	out := make(map[string]domain.MacroRange)
	for _, entry := range splitList(s) {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("entry %q must be PAIR:LOW:HIGH", entry)
		}
		low, err1 := strconv.ParseFloat(parts[1], 64)
		high, err2 := strconv.ParseFloat(parts[2], 64)
		if err1 != nil || err2 != nil || low >= high {
			return nil, fmt.Errorf("entry %q has invalid range", entry)
		}
		out[parts[0]] = domain.MacroRange{Pair: parts[0], Low: low, High: high}
	}
	return out, nil
}
