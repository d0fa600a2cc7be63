package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"marketStructureBot/internal/domain"
	"marketStructureBot/internal/ports"

	"github.com/go-redis/redis/v8"
)

// keyPrefix namespaces all snapshot keys.
const keyPrefix = "structure:"

// Cache implements ports.StructureCache on Redis. One key per
// (pair, timeframe), overwritten whole on each recompute; snapshots never
// expire so a consumer always sees the last computed state.
type Cache struct {
	client *redis.Client
	logger ports.Logger
}

// Config holds configuration for the Redis cache.
type Config struct {
	Addr     string
	Password string
	DB       int
	Logger   ports.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Cache, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Redis cache")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis at '%s': %w: %w", cfg.Addr, ports.ErrDBConnection, err)
	}
	cfg.Logger.Info(ctx, "Redis cache ready", map[string]interface{}{"addr": cfg.Addr, "db": cfg.DB})
	return &Cache{client: client, logger: cfg.Logger}, nil
}

func key(pair string, tf domain.Timeframe) string {
	return keyPrefix + pair + ":" + string(tf)
}

// GetCurrentStructure returns the snapshot for the key, or nil, nil when no
// snapshot has been computed yet.
func (c *Cache) GetCurrentStructure(ctx context.Context, pair string, tf domain.Timeframe) (*domain.CurrentStructure, error) {
	raw, err := c.client.Get(ctx, key(pair, tf)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get structure %s/%s: %w: %w", pair, tf, ports.ErrQueryFailed, err)
	}
	var cs domain.CurrentStructure
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, fmt.Errorf("unmarshal structure %s/%s: %w", pair, tf, err)
	}
	return &cs, nil
}

// SetCurrentStructure overwrites the snapshot for its key.
func (c *Cache) SetCurrentStructure(ctx context.Context, cs *domain.CurrentStructure) error {
	if cs == nil {
		return fmt.Errorf("nil structure snapshot: %w", ports.ErrInvalidRequest)
	}
	raw, err := json.Marshal(cs)
	if err != nil {
		return fmt.Errorf("marshal structure %s/%s: %w", cs.Pair, cs.Timeframe, err)
	}
	if err := c.client.Set(ctx, key(cs.Pair, cs.Timeframe), raw, 0).Err(); err != nil {
		return fmt.Errorf("set structure %s/%s: %w: %w", cs.Pair, cs.Timeframe, ports.ErrUpsertFailed, err)
	}
	return nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}
