package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/agoramesh/agora-backend/pkg/logging"
)

// RedisConfig holds connection settings for the key-value collaborator.
type RedisConfig struct {
	URL          string
	Password     string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultRedisConfig returns settings suitable for a local instance.
func DefaultRedisConfig(url string) RedisConfig {
	return RedisConfig{
		URL:          url,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Client wraps go-redis with logging. It backs the engine's snapshot store
// and the append-only audit stream.
type Client struct {
	redisClient *redis.Client
	config      RedisConfig
	logger      logging.Logger
}

// NewClient creates a Redis client and verifies connectivity.
func NewClient(config RedisConfig, logger logging.Logger) (*Client, error) {
	opt, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if config.Password != "" {
		opt.Password = config.Password
	}
	opt.PoolSize = config.PoolSize
	opt.MinIdleConns = config.MinIdleConns
	opt.DialTimeout = config.DialTimeout
	opt.ReadTimeout = config.ReadTimeout
	opt.WriteTimeout = config.WriteTimeout

	client := &Client{
		redisClient: redis.NewClient(opt),
		config:      config,
		logger:      logger.With("component", "redis_client"),
	}
	if err := client.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof("Successfully connected to Redis")
	return client, nil
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.redisClient.Ping(ctx).Err()
}

// Get returns the value for key, or redis.Nil-wrapped error when absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.redisClient.Get(ctx, key).Result()
}

// Set stores a value with an optional TTL (0 means no expiry).
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return c.redisClient.Set(ctx, key, value, ttl).Err()
}

// XAdd appends an entry to a stream.
func (c *Client) XAdd(ctx context.Context, stream string, values map[string]interface{}) (string, error) {
	return c.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}).Result()
}

// XLen returns the number of entries in a stream.
func (c *Client) XLen(ctx context.Context, stream string) (int64, error) {
	return c.redisClient.XLen(ctx, stream).Result()
}

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.redisClient.Close()
}
