// Package app holds the environment configuration shared by the commands.
package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Sternrassler/adserver-client/pkg/client"
	"github.com/Sternrassler/adserver-client/pkg/pagination"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Config is read from the environment (and a .env file, see godotenv).
type Config struct {
	BaseURL         string
	NetworkCode     string
	ApplicationName string

	// RedisAddr enables the page cache and shared quota state. Empty disables both.
	RedisAddr string

	// MetricsAddr exposes /metrics while the command runs. Empty disables it.
	MetricsAddr string

	PageSize     uint32
	PageCacheTTL time.Duration
}

// Load reads the configuration through getenv.
func Load(getenv func(string) string) (Config, error) {
	cfg := Config{
		BaseURL:         getEnv(getenv, "ADSERVER_URL", ""),
		NetworkCode:     getEnv(getenv, "ADSERVER_NETWORK_CODE", ""),
		ApplicationName: getEnv(getenv, "APPLICATION_NAME", "adserver-client/0.1.0"),
		RedisAddr:       getenv("REDIS_URL"),
		MetricsAddr:     getenv("METRICS_ADDR"),
		PageSize:        pagination.DefaultConfig().PageSize,
		PageCacheTTL:    30 * time.Second,
	}

	if v := getenv("PAGE_SIZE"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return Config{}, fmt.Errorf("invalid PAGE_SIZE %q", v)
		}
		cfg.PageSize = uint32(n)
	}
	if v := getenv("PAGE_CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid PAGE_CACHE_TTL %q: %w", v, err)
		}
		cfg.PageCacheTTL = ttl
	}

	if cfg.BaseURL == "" {
		return Config{}, fmt.Errorf("ADSERVER_URL is required")
	}
	if cfg.NetworkCode == "" {
		return Config{}, fmt.Errorf("ADSERVER_NETWORK_CODE is required")
	}
	return cfg, nil
}

// Pagination returns the executor configuration.
func (c Config) Pagination() pagination.Config {
	pcfg := pagination.DefaultConfig()
	pcfg.PageSize = c.PageSize
	return pcfg
}

// NewClient connects to Redis when configured and creates the ad server
// client. The returned func releases both.
func (c Config) NewClient(ctx context.Context) (*client.Client, func(), error) {
	var redisClient *redis.Client
	if c.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: c.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			redisClient.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", c.RedisAddr, err)
		}
		log.Info().Str("redis", c.RedisAddr).Msg("Connected to Redis")
	}

	cfg := client.DefaultConfig(c.BaseURL, c.NetworkCode, c.ApplicationName)
	cfg.Redis = redisClient
	cfg.PageCacheTTL = c.PageCacheTTL

	adClient, err := client.New(cfg)
	if err != nil {
		if redisClient != nil {
			redisClient.Close()
		}
		return nil, nil, err
	}

	closeFn := func() {
		adClient.Close()
		if redisClient != nil {
			redisClient.Close()
		}
	}
	return adClient, closeFn, nil
}

func getEnv(getenv func(string) string, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}
