// Package config handles loading and validation of application configuration
// from environment variables and potentially configuration files.
package config

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/pollrelay/pollengine/logger"
	"github.com/redis/go-redis/v9"
)

// ConfigureUpstashRedisOptions creates and configures a redis.Options suitable for connecting
// to an Upstash Redis instance using the provided RedisConfig.
// It sets up connection details, pool parameters, timeouts, retry logic, and enables
// TLS (required for Upstash), logging non-sensitive details.
func ConfigureUpstashRedisOptions(cfg *RedisConfig) *redis.Options {
	log := logger.GetLogger()

	// Create Redis options
	redisOptions := &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		// Set reasonable connection lifetime for free tier
		ConnMaxLifetime: time.Hour,
		// Add retry strategy for better resilience
		MaxRetries:      3,
		MinRetryBackoff: time.Millisecond * 100,
		MaxRetryBackoff: time.Second * 2,
		// Add reasonable timeouts
		DialTimeout:  time.Second * 5,
		ReadTimeout:  time.Second * 3,
		WriteTimeout: time.Second * 3,
	}

	// Log only non-sensitive Redis connection information
	log.Infow("Configuring Redis connection",
		"address", cfg.Address,
		"db", cfg.DB,
		"pool_size", cfg.PoolSize,
		"min_idle_conns", cfg.MinIdleConns,
		"use_tls", cfg.UseTLS)

	// Enable TLS only for Upstash Redis
	if strings.Contains(cfg.Address, "upstash.io") {
		log.Info("Enabling TLS for Upstash Redis")
		redisOptions.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	return redisOptions
}

// TestRedisConnection attempts to ping the Redis server using the provided client.
// It retries the connection up to a maximum number of times with a delay between attempts.
// Returns nil if the connection is successful, otherwise returns an error.
func TestRedisConnection(client *redis.Client) error {
	log := logger.GetLogger()
	maxRetries := 5
	retryDelay := time.Second * 2

	for i := 0; i < maxRetries; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
		_, err := client.Ping(ctx).Result()
		cancel()

		if err == nil {
			if i > 0 {
				log.Infow("Successfully connected to Redis after retries", "attempt", i+1)
			}
			return nil
		}

		if i < maxRetries-1 {
			log.Warnw("Failed to ping Redis, retrying...",
				"error", err,
				"attempt", i+1,
				"max_attempts", maxRetries)
			time.Sleep(retryDelay)
			continue
		}

		return fmt.Errorf("failed to ping Redis after %d attempts: %w", maxRetries, err)
	}

	// This return should theoretically not be reached due to the loop structure,
	// but included for completeness.
	return nil
}
