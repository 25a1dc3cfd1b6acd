package config

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureUpstashRedisOptions(t *testing.T) {
	tests := []struct {
		name           string
		config         *RedisConfig
		validateConfig func(t *testing.T, opts *redis.Options)
	}{
		{
			name: "Basic Upstash configuration",
			config: &RedisConfig{
				Address:      "actual-serval-57447.upstash.io:6379",
				Password:     "test-password",
				DB:           0,
				PoolSize:     15,
				MinIdleConns: 5,
				UseTLS:       true,
			},
			validateConfig: func(t *testing.T, opts *redis.Options) {
				assert.Equal(t, "actual-serval-57447.upstash.io:6379", opts.Addr)
				assert.Equal(t, "test-password", opts.Password)
				assert.Equal(t, 0, opts.DB)
				assert.Equal(t, 15, opts.PoolSize)
				assert.Equal(t, 5, opts.MinIdleConns)
				assert.NotNil(t, opts.TLSConfig)
			},
		},
		{
			name: "Non-Upstash Redis",
			config: &RedisConfig{
				Address:      "localhost:6379",
				Password:     "",
				DB:           1,
				PoolSize:     10,
				MinIdleConns: 2,
				UseTLS:       false,
			},
			validateConfig: func(t *testing.T, opts *redis.Options) {
				assert.Equal(t, "localhost:6379", opts.Addr)
				assert.Equal(t, "", opts.Password)
				assert.Equal(t, 1, opts.DB)
				assert.Equal(t, 10, opts.PoolSize)
				assert.Equal(t, 2, opts.MinIdleConns)
				assert.Nil(t, opts.TLSConfig)
			},
		},
		{
			name: "Upstash with custom settings",
			config: &RedisConfig{
				Address:      "custom.upstash.io:6380",
				Password:     "secure-password",
				DB:           2,
				PoolSize:     20,
				MinIdleConns: 10,
				UseTLS:       true,
			},
			validateConfig: func(t *testing.T, opts *redis.Options) {
				assert.Equal(t, "custom.upstash.io:6380", opts.Addr)
				assert.Equal(t, "secure-password", opts.Password)
				assert.Equal(t, 2, opts.DB)
				assert.Equal(t, 20, opts.PoolSize)
				assert.Equal(t, 10, opts.MinIdleConns)
				assert.NotNil(t, opts.TLSConfig)

				assert.Equal(t, 3, opts.MaxRetries)
				assert.Equal(t, 100*time.Millisecond, opts.MinRetryBackoff)
				assert.Equal(t, 2*time.Second, opts.MaxRetryBackoff)
				assert.Equal(t, 5*time.Second, opts.DialTimeout)
				assert.Equal(t, 3*time.Second, opts.ReadTimeout)
				assert.Equal(t, 3*time.Second, opts.WriteTimeout)
				assert.Equal(t, time.Hour, opts.ConnMaxLifetime)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := ConfigureUpstashRedisOptions(tt.config)
			require.NotNil(t, opts)

			if tt.validateConfig != nil {
				tt.validateConfig(t, opts)
			}
		})
	}
}

func TestTestRedisConnection(t *testing.T) {
	tests := []struct {
		name        string
		setupClient func() *redis.Client
		expectError bool
	}{
		{
			name: "Failed connection",
			setupClient: func() *redis.Client {
				return redis.NewClient(&redis.Options{
					Addr:        "non-existent-host:6379",
					DialTimeout: 100 * time.Millisecond,
				})
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := tt.setupClient()
			defer client.Close()

			err := TestRedisConnection(client)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRedisRetryBehavior(t *testing.T) {
	cfg := &RedisConfig{
		Address:      "retry-test.upstash.io:6379",
		Password:     "test",
		DB:           0,
		PoolSize:     5,
		MinIdleConns: 1,
	}

	opts := ConfigureUpstashRedisOptions(cfg)

	assert.Equal(t, 3, opts.MaxRetries)
	assert.Equal(t, 100*time.Millisecond, opts.MinRetryBackoff)
	assert.Equal(t, 2*time.Second, opts.MaxRetryBackoff)

	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	err := client.Ping(ctx).Err()
	assert.Error(t, err)
}
