package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/lyzr/materials/common/config"
	"github.com/lyzr/materials/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_WithoutExternalServices(t *testing.T) {
	cfg, err := config.Load("materials-test")
	require.NoError(t, err)

	components, err := Setup(context.Background(), "materials-test",
		WithCustomConfig(cfg),
		WithCustomLogger(logger.Discard()),
		WithoutDB(),
		WithoutRedis(),
		WithoutTelemetry(),
	)
	require.NoError(t, err)

	assert.Same(t, cfg, components.Config)
	assert.NotNil(t, components.Metrics)
	assert.Nil(t, components.DB)
	assert.Nil(t, components.Redis)

	status, err := components.Health(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, map[string]string{"database": StatusDisabled, "redis": StatusDisabled}, status)
	assert.NoError(t, components.Shutdown(context.Background()))
}

func TestSetup_OptionalRedisUnreachable(t *testing.T) {
	cfg, err := config.Load("materials-test")
	require.NoError(t, err)
	cfg.Redis.Host = "127.0.0.1"
	cfg.Redis.Port = 1

	components, err := Setup(context.Background(), "materials-test",
		WithCustomConfig(cfg),
		WithCustomLogger(logger.Discard()),
		WithoutDB(),
		WithOptionalRedis(),
		WithoutTelemetry(),
	)
	require.NoError(t, err)
	assert.Nil(t, components.Redis)

	_, err = Setup(context.Background(), "materials-test",
		WithCustomConfig(cfg),
		WithCustomLogger(logger.Discard()),
		WithoutDB(),
		WithoutTelemetry(),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestShutdown_RunsClosersInReverse(t *testing.T) {
	c := &Components{Logger: logger.Discard()}
	var order []int
	c.OnShutdown("db", func() error { order = append(order, 1); return nil })
	c.OnShutdown("redis", func() error { order = append(order, 2); return errors.New("connection reset") })
	c.OnShutdown("cache", func() error { order = append(order, 3); return nil })

	err := c.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis: connection reset")
	assert.Equal(t, []int{3, 2, 1}, order)

	require.NoError(t, c.Shutdown(context.Background()), "closers run once")
	assert.Equal(t, []int{3, 2, 1}, order)
}
