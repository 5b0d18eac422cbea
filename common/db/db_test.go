package db

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/lyzr/materials/common/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ExportsPoolStats(t *testing.T) {
	// pgxpool connects lazily, so no server is needed to read statistics
	pool, err := pgxpool.New(context.Background(), "postgres://u:p@127.0.0.1:1/materials?pool_max_conns=7")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register((&DB{Pool: pool, log: logger.Discard()}).Collector()))

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]int{}
	for _, f := range families {
		byName[f.GetName()] = len(f.GetMetric())
	}
	assert.Equal(t, 3, byName["materials_db_pool_connections"])
	assert.Equal(t, 1, byName["materials_db_pool_max_connections"])
	assert.Equal(t, 3, byName["materials_db_pool_acquires_total"])
	assert.Equal(t, 1, byName["materials_db_pool_acquire_seconds_total"])

	for _, f := range families {
		if f.GetName() == "materials_db_pool_max_connections" {
			assert.Equal(t, 7.0, f.GetMetric()[0].GetGauge().GetValue())
		}
	}
}

func TestQueryLogger_AcceptsEveryLevel(t *testing.T) {
	l := queryLogger{log: logger.Discard()}
	for _, level := range []tracelog.LogLevel{
		tracelog.LogLevelTrace,
		tracelog.LogLevelDebug,
		tracelog.LogLevelInfo,
		tracelog.LogLevelWarn,
		tracelog.LogLevelError,
	} {
		assert.NotPanics(t, func() {
			l.Log(context.Background(), level, "Query", map[string]any{"sql": "select 1", "args": []any{"secret"}})
		})
	}
}
