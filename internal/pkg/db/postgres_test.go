package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"millionaire-bot/internal/config"
)

func TestPoolConfig_AppliesSettings(t *testing.T) {
	pc, err := poolConfig(&config.DatabaseConfig{
		Host:            "db",
		Port:            5433,
		User:            "quiz",
		Password:        "secret",
		Name:            "millionaire",
		PoolSize:        12,
		ConnectTimeout:  3 * time.Second,
		MaxConnLifetime: 10 * time.Minute,
		MaxConnIdleTime: time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, "db", pc.ConnConfig.Host)
	assert.Equal(t, uint16(5433), pc.ConnConfig.Port)
	assert.Equal(t, "millionaire", pc.ConnConfig.Database)
	assert.Equal(t, int32(12), pc.MaxConns)
	assert.Equal(t, int32(3), pc.MinConns)
	assert.Equal(t, 3*time.Second, pc.ConnConfig.ConnectTimeout)
	assert.Equal(t, 10*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, time.Minute, pc.MaxConnIdleTime)
	assert.Equal(t, applicationName, pc.ConnConfig.RuntimeParams["application_name"])
}

func TestPoolConfig_FillsDefaults(t *testing.T) {
	pc, err := poolConfig(&config.DatabaseConfig{Host: "localhost", Port: 5432, User: "u", Name: "db", PoolSize: 2})
	require.NoError(t, err)

	assert.Equal(t, int32(2), pc.MaxConns)
	assert.Equal(t, int32(1), pc.MinConns, "at least one warm connection")
	assert.Equal(t, defaultConnectTimeout, pc.ConnConfig.ConnectTimeout)
	assert.Equal(t, defaultMaxConnLifetime, pc.MaxConnLifetime)
	assert.Equal(t, defaultMaxConnIdleTime, pc.MaxConnIdleTime)
	assert.Equal(t, healthCheckPeriod, pc.HealthCheckPeriod)

	pc, err = poolConfig(&config.DatabaseConfig{Host: "localhost", Port: 5432, User: "u", Name: "db"})
	require.NoError(t, err)
	assert.Equal(t, int32(defaultPoolSize), pc.MaxConns)
}
