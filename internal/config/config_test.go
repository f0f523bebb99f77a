package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithDefaults_Succeeds(t *testing.T) {
	// Ensure envs are clean to use defaults
	os.Unsetenv("DB_PATH")
	os.Unsetenv("GRPC_ADDRESS")
	os.Unsetenv("JWT_SECRET")
	os.Unsetenv("SIM_MODE")
	os.Unsetenv("DISPATCH_ARRIVAL_TIMEOUT")
	cfg, err := LoadWithDefaults()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.GRPC.Address)
	assert.NotEmpty(t, cfg.Database.Path)
	assert.NotEmpty(t, cfg.Auth.JWTSecret)
	assert.Equal(t, SimModeInternal, cfg.Simulator.Mode)
	assert.Equal(t, 2*time.Second, cfg.Simulator.TickInterval)
	assert.Equal(t, 0.05, cfg.Simulator.ArrivalThresholdKm)
	assert.Equal(t, 20.0, cfg.Dispatch.MaxRangeKm)
	assert.Zero(t, cfg.Dispatch.ArrivalTimeout)
	assert.Equal(t, "escalate", cfg.Dispatch.ArrivalTimeoutAction)
}

func TestLoad_RequiresJWTSecret(t *testing.T) {
	// Clear JWT_SECRET ensures error
	os.Unsetenv("JWT_SECRET")
	// Other vars can be set or default
	t.Setenv("DB_PATH", "test.db")
	t.Setenv("GRPC_ADDRESS", ":1234")
	_, err := Load()
	require.Error(t, err)

	// When set, it should succeed
	t.Setenv("JWT_SECRET", "x")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":1234", cfg.GRPC.Address)
}

func TestLoad_ParsesTypedValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("SIM_MODE", "External")
	t.Setenv("SIM_TICK_INTERVAL", "250ms")
	t.Setenv("SIM_STEP_FRACTION", "0.1")
	t.Setenv("DISPATCH_ARRIVAL_TIMEOUT", "15m")
	t.Setenv("DISPATCH_ARRIVAL_TIMEOUT_ACTION", "auto_confirm")
	t.Setenv("LOG_JSON", "true")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, SimModeExternal, cfg.Simulator.Mode)
	assert.Equal(t, 250*time.Millisecond, cfg.Simulator.TickInterval)
	assert.Equal(t, 0.1, cfg.Simulator.StepFraction)
	assert.Equal(t, 15*time.Minute, cfg.Dispatch.ArrivalTimeout)
	assert.Equal(t, "auto_confirm", cfg.Dispatch.ArrivalTimeoutAction)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, 2, cfg.Redis.DB)
}

func TestLoad_ReportsEveryBadValue(t *testing.T) {
	t.Setenv("JWT_SECRET", "x")
	t.Setenv("SIM_TICK_INTERVAL", "soon")
	t.Setenv("REDIS_DB", "one")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIM_TICK_INTERVAL")
	assert.Contains(t, err.Error(), "REDIS_DB")
}

func TestValidate_RejectsUnknownEnums(t *testing.T) {
	t.Setenv("SIM_MODE", "hybrid")
	t.Setenv("DISPATCH_ARRIVAL_TIMEOUT_ACTION", "ignore")
	_, err := LoadWithDefaults()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SIM_MODE")
	assert.Contains(t, err.Error(), "DISPATCH_ARRIVAL_TIMEOUT_ACTION")
}

func TestString_MasksSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "super-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.NotContains(t, cfg.String(), "super-secret")
	assert.Contains(t, cfg.String(), "masked")
}
