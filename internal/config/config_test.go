package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/hedgebot/internal/domain"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Risk.MinExpectedROI = 1.5
	cfg.Risk.EntryBandLow = 0.60
	cfg.Risk.EntryBandHigh = 0.40
	cfg.Monitor.PollInterval = Duration{0}

	err := cfg.Validate()
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "min_expected_roi")
	assert.Contains(t, err.Error(), "entry band inverted")
	assert.Contains(t, err.Error(), "poll_interval")
}

func TestValidateRejectsBadMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "backtest"
	err := cfg.Validate()
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateSafetyMarginBoundedBySlippage(t *testing.T) {
	cfg := Defaults()
	cfg.Execution.SafetyMargin = 0.05
	cfg.Risk.MaxSlippage = 0.01
	err := cfg.Validate()
	require.ErrorIs(t, err, domain.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "safety_margin")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HEDGEBOT_RISK_MIN_EXPECTED_ROI", "0.05")
	t.Setenv("HEDGEBOT_MONITOR_POLL_INTERVAL", "250ms")
	t.Setenv("HEDGEBOT_MONITOR_CONTRACTS", "0xaaa, 0xbbb")
	t.Setenv("HEDGEBOT_MODE", "trade")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.InDelta(t, 0.05, cfg.Risk.MinExpectedROI, 1e-9)
	assert.Equal(t, 250*time.Millisecond, cfg.Monitor.PollInterval.Duration)
	assert.Equal(t, []string{"0xaaa", "0xbbb"}, cfg.Monitor.Contracts)
	assert.Equal(t, "trade", cfg.Mode)
}

func TestEnvOverrideIgnoresUnparseable(t *testing.T) {
	t.Setenv("HEDGEBOT_RISK_MAX_DELTA_RATIO", "not-a-number")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	assert.InDelta(t, 0.20, cfg.Risk.MaxDeltaRatio, 1e-9)
}
