package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Update.MaxConcurrent)
	assert.Equal(t, 50, cfg.Update.MaxGapFillAttempts)
	assert.Equal(t, 390, cfg.Update.FullDayCandles)
	assert.Equal(t, 210, cfg.Update.HalfDayCandles)
	assert.Equal(t, 13, cfg.Update.MarketOpenHourUTC)
	assert.Equal(t, 30, cfg.Update.MarketOpenMinuteUTC)
	assert.Contains(t, cfg.Update.TargetTimeframes, "5min")
	assert.Contains(t, cfg.Update.DefaultSymbols, "AAPL")
	assert.Equal(t, 5, cfg.Providers.Polygon.RequestsPerWindow)
	assert.Equal(t, "1m", cfg.Providers.Polygon.Window)
	assert.Equal(t, 300, cfg.Providers.FMP.RequestsPerWindow)
	assert.Equal(t, "1m", cfg.Providers.FMP.Window)
	assert.Equal(t, 2, cfg.Providers.MaxRetries)
}

func TestLoadReadsEnvironmentVariables(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("POLYGON_API_KEY", "pk-test")
	t.Setenv("FMP_API_KEY", "fmp-test")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pk-test", cfg.Providers.Polygon.APIKey)
	assert.Equal(t, "fmp-test", cfg.Providers.FMP.APIKey)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestValidateRejectsBadValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	cfg, err := Load()
	require.NoError(t, err)

	cfg.Update.MaxConcurrent = 0
	assert.Error(t, cfg.Validate())

	cfg.Update.MaxConcurrent = 5
	cfg.Update.RecordTTL = "not-a-duration"
	assert.Error(t, cfg.Validate())
}

func TestDurationHelper(t *testing.T) {
	assert.Equal(t, int64(30000000000), int64(Duration("30s")))
}
