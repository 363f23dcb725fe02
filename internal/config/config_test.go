package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	// Change to temp dir so no stray config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Regions.xlsx", cfg.Inputs.Regions)
	assert.Equal(t, "Blad1", cfg.Inputs.IndicatorsSheet)
	assert.Equal(t, "TimeSeries_1971-2015", cfg.Inputs.EnergySheet)
	assert.Equal(t, RangeConfig{From: 2000, To: 2016}, cfg.Years)
	assert.Equal(t, RangeConfig{From: 1990, To: 2014}, cfg.Energy)
	assert.Equal(t, "WB", cfg.WorldBank.SourceLabel)
	assert.Equal(t, 20000, cfg.WorldBank.PerPage)
	assert.Equal(t, "worldpanel/0.1", cfg.Geocode.UserAgent)
	assert.Equal(t, "from", cfg.Trade.Direction)
	assert.Equal(t, "sheet", cfg.Trade.Source)
	assert.Equal(t, 0, cfg.Comtrade.MaxRetries)
	assert.InDelta(t, 0.1, cfg.Trade.Threshold, 1e-9)
	assert.Len(t, cfg.Trade.Years(), 22)
	assert.Equal(t, "testdata1.xlsx", cfg.Output.Workbook)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
years:
  from: 2010
  to: 2015
trade:
  direction: to
  countries: [Netherlands, Germany]
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, RangeConfig{From: 2010, To: 2015}, cfg.Years)
	assert.Equal(t, "to", cfg.Trade.Direction)
	assert.Equal(t, []string{"Netherlands", "Germany"}, cfg.Trade.Countries)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromEnv(t *testing.T) {
	chdirTemp(t)
	t.Setenv("WORLDPANEL_OUTPUT_DB", "/tmp/other.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/other.db", cfg.Output.DB)
}

func TestValidate(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)

	bad := *cfg
	bad.Years = RangeConfig{From: 2016, To: 2000}
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Trade.Direction = "sideways"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Trade.Source = "ftp"
	assert.Error(t, bad.Validate())

	bad = *cfg
	bad.Trade.Source = "comtrade"
	assert.Error(t, bad.Validate())
	bad.Comtrade.APIKey = "key"
	assert.NoError(t, bad.Validate())
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.True(t, zap.L().Core().Enabled(zap.DebugLevel))

	assert.Error(t, InitLogger(LogConfig{Level: "loud", Format: "json"}))
}
