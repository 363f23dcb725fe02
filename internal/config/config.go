package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Inputs    InputsConfig    `yaml:"inputs" mapstructure:"inputs"`
	Years     RangeConfig     `yaml:"years" mapstructure:"years"`
	Energy    RangeConfig     `yaml:"energy" mapstructure:"energy"`
	WorldBank WorldBankConfig `yaml:"worldbank" mapstructure:"worldbank"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Comtrade  ComtradeConfig  `yaml:"comtrade" mapstructure:"comtrade"`
	Trade     TradeConfig     `yaml:"trade" mapstructure:"trade"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// InputsConfig names the spreadsheet inputs.
type InputsConfig struct {
	Regions         string `yaml:"regions" mapstructure:"regions"`
	Indicators      string `yaml:"indicators" mapstructure:"indicators"`
	IndicatorsSheet string `yaml:"indicators_sheet" mapstructure:"indicators_sheet"`
	Energy          string `yaml:"energy" mapstructure:"energy"`
	EnergySheet     string `yaml:"energy_sheet" mapstructure:"energy_sheet"`
	EnergySeries    string `yaml:"energy_series" mapstructure:"energy_series"`
	Trade           string `yaml:"trade" mapstructure:"trade"`
	Overrides       string `yaml:"overrides" mapstructure:"overrides"`
}

// RangeConfig is a [From, To] year window.
type RangeConfig struct {
	From int `yaml:"from" mapstructure:"from"`
	To   int `yaml:"to" mapstructure:"to"`
}

// WorldBankConfig configures the statistical API client.
type WorldBankConfig struct {
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	SourceLabel     string `yaml:"source_label" mapstructure:"source_label"`
	RateLimitPerSec int    `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	TimeoutSecs     int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	PerPage         int    `yaml:"per_page" mapstructure:"per_page"`
}

func (c WorldBankConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// GeocodeConfig configures the Nominatim geocoder.
type GeocodeConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent       string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
}

// ComtradeConfig configures the trade statistics API used when
// trade.source is "comtrade".
type ComtradeConfig struct {
	BaseURL         string   `yaml:"base_url" mapstructure:"base_url"`
	APIKey          string   `yaml:"api_key" mapstructure:"api_key"`
	Reporters       []string `yaml:"reporters" mapstructure:"reporters"`
	RateLimitPerSec int      `yaml:"rate_limit_per_sec" mapstructure:"rate_limit_per_sec"`
	TimeoutSecs     int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries      int      `yaml:"max_retries" mapstructure:"max_retries"`
}

func (c ComtradeConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// TradeConfig configures the trade panel and the flow pages.
type TradeConfig struct {
	Source             string   `yaml:"source" mapstructure:"source"`
	From               int      `yaml:"from" mapstructure:"from"`
	To                 int      `yaml:"to" mapstructure:"to"`
	FlowYear           int      `yaml:"flow_year" mapstructure:"flow_year"`
	Countries          []string `yaml:"countries" mapstructure:"countries"`
	Direction          string   `yaml:"direction" mapstructure:"direction"`
	ValueMultiplier    float64  `yaml:"value_multiplier" mapstructure:"value_multiplier"`
	Threshold          float64  `yaml:"threshold" mapstructure:"threshold"`
	EmissionsIndicator string   `yaml:"emissions_indicator" mapstructure:"emissions_indicator"`
}

// Years lists From..To inclusive.
func (c TradeConfig) Years() []int {
	var years []int
	for year := c.From; year <= c.To; year++ {
		years = append(years, year)
	}
	return years
}

// OutputConfig names the files a run writes. An empty DB disables persistence.
type OutputConfig struct {
	Workbook       string `yaml:"workbook" mapstructure:"workbook"`
	SharesWorkbook string `yaml:"shares_workbook" mapstructure:"shares_workbook"`
	FlowsDir       string `yaml:"flows_dir" mapstructure:"flows_dir"`
	DB             string `yaml:"db" mapstructure:"db"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks the values a run cannot proceed without.
func (c *Config) Validate() error {
	if c.Years.From > c.Years.To {
		return eris.Errorf("config: years.from %d after years.to %d", c.Years.From, c.Years.To)
	}
	if c.Energy.From > c.Energy.To {
		return eris.Errorf("config: energy.from %d after energy.to %d", c.Energy.From, c.Energy.To)
	}
	if c.Trade.From > c.Trade.To {
		return eris.Errorf("config: trade.from %d after trade.to %d", c.Trade.From, c.Trade.To)
	}
	switch c.Trade.Source {
	case "sheet":
	case "comtrade":
		if c.Comtrade.APIKey == "" {
			return eris.New("config: comtrade.api_key is required when trade.source is comtrade")
		}
	default:
		return eris.Errorf("config: trade.source must be \"sheet\" or \"comtrade\", got %q", c.Trade.Source)
	}
	switch c.Trade.Direction {
	case "from", "to":
	default:
		return eris.Errorf("config: trade.direction must be \"from\" or \"to\", got %q", c.Trade.Direction)
	}
	return nil
}

// Load reads config.yaml from the working directory, if present, and
// WORLDPANEL_* environment variables over the defaults.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("WORLDPANEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("inputs.regions", "Regions.xlsx")
	v.SetDefault("inputs.indicators", "Selected_Indicators.xlsx")
	v.SetDefault("inputs.indicators_sheet", "Blad1")
	v.SetDefault("inputs.energy", "IEA.xlsx")
	v.SetDefault("inputs.energy_sheet", "TimeSeries_1971-2015")
	v.SetDefault("inputs.energy_series", "IEADATA.xlsx")
	v.SetDefault("inputs.trade", "Trade.xlsx")
	v.SetDefault("inputs.overrides", "")
	v.SetDefault("years.from", 2000)
	v.SetDefault("years.to", 2016)
	v.SetDefault("energy.from", 1990)
	v.SetDefault("energy.to", 2014)
	v.SetDefault("worldbank.base_url", "https://api.worldbank.org/v2/")
	v.SetDefault("worldbank.source_label", "WB")
	v.SetDefault("worldbank.rate_limit_per_sec", 5)
	v.SetDefault("worldbank.timeout_secs", 20)
	v.SetDefault("worldbank.per_page", 20000)
	v.SetDefault("geocode.base_url", "https://nominatim.openstreetmap.org/")
	v.SetDefault("geocode.user_agent", "worldpanel/0.1")
	v.SetDefault("geocode.rate_limit_per_sec", 1)
	v.SetDefault("comtrade.base_url", "https://comtradeapi.un.org/")
	v.SetDefault("comtrade.api_key", "")
	v.SetDefault("comtrade.reporters", []string{})
	v.SetDefault("comtrade.rate_limit_per_sec", 1)
	v.SetDefault("comtrade.timeout_secs", 60)
	v.SetDefault("comtrade.max_retries", 0)
	v.SetDefault("trade.source", "sheet")
	v.SetDefault("trade.from", 1995)
	v.SetDefault("trade.to", 2016)
	v.SetDefault("trade.flow_year", 2014)
	v.SetDefault("trade.countries", []string{})
	v.SetDefault("trade.direction", "from")
	v.SetDefault("trade.value_multiplier", 1)
	v.SetDefault("trade.threshold", 0.1)
	v.SetDefault("trade.emissions_indicator", "")
	v.SetDefault("output.workbook", "testdata1.xlsx")
	v.SetDefault("output.shares_workbook", "trade_shares.xlsx")
	v.SetDefault("output.flows_dir", "flows")
	v.SetDefault("output.db", "worldpanel.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
