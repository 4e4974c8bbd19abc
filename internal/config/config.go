package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Providers   ProvidersConfig `mapstructure:"providers"`
	Update      UpdateConfig    `mapstructure:"update"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ProvidersConfig struct {
	Polygon        ProviderConfig `mapstructure:"polygon"`
	Tiingo         ProviderConfig `mapstructure:"tiingo"`
	FMP            ProviderConfig `mapstructure:"fmp"`
	AcquireTimeout string         `mapstructure:"acquire_timeout"`
	MaxRetries     int            `mapstructure:"max_retries"`
	InitialBackoff string         `mapstructure:"initial_backoff"`
	MaxBackoff     string         `mapstructure:"max_backoff"`
}

type ProviderConfig struct {
	APIKey            string `mapstructure:"api_key" json:"-" yaml:"-"`
	Enabled           bool   `mapstructure:"enabled"`
	RequestsPerWindow int    `mapstructure:"requests_per_window"`
	Window            string `mapstructure:"window"`
}

type UpdateConfig struct {
	DefaultSymbols      []string `mapstructure:"default_symbols"`
	MaxConcurrent       int      `mapstructure:"max_concurrent"`
	MaxGapFillAttempts  int      `mapstructure:"max_gap_fill_attempts"`
	TargetTimeframes    []string `mapstructure:"target_timeframes"`
	FullDayCandles      int      `mapstructure:"full_day_candles"`
	HalfDayCandles      int      `mapstructure:"half_day_candles"`
	MarketOpenHourUTC   int      `mapstructure:"market_open_hour_utc"`
	MarketOpenMinuteUTC int      `mapstructure:"market_open_minute_utc"`
	RecordTTL           string   `mapstructure:"record_ttl"`
	ReportCacheTTL      string   `mapstructure:"report_cache_ttl"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Bind provider API keys to their conventional variable names
	if err := viper.BindEnv("providers.polygon.api_key", "POLYGON_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind POLYGON_API_KEY environment variable: %w", err)
	}
	if err := viper.BindEnv("providers.tiingo.api_key", "TIINGO_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind TIINGO_API_KEY environment variable: %w", err)
	}
	if err := viper.BindEnv("providers.fmp.api_key", "FMP_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind FMP_API_KEY environment variable: %w", err)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"*"})

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.dbname", "marketdata")
	viper.SetDefault("database.sslmode", "disable")

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Provider defaults: Polygon free tier allows 5 requests per minute,
	// Tiingo 50 per hour on the starter plan, FMP 300 per minute
	viper.SetDefault("providers.polygon.enabled", true)
	viper.SetDefault("providers.polygon.requests_per_window", 5)
	viper.SetDefault("providers.polygon.window", "1m")
	viper.SetDefault("providers.tiingo.enabled", true)
	viper.SetDefault("providers.tiingo.requests_per_window", 50)
	viper.SetDefault("providers.tiingo.window", "1h")
	viper.SetDefault("providers.fmp.enabled", true)
	viper.SetDefault("providers.fmp.requests_per_window", 300)
	viper.SetDefault("providers.fmp.window", "1m")
	viper.SetDefault("providers.acquire_timeout", "30s")
	viper.SetDefault("providers.max_retries", 2)
	viper.SetDefault("providers.initial_backoff", "1s")
	viper.SetDefault("providers.max_backoff", "30s")

	// Update engine defaults
	viper.SetDefault("update.default_symbols", []string{"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA"})
	viper.SetDefault("update.max_concurrent", 5)
	viper.SetDefault("update.max_gap_fill_attempts", 50)
	viper.SetDefault("update.target_timeframes", []string{"5min", "15min", "30min", "1h", "2h", "4h", "daily"})
	viper.SetDefault("update.full_day_candles", 390)
	viper.SetDefault("update.half_day_candles", 210)
	viper.SetDefault("update.market_open_hour_utc", 13)
	viper.SetDefault("update.market_open_minute_utc", 30)
	viper.SetDefault("update.record_ttl", "1h")
	viper.SetDefault("update.report_cache_ttl", "5m")
}

// Validate checks the fields that have no safe fallback.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Update.MaxConcurrent <= 0 {
		return fmt.Errorf("update.max_concurrent must be positive, got %d", c.Update.MaxConcurrent)
	}
	if c.Update.MaxGapFillAttempts <= 0 {
		return fmt.Errorf("update.max_gap_fill_attempts must be positive, got %d", c.Update.MaxGapFillAttempts)
	}
	for _, field := range []struct{ name, value string }{
		{"providers.acquire_timeout", c.Providers.AcquireTimeout},
		{"providers.initial_backoff", c.Providers.InitialBackoff},
		{"providers.max_backoff", c.Providers.MaxBackoff},
		{"update.record_ttl", c.Update.RecordTTL},
		{"update.report_cache_ttl", c.Update.ReportCacheTTL},
		{"providers.polygon.window", c.Providers.Polygon.Window},
		{"providers.tiingo.window", c.Providers.Tiingo.Window},
		{"providers.fmp.window", c.Providers.FMP.Window},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", field.name, field.value)
		}
	}
	return nil
}

// Duration parses a duration config string that Validate already checked.
func Duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}
