// Package config provides configuration management for the trading agent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Trading     TradingConfig `mapstructure:"trading"`
	Risk        RiskConfig    `mapstructure:"risk"`
	AI          AIConfig      `mapstructure:"ai"`
	Server      ServerConfig  `mapstructure:"server"`
	Credentials Credentials   `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds trading execution configuration.
type TradingConfig struct {
	Mode               string   `mapstructure:"mode"` // "live", "mock"
	TradingPairs       []string `mapstructure:"trading_pairs"`
	Leverage           int      `mapstructure:"leverage"`
	MinConfidence      float64  `mapstructure:"min_confidence"`
	StopLossPercentage float64  `mapstructure:"stop_loss_percentage"`
	ATRMultiplier      float64  `mapstructure:"atr_multiplier"`
	MinOrderSize       float64  `mapstructure:"min_order_size"`
}

// RiskConfig holds risk management configuration.
type RiskConfig struct {
	MaxRiskPerTrade    float64 `mapstructure:"max_risk_per_trade"`
	MaxOpenPositions   int     `mapstructure:"max_open_positions"`
	MaxDailyLoss       float64 `mapstructure:"max_daily_loss"`
	RewardRiskRatio    float64 `mapstructure:"reward_risk_ratio"`
	MaxPositionSizeUSD float64 `mapstructure:"max_position_size_usd"`
	MaxPositionPercent float64 `mapstructure:"max_position_percent"`
}

// AIConfig holds AI confirmation configuration.
type AIConfig struct {
	UsePrimary          bool    `mapstructure:"use_primary"`
	UseFallback         bool    `mapstructure:"use_fallback"`
	PrimaryModel        string  `mapstructure:"primary_model"`
	FallbackModel       string  `mapstructure:"fallback_model"`
	PrimaryThreshold    float64 `mapstructure:"primary_confidence_threshold"`
	FallbackThreshold   float64 `mapstructure:"fallback_confidence_threshold"`
	ConcordanceRequired bool    `mapstructure:"concordance_required"`
}

// ServerConfig holds webhook server configuration.
type ServerConfig struct {
	Port           int    `mapstructure:"port"`
	WebhookSecret  string `mapstructure:"webhook_secret"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
}

// Credentials holds API credentials.
type Credentials struct {
	Bluefin  BluefinCredentials `mapstructure:"bluefin"`
	Primary  ModelCredentials   `mapstructure:"primary"`
	Fallback ModelCredentials   `mapstructure:"fallback"`
}

// BluefinCredentials holds Bluefin exchange credentials.
type BluefinCredentials struct {
	Network    string `mapstructure:"network"` // SUI_PROD, SUI_STAGING
	PrivateKey string `mapstructure:"private_key"`
	APIURL     string `mapstructure:"api_url"`
	WSURL      string `mapstructure:"ws_url"`
}

// ModelCredentials holds credentials for an AI confirmation model.
type ModelCredentials struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/bluefin-agent"
	}
	return filepath.Join(home, ".config", "bluefin-agent")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Missing config file is fine, defaults plus env cover it.
		if werr := createTemplateConfig(configDir); werr != nil {
			return werr
		}
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		return createTemplateCredentials(configDir)
	}

	return v.Unmarshal(creds)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.mode", "mock")
	v.SetDefault("trading.trading_pairs", []string{"SUI-PERP", "BTC-PERP", "ETH-PERP"})
	v.SetDefault("trading.leverage", 5)
	v.SetDefault("trading.min_confidence", 0.7)
	v.SetDefault("trading.stop_loss_percentage", 0.02)
	v.SetDefault("trading.atr_multiplier", 2.0)
	v.SetDefault("trading.min_order_size", 0.01)

	v.SetDefault("risk.max_risk_per_trade", 0.02)
	v.SetDefault("risk.max_open_positions", 3)
	v.SetDefault("risk.max_daily_loss", 0.05)
	v.SetDefault("risk.reward_risk_ratio", 2.0)
	v.SetDefault("risk.max_position_size_usd", 1000.0)
	v.SetDefault("risk.max_position_percent", 0.5)

	v.SetDefault("ai.use_primary", true)
	v.SetDefault("ai.use_fallback", true)
	v.SetDefault("ai.primary_model", "claude-3-7-sonnet-latest")
	v.SetDefault("ai.fallback_model", "sonar-pro")
	v.SetDefault("ai.primary_confidence_threshold", 0.7)
	v.SetDefault("ai.fallback_confidence_threshold", 0.7)
	v.SetDefault("ai.concordance_required", true)

	v.SetDefault("server.port", 5001)
	v.SetDefault("server.metrics_enabled", true)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BLUEFIN_PRIVATE_KEY"); v != "" {
		cfg.Credentials.Bluefin.PrivateKey = v
	}
	if v := os.Getenv("BLUEFIN_NETWORK"); v != "" {
		cfg.Credentials.Bluefin.Network = v
	}
	if v := os.Getenv("CLAUDE_API_KEY"); v != "" {
		cfg.Credentials.Primary.APIKey = v
	}
	if v := os.Getenv("PERPLEXITY_API_KEY"); v != "" {
		cfg.Credentials.Fallback.APIKey = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("TV_WEBHOOK_SECRET"); v != "" {
		cfg.Server.WebhookSecret = v
	}
	if v := os.Getenv("WEBHOOK_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DEFAULT_RISK_PERCENTAGE"); v != "" {
		if pct, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Risk.MaxRiskPerTrade = pct
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.Mode != "" && c.Trading.Mode != "live" && c.Trading.Mode != "mock" {
		return fmt.Errorf("invalid trading mode: %s (must be 'live' or 'mock')", c.Trading.Mode)
	}
	if c.Trading.Leverage < 1 {
		return fmt.Errorf("leverage must be at least 1 (got %d)", c.Trading.Leverage)
	}
	if c.Trading.MinConfidence < 0 || c.Trading.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be between 0 and 1 (got %v)", c.Trading.MinConfidence)
	}
	if c.Trading.StopLossPercentage < 0 || c.Trading.StopLossPercentage > 1 {
		return fmt.Errorf("stop_loss_percentage must be between 0 and 1 (got %v)", c.Trading.StopLossPercentage)
	}
	if c.Risk.MaxRiskPerTrade <= 0 || c.Risk.MaxRiskPerTrade > 1 {
		return fmt.Errorf("max_risk_per_trade must be between 0 and 1 (got %v)", c.Risk.MaxRiskPerTrade)
	}
	if c.Risk.MaxOpenPositions < 1 {
		return fmt.Errorf("max_open_positions must be at least 1 (got %d)", c.Risk.MaxOpenPositions)
	}
	if c.Risk.MaxDailyLoss < 0 || c.Risk.MaxDailyLoss > 1 {
		return fmt.Errorf("max_daily_loss must be between 0 and 1 (got %v)", c.Risk.MaxDailyLoss)
	}
	if c.Risk.RewardRiskRatio < 1 {
		return fmt.Errorf("reward_risk_ratio must be at least 1 (got %v)", c.Risk.RewardRiskRatio)
	}
	return nil
}

// IsMockMode returns true if simulated trading mode is enabled.
func (c *Config) IsMockMode() bool {
	return c.Trading.Mode != "live"
}
