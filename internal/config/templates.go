package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Bluefin AI Agent Trader Configuration

[trading]
# Trading mode: "live" or "mock"
mode = "mock"
# Instruments the agent is allowed to trade
trading_pairs = ["SUI-PERP", "BTC-PERP", "ETH-PERP"]
# Leverage applied to every position
leverage = 5
# Minimum signal confidence to act on (0.0-1.0)
min_confidence = 0.7
# Default stop loss distance as a fraction of entry price
stop_loss_percentage = 0.02
# Multiplier applied to ATR when volatility-scaled stops are used
atr_multiplier = 2.0
# Minimum order size accepted by the exchange (base currency)
min_order_size = 0.01

[risk]
# Maximum fraction of balance risked per trade
max_risk_per_trade = 0.02
# Maximum number of simultaneously open positions
max_open_positions = 3
# Daily loss circuit breaker as a fraction of balance
max_daily_loss = 0.05
# Take-profit distance as a multiple of stop distance
reward_risk_ratio = 2.0
# Absolute position size cap in USD
max_position_size_usd = 1000.0
# Position size cap as a fraction of balance
max_position_percent = 0.5

[ai]
# Enable the primary confirmation model
use_primary = true
# Enable the fallback confirmation model
use_fallback = true
# Model identifiers sent to the confirmation APIs
primary_model = "claude-3-7-sonnet-latest"
fallback_model = "sonar-pro"
# Minimum confidence required from each model
primary_confidence_threshold = 0.7
fallback_confidence_threshold = 0.7
# Require both models to agree before trading
concordance_required = true

[server]
# Webhook listener port
port = 5001
# Shared passphrase expected in TradingView alerts (empty disables the check)
webhook_secret = ""
# Expose Prometheus metrics on /metrics
metrics_enabled = true
`

const credentialsTemplate = `# Bluefin AI Agent Trader Credentials
# Keep this file secure. Environment variables override these values.

[bluefin]
network = "SUI_PROD"
private_key = ""
api_url = ""
ws_url = ""

[primary]
api_key = ""
base_url = ""

[fallback]
api_key = ""
base_url = ""
`

func createTemplateConfig(configDir string) error {
	return writeTemplate(configDir, "config.toml", configTemplate)
}

func createTemplateCredentials(configDir string) error {
	return writeTemplate(configDir, "credentials.toml", credentialsTemplate)
}

func writeTemplate(configDir, filename, content string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, filename)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing %s template: %w", filename, err)
	}

	return nil
}
