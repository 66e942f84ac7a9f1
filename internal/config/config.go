// Package config defines all configuration for the market-making engine.
// Config is loaded from a YAML file with sensitive fields overridable via
// MM_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Marketplace identifiers for the ladder venue.
const (
	MarketBinanceSpot = "binance_spot"
	MarketHyperliquid = "hyperliquid"
)

// Hedge venue identifiers.
const (
	HedgeBinancePerp = "binance_perp"
)

// Planner mode identifiers.
const (
	ModeSpot   = "spot"
	ModeCurve  = "curve"
	ModeBidAsk = "bid_ask"
	ModeAuto   = "auto"
)

// Config is the top-level configuration. Keys map one-to-one to the YAML file.
type Config struct {
	UnderlyingToken  string `mapstructure:"underlying_token"`
	QuoteToken       string `mapstructure:"quote_token"`
	Marketplace      string `mapstructure:"marketplace"`
	HedgeMarketplace string `mapstructure:"hedge_marketplace"`

	// Venue precision for the trading pair: price and quantity decimals.
	TickDecimals int `mapstructure:"tick_decimals"`
	StepDecimals int `mapstructure:"step_decimals"`

	// Market-making parameters.
	MMUpdateInterval      int     `mapstructure:"mm_update_interval"` // seconds
	MMPriceUpPctLimit     float64 `mapstructure:"mm_price_up_pct_limit"`
	MMPriceDownPctLimit   float64 `mapstructure:"mm_price_down_pct_limit"`
	MMBinStep             int     `mapstructure:"mm_bin_step"` // basis points
	MMInitInventoryAmount float64 `mapstructure:"mm_init_inventory_amount"`
	MMInitQuoteAmount     float64 `mapstructure:"mm_init_quote_amount"`
	MMMode                string  `mapstructure:"mm_mode"`
	MMLiveOrderNums       int     `mapstructure:"mm_live_order_nums"`
	MMMinOrderSize        float64 `mapstructure:"mm_min_order_size"`
	MMMaxOrderSize        float64 `mapstructure:"mm_max_order_size"`
	MMIQVUpLimit          float64 `mapstructure:"mm_iqv_up_limit"`
	MMIQVDownLimit        float64 `mapstructure:"mm_iqv_down_limit"`
	MMInventoryRBIQVRatio float64 `mapstructure:"mm_inventory_rb_iqv_ratio"`
	MMQuoteRBIQVRatio     float64 `mapstructure:"mm_quote_rb_iqv_ratio"`

	// Auto-mode volatility regime boundaries.
	AutoMMVolLowerThreshold float64 `mapstructure:"auto_mm_vol_lower_threshold"`
	AutoMMVolUpperThreshold float64 `mapstructure:"auto_mm_vol_upper_threshold"`

	// Hedge parameters.
	HgPassiveHedgeRatio           float64 `mapstructure:"hg_passive_hedge_ratio"`
	HgMinHedgeOrderSize           float64 `mapstructure:"hg_min_hedge_order_size"`
	HgActiveHedgeIQVRatio         float64 `mapstructure:"hg_active_hedge_iqv_ratio"`
	HgPassiveHedgeSpRatio         float64 `mapstructure:"hg_passive_hedge_sp_ratio"`
	HgPassiveHedgeProportion      float64 `mapstructure:"hg_passive_hedge_proportion"`
	HgPassiveHedgeRefreshIQVRatio float64 `mapstructure:"hg_passive_hedge_refresh_iqv_ratio"`
	HgPassiveHedgeRefreshInterval int     `mapstructure:"hg_passive_hedge_refresh_interval"` // seconds
	HgDualSidedHedge              bool    `mapstructure:"hg_dual_sided_hedge"`

	// Volatility model parameters.
	VolHisPriceWindow      int     `mapstructure:"vol_his_price_window"` // seconds
	VolHisPriceWindowLimit int     `mapstructure:"vol_his_price_window_limit"`
	VolShortWindow         int     `mapstructure:"vol_short_window"`
	VolLongWindow          int     `mapstructure:"vol_long_window"`
	VolEwmaLambda          float64 `mapstructure:"vol_ewma_lambda"`

	// Venue credentials. Loaded from MM_* env vars when not in the file.
	BinanceAPIKey    string `mapstructure:"binance_api_key"`
	BinanceSecretKey string `mapstructure:"binance_secret_key"`
	HypePubKey       string `mapstructure:"hype_pub_key"`
	HypePriKey       string `mapstructure:"hype_pri_key"`

	// Observability.
	LogLevel    string `mapstructure:"log_level"`
	MetricsPort int    `mapstructure:"metrics_port"` // 0 disables the /metrics endpoint
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: MM_BINANCE_API_KEY, MM_BINANCE_SECRET_KEY,
// MM_HYPE_PUB_KEY, MM_HYPE_PRI_KEY.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("MM_BINANCE_API_KEY"); key != "" {
		cfg.BinanceAPIKey = key
	}
	if key := os.Getenv("MM_BINANCE_SECRET_KEY"); key != "" {
		cfg.BinanceSecretKey = key
	}
	if key := os.Getenv("MM_HYPE_PUB_KEY"); key != "" {
		cfg.HypePubKey = key
	}
	if key := os.Getenv("MM_HYPE_PRI_KEY"); key != "" {
		cfg.HypePriKey = key
	}

	cfg.UnderlyingToken = strings.ToUpper(strings.TrimSpace(cfg.UnderlyingToken))
	cfg.QuoteToken = strings.ToUpper(strings.TrimSpace(cfg.QuoteToken))
	cfg.Marketplace = strings.ToLower(strings.TrimSpace(cfg.Marketplace))
	cfg.HedgeMarketplace = strings.ToLower(strings.TrimSpace(cfg.HedgeMarketplace))
	cfg.MMMode = strings.ToLower(strings.TrimSpace(cfg.MMMode))

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.UnderlyingToken == "" {
		return fmt.Errorf("underlying_token is required")
	}
	if c.QuoteToken == "" {
		return fmt.Errorf("quote_token is required")
	}
	switch c.Marketplace {
	case MarketBinanceSpot, MarketHyperliquid:
	default:
		return fmt.Errorf("marketplace must be one of: %s, %s", MarketBinanceSpot, MarketHyperliquid)
	}
	switch c.HedgeMarketplace {
	case HedgeBinancePerp:
	default:
		return fmt.Errorf("hedge_marketplace must be: %s", HedgeBinancePerp)
	}
	switch c.MMMode {
	case ModeSpot, ModeCurve, ModeBidAsk, ModeAuto:
	default:
		return fmt.Errorf("mm_mode must be one of: spot, curve, bid_ask, auto")
	}
	if c.MMUpdateInterval <= 0 {
		return fmt.Errorf("mm_update_interval must be > 0")
	}
	if c.MMPriceUpPctLimit <= 0 || c.MMPriceUpPctLimit >= 1 {
		return fmt.Errorf("mm_price_up_pct_limit must be in (0, 1)")
	}
	if c.MMPriceDownPctLimit <= 0 || c.MMPriceDownPctLimit >= 1 {
		return fmt.Errorf("mm_price_down_pct_limit must be in (0, 1)")
	}
	if c.MMBinStep <= 0 {
		return fmt.Errorf("mm_bin_step must be > 0")
	}
	if c.MMLiveOrderNums <= 0 {
		return fmt.Errorf("mm_live_order_nums must be > 0")
	}
	if c.MMMinOrderSize < 0 {
		return fmt.Errorf("mm_min_order_size must be >= 0")
	}
	if c.MMMaxOrderSize <= 0 || c.MMMaxOrderSize < c.MMMinOrderSize {
		return fmt.Errorf("mm_max_order_size must be >= mm_min_order_size")
	}
	// iqv_down_limit <= quote_rb <= 0 <= inventory_rb <= iqv_up_limit
	if !(c.MMIQVDownLimit <= c.MMQuoteRBIQVRatio && c.MMQuoteRBIQVRatio <= 0) {
		return fmt.Errorf("require mm_iqv_down_limit <= mm_quote_rb_iqv_ratio <= 0")
	}
	if !(0 <= c.MMInventoryRBIQVRatio && c.MMInventoryRBIQVRatio <= c.MMIQVUpLimit) {
		return fmt.Errorf("require 0 <= mm_inventory_rb_iqv_ratio <= mm_iqv_up_limit")
	}
	if c.MMMode == ModeAuto && c.AutoMMVolLowerThreshold >= c.AutoMMVolUpperThreshold {
		return fmt.Errorf("auto_mm_vol_lower_threshold must be < auto_mm_vol_upper_threshold")
	}
	if c.HgPassiveHedgeRefreshInterval <= 0 {
		return fmt.Errorf("hg_passive_hedge_refresh_interval must be > 0")
	}
	if c.HgPassiveHedgeProportion < 0 || c.HgPassiveHedgeProportion > 1 {
		return fmt.Errorf("hg_passive_hedge_proportion must be in [0, 1]")
	}
	if c.VolHisPriceWindow <= 0 || c.VolHisPriceWindowLimit < 2 {
		return fmt.Errorf("vol_his_price_window must be > 0 and vol_his_price_window_limit >= 2")
	}
	if c.VolEwmaLambda <= 0 || c.VolEwmaLambda >= 1 {
		return fmt.Errorf("vol_ewma_lambda must be in (0, 1)")
	}
	switch c.Marketplace {
	case MarketBinanceSpot:
		if c.BinanceAPIKey == "" || c.BinanceSecretKey == "" {
			return fmt.Errorf("binance credentials are required (set MM_BINANCE_API_KEY / MM_BINANCE_SECRET_KEY)")
		}
	case MarketHyperliquid:
		if c.HypePriKey == "" {
			return fmt.Errorf("hyperliquid private key is required (set MM_HYPE_PRI_KEY)")
		}
		if c.BinanceAPIKey == "" || c.BinanceSecretKey == "" {
			return fmt.Errorf("binance credentials are required for the hedge venue")
		}
	}
	return nil
}

// LadderSymbol returns the trading-pair description for the ladder venue.
// Binance spot quotes the BASEQUOTE pair; Hyperliquid quotes the bare coin.
func (c *Config) LadderSymbol() string {
	if c.Marketplace == MarketHyperliquid {
		return c.UnderlyingToken
	}
	return c.UnderlyingToken + c.QuoteToken
}

// HedgeSymbol returns the symbol used on the hedge venue. The perp hedge
// always trades the BASEQUOTE pair.
func (c *Config) HedgeSymbol() string {
	return c.UnderlyingToken + c.QuoteToken
}
