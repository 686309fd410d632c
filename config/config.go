// Package config loads and validates the worker configuration from YAML or
// JSON files and converts the file-shaped sections into the typed configs the
// engine packages consume.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hampro/tradecore/execution"
	"github.com/hampro/tradecore/guardrails"
	"github.com/hampro/tradecore/orders"
)

// Config is the complete worker configuration.
type Config struct {
	Service    ServiceConfig    `json:"service" yaml:"service"`
	Store      StoreConfig      `json:"store" yaml:"store"`
	Bus        BusConfig        `json:"bus" yaml:"bus"`
	Guardrails GuardrailsConfig `json:"guardrails" yaml:"guardrails"`
	Orders     OrdersConfig     `json:"orders" yaml:"orders"`
	Execution  ExecutionConfig  `json:"execution" yaml:"execution"`
}

// ServiceConfig contains process-level parameters.
type ServiceConfig struct {
	LogLevel string   `json:"log_level" yaml:"log_level"`
	Provider string   `json:"provider" yaml:"provider"`
	Book     string   `json:"book" yaml:"book"`
	Accounts []string `json:"accounts" yaml:"accounts"`
}

// StoreConfig selects the state store backend.
type StoreConfig struct {
	Type   string `json:"type" yaml:"type"` // "memory" or "sqlite"
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// BusConfig contains event-bus parameters.
type BusConfig struct {
	ClaimTimeoutSeconds int `json:"claim_timeout_seconds" yaml:"claim_timeout_seconds"`
}

// GuardrailsConfig contains the risk-check ceilings. A zero ceiling disables
// that check.
type GuardrailsConfig struct {
	MaxCompanyExposurePct  float64 `json:"max_company_exposure_pct" yaml:"max_company_exposure_pct"`
	BefdayMaxalwMultiplier float64 `json:"befday_maxalw_multiplier" yaml:"befday_maxalw_multiplier"`

	MaxDailyChangePerSymbol int `json:"max_daily_change_per_symbol" yaml:"max_daily_change_per_symbol"`
	MaxDailyChangeTotal     int `json:"max_daily_change_total" yaml:"max_daily_change_total"`
	MaxDailyOrders          int `json:"max_daily_orders" yaml:"max_daily_orders"`

	MaxOpenOrders          int `json:"max_open_orders" yaml:"max_open_orders"`
	MaxOpenOrdersPerSymbol int `json:"max_open_orders_per_symbol" yaml:"max_open_orders_per_symbol"`

	DuplicateWindowSeconds    int `json:"duplicate_window_seconds" yaml:"duplicate_window_seconds"`
	SameSymbolCooldownSeconds int `json:"same_symbol_cooldown_seconds" yaml:"same_symbol_cooldown_seconds"`

	MaxPositionPerSymbol int     `json:"max_position_per_symbol" yaml:"max_position_per_symbol"`
	MaxOrderValue        float64 `json:"max_order_value" yaml:"max_order_value"`

	ResetTime string `json:"reset_time" yaml:"reset_time"` // "HH:MM"
	Timezone  string `json:"timezone" yaml:"timezone"`
}

// OrdersConfig tunes the controller's cancel and replace loops.
type OrdersConfig struct {
	CancelCheckIntervalSeconds int  `json:"cancel_check_interval_seconds" yaml:"cancel_check_interval_seconds"`
	MaxOrderAgeSeconds         int  `json:"max_order_age_seconds" yaml:"max_order_age_seconds"`
	CancelUnfilled             bool `json:"cancel_unfilled" yaml:"cancel_unfilled"`

	ReplaceCheckIntervalSeconds int     `json:"replace_check_interval_seconds" yaml:"replace_check_interval_seconds"`
	MaxReplaceCount             int     `json:"max_replace_count" yaml:"max_replace_count"`
	ReplacePartialFills         bool    `json:"replace_partial_fills" yaml:"replace_partial_fills"`
	PriceImprovementThreshold   float64 `json:"price_improvement_threshold" yaml:"price_improvement_threshold"`

	ShutdownGraceSeconds int `json:"shutdown_grace_seconds" yaml:"shutdown_grace_seconds"`
}

// ExecutionConfig tunes the intent-consuming poll loop.
type ExecutionConfig struct {
	Group            string  `json:"group" yaml:"group"`
	Consumer         string  `json:"consumer" yaml:"consumer"`
	ReadCount        int     `json:"read_count" yaml:"read_count"`
	ReadBlockSeconds int     `json:"read_block_seconds" yaml:"read_block_seconds"`
	HardCapGrossPct  float64 `json:"hard_cap_gross_pct" yaml:"hard_cap_gross_pct"`
	SimulateFills    bool    `json:"simulate_fills" yaml:"simulate_fills"`

	MaxADVFraction     float64 `json:"max_adv_fraction" yaml:"max_adv_fraction"`
	CloseWindowMinutes int     `json:"close_window_minutes" yaml:"close_window_minutes"`
}

var resetTimeRe = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

// LoadFromFile loads configuration from a file (YAML or JSON). Missing
// sections keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Service.Provider == "" {
		return fmt.Errorf("service.provider is required")
	}
	if c.Store.Type != "memory" && c.Store.Type != "sqlite" {
		return fmt.Errorf("store.type must be 'memory' or 'sqlite'")
	}
	if c.Store.Type == "sqlite" && c.Store.DBPath == "" {
		return fmt.Errorf("store.db_path required for sqlite type")
	}
	if c.Guardrails.ResetTime != "" && !resetTimeRe.MatchString(c.Guardrails.ResetTime) {
		return fmt.Errorf("guardrails.reset_time must be HH:MM, got %q", c.Guardrails.ResetTime)
	}
	if c.Guardrails.Timezone != "" {
		if _, err := time.LoadLocation(c.Guardrails.Timezone); err != nil {
			return fmt.Errorf("guardrails.timezone: %w", err)
		}
	}
	if c.Guardrails.BefdayMaxalwMultiplier < 0 {
		return fmt.Errorf("guardrails.befday_maxalw_multiplier must not be negative")
	}
	if c.Orders.MaxOrderAgeSeconds < 0 {
		return fmt.Errorf("orders.max_order_age_seconds must not be negative")
	}
	if c.Execution.HardCapGrossPct < 0 {
		return fmt.Errorf("execution.hard_cap_gross_pct must not be negative")
	}
	if c.Execution.MaxADVFraction < 0 || c.Execution.MaxADVFraction > 1 {
		return fmt.Errorf("execution.max_adv_fraction must be between 0 and 1")
	}
	return nil
}

// GuardrailsEngine converts the file-shaped section into the engine config.
func (c *Config) GuardrailsEngine() (guardrails.Config, error) {
	loc := time.UTC
	if c.Guardrails.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(c.Guardrails.Timezone)
		if err != nil {
			return guardrails.Config{}, fmt.Errorf("guardrails.timezone: %w", err)
		}
	}
	return guardrails.Config{
		MaxCompanyExposurePct:   c.Guardrails.MaxCompanyExposurePct,
		BefdayMaxalwMultiplier:  c.Guardrails.BefdayMaxalwMultiplier,
		MaxDailyChangePerSymbol: c.Guardrails.MaxDailyChangePerSymbol,
		MaxDailyChangeTotal:     c.Guardrails.MaxDailyChangeTotal,
		MaxDailyOrders:          c.Guardrails.MaxDailyOrders,
		MaxOpenOrders:           c.Guardrails.MaxOpenOrders,
		MaxOpenOrdersPerSymbol:  c.Guardrails.MaxOpenOrdersPerSymbol,
		DuplicateWindow:         seconds(c.Guardrails.DuplicateWindowSeconds),
		SameSymbolCooldown:      seconds(c.Guardrails.SameSymbolCooldownSeconds),
		MaxPositionPerSymbol:    c.Guardrails.MaxPositionPerSymbol,
		MaxOrderValue:           c.Guardrails.MaxOrderValue,
		ResetTime:               c.Guardrails.ResetTime,
		Location:                loc,
	}, nil
}

// OrderController converts the orders section into the controller config.
func (c *Config) OrderController() orders.Config {
	return orders.Config{
		CancelCheckInterval:       seconds(c.Orders.CancelCheckIntervalSeconds),
		MaxOrderAge:               seconds(c.Orders.MaxOrderAgeSeconds),
		CancelUnfilled:            c.Orders.CancelUnfilled,
		ReplaceCheckInterval:      seconds(c.Orders.ReplaceCheckIntervalSeconds),
		MaxReplaceCount:           c.Orders.MaxReplaceCount,
		ReplacePartialFills:       c.Orders.ReplacePartialFills,
		PriceImprovementThreshold: c.Orders.PriceImprovementThreshold,
		ShutdownGrace:             seconds(c.Orders.ShutdownGraceSeconds),
	}
}

// ExecutionService converts the execution section into the service config.
func (c *Config) ExecutionService() execution.Config {
	return execution.Config{
		Provider:        c.Service.Provider,
		Book:            c.Service.Book,
		Group:           c.Execution.Group,
		Consumer:        c.Execution.Consumer,
		ReadCount:       c.Execution.ReadCount,
		ReadBlock:       seconds(c.Execution.ReadBlockSeconds),
		HardCapGrossPct: c.Execution.HardCapGrossPct,
		SimulateFills:   c.Execution.SimulateFills,
	}
}

// LiquidityGuard builds the default ADV guard from the execution section.
func (c *Config) LiquidityGuard() *execution.ADVGuard {
	return &execution.ADVGuard{
		MaxADVFraction:     c.Execution.MaxADVFraction,
		CloseWindowMinutes: c.Execution.CloseWindowMinutes,
	}
}

// BusClaimTimeout returns the pending-entry claim timeout.
func (c *Config) BusClaimTimeout() time.Duration {
	return seconds(c.Bus.ClaimTimeoutSeconds)
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			LogLevel: "info",
			Provider: "SIM-001",
			Book:     "EQUITY",
			Accounts: []string{"SIM-001"},
		},
		Store: StoreConfig{
			Type: "memory",
		},
		Bus: BusConfig{
			ClaimTimeoutSeconds: 30,
		},
		Guardrails: GuardrailsConfig{
			MaxCompanyExposurePct:     1.0,
			BefdayMaxalwMultiplier:    0.75,
			MaxDailyOrders:            500,
			MaxOpenOrders:             50,
			MaxOpenOrdersPerSymbol:    5,
			DuplicateWindowSeconds:    60,
			SameSymbolCooldownSeconds: 10,
			ResetTime:                 "00:00",
		},
		Orders: OrdersConfig{
			CancelCheckIntervalSeconds:  10,
			MaxOrderAgeSeconds:          300,
			ReplaceCheckIntervalSeconds: 15,
			MaxReplaceCount:             3,
			PriceImprovementThreshold:   0.05,
			ShutdownGraceSeconds:        5,
		},
		Execution: ExecutionConfig{
			Group:            "execution",
			Consumer:         "worker-1",
			ReadCount:        16,
			ReadBlockSeconds: 1,
			HardCapGrossPct:  130.0,
			SimulateFills:    true,
			MaxADVFraction:   0.05,
		},
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
