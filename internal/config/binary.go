package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// BinaryConfig 二元佣金配置（金额与百分比使用字符串，避免浮点误差）
type BinaryConfig struct {
	ActivationThreshold       int         `mapstructure:"activation_threshold"`
	DirectCommissionAmount    string      `mapstructure:"direct_commission_amount"`
	PairCommissionAmount      string      `mapstructure:"pair_commission_amount"`
	TDSPercent                string      `mapstructure:"tds_percent"`
	TDSThresholdPairs         int         `mapstructure:"tds_threshold_pairs"`
	ExtraDeductionPercent     string      `mapstructure:"extra_deduction_percent"`
	DailyPairCap              int         `mapstructure:"daily_pair_cap"`
	ActiveBuyerMinPaid        string      `mapstructure:"active_buyer_min_paid"`
	ActivationBonus           string      `mapstructure:"activation_bonus"`
	TDSDebitsBookingBalance   bool        `mapstructure:"tds_debits_booking_balance"`
	Timezone                  string      `mapstructure:"timezone"`
	AsyncDirectCommission     bool        `mapstructure:"async_direct_commission"`
	BatchMatchIntervalSeconds int         `mapstructure:"batch_match_interval_seconds"`
	BatchMatchConcurrency     int         `mapstructure:"batch_match_concurrency"`
	Retry                     RetryConfig `mapstructure:"retry"`
}

// RetryConfig 并发冲突重试配置
type RetryConfig struct {
	MaxRetries  int `mapstructure:"max_retries"`
	BaseDelayMS int `mapstructure:"base_delay_ms"`
	MaxDelayMS  int `mapstructure:"max_delay_ms"`
}

// BinaryRules 校验后的佣金规则
type BinaryRules struct {
	ActivationThreshold     int64
	DirectCommissionAmount  decimal.Decimal
	PairCommissionAmount    decimal.Decimal
	TDSPercent              decimal.Decimal
	TDSThresholdPairs       int
	ExtraDeductionPercent   decimal.Decimal
	DailyPairCap            int
	ActiveBuyerMinPaid      decimal.Decimal
	ActivationBonus         decimal.Decimal
	TDSDebitsBookingBalance bool
	AsyncDirectCommission   bool
	Location                *time.Location
}

// ConfigurationError 配置缺失或非法（启动期致命错误）
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Field, e.Reason)
}

var hundred = decimal.NewFromInt(100)

func setBinaryDefaults(v *viper.Viper) {
	v.SetDefault("binary.activation_threshold", 3)
	v.SetDefault("binary.direct_commission_amount", "1000")
	v.SetDefault("binary.pair_commission_amount", "2000")
	v.SetDefault("binary.tds_percent", "20")
	v.SetDefault("binary.tds_threshold_pairs", 5)
	v.SetDefault("binary.extra_deduction_percent", "20")
	v.SetDefault("binary.daily_pair_cap", 10)
	v.SetDefault("binary.active_buyer_min_paid", "5000")
	v.SetDefault("binary.activation_bonus", "0")
	v.SetDefault("binary.tds_debits_booking_balance", false)
	v.SetDefault("binary.timezone", "UTC")
	v.SetDefault("binary.async_direct_commission", false)
	v.SetDefault("binary.batch_match_interval_seconds", 300)
	v.SetDefault("binary.batch_match_concurrency", 4)
	v.SetDefault("binary.retry.max_retries", 3)
	v.SetDefault("binary.retry.base_delay_ms", 20)
	v.SetDefault("binary.retry.max_delay_ms", 500)
}

// DefaultBinaryConfig 返回默认二元佣金配置
func DefaultBinaryConfig() BinaryConfig {
	return BinaryConfig{
		ActivationThreshold:       3,
		DirectCommissionAmount:    "1000",
		PairCommissionAmount:      "2000",
		TDSPercent:                "20",
		TDSThresholdPairs:         5,
		ExtraDeductionPercent:     "20",
		DailyPairCap:              10,
		ActiveBuyerMinPaid:        "5000",
		ActivationBonus:           "0",
		Timezone:                  "UTC",
		BatchMatchIntervalSeconds: 300,
		BatchMatchConcurrency:     4,
		Retry: RetryConfig{
			MaxRetries:  3,
			BaseDelayMS: 20,
			MaxDelayMS:  500,
		},
	}
}

// Validate 校验配置并解析为佣金规则
func (c BinaryConfig) Validate() (*BinaryRules, error) {
	if c.ActivationThreshold <= 0 {
		return nil, &ConfigurationError{Field: "binary.activation_threshold", Reason: "must be positive"}
	}
	if c.TDSThresholdPairs < 0 {
		return nil, &ConfigurationError{Field: "binary.tds_threshold_pairs", Reason: "must not be negative"}
	}
	if c.DailyPairCap <= 0 {
		return nil, &ConfigurationError{Field: "binary.daily_pair_cap", Reason: "must be positive"}
	}

	direct, err := parsePositiveAmount("binary.direct_commission_amount", c.DirectCommissionAmount)
	if err != nil {
		return nil, err
	}
	pair, err := parsePositiveAmount("binary.pair_commission_amount", c.PairCommissionAmount)
	if err != nil {
		return nil, err
	}
	tds, err := parsePercent("binary.tds_percent", c.TDSPercent)
	if err != nil {
		return nil, err
	}
	extra, err := parsePercent("binary.extra_deduction_percent", c.ExtraDeductionPercent)
	if err != nil {
		return nil, err
	}
	if tds.Add(extra).GreaterThan(hundred) {
		return nil, &ConfigurationError{Field: "binary.extra_deduction_percent", Reason: "tds and extra deduction exceed 100 percent"}
	}
	minPaid, err := parseAmount("binary.active_buyer_min_paid", c.ActiveBuyerMinPaid)
	if err != nil {
		return nil, err
	}
	bonus, err := parseAmount("binary.activation_bonus", c.ActivationBonus)
	if err != nil {
		return nil, err
	}

	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, &ConfigurationError{Field: "binary.timezone", Reason: err.Error()}
	}

	return &BinaryRules{
		ActivationThreshold:     int64(c.ActivationThreshold),
		DirectCommissionAmount:  direct,
		PairCommissionAmount:    pair,
		TDSPercent:              tds,
		TDSThresholdPairs:       c.TDSThresholdPairs,
		ExtraDeductionPercent:   extra,
		DailyPairCap:            c.DailyPairCap,
		ActiveBuyerMinPaid:      minPaid,
		ActivationBonus:         bonus,
		TDSDebitsBookingBalance: c.TDSDebitsBookingBalance,
		AsyncDirectCommission:   c.AsyncDirectCommission,
		Location:                loc,
	}, nil
}

// RetryBaseDelay 重试基础间隔
func (c RetryConfig) RetryBaseDelay() time.Duration {
	if c.BaseDelayMS <= 0 {
		return 20 * time.Millisecond
	}
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

// RetryMaxDelay 重试最大间隔
func (c RetryConfig) RetryMaxDelay() time.Duration {
	if c.MaxDelayMS <= 0 {
		return 500 * time.Millisecond
	}
	maxDelay := time.Duration(c.MaxDelayMS) * time.Millisecond
	if maxDelay < c.RetryBaseDelay() {
		return c.RetryBaseDelay()
	}
	return maxDelay
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, &ConfigurationError{Field: field, Reason: "missing"}
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &ConfigurationError{Field: field, Reason: "not a decimal"}
	}
	if value.IsNegative() {
		return decimal.Zero, &ConfigurationError{Field: field, Reason: "must not be negative"}
	}
	return value.Round(2), nil
}

func parsePositiveAmount(field, raw string) (decimal.Decimal, error) {
	value, err := parseAmount(field, raw)
	if err != nil {
		return decimal.Zero, err
	}
	if !value.IsPositive() {
		return decimal.Zero, &ConfigurationError{Field: field, Reason: "must be positive"}
	}
	return value, nil
}

func parsePercent(field, raw string) (decimal.Decimal, error) {
	value, err := parseAmount(field, raw)
	if err != nil {
		return decimal.Zero, err
	}
	if value.GreaterThan(hundred) {
		return decimal.Zero, &ConfigurationError{Field: field, Reason: "must be within [0, 100]"}
	}
	return value, nil
}
