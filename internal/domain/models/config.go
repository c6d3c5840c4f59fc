package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type RiskTolerance string

const (
	RiskConservative RiskTolerance = "conservative"
	RiskModerate     RiskTolerance = "moderate"
	RiskAggressive   RiskTolerance = "aggressive"
)

func ParseRiskTolerance(s string) (RiskTolerance, error) {
	r := RiskTolerance(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := riskProfiles[r]; !ok {
		return "", fmt.Errorf("%w: risk_tolerance must be one of conservative, moderate, aggressive, got '%s'", ErrInvalidConfiguration, s)
	}
	return r, nil
}

// RiskProfile bounds what one risk tolerance may emit and allocate.
type RiskProfile struct {
	Tolerance          RiskTolerance `json:"risk_tolerance"`
	MaxSignals         int           `json:"max_signals"`
	PositionCapPct     float64       `json:"position_cap_pct"`
	MinStrength        float64       `json:"min_strength"`
	MaxTotalAllocation float64       `json:"max_total_allocation"`
	MinMarketCapUSD    float64       `json:"min_market_cap_usd"`
}

var riskProfiles = map[RiskTolerance]RiskProfile{
	RiskConservative: {Tolerance: RiskConservative, MaxSignals: 5, PositionCapPct: 0.05, MinStrength: 0.6, MaxTotalAllocation: 0.30, MinMarketCapUSD: 10e9},
	RiskModerate:     {Tolerance: RiskModerate, MaxSignals: 10, PositionCapPct: 0.08, MinStrength: 0.4, MaxTotalAllocation: 0.50, MinMarketCapUSD: 2e9},
	RiskAggressive:   {Tolerance: RiskAggressive, MaxSignals: 20, PositionCapPct: 0.12, MinStrength: 0.3, MaxTotalAllocation: 0.70},
}

// ProfileFor returns the profile of a tolerance. ok is false for unknown values.
func ProfileFor(r RiskTolerance) (RiskProfile, bool) {
	p, ok := riskProfiles[r]
	return p, ok
}

// RiskProfiles lists every profile, most cautious first.
func RiskProfiles() []RiskProfile {
	return []RiskProfile{riskProfiles[RiskConservative], riskProfiles[RiskModerate], riskProfiles[RiskAggressive]}
}

// Weights combine per-ticker factors into a signal strength.
type Weights struct {
	Volume    float64 `json:"volume"`
	Frequency float64 `json:"frequency"`
	Amount    float64 `json:"amount"`
	Recency   float64 `json:"recency"`
}

func DefaultWeights() Weights {
	return Weights{Volume: 0.4, Frequency: 0.3, Amount: 0.2, Recency: 0.1}
}

// RunConfig is built once per run and passed by value to detection and
// generation.
type RunConfig struct {
	AsOf   time.Time
	Ticker string

	WindowDays              int
	ClusterMinFilers        int
	ClusterWindowDays       int
	ClusterSaturationFilers int
	VolumeBaselineMultiple  float64
	VolumeHistoryWindows    int
	VolumeSaturation        float64
	VolumeMinTrades         int
	MomentumMinTrades       int
	MomentumSaturation      int
	AmountSaturationUSD     float64
	BipartisanEnabled       bool
	BipartisanBonus         float64

	Weights        Weights
	CashReservePct float64
	RiskTolerance  RiskTolerance
	PortfolioValue decimal.Decimal
	SignalTTL      time.Duration
}

// DefaultRunConfig mirrors the documented defaults of the engine section.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		WindowDays:              90,
		ClusterMinFilers:        3,
		ClusterWindowDays:       7,
		ClusterSaturationFilers: 6,
		VolumeBaselineMultiple:  1.0,
		VolumeHistoryWindows:    3,
		VolumeSaturation:        5,
		VolumeMinTrades:         2,
		MomentumMinTrades:       2,
		MomentumSaturation:      5,
		AmountSaturationUSD:     10_000_000,
		BipartisanEnabled:       true,
		BipartisanBonus:         0.1,
		Weights:                 DefaultWeights(),
		CashReservePct:          0.5,
		RiskTolerance:           RiskModerate,
		PortfolioValue:          decimal.NewFromInt(100_000),
		SignalTTL:               7 * 24 * time.Hour,
	}
}

// AsOfDay is the evaluation date at midnight UTC. Trades dated after it are
// ignored.
func (c RunConfig) AsOfDay() time.Time {
	y, m, d := c.AsOf.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WindowStart is the first trade date inside the detection window.
func (c RunConfig) WindowStart() time.Time {
	return c.AsOfDay().AddDate(0, 0, -c.WindowDays)
}

// HistoryStart is the first trade date used for the volume baseline.
func (c RunConfig) HistoryStart() time.Time {
	return c.AsOfDay().AddDate(0, 0, -c.WindowDays*(1+c.VolumeHistoryWindows))
}

// Scope is the set of active signals a run replaces.
func (c RunConfig) Scope() SignalScope {
	return SignalScope{Ticker: c.Ticker}
}

// ValidateDetection checks the parameters the pattern scan depends on.
func (c RunConfig) ValidateDetection() error {
	switch {
	case c.WindowDays <= 0:
		return fmt.Errorf("%w: window_days must be positive, got %d", ErrInvalidConfiguration, c.WindowDays)
	case c.ClusterMinFilers < 2:
		return fmt.Errorf("%w: cluster_min_filers must be at least 2, got %d", ErrInvalidConfiguration, c.ClusterMinFilers)
	case c.ClusterWindowDays < 0:
		return fmt.Errorf("%w: cluster_window_days must not be negative, got %d", ErrInvalidConfiguration, c.ClusterWindowDays)
	case c.ClusterSaturationFilers < c.ClusterMinFilers:
		return fmt.Errorf("%w: cluster_saturation_filers must be >= cluster_min_filers", ErrInvalidConfiguration)
	case c.VolumeHistoryWindows <= 0:
		return fmt.Errorf("%w: volume_history_windows must be positive, got %d", ErrInvalidConfiguration, c.VolumeHistoryWindows)
	case c.VolumeBaselineMultiple < 0 || c.VolumeSaturation <= 0:
		return fmt.Errorf("%w: volume multiples must be positive", ErrInvalidConfiguration)
	case c.MomentumMinTrades < 2 || c.MomentumSaturation < c.MomentumMinTrades:
		return fmt.Errorf("%w: momentum thresholds must satisfy 2 <= min <= saturation", ErrInvalidConfiguration)
	}
	return nil
}

// Validate checks the whole run configuration.
func (c RunConfig) Validate() error {
	if err := c.ValidateDetection(); err != nil {
		return err
	}
	if !c.PortfolioValue.IsPositive() {
		return fmt.Errorf("%w: portfolio_value must be greater than 0, got %s", ErrInvalidConfiguration, c.PortfolioValue.String())
	}
	if _, ok := riskProfiles[c.RiskTolerance]; !ok {
		return fmt.Errorf("%w: unknown risk_tolerance '%s'", ErrInvalidConfiguration, c.RiskTolerance)
	}
	if c.CashReservePct < 0 || c.CashReservePct >= 1 {
		return fmt.Errorf("%w: cash_reserve_pct must be in [0,1), got %v", ErrInvalidConfiguration, c.CashReservePct)
	}
	w := c.Weights
	if w.Volume < 0 || w.Frequency < 0 || w.Amount < 0 || w.Recency < 0 {
		return fmt.Errorf("%w: weights must not be negative", ErrInvalidConfiguration)
	}
	if w.Volume+w.Frequency+w.Amount+w.Recency <= 0 {
		return fmt.Errorf("%w: weights must not all be zero", ErrInvalidConfiguration)
	}
	if c.AmountSaturationUSD <= 0 {
		return fmt.Errorf("%w: amount_saturation_usd must be positive", ErrInvalidConfiguration)
	}
	if c.BipartisanBonus < 0 {
		return fmt.Errorf("%w: bipartisan_bonus must not be negative", ErrInvalidConfiguration)
	}
	return nil
}
