package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type SignalType string

const (
	SignalBuy  SignalType = "BUY"
	SignalSell SignalType = "SELL"
	SignalHold SignalType = "HOLD"
)

func (s SignalType) Valid() bool {
	return s == SignalBuy || s == SignalSell || s == SignalHold
}

// Conviction buckets a strength for display.
type Conviction string

const (
	ConvictionWeak       Conviction = "weak"
	ConvictionModerate   Conviction = "moderate"
	ConvictionStrong     Conviction = "strong"
	ConvictionVeryStrong Conviction = "very_strong"
)

func ConvictionFor(strength float64) Conviction {
	switch {
	case strength >= 0.85:
		return ConvictionVeryStrong
	case strength >= 0.7:
		return ConvictionStrong
	case strength >= 0.5:
		return ConvictionModerate
	}
	return ConvictionWeak
}

// Signal is a persisted recommendation. Rows are only ever deactivated by a
// later run over the same scope.
type Signal struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	RunID         string          `gorm:"type:varchar(36);not null;index" json:"run_id"`
	Ticker        string          `gorm:"type:varchar(16);not null;index" json:"ticker"`
	SignalType    SignalType      `gorm:"type:varchar(8);not null" json:"signal_type"`
	Strength      float64         `gorm:"not null" json:"strength"`
	Conviction    Conviction      `gorm:"type:varchar(16)" json:"conviction"`
	Reasoning     string          `gorm:"type:text;not null" json:"reasoning"`
	PositionPct   float64         `json:"position_pct"`
	PositionValue decimal.Decimal `gorm:"type:numeric(20,2)" json:"position_value"`
	HorizonDays   int             `json:"horizon_days"`
	Patterns      datatypes.JSON  `gorm:"type:jsonb" json:"patterns,omitempty"`
	IsActive      bool            `gorm:"not null;index" json:"is_active"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	ExpiresAt     *time.Time      `json:"expires_at,omitempty"`
}

func (Signal) TableName() string { return "signals" }

// Expired reports whether s had expired by at. A zero at never expires.
func (s Signal) Expired(at time.Time) bool {
	return !at.IsZero() && s.ExpiresAt != nil && !s.ExpiresAt.After(at)
}

// SignalSize is the new position of an active signal kept across a
// ticker-scoped run.
type SignalSize struct {
	ID    uint64
	Pct   float64
	Value decimal.Decimal
}

// PatternRef is the persisted trace of a pattern behind a signal.
type PatternRef struct {
	Kind     PatternKind `json:"kind"`
	Strength float64     `json:"strength"`
	TradeIDs []uint64    `json:"trade_ids"`
}

// SignalScope selects the active signals a run supersedes. An empty ticker
// means every ticker.
type SignalScope struct {
	Ticker string
}

// SignalFilter selects signals. A non-zero ActiveAt also drops active
// signals that expired at or before it.
type SignalFilter struct {
	Ticker          string
	Type            SignalType
	IncludeInactive bool
	ActiveAt        time.Time
	Limit           int
}

func (f SignalFilter) Match(s Signal) bool {
	if !f.IncludeInactive && !s.IsActive {
		return false
	}
	if !f.IncludeInactive && s.Expired(f.ActiveAt) {
		return false
	}
	if f.Ticker != "" && s.Ticker != f.Ticker {
		return false
	}
	if f.Type != "" && s.SignalType != f.Type {
		return false
	}
	return true
}

type Position struct {
	Ticker   string          `json:"ticker"`
	Strength float64         `json:"strength"`
	Pct      float64         `json:"pct"`
	Value    decimal.Decimal `json:"value"`
}

// Allocation is the portfolio split implied by a signal set.
type Allocation struct {
	PortfolioValue decimal.Decimal `json:"portfolio_value"`
	RiskTolerance  RiskTolerance   `json:"risk_tolerance"`
	CashReservePct float64         `json:"cash_reserve_pct"`
	InvestedPct    float64         `json:"invested_pct"`
	InvestedValue  decimal.Decimal `json:"invested_value"`
	CashPct        float64         `json:"cash_pct"`
	CashValue      decimal.Decimal `json:"cash_value"`
	Weights        Weights         `json:"weights"`
	Positions      []Position      `json:"positions"`
}

// Generation is the output of the signal generator for one run.
type Generation struct {
	Signals    []Signal
	Allocation Allocation
}

// RunResult describes a committed generation run.
type RunResult struct {
	RunID      string        `json:"run_id"`
	AsOf       time.Time     `json:"as_of"`
	Scope      string        `json:"scope"`
	Patterns   []Pattern     `json:"patterns"`
	Signals    []Signal      `json:"signals"`
	Allocation Allocation    `json:"allocation"`
	Trades     int           `json:"trades_scanned"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
}

// Digest is the periodic summary of the strongest active signals and the
// allocation the whole active set implies under the default profile.
type Digest struct {
	AsOf       time.Time  `json:"as_of"`
	Active     int        `json:"active_signals"`
	Top        []Signal   `json:"top_signals"`
	Allocation Allocation `json:"allocation"`
}

// Label renders a scope for logs and events.
func (s SignalScope) Label() string {
	if s.Ticker == "" {
		return "all"
	}
	return "ticker:" + s.Ticker
}
