package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TxBuy            TransactionType = "BUY"
	TxSell           TransactionType = "SELL"
	TxOptionExercise TransactionType = "OPTION_EXERCISE"
	TxAward          TransactionType = "AWARD"
	TxOther          TransactionType = "OTHER"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TxBuy, TxSell, TxOptionExercise, TxAward, TxOther:
		return true
	}
	return false
}

type FilerCategory string

const (
	CategoryPolitician       FilerCategory = "POLITICIAN"
	CategoryCorporateInsider FilerCategory = "CORPORATE_INSIDER"
	CategoryInstitution      FilerCategory = "INSTITUTION"
)

func (c FilerCategory) Valid() bool {
	switch c {
	case CategoryPolitician, CategoryCorporateInsider, CategoryInstitution:
		return true
	}
	return false
}

type Party string

const (
	PartyNone        Party = ""
	PartyRepublican  Party = "REPUBLICAN"
	PartyDemocrat    Party = "DEMOCRAT"
	PartyIndependent Party = "INDEPENDENT"
)

// NormalizeParty maps the spellings used by disclosure sources ("R", "Rep",
// "Democratic", ...) onto Party.
func NormalizeParty(s string) Party {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "R", "REP", "REPUBLICAN", "GOP":
		return PartyRepublican
	case "D", "DEM", "DEMOCRAT", "DEMOCRATIC":
		return PartyDemocrat
	case "I", "IND", "INDEPENDENT":
		return PartyIndependent
	}
	return PartyNone
}

// Filer is the person or entity that reported trades.
type Filer struct {
	ID        string        `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name      string        `gorm:"type:varchar(255);not null" json:"name"`
	Category  FilerCategory `gorm:"type:varchar(32);not null;index" json:"category"`
	Role      *string       `gorm:"type:varchar(255)" json:"role,omitempty"`
	Party     Party         `gorm:"type:varchar(16)" json:"party,omitempty"`
	State     string        `gorm:"type:varchar(8)" json:"state,omitempty"`
	Chamber   string        `gorm:"type:varchar(16)" json:"chamber,omitempty"`
	Company   string        `gorm:"type:varchar(255)" json:"company,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (Filer) TableName() string { return "filers" }

// Trade is one normalized disclosure row. AmountUSD is nil when the source
// did not report a value.
type Trade struct {
	ID              uint64           `gorm:"primaryKey;autoIncrement" json:"id"`
	Ticker          string           `gorm:"type:varchar(16);not null;index:idx_trades_ticker_date,priority:1" json:"ticker"`
	FilerID         string           `gorm:"type:varchar(64);not null;index" json:"filer_id"`
	TradeDate       time.Time        `gorm:"type:date;not null;index:idx_trades_ticker_date,priority:2" json:"trade_date"`
	ReportedDate    *time.Time       `gorm:"type:date" json:"reported_date,omitempty"`
	TransactionType TransactionType  `gorm:"type:varchar(24);not null" json:"transaction_type"`
	AmountUSD       *decimal.Decimal `gorm:"type:numeric(20,2)" json:"amount_usd"`
	Source          string           `gorm:"type:varchar(64);not null" json:"source"`
	SourceID        string           `gorm:"type:varchar(128)" json:"source_id,omitempty"`
	DedupKey        string           `gorm:"type:varchar(255);not null;uniqueIndex" json:"-"`
	CreatedAt       time.Time        `json:"created_at"`
}

func (Trade) TableName() string { return "trades" }

// HasAmount reports whether the trade carries a disclosed dollar amount.
func (t Trade) HasAmount() bool { return t.AmountUSD != nil }

// Key builds the deduplication key used on insert.
func (t Trade) Key() string {
	amount := "na"
	if t.AmountUSD != nil {
		amount = t.AmountUSD.StringFixed(2)
	}
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		t.Ticker, t.FilerID, t.TradeDate.Format(DateLayout), t.TransactionType, amount)
}

// Security holds reference metadata used by the market-cap filter.
type Security struct {
	Ticker       string    `gorm:"primaryKey;type:varchar(16)" json:"ticker"`
	Name         string    `gorm:"type:varchar(255)" json:"name,omitempty"`
	Sector       string    `gorm:"type:varchar(128)" json:"sector,omitempty"`
	MarketCapUSD *float64  `json:"market_cap_usd,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Security) TableName() string { return "securities" }

const DateLayout = "2006-01-02"

// TradeFilter narrows trade queries. Zero values mean "no constraint".
type TradeFilter struct {
	Ticker    string
	FilerID   string
	Types     []TransactionType
	From      time.Time
	To        time.Time
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	Limit     int
	Offset    int
	Desc      bool
}

// Match applies the filter to a single trade in memory.
func (f TradeFilter) Match(t Trade) bool {
	if f.Ticker != "" && t.Ticker != f.Ticker {
		return false
	}
	if f.FilerID != "" && t.FilerID != f.FilerID {
		return false
	}
	if len(f.Types) > 0 {
		ok := false
		for _, tp := range f.Types {
			if tp == t.TransactionType {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.From.IsZero() && t.TradeDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.TradeDate.After(f.To) {
		return false
	}
	if f.MinAmount != nil && (t.AmountUSD == nil || t.AmountUSD.LessThan(*f.MinAmount)) {
		return false
	}
	if f.MaxAmount != nil && (t.AmountUSD == nil || t.AmountUSD.GreaterThan(*f.MaxAmount)) {
		return false
	}
	return true
}

// TradeBatch is the unit accepted by ingestion.
type TradeBatch struct {
	Filers     []Filer
	Securities []Security
	Trades     []Trade
}

type RejectedTrade struct {
	Index  int    `json:"index"`
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

type IngestResult struct {
	Received   int             `json:"received"`
	Inserted   int             `json:"inserted"`
	Duplicates int             `json:"duplicates"`
	Rejected   []RejectedTrade `json:"rejected,omitempty"`
}
