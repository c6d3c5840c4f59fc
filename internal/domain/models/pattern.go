package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PatternKind string

const (
	PatternUnusualVolume  PatternKind = "UNUSUAL_VOLUME"
	PatternClusterBuy     PatternKind = "CLUSTER_BUY"
	PatternBipartisan     PatternKind = "BIPARTISAN"
	PatternRepeatMomentum PatternKind = "REPEAT_MOMENTUM"
)

// Rank orders pattern kinds inside one ticker group.
func (k PatternKind) Rank() int {
	switch k {
	case PatternUnusualVolume:
		return 0
	case PatternClusterBuy:
		return 1
	case PatternBipartisan:
		return 2
	case PatternRepeatMomentum:
		return 3
	}
	return 4
}

// Pattern is a heuristic match over a ticker's trades. It is recomputed on
// every run and never persisted.
type Pattern struct {
	Ticker     string      `json:"ticker"`
	Kind       PatternKind `json:"kind"`
	TradeIDs   []uint64    `json:"supporting_trade_ids"`
	Strength   float64     `json:"strength"`
	FilerID    string      `json:"filer_id,omitempty"`
	FilerCount int         `json:"filer_count,omitempty"`
	TradeCount int         `json:"trade_count,omitempty"`
	SpanDays   int         `json:"span_days,omitempty"`
	Multiple   float64     `json:"multiple,omitempty"`
}

// TickerActivity summarises a ticker's trades inside the detection window.
type TickerActivity struct {
	Ticker         string
	Trades         int
	Buys           int
	Sells          int
	Others         int
	Filers         int
	BuyAmount      decimal.Decimal
	MissingAmounts int
	FirstBuy       time.Time
	LastBuy        time.Time
}

// SellDominated reports whether sells outnumber buys.
func (a TickerActivity) SellDominated() bool { return a.Sells > a.Buys }

// Detection is the output of one pattern scan.
type Detection struct {
	AsOf        time.Time
	WindowStart time.Time
	Scanned     int
	Patterns    []Pattern
	Activity    map[string]TickerActivity
}

// ByTicker groups patterns preserving their order.
func (d Detection) ByTicker() map[string][]Pattern {
	out := make(map[string][]Pattern)
	for _, p := range d.Patterns {
		out[p.Ticker] = append(out[p.Ticker], p)
	}
	return out
}
