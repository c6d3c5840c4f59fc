package models

// Requests for the HTTP endpoints. Defined in domain for consistency and reuse.

type TradesRequest struct {
	Ticker    string `query:"ticker" json:"ticker" validate:"omitempty,ticker"`
	FilerID   string `query:"filer_id" json:"filer_id" validate:"omitempty,max=64"`
	Type      string `query:"type" json:"type" validate:"omitempty,oneof=BUY SELL OPTION_EXERCISE AWARD OTHER"`
	From      string `query:"from" json:"from" validate:"omitempty,isodate"`
	To        string `query:"to" json:"to" validate:"omitempty,isodate"`
	MinAmount string `query:"min_amount" json:"min_amount" validate:"omitempty,numeric"`
	MaxAmount string `query:"max_amount" json:"max_amount" validate:"omitempty,numeric"`
	Limit     int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
	Offset    int    `query:"offset" json:"offset" validate:"gte=0"`
}

type SignalsRequest struct {
	Ticker          string `query:"ticker" json:"ticker" validate:"omitempty,ticker"`
	Type            string `query:"type" json:"type" validate:"omitempty,oneof=BUY SELL HOLD"`
	IncludeInactive bool   `query:"include_inactive" json:"include_inactive"`
	Limit           int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
}

type AllocationRequest struct {
	PortfolioValue string `query:"portfolio_value" json:"portfolio_value" validate:"omitempty,numeric"`
	RiskTolerance  string `query:"risk_tolerance" json:"risk_tolerance" validate:"omitempty,oneof=conservative moderate aggressive"`
}

type GenerateRequest struct {
	PortfolioValue *float64 `json:"portfolio_value"`
	RiskTolerance  string   `json:"risk_tolerance" validate:"omitempty,oneof=conservative moderate aggressive"`
	Ticker         string   `json:"ticker" validate:"omitempty,ticker"`
	WindowDays     int      `json:"window_days" validate:"omitempty,gte=1,lte=3650"`
}

type TradeInput struct {
	Ticker          string   `json:"ticker" validate:"required,max=16"`
	FilerID         string   `json:"filer_id" validate:"required,max=64"`
	TradeDate       string   `json:"trade_date" validate:"required"`
	ReportedDate    string   `json:"reported_date"`
	TransactionType string   `json:"transaction_type" validate:"required"`
	AmountUSD       *float64 `json:"amount_usd"`
	Source          string   `json:"source" validate:"required,max=64"`
	SourceID        string   `json:"source_id"`
}

type FilerInput struct {
	ID       string  `json:"id" validate:"required,max=64"`
	Name     string  `json:"name" validate:"required"`
	Category string  `json:"category" validate:"required,oneof=POLITICIAN CORPORATE_INSIDER INSTITUTION"`
	Role     *string `json:"role"`
	Party    string  `json:"party"`
	State    string  `json:"state"`
	Chamber  string  `json:"chamber"`
	Company  string  `json:"company"`
}

type SecurityInput struct {
	Ticker       string   `json:"ticker" validate:"required,max=16"`
	Name         string   `json:"name"`
	Sector       string   `json:"sector"`
	MarketCapUSD *float64 `json:"market_cap_usd"`
}

type IngestRequest struct {
	Filers     []FilerInput    `json:"filers" validate:"dive"`
	Securities []SecurityInput `json:"securities" validate:"dive"`
	Trades     []TradeInput    `json:"trades" validate:"required,min=1,max=10000"`
}
