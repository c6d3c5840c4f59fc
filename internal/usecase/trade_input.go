package usecase

import (
	"strings"

	"InsiderSignals/internal/domain/models"
	"InsiderSignals/pkg/util"

	"github.com/shopspring/decimal"
)

// BatchFromRequest converts transport inputs into a TradeBatch. Trades with
// unparseable dates keep a zero TradeDate and are rejected by Ingest, so
// result indexes still line up with the request.
func BatchFromRequest(req models.IngestRequest) models.TradeBatch {
	batch := models.TradeBatch{
		Filers:     make([]models.Filer, 0, len(req.Filers)),
		Securities: make([]models.Security, 0, len(req.Securities)),
		Trades:     make([]models.Trade, 0, len(req.Trades)),
	}
	for _, f := range req.Filers {
		batch.Filers = append(batch.Filers, FilerFromInput(f))
	}
	for _, s := range req.Securities {
		batch.Securities = append(batch.Securities, models.Security{
			Ticker:       s.Ticker,
			Name:         s.Name,
			Sector:       s.Sector,
			MarketCapUSD: s.MarketCapUSD,
		})
	}
	for _, t := range req.Trades {
		batch.Trades = append(batch.Trades, TradeFromInput(t))
	}
	return batch
}

func FilerFromInput(f models.FilerInput) models.Filer {
	return models.Filer{
		ID:       f.ID,
		Name:     f.Name,
		Category: models.FilerCategory(strings.ToUpper(strings.TrimSpace(f.Category))),
		Role:     f.Role,
		Party:    models.NormalizeParty(f.Party),
		State:    strings.ToUpper(strings.TrimSpace(f.State)),
		Chamber:  strings.TrimSpace(f.Chamber),
		Company:  strings.TrimSpace(f.Company),
	}
}

func TradeFromInput(in models.TradeInput) models.Trade {
	t := models.Trade{
		Ticker:          in.Ticker,
		FilerID:         in.FilerID,
		TransactionType: models.TransactionType(in.TransactionType),
		Source:          in.Source,
		SourceID:        in.SourceID,
	}
	if d, ok := util.ParseDate(in.TradeDate); ok {
		t.TradeDate = d
	}
	if d, ok := util.ParseDate(in.ReportedDate); ok {
		t.ReportedDate = &d
	}
	if in.AmountUSD != nil {
		a := decimal.NewFromFloat(*in.AmountUSD)
		t.AmountUSD = &a
	}
	return t
}
