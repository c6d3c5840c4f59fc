package signals

import (
    "math"
    "sort"

    "InsiderSignals/internal/domain/models"
    "InsiderSignals/pkg/util"

    "github.com/shopspring/decimal"
)

// Allocate sizes ranked positions for cfg's portfolio and risk tolerance.
// Each position gets PositionCapPct scaled by its strength. When the sum
// exceeds the deployable fraction, min(1-CashReservePct, MaxTotalAllocation),
// every position is scaled by the same factor. Values are truncated to cents
// so the invested total never exceeds the deployable amount.
func Allocate(ranked []models.Position, cfg models.RunConfig) models.Allocation {
    profile, _ := models.ProfileFor(cfg.RiskTolerance)
    deployable := math.Min(1-cfg.CashReservePct, profile.MaxTotalAllocation)

    positions := make([]models.Position, len(ranked))
    total := 0.0
    for i, p := range ranked {
        pct := profile.PositionCapPct * util.Clamp01(p.Strength)
        positions[i] = models.Position{Ticker: p.Ticker, Strength: p.Strength, Pct: pct}
        total += pct
    }
    if total > deployable && total > 0 {
        scale := deployable / total
        for i := range positions {
            positions[i].Pct *= scale
        }
    }

    invested := decimal.Zero
    investedPct := decimal.Zero
    for i := range positions {
        pct := floor6(positions[i].Pct)
        positions[i].Pct = pct
        dp := decimal.NewFromFloat(pct)
        positions[i].Value = cfg.PortfolioValue.Mul(dp).Truncate(2)
        invested = invested.Add(positions[i].Value)
        investedPct = investedPct.Add(dp)
    }

    cashPct := decimal.NewFromInt(1).Sub(investedPct)
    return models.Allocation{
        PortfolioValue: cfg.PortfolioValue,
        RiskTolerance:  cfg.RiskTolerance,
        CashReservePct: cfg.CashReservePct,
        InvestedPct:    investedPct.InexactFloat64(),
        InvestedValue:  invested,
        CashPct:        cashPct.InexactFloat64(),
        CashValue:      cfg.PortfolioValue.Sub(invested),
        Weights:        cfg.Weights,
        Positions:      positions,
    }
}

// AllocateSignals sizes an already persisted signal set under cfg's risk
// profile. Only active BUY signals that meet the profile's strength floor
// take a position; so do tickers whose market cap in securities is unknown
// or at least the profile's floor.
func AllocateSignals(signals []models.Signal, cfg models.RunConfig, securities map[string]models.Security) models.Allocation {
    profile, _ := models.ProfileFor(cfg.RiskTolerance)
    ranked := make([]models.Position, 0, len(signals))
    for _, s := range signals {
        if s.SignalType != models.SignalBuy || !s.IsActive || s.Strength < profile.MinStrength {
            continue
        }
        if sec, ok := securities[s.Ticker]; ok && sec.MarketCapUSD != nil && *sec.MarketCapUSD < profile.MinMarketCapUSD {
            continue
        }
        if len(ranked) == profile.MaxSignals {
            break
        }
        ranked = append(ranked, models.Position{Ticker: s.Ticker, Strength: s.Strength})
    }
    return Allocate(ranked, cfg)
}

// Rebalance sizes fresh, the signals of a ticker-scoped run, together with
// the active BUY signals the run keeps, so the whole active set stays within
// the deployable fraction. Positions of fresh are rewritten in place; the
// kept signals get their new sizes back as resize. Signals ranked past the
// profile's MaxSignals keep no position.
func Rebalance(fresh, kept []models.Signal, cfg models.RunConfig) (models.Allocation, []models.SignalSize) {
    profile, _ := models.ProfileFor(cfg.RiskTolerance)
    type entry struct {
        sig  *models.Signal
        kept bool
    }
    all := make([]entry, 0, len(fresh)+len(kept))
    for i := range fresh {
        all = append(all, entry{sig: &fresh[i]})
    }
    for i := range kept {
        if kept[i].SignalType == models.SignalBuy && kept[i].IsActive {
            all = append(all, entry{sig: &kept[i], kept: true})
        }
    }
    sort.SliceStable(all, func(i, j int) bool {
        a, b := all[i].sig, all[j].sig
        if a.Strength != b.Strength {
            return a.Strength > b.Strength
        }
        return a.Ticker < b.Ticker
    })

    n := len(all)
    if n > profile.MaxSignals {
        n = profile.MaxSignals
    }
    ranked := make([]models.Position, n)
    for i := 0; i < n; i++ {
        ranked[i] = models.Position{Ticker: all[i].sig.Ticker, Strength: all[i].sig.Strength}
    }
    alloc := Allocate(ranked, cfg)

    resize := make([]models.SignalSize, 0, len(kept))
    for i, e := range all {
        pct, value := 0.0, decimal.Zero
        if i < n {
            pct, value = alloc.Positions[i].Pct, alloc.Positions[i].Value
        }
        e.sig.PositionPct, e.sig.PositionValue = pct, value
        if e.kept {
            resize = append(resize, models.SignalSize{ID: e.sig.ID, Pct: pct, Value: value})
        }
    }
    return alloc, resize
}

// floor6 truncates to six decimals, absorbing float noise below 1e-12.
func floor6(v float64) float64 {
    return math.Floor(v*1e6+1e-6) / 1e6
}
