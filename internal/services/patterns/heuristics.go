package patterns

import (
    "math"
    "sort"

    "InsiderSignals/internal/domain/models"
    "InsiderSignals/pkg/util"

    "github.com/shopspring/decimal"
)

type tickerTrades struct {
    window  []models.Trade
    history int
}

// Detect scans trades for patterns in the window ending at cfg.AsOf.
// Trades outside [HistoryStart, AsOfDay] and outside the ticker filter are
// ignored, so callers may pass a superset. The result is deterministic for a
// given input.
func Detect(trades []models.Trade, filers map[string]models.Filer, cfg models.RunConfig) models.Detection {
    asOf := cfg.AsOfDay()
    winStart := cfg.WindowStart()
    histStart := cfg.HistoryStart()

    det := models.Detection{
        AsOf:        cfg.AsOf,
        WindowStart: winStart,
        Activity:    make(map[string]models.TickerActivity),
    }

    groups := make(map[string]*tickerTrades)
    for _, t := range trades {
        if cfg.Ticker != "" && t.Ticker != cfg.Ticker {
            continue
        }
        if t.TradeDate.After(asOf) || t.TradeDate.Before(histStart) {
            continue
        }
        g, ok := groups[t.Ticker]
        if !ok {
            g = &tickerTrades{}
            groups[t.Ticker] = g
        }
        if t.TradeDate.Before(winStart) {
            g.history++
            continue
        }
        g.window = append(g.window, t)
        det.Scanned++
    }

    tickers := make([]string, 0, len(groups))
    for tk, g := range groups {
        if len(g.window) > 0 {
            tickers = append(tickers, tk)
        }
    }
    sort.Strings(tickers)

    for _, tk := range tickers {
        g := groups[tk]
        sortTrades(g.window)
        det.Activity[tk] = summarize(tk, g.window)

        if p, ok := unusualVolume(tk, g.window, g.history, cfg); ok {
            det.Patterns = append(det.Patterns, p)
        }
        if p, ok := clusterBuy(tk, g.window, cfg); ok {
            det.Patterns = append(det.Patterns, p)
        }
        if cfg.BipartisanEnabled {
            if p, ok := bipartisan(tk, g.window, filers); ok {
                det.Patterns = append(det.Patterns, p)
            }
        }
        det.Patterns = append(det.Patterns, repeatMomentum(tk, g.window, cfg)...)
    }
    return det
}

func sortTrades(ts []models.Trade) {
    sort.SliceStable(ts, func(i, j int) bool {
        if !ts[i].TradeDate.Equal(ts[j].TradeDate) {
            return ts[i].TradeDate.Before(ts[j].TradeDate)
        }
        return ts[i].ID < ts[j].ID
    })
}

func summarize(ticker string, window []models.Trade) models.TickerActivity {
    a := models.TickerActivity{Ticker: ticker, Trades: len(window), BuyAmount: decimal.Zero}
    filers := make(map[string]struct{})
    for _, t := range window {
        filers[t.FilerID] = struct{}{}
        if !t.HasAmount() {
            a.MissingAmounts++
        }
        switch t.TransactionType {
        case models.TxBuy:
            a.Buys++
            if t.HasAmount() {
                a.BuyAmount = a.BuyAmount.Add(*t.AmountUSD)
            }
            if a.FirstBuy.IsZero() || t.TradeDate.Before(a.FirstBuy) {
                a.FirstBuy = t.TradeDate
            }
            if t.TradeDate.After(a.LastBuy) {
                a.LastBuy = t.TradeDate
            }
        case models.TxSell:
            a.Sells++
        default:
            a.Others++
        }
    }
    a.Filers = len(filers)
    return a
}

// unusualVolume compares the window's trade count with the average count of
// the preceding windows. The average is floored at one trade per window so a
// ticker with no history needs at least VolumeMinTrades trades.
func unusualVolume(ticker string, window []models.Trade, history int, cfg models.RunConfig) (models.Pattern, bool) {
    count := len(window)
    if count < cfg.VolumeMinTrades {
        return models.Pattern{}, false
    }
    baseline := math.Max(float64(history)/float64(cfg.VolumeHistoryWindows), 1)
    multiple := float64(count) / baseline
    if multiple <= cfg.VolumeBaselineMultiple {
        return models.Pattern{}, false
    }
    return models.Pattern{
        Ticker:     ticker,
        Kind:       models.PatternUnusualVolume,
        TradeIDs:   tradeIDs(window),
        Strength:   round4(util.Clamp01(multiple / cfg.VolumeSaturation)),
        FilerCount: distinctFilers(window),
        TradeCount: count,
        SpanDays:   util.DaysBetween(window[0].TradeDate, window[count-1].TradeDate),
        Multiple:   round4(multiple),
    }, true
}

// clusterBuy finds the sub-window of at most ClusterWindowDays with the most
// distinct buying filers. Ties go to the most recent sub-window.
func clusterBuy(ticker string, window []models.Trade, cfg models.RunConfig) (models.Pattern, bool) {
    buys := filterType(window, models.TxBuy)
    bestFilers, bestFrom, bestTo := 0, 0, 0
    for i := range buys {
        seen := make(map[string]struct{})
        j := i
        for ; j < len(buys); j++ {
            if util.DaysBetween(buys[i].TradeDate, buys[j].TradeDate) > cfg.ClusterWindowDays {
                break
            }
            seen[buys[j].FilerID] = struct{}{}
        }
        if len(seen) >= bestFilers {
            bestFilers, bestFrom, bestTo = len(seen), i, j
        }
    }
    if bestFilers < cfg.ClusterMinFilers {
        return models.Pattern{}, false
    }
    cluster := buys[bestFrom:bestTo]
    return models.Pattern{
        Ticker:     ticker,
        Kind:       models.PatternClusterBuy,
        TradeIDs:   tradeIDs(cluster),
        Strength:   round4(util.Clamp01(float64(bestFilers) / float64(cfg.ClusterSaturationFilers))),
        FilerCount: bestFilers,
        TradeCount: len(cluster),
        SpanDays:   util.DaysBetween(cluster[0].TradeDate, cluster[len(cluster)-1].TradeDate),
    }, true
}

// bipartisan matches politicians of both major parties transacting the same
// ticker. It is a yes/no feature so the strength is fixed.
func bipartisan(ticker string, window []models.Trade, filers map[string]models.Filer) (models.Pattern, bool) {
    var supporting []models.Trade
    parties := make(map[models.Party]struct{})
    for _, t := range window {
        f, ok := filers[t.FilerID]
        if !ok || f.Category != models.CategoryPolitician {
            continue
        }
        if f.Party != models.PartyRepublican && f.Party != models.PartyDemocrat {
            continue
        }
        parties[f.Party] = struct{}{}
        supporting = append(supporting, t)
    }
    if len(parties) < 2 {
        return models.Pattern{}, false
    }
    return models.Pattern{
        Ticker:     ticker,
        Kind:       models.PatternBipartisan,
        TradeIDs:   tradeIDs(supporting),
        Strength:   1,
        FilerCount: distinctFilers(supporting),
        TradeCount: len(supporting),
    }, true
}

// repeatMomentum emits one pattern per filer buying the ticker repeatedly.
func repeatMomentum(ticker string, window []models.Trade, cfg models.RunConfig) []models.Pattern {
    byFiler := make(map[string][]models.Trade)
    for _, t := range filterType(window, models.TxBuy) {
        byFiler[t.FilerID] = append(byFiler[t.FilerID], t)
    }
    ids := make([]string, 0, len(byFiler))
    for id, ts := range byFiler {
        if len(ts) >= cfg.MomentumMinTrades {
            ids = append(ids, id)
        }
    }
    sort.Strings(ids)

    out := make([]models.Pattern, 0, len(ids))
    for _, id := range ids {
        ts := byFiler[id]
        out = append(out, models.Pattern{
            Ticker:     ticker,
            Kind:       models.PatternRepeatMomentum,
            TradeIDs:   tradeIDs(ts),
            Strength:   round4(util.Clamp01(float64(len(ts)) / float64(cfg.MomentumSaturation))),
            FilerID:    id,
            FilerCount: 1,
            TradeCount: len(ts),
            SpanDays:   util.DaysBetween(ts[0].TradeDate, ts[len(ts)-1].TradeDate),
        })
    }
    return out
}

func filterType(ts []models.Trade, tp models.TransactionType) []models.Trade {
    out := make([]models.Trade, 0, len(ts))
    for _, t := range ts {
        if t.TransactionType == tp {
            out = append(out, t)
        }
    }
    return out
}

func tradeIDs(ts []models.Trade) []uint64 {
    ids := make([]uint64, 0, len(ts))
    for _, t := range ts {
        ids = append(ids, t.ID)
    }
    sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
    return ids
}

func distinctFilers(ts []models.Trade) int {
    seen := make(map[string]struct{}, len(ts))
    for _, t := range ts {
        seen[t.FilerID] = struct{}{}
    }
    return len(seen)
}

func round4(v float64) float64 {
    return math.Round(v*10000) / 10000
}
