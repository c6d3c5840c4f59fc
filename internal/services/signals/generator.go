package signals

import (
    "encoding/json"
    "fmt"
    "math"
    "sort"
    "strings"

    "InsiderSignals/internal/domain/models"
    "InsiderSignals/pkg/util"

    "gorm.io/datatypes"
)

type factors struct {
    volume     float64
    frequency  float64
    amount     float64
    recency    float64
    bipartisan bool
}

type candidate struct {
    ticker   string
    strength float64
    patterns []models.Pattern
    activity models.TickerActivity
    capKnown bool
}

// Generate turns a detection into ranked BUY signals and the portfolio
// allocation they imply. It reads nothing but its arguments: CreatedAt and
// ExpiresAt derive from cfg.AsOf. securities may be nil; tickers without a
// known market cap pass the market-cap filter.
func Generate(det models.Detection, cfg models.RunConfig, securities map[string]models.Security) (models.Generation, error) {
    if err := cfg.Validate(); err != nil {
        return models.Generation{}, err
    }
    profile, _ := models.ProfileFor(cfg.RiskTolerance)

    byTicker := det.ByTicker()
    tickers := make([]string, 0, len(byTicker))
    for tk := range byTicker {
        tickers = append(tickers, tk)
    }
    sort.Strings(tickers)

    candidates := make([]candidate, 0, len(tickers))
    for _, tk := range tickers {
        act := det.Activity[tk]
        if act.Buys == 0 || act.SellDominated() {
            continue
        }
        ps := byTicker[tk]
        strength := score(scoreFactors(ps, act, cfg), cfg)
        if strength <= 0 || strength < profile.MinStrength {
            continue
        }
        sec, ok := securities[tk]
        capKnown := ok && sec.MarketCapUSD != nil
        if capKnown && *sec.MarketCapUSD < profile.MinMarketCapUSD {
            continue
        }
        candidates = append(candidates, candidate{ticker: tk, strength: strength, patterns: ps, activity: act, capKnown: capKnown})
    }

    sort.SliceStable(candidates, func(i, j int) bool {
        if candidates[i].strength != candidates[j].strength {
            return candidates[i].strength > candidates[j].strength
        }
        return candidates[i].ticker < candidates[j].ticker
    })
    if len(candidates) > profile.MaxSignals {
        candidates = candidates[:profile.MaxSignals]
    }

    ranked := make([]models.Position, len(candidates))
    for i, c := range candidates {
        ranked[i] = models.Position{Ticker: c.ticker, Strength: c.strength}
    }
    alloc := Allocate(ranked, cfg)

    expires := cfg.AsOf.Add(cfg.SignalTTL)
    out := make([]models.Signal, 0, len(candidates))
    for i, c := range candidates {
        refs, err := patternRefs(c.patterns)
        if err != nil {
            return models.Generation{}, fmt.Errorf("encode patterns for %s: %w", c.ticker, err)
        }
        s := models.Signal{
            Ticker:        c.ticker,
            SignalType:    models.SignalBuy,
            Strength:      c.strength,
            Conviction:    models.ConvictionFor(c.strength),
            Reasoning:     Reasoning(c.ticker, c.patterns, c.activity, c.capKnown),
            PositionPct:   alloc.Positions[i].Pct,
            PositionValue: alloc.Positions[i].Value,
            HorizonDays:   horizonDays(c.activity),
            Patterns:      refs,
            IsActive:      true,
            CreatedAt:     cfg.AsOf,
        }
        if cfg.SignalTTL > 0 {
            e := expires
            s.ExpiresAt = &e
        }
        out = append(out, s)
    }
    return models.Generation{Signals: out, Allocation: alloc}, nil
}

func scoreFactors(ps []models.Pattern, act models.TickerActivity, cfg models.RunConfig) factors {
    var f factors
    for _, p := range ps {
        switch p.Kind {
        case models.PatternUnusualVolume:
            f.volume = math.Max(f.volume, p.Strength)
        case models.PatternClusterBuy, models.PatternRepeatMomentum:
            f.frequency = math.Max(f.frequency, p.Strength)
        case models.PatternBipartisan:
            f.bipartisan = true
        }
    }
    f.amount = util.Clamp01(act.BuyAmount.InexactFloat64() / cfg.AmountSaturationUSD)
    if !act.LastBuy.IsZero() {
        days := util.DaysBetween(act.LastBuy, cfg.AsOfDay())
        f.recency = util.Clamp01(1 - float64(days)/float64(cfg.WindowDays))
    }
    return f
}

// score combines factors with the configured weights, clamped to [0,1].
func score(f factors, cfg models.RunConfig) float64 {
    w := cfg.Weights
    s := w.Volume*f.volume + w.Frequency*f.frequency + w.Amount*f.amount + w.Recency*f.recency
    if f.bipartisan {
        s += cfg.BipartisanBonus
    }
    return math.Round(util.Clamp01(s)*10000) / 10000
}

// Reasoning renders the human readable explanation stored with a signal.
func Reasoning(ticker string, ps []models.Pattern, act models.TickerActivity, capKnown bool) string {
    var parts []string
    momentumFilers, momentumMax := 0, 0
    for _, p := range ps {
        switch p.Kind {
        case models.PatternClusterBuy:
            parts = append(parts, fmt.Sprintf("cluster buy by %d distinct filers %s", p.FilerCount, spanText(p.SpanDays)))
        case models.PatternUnusualVolume:
            parts = append(parts, fmt.Sprintf("unusual volume at %.1fx the trailing baseline (%d trades)", p.Multiple, p.TradeCount))
        case models.PatternBipartisan:
            parts = append(parts, fmt.Sprintf("bipartisan interest from %d politicians", p.FilerCount))
        case models.PatternRepeatMomentum:
            momentumFilers++
            if p.TradeCount > momentumMax {
                momentumMax = p.TradeCount
            }
        }
    }
    if momentumFilers > 0 {
        parts = append(parts, fmt.Sprintf("repeat buying by %d %s (up to %d buys each)", momentumFilers, plural(momentumFilers, "filer", "filers"), momentumMax))
    }

    var b strings.Builder
    b.WriteString(ticker)
    b.WriteString(": ")
    b.WriteString(strings.Join(parts, "; "))
    fmt.Fprintf(&b, ". %d insider %s totaling $%s", act.Buys, plural(act.Buys, "buy", "buys"), formatUSD(act.BuyAmount.IntPart()))
    if act.MissingAmounts > 0 {
        fmt.Fprintf(&b, " (%d %s without a disclosed amount)", act.MissingAmounts, plural(act.MissingAmounts, "trade", "trades"))
    }
    b.WriteString(".")
    if act.Sells > 0 {
        fmt.Fprintf(&b, " Risk: %d recent insider %s.", act.Sells, plural(act.Sells, "sell", "sells"))
    }
    if !capKnown {
        b.WriteString(" Market cap unknown.")
    }
    return b.String()
}

func patternRefs(ps []models.Pattern) (datatypes.JSON, error) {
    refs := make([]models.PatternRef, 0, len(ps))
    for _, p := range ps {
        refs = append(refs, models.PatternRef{Kind: p.Kind, Strength: p.Strength, TradeIDs: p.TradeIDs})
    }
    b, err := json.Marshal(refs)
    if err != nil {
        return nil, err
    }
    return datatypes.JSON(b), nil
}

// horizonDays scales the holding horizon with how long the buying lasted.
func horizonDays(act models.TickerActivity) int {
    span := 0
    if !act.FirstBuy.IsZero() {
        span = util.DaysBetween(act.FirstBuy, act.LastBuy)
    }
    h := int(math.Round(1.5 * float64(span)))
    if h < 30 {
        return 30
    }
    if h > 120 {
        return 120
    }
    return h
}

func spanText(days int) string {
    if days == 0 {
        return "on the same day"
    }
    return fmt.Sprintf("within %d %s", days, plural(days, "day", "days"))
}

func plural(n int, one, many string) string {
    if n == 1 {
        return one
    }
    return many
}

func formatUSD(v int64) string {
    s := fmt.Sprintf("%d", v)
    neg := strings.HasPrefix(s, "-")
    if neg {
        s = s[1:]
    }
    var b strings.Builder
    for i, r := range s {
        if i > 0 && (len(s)-i)%3 == 0 {
            b.WriteByte(',')
        }
        b.WriteRune(r)
    }
    if neg {
        return "-" + b.String()
    }
    return b.String()
}
