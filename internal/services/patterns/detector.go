package patterns

import (
    "context"
    "fmt"
    "sort"

    "InsiderSignals/internal/domain/models"
    domrepo "InsiderSignals/internal/domain/repository"
    applogger "InsiderSignals/pkg/logger"
)

// Detector loads the trailing window from the trade store and runs Detect.
type Detector struct {
    store domrepo.TradeStore
    l     *applogger.Logger
}

func NewDetector(store domrepo.TradeStore) *Detector {
    return &Detector{store: store}
}

// SetLogger injects a structured logger.
func (d *Detector) SetLogger(l *applogger.Logger) { d.l = l }

// Scan reads trades and filers for the run window. Store failures are
// returned wrapped in models.ErrDataUnavailable.
func (d *Detector) Scan(ctx context.Context, cfg models.RunConfig) (models.Detection, error) {
    if err := cfg.ValidateDetection(); err != nil {
        return models.Detection{}, err
    }
    trades, err := d.store.ListTrades(ctx, models.TradeFilter{
        Ticker: cfg.Ticker,
        From:   cfg.HistoryStart(),
        To:     cfg.AsOfDay(),
    })
    if err != nil {
        return models.Detection{}, fmt.Errorf("%w: list trades: %w", models.ErrDataUnavailable, err)
    }

    filers := map[string]models.Filer{}
    if ids := filerIDs(trades); len(ids) > 0 {
        rows, err := d.store.ListFilers(ctx, ids)
        if err != nil {
            return models.Detection{}, fmt.Errorf("%w: list filers: %w", models.ErrDataUnavailable, err)
        }
        for _, f := range rows {
            filers[f.ID] = f
        }
        if d.l != nil && len(rows) < len(ids) {
            d.l.Warn("trades reference unknown filers",
                applogger.Int("referenced", len(ids)),
                applogger.Int("found", len(rows)),
            )
        }
    }

    det := Detect(trades, filers, cfg)
    if d.l != nil {
        d.l.Debug("pattern scan complete",
            applogger.String("scope", cfg.Scope().Label()),
            applogger.Int("trades", det.Scanned),
            applogger.Int("tickers", len(det.Activity)),
            applogger.Int("patterns", len(det.Patterns)),
        )
    }
    return det, nil
}

func filerIDs(trades []models.Trade) []string {
    seen := make(map[string]struct{})
    for _, t := range trades {
        seen[t.FilerID] = struct{}{}
    }
    ids := make([]string, 0, len(seen))
    for id := range seen {
        ids = append(ids, id)
    }
    sort.Strings(ids)
    return ids
}
