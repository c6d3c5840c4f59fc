package usecase

import (
	"InsiderSignals/internal/domain/models"
	"InsiderSignals/pkg/config"

	"github.com/shopspring/decimal"
)

// RunConfigFromEngine turns the engine section into the base run
// configuration. The result is validated so a bad file fails at startup.
func RunConfigFromEngine(e config.Engine) (models.RunConfig, error) {
	cfg := models.RunConfig{
		WindowDays:              e.WindowDays,
		ClusterMinFilers:        e.ClusterMinFilers,
		ClusterWindowDays:       e.ClusterWindowDays,
		ClusterSaturationFilers: e.ClusterSaturationFilers,
		VolumeBaselineMultiple:  e.VolumeBaselineMultiple,
		VolumeHistoryWindows:    e.VolumeHistoryWindows,
		VolumeSaturation:        e.VolumeSaturation,
		VolumeMinTrades:         e.VolumeMinTrades,
		MomentumMinTrades:       e.MomentumMinTrades,
		MomentumSaturation:      e.MomentumSaturation,
		AmountSaturationUSD:     e.AmountSaturationUSD,
		BipartisanEnabled:       e.BipartisanEnabled,
		BipartisanBonus:         e.BipartisanBonus,
		Weights: models.Weights{
			Volume:    e.Weights.Volume,
			Frequency: e.Weights.Frequency,
			Amount:    e.Weights.Amount,
			Recency:   e.Weights.Recency,
		},
		CashReservePct: e.CashReservePct,
		PortfolioValue: decimal.NewFromFloat(e.PortfolioValue),
		SignalTTL:      e.SignalTTL,
	}
	risk, err := models.ParseRiskTolerance(e.RiskTolerance)
	if err != nil {
		return cfg, err
	}
	cfg.RiskTolerance = risk
	return cfg, cfg.Validate()
}
