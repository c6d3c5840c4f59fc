package usecase

import (
	"context"
	"fmt"

	"InsiderSignals/internal/domain/models"
	"InsiderSignals/pkg/queue"

	"github.com/shopspring/decimal"
)

const GenerateSignalsJobType = "generate_signals"

// GenerateJobPayload is the queued form of an on-demand generation request.
type GenerateJobPayload struct {
	Ticker         string  `json:"ticker,omitempty"`
	RiskTolerance  string  `json:"risk_tolerance,omitempty"`
	PortfolioValue *string `json:"portfolio_value,omitempty"`
	WindowDays     int     `json:"window_days,omitempty"`
}

// Apply overlays the payload on base and validates the result.
func (p GenerateJobPayload) Apply(base models.RunConfig) (models.RunConfig, error) {
	cfg := base
	cfg.Ticker = NormalizeTicker(p.Ticker)
	if p.RiskTolerance != "" {
		r, err := models.ParseRiskTolerance(p.RiskTolerance)
		if err != nil {
			return cfg, err
		}
		cfg.RiskTolerance = r
	}
	if p.PortfolioValue != nil {
		v, err := decimal.NewFromString(*p.PortfolioValue)
		if err != nil {
			return cfg, fmt.Errorf("%w: portfolio_value %q is not a number", models.ErrInvalidConfiguration, *p.PortfolioValue)
		}
		cfg.PortfolioValue = v
	}
	if p.WindowDays != 0 {
		cfg.WindowDays = p.WindowDays
	}
	return cfg, cfg.Validate()
}

// GenerateSignalsJob runs queued generation requests.
type GenerateSignalsJob struct {
	gen  *GenerateSignals
	base models.RunConfig
}

func NewGenerateSignalsJob(gen *GenerateSignals, base models.RunConfig) *GenerateSignalsJob {
	return &GenerateSignalsJob{gen: gen, base: base}
}

func (j *GenerateSignalsJob) Name() string { return "GenerateSignalsJob" }

func (j *GenerateSignalsJob) Type() string { return GenerateSignalsJobType }

func (j *GenerateSignalsJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[GenerateJobPayload](payload)
	if err != nil {
		return queue.Permanent(fmt.Errorf("parse payload: %w", err))
	}
	cfg, err := p.Apply(j.base)
	if err != nil {
		return queue.Permanent(err)
	}
	// as_of is the time the job runs, not when it was queued
	cfg.AsOf = j.gen.now().UTC()
	_, err = j.gen.Run(ctx, cfg)
	return err
}

var _ queue.Job = (*GenerateSignalsJob)(nil)
