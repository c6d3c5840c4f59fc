package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"InsiderSignals/internal/domain/models"
	"InsiderSignals/pkg/config"
	"InsiderSignals/pkg/queue"
)

func TestGenerateJobPayload_Apply(t *testing.T) {
	pv := "50000"
	bad := "lots"
	tests := []struct {
		name    string
		payload GenerateJobPayload
		wantErr bool
		check   func(models.RunConfig) bool
	}{
		{"defaults", GenerateJobPayload{}, false, func(c models.RunConfig) bool { return c.RiskTolerance == models.RiskModerate }},
		{"overrides", GenerateJobPayload{Ticker: "acme", RiskTolerance: "Aggressive", PortfolioValue: &pv, WindowDays: 30}, false, func(c models.RunConfig) bool {
			return c.Ticker == "ACME" && c.RiskTolerance == models.RiskAggressive && c.PortfolioValue.IntPart() == 50000 && c.WindowDays == 30
		}},
		{"bad risk", GenerateJobPayload{RiskTolerance: "reckless"}, true, nil},
		{"bad portfolio", GenerateJobPayload{PortfolioValue: &bad}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.payload.Apply(testConfig())
			if tt.wantErr {
				if !errors.Is(err, models.ErrInvalidConfiguration) {
					t.Fatalf("err=%v want ErrInvalidConfiguration", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if !tt.check(cfg) {
				t.Fatalf("unexpected config %+v", cfg)
			}
		})
	}
}

func TestGenerateSignalsJob_HandleRawPayload(t *testing.T) {
	f := newFixture(t)
	f.ingest(t, clusterBatch("ACME"))
	job := NewGenerateSignalsJob(f.gen, testConfig())

	// payloads come back from redis as raw JSON
	err := job.Handle(context.Background(), json.RawMessage(`{"ticker":"ACME","risk_tolerance":"aggressive"}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	active, _ := f.store.ListSignals(context.Background(), models.SignalFilter{Ticker: "ACME"})
	if len(active) != 1 {
		t.Fatalf("active=%d want=1", len(active))
	}
}

func TestGenerateSignalsJob_InvalidPayloadIsPermanent(t *testing.T) {
	f := newFixture(t)
	job := NewGenerateSignalsJob(f.gen, testConfig())

	err := job.Handle(context.Background(), json.RawMessage(`{"risk_tolerance":"reckless"}`))
	if !queue.IsPermanent(err) || !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Fatalf("err=%v want permanent ErrInvalidConfiguration", err)
	}
	if err := job.Handle(context.Background(), 42); !queue.IsPermanent(err) {
		t.Fatalf("err=%v want permanent parse error", err)
	}
}

func TestRunConfigFromEngine(t *testing.T) {
	var e config.Engine
	e.WindowDays = 90
	e.ClusterMinFilers = 3
	e.ClusterWindowDays = 7
	e.ClusterSaturationFilers = 6
	e.VolumeBaselineMultiple = 1
	e.VolumeHistoryWindows = 3
	e.VolumeSaturation = 5
	e.VolumeMinTrades = 2
	e.MomentumMinTrades = 2
	e.MomentumSaturation = 5
	e.AmountSaturationUSD = 10_000_000
	e.CashReservePct = 0.5
	e.RiskTolerance = "conservative"
	e.PortfolioValue = 250_000
	e.Weights.Volume, e.Weights.Frequency, e.Weights.Amount, e.Weights.Recency = 0.4, 0.3, 0.2, 0.1

	cfg, err := RunConfigFromEngine(e)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if cfg.RiskTolerance != models.RiskConservative || cfg.PortfolioValue.IntPart() != 250_000 {
		t.Fatalf("cfg=%+v", cfg)
	}

	e.RiskTolerance = "wild"
	if _, err := RunConfigFromEngine(e); !errors.Is(err, models.ErrInvalidConfiguration) {
		t.Fatalf("err=%v want ErrInvalidConfiguration", err)
	}
}
