package api

import (
    "context"
    "encoding/json"
    "errors"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    models "InsiderSignals/internal/domain/models"
    domrepo "InsiderSignals/internal/domain/repository"
    "InsiderSignals/internal/repository"
    "InsiderSignals/internal/service/ratelimit"
    "InsiderSignals/internal/usecase"
    pkgcache "InsiderSignals/pkg/cache"
    pkgmetrics "InsiderSignals/pkg/metrics"

    "github.com/labstack/echo/v4"
)

type envelope struct {
    Status  int             `json:"status"`
    Message string          `json:"message"`
    Data    json.RawMessage `json:"data"`
}

type errorBody struct {
    Code    string `json:"code"`
    Message string `json:"message"`
}

type brokenStore struct {
    *repository.MemoryStore
}

func (brokenStore) ListTrades(context.Context, models.TradeFilter) ([]models.Trade, error) {
    return nil, errors.New("pq: connection refused")
}

type recordingQueue struct {
    types    []string
    payloads []interface{}
}

func (q *recordingQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
    q.types = append(q.types, msgType)
    q.payloads = append(q.payloads, payload)
    return nil
}

type testServer struct {
    e     *echo.Echo
    h     *SignalsEchoHandler
    cache *pkgcache.MemoryCache
}

func setup(t *testing.T, rl *ratelimit.Limiter) *testServer {
    t.Helper()
    return setupWithStore(t, repository.NewMemoryStore(), rl)
}

func setupWithStore(t *testing.T, store domrepo.Store, rl *ratelimit.Limiter) *testServer {
    t.Helper()
    cache := pkgcache.NewMemoryCache()
    t.Cleanup(func() { _ = cache.Close() })
    lock := usecase.NewStoreLock(cache, time.Minute, 50*time.Millisecond)
    base := models.DefaultRunConfig()
    gen := usecase.NewGenerateSignals(store, lock, pkgmetrics.Nop{})
    ing := usecase.NewIngestTrades(store, lock, pkgmetrics.Nop{})
    q := usecase.NewSignalQuery(store, base)

    h := NewSignalsEchoHandler(nil, q, gen, ing, rl)
    e := echo.New()
    h.RegisterRoutes(e)
    return &testServer{e: e, h: h, cache: cache}
}

func (s *testServer) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
    t.Helper()
    req := httptest.NewRequest(method, target, strings.NewReader(body))
    if body != "" {
        req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
    }
    rec := httptest.NewRecorder()
    s.e.ServeHTTP(rec, req)
    var env envelope
    if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
        t.Fatalf("%s %s: decode %q: %v", method, target, rec.Body.String(), err)
    }
    return rec, env
}

func firstError(t *testing.T, env envelope) errorBody {
    t.Helper()
    var errs []errorBody
    if err := json.Unmarshal(env.Data, &errs); err != nil || len(errs) == 0 {
        t.Fatalf("expected error list, got %s", env.Data)
    }
    return errs[0]
}

const ingestBody = `{
  "filers": [
    {"id": "f1", "name": "A", "category": "CORPORATE_INSIDER"},
    {"id": "f2", "name": "B", "category": "CORPORATE_INSIDER"},
    {"id": "f3", "name": "C", "category": "POLITICIAN", "party": "D"},
    {"id": "f4", "name": "D", "category": "POLITICIAN", "party": "R"}
  ],
  "trades": [
    {"ticker": "acme", "filer_id": "f1", "trade_date": "%DAY1%", "transaction_type": "BUY", "amount_usd": 500000, "source": "sec_form4"},
    {"ticker": "ACME", "filer_id": "f2", "trade_date": "%DAY2%", "transaction_type": "BUY", "amount_usd": 1000000, "source": "sec_form4"},
    {"ticker": "ACME", "filer_id": "f3", "trade_date": "%DAY2%", "transaction_type": "BUY", "amount_usd": 250000, "source": "house"},
    {"ticker": "ACME", "filer_id": "f4", "trade_date": "%DAY3%", "transaction_type": "BUY", "amount_usd": 2000000, "source": "senate"},
    {"ticker": "ACME", "filer_id": "f4", "trade_date": "%DAY3%", "transaction_type": "GIFT", "source": "senate"}
  ]
}`

func recentIngestBody() string {
    today := time.Now().UTC()
    r := strings.NewReplacer(
        "%DAY1%", today.AddDate(0, 0, -4).Format("2006-01-02"),
        "%DAY2%", today.AddDate(0, 0, -3).Format("2006-01-02"),
        "%DAY3%", today.AddDate(0, 0, -2).Format("2006-01-02"),
    )
    return r.Replace(ingestBody)
}

func TestIngestGenerateAndRead(t *testing.T) {
    s := setup(t, nil)

    rec, env := s.do(t, http.MethodPost, "/api/trades", recentIngestBody())
    if rec.Code != http.StatusCreated {
        t.Fatalf("ingest status=%d body=%s", rec.Code, rec.Body.String())
    }
    var res models.IngestResult
    _ = json.Unmarshal(env.Data, &res)
    if res.Inserted != 4 || len(res.Rejected) != 1 || res.Rejected[0].Index != 4 {
        t.Fatalf("ingest result %+v", res)
    }

    rec, env = s.do(t, http.MethodPost, "/api/signals/generate", `{"risk_tolerance": "aggressive", "portfolio_value": 50000}`)
    if rec.Code != http.StatusOK {
        t.Fatalf("generate status=%d body=%s", rec.Code, rec.Body.String())
    }
    var run models.RunResult
    _ = json.Unmarshal(env.Data, &run)
    if run.RunID == "" || len(run.Signals) != 1 || run.Signals[0].Ticker != "ACME" {
        t.Fatalf("run=%+v", run)
    }

    rec, env = s.do(t, http.MethodGet, "/api/signals?type=BUY", "")
    if rec.Code != http.StatusOK {
        t.Fatalf("signals status=%d", rec.Code)
    }
    var list struct {
        Rows  []models.Signal `json:"rows"`
        Total int64           `json:"total"`
    }
    _ = json.Unmarshal(env.Data, &list)
    if list.Total != 1 || list.Rows[0].RunID != run.RunID {
        t.Fatalf("signals=%+v", list)
    }

    rec, env = s.do(t, http.MethodGet, "/api/trades?ticker=acme&limit=2", "")
    if rec.Code != http.StatusOK {
        t.Fatalf("trades status=%d", rec.Code)
    }
    var trades struct {
        Rows  []models.Trade `json:"rows"`
        Total int64          `json:"total"`
    }
    _ = json.Unmarshal(env.Data, &trades)
    if len(trades.Rows) != 2 || trades.Total != 4 {
        t.Fatalf("trades rows=%d total=%d", len(trades.Rows), trades.Total)
    }
    if trades.Rows[0].TradeDate.Before(trades.Rows[1].TradeDate) {
        t.Fatalf("trades should be newest first")
    }

    rec, env = s.do(t, http.MethodGet, "/api/allocation?portfolio_value=100000&risk_tolerance=conservative", "")
    if rec.Code != http.StatusOK {
        t.Fatalf("allocation status=%d body=%s", rec.Code, rec.Body.String())
    }
    var alloc models.Allocation
    _ = json.Unmarshal(env.Data, &alloc)
    if alloc.RiskTolerance != models.RiskConservative || alloc.CashPct < 0.5 {
        t.Fatalf("allocation=%+v", alloc)
    }
}

func TestErrorStatusMapping(t *testing.T) {
    tests := []struct {
        name   string
        method string
        target string
        body   string
        prep   func(*testServer)
        status int
        code   string
    }{
        {
            name:   "zero portfolio",
            method: http.MethodGet, target: "/api/allocation?portfolio_value=0",
            status: http.StatusBadRequest, code: "ERR_INVALID_CONFIGURATION",
        },
        {
            name:   "negative portfolio on generate",
            method: http.MethodPost, target: "/api/signals/generate", body: `{"portfolio_value": -10}`,
            status: http.StatusBadRequest, code: "ERR_INVALID_CONFIGURATION",
        },
        {
            name:   "unknown risk tolerance",
            method: http.MethodGet, target: "/api/allocation?risk_tolerance=yolo",
            status: http.StatusBadRequest, code: "ERR_ONEOF",
        },
        {
            name:   "bad date",
            method: http.MethodGet, target: "/api/trades?from=yesterday",
            status: http.StatusBadRequest, code: "ERR_ISODATE",
        },
        {
            name:   "lock held",
            method: http.MethodPost, target: "/api/signals/generate", body: `{}`,
            prep: func(s *testServer) {
                _, _ = s.cache.TryLock(context.Background(), usecase.TradeStoreLockKey, time.Minute)
            },
            status: http.StatusConflict, code: "ERR_CONFLICT",
        },
    }
    for _, tt := range tests {
        t.Run(tt.name, func(t *testing.T) {
            s := setup(t, nil)
            if tt.prep != nil {
                tt.prep(s)
            }
            rec, env := s.do(t, tt.method, tt.target, tt.body)
            if rec.Code != tt.status {
                t.Fatalf("status=%d want=%d body=%s", rec.Code, tt.status, rec.Body.String())
            }
            if got := firstError(t, env).Code; got != tt.code {
                t.Fatalf("code=%s want=%s", got, tt.code)
            }
        })
    }
}

func TestStoreFailureIs503(t *testing.T) {
    s := setupWithStore(t, brokenStore{repository.NewMemoryStore()}, nil)
    rec, env := s.do(t, http.MethodGet, "/api/trades", "")
    if rec.Code != http.StatusServiceUnavailable {
        t.Fatalf("status=%d want=503", rec.Code)
    }
    if strings.Contains(string(env.Data), "connection refused") {
        t.Fatalf("driver errors must not leak: %s", env.Data)
    }

    rec, _ = s.do(t, http.MethodPost, "/api/signals/generate", `{}`)
    if rec.Code != http.StatusServiceUnavailable {
        t.Fatalf("generate status=%d want=503", rec.Code)
    }
}

func TestGenerateRateLimited(t *testing.T) {
    s := setup(t, ratelimit.New(1, 0))
    if rec, _ := s.do(t, http.MethodPost, "/api/signals/generate", `{}`); rec.Code != http.StatusOK {
        t.Fatalf("first status=%d", rec.Code)
    }
    rec, env := s.do(t, http.MethodPost, "/api/signals/generate", `{}`)
    if rec.Code != http.StatusTooManyRequests {
        t.Fatalf("second status=%d want=429", rec.Code)
    }
    if firstError(t, env).Code != "ERR_RATE_LIMITED" {
        t.Fatalf("unexpected body %s", env.Data)
    }
}

func TestGenerateQueued(t *testing.T) {
    s := setup(t, nil)
    q := &recordingQueue{}
    s.h.SetQueue(q)

    rec, _ := s.do(t, http.MethodPost, "/api/signals/generate", `{"ticker": "acme"}`)
    if rec.Code != http.StatusAccepted {
        t.Fatalf("status=%d want=202", rec.Code)
    }
    if len(q.types) != 1 || q.types[0] != usecase.GenerateSignalsJobType {
        t.Fatalf("queued=%v", q.types)
    }
    p, ok := q.payloads[0].(usecase.GenerateJobPayload)
    if !ok || p.Ticker != "acme" {
        t.Fatalf("payload=%#v", q.payloads[0])
    }
    active, _ := s.h.query.Signals(context.Background(), models.SignalFilter{})
    if len(active) != 0 {
        t.Fatalf("queued request must not run inline")
    }
}

func TestRiskProfilesAndHealth(t *testing.T) {
    s := setup(t, nil)
    rec, env := s.do(t, http.MethodGet, "/api/risk-profiles", "")
    if rec.Code != http.StatusOK {
        t.Fatalf("status=%d", rec.Code)
    }
    var profiles []models.RiskProfile
    _ = json.Unmarshal(env.Data, &profiles)
    if len(profiles) != 3 || profiles[0].Tolerance != models.RiskConservative {
        t.Fatalf("profiles=%+v", profiles)
    }

    s.h.AddHealthCheck("store", func(context.Context) error { return nil })
    if rec, _ := s.do(t, http.MethodGet, "/api/health", ""); rec.Code != http.StatusOK {
        t.Fatalf("health status=%d", rec.Code)
    }
    s.h.AddHealthCheck("redis", func(context.Context) error { return errors.New("dial tcp: refused") })
    rec, env = s.do(t, http.MethodGet, "/api/health", "")
    if rec.Code != http.StatusServiceUnavailable {
        t.Fatalf("health status=%d want=503", rec.Code)
    }
    var checks map[string]string
    _ = json.Unmarshal(env.Data, &checks)
    if checks["store"] != "ok" || checks["redis"] == "ok" {
        t.Fatalf("checks=%v", checks)
    }
}
