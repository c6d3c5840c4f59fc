package api

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "strings"
    "time"

    models "InsiderSignals/internal/domain/models"
    "InsiderSignals/internal/service/metrics"
    "InsiderSignals/internal/service/ratelimit"
    "InsiderSignals/internal/usecase"
    xhttp "InsiderSignals/pkg/http"
    xlogger "InsiderSignals/pkg/logger"
    "InsiderSignals/pkg/queue"

    "github.com/labstack/echo/v4"
    "github.com/shopspring/decimal"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// SignalsEchoHandler serves the trade, signal and allocation endpoints.
type SignalsEchoHandler struct {
    logger *xlogger.Logger
    query  *usecase.SignalQuery
    gen    *usecase.GenerateSignals
    ing    *usecase.IngestTrades
    queue  queue.QueueService
    rl     *ratelimit.Limiter
    checks map[string]HealthCheck
}

func NewSignalsEchoHandler(logger *xlogger.Logger, query *usecase.SignalQuery, gen *usecase.GenerateSignals, ing *usecase.IngestTrades, rl *ratelimit.Limiter) *SignalsEchoHandler {
    metrics.Register()
    if logger == nil {
        logger = xlogger.Nop()
    }
    return &SignalsEchoHandler{logger: logger, query: query, gen: gen, ing: ing, rl: rl, checks: map[string]HealthCheck{}}
}

// SetQueue makes POST /api/signals/generate enqueue instead of running inline.
func (h *SignalsEchoHandler) SetQueue(q queue.QueueService) { h.queue = q }

// AddHealthCheck registers a dependency probed by GET /api/health.
func (h *SignalsEchoHandler) AddHealthCheck(name string, check HealthCheck) { h.checks[name] = check }

func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
    g := e.Group("/api")
    g.GET("/trades", h.Trades)
    g.POST("/trades", h.IngestTrades)
    g.GET("/signals", h.Signals)
    g.POST("/signals/generate", h.Generate)
    g.GET("/allocation", h.Allocation)
    g.GET("/risk-profiles", h.RiskProfiles)
    g.GET("/health", h.Health)
}

func (h *SignalsEchoHandler) Trades(c echo.Context) error {
    req := &models.TradesRequest{}
    if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
        return xhttp.BadRequestResponse(c, verr)
    }
    f := models.TradeFilter{
        Ticker:  usecase.NormalizeTicker(req.Ticker),
        FilerID: strings.TrimSpace(req.FilerID),
        Limit:   req.Limit,
        Offset:  req.Offset,
        Desc:    true,
    }
    if req.Type != "" {
        f.Types = []models.TransactionType{models.TransactionType(req.Type)}
    }
    // both already passed the isodate check
    if req.From != "" {
        f.From, _ = xhttp.ParseDate(req.From)
    }
    if req.To != "" {
        f.To, _ = xhttp.ParseDate(req.To)
    }
    if req.MinAmount != "" {
        d, err := decimal.NewFromString(req.MinAmount)
        if err != nil {
            return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("min_amount %q is not a number", req.MinAmount))
        }
        f.MinAmount = &d
    }
    if req.MaxAmount != "" {
        d, err := decimal.NewFromString(req.MaxAmount)
        if err != nil {
            return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("max_amount %q is not a number", req.MaxAmount))
        }
        f.MaxAmount = &d
    }

    rows, total, err := h.query.Trades(c.Request().Context(), f)
    if err != nil {
        return h.fail(c, "trades", err)
    }
    return xhttp.ListResponse(c, rows, total)
}

func (h *SignalsEchoHandler) IngestTrades(c echo.Context) error {
    req := &models.IngestRequest{}
    if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
        return xhttp.BadRequestResponse(c, verr)
    }
    res, err := h.ing.Ingest(c.Request().Context(), usecase.BatchFromRequest(*req))
    if err != nil {
        return h.fail(c, "ingest", err)
    }
    return xhttp.CreatedResponse(c, res)
}

func (h *SignalsEchoHandler) Signals(c echo.Context) error {
    req := &models.SignalsRequest{}
    if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
        return xhttp.BadRequestResponse(c, verr)
    }
    rows, err := h.query.Signals(c.Request().Context(), models.SignalFilter{
        Ticker:          usecase.NormalizeTicker(req.Ticker),
        Type:            models.SignalType(req.Type),
        IncludeInactive: req.IncludeInactive,
        Limit:           req.Limit,
    })
    if err != nil {
        return h.fail(c, "signals", err)
    }
    c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=15")
    return xhttp.ListResponse(c, rows, int64(len(rows)))
}

func (h *SignalsEchoHandler) Allocation(c echo.Context) error {
    req := &models.AllocationRequest{}
    if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
        return xhttp.BadRequestResponse(c, verr)
    }
    var portfolio *decimal.Decimal
    if req.PortfolioValue != "" {
        d, err := decimal.NewFromString(req.PortfolioValue)
        if err != nil {
            return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("portfolio_value %q is not a number", req.PortfolioValue))
        }
        portfolio = &d
    }
    var risk models.RiskTolerance
    if req.RiskTolerance != "" {
        r, err := models.ParseRiskTolerance(req.RiskTolerance)
        if err != nil {
            return h.fail(c, "allocation", err)
        }
        risk = r
    }
    res, err := h.query.Allocation(c.Request().Context(), portfolio, risk)
    if err != nil {
        return h.fail(c, "allocation", err)
    }
    return xhttp.SuccessResponse(c, res)
}

// Generate runs detection and generation on demand. With a queue configured
// the run is handed to a worker and the response is 202.
func (h *SignalsEchoHandler) Generate(c echo.Context) error {
    if h.rl != nil && !h.rl.Allow(c.RealIP()) {
        metrics.GenerateRequests.WithLabelValues("rate_limited").Inc()
        h.logger.Warn("generate rate_limited", xlogger.String("remote", c.RealIP()))
        return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many generation requests"))
    }
    req := &models.GenerateRequest{}
    if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
        return xhttp.BadRequestResponse(c, verr)
    }
    payload := usecase.GenerateJobPayload{
        Ticker:        req.Ticker,
        RiskTolerance: req.RiskTolerance,
        WindowDays:    req.WindowDays,
    }
    if req.PortfolioValue != nil {
        pv := strconv.FormatFloat(*req.PortfolioValue, 'f', -1, 64)
        payload.PortfolioValue = &pv
    }
    cfg, err := payload.Apply(h.query.Defaults())
    if err != nil {
        return h.fail(c, "generate", err)
    }

    ctx := c.Request().Context()
    if h.queue != nil {
        if err := h.queue.PublishMessage(ctx, usecase.GenerateSignalsJobType, payload); err != nil {
            h.logger.Error("generate enqueue failed", xlogger.Error(err))
            return h.fail(c, "generate", errors.Join(models.ErrDataUnavailable, err))
        }
        metrics.GenerateRequests.WithLabelValues("queued").Inc()
        return xhttp.AcceptedResponse(c, map[string]interface{}{
            "queued": true,
            "scope":  cfg.Scope().Label(),
        })
    }

    run, err := h.gen.Run(ctx, cfg)
    if err != nil {
        return h.fail(c, "generate", err)
    }
    metrics.GenerateRequests.WithLabelValues("sync").Inc()
    return xhttp.SuccessResponse(c, run)
}

func (h *SignalsEchoHandler) RiskProfiles(c echo.Context) error {
    return xhttp.SuccessResponse(c, models.RiskProfiles())
}

func (h *SignalsEchoHandler) Health(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
    defer cancel()
    status := http.StatusOK
    out := make(map[string]string, len(h.checks))
    for name, check := range h.checks {
        if err := check(ctx); err != nil {
            out[name] = err.Error()
            status = http.StatusServiceUnavailable
            continue
        }
        out[name] = "ok"
    }
    return xhttp.DataResponse(c, status, out)
}

func (h *SignalsEchoHandler) fail(c echo.Context, endpoint string, err error) error {
    appErr := ToAppError(err)
    metrics.APIErrors.WithLabelValues(endpoint, appErr.Code).Inc()
    if appErr.Status >= http.StatusInternalServerError {
        h.logger.Error(endpoint+" request failed", xlogger.Error(err))
    } else {
        h.logger.Warn(endpoint+" request rejected", xlogger.String("code", appErr.Code), xlogger.Error(err))
    }
    return xhttp.AppErrorResponse(c, appErr)
}

// ToAppError maps domain sentinels onto transport errors.
func ToAppError(err error) *xhttp.AppError {
    var appErr *xhttp.AppError
    switch {
    case errors.As(err, &appErr):
        return appErr
    case errors.Is(err, models.ErrInvalidConfiguration):
        return xhttp.InvalidConfigurationError(err.Error()).WithError(err)
    case errors.Is(err, models.ErrLockTimeout):
        return xhttp.ConflictError("another batch job holds the trade store").WithError(err)
    case errors.Is(err, models.ErrDataUnavailable):
        return xhttp.ServiceUnavailableError("trade store unavailable").WithError(err)
    case errors.Is(err, context.DeadlineExceeded):
        return xhttp.ServiceUnavailableError("request timed out").WithError(err)
    }
    return xhttp.InternalError("Something went wrong").WithError(err)
}
