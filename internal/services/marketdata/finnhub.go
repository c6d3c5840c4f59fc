package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"InsiderSignals/internal/domain/models"
	domrepo "InsiderSignals/internal/domain/repository"
	pkgcache "InsiderSignals/pkg/cache"
	xhttp "InsiderSignals/pkg/http"
	applogger "InsiderSignals/pkg/logger"
)

const cachePrefix = "security"

// profile is the subset of Finnhub's /stock/profile2 response we use.
// marketCapitalization is reported in millions of USD.
type profile struct {
	Ticker               string  `json:"ticker"`
	Name                 string  `json:"name"`
	Industry             string  `json:"finnhubIndustry"`
	MarketCapitalization float64 `json:"marketCapitalization"`
}

// FinnhubResolver looks up company profiles for tickers the store has no
// market cap for. Results, including unknown tickers, are cached for ttl.
type FinnhubResolver struct {
	client  *xhttp.Client
	baseURL string
	apiKey  string
	cache   pkgcache.Service
	ttl     time.Duration
	l       *applogger.Logger
	now     func() time.Time
}

func NewFinnhubResolver(baseURL, apiKey string, timeout time.Duration) *FinnhubResolver {
	return &FinnhubResolver{
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout), xhttp.WithRetry(2, 500*time.Millisecond)),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		l:       applogger.Nop(),
		now:     time.Now,
	}
}

// SetCache enables caching of lookups for ttl.
func (r *FinnhubResolver) SetCache(c pkgcache.Service, ttl time.Duration) {
	r.cache = c
	r.ttl = ttl
}

// SetLogger injects a structured logger.
func (r *FinnhubResolver) SetLogger(l *applogger.Logger) { r.l = l }

// Resolve returns nil without error when Finnhub does not know the ticker.
func (r *FinnhubResolver) Resolve(ctx context.Context, ticker string) (*models.Security, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("resolve: empty ticker")
	}
	key := pkgcache.GenerateKey(cachePrefix, ticker)
	if r.cache != nil {
		var raw string
		err := r.cache.Get(ctx, key, &raw)
		switch {
		case err == nil:
			return decodeCached(raw)
		case !errors.Is(err, pkgcache.ErrCacheMiss):
			r.l.Warn("security cache get failed", applogger.String("key", key), applogger.Error(err))
		}
	}

	var p profile
	err := r.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         r.baseURL + "/stock/profile2",
		Headers:     map[string]string{"X-Finnhub-Token": r.apiKey},
		QueryParams: map[string][]string{"symbol": {ticker}},
	}, &p)
	var se *xhttp.StatusError
	switch {
	case errors.As(err, &se) && se.StatusCode == http.StatusNotFound:
		p = profile{}
	case err != nil:
		return nil, fmt.Errorf("finnhub profile %s: %w", ticker, err)
	}

	var sec *models.Security
	if p.Ticker != "" || p.MarketCapitalization > 0 {
		sec = &models.Security{
			Ticker:    ticker,
			Name:      p.Name,
			Sector:    p.Industry,
			UpdatedAt: r.now().UTC(),
		}
		if p.MarketCapitalization > 0 {
			capUSD := p.MarketCapitalization * 1e6
			sec.MarketCapUSD = &capUSD
		}
	}
	r.store(ctx, key, sec)
	r.l.Debug("security resolved", applogger.Ticker(ticker), applogger.Bool("found", sec != nil))
	return sec, nil
}

func (r *FinnhubResolver) store(ctx context.Context, key string, sec *models.Security) {
	if r.cache == nil {
		return
	}
	b, err := json.Marshal(sec)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, string(b), r.ttl); err != nil {
		r.l.Warn("security cache set failed", applogger.String("key", key), applogger.Error(err))
	}
}

func decodeCached(raw string) (*models.Security, error) {
	var sec *models.Security
	if err := json.Unmarshal([]byte(raw), &sec); err != nil {
		return nil, fmt.Errorf("decode cached security: %w", err)
	}
	return sec, nil
}

var _ domrepo.SecurityResolver = (*FinnhubResolver)(nil)
