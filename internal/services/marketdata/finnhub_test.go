package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	pkgcache "InsiderSignals/pkg/cache"
	xhttp "InsiderSignals/pkg/http"
)

func newProfileServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/stock/profile2" || r.Header.Get("X-Finnhub-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("symbol") {
		case "ACME":
			_, _ = w.Write([]byte(`{"ticker":"ACME","name":"Acme Corp","finnhubIndustry":"Machinery","marketCapitalization":12500.5}`))
		case "BOOM":
			w.WriteHeader(http.StatusTooManyRequests)
		case "GONE":
			w.WriteHeader(http.StatusNotFound)
		default:
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFinnhubResolver_Resolve(t *testing.T) {
	var hits atomic.Int32
	srv := newProfileServer(t, &hits)
	cache := pkgcache.NewMemoryCache()
	defer cache.Close()

	r := NewFinnhubResolver(srv.URL+"/", "secret", time.Second)
	r.SetCache(cache, time.Hour)
	ctx := context.Background()

	sec, err := r.Resolve(ctx, " acme")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sec == nil || sec.Ticker != "ACME" || sec.Sector != "Machinery" {
		t.Fatalf("security=%+v", sec)
	}
	if sec.MarketCapUSD == nil || *sec.MarketCapUSD != 12500.5e6 {
		t.Fatalf("market cap=%v want 12.5005e9", sec.MarketCapUSD)
	}

	if _, err := r.Resolve(ctx, "ACME"); err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("second lookup should hit the cache, hits=%d", hits.Load())
	}

	unknown, err := r.Resolve(ctx, "ZZZZ")
	if err != nil || unknown != nil {
		t.Fatalf("unknown ticker: sec=%+v err=%v", unknown, err)
	}
	if again, _ := r.Resolve(ctx, "ZZZZ"); again != nil || hits.Load() != 2 {
		t.Fatalf("unknown ticker should be cached, hits=%d", hits.Load())
	}
}

func TestFinnhubResolver_UpstreamError(t *testing.T) {
	var hits atomic.Int32
	srv := newProfileServer(t, &hits)
	r := NewFinnhubResolver(srv.URL, "secret", time.Second)
	r.client = xhttp.NewClient(xhttp.WithTimeout(time.Second), xhttp.WithRetry(2, time.Millisecond))

	if _, err := r.Resolve(context.Background(), "BOOM"); err == nil {
		t.Fatalf("expected error on 429")
	}
	if hits.Load() != 3 {
		t.Fatalf("429 should be retried twice, hits=%d", hits.Load())
	}
	if sec, err := r.Resolve(context.Background(), "GONE"); err != nil || sec != nil {
		t.Fatalf("404 should resolve to unknown: sec=%+v err=%v", sec, err)
	}
	if _, err := r.Resolve(context.Background(), ""); err == nil {
		t.Fatalf("expected error on empty ticker")
	}
}
