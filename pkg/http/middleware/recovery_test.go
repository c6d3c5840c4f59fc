package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	applogger "InsiderSignals/pkg/logger"

	"github.com/labstack/echo/v4"
)

func TestRecoverWritesErrorEnvelope(t *testing.T) {
	e := echo.New()
	e.Use(Recover(applogger.Nop()))
	e.GET("/api/signals", func(c echo.Context) error { panic("nil allocation") })

	req := httptest.NewRequest(http.MethodGet, "/api/signals", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-1")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rec.Code)
	}
	var body struct {
		Status int `json:"status"`
		Data   []struct {
			Code string `json:"code"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != 500 || len(body.Data) != 1 || body.Data[0].Code != "ERR_INTERNAL" {
		t.Fatalf("body=%s", rec.Body.String())
	}
}
