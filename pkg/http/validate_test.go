package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type lookupRequest struct {
	Ticker string `query:"ticker" validate:"omitempty,ticker"`
	From   string `query:"from" validate:"omitempty,isodate"`
	Limit  int    `query:"limit" default:"25" validate:"gte=1,lte=100"`
}

func bindQuery(t *testing.T, target string) (*lookupRequest, []ValidationError) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	c := e.NewContext(req, httptest.NewRecorder())
	out := &lookupRequest{}
	verr := ReadAndValidateRequest(c, out)
	if verr == nil {
		return out, nil
	}
	errs, ok := verr.([]ValidationError)
	if !ok {
		t.Fatalf("unexpected validation result %T", verr)
	}
	return out, errs
}

func TestReadAndValidateRequest(t *testing.T) {
	tests := []struct {
		name   string
		target string
		code   string
		field  string
	}{
		{name: "valid", target: "/?ticker=BRK.B&from=2024-06-01"},
		{name: "rfc3339 date", target: "/?from=2024-06-01T10:00:00Z"},
		{name: "bad ticker", target: "/?ticker=$$$", code: "ERR_TICKER", field: "ticker"},
		{name: "bad date", target: "/?from=yesterday", code: "ERR_ISODATE", field: "from"},
		{name: "limit too large", target: "/?limit=1000", code: "ERR_LTE", field: "limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := bindQuery(t, tt.target)
			if tt.code == "" {
				if errs != nil {
					t.Fatalf("unexpected errors: %+v", errs)
				}
				return
			}
			if len(errs) != 1 {
				t.Fatalf("errors=%+v want one", errs)
			}
			if errs[0].Code != tt.code || errs[0].Field != tt.field {
				t.Fatalf("got code=%s field=%s want %s %s", errs[0].Code, errs[0].Field, tt.code, tt.field)
			}
		})
	}
}

func TestReadAndValidateRequestAppliesDefaults(t *testing.T) {
	out, errs := bindQuery(t, "/?ticker=ACME")
	if errs != nil {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if out.Limit != 25 {
		t.Fatalf("limit=%d want default 25", out.Limit)
	}
}
