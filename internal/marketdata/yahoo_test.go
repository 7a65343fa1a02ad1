package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestYahoo(t *testing.T, handler http.HandlerFunc) *Yahoo {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewYahoo(YahooOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
}

func yahooChartBody(symbol, currency string, price float64) map[string]any {
	return map[string]any{
		"chart": map[string]any{
			"result": []map[string]any{
				{
					"meta": map[string]any{
						"symbol":             symbol,
						"currency":           currency,
						"exchangeName":       "MIL",
						"shortName":          "Test Fund",
						"regularMarketPrice": price,
					},
				},
			},
		},
	}
}

func TestYahooFetchQuoteSuccess(t *testing.T) {
	client := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v8/finance/chart/SWDA.MI") {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("User-Agent") == "" {
			t.Fatal("yahoo requests need a browser-like user agent")
		}
		_ = json.NewEncoder(w).Encode(yahooChartBody("SWDA.MI", "EUR", 101.42))
	})

	quote, err := client.FetchQuote(context.Background(), "swda.mi")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if quote.Symbol != "SWDA.MI" || quote.Provider != ProviderYahoo {
		t.Fatalf("unexpected quote identity: %+v", quote)
	}
	if !quote.Price.Equal(decimal.NewFromFloat(101.42)) {
		t.Fatalf("unexpected price %s", quote.Price)
	}
}

func TestYahooFetchQuoteChartError(t *testing.T) {
	client := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"chart": map[string]any{
				"result": nil,
				"error": map[string]string{
					"code":        "Not Found",
					"description": "No data found, symbol may be delisted",
				},
			},
		})
	})

	if _, err := client.FetchQuote(context.Background(), "GONE.MI"); err == nil {
		t.Fatal("expected chart error to surface")
	}
}

func TestYahooFetchQuoteMissingPrice(t *testing.T) {
	client := newTestYahoo(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(yahooChartBody("X", "EUR", 0))
	})

	if _, err := client.FetchQuote(context.Background(), "X"); err == nil {
		t.Fatal("zero price must be rejected")
	}
}
