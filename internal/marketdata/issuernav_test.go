package marketdata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestIssuerNAV(t *testing.T, handler http.HandlerFunc) *IssuerNAV {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewIssuerNAV(IssuerNAVOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
}

func TestIssuerNAVFetchSuccess(t *testing.T) {
	client := newTestIssuerNAV(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("identifiers") != "LU0171310955" {
			t.Fatalf("unexpected identifiers %q", r.URL.Query().Get("identifiers"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"resultMap": map[string]any{
				"RETURNS": []map[string]any{
					{
						"latestNAV":             28.47,
						"currency":              "EUR",
						"productName":           "BGF World Technology E2 EUR",
						"latestPerformanceDate": "2025-06-10",
					},
				},
			},
		})
	})

	quote, err := client.FetchNAV(context.Background(), IssuerFund{ISIN: "LU0171310955", FundID: "253114"})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if quote.Symbol != "LU0171310955" || quote.Exchange != "NAV" {
		t.Fatalf("unexpected quote identity: %+v", quote)
	}
	if !quote.Price.Equal(decimal.NewFromFloat(28.47)) {
		t.Fatalf("unexpected NAV %s", quote.Price)
	}
	if quote.AsOf != "2025-06-10" {
		t.Fatalf("unexpected as-of date %q", quote.AsOf)
	}
}

func TestIssuerNAVFailuresAreUnavailable(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			"http error",
			func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
		},
		{
			"malformed body",
			func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte("<html>maintenance</html>"))
			},
		},
		{
			"empty returns",
			func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{"resultMap": map[string]any{"RETURNS": []any{}}})
			},
		},
		{
			"nav not numeric",
			func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(map[string]any{
					"resultMap": map[string]any{"RETURNS": []map[string]any{{"latestNAV": "n/a"}}},
				})
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestIssuerNAV(t, tc.handler)
			_, err := client.FetchNAV(context.Background(), IssuerFund{ISIN: "LU0171310955"})
			if err == nil {
				t.Fatal("expected an error")
			}
			if QuoteReason(err) != ReasonIssuerNAVUnavailable {
				t.Fatalf("every NAV failure must carry reason %q, got %v", ReasonIssuerNAVUnavailable, err)
			}
		})
	}
}

func TestIssuerNAVMissingISIN(t *testing.T) {
	client := NewIssuerNAV(IssuerNAVOptions{}, noopLogger())
	_, err := client.FetchNAV(context.Background(), IssuerFund{})
	if QuoteReason(err) != ReasonIssuerNAVUnavailable {
		t.Fatalf("expected issuer_nav_unavailable, got %v", err)
	}
}
