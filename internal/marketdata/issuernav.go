package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// IssuerNAVOptions parameterise the issuer NAV client.
type IssuerNAVOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// IssuerNAV fetches a fund's official NAV straight from the issuer's public
// performance endpoint, keyed by ISIN. Failures here are terminal for the
// asset: there is no market listing to fall back to, so the orchestrator
// asks for a manual price instead.
type IssuerNAV struct {
	opts    IssuerNAVOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewIssuerNAV constructs the issuer NAV client.
func NewIssuerNAV(opts IssuerNAVOptions, logger zerolog.Logger) *IssuerNAV {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.blackrock.com/tools/hackathon/performance"
	}

	return &IssuerNAV{
		opts:    opts,
		logger:  logger.With().Str("component", "issuer_nav_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name identifies this client in quotes and logs.
func (n *IssuerNAV) Name() string { return ProviderIssuerNAV }

type navEnvelope struct {
	ResultMap struct {
		Returns []navEntry `json:"RETURNS"`
	} `json:"resultMap"`
}

type navEntry struct {
	LatestNAV             json.Number `json:"latestNAV"`
	NAV                   json.Number `json:"nav"`
	Currency              string      `json:"currency"`
	ProductName           string      `json:"productName"`
	LatestPerformanceDate string      `json:"latestPerformanceDate"`
	NAVDate               string      `json:"navDate"`
}

// FetchNAV retrieves the current NAV for the fund identified by isin. Any
// shape or parse problem yields an issuer_nav_unavailable QuoteError.
func (n *IssuerNAV) FetchNAV(ctx context.Context, fund IssuerFund) (Quote, error) {
	isin := strings.ToUpper(strings.TrimSpace(fund.ISIN))
	if isin == "" {
		return Quote{}, n.unavailable(errors.New("no ISIN for issuer NAV lookup"))
	}

	params := url.Values{"identifiers": {isin}}
	endpoint := n.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, n.unavailable(err)
	}
	req.Header.Set("Accept", "application/json")
	ua := strings.TrimSpace(n.opts.UserAgent)
	if ua == "" {
		ua = "Mozilla/5.0"
	}
	req.Header.Set("User-Agent", ua)

	resp, err := n.client.Do(req)
	if err != nil {
		return Quote{}, n.unavailable(fmt.Errorf("issuer NAV network error: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, n.unavailable(err)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, n.unavailable(fmt.Errorf("issuer NAV http %d", resp.StatusCode))
	}

	var payload navEnvelope
	if err := json.Unmarshal(body, &payload); err != nil {
		return Quote{}, n.unavailable(fmt.Errorf("issuer NAV response is not valid json: %w", err))
	}

	returns := payload.ResultMap.Returns
	if len(returns) == 0 {
		return Quote{}, n.unavailable(errors.New("issuer NAV missing from response"))
	}

	entry := returns[0]
	raw := string(entry.LatestNAV)
	if raw == "" {
		raw = string(entry.NAV)
	}
	if raw == "" {
		return Quote{}, n.unavailable(errors.New("issuer NAV not reported"))
	}

	price, err := decimal.NewFromString(raw)
	if err != nil || price.Sign() <= 0 {
		return Quote{}, n.unavailable(errors.New("issuer NAV not numeric"))
	}

	currency := entry.Currency
	if currency == "" {
		currency = fund.Currency
	}
	name := entry.ProductName
	if name == "" {
		name = fund.Name
	}
	asOf := entry.LatestPerformanceDate
	if asOf == "" {
		asOf = entry.NAVDate
	}

	return Quote{
		Symbol:   isin,
		Price:    price,
		Currency: currency,
		Name:     name,
		Exchange: "NAV",
		Provider: ProviderIssuerNAV,
		AsOf:     asOf,
	}, nil
}

// FetchQuote satisfies QuoteClient by treating the symbol as an ISIN.
func (n *IssuerNAV) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	return n.FetchNAV(ctx, IssuerFund{ISIN: symbol})
}

func (n *IssuerNAV) unavailable(err error) error {
	return &QuoteError{Reason: ReasonIssuerNAVUnavailable, Provider: ProviderIssuerNAV, Err: err}
}

var _ QuoteClient = (*IssuerNAV)(nil)
