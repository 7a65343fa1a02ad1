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

	"portfolio-price-sync/internal/retry"
)

// YahooOptions parameterise the secondary provider client.
type YahooOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Yahoo is the free secondary provider, queried through the public chart
// endpoint. It needs no credential, which makes it a natural fallback for
// symbols the primary plan does not cover.
type Yahoo struct {
	opts    YahooOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewYahoo constructs the secondary provider client.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}

	return &Yahoo{
		opts:    opts,
		logger:  logger.With().Str("component", "yahoo_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name identifies this client in quotes and logs.
func (y *Yahoo) Name() string { return ProviderYahoo }

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				ExchangeName       string  `json:"exchangeName"`
				LongName           string  `json:"longName"`
				ShortName          string  `json:"shortName"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// FetchQuote retrieves the latest traded price for one symbol.
func (y *Yahoo) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return Quote{}, errors.New("empty symbol")
	}

	params := url.Values{"interval": {"1d"}, "range": {"1d"}}
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(normalized), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	ua := strings.TrimSpace(y.opts.UserAgent)
	if ua == "" {
		ua = "Mozilla/5.0"
	}
	req.Header.Set("User-Agent", ua)

	resp, err := y.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Quote{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, &retry.HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload yahooChart
	if err := json.Unmarshal(body, &payload); err != nil {
		return Quote{}, fmt.Errorf("yahoo response is not valid json: %w", err)
	}

	if payload.Chart.Error != nil {
		return Quote{}, fmt.Errorf("yahoo error for %s: %s", normalized, payload.Chart.Error.Description)
	}
	if len(payload.Chart.Result) == 0 {
		return Quote{}, fmt.Errorf("yahoo returned no data for %s", normalized)
	}

	meta := payload.Chart.Result[0].Meta
	if meta.RegularMarketPrice <= 0 {
		return Quote{}, fmt.Errorf("yahoo price for %s is missing or not positive", normalized)
	}

	name := meta.LongName
	if name == "" {
		name = meta.ShortName
	}

	sym := strings.ToUpper(meta.Symbol)
	if sym == "" {
		sym = normalized
	}

	return Quote{
		Symbol:   sym,
		Price:    decimal.NewFromFloat(meta.RegularMarketPrice),
		Currency: meta.Currency,
		Name:     name,
		Exchange: meta.ExchangeName,
		Provider: ProviderYahoo,
	}, nil
}

var _ QuoteClient = (*Yahoo)(nil)
