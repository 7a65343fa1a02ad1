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

const (
	twelveDataQuotePath  = "/quote"
	twelveDataSearchPath = "/symbol_search"
)

// TwelveDataOptions parameterise the primary provider client.
type TwelveDataOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// TwelveData is the primary quote provider: symbol quotes plus the generic
// identifier search used for ISIN resolution.
type TwelveData struct {
	opts    TwelveDataOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewTwelveData constructs the primary provider client.
func NewTwelveData(opts TwelveDataOptions, logger zerolog.Logger) *TwelveData {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.twelvedata.com"
	}

	return &TwelveData{
		opts:    opts,
		logger:  logger.With().Str("component", "twelvedata_client").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name identifies this client in quotes and logs.
func (t *TwelveData) Name() string { return ProviderTwelveData }

// Configured reports whether an API key is present.
func (t *TwelveData) Configured() bool { return t.opts.APIKey != "" }

type twelveDataQuote struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Currency string `json:"currency"`
	Price    string `json:"price"`
	Close    string `json:"close"`
	Status   string `json:"status"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
}

// FetchQuote retrieves the latest quote for one symbol.
func (t *TwelveData) FetchQuote(ctx context.Context, symbol string) (Quote, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if normalized == "" {
		return Quote{}, errors.New("empty symbol")
	}

	var payload twelveDataQuote
	if err := t.get(ctx, twelveDataQuotePath, url.Values{"symbol": {normalized}}, &payload); err != nil {
		return Quote{}, err
	}

	if payload.Status == "error" || (payload.Message != "" && payload.Price == "") {
		msg := payload.Message
		if msg == "" {
			msg = "unknown twelve data error"
		}
		return Quote{}, errors.New(msg)
	}

	raw := payload.Price
	if raw == "" {
		raw = payload.Close
	}
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return Quote{}, fmt.Errorf("quote for %s is missing or not numeric", normalized)
	}

	return Quote{
		Symbol:   normalized,
		Price:    price,
		Currency: payload.Currency,
		Name:     payload.Name,
		Exchange: payload.Exchange,
		Provider: ProviderTwelveData,
	}, nil
}

// SearchCandidate is one row of a symbol-search response.
type SearchCandidate struct {
	Symbol         string `json:"symbol"`
	InstrumentName string `json:"instrument_name"`
	Exchange       string `json:"exchange"`
	Currency       string `json:"currency"`
	Country        string `json:"country"`
	ISIN           string `json:"isin"`
}

type twelveDataSearch struct {
	Data    []SearchCandidate `json:"data"`
	Status  string            `json:"status"`
	Code    int               `json:"code"`
	Message string            `json:"message"`
}

// SymbolSearch runs the generic identifier lookup, typically with an ISIN.
func (t *TwelveData) SymbolSearch(ctx context.Context, identifier string) ([]SearchCandidate, error) {
	var payload twelveDataSearch
	if err := t.get(ctx, twelveDataSearchPath, url.Values{"symbol": {identifier}}, &payload); err != nil {
		return nil, err
	}
	if payload.Status == "error" {
		msg := payload.Message
		if msg == "" {
			msg = "unknown twelve data error"
		}
		return nil, errors.New(msg)
	}
	return payload.Data, nil
}

func (t *TwelveData) get(ctx context.Context, path string, params url.Values, out any) error {
	if t.opts.APIKey == "" {
		return ErrNotConfigured
	}

	params.Set("apikey", t.opts.APIKey)
	endpoint := t.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(t.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return &retry.HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("twelve data response is not valid json: %w", err)
	}

	// The API often reports errors through code/message with HTTP 200.
	var envelope struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if envelope.Code != 0 && envelope.Code != http.StatusOK {
			return &retry.HTTPError{Status: envelope.Code, Body: envelope.Message}
		}
	}

	return nil
}

var _ QuoteClient = (*TwelveData)(nil)
