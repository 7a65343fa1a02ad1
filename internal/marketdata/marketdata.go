// Package marketdata resolves portfolio holdings to tradable symbols and
// fetches their latest quotes across several upstream providers.
package marketdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Provider names as reported in Quote.Provider.
const (
	ProviderTwelveData = "twelvedata"
	ProviderYahoo      = "yahoo"
	ProviderIssuerNAV  = "issuer_nav"
)

// PreferredProvider selects the client a resolution is pinned to.
type PreferredProvider int

const (
	// PreferNone lets the chain start at the primary provider.
	PreferNone PreferredProvider = iota
	// PreferSecondary goes straight to the secondary candidate loop.
	PreferSecondary
	// PreferIssuerNAV goes straight to the issuer NAV lookup.
	PreferIssuerNAV
)

// Quote is the normalized shape returned by all providers.
type Quote struct {
	Symbol   string
	Price    decimal.Decimal
	Currency string
	Name     string
	Exchange string
	Provider string
	AsOf     string
}

// SymbolInfo is the resolved identity of one asset. It is built once per
// resolution; a successful secondary fallback returns an updated copy that
// promotes the symbol that actually worked.
type SymbolInfo struct {
	Symbol            string
	Name              string
	Exchange          string
	Currency          string
	Source            string
	PreferredProvider PreferredProvider
	CandidateSymbols  []string
	IssuerConfig      *IssuerFund
	AllowFallback     bool
}

// QuoteClient is implemented once per upstream data source.
type QuoteClient interface {
	Name() string
	FetchQuote(ctx context.Context, symbol string) (Quote, error)
}

// ErrUnresolvable indicates neither ticker nor ISIN could identify the asset.
var ErrUnresolvable = errors.New("no usable ticker or ISIN for asset")

// ErrNotConfigured indicates the primary provider credential is missing.
// This is a configuration error: it aborts a run before any resolution.
var ErrNotConfigured = errors.New("twelve data api key not configured")

// Failure reasons carried by QuoteError.
const (
	// ReasonIssuerNAVUnavailable is terminal: the orchestrator turns it
	// into a manual-update request instead of an error.
	ReasonIssuerNAVUnavailable = "issuer_nav_unavailable"
	// ReasonProviderError covers ordinary fetch failures.
	ReasonProviderError = "provider_error"
	// ReasonProviderDisabled marks a provider switched off by configuration.
	ReasonProviderDisabled = "provider_disabled"
)

// QuoteError reports a failed quote fetch with a machine-readable reason.
type QuoteError struct {
	Reason   string
	Provider string
	Err      error
}

func (e *QuoteError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("quote unavailable (%s, %s): %v", e.Reason, e.Provider, e.Err)
	}
	return fmt.Sprintf("quote unavailable (%s): %v", e.Reason, e.Err)
}

func (e *QuoteError) Unwrap() error { return e.Err }

// QuoteReason extracts the QuoteError reason, or "" for other errors.
func QuoteReason(err error) string {
	var qe *QuoteError
	if errors.As(err, &qe) {
		return qe.Reason
	}
	return ""
}

// ProviderSetting enables or disables one provider without code changes.
type ProviderSetting struct {
	Enabled  bool `mapstructure:"enabled"`
	Priority int  `mapstructure:"priority"`
}

// ProviderConfig maps provider name to its setting. Missing entries count as
// enabled.
type ProviderConfig map[string]ProviderSetting

// Enabled reports whether the named provider may be used.
func (c ProviderConfig) Enabled(name string) bool {
	if c == nil {
		return true
	}
	setting, ok := c[name]
	if !ok {
		return true
	}
	return setting.Enabled
}

// DefaultProviderConfig enables all providers in their standard precedence.
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		"manual_override":  {Enabled: true, Priority: 0},
		ProviderTwelveData: {Enabled: true, Priority: 1},
		ProviderYahoo:      {Enabled: true, Priority: 2},
		ProviderIssuerNAV:  {Enabled: true, Priority: 3},
	}
}
