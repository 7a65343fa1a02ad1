package marketdata

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"portfolio-price-sync/internal/retry"
)

// fallbackTokens in a primary-provider error message mean the symbol is not
// served there and the secondary provider should be tried.
var fallbackTokens = []string{
	"missing or invalid",
	"not available",
	"not supported",
	"not found",
	"not provided",
	"invalid symbol",
}

// planTokens mark plan-restriction errors from the primary provider; those
// symbols are only reachable on paid tiers, so fall back immediately.
var planTokens = []string{
	"grow plan",
	"pro plan",
	"available starting with grow",
	"available starting with pro",
}

// ServiceOptions tune the quote service.
type ServiceOptions struct {
	Providers ProviderConfig
	Retry     retry.Policy
	Breaker   retry.BreakerSettings
}

// Service owns the per-run caches and drives the provider chain. Construct
// one instance per update run (or per application session) and pass it to
// the orchestrator; nothing here is process-global.
type Service struct {
	resolver  *Resolver
	primary   *TwelveData
	secondary QuoteClient
	issuer    *IssuerNAV
	providers ProviderConfig
	executor  *retry.Executor
	breakers  map[string]*retry.Breaker
	logger    zerolog.Logger

	mu         sync.Mutex
	quoteCache map[string]Quote
}

// NewService wires the resolver and provider clients into a quote service.
func NewService(resolver *Resolver, primary *TwelveData, secondary QuoteClient, issuer *IssuerNAV, opts ServiceOptions, logger zerolog.Logger) *Service {
	providers := opts.Providers
	if providers == nil {
		providers = DefaultProviderConfig()
	}
	serviceLogger := logger.With().Str("component", "marketdata").Logger()

	breakers := map[string]*retry.Breaker{
		ProviderTwelveData: retry.NewBreaker(opts.Breaker, serviceLogger.With().Str("provider", ProviderTwelveData).Logger(), nil),
		ProviderYahoo:      retry.NewBreaker(opts.Breaker, serviceLogger.With().Str("provider", ProviderYahoo).Logger(), nil),
		ProviderIssuerNAV:  retry.NewBreaker(opts.Breaker, serviceLogger.With().Str("provider", ProviderIssuerNAV).Logger(), nil),
	}

	return &Service{
		resolver:   resolver,
		primary:    primary,
		secondary:  secondary,
		issuer:     issuer,
		providers:  providers,
		executor:   retry.NewExecutor(opts.Retry, serviceLogger),
		breakers:   breakers,
		logger:     serviceLogger,
		quoteCache: make(map[string]Quote),
	}
}

// Configured reports whether the primary provider credential is present.
// Call before a run: a missing key is a configuration error, not a per-asset
// failure.
func (s *Service) Configured() bool {
	return s.primary != nil && s.primary.Configured()
}

// LatestPrice resolves the asset and fetches its latest quote through the
// provider chain. Two assets sharing an ISIN within one run hit the cache.
func (s *Service) LatestPrice(ctx context.Context, ticker, isin, name string) (Quote, error) {
	if !s.Configured() {
		return Quote{}, ErrNotConfigured
	}

	info, err := s.resolver.Resolve(ctx, ticker, isin, name)
	if err != nil {
		return Quote{}, err
	}
	if info.Symbol == "" {
		return Quote{}, ErrUnresolvable
	}

	quote, updated, err := s.fetchQuote(ctx, info)
	if err != nil {
		return Quote{}, err
	}

	// A secondary fallback may have promoted a different symbol; remember
	// the working resolution for the rest of the run.
	if isin != "" && updated.Symbol != info.Symbol {
		s.resolver.Store(isin, updated)
	}

	if quote.Name == "" {
		quote.Name = updated.Name
	}
	if quote.Exchange == "" {
		quote.Exchange = updated.Exchange
	}
	return quote, nil
}

// fetchQuote dispatches on the preferred provider, falling back from primary
// to secondary when the error indicates the symbol is not served there.
func (s *Service) fetchQuote(ctx context.Context, info SymbolInfo) (Quote, SymbolInfo, error) {
	switch info.PreferredProvider {
	case PreferSecondary:
		return s.fetchSecondary(ctx, info)
	case PreferIssuerNAV:
		return s.fetchIssuerNAV(ctx, info)
	}

	quote, err := s.fetchPrimary(ctx, info.Symbol)
	if err == nil {
		return quote, info, nil
	}

	if !s.shouldFallback(info, err) {
		return Quote{}, info, &QuoteError{Reason: ReasonProviderError, Provider: ProviderTwelveData, Err: err}
	}

	s.logger.Info().Str("symbol", info.Symbol).Err(err).Msg("falling back to secondary provider")
	quote, updated, secondaryErr := s.fetchSecondary(ctx, info)
	if secondaryErr == nil {
		return quote, updated, nil
	}
	return Quote{}, info, &QuoteError{
		Reason:   ReasonProviderError,
		Provider: ProviderYahoo,
		Err:      fmt.Errorf("%v | %v", err, errors.Unwrap(secondaryErr)),
	}
}

func (s *Service) fetchPrimary(ctx context.Context, symbol string) (Quote, error) {
	if !s.providers.Enabled(ProviderTwelveData) {
		return Quote{}, &QuoteError{Reason: ReasonProviderDisabled, Provider: ProviderTwelveData, Err: errors.New("primary provider disabled by configuration")}
	}

	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if quote, ok := s.cachedQuote(normalized); ok {
		return quote, nil
	}

	var quote Quote
	err := s.executor.Do(ctx, "twelvedata_quote", func(ctx context.Context) error {
		return s.breakers[ProviderTwelveData].Do(func() error {
			var fetchErr error
			quote, fetchErr = s.primary.FetchQuote(ctx, normalized)
			return fetchErr
		})
	})
	if err != nil {
		return Quote{}, err
	}

	s.storeQuote(normalized, quote)
	return quote, nil
}

// fetchSecondary walks the candidate list in order and, on success, returns
// an updated SymbolInfo that promotes the symbol that worked.
func (s *Service) fetchSecondary(ctx context.Context, info SymbolInfo) (Quote, SymbolInfo, error) {
	if !s.providers.Enabled(ProviderYahoo) {
		return Quote{}, info, &QuoteError{Reason: ReasonProviderDisabled, Provider: ProviderYahoo, Err: errors.New("secondary provider disabled by configuration")}
	}

	candidates := info.CandidateSymbols
	if len(candidates) == 0 && info.Symbol != "" {
		candidates = []string{info.Symbol}
	}

	var failures []string
	for _, candidate := range candidates {
		candidate = strings.ToUpper(strings.TrimSpace(candidate))
		if candidate == "" {
			continue
		}

		if quote, ok := s.cachedQuote(candidate); ok {
			return quote, promote(info, quote.Symbol, candidates), nil
		}

		var quote Quote
		err := s.executor.Do(ctx, "yahoo_quote", func(ctx context.Context) error {
			return s.breakers[ProviderYahoo].Do(func() error {
				var fetchErr error
				quote, fetchErr = s.secondary.FetchQuote(ctx, candidate)
				return fetchErr
			})
		})
		if err != nil {
			failures = append(failures, err.Error())
			continue
		}

		s.storeQuote(quote.Symbol, quote)
		return quote, promote(info, quote.Symbol, candidates), nil
	}

	msg := strings.Join(dedupe(failures), " | ")
	if msg == "" {
		msg = "secondary provider returned no data"
	}
	return Quote{}, info, &QuoteError{Reason: ReasonProviderError, Provider: ProviderYahoo, Err: errors.New(msg)}
}

func (s *Service) fetchIssuerNAV(ctx context.Context, info SymbolInfo) (Quote, SymbolInfo, error) {
	if !s.providers.Enabled(ProviderIssuerNAV) {
		return Quote{}, info, &QuoteError{Reason: ReasonProviderDisabled, Provider: ProviderIssuerNAV, Err: errors.New("issuer NAV provider disabled by configuration")}
	}

	fund := IssuerFund{ISIN: info.Symbol}
	if info.IssuerConfig != nil {
		fund = *info.IssuerConfig
		if fund.ISIN == "" {
			fund.ISIN = info.Symbol
		}
	}

	cacheKey := "NAV:" + strings.ToUpper(fund.ISIN)
	if quote, ok := s.cachedQuote(cacheKey); ok {
		return quote, info, nil
	}

	var quote Quote
	// NAV failures are terminal for the asset, so there is no backoff loop
	// here; the breaker still guards against hammering a dead endpoint.
	err := s.breakers[ProviderIssuerNAV].Do(func() error {
		var fetchErr error
		quote, fetchErr = s.issuer.FetchNAV(ctx, fund)
		return fetchErr
	})
	if err != nil {
		if errors.Is(err, retry.ErrCircuitOpen) || QuoteReason(err) == ReasonIssuerNAVUnavailable {
			if errors.Is(err, retry.ErrCircuitOpen) {
				err = &QuoteError{Reason: ReasonIssuerNAVUnavailable, Provider: ProviderIssuerNAV, Err: err}
			}
			return Quote{}, info, err
		}
		return Quote{}, info, &QuoteError{Reason: ReasonIssuerNAVUnavailable, Provider: ProviderIssuerNAV, Err: err}
	}

	if quote.Symbol == "" {
		quote.Symbol = strings.ToUpper(fund.ISIN)
	}
	s.storeQuote(cacheKey, quote)
	return quote, info, nil
}

// shouldFallback decides whether a primary failure warrants trying the
// secondary provider.
func (s *Service) shouldFallback(info SymbolInfo, err error) bool {
	if !s.providers.Enabled(ProviderYahoo) {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, token := range planTokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	for _, token := range fallbackTokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return info.AllowFallback
}

func (s *Service) cachedQuote(key string) (Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	quote, ok := s.quoteCache[key]
	return quote, ok
}

func (s *Service) storeQuote(key string, quote Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quoteCache[key] = quote
}

// promote rewrites the resolution so the symbol that worked is tried first
// for the remainder of the run.
func promote(info SymbolInfo, symbol string, candidates []string) SymbolInfo {
	info.Symbol = strings.ToUpper(symbol)
	info.PreferredProvider = PreferSecondary
	info.CandidateSymbols = prioritizeSymbols(info.Symbol, candidates)
	return info
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
