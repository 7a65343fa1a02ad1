package marketdata

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// SymbolSearcher is the slice of the primary client the resolver needs for
// the generic identifier lookup.
type SymbolSearcher interface {
	SymbolSearch(ctx context.Context, identifier string) ([]SearchCandidate, error)
}

// Resolver turns (ticker, isin, name) into a SymbolInfo, applying three
// precedence tiers: manual overrides, issuer NAV config, generic lookup.
// Resolution is pure bookkeeping except for the final search fallback.
type Resolver struct {
	tables    *OverrideTable
	providers ProviderConfig
	searcher  SymbolSearcher
	logger    zerolog.Logger

	mu    sync.Mutex
	cache map[string]SymbolInfo
}

// NewResolver constructs a resolver with its own per-run ISIN cache.
func NewResolver(tables *OverrideTable, providers ProviderConfig, searcher SymbolSearcher, logger zerolog.Logger) *Resolver {
	if tables == nil {
		tables = DefaultOverrides()
	}
	return &Resolver{
		tables:    tables,
		providers: providers,
		searcher:  searcher,
		logger:    logger.With().Str("component", "resolver").Logger(),
		cache:     make(map[string]SymbolInfo),
	}
}

// Resolve determines the symbol candidates for an asset. A ticker is
// authoritative when present; otherwise the ISIN drives override, issuer NAV
// and search resolution in that order. ErrUnresolvable is returned when
// neither identifier is usable.
func (r *Resolver) Resolve(ctx context.Context, ticker, isin, name string) (SymbolInfo, error) {
	ticker = strings.TrimSpace(ticker)
	if ticker != "" {
		return r.resolveTicker(ticker, isin, name)
	}

	isin = strings.ToUpper(strings.TrimSpace(isin))
	if isin == "" {
		return SymbolInfo{}, ErrUnresolvable
	}
	return r.resolveISIN(ctx, isin, name)
}

func (r *Resolver) resolveTicker(ticker, isin, name string) (SymbolInfo, error) {
	normalized := strings.ToUpper(ticker)

	info := SymbolInfo{
		Symbol:        normalized,
		Name:          name,
		Source:        "ticker",
		AllowFallback: true,
	}

	if override, ok := r.manualFor(isin); ok {
		symbols := normalizeSymbols(override.Symbols)
		if len(symbols) > 0 {
			info.CandidateSymbols = prioritizeSymbols(normalized, symbols)
		}
		if info.Name == "" {
			info.Name = override.Name
		}
	}

	if fund, ok := r.issuerFor(isin); ok {
		info.PreferredProvider = PreferIssuerNAV
		info.IssuerConfig = &fund
		info.AllowFallback = false
		if fund.FallbackSymbol != "" {
			info.CandidateSymbols = prioritizeSymbols(normalized, []string{fund.FallbackSymbol})
		}
	}

	return info, nil
}

func (r *Resolver) resolveISIN(ctx context.Context, isin, name string) (SymbolInfo, error) {
	cacheKey := "isin:" + isin

	r.mu.Lock()
	cached, hit := r.cache[cacheKey]
	if hit {
		// An issuer-NAV fund must never serve a stale non-NAV resolution.
		if _, isIssuer := r.issuerFor(isin); isIssuer && cached.PreferredProvider != PreferIssuerNAV {
			delete(r.cache, cacheKey)
			hit = false
		}
	}
	r.mu.Unlock()
	if hit {
		return cached, nil
	}

	if override, ok := r.manualFor(isin); ok {
		symbols := normalizeSymbols(override.Symbols)
		if len(symbols) > 0 {
			info := SymbolInfo{
				Symbol:            symbols[0],
				Name:              firstNonEmpty(override.Name, name),
				Source:            "manual_override",
				PreferredProvider: PreferSecondary,
				CandidateSymbols:  symbols,
				AllowFallback:     true,
			}
			r.Store(isin, info)
			r.logger.Debug().Str("isin", isin).Str("symbol", symbols[0]).Msg("resolved via manual override")
			return info, nil
		}
		r.logger.Debug().Str("isin", isin).Msg("manual override ignored, no valid symbols")
	}

	if fund, ok := r.issuerFor(isin); ok {
		var candidates []string
		if fund.FallbackSymbol != "" {
			candidates = normalizeSymbols([]string{fund.FallbackSymbol})
		}
		info := SymbolInfo{
			Symbol:            isin,
			Name:              firstNonEmpty(fund.Name, name),
			Exchange:          "NAV",
			Currency:          fund.Currency,
			Source:            "issuer_nav",
			PreferredProvider: PreferIssuerNAV,
			IssuerConfig:      &fund,
			CandidateSymbols:  candidates,
			AllowFallback:     len(candidates) > 0,
		}
		r.Store(isin, info)
		r.logger.Debug().Str("isin", isin).Msg("resolved via issuer NAV config")
		return info, nil
	}

	if r.searcher == nil {
		return SymbolInfo{}, fmt.Errorf("no symbol found for ISIN %s: %w", isin, ErrUnresolvable)
	}

	candidates, err := r.searcher.SymbolSearch(ctx, isin)
	if err != nil {
		return SymbolInfo{}, fmt.Errorf("symbol search for ISIN %s: %w", isin, err)
	}
	if len(candidates) == 0 {
		return SymbolInfo{}, fmt.Errorf("no symbol found for ISIN %s: %w", isin, ErrUnresolvable)
	}

	chosen := selectBestCandidate(candidates, isin, name)
	if chosen.Symbol == "" {
		return SymbolInfo{}, fmt.Errorf("search result for ISIN %s has no symbol: %w", isin, ErrUnresolvable)
	}

	info := SymbolInfo{
		Symbol:        strings.ToUpper(chosen.Symbol),
		Name:          firstNonEmpty(chosen.InstrumentName, name),
		Exchange:      chosen.Exchange,
		Currency:      chosen.Currency,
		Source:        "isin_lookup",
		AllowFallback: true,
	}
	r.Store(isin, info)
	return info, nil
}

// Store caches an ISIN resolution. The quote service calls it back after a
// successful secondary fallback so the promoted symbol wins next time.
func (r *Resolver) Store(isin string, info SymbolInfo) {
	isin = strings.ToUpper(strings.TrimSpace(isin))
	if isin == "" {
		return
	}
	r.mu.Lock()
	r.cache["isin:"+isin] = info
	r.mu.Unlock()
}

func (r *Resolver) manualFor(isin string) (Override, bool) {
	if !r.providers.Enabled("manual_override") {
		return Override{}, false
	}
	return r.tables.ManualFor(isin)
}

func (r *Resolver) issuerFor(isin string) (IssuerFund, bool) {
	if !r.providers.Enabled(ProviderIssuerNAV) {
		return IssuerFund{}, false
	}
	return r.tables.IssuerFor(isin)
}

// selectBestCandidate applies the search tie-break: exact ISIN field match,
// then name substring match, then the first result.
func selectBestCandidate(candidates []SearchCandidate, isin, name string) SearchCandidate {
	normalizedISIN := strings.ToUpper(isin)
	for _, entry := range candidates {
		if strings.ToUpper(entry.ISIN) == normalizedISIN {
			return entry
		}
	}

	if normalized := strings.ToLower(strings.TrimSpace(name)); normalized != "" {
		for _, entry := range candidates {
			if strings.Contains(strings.ToLower(entry.InstrumentName), normalized) {
				return entry
			}
		}
	}

	return candidates[0]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
