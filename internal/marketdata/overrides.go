package marketdata

import "strings"

// Override pins an ISIN to a hand-verified list of secondary-provider
// symbols, ordered best exchange first.
type Override struct {
	Symbols []string `mapstructure:"symbols"`
	Name    string   `mapstructure:"name"`
}

// IssuerFund describes a fund whose price comes from the issuer's own NAV
// endpoint rather than an exchange listing.
type IssuerFund struct {
	ISIN           string `mapstructure:"isin"`
	FundID         string `mapstructure:"fund_id"`
	Currency       string `mapstructure:"currency"`
	Name           string `mapstructure:"name"`
	FallbackSymbol string `mapstructure:"fallback_symbol"`
}

// OverrideTable holds both precedence tables keyed by upper-case ISIN.
type OverrideTable struct {
	Manual  map[string]Override
	Issuers map[string]IssuerFund
}

// ManualFor returns the manual override for the ISIN, if any.
func (t *OverrideTable) ManualFor(isin string) (Override, bool) {
	if t == nil || isin == "" {
		return Override{}, false
	}
	o, ok := t.Manual[strings.ToUpper(isin)]
	return o, ok
}

// IssuerFor returns the issuer NAV configuration for the ISIN, if any.
func (t *OverrideTable) IssuerFor(isin string) (IssuerFund, bool) {
	if t == nil || isin == "" {
		return IssuerFund{}, false
	}
	f, ok := t.Issuers[strings.ToUpper(isin)]
	if ok && f.ISIN == "" {
		f.ISIN = strings.ToUpper(isin)
	}
	return f, ok
}

// DefaultOverrides returns the built-in tables. Both can be replaced or
// extended from configuration.
func DefaultOverrides() *OverrideTable {
	return &OverrideTable{
		Manual: map[string]Override{
			"IE00B0M62X26": {
				Symbols: []string{"IBCI.L", "IBCI.AS"},
				Name:    "iShares EUR Inflation Linked Govt Bond UCITS ETF EUR Acc",
			},
			"IE00B4L5Y983": {
				Symbols: []string{"SWDA.MI", "IWDA.L"},
				Name:    "iShares Core MSCI World UCITS ETF USD Acc",
			},
			"IE00B3XXRP09": {
				Symbols: []string{"VUSA.L", "VUSA.MI"},
				Name:    "Vanguard S&P 500 UCITS ETF USD Dist",
			},
			"IE00B5BMR087": {
				Symbols: []string{"CSSPX.MI", "SXR8.DE", "CSPX.L"},
				Name:    "iShares Core S&P 500 UCITS ETF USD Acc",
			},
			"IE00BFZXGZ54": {
				Symbols: []string{"EQAC.MI", "EQAC.DE", "EQQQ.L"},
				Name:    "Invesco EQQQ Nasdaq-100 UCITS ETF Acc",
			},
			"IE00BK5BR626": {
				Symbols: []string{"VGWE.DE", "VHYA.L", "VHYL.L"},
				Name:    "Vanguard FTSE All-World High Dividend Yield UCITS ETF USD Acc",
			},
			"IE00BDBRDM35": {
				Symbols: []string{"0GGH.L", "AGGH.MI"},
				Name:    "iShares Global Aggregate Bond UCITS ETF EUR Hedged Acc",
			},
			"IE000BI8OT95": {
				Symbols: []string{"CW8.PA", "CW8.MI", "CW8.DE"},
				Name:    "Amundi Core MSCI World UCITS ETF Acc",
			},
			"IE000QU8JEH5": {
				Symbols: []string{"AI4U.MI"},
				Name:    "Fineco AM MarketVector Artificial Intelligence Sustainable UCITS ETF",
			},
			"LU1900066033": {
				Symbols: []string{"CHIP.MI", "CHIP.SW"},
				Name:    "Amundi MSCI Semiconductors UCITS ETF Acc",
			},
			"LU1437015735": {
				Symbols: []string{"CEU2.PA"},
				Name:    "Amundi Core MSCI Europe UCITS ETF DR",
			},
			"LU1046235815": {
				Symbols: []string{"0P00012U2R.F"},
				Name:    "Schroder ISF Strategic Credit B Acc EUR Hedged",
			},
			"LU1915690595": {
				Symbols: []string{"NDJX.MU", "0P0001FLOK.F"},
				Name:    "Nordea 1 European Covered Bond Opportunities BP-EUR",
			},
		},
		Issuers: map[string]IssuerFund{
			"LU0171310955": {
				ISIN:           "LU0171310955",
				FundID:         "253114",
				Currency:       "EUR",
				Name:           "BGF World Technology E2 EUR",
				FallbackSymbol: "0P0001LZU2.F",
			},
		},
	}
}

// normalizeSymbols trims, upper-cases and de-duplicates while keeping order.
func normalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		clean := strings.ToUpper(strings.TrimSpace(s))
		if clean == "" {
			continue
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}

// prioritizeSymbols puts primary first, then the remaining candidates in
// order, without duplicates.
func prioritizeSymbols(primary string, candidates []string) []string {
	return normalizeSymbols(append([]string{primary}, candidates...))
}
