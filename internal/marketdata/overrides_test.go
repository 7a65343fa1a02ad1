package marketdata

import (
	"reflect"
	"testing"
)

func TestOverrideTableLookupIsCaseInsensitive(t *testing.T) {
	tables := DefaultOverrides()

	override, ok := tables.ManualFor("ie00b4l5y983")
	if !ok {
		t.Fatal("lower-case ISIN must still hit the table")
	}
	if override.Symbols[0] != "SWDA.MI" {
		t.Fatalf("unexpected first symbol: %v", override.Symbols)
	}

	fund, ok := tables.IssuerFor("lu0171310955")
	if !ok || fund.FundID != "253114" {
		t.Fatalf("issuer lookup failed: %+v", fund)
	}
	if fund.ISIN != "LU0171310955" {
		t.Fatalf("issuer ISIN must be filled in: %+v", fund)
	}
}

func TestOverrideTableMiss(t *testing.T) {
	tables := DefaultOverrides()

	if _, ok := tables.ManualFor(""); ok {
		t.Fatal("empty ISIN must miss")
	}
	if _, ok := tables.ManualFor("XX0000000000"); ok {
		t.Fatal("unknown ISIN must miss")
	}

	var nilTable *OverrideTable
	if _, ok := nilTable.ManualFor("IE00B4L5Y983"); ok {
		t.Fatal("nil table must miss")
	}
}

func TestNormalizeSymbols(t *testing.T) {
	got := normalizeSymbols([]string{" swda.mi ", "", "SWDA.MI", "iwda.l"})
	want := []string{"SWDA.MI", "IWDA.L"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("normalizeSymbols = %v, want %v", got, want)
	}
}

func TestPrioritizeSymbols(t *testing.T) {
	got := prioritizeSymbols("iwda.l", []string{"SWDA.MI", "IWDA.L", "CSPX.L"})
	want := []string{"IWDA.L", "SWDA.MI", "CSPX.L"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("prioritizeSymbols = %v, want %v", got, want)
	}
}
