// Package validation classifies price updates before they are allowed to
// overwrite portfolio state. It is pure: no I/O, no clock.
package validation

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// AnomalyType labels the outcome of a price comparison.
type AnomalyType string

const (
	AnomalyNormal            AnomalyType = "normal"
	AnomalyHighVariation     AnomalyType = "high_variation"
	AnomalyCriticalVariation AnomalyType = "critical_variation"
	AnomalyPotentialSplit    AnomalyType = "potential_split"
	AnomalyPotentialReverse  AnomalyType = "potential_reverse_split"
	AnomalyCurrencyMismatch  AnomalyType = "currency_mismatch"
	AnomalyZeroOrNegative    AnomalyType = "zero_or_negative"
)

// SplitRatio is a from:to share ratio, e.g. {1, 4} for a 1:4 split.
type SplitRatio struct {
	From int
	To   int
}

func (r SplitRatio) String() string { return fmt.Sprintf("%d:%d", r.From, r.To) }

// Result is the full classification of one price update.
type Result struct {
	IsValid         bool
	Anomaly         AnomalyType
	VariationPct    float64
	Confidence      float64
	Message         string
	SuggestedAction string
	SplitRatio      *SplitRatio
}

// Flagged reports whether the result should surface an alert even though the
// update may be accepted.
func (r Result) Flagged() bool {
	return r.Anomaly != AnomalyNormal
}

// Thresholds tune the validator. Zero values fall back to the defaults.
type Thresholds struct {
	WarningPct     float64 `mapstructure:"warning_pct"`
	CriticalPct    float64 `mapstructure:"critical_pct"`
	SplitTolerance float64 `mapstructure:"split_tolerance"`
}

// DefaultThresholds returns the standard validator thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{WarningPct: 20.0, CriticalPct: 50.0, SplitTolerance: 0.15}
}

func (t Thresholds) normalized() Thresholds {
	if t.WarningPct <= 0 {
		t.WarningPct = 20.0
	}
	if t.CriticalPct <= 0 {
		t.CriticalPct = 50.0
	}
	if t.SplitTolerance <= 0 {
		t.SplitTolerance = 0.15
	}
	return t
}

// commonSplits is the catalogue of corporate-action ratios the validator
// recognises. Entries with To < From are reverse splits.
var commonSplits = []SplitRatio{
	{1, 2}, {1, 3}, {1, 4}, {1, 5}, {1, 10},
	{2, 1}, {3, 1}, {4, 1}, {5, 1}, {10, 1},
}

// Validator compares an incoming price against the last recorded one.
type Validator struct {
	thresholds Thresholds
}

// New constructs a validator.
func New(thresholds Thresholds) *Validator {
	return &Validator{thresholds: thresholds.normalized()}
}

// Validate classifies the transition from oldPrice to newPrice. Currencies
// are optional; when both are present and differ, the update is rejected.
// Decision order: zero/negative price, first observation, currency mismatch,
// split pattern, critical variation, high variation, normal.
func (v *Validator) Validate(oldPrice, newPrice decimal.Decimal, currencyOld, currencyNew string) Result {
	if newPrice.Sign() <= 0 {
		return Result{
			IsValid:         false,
			Anomaly:         AnomalyZeroOrNegative,
			Confidence:      1.0,
			Message:         fmt.Sprintf("invalid price: %s", newPrice),
			SuggestedAction: "check that the symbol is correct and the asset is still listed",
		}
	}

	if oldPrice.Sign() <= 0 {
		return Result{
			IsValid:    true,
			Anomaly:    AnomalyNormal,
			Confidence: 1.0,
			Message:    "first recorded price",
		}
	}

	oldF := oldPrice.InexactFloat64()
	newF := newPrice.InexactFloat64()
	variationPct := (newF - oldF) / oldF * 100

	if currencyOld != "" && currencyNew != "" && currencyOld != currencyNew {
		return Result{
			IsValid:         false,
			Anomaly:         AnomalyCurrencyMismatch,
			VariationPct:    variationPct,
			Confidence:      1.0,
			Message:         fmt.Sprintf("quote currency changed: %s -> %s", currencyOld, currencyNew),
			SuggestedAction: "check whether the provider switched listing currency; a manual conversion may be needed",
		}
	}

	if split, confidence, ok := v.matchSplit(oldF, newF); ok {
		anomaly := AnomalyPotentialSplit
		kind := "split"
		if split.To < split.From {
			anomaly = AnomalyPotentialReverse
			kind = "reverse split"
		}
		ratio := split
		return Result{
			IsValid:         true,
			Anomaly:         anomaly,
			VariationPct:    variationPct,
			Confidence:      confidence,
			Message:         fmt.Sprintf("possible %s %s detected (%.2f -> %.2f)", kind, split, oldF, newF),
			SuggestedAction: "verify corporate actions with the issuer; if confirmed, adjust historical records",
			SplitRatio:      &ratio,
		}
	}

	absVariation := math.Abs(variationPct)

	if absVariation >= v.thresholds.CriticalPct {
		return Result{
			IsValid:         false,
			Anomaly:         AnomalyCriticalVariation,
			VariationPct:    variationPct,
			Confidence:      0.9,
			Message:         fmt.Sprintf("critical variation: %+.2f%% (%.2f -> %.2f)", variationPct, oldF, newF),
			SuggestedAction: "verification required: cross-check with an independent source, likely data error or split",
		}
	}

	if absVariation >= v.thresholds.WarningPct {
		return Result{
			IsValid:         true,
			Anomaly:         AnomalyHighVariation,
			VariationPct:    variationPct,
			Confidence:      0.7,
			Message:         fmt.Sprintf("significant variation: %+.2f%% (%.2f -> %.2f)", variationPct, oldF, newF),
			SuggestedAction: "cross-check recommended: could be a legitimate rally/crash or a data error",
		}
	}

	return Result{
		IsValid:      true,
		Anomaly:      AnomalyNormal,
		VariationPct: variationPct,
		Confidence:   1.0,
		Message:      fmt.Sprintf("normal variation: %+.2f%%", variationPct),
	}
}

// matchSplit checks oldPrice/newPrice against the split catalogue and picks
// the ratio with the lowest relative error within tolerance.
func (v *Validator) matchSplit(oldPrice, newPrice float64) (SplitRatio, float64, bool) {
	ratio := oldPrice / newPrice

	best := SplitRatio{}
	bestErr := math.Inf(1)
	// A from:to split turns each share into to/from shares, dividing the
	// price by the same factor, so old/new lands on to/from.
	for _, split := range commonSplits {
		expected := float64(split.To) / float64(split.From)
		tolerance := v.thresholds.SplitTolerance
		// Halving and doubling overlap the range an ordinary repricing can
		// reach, so the 2x entries match only near the exact ratio. Anything
		// further off falls through to the variation thresholds.
		if split.From*split.To == 2 {
			tolerance /= 4
		}
		relErr := math.Abs(ratio-expected) / expected
		if relErr <= tolerance && relErr < bestErr {
			best = split
			bestErr = relErr
		}
	}

	if math.IsInf(bestErr, 1) {
		return SplitRatio{}, 0, false
	}
	return best, 1.0 - bestErr, true
}
