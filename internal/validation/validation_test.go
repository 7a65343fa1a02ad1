package validation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestValidateNormalVariation(t *testing.T) {
	v := New(Thresholds{})

	result := v.Validate(d("100"), d("102.5"), "USD", "USD")
	assert.True(t, result.IsValid)
	assert.Equal(t, AnomalyNormal, result.Anomaly)
	assert.InDelta(t, 2.5, result.VariationPct, 0.001)
	assert.Equal(t, 1.0, result.Confidence)
	assert.False(t, result.Flagged())
}

func TestValidateZeroOrNegative(t *testing.T) {
	v := New(Thresholds{})

	for _, price := range []string{"0", "-5"} {
		result := v.Validate(d("100"), d(price), "", "")
		assert.False(t, result.IsValid, "price %s", price)
		assert.Equal(t, AnomalyZeroOrNegative, result.Anomaly)
		assert.Equal(t, 1.0, result.Confidence)
	}
}

func TestValidateFirstObservation(t *testing.T) {
	v := New(Thresholds{})

	result := v.Validate(decimal.Zero, d("42"), "", "EUR")
	assert.True(t, result.IsValid)
	assert.Equal(t, AnomalyNormal, result.Anomaly)
	assert.Zero(t, result.VariationPct)
}

func TestValidateCurrencyMismatch(t *testing.T) {
	v := New(Thresholds{})

	result := v.Validate(d("100"), d("92"), "USD", "EUR")
	assert.False(t, result.IsValid)
	assert.Equal(t, AnomalyCurrencyMismatch, result.Anomaly)

	// Unknown currency on either side never triggers a mismatch.
	result = v.Validate(d("100"), d("92"), "", "EUR")
	assert.True(t, result.IsValid)
	result = v.Validate(d("100"), d("92"), "USD", "")
	assert.True(t, result.IsValid)
}

func TestValidateForwardSplit(t *testing.T) {
	v := New(Thresholds{})

	// A 1:4 split divides the price by four.
	result := v.Validate(d("400"), d("100"), "USD", "USD")
	assert.True(t, result.IsValid)
	assert.Equal(t, AnomalyPotentialSplit, result.Anomaly)
	require.NotNil(t, result.SplitRatio)
	assert.Equal(t, SplitRatio{From: 1, To: 4}, *result.SplitRatio)
	assert.Equal(t, 1.0, result.Confidence)
	assert.True(t, result.Flagged())
}

func TestValidateReverseSplit(t *testing.T) {
	v := New(Thresholds{})

	// A 10:1 reverse split multiplies the price by ten.
	result := v.Validate(d("10"), d("100"), "USD", "USD")
	assert.True(t, result.IsValid)
	assert.Equal(t, AnomalyPotentialReverse, result.Anomaly)
	require.NotNil(t, result.SplitRatio)
	assert.Equal(t, SplitRatio{From: 10, To: 1}, *result.SplitRatio)
}

func TestValidateSplitWithinTolerance(t *testing.T) {
	v := New(Thresholds{})

	// 400 -> 110 sits 10% off the exact 1:4 ratio, inside tolerance.
	result := v.Validate(d("400"), d("110"), "USD", "USD")
	assert.Equal(t, AnomalyPotentialSplit, result.Anomaly)
	require.NotNil(t, result.SplitRatio)
	assert.Equal(t, SplitRatio{From: 1, To: 4}, *result.SplitRatio)
	assert.Greater(t, result.Confidence, 0.85)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}

func TestValidateSplitPicksBestRatio(t *testing.T) {
	v := New(Thresholds{})

	// 100 -> 21 is close to both 1:5 (20) and 1:4 (25); 1:5 is closer.
	result := v.Validate(d("100"), d("21"), "USD", "USD")
	require.NotNil(t, result.SplitRatio)
	assert.Equal(t, SplitRatio{From: 1, To: 5}, *result.SplitRatio)
}

func TestValidateDoubleRequiresNearExactRatio(t *testing.T) {
	v := New(Thresholds{})

	// An exact double is a 2:1 reverse split.
	result := v.Validate(d("100"), d("200"), "USD", "USD")
	assert.Equal(t, AnomalyPotentialReverse, result.Anomaly)
	require.NotNil(t, result.SplitRatio)
	assert.Equal(t, SplitRatio{From: 2, To: 1}, *result.SplitRatio)

	// A near-exact halving still matches 1:2.
	result = v.Validate(d("100"), d("51"), "USD", "USD")
	assert.Equal(t, AnomalyPotentialSplit, result.Anomaly)
	require.NotNil(t, result.SplitRatio)
	assert.Equal(t, SplitRatio{From: 1, To: 2}, *result.SplitRatio)

	// +90.5% is 5% off the 2:1 ratio, outside the tightened 2x window,
	// so it is rejected as a critical variation instead of accepted as
	// a split.
	result = v.Validate(d("100"), d("190.5"), "USD", "USD")
	assert.False(t, result.IsValid)
	assert.Equal(t, AnomalyCriticalVariation, result.Anomaly)
	assert.Nil(t, result.SplitRatio)
}

func TestValidateCriticalVariation(t *testing.T) {
	v := New(Thresholds{})

	// +90.5% matches no catalogue ratio and crosses the critical threshold.
	result := v.Validate(d("100"), d("190.5"), "USD", "USD")
	assert.False(t, result.IsValid)
	assert.Equal(t, AnomalyCriticalVariation, result.Anomaly)
	assert.InDelta(t, 90.5, result.VariationPct, 0.001)
}

func TestValidateHighVariation(t *testing.T) {
	v := New(Thresholds{})

	result := v.Validate(d("100"), d("128"), "USD", "USD")
	assert.True(t, result.IsValid)
	assert.Equal(t, AnomalyHighVariation, result.Anomaly)
	assert.Equal(t, 0.7, result.Confidence)

	result = v.Validate(d("100"), d("72"), "USD", "USD")
	assert.True(t, result.IsValid)
	assert.Equal(t, AnomalyHighVariation, result.Anomaly)
}

func TestValidateCustomThresholds(t *testing.T) {
	v := New(Thresholds{WarningPct: 5, CriticalPct: 10, SplitTolerance: 0.01})

	result := v.Validate(d("100"), d("107"), "USD", "USD")
	assert.Equal(t, AnomalyHighVariation, result.Anomaly)

	result = v.Validate(d("100"), d("112"), "USD", "USD")
	assert.Equal(t, AnomalyCriticalVariation, result.Anomaly)
	assert.False(t, result.IsValid)
}
