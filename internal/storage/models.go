package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetRecord is one append-only snapshot row of a portfolio asset. The
// latest row per asset_id is the current holding; older rows are history.
type AssetRecord struct {
	ID         int64
	AssetID    int64
	Category   string
	AssetName  string
	Position   string
	Ticker     string
	ISIN       string
	Amount     decimal.Decimal
	UnitPrice  decimal.Decimal
	TotalValue decimal.Decimal
	Currency   string
	RecordedAt time.Time
	Note       string
	CreatedAt  time.Time
}

// PriceAlert captures a surfaced anomaly for auditing.
type PriceAlert struct {
	ID           int64
	AssetID      int64
	AssetName    string
	AlertType    string
	Anomaly      string
	VariationPct decimal.Decimal
	SplitRatio   string
	Message      string
	CreatedAt    time.Time
}
