package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNoSuchAsset indicates an append for an asset with no prior record.
	ErrNoSuchAsset = errors.New("storage: no record for asset")
)

const (
	listCurrentHoldingsSQL = `SELECT DISTINCT ON (asset_id)
        id, asset_id, category, asset_name, position, ticker, isin,
        amount, unit_price, total_value, currency, recorded_at, note, created_at
    FROM asset_records
    ORDER BY asset_id, recorded_at DESC, id DESC;`

	appendRecordSQL = `INSERT INTO asset_records (
        asset_id, category, asset_name, position, ticker, isin,
        amount, unit_price, total_value, currency, recorded_at, note
    )
    SELECT
        asset_id, category, asset_name, position,
        COALESCE(NULLIF($2, ''), ticker), isin,
        $3, $4, $5,
        COALESCE(NULLIF($6, ''), currency),
        $7, $8
    FROM asset_records
    WHERE asset_id = $1
    ORDER BY recorded_at DESC, id DESC
    LIMIT 1
    RETURNING id;`

	listAssetHistorySQL = `SELECT
        id, asset_id, category, asset_name, position, ticker, isin,
        amount, unit_price, total_value, currency, recorded_at, note, created_at
    FROM asset_records
    WHERE asset_id = $1
    ORDER BY recorded_at DESC, id DESC
    LIMIT $2;`

	insertPriceAlertSQL = `INSERT INTO price_alerts (
        asset_id, asset_name, alert_type, anomaly, variation_pct, split_ratio, message
    ) VALUES ($1,$2,$3,$4,$5,$6,$7)
    RETURNING id, created_at;`

	listRecentPriceAlertsSQL = `SELECT
        id, asset_id, asset_name, alert_type, anomaly, variation_pct, split_ratio, message, created_at
    FROM price_alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	deletePriceAlertsBeforeSQL = `DELETE FROM price_alerts WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// HoldingStore lists current holdings and appends snapshot rows.
type HoldingStore interface {
	ListCurrentHoldings(ctx context.Context) ([]AssetRecord, error)
	AppendRecord(ctx context.Context, assetID int64, ticker string, amount, price, total decimal.Decimal, currency string, date time.Time, note string) (int64, error)
	ListAssetHistory(ctx context.Context, assetID int64, limit int) ([]AssetRecord, error)
}

// AlertStore defines operations for anomaly auditing.
type AlertStore interface {
	InsertPriceAlert(ctx context.Context, alert PriceAlert) (PriceAlert, error)
	ListRecentPriceAlerts(ctx context.Context, limit int) ([]PriceAlert, error)
	DeletePriceAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to asset snapshots and alerts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		defer conn.Release()
		if _, err := conn.Exec(context.Background(), advisoryUnlockSQL, key); err != nil {
			// Lock is released anyway when the connection closes.
			_ = err
		}
	}
	return unlock, true, nil
}

// ListCurrentHoldings returns the latest snapshot per asset.
func (s *Store) ListCurrentHoldings(ctx context.Context) ([]AssetRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listCurrentHoldingsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list current holdings: %w", queryErr)
	}
	defer rows.Close()

	records := make([]AssetRecord, 0)
	for rows.Next() {
		record, scanErr := scanAssetRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// AppendRecord duplicates the asset's latest row with the new price, amount,
// total value and date, and returns the new row's id.
func (s *Store) AppendRecord(ctx context.Context, assetID int64, ticker string, amount, price, total decimal.Decimal, currency string, date time.Time, note string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}

	var id int64
	scanErr := pool.QueryRow(ctx, appendRecordSQL,
		assetID,
		ticker,
		amount.String(),
		price.String(),
		total.String(),
		currency,
		date,
		note,
	).Scan(&id)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: %d", ErrNoSuchAsset, assetID)
		}
		return 0, fmt.Errorf("append asset record: %w", scanErr)
	}
	return id, nil
}

// ListAssetHistory returns the most recent snapshots for one asset.
func (s *Store) ListAssetHistory(ctx context.Context, assetID int64, limit int) ([]AssetRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listAssetHistorySQL, assetID, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list asset history: %w", queryErr)
	}
	defer rows.Close()

	records := make([]AssetRecord, 0, limit)
	for rows.Next() {
		record, scanErr := scanAssetRecord(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// InsertPriceAlert persists an alert emission.
func (s *Store) InsertPriceAlert(ctx context.Context, alert PriceAlert) (PriceAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return PriceAlert{}, err
	}

	row := pool.QueryRow(ctx, insertPriceAlertSQL,
		alert.AssetID,
		alert.AssetName,
		alert.AlertType,
		alert.Anomaly,
		alert.VariationPct.String(),
		alert.SplitRatio,
		alert.Message,
	)
	if scanErr := row.Scan(&alert.ID, &alert.CreatedAt); scanErr != nil {
		return PriceAlert{}, fmt.Errorf("insert price alert: %w", scanErr)
	}
	return alert, nil
}

// ListRecentPriceAlerts lists most recent alerts.
func (s *Store) ListRecentPriceAlerts(ctx context.Context, limit int) ([]PriceAlert, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPriceAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent price alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]PriceAlert, 0, limit)
	for rows.Next() {
		var alert PriceAlert
		var variationStr string
		if err := rows.Scan(
			&alert.ID,
			&alert.AssetID,
			&alert.AssetName,
			&alert.AlertType,
			&alert.Anomaly,
			&variationStr,
			&alert.SplitRatio,
			&alert.Message,
			&alert.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		alert.VariationPct, convErr = decimal.NewFromString(variationStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse variation pct: %w", convErr)
		}
		alerts = append(alerts, alert)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeletePriceAlertsBefore deletes historical alerts.
func (s *Store) DeletePriceAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deletePriceAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete price alerts: %w", execErr)
	}
	return nil
}

func scanAssetRecord(rows pgx.Rows) (AssetRecord, error) {
	var record AssetRecord
	var amountStr, priceStr, totalStr string
	if err := rows.Scan(
		&record.ID,
		&record.AssetID,
		&record.Category,
		&record.AssetName,
		&record.Position,
		&record.Ticker,
		&record.ISIN,
		&amountStr,
		&priceStr,
		&totalStr,
		&record.Currency,
		&record.RecordedAt,
		&record.Note,
		&record.CreatedAt,
	); err != nil {
		return AssetRecord{}, err
	}

	var convErr error
	if record.Amount, convErr = decimal.NewFromString(amountStr); convErr != nil {
		return AssetRecord{}, fmt.Errorf("parse amount: %w", convErr)
	}
	if record.UnitPrice, convErr = decimal.NewFromString(priceStr); convErr != nil {
		return AssetRecord{}, fmt.Errorf("parse unit price: %w", convErr)
	}
	if record.TotalValue, convErr = decimal.NewFromString(totalStr); convErr != nil {
		return AssetRecord{}, fmt.Errorf("parse total value: %w", convErr)
	}
	return record, nil
}

var (
	_ HoldingStore   = (*Store)(nil)
	_ AlertStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
