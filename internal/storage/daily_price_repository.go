package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/vestival/algorand-tracker/internal/models"
)

// DailyPriceRepository keeps USD daily closes per asset in ClickHouse.
// The table is a ReplacingMergeTree keyed by (asset_key, day_key); reads take the latest write.
type DailyPriceRepository struct {
	db *ClickHouseDB
}

// NewDailyPriceRepository creates a new daily price repository
func NewDailyPriceRepository(db *ClickHouseDB) *DailyPriceRepository {
	return &DailyPriceRepository{db: db}
}

// Upsert writes rows with a known price. Rows with a nil price are skipped.
func (r *DailyPriceRepository) Upsert(ctx context.Context, prices []models.DailyPrice) error {
	var rows []models.DailyPrice
	for _, p := range prices {
		if p.AssetKey != "" && p.DayKey != "" && p.PriceUSD != nil {
			rows = append(rows, p)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO daily_prices (asset_key, day_key, price_usd, source, recorded_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	now := time.Now().UTC()
	for _, p := range rows {
		if err := batch.Append(p.AssetKey, p.DayKey, *p.PriceUSD, p.Source, now); err != nil {
			return fmt.Errorf("failed to append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send daily prices: %w", err)
	}
	return nil
}

// GetRange returns stored prices for the assets between two day keys, inclusive
func (r *DailyPriceRepository) GetRange(ctx context.Context, assetKeys []string, fromDay, toDay string) ([]models.DailyPrice, error) {
	if len(assetKeys) == 0 {
		return nil, nil
	}

	query := `
		SELECT asset_key, day_key, argMax(price_usd, recorded_at), argMax(source, recorded_at)
		FROM daily_prices
		WHERE has(?, asset_key) AND day_key >= ? AND day_key <= ?
		GROUP BY asset_key, day_key
		ORDER BY asset_key, day_key
	`

	rows, err := r.db.Conn().Query(ctx, query, assetKeys, fromDay, toDay)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []models.DailyPrice
	for rows.Next() {
		var row models.DailyPrice
		var price float64
		if err := rows.Scan(&row.AssetKey, &row.DayKey, &price, &row.Source); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}
		row.PriceUSD = &price
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily prices: %w", err)
	}
	return out, nil
}
