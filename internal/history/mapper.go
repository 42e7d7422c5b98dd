package history

import (
	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/types"
)

// LatestAssetStatesFromSnapshotAssets maps snapshot asset rows to anchor states.
// An empty key is the native asset.
func LatestAssetStatesFromSnapshotAssets(assets []models.SnapshotAssetRow) []LatestAssetState {
	out := make([]LatestAssetState, 0, len(assets))
	for _, a := range assets {
		key := a.AssetKey
		if key == "" {
			key = types.NativeAssetKey
		}
		out = append(out, LatestAssetState{AssetKey: key, Balance: a.Balance, PriceUSD: a.PriceUSD})
	}
	return out
}

// TransfersFromSnapshotTransactions maps snapshot transaction rows to replayable transfers
func TransfersFromSnapshotTransactions(rows []models.SnapshotTransactionRow) []Transfer {
	out := make([]Transfer, 0, len(rows))
	for _, r := range rows {
		var counterparty string
		if r.Counterparty != nil {
			counterparty = *r.Counterparty
		}
		out = append(out, Transfer{
			Timestamp:    r.Timestamp,
			Wallet:       r.Wallet,
			Counterparty: counterparty,
			AssetKey:     r.AssetKey,
			Amount:       r.Amount,
			Direction:    r.Direction,
			UnitPriceUSD: r.UnitPriceUSD,
			FeeAlgo:      r.FeeAlgo,
		})
	}
	return out
}

// InputFromSnapshot anchors a build at a stored snapshot
func InputFromSnapshot(snapshot *models.PortfolioSnapshot, dailyPrices []models.DailyPrice) Input {
	value := snapshot.Totals.ValueUSD
	return Input{
		Transactions:      TransfersFromSnapshotTransactions(snapshot.Transactions),
		LatestValueUSD:    &value,
		LatestTs:          snapshot.ComputedAt,
		LatestAssetStates: LatestAssetStatesFromSnapshotAssets(snapshot.Assets),
		DailyPrices:       dailyPrices,
	}
}

// HistoricalFallbackByDay collects known historical prices from a snapshot, keyed by
// HistoricalPriceKey. Transaction unit prices override daily spot entries for the same day.
func HistoricalFallbackByDay(snapshot *models.PortfolioSnapshot) map[string]float64 {
	out := make(map[string]float64)
	if snapshot == nil {
		return out
	}

	for _, row := range snapshot.DailyPrices {
		if row.AssetKey == "" || row.DayKey == "" || row.PriceUSD == nil || !finite(*row.PriceUSD) || *row.PriceUSD < 0 {
			continue
		}
		out[row.AssetKey+":"+toProviderDay(row.DayKey)] = *row.PriceUSD
	}

	for _, tx := range snapshot.Transactions {
		if tx.AssetKey == "" || tx.Timestamp <= 0 || tx.UnitPriceUSD == nil || !finite(*tx.UnitPriceUSD) {
			continue
		}
		out[HistoricalPriceKey(tx.AssetKey, tx.Timestamp)] = *tx.UnitPriceUSD
	}
	return out
}

// MergeFallback adds fallback prices for asset days missing from daily
func MergeFallback(daily []models.DailyPrice, fallback map[string]float64) []models.DailyPrice {
	type assetDay struct{ asset, day string }
	known := make(map[assetDay]struct{}, len(daily))
	for _, row := range daily {
		if row.PriceUSD != nil {
			known[assetDay{row.AssetKey, row.DayKey}] = struct{}{}
		}
	}

	out := append([]models.DailyPrice{}, daily...)
	for key, price := range fallback {
		asset, day, ok := ParseHistoricalPriceKey(key)
		if !ok {
			continue
		}
		if _, exists := known[assetDay{asset, day}]; exists {
			continue
		}
		p := price
		out = append(out, models.DailyPrice{AssetKey: asset, DayKey: day, PriceUSD: &p, Source: "snapshot"})
	}
	return out
}
