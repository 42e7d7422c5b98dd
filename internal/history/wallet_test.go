package history

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/types"
)

func TestPerWalletValueSeries_Aggregate(t *testing.T) {
	perWallet := PerWalletValueSeries(WalletValueInput{
		Wallets:             []string{"W1", "W2"},
		LatestTs:            at("2026-02-17T00:00:00Z"),
		LatestValueByWallet: map[string]float64{"W1": 3, "W2": 2},
		Transactions: []Transfer{
			{Timestamp: 1739606400, Wallet: "W1", AssetKey: types.NativeAssetKey, Amount: 10, Direction: types.DirectionIn, UnitPriceUSD: f(0.2)},
			{Timestamp: 1739692800, Wallet: "W2", AssetKey: types.NativeAssetKey, Amount: 5, Direction: types.DirectionIn, UnitPriceUSD: f(0.4)},
		},
	})
	require.Len(t, perWallet, 2)

	aligned := AlignSeriesByTimestamp(perWallet)
	aggregate := SumAlignedSeries(aligned)

	assert.Equal(t, AggregateLabel, aggregate.Wallet)
	require.Len(t, aggregate.Points, 3)
	assert.InDelta(t, 2, aggregate.Points[0].Value, 1e-9)
	assert.InDelta(t, 4, aggregate.Points[1].Value, 1e-9)
	assert.InDelta(t, 5, aggregate.Points[2].Value, 1e-9)

	// W2 has no sample at the first timestamp
	assert.Equal(t, 0.0, aligned[1].Points[0].Value)
}

func TestPerWalletAssetBalanceSeries_AlgoFees(t *testing.T) {
	perWallet := PerWalletAssetBalanceSeries(WalletBalanceInput{
		Wallets:  []string{"W1"},
		AssetKey: types.NativeAssetKey,
		Transactions: []Transfer{
			{Timestamp: 1739606400, Wallet: "W1", AssetKey: types.NativeAssetKey, Amount: 1, Direction: types.DirectionIn, UnitPriceUSD: f(0.2)},
			{Timestamp: 1739692800, Wallet: "W1", AssetKey: "USDC", Amount: 10, Direction: types.DirectionIn, UnitPriceUSD: f(1), FeeAlgo: 0.001},
		},
	})

	require.Len(t, perWallet, 1)
	points := perWallet[0].Points
	require.Len(t, points, 2)
	assert.InDelta(t, 0.999, points[1].Value, 1e-12)
}

func TestPerWalletAssetBalanceSeries_LatestAnchor(t *testing.T) {
	latest := time.Unix(1739800000, 0)
	perWallet := PerWalletAssetBalanceSeries(WalletBalanceInput{
		Wallets:               []string{"W1", "W2"},
		AssetKey:              "USDC",
		LatestTs:              latest,
		LatestBalanceByWallet: map[string]float64{"W2": 7},
		Transactions: []Transfer{
			{Timestamp: 1739606400, Wallet: "W1", AssetKey: "USDC", Amount: 4, Direction: types.DirectionOut},
		},
	})

	require.Len(t, perWallet, 2)
	assert.Equal(t, 0.0, perWallet[0].Points[0].Value, "balances never go negative")
	require.Len(t, perWallet[1].Points, 1)
	assert.Equal(t, 7.0, perWallet[1].Points[0].Value)
}

func TestSumAlignedSeries_Empty(t *testing.T) {
	sum := SumAlignedSeries(nil)
	assert.Empty(t, sum.Points)
}

func TestPerWalletSeries_SelfTransferMovesFundsBetweenWallets(t *testing.T) {
	w2 := "W2"
	rows := []models.SnapshotTransactionRow{
		{Timestamp: 1739606400, Wallet: "W1", AssetKey: types.NativeAssetKey, Amount: 10, Direction: types.DirectionIn, UnitPriceUSD: f(1)},
		{Timestamp: 1739692800, Wallet: "W1", Counterparty: &w2, AssetKey: types.NativeAssetKey, Amount: 10, Direction: types.DirectionSelf, UnitPriceUSD: f(1)},
	}
	transfers := TransfersFromSnapshotTransactions(rows)
	require.Len(t, transfers, 2)
	assert.Equal(t, "W2", transfers[1].Counterparty)

	values := PerWalletValueSeries(WalletValueInput{Wallets: []string{"W1", "W2"}, Transactions: transfers})
	require.Len(t, values, 2)
	require.Len(t, values[0].Points, 2)
	assert.Equal(t, 10.0, values[0].Points[0].Value)
	assert.Equal(t, 0.0, values[0].Points[1].Value)
	require.Len(t, values[1].Points, 1)
	assert.Equal(t, time.Unix(1739692800, 0).UTC(), values[1].Points[0].Timestamp)
	assert.Equal(t, 10.0, values[1].Points[0].Value)

	balances := PerWalletAssetBalanceSeries(WalletBalanceInput{
		Wallets:      []string{"W1", "W2"},
		AssetKey:     types.NativeAssetKey,
		Transactions: transfers,
	})
	require.Len(t, balances, 2)
	require.Len(t, balances[0].Points, 2)
	assert.Equal(t, 0.0, balances[0].Points[1].Value)
	require.Len(t, balances[1].Points, 1)
	assert.Equal(t, 10.0, balances[1].Points[0].Value)

	aggregate := SumAlignedSeries(AlignSeriesByTimestamp(values))
	require.Len(t, aggregate.Points, 2)
	assert.Equal(t, 10.0, aggregate.Points[1].Value, "internal moves leave the total unchanged")
}

func TestPerWalletAssetBalanceSeries_SelfTransferFeeStaysWithSender(t *testing.T) {
	transfers := []Transfer{
		{Timestamp: 1739606400, Wallet: "W1", AssetKey: types.NativeAssetKey, Amount: 5, Direction: types.DirectionIn},
		{Timestamp: 1739692800, Wallet: "W1", Counterparty: "W2", AssetKey: types.NativeAssetKey, Amount: 2, Direction: types.DirectionSelf, FeeAlgo: 0.001},
	}

	balances := PerWalletAssetBalanceSeries(WalletBalanceInput{
		Wallets:      []string{"W1", "W2"},
		AssetKey:     types.NativeAssetKey,
		Transactions: transfers,
	})

	require.Len(t, balances, 2)
	assert.InDelta(t, 2.999, balances[0].Points[1].Value, 1e-12)
	assert.Equal(t, 2.0, balances[1].Points[0].Value)
}
