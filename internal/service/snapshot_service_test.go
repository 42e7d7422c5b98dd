package service

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vestival/algorand-tracker/internal/config"
	"github.com/vestival/algorand-tracker/internal/defi"
	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/types"
)

// Mock collaborators for testing

type mockIndexer struct {
	accounts map[string]*models.AccountState
	txns     map[string][]models.RawTransaction
	assets   map[string]*models.AssetInfo
	accErr   error
	txErr    error
}

func (m *mockIndexer) GetAccountState(ctx context.Context, address string) (*models.AccountState, error) {
	if m.accErr != nil {
		return nil, m.accErr
	}
	if state, ok := m.accounts[address]; ok {
		return state, nil
	}
	return &models.AccountState{Address: address}, nil
}

func (m *mockIndexer) GetTransactions(ctx context.Context, address string, limit int) ([]models.RawTransaction, error) {
	if m.txErr != nil {
		return nil, m.txErr
	}
	return m.txns[address], nil
}

func (m *mockIndexer) GetAssetInfo(ctx context.Context, assetKey string) (*models.AssetInfo, error) {
	if info, ok := m.assets[assetKey]; ok {
		return info, nil
	}
	return nil, errors.New("asset not found")
}

type mockPrices struct {
	prices models.PriceMap
	err    error
}

func (m *mockPrices) GetSpotPrices(ctx context.Context, assetKeys []string) (models.PriceMap, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := models.PriceMap{}
	for _, k := range assetKeys {
		if v, ok := m.prices[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

type fixedCollector []models.DefiPosition

func (f fixedCollector) Collect(ctx context.Context, wallets []string) []models.DefiPosition {
	return f
}

func fixedDefi(rows ...models.DefiPosition) DefiCollectorFactory {
	return func(accounts defi.AccountSource, prices defi.PriceSource) DefiCollector {
		return fixedCollector(rows)
	}
}

var fixedNow = time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)

func newTestSnapshotService(indexer *mockIndexer, prices *mockPrices, factory DefiCollectorFactory) *SnapshotService {
	return NewSnapshotService(indexer, prices, factory, 100).WithClock(func() time.Time { return fixedNow })
}

func TestComputeSnapshot_BalancesAndPnl(t *testing.T) {
	indexer := &mockIndexer{
		accounts: map[string]*models.AccountState{
			"W1": {
				Address:      "W1",
				NativeAmount: 10,
				Assets:       []models.AssetHolding{{AssetKey: "31566704", Amount: 100, Decimals: 6}},
				AppIDs:       []uint64{552635992},
			},
		},
		txns: map[string][]models.RawTransaction{
			"W1": {
				{ID: "tx1", Sender: "X", Fee: 1000, Timestamp: 1, Payment: &models.PaymentTransfer{Receiver: "W1", Amount: 10_000_000}},
				{ID: "tx2", Sender: "W1", Fee: 1000, Timestamp: 2, AssetTransfer: &models.AssetTransfer{Receiver: "Y", Amount: 10_000_000, AssetKey: "31566704"}},
			},
		},
		assets: map[string]*models.AssetInfo{"31566704": {AssetKey: "31566704", Name: "USDC", UnitName: "USDC", Decimals: 6}},
	}
	prices := &mockPrices{prices: models.PriceMap{types.NativeAssetKey: 2, "31566704": 1}}
	tinyman := models.DefiPosition{Protocol: types.ProtocolTinyman, Wallet: "W1", PositionType: types.PositionLP, Estimated: true}

	snapshot, err := newTestSnapshotService(indexer, prices, fixedDefi(tinyman)).ComputeSnapshot(context.Background(), []string{"W1"})
	require.NoError(t, err)

	assert.Equal(t, types.MethodFIFO, snapshot.Method)
	assert.Equal(t, fixedNow, snapshot.ComputedAt)
	require.Len(t, snapshot.Assets, 2)
	assert.Equal(t, "31566704", snapshot.Assets[0].AssetKey, "sorted by value descending")
	assert.Equal(t, "USDC", snapshot.Assets[0].AssetName)
	assert.InDelta(t, 120, snapshot.Totals.ValueUSD, 1e-9)

	algo := snapshot.Assets[1]
	assert.Equal(t, types.NativeAssetKey, algo.AssetKey)
	assert.InDelta(t, 20, algo.CostBasisUSD, 1e-9)
	assert.InDelta(t, 0, *algo.UnrealizedPnlUSD, 1e-9)

	usdc := snapshot.Assets[0]
	assert.InDelta(t, 9.998, usdc.RealizedPnlUSD, 1e-9)

	assert.Len(t, snapshot.DefiPositions, 1)
	require.NotNil(t, snapshot.YieldEstimate.EstimatedAprPct)
	assert.Equal(t, 4.2, *snapshot.YieldEstimate.EstimatedAprPct)
	assert.True(t, snapshot.YieldEstimate.Estimated)
	assert.Equal(t, models.YieldNote, snapshot.YieldEstimate.Note)
	assert.Len(t, snapshot.DailyPrices, 2)
	assert.Equal(t, "2026-02-16", snapshot.DailyPrices[0].DayKey)
}

func TestComputeSnapshot_InboundBuyAttributesWalletCostBasis(t *testing.T) {
	indexer := &mockIndexer{
		accounts: map[string]*models.AccountState{"W1": {Address: "W1", NativeAmount: 5}},
		txns: map[string][]models.RawTransaction{
			"W1": {{ID: "inbound-buy", Sender: "X", Fee: 1000, Timestamp: 1, Payment: &models.PaymentTransfer{Receiver: "W1", Amount: 5_000_000}}},
		},
	}
	prices := &mockPrices{prices: models.PriceMap{types.NativeAssetKey: 2}}

	snapshot, err := newTestSnapshotService(indexer, prices, fixedDefi()).ComputeSnapshot(context.Background(), []string{"W1"})
	require.NoError(t, err)

	require.Len(t, snapshot.Wallets, 1)
	assert.InDelta(t, 10, snapshot.Wallets[0].TotalCostBasisUSD, 1e-9)
	assert.InDelta(t, 10, snapshot.Wallets[0].TotalValueUSD, 1e-9)
	assert.InDelta(t, 0, snapshot.Wallets[0].TotalUnrealizedPnlUSD, 1e-9)
	assert.Nil(t, snapshot.YieldEstimate.EstimatedAprPct)
}

func TestComputeSnapshot_FetchFailureIsFatal(t *testing.T) {
	prices := &mockPrices{prices: models.PriceMap{}}

	_, err := newTestSnapshotService(&mockIndexer{accErr: errors.New("indexer down")}, prices, fixedDefi()).
		ComputeSnapshot(context.Background(), []string{"W1", "W2"})
	assert.ErrorContains(t, err, "indexer down")

	_, err = newTestSnapshotService(&mockIndexer{txErr: errors.New("timeout")}, prices, fixedDefi()).
		ComputeSnapshot(context.Background(), []string{"W1"})
	assert.ErrorContains(t, err, "failed to get transactions")
}

func TestComputeSnapshot_MissingPricesAreNotErrors(t *testing.T) {
	indexer := &mockIndexer{
		accounts: map[string]*models.AccountState{
			"W1": {Address: "W1", NativeAmount: 3, Assets: []models.AssetHolding{{AssetKey: "777", Amount: 4}}},
		},
	}

	snapshot, err := newTestSnapshotService(indexer, &mockPrices{err: errors.New("quota")}, fixedDefi()).
		ComputeSnapshot(context.Background(), []string{"W1"})
	require.NoError(t, err)

	for _, row := range snapshot.Assets {
		assert.Nil(t, row.ValueUSD)
		assert.Nil(t, row.UnrealizedPnlUSD)
		assert.False(t, row.HasPrice)
	}
	assert.Equal(t, "777", snapshot.Assets[1].AssetName, "name falls back to key")
	assert.Zero(t, snapshot.Totals.ValueUSD)
	assert.Empty(t, snapshot.DailyPrices)
}

func TestComputeSnapshot_TransactionRows(t *testing.T) {
	note := base64.StdEncoding.EncodeToString([]byte("hello"))
	shared := models.RawTransaction{ID: "self", Sender: "W1", Fee: 2000, Timestamp: 30, Payment: &models.PaymentTransfer{Receiver: "W2", Amount: 1_000_000}}

	indexer := &mockIndexer{
		accounts: map[string]*models.AccountState{
			"W1": {Address: "W1", NativeAmount: 1},
			"W2": {Address: "W2", NativeAmount: 1},
		},
		txns: map[string][]models.RawTransaction{
			"W1": {
				shared,
				{ID: "out", Sender: "W1", Fee: 1000, Timestamp: 20, Note: note, Payment: &models.PaymentTransfer{Receiver: "X", Amount: 500_000}},
				{ID: "parent:inner:0", Sender: "APP", Timestamp: 10, Note: "%%%", AssetTransfer: &models.AssetTransfer{Receiver: "W1", Amount: 250, AssetKey: "42"}},
			},
			"W2": {shared},
		},
		assets: map[string]*models.AssetInfo{"42": {AssetKey: "42", Name: "Token", Decimals: 2}},
	}
	prices := &mockPrices{prices: models.PriceMap{types.NativeAssetKey: 0.5}}

	snapshot, err := newTestSnapshotService(indexer, prices, fixedDefi()).ComputeSnapshot(context.Background(), []string{"W1", "W2"})
	require.NoError(t, err)
	require.Len(t, snapshot.Transactions, 3)

	self := snapshot.Transactions[0]
	assert.Equal(t, "self", self.TxID)
	assert.Equal(t, types.DirectionSelf, self.Direction)
	assert.Equal(t, "W1", self.Wallet)
	assert.Equal(t, "W2", *self.Counterparty)
	assert.InDelta(t, 0.002, self.FeeAlgo, 1e-12)
	assert.InDelta(t, 0.001, self.FeeUSD, 1e-12)
	assert.Equal(t, ExplorerTxURL+"self", *self.ExplorerURL)

	out := snapshot.Transactions[1]
	assert.Equal(t, types.DirectionOut, out.Direction)
	assert.Equal(t, "hello", out.Note)
	assert.InDelta(t, 0.25, *out.ValueUSD, 1e-12)

	inner := snapshot.Transactions[2]
	assert.Equal(t, types.DirectionIn, inner.Direction)
	assert.Equal(t, types.TxTypeAssetTransfer, inner.TxType)
	assert.Equal(t, "APP", *inner.Counterparty)
	assert.Equal(t, "Token", inner.AssetName)
	assert.InDelta(t, 2.5, inner.Amount, 1e-12, "decimals resolved from asset info")
	assert.Zero(t, inner.FeeAlgo)
	assert.Empty(t, inner.Note)
	assert.Nil(t, inner.ExplorerURL)
	assert.Nil(t, inner.ValueUSD)
}

func TestComputeSnapshot_HoldingsAnnotatedWithCostBasis(t *testing.T) {
	indexer := &mockIndexer{
		accounts: map[string]*models.AccountState{
			"W1": {Address: "W1", Assets: []models.AssetHolding{{AssetKey: "1134696561", Amount: 10, Decimals: 6}}},
		},
		txns: map[string][]models.RawTransaction{
			"W1": {{ID: "buy", Sender: "X", Timestamp: 1, AssetTransfer: &models.AssetTransfer{Receiver: "W1", Amount: 10_000_000, AssetKey: "1134696561"}}},
		},
	}
	prices := &mockPrices{prices: models.PriceMap{"1134696561": 0.11}}
	factory := func(accounts defi.AccountSource, p defi.PriceSource) DefiCollector {
		return defi.NewDefaultRegistry(config.DeFiConfig{}, accounts, p)
	}

	snapshot, err := newTestSnapshotService(indexer, prices, factory).ComputeSnapshot(context.Background(), []string{"W1"})
	require.NoError(t, err)

	require.Len(t, snapshot.DefiPositions, 1)
	position := snapshot.DefiPositions[0]
	assert.InDelta(t, 1.1, *position.ValueUSD, 1e-9)
	assert.InDelta(t, 1.1, position.Meta["costBasisUsd"].(float64), 1e-9)
}
