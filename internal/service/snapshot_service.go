package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/vestival/algorand-tracker/internal/accounting"
	"github.com/vestival/algorand-tracker/internal/defi"
	"github.com/vestival/algorand-tracker/internal/logging"
	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/types"
)

// ExplorerTxURL is the block explorer link prefix for transaction rows
const ExplorerTxURL = "https://explorer.perawallet.app/tx/"

// estimatedAprPct is the static yield estimate used when any DeFi position is detected
const estimatedAprPct = 4.2

// IndexerClient reads on-chain state for wallets
type IndexerClient interface {
	GetAccountState(ctx context.Context, address string) (*models.AccountState, error)
	GetTransactions(ctx context.Context, address string, limit int) ([]models.RawTransaction, error)
	GetAssetInfo(ctx context.Context, assetKey string) (*models.AssetInfo, error)
}

// PriceProvider returns USD spot prices. Unknown prices are absent from the result.
type PriceProvider interface {
	GetSpotPrices(ctx context.Context, assetKeys []string) (models.PriceMap, error)
}

// DefiCollector gathers DeFi positions for a set of wallets
type DefiCollector interface {
	Collect(ctx context.Context, wallets []string) []models.DefiPosition
}

// DefiCollectorFactory builds a collector over state already loaded during a snapshot run
type DefiCollectorFactory func(accounts defi.AccountSource, prices defi.PriceSource) DefiCollector

// SnapshotService computes consolidated portfolio snapshots across wallets
type SnapshotService struct {
	indexer     IndexerClient
	prices      PriceProvider
	defiFactory DefiCollectorFactory
	txLimit     int
	now         func() time.Time
}

// NewSnapshotService creates a new snapshot service
func NewSnapshotService(indexer IndexerClient, prices PriceProvider, defiFactory DefiCollectorFactory, txLimit int) *SnapshotService {
	return &SnapshotService{
		indexer:     indexer,
		prices:      prices,
		defiFactory: defiFactory,
		txLimit:     txLimit,
		now:         time.Now,
	}
}

// WithClock overrides the clock used for computedAt
func (s *SnapshotService) WithClock(now func() time.Time) *SnapshotService {
	s.now = now
	return s
}

type walletData struct {
	state *models.AccountState
	txns  []models.RawTransaction
}

// ComputeSnapshot builds one snapshot for wallets. Any account or transaction fetch failure
// fails the whole computation.
func (s *SnapshotService) ComputeSnapshot(ctx context.Context, wallets []string) (*models.PortfolioSnapshot, error) {
	logger := logging.FromContext(ctx).WithField("walletCount", len(wallets))
	computedAt := s.now().UTC()

	data, err := s.fetchWallets(ctx, wallets)
	if err != nil {
		return nil, err
	}

	accounts := make(defi.StaticAccounts, len(wallets))
	states := make([]*models.AccountState, 0, len(wallets))
	for i, wallet := range wallets {
		accounts[wallet] = data[i].state
		states = append(states, data[i].state)
	}

	txns := dedupeTransactions(data)
	owned := accounting.NewWalletSet(wallets)

	decimals := accounting.NewDecimalsCache()
	balanceKeys, balances := sumBalances(states, decimals)
	names := s.resolveAssetInfo(ctx, balanceKeys, txns, decimals)

	prices, err := s.prices.GetSpotPrices(ctx, balanceKeys)
	if err != nil {
		logger.WithError(err).Warn("spot prices unavailable, continuing without prices")
		prices = models.PriceMap{}
	}

	events := accounting.ParseLotEvents(txns, owned, prices, decimals)
	fifo := accounting.RunFIFO(events)

	assets := buildAssetRows(balanceKeys, balances, names, prices, fifo)
	positions := s.defiFactory(accounts, defi.StaticPrices(prices)).Collect(ctx, wallets)
	annotateCostBasis(positions, assets)

	snapshot := &models.PortfolioSnapshot{
		ComputedAt:    computedAt,
		Method:        types.MethodFIFO,
		Totals:        sumTotals(assets),
		Assets:        assets,
		Transactions:  buildTransactionRows(txns, owned, prices, decimals, names),
		Wallets:       buildWalletBreakdowns(wallets, accounts, prices, events),
		DefiPositions: positions,
		YieldEstimate: models.YieldEstimate{Estimated: true, Note: models.YieldNote},
		DailyPrices:   dailyPricesFor(computedAt, balanceKeys, prices),
	}
	if len(positions) > 0 {
		apr := estimatedAprPct
		snapshot.YieldEstimate.EstimatedAprPct = &apr
	}

	logger.WithFields(map[string]interface{}{
		"assets":       len(assets),
		"transactions": len(txns),
		"positions":    len(positions),
	}).Info("snapshot computed")

	return snapshot, nil
}

func (s *SnapshotService) fetchWallets(ctx context.Context, wallets []string) ([]walletData, error) {
	data := make([]walletData, len(wallets))
	errChan := make(chan error, len(wallets)*2)
	var wg sync.WaitGroup

	for i, wallet := range wallets {
		wg.Add(2)
		go func(i int, wallet string) {
			defer wg.Done()
			state, err := s.indexer.GetAccountState(ctx, wallet)
			if err != nil {
				errChan <- fmt.Errorf("failed to get account state for %s: %w", wallet, err)
				return
			}
			data[i].state = state
		}(i, wallet)
		go func(i int, wallet string) {
			defer wg.Done()
			txns, err := s.indexer.GetTransactions(ctx, wallet, s.txLimit)
			if err != nil {
				errChan <- fmt.Errorf("failed to get transactions for %s: %w", wallet, err)
				return
			}
			data[i].txns = txns
		}(i, wallet)
	}

	wg.Wait()
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, err
	}
	return data, nil
}

// dedupeTransactions merges wallet histories keeping the first occurrence of each id
func dedupeTransactions(data []walletData) []models.RawTransaction {
	seen := make(map[string]struct{})
	var out []models.RawTransaction
	for _, d := range data {
		for _, tx := range d.txns {
			if _, ok := seen[tx.ID]; ok {
				continue
			}
			seen[tx.ID] = struct{}{}
			out = append(out, tx)
		}
	}
	return out
}

// sumBalances totals balances per asset, ALGO first, and records decimals
func sumBalances(states []*models.AccountState, decimals *accounting.DecimalsCache) ([]string, map[string]float64) {
	keys := []string{types.NativeAssetKey}
	balances := map[string]float64{types.NativeAssetKey: 0}

	for _, state := range states {
		balances[types.NativeAssetKey] += state.NativeAmount
		decimals.AddAccount(state)
		for _, holding := range state.Assets {
			if _, ok := balances[holding.AssetKey]; !ok {
				keys = append(keys, holding.AssetKey)
			}
			balances[holding.AssetKey] += holding.Amount
		}
	}
	return keys, balances
}

// resolveAssetInfo looks up display names for every asset, and decimals for transferred
// assets no longer held. Lookup failures fall back to the asset key.
func (s *SnapshotService) resolveAssetInfo(ctx context.Context, held []string, txns []models.RawTransaction, decimals *accounting.DecimalsCache) map[string]string {
	names := map[string]string{types.NativeAssetKey: types.NativeAssetKey}
	keys := append([]string{}, held...)
	seen := make(map[string]struct{}, len(held))
	for _, k := range held {
		seen[k] = struct{}{}
	}
	for _, tx := range txns {
		if tx.AssetTransfer == nil {
			continue
		}
		if _, ok := seen[tx.AssetTransfer.AssetKey]; !ok {
			seen[tx.AssetTransfer.AssetKey] = struct{}{}
			keys = append(keys, tx.AssetTransfer.AssetKey)
		}
	}

	logger := logging.FromContext(ctx)
	for _, key := range keys {
		if key == types.NativeAssetKey {
			continue
		}
		info, err := s.indexer.GetAssetInfo(ctx, key)
		if err != nil {
			logger.WithError(err).WithField("assetKey", key).Debug("asset info lookup failed")
			names[key] = key
			continue
		}
		names[key] = info.DisplayName()
		if _, known := decimals.Get(key); !known {
			decimals.Set(key, info.Decimals)
		}
	}
	return names
}

func buildAssetRows(keys []string, balances map[string]float64, names map[string]string, prices models.PriceMap, fifo map[string]*accounting.FifoSummary) []models.SnapshotAssetRow {
	rows := make([]models.SnapshotAssetRow, 0, len(keys))
	for _, key := range keys {
		balance := balances[key]
		price := prices.Lookup(key)

		row := models.SnapshotAssetRow{
			AssetKey:  key,
			AssetName: names[key],
			Balance:   balance,
			PriceUSD:  price,
			HasPrice:  price != nil,
		}
		if row.AssetName == "" {
			row.AssetName = key
		}
		if summary, ok := fifo[key]; ok {
			row.CostBasisUSD = summary.RemainingCostUSD.InexactFloat64()
			row.RealizedPnlUSD = summary.RealizedPnlUSD.InexactFloat64()
			row.HasPriceGaps = summary.HasPriceGaps
		}
		if price != nil {
			value := balance * *price
			unrealized := value - row.CostBasisUSD
			row.ValueUSD = &value
			row.UnrealizedPnlUSD = &unrealized
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].ValueUSD, rows[j].ValueUSD
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		return *a > *b
	})
	return rows
}

func sumTotals(rows []models.SnapshotAssetRow) models.Totals {
	var totals models.Totals
	for _, row := range rows {
		if row.ValueUSD != nil {
			totals.ValueUSD += *row.ValueUSD
		}
		totals.CostBasisUSD += row.CostBasisUSD
		totals.RealizedPnlUSD += row.RealizedPnlUSD
		if row.UnrealizedPnlUSD != nil {
			totals.UnrealizedPnlUSD += *row.UnrealizedPnlUSD
		}
	}
	return totals
}

func buildTransactionRows(txns []models.RawTransaction, owned accounting.WalletSet, prices models.PriceMap, decimals *accounting.DecimalsCache, names map[string]string) []models.SnapshotTransactionRow {
	algoPrice := 0.0
	if p := prices.Lookup(types.NativeAssetKey); p != nil {
		algoPrice = *p
	}

	rows := make([]models.SnapshotTransactionRow, 0, len(txns))
	for i := range txns {
		tx := &txns[i]
		transfer, ok := accounting.TransferOf(tx, decimals)
		if !ok {
			continue
		}

		senderOwned := owned.Contains(tx.Sender)
		receiverOwned := owned.Contains(transfer.Receiver)
		if !senderOwned && !receiverOwned {
			continue
		}

		row := models.SnapshotTransactionRow{
			TxID:      tx.ID,
			Timestamp: tx.Timestamp,
			TxType:    transfer.Type,
			AssetKey:  transfer.AssetKey,
			AssetName: names[transfer.AssetKey],
			Amount:    transfer.Amount.InexactFloat64(),
			Note:      decodeNote(tx.Note),
		}
		if row.AssetName == "" {
			row.AssetName = transfer.AssetKey
		}

		var counterparty string
		switch {
		case senderOwned && receiverOwned:
			row.Direction = types.DirectionSelf
			row.Wallet, counterparty = tx.Sender, transfer.Receiver
		case senderOwned:
			row.Direction = types.DirectionOut
			row.Wallet, counterparty = tx.Sender, transfer.Receiver
		default:
			row.Direction = types.DirectionIn
			row.Wallet, counterparty = transfer.Receiver, tx.Sender
		}
		if counterparty != "" {
			row.Counterparty = &counterparty
		}

		if senderOwned {
			row.FeeAlgo = accounting.FeeAlgo(tx.Fee).InexactFloat64()
			row.FeeUSD = row.FeeAlgo * algoPrice
		}
		if price := prices.Lookup(transfer.AssetKey); price != nil {
			value := row.Amount * *price
			row.UnitPriceUSD = price
			row.ValueUSD = &value
		}
		if !strings.Contains(tx.ID, ":inner:") {
			url := ExplorerTxURL + tx.ID
			row.ExplorerURL = &url
		}

		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Timestamp > rows[j].Timestamp
	})
	return rows
}

// decodeNote returns the note as text, or empty when it is not valid base64 UTF-8
func decodeNote(note string) string {
	if note == "" {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(note)
	if err != nil || !utf8.Valid(raw) {
		return ""
	}
	return string(raw)
}

func buildWalletBreakdowns(wallets []string, accounts defi.StaticAccounts, prices models.PriceMap, events []accounting.LotEvent) []models.WalletBreakdown {
	algoPrice := 0.0
	if p := prices.Lookup(types.NativeAssetKey); p != nil {
		algoPrice = *p
	}

	out := make([]models.WalletBreakdown, 0, len(wallets))
	for _, wallet := range wallets {
		summaries := accounting.RunFIFO(accounting.FilterByWallet(events, wallet))
		costBasis := accounting.TotalCostBasis(summaries).InexactFloat64()

		value := 0.0
		if state, ok := accounts[wallet]; ok {
			value += state.NativeAmount * algoPrice
			for _, holding := range state.Assets {
				if price := prices.Lookup(holding.AssetKey); price != nil {
					value += holding.Amount * *price
				}
			}
		}

		out = append(out, models.WalletBreakdown{
			Wallet:                wallet,
			TotalValueUSD:         value,
			TotalCostBasisUSD:     costBasis,
			TotalRealizedPnlUSD:   accounting.TotalRealized(summaries).InexactFloat64(),
			TotalUnrealizedPnlUSD: value - costBasis,
		})
	}
	return out
}

// annotateCostBasis attaches the proportional FIFO basis of held derivative assets to positions
func annotateCostBasis(positions []models.DefiPosition, assets []models.SnapshotAssetRow) {
	basis := make(map[string]defi.AssetBasis, len(assets))
	for _, row := range assets {
		cost := row.CostBasisUSD
		basis[row.AssetKey] = defi.AssetBasis{AssetKey: row.AssetKey, Balance: row.Balance, CostBasisUSD: &cost}
	}

	for i := range positions {
		p := &positions[i]
		if p.AssetKey == "" || p.Amount == nil {
			continue
		}
		components := []defi.Component{{AssetKey: p.AssetKey, Amount: *p.Amount}}
		if cb := defi.PositionAtDepositUSD(components, basis); cb != nil {
			if p.Meta == nil {
				p.Meta = map[string]interface{}{}
			}
			p.Meta["costBasisUsd"] = *cb
		}
	}
}

func dailyPricesFor(at time.Time, keys []string, prices models.PriceMap) []models.DailyPrice {
	dayKey := at.UTC().Format("2006-01-02")
	var out []models.DailyPrice
	for _, key := range keys {
		if price := prices.Lookup(key); price != nil {
			out = append(out, models.DailyPrice{AssetKey: key, DayKey: dayKey, PriceUSD: price, Source: "spot"})
		}
	}
	return out
}
