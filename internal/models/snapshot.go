package models

import (
	"encoding/json"
	"time"

	"github.com/vestival/algorand-tracker/internal/types"
)

// YieldNote is attached to every snapshot yield estimate
const YieldNote = "Estimated yield from detected staking/DeFi activity. Historical decomposition is partial in MVP."

// SnapshotAssetRow is the aggregated position in one asset across all wallets
type SnapshotAssetRow struct {
	AssetKey         string   `json:"assetKey"`
	AssetName        string   `json:"assetName"`
	Balance          float64  `json:"balance"`
	PriceUSD         *float64 `json:"priceUsd"`
	ValueUSD         *float64 `json:"valueUsd"`
	CostBasisUSD     float64  `json:"costBasisUsd"`
	RealizedPnlUSD   float64  `json:"realizedPnlUsd"`
	UnrealizedPnlUSD *float64 `json:"unrealizedPnlUsd"`
	HasPrice         bool     `json:"hasPrice"`
	HasPriceGaps     bool     `json:"hasPriceGaps"`
}

// WalletBreakdown summarizes one wallet
type WalletBreakdown struct {
	Wallet                string  `json:"wallet"`
	TotalValueUSD         float64 `json:"totalValueUsd"`
	TotalCostBasisUSD     float64 `json:"totalCostBasisUsd"`
	TotalRealizedPnlUSD   float64 `json:"totalRealizedPnlUsd"`
	TotalUnrealizedPnlUSD float64 `json:"totalUnrealizedPnlUsd"`
}

// SnapshotTransactionRow is one transfer as shown in the transactions table
type SnapshotTransactionRow struct {
	TxID         string                     `json:"txId"`
	Timestamp    int64                      `json:"ts"`
	Wallet       string                     `json:"wallet"`
	Counterparty *string                    `json:"counterparty"`
	TxType       types.TransactionType      `json:"txType"`
	Direction    types.TransactionDirection `json:"direction"`
	AssetKey     string                     `json:"assetKey"`
	AssetName    string                     `json:"assetName"`
	Amount       float64                    `json:"amount"`
	UnitPriceUSD *float64                   `json:"unitPriceUsd"`
	ValueUSD     *float64                   `json:"valueUsd"`
	FeeAlgo      float64                    `json:"feeAlgo"`
	FeeUSD       float64                    `json:"feeUsd"`
	Note         string                     `json:"note,omitempty"`
	ExplorerURL  *string                    `json:"explorerUrl,omitempty"`
}

// Totals sums the defined per-asset fields
type Totals struct {
	ValueUSD         float64 `json:"valueUsd"`
	CostBasisUSD     float64 `json:"costBasisUsd"`
	RealizedPnlUSD   float64 `json:"realizedPnlUsd"`
	UnrealizedPnlUSD float64 `json:"unrealizedPnlUsd"`
}

// YieldEstimate is a coarse APR placeholder
type YieldEstimate struct {
	EstimatedAprPct *float64 `json:"estimatedAprPct"`
	Estimated       bool     `json:"estimated"`
	Note            string   `json:"note"`
}

// PortfolioSnapshot is the consolidated document produced by one refresh
type PortfolioSnapshot struct {
	ComputedAt    time.Time                `json:"computedAt"`
	Method        types.AccountingMethod   `json:"method"`
	Totals        Totals                   `json:"totals"`
	Assets        []SnapshotAssetRow       `json:"assets"`
	Transactions  []SnapshotTransactionRow `json:"transactions"`
	Wallets       []WalletBreakdown        `json:"wallets"`
	DefiPositions []DefiPosition           `json:"defiPositions"`
	YieldEstimate YieldEstimate            `json:"yieldEstimate"`
	DailyPrices   []DailyPrice             `json:"dailyPrices,omitempty"`
}

// StoredSnapshot is a persisted snapshot row. Data is kept opaque.
type StoredSnapshot struct {
	ID         string          `json:"id" db:"id"`
	UserID     string          `json:"userId" db:"user_id"`
	Method     string          `json:"method" db:"method"`
	ComputedAt time.Time       `json:"computedAt" db:"computed_at"`
	Data       json.RawMessage `json:"data" db:"data"`
}

// Decode unmarshals the stored document
func (s *StoredSnapshot) Decode() (*PortfolioSnapshot, error) {
	var snapshot PortfolioSnapshot
	if err := json.Unmarshal(s.Data, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}
