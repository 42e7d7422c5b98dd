package defi

import (
	"context"
	"fmt"
	"sort"

	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/types"
)

// HoldingRule maps a liquid-staking or derivative asset to the protocol it represents
type HoldingRule struct {
	Protocol     types.Protocol
	PositionType types.PositionType
	Label        string
}

// HoldingRules is the static table of known derivative assets, keyed by asset id
var HoldingRules = map[string]HoldingRule{
	// Folks liquid staking and governance derivatives
	"1134696561": {Protocol: types.ProtocolFolks, PositionType: types.PositionStaked, Label: "xALGO"},
	"793124631":  {Protocol: types.ProtocolFolks, PositionType: types.PositionStaked, Label: "gALGO"},
	"694432641":  {Protocol: types.ProtocolFolks, PositionType: types.PositionStaked, Label: "gALGO"},
	// Tinyman liquid staking
	"2537013734": {Protocol: types.ProtocolTinyman, PositionType: types.PositionStaked, Label: "tALGO"},
}

// HoldingsSource is the meta source tag on inferred rows
const HoldingsSource = "asset-holding-inference"

// RelevantAssets returns the sorted known derivative assets held with a positive balance
func RelevantAssets(accounts []*models.AccountState) []string {
	seen := make(map[string]struct{})
	for _, account := range accounts {
		for _, asset := range account.Assets {
			if asset.Amount <= 0 {
				continue
			}
			if _, ok := HoldingRules[asset.AssetKey]; ok {
				seen[asset.AssetKey] = struct{}{}
			}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InferFromHoldings yields one estimated position per positive holding of a known derivative asset
func InferFromHoldings(accounts []*models.AccountState, prices models.PriceMap) []models.DefiPosition {
	var out []models.DefiPosition
	for _, account := range accounts {
		for _, asset := range account.Assets {
			if asset.Amount <= 0 {
				continue
			}
			rule, ok := HoldingRules[asset.AssetKey]
			if !ok {
				continue
			}

			amount := asset.Amount
			var value *float64
			if price := prices.Lookup(asset.AssetKey); price != nil {
				v := amount * *price
				value = &v
			}

			out = append(out, models.DefiPosition{
				Protocol:     rule.Protocol,
				Wallet:       account.Address,
				PositionType: rule.PositionType,
				AssetKey:     asset.AssetKey,
				Amount:       &amount,
				ValueUSD:     value,
				Estimated:    true,
				Meta: map[string]interface{}{
					"source":     HoldingsSource,
					"assetLabel": rule.Label,
				},
			})
		}
	}
	return out
}

// HoldingsAdapter infers positions from held derivative assets
type HoldingsAdapter struct {
	accounts AccountSource
	prices   PriceSource
}

// NewHoldingsAdapter creates a holdings adapter
func NewHoldingsAdapter(accounts AccountSource, prices PriceSource) *HoldingsAdapter {
	return &HoldingsAdapter{accounts: accounts, prices: prices}
}

// Name implements Adapter
func (a *HoldingsAdapter) Name() string {
	return "holdings"
}

// GetPositions implements Adapter
func (a *HoldingsAdapter) GetPositions(ctx context.Context, wallets []string) ([]models.DefiPosition, error) {
	accounts, err := fetchAccounts(ctx, a.accounts, wallets)
	if err != nil {
		return nil, err
	}

	relevant := RelevantAssets(accounts)
	if len(relevant) == 0 {
		return nil, nil
	}

	prices, err := a.prices.GetSpotPrices(ctx, relevant)
	if err != nil {
		return nil, fmt.Errorf("failed to get derivative prices: %w", err)
	}

	return InferFromHoldings(accounts, prices), nil
}
