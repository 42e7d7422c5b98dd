// Package models provides data models for the algorand tracker system.
package models

import "github.com/vestival/algorand-tracker/internal/types"

// AssetHolding is one ASA balance inside an account
type AssetHolding struct {
	AssetKey string  `json:"assetKey"`
	Amount   float64 `json:"amount"` // decimal-adjusted
	Decimals int     `json:"decimals"`
}

// AccountState is a wallet's current on-chain balances
type AccountState struct {
	Address      string         `json:"address"`
	NativeAmount float64        `json:"nativeAmount"` // ALGO, decimal-adjusted
	Assets       []AssetHolding `json:"assets"`
	AppIDs       []uint64       `json:"appIds"` // participated applications (local state)
}

// HasApp reports whether the account has local state for any of appIDs
func (a *AccountState) HasApp(appIDs []uint64) bool {
	for _, own := range a.AppIDs {
		for _, id := range appIDs {
			if own == id {
				return true
			}
		}
	}
	return false
}

// Balance returns the held amount of assetKey. ALGO reads the native balance.
func (a *AccountState) Balance(assetKey string) float64 {
	if assetKey == types.NativeAssetKey {
		return a.NativeAmount
	}
	for _, h := range a.Assets {
		if h.AssetKey == assetKey {
			return h.Amount
		}
	}
	return 0
}

// AssetInfo holds the immutable parameters of an ASA
type AssetInfo struct {
	AssetKey string `json:"assetKey"`
	Name     string `json:"name,omitempty"`
	UnitName string `json:"unitName,omitempty"`
	Decimals int    `json:"decimals"`
}

// DisplayName returns the unit name, then the name, then the key
func (i *AssetInfo) DisplayName() string {
	if i.UnitName != "" {
		return i.UnitName
	}
	if i.Name != "" {
		return i.Name
	}
	return i.AssetKey
}

// PriceMap maps asset keys to USD spot prices. A missing key means the price is unknown.
type PriceMap map[string]float64

// Lookup returns the price for key or nil when unknown
func (p PriceMap) Lookup(key string) *float64 {
	if price, ok := p[key]; ok {
		return &price
	}
	return nil
}

// Merge copies entries from other into p
func (p PriceMap) Merge(other PriceMap) {
	for k, v := range other {
		p[k] = v
	}
}
