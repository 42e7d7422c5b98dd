package defi

import "math"

// AssetBasis is the tracked balance and FIFO cost basis of one asset
type AssetBasis struct {
	AssetKey     string
	Balance      float64
	CostBasisUSD *float64
}

// Component is one asset amount inside a protocol position
type Component struct {
	AssetKey string
	Amount   float64
}

// ComponentBasisUSD attributes the proportional share of an asset's cost basis to a component.
// The ratio is capped at 1. It returns nil when no basis is known.
func ComponentBasisUSD(component Component, basis map[string]AssetBasis) *float64 {
	if component.AssetKey == "" || component.Amount <= 0 {
		return nil
	}
	asset, ok := basis[component.AssetKey]
	if !ok || asset.Balance <= 0 || asset.CostBasisUSD == nil {
		return nil
	}

	ratio := math.Min(component.Amount/asset.Balance, 1)
	v := *asset.CostBasisUSD * ratio
	return &v
}

// PositionAtDepositUSD sums component bases, skipping unknown ones. It returns nil when none is known.
func PositionAtDepositUSD(components []Component, basis map[string]AssetBasis) *float64 {
	var total float64
	found := false
	for _, c := range components {
		if b := ComponentBasisUSD(c, basis); b != nil {
			total += *b
			found = true
		}
	}
	if !found {
		return nil
	}
	return &total
}
