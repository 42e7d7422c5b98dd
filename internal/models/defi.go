package models

import "github.com/vestival/algorand-tracker/internal/types"

// DefiPosition is an estimated protocol position for one wallet
type DefiPosition struct {
	Protocol     types.Protocol         `json:"protocol"`
	Wallet       string                 `json:"wallet"`
	PositionType types.PositionType     `json:"positionType"`
	AssetKey     string                 `json:"assetKey,omitempty"`
	Amount       *float64               `json:"amount,omitempty"`
	ValueUSD     *float64               `json:"valueUsd"`
	Estimated    bool                   `json:"estimated"`
	Meta         map[string]interface{} `json:"meta,omitempty"`
}

// IsPlaceholder reports whether the row carries no asset, amount or value
func (p *DefiPosition) IsPlaceholder() bool {
	hasAmount := p.Amount != nil && *p.Amount != 0
	hasValue := p.ValueUSD != nil && *p.ValueUSD != 0
	return p.AssetKey == "" && !hasAmount && !hasValue
}
