// Package defi infers estimated DeFi protocol positions for Algorand wallets.
package defi

import (
	"context"
	"fmt"

	"github.com/vestival/algorand-tracker/internal/models"
)

// Adapter produces positions for one protocol signal
type Adapter interface {
	Name() string
	GetPositions(ctx context.Context, wallets []string) ([]models.DefiPosition, error)
}

// AccountSource returns the current account state of a wallet
type AccountSource interface {
	GetAccountState(ctx context.Context, address string) (*models.AccountState, error)
}

// PriceSource returns spot prices for asset keys. Unknown prices are absent from the map.
type PriceSource interface {
	GetSpotPrices(ctx context.Context, assetKeys []string) (models.PriceMap, error)
}

// StaticAccounts serves account states already fetched during a run
type StaticAccounts map[string]*models.AccountState

// GetAccountState implements AccountSource
func (s StaticAccounts) GetAccountState(ctx context.Context, address string) (*models.AccountState, error) {
	state, ok := s[address]
	if !ok {
		return nil, fmt.Errorf("account state not loaded for %s", address)
	}
	return state, nil
}

// StaticPrices serves a fixed price map
type StaticPrices models.PriceMap

// GetSpotPrices implements PriceSource
func (p StaticPrices) GetSpotPrices(ctx context.Context, assetKeys []string) (models.PriceMap, error) {
	out := make(models.PriceMap, len(assetKeys))
	for _, key := range assetKeys {
		if v, ok := p[key]; ok {
			out[key] = v
		}
	}
	return out, nil
}

func fetchAccounts(ctx context.Context, source AccountSource, wallets []string) ([]*models.AccountState, error) {
	accounts := make([]*models.AccountState, 0, len(wallets))
	for _, wallet := range wallets {
		state, err := source.GetAccountState(ctx, wallet)
		if err != nil {
			return nil, fmt.Errorf("failed to get account state for %s: %w", wallet, err)
		}
		accounts = append(accounts, state)
	}
	return accounts, nil
}
