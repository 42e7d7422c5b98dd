package defi

import (
	"context"

	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/types"
)

// AppStateAdapter emits a placeholder position for wallets that opted into a protocol's applications
type AppStateAdapter struct {
	protocol     types.Protocol
	positionType types.PositionType
	appIDs       []uint64
	note         string
	accounts     AccountSource
}

// NewTinymanAdapter detects Tinyman local state
func NewTinymanAdapter(appIDs []uint64, accounts AccountSource) *AppStateAdapter {
	return &AppStateAdapter{
		protocol:     types.ProtocolTinyman,
		positionType: types.PositionLP,
		appIDs:       appIDs,
		note:         "Detected Tinyman app local state. LP shares are not decoded.",
		accounts:     accounts,
	}
}

// NewFolksAdapter detects Folks Finance local state
func NewFolksAdapter(appIDs []uint64, accounts AccountSource) *AppStateAdapter {
	return &AppStateAdapter{
		protocol:     types.ProtocolFolks,
		positionType: types.PositionSupplied,
		appIDs:       appIDs,
		note:         "Detected Folks app local state. Supplied and borrowed amounts are not decoded.",
		accounts:     accounts,
	}
}

// NewRetiAdapter detects Reti staking pool local state
func NewRetiAdapter(appIDs []uint64, accounts AccountSource) *AppStateAdapter {
	return &AppStateAdapter{
		protocol:     types.ProtocolReti,
		positionType: types.PositionStaked,
		appIDs:       appIDs,
		note:         "Detected Reti app local state. Stake and yield are not decoded.",
		accounts:     accounts,
	}
}

// Name implements Adapter
func (a *AppStateAdapter) Name() string {
	return string(a.protocol)
}

// GetPositions implements Adapter
func (a *AppStateAdapter) GetPositions(ctx context.Context, wallets []string) ([]models.DefiPosition, error) {
	if len(a.appIDs) == 0 {
		return nil, nil
	}

	var out []models.DefiPosition
	for _, wallet := range wallets {
		state, err := a.accounts.GetAccountState(ctx, wallet)
		if err != nil {
			return nil, err
		}
		if !state.HasApp(a.appIDs) {
			continue
		}

		out = append(out, models.DefiPosition{
			Protocol:     a.protocol,
			Wallet:       wallet,
			PositionType: a.positionType,
			Estimated:    true,
			Meta:         map[string]interface{}{"note": a.note},
		})
	}
	return out, nil
}
