package defi

import (
	"context"
	"sync"

	"github.com/vestival/algorand-tracker/internal/config"
	"github.com/vestival/algorand-tracker/internal/logging"
	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/types"
)

// PositionKey identifies a position for deduplication
type PositionKey struct {
	Protocol     types.Protocol
	Wallet       string
	PositionType types.PositionType
	AssetKey     string
}

// KeyOf returns the deduplication key of p
func KeyOf(p *models.DefiPosition) PositionKey {
	return PositionKey{
		Protocol:     p.Protocol,
		Wallet:       p.Wallet,
		PositionType: p.PositionType,
		AssetKey:     p.AssetKey,
	}
}

type protocolWallet struct {
	protocol types.Protocol
	wallet   string
}

// Registry runs a fixed list of adapters and merges their rows
type Registry struct {
	adapters []Adapter
}

// NewRegistry creates a registry over adapters, evaluated in the given order
func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// NewDefaultRegistry registers the protocol app-state adapters followed by holdings inference
func NewDefaultRegistry(cfg config.DeFiConfig, accounts AccountSource, prices PriceSource) *Registry {
	return NewRegistry(
		NewTinymanAdapter(cfg.TinymanAppIDs, accounts),
		NewFolksAdapter(cfg.FolksAppIDs, accounts),
		NewRetiAdapter(cfg.RetiAppIDs, accounts),
		NewHoldingsAdapter(accounts, prices),
	)
}

// Collect runs every adapter concurrently. A failing adapter is logged and its rows omitted.
func (r *Registry) Collect(ctx context.Context, wallets []string) []models.DefiPosition {
	logger := logging.FromContext(ctx)
	results := make([][]models.DefiPosition, len(r.adapters))

	var wg sync.WaitGroup
	for i, adapter := range r.adapters {
		wg.Add(1)
		go func(i int, adapter Adapter) {
			defer wg.Done()
			rows, err := adapter.GetPositions(ctx, wallets)
			if err != nil {
				logger.WithError(err).WithField("adapter", adapter.Name()).Warn("defi adapter failed")
				return
			}
			results[i] = rows
		}(i, adapter)
	}
	wg.Wait()

	var all []models.DefiPosition
	for _, rows := range results {
		all = append(all, rows...)
	}
	return Merge(all)
}

// Merge drops placeholders shadowed by a concrete row for the same protocol and wallet,
// then deduplicates by PositionKey. A row with a value replaces one without.
func Merge(rows []models.DefiPosition) []models.DefiPosition {
	concrete := make(map[protocolWallet]struct{})
	for i := range rows {
		if !rows[i].IsPlaceholder() {
			concrete[protocolWallet{rows[i].Protocol, rows[i].Wallet}] = struct{}{}
		}
	}

	index := make(map[PositionKey]int)
	out := make([]models.DefiPosition, 0, len(rows))
	for _, row := range rows {
		if row.IsPlaceholder() {
			if _, shadowed := concrete[protocolWallet{row.Protocol, row.Wallet}]; shadowed {
				continue
			}
		}

		key := KeyOf(&row)
		if at, ok := index[key]; ok {
			if out[at].ValueUSD == nil && row.ValueUSD != nil {
				out[at] = row
			}
			continue
		}
		index[key] = len(out)
		out = append(out, row)
	}
	return out
}
