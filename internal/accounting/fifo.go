package accounting

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/vestival/algorand-tracker/internal/types"
)

// Lot is an open acquisition inside one asset's FIFO queue
type Lot struct {
	RemainingQty decimal.Decimal
	UnitCostUSD  decimal.Decimal
}

// FifoSummary is the accounting result for one asset
type FifoSummary struct {
	AssetKey         string
	RemainingQty     decimal.Decimal
	RemainingCostUSD decimal.Decimal
	RealizedPnlUSD   decimal.Decimal
	// UnmatchedQty is sell quantity that found no open lot and was treated as zero cost
	UnmatchedQty decimal.Decimal
	HasPriceGaps bool
}

type assetBook struct {
	lots    []Lot
	summary *FifoSummary
}

// RunFIFO matches sells against buys first-in-first-out and returns one summary per asset.
// Events are stably sorted by timestamp; the input slice is not modified.
func RunFIFO(events []LotEvent) map[string]*FifoSummary {
	ordered := make([]LotEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp < ordered[j].Timestamp
	})

	books := make(map[string]*assetBook)
	for _, event := range ordered {
		book, ok := books[event.AssetKey]
		if !ok {
			book = &assetBook{summary: &FifoSummary{AssetKey: event.AssetKey}}
			books[event.AssetKey] = book
		}

		switch event.Side {
		case types.SideBuy:
			book.buy(event)
		case types.SideSell:
			book.sell(event)
		}
	}

	result := make(map[string]*FifoSummary, len(books))
	for key, book := range books {
		for _, lot := range book.lots {
			book.summary.RemainingQty = book.summary.RemainingQty.Add(lot.RemainingQty)
			book.summary.RemainingCostUSD = book.summary.RemainingCostUSD.Add(lot.RemainingQty.Mul(lot.UnitCostUSD))
		}
		result[key] = book.summary
	}
	return result
}

func (b *assetBook) buy(event LotEvent) {
	unitCost := decimal.Zero
	if event.UnitPriceUSD == nil {
		b.summary.HasPriceGaps = true
	}
	if !event.Amount.IsPositive() {
		return
	}
	if event.UnitPriceUSD != nil {
		unitCost = event.Amount.Mul(*event.UnitPriceUSD).Add(event.FeeUSD).Div(event.Amount)
	}
	b.lots = append(b.lots, Lot{RemainingQty: event.Amount, UnitCostUSD: unitCost})
}

func (b *assetBook) sell(event LotEvent) {
	proceeds := event.FeeUSD.Neg()
	if event.UnitPriceUSD == nil {
		b.summary.HasPriceGaps = true
	} else {
		proceeds = proceeds.Add(event.Amount.Mul(*event.UnitPriceUSD))
	}

	remaining := event.Amount
	cost := decimal.Zero
	for remaining.IsPositive() && len(b.lots) > 0 {
		lot := &b.lots[0]
		take := decimal.Min(remaining, lot.RemainingQty)
		cost = cost.Add(take.Mul(lot.UnitCostUSD))
		lot.RemainingQty = lot.RemainingQty.Sub(take)
		remaining = remaining.Sub(take)
		if !lot.RemainingQty.IsPositive() {
			b.lots = b.lots[1:]
		}
	}
	if remaining.IsPositive() {
		b.summary.UnmatchedQty = b.summary.UnmatchedQty.Add(remaining)
	}

	b.summary.RealizedPnlUSD = b.summary.RealizedPnlUSD.Add(proceeds.Sub(cost))
}

// TotalCostBasis sums the remaining cost of every summary
func TotalCostBasis(summaries map[string]*FifoSummary) decimal.Decimal {
	total := decimal.Zero
	for _, s := range summaries {
		total = total.Add(s.RemainingCostUSD)
	}
	return total
}

// TotalRealized sums the realized PnL of every summary
func TotalRealized(summaries map[string]*FifoSummary) decimal.Decimal {
	total := decimal.Zero
	for _, s := range summaries {
		total = total.Add(s.RealizedPnlUSD)
	}
	return total
}
