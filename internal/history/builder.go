// Package history reconstructs portfolio valuation series for charting.
package history

import (
	"sort"
	"time"

	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/types"
)

// DefaultProxyBases maps derivative assets to the base asset they track.
// tALGO follows ALGO with a slowly changing conversion ratio.
var DefaultProxyBases = map[string]string{
	"2537013734": types.NativeAssetKey,
}

// Transfer is one balance movement replayed by the builder
type Transfer struct {
	Timestamp    int64 // unix seconds
	Wallet       string
	Counterparty string
	AssetKey     string
	Amount       float64
	Direction    types.TransactionDirection
	UnitPriceUSD *float64
	FeeAlgo      float64
}

// LatestAssetState is the exact balance and price of an asset at the anchor instant
type LatestAssetState struct {
	AssetKey string
	Balance  float64
	PriceUSD *float64
}

// Input is everything needed to build one series
type Input struct {
	Transactions      []Transfer
	LatestValueUSD    *float64
	LatestTs          time.Time
	LatestAssetStates []LatestAssetState
	DailyPrices       []models.DailyPrice
}

// Builder builds history series. Now decides which day counts as today.
type Builder struct {
	Now        func() time.Time
	ProxyBases map[string]string
}

// NewBuilder creates a builder with the wall clock and default proxies
func NewBuilder() *Builder {
	return &Builder{Now: time.Now, ProxyBases: DefaultProxyBases}
}

// Build returns an ascending series with unique timestamps. It replays backward from the
// latest asset states when an anchor is available, otherwise forward from zero balances.
func (b *Builder) Build(in Input) []models.HistoryPoint {
	transfers := normalize(in.Transactions)
	if len(in.LatestAssetStates) > 0 && validAnchor(in.LatestTs) {
		return b.buildAnchored(transfers, in)
	}
	return buildUnanchored(transfers, in.LatestValueUSD, in.LatestTs)
}

func validAnchor(ts time.Time) bool {
	return !ts.IsZero() && ts.UnixMilli() > 0
}

// normalize drops invalid transfers and sorts the rest ascending by time
func normalize(transfers []Transfer) []Transfer {
	out := make([]Transfer, 0, len(transfers))
	for _, t := range transfers {
		if t.Timestamp > 0 && finite(t.Amount) && t.Amount >= 0 {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}

type balanceBook map[string]float64

func (b balanceBook) set(assetKey string, v float64) {
	if v <= 0 {
		delete(b, assetKey)
		return
	}
	b[assetKey] = v
}

func (b *Builder) buildAnchored(transfers []Transfer, in Input) []models.HistoryPoint {
	balances := balanceBook{}
	spot := make(map[string]float64)
	for _, state := range in.LatestAssetStates {
		if state.AssetKey == "" {
			continue
		}
		if finite(state.Balance) && state.Balance > 0 {
			balances[state.AssetKey] = state.Balance
		}
		if state.PriceUSD != nil && finite(*state.PriceUSD) && *state.PriceUSD >= 0 {
			spot[state.AssetKey] = *state.PriceUSD
		}
	}

	explicit := make(map[string]map[string]float64)
	for _, row := range in.DailyPrices {
		if row.AssetKey == "" || row.DayKey == "" || row.PriceUSD == nil || !finite(*row.PriceUSD) || *row.PriceUSD < 0 {
			continue
		}
		if explicit[row.AssetKey] == nil {
			explicit[row.AssetKey] = make(map[string]float64)
		}
		explicit[row.AssetKey][row.DayKey] = *row.PriceUSD
	}

	anchor := in.LatestTs.UTC()
	anchorSeconds := anchor.Unix()
	latestDay := DayKey(anchor)
	earliest := anchorSeconds
	if len(transfers) > 0 {
		earliest = transfers[0].Timestamp
	}
	days := EnumerateDays(DayKeyFromUnix(earliest), latestDay)

	resolved := resolvePrices(days, b.seriesAssets(balances, transfers), explicit, spot, b.ProxyBases)
	dayIndex := make(map[string]int, len(days))
	for i, d := range days {
		dayIndex[d] = i
	}

	value := func(day string) float64 {
		total := 0.0
		for _, asset := range sortedKeys(balances) {
			balance := balances[asset]
			series, ok := resolved[asset]
			if !ok || !finite(balance) || balance <= 0 {
				continue
			}
			if p := series[dayIndex[day]]; finite(p) {
				total += balance * p
			}
		}
		return total
	}

	byDay := make(map[string][]Transfer)
	for i := len(transfers) - 1; i >= 0; i-- {
		t := transfers[i]
		if t.Timestamp >= anchorSeconds {
			continue
		}
		day := DayKeyFromUnix(t.Timestamp)
		byDay[day] = append(byDay[day], t)
	}

	today := DayKey(b.now())
	points := make([]models.HistoryPoint, 0, len(days))
	for i := len(days) - 1; i >= 0; i-- {
		day := days[i]
		isLatest := day == latestDay

		pointTs := DayEnd(day)
		if isLatest && day == today {
			pointTs = anchor
		}
		v := value(day)
		if isLatest && in.LatestValueUSD != nil && finite(*in.LatestValueUSD) {
			v = *in.LatestValueUSD
		}
		points = append(points, models.HistoryPoint{Timestamp: pointTs, ValueUSD: v})

		for _, t := range byDay[day] {
			current := balances[t.AssetKey]
			switch t.Direction {
			case types.DirectionIn:
				balances.set(t.AssetKey, current-t.Amount)
			case types.DirectionOut:
				balances.set(t.AssetKey, current+t.Amount)
			}
			if finite(t.FeeAlgo) && t.FeeAlgo > 0 {
				balances.set(types.NativeAssetKey, balances[types.NativeAssetKey]+t.FeeAlgo)
			}
		}
	}

	return dedupeSorted(points)
}

func (b *Builder) now() time.Time {
	if b.Now == nil {
		return time.Now()
	}
	return b.Now()
}

// seriesAssets lists held and transferred assets plus the proxy bases they need
func (b *Builder) seriesAssets(balances balanceBook, transfers []Transfer) []string {
	seen := make(map[string]struct{})
	var keys []string
	add := func(k string) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	for k := range balances {
		add(k)
	}
	for _, t := range transfers {
		add(t.AssetKey)
	}
	for _, k := range append([]string{}, keys...) {
		if base, ok := b.ProxyBases[k]; ok {
			add(base)
		}
	}
	sort.Strings(keys)
	return keys
}

// sortedKeys fixes the summation order so float totals are reproducible
func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// replayForward walks transfers in order from zero balances, valuing each step at the
// last seen unit price per asset
func replayForward(transfers []Transfer) []models.HistoryPoint {
	balances := make(map[string]float64)
	lastPrice := make(map[string]float64)
	update := func(asset string, delta float64) {
		next := balances[asset] + delta
		if next < 0 {
			next = 0
		}
		balances[asset] = next
	}

	points := make([]models.HistoryPoint, 0, len(transfers))
	for _, t := range transfers {
		if t.UnitPriceUSD != nil && finite(*t.UnitPriceUSD) && *t.UnitPriceUSD >= 0 {
			lastPrice[t.AssetKey] = *t.UnitPriceUSD
		}
		switch t.Direction {
		case types.DirectionIn:
			update(t.AssetKey, t.Amount)
		case types.DirectionOut:
			update(t.AssetKey, -t.Amount)
		}
		if finite(t.FeeAlgo) && t.FeeAlgo > 0 {
			update(types.NativeAssetKey, -t.FeeAlgo)
		}

		total := 0.0
		for _, asset := range sortedKeys(balances) {
			balance := balances[asset]
			if p, ok := lastPrice[asset]; ok && balance > 0 {
				total += balance * p
			}
		}
		points = append(points, models.HistoryPoint{Timestamp: time.Unix(t.Timestamp, 0).UTC(), ValueUSD: total})
	}
	return points
}

func buildUnanchored(transfers []Transfer, latestValue *float64, latestTs time.Time) []models.HistoryPoint {
	if len(transfers) == 0 {
		return []models.HistoryPoint{}
	}

	points := replayForward(transfers)
	if latestValue != nil && finite(*latestValue) && validAnchor(latestTs) {
		points = append(points, models.HistoryPoint{Timestamp: latestTs.UTC(), ValueUSD: *latestValue})
	}
	return dedupeSorted(points)
}

// dedupeSorted keeps the last point per timestamp and sorts ascending
func dedupeSorted(points []models.HistoryPoint) []models.HistoryPoint {
	byTs := make(map[int64]models.HistoryPoint, len(points))
	for _, p := range points {
		byTs[p.Timestamp.UnixMilli()] = p
	}

	out := make([]models.HistoryPoint, 0, len(byTs))
	for _, p := range byTs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
