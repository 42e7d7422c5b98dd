package history

import (
	"sort"
	"time"

	"github.com/vestival/algorand-tracker/internal/types"
)

// SeriesPoint is one sample of a per-wallet series
type SeriesPoint struct {
	Timestamp time.Time `json:"ts"`
	Value     float64   `json:"value"`
}

// Series is a labelled, time-ordered sequence of samples
type Series struct {
	Wallet string        `json:"wallet"`
	Points []SeriesPoint `json:"points"`
}

// AggregateLabel labels the series produced by SumAlignedSeries
const AggregateLabel = "aggregate"

// WalletValueInput configures PerWalletValueSeries
type WalletValueInput struct {
	Wallets             []string
	Transactions        []Transfer
	LatestTs            time.Time
	LatestValueByWallet map[string]float64
}

// WalletBalanceInput configures PerWalletAssetBalanceSeries
type WalletBalanceInput struct {
	Wallets               []string
	AssetKey              string
	Transactions          []Transfer
	LatestTs              time.Time
	LatestBalanceByWallet map[string]float64
}

// transfersFor selects one wallet's transfers. A self transfer between two owned wallets
// debits the sender and credits the counterparty; the sender alone pays the fee.
func transfersFor(transfers []Transfer, wallet string) []Transfer {
	var out []Transfer
	for _, t := range transfers {
		if t.Direction != types.DirectionSelf {
			if t.Wallet == wallet {
				out = append(out, t)
			}
			continue
		}
		switch wallet {
		case t.Wallet:
			t.Direction = types.DirectionOut
			out = append(out, t)
		case t.Counterparty:
			t.Wallet = wallet
			t.Direction = types.DirectionIn
			t.FeeAlgo = 0
			out = append(out, t)
		}
	}
	return normalize(out)
}

// PerWalletValueSeries replays each wallet's own transfers forward and closes the series
// with the wallet's latest known value
func PerWalletValueSeries(in WalletValueInput) []Series {
	out := make([]Series, 0, len(in.Wallets))
	for _, wallet := range in.Wallets {
		var points []SeriesPoint
		for _, p := range replayForward(transfersFor(in.Transactions, wallet)) {
			points = append(points, SeriesPoint{Timestamp: p.Timestamp, Value: p.ValueUSD})
		}
		if latest, ok := in.LatestValueByWallet[wallet]; ok && validAnchor(in.LatestTs) && finite(latest) {
			points = append(points, SeriesPoint{Timestamp: in.LatestTs.UTC(), Value: latest})
		}
		out = append(out, Series{Wallet: wallet, Points: dedupeSeries(points)})
	}
	return out
}

// PerWalletAssetBalanceSeries tracks one asset's balance per wallet. ALGO balances also
// pay every transaction fee.
func PerWalletAssetBalanceSeries(in WalletBalanceInput) []Series {
	out := make([]Series, 0, len(in.Wallets))
	for _, wallet := range in.Wallets {
		balance := 0.0
		var points []SeriesPoint
		for _, t := range transfersFor(in.Transactions, wallet) {
			if t.AssetKey == in.AssetKey {
				switch t.Direction {
				case types.DirectionIn:
					balance += t.Amount
				case types.DirectionOut:
					balance -= t.Amount
				}
			}
			if in.AssetKey == types.NativeAssetKey && finite(t.FeeAlgo) && t.FeeAlgo > 0 {
				balance -= t.FeeAlgo
			}
			if balance < 0 {
				balance = 0
			}
			points = append(points, SeriesPoint{Timestamp: time.Unix(t.Timestamp, 0).UTC(), Value: balance})
		}
		if latest, ok := in.LatestBalanceByWallet[wallet]; ok && validAnchor(in.LatestTs) && finite(latest) {
			points = append(points, SeriesPoint{Timestamp: in.LatestTs.UTC(), Value: latest})
		}
		out = append(out, Series{Wallet: wallet, Points: dedupeSeries(points)})
	}
	return out
}

// AlignSeriesByTimestamp resamples every series onto the union of all timestamps, carrying
// the last known value forward. Timestamps before a series' first sample read as 0.
func AlignSeriesByTimestamp(series []Series) []Series {
	seen := make(map[int64]time.Time)
	for _, s := range series {
		for _, p := range s.Points {
			seen[p.Timestamp.UnixMilli()] = p.Timestamp
		}
	}
	timeline := make([]time.Time, 0, len(seen))
	for _, ts := range seen {
		timeline = append(timeline, ts)
	}
	sort.Slice(timeline, func(i, j int) bool { return timeline[i].Before(timeline[j]) })

	out := make([]Series, 0, len(series))
	for _, s := range series {
		aligned := make([]SeriesPoint, 0, len(timeline))
		next, last := 0, 0.0
		for _, ts := range timeline {
			for next < len(s.Points) && !s.Points[next].Timestamp.After(ts) {
				last = s.Points[next].Value
				next++
			}
			aligned = append(aligned, SeriesPoint{Timestamp: ts, Value: last})
		}
		out = append(out, Series{Wallet: s.Wallet, Points: aligned})
	}
	return out
}

// SumAlignedSeries adds aligned series point by point
func SumAlignedSeries(aligned []Series) Series {
	sum := Series{Wallet: AggregateLabel}
	if len(aligned) == 0 {
		return sum
	}
	sum.Points = make([]SeriesPoint, len(aligned[0].Points))
	for i, p := range aligned[0].Points {
		sum.Points[i].Timestamp = p.Timestamp
	}
	for _, s := range aligned {
		for i := range s.Points {
			if i < len(sum.Points) {
				sum.Points[i].Value += s.Points[i].Value
			}
		}
	}
	return sum
}

func dedupeSeries(points []SeriesPoint) []SeriesPoint {
	byTs := make(map[int64]SeriesPoint, len(points))
	for _, p := range points {
		byTs[p.Timestamp.UnixMilli()] = p
	}
	out := make([]SeriesPoint, 0, len(byTs))
	for _, p := range byTs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}
