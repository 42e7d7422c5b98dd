package models

import (
	"encoding/json"
	"time"
)

// ISOMillis is the timestamp layout used for history points
const ISOMillis = "2006-01-02T15:04:05.000Z"

// HistoryPoint is one valuation sample for charting
type HistoryPoint struct {
	Timestamp time.Time
	ValueUSD  float64
}

type historyPointJSON struct {
	Timestamp string  `json:"ts"`
	ValueUSD  float64 `json:"valueUsd"`
}

// MarshalJSON renders the timestamp as a UTC ISO instant with milliseconds
func (p HistoryPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(historyPointJSON{
		Timestamp: p.Timestamp.UTC().Format(ISOMillis),
		ValueUSD:  p.ValueUSD,
	})
}

// UnmarshalJSON parses the representation produced by MarshalJSON
func (p *HistoryPoint) UnmarshalJSON(data []byte) error {
	var raw historyPointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, raw.Timestamp)
	if err != nil {
		return err
	}
	p.Timestamp = ts.UTC()
	p.ValueUSD = raw.ValueUSD
	return nil
}

// DailyPrice is a USD price for one asset on one UTC day (YYYY-MM-DD)
type DailyPrice struct {
	AssetKey string   `json:"assetKey" ch:"asset_key"`
	DayKey   string   `json:"dayKey" ch:"day_key"`
	PriceUSD *float64 `json:"priceUsd" ch:"price_usd"`
	Source   string   `json:"source,omitempty" ch:"source"`
}
