package history

import (
	"fmt"
	"strings"
	"time"
)

// DayKeyLayout is the UTC day key format used for daily prices
const DayKeyLayout = "2006-01-02"

// providerDayLayout is the day format of historical price keys
const providerDayLayout = "02-01-2006"

// DayKey returns the UTC day key of t
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyLayout)
}

// DayKeyFromUnix returns the UTC day key of a unix timestamp in seconds
func DayKeyFromUnix(ts int64) string {
	return DayKey(time.Unix(ts, 0))
}

// DayEnd returns 23:59:59.999 UTC of dayKey
func DayEnd(dayKey string) time.Time {
	day, err := time.Parse(DayKeyLayout, dayKey)
	if err != nil {
		return time.Time{}
	}
	return day.Add(24*time.Hour - time.Millisecond)
}

// EnumerateDays lists day keys from start to end inclusive
func EnumerateDays(startKey, endKey string) []string {
	start, err := time.Parse(DayKeyLayout, startKey)
	if err != nil {
		return nil
	}
	end, err := time.Parse(DayKeyLayout, endKey)
	if err != nil {
		return nil
	}

	var out []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(DayKeyLayout))
	}
	return out
}

// HistoricalPriceKey returns the lookup key "asset:DD-MM-YYYY" for a price at unix ts
func HistoricalPriceKey(assetKey string, ts int64) string {
	return fmt.Sprintf("%s:%s", assetKey, time.Unix(ts, 0).UTC().Format(providerDayLayout))
}

// ParseHistoricalPriceKey splits a historical price key into asset key and UTC day key
func ParseHistoricalPriceKey(key string) (assetKey string, dayKey string, ok bool) {
	i := strings.LastIndex(key, ":")
	if i <= 0 {
		return "", "", false
	}
	day, err := time.Parse(providerDayLayout, key[i+1:])
	if err != nil {
		return "", "", false
	}
	return key[:i], day.Format(DayKeyLayout), true
}

func toProviderDay(dayKey string) string {
	day, err := time.Parse(DayKeyLayout, dayKey)
	if err != nil {
		return dayKey
	}
	return day.Format(providerDayLayout)
}
