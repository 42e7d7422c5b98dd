package history

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/vestival/algorand-tracker/internal/models"
)

// TotalValuePath locates the portfolio value inside a stored snapshot document
const TotalValuePath = "$.totals.valueUsd"

// SnapshotRow is a persisted snapshot as read for history purposes
type SnapshotRow struct {
	ComputedAt string
	Data       json.RawMessage
}

// SnapshotRowsFrom converts stored snapshots into history rows
func SnapshotRowsFrom(stored []*models.StoredSnapshot) []SnapshotRow {
	rows := make([]SnapshotRow, 0, len(stored))
	for _, s := range stored {
		rows = append(rows, SnapshotRow{ComputedAt: s.ComputedAt.UTC().Format(models.ISOMillis), Data: s.Data})
	}
	return rows
}

// BuildFromSnapshots returns one point per UTC day from the latest snapshot of that day.
// Rows with an unparsable timestamp or a non-numeric total are skipped.
func BuildFromSnapshots(rows []SnapshotRow) []models.HistoryPoint {
	byDay := make(map[string]models.HistoryPoint)
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339Nano, row.ComputedAt)
		if err != nil {
			continue
		}
		value, ok := totalValue(row.Data)
		if !ok {
			continue
		}

		day := DayKey(ts)
		if existing, ok := byDay[day]; ok && existing.Timestamp.After(ts) {
			continue
		}
		byDay[day] = models.HistoryPoint{Timestamp: ts.UTC(), ValueUSD: value}
	}

	points := make([]models.HistoryPoint, 0, len(byDay))
	for _, p := range byDay {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points
}

func totalValue(data json.RawMessage) (float64, bool) {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0, false
	}
	raw, err := jsonpath.Get(TotalValuePath, doc)
	if err != nil {
		return 0, false
	}
	value, ok := raw.(float64)
	if !ok || !finite(value) {
		return 0, false
	}
	return value, true
}
