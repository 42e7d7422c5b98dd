package storage

import (
	"reflect"
	"testing"

	"github.com/vestival/algorand-tracker/internal/config"
	"github.com/vestival/algorand-tracker/internal/models"
)

func TestSplitSQLStatements(t *testing.T) {
	content := `-- daily prices
CREATE TABLE IF NOT EXISTS a (
    x String
) ENGINE = MergeTree ORDER BY x;

-- trailing statement without semicolon
SELECT 1`

	got := splitSQLStatements(content)
	want := []string{
		"CREATE TABLE IF NOT EXISTS a (\n    x String\n) ENGINE = MergeTree ORDER BY x",
		"SELECT 1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitSQLStatements() = %q, want %q", got, want)
	}
}

func TestDailyPriceRepository_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.ClickHouseConfig{
		Host:     "localhost",
		Port:     "9000",
		Database: "algorand_tracker",
		User:     "default",
		Password: "",
	}

	ctx := testContext(t)
	db, err := NewClickHouseDB(ctx, cfg)
	if err != nil {
		t.Skipf("Skipping test - ClickHouse not available: %v", err)
		return
	}
	defer func() {
		_ = db.Close()
	}()

	if err := RunClickHouseMigrations(ctx, db, "../../migrations/clickhouse"); err != nil {
		t.Skipf("Skipping test - migrations failed: %v", err)
	}

	repo := NewDailyPriceRepository(db)
	price := 0.21
	err = repo.Upsert(ctx, []models.DailyPrice{
		{AssetKey: "test-asset", DayKey: "2026-02-15", PriceUSD: &price, Source: "spot"},
		{AssetKey: "test-asset", DayKey: "2026-02-16", PriceUSD: nil},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	rows, err := repo.GetRange(ctx, []string{"test-asset"}, "2026-02-15", "2026-02-16")
	if err != nil {
		t.Fatalf("GetRange() error = %v", err)
	}
	if len(rows) != 1 || *rows[0].PriceUSD != price {
		t.Errorf("GetRange() = %+v", rows)
	}
}
