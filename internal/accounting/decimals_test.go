package accounting

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/types"
)

func TestDecimalsCache(t *testing.T) {
	cache := NewDecimalsCache()
	assert.Equal(t, 6, cache.Decimals(types.NativeAssetKey))

	cache.AddAccount(&models.AccountState{
		Assets: []models.AssetHolding{{AssetKey: "31566704", Amount: 1, Decimals: 6}, {AssetKey: "1", Decimals: 2}},
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Set("2", 8)
		}()
	}
	wg.Wait()

	d, ok := cache.Get("1")
	assert.True(t, ok)
	assert.Equal(t, 2, d)
	assert.Equal(t, 8, cache.Decimals("2"))
	assert.Equal(t, 0, cache.Decimals("unknown"))

	var missing *DecimalsCache
	assert.Equal(t, 0, missing.Decimals("1"))
}
