package accounting

import (
	"sync"

	"github.com/vestival/algorand-tracker/internal/models"
	"github.com/vestival/algorand-tracker/internal/types"
)

// DecimalsCache holds asset decimals for one computation run.
// It is safe for concurrent use by the fetchers that fill it.
type DecimalsCache struct {
	mu       sync.RWMutex
	decimals map[string]int
}

// NewDecimalsCache creates an empty cache. The native asset is always known.
func NewDecimalsCache() *DecimalsCache {
	return &DecimalsCache{
		decimals: map[string]int{types.NativeAssetKey: 6},
	}
}

// Set records decimals for an asset
func (c *DecimalsCache) Set(assetKey string, decimals int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decimals[assetKey] = decimals
}

// Get returns the decimals for an asset and whether they are known
func (c *DecimalsCache) Get(assetKey string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.decimals[assetKey]
	return d, ok
}

// Decimals returns the known decimals or 0
func (c *DecimalsCache) Decimals(assetKey string) int {
	if c == nil {
		return 0
	}
	d, _ := c.Get(assetKey)
	return d
}

// AddAccount records the decimals of every holding in state
func (c *DecimalsCache) AddAccount(state *models.AccountState) {
	for _, holding := range state.Assets {
		c.Set(holding.AssetKey, holding.Decimals)
	}
}
