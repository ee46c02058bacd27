package execution

import (
	"sync"
	"time"

	"AlphaPilot/internal/domain/models"
)

// PriceCache holds the last observed price per asset. Fed by streaming
// sources, read by the paper venue and the TP/SL monitor.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]models.PriceUpdate
}

func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]models.PriceUpdate)}
}

// Update stores an observation, ignoring out-of-order ticks.
func (c *PriceCache) Update(p *models.PriceUpdate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.prices[p.AssetID]; ok && prev.ObservedAt.After(p.ObservedAt) {
		return
	}
	c.prices[p.AssetID] = *p
}

// Last returns the most recent price for an asset, if any was observed.
func (c *PriceCache) Last(assetID string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[assetID]
	return p.Price, ok
}

// ObservedAt returns when the asset's price was last seen.
func (c *PriceCache) ObservedAt(assetID string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[assetID]
	return p.ObservedAt, ok
}
