package execution

import (
	"context"
	"fmt"
	"time"

	"AlphaPilot/internal/domain/models"
)

// PaperVenue simulates order submission by filling at the last observed
// market price. No slippage model: the point of the paper track is to
// exercise the identical decision path, not to forecast fill quality.
type PaperVenue struct {
	prices *PriceCache
}

func NewPaperVenue(prices *PriceCache) *PaperVenue {
	return &PaperVenue{prices: prices}
}

func (v *PaperVenue) SubmitOrder(ctx context.Context, assetID string, side models.Side, size, price float64) (*models.Fill, error) {
	if price <= 0 {
		last, ok := v.prices.Last(assetID)
		if !ok {
			return nil, fmt.Errorf("paper venue: no observed price for %s", assetID)
		}
		price = last
	}
	return &models.Fill{
		AssetID:  assetID,
		Side:     side,
		Price:    price,
		Size:     size,
		Mode:     models.ModePaper,
		FilledAt: time.Now(),
	}, nil
}

func (v *PaperVenue) LastPrice(ctx context.Context, assetID string) (float64, error) {
	last, ok := v.prices.Last(assetID)
	if !ok {
		return 0, fmt.Errorf("paper venue: no observed price for %s", assetID)
	}
	return last, nil
}
