package models

import "time"

// PriceUpdate is one observed market price for an asset. Paper fills and
// the TP/SL monitor consume these.
type PriceUpdate struct {
	AssetID    string
	Price      float64
	ObservedAt time.Time
}
