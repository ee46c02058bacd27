package execution

import (
	"context"
	"fmt"
	"time"

	"AlphaPilot/internal/domain/models"
	xhttp "AlphaPilot/pkg/http"
	"AlphaPilot/pkg/util"
)

// LiveVenueConfig configures the live order gateway.
type LiveVenueConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type orderRequest struct {
	AssetID    string  `json:"asset_id"`
	Side       string  `json:"side"`
	Size       float64 `json:"size"`
	LimitPrice float64 `json:"limit_price,omitempty"`
}

type orderResponse struct {
	FillPrice float64 `json:"fill_price"`
	FillSize  float64 `json:"fill_size"`
	FilledAt  string  `json:"filled_at"`
}

type priceResponse struct {
	Price float64 `json:"price"`
}

// LiveVenue submits real orders to the trading gateway. It reports exactly
// what the gateway filled; partial fills flow back as smaller Fill sizes.
type LiveVenue struct {
	cfg    LiveVenueConfig
	client *xhttp.Client
}

func NewLiveVenue(cfg LiveVenueConfig) *LiveVenue {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &LiveVenue{
		cfg:    cfg,
		client: xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
	}
}

func (v *LiveVenue) SubmitOrder(ctx context.Context, assetID string, side models.Side, size, price float64) (*models.Fill, error) {
	var resp orderResponse
	err := v.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     v.cfg.BaseURL + "/v1/orders",
		Headers: v.headers(),
		Body: orderRequest{
			AssetID:    assetID,
			Side:       string(side),
			Size:       size,
			LimitPrice: price,
		},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("submit order %s: %w", assetID, err)
	}

	filledAt := util.ParseTimeDefault(resp.FilledAt, time.Now())
	return &models.Fill{
		AssetID:  assetID,
		Side:     side,
		Price:    resp.FillPrice,
		Size:     resp.FillSize,
		Mode:     models.ModeLive,
		FilledAt: filledAt,
	}, nil
}

func (v *LiveVenue) LastPrice(ctx context.Context, assetID string) (float64, error) {
	var resp priceResponse
	err := v.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     v.cfg.BaseURL + "/v1/prices/" + assetID,
		Headers: v.headers(),
	}, &resp)
	if err != nil {
		return 0, fmt.Errorf("last price %s: %w", assetID, err)
	}
	return resp.Price, nil
}

func (v *LiveVenue) headers() map[string]string {
	if v.cfg.APIKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + v.cfg.APIKey}
}
