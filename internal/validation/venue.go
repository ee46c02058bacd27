package validation

import (
	"context"
	"fmt"
	"time"

	xhttp "AlphaPilot/pkg/http"
)

// AssetFacts is the read-only venue state the check battery inspects.
type AssetFacts struct {
	LiquidityUSD      float64 `json:"liquidity_usd"`
	LiquidityLocked   bool    `json:"liquidity_locked"`
	LockExpiresAt     int64   `json:"lock_expires_at"`
	MintAuthority     bool    `json:"mint_authority"`
	FreezeAuthority   bool    `json:"freeze_authority"`
	TopHolderShare    float64 `json:"top_holder_share"`
	DeployerVerified  bool    `json:"deployer_verified"`
	ContractValidated bool    `json:"contract_validated"`
}

// VenueClient reads asset state from the venue's query API. Transient
// failures are surfaced to the caller, which retries them through the
// breaker discipline.
type VenueClient struct {
	baseURL string
	client  *xhttp.Client
}

// NewVenueClient builds a read-only venue state client.
func NewVenueClient(baseURL string, timeout time.Duration) *VenueClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &VenueClient{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
	}
}

// Facts fetches the current on-venue facts for one asset.
func (c *VenueClient) Facts(ctx context.Context, assetID string) (*AssetFacts, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("venue client not configured")
	}
	var facts AssetFacts
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.baseURL + "/v1/assets/" + assetID,
	}, &facts)
	if err != nil {
		return nil, fmt.Errorf("venue facts %s: %w", assetID, err)
	}
	return &facts, nil
}
