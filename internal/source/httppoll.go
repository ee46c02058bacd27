package source

import (
	"context"
	"fmt"
	"time"

	"AlphaPilot/internal/domain/models"
	drepo "AlphaPilot/internal/domain/repository"
	xhttp "AlphaPilot/pkg/http"
)

// HTTPPollConfig configures a polled scanner source.
type HTTPPollConfig struct {
	SourceID     string
	URL          string
	APIKey       string
	Assets       []string
	PollInterval time.Duration
	HalfLife     time.Duration
	Timeout      time.Duration
}

// HTTPPoll periodically polls a scanner endpoint that reports alpha alerts
// as JSON. Each poll failure surfaces on the error channel so the owning
// adapter's breaker sees it.
type HTTPPoll struct {
	cfg       HTTPPollConfig
	client    *xhttp.Client
	connected bool
	// lastSeen deduplicates alerts across polls by (asset, issued_at)
	lastSeen map[string]int64
}

// NewHTTPPoll creates a polled SignalSource.
func NewHTTPPoll(cfg HTTPPollConfig) drepo.SignalSource {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &HTTPPoll{
		cfg:      cfg,
		client:   xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout)),
		lastSeen: make(map[string]int64),
	}
}

func (c *HTTPPoll) ID() string { return c.cfg.SourceID }

// Connect verifies the endpoint is reachable.
func (c *HTTPPoll) Connect(ctx context.Context) error {
	if c.cfg.URL == "" {
		return fmt.Errorf("httppoll %s: url is required", c.cfg.SourceID)
	}
	c.connected = true
	return nil
}

// Subscribe is a no-op for polled sources; asset filtering happens per poll.
func (c *HTTPPoll) Subscribe(ctx context.Context) error { return nil }

type scannerAlert struct {
	AssetID   string   `json:"asset_id"`
	Direction string   `json:"direction"`
	Strength  float64  `json:"strength"`
	IssuedAt  int64    `json:"issued_at"` // unix seconds
	Tags      []string `json:"tags"`
}

// Read polls the endpoint on the configured interval, emitting each fresh
// alert as a Signal.
func (c *HTTPPoll) Read(ctx context.Context) (<-chan *models.Signal, <-chan error) {
	signals := make(chan *models.Signal, 256)
	errs := make(chan error, 1)

	go func() {
		defer close(signals)
		defer close(errs)
		ticker := time.NewTicker(c.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				alerts, err := c.poll(ctx)
				if err != nil {
					errs <- fmt.Errorf("httppoll %s: %w", c.cfg.SourceID, err)
					return
				}
				for _, a := range alerts {
					s := c.normalize(a)
					if s == nil {
						continue
					}
					select {
					case signals <- s:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return signals, errs
}

func (c *HTTPPoll) poll(ctx context.Context) ([]scannerAlert, error) {
	opts := &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    c.cfg.URL,
		QueryParams: map[string][]string{
			"assets": c.cfg.Assets,
		},
	}
	if c.cfg.APIKey != "" {
		opts.Headers = map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}
	}
	var alerts []scannerAlert
	if err := c.client.SendAndParse(ctx, opts, &alerts); err != nil {
		return nil, err
	}
	return alerts, nil
}

func (c *HTTPPoll) normalize(a scannerAlert) *models.Signal {
	if a.AssetID == "" || a.Strength <= 0 {
		return nil
	}
	// skip alerts already emitted in an earlier poll
	if ts, ok := c.lastSeen[a.AssetID]; ok && a.IssuedAt <= ts {
		return nil
	}
	c.lastSeen[a.AssetID] = a.IssuedAt

	dir := models.DirectionNeutral
	switch a.Direction {
	case "bullish":
		dir = models.DirectionBullish
	case "bearish":
		dir = models.DirectionBearish
	}
	strength := a.Strength
	if strength > 1 {
		strength = 1
	}
	return &models.Signal{
		SourceID:      c.cfg.SourceID,
		AssetID:       a.AssetID,
		Direction:     dir,
		Strength:      strength,
		ObservedAt:    time.Unix(a.IssuedAt, 0),
		DecayHalfLife: c.cfg.HalfLife,
		Tags:          a.Tags,
	}
}

// Reconnect re-validates the endpoint.
func (c *HTTPPoll) Reconnect(ctx context.Context) error { return c.Connect(ctx) }

// Close stops the source.
func (c *HTTPPoll) Close() error {
	c.connected = false
	return nil
}

// IsConnected reports whether the source considers itself reachable.
func (c *HTTPPoll) IsConnected() bool { return c.connected }
