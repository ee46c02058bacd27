package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"AlphaPilot/internal/domain/models"
	drepo "AlphaPilot/internal/domain/repository"
	"AlphaPilot/pkg/clickhouse"
)

var journalSchema = []string{
	`CREATE TABLE IF NOT EXISTS signals (
		source_id       String,
		asset_id        String,
		direction       LowCardinality(String),
		strength        Float64,
		observed_at     DateTime64(3),
		decay_half_life Int64,
		tags            Array(String)
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(observed_at)
	ORDER BY (asset_id, source_id, observed_at)
	TTL toDateTime(observed_at) + INTERVAL 90 DAY`,

	`CREATE TABLE IF NOT EXISTS fills (
		position_id String,
		asset_id    String,
		side        LowCardinality(String),
		price       Float64,
		size        Float64,
		mode        LowCardinality(String),
		reason      LowCardinality(String),
		filled_at   DateTime64(3)
	) ENGINE = MergeTree()
	PARTITION BY toYYYYMM(filled_at)
	ORDER BY (asset_id, filled_at)`,

	`CREATE TABLE IF NOT EXISTS positions (
		id           String,
		asset_id     String,
		mode         LowCardinality(String),
		entry_price  Float64,
		initial_size Float64,
		status       LowCardinality(String),
		realized_pnl Float64,
		opened_at    DateTime64(3),
		closed_at    DateTime64(3),
		sources      Array(String)
	) ENGINE = ReplacingMergeTree()
	PARTITION BY toYYYYMM(opened_at)
	ORDER BY (id)`,
}

// Journal persists the audit trail in ClickHouse. Signals retain 90 days;
// fills and positions are kept indefinitely for outcome attribution.
type Journal struct {
	client *clickhouse.Client
	// sources per asset at open time, attached to closed positions so the
	// attribution query can credit the contributing sources
	attribution func(assetID string) []string
}

var _ drepo.Journal = (*Journal)(nil)

// NewJournal wraps a ClickHouse client. attribution resolves the sources
// that contributed to an asset's score; nil disables attribution.
func NewJournal(client *clickhouse.Client, attribution func(assetID string) []string) *Journal {
	return &Journal{client: client, attribution: attribution}
}

func (j *Journal) Init(ctx context.Context) error {
	return j.client.InitSchema(ctx, journalSchema)
}

func (j *Journal) StoreSignal(ctx context.Context, s *models.Signal) error {
	_, err := j.client.DB().ExecContext(ctx,
		`INSERT INTO signals (source_id, asset_id, direction, strength, observed_at, decay_half_life, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.SourceID, s.AssetID, string(s.Direction), s.Strength, s.ObservedAt, int64(s.DecayHalfLife), s.Tags)
	if err != nil {
		return fmt.Errorf("store signal: %w", err)
	}
	return nil
}

func (j *Journal) StoreFill(ctx context.Context, f *models.Fill) error {
	_, err := j.client.DB().ExecContext(ctx,
		`INSERT INTO fills (position_id, asset_id, side, price, size, mode, reason, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.PositionID, f.AssetID, string(f.Side), f.Price, f.Size, string(f.Mode), f.Reason, f.FilledAt)
	if err != nil {
		return fmt.Errorf("store fill: %w", err)
	}
	return nil
}

func (j *Journal) StorePosition(ctx context.Context, p *models.Position) error {
	var sources []string
	if j.attribution != nil {
		sources = j.attribution(p.AssetID)
	}
	closedAt := p.ClosedAt
	if closedAt.IsZero() {
		closedAt = time.Unix(0, 0)
	}
	_, err := j.client.DB().ExecContext(ctx,
		`INSERT INTO positions (id, asset_id, mode, entry_price, initial_size, status, realized_pnl, opened_at, closed_at, sources)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.AssetID, string(p.Mode), p.EntryPrice, p.InitialSize, string(p.Status), p.RealizedPnL, p.OpenedAt, closedAt, sources)
	if err != nil {
		return fmt.Errorf("store position: %w", err)
	}
	return nil
}

// OutcomeBySource attributes each closed position's realized pnl, split
// evenly across its contributing sources.
func (j *Journal) OutcomeBySource(ctx context.Context, since time.Time) (map[string]float64, error) {
	rows, err := j.client.DB().QueryContext(ctx,
		`SELECT source, sum(realized_pnl / length(sources)) AS pnl
		 FROM positions
		 ARRAY JOIN sources AS source
		 WHERE status = 'closed' AND closed_at >= ? AND length(sources) > 0
		 GROUP BY source`,
		since)
	if err != nil {
		return nil, fmt.Errorf("outcome by source: %w", err)
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var source string
		var pnl float64
		if err := rows.Scan(&source, &pnl); err != nil {
			return nil, fmt.Errorf("outcome scan: %w", err)
		}
		out[strings.TrimSpace(source)] = pnl
	}
	return out, rows.Err()
}

func (j *Journal) Health(ctx context.Context) error {
	return j.client.Health(ctx)
}

func (j *Journal) Close() error {
	return j.client.Close()
}
