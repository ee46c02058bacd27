package usecase

import (
	"context"
	"testing"
	"time"

	"AlphaPilot/internal/domain/models"
	xlogger "AlphaPilot/pkg/logger"
)

func TestFirehoseToSignal(t *testing.T) {
	raw := firehoseSignal{
		SourceID:     "onchain",
		AssetID:      "tok1",
		Direction:    "bullish",
		Strength:     0.8,
		ObservedAt:   "2026-01-15T12:00:00Z",
		HalfLifeSecs: 1800,
		Tags:         []string{"whale_buy"},
	}

	s, err := raw.toSignal()
	if err != nil {
		t.Fatalf("toSignal: %v", err)
	}
	if s.Direction != models.DirectionBullish {
		t.Fatalf("direction = %v, want bullish", s.Direction)
	}
	if s.DecayHalfLife != 30*time.Minute {
		t.Fatalf("half life = %v, want 30m", s.DecayHalfLife)
	}
	want := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	if !s.ObservedAt.Equal(want) {
		t.Fatalf("observed at = %v, want %v", s.ObservedAt, want)
	}
}

func TestFirehoseRejectsBadPayloads(t *testing.T) {
	base := func() firehoseSignal {
		return firehoseSignal{
			SourceID:   "onchain",
			AssetID:    "tok1",
			Direction:  "bullish",
			Strength:   0.8,
			ObservedAt: "2026-01-15T12:00:00Z",
		}
	}

	cases := []struct {
		name   string
		mutate func(*firehoseSignal)
	}{
		{"missing source", func(r *firehoseSignal) { r.SourceID = "" }},
		{"missing asset", func(r *firehoseSignal) { r.AssetID = "" }},
		{"unknown direction", func(r *firehoseSignal) { r.Direction = "sideways" }},
		{"strength above one", func(r *firehoseSignal) { r.Strength = 1.5 }},
		{"negative strength", func(r *firehoseSignal) { r.Strength = -0.1 }},
		{"unparseable timestamp", func(r *firehoseSignal) { r.ObservedAt = "yesterday" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := base()
			tc.mutate(&raw)
			if _, err := raw.toSignal(); err == nil {
				t.Fatal("bad payload accepted")
			}
		})
	}
}

func TestFirehoseHandleMalformedJSON(t *testing.T) {
	h := NewFirehoseHandler("signals", nil, xlogger.Nop())

	if err := h.Handle(context.Background(), []byte("{not json")); err == nil {
		t.Fatal("malformed json accepted")
	}
}

func TestFirehoseHandleUnixTimestamp(t *testing.T) {
	raw := firehoseSignal{
		SourceID:   "onchain",
		AssetID:    "tok1",
		Direction:  "bearish",
		Strength:   0.4,
		ObservedAt: "1768478400",
	}
	s, err := raw.toSignal()
	if err != nil {
		t.Fatalf("toSignal: %v", err)
	}
	if s.ObservedAt.Unix() != 1768478400 {
		t.Fatalf("observed at = %v, want unix 1768478400", s.ObservedAt)
	}
}
