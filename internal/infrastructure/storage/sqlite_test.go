package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DansiDanutz/ZmartBot-sub003/internal/domain"
	"github.com/DansiDanutz/ZmartBot-sub003/internal/infrastructure/storage"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "positions.db"))
	if err != nil {
		t.Fatalf("Failed to init store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func samplePosition() *domain.Position {
	opened := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ts := d("36312.5")
	return &domain.Position{
		ID:        "pos-1",
		Symbol:    "BTCUSDT",
		Direction: domain.DirectionLong,
		Stages: []domain.Stage{
			{
				Index:       1,
				Invested:    d("100.00000001"),
				Leverage:    d("20"),
				EntryPrice:  d("50000.12345678"),
				SignalScore: d("0.5"),
				Reason:      domain.TriggerInitial,
				OpenedAt:    opened,
			},
			{
				Index:       2,
				Invested:    d("200"),
				Leverage:    d("10"),
				EntryPrice:  d("49000"),
				SignalScore: d("0.65"),
				Reason:      domain.TriggerBetterScore,
				OpenedAt:    opened.Add(time.Hour),
			},
		},
		TakeStage:        domain.TakeFirst,
		TrailingStop:     &ts,
		RealizedProfit:   d("22.5"),
		AdditionalMargin: d("0"),
		Status:           domain.StatusOpen,
		OpenedAt:         opened,
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	p := samplePosition()
	if err := store.SavePosition(ctx, p); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	got, err := store.GetPosition(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}

	if got.Symbol != p.Symbol || got.Direction != p.Direction || got.TakeStage != p.TakeStage || got.Status != p.Status {
		t.Errorf("scalar fields mismatch: got %+v", got)
	}
	// Decimals must survive storage exactly, digit for digit.
	if got.TrailingStop == nil || !got.TrailingStop.Equal(d("36312.5")) {
		t.Errorf("TrailingStop = %v, want 36312.5", got.TrailingStop)
	}
	if !got.RealizedProfit.Equal(d("22.5")) {
		t.Errorf("RealizedProfit = %s, want 22.5", got.RealizedProfit)
	}
	if len(got.Stages) != 2 {
		t.Fatalf("stage count = %d, want 2", len(got.Stages))
	}
	if !got.Stages[0].Invested.Equal(d("100.00000001")) {
		t.Errorf("stage 1 invested = %s, want 100.00000001", got.Stages[0].Invested)
	}
	if !got.Stages[0].EntryPrice.Equal(d("50000.12345678")) {
		t.Errorf("stage 1 entry = %s, want 50000.12345678", got.Stages[0].EntryPrice)
	}
	if got.Stages[1].Reason != domain.TriggerBetterScore {
		t.Errorf("stage 2 reason = %s, want better-score", got.Stages[1].Reason)
	}
}

func TestUpdateAppendsNewStagesOnly(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	p := samplePosition()
	if err := store.SavePosition(ctx, p); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	// Advance state and append a stage, as the scaling engine would.
	now := time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)
	p.Stages = append(p.Stages, domain.Stage{
		Index:       3,
		Invested:    d("400"),
		Leverage:    d("5"),
		EntryPrice:  d("48000"),
		SignalScore: d("0.65"),
		Reason:      domain.TriggerLiquidationProximity,
		OpenedAt:    now,
	})
	p.TakeStage = domain.TakeSecond
	p.TrailingStop = nil
	p.RealizedProfit = d("-114.375")

	if err := store.UpdatePosition(ctx, p); err != nil {
		t.Fatalf("UpdatePosition: %v", err)
	}

	got, err := store.GetPosition(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if len(got.Stages) != 3 {
		t.Fatalf("stage count = %d, want 3", len(got.Stages))
	}
	if got.TakeStage != domain.TakeSecond {
		t.Errorf("TakeStage = %s, want second-take", got.TakeStage)
	}
	if got.TrailingStop != nil {
		t.Errorf("TrailingStop = %v, want nil", got.TrailingStop)
	}
	if !got.RealizedProfit.Equal(d("-114.375")) {
		t.Errorf("RealizedProfit = %s, want -114.375", got.RealizedProfit)
	}
}

func TestUpdateMissingPosition(t *testing.T) {
	store := newStore(t)

	p := samplePosition()
	if err := store.UpdatePosition(context.Background(), p); err == nil {
		t.Error("UpdatePosition on missing row must fail")
	}
}

func TestListOpenPositionsFiltersClosed(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	open := samplePosition()
	if err := store.SavePosition(ctx, open); err != nil {
		t.Fatalf("SavePosition: %v", err)
	}

	closedAt := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	closed := samplePosition()
	closed.ID = "pos-2"
	closed.Status = domain.StatusClosed
	closed.ClosedAt = &closedAt
	closed.TrailingStop = nil
	if err := store.SavePosition(ctx, closed); err != nil {
		t.Fatalf("SavePosition closed: %v", err)
	}

	other := samplePosition()
	other.ID = "pos-3"
	other.Symbol = "ETHUSDT"
	if err := store.SavePosition(ctx, other); err != nil {
		t.Fatalf("SavePosition other symbol: %v", err)
	}

	got, err := store.ListOpenPositions(ctx, "BTCUSDT")
	if err != nil {
		t.Fatalf("ListOpenPositions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "pos-1" {
		t.Errorf("ListOpenPositions = %d rows, want only pos-1", len(got))
	}

	all, err := store.ListPositions(ctx)
	if err != nil {
		t.Fatalf("ListPositions: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListPositions = %d rows, want 3", len(all))
	}
}
