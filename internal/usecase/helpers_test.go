package usecase_test

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/DansiDanutz/ZmartBot-sub003/internal/domain"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func stage(index int, invested, leverage, entry, score string) domain.Stage {
	return domain.Stage{
		Index:       index,
		Invested:    d(invested),
		Leverage:    d(leverage),
		EntryPrice:  d(entry),
		SignalScore: d(score),
		Reason:      domain.TriggerInitial,
		OpenedAt:    time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

// singleStagePosition is scenario A: one long stage, 100 invested at 20x
// leverage, entry 50,000.
func singleStagePosition() *domain.Position {
	return &domain.Position{
		ID:        "pos-a",
		Symbol:    "BTCUSDT",
		Direction: domain.DirectionLong,
		Stages: []domain.Stage{
			stage(1, "100", "20", "50000", "0.5"),
		},
		TakeStage: domain.TakeNone,
		Status:    domain.StatusOpen,
		OpenedAt:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

// fourStagePosition is scenario B: four long stages, invested 100/200/400/800
// at leverage 20/10/5/2, entries 50,000/49,000/48,000/47,000.
func fourStagePosition() *domain.Position {
	p := singleStagePosition()
	p.ID = "pos-b"
	p.Stages = append(p.Stages,
		stage(2, "200", "10", "49000", "0.6"),
		stage(3, "400", "5", "48000", "0.6"),
		stage(4, "800", "2", "47000", "0.6"),
	)
	return p
}
