package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/DansiDanutz/ZmartBot-sub003/internal/domain"
)

// MetricsCalculator aggregates all funding stages of a position into a
// PositionCalculation. Pure function of (position, price); callers may invoke
// it concurrently without locking.
type MetricsCalculator struct {
	cfg Config
	liq *LiquidationCalculator
}

func NewMetricsCalculator(cfg Config) *MetricsCalculator {
	return &MetricsCalculator{cfg: cfg, liq: NewLiquidationCalculator()}
}

// Calculate builds the metrics snapshot for p at currentPrice.
//
// Profit is always measured against the cumulative invested amount across
// all stages to date, never against only the initial stage. This is the
// critical correctness property of the engine.
func (m *MetricsCalculator) Calculate(p *domain.Position, currentPrice decimal.Decimal) (*domain.PositionCalculation, error) {
	if err := domain.RequirePositive("current price", currentPrice); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(p.Stages) == 0 {
		return nil, fmt.Errorf("%w: position %s", domain.ErrNoStages, p.ID)
	}

	totalInvested := decimal.Zero
	totalNotional := decimal.Zero
	weightedEntry := decimal.Zero
	for _, s := range p.Stages {
		n := s.Notional()
		totalInvested = totalInvested.Add(s.Invested)
		totalNotional = totalNotional.Add(n)
		weightedEntry = weightedEntry.Add(s.EntryPrice.Mul(n))
	}
	avgEntry := domain.Div(weightedEntry, totalNotional)

	// Unrealized P&L on the full notional, relative to the weighted entry.
	move := domain.Div(currentPrice.Sub(avgEntry), avgEntry)
	if p.Direction == domain.DirectionShort {
		move = move.Neg()
	}
	unrealized := domain.Quantize(totalNotional.Mul(move))

	profitThreshold := domain.Quantize(totalInvested.Mul(m.cfg.ProfitThresholdPct))

	liqPrice, err := m.liq.BlendedPrice(p)
	if err != nil {
		return nil, err
	}

	firstTake := domain.Quantize(totalNotional.Mul(m.cfg.FirstTakePct))
	secondTake := domain.Quantize(totalNotional.Mul(m.cfg.SecondTakePct))

	riskReward := decimal.Zero
	if totalInvested.Sign() > 0 {
		riskReward = domain.Div(profitThreshold, totalInvested)
	}

	return &domain.PositionCalculation{
		CurrentPrice:        currentPrice,
		TotalInvested:       totalInvested,
		TotalNotional:       totalNotional,
		AvgEntryPrice:       avgEntry,
		UnrealizedPnL:       unrealized,
		CurrentMargin:       totalInvested.Add(unrealized),
		ProfitThreshold:     profitThreshold,
		FirstTakeTrigger:    totalInvested.Add(profitThreshold),
		LiquidationPrice:    liqPrice,
		LiquidationDistance: m.liq.Distance(p.Direction, liqPrice, currentPrice),
		FirstTakeAmount:     firstTake,
		SecondTakeAmount:    secondTake,
		// The final take closes whatever the first two left, so the three
		// amounts always sum to the exact total notional.
		FinalTakeAmount: totalNotional.Sub(firstTake).Sub(secondTake),
		MaxLoss:         totalInvested,
		RiskReward:      riskReward,
	}, nil
}
