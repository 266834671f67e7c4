package usecase

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DansiDanutz/ZmartBot-sub003/internal/domain"
)

// ProfitEngine drives the profit-take state machine
// none -> first-take -> second-take -> final-take. Transitions are triggered
// by price crossing computed thresholds, never by time alone, and only move
// forward.
type ProfitEngine struct {
	cfg     Config
	metrics *MetricsCalculator
}

func NewProfitEngine(cfg Config) *ProfitEngine {
	return &ProfitEngine{cfg: cfg, metrics: NewMetricsCalculator(cfg)}
}

// CheckTriggers reports whether the current price fires the next profit-take
// transition. Read-only; safe without the position lock.
func (e *ProfitEngine) CheckTriggers(p *domain.Position, currentPrice decimal.Decimal) (*domain.ProfitTriggerReport, error) {
	calc, err := e.metrics.Calculate(p, currentPrice)
	if err != nil {
		return nil, err
	}

	report := &domain.ProfitTriggerReport{
		FromStage:   p.TakeStage,
		Calculation: calc,
	}
	if p.IsClosed() {
		report.Reason = "position closed"
		return report, nil
	}
	next, ok := p.TakeStage.Next()
	if !ok {
		report.Reason = "all takes executed"
		return report, nil
	}
	report.NextStage = next

	switch p.TakeStage {
	case domain.TakeNone:
		if calc.CurrentMargin.GreaterThanOrEqual(calc.FirstTakeTrigger) {
			report.Triggered = true
			report.TakeAmount = calc.FirstTakeAmount
			report.Reason = "current margin reached first-take trigger"
		} else {
			report.Reason = "margin below first-take trigger"
		}
	case domain.TakeFirst:
		if e.stopCrossed(p, currentPrice) {
			report.Triggered = true
			report.TakeAmount = calc.SecondTakeAmount
			report.Reason = "price crossed trailing stop"
		} else {
			report.Reason = "trailing stop intact"
		}
	case domain.TakeSecond:
		if e.stopCrossed(p, currentPrice) {
			report.Triggered = true
			report.TakeAmount = calc.FinalTakeAmount
			report.Reason = "price crossed tightened trailing stop"
		} else {
			report.Reason = "tightened trailing stop intact"
		}
	}
	return report, nil
}

func (e *ProfitEngine) stopCrossed(p *domain.Position, price decimal.Decimal) bool {
	if p.TrailingStop == nil {
		return false
	}
	if p.Direction == domain.DirectionShort {
		return price.GreaterThanOrEqual(*p.TrailingStop)
	}
	return price.LessThanOrEqual(*p.TrailingStop)
}

// ExecuteTake closes `amount` of notional at currentPrice and advances the
// state machine to `stage`, which must be the immediate successor of the
// current take stage. The final take also closes the position. Returns an
// updated copy and the realized profit of this close.
func (e *ProfitEngine) ExecuteTake(p *domain.Position, stage domain.ProfitTakeStage, currentPrice, amount decimal.Decimal) (*domain.Position, decimal.Decimal, error) {
	if p.IsClosed() {
		return nil, decimal.Zero, fmt.Errorf("%w: %s", domain.ErrAlreadyClosed, p.ID)
	}
	if err := domain.RequirePositive("take amount", amount); err != nil {
		return nil, decimal.Zero, err
	}
	next, ok := p.TakeStage.Next()
	if !ok || stage != next {
		return nil, decimal.Zero, fmt.Errorf("%w: take stage must advance %s -> %s, got %s",
			domain.ErrInvalidInput, p.TakeStage, next, stage)
	}

	calc, err := e.metrics.Calculate(p, currentPrice)
	if err != nil {
		return nil, decimal.Zero, err
	}

	remaining := domain.Quantize(calc.TotalNotional.Mul(e.remainingFraction(p.TakeStage)))
	if amount.GreaterThan(remaining) {
		amount = remaining
	}

	profit := e.realize(p.Direction, calc.AvgEntryPrice, currentPrice, amount)

	updated := p.Clone()
	updated.TakeStage = stage
	updated.RealizedProfit = updated.RealizedProfit.Add(profit)

	switch stage {
	case domain.TakeFirst:
		stop := e.trailingStop(p.Direction, currentPrice, e.cfg.FirstTrailingPct)
		updated.TrailingStop = &stop
	case domain.TakeSecond:
		stop := e.trailingStop(p.Direction, currentPrice, e.cfg.FinalTrailingPct)
		updated.TrailingStop = &stop
	case domain.TakeFinal:
		now := time.Now().UTC()
		updated.Status = domain.StatusClosed
		updated.ClosedAt = &now
		updated.TrailingStop = nil
	}
	return updated, profit, nil
}

// CloseAll realizes the remaining notional at currentPrice and closes the
// position without advancing the take stage (explicit full closure).
func (e *ProfitEngine) CloseAll(p *domain.Position, currentPrice decimal.Decimal) (*domain.Position, decimal.Decimal, error) {
	if p.IsClosed() {
		return nil, decimal.Zero, fmt.Errorf("%w: %s", domain.ErrAlreadyClosed, p.ID)
	}
	calc, err := e.metrics.Calculate(p, currentPrice)
	if err != nil {
		return nil, decimal.Zero, err
	}

	remaining := domain.Quantize(calc.TotalNotional.Mul(e.remainingFraction(p.TakeStage)))
	profit := decimal.Zero
	if remaining.Sign() > 0 {
		profit = e.realize(p.Direction, calc.AvgEntryPrice, currentPrice, remaining)
	}

	now := time.Now().UTC()
	updated := p.Clone()
	updated.RealizedProfit = updated.RealizedProfit.Add(profit)
	updated.Status = domain.StatusClosed
	updated.ClosedAt = &now
	updated.TrailingStop = nil
	return updated, profit, nil
}

// realize computes (exit − entry) × units, sign-adjusted for direction, where
// units is the closed notional amount priced at the weighted average entry.
func (e *ProfitEngine) realize(dir domain.Direction, avgEntry, exitPrice, amount decimal.Decimal) decimal.Decimal {
	units := domain.Div(amount, avgEntry)
	diff := exitPrice.Sub(avgEntry)
	if dir == domain.DirectionShort {
		diff = diff.Neg()
	}
	return domain.Quantize(diff.Mul(units))
}

func (e *ProfitEngine) trailingStop(dir domain.Direction, price, pct decimal.Decimal) decimal.Decimal {
	if dir == domain.DirectionShort {
		return domain.Quantize(price.Mul(one.Add(pct)))
	}
	return domain.Quantize(price.Mul(one.Sub(pct)))
}

// remainingFraction is the share of total notional still open at a given
// take stage.
func (e *ProfitEngine) remainingFraction(stage domain.ProfitTakeStage) decimal.Decimal {
	switch stage {
	case domain.TakeNone:
		return one
	case domain.TakeFirst:
		return one.Sub(e.cfg.FirstTakePct)
	case domain.TakeSecond:
		return e.cfg.FinalTakePct
	default:
		return decimal.Zero
	}
}
