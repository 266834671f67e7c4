package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/DansiDanutz/ZmartBot-sub003/internal/domain"
)

// MarginDefenseEngine performs the emergency margin top-up used when no
// scaling stages remain and liquidation is imminent. It is the only
// remediation left for a position already at the stage limit.
type MarginDefenseEngine struct {
	cfg     Config
	metrics *MetricsCalculator
}

func NewMarginDefenseEngine(cfg Config) *MarginDefenseEngine {
	return &MarginDefenseEngine{cfg: cfg, metrics: NewMetricsCalculator(cfg)}
}

// Defend adds additional margin equal to total invested, capped at the
// configured fraction of the bankroll. Preconditions are strict: the position
// must be at the stage limit and inside the emergency buffer, otherwise the
// call fails rather than silently doing nothing.
func (e *MarginDefenseEngine) Defend(p *domain.Position, currentPrice, bankroll decimal.Decimal) (*domain.Position, error) {
	if p.IsClosed() {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyClosed, p.ID)
	}
	if err := domain.RequireNonNegative("bankroll", bankroll); err != nil {
		return nil, err
	}
	if len(p.Stages) < domain.MaxStages {
		return nil, fmt.Errorf("%w: %d scaling stages remain", domain.ErrInvalidInput, domain.MaxStages-len(p.Stages))
	}

	calc, err := e.metrics.Calculate(p, currentPrice)
	if err != nil {
		return nil, err
	}
	if calc.LiquidationDistance.GreaterThanOrEqual(e.cfg.EmergencyBuffer) {
		return nil, fmt.Errorf("%w: liquidation distance %s outside emergency buffer %s",
			domain.ErrNotNearLiquidation, calc.LiquidationDistance.StringFixed(4), e.cfg.EmergencyBuffer)
	}

	amount := calc.TotalInvested
	limit := domain.Quantize(bankroll.Mul(e.cfg.MarginDefenseCapPct))
	if amount.GreaterThan(limit) {
		amount = limit
	}
	if amount.Sign() <= 0 || bankroll.LessThan(amount) {
		return nil, fmt.Errorf("%w: bankroll %s cannot fund margin top-up %s",
			domain.ErrInsufficientFunds, bankroll, amount)
	}

	updated := p.Clone()
	updated.AdditionalMargin = updated.AdditionalMargin.Add(amount)
	return updated, nil
}
