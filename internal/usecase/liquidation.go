package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/DansiDanutz/ZmartBot-sub003/internal/domain"
)

// LiquidationCalculator derives a position's liquidation price from its
// weighted entry stages. Pure and reentrant.
type LiquidationCalculator struct{}

func NewLiquidationCalculator() *LiquidationCalculator {
	return &LiquidationCalculator{}
}

var one = decimal.NewFromInt(1)

// StagePrice returns the liquidation price of a single stage:
// entry × (1 − 1/leverage) for longs, entry × (1 + 1/leverage) for shorts.
func (c *LiquidationCalculator) StagePrice(s domain.Stage, dir domain.Direction) decimal.Decimal {
	lev := domain.Div(one, s.Leverage)
	if dir == domain.DirectionShort {
		return domain.Quantize(s.EntryPrice.Mul(one.Add(lev)))
	}
	return domain.Quantize(s.EntryPrice.Mul(one.Sub(lev)))
}

// BlendedPrice returns the notional-weighted average of the per-stage
// liquidation prices. Reordering stages does not change the result.
func (c *LiquidationCalculator) BlendedPrice(p *domain.Position) (decimal.Decimal, error) {
	if len(p.Stages) == 0 {
		return decimal.Zero, fmt.Errorf("%w: position %s", domain.ErrNoStages, p.ID)
	}

	weighted := decimal.Zero
	totalWeight := decimal.Zero
	for _, s := range p.Stages {
		w := s.Notional()
		weighted = weighted.Add(c.StagePrice(s, p.Direction).Mul(w))
		totalWeight = totalWeight.Add(w)
	}
	if totalWeight.Sign() == 0 {
		return decimal.Zero, fmt.Errorf("%w: zero total weight for %s", domain.ErrNoStages, p.ID)
	}
	return domain.Div(weighted, totalWeight), nil
}

// Distance returns the signed liquidation distance as a fraction of the
// current price. More negative means closer to liquidation; a negative value
// means the blended liquidation price has already been crossed.
func (c *LiquidationCalculator) Distance(dir domain.Direction, liquidationPrice, currentPrice decimal.Decimal) decimal.Decimal {
	if dir == domain.DirectionShort {
		return domain.Div(liquidationPrice.Sub(currentPrice), currentPrice)
	}
	return domain.Div(currentPrice.Sub(liquidationPrice), currentPrice)
}
