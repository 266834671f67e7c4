package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// PositionRepository defines storage operations for positions and their
// stages. Persistence is a caller-owned side effect: the engine computes new
// position values and the orchestrating service writes them back here.
// Implementations must round-trip decimal values without precision loss.
type PositionRepository interface {
	SavePosition(ctx context.Context, p *Position) error
	GetPosition(ctx context.Context, id string) (*Position, error)
	ListOpenPositions(ctx context.Context, symbol string) ([]*Position, error)
	ListPositions(ctx context.Context) ([]*Position, error)
	UpdatePosition(ctx context.Context, p *Position) error
}

// PriceSource feeds current market prices to the orchestrating service. The
// engine itself never fetches prices; it receives them as inputs.
type PriceSource interface {
	OnPriceUpdate(callback func(symbol string, price decimal.Decimal))
	Subscribe(symbols []string) error
	Close() error
}
