package domain

import "errors"

// Engine error kinds. Callers branch on these with errors.Is; every failure
// returned by the engine wraps exactly one of them.
var (
	// ErrInvalidInput marks non-positive prices/leverage/investments or a
	// malformed stage sequence. Always a caller bug, never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoStages marks a calculation attempted on a position with no stages.
	ErrNoStages = errors.New("position has no stages")

	// ErrMaxStagesReached marks a scale execution beyond the stage limit.
	// EvaluateScaling reports the same condition as a normal no-scale decision.
	ErrMaxStagesReached = errors.New("max stages reached")

	// ErrInsufficientFunds marks a stage or margin addition that exceeds
	// bankroll policy limits.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadyClosed marks a mutation attempted on a closed position.
	ErrAlreadyClosed = errors.New("position already closed")

	// ErrNotNearLiquidation marks a margin defense invoked outside its
	// proximity precondition.
	ErrNotNearLiquidation = errors.New("position not near liquidation")
)
