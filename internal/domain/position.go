package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// TriggerReason records why a funding stage was opened.
type TriggerReason string

const (
	TriggerInitial              TriggerReason = "initial"
	TriggerBetterScore          TriggerReason = "better-score"
	TriggerLiquidationProximity TriggerReason = "liquidation-proximity"
	TriggerEmergency            TriggerReason = "emergency"
	TriggerManual               TriggerReason = "manual"
)

// ProfitTakeStage marks how much of the position has already been partially
// closed for profit. Transitions are strictly forward.
type ProfitTakeStage string

const (
	TakeNone   ProfitTakeStage = "none"
	TakeFirst  ProfitTakeStage = "first-take"
	TakeSecond ProfitTakeStage = "second-take"
	TakeFinal  ProfitTakeStage = "final-take"
)

// Next returns the stage that follows s, or false when s is terminal.
func (s ProfitTakeStage) Next() (ProfitTakeStage, bool) {
	switch s {
	case TakeNone:
		return TakeFirst, true
	case TakeFirst:
		return TakeSecond, true
	case TakeSecond:
		return TakeFinal, true
	default:
		return s, false
	}
}

type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// MaxStages is the hard limit on funding stages per position.
const MaxStages = 4

// Stage is one funding event of a position. Stages are append-only: once
// created they are never edited or removed.
type Stage struct {
	Index       int
	Invested    decimal.Decimal
	Leverage    decimal.Decimal
	EntryPrice  decimal.Decimal
	SignalScore decimal.Decimal
	Reason      TriggerReason
	OpenedAt    time.Time
}

// Notional is the economic size of the stage: invested amount times leverage.
func (s Stage) Notional() decimal.Decimal {
	return s.Invested.Mul(s.Leverage)
}

func (s Stage) Validate() error {
	if s.Index < 1 || s.Index > MaxStages {
		return fmt.Errorf("%w: stage index %d out of range [1,%d]", ErrInvalidInput, s.Index, MaxStages)
	}
	if err := RequirePositive("invested amount", s.Invested); err != nil {
		return err
	}
	if s.Leverage.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: leverage must be >= 1, got %s", ErrInvalidInput, s.Leverage)
	}
	if err := RequirePositive("entry price", s.EntryPrice); err != nil {
		return err
	}
	if err := RequireNonNegative("signal score", s.SignalScore); err != nil {
		return err
	}
	return nil
}

// Position is an open or closed leveraged exposure on one symbol, built up
// over at most MaxStages funding stages.
type Position struct {
	ID               string
	Symbol           string
	Direction        Direction
	Stages           []Stage
	TakeStage        ProfitTakeStage
	TrailingStop     *decimal.Decimal
	RealizedProfit   decimal.Decimal
	AdditionalMargin decimal.Decimal
	Status           PositionStatus
	OpenedAt         time.Time
	ClosedAt         *time.Time
}

func (p *Position) IsClosed() bool {
	return p.Status == StatusClosed
}

// Validate checks the structural invariants: a known direction, a gap-free
// 1-based stage sequence and non-negative extra margin.
func (p *Position) Validate() error {
	if p.Direction != DirectionLong && p.Direction != DirectionShort {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidInput, p.Direction)
	}
	if len(p.Stages) > MaxStages {
		return fmt.Errorf("%w: %d stages exceeds limit %d", ErrInvalidInput, len(p.Stages), MaxStages)
	}
	for i, s := range p.Stages {
		if s.Index != i+1 {
			return fmt.Errorf("%w: stage at offset %d has index %d, want %d", ErrInvalidInput, i, s.Index, i+1)
		}
		if err := s.Validate(); err != nil {
			return err
		}
	}
	if err := RequireNonNegative("additional margin", p.AdditionalMargin); err != nil {
		return err
	}
	return nil
}

// AppendStage adds the next funding stage. The stage index must continue the
// sequence, and closed positions reject further stages.
func (p *Position) AppendStage(s Stage) error {
	if p.IsClosed() {
		return fmt.Errorf("%w: %s", ErrAlreadyClosed, p.ID)
	}
	if len(p.Stages) >= MaxStages {
		return fmt.Errorf("%w: position %s", ErrMaxStagesReached, p.ID)
	}
	if s.Index != len(p.Stages)+1 {
		return fmt.Errorf("%w: stage index %d does not continue sequence of %d", ErrInvalidInput, s.Index, len(p.Stages))
	}
	if err := s.Validate(); err != nil {
		return err
	}
	p.Stages = append(p.Stages, s)
	return nil
}

// Clone returns a deep copy. Services hand copies to callers so the stored
// record cannot be mutated outside the per-position lock.
func (p *Position) Clone() *Position {
	cp := *p
	cp.Stages = append([]Stage(nil), p.Stages...)
	if p.TrailingStop != nil {
		ts := *p.TrailingStop
		cp.TrailingStop = &ts
	}
	if p.ClosedAt != nil {
		at := *p.ClosedAt
		cp.ClosedAt = &at
	}
	return &cp
}

// PositionCalculation is a pure snapshot derived from a position and a
// current price. It is always regenerated, never persisted as truth.
type PositionCalculation struct {
	CurrentPrice        decimal.Decimal
	TotalInvested       decimal.Decimal
	TotalNotional       decimal.Decimal
	AvgEntryPrice       decimal.Decimal
	UnrealizedPnL       decimal.Decimal
	CurrentMargin       decimal.Decimal
	ProfitThreshold     decimal.Decimal
	FirstTakeTrigger    decimal.Decimal
	LiquidationPrice    decimal.Decimal
	LiquidationDistance decimal.Decimal
	FirstTakeAmount     decimal.Decimal
	SecondTakeAmount    decimal.Decimal
	FinalTakeAmount     decimal.Decimal
	MaxLoss             decimal.Decimal
	RiskReward          decimal.Decimal
}

// ScalingDecision is the ephemeral result of evaluating whether a position
// should receive another funding stage.
type ScalingDecision struct {
	ShouldScale    bool
	Trigger        TriggerReason
	Reason         string
	NextStageIndex int
	Confidence     decimal.Decimal
	SignalScore    decimal.Decimal
	RiskAssessment string
	Calculation    *PositionCalculation
}

// ProfitTriggerReport describes whether the current price fires the next
// profit-take transition and how much notional it would close.
type ProfitTriggerReport struct {
	Triggered   bool
	FromStage   ProfitTakeStage
	NextStage   ProfitTakeStage
	TakeAmount  decimal.Decimal
	Reason      string
	Calculation *PositionCalculation
}
