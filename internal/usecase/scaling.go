package usecase

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DansiDanutz/ZmartBot-sub003/internal/domain"
)

// ScalingEngine decides whether a position should receive an additional
// funding stage, and executes approved stages against the schedule.
type ScalingEngine struct {
	cfg     Config
	metrics *MetricsCalculator
}

func NewScalingEngine(cfg Config) *ScalingEngine {
	return &ScalingEngine{cfg: cfg, metrics: NewMetricsCalculator(cfg)}
}

// Evaluate applies the scaling rules in strict priority order, first match
// wins:
//
//  1. at the stage limit           -> no scale
//  2. inside the emergency buffer  -> emergency, confidence 1.0
//  3. inside the defensive buffer  -> liquidation-proximity, confidence 0.9
//  4. signal beats initial score   -> better-score, confidence 0.8
//  5. otherwise                    -> no scale
func (e *ScalingEngine) Evaluate(p *domain.Position, currentPrice, signalScore, bankroll decimal.Decimal) (*domain.ScalingDecision, error) {
	if err := domain.RequireNonNegative("signal score", signalScore); err != nil {
		return nil, err
	}
	if err := domain.RequireNonNegative("bankroll", bankroll); err != nil {
		return nil, err
	}
	calc, err := e.metrics.Calculate(p, currentPrice)
	if err != nil {
		return nil, err
	}

	risk := fmt.Sprintf("liquidation distance %s, margin %s of %s invested",
		calc.LiquidationDistance.StringFixed(4), calc.CurrentMargin, calc.TotalInvested)

	decision := &domain.ScalingDecision{
		NextStageIndex: len(p.Stages) + 1,
		SignalScore:    signalScore,
		RiskAssessment: risk,
		Calculation:    calc,
	}

	if len(p.Stages) >= domain.MaxStages {
		decision.NextStageIndex = 0
		decision.Reason = "max stages reached"
		return decision, nil
	}

	switch {
	case calc.LiquidationDistance.LessThan(e.cfg.EmergencyBuffer):
		decision.ShouldScale = true
		decision.Trigger = domain.TriggerEmergency
		decision.Reason = "liquidation distance inside emergency buffer"
		decision.Confidence = one
	case calc.LiquidationDistance.LessThan(e.cfg.DefensiveBuffer):
		decision.ShouldScale = true
		decision.Trigger = domain.TriggerLiquidationProximity
		decision.Reason = "liquidation distance inside defensive buffer"
		decision.Confidence = dec("0.9")
	case signalScore.GreaterThan(e.initialScore(p).Mul(e.cfg.BetterScoreRatio)):
		decision.ShouldScale = true
		decision.Trigger = domain.TriggerBetterScore
		decision.Reason = "signal score improved past better-score ratio"
		decision.Confidence = dec("0.8")
	default:
		decision.Reason = "no trigger"
	}
	return decision, nil
}

func (e *ScalingEngine) initialScore(p *domain.Position) decimal.Decimal {
	return p.Stages[0].SignalScore
}

// Execute appends the stage recommended by decision. The invested amount
// comes from the schedule entry for the next stage index and is rejected when
// it exceeds the per-stage bankroll cap. Returns an updated copy; the input
// position is not mutated.
func (e *ScalingEngine) Execute(p *domain.Position, decision *domain.ScalingDecision, currentPrice, bankroll decimal.Decimal) (*domain.Position, error) {
	if p.IsClosed() {
		return nil, fmt.Errorf("%w: %s", domain.ErrAlreadyClosed, p.ID)
	}
	if decision == nil || !decision.ShouldScale {
		return nil, fmt.Errorf("%w: decision does not approve scaling", domain.ErrInvalidInput)
	}
	if len(p.Stages) >= domain.MaxStages {
		return nil, fmt.Errorf("%w: position %s", domain.ErrMaxStagesReached, p.ID)
	}
	if err := domain.RequirePositive("current price", currentPrice); err != nil {
		return nil, err
	}
	if err := domain.RequirePositive("bankroll", bankroll); err != nil {
		return nil, err
	}

	next := len(p.Stages) + 1
	if decision.NextStageIndex != next {
		return nil, fmt.Errorf("%w: decision targets stage %d, position expects %d",
			domain.ErrInvalidInput, decision.NextStageIndex, next)
	}

	plan := e.cfg.Schedule[next-1]
	invested := domain.Quantize(bankroll.Mul(plan.BankrollFraction))
	if invested.GreaterThan(bankroll.Mul(e.cfg.MaxBankrollPerStagePct)) {
		return nil, fmt.Errorf("%w: stage %d needs %s, over %s%% of bankroll %s",
			domain.ErrInsufficientFunds, next, invested,
			e.cfg.MaxBankrollPerStagePct.Mul(decimal.NewFromInt(100)), bankroll)
	}
	if invested.Sign() <= 0 {
		return nil, fmt.Errorf("%w: bankroll %s yields empty stage", domain.ErrInsufficientFunds, bankroll)
	}

	updated := p.Clone()
	stage := domain.Stage{
		Index:       next,
		Invested:    invested,
		Leverage:    plan.Leverage,
		EntryPrice:  currentPrice,
		SignalScore: decision.SignalScore,
		Reason:      decision.Trigger,
		OpenedAt:    time.Now().UTC(),
	}
	if err := updated.AppendStage(stage); err != nil {
		return nil, err
	}
	return updated, nil
}
