package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/DansiDanutz/ZmartBot-sub003/internal/domain"
)

// PositionService orchestrates the engines around a repository. It owns the
// per-position serialization the engines assume: every mutating operation
// runs under an exclusive lock keyed by position id, held until the new state
// is persisted. Calculations run lock-free.
type PositionService struct {
	repo    domain.PositionRepository
	cfg     Config
	logger  *zap.Logger
	metrics *MetricsCalculator
	scaling *ScalingEngine
	profit  *ProfitEngine
	defense *MarginDefenseEngine

	mu         sync.RWMutex
	lastPrices map[string]decimal.Decimal // symbol -> price

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex // position id -> mutator lock
}

func NewPositionService(repo domain.PositionRepository, cfg Config, logger *zap.Logger) (*PositionService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PositionService{
		repo:       repo,
		cfg:        cfg,
		logger:     logger,
		metrics:    NewMetricsCalculator(cfg),
		scaling:    NewScalingEngine(cfg),
		profit:     NewProfitEngine(cfg),
		defense:    NewMarginDefenseEngine(cfg),
		lastPrices: make(map[string]decimal.Decimal),
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

func (s *PositionService) lockFor(id string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// GetLatestPrice returns the last price observed for a symbol, or zero.
func (s *PositionService) GetLatestPrice(symbol string) decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPrices[symbol]
}

// OpenPosition creates a position with stage 1 from the schedule and
// persists it.
func (s *PositionService) OpenPosition(ctx context.Context, symbol string, dir domain.Direction, currentPrice, signalScore, bankroll decimal.Decimal) (*domain.Position, error) {
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", domain.ErrInvalidInput)
	}
	if err := domain.RequirePositive("current price", currentPrice); err != nil {
		return nil, err
	}
	if err := domain.RequirePositive("bankroll", bankroll); err != nil {
		return nil, err
	}

	plan := s.cfg.Schedule[0]
	invested := domain.Quantize(bankroll.Mul(plan.BankrollFraction))
	if invested.GreaterThan(bankroll.Mul(s.cfg.MaxBankrollPerStagePct)) {
		return nil, fmt.Errorf("%w: initial stage needs %s from bankroll %s", domain.ErrInsufficientFunds, invested, bankroll)
	}

	p := &domain.Position{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Direction: dir,
		TakeStage: domain.TakeNone,
		Status:    domain.StatusOpen,
		OpenedAt:  time.Now().UTC(),
	}
	stage := domain.Stage{
		Index:       1,
		Invested:    invested,
		Leverage:    plan.Leverage,
		EntryPrice:  currentPrice,
		SignalScore: signalScore,
		Reason:      domain.TriggerInitial,
		OpenedAt:    p.OpenedAt,
	}
	if err := p.AppendStage(stage); err != nil {
		return nil, err
	}
	if err := s.repo.SavePosition(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("position opened",
		zap.String("id", p.ID),
		zap.String("symbol", symbol),
		zap.String("direction", string(dir)),
		zap.String("invested", invested.String()),
		zap.String("leverage", plan.Leverage.String()),
		zap.String("entry", currentPrice.String()))
	return p.Clone(), nil
}

// Calculate returns the metrics snapshot for a stored position. Read-only.
func (s *PositionService) Calculate(ctx context.Context, id string, currentPrice decimal.Decimal) (*domain.PositionCalculation, error) {
	p, err := s.repo.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.metrics.Calculate(p, currentPrice)
}

// EvaluateScaling runs the scaling rules without executing. Read-only.
func (s *PositionService) EvaluateScaling(ctx context.Context, id string, currentPrice, signalScore, bankroll decimal.Decimal) (*domain.ScalingDecision, error) {
	p, err := s.repo.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.scaling.Evaluate(p, currentPrice, signalScore, bankroll)
}

// ScaleIn evaluates and, if approved, executes an additional funding stage
// under the position lock.
func (s *PositionService) ScaleIn(ctx context.Context, id string, currentPrice, signalScore, bankroll decimal.Decimal) (*domain.ScalingDecision, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.repo.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	decision, err := s.scaling.Evaluate(p, currentPrice, signalScore, bankroll)
	if err != nil {
		return nil, err
	}
	if !decision.ShouldScale {
		s.logger.Debug("scaling declined",
			zap.String("id", id),
			zap.String("reason", decision.Reason))
		return decision, nil
	}

	updated, err := s.scaling.Execute(p, decision, currentPrice, bankroll)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePosition(ctx, updated); err != nil {
		return nil, err
	}
	s.logger.Info("position scaled",
		zap.String("id", id),
		zap.String("trigger", string(decision.Trigger)),
		zap.Int("stage", decision.NextStageIndex),
		zap.String("confidence", decision.Confidence.String()),
		zap.String("risk", decision.RiskAssessment))
	return decision, nil
}

// CheckProfitTriggers reports the pending profit-take transition for a
// stored position. Read-only.
func (s *PositionService) CheckProfitTriggers(ctx context.Context, id string, currentPrice decimal.Decimal) (*domain.ProfitTriggerReport, error) {
	p, err := s.repo.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.profit.CheckTriggers(p, currentPrice)
}

// ProcessTick runs the whole per-tick pipeline for every open position on the
// symbol: profit-take triggers first, then emergency scaling, then margin
// defense for positions already at the stage limit. Bankroll is supplied by
// the caller's accounting; the service never fetches it.
func (s *PositionService) ProcessTick(ctx context.Context, symbol string, currentPrice, bankroll decimal.Decimal) error {
	if err := domain.RequirePositive("current price", currentPrice); err != nil {
		return err
	}
	s.mu.Lock()
	s.lastPrices[symbol] = currentPrice
	s.mu.Unlock()

	positions, err := s.repo.ListOpenPositions(ctx, symbol)
	if err != nil {
		return err
	}
	for _, p := range positions {
		if err := s.processPosition(ctx, p.ID, currentPrice, bankroll); err != nil {
			s.logger.Error("tick processing failed",
				zap.String("id", p.ID),
				zap.String("symbol", symbol),
				zap.Error(err))
		}
	}
	return nil
}

func (s *PositionService) processPosition(ctx context.Context, id string, currentPrice, bankroll decimal.Decimal) error {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.repo.GetPosition(ctx, id)
	if err != nil {
		return err
	}
	if p.IsClosed() {
		return nil
	}

	report, err := s.profit.CheckTriggers(p, currentPrice)
	if err != nil {
		return err
	}
	if report.Triggered {
		updated, realized, err := s.profit.ExecuteTake(p, report.NextStage, currentPrice, report.TakeAmount)
		if err != nil {
			return err
		}
		if err := s.repo.UpdatePosition(ctx, updated); err != nil {
			return err
		}
		s.logger.Info("profit take executed",
			zap.String("id", id),
			zap.String("stage", string(report.NextStage)),
			zap.String("amount", report.TakeAmount.String()),
			zap.String("realized", realized.String()),
			zap.String("reason", report.Reason))
		p = updated
		if p.IsClosed() {
			return nil
		}
	}

	if bankroll.Sign() <= 0 {
		return nil
	}

	if len(p.Stages) < domain.MaxStages {
		// Tick path carries no external signal, so only the liquidation
		// buffers can trigger here; better-score scaling goes through ScaleIn.
		decision, err := s.scaling.Evaluate(p, currentPrice, p.Stages[0].SignalScore, bankroll)
		if err != nil {
			return err
		}
		if decision.ShouldScale {
			updated, err := s.scaling.Execute(p, decision, currentPrice, bankroll)
			if err != nil {
				return err
			}
			if err := s.repo.UpdatePosition(ctx, updated); err != nil {
				return err
			}
			s.logger.Warn("defensive scale-in executed",
				zap.String("id", id),
				zap.String("trigger", string(decision.Trigger)),
				zap.Int("stage", decision.NextStageIndex),
				zap.String("risk", decision.RiskAssessment))
		}
		return nil
	}

	// At the stage limit: margin defense is the only remediation left.
	updated, err := s.defense.Defend(p, currentPrice, bankroll)
	if err != nil {
		if errors.Is(err, domain.ErrNotNearLiquidation) {
			return nil
		}
		return err
	}
	if err := s.repo.UpdatePosition(ctx, updated); err != nil {
		return err
	}
	s.logger.Warn("margin defense executed",
		zap.String("id", id),
		zap.String("additional_margin", updated.AdditionalMargin.String()))
	return nil
}

// DefendMargin runs the margin-defense engine for one position under its
// lock.
func (s *PositionService) DefendMargin(ctx context.Context, id string, currentPrice, bankroll decimal.Decimal) (*domain.Position, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.repo.GetPosition(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.defense.Defend(p, currentPrice, bankroll)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdatePosition(ctx, updated); err != nil {
		return nil, err
	}
	s.logger.Info("margin defense executed",
		zap.String("id", id),
		zap.String("additional_margin", updated.AdditionalMargin.String()))
	return updated.Clone(), nil
}

// ExecuteProfitTake advances the take state machine for one position under
// its lock and returns the realized profit delta.
func (s *PositionService) ExecuteProfitTake(ctx context.Context, id string, stage domain.ProfitTakeStage, currentPrice, amount decimal.Decimal) (*domain.Position, decimal.Decimal, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.repo.GetPosition(ctx, id)
	if err != nil {
		return nil, decimal.Zero, err
	}
	updated, realized, err := s.profit.ExecuteTake(p, stage, currentPrice, amount)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if err := s.repo.UpdatePosition(ctx, updated); err != nil {
		return nil, decimal.Zero, err
	}
	s.logger.Info("profit take executed",
		zap.String("id", id),
		zap.String("stage", string(stage)),
		zap.String("realized", realized.String()))
	return updated.Clone(), realized, nil
}

// ClosePosition fully closes a position at currentPrice, realizing the
// remaining notional.
func (s *PositionService) ClosePosition(ctx context.Context, id string, currentPrice decimal.Decimal) (*domain.Position, decimal.Decimal, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	p, err := s.repo.GetPosition(ctx, id)
	if err != nil {
		return nil, decimal.Zero, err
	}
	updated, realized, err := s.profit.CloseAll(p, currentPrice)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if err := s.repo.UpdatePosition(ctx, updated); err != nil {
		return nil, decimal.Zero, err
	}
	s.logger.Info("position closed",
		zap.String("id", id),
		zap.String("realized", realized.String()),
		zap.String("total_realized", updated.RealizedProfit.String()))
	return updated.Clone(), realized, nil
}
