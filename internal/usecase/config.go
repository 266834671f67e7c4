package usecase

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/DansiDanutz/ZmartBot-sub003/internal/domain"
)

// StagePlan is one entry of the per-stage funding schedule: what fraction of
// the bankroll the stage invests and at what leverage.
type StagePlan struct {
	BankrollFraction decimal.Decimal `yaml:"bankroll_fraction"`
	Leverage         decimal.Decimal `yaml:"leverage"`
}

// Config carries the engine percentages and the stage schedule. The numbers
// are data, not code: deployments may override them, the rules that consume
// them stay fixed.
type Config struct {
	// Profit threshold as a fraction of total invested.
	ProfitThresholdPct decimal.Decimal `yaml:"profit_threshold_pct"`

	// Take amounts as fractions of total notional. Must sum to 1.
	FirstTakePct  decimal.Decimal `yaml:"first_take_pct"`
	SecondTakePct decimal.Decimal `yaml:"second_take_pct"`
	FinalTakePct  decimal.Decimal `yaml:"final_take_pct"`

	// Trailing-stop offsets from the current price after the first and
	// second takes.
	FirstTrailingPct decimal.Decimal `yaml:"first_trailing_pct"`
	FinalTrailingPct decimal.Decimal `yaml:"final_trailing_pct"`

	// Liquidation-distance buffers, as fractions of current price.
	EmergencyBuffer decimal.Decimal `yaml:"emergency_buffer"`
	DefensiveBuffer decimal.Decimal `yaml:"defensive_buffer"`

	// A live signal must beat the initial stage's score by this ratio to
	// justify a better-score stage.
	BetterScoreRatio decimal.Decimal `yaml:"better_score_ratio"`

	// Margin defense tops up at most this fraction of the bankroll.
	MarginDefenseCapPct decimal.Decimal `yaml:"margin_defense_cap_pct"`

	// A single stage may consume at most this fraction of the bankroll.
	MaxBankrollPerStagePct decimal.Decimal `yaml:"max_bankroll_per_stage_pct"`

	Schedule []StagePlan `yaml:"schedule"`
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DefaultConfig returns the stock engine parameters: 75% profit threshold,
// 30/25/45 take split, 30%/3% trailing stops, 10%/5% liquidation buffers and
// the 1%@20x, 2%@10x, 4%@5x, 8%@2x stage schedule.
func DefaultConfig() Config {
	return Config{
		ProfitThresholdPct:     dec("0.75"),
		FirstTakePct:           dec("0.30"),
		SecondTakePct:          dec("0.25"),
		FinalTakePct:           dec("0.45"),
		FirstTrailingPct:       dec("0.30"),
		FinalTrailingPct:       dec("0.03"),
		EmergencyBuffer:        dec("0.10"),
		DefensiveBuffer:        dec("0.05"),
		BetterScoreRatio:       dec("1.2"),
		MarginDefenseCapPct:    dec("0.30"),
		MaxBankrollPerStagePct: dec("0.50"),
		Schedule: []StagePlan{
			{BankrollFraction: dec("0.01"), Leverage: dec("20")},
			{BankrollFraction: dec("0.02"), Leverage: dec("10")},
			{BankrollFraction: dec("0.04"), Leverage: dec("5")},
			{BankrollFraction: dec("0.08"), Leverage: dec("2")},
		},
	}
}

// Validate rejects configs the engines cannot operate on.
func (c Config) Validate() error {
	one := decimal.NewFromInt(1)
	for _, v := range []struct {
		name string
		val  decimal.Decimal
	}{
		{"profit_threshold_pct", c.ProfitThresholdPct},
		{"first_take_pct", c.FirstTakePct},
		{"second_take_pct", c.SecondTakePct},
		{"final_take_pct", c.FinalTakePct},
		{"first_trailing_pct", c.FirstTrailingPct},
		{"final_trailing_pct", c.FinalTrailingPct},
		{"emergency_buffer", c.EmergencyBuffer},
		{"defensive_buffer", c.DefensiveBuffer},
		{"margin_defense_cap_pct", c.MarginDefenseCapPct},
		{"max_bankroll_per_stage_pct", c.MaxBankrollPerStagePct},
	} {
		if err := domain.RequirePositive(v.name, v.val); err != nil {
			return err
		}
	}
	if !c.FirstTakePct.Add(c.SecondTakePct).Add(c.FinalTakePct).Equal(one) {
		return fmt.Errorf("%w: take percentages must sum to 1", domain.ErrInvalidInput)
	}
	if c.BetterScoreRatio.LessThanOrEqual(one) {
		return fmt.Errorf("%w: better_score_ratio must be > 1", domain.ErrInvalidInput)
	}
	if len(c.Schedule) != domain.MaxStages {
		return fmt.Errorf("%w: schedule must have %d entries, got %d", domain.ErrInvalidInput, domain.MaxStages, len(c.Schedule))
	}
	for i, plan := range c.Schedule {
		if err := domain.RequirePositive(fmt.Sprintf("schedule[%d].bankroll_fraction", i), plan.BankrollFraction); err != nil {
			return err
		}
		if plan.Leverage.LessThan(one) {
			return fmt.Errorf("%w: schedule[%d].leverage must be >= 1", domain.ErrInvalidInput, i)
		}
	}
	return nil
}
