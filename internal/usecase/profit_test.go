package usecase_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DansiDanutz/ZmartBot-sub003/internal/domain"
	"github.com/DansiDanutz/ZmartBot-sub003/internal/usecase"
)

// At 51,875 the single-stage position's margin is exactly at the first-take
// trigger: unrealized = 2000 × 0.0375 = 75, margin = 175.
const firstTakePrice = "51875"

func TestCheckTriggersFirstTakeAtExactTrigger(t *testing.T) {
	engine := usecase.NewProfitEngine(usecase.DefaultConfig())

	report, err := engine.CheckTriggers(singleStagePosition(), d(firstTakePrice))
	require.NoError(t, err)

	require.True(t, report.Triggered, "margin exactly at trigger must fire")
	require.Equal(t, domain.TakeFirst, report.NextStage)
	requireDecimalEqual(t, "600", report.TakeAmount, "take amount")
}

func TestCheckTriggersBelowTrigger(t *testing.T) {
	engine := usecase.NewProfitEngine(usecase.DefaultConfig())

	report, err := engine.CheckTriggers(singleStagePosition(), d("51874"))
	require.NoError(t, err)
	require.False(t, report.Triggered)
	require.Equal(t, domain.TakeNone, report.FromStage)
}

func TestProfitTakeLifecycle(t *testing.T) {
	engine := usecase.NewProfitEngine(usecase.DefaultConfig())
	p := singleStagePosition()

	// First take: close 600 notional at 51,875. Units 0.012, profit 22.5.
	p1, realized, err := engine.ExecuteTake(p, domain.TakeFirst, d(firstTakePrice), d("600"))
	require.NoError(t, err)
	requireDecimalEqual(t, "22.5", realized, "first-take profit")
	require.Equal(t, domain.TakeFirst, p1.TakeStage)
	require.NotNil(t, p1.TrailingStop)
	requireDecimalEqual(t, "36312.5", *p1.TrailingStop, "trailing stop after first take")
	require.Equal(t, domain.StatusOpen, p1.Status)

	// Price collapses through the trailing stop.
	report, err := engine.CheckTriggers(p1, d("36312.5"))
	require.NoError(t, err)
	require.True(t, report.Triggered, "price at the stop must fire")
	require.Equal(t, domain.TakeSecond, report.NextStage)
	requireDecimalEqual(t, "500", report.TakeAmount, "second take amount")

	// Second take: units 0.01, profit (36312.5 − 50000) × 0.01 = −136.875.
	p2, realized, err := engine.ExecuteTake(p1, domain.TakeSecond, d("36312.5"), report.TakeAmount)
	require.NoError(t, err)
	requireDecimalEqual(t, "-136.875", realized, "second-take profit")
	requireDecimalEqual(t, "-114.375", p2.RealizedProfit, "accumulated realized profit")
	// Stop tightens to 3% under the current price.
	requireDecimalEqual(t, "35223.125", *p2.TrailingStop, "tightened trailing stop")

	// Final take closes the position.
	report, err = engine.CheckTriggers(p2, d("35223.125"))
	require.NoError(t, err)
	require.True(t, report.Triggered)
	require.Equal(t, domain.TakeFinal, report.NextStage)
	requireDecimalEqual(t, "900", report.TakeAmount, "final take amount")

	p3, _, err := engine.ExecuteTake(p2, domain.TakeFinal, d("35223.125"), report.TakeAmount)
	require.NoError(t, err)
	require.Equal(t, domain.TakeFinal, p3.TakeStage)
	require.Equal(t, domain.StatusClosed, p3.Status)
	require.Nil(t, p3.TrailingStop)
	require.NotNil(t, p3.ClosedAt)

	// Nothing further is permitted.
	_, _, err = engine.ExecuteTake(p3, domain.TakeFinal, d("35000"), d("1"))
	require.True(t, errors.Is(err, domain.ErrAlreadyClosed), "take on closed: got %v", err)
}

func TestProfitTakeMonotonicity(t *testing.T) {
	engine := usecase.NewProfitEngine(usecase.DefaultConfig())
	p := singleStagePosition()

	// Skipping a stage fails.
	_, _, err := engine.ExecuteTake(p, domain.TakeSecond, d(firstTakePrice), d("500"))
	require.True(t, errors.Is(err, domain.ErrInvalidInput), "skip: got %v", err)

	p1, _, err := engine.ExecuteTake(p, domain.TakeFirst, d(firstTakePrice), d("600"))
	require.NoError(t, err)

	// Regressing fails.
	_, _, err = engine.ExecuteTake(p1, domain.TakeFirst, d("52000"), d("600"))
	require.True(t, errors.Is(err, domain.ErrInvalidInput), "regress: got %v", err)
}

func TestTrailingStopDirectionForShort(t *testing.T) {
	engine := usecase.NewProfitEngine(usecase.DefaultConfig())

	p := singleStagePosition()
	p.Direction = domain.DirectionShort

	// For a short the trailing stop sits above the price, and it fires when
	// the price rises back through it.
	p1, _, err := engine.ExecuteTake(p, domain.TakeFirst, d("40000"), d("600"))
	require.NoError(t, err)
	requireDecimalEqual(t, "52000", *p1.TrailingStop, "short trailing stop")

	report, err := engine.CheckTriggers(p1, d("52000"))
	require.NoError(t, err)
	require.True(t, report.Triggered, "short stop crossed from below must fire")

	report, err = engine.CheckTriggers(p1, d("51999"))
	require.NoError(t, err)
	require.False(t, report.Triggered)
}

func TestExecuteTakeCapsAtRemainingNotional(t *testing.T) {
	engine := usecase.NewProfitEngine(usecase.DefaultConfig())
	p := singleStagePosition()

	// Requesting more than the open notional closes only what remains:
	// units 2000/50000 = 0.04, profit 1875 × 0.04 = 75.
	_, realized, err := engine.ExecuteTake(p, domain.TakeFirst, d(firstTakePrice), d("5000"))
	require.NoError(t, err)
	requireDecimalEqual(t, "75", realized, "capped realized profit")
}

func TestCloseAllRealizesRemainder(t *testing.T) {
	engine := usecase.NewProfitEngine(usecase.DefaultConfig())
	p := singleStagePosition()

	p1, _, err := engine.ExecuteTake(p, domain.TakeFirst, d(firstTakePrice), d("600"))
	require.NoError(t, err)

	// 70% of notional (1400) remains after the first take: units 0.028,
	// profit at 52,000 = 2000 × 0.028 = 56.
	p2, realized, err := engine.CloseAll(p1, d("52000"))
	require.NoError(t, err)
	requireDecimalEqual(t, "56", realized, "remainder profit")
	require.Equal(t, domain.StatusClosed, p2.Status)
	requireDecimalEqual(t, "78.5", p2.RealizedProfit, "total realized profit")

	_, _, err = engine.CloseAll(p2, d("52000"))
	require.True(t, errors.Is(err, domain.ErrAlreadyClosed), "double close: got %v", err)
}
