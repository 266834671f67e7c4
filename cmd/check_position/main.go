package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/DansiDanutz/ZmartBot-sub003/internal/infrastructure/storage"
	"github.com/DansiDanutz/ZmartBot-sub003/internal/usecase"
)

// Usage: check_position <db-path> <current-price> [bankroll]
// Dumps every stored position with its metrics and scaling analysis at the
// given price.
func main() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: check_position <db-path> <current-price> [bankroll]")
		os.Exit(1)
	}

	price, err := decimal.NewFromString(os.Args[2])
	if err != nil {
		fmt.Printf("Bad price %q: %v\n", os.Args[2], err)
		os.Exit(1)
	}
	bankroll := decimal.NewFromInt(10000)
	if len(os.Args) > 3 {
		if bankroll, err = decimal.NewFromString(os.Args[3]); err != nil {
			fmt.Printf("Bad bankroll %q: %v\n", os.Args[3], err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLiteStore(os.Args[1])
	if err != nil {
		fmt.Printf("Failed to init sqlite: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	positions, err := store.ListPositions(ctx)
	if err != nil {
		fmt.Printf("Failed to list positions: %v\n", err)
		os.Exit(1)
	}
	if len(positions) == 0 {
		fmt.Println("No positions found in DB.")
		return
	}

	cfg := usecase.DefaultConfig()
	metrics := usecase.NewMetricsCalculator(cfg)
	scaling := usecase.NewScalingEngine(cfg)
	profit := usecase.NewProfitEngine(cfg)

	fmt.Printf("Found %d positions. Analyzing at price %s...\n", len(positions), price)

	for _, p := range positions {
		fmt.Printf("\n--------------------------------------------------\n")
		fmt.Printf("Position %s %s %s (%s, take stage %s)\n",
			p.ID, p.Symbol, p.Direction, p.Status, p.TakeStage)
		for _, s := range p.Stages {
			fmt.Printf("  stage %d: invested %s @ %sx, entry %s (%s)\n",
				s.Index, s.Invested, s.Leverage, s.EntryPrice, s.Reason)
		}

		calc, err := metrics.Calculate(p, price)
		if err != nil {
			fmt.Printf("  ❌ metrics failed: %v\n", err)
			continue
		}
		fmt.Printf("  total invested:      %s\n", calc.TotalInvested)
		fmt.Printf("  total notional:      %s\n", calc.TotalNotional)
		fmt.Printf("  avg entry:           %s\n", calc.AvgEntryPrice)
		fmt.Printf("  current margin:      %s (unrealized %s)\n", calc.CurrentMargin, calc.UnrealizedPnL)
		fmt.Printf("  first-take trigger:  %s\n", calc.FirstTakeTrigger)
		fmt.Printf("  liquidation:         %s (distance %s)\n", calc.LiquidationPrice, calc.LiquidationDistance.StringFixed(4))
		fmt.Printf("  take amounts:        %s / %s / %s\n", calc.FirstTakeAmount, calc.SecondTakeAmount, calc.FinalTakeAmount)

		if p.IsClosed() {
			fmt.Printf("  realized profit:     %s\n", p.RealizedProfit)
			continue
		}

		report, err := profit.CheckTriggers(p, price)
		if err != nil {
			fmt.Printf("  ❌ profit check failed: %v\n", err)
			continue
		}
		if report.Triggered {
			fmt.Printf("  ✅ profit take pending: %s, amount %s\n", report.NextStage, report.TakeAmount)
		} else {
			fmt.Printf("  ❌ no profit take: %s\n", report.Reason)
		}

		decision, err := scaling.Evaluate(p, price, p.Stages[0].SignalScore, bankroll)
		if err != nil {
			fmt.Printf("  ❌ scaling evaluation failed: %v\n", err)
			continue
		}
		if decision.ShouldScale {
			fmt.Printf("  ✅ scale to stage %d (%s, confidence %s)\n",
				decision.NextStageIndex, decision.Trigger, decision.Confidence)
		} else {
			fmt.Printf("  ❌ no scaling: %s\n", decision.Reason)
		}
	}
}
