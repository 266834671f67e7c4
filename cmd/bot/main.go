package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/DansiDanutz/ZmartBot-sub003/internal/infrastructure/feed"
	"github.com/DansiDanutz/ZmartBot-sub003/internal/infrastructure/logger"
	"github.com/DansiDanutz/ZmartBot-sub003/internal/infrastructure/storage"
	"github.com/DansiDanutz/ZmartBot-sub003/internal/usecase"
)

type Config struct {
	Feed struct {
		WSEndpoint string   `yaml:"ws_endpoint"`
		Symbols    []string `yaml:"symbols"`
	} `yaml:"feed"`
	Trading struct {
		Bankroll decimal.Decimal `yaml:"bankroll"`
	} `yaml:"trading"`
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Polling struct {
		SymbolsReloadMs int `yaml:"symbols_reload_ms"`
	} `yaml:"polling"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Engine usecase.Config `yaml:"engine"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// Engine keys absent from the file keep their defaults.
	cfg := Config{Engine: usecase.DefaultConfig()}
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = "positions.db"
	}
	store, err := storage.NewSQLiteStore(dbPath)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	svc, err := usecase.NewPositionService(store, cfg.Engine, log)
	if err != nil {
		log.Fatal("Failed to init position service", zap.Error(err))
	}

	priceFeed := feed.NewBybitFeed(cfg.Feed.WSEndpoint)
	priceFeed.OnPriceUpdate(func(symbol string, price decimal.Decimal) {
		if err := svc.ProcessTick(context.Background(), symbol, price, cfg.Trading.Bankroll); err != nil {
			log.Error("Error processing tick", zap.Error(err))
		}
	})

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	// Subscription loop: configured symbols plus every symbol with an open
	// position, rechecked periodically so new positions get price updates.
	reloadMs := cfg.Polling.SymbolsReloadMs
	if reloadMs == 0 {
		reloadMs = 5000
	}
	go func() {
		ticker := time.NewTicker(time.Duration(reloadMs) * time.Millisecond)
		defer ticker.Stop()

		for {
			symbols := make(map[string]bool)
			for _, s := range cfg.Feed.Symbols {
				symbols[s] = true
			}
			positions, err := store.ListPositions(context.Background())
			if err != nil {
				log.Error("Failed to list positions", zap.Error(err))
			} else {
				for _, p := range positions {
					if !p.IsClosed() {
						symbols[p.Symbol] = true
					}
				}
			}

			var toSubscribe []string
			for s := range symbols {
				toSubscribe = append(toSubscribe, s)
			}
			if len(toSubscribe) > 0 {
				if err := priceFeed.Subscribe(toSubscribe); err != nil {
					log.Error("Failed to subscribe", zap.Error(err))
				}
			}

			select {
			case <-ticker.C:
				continue
			case <-done:
				return
			}
		}
	}()

	<-stop
	close(done)

	log.Info("Shutting down...")
	priceFeed.Close()
}
