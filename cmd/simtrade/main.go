package main

import (
	"context"
	"flag"

	"github.com/adamdenes/simtrade/api"
	"github.com/adamdenes/simtrade/internal/backtest"
	"github.com/adamdenes/simtrade/internal/broker"
	"github.com/adamdenes/simtrade/internal/config"
	"github.com/adamdenes/simtrade/internal/exchange"
	"github.com/adamdenes/simtrade/internal/logger"
	"github.com/adamdenes/simtrade/internal/storage"
	"github.com/adamdenes/simtrade/internal/symbols"
	"github.com/shopspring/decimal"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to the run configuration")
	lookback := flag.Int("lookback", 20, "breakout strategy lookback (candles)")
	risk := flag.String("risk", "0.25", "fraction of free cash committed per entry")
	flag.Parse()

	logger.Init()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error.Fatal(err)
	}

	store := openStore(cfg)
	defer store.Close()

	series, err := store.FetchSeries(
		context.Background(),
		cfg.Backtest.Symbol,
		cfg.Backtest.Interval,
		cfg.Backtest.StartTime,
		cfg.Backtest.EndTime,
	)
	if err != nil {
		logger.Error.Fatal(err)
	}
	logger.Info.Printf(
		"loaded %d candles of %s/%s",
		len(series), cfg.Backtest.Symbol, cfg.Backtest.Interval,
	)

	resolver := symbols.NewStaticResolver(symbols.Defaults())
	info, err := resolver.Info(cfg.Backtest.Symbol)
	if err != nil {
		logger.Error.Fatal(err)
	}

	ledger := broker.New(cfg.Cash(), cfg.Commission())
	ex, err := exchange.New(ledger, store, resolver, info, exchange.Config{
		Symbol:        cfg.Backtest.Symbol,
		Interval:      cfg.Backtest.Interval,
		Series:        series,
		HistoryLen:    cfg.History.MaxOrders,
		HistoryWindow: cfg.History.Window,
	})
	if err != nil {
		logger.Error.Fatal(err)
	}

	if cfg.History.SyntheticSeed != 0 {
		ex.SeedTradeHistory(cfg.History.SyntheticSeed)
	}

	strategy := backtest.NewBreakout(
		cfg.Backtest.Symbol,
		*lookback,
		decimal.RequireFromString(*risk),
	)
	runner := backtest.NewRunner(ex, ledger, strategy, cfg.Backtest.Symbol)

	result, err := runner.Run()
	if err != nil {
		logger.Error.Fatal(err)
	}
	result.Report()

	if cfg.Server.Addr != "" {
		server := api.NewServer(cfg.Server.Addr, ex, result)
		server.Run()
	}
}

func openStore(cfg *config.Config) storage.Storage {
	var (
		store storage.Storage
		err   error
	)
	switch cfg.Database.Backend {
	case "timescale":
		store, err = storage.NewTimescaleDB(cfg.Database.DSN)
	case "postgres":
		store, err = storage.NewPostgresDB(cfg.Database.DSN)
	}
	if err != nil {
		logger.Error.Fatal(err)
	}
	if err := store.Init(); err != nil {
		logger.Error.Fatal(err)
	}
	return store
}
