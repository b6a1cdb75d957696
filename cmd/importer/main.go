package main

import (
	"archive/zip"
	"flag"

	"github.com/adamdenes/simtrade/internal/config"
	"github.com/adamdenes/simtrade/internal/logger"
	"github.com/adamdenes/simtrade/internal/storage"
)

// importer loads Binance-format kline CSV archives into the configured
// store, so backtests run against local data instead of the network.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to the run configuration")
	archive := flag.String("file", "", "kline CSV zip archive to import")
	flag.Parse()

	logger.Init()

	if *archive == "" {
		logger.Error.Fatal("-file is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		logger.Error.Fatal(err)
	}

	var store storage.Storage
	switch cfg.Database.Backend {
	case "timescale":
		store, err = storage.NewTimescaleDB(cfg.Database.DSN)
	case "postgres":
		store, err = storage.NewPostgresDB(cfg.Database.DSN)
	}
	if err != nil {
		logger.Error.Fatal(err)
	}
	defer store.Close()

	if err := store.Init(); err != nil {
		logger.Error.Fatal(err)
	}

	zr, err := zip.OpenReader(*archive)
	if err != nil {
		logger.Error.Fatal(err)
	}
	defer zr.Close()

	if err := store.Stream(&zr.Reader); err != nil {
		logger.Error.Fatal(err)
	}
	logger.Info.Printf("imported %s", *archive)
}
