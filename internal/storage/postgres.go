package storage

import (
	"archive/zip"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/adamdenes/simtrade/internal/logger"
	"github.com/adamdenes/simtrade/internal/models"
	"github.com/lib/pq"
)

type PostgresDB struct {
	db *sql.DB
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PostgresDB{db: db}, nil
}

func (p *PostgresDB) Init() error {
	return p.createKlineTable()
}

func (p *PostgresDB) Close() {
	p.db.Close()
}

func (p *PostgresDB) createKlineTable() error {
	if _, err := p.db.Exec("CREATE SCHEMA IF NOT EXISTS binance"); err != nil {
		return err
	}

	query := `CREATE TABLE IF NOT EXISTS binance.kline_data (
		id serial PRIMARY KEY,
		symbol VARCHAR(10) NOT NULL,
		interval VARCHAR(3) NOT NULL,
		open_time bigint NOT NULL,
		open NUMERIC(18, 8) NOT NULL,
		high NUMERIC(18, 8) NOT NULL,
		low NUMERIC(18, 8) NOT NULL,
		close NUMERIC(18, 8) NOT NULL,
		volume NUMERIC(18, 8) NOT NULL,
		close_time bigint NOT NULL,
		quote_volume NUMERIC(18, 8) NOT NULL,
		count INT NOT NULL,
		taker_buy_volume NUMERIC(18, 8) NOT NULL,
		taker_buy_quote_volume NUMERIC(18, 8) NOT NULL,
		UNIQUE (symbol, interval, open_time)
	);`

	_, err := p.db.Exec(query)
	return err
}

const klineColumns = `
	symbol,
	interval,
	open_time,
	open,
	high,
	low,
	close,
	volume,
	close_time,
	quote_volume,
	count,
	taker_buy_volume,
	taker_buy_quote_volume`

func (p *PostgresDB) KlinesForward(
	ctx context.Context,
	symbol, interval string,
	start, end int64,
	limit int,
) ([]*models.Kline, error) {
	query := `SELECT ` + klineColumns + `
		FROM binance.kline_data
		WHERE symbol = $1 AND interval = $2
			AND open_time >= $3
			AND ($4 = 0 OR open_time <= $4)
		ORDER BY open_time ASC
		LIMIT $5`

	return p.queryKlines(ctx, query, symbol, interval, start, end, limit)
}

func (p *PostgresDB) KlinesLatest(
	ctx context.Context,
	symbol, interval string,
	end int64,
	limit int,
) ([]*models.Kline, error) {
	query := `SELECT ` + klineColumns + `
		FROM binance.kline_data
		WHERE symbol = $1 AND interval = $2
			AND ($3 = 0 OR open_time <= $3)
		ORDER BY open_time DESC
		LIMIT $4`

	return p.queryKlines(ctx, query, symbol, interval, end, limit)
}

func (p *PostgresDB) FetchSeries(
	ctx context.Context,
	symbol, interval string,
	start, end int64,
) ([]*models.Kline, error) {
	startedAt := time.Now()

	query := `SELECT ` + klineColumns + `
		FROM binance.kline_data
		WHERE symbol = $1 AND interval = $2
			AND open_time >= $3
			AND ($4 = 0 OR open_time <= $4)
		ORDER BY open_time ASC`

	klines, err := p.queryKlines(ctx, query, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}

	logger.Info.Printf(
		"Fetched %d rows of %s/%s in %v\n",
		len(klines), symbol, interval, time.Since(startedAt),
	)
	return klines, nil
}

func (p *PostgresDB) queryKlines(
	ctx context.Context,
	query string,
	args ...any,
) ([]*models.Kline, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var klines []*models.Kline
	for rows.Next() {
		var d models.Kline
		if err := rows.Scan(
			&d.Symbol, &d.Interval, &d.OpenTime,
			&d.Open, &d.High, &d.Low, &d.Close, &d.Volume,
			&d.CloseTime, &d.QuoteAssetVolume, &d.NumberOfTrades,
			&d.TakerBuyBaseAssetVol, &d.TakerBuyQuoteAssetVol,
		); err != nil {
			return nil, err
		}
		klines = append(klines, &d)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return klines, nil
}

// Stream bulk-loads one Binance Vision CSV zip archive. The archive name
// encodes symbol and interval ("BTCUSDT-1m-...").
func (p *PostgresDB) Stream(r *zip.Reader) error {
	startTime := time.Now()

	tx, err := p.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	zipSlice := strings.Split(r.File[0].Name, "-") // name and interval
	zippedFile, err := r.File[0].Open()
	if err != nil {
		return fmt.Errorf("error opening ZIP entry: %v", err)
	}
	defer zippedFile.Close()

	stmt, err := tx.Prepare(
		pq.CopyInSchema(
			"binance",
			"kline_data",
			"symbol",
			"interval",
			"open_time",
			"open",
			"high",
			"low",
			"close",
			"volume",
			"close_time",
			"quote_volume",
			"count",
			"taker_buy_volume",
			"taker_buy_quote_volume",
		),
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	csvReader := csv.NewReader(zippedFile)
	for {
		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading CSV record: %v", err)
		}

		_, err = stmt.Exec(
			zipSlice[0],
			zipSlice[1],
			row[0],
			row[1],
			row[2],
			row[3],
			row[4],
			row[5],
			row[6],
			row[7],
			row[8],
			row[9],
			row[10],
		)
		if err != nil {
			return fmt.Errorf("error executing SQL query: %v", err)
		}
	}

	if _, err = stmt.Exec(); err != nil {
		return fmt.Errorf("error executing COPY command: %v", err)
	}

	if err = tx.Commit(); err != nil {
		return err
	}

	logger.Info.Printf("Finished streaming data to Postgres, it took %v\n", time.Since(startTime))
	return nil
}
