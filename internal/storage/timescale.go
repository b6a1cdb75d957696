package storage

import (
	"archive/zip"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/adamdenes/simtrade/internal/logger"
	"github.com/adamdenes/simtrade/internal/models"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// TimescaleDB is the hypertable-backed variant of the kline store. Reads
// are identical in shape to PostgresDB; ingestion goes through pgx
// CopyFrom instead of COPY over lib/pq.
type TimescaleDB struct {
	db *sql.DB
}

func NewTimescaleDB(dsn string) (*TimescaleDB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &TimescaleDB{db: db}, nil
}

func (ts *TimescaleDB) Close() {
	ts.db.Close()
}

func (ts *TimescaleDB) Init() error {
	if _, err := ts.db.Exec("CREATE SCHEMA IF NOT EXISTS binance"); err != nil {
		return err
	}

	typeQuery := `CREATE TABLE IF NOT EXISTS binance.symbol_intervals (
        symbol_interval_id SERIAL PRIMARY KEY,
        symbol TEXT NOT NULL,
        interval TEXT NOT NULL,
        UNIQUE (symbol, interval)
    );`

	tableQuery := `CREATE TABLE IF NOT EXISTS binance.kline (
        symbol_interval_id INT REFERENCES binance.symbol_intervals(symbol_interval_id),
        open_time TIMESTAMPTZ NOT NULL,
        open NUMERIC(18, 8) NOT NULL,
        high NUMERIC(18, 8) NOT NULL,
        low NUMERIC(18, 8) NOT NULL,
        close NUMERIC(18, 8) NOT NULL,
        volume NUMERIC(18, 8) NOT NULL,
        close_time TIMESTAMPTZ NOT NULL,
        quote_volume NUMERIC(18, 8) NOT NULL,
        count INT NOT NULL,
        taker_buy_volume NUMERIC(18, 8) NOT NULL,
        taker_buy_quote_volume NUMERIC(18, 8) NOT NULL
    );`

	hypertableQuery := `
    DO $$
    BEGIN
        IF NOT EXISTS (SELECT * FROM timescaledb_information.hypertables WHERE hypertable_schema = 'binance' AND hypertable_name = 'kline') THEN
            PERFORM create_hypertable('binance.kline', 'open_time');
        END IF;
    END $$;`

	if _, err := ts.db.Exec(typeQuery); err != nil {
		return err
	}
	if _, err := ts.db.Exec(tableQuery); err != nil {
		return err
	}
	if _, err := ts.db.Exec(hypertableQuery); err != nil {
		return err
	}

	return nil
}

const tsKlineColumns = `
	si.symbol,
	si.interval,
	(EXTRACT(EPOCH FROM kd.open_time) * 1000)::bigint,
	kd.open,
	kd.high,
	kd.low,
	kd.close,
	kd.volume,
	(EXTRACT(EPOCH FROM kd.close_time) * 1000)::bigint,
	kd.quote_volume,
	kd.count,
	kd.taker_buy_volume,
	kd.taker_buy_quote_volume`

const tsKlineFrom = `
	FROM binance.kline AS kd
	JOIN binance.symbol_intervals AS si
		ON kd.symbol_interval_id = si.symbol_interval_id`

func (ts *TimescaleDB) KlinesForward(
	ctx context.Context,
	symbol, interval string,
	start, end int64,
	limit int,
) ([]*models.Kline, error) {
	query := `SELECT ` + tsKlineColumns + tsKlineFrom + `
		WHERE si.symbol = $1 AND si.interval = $2
			AND kd.open_time >= to_timestamp($3::double precision / 1000)
			AND ($4 = 0 OR kd.open_time <= to_timestamp($4::double precision / 1000))
		ORDER BY kd.open_time ASC
		LIMIT $5`

	return ts.queryKlines(ctx, query, symbol, interval, start, end, limit)
}

func (ts *TimescaleDB) KlinesLatest(
	ctx context.Context,
	symbol, interval string,
	end int64,
	limit int,
) ([]*models.Kline, error) {
	query := `SELECT ` + tsKlineColumns + tsKlineFrom + `
		WHERE si.symbol = $1 AND si.interval = $2
			AND ($3 = 0 OR kd.open_time <= to_timestamp($3::double precision / 1000))
		ORDER BY kd.open_time DESC
		LIMIT $4`

	return ts.queryKlines(ctx, query, symbol, interval, end, limit)
}

func (ts *TimescaleDB) FetchSeries(
	ctx context.Context,
	symbol, interval string,
	start, end int64,
) ([]*models.Kline, error) {
	query := `SELECT ` + tsKlineColumns + tsKlineFrom + `
		WHERE si.symbol = $1 AND si.interval = $2
			AND kd.open_time >= to_timestamp($3::double precision / 1000)
			AND ($4 = 0 OR kd.open_time <= to_timestamp($4::double precision / 1000))
		ORDER BY kd.open_time ASC`

	return ts.queryKlines(ctx, query, symbol, interval, start, end)
}

func (ts *TimescaleDB) queryKlines(
	ctx context.Context,
	query string,
	args ...any,
) ([]*models.Kline, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rows, err := ts.db.QueryContext(ctx, query, args...)
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

func (ts *TimescaleDB) Stream(r *zip.Reader) error {
	startTime := time.Now()

	conn, err := ts.db.Conn(context.Background())
	if err != nil {
		return err
	}
	defer conn.Close()

	zipSlice := strings.Split(r.File[0].Name, "-") // name and interval
	zippedFile, err := r.File[0].Open()
	if err != nil {
		return fmt.Errorf("error opening ZIP entry: %v", err)
	}
	defer zippedFile.Close()

	csvReader := csv.NewReader(zippedFile)

	err = conn.Raw(func(driverConn any) error {
		conn := driverConn.(*stdlib.Conn).Conn()

		var symbolIntervalID int64
		err := conn.QueryRow(
			context.Background(),
			`
            INSERT INTO binance.symbol_intervals (symbol, interval)
            VALUES ($1, $2)
            ON CONFLICT (symbol, interval)
            DO UPDATE SET
                symbol = EXCLUDED.symbol,
                interval = EXCLUDED.interval
            RETURNING symbol_interval_id
            `,
			zipSlice[0],
			zipSlice[1],
		).
			Scan(&symbolIntervalID)
		if err != nil {
			return fmt.Errorf("error QueryRow: %v", err)
		}

		cs := &csvCopySource{
			symbolIntervalID: symbolIntervalID,
			reader:           csvReader,
		}

		_, err = conn.CopyFrom(context.Background(),
			pgx.Identifier{"binance", "kline"},
			[]string{
				"symbol_interval_id",
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
			},
			cs,
		)
		if err != nil {
			return fmt.Errorf("error CopyFrom: %v", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	logger.Info.Printf("Finished streaming data to Timescale, it took %v\n", time.Since(startTime))
	return nil
}

// csvCopySource adapts the CSV rows to the pgx CopyFromSource interface.
type csvCopySource struct {
	symbolIntervalID int64
	reader           *csv.Reader
	lastError        error
	lastRecord       []string
	rows             int64
}

func (cs *csvCopySource) Next() bool {
	record, err := cs.reader.Read()
	if err != nil {
		if err != io.EOF {
			cs.lastError = err
		}
		return false
	}
	cs.lastRecord = record
	cs.rows++
	return true
}

func (cs *csvCopySource) Values() ([]interface{}, error) {
	record := cs.lastRecord
	if record == nil {
		return nil, fmt.Errorf("no current record")
	}
	if len(record) < 11 {
		return nil, fmt.Errorf("short CSV record: %d fields", len(record))
	}

	var (
		symbolIntervalID    = pgtype.Int8{}
		openTime            = pgtype.Timestamptz{}
		closeTime           = pgtype.Timestamptz{}
		open                = pgtype.Numeric{}
		high                = pgtype.Numeric{}
		low                 = pgtype.Numeric{}
		cloze               = pgtype.Numeric{}
		volume              = pgtype.Numeric{}
		quoteVolume         = pgtype.Numeric{}
		takerBuyVolume      = pgtype.Numeric{}
		takerBuyQuoteVolume = pgtype.Numeric{}
		count               = pgtype.Int4{}
	)

	ot, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return nil, err
	}
	ct, err := strconv.ParseInt(record[6], 10, 64)
	if err != nil {
		return nil, err
	}

	if err := symbolIntervalID.Scan(cs.symbolIntervalID); err != nil {
		return nil, err
	}
	if err := openTime.Scan(time.UnixMilli(ot)); err != nil {
		return nil, err
	}
	if err := closeTime.Scan(time.UnixMilli(ct)); err != nil {
		return nil, err
	}
	if err := open.Scan(record[1]); err != nil {
		return nil, err
	}
	if err := high.Scan(record[2]); err != nil {
		return nil, err
	}
	if err := low.Scan(record[3]); err != nil {
		return nil, err
	}
	if err := cloze.Scan(record[4]); err != nil {
		return nil, err
	}
	if err := volume.Scan(record[5]); err != nil {
		return nil, err
	}
	if err := quoteVolume.Scan(record[7]); err != nil {
		return nil, err
	}
	if err := count.Scan(record[8]); err != nil {
		return nil, err
	}
	if err := takerBuyVolume.Scan(record[9]); err != nil {
		return nil, err
	}
	if err := takerBuyQuoteVolume.Scan(record[10]); err != nil {
		return nil, err
	}

	row := []interface{}{
		symbolIntervalID,
		openTime,
		open,
		high,
		low,
		cloze,
		volume,
		closeTime,
		quoteVolume,
		count,
		takerBuyVolume,
		takerBuyQuoteVolume,
	}

	return row, nil
}

func (cs *csvCopySource) Err() error {
	return cs.lastError
}
