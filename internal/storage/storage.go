package storage

import (
	"archive/zip"
	"context"

	"github.com/adamdenes/simtrade/internal/models"
)

// Storage is the read-side boundary of the kline store. The simulated
// exchange only ever reads; writes (Stream) belong to the importer.
//
// end == 0 means "no upper bound" on every query.
type Storage interface {
	// KlinesForward returns rows from start onward, ascending by open
	// time, capped at limit.
	KlinesForward(
		ctx context.Context,
		symbol, interval string,
		start, end int64,
		limit int,
	) ([]*models.Kline, error)

	// KlinesLatest returns the most recent limit rows at or before end,
	// descending by open time. Callers wanting ascending output reverse.
	KlinesLatest(
		ctx context.Context,
		symbol, interval string,
		end int64,
		limit int,
	) ([]*models.Kline, error)

	// FetchSeries loads a full backtest series for one symbol+interval,
	// ascending by open time.
	FetchSeries(
		ctx context.Context,
		symbol, interval string,
		start, end int64,
	) ([]*models.Kline, error)

	// Stream bulk-loads one CSV zip archive (Binance Vision layout) into
	// the store.
	Stream(r *zip.Reader) error

	Init() error
	Close()
}
