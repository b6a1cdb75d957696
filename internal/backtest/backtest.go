package backtest

import (
	"fmt"
	"math"

	"github.com/adamdenes/simtrade/internal/broker"
	"github.com/adamdenes/simtrade/internal/exchange"
	"github.com/adamdenes/simtrade/internal/logger"
	"github.com/adamdenes/simtrade/internal/models"
	"github.com/shopspring/decimal"
)

// Strategy is the decision seam of a run. OnCandle sees the candle under
// the cursor after pending orders were evaluated against it, and talks to
// the exchange the way a live strategy would: place and cancel orders,
// query balances and history.
type Strategy interface {
	Name() string
	OnCandle(ex *exchange.SimExchange, c *models.Candle) error
}

// Result summarizes a finished run.
type Result struct {
	Strategy  string
	Symbol    string
	Candles   int
	Fills     int
	StartCash decimal.Decimal
	EndEquity decimal.Decimal
	PnL       decimal.Decimal
	ROI       decimal.Decimal // percent
	// Equity holds one mark-to-market snapshot per candle close.
	Equity []decimal.Decimal
}

// Runner walks the exchange cursor over the whole series, one candle at a
// time, and hands each candle to the strategy.
type Runner struct {
	ex       *exchange.SimExchange
	broker   *broker.Broker
	strategy Strategy
	symbol   string
}

func NewRunner(
	ex *exchange.SimExchange,
	b *broker.Broker,
	strategy Strategy,
	symbol string,
) *Runner {
	return &Runner{
		ex:       ex,
		broker:   b,
		strategy: strategy,
		symbol:   symbol,
	}
}

// Run replays the series. Per candle: advance the cursor, evaluate the
// pending orders against it, then let the strategy react. Equity is marked
// against the candle close.
func (r *Runner) Run() (*Result, error) {
	startCash := r.broker.Cash()
	result := &Result{
		Strategy:  r.strategy.Name(),
		Symbol:    r.symbol,
		Candles:   r.ex.SeriesLen(),
		StartCash: startCash,
		Equity:    make([]decimal.Decimal, 0, r.ex.SeriesLen()),
	}

	// Retention bounds the history, so this undercounts very long runs.
	fillsBefore := len(r.ex.HistoricalOrders(r.symbol, 0, math.MaxInt32))

	for i := 0; i < r.ex.SeriesLen(); i++ {
		if err := r.ex.SetCursor(i); err != nil {
			return nil, err
		}
		r.ex.ProcessOpenOrders()

		candle := r.ex.CurrentCandle()
		if err := r.strategy.OnCandle(r.ex, candle); err != nil {
			return nil, fmt.Errorf(
				"strategy %s at candle %d (open_time %d): %w",
				r.strategy.Name(), i, candle.OpenTime, err,
			)
		}

		result.Equity = append(result.Equity, r.broker.PortfolioValue(
			map[string]decimal.Decimal{r.symbol: candle.Close},
		))
	}

	result.Fills = len(r.ex.HistoricalOrders(r.symbol, 0, math.MaxInt32)) - fillsBefore
	result.EndEquity = result.Equity[len(result.Equity)-1]
	result.PnL = result.EndEquity.Sub(startCash)
	if startCash.IsPositive() {
		result.ROI = result.PnL.Div(startCash).Mul(decimal.NewFromInt(100))
	}

	return result, nil
}

// Report logs the run summary.
func (r *Result) Report() {
	logger.Info.Printf(
		"[%s] %s: %d candles, %d fills, start %s, end %s, PnL %s, ROI %s%%",
		r.Strategy, r.Symbol, r.Candles, r.Fills,
		r.StartCash, r.EndEquity, r.PnL, r.ROI.Round(4),
	)
}
