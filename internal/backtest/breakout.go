package backtest

import (
	"errors"
	"fmt"

	"github.com/adamdenes/simtrade/internal/exchange"
	"github.com/adamdenes/simtrade/internal/logger"
	"github.com/adamdenes/simtrade/internal/models"
	"github.com/shopspring/decimal"
)

// Breakout buys strength and trails out of it: a stop-buy above the
// lookback high enters, a stop-sell under the lookback low exits. The
// exit stop is re-placed as the low rises, so it only ever tightens.
type Breakout struct {
	Symbol   string
	Lookback int
	// Risk is the fraction of free quote balance committed per entry.
	Risk decimal.Decimal

	window []*models.Candle

	entryOrderID int64
	exitOrderID  int64
	exitStop     decimal.Decimal
}

func NewBreakout(symbol string, lookback int, risk decimal.Decimal) *Breakout {
	return &Breakout{
		Symbol:   symbol,
		Lookback: lookback,
		Risk:     risk,
	}
}

func (s *Breakout) Name() string {
	return fmt.Sprintf("breakout(%d)", s.Lookback)
}

func (s *Breakout) OnCandle(ex *exchange.SimExchange, c *models.Candle) error {
	s.window = append(s.window, c)
	if len(s.window) > s.Lookback {
		s.window = s.window[1:]
	}
	if len(s.window) < s.Lookback {
		return nil
	}

	position, free, err := s.balances(ex)
	if err != nil {
		return err
	}

	if position.IsPositive() {
		return s.manageExit(ex, position)
	}

	// Flat again: any tracked exit stop has filled or is stale.
	s.exitOrderID = 0
	s.exitStop = decimal.Zero
	return s.manageEntry(ex, c, free)
}

// manageEntry keeps exactly one stop-buy parked above the lookback high
// while flat.
func (s *Breakout) manageEntry(ex *exchange.SimExchange, c *models.Candle, freeQuote decimal.Decimal) error {
	if s.entryOrderID != 0 {
		return nil // entry already working
	}

	stop := s.windowHigh()
	if stop.LessThanOrEqual(c.Open) {
		return nil // breakout level already taken out this candle
	}

	qty := s.roundToStep(freeQuote.Mul(s.Risk).Div(stop), ex.ExchangeInfo())
	if !qty.IsPositive() {
		return nil
	}

	resp, err := ex.PlaceOrder(exchange.OrderRequest{
		Symbol:    s.Symbol,
		Side:      models.BUY,
		Type:      models.STOP_TRIGGER,
		Quantity:  qty,
		StopPrice: stop,
	})
	if err != nil {
		if recoverable(err) {
			logger.Debug.Printf("[%s] entry skipped: %v", s.Name(), err)
			return nil
		}
		return err
	}

	s.entryOrderID = resp.OrderID
	return nil
}

// manageExit trails a stop-sell under the position at the lookback low,
// cancel-and-replace when the low rises.
func (s *Breakout) manageExit(ex *exchange.SimExchange, position decimal.Decimal) error {
	s.entryOrderID = 0 // entry filled, stop tracking it

	stop := s.windowLow()
	if s.exitOrderID != 0 {
		if stop.LessThanOrEqual(s.exitStop) {
			return nil // never loosen the stop
		}
		ex.CancelOrder(s.exitOrderID, "")
		s.exitOrderID = 0
	}

	resp, err := ex.PlaceOrder(exchange.OrderRequest{
		Symbol:    s.Symbol,
		Side:      models.SELL,
		Type:      models.STOP_TRIGGER,
		Quantity:  position,
		StopPrice: stop,
	})
	if err != nil {
		if recoverable(err) {
			logger.Debug.Printf("[%s] exit skipped: %v", s.Name(), err)
			return nil
		}
		return err
	}

	s.exitOrderID = resp.OrderID
	s.exitStop = stop
	return nil
}

// balances reads the total base position (free plus locked, so a working
// exit stop still counts as being in the trade) and the free quote from
// the account snapshot.
func (s *Breakout) balances(ex *exchange.SimExchange) (position, freeQuote decimal.Decimal, err error) {
	balances, err := ex.Account()
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	info := ex.ExchangeInfo()
	for _, b := range balances {
		switch b.Asset {
		case info.BaseAsset:
			var free, locked decimal.Decimal
			if free, err = decimal.NewFromString(b.Free); err == nil {
				locked, err = decimal.NewFromString(b.Locked)
			}
			position = free.Add(locked)
		case info.QuoteAsset:
			freeQuote, err = decimal.NewFromString(b.Free)
		}
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("bad balance %+v: %w", b, err)
		}
	}
	return position, freeQuote, nil
}

func (s *Breakout) windowHigh() decimal.Decimal {
	high := s.window[0].High
	for _, c := range s.window[1:] {
		if c.High.GreaterThan(high) {
			high = c.High
		}
	}
	return high
}

func (s *Breakout) windowLow() decimal.Decimal {
	low := s.window[0].Low
	for _, c := range s.window[1:] {
		if c.Low.LessThan(low) {
			low = c.Low
		}
	}
	return low
}

// roundToStep truncates qty down to the symbol's lot step.
func (s *Breakout) roundToStep(qty decimal.Decimal, info models.SymbolInfo) decimal.Decimal {
	step, err := decimal.NewFromString(info.StepSize)
	if err != nil || !step.IsPositive() {
		return qty.Round(8)
	}
	return qty.Div(step).Floor().Mul(step)
}

// recoverable reports whether a placement rejection should be skipped
// rather than abort the run.
func recoverable(err error) bool {
	var trigErr *exchange.ImmediateTriggerError
	var balErr *exchange.InsufficientBalanceError
	return errors.As(err, &trigErr) || errors.As(err, &balErr)
}
