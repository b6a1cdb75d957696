package backtest

import (
	"archive/zip"
	"context"
	"testing"

	"github.com/adamdenes/simtrade/internal/broker"
	"github.com/adamdenes/simtrade/internal/exchange"
	"github.com/adamdenes/simtrade/internal/models"
	"github.com/adamdenes/simtrade/internal/storage"
	"github.com/adamdenes/simtrade/internal/symbols"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// stubStorage satisfies the store dependency; the runner never queries it.
type stubStorage struct{}

func (stubStorage) KlinesForward(context.Context, string, string, int64, int64, int) ([]*models.Kline, error) {
	return nil, nil
}

func (stubStorage) KlinesLatest(context.Context, string, string, int64, int) ([]*models.Kline, error) {
	return nil, nil
}

func (stubStorage) FetchSeries(context.Context, string, string, int64, int64) ([]*models.Kline, error) {
	return nil, nil
}
func (stubStorage) Stream(*zip.Reader) error { return nil }
func (stubStorage) Init() error              { return nil }
func (stubStorage) Close()                   {}

var _ storage.Storage = stubStorage{}

func kline(openTime int64, open, high, low, close string) *models.Kline {
	return &models.Kline{
		Symbol:   "BTCUSDT",
		Interval: "1m",
		OpenTime: openTime,
		Open:     open, High: high, Low: low, Close: close,
		Volume:    "100",
		CloseTime: openTime + 59_999,
	}
}

func newRun(t *testing.T, cash string, series []*models.Kline, s Strategy) (*Runner, *broker.Broker) {
	t.Helper()

	b := broker.New(d(cash), decimal.Zero)
	resolver := symbols.NewStaticResolver(symbols.Defaults())
	info, err := resolver.Info("BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	ex, err := exchange.New(b, stubStorage{}, resolver, info, exchange.Config{
		Symbol:   "BTCUSDT",
		Interval: "1m",
		Series:   series,
	})
	if err != nil {
		t.Fatal(err)
	}
	return NewRunner(ex, b, s, "BTCUSDT"), b
}

// scripted places one stop-buy on the first candle and then goes quiet.
type scripted struct {
	placed bool
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) OnCandle(ex *exchange.SimExchange, c *models.Candle) error {
	if s.placed {
		return nil
	}
	s.placed = true
	_, err := ex.PlaceOrder(exchange.OrderRequest{
		Symbol:    "BTCUSDT",
		Side:      models.BUY,
		Type:      models.STOP_TRIGGER,
		Quantity:  d("1"),
		StopPrice: d("11"),
	})
	return err
}

func TestRunnerFillAndMetrics(t *testing.T) {
	series := []*models.Kline{
		kline(60_000, "10", "10.5", "9.5", "10"),
		kline(120_000, "10.2", "10.8", "10", "10.5"),
		kline(180_000, "10.9", "11.5", "10.7", "11.2"),
		kline(240_000, "11.3", "11.6", "11", "11.4"),
	}
	runner, b := newRun(t, "100", series, &scripted{})

	result, err := runner.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Candles != 4 || len(result.Equity) != 4 {
		t.Errorf("candles = %d, equity points = %d", result.Candles, len(result.Equity))
	}
	if result.Fills != 1 {
		t.Errorf("fills = %d, want 1", result.Fills)
	}

	// Fill at the 11 stop on candle 3: cash 89, position 1.
	if !b.Cash().Equal(d("89")) {
		t.Errorf("cash = %v, want 89", b.Cash())
	}
	if !b.Position("BTCUSDT").Equal(d("1")) {
		t.Errorf("position = %v, want 1", b.Position("BTCUSDT"))
	}

	// Final mark: 89 cash + 1 BTC at close 11.4.
	if !result.EndEquity.Equal(d("100.4")) {
		t.Errorf("end equity = %v, want 100.4", result.EndEquity)
	}
	if !result.PnL.Equal(d("0.4")) {
		t.Errorf("PnL = %v, want 0.4", result.PnL)
	}
	if !result.ROI.Equal(d("0.4")) {
		t.Errorf("ROI = %v, want 0.4", result.ROI)
	}
}

func TestRunnerPropagatesStrategyErrors(t *testing.T) {
	series := []*models.Kline{kline(60_000, "10", "10.5", "9.5", "10")}

	// Symbol mismatch is a hard placement error, not a recoverable skip.
	bad := &scriptedBad{}
	runner, _ := newRun(t, "100", series, bad)

	if _, err := runner.Run(); err == nil {
		t.Fatal("expected strategy error to abort the run")
	}
}

type scriptedBad struct{}

func (s *scriptedBad) Name() string { return "bad" }

func (s *scriptedBad) OnCandle(ex *exchange.SimExchange, c *models.Candle) error {
	_, err := ex.PlaceOrder(exchange.OrderRequest{
		Symbol:    "ETHUSDT",
		Side:      models.BUY,
		Type:      models.STOP_TRIGGER,
		Quantity:  d("1"),
		StopPrice: d("11"),
	})
	return err
}

func TestBreakoutRoundTrip(t *testing.T) {
	series := []*models.Kline{
		kline(60_000, "10", "10", "9", "10"),
		kline(120_000, "10", "10.5", "9.5", "10"),   // window full, entry stop 10.5
		kline(180_000, "10.6", "11", "10.4", "10.9"), // entry fills at 10.5, exit stop 9.5
		kline(240_000, "10.8", "11.2", "10.6", "11"), // exit trails up to 10.4
		kline(300_000, "10.3", "10.35", "9.8", "9.9"), // exit fills at 10.4
	}
	runner, b := newRun(t, "100", series, NewBreakout("BTCUSDT", 2, d("0.5")))

	result, err := runner.Run()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if result.Fills != 2 {
		t.Errorf("fills = %d, want entry and exit", result.Fills)
	}
	if !b.Position("BTCUSDT").Equal(decimal.Zero) {
		t.Errorf("position = %v, want flat", b.Position("BTCUSDT"))
	}
	// Entered at 10.5, trailed out at 10.4: a small loss.
	if !result.PnL.IsNegative() {
		t.Errorf("PnL = %v, want a loss", result.PnL)
	}
}
