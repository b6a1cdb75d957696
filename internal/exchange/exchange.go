package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adamdenes/simtrade/internal/broker"
	"github.com/adamdenes/simtrade/internal/logger"
	"github.com/adamdenes/simtrade/internal/models"
	"github.com/adamdenes/simtrade/internal/storage"
	"github.com/adamdenes/simtrade/internal/symbols"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultKlineLimit = 500

// Cursor is the exchange's notion of "now": a position in the historical
// series plus the open time resolved once when the cursor is set.
type Cursor struct {
	Index    int
	OpenTime int64
}

// Config bundles the construction parameters of a simulated exchange.
type Config struct {
	Symbol   string
	Interval string
	// Series is the immutable, ascending-by-time backtest series.
	Series []*models.Kline
	// HistoryLen and HistoryWindow bound the settled-order history.
	HistoryLen    int
	HistoryWindow time.Duration
}

// SimExchange emulates one trading pair's spot stop-order lifecycle
// against a historical candle series, backed by a Broker ledger.
//
// One instance belongs to exactly one backtest run. Nothing here locks:
// the whole machine is caller-driven and single-threaded.
type SimExchange struct {
	broker   *broker.Broker
	store    storage.Storage
	resolver symbols.Resolver
	info     models.SymbolInfo

	symbol   string
	interval string
	series   []*models.Candle

	cursor  Cursor
	pending []*models.Order
	locked  map[string]decimal.Decimal

	nextOrderID int64

	orderHistory  *history
	symbolHistory map[string]*history
	historyLen    int
	historyWindow time.Duration
}

// New parses the configured series up front (any malformed row is fatal)
// and starts with the cursor on the first candle.
func New(
	b *broker.Broker,
	store storage.Storage,
	resolver symbols.Resolver,
	info models.SymbolInfo,
	cfg Config,
) (*SimExchange, error) {
	if len(cfg.Series) == 0 {
		return nil, fmt.Errorf("empty backtest series for %s/%s", cfg.Symbol, cfg.Interval)
	}

	series := make([]*models.Candle, 0, len(cfg.Series))
	var prev int64
	for _, k := range cfg.Series {
		c, err := k.ParseCandle()
		if err != nil {
			return nil, err
		}
		if c.OpenTime <= prev {
			return nil, fmt.Errorf(
				"series not ascending: open_time %d after %d", c.OpenTime, prev,
			)
		}
		prev = c.OpenTime
		series = append(series, c)
	}

	historyLen := cfg.HistoryLen
	if historyLen <= 0 {
		historyLen = 1000
	}
	historyWindow := cfg.HistoryWindow
	if historyWindow <= 0 {
		historyWindow = 24 * time.Hour
	}

	return &SimExchange{
		broker:        b,
		store:         store,
		resolver:      resolver,
		info:          info,
		symbol:        cfg.Symbol,
		interval:      cfg.Interval,
		series:        series,
		cursor:        Cursor{Index: 0, OpenTime: series[0].OpenTime},
		locked:        make(map[string]decimal.Decimal),
		nextOrderID:   1,
		orderHistory:  newHistory(historyLen, historyWindow),
		symbolHistory: make(map[string]*history),
		historyLen:    historyLen,
		historyWindow: historyWindow,
	}, nil
}

// SetCursor moves "now" to series index i. Only the harness advances the
// cursor; the exchange never moves it on its own.
func (ex *SimExchange) SetCursor(i int) error {
	if i < 0 || i >= len(ex.series) {
		return fmt.Errorf("cursor %d out of range [0,%d)", i, len(ex.series))
	}
	ex.cursor = Cursor{Index: i, OpenTime: ex.series[i].OpenTime}
	return nil
}

// Cursor returns the current cursor.
func (ex *SimExchange) Cursor() Cursor {
	return ex.cursor
}

// SeriesLen returns the number of candles in the backtest series.
func (ex *SimExchange) SeriesLen() int {
	return len(ex.series)
}

// CurrentCandle returns the candle under the cursor.
func (ex *SimExchange) CurrentCandle() *models.Candle {
	return ex.series[ex.cursor.Index]
}

// OrderRequest is a new-order submission.
type OrderRequest struct {
	Symbol        string
	Side          models.OrderSide
	Type          models.OrderType
	Quantity      decimal.Decimal
	StopPrice     decimal.Decimal
	ClientOrderID string
}

// PlaceOrder validates, reserves, and admits a stop-trigger order in NEW
// status. This is the only place reservations are created.
func (ex *SimExchange) PlaceOrder(req OrderRequest) (*models.OrderResponse, error) {
	if req.Type != models.STOP_TRIGGER {
		return nil, &UnsupportedOrderTypeError{Type: req.Type}
	}
	if req.Symbol != ex.symbol {
		return nil, fmt.Errorf(
			"exchange simulates %s only, got order for %s", ex.symbol, req.Symbol,
		)
	}
	if req.Side != models.BUY && req.Side != models.SELL {
		return nil, fmt.Errorf("invalid order side %q", req.Side)
	}
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("order quantity must be positive, got %s", req.Quantity)
	}
	if !req.StopPrice.IsPositive() {
		return nil, fmt.Errorf("stop price must be positive, got %s", req.StopPrice)
	}

	open := ex.CurrentCandle().Open
	if immediateTrigger(req.Side, req.StopPrice, open) {
		return nil, &ImmediateTriggerError{
			Symbol:    req.Symbol,
			Side:      req.Side,
			StopPrice: req.StopPrice,
			OpenPrice: open,
		}
	}

	base, quote, err := ex.resolver.Resolve(req.Symbol)
	if err != nil {
		return nil, err
	}

	asset, needed := ex.reservationFor(req.Side, req.Quantity, req.StopPrice, base, quote)
	free := ex.free(asset)
	if free.LessThan(needed) {
		return nil, &InsufficientBalanceError{Asset: asset, Needed: needed, Free: free}
	}

	ex.locked[asset] = ex.locked[asset].Add(needed)

	clientOrderID := req.ClientOrderID
	if clientOrderID == "" {
		clientOrderID = uuid.NewString()
	}

	order := &models.Order{
		ID:            ex.nextOrderID,
		ClientOrderID: clientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		StopPrice:     req.StopPrice,
		Status:        models.NEW,
		CreatedAt:     ex.cursor.OpenTime,
		UpdatedAt:     ex.cursor.OpenTime,
	}
	ex.nextOrderID++
	ex.pending = append(ex.pending, order)

	logger.Debug.Printf(
		"[PlaceOrder] -> id=%d %s %s qty=%s stop=%s locked %s %s",
		order.ID, order.Side, order.Symbol, order.Quantity, order.StopPrice,
		needed, asset,
	)
	return order.Response(), nil
}

// ProcessOpenOrders evaluates every pending order against the candle under
// the cursor, in insertion (FIFO) order. It never runs implicitly: the
// harness decides when a candle is (re-)evaluated.
func (ex *SimExchange) ProcessOpenOrders() {
	candle := ex.CurrentCandle()

	// Filter-and-rebuild instead of deleting mid-iteration.
	remaining := ex.pending[:0]
	for _, order := range ex.pending {
		if !stopTriggered(order.Side, order.StopPrice, candle) {
			remaining = append(remaining, order)
			continue
		}
		ex.fill(order)
	}
	ex.pending = remaining
}

func (ex *SimExchange) fill(order *models.Order) {
	// Fills settle at exactly the stop price: no slippage, no fee. The
	// reservation made at placement covers this by construction.
	var ok bool
	switch order.Side {
	case models.BUY:
		ok = ex.broker.FillBuy(order.Symbol, order.Quantity, order.StopPrice)
	case models.SELL:
		ok = ex.broker.FillSell(order.Symbol, order.Quantity, order.StopPrice)
	}
	if !ok {
		// Reservations guarantee affordability; reaching this means the
		// exchange's own accounting broke.
		panic(fmt.Sprintf(
			"reservation accounting violated for order %d (%s %s qty=%s stop=%s)",
			order.ID, order.Side, order.Symbol, order.Quantity, order.StopPrice,
		))
	}

	ex.release(order)
	order.Status = models.FILLED
	order.UpdatedAt = ex.cursor.OpenTime
	ex.record(order)

	logger.Debug.Printf(
		"[fill] -> id=%d %s %s qty=%s at %s",
		order.ID, order.Side, order.Symbol, order.Quantity, order.StopPrice,
	)
}

// CancelOrder is idempotent: unknown ids and already-terminal orders come
// back as a synthetic CANCELED record instead of an error, so a strategy
// acting on a stale snapshot can cancel safely twice.
func (ex *SimExchange) CancelOrder(orderID int64, clientOrderID string) *models.OrderResponse {
	for i, order := range ex.pending {
		if order.ID != orderID && (clientOrderID == "" || order.ClientOrderID != clientOrderID) {
			continue
		}

		ex.release(order)
		order.Status = models.CANCELED
		order.UpdatedAt = ex.cursor.OpenTime
		ex.pending = append(ex.pending[:i], ex.pending[i+1:]...)

		logger.Debug.Printf("[CancelOrder] -> id=%d canceled", order.ID)
		return order.Response()
	}

	// Unknown or already terminal: synthesize the ack the caller expects.
	synthetic := &models.Order{
		ID:            orderID,
		ClientOrderID: clientOrderID,
		Symbol:        ex.symbol,
		Type:          models.STOP_TRIGGER,
		Status:        models.CANCELED,
		UpdatedAt:     ex.cursor.OpenTime,
	}
	return synthetic.Response()
}

// Account snapshots free/locked balances for the configured pair's base
// and quote assets.
func (ex *SimExchange) Account() ([]models.Balance, error) {
	base, quote, err := ex.resolver.Resolve(ex.symbol)
	if err != nil {
		return nil, err
	}

	return []models.Balance{
		{
			Asset:  base,
			Free:   ex.free(base).String(),
			Locked: ex.locked[base].String(),
		},
		{
			Asset:  quote,
			Free:   ex.free(quote).String(),
			Locked: ex.locked[quote].String(),
		},
	}, nil
}

// OpenOrders lists pending orders, optionally filtered by symbol.
func (ex *SimExchange) OpenOrders(symbol string) []*models.OrderResponse {
	out := make([]*models.OrderResponse, 0, len(ex.pending))
	for _, order := range ex.pending {
		if symbol != "" && order.Symbol != symbol {
			continue
		}
		out = append(out, order.Response())
	}
	return out
}

// HistoricalOrders pages through settled orders: entries with id >= fromID,
// oldest first, capped at limit (default 500). Symbol selects the
// per-symbol sequence; empty means the global one.
func (ex *SimExchange) HistoricalOrders(symbol string, fromID int64, limit int) []*models.OrderResponse {
	if limit <= 0 {
		limit = defaultKlineLimit
	}

	h := ex.orderHistory
	if symbol != "" {
		sh, ok := ex.symbolHistory[symbol]
		if !ok {
			return nil
		}
		h = sh
	}

	orders := h.page(fromID, limit)
	out := make([]*models.OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Response())
	}
	return out
}

// LatestPrice reports the close of the candle under the cursor.
func (ex *SimExchange) LatestPrice() models.PriceTicker {
	return models.PriceTicker{
		Symbol: ex.symbol,
		Price:  ex.CurrentCandle().Close.String(),
	}
}

// ExchangeInfo returns the static trading-rule metadata fixture.
func (ex *SimExchange) ExchangeInfo() models.SymbolInfo {
	return ex.info
}

// Klines is a strict passthrough to the kline store. Parameters arrive as
// transport strings and are validated loudly; results are always ascending
// by open time and never resampled or transformed.
func (ex *SimExchange) Klines(ctx context.Context, q models.KlineQuery) ([]*models.Kline, error) {
	if q.Symbol == "" {
		return nil, &InvalidQueryError{Reason: "missing symbol"}
	}
	if q.Interval == "" {
		return nil, &InvalidQueryError{Reason: "missing interval"}
	}

	var (
		start, end       int64
		hasStart, hasEnd bool
		err              error
	)
	if q.StartTime != "" {
		start, err = strconv.ParseInt(q.StartTime, 10, 64)
		if err != nil {
			return nil, &InvalidQueryError{Reason: fmt.Sprintf("bad startTime %q", q.StartTime)}
		}
		hasStart = true
	}
	if q.EndTime != "" {
		end, err = strconv.ParseInt(q.EndTime, 10, 64)
		if err != nil {
			return nil, &InvalidQueryError{Reason: fmt.Sprintf("bad endTime %q", q.EndTime)}
		}
		hasEnd = true
	}
	// Presence, not the zero sentinel, decides whether the bound applies.
	if hasStart && hasEnd && start > end {
		return nil, &InvalidQueryError{
			Reason: fmt.Sprintf("startTime %d after endTime %d", start, end),
		}
	}

	limit := defaultKlineLimit
	if q.Limit != "" {
		limit, err = strconv.Atoi(q.Limit)
		if err != nil {
			return nil, &InvalidQueryError{Reason: fmt.Sprintf("bad limit %q", q.Limit)}
		}
		if limit <= 0 {
			// Explicitly asked for nothing; not an error, not a default.
			return []*models.Kline{}, nil
		}
	}

	if !hasStart {
		rows, err := ex.store.KlinesLatest(ctx, q.Symbol, q.Interval, end, limit)
		if err != nil {
			return nil, err
		}
		// Store returns newest first; callers get ascending.
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
		return rows, nil
	}

	return ex.store.KlinesForward(ctx, q.Symbol, q.Interval, start, end, limit)
}

// free is total minus locked for one asset. The quote asset totals the
// broker's cash; the base asset totals the pair position.
func (ex *SimExchange) free(asset string) decimal.Decimal {
	return ex.total(asset).Sub(ex.locked[asset])
}

func (ex *SimExchange) total(asset string) decimal.Decimal {
	base, quote, err := ex.resolver.Resolve(ex.symbol)
	if err != nil {
		return decimal.Zero
	}
	switch asset {
	case quote:
		return ex.broker.Cash()
	case base:
		return ex.broker.Position(ex.symbol)
	default:
		return decimal.Zero
	}
}

func (ex *SimExchange) reservationFor(
	side models.OrderSide,
	qty, stopPrice decimal.Decimal,
	base, quote string,
) (asset string, needed decimal.Decimal) {
	if side == models.BUY {
		return quote, qty.Mul(stopPrice)
	}
	return base, qty
}

// release gives back an order's reservation. Called exactly once, on the
// transition out of NEW.
func (ex *SimExchange) release(order *models.Order) {
	base, quote, err := ex.resolver.Resolve(order.Symbol)
	if err != nil {
		// Placement resolved this symbol already; failing now is a bug.
		panic(fmt.Sprintf("symbol %s no longer resolves: %v", order.Symbol, err))
	}
	asset, amount := ex.reservationFor(order.Side, order.Quantity, order.StopPrice, base, quote)
	ex.locked[asset] = ex.locked[asset].Sub(amount)
}

func (ex *SimExchange) record(order *models.Order) {
	if err := ex.orderHistory.insert(order); err != nil {
		logger.Error.Printf("order history: %v", err)
		return
	}
	sh, ok := ex.symbolHistory[order.Symbol]
	if !ok {
		sh = newHistory(ex.historyLen, ex.historyWindow)
		ex.symbolHistory[order.Symbol] = sh
	}
	if err := sh.insert(order); err != nil {
		logger.Error.Printf("order history (%s): %v", order.Symbol, err)
	}
}

func immediateTrigger(side models.OrderSide, stop, open decimal.Decimal) bool {
	if side == models.BUY {
		return stop.LessThanOrEqual(open)
	}
	return stop.GreaterThanOrEqual(open)
}

func stopTriggered(side models.OrderSide, stop decimal.Decimal, c *models.Candle) bool {
	if side == models.BUY {
		return c.High.GreaterThanOrEqual(stop)
	}
	return c.Low.LessThanOrEqual(stop)
}
