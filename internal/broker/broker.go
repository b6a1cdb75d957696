package broker

import (
	"github.com/adamdenes/simtrade/internal/logger"
	"github.com/shopspring/decimal"
)

// Broker is the cash-and-positions ledger behind the simulated exchange.
// It knows nothing about orders, reservations, or time: callers are
// expected to have validated affordability before applying a fill, so a
// false return here means the caller's accounting is off.
type Broker struct {
	cash       decimal.Decimal
	positions  map[string]decimal.Decimal
	commission decimal.Decimal
}

// New creates a ledger with the given starting cash and commission rate.
// Commission is a fraction in [0,1), e.g. 0.001 for 10 bps.
func New(cash, commission decimal.Decimal) *Broker {
	return &Broker{
		cash:       cash,
		positions:  make(map[string]decimal.Decimal),
		commission: commission,
	}
}

// ApplyBuy debits cash by qty*price plus commission and credits the
// position. Returns false and changes nothing when cash cannot cover the
// cost.
func (b *Broker) ApplyBuy(symbol string, qty, price decimal.Decimal) bool {
	cost := qty.Mul(price)
	fee := cost.Mul(b.commission)
	total := cost.Add(fee)

	if b.cash.LessThan(total) {
		logger.Warning.Printf(
			"buy rejected: %s qty=%s price=%s needs %s, cash %s",
			symbol, qty, price, total, b.cash,
		)
		return false
	}

	b.cash = b.cash.Sub(total)
	b.positions[symbol] = b.positions[symbol].Add(qty)
	return true
}

// ApplySell credits cash with qty*price net of commission and debits the
// position. Returns false and changes nothing when the position cannot
// cover the quantity.
func (b *Broker) ApplySell(symbol string, qty, price decimal.Decimal) bool {
	if b.positions[symbol].LessThan(qty) {
		logger.Warning.Printf(
			"sell rejected: %s qty=%s, position %s",
			symbol, qty, b.positions[symbol],
		)
		return false
	}

	proceeds := qty.Mul(price)
	fee := proceeds.Mul(b.commission)

	b.cash = b.cash.Add(proceeds.Sub(fee))
	b.positions[symbol] = b.positions[symbol].Sub(qty)
	return true
}

// FillBuy applies an exchange fill without commission. The exchange
// reserves exactly qty*price at placement, so only a fee-free path is
// guaranteed to be covered by the reservation.
func (b *Broker) FillBuy(symbol string, qty, price decimal.Decimal) bool {
	cost := qty.Mul(price)
	if b.cash.LessThan(cost) {
		logger.Warning.Printf(
			"fill buy rejected: %s qty=%s price=%s needs %s, cash %s",
			symbol, qty, price, cost, b.cash,
		)
		return false
	}

	b.cash = b.cash.Sub(cost)
	b.positions[symbol] = b.positions[symbol].Add(qty)
	return true
}

// FillSell applies an exchange fill without commission.
func (b *Broker) FillSell(symbol string, qty, price decimal.Decimal) bool {
	if b.positions[symbol].LessThan(qty) {
		logger.Warning.Printf(
			"fill sell rejected: %s qty=%s, position %s",
			symbol, qty, b.positions[symbol],
		)
		return false
	}

	b.cash = b.cash.Add(qty.Mul(price))
	b.positions[symbol] = b.positions[symbol].Sub(qty)
	return true
}

// PortfolioValue marks every positive position against the price map and
// adds cash. Symbols without a price contribute nothing.
func (b *Broker) PortfolioValue(prices map[string]decimal.Decimal) decimal.Decimal {
	value := b.cash
	for symbol, qty := range b.positions {
		if !qty.IsPositive() {
			continue
		}
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		value = value.Add(qty.Mul(price))
	}
	return value
}

// Cash returns the current free-plus-locked cash balance.
func (b *Broker) Cash() decimal.Decimal {
	return b.cash
}

// Position returns the current quantity held for symbol.
func (b *Broker) Position(symbol string) decimal.Decimal {
	return b.positions[symbol]
}
