package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type OrderSide string

const (
	BUY  OrderSide = "BUY"
	SELL OrderSide = "SELL"
)

type OrderType string

// The simulator only understands stop-triggered orders; everything else is
// rejected at placement.
const STOP_TRIGGER OrderType = "STOP_TRIGGER"

type OrderStatus string

const (
	NEW      OrderStatus = "NEW"
	FILLED   OrderStatus = "FILLED"
	CANCELED OrderStatus = "CANCELED"
)

// Order is the exchange-side view of a stop-trigger order. Timestamps are
// epoch milliseconds taken from the candle under the cursor at the time of
// the transition.
type Order struct {
	ID            int64
	ClientOrderID string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Quantity      decimal.Decimal
	StopPrice     decimal.Decimal
	Status        OrderStatus
	CreatedAt     int64
	UpdatedAt     int64
}

// Terminal reports whether the order can no longer transition.
func (o *Order) Terminal() bool {
	return o.Status == FILLED || o.Status == CANCELED
}

// OrderResponse is the transport form exposed to the strategy layer:
// numeric fields as decimal strings, identifiers as integers, timestamps as
// epoch milliseconds.
type OrderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	StopPrice     string `json:"stopPrice"`
	OrigQty       string `json:"origQty"`
	Status        string `json:"status"`
	Type          string `json:"type"`
	Side          string `json:"side"`
	Time          int64  `json:"time"`
	UpdateTime    int64  `json:"updateTime"`
}

// Response formats the order for transport.
func (o *Order) Response() *OrderResponse {
	return &OrderResponse{
		Symbol:        o.Symbol,
		OrderID:       o.ID,
		ClientOrderID: o.ClientOrderID,
		StopPrice:     o.StopPrice.String(),
		OrigQty:       o.Quantity.String(),
		Status:        string(o.Status),
		Type:          string(o.Type),
		Side:          string(o.Side),
		Time:          o.CreatedAt,
		UpdateTime:    o.UpdatedAt,
	}
}

// Balance is one asset row of the account snapshot.
type Balance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// SymbolInfo carries the static trading-rule metadata a strategy queries
// before sizing orders.
type SymbolInfo struct {
	Symbol      string `json:"symbol"`
	BaseAsset   string `json:"baseAsset"`
	QuoteAsset  string `json:"quoteAsset"`
	StepSize    string `json:"stepSize"`
	TickSize    string `json:"tickSize"`
	MinNotional string `json:"minNotional"`
}

// PriceTicker is the latest-price response shape.
type PriceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// Kline is one OHLCV row as stored and transported. Prices and volumes stay
// strings end to end; only the exchange parses them, and loudly.
type Kline struct {
	Symbol                string `json:"symbol"`
	Interval              string `json:"interval"`
	OpenTime              int64  `json:"open_time"`
	Open                  string `json:"open"`
	High                  string `json:"high"`
	Low                   string `json:"low"`
	Close                 string `json:"close"`
	Volume                string `json:"volume"`
	CloseTime             int64  `json:"close_time"`
	QuoteAssetVolume      string `json:"quote_volume"`
	NumberOfTrades        int    `json:"count"`
	TakerBuyBaseAssetVol  string `json:"taker_buy_volume"`
	TakerBuyQuoteAssetVol string `json:"taker_buy_quote_volume"`
}

// Candle is the decimal-parsed form the exchange evaluates orders against.
type Candle struct {
	OpenTime  int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	CloseTime int64
}

// ParseCandle converts the string-typed row into decimals. Any malformed
// field is an error; corrupt price data must never be silently zeroed.
func (k *Kline) ParseCandle() (*Candle, error) {
	c := &Candle{OpenTime: k.OpenTime, CloseTime: k.CloseTime}

	fields := []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"open", k.Open, &c.Open},
		{"high", k.High, &c.High},
		{"low", k.Low, &c.Low},
		{"close", k.Close, &c.Close},
		{"volume", k.Volume, &c.Volume},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf(
				"kline %s/%s openTime=%d: bad %s %q: %w",
				k.Symbol, k.Interval, k.OpenTime, f.name, f.raw, err,
			)
		}
		*f.dst = d
	}

	return c, nil
}

// KlineQuery carries the raw, still-unvalidated kline request parameters as
// they arrive from the transport layer. The exchange validates them.
type KlineQuery struct {
	Symbol    string
	Interval  string
	StartTime string
	EndTime   string
	Limit     string
}
