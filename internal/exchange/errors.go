package exchange

import (
	"fmt"

	"github.com/adamdenes/simtrade/internal/models"
	"github.com/shopspring/decimal"
)

// Domain errors are concrete structs carrying the values that caused the
// rejection. The Binance-compatible {code,msg} wire shape is produced by
// APIError at the boundary and is never the error's identity.

// UnsupportedOrderTypeError rejects any order kind other than the
// stop-trigger type the simulator models.
type UnsupportedOrderTypeError struct {
	Type models.OrderType
}

func (e *UnsupportedOrderTypeError) Error() string {
	return fmt.Sprintf("unsupported order type %q, only %s is simulated", e.Type, models.STOP_TRIGGER)
}

// ImmediateTriggerError rejects a placement whose stop condition already
// holds against the current candle's open price.
type ImmediateTriggerError struct {
	Symbol    string
	Side      models.OrderSide
	StopPrice decimal.Decimal
	OpenPrice decimal.Decimal
}

func (e *ImmediateTriggerError) Error() string {
	return fmt.Sprintf(
		"%s %s stop %s would trigger immediately against open %s",
		e.Symbol, e.Side, e.StopPrice, e.OpenPrice,
	)
}

// InsufficientBalanceError rejects a placement whose reservation exceeds
// the free balance of the reserved asset.
type InsufficientBalanceError struct {
	Asset  string
	Needed decimal.Decimal
	Free   decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf(
		"insufficient %s balance: need %s, free %s",
		e.Asset, e.Needed, e.Free,
	)
}

// InvalidQueryError rejects malformed or contradictory kline query
// parameters.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return "invalid kline query: " + e.Reason
}

// APICode is the Binance-style error body some collaborators still expect.
type APICode struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// APIError formats a domain error into its wire representation. Unknown
// errors map to the generic -1000 code.
func APIError(err error) APICode {
	switch e := err.(type) {
	case *UnsupportedOrderTypeError:
		return APICode{Code: -1116, Msg: "Invalid orderType."}
	case *ImmediateTriggerError:
		return APICode{Code: -2010, Msg: "Order would trigger immediately."}
	case *InsufficientBalanceError:
		return APICode{Code: -2010, Msg: "Account has insufficient balance for requested action."}
	case *InvalidQueryError:
		return APICode{Code: -1100, Msg: "Illegal characters found in a parameter. " + e.Reason}
	default:
		return APICode{Code: -1000, Msg: err.Error()}
	}
}
