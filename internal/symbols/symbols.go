package symbols

import (
	"fmt"

	"github.com/adamdenes/simtrade/internal/models"
)

// Resolver maps a trading pair to its base and quote assets. The exchange
// needs the split to know which asset an order reserves.
type Resolver interface {
	Resolve(symbol string) (base, quote string, err error)
}

// StaticResolver resolves from a fixed exchangeInfo-style table. Good
// enough for backtests, which run against one known pair anyway.
type StaticResolver struct {
	pairs map[string]models.SymbolInfo
}

// NewStaticResolver builds a resolver over the given symbol metadata.
func NewStaticResolver(infos []models.SymbolInfo) *StaticResolver {
	pairs := make(map[string]models.SymbolInfo, len(infos))
	for _, si := range infos {
		pairs[si.Symbol] = si
	}
	return &StaticResolver{pairs: pairs}
}

// Defaults returns the fixture metadata shipped with the simulator.
func Defaults() []models.SymbolInfo {
	return []models.SymbolInfo{
		{
			Symbol:     "BTCUSDT",
			BaseAsset:  "BTC",
			QuoteAsset: "USDT",
			StepSize:   "0.00001000", TickSize: "0.01000000", MinNotional: "5.00000000",
		},
		{
			Symbol:     "ETHUSDT",
			BaseAsset:  "ETH",
			QuoteAsset: "USDT",
			StepSize:   "0.00010000", TickSize: "0.01000000", MinNotional: "5.00000000",
		},
		{
			Symbol:     "BNBUSDT",
			BaseAsset:  "BNB",
			QuoteAsset: "USDT",
			StepSize:   "0.00100000", TickSize: "0.01000000", MinNotional: "5.00000000",
		},
	}
}

func (r *StaticResolver) Resolve(symbol string) (string, string, error) {
	si, ok := r.pairs[symbol]
	if !ok {
		return "", "", fmt.Errorf("unknown symbol %q", symbol)
	}
	return si.BaseAsset, si.QuoteAsset, nil
}

// Info returns the full trading-rule metadata for symbol.
func (r *StaticResolver) Info(symbol string) (models.SymbolInfo, error) {
	si, ok := r.pairs[symbol]
	if !ok {
		return models.SymbolInfo{}, fmt.Errorf("unknown symbol %q", symbol)
	}
	return si, nil
}
