package exchange

import (
	"math/rand"
	"sort"

	"github.com/adamdenes/simtrade/internal/logger"
	"github.com/adamdenes/simtrade/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	maxSyntheticOrders = 50
	// Synthetic quantities stay below this fraction of the candle volume.
	maxSyntheticVolumeShare = 0.05
)

// SeedTradeHistory fabricates a bounded set of already-filled orders from
// random points of the series and records them, so components expecting a
// pre-existing trade history find a plausible one. It touches neither the
// ledger nor the pending pipeline.
//
// Ids are taken from the counter before any live order claims one, and the
// result is ascending by time.
func (ex *SimExchange) SeedTradeHistory(seed int64) []*models.OrderResponse {
	n := len(ex.series) / 10
	if n > maxSyntheticOrders {
		n = maxSyntheticOrders
	}
	if n == 0 {
		return nil
	}

	rng := rand.New(rand.NewSource(seed))

	orders := make([]*models.Order, 0, n)
	for i := 0; i < n; i++ {
		candle := ex.series[rng.Intn(len(ex.series))]

		side := models.BUY
		if rng.Intn(2) == 1 {
			side = models.SELL
		}

		orders = append(orders, &models.Order{
			ClientOrderID: uuid.NewString(),
			Symbol:        ex.symbol,
			Side:          side,
			Type:          models.STOP_TRIGGER,
			Quantity:      syntheticQuantity(candle, rng),
			StopPrice:     syntheticPrice(candle, side, rng),
			Status:        models.FILLED,
			CreatedAt:     candle.OpenTime,
			UpdatedAt:     candle.OpenTime,
		})
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].UpdatedAt < orders[j].UpdatedAt
	})

	// Ids ascend with time, all preceding the live counter.
	for _, o := range orders {
		o.ID = ex.nextOrderID
		ex.nextOrderID++
		ex.record(o)
	}

	logger.Info.Printf("seeded %d synthetic historical orders for %s", len(orders), ex.symbol)

	out := make([]*models.OrderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.Response())
	}
	return out
}

// syntheticPrice picks a price inside the candle's low/high band, biased
// toward the lower half for buys and the upper half for sells.
func syntheticPrice(c *models.Candle, side models.OrderSide, rng *rand.Rand) decimal.Decimal {
	band := c.High.Sub(c.Low)

	frac := rng.Float64() * 0.5
	if side == models.SELL {
		frac += 0.5
	}

	offset := band.Mul(decimal.NewFromFloat(frac))
	return c.Low.Add(offset).Round(8)
}

func syntheticQuantity(c *models.Candle, rng *rand.Rand) decimal.Decimal {
	share := rng.Float64() * maxSyntheticVolumeShare
	qty := c.Volume.Mul(decimal.NewFromFloat(share)).Round(8)
	if !qty.IsPositive() {
		qty = decimal.New(1, -8) // volume too small to sample from
	}
	return qty
}
