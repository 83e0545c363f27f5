package gateway

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantforge/ordersupervisor/types"
)

func TestPaperGatewaySendOrderFillsImmediately(t *testing.T) {
	gw := NewPaperGateway(EngineBacktest, 0)
	gw.RegisterContract(Contract{Symbol: "XYZ", PriceTick: decimal.NewFromFloat(0.01)})

	var orders []OrderUpdate
	var trades []TradeUpdate
	gw.OnOrder(func(u OrderUpdate) { orders = append(orders, u) })
	gw.OnTrade(func(u TradeUpdate) { trades = append(trades, u) })

	id, err := gw.SendOrder(context.Background(), OrderRequest{
		Symbol:    "XYZ",
		OrderType: types.BUY,
		Price:     decimal.NewFromFloat(100),
		Volume:    decimal.NewFromFloat(10),
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Len(t, trades, 1)
	assert.True(t, trades[0].Trade.Volume.Equal(decimal.NewFromFloat(10)))

	require.Len(t, orders, 2)
	assert.Equal(t, types.NotTraded, orders[0].Snapshot.Status)
	assert.Equal(t, types.AllTraded, orders[1].Snapshot.Status)
}

func TestPaperGatewaySlippageWorksAgainstRequester(t *testing.T) {
	gw := NewPaperGateway(EngineBacktest, 100) // 100bp = 1%
	var fillPrice decimal.Decimal
	gw.OnTrade(func(u TradeUpdate) { fillPrice = u.Trade.Price })

	_, err := gw.SendOrder(context.Background(), OrderRequest{
		Symbol:    "XYZ",
		OrderType: types.BUY,
		Price:     decimal.NewFromFloat(100),
		Volume:    decimal.NewFromFloat(1),
	})
	require.NoError(t, err)
	assert.True(t, fillPrice.GreaterThan(decimal.NewFromFloat(100)))
}

func TestPaperGatewayStopOrderRestsUntriggered(t *testing.T) {
	gw := NewPaperGateway(EngineBacktest, 0)
	var trades []TradeUpdate
	gw.OnTrade(func(u TradeUpdate) { trades = append(trades, u) })

	id, err := gw.SendOrder(context.Background(), OrderRequest{
		Symbol:    "XYZ",
		OrderType: types.BUY,
		Price:     decimal.NewFromFloat(100),
		Volume:    decimal.NewFromFloat(1),
		Stop:      true,
	})
	require.NoError(t, err)
	assert.Empty(t, trades)

	_, ok := gw.GetContract("XYZ")
	assert.False(t, ok)

	err = gw.CancelOrder(context.Background(), id)
	assert.NoError(t, err)
}

func TestPaperGatewayCancelTerminalOrderFails(t *testing.T) {
	gw := NewPaperGateway(EngineBacktest, 0)
	id, err := gw.SendOrder(context.Background(), OrderRequest{
		Symbol:    "XYZ",
		OrderType: types.BUY,
		Price:     decimal.NewFromFloat(100),
		Volume:    decimal.NewFromFloat(1),
	})
	require.NoError(t, err)

	err = gw.CancelOrder(context.Background(), id)
	assert.Error(t, err)
}

func TestPaperGatewayRoundToPriceTick(t *testing.T) {
	gw := NewPaperGateway(EngineBacktest, 0)
	gw.RegisterContract(Contract{Symbol: "XYZ", PriceTick: decimal.NewFromFloat(0.05)})

	rounded := gw.RoundToPriceTick("XYZ", decimal.NewFromFloat(100.03))
	assert.True(t, rounded.Equal(decimal.NewFromFloat(100.05)))

	unknown := gw.RoundToPriceTick("UNKNOWN", decimal.NewFromFloat(100.03))
	assert.True(t, unknown.Equal(decimal.NewFromFloat(100.03)))
}
