package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantforge/ordersupervisor/gateway"
	"github.com/quantforge/ordersupervisor/marketdata"
	"github.com/quantforge/ordersupervisor/registry"
	"github.com/quantforge/ordersupervisor/types"
)

// fakeGateway is a controllable Gateway double: SendOrder assigns sequential
// ids and records every request so tests can assert what the supervisor
// actually sent; CancelOrder records cancellations. Fills are driven
// explicitly via Registry.OnOrder/OnTrade, never by the gateway itself.
type fakeGateway struct {
	nextID  int
	sent    []gateway.OrderRequest
	ids     []string
	cancels []string
	engine  gateway.EngineType
}

func newFakeGateway(engine gateway.EngineType) *fakeGateway {
	return &fakeGateway{engine: engine}
}

func (g *fakeGateway) SendOrder(ctx context.Context, req gateway.OrderRequest) (string, error) {
	g.nextID++
	id := "o" + decimal.NewFromInt(int64(g.nextID)).String()
	g.sent = append(g.sent, req)
	g.ids = append(g.ids, id)
	return id, nil
}

func (g *fakeGateway) CancelOrder(ctx context.Context, orderID string) error {
	g.cancels = append(g.cancels, orderID)
	return nil
}

func (g *fakeGateway) RoundToPriceTick(symbol string, price decimal.Decimal) decimal.Decimal {
	return price
}

func (g *fakeGateway) GetContract(symbol string) (gateway.Contract, bool) {
	return gateway.Contract{Symbol: symbol}, true
}

func (g *fakeGateway) GetEngineType() gateway.EngineType { return g.engine }

// lastID returns the id of the most recently sent order.
func (g *fakeGateway) lastID() string {
	if len(g.ids) == 0 {
		return ""
	}
	return g.ids[len(g.ids)-1]
}

func newHarness(engine gateway.EngineType) (*Supervisor, *registry.Registry, *fakeGateway, *marketdata.Cache) {
	gw := newFakeGateway(engine)
	reg := registry.New(gw, registry.DefaultConfig())
	cache := marketdata.NewCache()
	sup := New(reg, gw, cache, nil)
	return sup, reg, gw, cache
}

func fill(reg *registry.Registry, id string, ot types.OrderType, traded, total decimal.Decimal) {
	reg.OnOrder(types.OrderSnapshot{
		ID: id, Status: types.AllTraded, OrderType: ot,
		Side: ot.Side(), Offset: ot.Offset(),
		TotalVolume: total, TradedVolume: traded,
	})
}

func cancel(reg *registry.Registry, id string, ot types.OrderType, traded, total decimal.Decimal) {
	reg.OnOrder(types.OrderSnapshot{
		ID: id, Status: types.Cancelled, OrderType: ot,
		Side: ot.Side(), Offset: ot.Offset(),
		TotalVolume: total, TradedVolume: traded,
	})
}

func TestTimeLimitOrderExpiresAndCancels(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	gw := newFakeGateway(gateway.EngineBacktest)
	reg := registry.New(gw, registry.Config{NDigits: 4, Clock: func() time.Time { return now }})
	cache := marketdata.NewCache()
	sup := New(reg, gw, cache, nil)

	rec, err := sup.TimeLimitOrder(context.Background(), types.BUY, "X", decimal.NewFromInt(100), decimal.NewFromInt(5), time.Minute)
	require.NoError(t, err)
	require.Len(t, rec.Live, 1)

	// before expiry, the periodic sweep must not cancel
	sup.checkTimeLimitOrders()
	assert.Empty(t, gw.cancels)

	now = now.Add(2 * time.Minute)
	sup.checkTimeLimitOrders()
	assert.Len(t, gw.cancels, 1)
}

func TestTimeLimitOrderFillMovesToFinished(t *testing.T) {
	sup, reg, gw, _ := newHarness(gateway.EngineBacktest)
	rec, err := sup.TimeLimitOrder(context.Background(), types.BUY, "X", decimal.NewFromInt(100), decimal.NewFromInt(5), time.Minute)
	require.NoError(t, err)

	fill(reg, gw.lastID(), types.BUY, decimal.NewFromInt(5), decimal.NewFromInt(5))
	assert.Empty(t, rec.Live)
	assert.Len(t, rec.FinishedWithFill, 1)
}

func TestComposoryOrderUsesAggressivePriceFromTick(t *testing.T) {
	sup, _, gw, cache := newHarness(gateway.EngineBacktest)
	cache.OnTick(marketdata.Tick{
		Symbol: "X", UpperLimit: decimal.NewFromInt(110), LowerLimit: decimal.NewFromInt(90),
	})

	rec := sup.ComposoryOrder(context.Background(), types.BUY, "X", decimal.NewFromInt(10), time.Minute, "")
	require.Len(t, rec.Live, 1)
	require.Len(t, gw.sent, 1)
	// 99% of the upper limit, shaded toward marketable for a long order
	assert.True(t, gw.sent[0].Price.Equal(decimal.NewFromInt(110).Mul(decimal.NewFromFloat(0.99))))
}

func TestComposoryOrderDefersWithoutMarketData(t *testing.T) {
	sup, _, gw, _ := newHarness(gateway.EngineBacktest)
	rec := sup.ComposoryOrder(context.Background(), types.BUY, "X", decimal.NewFromInt(10), time.Minute, "")
	assert.Empty(t, rec.Live)
	assert.Empty(t, gw.sent)
}

func TestComposoryOrderRependsOnCancelDuringSweep(t *testing.T) {
	sup, reg, gw, cache := newHarness(gateway.EngineBacktest)
	cache.OnTick(marketdata.Tick{Symbol: "X", UpperLimit: decimal.NewFromInt(110), LowerLimit: decimal.NewFromInt(90)})

	rec := sup.ComposoryOrder(context.Background(), types.BUY, "X", decimal.NewFromInt(10), time.Minute, "")
	require.Len(t, rec.Live, 1)
	firstID := gw.lastID()

	cancel(reg, firstID, types.BUY, decimal.Zero, decimal.NewFromInt(10))
	sup.checkComposoryOrders()

	assert.Len(t, rec.FinishedWithoutFill, 1)
	assert.Len(t, rec.Live, 1, "repend must send a replacement primitive")
	assert.Len(t, gw.sent, 2)
}

func TestStepOrderDegradesToSingleTimeLimitInBacktest(t *testing.T) {
	sup, _, gw, _ := newHarness(gateway.EngineBacktest)
	rec, err := sup.MakeStepOrder(context.Background(), types.BUY, "X", decimal.NewFromInt(100),
		decimal.NewFromInt(10), decimal.NewFromInt(2), time.Minute, 10*time.Second)
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.Len(t, gw.sent, 1)
	assert.True(t, gw.sent[0].Volume.Equal(decimal.NewFromInt(10)), "backtest degrade sends the full volume in one primitive")
}

func TestStepOrderPacesChildrenInLive(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	gw := newFakeGateway(gateway.EngineLive)
	reg := registry.New(gw, registry.Config{NDigits: 4, Clock: func() time.Time { return now }})
	cache := marketdata.NewCache()
	sup := New(reg, gw, cache, nil)

	rec, err := sup.MakeStepOrder(context.Background(), types.BUY, "X", decimal.NewFromInt(100),
		decimal.NewFromInt(10), decimal.NewFromInt(4), time.Minute, 10*time.Second)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Empty(t, gw.sent, "no child sent until the periodic sweep runs")

	sup.checkStepOrders()
	require.Len(t, gw.sent, 1)
	assert.True(t, gw.sent[0].Volume.Equal(decimal.NewFromInt(4)))

	// pacing interval hasn't elapsed: no second child yet
	sup.checkStepOrders()
	assert.Len(t, gw.sent, 1)

	now = now.Add(11 * time.Second)
	sup.checkStepOrders()
	require.Len(t, gw.sent, 2)
	assert.True(t, gw.sent[1].Volume.Equal(decimal.NewFromInt(4)))

	now = now.Add(11 * time.Second)
	sup.checkStepOrders()
	require.Len(t, gw.sent, 3)
	assert.True(t, gw.sent[2].Volume.Equal(decimal.NewFromInt(2)), "final chunk caps at the remaining target")
}

func TestDepthOrderSizesFromExecutableBookVolume(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	gw := newFakeGateway(gateway.EngineLive)
	reg := registry.New(gw, registry.Config{NDigits: 4, Clock: func() time.Time { return now }})
	cache := marketdata.NewCache()
	sup := New(reg, gw, cache, nil)

	cache.OnDepth("X", marketdata.Depth{
		Asks: []marketdata.DepthLevel{
			{Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(3)},
			{Price: decimal.NewFromInt(101), Volume: decimal.NewFromInt(4)},
			{Price: decimal.NewFromInt(105), Volume: decimal.NewFromInt(9)}, // above limit, not executable
		},
	})

	rec, err := sup.MakeDepthOrder(context.Background(), types.BUY, "X", decimal.NewFromInt(101),
		decimal.NewFromInt(100), 3, time.Minute, 10*time.Second)
	require.NoError(t, err)
	require.NotNil(t, rec)

	sup.checkDepthOrders()
	require.Len(t, gw.sent, 1)
	assert.True(t, gw.sent[0].Volume.Equal(decimal.NewFromInt(7)), "only the two levels at or below the limit price are executable")
}

func TestAutoExitStoplossTriggersComposoryClose(t *testing.T) {
	sup, reg, gw, cache := newHarness(gateway.EngineBacktest)
	open, err := reg.MakeOrder(context.Background(), registry.MakeOrderParams{
		OrderType: types.BUY, Symbol: "X", Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	fill(reg, open.ID, types.BUY, decimal.NewFromInt(10), decimal.NewFromInt(10))

	stoploss := decimal.NewFromInt(95)
	sup.SetAutoExit(open, &stoploss, nil, false)

	cache.OnTick(marketdata.Tick{Symbol: "X", BidPrice: decimal.NewFromInt(98), AskPrice: decimal.NewFromInt(99)})
	sup.CheckAutoExit("X", false)
	assert.Empty(t, gw.cancels, "price above stoploss must not trigger")

	cache.OnTick(marketdata.Tick{Symbol: "X", BidPrice: decimal.NewFromInt(94), AskPrice: decimal.NewFromInt(95)})
	sup.CheckAutoExit("X", false)
	assert.True(t, open.CPOClosed, "stoploss trigger hands the origin to the composory close pool")
}

func TestAutoExitTakeProfitIssuesCloseOrderWithinPendingBand(t *testing.T) {
	sup, reg, gw, cache := newHarness(gateway.EngineBacktest)
	open, err := reg.MakeOrder(context.Background(), registry.MakeOrderParams{
		OrderType: types.BUY, Symbol: "X", Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	fill(reg, open.ID, types.BUY, decimal.NewFromInt(10), decimal.NewFromInt(10))

	takeprofit := decimal.NewFromInt(101)
	sup.SetAutoExit(open, nil, &takeprofit, false)

	cache.OnTick(marketdata.Tick{Symbol: "X", BidPrice: decimal.NewFromInt(100), AskPrice: decimal.NewFromFloat(100.5)})
	sup.CheckAutoExit("X", true)

	require.Len(t, gw.sent, 2, "open + one take-profit close")
	assert.True(t, gw.sent[1].Price.Equal(takeprofit))
	assert.True(t, gw.sent[1].Volume.Equal(decimal.NewFromInt(10)))
}

func TestConditionalCloseForcesCloseAtExpiryWithoutTarget(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	gw := newFakeGateway(gateway.EngineBacktest)
	reg := registry.New(gw, registry.Config{NDigits: 4, Clock: func() time.Time { return now }})
	cache := marketdata.NewCache()
	sup := New(reg, gw, cache, nil)

	open, err := reg.MakeOrder(context.Background(), registry.MakeOrderParams{
		OrderType: types.BUY, Symbol: "X", Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	fill(reg, open.ID, types.BUY, decimal.NewFromInt(10), decimal.NewFromInt(10))

	sup.SetConditionalClose(open, time.Minute, nil)
	sup.checkConditionalClose()
	assert.False(t, open.CPOClosed, "not yet expired")

	now = now.Add(2 * time.Minute)
	sup.checkConditionalClose()
	assert.True(t, open.CPOClosed)
}

func TestConditionalCloseConvertsToStoplossWithTarget(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	gw := newFakeGateway(gateway.EngineBacktest)
	reg := registry.New(gw, registry.Config{NDigits: 4, Clock: func() time.Time { return now }})
	cache := marketdata.NewCache()
	sup := New(reg, gw, cache, nil)

	open, err := reg.MakeOrder(context.Background(), registry.MakeOrderParams{
		OrderType: types.BUY, Symbol: "X", Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	reg.OnTrade(types.Trade{ID: "t1", OrderID: open.ID, Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(10)})
	fill(reg, open.ID, types.BUY, decimal.NewFromInt(10), decimal.NewFromInt(10))

	target := decimal.NewFromFloat(-0.05) // 5% below avg entry
	sup.SetConditionalClose(open, time.Minute, &target)

	now = now.Add(2 * time.Minute)
	sup.checkConditionalClose()

	assert.False(t, open.CPOClosed, "target-profit path installs a stoploss instead of forcing a close")
	stoploss, ok := sup.autoExitByOrigin[open.ID]
	require.True(t, ok, "conditional close installs an AutoExit record")
	require.NotNil(t, stoploss.Stoploss)
	assert.True(t, stoploss.Stoploss.Equal(decimal.NewFromInt(100).Mul(decimal.NewFromFloat(0.95))), "long position's stoploss is below avg entry by the target fraction")
}

func TestSplitOrderPartitionsTerminalPackIntoSyntheticChildren(t *testing.T) {
	sup, reg, _, _ := newHarness(gateway.EngineBacktest)
	origin, err := reg.MakeOrder(context.Background(), registry.MakeOrderParams{
		OrderType: types.BUY, Symbol: "X", Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	fill(reg, origin.ID, types.BUY, decimal.NewFromInt(10), decimal.NewFromInt(10))

	children, err := sup.SplitOrder(origin, decimal.NewFromInt(3), decimal.NewFromInt(4))
	require.NoError(t, err)
	require.Len(t, children, 3, "two requested pieces plus the overflow remainder")
	assert.True(t, children[2].Order.TradedVolume.Equal(decimal.NewFromInt(3)))
	assert.Equal(t, origin.ID, children[0].ParentID)
	assert.True(t, children[0].FinishTag)
	assert.Len(t, origin.ChildIDs, 3)
}

func TestSplitOrderRejectsNonTerminalPack(t *testing.T) {
	sup, reg, _, _ := newHarness(gateway.EngineBacktest)
	origin, err := reg.MakeOrder(context.Background(), registry.MakeOrderParams{
		OrderType: types.BUY, Symbol: "X", Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	_, err = sup.SplitOrder(origin, decimal.NewFromInt(3))
	var pe *registry.PreconditionError
	assert.ErrorAs(t, err, &pe)
}

func TestRependOrderReplacesAtNewPriceAfterCancel(t *testing.T) {
	sup, reg, gw, _ := newHarness(gateway.EngineBacktest)
	pack, err := reg.MakeOrder(context.Background(), registry.MakeOrderParams{
		OrderType: types.BUY, Symbol: "X", Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(10),
	})
	require.NoError(t, err)

	newPrice := decimal.NewFromInt(102)
	sup.RependOrder(context.Background(), pack, nil, &newPrice)
	assert.Contains(t, gw.cancels, pack.ID)

	cancel(reg, pack.ID, types.BUY, decimal.Zero, decimal.NewFromInt(10))
	require.Len(t, gw.sent, 2)
	assert.True(t, gw.sent[1].Price.Equal(newPrice))
	assert.True(t, gw.sent[1].Volume.Equal(decimal.NewFromInt(10)))
}

func TestRependOrderNoopOnFullyTradedPack(t *testing.T) {
	sup, reg, gw, _ := newHarness(gateway.EngineBacktest)
	pack, err := reg.MakeOrder(context.Background(), registry.MakeOrderParams{
		OrderType: types.BUY, Symbol: "X", Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	fill(reg, pack.ID, types.BUY, decimal.NewFromInt(10), decimal.NewFromInt(10))

	sup.RependOrder(context.Background(), pack, nil, nil)
	assert.Len(t, gw.sent, 1, "a fully traded pack never gets repended")
}

func TestComposoryCloseCancelsLiveOpenAndDrainsResidual(t *testing.T) {
	sup, reg, gw, cache := newHarness(gateway.EngineBacktest)
	cache.OnTick(marketdata.Tick{Symbol: "X", UpperLimit: decimal.NewFromInt(110), LowerLimit: decimal.NewFromInt(90)})

	open, err := reg.MakeOrder(context.Background(), registry.MakeOrderParams{
		OrderType: types.BUY, Symbol: "X", Price: decimal.NewFromInt(100), Volume: decimal.NewFromInt(10),
	})
	require.NoError(t, err)
	reg.OnOrder(types.OrderSnapshot{
		ID: open.ID, Status: types.PartTraded, OrderType: types.BUY,
		Side: types.Long, Offset: types.Open,
		TotalVolume: decimal.NewFromInt(10), TradedVolume: decimal.NewFromInt(6),
	})

	require.NoError(t, sup.ComposoryClose(open))
	assert.True(t, open.CPOClosed)
	assert.Contains(t, gw.cancels, open.ID, "a still-live open handed to the close pool is cancelled so it stops accumulating")

	sup.CheckComposoryCloseOrders("X")
	require.Len(t, gw.sent, 2, "a residual composory close order is sent for the filled-but-unclosed volume")
	assert.True(t, gw.sent[1].Volume.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, types.SELL, gw.sent[1].OrderType)
}

func TestPeriodicCheckStartDrivesTimeLimitSweep(t *testing.T) {
	sup, reg, gw, _ := newHarness(gateway.EngineBacktest)
	rec, err := sup.TimeLimitOrder(context.Background(), types.BUY, "X", decimal.NewFromInt(100), decimal.NewFromInt(5), time.Nanosecond)
	require.NoError(t, err)
	require.Len(t, rec.Live, 1)

	time.Sleep(time.Millisecond)
	sup.CheckOnPeriodStart(marketdata.Bar{Symbol: "X"})
	assert.Len(t, gw.cancels, 1, "CheckOnPeriodStart must drive the time-limit sweep")
}
