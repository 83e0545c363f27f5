package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/quantforge/ordersupervisor/types"
)

// OrderUpdate and TradeUpdate are what PaperGateway hands back to whatever
// is wired as its callback sink (normally registry.Registry.OnOrder /
// OnTrade). A real venue adapter would decode these off its own wire
// protocol instead.
type OrderUpdate struct {
	Snapshot types.OrderSnapshot
}

type TradeUpdate struct {
	Trade  types.Trade
	Symbol string
}

// PaperGateway simulates fills in-process: ack immediately, then fill at the
// requested price plus a configurable slippage, fully and without resting
// partials. It rate-limits calls the way a real venue client would, so code
// built against it learns to tolerate backpressure from day one.
type PaperGateway struct {
	mu         sync.Mutex
	engineType EngineType
	contracts  map[string]Contract
	orders     map[string]*types.OrderSnapshot
	limiter    *rate.Limiter
	slippageBp int64

	onOrder func(OrderUpdate)
	onTrade func(TradeUpdate)
}

// NewPaperGateway builds a paper gateway. slippageBp is applied against the
// requested price on every simulated fill, in the requester's favor only
// when it is zero; a nonzero value always works against the requester, the
// conservative assumption for sizing a strategy against paper fills.
func NewPaperGateway(engineType EngineType, slippageBp int64) *PaperGateway {
	return &PaperGateway{
		engineType: engineType,
		contracts:  make(map[string]Contract),
		orders:     make(map[string]*types.OrderSnapshot),
		limiter:    rate.NewLimiter(rate.Limit(50), 10),
		slippageBp: slippageBp,
	}
}

// RegisterContract installs the tick size for a symbol the paper gateway
// will quote. Real gateways load this from an exchange instrument list.
func (g *PaperGateway) RegisterContract(c Contract) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contracts[c.Symbol] = c
}

// OnOrder sets the callback invoked for every simulated order state change.
func (g *PaperGateway) OnOrder(fn func(OrderUpdate)) { g.onOrder = fn }

// OnTrade sets the callback invoked for every simulated fill.
func (g *PaperGateway) OnTrade(fn func(TradeUpdate)) { g.onTrade = fn }

func (g *PaperGateway) SendOrder(ctx context.Context, req OrderRequest) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("gateway: rate limit wait: %w", err)
	}

	id := uuid.NewString()
	now := time.Now()

	snap := types.OrderSnapshot{
		ID:           id,
		Symbol:       req.Symbol,
		OrderType:    req.OrderType,
		Side:         req.OrderType.Side(),
		Offset:       req.OrderType.Offset(),
		Price:        req.Price,
		TotalVolume:  req.Volume,
		TradedVolume: decimal.Zero,
		Status:       types.NotTraded,
		Stop:         req.Stop,
		SubmittedAt:  now,
	}

	g.mu.Lock()
	stored := snap
	g.orders[id] = &stored
	g.mu.Unlock()

	log.Info().
		Str("order_id", id).
		Str("symbol", req.Symbol).
		Str("type", req.OrderType.String()).
		Str("price", req.Price.String()).
		Str("volume", req.Volume.String()).
		Msg("gateway: order sent")

	if g.onOrder != nil {
		g.onOrder(OrderUpdate{Snapshot: stored})
	}

	if req.Stop {
		// Stop orders rest untriggered; the paper gateway never triggers
		// them on its own.
		return id, nil
	}

	g.simulateFill(id)
	return id, nil
}

func (g *PaperGateway) simulateFill(id string) {
	g.mu.Lock()
	order, ok := g.orders[id]
	if !ok {
		g.mu.Unlock()
		return
	}

	slip := decimal.NewFromInt(g.slippageBp).Div(decimal.NewFromInt(10000))
	fillPrice := order.Price
	if order.OrderType == types.BUY || order.OrderType == types.COVER {
		fillPrice = order.Price.Mul(decimal.NewFromInt(1).Add(slip))
	} else {
		fillPrice = order.Price.Mul(decimal.NewFromInt(1).Sub(slip))
	}

	order.TradedVolume = order.TotalVolume
	order.AvgPrice = fillPrice
	order.Status = types.AllTraded
	snapshot := *order
	g.mu.Unlock()

	trade := types.Trade{
		ID:        uuid.NewString(),
		OrderID:   id,
		Price:     fillPrice,
		Volume:    snapshot.TotalVolume,
		Timestamp: time.Now(),
	}

	log.Info().
		Str("order_id", id).
		Str("fill_price", fillPrice.String()).
		Str("volume", trade.Volume.String()).
		Msg("gateway: order filled (paper)")

	if g.onTrade != nil {
		g.onTrade(TradeUpdate{Trade: trade, Symbol: snapshot.Symbol})
	}
	if g.onOrder != nil {
		g.onOrder(OrderUpdate{Snapshot: snapshot})
	}
}

func (g *PaperGateway) CancelOrder(ctx context.Context, orderID string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("gateway: rate limit wait: %w", err)
	}

	g.mu.Lock()
	order, ok := g.orders[orderID]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("gateway: unknown order %s", orderID)
	}
	if order.Status.Terminal() {
		g.mu.Unlock()
		return fmt.Errorf("gateway: order %s already in terminal status %s", orderID, order.Status)
	}
	order.Status = types.Cancelled
	snapshot := *order
	g.mu.Unlock()

	log.Info().Str("order_id", orderID).Msg("gateway: order cancelled")
	if g.onOrder != nil {
		g.onOrder(OrderUpdate{Snapshot: snapshot})
	}
	return nil
}

func (g *PaperGateway) RoundToPriceTick(symbol string, price decimal.Decimal) decimal.Decimal {
	g.mu.Lock()
	c, ok := g.contracts[symbol]
	g.mu.Unlock()
	if !ok || c.PriceTick.IsZero() {
		return price
	}
	return price.DivRound(c.PriceTick, 0).Mul(c.PriceTick)
}

func (g *PaperGateway) GetContract(symbol string) (Contract, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.contracts[symbol]
	return c, ok
}

func (g *PaperGateway) GetEngineType() EngineType { return g.engineType }
