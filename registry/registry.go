package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/gateway"
	"github.com/quantforge/ordersupervisor/types"
)

// PreconditionError marks a caller bug: a request the core refuses to even
// attempt, as opposed to a transient gateway outcome. Callers can
// errors.As against it to tell the two apart.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string { return "precondition: " + e.Msg }

func precondition(format string, args ...any) error {
	return &PreconditionError{Msg: fmt.Sprintf(format, args...)}
}

// Callback is a supervision task's handler for order events delivered on a
// pack carrying its tag. It receives the registry (for further gateway
// calls) and the pack in its post-update state.
type Callback func(r *Registry, pack *OrderPack)

// Config tunes rounding precision and the clock source: NDigits controls
// how volume/price comparisons round, and Clock lets backtests substitute
// simulated time for wall time.
type Config struct {
	NDigits int32
	Clock   func() time.Time
}

// DefaultConfig returns the conventional 4-decimal-digit rounding.
func DefaultConfig() Config {
	return Config{NDigits: 4, Clock: time.Now}
}

// Registry is the core's single-threaded, lock-free order map. Every entry
// point is called serially by the surrounding strategy harness: there is
// deliberately no mutex here, because the domain model rules out concurrent
// access to a single registry.
type Registry struct {
	gw gateway.Gateway

	packs  map[string]*OrderPack
	trades map[string]types.Trade

	dispatch map[TrackTag]Callback
	userHook func(pack *OrderPack)

	cfg Config
}

// New builds a Registry bound to a gateway.
func New(gw gateway.Gateway, cfg Config) *Registry {
	return &Registry{
		gw:       gw,
		packs:    make(map[string]*OrderPack),
		trades:   make(map[string]types.Trade),
		dispatch: make(map[TrackTag]Callback),
		cfg:      cfg,
	}
}

// Now returns the core's current time, wall-clock live or last-bar in
// backtest, whichever Config.Clock was wired to return.
func (r *Registry) Now() time.Time { return r.cfg.Clock() }

// NDigits returns the rounding precision volumes/prices are held to.
func (r *Registry) NDigits() int32 { return r.cfg.NDigits }

// Gateway exposes the underlying gateway for tasks that need direct access
// (contract lookup, engine type) beyond MakeOrder/CancelOrder.
func (r *Registry) Gateway() gateway.Gateway { return r.gw }

// RegisterCallback wires the handler a task pool wants invoked whenever a
// pack carrying tag receives an order event. Supervisor construction is the
// only caller; this keeps registry from importing the task packages.
func (r *Registry) RegisterCallback(tag TrackTag, cb Callback) {
	r.dispatch[tag] = cb
}

// SetUserHook installs the terminal hook run after every tag's callback on
// every event, the strategy's single point of contact with pack updates.
func (r *Registry) SetUserHook(fn func(pack *OrderPack)) {
	r.userHook = fn
}

// MakeOrderParams is the input to MakeOrder.
type MakeOrderParams struct {
	OrderType types.OrderType
	Symbol    string
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Stop      bool
	Tracks    []TrackTag
}

// MakeOrder rounds price/volume, submits through the gateway, and
// registers a pack with a synthetic Init snapshot for the returned id.
func (r *Registry) MakeOrder(ctx context.Context, p MakeOrderParams) (*OrderPack, error) {
	if p.Volume.LessThanOrEqual(decimal.Zero) {
		return nil, precondition("volume must be > 0, got %s", p.Volume)
	}
	if p.Price.LessThanOrEqual(decimal.Zero) {
		return nil, precondition("price must be > 0, got %s", p.Price)
	}

	volume := p.Volume.Round(r.cfg.NDigits)
	price := r.adjustPrice(p.Symbol, p.Price)

	id, err := r.gw.SendOrder(ctx, gateway.OrderRequest{
		Symbol:    p.Symbol,
		OrderType: p.OrderType,
		Price:     price,
		Volume:    volume,
		Stop:      p.Stop,
	})
	if err != nil {
		return nil, fmt.Errorf("registry: send order: %w", err)
	}

	pack := newOrderPack(id, types.OrderSnapshot{
		ID:          id,
		Symbol:      p.Symbol,
		OrderType:   p.OrderType,
		Side:        p.OrderType.Side(),
		Offset:      p.OrderType.Offset(),
		Price:       price,
		TotalVolume: volume,
		Status:      types.Init,
		Stop:        p.Stop,
		SubmittedAt: r.Now(),
	})
	for _, tag := range p.Tracks {
		pack.AddTrack(tag)
	}
	r.packs[id] = pack

	log.Debug().
		Str("order_id", id).
		Str("symbol", p.Symbol).
		Str("type", p.OrderType.String()).
		Msg("registry: order registered")

	return pack, nil
}

// adjustPrice rounds a requested price to the symbol's tick, warning (not
// failing) when the rounded price drifts from what was asked.
func (r *Registry) adjustPrice(symbol string, price decimal.Decimal) decimal.Decimal {
	rounded := r.gw.RoundToPriceTick(symbol, price)
	if !rounded.Equal(price) {
		log.Warn().
			Str("symbol", symbol).
			Str("requested", price.String()).
			Str("rounded", rounded.String()).
			Msg("registry: price adjusted to tick, proceeding with rounded price")
	}
	return rounded
}

// RegisterPack inserts a pack the registry did not create itself, such as a
// synthetic Assemble child. Callers own constructing it correctly.
func (r *Registry) RegisterPack(pack *OrderPack) {
	r.packs[pack.ID] = pack
}

// Pack looks up a pack by gateway id.
func (r *Registry) Pack(id string) (*OrderPack, bool) {
	p, ok := r.packs[id]
	return p, ok
}

// OnOrder delivers a fresh snapshot for id. Unknown ids are ignored, since
// the gateway is shared with other strategies. A pack whose FinishTag is
// already set drops the event without dispatching any callback.
func (r *Registry) OnOrder(snap types.OrderSnapshot) {
	pack, ok := r.packs[snap.ID]
	if !ok {
		return
	}
	if pack.FinishTag {
		return
	}

	pack.Order = snap

	for _, tag := range pack.Tracks {
		if cb, ok := r.dispatch[tag]; ok {
			cb(r, pack)
		}
	}
	if r.userHook != nil {
		r.userHook(pack)
	}

	if snap.Status.Terminal() {
		pack.FinishTag = true
	}
}

// OnTrade attaches a fill to its owning pack and the global trade index.
// Unknown order ids are ignored for the same reason OnOrder ignores them.
func (r *Registry) OnTrade(trade types.Trade) {
	pack, ok := r.packs[trade.OrderID]
	if !ok {
		return
	}
	r.trades[trade.ID] = trade
	pack.Trades[trade.ID] = trade
}

// CancelOrder marks the pack's CancelTag (if the id is known) and
// delegates to the gateway regardless, so operator-initiated cancels are
// distinguishable from exchange-initiated ones later (AutoExit relies on
// this via IsCancel).
func (r *Registry) CancelOrder(ctx context.Context, id string) error {
	if pack, ok := r.packs[id]; ok {
		pack.CancelTag = true
	}
	if err := r.gw.CancelOrder(ctx, id); err != nil {
		return fmt.Errorf("registry: cancel order %s: %w", id, err)
	}
	return nil
}
