package supervisor

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/registry"
	"github.com/quantforge/ordersupervisor/types"
)

// ComposoryClosePool holds every open pack on one (symbol, side) that has
// been handed over to aggressive closing, so the periodic sweep can keep
// chasing the residual until nothing is left open.
type ComposoryClosePool struct {
	Symbol  string
	Side    types.Side
	PackIDs map[string]struct{}
}

func (s *Supervisor) closePool(symbol string, side types.Side) *ComposoryClosePool {
	bySide, ok := s.closePools[symbol]
	if !ok {
		bySide = make(map[types.Side]*ComposoryClosePool)
		s.closePools[symbol] = bySide
	}
	pool, ok := bySide[side]
	if !ok {
		pool = &ComposoryClosePool{Symbol: symbol, Side: side, PackIDs: make(map[string]struct{})}
		bySide[side] = pool
	}
	return pool
}

// ComposoryClose converts an open pack to be closed aggressively: it
// cancels the open order itself if still live (so it stops accumulating
// more position), marks it force-closed, and hands it to the pool that the
// periodic sweep drains.
func (s *Supervisor) ComposoryClose(op *registry.OrderPack) error {
	if registry.IsCloseOrder(op) {
		return &registry.PreconditionError{Msg: "composoryClose requires an open pack, got a close pack: " + op.ID}
	}
	if !op.Order.Status.Terminal() {
		if err := s.reg.CancelOrder(s.ctx, op.ID); err != nil {
			log.Warn().Err(err).Str("order_id", op.ID).Msg("supervisor: cancel on composoryClose failed")
		}
	}
	op.CPOClosed = true
	pool := s.closePool(op.Order.Symbol, op.Order.Side)
	pool.PackIDs[op.ID] = struct{}{}

	log.Info().Str("order_id", op.ID).Str("symbol", op.Order.Symbol).Msg("supervisor: pack handed to composory close pool")
	return nil
}

// rawLockedVolume sums close packs' reserved volume without going through
// the CPOClosed shortcut on the open pack's own accounting: the pool sweep
// needs the real residual, not the optimistic "already closed" view used
// elsewhere once a pack enters this pool.
func rawLockedVolume(closes []*registry.OrderPack) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range closes {
		if c.Order.Status.Terminal() {
			sum = sum.Add(c.Order.TradedVolume)
		} else {
			sum = sum.Add(c.Order.TotalVolume)
		}
	}
	return sum
}

// CheckComposoryCloseOrders sweeps every (side) pool registered for symbol,
// dropping pools that have fully drained.
func (s *Supervisor) CheckComposoryCloseOrders(symbol string) {
	bySide, ok := s.closePools[symbol]
	if !ok {
		return
	}
	for side, pool := range bySide {
		if s.checkComposoryCloseForPool(symbol, side, pool) {
			delete(bySide, side)
		}
	}
	if len(bySide) == 0 {
		delete(s.closePools, symbol)
	}
}

func (s *Supervisor) checkComposoryCloseForPool(symbol string, side types.Side, pool *ComposoryClosePool) bool {
	openPacks := s.reg.Resolve(keys(pool.PackIDs))
	totalOpened := registry.SumField(openPacks, func(p *registry.OrderPack) decimal.Decimal { return p.Order.TradedVolume })

	var closes []*registry.OrderPack
	for _, op := range openPacks {
		closes = append(closes, s.reg.ListCloseOrderPacks(op)...)
	}
	closedVolume := registry.SumField(closes, func(p *registry.OrderPack) decimal.Decimal { return p.Order.TradedVolume })
	lockedVolume := rawLockedVolume(closes)

	for _, c := range closes {
		if !c.Order.Status.Terminal() && !registry.IsComposory(c) {
			if err := s.reg.CancelOrder(s.ctx, c.ID); err != nil {
				log.Warn().Err(err).Str("order_id", c.ID).Msg("supervisor: close-pool cancel failed")
			}
		}
	}

	unlocked := totalOpened.Sub(lockedVolume).Round(s.reg.NDigits())
	if unlocked.GreaterThan(decimal.Zero) {
		if target := firstUnlockedPack(s.reg, openPacks); target != nil {
			closeType := types.CloseOrderType(side)
			s.ComposoryOrder(s.ctx, closeType, symbol, unlocked, time.Duration(s.defaultComposoryCloseExpire)*time.Second, target.ID)
		}
	}

	allTerminal := true
	for _, p := range openPacks {
		if !p.Order.Status.Terminal() {
			allTerminal = false
			break
		}
	}
	for _, c := range closes {
		if !c.Order.Status.Terminal() {
			allTerminal = false
			break
		}
	}

	return totalOpened.Sub(closedVolume).Round(s.reg.NDigits()).LessThanOrEqual(decimal.Zero) && allTerminal
}

// firstUnlockedPack picks the first open pack in the pool with remaining
// unlocked volume, so the pool's one residual composory order has
// something to link against.
func firstUnlockedPack(reg *registry.Registry, packs []*registry.OrderPack) *registry.OrderPack {
	for _, p := range packs {
		if p.Order.TradedVolume.Sub(rawLockedVolume(reg.ListCloseOrderPacks(p))).GreaterThan(decimal.Zero) {
			return p
		}
	}
	if len(packs) > 0 {
		return packs[0]
	}
	return nil
}
