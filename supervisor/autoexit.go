package supervisor

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/registry"
	"github.com/quantforge/ordersupervisor/types"
)

// AutoExitRecord is the declarative stop-loss/take-profit attached to one
// open pack. Stoploss triggers an aggressive composory close; take-profit
// is a passive limit order kept valid while CheckTP stays true.
type AutoExitRecord struct {
	OriginID   string
	Stoploss   *decimal.Decimal
	Takeprofit *decimal.Decimal
	TPOrderIDs map[string]struct{}
	CheckTP    bool
}

// SetAutoExit installs or updates the exit levels on an open pack. cover
// allows clearing a side by passing nil for it; without cover, a nil
// argument leaves that side's existing level untouched.
func (s *Supervisor) SetAutoExit(origin *registry.OrderPack, stoploss, takeprofit *decimal.Decimal, cover bool) {
	rec, ok := s.autoExitByOrigin[origin.ID]
	if !ok {
		rec = &AutoExitRecord{OriginID: origin.ID, TPOrderIDs: make(map[string]struct{}), CheckTP: true}
		s.autoExitByOrigin[origin.ID] = rec
		origin.AddTrack(registry.TrackAutoExit)
	}

	if stoploss != nil || cover {
		rec.Stoploss = stoploss
	}
	if takeprofit != nil || cover {
		rec.Takeprofit = takeprofit
	}

	if rec.Stoploss == nil && rec.Takeprofit == nil {
		delete(s.autoExitByOrigin, origin.ID)
	}
}

// isPendingPriceValid reports whether target sits within the exchange's
// allowed pending band around current: above current but no more than 2%
// above for a long exit, below current but no more than 2% below for a
// short exit.
func isPendingPriceValid(long bool, target, current decimal.Decimal) bool {
	if current.IsZero() {
		return false
	}
	if long {
		band := current.Mul(decimal.NewFromFloat(1.02))
		return target.GreaterThan(current) && target.LessThanOrEqual(band)
	}
	band := current.Mul(decimal.NewFromFloat(0.98))
	return target.LessThan(current) && target.GreaterThanOrEqual(band)
}

// execAutoExit runs one pass of stop-loss/take-profit evaluation for
// origin against the current touch. Stoploss wins over take-profit on the
// same event.
func (s *Supervisor) execAutoExit(origin *registry.OrderPack, ask, bid decimal.Decimal, checkTP bool) {
	rec, ok := s.autoExitByOrigin[origin.ID]
	if !ok {
		return
	}
	if origin.Order.Status.Terminal() && s.reg.OrderClosed(origin) {
		delete(s.autoExitByOrigin, origin.ID)
		return
	}

	long := origin.Order.Side == types.Long

	if rec.Stoploss != nil {
		triggered := (long && bid.LessThanOrEqual(*rec.Stoploss)) || (!long && ask.GreaterThanOrEqual(*rec.Stoploss))
		if triggered {
			if err := s.ComposoryClose(origin); err != nil {
				log.Error().Err(err).Str("order_id", origin.ID).Msg("supervisor: stoploss composory close failed")
			}
			delete(s.autoExitByOrigin, origin.ID)
			return
		}
	}

	if rec.Takeprofit == nil || !checkTP || !rec.CheckTP {
		return
	}

	for id := range copyKeys(rec.TPOrderIDs) {
		p, ok := s.reg.Pack(id)
		if !ok {
			delete(rec.TPOrderIDs, id)
			continue
		}
		if p.Order.Status.Terminal() {
			continue
		}
		if !p.Order.Price.Equal(*rec.Takeprofit) {
			if err := s.reg.CancelOrder(s.ctx, id); err != nil {
				log.Warn().Err(err).Str("order_id", id).Msg("supervisor: stale take-profit cancel failed")
			}
		}
	}

	unlocked := s.reg.OrderUnlockedVolume(origin)
	if unlocked.LessThanOrEqual(decimal.Zero) {
		return
	}

	current := bid
	if !long {
		current = ask
	}
	if !isPendingPriceValid(long, *rec.Takeprofit, current) {
		return
	}

	pack, err := s.CloseOrder(s.ctx, origin, *rec.Takeprofit, unlocked, false)
	if err != nil {
		log.Error().Err(err).Str("order_id", origin.ID).Msg("supervisor: take-profit order failed")
		return
	}
	if pack == nil {
		return
	}
	pack.AddTrack(registry.TrackAutoExit)
	rec.TPOrderIDs[pack.ID] = struct{}{}
}

// CheckAutoExit runs execAutoExit for every live record whose origin
// trades symbol, using the symbol's last tick as the current touch.
func (s *Supervisor) CheckAutoExit(symbol string, checkTP bool) {
	tick, ok := s.cache.LastTick(symbol)
	if !ok {
		return
	}
	for id := range s.autoExitByOrigin {
		origin, ok := s.reg.Pack(id)
		if !ok || origin.Order.Symbol != symbol {
			continue
		}
		s.execAutoExit(origin, tick.AskPrice, tick.BidPrice, checkTP)
	}
}

// CheckTakeProfit is the less-frequent companion sweep callers run instead
// of CheckAutoExit's stop-loss-only pass.
func (s *Supervisor) CheckTakeProfit(symbol string) {
	s.CheckAutoExit(symbol, true)
}

// onAutoExitOrigin is dispatched for every pack carrying TrackAutoExit:
// the origin itself (a no-op here, since stoploss/take-profit evaluation
// is tick-driven, not order-event-driven) and any take-profit pending
// child, whose terminal transitions need onTakeProfitPending bookkeeping.
func (s *Supervisor) onAutoExitOrigin(r *registry.Registry, pack *registry.OrderPack) {
	if _, ok := s.autoExitByOrigin[pack.ID]; ok {
		return
	}
	if !pack.Order.Status.Terminal() {
		return
	}
	s.onTakeProfitPending(pack)
}

// onTakeProfitPending removes a settled take-profit child from its
// record's pending set, and pauses future re-issuance (CheckTP=false) if
// the exchange itself cancelled it rather than the operator.
func (s *Supervisor) onTakeProfitPending(tpPack *registry.OrderPack) {
	rec, ok := s.autoExitByOrigin[tpPack.OpenID]
	if !ok {
		return
	}
	delete(rec.TPOrderIDs, tpPack.ID)
	if tpPack.Order.Status == types.Cancelled && !registry.IsCancel(tpPack) {
		rec.CheckTP = false
	}
}
