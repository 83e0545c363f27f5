package supervisor

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/registry"
)

// ConditionalCloseRecord schedules an exit decision for origin at a fixed
// time, either forcing a close (no target) or converting to a stop-loss
// level derived from the fill's average price (with a target).
type ConditionalCloseRecord struct {
	OriginID     string
	ExpireAt     time.Time
	TargetProfit *decimal.Decimal
}

// SetConditionalClose schedules the decision expire from now.
func (s *Supervisor) SetConditionalClose(origin *registry.OrderPack, expire time.Duration, targetProfit *decimal.Decimal) {
	origin.AddTrack(registry.TrackConditionalClose)
	s.condClose = append(s.condClose, &ConditionalCloseRecord{
		OriginID:     origin.ID,
		ExpireAt:     s.reg.Now().Add(expire),
		TargetProfit: targetProfit,
	})
}

// onConditionalCloseOrigin is registered for dispatch symmetry; the actual
// decision only fires at expiry via the periodic sweep, not on order
// events, so this is a no-op.
func (s *Supervisor) onConditionalCloseOrigin(r *registry.Registry, pack *registry.OrderPack) {}

// checkConditionalClose is the periodic sweep (period start): resolves
// every record whose expiry has passed, keeping still-working records alive
// across sweeps until their cancel lands and there is a final fill to act on.
func (s *Supervisor) checkConditionalClose() {
	now := s.reg.Now()
	kept := s.condClose[:0]
	for _, rec := range s.condClose {
		if now.Before(rec.ExpireAt) {
			kept = append(kept, rec)
			continue
		}
		if !s.resolveConditionalClose(rec) {
			kept = append(kept, rec)
		}
	}
	s.condClose = kept
}

// resolveConditionalClose reports whether rec is fully resolved and can be
// dropped. A still-live origin is cancelled but kept for a later sweep, so
// whatever traded before the cancel lands still gets closed or stopped out
// instead of being abandoned.
func (s *Supervisor) resolveConditionalClose(rec *ConditionalCloseRecord) bool {
	origin, ok := s.reg.Pack(rec.OriginID)
	if !ok {
		return true
	}

	if !origin.Order.Status.Terminal() {
		if err := s.reg.CancelOrder(s.ctx, origin.ID); err != nil {
			log.Warn().Err(err).Str("order_id", origin.ID).Msg("supervisor: conditional-close expiry cancel failed")
		}
		return false
	}
	if origin.Order.TradedVolume.IsZero() {
		return true
	}

	if rec.TargetProfit == nil {
		if err := s.ComposoryClose(origin); err != nil {
			log.Error().Err(err).Str("order_id", origin.ID).Msg("supervisor: conditional composory close failed")
		}
		return true
	}

	avg := origin.AvgPrice()
	direction := decimal.NewFromInt(int64(origin.Order.Side.Sign()))
	stoplossPrice := avg.Mul(decimal.NewFromInt(1).Add(direction.Mul(*rec.TargetProfit)))
	s.SetAutoExit(origin, &stoplossPrice, nil, false)

	if tick, ok := s.cache.LastTick(origin.Order.Symbol); ok {
		s.execAutoExit(origin, tick.AskPrice, tick.BidPrice, false)
	}
	return true
}
