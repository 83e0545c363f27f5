package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/registry"
	"github.com/quantforge/ordersupervisor/types"
)

// ComposoryRecord is an aggressive time-limited intent: like TimeLimit but
// repriced at the exchange's daily limit on every send, and capable of
// spawning a successor via sendComposory when a primitive is cancelled.
type ComposoryRecord struct {
	Symbol    string
	OrderType types.OrderType
	Volume    decimal.Decimal
	Expire    time.Duration

	// OpenPackID is set when this record is closing a specific open pack
	// (composoryClose's residual order); empty for a bare composoryOrder.
	OpenPackID string

	Live                map[string]struct{}
	FinishedWithFill    map[string]struct{}
	FinishedWithoutFill map[string]struct{}
}

func newComposoryRecord(symbol string, ot types.OrderType, volume decimal.Decimal, expire time.Duration, openPackID string) *ComposoryRecord {
	return &ComposoryRecord{
		Symbol:              symbol,
		OrderType:           ot,
		Volume:              volume,
		Expire:              expire,
		OpenPackID:          openPackID,
		Live:                make(map[string]struct{}),
		FinishedWithFill:    make(map[string]struct{}),
		FinishedWithoutFill: make(map[string]struct{}),
	}
}

// ComposoryOrder opens (or continues closing, if openPackID is set) an
// aggressive intent for volume, sending its first primitive immediately if
// market data allows.
func (s *Supervisor) ComposoryOrder(ctx context.Context, ot types.OrderType, symbol string, volume decimal.Decimal, expire time.Duration, openPackID string) *ComposoryRecord {
	rec := newComposoryRecord(symbol, ot, volume, expire, openPackID)
	s.composoryRecords = append(s.composoryRecords, rec)
	s.sendComposory(ctx, rec)
	return rec
}

// composoryPrice picks an aggressive execution price: the daily limit on
// the side the order trades toward (upper for BUY/COVER, lower for
// SHORT/SELL), shaded 1% toward marketable, falling back to the last bar's
// high/low when no tick has arrived yet.
func (s *Supervisor) composoryPrice(symbol string, ot types.OrderType) (decimal.Decimal, bool) {
	long := ot == types.BUY || ot == types.COVER
	if tick, ok := s.cache.LastTick(symbol); ok {
		if long {
			return tick.UpperLimit.Mul(decimal.NewFromFloat(0.99)), true
		}
		return tick.LowerLimit.Mul(decimal.NewFromFloat(1.01)), true
	}
	if bar, ok := s.cache.LastBar(symbol); ok {
		if long {
			return bar.High.Mul(decimal.NewFromFloat(0.99)), true
		}
		return bar.Low.Mul(decimal.NewFromFloat(1.01)), true
	}
	return decimal.Zero, false
}

// sendComposory computes the still-missing volume and dispatches one
// primitive order for it, capping at the linked open pack's unlocked
// volume when this record is closing one.
func (s *Supervisor) sendComposory(ctx context.Context, rec *ComposoryRecord) {
	sent := registry.SumField(s.reg.Resolve(keys(rec.Live)), func(p *registry.OrderPack) decimal.Decimal { return p.Order.TotalVolume })
	filled := registry.SumField(s.reg.Resolve(keys(rec.FinishedWithFill)), func(p *registry.OrderPack) decimal.Decimal { return p.Order.TradedVolume })
	remaining := rec.Volume.Sub(sent).Sub(filled).Round(s.reg.NDigits())

	if remaining.LessThanOrEqual(decimal.Zero) {
		log.Debug().Str("symbol", rec.Symbol).Msg("supervisor: composory volume fully covered")
		return
	}

	var open *registry.OrderPack
	if rec.OpenPackID != "" {
		var ok bool
		open, ok = s.reg.Pack(rec.OpenPackID)
		if ok {
			// Measured from the linked closes directly: once the open pack
			// sits in a close pool, CPOClosed makes OrderUnlockedVolume zero.
			unlocked := open.Order.TradedVolume.Sub(rawLockedVolume(s.reg.ListCloseOrderPacks(open))).Round(s.reg.NDigits())
			if remaining.GreaterThan(unlocked) {
				remaining = unlocked
			}
		}
		if remaining.LessThanOrEqual(decimal.Zero) {
			return
		}
	}

	price, ok := s.composoryPrice(rec.Symbol, rec.OrderType)
	if !ok {
		log.Warn().Str("symbol", rec.Symbol).Msg("supervisor: no market data for composory price, deferring")
		return
	}

	pack, err := s.reg.MakeOrder(ctx, registry.MakeOrderParams{
		OrderType: rec.OrderType,
		Symbol:    rec.Symbol,
		Price:     price,
		Volume:    remaining,
		Tracks:    []registry.TrackTag{registry.TrackComposory},
	})
	if err != nil {
		log.Error().Err(err).Str("symbol", rec.Symbol).Msg("supervisor: composory send failed")
		return
	}
	registry.SetSlot(pack, registry.TrackComposory, rec)
	if rec.Expire > 0 {
		pack.ExpireAt = s.reg.Now().Add(rec.Expire)
	}
	rec.Live[pack.ID] = struct{}{}

	if open != nil {
		if err := s.reg.Link(open, pack); err != nil {
			log.Warn().Err(err).Msg("supervisor: failed to link composory close order")
		}
	}
}

// onComposoryEvent is the raw dispatch callback: it finalizes AllTraded
// fills and drives expiry cancellation, but leaves repending a cancelled or
// rejected primitive to the periodic sweep (handleComposoryOrder's repend
// flag).
func (s *Supervisor) onComposoryEvent(r *registry.Registry, pack *registry.OrderPack) {
	s.handleComposoryOrder(pack, false)
}

func (s *Supervisor) handleComposoryOrder(pack *registry.OrderPack, repend bool) {
	rec, ok := registry.GetSlot[*ComposoryRecord](pack, registry.TrackComposory)
	if !ok {
		return
	}

	switch pack.Order.Status {
	case types.AllTraded:
		delete(rec.Live, pack.ID)
		rec.FinishedWithFill[pack.ID] = struct{}{}
	case types.Cancelled, types.Rejected:
		if !repend {
			return
		}
		delete(rec.Live, pack.ID)
		if pack.Order.TradedVolume.GreaterThan(decimal.Zero) {
			rec.FinishedWithFill[pack.ID] = struct{}{}
		} else {
			rec.FinishedWithoutFill[pack.ID] = struct{}{}
		}
		s.sendComposory(s.ctx, rec)
	default:
		s.checkExpireAndCancel(pack)
	}
}

// checkComposoryOrders is the periodic sweep: drives the repend path for
// every still-live id whose primitive already reached a cancelled/rejected
// state, retries sends deferred for lack of market data, and
// garbage-collects exhausted records.
func (s *Supervisor) checkComposoryOrders() {
	kept := s.composoryRecords[:0]
	for _, rec := range s.composoryRecords {
		for id := range copyKeys(rec.Live) {
			pack, ok := s.reg.Pack(id)
			if !ok {
				delete(rec.Live, id)
				continue
			}
			if pack.Order.Status == types.Cancelled || pack.Order.Status == types.Rejected {
				s.handleComposoryOrder(pack, true)
			} else {
				s.checkExpireAndCancel(pack)
			}
		}
		if len(rec.Live) == 0 {
			if _, ok := s.composoryPrice(rec.Symbol, rec.OrderType); !ok {
				kept = append(kept, rec)
				continue
			}
			s.sendComposory(s.ctx, rec)
		}
		if len(rec.Live) > 0 {
			kept = append(kept, rec)
		}
	}
	s.composoryRecords = kept
}

// keys returns the string keys of a set as a slice.
func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

// copyKeys snapshots a set's keys so the caller can safely delete from the
// set while iterating the copy.
func copyKeys(set map[string]struct{}) map[string]struct{} {
	cp := make(map[string]struct{}, len(set))
	for k := range set {
		cp[k] = struct{}{}
	}
	return cp
}
