package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/registry"
	"github.com/quantforge/ordersupervisor/types"
)

// TimeLimitRecord is one active time-limited intent: a single primitive
// order submitted at a fixed price, cancelled if it hasn't fully traded by
// its expiry.
type TimeLimitRecord struct {
	Symbol    string
	OrderType types.OrderType
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Expire    time.Duration

	Live                map[string]struct{}
	FinishedWithFill    map[string]struct{}
	FinishedWithoutFill map[string]struct{}
}

func newTimeLimitRecord(symbol string, ot types.OrderType, price, volume decimal.Decimal, expire time.Duration) *TimeLimitRecord {
	return &TimeLimitRecord{
		Symbol:              symbol,
		OrderType:           ot,
		Price:               price,
		Volume:              volume,
		Expire:              expire,
		Live:                make(map[string]struct{}),
		FinishedWithFill:    make(map[string]struct{}),
		FinishedWithoutFill: make(map[string]struct{}),
	}
}

// TimeLimitOrder submits one primitive limit order at limitPrice, expiring
// after expire. expire of zero means "attach no expiry at all", which is how
// a repend replacement at a new price submits.
func (s *Supervisor) TimeLimitOrder(ctx context.Context, ot types.OrderType, symbol string, limitPrice, volume decimal.Decimal, expire time.Duration) (*TimeLimitRecord, error) {
	rec, _, err := s.makeTimeLimitChild(ctx, ot, symbol, limitPrice, volume, expire)
	return rec, err
}

// makeTimeLimitChild is TimeLimitOrder's implementation. extraTags lets
// Step/Depth tag the child with their own track in addition to
// TrackTimeLimit; the created pack is returned too.
func (s *Supervisor) makeTimeLimitChild(ctx context.Context, ot types.OrderType, symbol string, limitPrice, volume decimal.Decimal, expire time.Duration, extraTags ...registry.TrackTag) (*TimeLimitRecord, *registry.OrderPack, error) {
	if !s.isOrderVolumeValid(symbol, ot, volume) {
		log.Warn().Str("symbol", symbol).Str("volume", volume.String()).Msg("supervisor: time-limit volume exceeds cap, skipping")
		return nil, nil, nil
	}

	tracks := append([]registry.TrackTag{registry.TrackTimeLimit}, extraTags...)
	pack, err := s.reg.MakeOrder(ctx, registry.MakeOrderParams{
		OrderType: ot,
		Symbol:    symbol,
		Price:     limitPrice,
		Volume:    volume,
		Tracks:    tracks,
	})
	if err != nil {
		return nil, nil, err
	}
	if expire > 0 {
		pack.ExpireAt = s.reg.Now().Add(expire)
	}

	rec := newTimeLimitRecord(symbol, ot, limitPrice, volume, expire)
	rec.Live[pack.ID] = struct{}{}
	registry.SetSlot(pack, registry.TrackTimeLimit, rec)
	s.timeLimitRecords = append(s.timeLimitRecords, rec)

	return rec, pack, nil
}

// onTimeLimitOrder is dispatched on every order event for a pack carrying
// TrackTimeLimit.
func (s *Supervisor) onTimeLimitOrder(r *registry.Registry, pack *registry.OrderPack) {
	rec, ok := registry.GetSlot[*TimeLimitRecord](pack, registry.TrackTimeLimit)
	if !ok {
		return
	}
	if pack.Order.Status.Terminal() {
		delete(rec.Live, pack.ID)
		if pack.Order.TradedVolume.GreaterThan(decimal.Zero) {
			rec.FinishedWithFill[pack.ID] = struct{}{}
		} else {
			rec.FinishedWithoutFill[pack.ID] = struct{}{}
		}
		return
	}
	s.checkExpireAndCancel(pack)
}

// checkTimeLimitOrders is the periodic sweep: drives expiry cancellation for
// every still-live id and garbage-collects records whose live set emptied.
func (s *Supervisor) checkTimeLimitOrders() {
	kept := s.timeLimitRecords[:0]
	for _, rec := range s.timeLimitRecords {
		for id := range rec.Live {
			pack, ok := s.reg.Pack(id)
			if !ok {
				delete(rec.Live, id)
				continue
			}
			s.checkExpireAndCancel(pack)
		}
		if len(rec.Live) > 0 {
			kept = append(kept, rec)
		}
	}
	s.timeLimitRecords = kept
}
