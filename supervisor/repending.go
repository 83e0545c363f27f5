package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/registry"
	"github.com/quantforge/ordersupervisor/types"
)

// RependingOrderInfo holds the replacement terms for one repend attempt.
// NewVolume/NewPrice are nil when the caller wants the default behavior
// (cap to remaining volume; go aggressive if no price was supplied).
type RependingOrderInfo struct {
	NewVolume   *decimal.Decimal
	NewPrice    *decimal.Decimal
	RependedIDs []string
}

const defaultComposoryExpire = 30 * time.Second

// RependOrder arranges for a replacement order once pack reaches a
// cancelled/rejected state: installs the replacement terms, then either
// fires immediately (if the pack already sits in that state) or requests a
// cancel to get there. A pack that has already fully traded is left alone.
func (s *Supervisor) RependOrder(ctx context.Context, pack *registry.OrderPack, volume, price *decimal.Decimal) {
	if pack.Order.Status == types.AllTraded {
		return
	}

	info := &RependingOrderInfo{NewVolume: volume, NewPrice: price}
	registry.SetSlot(pack, registry.TrackRepending, info)
	pack.AddTrack(registry.TrackRepending)

	if pack.Order.Status == types.Cancelled || pack.Order.Status == types.Rejected {
		s.onRependingOrder(s.reg, pack)
		return
	}

	if err := s.reg.CancelOrder(ctx, pack.ID); err != nil {
		log.Warn().Err(err).Str("order_id", pack.ID).Msg("supervisor: repend cancel failed")
	}
}

func (s *Supervisor) onRependingOrder(r *registry.Registry, pack *registry.OrderPack) {
	info, ok := registry.GetSlot[*RependingOrderInfo](pack, registry.TrackRepending)
	if !ok {
		return
	}
	if pack.Order.Status != types.Cancelled && pack.Order.Status != types.Rejected {
		return
	}

	baseVolume := pack.Order.TotalVolume
	if info.NewVolume != nil {
		baseVolume = *info.NewVolume
	}
	replacement := decimal.Min(baseVolume, pack.Order.TotalVolume.Sub(pack.Order.TradedVolume)).Round(r.NDigits())

	var open *registry.OrderPack
	isClose := registry.IsCloseOrder(pack)
	if isClose {
		open, _ = r.Pack(pack.OpenID)
		if open != nil {
			unlocked := r.OrderUnlockedVolume(open)
			if replacement.GreaterThan(unlocked) {
				replacement = unlocked
			}
		}
	}

	if replacement.LessThanOrEqual(decimal.Zero) {
		log.Debug().Str("order_id", pack.ID).Msg("supervisor: repend residual volume exhausted, no-op")
		return
	}

	var newID string
	if info.NewPrice != nil {
		if isClose && open != nil {
			newPack, err := s.CloseOrder(s.ctx, open, *info.NewPrice, replacement, false)
			if err != nil {
				log.Error().Err(err).Str("order_id", pack.ID).Msg("supervisor: repend close order failed")
				return
			}
			if newPack == nil {
				return
			}
			newID = newPack.ID
		} else {
			rec, err := s.TimeLimitOrder(s.ctx, pack.Order.OrderType, pack.Order.Symbol, *info.NewPrice, replacement, 0)
			if err != nil || rec == nil {
				if err != nil {
					log.Error().Err(err).Str("order_id", pack.ID).Msg("supervisor: repend limit order failed")
				}
				return
			}
			for id := range rec.Live {
				newID = id
			}
		}
	} else {
		openID := ""
		if isClose && open != nil {
			openID = open.ID
		}
		compRec := s.ComposoryOrder(s.ctx, pack.Order.OrderType, pack.Order.Symbol, replacement, defaultComposoryExpire, openID)
		for id := range compRec.Live {
			newID = id
		}
	}

	if newID != "" {
		info.RependedIDs = append(info.RependedIDs, newID)
	}
}
