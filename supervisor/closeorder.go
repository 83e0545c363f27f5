package supervisor

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/registry"
	"github.com/quantforge/ordersupervisor/types"
)

// CloseOrder submits a single limit close order against open and links it.
// volume is clamped to open's still-unlocked volume; once that's exhausted
// the call is a no-op rather than over-closing. When cover is true, every
// other still-live close order already linked to open is repended at the
// new price too, so "close again at a better price" cancels and replaces
// stale close attempts instead of stacking them.
func (s *Supervisor) CloseOrder(ctx context.Context, open *registry.OrderPack, price, volume decimal.Decimal, cover bool) (*registry.OrderPack, error) {
	if registry.IsCloseOrder(open) {
		return nil, &registry.PreconditionError{Msg: "CloseOrder requires an open pack, got a close pack: " + open.ID}
	}

	unlocked := s.reg.OrderUnlockedVolume(open)
	if volume.GreaterThan(unlocked) {
		volume = unlocked
	}
	if volume.LessThanOrEqual(decimal.Zero) {
		log.Debug().Str("order_id", open.ID).Msg("supervisor: close order no-op, nothing unlocked")
		return nil, nil
	}

	closeType := types.CloseOrderType(open.Order.Side)
	pack, err := s.reg.MakeOrder(ctx, registry.MakeOrderParams{
		OrderType: closeType,
		Symbol:    open.Order.Symbol,
		Price:     price,
		Volume:    volume,
	})
	if err != nil {
		return nil, err
	}
	if err := s.reg.Link(open, pack); err != nil {
		return pack, err
	}

	if cover {
		for _, c := range s.reg.ListCloseOrderPacks(open) {
			if c.ID == pack.ID || c.Order.Status.Terminal() {
				continue
			}
			newPrice := price
			s.RependOrder(ctx, c, nil, &newPrice)
		}
	}

	return pack, nil
}
