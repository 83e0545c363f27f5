package registry

import (
	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/types"
)

// Link records that close reduces open: checks offset and that both legs
// act on the same position side (a SELL's Side is Long, matching the BUY
// that opened the position it reduces, see types.OrderType.Side), then
// wires both packs' cross-references. Both checks are precondition
// violations, not transient outcomes: a strategy asking to link
// incompatible packs is a bug.
func (r *Registry) Link(open, closePack *OrderPack) error {
	if IsCloseOrder(open) {
		return precondition("pack %s is itself a close order, cannot be an open leg", open.ID)
	}
	if closePack.Order.Offset != types.Close {
		return precondition("pack %s is not a close-offset order", closePack.ID)
	}
	if open.Order.Side != closePack.Order.Side {
		return precondition("pack %s and %s do not act on the same position side", open.ID, closePack.ID)
	}

	open.CloseIDs = append(open.CloseIDs, closePack.ID)
	closePack.OpenID = open.ID
	return nil
}

// OrderClosedVolume sums the traded volume of every close pack linked
// against op. A pack force-closed via ComposoryClose shortcuts this to its
// full traded volume (its CPOClosed flag).
func (r *Registry) OrderClosedVolume(op *OrderPack) decimal.Decimal {
	if op.CPOClosed {
		return op.Order.TradedVolume.Round(r.cfg.NDigits)
	}
	sum := SumField(r.Resolve(op.CloseIDs), func(p *OrderPack) decimal.Decimal { return p.Order.TradedVolume })
	return sum.Round(r.cfg.NDigits)
}

// OrderLockedVolume sums, for every linked close pack, its traded volume if
// terminal or its full requested volume if still live: optimistic locking,
// a live close order reserves everything it asked for.
func (r *Registry) OrderLockedVolume(op *OrderPack) decimal.Decimal {
	if op.CPOClosed {
		return op.Order.TradedVolume.Round(r.cfg.NDigits)
	}
	closes := r.Resolve(op.CloseIDs)
	settled := Aggregate(closes, func(p *OrderPack) bool { return p.Order.Status.Terminal() },
		func(p *OrderPack) decimal.Decimal { return p.Order.TradedVolume })
	pending := Aggregate(closes, func(p *OrderPack) bool { return !p.Order.Status.Terminal() },
		func(p *OrderPack) decimal.Decimal { return p.Order.TotalVolume })
	return settled.Add(pending).Round(r.cfg.NDigits)
}

// OrderUnlockedVolume is the fraction of op's fills not currently earmarked
// by any live or completed close order: the amount still eligible to be
// closed.
func (r *Registry) OrderUnlockedVolume(op *OrderPack) decimal.Decimal {
	unlocked := op.Order.TradedVolume.Sub(r.OrderLockedVolume(op))
	return unlocked.Round(r.cfg.NDigits)
}

// OrderClosed reports whether every filled unit of op has been closed by a
// completed close order (not merely locked by a pending one).
func (r *Registry) OrderClosed(op *OrderPack) bool {
	remaining := op.Order.TradedVolume.Sub(r.OrderClosedVolume(op)).Round(r.cfg.NDigits)
	return remaining.LessThanOrEqual(decimal.Zero)
}

// IsClosingPending reports whether op has at least one linked close order
// still live.
func (r *Registry) IsClosingPending(op *OrderPack) bool {
	for _, id := range op.CloseIDs {
		if c, ok := r.packs[id]; ok && !c.Order.Status.Terminal() {
			return true
		}
	}
	return false
}

// ListCloseOrderPacks returns the live OrderPack for every linked close id,
// skipping ids the registry no longer has a record for.
func (r *Registry) ListCloseOrderPacks(op *OrderPack) []*OrderPack {
	out := make([]*OrderPack, 0, len(op.CloseIDs))
	for _, id := range op.CloseIDs {
		if c, ok := r.packs[id]; ok {
			out = append(out, c)
		}
	}
	return out
}
