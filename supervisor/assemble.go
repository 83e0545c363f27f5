package supervisor

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/registry"
	"github.com/quantforge/ordersupervisor/types"
)

// SplitOrder partitions a terminal pack's filled volume into synthetic
// child packs, so downstream supervision (e.g. attaching distinct
// stoplosses to pieces of a filled order) can address sub-volumes
// independently. Children bypass the gateway: they exist purely as
// Registry entries at AllTraded status. Each requested piece is clamped to
// whatever traded volume remains, so children never sum to more than
// origin's fill; any volume left over after the requested split is emitted
// as one final overflow child.
func (s *Supervisor) SplitOrder(origin *registry.OrderPack, volumes ...decimal.Decimal) ([]*registry.OrderPack, error) {
	if !origin.Order.Status.Terminal() {
		return nil, &registry.PreconditionError{Msg: "SplitOrder requires a terminal pack: " + origin.ID}
	}

	remaining := origin.Order.TradedVolume
	clamped := make([]decimal.Decimal, 0, len(volumes)+1)
	for _, v := range volumes {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		if v.GreaterThan(remaining) {
			v = remaining
		}
		clamped = append(clamped, v)
		remaining = remaining.Sub(v)
	}
	remaining = remaining.Round(s.reg.NDigits())
	if remaining.GreaterThan(decimal.Zero) {
		clamped = append(clamped, remaining)
	}
	volumes = clamped

	avgPrice := origin.AvgPrice()
	children := make([]*registry.OrderPack, 0, len(volumes))
	for i, v := range volumes {
		childID := fmt.Sprintf("%s-%d", origin.ID, i+1)
		child := registry.NewSyntheticPack(childID, types.OrderSnapshot{
			ID:           childID,
			Symbol:       origin.Order.Symbol,
			OrderType:    origin.Order.OrderType,
			Side:         origin.Order.Side,
			Offset:       origin.Order.Offset,
			Price:        avgPrice,
			TotalVolume:  v,
			TradedVolume: v,
			AvgPrice:     avgPrice,
			Status:       types.AllTraded,
			SubmittedAt:  s.reg.Now(),
		})
		child.ParentID = origin.ID
		child.FinishTag = true
		child.AddTrack(registry.TrackAssemble)

		s.reg.RegisterPack(child)
		origin.ChildIDs = append(origin.ChildIDs, childID)
		children = append(children, child)
	}

	origin.AddTrack(registry.TrackAssemble)
	return children, nil
}
