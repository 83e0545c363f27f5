// Package registry is the authoritative map from gateway order id to
// OrderPack, plus the linking/volume-accounting machinery and the callback
// dispatcher every supervision task rides on.
package registry

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/types"
)

// TrackTag names a supervision callback a pack's dispatcher invokes on
// every order event, dispatched through a static table keyed by tag rather
// than free-form string lookups.
type TrackTag int

const (
	TrackTimeLimit TrackTag = iota
	TrackComposory
	TrackStep
	TrackDepth
	TrackRepending
	TrackAutoExit
	TrackConditionalClose
	TrackAssemble
	TrackComposoryClosePool
)

func (t TrackTag) String() string {
	switch t {
	case TrackTimeLimit:
		return "TimeLimit"
	case TrackComposory:
		return "Composory"
	case TrackStep:
		return "Step"
	case TrackDepth:
		return "Depth"
	case TrackRepending:
		return "Repending"
	case TrackAutoExit:
		return "AutoExit"
	case TrackConditionalClose:
		return "ConditionalClose"
	case TrackAssemble:
		return "Assemble"
	case TrackComposoryClosePool:
		return "ComposoryClosePool"
	default:
		return "Unknown"
	}
}

// OrderPack is the core's record for one gateway order id. Info carries one
// optional slot per supervision task type that has attached itself to this
// pack; callers use SetSlot/GetSlot rather than reaching into the map
// directly so each task's payload type stays checked.
type OrderPack struct {
	ID     string
	Order  types.OrderSnapshot
	Trades map[string]types.Trade
	Tracks []TrackTag
	Info   map[TrackTag]any

	// OpenID is set on a close pack to the id of the open pack it reduces.
	OpenID string
	// CloseIDs is the set of close pack ids linked against this open pack.
	CloseIDs []string
	// CPOClosed marks a pack force-closed via composoryClose: closed
	// volume is shortcut to equal traded volume.
	CPOClosed bool

	// ParentID/ChildIDs record Assemble splits: a fabricated child carries
	// ParentID, the terminal pack it was split from carries ChildIDs.
	ParentID string
	ChildIDs []string

	ExpireAt  time.Time
	FinishTag bool
	CancelTag bool
}

// NewSyntheticPack builds a pack that bypasses the gateway entirely, used
// by Assemble/split to fabricate child packs addressing sub-volumes of an
// already-terminal parent.
func NewSyntheticPack(id string, snap types.OrderSnapshot) *OrderPack {
	return newOrderPack(id, snap)
}

func newOrderPack(id string, snap types.OrderSnapshot) *OrderPack {
	return &OrderPack{
		ID:     id,
		Order:  snap,
		Trades: make(map[string]types.Trade),
		Info:   make(map[TrackTag]any),
	}
}

// HasTrack reports whether tag is registered on this pack's dispatch list.
func (p *OrderPack) HasTrack(tag TrackTag) bool {
	for _, t := range p.Tracks {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTrack appends tag to the pack's dispatch list if not already present.
func (p *OrderPack) AddTrack(tag TrackTag) {
	if !p.HasTrack(tag) {
		p.Tracks = append(p.Tracks, tag)
	}
}

// SetSlot stores a task's supervision payload on the pack under tag.
func SetSlot[T any](p *OrderPack, tag TrackTag, v T) {
	p.Info[tag] = v
}

// GetSlot retrieves the task payload stored under tag, if any.
func GetSlot[T any](p *OrderPack, tag TrackTag) (T, bool) {
	v, ok := p.Info[tag]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// AvgPrice returns the pack's average fill price, falling back to the mean
// of recorded trades when the snapshot doesn't carry one.
func (p *OrderPack) AvgPrice() (price decimal.Decimal) {
	if !p.Order.AvgPrice.IsZero() {
		return p.Order.AvgPrice
	}
	if p.Order.TradedVolume.IsZero() || len(p.Trades) == 0 {
		return decimal.Zero
	}
	var sumNotional, sumVolume decimal.Decimal
	for _, t := range p.Trades {
		sumNotional = sumNotional.Add(t.Price.Mul(t.Volume))
		sumVolume = sumVolume.Add(t.Volume)
	}
	if sumVolume.IsZero() {
		return decimal.Zero
	}
	return sumNotional.Div(sumVolume)
}

// Predicates over pack shape, independent of any one supervision task's
// internal bookkeeping.

func IsCloseOrder(p *OrderPack) bool  { return p.OpenID != "" }
func HasCloseOrder(p *OrderPack) bool { return len(p.CloseIDs) > 0 }
func IsCancel(p *OrderPack) bool      { return p.CancelTag }

func IsAssembleOrigin(p *OrderPack) bool { return len(p.ChildIDs) > 0 }
func IsAssembleChild(p *OrderPack) bool  { return p.ParentID != "" }
func IsAssembled(p *OrderPack) bool      { return IsAssembleOrigin(p) || IsAssembleChild(p) }

func IsComposory(p *OrderPack) bool { return p.HasTrack(TrackComposory) }
func IsTimeLimit(p *OrderPack) bool { return p.HasTrack(TrackTimeLimit) }
func IsAutoExit(p *OrderPack) bool  { return p.HasTrack(TrackAutoExit) }
