package supervisor

import (
	"context"

	"github.com/quantforge/ordersupervisor/marketdata"
	"github.com/quantforge/ordersupervisor/registry"
	"github.com/quantforge/ordersupervisor/types"
)

// OnTick feeds a fresh touch into the Market Cache. Composory pricing and
// AutoExit read the last tick from the cache rather than the tick directly.
// Depth pacing reads the cached depth ladder instead, which is fed through
// marketdata.Cache.OnDepth, not through this method.
func (s *Supervisor) OnTick(tick marketdata.Tick) {
	s.cache.OnTick(tick)
}

// OnBar feeds a fresh bar into the Market Cache.
func (s *Supervisor) OnBar(bar marketdata.Bar) {
	s.cache.OnBar(bar)
}

// OnOrder forwards a gateway order snapshot to the Registry, which dispatches
// it to every supervision task whose tag the owning pack carries.
func (s *Supervisor) OnOrder(snap types.OrderSnapshot) {
	s.reg.OnOrder(snap)
}

// OnTrade forwards a gateway fill to the Registry.
func (s *Supervisor) OnTrade(trade types.Trade) {
	s.reg.OnTrade(trade)
}

// MakeOrder submits a primitive order through the Registry.
func (s *Supervisor) MakeOrder(ctx context.Context, p registry.MakeOrderParams) (*registry.OrderPack, error) {
	return s.reg.MakeOrder(ctx, p)
}

// CancelOrder cancels a live order through the Registry.
func (s *Supervisor) CancelOrder(ctx context.Context, id string) error {
	return s.reg.CancelOrder(ctx, id)
}

// Pack exposes a registered pack by id.
func (s *Supervisor) Pack(id string) (*registry.OrderPack, bool) {
	return s.reg.Pack(id)
}

// CheckOnPeriodStart runs every task pool's start-of-bar sweep for symbol:
// composory repends, time-limit expirations, stop-loss/take-profit
// evaluation, and conditional-close resolution. Conditional-close and
// time-limit sweeps are symbol-agnostic (they iterate their own record
// sets), so they run once regardless of which symbol's bar triggered them.
func (s *Supervisor) CheckOnPeriodStart(bar marketdata.Bar) {
	s.checkComposoryOrders()
	s.checkTimeLimitOrders()
	s.CheckAutoExit(bar.Symbol, false)
	s.checkConditionalClose()
}

// CheckOnPeriodEnd runs every task pool's end-of-bar sweep for symbol:
// composory-close pool reconciliation, depth pacing, and step pacing.
func (s *Supervisor) CheckOnPeriodEnd(bar marketdata.Bar) {
	s.CheckComposoryCloseOrders(bar.Symbol)
	s.checkDepthOrders()
	s.checkStepOrders()
}

// Registry exposes the underlying Registry for query/predicate forwarding
// callers need beyond the Supervisor's own surface (OrderClosedVolume,
// OrderLockedVolume, OrderUnlockedVolume, OrderClosed, IsClosingPending).
func (s *Supervisor) Registry() *registry.Registry { return s.reg }
