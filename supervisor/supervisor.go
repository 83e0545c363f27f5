// Package supervisor implements the nine supervision tasks that translate a
// strategy's intent into sequences of primitive orders against a Registry:
// TimeLimit, Composory, Step, Depth, Repending, AutoExit, ConditionalClose,
// Assemble and the ComposoryClosePool. It also drives the periodic checks
// that advance every task pool on the bar/wall clock.
package supervisor

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/gateway"
	"github.com/quantforge/ordersupervisor/marketdata"
	"github.com/quantforge/ordersupervisor/registry"
	"github.com/quantforge/ordersupervisor/types"
)

// NoVolumeCap is the sentinel maximumOrderVolume returns when a strategy has
// not installed a VolumeCapper: decimal has no infinity, so "uncapped" is
// represented explicitly rather than by a huge number.
var NoVolumeCap = decimal.Decimal{}

// VolumeCapper lets a strategy override per-order volume limits; the
// default Supervisor imposes no cap at all.
type VolumeCapper interface {
	MaximumOrderVolume(symbol string, orderType types.OrderType) decimal.Decimal
}

// Supervisor glues a Registry, a Gateway and a Market Cache together and
// owns every supervision task's pool. All of its entry points are meant to
// be called serially by the surrounding strategy harness, matching the
// Registry's own single-threaded cooperative model.
type Supervisor struct {
	reg   *registry.Registry
	gw    gateway.Gateway
	cache *marketdata.Cache
	ctx   context.Context

	capper VolumeCapper

	timeLimitRecords []*TimeLimitRecord
	composoryRecords []*ComposoryRecord
	stepRecords      []*StepRecord
	depthRecords     []*DepthRecord
	autoExitByOrigin map[string]*AutoExitRecord
	condClose        []*ConditionalCloseRecord
	closePools       map[string]map[types.Side]*ComposoryClosePool

	defaultComposoryCloseExpire int64
}

// New builds a Supervisor and wires every supervision task's callback into
// the Registry's dispatch table. capper may be nil (no volume cap).
func New(reg *registry.Registry, gw gateway.Gateway, cache *marketdata.Cache, capper VolumeCapper) *Supervisor {
	s := &Supervisor{
		reg:                         reg,
		gw:                          gw,
		cache:                       cache,
		ctx:                         context.Background(),
		capper:                      capper,
		autoExitByOrigin:            make(map[string]*AutoExitRecord),
		closePools:                  make(map[string]map[types.Side]*ComposoryClosePool),
		defaultComposoryCloseExpire: 30,
	}

	reg.RegisterCallback(registry.TrackTimeLimit, s.onTimeLimitOrder)
	reg.RegisterCallback(registry.TrackComposory, s.onComposoryEvent)
	reg.RegisterCallback(registry.TrackStep, s.onStepChildOrder)
	reg.RegisterCallback(registry.TrackDepth, s.onDepthChildOrder)
	reg.RegisterCallback(registry.TrackRepending, s.onRependingOrder)
	reg.RegisterCallback(registry.TrackAutoExit, s.onAutoExitOrigin)
	reg.RegisterCallback(registry.TrackConditionalClose, s.onConditionalCloseOrigin)

	return s
}

// WithContext overrides the context used for gateway calls the Supervisor
// issues on its own initiative (expirations, repends, forced closes) rather
// than in direct response to a caller's request.
func (s *Supervisor) WithContext(ctx context.Context) { s.ctx = ctx }

// maximumOrderVolume consults the installed VolumeCapper, defaulting to no
// cap at all.
func (s *Supervisor) maximumOrderVolume(symbol string, ot types.OrderType) (decimal.Decimal, bool) {
	if s.capper == nil {
		return decimal.Zero, false
	}
	cap := s.capper.MaximumOrderVolume(symbol, ot)
	if cap.Equal(NoVolumeCap) {
		return decimal.Zero, false
	}
	return cap, true
}

// isOrderVolumeValid checks volume against the installed cap, if any.
func (s *Supervisor) isOrderVolumeValid(symbol string, ot types.OrderType, volume decimal.Decimal) bool {
	cap, ok := s.maximumOrderVolume(symbol, ot)
	if !ok {
		return true
	}
	return volume.LessThanOrEqual(cap)
}

// checkExpireAndCancel issues an idempotent cancel for a non-terminal pack
// whose expiry has passed. Shared by every task that sets pack.ExpireAt.
func (s *Supervisor) checkExpireAndCancel(pack *registry.OrderPack) {
	if pack.Order.Status.Terminal() {
		return
	}
	if pack.ExpireAt.IsZero() || pack.ExpireAt.After(s.reg.Now()) {
		return
	}
	if err := s.reg.CancelOrder(s.ctx, pack.ID); err != nil {
		log.Warn().Err(err).Str("order_id", pack.ID).Msg("supervisor: expire cancel failed")
	}
}
