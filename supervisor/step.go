package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/gateway"
	"github.com/quantforge/ordersupervisor/registry"
	"github.com/quantforge/ordersupervisor/types"
)

// StepRecord drip-feeds a target volume as a sequence of TimeLimit children
// until the overall expiry, pacing one child every Wait interval.
type StepRecord struct {
	Symbol    string
	OrderType types.OrderType
	Price     decimal.Decimal
	Target    decimal.Decimal
	Step      decimal.Decimal
	Wait      time.Duration
	ExpireAt  time.Time

	NextSendTime time.Time
	Children     []*TimeLimitRecord
}

// MakeStepOrder starts a stepped intent. In backtesting the step/depth
// semantics cannot be faithfully simulated tick-by-tick, so this degrades
// to a single TimeLimit submission for the whole volume.
func (s *Supervisor) MakeStepOrder(ctx context.Context, ot types.OrderType, symbol string, price, volume, step decimal.Decimal, expire, wait time.Duration) (*StepRecord, error) {
	if s.gw.GetEngineType() != gateway.EngineLive {
		log.Info().Str("symbol", symbol).Msg("supervisor: backtest engine, step order degraded to single TimeLimit")
		if _, err := s.TimeLimitOrder(ctx, ot, symbol, price, volume, expire); err != nil {
			return nil, err
		}
		return nil, nil
	}

	now := s.reg.Now()
	rec := &StepRecord{
		Symbol:       symbol,
		OrderType:    ot,
		Price:        price,
		Target:       volume,
		Step:         step,
		Wait:         wait,
		ExpireAt:     now.Add(expire),
		NextSendTime: now,
	}
	s.stepRecords = append(s.stepRecords, rec)
	return rec, nil
}

// lockedOrFilled is the "Σ totalVolume(live) + Σ tradedVolume(finished)"
// figure for one TimeLimit child: its requested volume while live,
// otherwise its actual fill.
func lockedOrFilled(reg *registry.Registry, child *TimeLimitRecord) decimal.Decimal {
	if len(child.Live) > 0 {
		return child.Volume
	}
	return registry.SumField(reg.Resolve(keys(child.FinishedWithFill)), func(p *registry.OrderPack) decimal.Decimal {
		return p.Order.TradedVolume
	})
}

func childIsDone(child *TimeLimitRecord) bool {
	return len(child.Live) == 0
}

// execStepOrder issues the next child if the pacing interval has elapsed
// and the target hasn't been fully covered yet.
func (s *Supervisor) execStepOrder(rec *StepRecord) {
	now := s.reg.Now()
	if now.Before(rec.NextSendTime) {
		return
	}

	locked := decimal.Zero
	for _, c := range rec.Children {
		locked = locked.Add(lockedOrFilled(s.reg, c))
	}
	locked = locked.Round(s.reg.NDigits())

	if locked.GreaterThanOrEqual(rec.Target) {
		return
	}

	chunk := decimal.Min(rec.Step, rec.Target.Sub(locked))
	remainingExpire := rec.ExpireAt.Sub(now)
	if remainingExpire <= 0 {
		return
	}

	childRec, _, err := s.makeTimeLimitChild(s.ctx, rec.OrderType, rec.Symbol, rec.Price, chunk, remainingExpire, registry.TrackStep)
	if err != nil {
		log.Error().Err(err).Str("symbol", rec.Symbol).Msg("supervisor: step child order failed")
		return
	}
	rec.Children = append(rec.Children, childRec)
	rec.NextSendTime = now.Add(rec.Wait)
}

// checkStepOrders is the periodic sweep (period end): paces every active
// step record and drops ones whose expiry has passed with every child
// settled.
func (s *Supervisor) checkStepOrders() {
	kept := s.stepRecords[:0]
	for _, rec := range s.stepRecords {
		s.execStepOrder(rec)

		now := s.reg.Now()
		allDone := true
		for _, c := range rec.Children {
			if !childIsDone(c) {
				allDone = false
				break
			}
		}
		if now.After(rec.ExpireAt) && allDone {
			continue
		}
		kept = append(kept, rec)
	}
	s.stepRecords = kept
}

// onStepChildOrder is registered for bookkeeping symmetry with the other
// tasks (TrackStep on pack.Tracks marks the pack as a Step child) but does no
// work of its own: a Step child is always also a TimeLimit pack, and
// TrackTimeLimit's callback, which always runs first per Tracks order,
// already handles its lifecycle.
func (s *Supervisor) onStepChildOrder(r *registry.Registry, pack *registry.OrderPack) {}
