package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/gateway"
	"github.com/quantforge/ordersupervisor/marketdata"
	"github.com/quantforge/ordersupervisor/registry"
	"github.com/quantforge/ordersupervisor/types"
)

// DepthRecord paces a target volume like StepRecord, but sizes each chunk
// from how much of the opposite side's order book is currently executable
// against the record's limit price, instead of a fixed step size.
type DepthRecord struct {
	Symbol    string
	OrderType types.OrderType
	Price     decimal.Decimal
	Target    decimal.Decimal
	Levels    int
	Wait      time.Duration
	ExpireAt  time.Time

	NextSendTime time.Time
	Children     []*TimeLimitRecord
}

// MakeDepthOrder starts a depth-paced intent. Degrades to a single
// TimeLimit submission in backtesting, for the same reason Step does.
func (s *Supervisor) MakeDepthOrder(ctx context.Context, ot types.OrderType, symbol string, price, volume decimal.Decimal, levels int, expire, wait time.Duration) (*DepthRecord, error) {
	if s.gw.GetEngineType() != gateway.EngineLive {
		log.Info().Str("symbol", symbol).Msg("supervisor: backtest engine, depth order degraded to single TimeLimit")
		if _, err := s.TimeLimitOrder(ctx, ot, symbol, price, volume, expire); err != nil {
			return nil, err
		}
		return nil, nil
	}

	now := s.reg.Now()
	rec := &DepthRecord{
		Symbol:       symbol,
		OrderType:    ot,
		Price:        price,
		Target:       volume,
		Levels:       levels,
		Wait:         wait,
		ExpireAt:     now.Add(expire),
		NextSendTime: now,
	}
	s.depthRecords = append(s.depthRecords, rec)
	return rec, nil
}

// executableVolume walks up to Levels rungs of the opposite side's book
// (asks for a long order, bids for a short one), accumulating volume at
// every level executable against limit, and stopping at the first level
// that isn't. long is true for buying orders (BUY, COVER); direction is +1
// for those, -1 for selling orders.
func executableVolume(depth marketdata.Depth, long bool, limit decimal.Decimal, levels int) decimal.Decimal {
	direction := decimal.NewFromInt(1)
	if !long {
		direction = decimal.NewFromInt(-1)
	}

	acc := decimal.Zero
	for i := 0; i < levels; i++ {
		level := depth.LevelAt(!long, i) // long walks asks, short walks bids
		if level.Volume.IsZero() && level.Price.IsZero() {
			break
		}
		executable := limit.Sub(level.Price).Mul(direction).GreaterThanOrEqual(decimal.Zero)
		if !executable {
			break
		}
		acc = acc.Add(level.Volume)
	}
	return acc
}

func (s *Supervisor) execDepthOrder(rec *DepthRecord) {
	now := s.reg.Now()
	if now.Before(rec.NextSendTime) {
		return
	}

	locked := decimal.Zero
	for _, c := range rec.Children {
		locked = locked.Add(lockedOrFilled(s.reg, c))
	}
	locked = locked.Round(s.reg.NDigits())
	unlocked := rec.Target.Sub(locked).Round(s.reg.NDigits())
	if unlocked.LessThanOrEqual(decimal.Zero) {
		return
	}

	depth, ok := s.cache.LastDepth(rec.Symbol)
	if !ok {
		return
	}

	long := rec.OrderType == types.BUY || rec.OrderType == types.COVER
	chunk := executableVolume(depth, long, rec.Price, rec.Levels)
	if chunk.GreaterThan(unlocked) {
		chunk = unlocked
	}
	if chunk.LessThanOrEqual(decimal.Zero) {
		return
	}

	remainingExpire := rec.ExpireAt.Sub(now)
	if remainingExpire <= 0 {
		return
	}

	childRec, _, err := s.makeTimeLimitChild(s.ctx, rec.OrderType, rec.Symbol, rec.Price, chunk, remainingExpire, registry.TrackDepth)
	if err != nil {
		log.Error().Err(err).Str("symbol", rec.Symbol).Msg("supervisor: depth child order failed")
		return
	}
	rec.Children = append(rec.Children, childRec)
	rec.NextSendTime = now.Add(rec.Wait)
}

// checkDepthOrders is the periodic sweep (period end).
func (s *Supervisor) checkDepthOrders() {
	kept := s.depthRecords[:0]
	for _, rec := range s.depthRecords {
		s.execDepthOrder(rec)

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
	s.depthRecords = kept
}

func (s *Supervisor) onDepthChildOrder(r *registry.Registry, pack *registry.OrderPack) {}
