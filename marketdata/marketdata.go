// Package marketdata keeps the Market Cache the supervision core reads
// prices from: last tick, last bar, and a depth ladder per symbol.
package marketdata

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Tick is the last-trade/quote snapshot for a symbol.
type Tick struct {
	Symbol     string
	LastPrice  decimal.Decimal
	BidPrice   decimal.Decimal
	AskPrice   decimal.Decimal
	BidVolume  decimal.Decimal
	AskVolume  decimal.Decimal
	UpperLimit decimal.Decimal
	LowerLimit decimal.Decimal
	Timestamp  time.Time
}

// Bar is a completed OHLCV candle for a symbol at a given interval.
type Bar struct {
	Symbol    string
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}

// DepthLevel is one rung of the order book ladder.
type DepthLevel struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// Depth is the bid/ask ladder for a symbol, nearest level first.
type Depth struct {
	Bids []DepthLevel
	Asks []DepthLevel
}

// BestBid returns the top bid level, or the zero level if the book is empty.
func (d Depth) BestBid() DepthLevel {
	if len(d.Bids) == 0 {
		return DepthLevel{}
	}
	return d.Bids[0]
}

// BestAsk returns the top ask level, or the zero level if the book is empty.
func (d Depth) BestAsk() DepthLevel {
	if len(d.Asks) == 0 {
		return DepthLevel{}
	}
	return d.Asks[0]
}

// LevelAt returns the price/volume n levels deep into the given side
// (0-indexed), or the zero level if the book isn't that deep. Depth-order
// tasks use this to pull a quote a configurable number of rungs in.
func (d Depth) LevelAt(bid bool, n int) DepthLevel {
	side := d.Asks
	if bid {
		side = d.Bids
	}
	if n < 0 || n >= len(side) {
		return DepthLevel{}
	}
	return side[n]
}

// Cache is the Market Cache: last tick, last bar and depth ladder per
// symbol, guarded for concurrent reads from many supervision goroutines and
// concurrent writes from one feed adapter.
type Cache struct {
	mu    sync.RWMutex
	ticks map[string]Tick
	bars  map[string]Bar
	depth map[string]Depth
}

// NewCache builds an empty Market Cache.
func NewCache() *Cache {
	return &Cache{
		ticks: make(map[string]Tick),
		bars:  make(map[string]Bar),
		depth: make(map[string]Depth),
	}
}

// OnTick records a new tick, overwriting whatever was cached for the symbol.
func (c *Cache) OnTick(t Tick) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks[t.Symbol] = t
}

// OnBar records a new completed bar for a symbol.
func (c *Cache) OnBar(b Bar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bars[b.Symbol] = b
}

// OnDepth replaces the cached depth ladder for a symbol.
func (c *Cache) OnDepth(symbol string, d Depth) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.depth[symbol] = d
}

// LastTick returns the most recent tick for a symbol and whether one exists.
func (c *Cache) LastTick(symbol string) (Tick, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.ticks[symbol]
	return t, ok
}

// LastBar returns the most recent completed bar for a symbol.
func (c *Cache) LastBar(symbol string) (Bar, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bars[symbol]
	return b, ok
}

// LastDepth returns the cached depth ladder for a symbol.
func (c *Cache) LastDepth(symbol string) (Depth, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.depth[symbol]
	return d, ok
}
