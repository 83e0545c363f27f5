package marketdata

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, _ := decimal.NewFromString(s)
	return v
}

func TestCacheLastTickBar(t *testing.T) {
	c := NewCache()
	_, ok := c.LastTick("XYZ")
	assert.False(t, ok)

	c.OnTick(Tick{Symbol: "XYZ", LastPrice: d("10")})
	tick, ok := c.LastTick("XYZ")
	assert.True(t, ok)
	assert.True(t, tick.LastPrice.Equal(d("10")))

	c.OnBar(Bar{Symbol: "XYZ", Close: d("11")})
	bar, ok := c.LastBar("XYZ")
	assert.True(t, ok)
	assert.True(t, bar.Close.Equal(d("11")))
}

func TestDepthBestBidAsk(t *testing.T) {
	depth := Depth{
		Bids: []DepthLevel{{Price: d("99.9"), Volume: d("5")}},
		Asks: []DepthLevel{{Price: d("100.1"), Volume: d("3")}},
	}
	assert.True(t, depth.BestBid().Price.Equal(d("99.9")))
	assert.True(t, depth.BestAsk().Price.Equal(d("100.1")))
}

func TestDepthBestBidAskEmpty(t *testing.T) {
	var depth Depth
	assert.True(t, depth.BestBid().Price.IsZero())
	assert.True(t, depth.BestAsk().Price.IsZero())
}

func TestDepthLevelAt(t *testing.T) {
	depth := Depth{
		Asks: []DepthLevel{
			{Price: d("99.5"), Volume: d("3")},
			{Price: d("99.9"), Volume: d("4")},
		},
	}
	lvl := depth.LevelAt(false, 1)
	assert.True(t, lvl.Price.Equal(d("99.9")))

	assert.True(t, depth.LevelAt(false, 5).Price.IsZero())
	assert.True(t, depth.LevelAt(false, -1).Price.IsZero())
}

func TestCacheOnDepthLastDepth(t *testing.T) {
	c := NewCache()
	_, ok := c.LastDepth("XYZ")
	assert.False(t, ok)

	c.OnDepth("XYZ", Depth{Bids: []DepthLevel{{Price: d("1"), Volume: d("1")}}})
	depth, ok := c.LastDepth("XYZ")
	assert.True(t, ok)
	assert.Len(t, depth.Bids, 1)
}
