package marketdata

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	reconnectDelay = 5 * time.Second
	pingInterval   = 30 * time.Second
)

// WSFeed is a reference live tick adapter: connects to a single WebSocket
// endpoint, decodes quote messages and pushes them into a Cache via OnTick.
// It is not part of the supervision core itself, only a concrete source for
// the ticks that Depth/Composory tasks read out of the Cache.
type WSFeed struct {
	mu      sync.RWMutex
	url     string
	cache   *Cache
	conn    *websocket.Conn
	running bool
	stopCh  chan struct{}
}

// NewWSFeed builds a feed that will push decoded ticks into cache.
func NewWSFeed(url string, cache *Cache) *WSFeed {
	return &WSFeed{url: url, cache: cache, stopCh: make(chan struct{})}
}

// Start connects in the background and keeps reconnecting until Stop.
func (f *WSFeed) Start(ctx context.Context) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.connectionLoop(ctx)
}

// Stop tears down the connection and halts reconnection attempts.
func (f *WSFeed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return
	}
	f.running = false
	close(f.stopCh)
	if f.conn != nil {
		f.conn.Close()
	}
}

func (f *WSFeed) connectionLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
		if err != nil {
			log.Error().Err(err).Str("url", f.url).Msg("marketdata: ws dial failed, retrying")
			time.Sleep(reconnectDelay)
			continue
		}

		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()

		go f.pingLoop()
		f.readLoop(ctx)
		time.Sleep(reconnectDelay)
	}
}

func (f *WSFeed) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-f.stopCh:
			return
		case <-ticker.C:
			f.mu.RLock()
			conn := f.conn
			f.mu.RUnlock()
			if conn != nil {
				conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

// wireMessage is the decoded shape of one quote update on the wire.
type wireMessage struct {
	Symbol    string `json:"symbol"`
	Last      string `json:"last"`
	Bid       string `json:"bid"`
	Ask       string `json:"ask"`
	BidVolume string `json:"bid_volume"`
	AskVolume string `json:"ask_volume"`
}

func (f *WSFeed) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Msg("marketdata: ws read error")
			return
		}

		var msg wireMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		f.cache.OnTick(tickFromWire(msg))
	}
}

func tickFromWire(msg wireMessage) Tick {
	parse := func(s string) decimal.Decimal {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero
		}
		return d
	}
	return Tick{
		Symbol:    msg.Symbol,
		LastPrice: parse(msg.Last),
		BidPrice:  parse(msg.Bid),
		AskPrice:  parse(msg.Ask),
		BidVolume: parse(msg.BidVolume),
		AskVolume: parse(msg.AskVolume),
		Timestamp: time.Now(),
	}
}
