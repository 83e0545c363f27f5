// Command supervisor runs a demo wiring of the order supervision core
// against a paper gateway: it submits a handful of supervised orders,
// drives the paper gateway's callbacks back into the Registry, and on
// request dumps the live pack table.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/config"
	"github.com/quantforge/ordersupervisor/gateway"
	"github.com/quantforge/ordersupervisor/ledger"
	"github.com/quantforge/ordersupervisor/marketdata"
	"github.com/quantforge/ordersupervisor/notify"
	"github.com/quantforge/ordersupervisor/registry"
	"github.com/quantforge/ordersupervisor/supervisor"
	"github.com/quantforge/ordersupervisor/types"
)

func main() {
	dump := flag.Bool("dump", false, "print the live pack table and exit")
	symbol := flag.String("symbol", "DEMO-USD", "symbol to trade in the demo run")
	wsURL := flag.String("ws", "", "optional websocket tick feed url")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg := config.Load()

	engine := gateway.EngineBacktest
	if cfg.GatewayEngine == "live" {
		engine = gateway.EngineLive
	}

	gw := gateway.NewPaperGateway(engine, cfg.PaperSlippageBps.IntPart())
	gw.RegisterContract(gateway.Contract{
		Symbol:     *symbol,
		PriceTick:  decimal.NewFromFloat(0.01),
		VolumeTick: decimal.NewFromInt(1),
	})

	regCfg := registry.DefaultConfig()
	regCfg.NDigits = cfg.NDigits
	reg := registry.New(gw, regCfg)

	cache := marketdata.NewCache()
	sup := supervisor.New(reg, gw, cache, nil)

	var led *ledger.Ledger
	if cfg.LedgerEnabled {
		l, err := ledger.Open(cfg.LedgerDriver, cfg.LedgerDSN)
		if err != nil {
			log.Error().Err(err).Msg("cmd/supervisor: ledger open failed, continuing without audit trail")
		} else {
			led = l
		}
	}

	var notifiers notify.Multi
	if cfg.TelegramBotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID, func() string {
			return "supervisor demo running on " + *symbol
		})
		if err != nil {
			log.Warn().Err(err).Msg("cmd/supervisor: telegram notifier disabled")
		} else {
			tg.Start()
			defer tg.Stop()
			notifiers = append(notifiers, tg)
		}
	}

	reg.SetUserHook(func(pack *registry.OrderPack) {
		ev := notify.Event{
			OrderID:   pack.ID,
			Symbol:    pack.Order.Symbol,
			OrderType: pack.Order.OrderType.String(),
			Status:    pack.Order.Status.String(),
			Price:     pack.Order.Price,
			Volume:    pack.Order.TotalVolume,
			Timestamp: pack.Order.SubmittedAt,
		}
		notifiers.NotifyOrder(ev)
		if led != nil {
			led.RecordOrder(ledger.OrderEvent{
				OrderID:      pack.ID,
				Symbol:       pack.Order.Symbol,
				OrderType:    pack.Order.OrderType.String(),
				Status:       pack.Order.Status.String(),
				Price:        pack.Order.Price,
				TotalVolume:  pack.Order.TotalVolume,
				TradedVolume: pack.Order.TradedVolume,
			})
		}
	})

	gw.OnOrder(func(u gateway.OrderUpdate) { sup.OnOrder(u.Snapshot) })
	gw.OnTrade(func(u gateway.TradeUpdate) {
		sup.OnTrade(u.Trade)
		if led != nil {
			led.RecordTrade(ledger.TradeEvent{
				TradeID: u.Trade.ID,
				OrderID: u.Trade.OrderID,
				Price:   u.Trade.Price,
				Volume:  u.Trade.Volume,
			})
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sup.WithContext(ctx)

	if *wsURL != "" {
		feed := marketdata.NewWSFeed(*wsURL, cache)
		feed.Start(ctx)
		defer feed.Stop()
	} else {
		cache.OnTick(marketdata.Tick{
			Symbol:     *symbol,
			LastPrice:  decimal.NewFromFloat(100),
			BidPrice:   decimal.NewFromFloat(99.9),
			AskPrice:   decimal.NewFromFloat(100.1),
			UpperLimit: decimal.NewFromFloat(110),
			LowerLimit: decimal.NewFromFloat(90),
			Timestamp:  time.Now(),
		})
	}

	pack, err := runDemo(ctx, sup, *symbol)
	if err != nil {
		log.Error().Err(err).Msg("cmd/supervisor: demo run failed")
	}

	if *dump && pack != nil {
		dumpPacks(reg, []string{pack.ID})
	}
}

// runDemo submits one time-limit order and attaches a stop-loss, mirroring
// the shape a strategy harness would drive the Supervisor through.
func runDemo(ctx context.Context, sup *supervisor.Supervisor, symbol string) (*registry.OrderPack, error) {
	rec, err := sup.TimeLimitOrder(ctx, types.BUY, symbol, decimal.NewFromFloat(100), decimal.NewFromInt(10), time.Minute)
	if err != nil || rec == nil {
		return nil, err
	}
	var packID string
	for id := range rec.Live {
		packID = id
		break
	}
	for id := range rec.FinishedWithFill {
		packID = id
		break
	}
	pack, ok := sup.Pack(packID)
	if !ok {
		return nil, nil
	}
	stoploss := decimal.NewFromFloat(98)
	sup.SetAutoExit(pack, &stoploss, nil, false)
	return pack, nil
}

func dumpPacks(reg *registry.Registry, ids []string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("ID", "Symbol", "Type", "Status", "Price", "Total", "Traded")
	for _, id := range ids {
		pack, ok := reg.Pack(id)
		if !ok {
			continue
		}
		table.Append(
			pack.ID,
			pack.Order.Symbol,
			pack.Order.OrderType.String(),
			pack.Order.Status.String(),
			pack.Order.Price.String(),
			pack.Order.TotalVolume.String(),
			pack.Order.TradedVolume.String(),
		)
	}
	table.Render()
}
