package notify

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// TelegramNotifier pushes order events to a single chat and answers a small
// set of read-only status commands. It never holds trading control (no
// /pause, /resume): the supervision core has no notion of being paused
// from the outside.
type TelegramNotifier struct {
	mu      sync.Mutex
	api     *tgbotapi.BotAPI
	chatID  int64
	stopCh  chan struct{}
	running bool

	statusFn func() string
}

// NewTelegramNotifier builds a notifier from TELEGRAM_BOT_TOKEN and
// TELEGRAM_CHAT_ID. statusFn answers /status; it may be nil.
func NewTelegramNotifier(token, chatIDStr string, statusFn func() string) (*TelegramNotifier, error) {
	if token == "" {
		return nil, fmt.Errorf("notify: TELEGRAM_BOT_TOKEN not set")
	}
	chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("notify: invalid chat id %q: %w", chatIDStr, err)
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: telegram bot init: %w", err)
	}
	log.Info().Str("username", api.Self.UserName).Msg("notify: telegram bot ready")
	return &TelegramNotifier{api: api, chatID: chatID, stopCh: make(chan struct{}), statusFn: statusFn}, nil
}

// Start begins listening for /status and /ping commands.
func (t *TelegramNotifier) Start() {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return
	}
	t.running = true
	t.mu.Unlock()
	go t.commandLoop()
}

// Stop ends the command loop.
func (t *TelegramNotifier) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.running = false
	close(t.stopCh)
}

func (t *TelegramNotifier) commandLoop() {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := t.api.GetUpdatesChan(u)

	for {
		select {
		case <-t.stopCh:
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.Chat.ID != t.chatID {
				continue
			}
			switch strings.ToLower(update.Message.Command()) {
			case "status":
				status := "no status provider configured"
				if t.statusFn != nil {
					status = t.statusFn()
				}
				t.send(status)
			case "ping":
				t.send("pong")
			}
		}
	}
}

// NotifyOrder reports a pack transition.
func (t *TelegramNotifier) NotifyOrder(ev Event) {
	emoji := "\U0001F4CC"
	switch ev.Status {
	case "AllTraded":
		emoji = "✅"
	case "Cancelled", "Rejected":
		emoji = "⛔"
	}
	t.send(fmt.Sprintf("%s %s %s %s @ %s x%s",
		emoji, ev.OrderID, ev.Symbol, ev.OrderType, ev.Price.String(), ev.Volume.String()))
}

// NotifyError reports an internal error.
func (t *TelegramNotifier) NotifyError(err error) {
	t.send(fmt.Sprintf("⚠️ %s", err.Error()))
}

func (t *TelegramNotifier) send(text string) {
	msg := tgbotapi.NewMessage(t.chatID, text)
	if _, err := t.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("notify: telegram send failed")
	}
}
