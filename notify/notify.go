// Package notify adapts the Registry's terminal user hook to outward-facing
// channels. It is intentionally decoupled from registry/supervisor: a
// Notifier only ever receives the facts needed to describe an event, never
// an *OrderPack, so the core has no dependency in this direction.
package notify

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event describes one pack transition worth telling an operator about.
type Event struct {
	OrderID   string
	Symbol    string
	OrderType string
	Status    string
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}

// Notifier is the outward channel the dispatcher's terminal hook writes to.
type Notifier interface {
	NotifyOrder(ev Event)
	NotifyError(err error)
}

// Multi fans one event out to several notifiers, continuing past a panic-free
// nil entry rather than failing the whole hook over one bad channel.
type Multi []Notifier

func (m Multi) NotifyOrder(ev Event) {
	for _, n := range m {
		if n != nil {
			n.NotifyOrder(ev)
		}
	}
}

func (m Multi) NotifyError(err error) {
	for _, n := range m {
		if n != nil {
			n.NotifyError(err)
		}
	}
}
