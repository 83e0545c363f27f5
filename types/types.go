// Package types defines the shared order/trade vocabulary used across the
// supervision core. Kept separate from registry/supervisor to avoid import
// cycles.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an open position: profit on rise (Long) or
// profit on fall (Short).
type Side int

const (
	Long Side = iota
	Short
)

func (s Side) String() string {
	if s == Long {
		return "LONG"
	}
	return "SHORT"
}

// sign returns +1 for Long, -1 for Short, used by volume/price direction math.
func (s Side) sign() int {
	if s == Long {
		return 1
	}
	return -1
}

// Sign returns +1 for Long, -1 for Short.
func (s Side) Sign() int { return s.sign() }

// Offset distinguishes establishing a position from flattening one.
type Offset int

const (
	Open Offset = iota
	Close
)

func (o Offset) String() string {
	if o == Open {
		return "OPEN"
	}
	return "CLOSE"
}

// OrderType is the primitive intent accepted by makeOrder: BUY (open long),
// SHORT (open short), SELL (close long), COVER (close short).
type OrderType int

const (
	BUY OrderType = iota
	SHORT
	SELL
	COVER
)

func (t OrderType) String() string {
	switch t {
	case BUY:
		return "BUY"
	case SHORT:
		return "SHORT"
	case SELL:
		return "SELL"
	case COVER:
		return "COVER"
	default:
		return "UNKNOWN"
	}
}

// Side returns the position direction this order type acts on.
func (t OrderType) Side() Side {
	switch t {
	case BUY, SELL:
		return Long
	default:
		return Short
	}
}

// Offset returns whether this order type opens or closes a position.
func (t OrderType) Offset() Offset {
	switch t {
	case BUY, SHORT:
		return Open
	default:
		return Close
	}
}

// CloseOrderType returns the order type that closes a position opened with
// the given side.
func CloseOrderType(side Side) OrderType {
	if side == Long {
		return SELL
	}
	return COVER
}

// OrderStatus mirrors the gateway's order lifecycle states.
type OrderStatus int

const (
	Init OrderStatus = iota
	NotTraded
	PartTraded
	AllTraded
	Cancelled
	Rejected
	Unknown
)

func (s OrderStatus) String() string {
	switch s {
	case Init:
		return "Init"
	case NotTraded:
		return "NotTraded"
	case PartTraded:
		return "PartTraded"
	case AllTraded:
		return "AllTraded"
	case Cancelled:
		return "Cancelled"
	case Rejected:
		return "Rejected"
	default:
		return "Unknown"
	}
}

// Terminal reports whether the status is a final state for the order.
func (s OrderStatus) Terminal() bool {
	return s == AllTraded || s == Cancelled || s == Rejected
}

// PriceType distinguishes limit orders from (gateway-dependent) other types.
type PriceType int

const (
	Limit PriceType = iota
)

// OrderSnapshot is the gateway's view of a primitive order at a point in
// time: the ids, direction/offset, requested terms, and fill progress.
// Monotone in TradedVolume and in status rank across the life of one id.
type OrderSnapshot struct {
	ID            string
	Symbol        string
	OrderType     OrderType
	Side          Side
	Offset        Offset
	Price         decimal.Decimal
	TotalVolume   decimal.Decimal
	TradedVolume  decimal.Decimal
	AvgPrice      decimal.Decimal
	Status        OrderStatus
	PriceType     PriceType
	Stop          bool
	SubmittedAt   time.Time
}

// Trade is a single fill record against an order.
type Trade struct {
	ID        string
	OrderID   string
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp time.Time
}
