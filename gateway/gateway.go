// Package gateway defines the outbound collaborator the supervision core
// talks to: placing, cancelling and pricing orders against a venue. The
// venue itself is out of scope; this package only pins down the interface
// and ships one reference paper implementation to exercise it.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/quantforge/ordersupervisor/types"
)

// EngineType distinguishes a live venue connection from a backtest replay.
// Several supervision tasks (notably Depth orders) degrade their behavior
// under backtest.
type EngineType int

const (
	EngineLive EngineType = iota
	EngineBacktest
)

// Contract describes the tradeable terms of a symbol: its price tick size
// and any venue-specific rounding the gateway enforces.
type Contract struct {
	Symbol     string
	PriceTick  decimal.Decimal
	VolumeTick decimal.Decimal
}

// Gateway is the external collaborator the Registry and Supervisor submit
// orders through. Implementations own venue connectivity, authentication
// and wire protocol; the supervision core only ever sees this interface.
type Gateway interface {
	// SendOrder submits a new primitive order and returns the gateway's id
	// for it. Fills and status changes arrive later through the Registry's
	// OnOrder/OnTrade callbacks, not as a return value here.
	SendOrder(ctx context.Context, req OrderRequest) (string, error)

	// CancelOrder requests cancellation of a previously sent order by
	// gateway id. Cancellation is acknowledged asynchronously via OnOrder.
	CancelOrder(ctx context.Context, orderID string) error

	// RoundToPriceTick snaps a price to the symbol's tradeable tick size.
	RoundToPriceTick(symbol string, price decimal.Decimal) decimal.Decimal

	// GetContract returns the contract terms for a symbol.
	GetContract(symbol string) (Contract, bool)

	// GetEngineType reports whether this gateway is live or a backtest
	// replay, used by tasks that must behave differently in each.
	GetEngineType() EngineType
}

// OrderRequest is everything a Gateway needs to place one primitive order.
type OrderRequest struct {
	Symbol    string
	OrderType types.OrderType
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Stop      bool
}
