package model

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateOrder    = errors.New("order already exists")
	ErrUnknownOrder      = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order state transition")
	ErrInvalidFill       = errors.New("invalid fill quantity")
)

// Order is a mutable order record owned by the simulated exchange. Terminal
// states are immutable; any further transition returns ErrInvalidTransition.
type Order struct {
	ID           OrderID
	InstrumentID InstrumentID
	StrategyTag  string
	Side         OrderSide
	Type         OrderType
	TimeInForce  TimeInForce
	// PositionID targets an existing position on a hedging venue; empty
	// means the venue assigns one.
	PositionID   PositionID
	Price        decimal.Decimal // limit price, zero for market orders
	Quantity     decimal.Decimal
	FilledQty    decimal.Decimal
	Status       OrderStatus
	TsInit       int64
	TsLast       int64
}

// LeavesQty returns the unfilled remainder.
func (o *Order) LeavesQty() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQty)
}

// IsOpen reports whether the order can still trade.
func (o *Order) IsOpen() bool {
	switch o.Status {
	case OrderStatusAccepted, OrderStatusPartiallyFilled:
		return true
	default:
		return false
	}
}

func (o *Order) transition(to OrderStatus, ts int64) error {
	if o.Status.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.TsLast = ts
	return nil
}

// Submit marks the order sent to the venue.
func (o *Order) Submit(ts int64) error {
	if o.Status != OrderStatusInitialized {
		return fmt.Errorf("%w: %s -> SUBMITTED", ErrInvalidTransition, o.Status)
	}
	return o.transition(OrderStatusSubmitted, ts)
}

// Accept marks the order working at the venue.
func (o *Order) Accept(ts int64) error {
	if o.Status != OrderStatusSubmitted {
		return fmt.Errorf("%w: %s -> ACCEPTED", ErrInvalidTransition, o.Status)
	}
	return o.transition(OrderStatusAccepted, ts)
}

// Reject marks the order rejected. Valid only before acceptance.
func (o *Order) Reject(ts int64) error {
	if o.Status != OrderStatusSubmitted && o.Status != OrderStatusInitialized {
		return fmt.Errorf("%w: %s -> REJECTED", ErrInvalidTransition, o.Status)
	}
	return o.transition(OrderStatusRejected, ts)
}

// Cancel removes a working order.
func (o *Order) Cancel(ts int64) error {
	if !o.IsOpen() {
		return fmt.Errorf("%w: %s -> CANCELED", ErrInvalidTransition, o.Status)
	}
	return o.transition(OrderStatusCanceled, ts)
}

// Expire times out a working order (IOC/FOK remainder).
func (o *Order) Expire(ts int64) error {
	if !o.IsOpen() {
		return fmt.Errorf("%w: %s -> EXPIRED", ErrInvalidTransition, o.Status)
	}
	return o.transition(OrderStatusExpired, ts)
}

// ApplyFill records an execution against the order.
func (o *Order) ApplyFill(qty decimal.Decimal, ts int64) error {
	if !o.IsOpen() {
		return fmt.Errorf("%w: status %s", ErrInvalidTransition, o.Status)
	}
	if !qty.IsPositive() || qty.GreaterThan(o.LeavesQty()) {
		return fmt.Errorf("%w: qty=%s leaves=%s", ErrInvalidFill, qty, o.LeavesQty())
	}
	o.FilledQty = o.FilledQty.Add(qty)
	if o.LeavesQty().IsZero() {
		return o.transition(OrderStatusFilled, ts)
	}
	return o.transition(OrderStatusPartiallyFilled, ts)
}

// Fill is an immutable execution record. Every fill references a previously
// accepted order.
type Fill struct {
	ID           FillID
	OrderID      OrderID
	PositionID   PositionID
	InstrumentID InstrumentID
	StrategyTag  string
	Side         OrderSide
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	Commission   Money
	Liquidity    LiquiditySide
	TsEvent      int64
}

// SignedQty returns the fill quantity signed by side (buys positive).
func (f Fill) SignedQty() decimal.Decimal {
	if f.Side == OrderSideSell {
		return f.Quantity.Neg()
	}
	return f.Quantity
}
