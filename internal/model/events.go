package model

// Execution and account events delivered to strategies through the same
// sequential channel market data arrives on. Recoverable errors surface here
// as typed events rather than aborting the run.

// RejectReason is the typed reason attached to an order rejection.
type RejectReason uint16

const (
	RejectReasonNone RejectReason = iota
	RejectReasonUnknownInstrument
	RejectReasonInvalidPrice
	RejectReasonInvalidQuantity
	RejectReasonUnsupportedTimeInForce
	RejectReasonInsufficientMargin
	RejectReasonDuplicateOrderID
)

func (r RejectReason) String() string {
	switch r {
	case RejectReasonNone:
		return "NONE"
	case RejectReasonUnknownInstrument:
		return "UNKNOWN_INSTRUMENT"
	case RejectReasonInvalidPrice:
		return "INVALID_PRICE"
	case RejectReasonInvalidQuantity:
		return "INVALID_QUANTITY"
	case RejectReasonUnsupportedTimeInForce:
		return "UNSUPPORTED_TIME_IN_FORCE"
	case RejectReasonInsufficientMargin:
		return "INSUFFICIENT_MARGIN"
	case RejectReasonDuplicateOrderID:
		return "DUPLICATE_ORDER_ID"
	default:
		return "UNKNOWN"
	}
}

// OrderAccepted signals a working order.
type OrderAccepted struct {
	OrderID     OrderID
	StrategyTag string
	TsEvent     int64
}

// OrderRejected signals a per-order recoverable failure.
type OrderRejected struct {
	OrderID     OrderID
	StrategyTag string
	Reason      RejectReason
	Detail      string
	TsEvent     int64
}

// OrderFilled wraps an execution.
type OrderFilled struct {
	Fill Fill
}

// OrderCanceled signals a cancel confirmation.
type OrderCanceled struct {
	OrderID     OrderID
	StrategyTag string
	TsEvent     int64
}

// OrderCancelRejected signals a failed cancel (unknown or terminal order).
type OrderCancelRejected struct {
	OrderID     OrderID
	StrategyTag string
	Detail      string
	TsEvent     int64
}

// OrderExpired signals an IOC/FOK remainder expiry.
type OrderExpired struct {
	OrderID     OrderID
	StrategyTag string
	TsEvent     int64
}

// PositionChanged signals a position open, change, or close.
type PositionChanged struct {
	PositionID   PositionID
	InstrumentID InstrumentID
	StrategyTag  string
	NetQty       string // decimal string, signed
	Closed       bool
	TsEvent      int64
}

// AccountUpdated signals a balance change on a venue account.
type AccountUpdated struct {
	Venue   Venue
	TsEvent int64
}

// AccountAdjusted signals a venue-module balance adjustment, such as
// rollover interest. Amount is signed and denominated before conversion.
type AccountAdjusted struct {
	Venue    Venue
	Module   string
	Amount   string // decimal string, signed
	Currency Currency
	TsEvent  int64
}

// ConversionSkipped warns that a PnL entry could not be converted because no
// FX rate was derivable. The entry is excluded from currency totals until a
// rate appears.
type ConversionSkipped struct {
	PositionID PositionID
	From       Currency
	To         Currency
	TsEvent    int64
}
