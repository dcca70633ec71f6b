package model

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

func (s OrderSide) String() string {
	switch s {
	case OrderSideBuy:
		return "BUY"
	case OrderSideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	switch s {
	case OrderSideBuy:
		return OrderSideSell
	case OrderSideSell:
		return OrderSideBuy
	default:
		return OrderSideUnknown
	}
}

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeMarket
	OrderTypeLimit
)

func (t OrderType) String() string {
	switch t {
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeLimit:
		return "LIMIT"
	default:
		return "UNKNOWN"
	}
}

// TimeInForce describes how long an order remains in force.
type TimeInForce uint16

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceGTC
	TimeInForceIOC
	TimeInForceFOK
)

func (t TimeInForce) String() string {
	switch t {
	case TimeInForceGTC:
		return "GTC"
	case TimeInForceIOC:
		return "IOC"
	case TimeInForceFOK:
		return "FOK"
	default:
		return "UNKNOWN"
	}
}

// OrderStatus tracks the order lifecycle.
type OrderStatus uint16

const (
	OrderStatusInitialized OrderStatus = iota
	OrderStatusSubmitted
	OrderStatusAccepted
	OrderStatusRejected
	OrderStatusPartiallyFilled
	OrderStatusFilled
	OrderStatusCanceled
	OrderStatusExpired
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusInitialized:
		return "INITIALIZED"
	case OrderStatusSubmitted:
		return "SUBMITTED"
	case OrderStatusAccepted:
		return "ACCEPTED"
	case OrderStatusRejected:
		return "REJECTED"
	case OrderStatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case OrderStatusFilled:
		return "FILLED"
	case OrderStatusCanceled:
		return "CANCELED"
	case OrderStatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the status is final and immutable.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusRejected, OrderStatusFilled, OrderStatusCanceled, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// AggressorSide is the side that initiated a trade.
type AggressorSide uint16

const (
	AggressorSideUnknown AggressorSide = iota
	AggressorSideBuyer
	AggressorSideSeller
)

// LiquiditySide describes whether a fill made or took liquidity.
type LiquiditySide uint16

const (
	LiquiditySideUnknown LiquiditySide = iota
	LiquiditySideMaker
	LiquiditySideTaker
)

// PriceType is the price basis of a bar or synthetic tick.
type PriceType uint16

const (
	PriceTypeUnknown PriceType = iota
	PriceTypeBid
	PriceTypeAsk
	PriceTypeMid
	PriceTypeLast
)

func (t PriceType) String() string {
	switch t {
	case PriceTypeBid:
		return "BID"
	case PriceTypeAsk:
		return "ASK"
	case PriceTypeMid:
		return "MID"
	case PriceTypeLast:
		return "LAST"
	default:
		return "UNKNOWN"
	}
}

// BarAggregation is the unit a bar aggregates over.
type BarAggregation uint16

const (
	BarAggregationUnknown BarAggregation = iota
	BarAggregationSecond
	BarAggregationMinute
	BarAggregationHour
	BarAggregationDay
	BarAggregationTick
)

func (a BarAggregation) String() string {
	switch a {
	case BarAggregationSecond:
		return "SECOND"
	case BarAggregationMinute:
		return "MINUTE"
	case BarAggregationHour:
		return "HOUR"
	case BarAggregationDay:
		return "DAY"
	case BarAggregationTick:
		return "TICK"
	default:
		return "UNKNOWN"
	}
}

// OMSType selects netting or hedging order-management semantics.
type OMSType uint16

const (
	OMSTypeUnknown OMSType = iota
	OMSTypeNetting
	OMSTypeHedging
)

func (t OMSType) String() string {
	switch t {
	case OMSTypeNetting:
		return "NETTING"
	case OMSTypeHedging:
		return "HEDGING"
	default:
		return "UNKNOWN"
	}
}

// AccountType distinguishes cash from margin accounts.
type AccountType uint16

const (
	AccountTypeUnknown AccountType = iota
	AccountTypeCash
	AccountTypeMargin
)

func (t AccountType) String() string {
	switch t {
	case AccountTypeCash:
		return "CASH"
	case AccountTypeMargin:
		return "MARGIN"
	default:
		return "UNKNOWN"
	}
}

// VenueType describes the kind of venue being simulated.
type VenueType uint16

const (
	VenueTypeUnknown VenueType = iota
	VenueTypeExchange
	VenueTypeECN
	VenueTypeBrokerage
)

// BookLevel is the order-book detail a venue supports.
type BookLevel uint16

const (
	BookLevelNone BookLevel = iota
	BookLevelL1
	BookLevelL2
	BookLevelL3
)

// BookAction is the operation an order-book delta applies.
type BookAction uint16

const (
	BookActionUnknown BookAction = iota
	BookActionAdd
	BookActionUpdate
	BookActionDelete
)
