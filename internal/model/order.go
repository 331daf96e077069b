package model

import "time"

// Order type and product constants as the broker reports them.
const (
	OrderTypeMarket   = "MARKET"
	OrderTypeLimit    = "LIMIT"
	OrderTypeSL       = "SL"
	OrderTypeSLMarket = "SL-M"

	ProductMIS  = "MIS"
	ProductNRML = "NRML"
	ProductCNC  = "CNC"

	StatusComplete = "COMPLETE"
	StatusRejected = "REJECTED"
)

// OrderEvent is one order-lifecycle notification delivered by the live
// subscription (or reconstructed from the order book for history views).
// Events are ephemeral; the engine processes each at most once.
type OrderEvent struct {
	AccountID       string    `json:"account_id"`
	OrderID         string    `json:"order_id"`
	TradingSymbol   string    `json:"tradingsymbol"`
	Exchange        string    `json:"exchange"`
	TransactionType string    `json:"transaction_type"` // BUY, SELL
	Quantity        int64     `json:"quantity"`
	OrderType       string    `json:"order_type"` // MARKET, LIMIT, SL, SL-M
	Product         string    `json:"product"`    // MIS, NRML, CNC
	Price           float64   `json:"price"`         // limit price, 0 for market
	TriggerPrice    float64   `json:"trigger_price"` // stop orders only
	AveragePrice    float64   `json:"average_price"` // fill average
	Status          string    `json:"status"`
	Timestamp       time.Time `json:"order_timestamp"`
}

// IsStop reports whether the event's order type belongs to the
// stop-loss class, i.e. carries a meaningful trigger price.
func (ev OrderEvent) IsStop() bool {
	return ev.OrderType == OrderTypeSL || ev.OrderType == OrderTypeSLMarket
}

// OrderSpec is an outbound order placement request.
type OrderSpec struct {
	TradingSymbol   string
	Exchange        string
	TransactionType string
	Quantity        int64
	OrderType       string
	Product         string
	Price           float64
	TriggerPrice    float64 // only set for stop orders
	Tag             string  // links a replicated order back to its source
}

// SpecFromEvent copies the replicable fields of a source event into an
// order spec with the given quantity. The trigger price is carried over
// only for stop orders.
func SpecFromEvent(ev OrderEvent, quantity int64, tag string) OrderSpec {
	spec := OrderSpec{
		TradingSymbol:   ev.TradingSymbol,
		Exchange:        ev.Exchange,
		TransactionType: ev.TransactionType,
		Quantity:        quantity,
		OrderType:       ev.OrderType,
		Product:         ev.Product,
		Price:           ev.Price,
		Tag:             tag,
	}
	if ev.IsStop() {
		spec.TriggerPrice = ev.TriggerPrice
	}
	return spec
}
