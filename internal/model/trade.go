package model

// Trade is the frontend-facing view of a completed order. Trades are
// never persisted by this system; the brokerage's own record is
// authoritative.
type Trade struct {
	TradeID     string  `json:"trade_id"`
	AccountID   string  `json:"account_id"`
	Symbol      string  `json:"symbol"`
	Quantity    int64   `json:"quantity"`
	Price       float64 `json:"price"`
	OrderType   string  `json:"order_type"`
	ProductType string  `json:"product_type"`
	Timestamp   string  `json:"timestamp"`
}

// TradeFromEvent converts a completed order event into its trade view.
func TradeFromEvent(ev OrderEvent) Trade {
	return Trade{
		TradeID:     ev.OrderID,
		AccountID:   ev.AccountID,
		Symbol:      ev.TradingSymbol,
		Quantity:    ev.Quantity,
		Price:       ev.AveragePrice,
		OrderType:   ev.OrderType,
		ProductType: ev.Product,
		Timestamp:   ev.Timestamp.Format("2006-01-02 15:04:05"),
	}
}
