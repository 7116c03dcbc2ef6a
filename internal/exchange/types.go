package exchange

import "time"

// 交易所侧订单类型，取值与 Binance USDⓈ-M 原生类型一致。
const (
	TypeMarket     = "MARKET"
	TypeLimit      = "LIMIT"
	TypeStopLimit  = "STOP"
	TypeStopMarket = "STOP_MARKET"
	TypeTakeProfit = "TAKE_PROFIT"
)

// OrderParams 描述一次下单调用的全部参数。
type OrderParams struct {
	Symbol        string
	Side          string // BUY / SELL
	Type          string
	Quantity      float64
	Price         float64 // LIMIT/STOP/TAKE_PROFIT 的限价，0 表示不传
	StopPrice     float64 // 触发价，0 表示不传
	TimeInForce   string
	ClientOrderID string
	ReduceOnly    bool
}

// OrderAck 为交易所返回的订单回执。
type OrderAck struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          string
	Type          string
	Status        string
	Quantity      float64
	Price         float64
	Timestamp     time.Time
}

// SymbolMetadata 为交易所公布的交易对约束。
type SymbolMetadata struct {
	Symbol       string
	MinQuantity  float64
	QuantityStep float64
	MinPrice     float64
	PriceTick    float64
}
