package order

import (
	"time"

	"orderbot/internal/exchange"
)

// Kind 表示订单种类，取值封闭。
type Kind string

const (
	KindMarket    Kind = "market"
	KindLimit     Kind = "limit"
	KindStopLimit Kind = "stop_limit"
	KindOCO       Kind = "oco"
	KindTWAP      Kind = "twap"
)

// Kinds 列出全部合法订单种类，路由表按此构建。
func Kinds() []Kind {
	return []Kind{KindMarket, KindLimit, KindStopLimit, KindOCO, KindTWAP}
}

// Side 表示下单方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite 返回反方向，OCO 平仓腿使用。
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Request 为经过校验与归一化的订单请求。离开校验器后不再修改。
type Request struct {
	Kind     Kind
	Symbol   string
	Side     Side
	Quantity float64

	// Price 与 StopPrice 为 0 时表示未提供。
	Price     float64
	StopPrice float64

	TWAPIntervals int
	TWAPDelay     time.Duration

	TimeInForce string
	ReduceOnly  bool

	// Warnings 收集未通过推荐性检查的提示（例如止损价与限价的相对位置）。
	Warnings []string

	// Meta 为校验时使用的交易对约束，执行器可据此做逐笔二次取整；
	// 元数据不可用时为 nil。
	Meta *exchange.SymbolMetadata

	// Extra 透传调用方给出的其余字段，供特定策略消费。
	Extra map[string]interface{}
}
