package execution

import (
	"context"

	"go.uber.org/zap"

	"orderbot/internal/exchange"
	"orderbot/internal/order"
)

// orderGateway 为执行器所需的最小网关能力。
type orderGateway interface {
	PlaceOrder(ctx context.Context, params exchange.OrderParams) (exchange.OrderAck, error)
}

// Auditor 记录网关交互与订单完成事件。
type Auditor interface {
	RecordGatewayRequest(ctx context.Context, params exchange.OrderParams)
	RecordGatewayResponse(ctx context.Context, ack exchange.OrderAck)
	RecordOrder(ctx context.Context, kind string, ack exchange.OrderAck)
}

// Executor 把一条已校验的请求驱动到完成。
type Executor interface {
	Execute(ctx context.Context, req order.Request) (Result, error)
}

// Result 为执行结果，按订单种类填充对应字段。
type Result struct {
	Kind order.Kind
	// Ack 为单腿订单（market/limit/stop_limit）的回执。
	Ack *exchange.OrderAck
	// OCO 为合成 OCO 的双腿结果。
	OCO *OCOResult
	// TWAP 为分片执行的逐笔结果。
	TWAP *TWAPResult
}

// OCOResult 关联同一组合的两腿回执。
type OCOResult struct {
	GroupID    string
	TakeProfit *exchange.OrderAck
	StopLoss   *exchange.OrderAck
}

// TWAPResult 为按时间分片执行的结果序列。
type TWAPResult struct {
	Intervals     int
	ChunkQuantity float64
	Acks          []exchange.OrderAck
	// RequestedQuantity 与 ExecutedQuantity 的差为分片取整带来的漂移。
	RequestedQuantity float64
	ExecutedQuantity  float64
	Completed         bool
}

// base 聚合各执行器共享的依赖。
type base struct {
	gateway orderGateway
	auditor Auditor
	logger  *zap.Logger
}

func newBase(gateway orderGateway, auditor Auditor, logger *zap.Logger) base {
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditor == nil {
		auditor = nopAuditor{}
	}
	return base{gateway: gateway, auditor: auditor, logger: logger}
}

// submit 提交一笔订单并记录出入站审计事件。失败原样上抛，由调用方决定语义。
func (b base) submit(ctx context.Context, params exchange.OrderParams) (exchange.OrderAck, error) {
	b.auditor.RecordGatewayRequest(ctx, params)

	ack, err := b.gateway.PlaceOrder(ctx, params)
	if err != nil {
		b.logger.Error("下单调用失败",
			zap.String("symbol", params.Symbol),
			zap.String("type", params.Type),
			zap.String("side", params.Side),
			zap.Float64("quantity", params.Quantity),
			zap.Float64("price", params.Price),
			zap.Float64("stop_price", params.StopPrice),
			zap.Error(err),
		)
		return exchange.OrderAck{}, err
	}

	b.auditor.RecordGatewayResponse(ctx, ack)
	return ack, nil
}

type nopAuditor struct{}

func (nopAuditor) RecordGatewayRequest(context.Context, exchange.OrderParams) {}
func (nopAuditor) RecordGatewayResponse(context.Context, exchange.OrderAck)   {}
func (nopAuditor) RecordOrder(context.Context, string, exchange.OrderAck)     {}
