package execution

import (
	"context"

	"go.uber.org/zap"

	"orderbot/internal/exchange"
	"orderbot/internal/order"
)

// StopLimitExecutor 提交触发后转限价的止损限价单。
type StopLimitExecutor struct {
	base
}

// NewStopLimitExecutor 创建止损限价单执行器。
func NewStopLimitExecutor(gateway orderGateway, auditor Auditor, logger *zap.Logger) *StopLimitExecutor {
	return &StopLimitExecutor{base: newBase(gateway, auditor, logger)}
}

var _ Executor = (*StopLimitExecutor)(nil)

// Execute 提交止损限价单：price 为限价腿，stop_price 为触发价。
func (e *StopLimitExecutor) Execute(ctx context.Context, req order.Request) (Result, error) {
	params := exchange.OrderParams{
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		Type:        exchange.TypeStopLimit,
		Quantity:    req.Quantity,
		Price:       req.Price,
		StopPrice:   req.StopPrice,
		TimeInForce: req.TimeInForce,
		ReduceOnly:  req.ReduceOnly,
	}

	e.logger.Info("提交止损限价单",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Float64("quantity", req.Quantity),
		zap.Float64("price", req.Price),
		zap.Float64("stop_price", req.StopPrice),
	)

	ack, err := e.submit(ctx, params)
	if err != nil {
		return Result{Kind: order.KindStopLimit}, err
	}

	e.auditor.RecordOrder(ctx, string(order.KindStopLimit), ack)
	return Result{Kind: order.KindStopLimit, Ack: &ack}, nil
}
