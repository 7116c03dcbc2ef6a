package execution

import (
	"context"

	"go.uber.org/zap"

	"orderbot/internal/exchange"
	"orderbot/internal/order"
)

// LimitExecutor 以指定限价单次挂单。
type LimitExecutor struct {
	base
}

// NewLimitExecutor 创建限价单执行器。
func NewLimitExecutor(gateway orderGateway, auditor Auditor, logger *zap.Logger) *LimitExecutor {
	return &LimitExecutor{base: newBase(gateway, auditor, logger)}
}

var _ Executor = (*LimitExecutor)(nil)

// Execute 提交一笔限价单，限价单要求价格与 time-in-force。
func (e *LimitExecutor) Execute(ctx context.Context, req order.Request) (Result, error) {
	params := exchange.OrderParams{
		Symbol:      req.Symbol,
		Side:        string(req.Side),
		Type:        exchange.TypeLimit,
		Quantity:    req.Quantity,
		Price:       req.Price,
		TimeInForce: req.TimeInForce,
		ReduceOnly:  req.ReduceOnly,
	}

	e.logger.Info("提交限价单",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Float64("quantity", req.Quantity),
		zap.Float64("price", req.Price),
		zap.String("time_in_force", req.TimeInForce),
	)

	ack, err := e.submit(ctx, params)
	if err != nil {
		return Result{Kind: order.KindLimit}, err
	}

	e.auditor.RecordOrder(ctx, string(order.KindLimit), ack)
	return Result{Kind: order.KindLimit, Ack: &ack}, nil
}
