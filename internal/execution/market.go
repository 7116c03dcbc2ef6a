package execution

import (
	"context"

	"go.uber.org/zap"

	"orderbot/internal/exchange"
	"orderbot/internal/order"
)

// MarketExecutor 以当前市价单次成交。
type MarketExecutor struct {
	base
}

// NewMarketExecutor 创建市价单执行器。
func NewMarketExecutor(gateway orderGateway, auditor Auditor, logger *zap.Logger) *MarketExecutor {
	return &MarketExecutor{base: newBase(gateway, auditor, logger)}
}

var _ Executor = (*MarketExecutor)(nil)

// Execute 提交一笔市价单，市价单不携带价格。
func (e *MarketExecutor) Execute(ctx context.Context, req order.Request) (Result, error) {
	params := exchange.OrderParams{
		Symbol:     req.Symbol,
		Side:       string(req.Side),
		Type:       exchange.TypeMarket,
		Quantity:   req.Quantity,
		ReduceOnly: req.ReduceOnly,
	}

	e.logger.Info("提交市价单",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Float64("quantity", req.Quantity),
	)

	ack, err := e.submit(ctx, params)
	if err != nil {
		return Result{Kind: order.KindMarket}, err
	}

	e.auditor.RecordOrder(ctx, string(order.KindMarket), ack)
	return Result{Kind: order.KindMarket, Ack: &ack}, nil
}
