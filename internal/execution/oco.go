package execution

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orderbot/internal/exchange"
	"orderbot/internal/order"
)

// OCOExecutor 合成一组 One-Cancels-the-Other 订单。
//
// 目标交易所不提供原子化的 OCO，两腿各自独立提交，仅靠生成的
// group_id 做客户端关联。第一腿成功而第二腿失败会留下单边敞口，
// 该状态以 *Error 显式上抛，本执行器不做自动撤单补偿（已知风险，
// 待后续加固）。
type OCOExecutor struct {
	base
}

// NewOCOExecutor 创建 OCO 执行器。
func NewOCOExecutor(gateway orderGateway, auditor Auditor, logger *zap.Logger) *OCOExecutor {
	return &OCOExecutor{base: newBase(gateway, auditor, logger)}
}

var _ Executor = (*OCOExecutor)(nil)

// Execute 依次提交止盈腿与止损腿。两腿均为平仓方向（与入场方向相反），
// 顺序固定：先 TAKE_PROFIT 后 STOP_MARKET，保证审计关联的稳定性。
func (e *OCOExecutor) Execute(ctx context.Context, req order.Request) (Result, error) {
	groupID := newGroupID()
	exitSide := req.Side.Opposite()

	e.logger.Info("开始合成 OCO",
		zap.String("symbol", req.Symbol),
		zap.String("group_id", groupID),
		zap.String("exit_side", string(exitSide)),
		zap.Float64("take_profit", req.Price),
		zap.Float64("stop_price", req.StopPrice),
	)

	tpParams := exchange.OrderParams{
		Symbol:        req.Symbol,
		Side:          string(exitSide),
		Type:          exchange.TypeTakeProfit,
		Quantity:      req.Quantity,
		Price:         req.Price,
		StopPrice:     req.Price,
		TimeInForce:   req.TimeInForce,
		ClientOrderID: fmt.Sprintf("TP-%s", groupID),
	}

	tpAck, err := e.submit(ctx, tpParams)
	if err != nil {
		// 第一腿失败：尚未产生任何敞口，直接上抛网关错误。
		return Result{Kind: order.KindOCO}, err
	}
	e.auditor.RecordOrder(ctx, "oco_take_profit", tpAck)

	slParams := exchange.OrderParams{
		Symbol:        req.Symbol,
		Side:          string(exitSide),
		Type:          exchange.TypeStopMarket,
		Quantity:      req.Quantity,
		StopPrice:     req.StopPrice,
		ClientOrderID: fmt.Sprintf("SL-%s", groupID),
	}

	slAck, err := e.submit(ctx, slParams)
	if err != nil {
		// 第二腿失败：止盈腿已在场内挂单，无对冲腿保护。
		partial := Result{
			Kind: order.KindOCO,
			OCO: &OCOResult{
				GroupID:    groupID,
				TakeProfit: &tpAck,
			},
		}
		e.logger.Error("OCO 止损腿失败，止盈腿已挂单，需人工对账",
			zap.String("group_id", groupID),
			zap.String("take_profit_order_id", tpAck.OrderID),
			zap.Error(err),
		)
		return partial, &Error{Stage: "oco_stop_leg", Partial: partial, Err: err}
	}
	e.auditor.RecordOrder(ctx, "oco_stop_loss", slAck)

	result := Result{
		Kind: order.KindOCO,
		OCO: &OCOResult{
			GroupID:    groupID,
			TakeProfit: &tpAck,
			StopLoss:   &slAck,
		},
	}

	e.logger.Info("OCO 双腿挂单完成",
		zap.String("group_id", groupID),
		zap.String("take_profit_order_id", tpAck.OrderID),
		zap.String("stop_loss_order_id", slAck.OrderID),
	)

	return result, nil
}

// newGroupID 生成短关联标识，仅用于客户端订单打标与审计关联。
func newGroupID() string {
	return uuid.NewString()[:12]
}
