package execution

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"orderbot/internal/exchange"
	"orderbot/internal/order"
)

// TWAPExecutor 把总量切成等份市价单，按固定间隔依次提交。
type TWAPExecutor struct {
	base
}

// NewTWAPExecutor 创建 TWAP 执行器。
func NewTWAPExecutor(gateway orderGateway, auditor Auditor, logger *zap.Logger) *TWAPExecutor {
	return &TWAPExecutor{base: newBase(gateway, auditor, logger)}
}

var _ Executor = (*TWAPExecutor)(nil)

// Execute 顺序提交 intervals 笔等量市价单，片间等待 TWAPDelay。
// 任何一片失败立即停止后续提交，已完成的回执随 *Error 一并上抛。
// 取消只在片间生效，不会打断进行中的提交。
func (e *TWAPExecutor) Execute(ctx context.Context, req order.Request) (Result, error) {
	intervals := req.TWAPIntervals
	if intervals <= 0 {
		return Result{Kind: order.KindTWAP}, &Error{
			Stage: "twap_params",
			Err:   fmt.Errorf("twap_intervals 必须大于0，当前为 %d", intervals),
		}
	}

	chunk := req.Quantity / float64(intervals)
	// 等分后的单片数量可能不再满足步长约束，这里逐片二次取整，
	// 由此产生的总量漂移在结果中报告。
	if req.Meta != nil && req.Meta.QuantityStep > 0 {
		chunk = order.FloorToStep(chunk, req.Meta.QuantityStep)
	}
	if chunk <= 0 || (req.Meta != nil && req.Meta.MinQuantity > 0 && chunk < req.Meta.MinQuantity) {
		return Result{Kind: order.KindTWAP}, &Error{
			Stage: "twap_chunk_size",
			Err: fmt.Errorf("单片数量 %v 不满足交易所约束（总量 %v / %d 片）",
				chunk, req.Quantity, intervals),
		}
	}

	e.logger.Info("开始 TWAP 执行",
		zap.String("symbol", req.Symbol),
		zap.String("side", string(req.Side)),
		zap.Float64("total_quantity", req.Quantity),
		zap.Int("intervals", intervals),
		zap.Duration("delay", req.TWAPDelay),
		zap.Float64("chunk_quantity", chunk),
	)

	twap := &TWAPResult{
		Intervals:         intervals,
		ChunkQuantity:     chunk,
		Acks:              make([]exchange.OrderAck, 0, intervals),
		RequestedQuantity: req.Quantity,
	}
	result := Result{Kind: order.KindTWAP, TWAP: twap}

	for i := 0; i < intervals; i++ {
		params := exchange.OrderParams{
			Symbol:     req.Symbol,
			Side:       string(req.Side),
			Type:       exchange.TypeMarket,
			Quantity:   chunk,
			ReduceOnly: req.ReduceOnly,
		}

		e.logger.Info("提交 TWAP 分片",
			zap.Int("chunk", i+1),
			zap.Int("intervals", intervals),
			zap.Float64("quantity", chunk),
		)

		ack, err := e.submit(ctx, params)
		if err != nil {
			e.logger.Error("TWAP 分片失败，停止后续提交",
				zap.Int("chunk", i+1),
				zap.Int("completed", len(twap.Acks)),
				zap.Error(err),
			)
			return result, &Error{
				Stage:   fmt.Sprintf("twap_chunk_%d", i+1),
				Partial: result,
				Err:     err,
			}
		}

		twap.Acks = append(twap.Acks, ack)
		twap.ExecutedQuantity += ack.Quantity
		e.auditor.RecordOrder(ctx, "twap_chunk", ack)

		if i < intervals-1 && req.TWAPDelay > 0 {
			timer := time.NewTimer(req.TWAPDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, &Error{
					Stage:   "twap_cancelled",
					Partial: result,
					Err:     ctx.Err(),
				}
			case <-timer.C:
			}
		}
	}

	twap.Completed = true

	if drift := math.Abs(twap.RequestedQuantity - twap.ExecutedQuantity); drift > 0 {
		e.logger.Warn("TWAP 总量存在取整漂移",
			zap.Float64("requested", twap.RequestedQuantity),
			zap.Float64("executed", twap.ExecutedQuantity),
			zap.Float64("drift", drift),
		)
	}

	e.logger.Info("TWAP 执行完成",
		zap.Int("chunks", len(twap.Acks)),
		zap.Float64("executed_quantity", twap.ExecutedQuantity),
	)

	return result, nil
}
