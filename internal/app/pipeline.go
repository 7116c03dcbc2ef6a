package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"orderbot/internal/execution"
	"orderbot/internal/order"
)

// pipelineAuditor 为流水线所需的最小审计能力。
type pipelineAuditor interface {
	RecordPipeline(ctx context.Context, kind, symbol string, result interface{})
	RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{})
}

// validator 抽象校验器，便于测试替换。
type validator interface {
	Validate(ctx context.Context, raw map[string]interface{}) (order.Request, error)
}

// pipeline 按固定四阶段驱动一条订单请求：
// Validate → Dispatch(order_kind) → Execute → Done。
// 任一阶段失败立即终止，不存在部分穿透与自动重试。
type pipeline struct {
	normalizer validator
	executors  map[order.Kind]execution.Executor
	auditor    pipelineAuditor
	logger     *zap.Logger
}

func newPipeline(normalizer validator, executors map[order.Kind]execution.Executor, auditor pipelineAuditor, logger *zap.Logger) *pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &pipeline{
		normalizer: normalizer,
		executors:  executors,
		auditor:    auditor,
		logger:     logger,
	}
}

// Run 执行完整流水线，返回对应订单种类的执行结果。
func (p *pipeline) Run(ctx context.Context, raw map[string]interface{}) (execution.Result, error) {
	req, err := p.normalizer.Validate(ctx, raw)
	if err != nil {
		p.logger.Error("订单校验失败", zap.Any("input", raw), zap.Error(err))
		if p.auditor != nil {
			p.auditor.RecordError(ctx, "订单校验失败", err, map[string]interface{}{"input": raw})
		}
		return execution.Result{}, err
	}

	// 派发表封闭：表中缺失的订单类型属于装配错误，必须立刻失败，
	// 绝不回退到市价单。
	executor, ok := p.executors[req.Kind]
	if !ok {
		err := fmt.Errorf("app: 订单类型 %q 没有注册执行器", req.Kind)
		p.logger.Error("流水线派发失败", zap.Error(err))
		if p.auditor != nil {
			p.auditor.RecordError(ctx, "流水线派发失败", err, map[string]interface{}{"kind": string(req.Kind)})
		}
		return execution.Result{}, err
	}

	result, err := executor.Execute(ctx, req)
	if err != nil {
		p.logger.Error("订单执行失败",
			zap.String("kind", string(req.Kind)),
			zap.String("symbol", req.Symbol),
			zap.Error(err),
		)
		if p.auditor != nil {
			p.auditor.RecordError(ctx, "订单执行失败", err, map[string]interface{}{
				"kind":   string(req.Kind),
				"symbol": req.Symbol,
			})
		}
		return result, err
	}

	if p.auditor != nil {
		p.auditor.RecordPipeline(ctx, string(req.Kind), req.Symbol, result)
	}
	p.logger.Info("订单流水线完成",
		zap.String("kind", string(req.Kind)),
		zap.String("symbol", req.Symbol),
	)

	return result, nil
}
