package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orderbot/internal/ai"
	"orderbot/internal/audit"
	"orderbot/internal/config"
	"orderbot/internal/exchange"
	"orderbot/internal/execution"
	"orderbot/internal/order"
	"orderbot/internal/store"
)

// App 聚合核心依赖并驱动单条指令的处理。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 处理一条自然语言交易指令：解析、校验、执行、审计。
// 失败时向模型请求一条修正建议，仅记录，绝不自动执行。
func (a *App) Run(ctx context.Context, command string) error {
	a.logger.Info("交易机器人已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Exchange.Name),
		zap.Bool("sandbox", a.cfg.Exchange.UseSandbox),
	)

	auditLog, err := audit.NewLog(a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化审计日志失败: %w", err)
	}

	aiClient, err := ai.NewClient(a.cfg.OpenAI, a.logger)
	if err != nil {
		return fmt.Errorf("初始化AI客户端失败: %w", err)
	}

	client, err := exchange.NewClient(a.cfg.Exchange, a.logger)
	if err != nil {
		return fmt.Errorf("初始化交易所客户端失败: %w", err)
	}
	// 下游只通过 Gateway 边界使用交易所，预热等客户端专属操作留在此处。
	var gateway exchange.Gateway = client

	// 指令解析与市场元数据预热互不依赖，并行执行。
	// 预热失败不致命：校验阶段会按元数据缺失降级处理。
	var fields map[string]interface{}
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		parsed, err := aiClient.Interpret(groupCtx, command)
		if err != nil {
			return err
		}
		fields = parsed
		return nil
	})
	group.Go(func() error {
		if warmErr := client.WarmUp(groupCtx); warmErr != nil {
			a.logger.Warn("市场元数据预热失败", zap.Error(warmErr))
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		auditLog.RecordError(ctx, "指令解析失败", err, map[string]interface{}{"input": command})
		a.suggestCorrection(ctx, aiClient, command, err)
		return err
	}

	normalizer := order.NewNormalizer(gateway, auditLog, order.Defaults{
		TWAPIntervals: a.cfg.TWAP.DefaultIntervals,
		TWAPDelay:     a.cfg.TWAP.DefaultDelay,
		TimeInForce:   a.cfg.Order.TimeInForce,
	}, a.logger)

	pipe := newPipeline(normalizer, buildExecutors(gateway, auditLog, a.logger), auditLog, a.logger)

	result, err := pipe.Run(ctx, fields)
	if err != nil {
		a.suggestCorrection(ctx, aiClient, command, err)
		return err
	}

	a.logger.Info("订单执行结果", zap.Any("result", result))
	return nil
}

// buildExecutors 按封闭的订单种类表注册执行器。
func buildExecutors(gateway exchange.Gateway, auditor execution.Auditor, logger *zap.Logger) map[order.Kind]execution.Executor {
	return map[order.Kind]execution.Executor{
		order.KindMarket:    execution.NewMarketExecutor(gateway, auditor, logger),
		order.KindLimit:     execution.NewLimitExecutor(gateway, auditor, logger),
		order.KindStopLimit: execution.NewStopLimitExecutor(gateway, auditor, logger),
		order.KindOCO:       execution.NewOCOExecutor(gateway, auditor, logger),
		order.KindTWAP:      execution.NewTWAPExecutor(gateway, auditor, logger),
	}
}

func (a *App) suggestCorrection(ctx context.Context, aiClient *ai.Client, command string, cause error) {
	suggestion, err := aiClient.SuggestCorrection(ctx, command, cause.Error())
	if err != nil {
		a.logger.Warn("无法生成修正建议", zap.Error(err))
		return
	}
	a.logger.Info("修正建议（仅供参考，不会自动执行）",
		zap.String("suggestion", suggestion),
	)
}
