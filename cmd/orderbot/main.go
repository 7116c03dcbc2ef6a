package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"orderbot/internal/app"
	"orderbot/internal/config"
	"orderbot/internal/log"
	"orderbot/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.Parse()

	command := strings.TrimSpace(strings.Join(flag.Args(), " "))
	if command == "" {
		fmt.Fprintln(os.Stderr, "用法:")
		fmt.Fprintln(os.Stderr, `  orderbot [-config path] "交易指令"`)
		fmt.Fprintln(os.Stderr, `示例:`)
		fmt.Fprintln(os.Stderr, `  orderbot "buy 2 btc"`)
		fmt.Fprintln(os.Stderr, `  orderbot "sell 1 eth limit at 3200"`)
		os.Exit(1)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	bot := app.New(cfg, logger, sqliteStore)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bot.Run(ctx, command); err != nil {
		logger.Error("指令处理失败", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	logger.Info("指令处理完成")
}
