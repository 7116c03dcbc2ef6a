package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"orderbot/internal/config"
)

// Gateway 抽象交易所网关，执行器只依赖此接口。
type Gateway interface {
	// PlaceOrder 提交一笔订单。下单不是幂等操作，网关不做自动重试，
	// 失败以 *CallError 返回并附带原始请求参数。
	PlaceOrder(ctx context.Context, params OrderParams) (OrderAck, error)
	// SymbolMetadata 返回交易对的报价约束；交易对未知时返回 nil（合法结果）。
	SymbolMetadata(ctx context.Context, symbol string) (*SymbolMetadata, error)
}

// Client 基于 ccxt 的 Binance USDⓈ-M 网关实现。
type Client struct {
	cfg      config.ExchangeConfig
	logger   *zap.Logger
	exchange *ccxt.Binanceusdm

	marketsMu     sync.Mutex
	marketsLoaded bool
	marketsByID   map[string]ccxt.MarketInterface
}

var _ Gateway = (*Client)(nil)

// NewClient 构造 Binance USDⓈ-M 客户端。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}

	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewBinanceusdm(userConfig)
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
	}, nil
}

// WarmUp 预加载市场元数据，可与其他初始化并行执行。
func (c *Client) WarmUp(ctx context.Context) error {
	return c.ensureMarketsLoaded(ctx)
}

// PlaceOrder 提交订单。单次调用，不重试：下单超时后重发可能导致重复成交。
func (c *Client) PlaceOrder(ctx context.Context, params OrderParams) (OrderAck, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return OrderAck{}, ctxErr
	}

	if err := c.ensureMarketsLoaded(ctx); err != nil {
		c.logger.Warn("市场元数据不可用，使用原始交易对下单",
			zap.String("symbol", params.Symbol),
			zap.Error(err),
		)
	}

	symbol := c.unifiedSymbol(params.Symbol)

	extra := map[string]interface{}{}
	if params.StopPrice > 0 {
		extra["stopPrice"] = params.StopPrice
	}
	if params.TimeInForce != "" {
		extra["timeInForce"] = params.TimeInForce
	}
	if params.ClientOrderID != "" {
		extra["newClientOrderId"] = params.ClientOrderID
	}
	if params.ReduceOnly {
		extra["reduceOnly"] = true
	}

	var opts []ccxt.CreateOrderOptions
	if params.Price > 0 {
		opts = append(opts, ccxt.WithCreateOrderPrice(params.Price))
	}
	if len(extra) > 0 {
		opts = append(opts, ccxt.WithCreateOrderParams(extra))
	}

	start := time.Now()
	raw, err := c.exchange.CreateOrder(
		symbol,
		orderTypeForCcxt(params.Type),
		strings.ToLower(params.Side),
		params.Quantity,
		opts...,
	)
	latency := time.Since(start)

	if err != nil {
		normalized, _ := c.classifyError(err)
		c.logger.Error("下单失败",
			zap.String("symbol", params.Symbol),
			zap.String("type", params.Type),
			zap.String("side", params.Side),
			zap.Float64("quantity", params.Quantity),
			zap.Duration("latency", latency),
			zap.Error(normalized),
		)
		return OrderAck{}, &CallError{Operation: "create_order", Params: params, Err: normalized}
	}

	ack := convertOrder(params, raw)
	c.logger.Info("下单成功",
		zap.String("symbol", ack.Symbol),
		zap.String("type", ack.Type),
		zap.String("side", ack.Side),
		zap.String("order_id", ack.OrderID),
		zap.String("status", ack.Status),
		zap.Duration("latency", latency),
	)

	return ack, nil
}

// SymbolMetadata 从已加载的市场信息中提取交易对约束。
func (c *Client) SymbolMetadata(ctx context.Context, symbol string) (*SymbolMetadata, error) {
	if err := c.ensureMarketsLoaded(ctx); err != nil {
		return nil, err
	}

	c.marketsMu.Lock()
	market, ok := c.marketsByID[strings.ToUpper(symbol)]
	c.marketsMu.Unlock()
	if !ok {
		return nil, nil
	}

	meta := &SymbolMetadata{Symbol: strings.ToUpper(symbol)}
	if market.Precision.Amount != nil {
		meta.QuantityStep = *market.Precision.Amount
	}
	if market.Precision.Price != nil {
		meta.PriceTick = *market.Precision.Price
	}
	if market.Limits.Amount != nil && market.Limits.Amount.Min != nil {
		meta.MinQuantity = *market.Limits.Amount.Min
	}
	if market.Limits.Price != nil && market.Limits.Price.Min != nil {
		meta.MinPrice = *market.Limits.Price.Min
	}

	return meta, nil
}

func (c *Client) unifiedSymbol(symbol string) string {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if market, ok := c.marketsByID[strings.ToUpper(symbol)]; ok && market.Symbol != nil {
		return *market.Symbol
	}
	return symbol
}

func (c *Client) ensureMarketsLoaded(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()

	if c.marketsLoaded {
		return nil
	}

	var markets map[string]ccxt.MarketInterface
	loadErr := c.callWithRetry(ctx, "load_markets", func() error {
		result, err := c.exchange.LoadMarkets()
		if err != nil {
			return err
		}
		markets = result
		return nil
	})
	if loadErr != nil {
		return loadErr
	}

	byID := make(map[string]ccxt.MarketInterface, len(markets))
	for _, market := range markets {
		if market.Id != nil {
			byID[strings.ToUpper(*market.Id)] = market
		}
	}

	c.marketsByID = byID
	c.marketsLoaded = true
	c.logger.Info("已完成市场元数据加载", zap.Int("markets", len(byID)))
	return nil
}

// callWithRetry 仅用于幂等的只读调用。
func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Retry.MinDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Retry.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := c.classifyError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			c.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= c.cfg.Retry.MaxAttempts {
			c.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// classifyError 归一化交易所错误：维护状态与上下文取消单独处理，
// 其余交给 IsRetryable 判定。
func (c *Client) classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) && ccxtErr.Type == ccxt.OnMaintenanceErrType {
		message := strings.TrimSpace(ccxtErr.Message)
		if message == "" {
			message = "exchange under maintenance"
		}
		return fmt.Errorf("%w: %s", ErrMaintenance, message), false
	}

	return err, IsRetryable(err)
}

// orderTypeForCcxt 把 MARKET/LIMIT 映射为 ccxt 统一类型，
// 触发类订单（STOP/STOP_MARKET/TAKE_PROFIT）直接透传 Binance 原生类型。
func orderTypeForCcxt(orderType string) string {
	switch orderType {
	case TypeMarket:
		return "market"
	case TypeLimit:
		return "limit"
	default:
		return orderType
	}
}

func convertOrder(params OrderParams, raw ccxt.Order) OrderAck {
	ack := OrderAck{
		Symbol:        params.Symbol,
		Side:          params.Side,
		Type:          params.Type,
		Quantity:      params.Quantity,
		Price:         params.Price,
		ClientOrderID: params.ClientOrderID,
	}

	if raw.Id != nil {
		ack.OrderID = *raw.Id
	}
	if raw.ClientOrderId != nil {
		ack.ClientOrderID = *raw.ClientOrderId
	}
	if raw.Status != nil {
		ack.Status = *raw.Status
	}
	if raw.Amount != nil && *raw.Amount > 0 {
		ack.Quantity = *raw.Amount
	}
	if raw.Price != nil && *raw.Price > 0 {
		ack.Price = *raw.Price
	}
	if raw.Timestamp != nil {
		ack.Timestamp = time.UnixMilli(*raw.Timestamp).UTC()
	} else {
		ack.Timestamp = time.Now().UTC()
	}

	return ack
}
