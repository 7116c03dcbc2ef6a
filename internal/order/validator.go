package order

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"orderbot/internal/exchange"
)

// MetadataSource 提供交易对约束，校验器据此对数量与价格取整。
type MetadataSource interface {
	SymbolMetadata(ctx context.Context, symbol string) (*exchange.SymbolMetadata, error)
}

// Auditor 记录校验事件。
type Auditor interface {
	RecordValidation(ctx context.Context, req Request)
}

// Defaults 为校验器填充的缺省值。
type Defaults struct {
	TWAPIntervals int
	TWAPDelay     time.Duration
	TimeInForce   string
}

// 每种订单的必填字段表。
var requiredFields = map[Kind][]string{
	KindMarket:    {"symbol", "side", "quantity"},
	KindLimit:     {"symbol", "side", "quantity", "price"},
	KindStopLimit: {"symbol", "side", "quantity", "stop_price", "price"},
	KindOCO:       {"symbol", "side", "quantity", "price", "stop_price"},
	KindTWAP:      {"symbol", "side", "quantity"},
}

// 常见同义键，缺字段时先尝试替换再报错。
var alternateKeys = map[string][]string{
	"quantity":   {"qty", "amount"},
	"symbol":     {"pair"},
	"side":       {"action"},
	"price":      {"limit_price", "limitPrice", "limit"},
	"stop_price": {"stopPrice", "stop"},
}

// Normalizer 把松散的原始字段归一化为符合交易所约束的 Request。
type Normalizer struct {
	meta     MetadataSource
	auditor  Auditor
	defaults Defaults
	logger   *zap.Logger
}

// NewNormalizer 创建校验器。meta 与 auditor 允许为 nil。
func NewNormalizer(meta MetadataSource, auditor Auditor, defaults Defaults, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaults.TWAPIntervals <= 0 {
		defaults.TWAPIntervals = 5
	}
	if defaults.TWAPDelay <= 0 {
		defaults.TWAPDelay = 60 * time.Second
	}
	if defaults.TimeInForce == "" {
		defaults.TimeInForce = "GTC"
	}
	return &Normalizer{
		meta:     meta,
		auditor:  auditor,
		defaults: defaults,
		logger:   logger,
	}
}

// Validate 校验并归一化原始字段。任何违规返回 *ValidationError，
// 此时尚未发生任何交易所下单调用。
func (n *Normalizer) Validate(ctx context.Context, raw map[string]interface{}) (Request, error) {
	if raw == nil {
		return Request{}, newValidationError("", "输入不能为空")
	}

	fields := resolveAlternateKeys(raw)

	kind, err := resolveKind(fields)
	if err != nil {
		return Request{}, err
	}

	required, ok := requiredFields[kind]
	if !ok {
		return Request{}, newValidationError("order_type", "未知订单类型 %q", kind)
	}
	for _, field := range required {
		if _, present := fields[field]; !present {
			return Request{}, newValidationError(field, "%s 订单缺少必填字段", kind)
		}
	}

	symbol, err := normalizeSymbol(fields["symbol"])
	if err != nil {
		return Request{}, err
	}

	side, err := normalizeSide(fields["side"])
	if err != nil {
		return Request{}, err
	}

	req := Request{
		Kind:        kind,
		Symbol:      symbol,
		Side:        side,
		TimeInForce: n.defaults.TimeInForce,
	}

	// 元数据不可用是合法情形：跳过取整，原样下传。
	meta := n.lookupMetadata(ctx, symbol)
	req.Meta = meta

	quantity, err := toPositiveFloat(fields["quantity"], "quantity")
	if err != nil {
		return Request{}, err
	}
	quantity, err = conformQuantity(quantity, meta)
	if err != nil {
		return Request{}, err
	}
	req.Quantity = quantity

	if value, present := fields["price"]; present {
		price, err := toPositiveFloat(value, "price")
		if err != nil {
			return Request{}, err
		}
		price, err = conformPrice(price, meta, "price")
		if err != nil {
			return Request{}, err
		}
		req.Price = price
	}

	if value, present := fields["stop_price"]; present {
		stopPrice, err := toPositiveFloat(value, "stop_price")
		if err != nil {
			return Request{}, err
		}
		stopPrice, err = conformPrice(stopPrice, meta, "stop_price")
		if err != nil {
			return Request{}, err
		}
		req.StopPrice = stopPrice
	}

	if err := checkCrossFields(&req); err != nil {
		return Request{}, err
	}

	if err := n.fillTWAPFields(&req, fields); err != nil {
		return Request{}, err
	}

	if value, present := fields["time_in_force"]; present {
		tif, ok := value.(string)
		if !ok || strings.TrimSpace(tif) == "" {
			return Request{}, newValidationError("time_in_force", "必须为非空字符串")
		}
		req.TimeInForce = strings.ToUpper(strings.TrimSpace(tif))
	}

	if value, present := fields["reduce_only"]; present {
		flag, ok := value.(bool)
		if !ok {
			return Request{}, newValidationError("reduce_only", "必须为布尔值")
		}
		req.ReduceOnly = flag
	}

	req.Extra = collectExtras(fields)

	for _, warning := range req.Warnings {
		n.logger.Warn("订单未通过推荐性检查",
			zap.String("symbol", req.Symbol),
			zap.String("kind", string(req.Kind)),
			zap.String("warning", warning),
		)
	}

	n.logger.Info("订单校验通过",
		zap.String("symbol", req.Symbol),
		zap.String("kind", string(req.Kind)),
		zap.String("side", string(req.Side)),
		zap.Float64("quantity", req.Quantity),
	)
	if n.auditor != nil {
		n.auditor.RecordValidation(ctx, req)
	}

	return req, nil
}

func (n *Normalizer) lookupMetadata(ctx context.Context, symbol string) *exchange.SymbolMetadata {
	if n.meta == nil {
		return nil
	}
	meta, err := n.meta.SymbolMetadata(ctx, symbol)
	if err != nil {
		n.logger.Warn("获取交易对约束失败，跳过取整",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return nil
	}
	return meta
}

func (n *Normalizer) fillTWAPFields(req *Request, fields map[string]interface{}) error {
	if req.Kind != KindTWAP {
		return nil
	}

	req.TWAPIntervals = n.defaults.TWAPIntervals
	req.TWAPDelay = n.defaults.TWAPDelay

	if value, present := fields["twap_intervals"]; present {
		intervals, err := toInt(value, "twap_intervals")
		if err != nil {
			return err
		}
		if intervals <= 0 {
			return newValidationError("twap_intervals", "必须大于0，当前为 %d", intervals)
		}
		req.TWAPIntervals = intervals
	}

	if value, present := fields["twap_delay"]; present {
		seconds, err := toFloat(value, "twap_delay")
		if err != nil {
			return err
		}
		if seconds < 0 {
			return newValidationError("twap_delay", "不能为负，当前为 %v", seconds)
		}
		req.TWAPDelay = time.Duration(seconds * float64(time.Second))
	}

	return nil
}

func resolveKind(fields map[string]interface{}) (Kind, error) {
	value, present := fields["order_type"]
	if !present {
		value = fields["type"]
	}
	if value == nil {
		return KindMarket, nil
	}

	text, ok := value.(string)
	if !ok {
		return "", newValidationError("order_type", "必须为字符串")
	}

	kind := Kind(strings.ToLower(strings.TrimSpace(text)))
	if kind == "" {
		return KindMarket, nil
	}
	if _, known := requiredFields[kind]; !known {
		return "", newValidationError("order_type", "未知订单类型 %q", text)
	}
	return kind, nil
}

func resolveAlternateKeys(raw map[string]interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(raw))
	for key, value := range raw {
		fields[key] = value
	}
	for canonical, alternates := range alternateKeys {
		if _, present := fields[canonical]; present {
			continue
		}
		for _, alt := range alternates {
			if value, found := fields[alt]; found {
				fields[canonical] = value
				delete(fields, alt)
				break
			}
		}
	}
	return fields
}

func normalizeSymbol(value interface{}) (string, error) {
	text, ok := value.(string)
	if !ok {
		return "", newValidationError("symbol", "必须为字符串")
	}
	symbol := strings.ToUpper(strings.TrimSpace(text))
	if symbol == "" {
		return "", newValidationError("symbol", "不能为空")
	}
	return symbol, nil
}

func normalizeSide(value interface{}) (Side, error) {
	text, ok := value.(string)
	if !ok {
		return "", newValidationError("side", "必须为字符串")
	}
	switch strings.ToUpper(strings.TrimSpace(text)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return "", newValidationError("side", "必须为 BUY 或 SELL，当前为 %q", text)
	}
}

func checkCrossFields(req *Request) error {
	switch req.Kind {
	case KindStopLimit, KindOCO:
		if req.StopPrice == req.Price {
			return newValidationError("stop_price", "不能等于 price (%v)", req.Price)
		}
		// 推荐性检查：BUY 持仓的止损应低于限价，SELL 持仓反之。
		// 不符合时仅标记，不做静默纠正。
		switch req.Side {
		case SideBuy:
			if req.StopPrice > req.Price {
				req.Warnings = append(req.Warnings,
					fmt.Sprintf("BUY 方向通常要求 stop_price(%v) 低于 price(%v)", req.StopPrice, req.Price))
			}
		case SideSell:
			if req.StopPrice < req.Price {
				req.Warnings = append(req.Warnings,
					fmt.Sprintf("SELL 方向通常要求 stop_price(%v) 高于 price(%v)", req.StopPrice, req.Price))
			}
		}
	}
	return nil
}

// conformQuantity 把数量向下取整到步长倍数，取整后低于最小数量则拒绝。
func conformQuantity(quantity float64, meta *exchange.SymbolMetadata) (float64, error) {
	if meta == nil {
		return quantity, nil
	}

	if meta.QuantityStep > 0 {
		quantity = FloorToStep(quantity, meta.QuantityStep)
	}
	if meta.MinQuantity > 0 && quantity < meta.MinQuantity {
		return 0, newValidationError("quantity",
			"取整后数量 %v 低于交易所最小数量 %v", quantity, meta.MinQuantity)
	}
	return quantity, nil
}

// conformPrice 把价格取整到 tick 倍数，低于最小价格则拒绝。
func conformPrice(price float64, meta *exchange.SymbolMetadata, field string) (float64, error) {
	if meta == nil {
		return price, nil
	}

	if meta.MinPrice > 0 && price < meta.MinPrice {
		return 0, newValidationError(field,
			"价格 %v 低于交易所最小价格 %v", price, meta.MinPrice)
	}
	if meta.PriceTick > 0 {
		price = RoundToTick(price, meta.PriceTick)
	}
	return price, nil
}

// FloorToStep 将数量向下取整到 step 的倍数，精度由 step 的量级推导。
// 商先加极小容差再取整，避免 0.123/0.001 这类浮点商落在 122.999… 上。
func FloorToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	floored := math.Floor(value/step+1e-9) * step
	return roundToPrecision(floored, stepPrecision(step))
}

// RoundToTick 将价格取整到 tick 的最近倍数。
func RoundToTick(value, tick float64) float64 {
	if tick <= 0 {
		return value
	}
	rounded := math.Round(value/tick) * tick
	return roundToPrecision(rounded, stepPrecision(tick))
}

func stepPrecision(step float64) int {
	if step >= 1 {
		return 0
	}
	return int(math.Round(-math.Log10(step)))
}

func roundToPrecision(value float64, precision int) float64 {
	factor := math.Pow10(precision)
	return math.Round(value*factor) / factor
}

func toFloat(value interface{}, field string) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, newValidationError(field, "必须为数值，当前为 %q", v)
		}
		return parsed, nil
	default:
		return 0, newValidationError(field, "必须为数值，当前类型为 %T", value)
	}
}

func toPositiveFloat(value interface{}, field string) (float64, error) {
	parsed, err := toFloat(value, field)
	if err != nil {
		return 0, err
	}
	if parsed <= 0 {
		return 0, newValidationError(field, "必须大于0，当前为 %v", parsed)
	}
	return parsed, nil
}

func toInt(value interface{}, field string) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, newValidationError(field, "必须为整数，当前为 %v", v)
		}
		return int(v), nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, newValidationError(field, "必须为整数，当前为 %q", v)
		}
		return parsed, nil
	default:
		return 0, newValidationError(field, "必须为整数，当前类型为 %T", value)
	}
}

var consumedFields = map[string]struct{}{
	"order_type": {}, "type": {}, "symbol": {}, "side": {},
	"quantity": {}, "price": {}, "stop_price": {},
	"twap_intervals": {}, "twap_delay": {},
	"time_in_force": {}, "reduce_only": {},
}

func collectExtras(fields map[string]interface{}) map[string]interface{} {
	var extras map[string]interface{}
	for key, value := range fields {
		if _, consumed := consumedFields[key]; consumed {
			continue
		}
		if extras == nil {
			extras = make(map[string]interface{})
		}
		extras[key] = value
	}
	return extras
}
