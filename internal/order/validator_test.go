package order

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"orderbot/internal/exchange"
)

func TestValidate_MarketNormalization(t *testing.T) {
	n := NewNormalizer(nil, nil, Defaults{}, nil)

	req, err := n.Validate(context.Background(), map[string]interface{}{
		"order_type": "market",
		"symbol":     "btcusdt",
		"side":       "buy",
		"quantity":   2.0,
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}

	if req.Kind != KindMarket {
		t.Errorf("expected kind market, got %s", req.Kind)
	}
	if req.Symbol != "BTCUSDT" {
		t.Errorf("expected symbol BTCUSDT, got %s", req.Symbol)
	}
	if req.Side != SideBuy {
		t.Errorf("expected side BUY, got %s", req.Side)
	}
	if req.Quantity != 2.0 {
		t.Errorf("expected quantity 2, got %f", req.Quantity)
	}
	if req.TimeInForce != "GTC" {
		t.Errorf("expected default time_in_force GTC, got %s", req.TimeInForce)
	}
}

func TestValidate_DefaultsToMarketKind(t *testing.T) {
	n := NewNormalizer(nil, nil, Defaults{}, nil)

	req, err := n.Validate(context.Background(), map[string]interface{}{
		"symbol":   "ETHUSDT",
		"side":     "SELL",
		"quantity": 1.0,
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if req.Kind != KindMarket {
		t.Errorf("expected default kind market, got %s", req.Kind)
	}
}

func TestValidate_AlternateKeys(t *testing.T) {
	n := NewNormalizer(nil, nil, Defaults{}, nil)

	req, err := n.Validate(context.Background(), map[string]interface{}{
		"order_type": "stop_limit",
		"pair":       "ethusdt",
		"action":     "sell",
		"qty":        1.5,
		"limitPrice": 3200.0,
		"stopPrice":  3400.0,
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}

	if req.Symbol != "ETHUSDT" {
		t.Errorf("expected pair resolved to symbol, got %s", req.Symbol)
	}
	if req.Side != SideSell {
		t.Errorf("expected action resolved to side SELL, got %s", req.Side)
	}
	if req.Quantity != 1.5 {
		t.Errorf("expected qty resolved to quantity 1.5, got %f", req.Quantity)
	}
	if req.Price != 3200.0 || req.StopPrice != 3400.0 {
		t.Errorf("expected limitPrice/stopPrice resolved, got price=%f stop=%f", req.Price, req.StopPrice)
	}
}

func TestValidate_MissingRequiredField(t *testing.T) {
	n := NewNormalizer(nil, nil, Defaults{}, nil)

	_, err := n.Validate(context.Background(), map[string]interface{}{
		"order_type": "limit",
		"symbol":     "BTCUSDT",
		"side":       "BUY",
		"quantity":   1.0,
	})
	if err == nil {
		t.Fatalf("expected validation error for missing price")
	}

	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if vErr.Field != "price" {
		t.Errorf("expected failing field price, got %s", vErr.Field)
	}
}

func TestValidate_RejectsNonPositiveAndNonNumeric(t *testing.T) {
	n := NewNormalizer(nil, nil, Defaults{}, nil)

	cases := []map[string]interface{}{
		{"symbol": "BTCUSDT", "side": "BUY", "quantity": -1.0},
		{"symbol": "BTCUSDT", "side": "BUY", "quantity": 0.0},
		{"symbol": "BTCUSDT", "side": "BUY", "quantity": "abc"},
		{"order_type": "limit", "symbol": "BTCUSDT", "side": "BUY", "quantity": 1.0, "price": -5.0},
	}

	for i, raw := range cases {
		_, err := n.Validate(context.Background(), raw)
		var vErr *ValidationError
		if err == nil || !errors.As(err, &vErr) {
			t.Errorf("case %d: expected *ValidationError, got %v", i, err)
		}
	}
}

func TestValidate_UnknownKindAndSideRejected(t *testing.T) {
	n := NewNormalizer(nil, nil, Defaults{}, nil)

	_, err := n.Validate(context.Background(), map[string]interface{}{
		"order_type": "grid",
		"symbol":     "BTCUSDT",
		"side":       "BUY",
		"quantity":   1.0,
	})
	var vErr *ValidationError
	if err == nil || !errors.As(err, &vErr) || vErr.Field != "order_type" {
		t.Errorf("expected order_type validation error, got %v", err)
	}

	_, err = n.Validate(context.Background(), map[string]interface{}{
		"symbol":   "BTCUSDT",
		"side":     "HOLD",
		"quantity": 1.0,
	})
	if err == nil || !errors.As(err, &vErr) || vErr.Field != "side" {
		t.Errorf("expected side validation error, got %v", err)
	}
}

func TestValidate_StepAndTickRounding(t *testing.T) {
	meta := &exchange.SymbolMetadata{
		Symbol:       "BTCUSDT",
		MinQuantity:  0.001,
		QuantityStep: 0.001,
		MinPrice:     0.01,
		PriceTick:    0.1,
	}
	n := NewNormalizer(stubMetadata{meta: meta}, nil, Defaults{}, nil)

	req, err := n.Validate(context.Background(), map[string]interface{}{
		"order_type": "limit",
		"symbol":     "BTCUSDT",
		"side":       "BUY",
		"quantity":   0.12345,
		"price":      50000.04,
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}

	if req.Quantity != 0.123 {
		t.Errorf("expected quantity floored to 0.123, got %v", req.Quantity)
	}
	if req.Price != 50000.0 {
		t.Errorf("expected price rounded to 50000.0, got %v", req.Price)
	}
	if rem := math.Mod(req.Quantity, meta.QuantityStep); rem > 1e-9 && meta.QuantityStep-rem > 1e-9 {
		t.Errorf("quantity %v is not a step multiple", req.Quantity)
	}
}

func TestValidate_BelowMinimumRejected(t *testing.T) {
	meta := &exchange.SymbolMetadata{
		Symbol:       "BTCUSDT",
		MinQuantity:  0.01,
		QuantityStep: 0.01,
		MinPrice:     1.0,
		PriceTick:    0.1,
	}
	n := NewNormalizer(stubMetadata{meta: meta}, nil, Defaults{}, nil)

	// 0.019 向下取整到 0.01 仍然合法，0.009 取整后低于最小数量。
	_, err := n.Validate(context.Background(), map[string]interface{}{
		"symbol":   "BTCUSDT",
		"side":     "BUY",
		"quantity": 0.009,
	})
	var vErr *ValidationError
	if err == nil || !errors.As(err, &vErr) || vErr.Field != "quantity" {
		t.Errorf("expected quantity minimum rejection, got %v", err)
	}

	_, err = n.Validate(context.Background(), map[string]interface{}{
		"order_type": "limit",
		"symbol":     "BTCUSDT",
		"side":       "BUY",
		"quantity":   1.0,
		"price":      0.5,
	})
	if err == nil || !errors.As(err, &vErr) || vErr.Field != "price" {
		t.Errorf("expected price minimum rejection, got %v", err)
	}
}

func TestValidate_MetadataUnavailableProceedsUnrounded(t *testing.T) {
	n := NewNormalizer(stubMetadata{err: errors.New("exchange down")}, nil, Defaults{}, nil)

	req, err := n.Validate(context.Background(), map[string]interface{}{
		"order_type": "limit",
		"symbol":     "BTCUSDT",
		"side":       "BUY",
		"quantity":   0.12345,
		"price":      50000.04,
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if req.Quantity != 0.12345 || req.Price != 50000.04 {
		t.Errorf("expected values unchanged without metadata, got qty=%v price=%v", req.Quantity, req.Price)
	}
	if req.Meta != nil {
		t.Errorf("expected nil metadata on request")
	}
}

func TestValidate_StopPriceCrossChecks(t *testing.T) {
	n := NewNormalizer(nil, nil, Defaults{}, nil)

	_, err := n.Validate(context.Background(), map[string]interface{}{
		"order_type": "oco",
		"symbol":     "ETHUSDT",
		"side":       "SELL",
		"quantity":   0.5,
		"price":      2700.0,
		"stop_price": 2700.0,
	})
	var vErr *ValidationError
	if err == nil || !errors.As(err, &vErr) || vErr.Field != "stop_price" {
		t.Errorf("expected stop_price==price rejection, got %v", err)
	}

	// 推荐性检查只产生警告，不拒绝。
	req, err := n.Validate(context.Background(), map[string]interface{}{
		"order_type": "oco",
		"symbol":     "ETHUSDT",
		"side":       "SELL",
		"quantity":   0.5,
		"price":      2700.0,
		"stop_price": 2600.0,
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if len(req.Warnings) == 0 {
		t.Errorf("expected relative-ordering warning for SELL with stop below price")
	}

	req, err = n.Validate(context.Background(), map[string]interface{}{
		"order_type": "oco",
		"symbol":     "ETHUSDT",
		"side":       "SELL",
		"quantity":   0.5,
		"price":      2700.0,
		"stop_price": 3200.0,
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if len(req.Warnings) != 0 {
		t.Errorf("expected no warning for conforming OCO, got %v", req.Warnings)
	}
}

func TestValidate_TWAPDefaultsAndOverrides(t *testing.T) {
	n := NewNormalizer(nil, nil, Defaults{TWAPIntervals: 5, TWAPDelay: 60 * time.Second}, nil)

	req, err := n.Validate(context.Background(), map[string]interface{}{
		"order_type": "twap",
		"symbol":     "BTCUSDT",
		"side":       "BUY",
		"quantity":   0.5,
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if req.TWAPIntervals != 5 || req.TWAPDelay != 60*time.Second {
		t.Errorf("expected defaults 5/60s, got %d/%v", req.TWAPIntervals, req.TWAPDelay)
	}

	req, err = n.Validate(context.Background(), map[string]interface{}{
		"order_type":     "twap",
		"symbol":         "BTCUSDT",
		"side":           "BUY",
		"quantity":       0.5,
		"twap_intervals": 10.0,
		"twap_delay":     0.0,
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if req.TWAPIntervals != 10 || req.TWAPDelay != 0 {
		t.Errorf("expected overrides 10/0, got %d/%v", req.TWAPIntervals, req.TWAPDelay)
	}

	_, err = n.Validate(context.Background(), map[string]interface{}{
		"order_type":     "twap",
		"symbol":         "BTCUSDT",
		"side":           "BUY",
		"quantity":       0.5,
		"twap_intervals": 0.0,
	})
	var vErr *ValidationError
	if err == nil || !errors.As(err, &vErr) || vErr.Field != "twap_intervals" {
		t.Errorf("expected twap_intervals rejection, got %v", err)
	}
}

func TestValidate_PassThroughAndOptionalFields(t *testing.T) {
	n := NewNormalizer(nil, nil, Defaults{}, nil)

	req, err := n.Validate(context.Background(), map[string]interface{}{
		"order_type":    "limit",
		"symbol":        "BTCUSDT",
		"side":          "BUY",
		"quantity":      1.0,
		"price":         50000.0,
		"time_in_force": "ioc",
		"reduce_only":   true,
		"leverage":      20.0,
	})
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}

	if req.TimeInForce != "IOC" {
		t.Errorf("expected time_in_force IOC, got %s", req.TimeInForce)
	}
	if !req.ReduceOnly {
		t.Errorf("expected reduce_only true")
	}
	if req.Extra["leverage"] != 20.0 {
		t.Errorf("expected leverage passed through, got %v", req.Extra)
	}
}

func TestValidate_Idempotent(t *testing.T) {
	meta := &exchange.SymbolMetadata{
		Symbol:       "BTCUSDT",
		MinQuantity:  0.001,
		QuantityStep: 0.001,
		MinPrice:     0.01,
		PriceTick:    0.1,
	}
	n := NewNormalizer(stubMetadata{meta: meta}, nil, Defaults{}, nil)

	first, err := n.Validate(context.Background(), map[string]interface{}{
		"order_type": "limit",
		"symbol":     "btcusdt",
		"side":       "buy",
		"quantity":   0.12345,
		"price":      50000.04,
	})
	if err != nil {
		t.Fatalf("first Validate returned error: %v", err)
	}

	second, err := n.Validate(context.Background(), map[string]interface{}{
		"order_type": string(first.Kind),
		"symbol":     first.Symbol,
		"side":       string(first.Side),
		"quantity":   first.Quantity,
		"price":      first.Price,
	})
	if err != nil {
		t.Fatalf("second Validate returned error: %v", err)
	}

	if second.Quantity != first.Quantity || second.Price != first.Price {
		t.Errorf("re-validation changed values: qty %v→%v price %v→%v",
			first.Quantity, second.Quantity, first.Price, second.Price)
	}
	if second.Symbol != first.Symbol || second.Side != first.Side || second.Kind != first.Kind {
		t.Errorf("re-validation changed identity fields")
	}
}

func TestFloorToStepAndRoundToTick(t *testing.T) {
	if got := FloorToStep(0.12345, 0.001); got != 0.123 {
		t.Errorf("FloorToStep(0.12345, 0.001) = %v, want 0.123", got)
	}
	if got := FloorToStep(5.0, 1.0); got != 5.0 {
		t.Errorf("FloorToStep(5, 1) = %v, want 5", got)
	}
	if got := RoundToTick(50000.04, 0.1); got != 50000.0 {
		t.Errorf("RoundToTick(50000.04, 0.1) = %v, want 50000.0", got)
	}
	if got := RoundToTick(50000.07, 0.1); got != 50000.1 {
		t.Errorf("RoundToTick(50000.07, 0.1) = %v, want 50000.1", got)
	}
}

type stubMetadata struct {
	meta *exchange.SymbolMetadata
	err  error
}

func (s stubMetadata) SymbolMetadata(ctx context.Context, symbol string) (*exchange.SymbolMetadata, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.meta, nil
}
