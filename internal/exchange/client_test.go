package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

func TestOrderTypeForCcxt(t *testing.T) {
	cases := map[string]string{
		TypeMarket:     "market",
		TypeLimit:      "limit",
		TypeStopLimit:  "STOP",
		TypeStopMarket: "STOP_MARKET",
		TypeTakeProfit: "TAKE_PROFIT",
	}
	for input, want := range cases {
		if got := orderTypeForCcxt(input); got != want {
			t.Errorf("orderTypeForCcxt(%s) = %s, want %s", input, got, want)
		}
	}
}

func TestConvertOrder(t *testing.T) {
	params := OrderParams{
		Symbol:        "BTCUSDT",
		Side:          "BUY",
		Type:          TypeLimit,
		Quantity:      1.5,
		Price:         50000.0,
		ClientOrderID: "client-1",
	}

	id := "12345"
	status := "open"
	amount := 1.5
	price := 50000.0
	ts := int64(1700000000000)

	ack := convertOrder(params, ccxt.Order{
		Id:        &id,
		Status:    &status,
		Amount:    &amount,
		Price:     &price,
		Timestamp: &ts,
	})

	if ack.OrderID != "12345" {
		t.Errorf("expected order id 12345, got %s", ack.OrderID)
	}
	if ack.Status != "open" {
		t.Errorf("expected status open, got %s", ack.Status)
	}
	if ack.ClientOrderID != "client-1" {
		t.Errorf("expected client order id preserved, got %s", ack.ClientOrderID)
	}
	if !ack.Timestamp.Equal(time.UnixMilli(ts).UTC()) {
		t.Errorf("unexpected timestamp %v", ack.Timestamp)
	}
}

func TestConvertOrder_FallsBackToRequestFields(t *testing.T) {
	params := OrderParams{
		Symbol:   "ETHUSDT",
		Side:     "SELL",
		Type:     TypeMarket,
		Quantity: 0.5,
	}

	// 交易所回执字段缺失时回填请求参数，时间戳取当前时间。
	ack := convertOrder(params, ccxt.Order{})

	if ack.Symbol != "ETHUSDT" || ack.Side != "SELL" || ack.Quantity != 0.5 {
		t.Errorf("expected request fields carried into ack, got %+v", ack)
	}
	if ack.Timestamp.IsZero() {
		t.Errorf("expected non-zero timestamp")
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := &ccxt.Error{Type: ccxt.RateLimitExceededErrType, Message: "429"}
	if !IsRetryable(retryable) {
		t.Errorf("rate-limit error must be retryable")
	}
	if !IsRetryable(fmt.Errorf("load_markets: %w", retryable)) {
		t.Errorf("wrapped retryable error must stay retryable")
	}
	if !IsRetryable(&net.DNSError{IsTimeout: true}) {
		t.Errorf("network error must be retryable")
	}

	if IsRetryable(&ccxt.Error{Type: ccxt.OnMaintenanceErrType}) {
		t.Errorf("maintenance is handled separately, not retried blindly")
	}
	if IsRetryable(errors.New("insufficient balance")) {
		t.Errorf("plain errors must not be retryable")
	}
	if IsRetryable(nil) {
		t.Errorf("nil must not be retryable")
	}
}

func TestClassifyError(t *testing.T) {
	c := &Client{}

	// 可重试判定委托给 IsRetryable。
	_, retry := c.classifyError(&ccxt.Error{Type: ccxt.ExchangeNotAvailableErrType})
	if !retry {
		t.Errorf("exchange-unavailable must be retryable")
	}
	_, retry = c.classifyError(&ccxt.Error{Type: ccxt.AuthenticationErrorErrType})
	if retry {
		t.Errorf("authentication failure must not be retryable")
	}

	// 维护状态归一化为 ErrMaintenance，且不重试。
	normalized, retry := c.classifyError(&ccxt.Error{Type: ccxt.OnMaintenanceErrType, Message: "upgrading"})
	if retry {
		t.Errorf("maintenance must not be retryable")
	}
	if !errors.Is(normalized, ErrMaintenance) {
		t.Errorf("expected ErrMaintenance, got %v", normalized)
	}
	if !strings.Contains(normalized.Error(), "upgrading") {
		t.Errorf("maintenance message must be preserved: %v", normalized)
	}

	// 上下文取消原样返回，不重试。
	normalized, retry = c.classifyError(context.Canceled)
	if retry || !errors.Is(normalized, context.Canceled) {
		t.Errorf("context cancellation must pass through unretried, got %v", normalized)
	}
}

func TestCallError(t *testing.T) {
	cause := errors.New("insufficient balance")
	err := &CallError{
		Operation: "create_order",
		Params:    OrderParams{Symbol: "BTCUSDT", Type: TypeMarket},
		Err:       cause,
	}

	if !errors.Is(err, cause) {
		t.Errorf("expected CallError to unwrap to cause")
	}
	msg := err.Error()
	if !strings.Contains(msg, "create_order") || !strings.Contains(msg, "BTCUSDT") {
		t.Errorf("error message must carry operation and symbol: %s", msg)
	}
}
