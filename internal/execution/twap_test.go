package execution

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"orderbot/internal/exchange"
	"orderbot/internal/order"
)

func TestTWAPExecutor_FullRun(t *testing.T) {
	gateway := &mockGateway{}
	auditor := &recordingAuditor{}
	executor := NewTWAPExecutor(gateway, auditor, nil)

	result, err := executor.Execute(context.Background(), order.Request{
		Kind:          order.KindTWAP,
		Symbol:        "BTCUSDT",
		Side:          order.SideBuy,
		Quantity:      0.5,
		TWAPIntervals: 5,
		TWAPDelay:     0,
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	if len(gateway.calls) != 5 {
		t.Fatalf("expected 5 chunk orders, got %d", len(gateway.calls))
	}
	for i, call := range gateway.calls {
		if call.Type != exchange.TypeMarket {
			t.Errorf("chunk %d: expected MARKET, got %s", i+1, call.Type)
		}
		if math.Abs(call.Quantity-0.1) > 1e-9 {
			t.Errorf("chunk %d: expected quantity 0.1, got %v", i+1, call.Quantity)
		}
	}

	twap := result.TWAP
	if twap == nil {
		t.Fatalf("expected TWAP result")
	}
	if !twap.Completed {
		t.Errorf("expected Completed")
	}
	if len(twap.Acks) != 5 {
		t.Errorf("expected 5 acks, got %d", len(twap.Acks))
	}
	if math.Abs(twap.ExecutedQuantity-0.5) > 1e-9 {
		t.Errorf("expected executed quantity 0.5, got %v", twap.ExecutedQuantity)
	}
	if len(auditor.orderKinds) != 5 {
		t.Errorf("expected 5 twap_chunk audit events, got %d", len(auditor.orderKinds))
	}
	for _, kind := range auditor.orderKinds {
		if kind != "twap_chunk" {
			t.Errorf("expected audit kind twap_chunk, got %s", kind)
		}
	}
}

func TestTWAPExecutor_FailureStopsRemainingChunks(t *testing.T) {
	gateway := &mockGateway{failAt: 3, err: errors.New("exchange unavailable")}
	executor := NewTWAPExecutor(gateway, nil, nil)

	_, err := executor.Execute(context.Background(), order.Request{
		Kind:          order.KindTWAP,
		Symbol:        "BTCUSDT",
		Side:          order.SideBuy,
		Quantity:      0.5,
		TWAPIntervals: 5,
		TWAPDelay:     0,
	})
	if err == nil {
		t.Fatalf("expected partial failure error")
	}

	var execErr *Error
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if execErr.Stage != "twap_chunk_3" {
		t.Errorf("expected stage twap_chunk_3, got %s", execErr.Stage)
	}
	if len(gateway.calls) != 3 {
		t.Errorf("expected submission to stop after failing chunk, got %d calls", len(gateway.calls))
	}

	twap := execErr.Partial.TWAP
	if twap == nil {
		t.Fatalf("partial result must carry completed chunks")
	}
	if len(twap.Acks) != 2 {
		t.Errorf("expected 2 completed acks, got %d", len(twap.Acks))
	}
	if twap.Completed {
		t.Errorf("partial run must not be marked Completed")
	}
}

func TestTWAPExecutor_PerChunkRounding(t *testing.T) {
	gateway := &mockGateway{}
	executor := NewTWAPExecutor(gateway, nil, nil)

	// 0.01 / 3 = 0.00333…，按步长 0.001 再次向下取整到 0.003。
	result, err := executor.Execute(context.Background(), order.Request{
		Kind:          order.KindTWAP,
		Symbol:        "BTCUSDT",
		Side:          order.SideBuy,
		Quantity:      0.01,
		TWAPIntervals: 3,
		TWAPDelay:     0,
		Meta: &exchange.SymbolMetadata{
			Symbol:       "BTCUSDT",
			MinQuantity:  0.001,
			QuantityStep: 0.001,
		},
	})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}

	twap := result.TWAP
	if math.Abs(twap.ChunkQuantity-0.003) > 1e-9 {
		t.Errorf("expected chunk quantity 0.003, got %v", twap.ChunkQuantity)
	}
	for i, call := range gateway.calls {
		if math.Abs(call.Quantity-0.003) > 1e-9 {
			t.Errorf("chunk %d: expected quantity 0.003, got %v", i+1, call.Quantity)
		}
	}
	// 3 × 0.003 = 0.009，漂移 0.001 体现在结果里而不是被吞掉。
	if math.Abs(twap.ExecutedQuantity-0.009) > 1e-9 {
		t.Errorf("expected executed quantity 0.009, got %v", twap.ExecutedQuantity)
	}
	if math.Abs(twap.RequestedQuantity-0.01) > 1e-9 {
		t.Errorf("expected requested quantity 0.01, got %v", twap.RequestedQuantity)
	}
}

func TestTWAPExecutor_RejectsInvalidParams(t *testing.T) {
	gateway := &mockGateway{}
	executor := NewTWAPExecutor(gateway, nil, nil)

	_, err := executor.Execute(context.Background(), order.Request{
		Kind:          order.KindTWAP,
		Symbol:        "BTCUSDT",
		Side:          order.SideBuy,
		Quantity:      0.5,
		TWAPIntervals: 0,
	})
	var execErr *Error
	if err == nil || !errors.As(err, &execErr) || execErr.Stage != "twap_params" {
		t.Errorf("expected twap_params error, got %v", err)
	}
	if len(gateway.calls) != 0 {
		t.Errorf("invalid params must not reach the gateway, got %d calls", len(gateway.calls))
	}

	// 单片数量取整后低于最小数量，同样在提交前拒绝。
	_, err = executor.Execute(context.Background(), order.Request{
		Kind:          order.KindTWAP,
		Symbol:        "BTCUSDT",
		Side:          order.SideBuy,
		Quantity:      0.002,
		TWAPIntervals: 5,
		Meta: &exchange.SymbolMetadata{
			Symbol:       "BTCUSDT",
			MinQuantity:  0.001,
			QuantityStep: 0.001,
		},
	})
	if err == nil || !errors.As(err, &execErr) || execErr.Stage != "twap_chunk_size" {
		t.Errorf("expected twap_chunk_size error, got %v", err)
	}
	if len(gateway.calls) != 0 {
		t.Errorf("undersized chunks must not reach the gateway, got %d calls", len(gateway.calls))
	}
}

func TestTWAPExecutor_CancelBetweenChunks(t *testing.T) {
	gateway := &mockGateway{}
	executor := NewTWAPExecutor(gateway, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := executor.Execute(ctx, order.Request{
		Kind:          order.KindTWAP,
		Symbol:        "BTCUSDT",
		Side:          order.SideBuy,
		Quantity:      0.5,
		TWAPIntervals: 5,
		TWAPDelay:     200 * time.Millisecond,
	})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}

	var execErr *Error
	if !errors.As(err, &execErr) {
		t.Fatalf("expected *Error, got %T: %v", err, err)
	}
	if execErr.Stage != "twap_cancelled" {
		t.Errorf("expected stage twap_cancelled, got %s", execErr.Stage)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected wrapped context.Canceled, got %v", execErr.Err)
	}
	if len(execErr.Partial.TWAP.Acks) != 1 {
		t.Errorf("expected exactly the first chunk before cancellation, got %d", len(execErr.Partial.TWAP.Acks))
	}
}
