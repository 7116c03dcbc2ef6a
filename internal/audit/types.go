package audit

import (
	"time"

	"orderbot/internal/exchange"
	"orderbot/internal/order"
)

// EventType 标识审计事件类别。
type EventType string

const (
	EventValidation      EventType = "validation"
	EventGatewayRequest  EventType = "gateway_request"
	EventGatewayResponse EventType = "gateway_response"
	EventOrder           EventType = "order"
	EventPipeline        EventType = "pipeline"
	EventError           EventType = "error"
)

// Event 为一条结构化审计记录。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// ValidationPayload 记录校验通过后的规范化请求。
type ValidationPayload struct {
	Request order.Request `json:"request"`
}

// GatewayRequestPayload 记录每次出站下单调用的参数。
type GatewayRequestPayload struct {
	Params exchange.OrderParams `json:"params"`
}

// GatewayResponsePayload 记录交易所回执。
type GatewayResponsePayload struct {
	Ack exchange.OrderAck `json:"ack"`
}

// OrderPayload 记录一笔完成的订单。
type OrderPayload struct {
	Kind string            `json:"kind"`
	Ack  exchange.OrderAck `json:"ack"`
}

// PipelinePayload 记录整条流水线的完成情况。
type PipelinePayload struct {
	Kind   string      `json:"kind"`
	Symbol string      `json:"symbol"`
	Result interface{} `json:"result"`
}

// ErrorPayload 记录异常及其上下文。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
