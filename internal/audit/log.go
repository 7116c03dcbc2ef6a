package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"orderbot/internal/exchange"
	"orderbot/internal/order"
	"orderbot/internal/store"
)

// Log 负责持久化审计事件。写入失败只记录日志，不阻断交易流程。
type Log struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLog 初始化审计日志，创建所需表结构。
func NewLog(store *store.Store, logger *zap.Logger) (*Log, error) {
	if store == nil {
		return nil, fmt.Errorf("audit: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &Log{
		db:     store.DB(),
		logger: logger,
	}

	if err := l.initSchema(); err != nil {
		return nil, err
	}

	return l, nil
}

func (l *Log) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS audit_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type);
`
	if _, err := l.db.Exec(stmt); err != nil {
		return fmt.Errorf("audit: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (l *Log) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("audit: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO audit_events (event_type, payload, created_at) VALUES (?, ?, ?)`,
		string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("audit: 写入事件失败: %w", err)
	}

	return nil
}

// RecordValidation 记录校验通过的请求。
func (l *Log) RecordValidation(ctx context.Context, req order.Request) {
	if err := l.Record(ctx, Event{
		Type:      EventValidation,
		Timestamp: time.Now().UTC(),
		Payload:   ValidationPayload{Request: req},
	}); err != nil {
		l.logger.Warn("记录校验事件失败", zap.Error(err))
	}
}

// RecordGatewayRequest 记录出站下单调用。
func (l *Log) RecordGatewayRequest(ctx context.Context, params exchange.OrderParams) {
	if err := l.Record(ctx, Event{
		Type:      EventGatewayRequest,
		Timestamp: time.Now().UTC(),
		Payload:   GatewayRequestPayload{Params: params},
	}); err != nil {
		l.logger.Warn("记录网关请求事件失败", zap.Error(err))
	}
}

// RecordGatewayResponse 记录交易所回执。
func (l *Log) RecordGatewayResponse(ctx context.Context, ack exchange.OrderAck) {
	if err := l.Record(ctx, Event{
		Type:      EventGatewayResponse,
		Timestamp: time.Now().UTC(),
		Payload:   GatewayResponsePayload{Ack: ack},
	}); err != nil {
		l.logger.Warn("记录网关响应事件失败", zap.Error(err))
	}
}

// RecordOrder 记录一笔完成的订单。
func (l *Log) RecordOrder(ctx context.Context, kind string, ack exchange.OrderAck) {
	if err := l.Record(ctx, Event{
		Type:      EventOrder,
		Timestamp: time.Now().UTC(),
		Payload:   OrderPayload{Kind: kind, Ack: ack},
	}); err != nil {
		l.logger.Warn("记录订单事件失败", zap.Error(err))
	}
}

// RecordPipeline 记录流水线完成事件。
func (l *Log) RecordPipeline(ctx context.Context, kind, symbol string, result interface{}) {
	if err := l.Record(ctx, Event{
		Type:      EventPipeline,
		Timestamp: time.Now().UTC(),
		Payload:   PipelinePayload{Kind: kind, Symbol: symbol, Result: result},
	}); err != nil {
		l.logger.Warn("记录流水线事件失败", zap.Error(err))
	}
}

// RecordError 记录异常。
func (l *Log) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Context: ctxMap,
	}
	if err != nil {
		payload.Error = err.Error()
	}
	if recErr := l.Record(ctx, Event{
		Type:      EventError,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}); recErr != nil {
		l.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// ListEvents 按类型检索最近事件，type 为空时返回全部。
func (l *Log) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT event_type, payload, created_at FROM audit_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			payload string
			created string
		)
		if err := rows.Scan(&typ, &payload, &created); err != nil {
			return nil, fmt.Errorf("audit: 读取事件失败: %w", err)
		}

		event := Event{Type: EventType(typ)}
		if ts, parseErr := time.Parse(time.RFC3339, created); parseErr == nil {
			event.Timestamp = ts
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(payload), &decoded); err == nil {
			event.Payload = decoded
		} else {
			event.Payload = payload
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: 遍历事件失败: %w", err)
	}

	return events, nil
}
