package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"orderbot/internal/config"
)

// ParseError 表示自然语言指令无法解析为结构化意图。
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ai: 解析交易指令失败: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Client 封装 OpenAI 调用逻辑。
type Client struct {
	cfg    config.OpenAIConfig
	logger *zap.Logger
	sdk    *openai.Client
}

// NewClient 使用给定配置创建 AI 客户端。
func NewClient(cfg config.OpenAIConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api_key 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}

	httpClient := &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}
	sdkConfig.HTTPClient = httpClient
	client := openai.NewClientWithConfig(sdkConfig)

	return &Client{
		cfg:    cfg,
		logger: logger,
		sdk:    client,
	}, nil
}

// Interpret 把自由文本交易指令解析为原始字段映射。
// 期望键：order_type、symbol、side、quantity，视订单类型附带
// price、stop_price、twap_intervals、twap_delay。
func (c *Client) Interpret(ctx context.Context, text string) (map[string]interface{}, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Input: text, Err: errors.New("指令不能为空")}
	}

	prompt, err := BuildInterpretPrompt(text)
	if err != nil {
		return nil, &ParseError{Input: text, Err: err}
	}

	rawContent, err := c.complete(ctx, prompt)
	if err != nil {
		c.logger.Error("调用OpenAI失败", zap.Error(err))
		return nil, &ParseError{Input: text, Err: err}
	}

	jsonPayload, err := extractJSON(rawContent)
	if err != nil {
		c.logger.Error("模型输出缺少JSON",
			zap.String("raw_content", rawContent),
			zap.Error(err),
		)
		return nil, &ParseError{Input: text, Err: err}
	}

	var fields map[string]interface{}
	if err = json.Unmarshal(jsonPayload, &fields); err != nil {
		c.logger.Error("解析意图JSON失败",
			zap.String("raw_content", rawContent),
			zap.Error(err),
		)
		return nil, &ParseError{Input: text, Err: fmt.Errorf("解析意图JSON失败: %w", err)}
	}

	c.logger.Info("指令解析成功",
		zap.String("input", text),
		zap.Any("fields", fields),
	)

	return fields, nil
}

// SuggestCorrection 请求模型给出修正后的命令，仅作提示，绝不自动执行。
func (c *Client) SuggestCorrection(ctx context.Context, text string, errorMessage string) (string, error) {
	prompt, err := BuildSuggestionPrompt(text, errorMessage)
	if err != nil {
		return "", err
	}

	suggestion, err := c.complete(ctx, prompt)
	if err != nil {
		c.logger.Warn("获取纠错建议失败", zap.Error(err))
		return "", fmt.Errorf("获取纠错建议失败: %w", err)
	}

	return strings.TrimSpace(suggestion), nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	response, err := c.sdk.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("调用OpenAI失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", errors.New("OpenAI 返回结果为空")
	}

	content := strings.TrimSpace(response.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("OpenAI 返回内容为空")
	}

	return content, nil
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("模型输出未找到有效JSON: %s", content)
	}

	return []byte(content[start : end+1]), nil
}
