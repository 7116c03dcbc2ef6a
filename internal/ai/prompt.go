package ai

import (
	"bytes"
	"fmt"
	"text/template"
)

const interpretTemplate = `
你是熟悉 Binance 合约交易指令的解析器。把用户输入的 CLI 交易命令解析成严格的 JSON。

五种订单类型对应的 JSON 键：
1) "market"（市价单，只需数量与方向）:
{"order_type": "market", "symbol": ..., "side": ..., "quantity": ...}
2) "limit"（限价单，额外需要价格）:
{"order_type": "limit", "symbol": ..., "side": ..., "quantity": ..., "price": ...}
3) "stop_limit"（止损限价单，需要限价 price 与触发价 stop_price）:
{"order_type": "stop_limit", "symbol": ..., "side": ..., "quantity": ..., "stop_price": ..., "price": ...}
4) "oco"（双向挂单：止盈限价 + 止损市价）:
{"order_type": "oco", "symbol": "ETHUSDT", "side": "SELL", "quantity": 0.5, "price": 2700, "stop_price": 3200}
5) "twap"（分时等量拆单，可选 twap_intervals 与 twap_delay）:
{"order_type": "twap", "symbol": "BTCUSDT", "side": "BUY", "quantity": 0.5, "twap_intervals": 5, "twap_delay": 60}

解析规则：
- order_type 只能是 market、limit、stop_limit、oco、twap 之一。
- symbol 统一转换为 Binance USDT 合约对（btc→BTCUSDT，eth→ETHUSDT，sol→SOLUSDT）；
  用户只写基础币种时默认 USDT 对。
- side 从文本中的 buy/sell 提取，输出 BUY 或 SELL。
- quantity 为币的数量，允许小数。
- twap_delay 的单位为秒。
- 只返回合法 JSON，不要任何解释或 JSON 以外的文本。

示例：
"buy 2 btc" → {"order_type": "market", "symbol": "BTCUSDT", "side": "BUY", "quantity": 2}
"sell 1 eth limit at 3200" → {"order_type": "limit", "symbol": "ETHUSDT", "side": "SELL", "quantity": 1, "price": 3200}
"twap buy btc amount 0.3" → {"order_type": "twap", "symbol": "BTCUSDT", "side": "BUY", "quantity": 0.3}
"sell 0.5 eth oco for 2700 stop_price 3200" → {"order_type": "oco", "symbol": "ETHUSDT", "side": "SELL", "quantity": 0.5, "price": 2700, "stop_price": 3200}

用户命令：
{{ .Command }}

只返回 JSON。
`

const suggestionTemplate = `
你是帮助用户修正 CLI 交易命令的助手。

用户输入：
"{{ .Command }}"

系统报错：
"{{ .ErrorMessage }}"

请完成：
1. 找出命令中可能的错误；
2. 给出一条可被机器人接受的修正命令；
3. 简要解释错误原因与修正方式。

按以下格式返回：

Corrected command:
orderbot "<corrected command>"

Explanation:
<错误说明>

无法修正时返回：
orderbot "<help>"
`

var (
	interpretTmpl  = template.Must(template.New("interpret").Parse(interpretTemplate))
	suggestionTmpl = template.Must(template.New("suggestion").Parse(suggestionTemplate))
)

type interpretContext struct {
	Command string
}

type suggestionContext struct {
	Command      string
	ErrorMessage string
}

// BuildInterpretPrompt 渲染命令解析提示词。
func BuildInterpretPrompt(command string) (string, error) {
	var buf bytes.Buffer
	if err := interpretTmpl.Execute(&buf, interpretContext{Command: command}); err != nil {
		return "", fmt.Errorf("渲染解析提示词失败: %w", err)
	}
	return buf.String(), nil
}

// BuildSuggestionPrompt 渲染纠错建议提示词。
func BuildSuggestionPrompt(command, errorMessage string) (string, error) {
	var buf bytes.Buffer
	ctx := suggestionContext{Command: command, ErrorMessage: errorMessage}
	if err := suggestionTmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("渲染纠错提示词失败: %w", err)
	}
	return buf.String(), nil
}
