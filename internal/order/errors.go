package order

import "fmt"

// ValidationError 表示请求字段缺失、类型错误或越界。
// 校验失败时尚未发生任何交易所交互。
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("order: 校验失败: %s", e.Reason)
	}
	return fmt.Sprintf("order: 字段 %s 校验失败: %s", e.Field, e.Reason)
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf(format, args...),
	}
}
