package exchange

import (
	"errors"
	"fmt"
	"net"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 表示交易所处于维护状态。
	ErrMaintenance = errors.New("exchange on maintenance")
)

// CallError 表示单次交易所调用失败，附带原始请求参数便于排查。
type CallError struct {
	Operation string
	Params    OrderParams
	Err       error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("exchange: %s 调用失败 (symbol=%s type=%s): %v",
		e.Operation, e.Params.Symbol, e.Params.Type, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// IsRetryable 判断错误是否可重试：ccxt 的网络类错误与底层网络错误。
// 维护状态与上下文取消不在此列，由调用方单独处理。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
