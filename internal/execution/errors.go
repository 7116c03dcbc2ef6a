package execution

import "fmt"

// Error 表示策略级执行失败：OCO 第二腿失败、TWAP 中途失败等。
// Partial 保留已完成的部分结果，调用方可据此区分
// "什么都没发生" 与 "部分已成交" 并做人工对账。
type Error struct {
	Stage   string
	Partial Result
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("execution: %s 阶段失败: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
