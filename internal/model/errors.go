package model

import (
	stderrors "errors"
	"fmt"
)

// 引擎错误分类，统一在 Dispatcher 边界转成用户可读的道歉文本。
// 分类值本身不带调用栈，加上下文用 errors.WithMessagef。
var (
	ErrMalformedAction   = stderrors.New("malformed callback action")
	ErrUnknownOrder      = stderrors.New("unknown order")
	ErrInvalidTransition = stderrors.New("invalid order status transition")
	ErrInvalidOrder      = stderrors.New("invalid order")
	ErrCompletion        = stderrors.New("completion failed")
	ErrTransport         = stderrors.New("transport failed")
)

// Because 给底层错误打上分类，errors.Is 对分类和原因都成立。
func Because(kind, cause error) error {
	return fmt.Errorf("%w: %w", kind, cause)
}
