package flowcontrol

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig 流量控制配置非法
var ErrInvalidConfig = errors.New("invalid flow control config")

func invalid(field, format string, args ...interface{}) error {
	return &fieldError{field: field, message: fmt.Sprintf(format, args...)}
}

// fieldError 单个字段的配置错误
type fieldError struct {
	field   string
	message string
}

func (e *fieldError) Error() string {
	return fmt.Sprintf("flow_control.%s: %s", e.field, e.message)
}

func (e *fieldError) Unwrap() error { return ErrInvalidConfig }
