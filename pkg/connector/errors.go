package connector

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateConnector 同名连接器已注册
	ErrDuplicateConnector = errors.New("connector already registered")

	// ErrConnectorNotFound 连接器不存在
	ErrConnectorNotFound = errors.New("connector not found")

	// ErrNotConnected 连接尚未建立或已断开
	ErrNotConnected = errors.New("connector not connected")

	// ErrSkip 解析器主动忽略的事件（心跳、非配置群等），不算解析失败
	ErrSkip = errors.New("event skipped")
)

// ParseError 解析失败，携带原始负载以便记录日志
type ParseError struct {
	Connector string
	Raw       string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: parse event: %v", e.Connector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NewParseError wraps err; raw payloads longer than 512 bytes are truncated.
func NewParseError(connector string, raw []byte, err error) *ParseError {
	const max = 512
	s := string(raw)
	if len(s) > max {
		s = s[:max] + "..."
	}
	return &ParseError{Connector: connector, Raw: s, Err: err}
}
