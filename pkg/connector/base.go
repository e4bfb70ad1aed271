package connector

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"mcqq/pkg/logger"
	"mcqq/pkg/message"
)

// Flags 连接器开关
type Flags struct {
	Enable        bool `json:"enable" mapstructure:"enable"`
	EnableReceive bool `json:"enable_receive" mapstructure:"enable_receive"`
	EnableSend    bool `json:"enable_send" mapstructure:"enable_send"`
}

// ResolveFlags 计算最终开关；receive/send 未配置时继承 enable，enable 为 false 时全部关闭
func ResolveFlags(enable bool, receive, send *bool) Flags {
	f := Flags{Enable: enable, EnableReceive: enable, EnableSend: enable}
	if !enable {
		return f
	}
	if receive != nil {
		f.EnableReceive = *receive
	}
	if send != nil {
		f.EnableSend = *send
	}
	return f
}

// Base 为具体连接器提供名称、开关、回调和日志
type Base struct {
	name  string
	flags Flags
	Log   zerolog.Logger

	mu      sync.RWMutex
	handler Handler
}

// NewBase creates the shared connector state; connectors embed the pointer.
func NewBase(name string, flags Flags) *Base {
	return &Base{
		name:  name,
		flags: flags,
		Log:   logger.Component("connector." + name),
	}
}

// Name implements Connector.
func (b *Base) Name() string { return b.name }

// Flags returns the resolved switches.
func (b *Base) Flags() Flags { return b.flags }

// CanSend reports whether SendMessage should perform I/O.
func (b *Base) CanSend() bool { return b.flags.Enable && b.flags.EnableSend }

// CanReceive reports whether inbound events are forwarded.
func (b *Base) CanReceive() bool { return b.flags.Enable && b.flags.EnableReceive }

// OnMessage implements Connector.
func (b *Base) OnMessage(h Handler) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

// Deliver 把解析后的入站消息交给系统链。接收被禁用或未注册回调时返回 false。
// ReceiverSource 为空时填入本连接器名称。
func (b *Base) Deliver(ctx context.Context, info *message.BroadcastInfo) bool {
	if info == nil || !b.CanReceive() {
		return false
	}
	b.mu.RLock()
	h := b.handler
	b.mu.RUnlock()
	if h == nil {
		return false
	}
	if info.ReceiverSource == "" {
		info.ReceiverSource = b.name
	}
	if info.Source.Len() == 0 {
		info.Source = message.NewSource(b.name)
	}
	return h(ctx, info)
}
