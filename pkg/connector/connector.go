// Package connector defines the contract every chat endpoint implements.
package connector

import (
	"context"

	"mcqq/pkg/message"
)

// Handler 入站消息回调，返回值表示是否有系统认领了该消息
type Handler func(ctx context.Context, info *message.BroadcastInfo) bool

// Connector 连接器接口：一个外部渠道（Minecraft、QQ、桥接、测试）的双向网关
type Connector interface {
	// Name 返回连接器名称，同时作为 Source 链中的跳名
	Name() string

	// Connect 建立连接；可能在后台启动重连循环
	Connect(ctx context.Context) error

	// Disconnect 断开连接并取消所有后台循环
	Disconnect(ctx context.Context) error

	// SendMessage 发送出站消息；发送被禁用时直接返回 nil
	SendMessage(ctx context.Context, info *message.ProcessedInfo) error

	// OnMessage 注册入站回调
	OnMessage(handler Handler)
}

// Parser 把连接器的原始事件转换为 BroadcastInfo
type Parser[R any] interface {
	Parse(raw R) (*message.BroadcastInfo, error)
}

// Builder 把消息内容渲染为连接器的线上格式
type Builder[W any] interface {
	Build(msg message.Message) (W, error)
}

// ParserFunc 适配普通函数为 Parser
type ParserFunc[R any] func(raw R) (*message.BroadcastInfo, error)

// Parse implements Parser.
func (f ParserFunc[R]) Parse(raw R) (*message.BroadcastInfo, error) { return f(raw) }

// BuilderFunc 适配普通函数为 Builder
type BuilderFunc[W any] func(msg message.Message) (W, error)

// Build implements Builder.
func (f BuilderFunc[W]) Build(msg message.Message) (W, error) { return f(msg) }
