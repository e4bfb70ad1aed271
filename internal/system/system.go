// Package system runs the ordered chain of message handling systems.
package system

import (
	"context"
	"errors"

	"github.com/spf13/cast"

	"mcqq/internal/host"
	"mcqq/internal/player"
	"mcqq/internal/storage"
	"mcqq/pkg/message"
)

var (
	// ErrDuplicateSystem is returned when a system name is already registered.
	ErrDuplicateSystem = errors.New("system already registered")
	// ErrSystemNotFound is returned for unknown system names.
	ErrSystemNotFound = errors.New("system not found")
)

// System is one unit of message handling logic.
type System interface {
	// Name identifies the system in the chain.
	Name() string

	// Initialize is called once on registration and may load state.
	Initialize(ctx context.Context) error

	// ProcessBroadcastInfo returns true when the system fully handled info
	// and no later system should see it.
	ProcessBroadcastInfo(ctx context.Context, info *message.BroadcastInfo) (bool, error)
}

// Helper is implemented by systems that have a usage line for help.
type Helper interface {
	Usage() string
}

// Broadcaster fans a processed message out to connectors.
type Broadcaster interface {
	BroadcastProcessedInfo(ctx context.Context, info *message.ProcessedInfo, include, exclude []string) map[string]error
}

// Translator resolves a translation key.
type Translator interface {
	Tr(key string, params map[string]any) string
}

// ConfigAccessor reads configuration by path.
type ConfigAccessor interface {
	GetKeys(path []string, def any) any
}

// MemberLookup resolves the display name of a QQ account. It blocks for at
// most the gateway getter timeout and reports false when nothing answered.
type MemberLookup interface {
	MemberName(ctx context.Context, groupID, userID string) (string, bool)
}

// Env is the application context handed to systems.
type Env struct {
	Connectors Broadcaster
	Config     ConfigAccessor
	Translator Translator
	Players    *player.Registry
	Host       host.Host
	DB         *storage.DB
	// QQ looks up QQ member names; may be nil.
	QQ MemberLookup
	// Prefix returns the current command prefix.
	Prefix func() string
	// Systems lists registered systems in chain order.
	Systems func() []System
}

// CommandPrefix returns the configured prefix, "#" when unset.
func (e *Env) CommandPrefix() string {
	if e.Prefix == nil {
		return "#"
	}
	if p := e.Prefix(); p != "" {
		return p
	}
	return "#"
}

// Tr translates key; the prefix is always available as {prefix}.
func (e *Env) Tr(key string, params map[string]any) string {
	if params == nil {
		params = map[string]any{}
	}
	if _, ok := params["prefix"]; !ok {
		params["prefix"] = e.CommandPrefix()
	}
	if e.Translator == nil {
		return key
	}
	return e.Translator.Tr(key, params)
}

// Bool reads a boolean config value.
func (e *Env) Bool(path []string, def bool) bool {
	if e.Config == nil {
		return def
	}
	v, err := cast.ToBoolE(e.Config.GetKeys(path, def))
	if err != nil {
		return def
	}
	return v
}

// Int reads an integer config value.
func (e *Env) Int(path []string, def int) int {
	if e.Config == nil {
		return def
	}
	v, err := cast.ToIntE(e.Config.GetKeys(path, def))
	if err != nil {
		return def
	}
	return v
}

// QQName returns the display name of a QQ account, or the id itself when no
// lookup is configured or the gateway did not answer.
func (e *Env) QQName(ctx context.Context, groupID, userID string) string {
	if e.QQ == nil || userID == "" {
		return userID
	}
	if name, ok := e.QQ.MemberName(ctx, groupID, userID); ok && name != "" {
		return name
	}
	return userID
}

// Relay sends info to every connector except the one it came through and
// the current hop.
func (e *Env) Relay(ctx context.Context, info *message.BroadcastInfo) map[string]error {
	return e.Connectors.BroadcastProcessedInfo(ctx, info.ToProcessed(), nil, RelayExclude(info))
}

// RelayExclude is the default loop-prevention exclusion set.
func RelayExclude(info *message.BroadcastInfo) []string {
	ex := []string{}
	if cur := info.Source.Current(); cur != "" {
		ex = append(ex, cur)
	}
	if info.ReceiverSource != "" && info.ReceiverSource != info.Source.Current() {
		ex = append(ex, info.ReceiverSource)
	}
	return ex
}

// Reply sends msg back to where info came from only, pinned to its channel.
func (e *Env) Reply(ctx context.Context, info *message.BroadcastInfo, msg message.Message) map[string]error {
	out := &message.ProcessedInfo{
		EventType:        message.EventMessage,
		ProcessedMessage: msg,
		Source:           info.Source.Clone(),
		SourceID:         info.SourceID,
		Receiver:         info.SenderID,
		EventSubType:     info.EventSubType,
	}
	if info.SourceID != "" {
		kind := message.TargetGroup
		if info.EventSubType == message.TargetPrivate {
			kind = message.TargetPrivate
		}
		out.Target = map[string]string{info.SourceID: kind}
	}
	include := []string{info.ReceiverSource}
	if info.ReceiverSource == "" {
		include = []string{info.Source.Current()}
	}
	return e.Connectors.BroadcastProcessedInfo(ctx, out, include, nil)
}

// ReplyText is Reply with a text message.
func (e *Env) ReplyText(ctx context.Context, info *message.BroadcastInfo, text string) map[string]error {
	return e.Reply(ctx, info, message.TextMessage(text))
}

// Announce sends msg to every connector, the origin included.
func (e *Env) Announce(ctx context.Context, info *message.BroadcastInfo, msg message.Message) map[string]error {
	out := &message.ProcessedInfo{
		EventType:        message.EventMessage,
		ProcessedMessage: msg,
		Source:           info.Source.Clone(),
		SourceID:         info.SourceID,
		EventSubType:     info.EventSubType,
	}
	return e.Connectors.BroadcastProcessedInfo(ctx, out, nil, nil)
}

// IsLocal reports whether info entered the router here rather than through
// a bridge; only local messages trigger commands and automatic replies.
func IsLocal(info *message.BroadcastInfo) bool {
	return info.Source.Len() <= 1
}

// Platform maps the connector a message entered through to the account
// platform used for bindings.
func Platform(info *message.BroadcastInfo, minecraft string) string {
	if info.Source.Origin() == minecraft {
		return player.PlatformMinecraft
	}
	return player.PlatformQQ
}
