// Package builtin provides the systems every router runs: help, server
// commands, the online list, account binding, banned words, keyword
// replies and the final echo relay.
package builtin

import (
	"context"
	"fmt"
	"strings"

	"mcqq/internal/system"
	"mcqq/pkg/command"
	"mcqq/pkg/logger"
	"mcqq/pkg/message"
)

// System names in their default chain order.
const (
	NameHelp     = "help"
	NameCommand  = "command"
	NameOnline   = "online"
	NameBind     = "bind"
	NameBanWords = "ban_words"
	NameKeyword  = "keyword"
	NameEcho     = "echo"
)

// Order is the default chain order.
var Order = []string{NameHelp, NameCommand, NameOnline, NameBind, NameBanWords, NameKeyword, NameEcho}

// Options carries the settings individual builtins need.
type Options struct {
	Bind BindOptions
}

// New builds the builtin system of that name.
func New(name string, env *system.Env, opts Options) (system.System, error) {
	switch name {
	case NameHelp:
		return NewHelp(env), nil
	case NameCommand:
		return NewCommand(env), nil
	case NameOnline:
		return NewOnline(env), nil
	case NameBind:
		return NewBind(env, opts.Bind), nil
	case NameBanWords:
		return NewBanWords(env), nil
	case NameKeyword:
		return NewKeyword(env), nil
	case NameEcho:
		return NewEcho(env), nil
	}
	return nil, fmt.Errorf("unknown builtin system %q", name)
}

// parse matches a local chat message against prefix+word.
func parse(env *system.Env, info *message.BroadcastInfo, word string) (command.Command, bool) {
	if info.EventType != message.EventMessage || !system.IsLocal(info) {
		return command.Command{}, false
	}
	return command.Parse(info.Message.PlainText(), env.CommandPrefix(), word)
}

// reply sends a translated line back to the origin and logs delivery
// failures.
func reply(ctx context.Context, env *system.Env, info *message.BroadcastInfo, key string, params map[string]any) {
	logFailures(env.ReplyText(ctx, info, env.Tr(key, params)), "reply")
}

func denied(ctx context.Context, env *system.Env, info *message.BroadcastInfo) bool {
	reply(ctx, env, info, "common.no_permission", nil)
	return true
}

func usage(ctx context.Context, env *system.Env, info *message.BroadcastInfo, key string) bool {
	reply(ctx, env, info, "common.usage", map[string]any{"usage": env.Tr(key, nil)})
	return true
}

// failed reports an internal error to the sender.
func failed(ctx context.Context, env *system.Env, info *message.BroadcastInfo, err error) {
	logger.Error().Err(err).Str("source", info.Source.String()).Msg("Command failed")
	reply(ctx, env, info, "common.internal_error", map[string]any{"error": err.Error()})
}

func logFailures(failed map[string]error, what string) {
	for name, err := range failed {
		logger.Warn().Err(err).Str("connector", name).Msgf("%s delivery failed", what)
	}
}

func joinOr(items []string, none string) string {
	if len(items) == 0 {
		return none
	}
	return strings.Join(items, ", ")
}
